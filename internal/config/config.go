// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.
// Package config reads and writes the application settings file, and converts
// YAML operator parameter files into the JSON form the operator registry decodes.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mlnoga/fluolight/internal/ops"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Application settings
type Config struct {
	Server     Server `yaml:"server"`
	MaxThreads int    `yaml:"maxThreads"` // 0 for the number of physical cores
	MemoryMB   int    `yaml:"memoryMB"`   // stack memory limit, 0 for 70% of physical memory
	Colormap   string `yaml:"colormap"`   // default colormap for new image layers
	ExportDir  string `yaml:"exportDir"`  // directory for CSV exports and plots
	LogFile    string `yaml:"logFile,omitempty"`
}

// REST server settings
type Server struct {
	Addr  string `yaml:"addr"`
	Debug bool   `yaml:"debug"`
}

func DefaultConfig() *Config {
	return &Config{
		Server:    Server{Addr: "localhost:8080"},
		Colormap:  ops.ColormapGray,
		ExportDir: ".",
	}
}

// Loads settings from a YAML file. Keys missing from the file keep their defaults
func LoadConfig(fileName string) (*Config, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", fileName)
	}
	cfg := DefaultConfig()
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", fileName)
	}
	if err = cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", fileName)
	}
	return cfg, nil
}

func SaveConfig(fileName string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err = os.WriteFile(fileName, data, 0644); err != nil {
		return errors.Wrapf(err, "writing config %s", fileName)
	}
	return nil
}

func (cfg *Config) Validate() error {
	if cfg.MaxThreads < 0 {
		return fmt.Errorf("maxThreads %d is negative", cfg.MaxThreads)
	}
	if cfg.MemoryMB < 0 {
		return fmt.Errorf("memoryMB %d is negative", cfg.MemoryMB)
	}
	switch cfg.Colormap {
	case "", ops.ColormapGray, ops.ColormapTurbo, ops.ColormapRedGreen:
	default:
		return fmt.Errorf("unknown colormap '%s'", cfg.Colormap)
	}
	return nil
}

// Applies thread and memory limits to an operator context
func (cfg *Config) Apply(c *ops.Context) {
	if cfg.MaxThreads > 0 {
		c.MaxThreads = cfg.MaxThreads
	}
	if cfg.MemoryMB > 0 {
		c.StackMemoryMB = cfg.MemoryMB
	}
}

// Converts a YAML document into JSON. JSON input passes through, as JSON is valid YAML
func YAMLToJSON(data []byte) ([]byte, error) {
	var v interface{}
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// Reads a parameter file as JSON. Files ending in .yaml or .yml are converted
func ReadParams(fileName string) ([]byte, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "reading parameters %s", fileName)
	}
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".yaml", ".yml":
		if data, err = YAMLToJSON(data); err != nil {
			return nil, errors.Wrapf(err, "parsing parameters %s", fileName)
		}
	}
	return data, nil
}
