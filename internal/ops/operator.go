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

package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/klauspost/cpuid"
	"github.com/mlnoga/fluolight/internal/fits"
	"github.com/mlnoga/fluolight/internal/plot"
	"github.com/pbnjay/memory"
	"github.com/sirupsen/logrus"
)

// An execution context for operators
type Context struct {
	Log           io.Writer      // Progress log, one line per processing step
	Notify        *logrus.Logger // Status notifications shown to the user
	MemoryMB      int            // memory.TotalMemory()/1024/1024
	StackMemoryMB int            // MemoryMB*7/10
	MaxThreads    int            `json:"maxThreads"`
}

func NewContext(log io.Writer, notify *logrus.Logger) *Context {
	memoryMB := int(memory.TotalMemory() / 1024 / 1024)
	if notify == nil {
		notify = logrus.New()
		notify.SetOutput(log)
	}
	return &Context{
		Log:           log,
		Notify:        notify,
		MemoryMB:      memoryMB,
		StackMemoryMB: memoryMB * 7 / 10,
		MaxThreads:    DefaultThreads(),
	}
}

// Default number of worker threads: physical cores if known, else GOMAXPROCS
func DefaultThreads() int {
	if n := cpuid.CPU.PhysicalCores; n > 0 && n <= runtime.GOMAXPROCS(0) {
		return n
	}
	return runtime.GOMAXPROCS(0)
}

// Kind of an operator result, determines how a layer is displayed
type Kind string

const (
	KindImage  Kind = "image"
	KindLabels Kind = "labels"
	KindMask   Kind = "mask"
	KindPlot   Kind = "plot"
)

// Display colormaps
const (
	ColormapGray     = "gray"
	ColormapTurbo    = "turbo"
	ColormapRedGreen = "red-green"
)

// One result yielded by an operator: an image or label layer, or a plot for a dock panel
type Result struct {
	Name           string
	Kind           Kind
	Image          *fits.Image
	Colormap       string
	ContrastLimits []float32    // optional [lo, hi]
	Plot           *plot.Figure // for KindPlot
}

// Callback receiving each result as soon as it is computed
type Yield func(r *Result) error

// Input layers of an operator invocation
type Inputs struct {
	Images []*fits.Image
	Labels []*fits.Image
}

// An analysis operator: validates its inputs synchronously, then runs off the UI goroutine
// and yields zero or more results
type Operator interface {
	GetType() string
	Validate(in *Inputs) error
	Run(ctx context.Context, in *Inputs, c *Context, yield Yield) error
}

// Base type for operators, including type information for JSON serializing/deserializing
type OpBase struct {
	Type string `json:"type"`
}

func (op *OpBase) GetType() string { return op.Type }

// Factory method for operators. For JSON serializing/deserializing
type OperatorFactory func() Operator

// Mapping from operator type strings to factory method for the type
var operatorFactories = map[string]OperatorFactory{}

// Returns the operator factory for a given type string
func GetOperatorFactory(t string) OperatorFactory {
	return operatorFactories[t]
}

// Registers a given type string for a given type of Operator, identified via an exemplar generator
func SetOperatorFactory(f OperatorFactory) {
	op := f()
	t := op.GetType()
	if GetOperatorFactory(t) != nil {
		panic(fmt.Sprintf("error: re-registering operator key %s\n", t))
	}
	operatorFactories[t] = f
}

// Returns the sorted list of registered operator types
func OperatorTypes() []string {
	res := make([]string, 0, len(operatorFactories))
	for t := range operatorFactories {
		res = append(res, t)
	}
	sort.Strings(res)
	return res
}

// Creates an operator from JSON with a "type" field, filling in defaults for missing keys
func UnmarshalOperator(raw []byte) (Operator, error) {
	var base OpBase
	if err := json.Unmarshal(raw, &base); err != nil {
		return nil, err
	}
	factory := GetOperatorFactory(base.Type)
	if factory == nil {
		return nil, fmt.Errorf("Unknown operator type '%s' in raw JSON message '%s'", base.Type, string(raw))
	}
	op := factory()
	if err := json.Unmarshal(raw, op); err != nil {
		return nil, err
	}
	return op, nil
}

// Returns a deep copy of the operator parameters via a JSON roundtrip
func CloneOperator(op Operator) (Operator, error) {
	raw, err := json.Marshal(op)
	if err != nil {
		return nil, err
	}
	return UnmarshalOperator(raw)
}

// Returns true if a path is considered safe, i.e. not an absolute path,
// and doesn't contain the ".." characters to change to a parent directory
func IsPathAllowed(p string) bool {
	if filepath.IsAbs(p) {
		return false // relative paths only
	}
	if strings.Contains(p, "..") {
		return false // no going outside the tree
	}
	return true
}

// Loads an image from a FITS or TIFF file, rejecting images larger than the stack memory
func LoadImage(fileName string, id int, c *Context) (*fits.Image, error) {
	f, err := fits.NewImageFromFile(fileName, id, c.Log)
	if err != nil {
		return nil, err
	}
	if err = CheckMemory(f, c); err != nil {
		return nil, err
	}
	warning := ""
	if min, max := f.MinMax(); max-min < 1e-8 {
		warning = "; WARNING low dynamic range"
	}
	fmt.Fprintf(c.Log, "%d: Loaded %s image %s from %s%s\n", f.ID, f.DimensionsToString(), f.Name, f.FileName, warning)
	return f, nil
}

// Returns an error if the image does not fit into the configured stack memory
func CheckMemory(f *fits.Image, c *Context) error {
	if c.StackMemoryMB <= 0 {
		return nil
	}
	mb := int(int64(f.Pixels) * 4 / 1024 / 1024)
	if mb > c.StackMemoryMB {
		return fmt.Errorf("%d: image %s needs %d MB, exceeding stack memory limit of %d MB", f.ID, f.Name, mb, c.StackMemoryMB)
	}
	return nil
}
