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
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/cpuid"
	nl "github.com/mlnoga/fluolight/internal"
	"github.com/mlnoga/fluolight/internal/config"
	"github.com/mlnoga/fluolight/internal/gui"
	"github.com/mlnoga/fluolight/internal/layers"
	"github.com/mlnoga/fluolight/internal/ops"
	_ "github.com/mlnoga/fluolight/internal/ops/all"
	"github.com/mlnoga/fluolight/internal/plot"
	"github.com/mlnoga/fluolight/internal/rest"
	"github.com/pbnjay/memory"
	"github.com/sirupsen/logrus"
)

const version = "0.1.0"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var configFile = flag.String("config", "", "read settings from YAML `file`")
var params = flag.String("params", "", "read operator parameters or a pipeline from JSON or YAML `file`")
var outDir = flag.String("outDir", ".", "write result layers and plots to `directory`")
var log = flag.String("log", "", "save log output to `file`")
var threads = flag.Int("threads", 0, "number of worker threads, 0=physical cores")
var debug = flag.Bool("debug", false, "show debug notifications")
var labelFiles = flag.String("labelFiles", "", "run: comma-separated label `files` loaded after the images")

var addr = flag.String("addr", "", "serve: listen on `host:port`, default from config")
var chroot = flag.String("chroot", "", "serve: change filesystem root to `directory` before serving")
var setuid = flag.Int("setuid", -1, "serve: change user id before serving, -1=keep")

// Operator type and number of label inputs after the images, per command.
// A negative number means all inputs from that position on are labels
type command struct {
	opType   string
	images   int
	labels   int
	describe string
}

var commands = map[string]command{
	"split":        {"splitChannels", 1, 0, "Split a 3D or 4D stack into preprocessed channels"},
	"align":        {"alignStack", 2, 0, "Align channels 0 and 2 of a 4D stack. Inputs: offset [reference]"},
	"sep":          {"splitSEP", 1, 0, "Split an SEP pH series into intra- and extracellular stacks"},
	"fret":         {"eFRET", 3, 0, "Compute E-FRET from DD, DA and AA stacks"},
	"redgreen":     {"redGreen", 1, 0, "Compute the red-green difference series"},
	"dots":         {"dotMask", 1, 0, "Detect dot labels with watershed segmentation"},
	"upmask":       {"upMask", 1, 1, "Detect up labels in a red-green series. Inputs: image [rois]"},
	"mask":         {"mask", 1, 0, "Detect up or down labels in a red-green series"},
	"profile":      {"profileLine", 1, 1, "Plot and export ROI profiles. Inputs: image labels"},
	"multiprofile": {"profileMultiImage", -1, 1, "Summarize profiles of several images. Inputs: labels image1 ... imageN"},
	"multilabel":   {"profileMultiLabel", 1, -1, "Summarize profiles of several label layers. Inputs: image labels1 ... labelsN"},
}

func main() {
	start := time.Now()
	flag.Usage = usage
	flag.Parse()

	if *log != "" {
		if err := nl.LogAlsoToFile(*log); err != nil {
			nl.LogFatalf("Unable to open logfile '%s'\n", *log)
		}
	}

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			nl.LogFatal("Could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			nl.LogFatal("Could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}

	cfg := config.DefaultConfig()
	if *configFile != "" {
		var err error
		if cfg, err = config.LoadConfig(*configFile); err != nil {
			nl.LogFatalf("Error: %s\n", err.Error())
		}
		if *log == "" && cfg.LogFile != "" {
			if err := nl.LogAlsoToFile(cfg.LogFile); err != nil {
				nl.LogFatalf("Unable to open logfile '%s'\n", cfg.LogFile)
			}
		}
	}
	notify := nl.NewNotifier(nl.LogWriter(), *debug || cfg.Server.Debug, args[0] == "serve")
	c := ops.NewContext(nl.LogWriter(), notify)
	cfg.Apply(c)
	if *threads > 0 {
		c.MaxThreads = *threads
	}

	var err error
	switch args[0] {
	case "run":
		err = cmdRun(args[1:], c, cfg)
	case "info":
		err = cmdInfo(args[1:], c)
	case "serve":
		err = cmdServe(args[1:], c, cfg)
	case "gui":
		err = cmdGUI(args[1:], c, cfg)
	case "legal":
		cmdLegal()
	case "version":
		cmdVersion()
	case "help", "?":
		flag.Usage()
	default:
		cmd, ok := commands[args[0]]
		if !ok {
			nl.LogPrintf("Unknown command '%s'\n\n", args[0])
			flag.Usage()
			return
		}
		err = cmdOperator(cmd, args[1:], c, cfg)
	}

	nl.LogPrintf("\nDone after %v\n", time.Since(start))

	// Store memory profile if flagged
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			nl.LogFatal("Could not create memory profile: ", err)
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.Lookup("allocs").WriteTo(f, 0); err != nil {
			nl.LogFatal("Could not write allocation profile: ", err)
		}
	}

	if err != nil {
		nl.LogFatalf("Error: %s\n", err.Error())
	}
	nl.LogSync()
}

func usage() {
	nl.LogPrintf(`fluolight Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] command (file0 ... filen)

Files are FITS or TIFF images. A glob pattern matching several TIFF files is loaded
as one stack with one frame per file.

Commands:
`, os.Args[0])
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		nl.LogPrintf("  %-12s %s\n", name, commands[name].describe)
	}
	nl.LogPrintf(`  %-12s Run the operator or pipeline from -params on the inputs
  %-12s Show dimensions, value range and header of the inputs
  %-12s Serve the REST API and web viewer, preloading the inputs
  %-12s Open the desktop viewer, preloading the inputs
  %-12s Show license and attribution information
  %-12s Show version information

Flags:
`, "run", "info", "serve", "gui", "legal", "version")
	flag.PrintDefaults()
}

// Loads one command line argument as a layer. Glob patterns matching several
// files are loaded as a TIFF sequence
func loadArg(arg string, kind ops.Kind, id int, c *ops.Context) (*layers.Layer, error) {
	fileNames := []string{arg}
	if strings.ContainsAny(arg, "*?[") {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match '%s'", arg)
		}
		fileNames = matches
	}
	return layers.Load(fileNames, "", kind, id, c)
}

// Loads the arguments into a new store. The first numImages arguments are images, the
// following numLabels are labels; negative counts take all remaining arguments
func loadArgs(args []string, numImages, numLabels int, c *ops.Context) (store *layers.MemStore, images, labels []string, err error) {
	store = layers.NewMemStore()
	for i, arg := range args {
		kind := ops.KindImage
		if numImages >= 0 && i >= numImages {
			kind = ops.KindLabels
			if numLabels >= 0 && i >= numImages+numLabels {
				return nil, nil, nil, fmt.Errorf("too many inputs, expected at most %d", numImages+numLabels)
			}
		}
		l, err := loadArg(arg, kind, i+1, c)
		if err != nil {
			return nil, nil, nil, err
		}
		if !store.Put(l) {
			return nil, nil, nil, fmt.Errorf("duplicate layer name %s", l.Name)
		}
		if kind == ops.KindImage {
			images = append(images, l.Name)
		} else {
			labels = append(labels, l.Name)
		}
	}
	return store, images, labels, nil
}

// Builds an operator of the given type from defaults, the -params file, input counts
// and explicit flags, in increasing order of precedence. Zero count flags keep the input count
func buildOperator(opType string, counts map[string]interface{}) (ops.Operator, error) {
	values := map[string]interface{}{}
	if *params != "" {
		data, err := config.ReadParams(*params)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("%s: %w", *params, err)
		}
		if t, ok := values["type"]; ok && t != opType {
			return nil, fmt.Errorf("%s: parameters for %v, expected %s", *params, t, opType)
		}
	}
	for k, v := range counts {
		if _, ok := values[k]; !ok {
			values[k] = v
		}
	}
	for k, v := range paramOverrides() {
		if _, isCount := counts[k]; isCount && v == 0 {
			continue
		}
		values[k] = v
	}
	values["type"] = opType
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return ops.UnmarshalOperator(raw)
}

// Runs one operator on the command line inputs and saves the results
func cmdOperator(cmd command, args []string, c *ops.Context, cfg *config.Config) error {
	numImages, numLabels := cmd.images, cmd.labels
	if numImages < 0 {
		// labels first, then all images
		if len(args) < 2 {
			return fmt.Errorf("%s needs a label file and at least one image", cmd.opType)
		}
		args = append(append([]string(nil), args[1:]...), args[0])
		numImages, numLabels = len(args)-1, 1
	}
	store, images, labels, err := loadArgs(args, numImages, numLabels, c)
	if err != nil {
		return err
	}
	op, err := buildOperator(cmd.opType, map[string]interface{}{"profilesNum": len(images), "labelsNum": len(labels)})
	if err != nil {
		return err
	}
	if m, err := json.MarshalIndent(op, "", "  "); err == nil {
		nl.LogPrintf("Running %s with these settings:\n%s\n", cmd.opType, string(m))
	}
	step := &layers.Step{Operator: op, Images: images, Labels: labels}
	return runAndSave(&layers.Pipeline{Steps: []*layers.Step{step}}, store, c, cfg)
}

// Runs the operator or pipeline from -params
func cmdRun(args []string, c *ops.Context, cfg *config.Config) error {
	if *params == "" {
		return fmt.Errorf("run needs -params")
	}
	p, err := layers.LoadPipeline(*params)
	if err != nil {
		return err
	}
	var labelArgs []string
	if *labelFiles != "" {
		labelArgs = strings.Split(*labelFiles, ",")
	}
	store, images, labels, err := loadArgs(append(args, labelArgs...), len(args), len(labelArgs), c)
	if err != nil {
		return err
	}
	// a bare operator runs on all inputs in order
	if len(p.Steps) == 1 && len(p.Steps[0].Images) == 0 && len(p.Steps[0].Labels) == 0 {
		p.Steps[0].Images, p.Steps[0].Labels = images, labels
	}
	return runAndSave(p, store, c, cfg)
}

// Runs a pipeline, then writes all produced layers as FITS and plots as PNG to -outDir
func runAndSave(p *layers.Pipeline, store layers.Store, c *ops.Context, cfg *config.Config) error {
	dir := *outDir
	if dir == "." && cfg.ExportDir != "" {
		dir = cfg.ExportDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	sink := layers.NewSink(store, &plot.DirHost{Dir: dir})
	if cfg.Colormap != "" {
		sink.DefaultColormap = cfg.Colormap
	}
	if err := p.Run(context.Background(), store, c, nil, sink); err != nil {
		return err
	}
	for _, name := range sink.Produced {
		l, ok := store.Get(name)
		if !ok {
			nl.LogPrintf("Wrote plot %s\n", filepath.Join(dir, plot.PanelFileName(name)))
			continue
		}
		fileName := filepath.Join(dir, name+".fits")
		if err := layers.Save(l, fileName); err != nil {
			return err
		}
		nl.LogPrintf("Wrote %s layer %s %s to %s\n", l.Kind, l.Image.DimensionsToString(), name, fileName)
	}
	return nil
}

func cmdInfo(args []string, c *ops.Context) error {
	for i, arg := range args {
		l, err := loadArg(arg, ops.KindImage, i+1, c)
		if err != nil {
			return err
		}
		img := l.Image
		min, max := img.MinMax()
		nl.LogPrintf("%d: %s dims %s frames %d range [%g, %g] file %s\n", img.ID, img.Name, img.DimensionsToString(), img.Frames(), min, max, img.FileName)
		img.Header.Fprint(nl.LogWriter())
	}
	return nil
}

func cmdServe(args []string, c *ops.Context, cfg *config.Config) error {
	if err := rest.MakeSandbox(*chroot, *setuid, c.Notify); err != nil {
		return err
	}
	store, _, _, err := loadArgs(args, -1, 0, c)
	if err != nil {
		return err
	}
	a := cfg.Server.Addr
	if *addr != "" {
		a = *addr
	}
	c.Notify.WithFields(logrus.Fields{"layers": len(store.Names()), "threads": c.MaxThreads}).Info("Starting server")
	return rest.NewServer(store, c, cfg.Colormap).Serve(a)
}

func cmdGUI(args []string, c *ops.Context, cfg *config.Config) error {
	store, _, _, err := loadArgs(args, -1, 0, c)
	if err != nil {
		return err
	}
	gui.NewViewer(store, c, cfg.Colormap).ShowAndRun()
	return nil
}

func cmdVersion() {
	nl.LogPrintf("fluolight version %s built with %s\n", version, runtime.Version())
	nl.LogPrintf("CPU %s, %d physical cores, %d logical cores, AVX2 %v\n",
		cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores, cpuid.CPU.AVX2())
	nl.LogPrintf("%d MiB physical memory\n", memory.TotalMemory()/1024/1024)
	nl.LogPrintf("Operators: %s\n", strings.Join(ops.OperatorTypes(), ", "))
}
