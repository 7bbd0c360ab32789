package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tsawler/go-metal/checkpoints"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/dudu/facelens/internal/inference"
)

func main() {
	layers := flag.Bool("layers", false, "Also import the graph with go-metal and list its layers")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: modelinfo [-layers] <model.onnx>...\n\n")
		fmt.Fprintf(os.Stderr, "Prints the tensors a model declares, to check it fits a facelens backend.\n\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExample:\n")
		fmt.Fprintf(os.Stderr, "  modelinfo models/det_10g.onnx models/pfld_68.onnx\n")
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	if err := inference.Initialize(); err != nil {
		fmt.Printf("❌ Failed to initialize ONNX Runtime: %v\n", err)
		fmt.Printf("\nPoint %s at libonnxruntime or place it at %s\n", inference.LibraryEnv, inference.DefaultLibraryPath())
		os.Exit(1)
	}
	defer inference.Shutdown()

	failed := false
	for _, path := range flag.Args() {
		if err := describe(path, *layers); err != nil {
			fmt.Printf("❌ %s: %v\n", path, err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func describe(path string, layers bool) error {
	fmt.Printf("\n%s\n", path)

	info, err := inference.Inspect(path)
	if err != nil {
		return err
	}

	fmt.Printf("  Inputs (%d):\n", len(info.Inputs))
	for _, in := range info.Inputs {
		fmt.Printf("    %s: shape=%v, type=%v\n", in.Name, in.Dimensions, in.DataType)
	}
	fmt.Printf("  Outputs (%d):\n", len(info.Outputs))
	for _, out := range info.Outputs {
		fmt.Printf("    %s: shape=%v, type=%v\n", out.Name, out.Dimensions, out.DataType)
	}

	if meta, err := ort.GetModelMetadata(path); err == nil {
		if producer, err := meta.GetProducerName(); err == nil && producer != "" {
			fmt.Printf("  Producer: %s\n", producer)
		}
		if version, err := meta.GetVersion(); err == nil {
			fmt.Printf("  Version: %d\n", version)
		}
		meta.Destroy()
	}

	if !layers {
		return nil
	}

	// go-metal only knows a small operator set; most detectors will not import
	checkpoint, err := checkpoints.NewONNXImporter().ImportFromONNX(path)
	if err != nil {
		fmt.Printf("  go-metal import failed: %v\n", err)
		return nil
	}
	fmt.Printf("  go-metal layers: %d, weights: %d tensors\n", len(checkpoint.ModelSpec.Layers), len(checkpoint.Weights))
	for i, layer := range checkpoint.ModelSpec.Layers {
		fmt.Printf("    %d: %s (%s)\n", i+1, layer.Name, layer.Type)
	}
	return nil
}
