//go:build ignore

// generate_testdata.go creates inventory seeds for benchmarking and manual
// TUI testing.
// Usage: go run scripts/generate_testdata.go
//
// Creates:
//
//	tests/testdata/benchmark/small.jsonl
//	tests/testdata/benchmark/medium.jsonl
//	tests/testdata/benchmark/large.jsonl
//	tests/testdata/benchmark/huge.jsonl
package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vanderheijden86/edgeloc/pkg/loader"
	"github.com/vanderheijden86/edgeloc/pkg/testutil"
)

type datasetSpec struct {
	name     string
	roots    int
	depth    int
	branches int
	sites    int
}

var datasets = []datasetSpec{
	{"small", 3, 2, 3, 4},
	{"medium", 8, 3, 4, 6},
	{"large", 20, 4, 4, 8},
	{"huge", 40, 5, 5, 10},
}

func main() {
	outputDir := "tests/testdata/benchmark"
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	for i, ds := range datasets {
		fmt.Printf("Generating %s dataset...\n", ds.name)

		gen := testutil.New(testutil.GeneratorConfig{
			Seed:          int64(1000 + i), // reproducible per dataset
			Roots:         ds.roots,
			MaxDepth:      ds.depth,
			MaxSubregions: ds.branches,
			MaxSites:      ds.sites,
		})
		inv := gen.Generate()
		seed := loader.Seed{Regions: inv.Regions, Sites: inv.Sites}
		if err := loader.Validate(seed); err != nil {
			fmt.Fprintf(os.Stderr, "Generated %s is invalid: %v\n", ds.name, err)
			os.Exit(1)
		}

		var buf bytes.Buffer
		if err := loader.WriteJSONL(&buf, seed); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode %s: %v\n", ds.name, err)
			os.Exit(1)
		}

		outputPath := filepath.Join(outputDir, ds.name+".jsonl")
		if err := os.WriteFile(outputPath, buf.Bytes(), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", outputPath, err)
			os.Exit(1)
		}

		fmt.Printf("  Written %s (%d bytes, %d regions, %d sites)\n",
			outputPath, buf.Len(), len(inv.Regions), len(inv.Sites))
	}

	fmt.Println("\nDone! Test datasets created in", outputDir)
}
