package loader_test

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/vanderheijden86/edgeloc/pkg/loader"
	"github.com/vanderheijden86/edgeloc/pkg/testutil"
)

func BenchmarkLoadSeedFromFile(b *testing.B) {
	for _, depth := range []int{2, 3, 4} {
		b.Run(fmt.Sprintf("depth=%d", depth), func(b *testing.B) {
			inv := testutil.New(testutil.GeneratorConfig{
				Seed:          int64(depth),
				Roots:         10,
				MaxDepth:      depth,
				MaxSubregions: 4,
				MaxSites:      6,
			}).Generate()

			var buf bytes.Buffer
			if err := loader.WriteJSONL(&buf, loader.Seed{Regions: inv.Regions, Sites: inv.Sites}); err != nil {
				b.Fatalf("encode seed: %v", err)
			}
			path := filepath.Join(b.TempDir(), "inventory.jsonl")
			if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
				b.Fatalf("write seed: %v", err)
			}
			opts := loader.ParseOptions{WarningHandler: func(string) {}}
			want := len(inv.Regions) + len(inv.Sites)

			b.SetBytes(int64(buf.Len()))
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				seed, err := loader.LoadSeedFromFileWithOptions(path, opts)
				if err != nil {
					b.Fatalf("load seed: %v", err)
				}
				if seed.Len() != want {
					b.Fatalf("unexpected record count: got=%d want=%d", seed.Len(), want)
				}
			}
		})
	}
}

func BenchmarkValidate(b *testing.B) {
	inv := testutil.New(testutil.GeneratorConfig{Seed: 7, Roots: 20, MaxDepth: 4, MaxSubregions: 4, MaxSites: 6}).Generate()
	seed := loader.Seed{Regions: inv.Regions, Sites: inv.Sites}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := loader.Validate(seed); err != nil {
			b.Fatalf("validate: %v", err)
		}
	}
}
