package loader_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vanderheijden86/edgeloc/pkg/loader"
	"github.com/vanderheijden86/edgeloc/pkg/model"
)

const sampleJSONL = `{"kind":"region","resourceId":"region-1","name":"North"}
{"kind":"region","resourceId":"region-11","name":"North-East","parentRegion":{"resourceId":"region-1"}}
{"kind":"site","resourceId":"site-1","name":"Depot","region":{"resourceId":"region-11"}}
`

func TestGetDataDir(t *testing.T) {
	t.Setenv(loader.DataDirEnvVar, "")
	dir, err := loader.GetDataDir("/srv/app")
	if err != nil {
		t.Fatal(err)
	}
	if dir != filepath.Join("/srv/app", ".edgeloc") {
		t.Errorf("dir = %s", dir)
	}

	t.Setenv(loader.DataDirEnvVar, "/custom")
	dir, _ = loader.GetDataDir("/srv/app")
	if dir != "/custom" {
		t.Errorf("env override ignored: %s", dir)
	}
}

func TestFindSeedPath_NonExistentDirectory(t *testing.T) {
	_, err := loader.FindSeedPath("/nonexistent/path/to/data")
	if err == nil || !strings.Contains(err.Error(), "failed to read data directory") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFindSeedPath_NoSeeds(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("hello"), 0644)
	os.WriteFile(filepath.Join(dir, "inventory.jsonl.backup"), []byte("{}"), 0644)

	if _, err := loader.FindSeedPath(dir); err == nil {
		t.Fatal("expected error when no seed files exist")
	}
}

func TestFindSeedPath_Preference(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "aaa.jsonl"), []byte(sampleJSONL), 0644)
	os.WriteFile(filepath.Join(dir, "inventory.yaml"), []byte("regions: []\n"), 0644)
	os.WriteFile(filepath.Join(dir, "inventory.jsonl"), []byte{}, 0644)

	path, err := loader.FindSeedPath(dir)
	if err != nil {
		t.Fatal(err)
	}
	// The empty inventory.jsonl is passed over.
	if filepath.Base(path) != "inventory.yaml" {
		t.Errorf("got %s, want inventory.yaml", path)
	}
}

func TestParseJSONL(t *testing.T) {
	seed, err := loader.ParseJSONL(strings.NewReader(sampleJSONL))
	if err != nil {
		t.Fatal(err)
	}
	if len(seed.Regions) != 2 || len(seed.Sites) != 1 {
		t.Fatalf("got %d regions, %d sites", len(seed.Regions), len(seed.Sites))
	}
	if seed.Regions[1].ParentID() != "region-1" {
		t.Errorf("parent = %q", seed.Regions[1].ParentID())
	}
	if seed.Sites[0].RegionID() != "region-11" {
		t.Errorf("site region = %q", seed.Sites[0].RegionID())
	}
}

func TestParseJSONL_BOMAndBlankLines(t *testing.T) {
	input := "\xEF\xBB\xBF" + `{"resourceId":"region-1","name":"R"}` + "\n\n   \n" + `{"resourceId":"site-1","name":"S","region":{"resourceId":"region-1"}}`
	seed, err := loader.ParseJSONL(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if seed.Len() != 2 {
		t.Errorf("len = %d, want 2", seed.Len())
	}
}

func TestParseJSONL_SkipsBadLines(t *testing.T) {
	input := `{"resourceId":"region-1","name":"R"}
not json
{"resourceId":"host-9","name":"no marker"}
{"kind":"region","resourceId":"","name":"empty"}
{"kind":"cluster","resourceId":"c-1","name":"unknown kind"}
`
	var warnings []string
	seed, err := loader.ParseJSONLWithOptions(strings.NewReader(input), loader.ParseOptions{
		WarningHandler: func(msg string) { warnings = append(warnings, msg) },
	})
	if err != nil {
		t.Fatal(err)
	}
	if seed.Len() != 1 {
		t.Errorf("len = %d, want 1", seed.Len())
	}
	if len(warnings) != 4 {
		t.Errorf("expected 4 warnings, got %v", warnings)
	}
}

func TestParseJSONL_LongLine(t *testing.T) {
	long := `{"resourceId":"region-1","name":"` + strings.Repeat("x", 200) + `"}`
	input := long + "\n" + `{"resourceId":"region-2","name":"R2"}` + "\n"
	var warnings []string
	seed, err := loader.ParseJSONLWithOptions(strings.NewReader(input), loader.ParseOptions{
		BufferSize:     64,
		WarningHandler: func(msg string) { warnings = append(warnings, msg) },
	})
	if err != nil {
		t.Fatal(err)
	}
	if seed.Len() != 1 || seed.Regions[0].ResourceID != "region-2" {
		t.Errorf("unexpected seed %+v", seed)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "too long") {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestParseYAML(t *testing.T) {
	input := `
regions:
  - resourceId: region-1
    name: North
  - resourceId: region-11
    name: North-East
    parentRegion:
      resourceId: region-1
sites:
  - resourceId: site-1
    name: Depot
    region:
      resourceId: region-11
`
	seed, err := loader.ParseYAML(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if len(seed.Regions) != 2 || len(seed.Sites) != 1 {
		t.Fatalf("got %+v", seed)
	}
	if seed.Sites[0].RegionID() != "region-11" {
		t.Errorf("site region = %q", seed.Sites[0].RegionID())
	}

	if _, err := loader.ParseYAML(strings.NewReader("regions:\n  - name: nameless\n")); err == nil {
		t.Error("expected error for region without id")
	}
	empty, err := loader.ParseYAML(strings.NewReader(""))
	if err != nil || empty.Len() != 0 {
		t.Errorf("empty document: %+v, %v", empty, err)
	}
}

func TestLoadSeedFromFile(t *testing.T) {
	dir := t.TempDir()
	jsonl := filepath.Join(dir, "inventory.jsonl")
	os.WriteFile(jsonl, []byte(sampleJSONL), 0644)

	seed, err := loader.LoadSeedFromFile(jsonl)
	if err != nil || seed.Len() != 3 {
		t.Errorf("jsonl: %d records, %v", seed.Len(), err)
	}

	if _, err := loader.LoadSeedFromFile(filepath.Join(dir, "missing.jsonl")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestWriteJSONLRoundTrip(t *testing.T) {
	seed, _ := loader.ParseJSONL(strings.NewReader(sampleJSONL))
	var buf bytes.Buffer
	if err := loader.WriteJSONL(&buf, seed); err != nil {
		t.Fatal(err)
	}
	again, err := loader.ParseJSONL(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if again.Len() != seed.Len() || again.Sites[0].RegionID() != "region-11" {
		t.Errorf("round trip lost data: %+v", again)
	}
}

func TestValidate(t *testing.T) {
	ref := func(id string) *model.Ref { return &model.Ref{ResourceID: id} }
	tests := []struct {
		name    string
		seed    loader.Seed
		wantErr string
	}{
		{
			name: "valid",
			seed: loader.Seed{
				Regions: []model.Region{{ResourceID: "region-1"}, {ResourceID: "region-2", ParentRegion: ref("region-1")}},
				Sites:   []model.Site{{ResourceID: "site-1", Region: ref("region-2")}},
			},
		},
		{
			name:    "duplicate",
			seed:    loader.Seed{Regions: []model.Region{{ResourceID: "region-1"}}, Sites: []model.Site{{ResourceID: "region-1", Region: ref("region-1")}}},
			wantErr: "duplicate id region-1",
		},
		{
			name:    "orphan site",
			seed:    loader.Seed{Sites: []model.Site{{ResourceID: "site-1"}}},
			wantErr: "has no region",
		},
		{
			name:    "unknown region",
			seed:    loader.Seed{Sites: []model.Site{{ResourceID: "site-1", Region: ref("region-9")}}},
			wantErr: "unknown region region-9",
		},
		{
			name:    "unknown parent",
			seed:    loader.Seed{Regions: []model.Region{{ResourceID: "region-1", ParentRegion: ref("region-9")}}},
			wantErr: "unknown parent region-9",
		},
		{
			name: "cycle",
			seed: loader.Seed{Regions: []model.Region{
				{ResourceID: "region-a", ParentRegion: ref("region-c")},
				{ResourceID: "region-b", ParentRegion: ref("region-a")},
				{ResourceID: "region-c", ParentRegion: ref("region-b")},
			}},
			wantErr: "region cycle: region-a, region-b, region-c",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := loader.Validate(tt.seed)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, loader.ErrInvalidSeed) {
				t.Fatalf("expected ErrInvalidSeed, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}
