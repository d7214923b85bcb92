package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/edgeloc/pkg/config"
	"github.com/vanderheijden86/edgeloc/pkg/loader"
	"github.com/vanderheijden86/edgeloc/pkg/locations"
	"github.com/vanderheijden86/edgeloc/pkg/model"
)

func ref(id string) *model.Ref { return &model.Ref{ResourceID: id} }

func sampleSeed() loader.Seed {
	return loader.Seed{
		Regions: []model.Region{
			{ResourceID: "region-eu", Name: "Europe"},
			{ResourceID: "region-de", Name: "Germany", ParentRegion: ref("region-eu")},
			{ResourceID: "region-us", Name: "Americas"},
		},
		Sites: []model.Site{
			{ResourceID: "site-muc", Name: "Munich", Region: ref("region-de")},
			{ResourceID: "site-ber", Name: "Berlin", Region: ref("region-de")},
			{ResourceID: "site-ams", Name: "Amsterdam & Co", Region: ref("region-eu")},
		},
	}
}

func rowIDs(rows []treeRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func TestLayoutTreeOrder(t *testing.T) {
	rows, err := layoutTree(sampleSeed(), "")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"region-us", "region-eu", "site-ams", "region-de", "site-ber", "site-muc"}
	if got := rowIDs(rows); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("order = %v, want %v", got, want)
	}

	byID := make(map[string]treeRow)
	for _, r := range rows {
		byID[r.ID] = r
	}
	if r := byID["region-eu"]; r.SiteCount != 3 || r.Depth != 0 || r.Parent != -1 {
		t.Errorf("region-eu = %+v", r)
	}
	if r := byID["site-ber"]; r.Depth != 2 || rows[r.Parent].ID != "region-de" {
		t.Errorf("site-ber = %+v", r)
	}
}

func TestLayoutTreeSubtree(t *testing.T) {
	rows, err := layoutTree(sampleSeed(), "region-de")
	if err != nil {
		t.Fatal(err)
	}
	if got := rowIDs(rows); len(got) != 3 || got[0] != "region-de" {
		t.Errorf("subtree = %v", got)
	}
	if _, err := layoutTree(sampleSeed(), "region-404"); err == nil {
		t.Error("expected error for unknown root")
	}
}

func TestRenderTreeSVG(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderTreeSVG(&buf, sampleSeed(), TreeSVGOptions{Title: "Lab"}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"<svg", "</svg>", "Lab", `id="site-muc"`, "Europe (3)", "regions: 3  sites: 3"} {
		if !strings.Contains(out, want) {
			t.Errorf("svg missing %q", want)
		}
	}
	if n := strings.Count(out, "<polyline"); n != 4 {
		t.Errorf("expected 4 connectors, got %d", n)
	}
}

func TestWriteTreeSVG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.svg")
	if err := WriteTreeSVG(path, sampleSeed(), TreeSVGOptions{}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Inventory") {
		t.Error("default title missing")
	}

	if err := WriteTreeSVG(path, sampleSeed(), TreeSVGOptions{RootID: "nope"}); err == nil {
		t.Error("expected error for unknown root")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"Frankfurt am Main", 10, "Frankfu..."},
		{"日本語の地域", 4, "日..."},
		{"abc", 2, "ab"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestRobotNodes(t *testing.T) {
	store := locations.NewStore()
	store.ReplaceRoots([]model.Region{{ResourceID: "region-eu", Name: "Europe"}})
	if err := store.SetRootSiteCount("region-eu", 3); err != nil {
		t.Fatal(err)
	}
	if err := store.ReplaceChildren("region-eu",
		[]model.Region{{ResourceID: "region-de", Name: "Germany", ParentRegion: ref("region-eu")}},
		[]model.Site{{ResourceID: "site-ams", Name: "Amsterdam", Region: ref("region-eu")}},
	); err != nil {
		t.Fatal(err)
	}

	nodes := RobotNodes(store.Forest())
	if len(nodes) != 1 || nodes[0].SiteCount == nil || *nodes[0].SiteCount != 3 {
		t.Fatalf("nodes = %+v", nodes)
	}
	if len(nodes[0].Children) != 2 || nodes[0].Children[0].ID != "site-ams" {
		t.Errorf("children = %+v", nodes[0].Children)
	}
	if nodes[0].Children[1].SiteCount != nil {
		t.Error("non-root carries a site count")
	}

	var buf bytes.Buffer
	env := RobotEnvelope{Command: "roots", Total: 1, Nodes: nodes}
	if err := WriteRobotJSON(&buf, env); err != nil {
		t.Fatal(err)
	}
	var back map[string]any
	if err := json.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if back["command"] != "roots" {
		t.Errorf("command = %v", back["command"])
	}
	if strings.Contains(buf.String(), `"term"`) {
		t.Error("empty term should be omitted")
	}
}

func TestInitAnswersApply(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()

	a := AnswersFromConfig(cfg)
	a.DataDir = dir
	a.PageSize = " 50 "
	a.Scope = "sites"
	a.Watch = false
	if err := a.Apply(&cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.DataDir != dir || cfg.PageSize != 50 || cfg.Scope() != model.ScopeSites || cfg.WatchEnabled() {
		t.Errorf("cfg = %+v", cfg)
	}

	a.Name = "lab"
	if err := a.Apply(&cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Default != "lab" || cfg.FindInventory("lab") == nil || cfg.FindInventory("lab").Path != dir {
		t.Errorf("named inventory not registered: %+v", cfg)
	}

	a.PageSize = "0"
	if err := a.Apply(&cfg); err == nil {
		t.Error("expected error for zero page size")
	}
	a.PageSize = "10"
	a.Scope = "planets"
	if err := a.Apply(&cfg); err == nil {
		t.Error("expected error for unknown scope")
	}
}

func TestValidateSeedPath(t *testing.T) {
	dir := t.TempDir()
	seed := filepath.Join(dir, "inventory.jsonl")
	os.WriteFile(seed, []byte("{}\n"), 0o644)
	other := filepath.Join(dir, "notes.txt")
	os.WriteFile(other, []byte("x"), 0o644)

	tests := []struct {
		path    string
		wantErr bool
	}{
		{"", false},
		{seed, false},
		{other, true},
		{dir, true},
		{filepath.Join(dir, "missing.jsonl"), true},
	}
	for _, tt := range tests {
		if err := validateSeedPath(tt.path); (err != nil) != tt.wantErr {
			t.Errorf("validateSeedPath(%q) err = %v, wantErr %v", tt.path, err, tt.wantErr)
		}
	}
}

func TestDeletePrompt(t *testing.T) {
	if got := DeletePrompt(model.KindRegion, "region-eu", "Europe", 3); got != "Delete region Europe (region-eu) with its subregions and 3 site(s)?" {
		t.Errorf("region prompt = %q", got)
	}
	if got := DeletePrompt(model.KindSite, "site-ams", "", 0); got != "Delete site site-ams?" {
		t.Errorf("site prompt = %q", got)
	}
}
