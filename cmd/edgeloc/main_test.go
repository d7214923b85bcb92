package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/edgeloc/pkg/export"
	"github.com/vanderheijden86/edgeloc/pkg/loader"
	"github.com/vanderheijden86/edgeloc/pkg/metrics"
	"github.com/vanderheijden86/edgeloc/pkg/model"
)

func ref(id string) *model.Ref { return &model.Ref{ResourceID: id} }

// setup isolates the config dir and writes a seed file outside the data dir.
func setup(t *testing.T) (dataDir, seedPath string) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(loader.DataDirEnvVar, "")

	seed := loader.Seed{
		Regions: []model.Region{
			{ResourceID: "region-eu", Name: "Europe"},
			{ResourceID: "region-de", Name: "Germany", ParentRegion: ref("region-eu")},
			{ResourceID: "region-us", Name: "Americas"},
		},
		Sites: []model.Site{
			{ResourceID: "site-muc", Name: "Munich", Region: ref("region-de")},
			{ResourceID: "site-ber", Name: "Berlin", Region: ref("region-de")},
			{ResourceID: "site-ams", Name: "Amsterdam", Region: ref("region-eu")},
		},
	}
	var buf bytes.Buffer
	if err := loader.WriteJSONL(&buf, seed); err != nil {
		t.Fatal(err)
	}
	seedPath = filepath.Join(t.TempDir(), "inventory.jsonl")
	if err := os.WriteFile(seedPath, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return filepath.Join(t.TempDir(), "data"), seedPath
}

func runCLI(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errb bytes.Buffer
	code = run(args, &out, &errb)
	return code, out.String(), errb.String()
}

func seeded(t *testing.T) string {
	t.Helper()
	dataDir, seedPath := setup(t)
	code, out, errOut := runCLI(t, "--data-dir", dataDir, "--import", seedPath)
	if code != 0 {
		t.Fatalf("import exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "Imported 3 regions and 3 sites from inventory.jsonl") {
		t.Errorf("import output = %q", out)
	}
	if !strings.Contains(out, "6 added") {
		t.Errorf("import diff missing: %q", out)
	}
	return dataDir
}

func decode(t *testing.T, out string) export.RobotEnvelope {
	t.Helper()
	var env export.RobotEnvelope
	if err := json.Unmarshal([]byte(out), &env); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	return env
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"tui", nil, false},
		{"robot roots", []string{"--robot-roots"}, false},
		{"search with scope", []string{"--robot-search", "ams", "--scope", "sites"}, false},
		{"two actions", []string{"--robot-roots", "--import", "x.jsonl"}, true},
		{"scope alone", []string{"--scope", "sites"}, true},
		{"merge alone", []string{"--merge"}, true},
		{"positional", []string{"extra"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFlags(tt.args, &bytes.Buffer{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errUsage) {
				t.Errorf("expected usage error, got %v", err)
			}
		})
	}
}

func TestVersionFlag(t *testing.T) {
	code, out, _ := runCLI(t, "--version")
	if code != 0 || !strings.HasPrefix(out, "edgeloc v") {
		t.Errorf("exit %d, output %q", code, out)
	}
}

func TestUsageErrorExitCode(t *testing.T) {
	code, _, errOut := runCLI(t, "--robot-roots", "--robot-children", "x")
	if code != 2 || !strings.Contains(errOut, "choose one of") {
		t.Errorf("exit %d, stderr %q", code, errOut)
	}
}

func TestRobotRoots(t *testing.T) {
	dataDir := seeded(t)
	code, out, errOut := runCLI(t, "--data-dir", dataDir, "--robot-roots")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	env := decode(t, out)
	if env.Command != "roots" || env.Total != 2 || len(env.Nodes) != 2 {
		t.Fatalf("envelope = %+v", env)
	}
	eu := env.Nodes[1]
	if eu.ID != "region-eu" || eu.SiteCount == nil || *eu.SiteCount != 3 {
		t.Errorf("region-eu = %+v", eu)
	}
	if len(eu.Children) != 0 {
		t.Error("roots listing should not include children")
	}
}

func TestRobotChildren(t *testing.T) {
	dataDir := seeded(t)
	code, out, errOut := runCLI(t, "--data-dir", dataDir, "--robot-children", "region-de")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	env := decode(t, out)
	if env.Parent != "region-de" || env.Total != 2 {
		t.Fatalf("envelope = %+v", env)
	}
	if env.Nodes[0].ID != "site-ber" || env.Nodes[1].ID != "site-muc" {
		t.Errorf("children = %+v", env.Nodes)
	}

	code, _, errOut = runCLI(t, "--data-dir", dataDir, "--robot-children", "region-404")
	if code != 1 || !strings.Contains(errOut, "not found") {
		t.Errorf("unknown region: exit %d, stderr %q", code, errOut)
	}
}

func TestRobotSearch(t *testing.T) {
	dataDir := seeded(t)

	code, out, errOut := runCLI(t, "--data-dir", dataDir, "--robot-search", "mun")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	env := decode(t, out)
	if env.Term != "mun" || env.Total != 1 || env.Truncated {
		t.Fatalf("envelope = %+v", env)
	}
	if len(env.Nodes) != 1 || env.Nodes[0].ID != "region-eu" {
		t.Fatalf("nodes = %+v", env.Nodes)
	}
	if c := env.Nodes[0].SiteCount; c == nil || *c != 3 {
		t.Errorf("root site count = %v", c)
	}
	de := env.Nodes[0].Children
	if len(de) != 1 || de[0].ID != "region-de" || len(de[0].Children) != 1 || de[0].Children[0].ID != "site-muc" {
		t.Errorf("tree = %+v", env.Nodes)
	}

	code, out, _ = runCLI(t, "--data-dir", dataDir, "--robot-search", "mun", "--scope", "regions")
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if env := decode(t, out); env.Scope != model.ScopeRegions || len(env.Nodes) != 0 {
		t.Errorf("regions-only envelope = %+v", env)
	}

	if code, _, _ := runCLI(t, "--data-dir", dataDir, "--robot-search", "m"); code != 2 {
		t.Errorf("short term exit %d, want 2", code)
	}
	if code, _, _ := runCLI(t, "--data-dir", dataDir, "--robot-search", "mun", "--scope", "planets"); code != 2 {
		t.Errorf("bad scope exit %d, want 2", code)
	}
}

func TestDelete(t *testing.T) {
	dataDir := seeded(t)

	var asked string
	orig := confirmDelete
	t.Cleanup(func() { confirmDelete = orig })
	confirmDelete = func(kind model.Kind, id, name string, sites int) (bool, error) {
		asked = export.DeletePrompt(kind, id, name, sites)
		return false, nil
	}

	code, out, _ := runCLI(t, "--data-dir", dataDir, "--delete", "region-de")
	if code != 0 || !strings.Contains(out, "Delete cancelled") {
		t.Fatalf("exit %d, output %q", code, out)
	}
	if asked != "Delete region region-de with its subregions and 2 site(s)?" {
		t.Errorf("prompt = %q", asked)
	}

	code, out, _ = runCLI(t, "--data-dir", dataDir, "--delete", "region-de", "--yes")
	if code != 0 || !strings.Contains(out, "Deleted region region-de") {
		t.Fatalf("exit %d, output %q", code, out)
	}

	_, out, _ = runCLI(t, "--data-dir", dataDir, "--robot-children", "region-eu")
	if env := decode(t, out); env.Total != 1 || env.Nodes[0].ID != "site-ams" {
		t.Errorf("after delete: %+v", env.Nodes)
	}

	if code, _, _ := runCLI(t, "--data-dir", dataDir, "--delete", "site-404", "--yes"); code != 1 {
		t.Errorf("unknown id exit %d, want 1", code)
	}
}

func TestExportSVG(t *testing.T) {
	dataDir := seeded(t)
	path := filepath.Join(t.TempDir(), "tree.svg")

	code, out, errOut := runCLI(t, "--data-dir", dataDir, "--export-svg", path, "--svg-title", "Lab")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "3 regions, 3 sites") {
		t.Errorf("output = %q", out)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "<svg") || !strings.Contains(string(data), "Lab") {
		t.Error("svg content missing")
	}

	if code, _, _ := runCLI(t, "--data-dir", dataDir, "--export-svg", path, "--svg-root", "region-404"); code != 1 {
		t.Errorf("unknown root exit %d, want 1", code)
	}
}

func TestImportMerge(t *testing.T) {
	dataDir := seeded(t)

	extra := loader.Seed{Regions: []model.Region{{ResourceID: "region-ap", Name: "Asia"}}}
	var buf bytes.Buffer
	if err := loader.WriteJSONL(&buf, extra); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "asia.jsonl")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	code, out, errOut := runCLI(t, "--data-dir", dataDir, "--import", path, "--merge")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "1 added") || strings.Contains(out, "removed") {
		t.Errorf("merge diff = %q", out)
	}

	_, out, _ = runCLI(t, "--data-dir", dataDir, "--robot-roots")
	if env := decode(t, out); env.Total != 3 {
		t.Errorf("roots after merge = %d", env.Total)
	}
}

func TestNamedInventory(t *testing.T) {
	dataDir := seeded(t)

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	cfg := "default: lab\ninventories:\n  - name: lab\n    path: " + dataDir + "\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	code, out, errOut := runCLI(t, "--config", cfgPath, "--robot-roots")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if env := decode(t, out); env.Total != 2 {
		t.Errorf("default inventory roots = %d", env.Total)
	}

	if code, _, _ := runCLI(t, "--config", cfgPath, "--inventory", "missing", "--robot-roots"); code != 2 {
		t.Errorf("unknown inventory exit %d, want 2", code)
	}
}

func TestProfileReport(t *testing.T) {
	dataDir := seeded(t)
	t.Cleanup(func() {
		metrics.SetEnabled(false)
		metrics.ResetAll()
	})

	code, _, errOut := runCLI(t, "--data-dir", dataDir, "--robot-roots", "--profile")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	for _, want := range []string{"METRIC", "query_roots", "roots_rebuild"} {
		if !strings.Contains(errOut, want) {
			t.Errorf("profile missing %q:\n%s", want, errOut)
		}
	}
}
