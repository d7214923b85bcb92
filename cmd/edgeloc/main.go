package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/pprof"
	"strconv"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/edgeloc/internal/datasource"
	"github.com/vanderheijden86/edgeloc/pkg/config"
	"github.com/vanderheijden86/edgeloc/pkg/debug"
	"github.com/vanderheijden86/edgeloc/pkg/export"
	"github.com/vanderheijden86/edgeloc/pkg/fetch"
	"github.com/vanderheijden86/edgeloc/pkg/loader"
	"github.com/vanderheijden86/edgeloc/pkg/locations"
	"github.com/vanderheijden86/edgeloc/pkg/metrics"
	"github.com/vanderheijden86/edgeloc/pkg/model"
	"github.com/vanderheijden86/edgeloc/pkg/ui"
	"github.com/vanderheijden86/edgeloc/pkg/version"
	"github.com/vanderheijden86/edgeloc/pkg/watcher"
)

// errUsage marks bad flag combinations; they exit with status 2.
var errUsage = errors.New("usage error")

// confirmDelete is swapped in tests.
var confirmDelete = export.ConfirmDelete

type options struct {
	configPath string
	dataDir    string
	inventory  string

	robotRoots    bool
	robotChildren string
	robotSearch   string
	scope         string

	importPath string
	merge      bool
	deleteID   string
	yes        bool
	exportSVG  string
	svgRoot    string
	svgTitle   string
	initWizard bool

	profile    bool
	cpuProfile string
	version    bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("edgeloc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: edgeloc [options]")
		fmt.Fprintln(stderr, "\nBrowse and search a region/site inventory. Starts the TUI unless an action flag is given.")
		fmt.Fprintln(stderr)
		fs.PrintDefaults()
	}

	fs.StringVar(&o.configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/edgeloc/config.yaml)")
	fs.StringVar(&o.dataDir, "data-dir", "", "Data directory holding inventory.db (default .edgeloc, or $EDGELOC_DIR)")
	fs.StringVar(&o.inventory, "inventory", "", "Open a named inventory from the config")

	fs.BoolVar(&o.robotRoots, "robot-roots", false, "Print root regions with site counts as JSON")
	fs.StringVar(&o.robotChildren, "robot-children", "", "Print the children of a region as JSON")
	fs.StringVar(&o.robotSearch, "robot-search", "", "Print the tree rebuilt from a search as JSON")
	fs.StringVar(&o.scope, "scope", "", "Search scope for --robot-search: all, regions or sites")

	fs.StringVar(&o.importPath, "import", "", "Import a .jsonl or .yaml seed into the inventory")
	fs.BoolVar(&o.merge, "merge", false, "With --import, upsert records instead of replacing the inventory")
	fs.StringVar(&o.deleteID, "delete", "", "Delete a region (with its subtree) or a site")
	fs.BoolVar(&o.yes, "yes", false, "Skip confirmation prompts (use with --delete)")
	fs.StringVar(&o.exportSVG, "export-svg", "", "Write the inventory tree as an SVG diagram")
	fs.StringVar(&o.svgRoot, "svg-root", "", "Limit --export-svg to the subtree of this region")
	fs.StringVar(&o.svgTitle, "svg-title", "", "Title for --export-svg")
	fs.BoolVar(&o.initWizard, "init", false, "Run the setup wizard and write the config")

	fs.BoolVar(&o.profile, "profile", false, "Print timing metrics on exit")
	fs.StringVar(&o.cpuProfile, "cpu-profile", "", "Write CPU profile to file")
	fs.BoolVar(&o.version, "version", false, "Show version")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("%w: unexpected argument %q", errUsage, fs.Arg(0))
	}

	actions := 0
	for _, set := range []bool{o.robotRoots, o.robotChildren != "", o.robotSearch != "",
		o.importPath != "", o.deleteID != "", o.exportSVG != "", o.initWizard} {
		if set {
			actions++
		}
	}
	if actions > 1 {
		return o, fmt.Errorf("%w: choose one of --robot-roots, --robot-children, --robot-search, --import, --delete, --export-svg, --init", errUsage)
	}
	if o.scope != "" && o.robotSearch == "" {
		return o, fmt.Errorf("%w: --scope requires --robot-search", errUsage)
	}
	if o.merge && o.importPath == "" {
		return o, fmt.Errorf("%w: --merge requires --import", errUsage)
	}
	return o, nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one invocation and returns the exit status.
func run(args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if o.version {
		fmt.Fprintf(stdout, "edgeloc %s\n", version.Version)
		return 0
	}

	// CPU profiling support
	if o.cpuProfile != "" {
		f, err := os.Create(o.cpuProfile)
		if err != nil {
			fmt.Fprintf(stderr, "Could not create CPU profile: %v\n", err)
			return 1
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(stderr, "Could not start CPU profile: %v\n", err)
			return 1
		}
		defer pprof.StopCPUProfile()
	}

	if o.profile {
		metrics.SetEnabled(true)
		defer func() {
			fmt.Fprintln(stderr)
			if err := metrics.WriteReport(stderr); err != nil {
				debug.Log("profile report: %v", err)
			}
		}()
	}

	cfg := loadConfig(o.configPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if o.initWizard {
		return report(stderr, runInit(ctx, cfg, o.configPath, stdout))
	}

	dataDir, err := resolveDataDir(cfg, o)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	debug.Log("main: data dir %s", dataDir)

	inv, err := datasource.Open(ctx, dataDir)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening inventory in %s: %v\n", dataDir, err)
		return 1
	}
	defer inv.Close()

	coord := fetch.New(inv, fetch.WithPageSize(cfg.PageSize))
	store := locations.NewStore(
		locations.WithMinSearchLength(cfg.Search.MinLength),
		locations.WithSearchScope(cfg.Scope()),
	)

	switch {
	case o.importPath != "":
		err = runImport(ctx, inv, o.importPath, !o.merge, stdout)
	case o.deleteID != "":
		err = runDelete(ctx, inv, coord, o.deleteID, o.yes, stdout)
	case o.exportSVG != "":
		err = runExportSVG(ctx, inv, o, stdout)
	case o.robotRoots:
		err = runRobotRoots(ctx, coord, store, stdout)
	case o.robotChildren != "":
		err = runRobotChildren(ctx, coord, store, o.robotChildren, stdout)
	case o.robotSearch != "":
		err = runRobotSearch(ctx, coord, store, cfg, o, stdout)
	default:
		err = runTUI(ctx, cfg, dataDir, store, coord)
	}
	return report(stderr, err)
}

func report(stderr io.Writer, err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

// loadConfig reads the config file. A broken config is reported and
// replaced by defaults so the inventory can still be opened.
func loadConfig(path string) config.Config {
	var (
		cfg config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFrom(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Printf("Warning: %v; using default settings", err)
		return config.DefaultConfig()
	}
	return cfg
}

func resolveDataDir(cfg config.Config, o options) (string, error) {
	dir, err := cfg.ResolveDataDir(o.dataDir, o.inventory)
	if err != nil {
		return "", err
	}
	if dir == "" {
		return loader.GetDataDir("")
	}
	return dir, nil
}

func runInit(ctx context.Context, cfg config.Config, configPath string, stdout io.Writer) error {
	answers, err := export.RunInitWizard(cfg)
	if err != nil {
		return err
	}
	if err := answers.Apply(&cfg); err != nil {
		return err
	}
	if configPath == "" {
		configPath = config.ConfigPath()
	}
	if err := config.SaveTo(cfg, configPath); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %s\n", configPath)

	seed := strings.TrimSpace(answers.SeedPath)
	if seed == "" {
		return nil
	}
	dataDir, err := resolveDataDir(cfg, options{})
	if err != nil {
		return err
	}
	inv, err := datasource.Open(ctx, dataDir)
	if err != nil {
		return err
	}
	defer inv.Close()
	return runImport(ctx, inv, seed, true, stdout)
}

func runImport(ctx context.Context, inv *datasource.SQLiteInventory, path string, replace bool, stdout io.Writer) error {
	seed, err := loader.LoadSeedFromFile(path)
	if err != nil {
		return err
	}
	before, err := inv.Snapshot(ctx)
	if err != nil {
		return err
	}
	stats, err := inv.Import(ctx, seed, replace)
	if err != nil {
		return err
	}
	after, err := inv.Snapshot(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Imported %s and %s from %s\n",
		plural(stats.Regions, "region"), plural(stats.Sites, "site"), filepath.Base(path))
	summary := datasource.DiffInventories(before, after).Summary()
	fmt.Fprint(stdout, summary)
	if !strings.HasSuffix(summary, "\n") {
		fmt.Fprintln(stdout)
	}
	return nil
}

func runDelete(ctx context.Context, inv *datasource.SQLiteInventory, coord *fetch.Coordinator, id string, yes bool, stdout io.Writer) error {
	kind, err := inv.Kind(ctx, id)
	if err != nil {
		return err
	}
	sites := 0
	if kind == model.KindRegion {
		if sites, err = inv.TotalSites(ctx, id); err != nil {
			return err
		}
	}
	if !yes {
		ok, err := confirmDelete(kind, id, "", sites)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(stdout, "Delete cancelled")
			return nil
		}
	}
	if res := coord.Delete(ctx, kind, id); res.Err != nil {
		return res.Err
	}
	fmt.Fprintf(stdout, "Deleted %s %s\n", kind, id)
	return nil
}

func runExportSVG(ctx context.Context, inv *datasource.SQLiteInventory, o options, stdout io.Writer) error {
	seed, err := inv.Snapshot(ctx)
	if err != nil {
		return err
	}
	title := o.svgTitle
	if title == "" && o.inventory != "" {
		title = o.inventory
	}
	if err := export.WriteTreeSVG(o.exportSVG, seed, export.TreeSVGOptions{Title: title, RootID: o.svgRoot}); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %s (%s, %s)\n", o.exportSVG,
		plural(len(seed.Regions), "region"), plural(len(seed.Sites), "site"))
	return nil
}

func runRobotRoots(ctx context.Context, coord *fetch.Coordinator, store *locations.Store, stdout io.Writer) error {
	if err := coord.Refresh(ctx, store); err != nil {
		return err
	}
	forest := store.Forest()
	return export.WriteRobotJSON(stdout, export.RobotEnvelope{
		GeneratedAt: time.Now().UTC(),
		Command:     "roots",
		Total:       len(forest),
		Nodes:       export.RobotNodes(forest),
	})
}

// runRobotChildren lists one region's children. The region may be nested
// anywhere, so the listing is not grafted into the store.
func runRobotChildren(ctx context.Context, coord *fetch.Coordinator, store *locations.Store, id string, stdout io.Writer) error {
	res := coord.Children(ctx, store.BeginFetch(id))
	if res.Err != nil {
		return res.Err
	}
	children := make(locations.Forest, 0, len(res.Sites)+len(res.Regions))
	for _, s := range res.Sites {
		children = append(children, locations.NewSiteNode(s))
	}
	for _, r := range res.Regions {
		children = append(children, locations.NewRegionNode(r))
	}
	return export.WriteRobotJSON(stdout, export.RobotEnvelope{
		GeneratedAt: time.Now().UTC(),
		Command:     "children",
		Parent:      id,
		Total:       len(children),
		Nodes:       export.RobotNodes(children),
	})
}

func runRobotSearch(ctx context.Context, coord *fetch.Coordinator, store *locations.Store, cfg config.Config, o options, stdout io.Writer) error {
	scope := cfg.Scope()
	if o.scope != "" {
		var err error
		if scope, err = model.ParseSearchScope(o.scope); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
	}
	term := strings.TrimSpace(o.robotSearch)
	if minLen := cfg.Search.MinLength; utf8.RuneCountInString(term) < minLen {
		return fmt.Errorf("%w: search term must be at least %d characters", errUsage, minLen)
	}

	// Root counts first so the rebuilt roots carry their totals.
	if err := coord.Refresh(ctx, store); err != nil {
		return err
	}
	store.SetSearchScope(scope)
	res, err := coord.RunSearch(ctx, store, term)
	if err != nil {
		return err
	}
	if res.Err != nil {
		return res.Err
	}
	return export.WriteRobotJSON(stdout, export.RobotEnvelope{
		GeneratedAt: time.Now().UTC(),
		Command:     "search",
		Term:        term,
		Scope:       scope,
		Total:       res.Total,
		Truncated:   res.Truncated(),
		Nodes:       export.RobotNodes(store.Forest()),
	})
}

func runTUI(ctx context.Context, cfg config.Config, dataDir string, store *locations.Store, coord *fetch.Coordinator) error {
	var opts []ui.Option
	if cfg.WatchEnabled() {
		w, err := watcher.NewWatcher(filepath.Join(dataDir, datasource.DatabaseName),
			watcher.WithDebounceDuration(cfg.DebounceInterval()),
			watcher.WithOnError(func(err error) { debug.Log("watcher: %v", err) }),
		)
		if err == nil {
			err = w.Start()
		}
		if err != nil {
			log.Printf("Warning: live reload disabled: %v", err)
		} else {
			defer w.Stop()
			opts = append(opts, ui.WithWatcher(w))
		}
	}
	return runTUIProgram(ui.NewModel(ctx, store, coord, opts...))
}

func runTUIProgram(m ui.Model) error {
	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithoutSignalHandler(),
	)

	runDone := make(chan struct{})
	defer close(runDone)

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-runDone:
			return
		case <-sigCh:
		}

		p.Quit()

		select {
		case <-runDone:
			return
		case <-sigCh:
		case <-time.After(5 * time.Second):
		}

		p.Kill()
	}()

	// Optional auto-quit for automated tests: set EDGELOC_TUI_AUTOCLOSE_MS.
	if v := os.Getenv("EDGELOC_TUI_AUTOCLOSE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			go func() {
				timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
				defer timer.Stop()

				select {
				case <-runDone:
					return
				case <-timer.C:
				}

				p.Quit()
			}()
		}
	}

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, tea.ErrInterrupted) {
		return nil
	}
	return err
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
