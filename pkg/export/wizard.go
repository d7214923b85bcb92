// Package export renders inventories for people and programs: the SVG tree
// diagram, --robot-* JSON, and the interactive prompts of the CLI.
//
// This file implements the --init wizard and the delete confirmation.
package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/vanderheijden86/edgeloc/pkg/config"
	"github.com/vanderheijden86/edgeloc/pkg/loader"
	"github.com/vanderheijden86/edgeloc/pkg/model"
)

// InitAnswers holds what the --init wizard collected.
type InitAnswers struct {
	Name     string
	DataDir  string
	PageSize string
	Scope    string
	Watch    bool
	SeedPath string
}

// AnswersFromConfig pre-fills the wizard from an existing config.
func AnswersFromConfig(cfg config.Config) InitAnswers {
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir, _ = loader.GetDataDir("")
	}
	return InitAnswers{
		Name:     cfg.Default,
		DataDir:  dataDir,
		PageSize: strconv.Itoa(cfg.PageSize),
		Scope:    string(cfg.Scope()),
		Watch:    cfg.WatchEnabled(),
	}
}

// Apply writes the answers into cfg. A named inventory becomes the default.
func (a InitAnswers) Apply(cfg *config.Config) error {
	if err := validatePageSize(a.PageSize); err != nil {
		return err
	}
	scope, err := model.ParseSearchScope(a.Scope)
	if err != nil {
		return err
	}
	size, _ := strconv.Atoi(strings.TrimSpace(a.PageSize))

	dataDir := strings.TrimSpace(a.DataDir)
	if abs, err := filepath.Abs(dataDir); err == nil && dataDir != "" {
		dataDir = abs
	}

	cfg.PageSize = size
	cfg.Search.DefaultScope = string(scope)
	watch := a.Watch
	cfg.Watch.Enabled = &watch

	if name := strings.TrimSpace(a.Name); name != "" {
		cfg.SetInventory(name, dataDir)
		cfg.Default = name
	} else {
		cfg.DataDir = dataDir
	}
	return nil
}

func validatePageSize(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return fmt.Errorf("page size must be a positive number")
	}
	return nil
}

func validateSeedPath(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	info, err := os.Stat(s)
	if err != nil {
		return fmt.Errorf("cannot read %s", s)
	}
	if info.IsDir() || !loader.IsSeedFile(filepath.Base(s)) {
		return fmt.Errorf("%s is not a .jsonl or .yaml seed", s)
	}
	return nil
}

// isTerminal checks if stdin is connected to a terminal
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// newForm creates a form with appropriate settings based on TTY detection
func newForm(groups ...*huh.Group) *huh.Form {
	form := huh.NewForm(groups...).WithTheme(huh.ThemeDracula())
	if !isTerminal() {
		form = form.WithAccessible(true)
	}
	return form
}

// RunInitWizard asks for the data directory and console defaults, starting
// from the values in cfg.
func RunInitWizard(cfg config.Config) (InitAnswers, error) {
	a := AnswersFromConfig(cfg)

	form := newForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Inventory name").
				Description("Optional; lets you open it later with --inventory NAME").
				Value(&a.Name),
			huh.NewInput().
				Title("Data directory").
				Description("Holds inventory.db and any seed files").
				Value(&a.DataDir).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("data directory is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Seed file to import").
				Description("Optional .jsonl or .yaml inventory export").
				Value(&a.SeedPath).
				Validate(validateSeedPath),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Default search scope").
				Options(
					huh.NewOption("Regions and sites", string(model.ScopeAll)),
					huh.NewOption("Regions only", string(model.ScopeRegions)),
					huh.NewOption("Sites only", string(model.ScopeSites)),
				).
				Value(&a.Scope),
			huh.NewInput().
				Title("Page size").
				Value(&a.PageSize).
				Validate(validatePageSize),
			huh.NewConfirm().
				Title("Reload when the database changes?").
				Value(&a.Watch),
		),
	)

	if err := form.Run(); err != nil {
		return InitAnswers{}, err
	}
	return a, nil
}

// DeletePrompt describes the node a delete would remove.
func DeletePrompt(kind model.Kind, id, name string, sites int) string {
	label := id
	if name != "" && name != id {
		label = fmt.Sprintf("%s (%s)", name, id)
	}
	if kind == model.KindRegion {
		return fmt.Sprintf("Delete region %s with its subregions and %d site(s)?", label, sites)
	}
	return fmt.Sprintf("Delete site %s?", label)
}

// ConfirmDelete asks before a delete. It defaults to no.
func ConfirmDelete(kind model.Kind, id, name string, sites int) (bool, error) {
	var ok bool
	form := newForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(DeletePrompt(kind, id, name, sites)).
				Description("This cannot be undone").
				Value(&ok).
				Affirmative("Delete").
				Negative("Keep"),
		),
	)
	if err := form.Run(); err != nil {
		return false, err
	}
	return ok, nil
}
