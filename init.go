package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/phobologic/jsguide/internal/config"
)

type initFlags struct {
	dryRun  bool
	baseURL string
	paths   map[string]string
	browser bool
}

// newInitCmd implements `jsguide init`, which writes (or updates) the
// project config file. Settings already in the file are kept unless a flag
// overrides them.
func newInitCmd(a *app) *cobra.Command {
	var f initFlags
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write or update " + config.FileName,
		Long: `Write or update the project configuration file.

Existing settings are preserved; flags override individual keys. With
--dry-run the change is printed as a unified diff and nothing is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runInit(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.BoolVar(&f.dryRun, "dry-run", false, "print the diff without modifying the file")
	fl.StringVar(&f.baseURL, "base-url", "", "directory bare specifiers resolve against")
	fl.StringToStringVar(&f.paths, "path", nil, "specifier prefix rewrite, e.g. --path jquery=vendor/jquery")
	fl.BoolVar(&f.browser, "browser", false, "treat every file as running in a browser")
	return cmd
}

func (a *app) runInit(cmd *cobra.Command, f initFlags) error {
	path := a.configPath()

	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("base-url") {
		cfg.BaseURL = f.baseURL
	}
	if len(f.paths) > 0 {
		if cfg.Paths == nil {
			cfg.Paths = make(map[string]string, len(f.paths))
		}
		for k, v := range f.paths {
			cfg.Paths[k] = v
		}
	}
	if cmd.Flags().Changed("browser") {
		cfg.Browser = f.browser
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	updated, err := cfg.Marshal()
	if err != nil {
		return err
	}

	if f.dryRun {
		diff, err := unifiedDiff(path, string(existing), string(updated))
		if err != nil {
			return err
		}
		if diff == "" {
			fmt.Fprintf(a.stdout, "%s is up to date\n", path)
			return nil
		}
		fmt.Fprint(a.stdout, diff)
		return nil
	}

	if string(existing) == string(updated) {
		fmt.Fprintf(a.stderr, "%s is up to date\n", path)
		return nil
	}
	if err := os.WriteFile(path, updated, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintf(a.stderr, "wrote %s\n", path)
	return nil
}

// unifiedDiff renders the change from before to after, or "" when there is
// none.
func unifiedDiff(path, before, after string) (string, error) {
	if before == after {
		return "", nil
	}
	from := path
	if before == "" {
		from = "/dev/null"
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: from,
		ToFile:   path,
		Context:  3,
	})
}
