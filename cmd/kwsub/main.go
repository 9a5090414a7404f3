// Command kwsub keeps $Repo, $Author, $Date and $Rev header blocks up to
// date from git hooks.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wildeconsulting/kwsub/internal/config"
	"github.com/wildeconsulting/kwsub/internal/debug"
	"github.com/wildeconsulting/kwsub/internal/git"
	"github.com/wildeconsulting/kwsub/internal/telemetry"
	"github.com/wildeconsulting/kwsub/internal/ui"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "0.4.0"

var (
	configFile string
	verbose    bool

	cfg  *config.Config
	repo = git.New("")

	shutdownTelemetry telemetry.ShutdownFunc = func(context.Context) error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "kwsub",
	Short: "Keyword substitution for git commits",
	Long: `kwsub rewrites the $Repo, $Author, $Date and $Rev lines of a header block
near the top of .py, .conf, .env, .ini, .toml and .yaml files when they are
committed, using one revision number per commit from a shared MySQL ledger.

Install the git hooks once per clone:

  kwsub hooks install`,
	Version:           Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default .kwsub.yaml in the repository root or $HOME)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print debug output to stderr")

	rootCmd.AddGroup(
		&cobra.Group{ID: "hooks", Title: "Hook entry points:"},
		&cobra.Group{ID: "setup", Title: "Setup and inspection:"},
	)
}

// setup loads configuration and starts telemetry before any subcommand.
func setup(cmd *cobra.Command, _ []string) error {
	if verbose {
		debug.Enable(true)
	}

	// The repository root is only a config search location; commands that
	// need a repository report its absence themselves.
	var searchDirs []string
	if root, err := repo.Root(cmd.Context()); err == nil {
		searchDirs = append(searchDirs, root)
	} else {
		debug.Logf("config: not inside a repository: %v", err)
	}

	loaded, err := config.Load(configFile, searchDirs...)
	if err != nil {
		return err
	}
	cfg = loaded
	debug.Logf("config: lock timeout %s, secrets %s/%s, database %s",
		cfg.Lock.Timeout, cfg.Secrets.Dir, cfg.Ledger.Secret, cfg.Ledger.Database)

	shutdown, err := telemetry.Init(cmd.Context(), telemetry.Options{
		Exporter: cfg.Telemetry.Exporter,
		Endpoint: cfg.Telemetry.Endpoint,
		Version:  Version,
	})
	if err != nil {
		return err
	}
	shutdownTelemetry = shutdown
	return nil
}

// FatalError prints an error to stderr and exits with status 1.
func FatalError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ui.RenderFail("Error:"), fmt.Sprintf(format, args...))
	os.Exit(1)
}

func main() {
	err := rootCmd.ExecuteContext(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if serr := shutdownTelemetry(ctx); serr != nil {
		debug.Logf("telemetry: shutdown: %v", serr)
	}
	cancel()
	debug.Sync()

	if err != nil {
		FatalError("%v", err)
	}
}
