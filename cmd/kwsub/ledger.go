package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wildeconsulting/kwsub/internal/handoff"
	"github.com/wildeconsulting/kwsub/internal/ledger"
	"github.com/wildeconsulting/kwsub/internal/ui"
)

var ledgerCmd = &cobra.Command{
	Use:     "ledger",
	GroupID: "setup",
	Short:   "Inspect or prepare the revision ledger",
	Long: `The ledger is the MySQL-compatible database that hands out revision
numbers. Connection parameters are read from the secrets file, by default
$HOME/.local/secrets/mysql_dsn:

  user=alice,password=secret,host=db.example.com,port=3306,autocommit=true`,
}

var ledgerInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the ledger tables if they do not exist",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		lazy := cfg.NewLedger()
		defer lazy.Close()

		store, err := lazy.Store(cmd.Context())
		if err != nil {
			return err
		}
		if err := store.EnsureSchema(cmd.Context()); err != nil {
			return err
		}
		fmt.Println(ui.RenderPass("✓ Ledger tables ready in database " + cfg.Ledger.Database))
		return nil
	},
}

var ledgerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current revision and recent history of this branch",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")

		root, err := repo.Root(ctx)
		if err != nil {
			return err
		}
		branch, err := repo.Branch(ctx)
		if err != nil {
			return err
		}
		name := handoff.RepositoryName(root)

		lazy := cfg.NewLedger()
		defer lazy.Close()
		store, err := lazy.Store(ctx)
		if err != nil {
			return err
		}

		current, err := store.Current(ctx, name, branch)
		if errors.Is(err, ledger.ErrNotFound) {
			fmt.Printf("%s/%s: %s\n", name, branch, ui.RenderMuted("no revisions yet"))
			return nil
		}
		if err != nil {
			return err
		}
		history, err := store.History(ctx, name, branch, limit)
		if err != nil {
			return err
		}
		printLedgerStatus(os.Stdout, current, history)
		return nil
	},
}

func printLedgerStatus(w io.Writer, current *ledger.Row, history []ledger.Entry) {
	fmt.Fprintf(w, "%s/%s\n", ui.RenderAccent(current.Name), current.Branch)
	fmt.Fprintf(w, "  revision: %d\n", current.Revision)
	fmt.Fprintf(w, "  updated:  %s\n", withAge(current.Updated))
	fmt.Fprintf(w, "  hash:     %s\n", orNone(current.Hash))
	if len(history) == 0 {
		return
	}
	fmt.Fprintln(w, "\nHistory:")
	for _, e := range history {
		fmt.Fprintf(w, "  r%-6d %s  %s\n", e.Revision, e.Created, orNone(e.Hash))
	}
}

// withAge appends a relative age to a ledger timestamp.
func withAge(ts string) string {
	t, err := time.ParseInLocation(time.DateTime, ts, time.Local)
	if err != nil {
		return orNone(ts)
	}
	return ts + " " + ui.RenderMuted("("+humanize.Time(t)+")")
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return ui.RenderMuted("(none)")
	}
	return s
}

func init() {
	ledgerStatusCmd.Flags().Int("limit", 10, "number of history rows to show (0 for all)")

	ledgerCmd.AddCommand(ledgerInitCmd)
	ledgerCmd.AddCommand(ledgerStatusCmd)
	rootCmd.AddCommand(ledgerCmd)
}
