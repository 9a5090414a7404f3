package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/wildeconsulting/kwsub/internal/debug"
	"github.com/wildeconsulting/kwsub/internal/hook"
	"github.com/wildeconsulting/kwsub/internal/ui"
)

var preCommitCmd = &cobra.Command{
	Use:     "pre-commit [files...]",
	GroupID: "hooks",
	Short:   "Rewrite header blocks of the given files",
	Long: `Rewrite the header block of every given file whose content changed since
its header was last written for this commit.

Files of other types, empty files and paths that are not regular files are
ignored. The first rewrite allocates the commit's revision from the ledger;
later invocations for the same commit reuse it. The state is kept in
.pre-commit-repo.json in the repository root until post-commit runs.

This form suits commit frameworks that pass the staged files as arguments
and fail the commit when a hook modifies them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := runPreCommit(cmd.Context(), cmd.OutOrStdout(), args)
		return err
	},
}

var postCommitCmd = &cobra.Command{
	Use:     "post-commit",
	GroupID: "hooks",
	Short:   "Record the finished commit in the ledger",
	Long: `Record the new commit hash and a history row for the revision allocated by
pre-commit, then remove .pre-commit-repo.json. Does nothing when no header
was rewritten for this commit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runPostCommit(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(preCommitCmd)
	rootCmd.AddCommand(postCommitCmd)
}

func runPreCommit(ctx context.Context, out io.Writer, files []string) (hook.Result, error) {
	store := cfg.NewLedger()
	defer func() {
		if err := store.Close(); err != nil {
			debug.Logf("ledger: close: %v", err)
		}
	}()

	p := &hook.PreCommit{
		Git:         repo,
		Ledger:      store,
		LockTimeout: cfg.Lock.Timeout,
		Out:         out,
	}
	res, err := p.Run(ctx, files)
	if err != nil {
		return res, fmt.Errorf("pre-commit: %w", err)
	}
	if len(res.Rewritten) > 0 {
		debug.Logf("pre-commit: rewrote %d file(s) at revision %d", len(res.Rewritten), res.Revision)
	}
	return res, nil
}

func runPostCommit(ctx context.Context) error {
	store := cfg.NewLedger()
	defer func() {
		if err := store.Close(); err != nil {
			debug.Logf("ledger: close: %v", err)
		}
	}()

	p := &hook.PostCommit{
		Git:         repo,
		Ledger:      store,
		LockTimeout: cfg.Lock.Timeout,
	}
	finalized, err := p.Run(ctx)
	if err != nil {
		return fmt.Errorf("post-commit: %w", err)
	}
	if finalized {
		debug.Logf("post-commit: ledger updated")
	} else if debug.Enabled() {
		fmt.Fprintln(os.Stderr, ui.RenderMuted("post-commit: nothing to record"))
	}
	return nil
}
