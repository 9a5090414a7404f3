package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wildeconsulting/kwsub/internal/handoff"
	"github.com/wildeconsulting/kwsub/internal/ui"
)

// statusView is the YAML shape of an in-flight commit.
type statusView struct {
	Path       string      `yaml:"path"`
	User       string      `yaml:"user"`
	Branch     string      `yaml:"branch"`
	Repository string      `yaml:"repository"`
	Revision   uint64      `yaml:"revision"`
	Created    string      `yaml:"created"`
	Files      []fileEntry `yaml:"files"`
}

type fileEntry struct {
	Path     string `yaml:"path"`
	Checksum string `yaml:"checksum"`
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "setup",
	Short:   "Show the commit in flight, if any",
	Long: `Print the handoff record pre-commit left for post-commit as YAML. The
record exists only between a header rewrite and the end of the commit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		root, err := repo.Root(cmd.Context())
		if err != nil {
			return err
		}
		store := handoff.New(root)

		// Persist replaces the file atomically, so no lock is needed to read it.
		rec, ok, err := store.Load()
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println(ui.RenderMuted("no commit in flight"))
			return nil
		}
		return writeStatus(os.Stdout, store.Path(), rec)
	},
}

func writeStatus(w io.Writer, path string, rec *handoff.Record) error {
	view := statusView{
		Path:       path,
		User:       rec.User,
		Branch:     rec.Branch,
		Repository: rec.Repository,
		Revision:   rec.Revision,
		Created:    rec.Created,
		Files:      make([]fileEntry, 0, len(rec.Files)),
	}
	for p, sum := range rec.Files {
		view.Files = append(view.Files, fileEntry{Path: p, Checksum: sum})
	}
	sort.Slice(view.Files, func(i, j int) bool { return view.Files[i].Path < view.Files[j].Path })

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(view); err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	return enc.Close()
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
