// Package git answers the handful of questions the commit hooks need to ask
// the source-control tool: who is committing, on which branch, where the
// repository root is and which commit HEAD resolves to.
//
// Every query shells out to the git binary once. There is no caching and no
// internal state, so a Repo value is safe to share.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrGitCommand is wrapped by every error returned from a failed git invocation.
var ErrGitCommand = errors.New("git command failed")

// Repo runs git queries in Dir. An empty Dir means the process working directory.
type Repo struct {
	Dir string
}

// New returns a Repo rooted at dir.
func New(dir string) *Repo {
	return &Repo{Dir: dir}
}

// UserName returns the configured committer name (git config user.name).
func (r *Repo) UserName(ctx context.Context) (string, error) {
	return r.output(ctx, "config", "user.name")
}

// Branch returns the current branch name. It is empty on a detached HEAD.
func (r *Repo) Branch(ctx context.Context) (string, error) {
	return r.output(ctx, "branch", "--show-current")
}

// Root returns the absolute path of the repository top-level directory.
func (r *Repo) Root(ctx context.Context) (string, error) {
	root, err := r.output(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return filepath.FromSlash(root), nil
}

// HeadHash returns the full hash of the commit HEAD points at.
func (r *Repo) HeadHash(ctx context.Context) (string, error) {
	return r.output(ctx, "rev-parse", "--verify", "HEAD")
}

// StagedFiles returns the absolute paths of files added, copied, modified or
// renamed in the index, in the order git lists them. Deleted files are left
// out.
func (r *Repo) StagedFiles(ctx context.Context) ([]string, error) {
	out, err := r.output(ctx, "diff", "--cached", "--name-only", "--diff-filter=ACMR", "-z")
	if err != nil {
		return nil, err
	}
	root, err := r.Root(ctx)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, name := range strings.Split(out, "\x00") {
		if name == "" {
			continue
		}
		files = append(files, filepath.Join(root, filepath.FromSlash(name)))
	}
	return files, nil
}

// HooksDir returns the directory git reads hooks from. core.hooksPath wins
// when set; otherwise hooks live in the common git dir so they are shared
// across worktrees.
func (r *Repo) HooksDir(ctx context.Context) (string, error) {
	if hooksPath, err := r.output(ctx, "config", "--get", "core.hooksPath"); err == nil && hooksPath != "" {
		if filepath.IsAbs(hooksPath) {
			return hooksPath, nil
		}
		root, err := r.Root(ctx)
		if err != nil {
			return "", err
		}
		return filepath.Join(root, hooksPath), nil
	}

	commonDir, err := r.output(ctx, "rev-parse", "--git-common-dir")
	if err != nil {
		return "", err
	}
	commonDir = filepath.FromSlash(commonDir)
	if !filepath.IsAbs(commonDir) {
		base := r.Dir
		if base == "" {
			base = "."
		}
		abs, err := filepath.Abs(filepath.Join(base, commonDir))
		if err != nil {
			return "", fmt.Errorf("resolving git dir: %w", err)
		}
		commonDir = abs
	}
	return filepath.Join(commonDir, "hooks"), nil
}

// output runs git with args and returns stdout with trailing whitespace removed.
func (r *Repo) output(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer

	// #nosec G204 -- arguments are fixed by the callers in this package
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.Dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), ErrGitCommand, msg)
	}

	return strings.TrimRight(stdout.String(), " \t\r\n"), nil
}
