package git

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRepo initializes a throw-away repository with a known identity.
func newTestRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed, skipping test")
	}

	dir := t.TempDir()
	for _, args := range [][]string{
		{"init", "-q", "-b", "main"},
		{"config", "user.name", "Test User"},
		{"config", "user.email", "test@example.com"},
		{"config", "commit.gpgsign", "false"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v\n%s", args, err, out)
		}
	}
	return dir
}

func TestRepoQueries(t *testing.T) {
	dir := newTestRepo(t)
	ctx := context.Background()
	repo := New(dir)

	user, err := repo.UserName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Test User", user)

	branch, err := repo.Branch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "main", branch)

	root, err := repo.Root(ctx)
	require.NoError(t, err)
	wantRoot, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	gotRoot, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	assert.Equal(t, wantRoot, gotRoot)

	hooks, err := repo.HooksDir(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hooks", filepath.Base(hooks))
	assert.True(t, filepath.IsAbs(hooks), "hooks dir should be absolute: %s", hooks)
}

func TestHeadHash(t *testing.T) {
	dir := newTestRepo(t)
	ctx := context.Background()
	repo := New(dir)

	_, err := repo.HeadHash(ctx)
	require.Error(t, err, "HEAD should not resolve before the first commit")
	assert.True(t, errors.Is(err, ErrGitCommand))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a\n"), 0o644))
	for _, args := range [][]string{{"add", "a.txt"}, {"commit", "-q", "--no-verify", "-m", "first"}} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}

	hash, err := repo.HeadHash(ctx)
	require.NoError(t, err)
	assert.Len(t, hash, 40)
}

func TestHooksDirHonorsCoreHooksPath(t *testing.T) {
	dir := newTestRepo(t)
	ctx := context.Background()

	cmd := exec.Command("git", "config", "core.hooksPath", ".githooks")
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))

	hooks, err := New(dir).HooksDir(ctx)
	require.NoError(t, err)
	assert.Equal(t, ".githooks", filepath.Base(hooks))
}

func TestOutsideRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed, skipping test")
	}
	t.Setenv("GIT_CEILING_DIRECTORIES", os.TempDir())

	_, err := New(t.TempDir()).Root(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGitCommand)
}

func TestStagedFiles(t *testing.T) {
	dir := newTestRepo(t)
	ctx := context.Background()
	repo := New(dir)

	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}

	files, err := repo.StagedFiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, files)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub dir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.py"), []byte("x\n"), 0o644))
	run("add", "old.py")
	run("commit", "-q", "--no-verify", "-m", "first")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub dir", "a b.yaml"), []byte("k: v\n"), 0o644))
	run("add", "sub dir/a b.yaml")
	run("rm", "-q", "old.py")

	files, err = repo.StagedFiles(ctx)
	require.NoError(t, err)
	root, err := repo.Root(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "sub dir", "a b.yaml")}, files, "deleted files are not listed")
}
