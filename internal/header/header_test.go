package header

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pyFile = `#!/usr/bin/env python
"""
Copyright: Wilde Consulting

VERSION INFO::
  License: Apache 2.0
    $Repo: old_repo
  $Author: Old Author
    $Date: 2023-07-23 08:16:52
     $Rev: 2
"""

import os


def run():
    """Docstring after the header."""
    return os.getcwd()
`

const yamlFile = "#---\n    $Repo: old\n  $Author: someone\n    $Date: 2020-01-01 00:00:00\n     $Rev: 1\n#---\nkey: value\n"

var testValues = Values{
	Repository: "kwsub",
	Author:     "Anders Wiklund",
	Date:       "2024-03-28 16:40:42",
	Revision:   13,
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExtensionAndEligible(t *testing.T) {
	tests := []struct {
		path     string
		ext      string
		eligible bool
	}{
		{"/repo/a.py", ".py", true},
		{"/repo/.env", ".env", true},
		{"/repo/prod.env", ".env", true},
		{"/repo/conf/app.conf", ".conf", true},
		{"/repo/setup.ini", ".ini", true},
		{"/repo/pyproject.toml", ".toml", true},
		{"/repo/ci.yaml", ".yaml", true},
		{"/repo/ci.yml", ".yml", false},
		{"/repo/Makefile", "Makefile", false},
		{"/repo/main.go", ".go", false},
		{"/repo/archive.tar.gz", ".gz", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.ext, Extension(tt.path))
			assert.Equal(t, tt.eligible, Eligible(tt.path))
		})
	}
}

func TestMarkerMatches(t *testing.T) {
	assert.True(t, docstringMarker.Matches([]byte("\"\"\"\n")))
	assert.True(t, docstringMarker.Matches([]byte("\"\"\"\r\n")))
	assert.True(t, docstringMarker.Matches([]byte(`"""`)))
	assert.False(t, docstringMarker.Matches([]byte("\"\"\"Docstring.\"\"\"\n")), "single-line docstrings are not markers")
	assert.False(t, docstringMarker.Matches([]byte("    \"\"\"\n")))

	assert.True(t, hashMarker.Matches([]byte("#---\n")))
	assert.True(t, hashMarker.Matches([]byte("#------------\n")))
	assert.False(t, hashMarker.Matches([]byte(" #---\n")))
	assert.False(t, hashMarker.Matches([]byte("# ---\n")))
}

func TestScannerStates(t *testing.T) {
	lines := []string{"pre\n", "#---\n", "a\n", "b\n", "#---\n", "post\n", "#---\n", "tail\n"}
	want := []bool{false, false, true, true, true, false, false, false}

	s := NewScanner(hashMarker)
	for i, line := range lines {
		assert.Equal(t, want[i], s.Feed([]byte(line)), "line %d %q", i+1, line)
	}
	assert.Equal(t, stateAfter, s.state, "a third marker does not reopen the block")
	assert.False(t, s.Inside())
}

func TestScannerUnclosedBlockStaysOpen(t *testing.T) {
	s := NewScanner(hashMarker)
	s.Feed([]byte("#---\n"))
	for _, line := range []string{"a\n", "b\n", "key: value\n"} {
		assert.True(t, s.Feed([]byte(line)), "%q should be treated as header", line)
	}
	assert.True(t, s.Inside())
	assert.Equal(t, stateInside, s.state)
}

func TestChecksumIgnoresHeaderValues(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.py", pyFile)
	b := writeFile(t, dir, "b.py", strings.NewReplacer(
		"old_repo", "new_repo",
		"Old Author", "New Author",
		"2023-07-23 08:16:52", "2024-01-01 00:00:00",
		"$Rev: 2", "$Rev: 99",
	).Replace(pyFile))

	sumA, err := Checksum(a)
	require.NoError(t, err)
	sumB, err := Checksum(b)
	require.NoError(t, err)
	assert.Equal(t, sumA, sumB)
	assert.Len(t, sumA, 32)
}

func TestChecksumDetectsBodyChanges(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "a.py", pyFile)
	baseSum, err := Checksum(base)
	require.NoError(t, err)

	variants := map[string]string{
		"body edit":     strings.Replace(pyFile, "os.getcwd()", "os.getpid()", 1),
		"shebang edit":  strings.Replace(pyFile, "python", "python3", 1),
		"crlf endings":  strings.ReplaceAll(pyFile, "\n", "\r\n"),
		"trailing line": pyFile + "\n",
	}
	for name, content := range variants {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "a.py", content)
			sum, err := Checksum(path)
			require.NoError(t, err)
			assert.NotEqual(t, baseSum, sum)
		})
	}
}

func TestChecksumUnclosedHeader(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.yaml", "#---\n  $Rev: 1\nkey: one\n")
	b := writeFile(t, dir, "b.yaml", "#---\n  $Rev: 1\nkey: two\n")

	sumA, err := Checksum(a)
	require.NoError(t, err)
	sumB, err := Checksum(b)
	require.NoError(t, err)
	assert.Equal(t, sumA, sumB, "everything after an unclosed marker is header and not hashed")
}

func TestChecksumErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Checksum(filepath.Join(dir, "notes.txt"))
	require.ErrorIs(t, err, ErrUnrecognized)

	missing := filepath.Join(dir, "missing.py")
	_, err = Checksum(missing)
	var scanErr *ScanError
	require.True(t, errors.As(err, &scanErr), "got %v", err)
	assert.Equal(t, missing, scanErr.Path)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), missing)
}

type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestChecksumReaderReportsLine(t *testing.T) {
	boom := errors.New("disk on fire")
	_, err := checksumReader(&failingReader{data: []byte("one\ntwo\nthr"), err: boom}, hashMarker)

	var scanErr *ScanError
	require.True(t, errors.As(err, &scanErr))
	assert.Equal(t, 3, scanErr.Line)
	assert.ErrorIs(t, err, boom)
}

func TestSubstituteLine(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"repo", "    $Repo: old\n", "    $Repo: kwsub\n"},
		{"author", "  $Author: Old Author\n", "  $Author: Anders Wiklund\n"},
		{"date", "    $Date: 2023-07-23 08:16:52\n", "    $Date: 2024-03-28 16:40:42\n"},
		{"rev", "     $Rev: 2\n", "     $Rev: 13\n"},
		{"tab indent", "\t$Rev: 2\n", "\t$Rev: 13\n"},
		{"crlf kept", "     $Rev: 2\r\n", "     $Rev: 13\r\n"},
		{"no terminator", "     $Rev: 2", "     $Rev: 13"},
		{"comment prefix", "# $Rev: 2\n", "# $Rev: 13\n"},
		{"no leading whitespace", "$Rev: 2\n", "$Rev: 2\n"},
		{"empty value", "     $Rev:\n", "     $Rev:\n"},
		{"other line", "  License: Apache 2.0\n", "  License: Apache 2.0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SubstituteLine([]byte(tt.in), testValues)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestSubstituteLineLiteralValues(t *testing.T) {
	v := testValues
	v.Author = "$1 ${2} \\x"
	got := SubstituteLine([]byte("  $Author: old\n"), v)
	assert.Equal(t, "  $Author: $1 ${2} \\x\n", string(got))
}

func TestRewrite(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.py", pyFile)
	require.NoError(t, os.Chmod(path, 0o755))
	before, err := Checksum(path)
	require.NoError(t, err)

	require.NoError(t, Rewrite(path, testValues))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	want := strings.NewReplacer(
		"$Repo: old_repo", "$Repo: kwsub",
		"$Author: Old Author", "$Author: Anders Wiklund",
		"$Date: 2023-07-23 08:16:52", "$Date: 2024-03-28 16:40:42",
		"$Rev: 2", "$Rev: 13",
	).Replace(pyFile)
	assert.Equal(t, want, string(got))

	after, err := Checksum(path)
	require.NoError(t, err)
	assert.Equal(t, before, after, "rewriting the header never changes the checksum")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm(), "permissions are preserved")

	_, err = os.Stat(path + BackupSuffix)
	assert.ErrorIs(t, err, os.ErrNotExist, "backup is removed on success")
}

func TestRewritePreservesBytesOutsideHeader(t *testing.T) {
	content := "#---\r\n    $Repo: old\r\n     $Rev: 1\r\n#---\r\nkey: value\r\n  $Rev: not header\nmixed\rline\n\xff\xfe raw bytes\nno newline at end"
	path := writeFile(t, t.TempDir(), "app.ini", content)

	require.NoError(t, Rewrite(path, testValues))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "#---\r\n    $Repo: kwsub\r\n     $Rev: 13\r\n#---\r\nkey: value\r\n  $Rev: not header\nmixed\rline\n\xff\xfe raw bytes\nno newline at end"
	assert.Equal(t, []byte(want), got)
}

func TestRewriteOnlyInsideHeader(t *testing.T) {
	content := yamlFile + "notes: |\n     $Rev: keep me\n"
	path := writeFile(t, t.TempDir(), "ci.yaml", content)

	require.NoError(t, Rewrite(path, testValues))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasSuffix(got, []byte("notes: |\n     $Rev: keep me\n")))
	assert.Contains(t, string(got), "     $Rev: 13\n#---\n")
}

func TestRewriteUnclosedHeaderRewritesToEOF(t *testing.T) {
	path := writeFile(t, t.TempDir(), ".env", "#---\n     $Rev: 1\nA=1\n     $Rev: 5\n")

	require.NoError(t, Rewrite(path, testValues))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "#---\n     $Rev: 13\nA=1\n     $Rev: 13\n", string(got))
}

func TestRewriteRefusesExistingBackup(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.toml", yamlFile)
	writeFile(t, dir, "a.toml"+BackupSuffix, "precious")

	err := Rewrite(path, testValues)
	require.Error(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, yamlFile, string(got), "original untouched")
	backup, err := os.ReadFile(path + BackupSuffix)
	require.NoError(t, err)
	assert.Equal(t, "precious", string(backup))
}

func TestRewriteFailureKeepsBackup(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.conf", yamlFile)
	require.NoError(t, os.Rename(path, path+BackupSuffix))

	// Something already sits at the target, so the exclusive create fails.
	require.NoError(t, os.Mkdir(path, 0o755))
	err := rewriteFrom(path+BackupSuffix, path, 0o644, hashMarker, testValues)
	require.Error(t, err)

	backup, rerr := os.ReadFile(path + BackupSuffix)
	require.NoError(t, rerr)
	assert.Equal(t, yamlFile, string(backup))
}

func TestRewriteErrorFormat(t *testing.T) {
	err := &RewriteError{Path: "/r/a.py", Backup: "/r/a.py.bak", Err: os.ErrPermission}
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Contains(t, err.Error(), "/r/a.py.bak")
}
