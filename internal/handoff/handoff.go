// Package handoff persists the state one logical commit carries between
// repeated pre-commit invocations and the final post-commit step.
//
// git may run the pre-commit hook several times for a single commit (for
// instance once per batch of staged files), each time as a fresh process.
// The record lives beside the repository root, exists only while a commit is
// in flight, and is removed by the post-commit step once the ledger is
// updated. All read-modify-write cycles must run inside Store.WithLock.
//
// The file is JSON stored as ISO-8859-1: every byte of a path or name maps
// to one character, so values that are not valid UTF-8 survive a round trip
// unchanged and keep matching the paths git hands to the hook.
package handoff

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
)

const (
	// FileName is the handoff record file, created in the repository root.
	FileName = ".pre-commit-repo.json"

	// LockFileName guards FileName. It never contains data.
	LockFileName = ".pre-commit-repo.lock"

	// TimestampLayout formats Record.Created: local time, second precision.
	TimestampLayout = time.DateTime
)

// Record is the in-flight commit state.
type Record struct {
	User       string `json:"user"`
	Branch     string `json:"branch"`
	Repository string `json:"repository"`
	// Revision is 0 until the ledger has allocated one for this commit.
	Revision uint64 `json:"revision"`
	Created  string `json:"created"`
	// Files maps absolute paths to the checksum recorded when their header
	// was last rewritten.
	Files map[string]string `json:"files"`
}

// Identity is what a fresh record needs to know about the committer.
type Identity struct {
	User   string
	Branch string
}

// NewRecord returns an empty record for a commit starting at now.
func NewRecord(root string, id Identity, now time.Time) *Record {
	return &Record{
		User:       id.User,
		Branch:     id.Branch,
		Repository: RepositoryName(root),
		Created:    now.Format(TimestampLayout),
		Files:      make(map[string]string),
	}
}

// RepositoryName is the ledger name of the repository rooted at root: its
// lower-cased directory name.
func RepositoryName(root string) string {
	return strings.ToLower(filepath.Base(root))
}

// Allocated reports whether the commit already has a revision.
func (r *Record) Allocated() bool {
	return r.Revision != 0
}

// mapStrings returns a copy of r with f applied to every string it holds,
// including the keys and values of Files.
func (r *Record) mapStrings(f func(string) (string, error)) (*Record, error) {
	out := &Record{Revision: r.Revision, Files: make(map[string]string, len(r.Files))}
	fields := []struct {
		dst *string
		src string
	}{
		{&out.User, r.User},
		{&out.Branch, r.Branch},
		{&out.Repository, r.Repository},
		{&out.Created, r.Created},
	}
	for _, fld := range fields {
		v, err := f(fld.src)
		if err != nil {
			return nil, err
		}
		*fld.dst = v
	}
	for path, sum := range r.Files {
		k, err := f(path)
		if err != nil {
			return nil, fmt.Errorf("file %q: %w", path, err)
		}
		v, err := f(sum)
		if err != nil {
			return nil, fmt.Errorf("file %q: %w", path, err)
		}
		out.Files[k] = v
	}
	return out, nil
}

// Store reads and writes the record of the repository rooted at Root.
type Store struct {
	Root string
}

// New returns a Store for the repository rooted at root.
func New(root string) *Store {
	return &Store{Root: root}
}

// Path returns the record file path.
func (s *Store) Path() string {
	return filepath.Join(s.Root, FileName)
}

// LockPath returns the sibling lock file path.
func (s *Store) LockPath() string {
	return filepath.Join(s.Root, LockFileName)
}

// Exists reports whether a commit is in flight.
func (s *Store) Exists() (bool, error) {
	_, err := os.Stat(s.Path())
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("checking handoff file: %w", err)
}

// Load reads the record. ok is false when no commit is in flight.
func (s *Store) Load() (rec *Record, ok bool, err error) {
	// #nosec G304 -- path is fixed relative to the repository root
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading handoff file: %w", err)
	}

	text, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return nil, false, fmt.Errorf("decoding handoff file %s: %w", s.Path(), err)
	}
	stored := &Record{}
	if err := json.Unmarshal(text, stored); err != nil {
		return nil, false, fmt.Errorf("parsing handoff file %s: %w", s.Path(), err)
	}
	enc := charmap.ISO8859_1.NewEncoder()
	rec, err = stored.mapStrings(enc.String)
	if err != nil {
		return nil, false, fmt.Errorf("parsing handoff file %s: %w", s.Path(), err)
	}
	return rec, true, nil
}

// LoadOrCreate returns the in-flight record, or a fresh one when this is the
// first invocation for the commit. A loaded record is returned exactly as
// stored: its files, timestamp and revision carry over. identity is only
// called for a fresh record.
func (s *Store) LoadOrCreate(identity func() (Identity, error), now time.Time) (*Record, error) {
	rec, ok, err := s.Load()
	if err != nil {
		return nil, err
	}
	if ok {
		return rec, nil
	}

	id, err := identity()
	if err != nil {
		return nil, err
	}
	return NewRecord(s.Root, id, now), nil
}

// Persist writes rec atomically (temp file + rename).
func (s *Store) Persist(rec *Record) error {
	stored, err := rec.mapStrings(charmap.ISO8859_1.NewDecoder().String)
	if err != nil {
		return fmt.Errorf("encoding handoff record: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(stored); err != nil {
		return fmt.Errorf("encoding handoff record: %w", err)
	}
	data, err := charmap.ISO8859_1.NewEncoder().Bytes(buf.Bytes())
	if err != nil {
		return fmt.Errorf("encoding handoff record: %w", err)
	}

	tmp, err := os.CreateTemp(s.Root, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("writing handoff file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing handoff file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing handoff file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing handoff file: %w", err)
	}
	if err := os.Rename(tmpName, s.Path()); err != nil {
		return fmt.Errorf("replacing handoff file: %w", err)
	}
	return nil
}

// Delete removes the record. A missing record is not an error.
func (s *Store) Delete() error {
	if err := os.Remove(s.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing handoff file: %w", err)
	}
	return nil
}
