package header

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
)

// BackupSuffix is appended to a file's name while its header is rewritten.
const BackupSuffix = ".bak"

// Values are the keyword values written into a header block.
type Values struct {
	Repository string
	Author     string
	Date       string
	Revision   uint64
}

// tag rewrites one keyword line: leading whitespace, the literal tag, then
// at least one character of value.
type tag struct {
	re    *regexp.Regexp
	value func(Values) string
}

// tags are applied to each header line in this order.
var tags = []tag{
	{regexp.MustCompile(`([ \t]+\$Author:)(.+)`), func(v Values) string { return v.Author }},
	{regexp.MustCompile(`([ \t]+\$Rev:)(.+)`), func(v Values) string { return strconv.FormatUint(v.Revision, 10) }},
	{regexp.MustCompile(`([ \t]+\$Date:)(.+)`), func(v Values) string { return v.Date }},
	{regexp.MustCompile(`([ \t]+\$Repo:)(.+)`), func(v Values) string { return v.Repository }},
}

// RewriteError reports a failure after the original file was moved aside.
// The pre-rewrite content is still in Backup and must be restored by hand.
type RewriteError struct {
	Path   string
	Backup string
	Err    error
}

func (e *RewriteError) Error() string {
	return fmt.Sprintf("rewriting header of %s (original kept in %s): %v", e.Path, e.Backup, e.Err)
}

func (e *RewriteError) Unwrap() error {
	return e.Err
}

// SubstituteLine rewrites the keyword values of a single header line. The
// tag, the whitespace before it and the line terminator are kept verbatim.
func SubstituteLine(line []byte, v Values) []byte {
	body, eol := splitEOL(line)
	changed := false
	for _, t := range tags {
		if !t.re.Match(body) {
			continue
		}
		value := t.value(v)
		body = t.re.ReplaceAllFunc(body, func(m []byte) []byte {
			sub := t.re.FindSubmatch(m)
			out := make([]byte, 0, len(sub[1])+1+len(value))
			out = append(out, sub[1]...)
			out = append(out, ' ')
			return append(out, value...)
		})
		changed = true
	}
	if !changed {
		return line
	}
	out := make([]byte, 0, len(body)+len(eol))
	out = append(out, body...)
	return append(out, eol...)
}

// Rewrite replaces the keyword values in path's header block.
//
// The original is first renamed to path+BackupSuffix, then streamed back
// into path line by line: header lines get their values substituted and
// every other byte is copied unchanged, line terminators included. The
// backup is removed only after the new file is synced. If anything fails
// after the rename, the backup is left in place and a *RewriteError is
// returned.
func Rewrite(path string, v Values) error {
	marker, ok := MarkerFor(path)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnrecognized, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("rewriting header of %s: %w", path, err)
	}

	backup := path + BackupSuffix
	if _, err := os.Lstat(backup); err == nil {
		// Left over from an earlier failed rewrite; it may be the only good copy.
		return fmt.Errorf("backup %s already exists: restore or remove it first", backup)
	}
	if err := os.Rename(path, backup); err != nil {
		return fmt.Errorf("backing up %s: %w", path, err)
	}

	if err := rewriteFrom(backup, path, info.Mode().Perm(), marker, v); err != nil {
		return &RewriteError{Path: path, Backup: backup, Err: err}
	}

	if err := os.Remove(backup); err != nil {
		return &RewriteError{Path: path, Backup: backup, Err: fmt.Errorf("removing backup: %w", err)}
	}
	return nil
}

func rewriteFrom(src, dst string, perm os.FileMode, marker Marker, v Values) (err error) {
	// #nosec G304 -- src is the backup we just created
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	// #nosec G304 -- dst is the file being committed
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	if err := substitute(in, out, marker, v); err != nil {
		return err
	}
	return out.Sync()
}

// substitute copies r to w, rewriting keyword lines inside the header block.
func substitute(r io.Reader, w io.Writer, marker Marker, v Values) error {
	scanner := NewScanner(marker)
	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)

	for lineNo := 1; ; lineNo++ {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			if scanner.Feed(line) {
				line = SubstituteLine(line, v)
			}
			if _, werr := bw.Write(line); werr != nil {
				return fmt.Errorf("line %d: %w", lineNo, werr)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	return bw.Flush()
}
