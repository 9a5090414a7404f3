package header

import (
	"bufio"
	"crypto/md5" // #nosec G501 -- content fingerprint, not a security boundary
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// ScanError reports an I/O failure while reading a file for its checksum.
type ScanError struct {
	Path string
	// Line is the 1-based line being read when the failure happened.
	Line int
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("line %d in file %s: %v", e.Line, e.Path, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// ErrUnrecognized is returned for files whose type has no header marker.
var ErrUnrecognized = errors.New("unrecognized file type")

// Checksum returns the hex MD5 of every line of path that lies outside the
// header block, in file order and with line terminators included. Editing
// only the header leaves the checksum unchanged.
func Checksum(path string) (string, error) {
	marker, ok := MarkerFor(path)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnrecognized, path)
	}

	// #nosec G304 -- paths come from the commit tool
	f, err := os.Open(path)
	if err != nil {
		return "", &ScanError{Path: path, Line: 0, Err: err}
	}
	defer f.Close()

	sum, err := checksumReader(f, marker)
	if err != nil {
		var scanErr *ScanError
		if errors.As(err, &scanErr) {
			scanErr.Path = path
		}
		return "", err
	}
	return sum, nil
}

// checksumReader hashes the non-header lines of r.
func checksumReader(r io.Reader, marker Marker) (string, error) {
	h := md5.New() // #nosec G401 -- see import
	scanner := NewScanner(marker)
	br := bufio.NewReader(r)

	for lineNo := 1; ; lineNo++ {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 && !scanner.Feed(line) {
			_, _ = h.Write(line)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", &ScanError{Line: lineNo, Err: err}
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
