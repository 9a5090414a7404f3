// Package header finds and rewrites the keyword header block near the top
// of a text file.
//
// A header block is delimited by two marker lines whose form depends on the
// file type. Inside it, four tag lines carry the values the pre-commit hook
// maintains:
//
//	#---
//	    $Repo: kwsub
//	  $Author: Anders Wiklund
//	    $Date: 2024-03-28 16:40:42
//	     $Rev: 12
//	#---
package header

import (
	"bytes"
	"path/filepath"
)

// Marker identifies the lines that open and close a header block.
type Marker struct {
	// Text is the marker sequence.
	Text string
	// Exact requires the whole line (terminator excluded) to equal Text;
	// otherwise the line only has to start with it.
	Exact bool
}

// Matches reports whether line (terminator included or not) is a marker line.
func (m Marker) Matches(line []byte) bool {
	if m.Exact {
		return bytes.Equal(trimEOL(line), []byte(m.Text))
	}
	return bytes.HasPrefix(line, []byte(m.Text))
}

var (
	hashMarker      = Marker{Text: "#---"}
	docstringMarker = Marker{Text: `"""`, Exact: true}
)

// markers maps a recognized extension to its header marker.
var markers = map[string]Marker{
	".conf": hashMarker,
	".env":  hashMarker,
	".ini":  hashMarker,
	".py":   docstringMarker,
	".toml": hashMarker,
	".yaml": hashMarker,
}

// Extension returns the key used to look up a file's marker: the extension,
// or the whole base name when there is none, so that ".env" maps to ".env".
func Extension(path string) string {
	base := filepath.Base(path)
	if ext := filepath.Ext(base); ext != "" {
		return ext
	}
	return base
}

// MarkerFor returns the marker for path's file type.
func MarkerFor(path string) (Marker, bool) {
	m, ok := markers[Extension(path)]
	return m, ok
}

// Eligible reports whether path has a recognized file type.
func Eligible(path string) bool {
	_, ok := MarkerFor(path)
	return ok
}

// trimEOL strips a trailing "\n" or "\r\n".
func trimEOL(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r"))
}

// splitEOL separates a line from its terminator.
func splitEOL(line []byte) (body, eol []byte) {
	body = trimEOL(line)
	return body, line[len(body):]
}
