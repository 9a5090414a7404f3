// Package secrets reads connection credentials from plain-text files kept
// in a per-user secrets directory.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrMissingSecret is returned when the requested secrets file does not exist.
var ErrMissingSecret = errors.New("missing secrets file")

// DefaultDir returns the per-user secrets directory, $HOME/.local/secrets.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, ".local", "secrets"), nil
}

// Read returns the contents of dir/name with trailing whitespace removed.
func Read(dir, name string) (string, error) {
	path := filepath.Join(dir, name)

	// #nosec G304 -- path is built from the configured secrets directory
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrMissingSecret, path)
		}
		return "", fmt.Errorf("reading secrets file %s: %w", path, err)
	}
	return strings.TrimRight(string(data), " \t\r\n"), nil
}

// ParseDSN splits comma separated key=value pairs, e.g.
//
//	user=alice,password=s3cret,host=db.example.com,port=3306,autocommit=true
//
// Keys and values are trimmed. Later duplicates win.
func ParseDSN(raw string) (map[string]string, error) {
	params := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return params, nil
	}

	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("malformed connection parameter %q: want key=value", strings.TrimSpace(pair))
		}
		params[key] = strings.TrimSpace(value)
	}
	return params, nil
}
