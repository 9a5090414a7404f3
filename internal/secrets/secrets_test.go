package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRead(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "mysql_dsn"), []byte("user=a,password=b\n\n"), 0600); err != nil {
		t.Fatal(err)
	}

	got, err := Read(dir, "mysql_dsn")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got != "user=a,password=b" {
		t.Errorf("Read() = %q, want trailing newlines trimmed", got)
	}
}

func TestReadMissing(t *testing.T) {
	dir := t.TempDir()

	_, err := Read(dir, "mysql_dsn")
	if !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("Read() error = %v, want ErrMissingSecret", err)
	}
	if !strings.Contains(err.Error(), filepath.Join(dir, "mysql_dsn")) {
		t.Errorf("error %q should name the missing path", err)
	}
}

func TestParseDSN(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    map[string]string
		wantErr bool
	}{
		{
			name: "full",
			raw:  "user=alice,password=s3cret,host=db,port=3306,autocommit=true",
			want: map[string]string{"user": "alice", "password": "s3cret", "host": "db", "port": "3306", "autocommit": "true"},
		},
		{
			name: "spaces trimmed",
			raw:  " user = alice , host=db ",
			want: map[string]string{"user": "alice", "host": "db"},
		},
		{
			name: "value containing equals",
			raw:  "password=a=b",
			want: map[string]string{"password": "a=b"},
		},
		{
			name: "empty",
			raw:  "",
			want: map[string]string{},
		},
		{
			name:    "missing equals",
			raw:     "user=alice,host",
			wantErr: true,
		},
		{
			name:    "empty key",
			raw:     "=x",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDSN(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDSN(%q) = %v, want error", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDSN(%q) error = %v", tt.raw, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ParseDSN(%q) = %v, want %v", tt.raw, got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("ParseDSN(%q)[%q] = %q, want %q", tt.raw, k, got[k], v)
				}
			}
		})
	}
}
