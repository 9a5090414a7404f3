package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
)

func TestWrapSentinels(t *testing.T) {
	original := fmt.Errorf("boom")
	tests := []struct {
		name     string
		wrap     func(string, error) error
		sentinel error
	}{
		{"transaction", wrapTransactionError, ErrTransaction},
		{"scan", wrapScanError, ErrScan},
		{"query", wrapQueryError, ErrQuery},
		{"exec", wrapExecError, ErrExec},
		{"connect", wrapConnError, ErrConnect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.wrap("op", nil); err != nil {
				t.Errorf("wrap(nil) = %v, want nil", err)
			}
			err := tt.wrap("op", original)
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("expected %v in chain, got %v", tt.sentinel, err)
			}
			if !errors.Is(err, original) {
				t.Errorf("expected original error in chain, got %v", err)
			}
		})
	}
}

func TestWrapScanErrorNoRows(t *testing.T) {
	err := wrapScanError("current revision", sql.ErrNoRows)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if errors.Is(err, ErrScan) {
		t.Errorf("no-rows should not be reported as a scan failure: %v", err)
	}
}
