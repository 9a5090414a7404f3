package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/wildeconsulting/kwsub/internal/debug"
	"github.com/wildeconsulting/kwsub/internal/secrets"
)

// Lazy defers reading the secrets file and connecting to the database until
// the first ledger call. A pre-commit run that rewrites nothing never needs
// credentials or the network.
type Lazy struct {
	SecretsDir string
	SecretName string
	Database   string

	mu    sync.Mutex
	store *Store
}

// open connects the underlying Store on first use.
func (l *Lazy) open(ctx context.Context) (*Store, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.store != nil {
		return l.store, nil
	}

	raw, err := secrets.Read(l.SecretsDir, l.SecretName)
	if err != nil {
		return nil, err
	}
	params, err := secrets.ParseDSN(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing secrets file %s: %w", l.SecretName, err)
	}
	cfg, err := ConfigFromDSN(params, l.Database)
	if err != nil {
		return nil, fmt.Errorf("parsing secrets file %s: %w", l.SecretName, err)
	}

	debug.Logf("ledger: connecting to %s/%s as %s", cfg.Addr, cfg.DBName, cfg.User)
	store, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	l.store = store
	return store, nil
}

// Store returns the opened store, connecting if needed.
func (l *Lazy) Store(ctx context.Context) (*Store, error) {
	return l.open(ctx)
}

// NextRevision opens the ledger if needed and delegates to Store.NextRevision.
func (l *Lazy) NextRevision(ctx context.Context, repo, branch, updated string) (uint64, error) {
	store, err := l.open(ctx)
	if err != nil {
		return 0, err
	}
	return store.NextRevision(ctx, repo, branch, updated)
}

// Finalize opens the ledger if needed and delegates to Store.Finalize.
func (l *Lazy) Finalize(ctx context.Context, e Entry) error {
	store, err := l.open(ctx)
	if err != nil {
		return err
	}
	return store.Finalize(ctx, e)
}

// Close closes the store if it was ever opened.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.store == nil {
		return nil
	}
	err := l.store.Close()
	l.store = nil
	return err
}
