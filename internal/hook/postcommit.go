package hook

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wildeconsulting/kwsub/internal/debug"
	"github.com/wildeconsulting/kwsub/internal/handoff"
	"github.com/wildeconsulting/kwsub/internal/ledger"
)

var commitsFinalized = mustCounter("kwsub.commits.finalized", "Commits recorded in the ledger")

// PostCommit records the commit described by the handoff record.
type PostCommit struct {
	Git    SourceControl
	Ledger Recorder

	// LockTimeout bounds the wait for the handoff lock.
	LockTimeout time.Duration
}

// Run finalizes the in-flight commit and removes the handoff record. It
// reports false, without touching the ledger, when no commit is in flight.
// The record is kept whenever finalization fails.
func (p *PostCommit) Run(ctx context.Context) (finalized bool, err error) {
	ctx, span := tracer.Start(ctx, "kwsub.post-commit")
	defer func() {
		span.SetAttributes(attribute.Bool("finalized", finalized))
		endSpan(span, err)
	}()

	root, err := p.Git.Root(ctx)
	if err != nil {
		return false, err
	}
	store := handoff.New(root)

	// Checked before locking so a commit with nothing to record leaves no
	// lock file behind.
	exists, err := store.Exists()
	if err != nil || !exists {
		return false, err
	}

	err = store.WithLock(ctx, p.LockTimeout, func() error {
		rec, ok, err := store.Load()
		if err != nil || !ok {
			return err
		}
		if !rec.Allocated() {
			return fmt.Errorf("%w: %s has no revision", ErrCorruptRecord, store.Path())
		}

		hash, err := p.Git.HeadHash(ctx)
		if err != nil {
			return err
		}
		entry := ledger.Entry{
			Name:     rec.Repository,
			Branch:   rec.Branch,
			Created:  rec.Created,
			Revision: rec.Revision,
			Hash:     hash,
		}
		span.SetAttributes(
			attribute.String("repository", entry.Name),
			attribute.String("branch", entry.Branch),
			attribute.Int64("revision", int64(entry.Revision)),
		)
		if err := p.Ledger.Finalize(ctx, entry); err != nil {
			return err
		}
		if err := store.Delete(); err != nil {
			return err
		}

		debug.Logf("post-commit: recorded %s/%s r%d at %s", entry.Name, entry.Branch, entry.Revision, hash)
		commitsFinalized.Add(ctx, 1)
		finalized = true
		return nil
	})
	return finalized, err
}
