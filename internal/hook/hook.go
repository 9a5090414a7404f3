// Package hook implements the two git hook entry points.
//
// PreCommit runs once or more per logical commit and rewrites the keyword
// header of every changed eligible file, allocating one ledger revision for
// the whole commit. PostCommit runs after the commit exists and records its
// hash in the ledger. The two communicate only through the handoff record.
package hook

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/wildeconsulting/kwsub/internal/git"
	"github.com/wildeconsulting/kwsub/internal/handoff"
	"github.com/wildeconsulting/kwsub/internal/ledger"
)

const instrumentation = "github.com/wildeconsulting/kwsub/internal/hook"

var (
	tracer = otel.Tracer(instrumentation)
	meter  = otel.Meter(instrumentation)
)

// ErrCorruptRecord is returned when a handoff record cannot describe a
// finished commit.
var ErrCorruptRecord = errors.New("corrupt handoff record")

// SourceControl answers the questions the hooks ask git.
type SourceControl interface {
	UserName(ctx context.Context) (string, error)
	Branch(ctx context.Context) (string, error)
	Root(ctx context.Context) (string, error)
	HeadHash(ctx context.Context) (string, error)
}

// Allocator hands out the next revision of a (repository, branch) pair.
type Allocator interface {
	NextRevision(ctx context.Context, repo, branch, updated string) (uint64, error)
}

// Recorder records a finished commit.
type Recorder interface {
	Finalize(ctx context.Context, e ledger.Entry) error
}

var (
	_ SourceControl = (*git.Repo)(nil)
	_ Allocator     = (*ledger.Lazy)(nil)
	_ Recorder      = (*ledger.Lazy)(nil)
	_ Allocator     = (*ledger.Store)(nil)
	_ Recorder      = (*ledger.Store)(nil)
)

func identity(ctx context.Context, sc SourceControl) func() (handoff.Identity, error) {
	return func() (handoff.Identity, error) {
		user, err := sc.UserName(ctx)
		if err != nil {
			return handoff.Identity{}, err
		}
		branch, err := sc.Branch(ctx)
		if err != nil {
			return handoff.Identity{}, err
		}
		return handoff.Identity{User: user, Branch: branch}, nil
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func mustCounter(name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		otel.Handle(err)
		return noop.Int64Counter{}
	}
	return c
}
