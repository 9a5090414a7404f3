package hook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/wildeconsulting/kwsub/internal/debug"
	"github.com/wildeconsulting/kwsub/internal/handoff"
	"github.com/wildeconsulting/kwsub/internal/header"
)

var filesRewritten = mustCounter("kwsub.files.rewritten", "Files whose header block was rewritten")

// PreCommit rewrites header blocks for the files of one hook invocation.
type PreCommit struct {
	Git    SourceControl
	Ledger Allocator

	// LockTimeout bounds the wait for the handoff lock.
	// handoff.DefaultLockTimeout when zero.
	LockTimeout time.Duration

	// Now is the clock used for a fresh record. time.Now when nil.
	Now func() time.Time

	// Out receives one progress line per rewritten file. Discarded when nil.
	Out io.Writer

	// Workers bounds concurrent checksum computation. GOMAXPROCS when zero.
	Workers int
}

// Result summarizes one invocation.
type Result struct {
	// Revision is the commit's revision, 0 if none was allocated yet.
	Revision  uint64
	Rewritten []string
	// Skipped lists ineligible, empty, missing and unchanged files.
	Skipped []string
}

// Run processes files in order. Paths are resolved against the working
// directory. The handoff record is persisted only if a file was rewritten.
func (p *PreCommit) Run(ctx context.Context, files []string) (res Result, err error) {
	ctx, span := tracer.Start(ctx, "kwsub.pre-commit")
	defer func() {
		span.SetAttributes(
			attribute.Int64("revision", int64(res.Revision)),
			attribute.Int("files.rewritten", len(res.Rewritten)),
			attribute.Int("files.skipped", len(res.Skipped)),
		)
		endSpan(span, err)
	}()

	root, err := p.Git.Root(ctx)
	if err != nil {
		return Result{}, err
	}
	store := handoff.New(root)

	err = store.WithLock(ctx, p.LockTimeout, func() error {
		var runErr error
		res, runErr = p.locked(ctx, store, files)
		return runErr
	})
	return res, err
}

func (p *PreCommit) locked(ctx context.Context, store *handoff.Store, files []string) (Result, error) {
	var res Result

	rec, err := store.LoadOrCreate(identity(ctx, p.Git), p.now())
	if err != nil {
		return res, err
	}
	res.Revision = rec.Revision

	candidates, skipped := filterCandidates(files)
	res.Skipped = skipped
	if len(candidates) == 0 {
		debug.Logf("pre-commit: no eligible files among %d", len(files))
		return res, nil
	}

	sums, err := p.checksums(ctx, candidates)
	if err != nil {
		return res, err
	}

	modified := false
	for i, path := range candidates {
		if prev, seen := rec.Files[path]; seen && prev == sums[i] {
			debug.Logf("pre-commit: %s unchanged", path)
			res.Skipped = append(res.Skipped, path)
			continue
		}

		if !rec.Allocated() {
			rev, err := p.Ledger.NextRevision(ctx, rec.Repository, rec.Branch, rec.Created)
			if err != nil {
				return res, err
			}
			if rev == 0 {
				return res, fmt.Errorf("ledger returned revision 0 for %s/%s", rec.Repository, rec.Branch)
			}
			rec.Revision = rev
			res.Revision = rev
			debug.Logf("pre-commit: allocated revision %d for %s/%s", rev, rec.Repository, rec.Branch)
		}

		fmt.Fprintf(p.out(), "Updating header block in file %s\n", path)
		if err := header.Rewrite(path, valuesOf(rec)); err != nil {
			// Keep what was already rewritten so a retry reuses the revision.
			if modified {
				err = errors.Join(err, store.Persist(rec))
			}
			return res, err
		}
		rec.Files[path] = sums[i]
		res.Rewritten = append(res.Rewritten, path)
		modified = true
	}

	if !modified {
		return res, nil
	}
	filesRewritten.Add(ctx, int64(len(res.Rewritten)), metric.WithAttributes(
		attribute.String("repository", rec.Repository),
		attribute.String("branch", rec.Branch),
	))
	return res, store.Persist(rec)
}

// filterCandidates resolves paths and keeps the regular, non-empty files of a
// recognized type. Symlinks are not followed.
func filterCandidates(files []string) (candidates, skipped []string) {
	for _, f := range files {
		path, err := filepath.Abs(f)
		if err != nil {
			debug.Logf("pre-commit: resolving %s: %v", f, err)
			skipped = append(skipped, f)
			continue
		}
		if !header.Eligible(path) {
			skipped = append(skipped, path)
			continue
		}
		info, err := os.Lstat(path)
		switch {
		case err != nil:
			debug.Logf("pre-commit: skipping %s: %v", path, err)
			skipped = append(skipped, path)
		case !info.Mode().IsRegular():
			debug.Logf("pre-commit: skipping %s: not a regular file", path)
			skipped = append(skipped, path)
		case info.Size() == 0:
			skipped = append(skipped, path)
		default:
			candidates = append(candidates, path)
		}
	}
	return candidates, skipped
}

// checksums hashes every candidate before anything is rewritten, so a scan
// failure aborts the run with the tree untouched.
func (p *PreCommit) checksums(ctx context.Context, paths []string) ([]string, error) {
	sums := make([]string, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sum, err := header.Checksum(path)
			if err != nil {
				return err
			}
			sums[i] = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sums, nil
}

func valuesOf(rec *handoff.Record) header.Values {
	return header.Values{
		Repository: rec.Repository,
		Author:     rec.User,
		Date:       rec.Created,
		Revision:   rec.Revision,
	}
}

func (p *PreCommit) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *PreCommit) out() io.Writer {
	if p.Out != nil {
		return p.Out
	}
	return io.Discard
}

func (p *PreCommit) workers() int {
	if p.Workers > 0 {
		return p.Workers
	}
	return runtime.GOMAXPROCS(0)
}
