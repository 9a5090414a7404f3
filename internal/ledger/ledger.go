// Package ledger records repository revisions in a MySQL-compatible database.
//
// Two tables are used:
//
//	repositories        one row per (name, branch): latest revision and hash
//	repository_history  append-only, one row per (name, branch, created)
//
// The revision counter lives in the database rather than in git so that all
// developers share one monotonically increasing number per branch.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultDatabase is the schema the ledger tables live in.
const DefaultDatabase = "git"

// defaultPort is used when the connection parameters do not name one.
const defaultPort = "3306"

var tracer = otel.Tracer("github.com/wildeconsulting/kwsub/internal/ledger")

// Row is the current state of one (repository, branch) pair.
type Row struct {
	Name     string
	Branch   string
	Updated  string
	Revision uint64
	Hash     string
}

// Entry is one finalized commit, as written to repository_history.
type Entry struct {
	Name     string
	Branch   string
	Created  string
	Revision uint64
	Hash     string
}

// Store is an open ledger connection pool.
type Store struct {
	db *sql.DB
}

// ConfigFromDSN builds a driver configuration from parsed connection
// parameters. user, password, host, port and database are mapped to their
// driver fields; anything else (autocommit, time_zone, ...) is sent as a
// session variable.
func ConfigFromDSN(params map[string]string, database string) (*mysql.Config, error) {
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Timeout = 5 * time.Second
	cfg.DBName = database
	if cfg.DBName == "" {
		cfg.DBName = DefaultDatabase
	}

	host := "127.0.0.1"
	port := defaultPort
	for key, value := range params {
		switch key {
		case "user":
			cfg.User = value
		case "password", "passwd":
			cfg.Passwd = value
		case "host":
			host = value
		case "port":
			if _, err := strconv.ParseUint(value, 10, 16); err != nil {
				return nil, fmt.Errorf("invalid port %q: %w", value, err)
			}
			port = value
		case "database", "db":
			if database == "" {
				cfg.DBName = value
			}
		default:
			if cfg.Params == nil {
				cfg.Params = make(map[string]string)
			}
			cfg.Params[key] = value
		}
	}
	cfg.Addr = net.JoinHostPort(host, port)

	return cfg, nil
}

// Open connects to the ledger database described by cfg and verifies the
// connection with a ping.
func Open(ctx context.Context, cfg *mysql.Config) (*Store, error) {
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("configuring ledger connection: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(2)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, wrapConnError("connecting to ledger at "+cfg.Addr, err)
	}
	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return wrapConnError("closing ledger", s.db.Close())
}

// NextRevision increments and returns the revision of (repo, branch),
// creating the row with revision 1 on first use. The upsert and the read run
// in one transaction, so concurrent committers each see their own value.
func (s *Store) NextRevision(ctx context.Context, repo, branch, updated string) (rev uint64, err error) {
	ctx, span := tracer.Start(ctx, "ledger.next-revision", trace.WithAttributes(
		attribute.String("repository", repo),
		attribute.String("branch", branch),
	))
	defer func() { endSpan(span, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrapTransactionError("next revision: begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		"INSERT INTO repositories (name, updated, branch) VALUES (?, ?, ?) "+
			"ON DUPLICATE KEY UPDATE updated = ?, revision = revision + 1",
		repo, updated, branch, updated); err != nil {
		return 0, wrapExecError("next revision: upsert", err)
	}

	if err = tx.QueryRowContext(ctx,
		"SELECT revision FROM repositories WHERE name = ? AND branch = ?",
		repo, branch).Scan(&rev); err != nil {
		return 0, wrapScanError("next revision: read back", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, wrapTransactionError("next revision: commit", err)
	}
	span.SetAttributes(attribute.Int64("revision", int64(rev)))
	return rev, nil
}

// Finalize stores the resolved commit hash on the current-state row and
// appends a history row. A history row that already exists for
// (name, branch, created) is left alone.
func (s *Store) Finalize(ctx context.Context, e Entry) (err error) {
	ctx, span := tracer.Start(ctx, "ledger.finalize", trace.WithAttributes(
		attribute.String("repository", e.Name),
		attribute.String("branch", e.Branch),
		attribute.Int64("revision", int64(e.Revision)),
	))
	defer func() { endSpan(span, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapTransactionError("finalize: begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		"UPDATE repositories SET hash = ? WHERE name = ? AND branch = ?",
		e.Hash, e.Name, e.Branch); err != nil {
		return wrapExecError("finalize: update current", err)
	}

	if _, err = tx.ExecContext(ctx,
		"INSERT IGNORE INTO repository_history (name, branch, created, revision, hash) VALUES (?, ?, ?, ?, ?)",
		e.Name, e.Branch, e.Created, e.Revision, e.Hash); err != nil {
		return wrapExecError("finalize: append history", err)
	}

	if err = tx.Commit(); err != nil {
		return wrapTransactionError("finalize: commit", err)
	}
	return nil
}

// Current returns the current-state row for (repo, branch).
func (s *Store) Current(ctx context.Context, repo, branch string) (*Row, error) {
	var (
		row     = Row{Name: repo, Branch: branch}
		updated sql.NullString
		hash    sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT CAST(updated AS CHAR), revision, hash FROM repositories WHERE name = ? AND branch = ?",
		repo, branch).Scan(&updated, &row.Revision, &hash)
	if err != nil {
		return nil, wrapScanError("current revision", err)
	}
	row.Updated = updated.String
	row.Hash = hash.String
	return &row, nil
}

// History returns the most recent history rows for (repo, branch), newest
// first. limit <= 0 returns every row.
func (s *Store) History(ctx context.Context, repo, branch string, limit int) ([]Entry, error) {
	query := "SELECT CAST(created AS CHAR), revision, hash FROM repository_history " +
		"WHERE name = ? AND branch = ? ORDER BY created DESC"
	args := []any{repo, branch}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapQueryError("history", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e := Entry{Name: repo, Branch: branch}
		var hash sql.NullString
		if err := rows.Scan(&e.Created, &e.Revision, &hash); err != nil {
			return nil, wrapScanError("history", err)
		}
		e.Hash = hash.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapQueryError("history", err)
	}
	return entries, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
