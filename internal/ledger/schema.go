package ledger

import "context"

// schemaStatements create the ledger tables when they are missing.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS repositories (
		name     VARCHAR(50) NOT NULL,
		branch   VARCHAR(40) NOT NULL,
		updated  TIMESTAMP NULL,
		revision INT UNSIGNED NOT NULL DEFAULT 1,
		hash     VARCHAR(40) NULL,
		PRIMARY KEY (name, branch)
	)`,
	`CREATE TABLE IF NOT EXISTS repository_history (
		name     VARCHAR(50) NOT NULL,
		branch   VARCHAR(40) NOT NULL,
		created  TIMESTAMP NOT NULL,
		revision INT UNSIGNED NOT NULL,
		hash     VARCHAR(40) NULL,
		PRIMARY KEY (name, branch, created)
	)`,
}

// EnsureSchema creates the repositories and repository_history tables in
// the connected database. Existing tables are left untouched.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return wrapExecError("ensure schema", err)
		}
	}
	return nil
}
