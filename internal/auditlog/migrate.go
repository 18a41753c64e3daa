package auditlog

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// runMigrations applies every pending migration in migrations/ against
// dsn (the same "postgres://..." URL pgxpool connects with; its scheme is
// rewritten to the migrate driver's "pgx5://"), mirroring the teacher's
// internal/upgrade schema-check-then-migrate flow but performed eagerly
// at pgSink construction rather than surfaced as a separate `upgrade`
// CLI step — the audit log is an optional, self-contained addition, not
// part of the managed-mode upgrade path.
func runMigrations(dsn string) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("auditlog migrations: %w", err)
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, scheme) {
			dsn = "pgx5://" + strings.TrimPrefix(dsn, scheme)
			break
		}
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("auditlog migrate init: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("auditlog migrate up: %w", err)
	}
	return nil
}
