package fanout

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// MigrationFiles contains the SQL migrations for the notification center
// tables, one directory per dialect (mysql, postgres, sqlite).
// Users can hand these to their preferred migration tool (goose, golang-migrate, atlas, etc.)
//
// Example with goose:
//
//	sub, _ := fanout.MigrationsFS("mysql")
//	goose.SetBaseFS(sub)
//	if err := goose.Up(db, "."); err != nil {
//	    log.Fatal(err)
//	}
//
//go:embed migrations
var MigrationFiles embed.FS

// migrationDirs maps database/sql driver names to migration directories.
var migrationDirs = map[string]string{
	"mysql":    "migrations/mysql",
	"postgres": "migrations/postgres",
	"sqlite3":  "migrations/sqlite",
}

// MigrationsFS returns the migration files for a database/sql driver name.
func MigrationsFS(driver string) (fs.FS, error) {
	dir, ok := migrationDirs[driver]
	if !ok {
		return nil, NewError(ErrCodeConfiguration, fmt.Sprintf("unsupported database driver: %s", driver))
	}
	return fs.Sub(MigrationFiles, dir)
}

// ApplyMigrations runs every migration for the driver in file name order.
// All statements use IF NOT EXISTS, so applying twice is harmless.
func ApplyMigrations(ctx context.Context, db *sql.DB, driver string) error {
	fsys, err := MigrationsFS(driver)
	if err != nil {
		return err
	}

	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return NewErrorWithCause(ErrCodeConfiguration, "failed to list migrations", err)
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return NewErrorWithCause(ErrCodeConfiguration, fmt.Sprintf("failed to read migration %s", name), err)
		}
		for _, stmt := range splitStatements(string(data)) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return NewErrorWithCause(ErrCodeDatabase, fmt.Sprintf("migration %s failed", name), err)
			}
		}
	}

	return nil
}

// splitStatements splits a migration on semicolons that end a line.
// The mysql driver rejects multi-statement Exec unless multiStatements is set.
func splitStatements(script string) []string {
	var stmts []string
	for _, part := range strings.Split(script, ";\n") {
		stmt := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), ";"))
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}
