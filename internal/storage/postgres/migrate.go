package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// ErrMigrationRequired is returned when the schema is behind the embedded
// migrations. Run `paperfeeds migrate` to apply them.
var ErrMigrationRequired = errors.New("database schema is out of date: run `paperfeeds migrate`")

// Migration is one embedded schema change.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Migrations lists the embedded migrations by ascending version.
func Migrations() ([]Migration, error) {
	return loadMigrations(migrationFS, "migrations")
}

func loadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	out := make([]Migration, 0, len(entries))
	seen := make(map[int]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".sql")
		prefix, _, _ := strings.Cut(name, "_")
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migration %s: version prefix: %w", entry.Name(), err)
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("migration version %d used by %s and %s", version, other, entry.Name())
		}
		seen[version] = entry.Name()
		body, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		out = append(out, Migration{Version: version, Name: name, SQL: string(body)})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Version < out[k].Version })
	return out, nil
}

// EnsureSchema migrates an empty database to head. A database with some but
// not all migrations applied yields ErrMigrationRequired.
func (s *Store) EnsureSchema(ctx context.Context) ([]Migration, error) {
	migrations, err := Migrations()
	if err != nil {
		return nil, err
	}
	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return nil, err
	}
	if len(applied) == 0 {
		return s.apply(ctx, migrations, applied)
	}
	if len(pending(migrations, applied)) > 0 {
		return nil, ErrMigrationRequired
	}
	return nil, nil
}

// Migrate applies every pending migration and returns the ones it ran.
func (s *Store) Migrate(ctx context.Context) ([]Migration, error) {
	migrations, err := Migrations()
	if err != nil {
		return nil, err
	}
	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, migrations, applied)
}

func (s *Store) appliedVersions(ctx context.Context) (map[int]bool, error) {
	if _, err := s.pool.Exec(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	rows, err := s.pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()
	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema_migrations: %w", err)
	}
	return applied, nil
}

func (s *Store) apply(ctx context.Context, migrations []Migration, applied map[int]bool) ([]Migration, error) {
	ran := make([]Migration, 0)
	for _, m := range pending(migrations, applied) {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return ran, fmt.Errorf("begin migration %s: %w", m.Name, err)
		}
		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			rollback(ctx, tx)
			return ran, fmt.Errorf("apply migration %s: %w", m.Name, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
			m.Version, m.Name,
		); err != nil {
			rollback(ctx, tx)
			return ran, fmt.Errorf("record migration %s: %w", m.Name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return ran, fmt.Errorf("commit migration %s: %w", m.Name, err)
		}
		ran = append(ran, m)
	}
	return ran, nil
}

func pending(migrations []Migration, applied map[int]bool) []Migration {
	out := make([]Migration, 0, len(migrations))
	for _, m := range migrations {
		if !applied[m.Version] {
			out = append(out, m)
		}
	}
	return out
}
