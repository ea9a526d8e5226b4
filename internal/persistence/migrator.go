package persistence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Migration is one numbered schema step, read from
// {version}_{name}.up.sql and its matching .down.sql.
type Migration struct {
	Version string
	Name    string
	Applied bool
}

func (m Migration) upFile() string   { return m.Version + "_" + m.Name + ".up.sql" }
func (m Migration) downFile() string { return m.Version + "_" + m.Name + ".down.sql" }

// Migrator applies the audit schema. Files are kept to SQL that both
// Postgres and SQLite accept.
type Migrator struct {
	db  *DB
	dir string
}

func NewMigrator(db *DB, migrationsDir string) *Migrator {
	return &Migrator{db: db, dir: migrationsDir}
}

// Status lists every migration on disk in version order, marking the applied ones.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations: %w", err)
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	all, err := m.scan()
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", m.dir, err)
	}
	for i := range all {
		all[i].Applied = applied[all[i].Version]
	}
	return all, nil
}

// Up applies every pending migration and returns how many ran.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	all, err := m.Status(ctx)
	if err != nil {
		return 0, err
	}

	ran := 0
	for _, mig := range all {
		if mig.Applied {
			continue
		}
		record := m.db.Rebind(`INSERT INTO schema_migrations (version, filename) VALUES ($1, $2)`)
		if err := m.exec(ctx, mig.upFile(), record, mig.Version, mig.upFile()); err != nil {
			return ran, err
		}
		log.Printf("INFO: applied migration %s", mig.upFile())
		ran++
	}
	return ran, nil
}

// Down reverts the newest applied migration. It is a no-op on an empty schema.
func (m *Migrator) Down(ctx context.Context) error {
	all, err := m.Status(ctx)
	if err != nil {
		return err
	}

	var last *Migration
	for i := range all {
		if all[i].Applied {
			last = &all[i]
		}
	}
	if last == nil {
		log.Println("INFO: no migrations to roll back")
		return nil
	}

	forget := m.db.Rebind(`DELETE FROM schema_migrations WHERE version = $1`)
	if err := m.exec(ctx, last.downFile(), forget, last.Version); err != nil {
		return err
	}
	log.Printf("INFO: rolled back migration %s", last.downFile())
	return nil
}

// exec runs a migration file and its bookkeeping statement in one transaction.
func (m *Migrator) exec(ctx context.Context, file, bookkeeping string, args ...any) error {
	body, err := os.ReadFile(filepath.Join(m.dir, file))
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", file, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return fmt.Errorf("exec %s: %w", file, err)
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, args...); err != nil {
		return fmt.Errorf("record %s: %w", file, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", file, err)
	}
	return nil
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			filename   TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (m *Migrator) applied(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out[v] = true
	}
	return out, rows.Err()
}

// scan reads the up files in the directory. A name without a version
// prefix is rejected rather than silently ordered.
func (m *Migrator) scan() ([]Migration, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, err
	}

	var out []Migration
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		version, rest, ok := strings.Cut(strings.TrimSuffix(name, ".up.sql"), "_")
		if !ok || version == "" {
			return nil, errors.New("migration without version prefix: " + name)
		}
		out = append(out, Migration{Version: version, Name: rest})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

