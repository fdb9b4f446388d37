/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	applog "formcanvas/internal/log"

	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultHistoryLimit is how many replaced values kv_history keeps per key.
const DefaultHistoryLimit = 10

// PostgresKV stores entries in a PostgreSQL table through the pgx database/sql driver.
// Replaced and deleted values are copied to kv_history, pruned to HistoryLimit rows per key.
type PostgresKV struct {
	db *sql.DB

	HistoryLimit int
}

// OpenPostgresKV connects, pings and applies the embedded migrations.
func OpenPostgresKV(ctx context.Context, dsn string) (*PostgresKV, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &PostgresKV{db: db, HistoryLimit: DefaultHistoryLimit}, nil
}

// applyMigrations applies embedded SQL migrations in filename order.
func applyMigrations(ctx context.Context, db *sql.DB) error {
	l := applog.WithOperation(applog.WithComponent("storage"), "pg_migrate")
	files, err := migrationFiles()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied := map[int64]bool{}
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("select schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, fname := range files {
		version, err := parseVersion(fname)
		if err != nil {
			return err
		}
		if applied[version] {
			continue
		}
		b, err := migrationsFS.ReadFile(path.Join("migrations", fname))
		if err != nil {
			return err
		}
		l.Info("applying migration", slog.String("file", fname))
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin %s: %w", fname, err)
		}
		if strings.TrimSpace(string(b)) != "" {
			if _, err := tx.ExecContext(ctx, string(b)); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("apply %s: %w", fname, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, name) VALUES($1, $2)`, version, fname); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", fname, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", fname, err)
		}
	}
	return nil
}

func migrationFiles() ([]string, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func parseVersion(name string) (int64, error) {
	base := path.Base(name)
	parts := strings.SplitN(base, "_", 2)
	if len(parts) < 2 {
		return 0, errors.New("invalid migration filename: " + name)
	}
	v, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return v, nil
}

func (p *PostgresKV) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := p.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = $1`, key).Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("postgres get %s: %w", key, err)
	}
	return v, true, nil
}

func (p *PostgresKV) Put(ctx context.Context, entries map[string]string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres begin: %w", err)
	}
	for k, v := range entries {
		if err := p.archive(ctx, tx, k); err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO kv(key, value, updated_at) VALUES($1, $2, now())
			 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, k, v); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("postgres put %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres commit: %w", err)
	}
	return nil
}

func (p *PostgresKV) Delete(ctx context.Context, keys ...string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres begin: %w", err)
	}
	for _, k := range keys {
		if err := p.archive(ctx, tx, k); err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = $1`, k); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("postgres delete %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres commit: %w", err)
	}
	return nil
}

// archive copies the current value of key to kv_history and drops the oldest
// rows beyond the history limit. A limit <= 0 keeps no history.
func (p *PostgresKV) archive(ctx context.Context, tx *sql.Tx, key string) error {
	limit := p.HistoryLimit
	if limit > 0 {
		if _, err := tx.ExecContext(ctx, `INSERT INTO kv_history(key, value) SELECT key, value FROM kv WHERE key = $1`, key); err != nil {
			return fmt.Errorf("postgres history %s: %w", key, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM kv_history WHERE key = $1 AND id NOT IN (
			SELECT id FROM kv_history WHERE key = $1 ORDER BY id DESC LIMIT $2)`, key, max(limit, 0)); err != nil {
		return fmt.Errorf("postgres prune history %s: %w", key, err)
	}
	return nil
}

// HistoryLen reports how many replaced values are kept for key.
func (p *PostgresKV) HistoryLen(ctx context.Context, key string) (int, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM kv_history WHERE key = $1`, key).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres history count %s: %w", key, err)
	}
	return n, nil
}

// Ping checks connectivity; used by readiness probes.
func (p *PostgresKV) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *PostgresKV) Close() error { return p.db.Close() }
