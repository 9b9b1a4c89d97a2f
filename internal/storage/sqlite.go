package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite"

	"remindbot/internal/remind"
	logx "remindbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// loadMap reads an owner's timer map. A missing row is an empty map.
func (s *sqliteStore) loadMap(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, owner int64) (map[string]remind.Record, error) {
	var blob string
	err := q.QueryRowContext(ctx, `SELECT timers FROM reminders WHERE owner = ?`, owner).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]remind.Record{}, nil
	}
	if err != nil {
		return nil, err
	}
	m := map[string]remind.Record{}
	if err := json.Unmarshal([]byte(blob), &m); err != nil {
		return nil, fmt.Errorf("decode timers for owner %d: %w", owner, err)
	}
	return m, nil
}

func (s *sqliteStore) saveMap(ctx context.Context, tx *sql.Tx, owner int64, m map[string]remind.Record) error {
	if len(m) == 0 {
		_, err := tx.ExecContext(ctx, `DELETE FROM reminders WHERE owner = ?`, owner)
		return err
	}
	blob, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO reminders(owner, timers) VALUES(?,?)
		 ON CONFLICT(owner) DO UPDATE SET timers=excluded.timers`,
		owner, string(blob),
	)
	return err
}

func (s *sqliteStore) Get(ctx context.Context, owner int64, id string) (remind.Record, bool, error) {
	if s == nil || s.db == nil {
		return remind.Record{}, false, ErrClosed
	}
	m, err := s.loadMap(ctx, s.db, owner)
	if err != nil {
		return remind.Record{}, false, err
	}
	rec, ok := m[id]
	return rec, ok, nil
}

func (s *sqliteStore) Upsert(ctx context.Context, owner int64, rec remind.Record) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	m, err := s.loadMap(ctx, tx, owner)
	if err != nil {
		return err
	}
	m[rec.ID] = rec
	if err := s.saveMap(ctx, tx, owner, m); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) Remove(ctx context.Context, owner int64, id string) (remind.Record, bool, error) {
	if s == nil || s.db == nil {
		return remind.Record{}, false, ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return remind.Record{}, false, err
	}
	defer tx.Rollback()

	m, err := s.loadMap(ctx, tx, owner)
	if err != nil {
		return remind.Record{}, false, err
	}
	rec, ok := m[id]
	if !ok {
		return remind.Record{}, false, nil
	}
	delete(m, id)
	if err := s.saveMap(ctx, tx, owner, m); err != nil {
		return remind.Record{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return remind.Record{}, false, err
	}
	return rec, true, nil
}

func (s *sqliteStore) List(ctx context.Context, owner int64) ([]remind.Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	m, err := s.loadMap(ctx, s.db, owner)
	if err != nil {
		return nil, err
	}
	recs := make([]remind.Record, 0, len(m))
	for _, rec := range m {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	return recs, nil
}

func (s *sqliteStore) ListOwners(ctx context.Context) ([]int64, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `SELECT owner FROM reminders WHERE timers != '{}'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []int64
	for rows.Next() {
		var owner int64
		if err := rows.Scan(&owner); err != nil {
			return nil, err
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}
