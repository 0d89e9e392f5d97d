package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStorage keeps the targets in a SQLite database. Every Save rewrites
// all rows in a single transaction.
type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	existed := false
	if info, err := os.Stat(dbPath); err == nil && info.Size() > 0 {
		existed = true
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// PRAGMAs are per connection; one connection keeps them in effect.
	db.SetMaxOpenConns(1)

	s := &SQLiteStorage{db: db}
	if err := s.init(); err != nil {
		db.Close()
		if existed {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptStore, dbPath, err)
		}
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStorage) init() error {
	if _, err := s.db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := s.db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := s.db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := s.Migrate(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS targets (
			id TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			url TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL,
			last_http_code INTEGER,
			last_latency_ms INTEGER,
			created_at INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS check_records (
			target_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			checked_at INTEGER NOT NULL,
			status TEXT NOT NULL,
			http_code INTEGER,
			latency_ms INTEGER,
			error_message TEXT,
			PRIMARY KEY (target_id, seq),
			FOREIGN KEY (target_id) REFERENCES targets(id) ON DELETE CASCADE
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) Load(ctx context.Context) ([]Target, error) {
	targets, err := s.loadTargets(ctx)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(targets))
	for i := range targets {
		index[targets[i].ID] = i
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT target_id, checked_at, status, http_code, latency_ms, error_message
		FROM check_records ORDER BY target_id, seq
	`)
	if err != nil {
		return nil, fmt.Errorf("querying check records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var targetID, status string
		var checkedAt int64
		var code, latency sql.NullInt64
		var errMsg sql.NullString

		if err := rows.Scan(&targetID, &checkedAt, &status, &code, &latency, &errMsg); err != nil {
			return nil, fmt.Errorf("%w: scanning check record: %v", ErrCorruptStore, err)
		}

		i, ok := index[targetID]
		if !ok {
			return nil, fmt.Errorf("%w: check record for unknown target %s", ErrCorruptStore, targetID)
		}

		rec := CheckRecord{
			CheckedAt: time.Unix(0, checkedAt).UTC(),
			Status:    Status(status),
		}
		if code.Valid {
			v := int(code.Int64)
			rec.HTTPCode = &v
		}
		if latency.Valid {
			v := latency.Int64
			rec.LatencyMs = &v
		}
		if errMsg.Valid {
			v := errMsg.String
			rec.Error = &v
		}
		targets[i].History.Push(rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating check records: %w", err)
	}

	if err := validate(targets); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	return targets, nil
}

func (s *SQLiteStorage) loadTargets(ctx context.Context) ([]Target, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, status, last_http_code, last_latency_ms, created_at
		FROM targets ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("querying targets: %w", err)
	}
	defer rows.Close()

	targets := []Target{}
	for rows.Next() {
		var t Target
		var status string
		var code, latency, createdAt sql.NullInt64

		if err := rows.Scan(&t.ID, &t.URL, &status, &code, &latency, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: scanning target: %v", ErrCorruptStore, err)
		}

		t.Status = Status(status)
		if createdAt.Valid {
			t.CreatedAt = time.Unix(0, createdAt.Int64).UTC()
		}
		if code.Valid {
			v := int(code.Int64)
			t.LastHTTPCode = &v
		}
		if latency.Valid {
			v := latency.Int64
			t.LastLatencyMs = &v
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating targets: %w", err)
	}

	return targets, nil
}

func (s *SQLiteStorage) Save(ctx context.Context, targets []Target) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", ErrPersistenceWrite, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM check_records"); err != nil {
		return fmt.Errorf("%w: clearing check records: %v", ErrPersistenceWrite, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM targets"); err != nil {
		return fmt.Errorf("%w: clearing targets: %v", ErrPersistenceWrite, err)
	}

	insertTarget, err := tx.PrepareContext(ctx, `
		INSERT INTO targets (id, position, url, status, last_http_code, last_latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("%w: preparing target insert: %v", ErrPersistenceWrite, err)
	}
	defer insertTarget.Close()

	insertRecord, err := tx.PrepareContext(ctx, `
		INSERT INTO check_records (target_id, seq, checked_at, status, http_code, latency_ms, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("%w: preparing record insert: %v", ErrPersistenceWrite, err)
	}
	defer insertRecord.Close()

	for pos := range targets {
		t := &targets[pos]
		_, err := insertTarget.ExecContext(ctx,
			t.ID, pos, t.URL, string(t.Status),
			nullInt(t.LastHTTPCode), nullInt64(t.LastLatencyMs), nullTime(t.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("%w: inserting target %s: %v", ErrPersistenceWrite, t.ID, err)
		}

		for seq := 0; seq < t.History.Len(); seq++ {
			rec := t.History.At(seq)
			var errMsg sql.NullString
			if rec.Error != nil {
				errMsg = sql.NullString{String: *rec.Error, Valid: true}
			}
			_, err := insertRecord.ExecContext(ctx,
				t.ID, seq, rec.CheckedAt.UnixNano(), string(rec.Status),
				nullInt(rec.HTTPCode), nullInt64(rec.LatencyMs), errMsg,
			)
			if err != nil {
				return fmt.Errorf("%w: inserting record for %s: %v", ErrPersistenceWrite, t.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing: %v", ErrPersistenceWrite, err)
	}
	return nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

// nullTime stores the zero time as NULL; UnixNano is undefined for it.
func nullTime(v time.Time) sql.NullInt64 {
	if v.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v.UnixNano(), Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
