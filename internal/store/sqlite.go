package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS scheduled_tasks (
  id INTEGER PRIMARY KEY,
  handler_id TEXT NOT NULL,
  schedule TEXT NOT NULL DEFAULT '',
  run_at INTEGER NOT NULL DEFAULT 0,
  data TEXT NOT NULL DEFAULT '',
  owner INTEGER NOT NULL DEFAULT 0,
  object_id INTEGER NOT NULL DEFAULT 0,
  comments TEXT NOT NULL DEFAULT '',
  task_key TEXT NOT NULL DEFAULT '',
  is_system INTEGER NOT NULL DEFAULT 0,
  is_disabled INTEGER NOT NULL DEFAULT 0,
  is_completed INTEGER NOT NULL DEFAULT 0,
  last_run INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_scheduled_tasks_key ON scheduled_tasks(task_key);
`

// SQLite is the default backend.
type SQLite struct{ db *sql.DB }

// OpenSQLite opens (and if needed creates) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // SQLite single writer
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) LoadAll(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id,handler_id,schedule,run_at,data,owner,object_id,comments,task_key,is_system,is_disabled,is_completed,last_run
FROM scheduled_tasks ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var r Record
		var runAt, lastRun int64
		if err := rows.Scan(&r.ID, &r.HandlerID, &r.Schedule, &runAt, &r.Data, &r.Owner,
			&r.ObjectID, &r.Comments, &r.Key, &r.System, &r.Disabled, &r.Completed, &lastRun); err != nil {
			return nil, err
		}
		r.RunAt = timeOrZero(runAt)
		r.LastRun = timeOrZero(lastRun)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *SQLite) Insert(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO scheduled_tasks (id,handler_id,schedule,run_at,data,owner,object_id,comments,task_key,is_system,is_disabled,is_completed,last_run)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.HandlerID, rec.Schedule, unixOrZero(rec.RunAt), rec.Data, rec.Owner,
		rec.ObjectID, rec.Comments, rec.Key, rec.System, rec.Disabled, rec.Completed, unixOrZero(rec.LastRun))
	return err
}

func (s *SQLite) Update(ctx context.Context, rec Record) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE scheduled_tasks
SET handler_id=?,schedule=?,run_at=?,data=?,owner=?,object_id=?,comments=?,task_key=?,is_system=?,is_disabled=?,is_completed=?,last_run=?
WHERE id=?`,
		rec.HandlerID, rec.Schedule, unixOrZero(rec.RunAt), rec.Data, rec.Owner,
		rec.ObjectID, rec.Comments, rec.Key, rec.System, rec.Disabled, rec.Completed, unixOrZero(rec.LastRun),
		rec.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, id uint64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_tasks WHERE id=?`, id)
	return err
}

func (s *SQLite) Close() error { return s.db.Close() }
