package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS scheduled_tasks (
  id BIGINT PRIMARY KEY,
  handler_id TEXT NOT NULL,
  schedule TEXT NOT NULL DEFAULT '',
  run_at BIGINT NOT NULL DEFAULT 0,
  data TEXT NOT NULL DEFAULT '',
  owner BIGINT NOT NULL DEFAULT 0,
  object_id BIGINT NOT NULL DEFAULT 0,
  comments TEXT NOT NULL DEFAULT '',
  task_key TEXT NOT NULL DEFAULT '',
  is_system BOOLEAN NOT NULL DEFAULT FALSE,
  is_disabled BOOLEAN NOT NULL DEFAULT FALSE,
  is_completed BOOLEAN NOT NULL DEFAULT FALSE,
  last_run BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_scheduled_tasks_key ON scheduled_tasks(task_key);
`

// Postgres persists tasks in a PostgreSQL database.
type Postgres struct{ db *sql.DB }

func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (s *Postgres) LoadAll(ctx context.Context) ([]Record, error) {
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

func (s *Postgres) Insert(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO scheduled_tasks (id,handler_id,schedule,run_at,data,owner,object_id,comments,task_key,is_system,is_disabled,is_completed,last_run)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		rec.ID, rec.HandlerID, rec.Schedule, unixOrZero(rec.RunAt), rec.Data, rec.Owner,
		rec.ObjectID, rec.Comments, rec.Key, rec.System, rec.Disabled, rec.Completed, unixOrZero(rec.LastRun))
	return err
}

func (s *Postgres) Update(ctx context.Context, rec Record) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE scheduled_tasks
SET handler_id=$1,schedule=$2,run_at=$3,data=$4,owner=$5,object_id=$6,comments=$7,task_key=$8,is_system=$9,is_disabled=$10,is_completed=$11,last_run=$12
WHERE id=$13`,
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

func (s *Postgres) Delete(ctx context.Context, id uint64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_tasks WHERE id=$1`, id)
	return err
}

func (s *Postgres) Close() error { return s.db.Close() }
