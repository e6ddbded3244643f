// Package tasklog keeps a SQLite history of settled tasks. It is a log for
// inspection only; queued tasks are never restored from it.
package tasklog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mattjoyce/lanes/internal/queue"
)

// DefaultLimit bounds List when the caller passes no limit.
const DefaultLimit = 100

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Entry is one row of task_log.
type Entry struct {
	Ref        string       `json:"ref"`
	TaskID     int64        `json:"task_id"`
	Owner      string       `json:"owner"`
	Queue      string       `json:"queue"`
	Status     queue.Status `json:"status"`
	Attempts   int          `json:"attempts"`
	Reason     string       `json:"reason,omitempty"`
	Result     string       `json:"result,omitempty"`
	LastError  string       `json:"last_error,omitempty"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
	SettledAt  time.Time    `json:"settled_at"`
}

// Store reads and writes task_log.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert appends a settled task. A ref that is already logged is replaced.
func (s *Store) Insert(ctx context.Context, rec queue.TaskRecord) error {
	if rec.Ref == "" {
		return fmt.Errorf("task ref is empty")
	}
	if !rec.Status.Settled() {
		return fmt.Errorf("invalid terminal status: %q", rec.Status)
	}

	_, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO task_log(
  ref, task_id, owner, queue, status, attempts, reason, result, last_error, enqueued_at, settled_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, rec.Ref, rec.TaskID, rec.Owner, rec.Queue, string(rec.Status), rec.Attempts,
		nullable(rec.Reason), nullable(rec.Result), nullable(rec.Error),
		rec.EnqueuedAt.UTC().Format(timeLayout), rec.SettledAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert task_log: %w", err)
	}
	return nil
}

// List returns the newest entries for (owner, queue), newest first. Empty
// owner and queue list across every queue.
func (s *Store) List(ctx context.Context, owner, queueID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT ref, task_id, owner, queue, status, attempts, reason, result, last_error, enqueued_at, settled_at
FROM task_log
WHERE (? = '' OR owner = ?) AND (? = '' OR queue = ?)
ORDER BY settled_at DESC, task_id DESC
LIMIT ?;
`, owner, owner, queueID, queueID, limit)
	if err != nil {
		return nil, fmt.Errorf("query task_log: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                    Entry
			status               string
			reason, result, lerr sql.NullString
			enqueuedAt, settled  string
		)
		if err := rows.Scan(&e.Ref, &e.TaskID, &e.Owner, &e.Queue, &status, &e.Attempts,
			&reason, &result, &lerr, &enqueuedAt, &settled); err != nil {
			return nil, fmt.Errorf("scan task_log: %w", err)
		}
		e.Status = queue.Status(status)
		e.Reason, e.Result, e.LastError = reason.String, result.String, lerr.String
		if e.EnqueuedAt, err = time.Parse(timeLayout, enqueuedAt); err != nil {
			return nil, fmt.Errorf("parse enqueued_at: %w", err)
		}
		if e.SettledAt, err = time.Parse(timeLayout, settled); err != nil {
			return nil, fmt.Errorf("parse settled_at: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task_log: %w", err)
	}
	return out, nil
}

// Prune deletes entries settled before cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM task_log WHERE settled_at < ?;`,
		cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune task_log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune task_log: %w", err)
	}
	return n, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
