package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/setgraph/setgraph/internal/domain"
)

// QueueDB is the local sqlite database backing the durable task queue and
// the HTTP response cache. It is deliberately separate from the warehouse so
// workers keep draining even when Postgres is down.
type QueueDB struct {
	*sqlx.DB
}

const queueSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	task_id      TEXT PRIMARY KEY,
	type         TEXT NOT NULL,
	track_id     TEXT NOT NULL,
	priority     INTEGER NOT NULL DEFAULT 5,
	status       TEXT NOT NULL DEFAULT 'queued',
	attempts     INTEGER NOT NULL DEFAULT 0,
	not_before   TIMESTAMP,
	last_error   TEXT,
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL,
	completed_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_tasks_claim ON tasks (status, priority DESC, created_at ASC);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_dedupe ON tasks (type, track_id)
	WHERE status IN ('queued', 'running');

CREATE TABLE IF NOT EXISTS response_cache (
	key        TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	expires_at TIMESTAMP
);
`

func NewQueueDB(dsn string) (*QueueDB, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue db: %w", err)
	}

	// Set pragmas for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping queue db: %w", err)
	}

	if _, err := db.Exec(queueSchema); err != nil {
		return nil, fmt.Errorf("failed to apply queue schema: %w", err)
	}

	return &QueueDB{db}, nil
}

func (db *QueueDB) Close() error {
	return db.DB.Close()
}

// EnqueueTask inserts a task unless an identical pending or running one
// already exists.
func (db *QueueDB) EnqueueTask(task *domain.Task) error {
	query := `INSERT OR IGNORE INTO tasks (
		task_id, type, track_id, priority, status, attempts, not_before, created_at, updated_at
	) VALUES (
		:task_id, :type, :track_id, :priority, :status, :attempts, :not_before, :created_at, :updated_at
	)`
	if _, err := db.NamedExec(query, task); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// ClaimNextTask atomically moves the highest-priority eligible task to
// running and returns it. Returns nil when the queue is drained.
func (db *QueueDB) ClaimNextTask() (*domain.Task, error) {
	tx, err := db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var task domain.Task
	query := `SELECT * FROM tasks
		WHERE status = 'queued' AND (not_before IS NULL OR not_before <= ?)
		ORDER BY priority DESC, created_at ASC
		LIMIT 1`
	err = tx.Get(&task, query, time.Now())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select task: %w", err)
	}

	now := time.Now()
	if _, err := tx.Exec(
		`UPDATE tasks SET status = 'running', attempts = attempts + 1, updated_at = ? WHERE task_id = ?`,
		now, task.TaskID); err != nil {
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	task.Status = domain.TaskStatusRunning
	task.Attempts++
	task.UpdatedAt = now
	return &task, nil
}

func (db *QueueDB) CompleteTask(taskID string) error {
	now := time.Now()
	query := `UPDATE tasks SET status = 'completed', completed_at = ?, updated_at = ? WHERE task_id = ?`
	if _, err := db.Exec(query, now, now, taskID); err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}
	return nil
}

// FailTask records a failure. Retriable failures are requeued with a delay;
// terminal failures and exhausted retries go to the dead state.
func (db *QueueDB) FailTask(taskID, errMsg string, retryIn time.Duration, maxAttempts int) error {
	var task domain.Task
	if err := db.Get(&task, `SELECT * FROM tasks WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("failed to load task: %w", err)
	}

	now := time.Now()
	status := domain.TaskStatusQueued
	var notBefore *time.Time
	if retryIn < 0 || task.Attempts >= maxAttempts {
		status = domain.TaskStatusDead
	} else {
		t := now.Add(retryIn)
		notBefore = &t
	}

	query := `UPDATE tasks SET status = ?, not_before = ?, last_error = ?, updated_at = ? WHERE task_id = ?`
	if _, err := db.Exec(query, status, notBefore, errMsg, now, taskID); err != nil {
		return fmt.Errorf("failed to fail task: %w", err)
	}
	return nil
}

// ResetStuckTasks requeues tasks left running by a previous process.
func (db *QueueDB) ResetStuckTasks() error {
	query := `UPDATE tasks SET status = 'queued', updated_at = ? WHERE status = 'running'`
	if _, err := db.Exec(query, time.Now()); err != nil {
		return fmt.Errorf("failed to reset stuck tasks: %w", err)
	}
	return nil
}

type TaskStats struct {
	Queued    int `db:"queued"`
	Running   int `db:"running"`
	Completed int `db:"completed"`
	Dead      int `db:"dead"`
}

func (db *QueueDB) GetTaskStats() (*TaskStats, error) {
	query := `SELECT
		COALESCE(SUM(CASE WHEN status = 'queued' THEN 1 ELSE 0 END), 0) AS queued,
		COALESCE(SUM(CASE WHEN status = 'running' THEN 1 ELSE 0 END), 0) AS running,
		COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0) AS completed,
		COALESCE(SUM(CASE WHEN status = 'dead' THEN 1 ELSE 0 END), 0) AS dead
	FROM tasks`

	var stats TaskStats
	if err := db.Get(&stats, query); err != nil {
		return nil, fmt.Errorf("failed to get task stats: %w", err)
	}
	return &stats, nil
}

func (db *QueueDB) GetCache(key string) ([]byte, error) {
	type cacheRow struct {
		ExpiresAt sql.NullTime `db:"expires_at"`
		Data      []byte       `db:"data"`
	}

	var row cacheRow
	err := db.Get(&row, "SELECT data, expires_at FROM response_cache WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if row.ExpiresAt.Valid && time.Now().After(row.ExpiresAt.Time) {
		_, _ = db.Exec("DELETE FROM response_cache WHERE key = ?", key)
		return nil, nil
	}

	return row.Data, nil
}

func (db *QueueDB) SetCache(key string, data []byte, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}

	_, err := db.Exec(`
		INSERT INTO response_cache (key, data, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at
	`, key, data, expiresAt)
	return err
}

func (db *QueueDB) ClearCache() error {
	_, err := db.Exec("DELETE FROM response_cache")
	return err
}
