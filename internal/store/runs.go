package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/setgraph/setgraph/internal/domain"
)

func (db *DB) StartRun(run *domain.ScrapeRun) error {
	query := `INSERT INTO scraping_runs (run_id, source, started_at, status)
		VALUES (:run_id, :source, :started_at, :status)`
	if _, err := db.NamedExec(query, run); err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

func (db *DB) FinishRun(run *domain.ScrapeRun) error {
	query := `UPDATE scraping_runs SET
		finished_at = :finished_at, status = :status,
		playlists_found = :playlists_found, tracks_added = :tracks_added,
		artists_added = :artists_added, errors_count = :errors_count
	WHERE run_id = :run_id`

	result, err := db.NamedExec(query, run)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("run %s not found", run.RunID)
	}
	return nil
}

func (db *DB) ListRecentRuns(source domain.Source, limit int) ([]*domain.ScrapeRun, error) {
	query := `SELECT * FROM scraping_runs WHERE source = $1 ORDER BY started_at DESC LIMIT $2`
	var runs []*domain.ScrapeRun
	if err := db.Select(&runs, query, source, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// ScraperState is the persisted scheduling state of one source.
type ScraperState struct {
	Source             domain.Source `db:"source"`
	LastRunAt          *time.Time    `db:"last_run_at"`
	CurrentIntervalSec int           `db:"current_interval_sec"`
	RateLimitHits      int           `db:"rate_limit_hits"`
	UpdatedAt          time.Time     `db:"updated_at"`
}

func (db *DB) GetScraperState(source domain.Source) (*ScraperState, error) {
	var st ScraperState
	err := db.Get(&st, `SELECT * FROM scraper_state WHERE source = $1`, source)
	if errors.Is(err, sql.ErrNoRows) {
		return &ScraperState{Source: source}, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (db *DB) SaveScraperState(st *ScraperState) error {
	st.UpdatedAt = time.Now()
	query := `INSERT INTO scraper_state (
		source, last_run_at, current_interval_sec, rate_limit_hits, updated_at
	) VALUES (
		:source, :last_run_at, :current_interval_sec, :rate_limit_hits, :updated_at
	)
	ON CONFLICT (source) DO UPDATE SET
		last_run_at = EXCLUDED.last_run_at,
		current_interval_sec = EXCLUDED.current_interval_sec,
		rate_limit_hits = EXCLUDED.rate_limit_hits,
		updated_at = EXCLUDED.updated_at`
	if _, err := db.NamedExec(query, st); err != nil {
		return fmt.Errorf("failed to save scraper state: %w", err)
	}
	return nil
}
