package store

import (
	"fmt"
	"time"

	"github.com/setgraph/setgraph/internal/domain"
)

// InsertRaw writes one bronze record. Bronze is append-only: a re-scrape of
// the same natural key is ignored, never an update of the stored payload.
func (db *DB) InsertRaw(rec *domain.RawScrape) error {
	query := `INSERT INTO raw_scrapes (
		scrape_id, source, scrape_type, natural_key, raw_data, scraped_at, processed
	) VALUES (
		:scrape_id, :source, :scrape_type, :natural_key, :raw_data, :scraped_at, FALSE
	)
	ON CONFLICT (source, scrape_type, natural_key) DO NOTHING`

	if _, err := db.NamedExec(query, rec); err != nil {
		return fmt.Errorf("failed to insert raw scrape: %w", err)
	}
	return nil
}

func (db *DB) InsertRawBatch(recs []domain.RawScrape) error {
	for i := range recs {
		if err := db.InsertRaw(&recs[i]); err != nil {
			return err
		}
	}
	return nil
}

// ListUnprocessed returns pending bronze records of one type, oldest first,
// so the transformer processes them in scrape order.
func (db *DB) ListUnprocessed(scrapeType domain.ScrapeType, limit int) ([]*domain.RawScrape, error) {
	query := `SELECT * FROM raw_scrapes
		WHERE NOT processed AND scrape_type = $1
		ORDER BY scraped_at ASC
		LIMIT $2`

	var recs []*domain.RawScrape
	if err := db.Select(&recs, query, scrapeType, limit); err != nil {
		return nil, fmt.Errorf("failed to list unprocessed scrapes: %w", err)
	}
	return recs, nil
}

func (db *DB) MarkProcessed(scrapeID string) error {
	query := `UPDATE raw_scrapes SET processed = TRUE, processed_at = $1 WHERE scrape_id = $2`
	result, err := db.Exec(query, time.Now(), scrapeID)
	if err != nil {
		return fmt.Errorf("failed to mark scrape processed: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("scrape %s not found", scrapeID)
	}
	return nil
}

// ResetProcessed marks every bronze record unprocessed so the next transform
// pass rebuilds silver from scratch.
func (db *DB) ResetProcessed() error {
	if _, err := db.Exec(`UPDATE raw_scrapes SET processed = FALSE, processed_at = NULL`); err != nil {
		return fmt.Errorf("failed to reset processed flags: %w", err)
	}
	return nil
}

func (db *DB) GetRaw(scrapeID string) (*domain.RawScrape, error) {
	var rec domain.RawScrape
	if err := db.Get(&rec, `SELECT * FROM raw_scrapes WHERE scrape_id = $1`, scrapeID); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (db *DB) CountUnprocessed() (map[domain.ScrapeType]int, error) {
	query := `SELECT scrape_type, COUNT(*) AS n FROM raw_scrapes WHERE NOT processed GROUP BY scrape_type`
	rows, err := db.Queryx(query)
	if err != nil {
		return nil, fmt.Errorf("failed to count unprocessed scrapes: %w", err)
	}
	defer rows.Close() //nolint:errcheck // deferred cleanup

	out := make(map[domain.ScrapeType]int)
	for rows.Next() {
		var st domain.ScrapeType
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[st] = n
	}
	return out, rows.Err()
}
