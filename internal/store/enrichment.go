package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/setgraph/setgraph/internal/domain"
)

// UpsertEnrichmentStatus writes the per-track waterfall audit row.
func (db *DB) UpsertEnrichmentStatus(es *domain.EnrichmentStatus) error {
	query := `INSERT INTO enrichment_status (
		track_id, status, sources_enriched, retry_count, last_attempt,
		is_retriable, error_message, confidence_score, confidence_tier
	) VALUES (
		:track_id, :status, :sources_enriched, :retry_count, :last_attempt,
		:is_retriable, :error_message, :confidence_score, :confidence_tier
	)
	ON CONFLICT (track_id) DO UPDATE SET
		status = EXCLUDED.status,
		sources_enriched = EXCLUDED.sources_enriched,
		retry_count = EXCLUDED.retry_count,
		last_attempt = EXCLUDED.last_attempt,
		is_retriable = EXCLUDED.is_retriable,
		error_message = EXCLUDED.error_message,
		confidence_score = EXCLUDED.confidence_score,
		confidence_tier = EXCLUDED.confidence_tier`

	if _, err := db.NamedExec(query, es); err != nil {
		return fmt.Errorf("failed to upsert enrichment status: %w", err)
	}
	return nil
}

func (db *DB) GetEnrichmentStatus(trackID string) (*domain.EnrichmentStatus, error) {
	var es domain.EnrichmentStatus
	err := db.Get(&es, `SELECT * FROM enrichment_status WHERE track_id = $1`, trackID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &es, nil
}

// CountEnrichmentByStatus summarizes the waterfall backlog for /stats.
func (db *DB) CountEnrichmentByStatus() (map[domain.EnrichmentState]int, error) {
	rows, err := db.Queryx(`SELECT status, COUNT(*) AS n FROM enrichment_status GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count enrichment statuses: %w", err)
	}
	defer rows.Close() //nolint:errcheck // deferred cleanup

	out := make(map[domain.EnrichmentState]int)
	for rows.Next() {
		var st domain.EnrichmentState
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[st] = n
	}
	return out, rows.Err()
}

// RecordResolutionFeedback logs one resolver decision so tier performance can
// be audited and the label map invalidated.
func (db *DB) RecordResolutionFeedback(trackID, resolvedName, tier string, confidence float64, accepted bool) error {
	query := `INSERT INTO artist_resolution_feedback (track_id, resolved_name, tier, confidence, accepted)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := db.Exec(query, trackID, resolvedName, tier, confidence, accepted); err != nil {
		return fmt.Errorf("failed to record resolution feedback: %w", err)
	}
	return nil
}

// LabelArtistShares returns, for one label, each artist's share of the
// label's tracks. Only labels with at least two tracks produce rows.
func (db *DB) LabelArtistShares(label string) (map[string]float64, error) {
	query := `SELECT artist_name, COUNT(*) AS n
		FROM tracks
		WHERE label = $1 AND artist_name NOT IN ('', 'id', 'unknown')
		GROUP BY artist_name`

	rows, err := db.Queryx(query, label)
	if err != nil {
		return nil, fmt.Errorf("failed to compute label shares: %w", err)
	}
	defer rows.Close() //nolint:errcheck // deferred cleanup

	counts := make(map[string]int)
	total := 0
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		counts[name] = n
		total += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if total < 2 {
		return nil, nil
	}

	shares := make(map[string]float64, len(counts))
	for name, n := range counts {
		shares[name] = float64(n) / float64(total)
	}
	return shares, nil
}
