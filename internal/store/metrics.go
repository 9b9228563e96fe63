package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/setgraph/setgraph/internal/domain"
)

// PipelineMetric is one stage timing sample.
type PipelineMetric struct {
	RunID      *string       `db:"run_id"`
	Stage      string        `db:"stage"`
	DurationMS int64         `db:"duration_ms"`
	ItemsIn    int           `db:"items_in"`
	ItemsOut   int           `db:"items_out"`
	Errors     int           `db:"errors"`
	RecordedAt time.Time     `db:"recorded_at"`
}

func (db *DB) InsertPipelineMetric(m *PipelineMetric) error {
	query := `INSERT INTO pipeline_execution_metrics (run_id, stage, duration_ms, items_in, items_out, errors, recorded_at)
		VALUES (:run_id, :stage, :duration_ms, :items_in, :items_out, :errors, :recorded_at)`
	if _, err := db.NamedExec(query, m); err != nil {
		return fmt.Errorf("failed to insert pipeline metric: %w", err)
	}
	return nil
}

// QualityMetric holds the five quality pillars for one entity sample.
type QualityMetric struct {
	Entity           string    `db:"entity"`
	Freshness        float64   `db:"freshness"`
	Volume           float64   `db:"volume"`
	SchemaConformity float64   `db:"schema_conformity"`
	Distribution     float64   `db:"distribution"`
	Lineage          float64   `db:"lineage"`
	SampleSize       int       `db:"sample_size"`
	RecordedAt       time.Time `db:"recorded_at"`
}

func (db *DB) InsertQualityMetric(m *QualityMetric) error {
	query := `INSERT INTO data_quality_metrics (entity, freshness, volume, schema_conformity, distribution, lineage, sample_size, recorded_at)
		VALUES (:entity, :freshness, :volume, :schema_conformity, :distribution, :lineage, :sample_size, :recorded_at)`
	if _, err := db.NamedExec(query, m); err != nil {
		return fmt.Errorf("failed to insert quality metric: %w", err)
	}
	return nil
}

// LastQualitySampleSize returns the most recent snapshot's row count for an
// entity, zero when none exists. It is the volume-pillar baseline.
func (db *DB) LastQualitySampleSize(entity string) (int, error) {
	var n int
	err := db.Get(&n, `SELECT sample_size FROM data_quality_metrics
		WHERE entity = $1 ORDER BY recorded_at DESC LIMIT 1`, entity)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read last quality sample: %w", err)
	}
	return n, nil
}

// ExtractionLog is one fetch attempt against a source.
type ExtractionLog struct {
	RunID      *string       `db:"run_id"`
	Source     domain.Source `db:"source"`
	URL        string        `db:"url"`
	StatusCode *int          `db:"status_code"`
	DurationMS int64         `db:"duration_ms"`
	Records    int           `db:"records"`
	Error      *string       `db:"error"`
	RecordedAt time.Time     `db:"recorded_at"`
}

func (db *DB) InsertExtractionLog(l *ExtractionLog) error {
	query := `INSERT INTO source_extraction_log (run_id, source, url, status_code, duration_ms, records, error, recorded_at)
		VALUES (:run_id, :source, :url, :status_code, :duration_ms, :records, :error, :recorded_at)`
	if _, err := db.NamedExec(query, l); err != nil {
		return fmt.Errorf("failed to insert extraction log: %w", err)
	}
	return nil
}

// GraphValidation is the per-playlist edge-count check result.
type GraphValidation struct {
	PlaylistID           string    `db:"playlist_id"`
	Nodes                int       `db:"nodes"`
	Edges                int       `db:"edges"`
	ExpectedEdges        int       `db:"expected_edges"`
	SameArtistExceptions int       `db:"same_artist_exceptions"`
	Valid                bool      `db:"valid"`
	RecordedAt           time.Time `db:"recorded_at"`
}

func (db *DB) InsertGraphValidation(g *GraphValidation) error {
	query := `INSERT INTO graph_validation_results (playlist_id, nodes, edges, expected_edges, same_artist_exceptions, valid, recorded_at)
		VALUES (:playlist_id, :nodes, :edges, :expected_edges, :same_artist_exceptions, :valid, :recorded_at)`
	if _, err := db.NamedExec(query, g); err != nil {
		return fmt.Errorf("failed to insert graph validation: %w", err)
	}
	return nil
}

// Anomaly is one detected outlier.
type Anomaly struct {
	Kind       string    `db:"kind"`
	Source     *string   `db:"source"`
	Metric     string    `db:"metric"`
	Observed   float64   `db:"observed"`
	Threshold  float64   `db:"threshold"`
	Severity   string    `db:"severity"`
	Detail     *string   `db:"detail"`
	RecordedAt time.Time `db:"recorded_at"`
}

func (db *DB) InsertAnomaly(a *Anomaly) error {
	query := `INSERT INTO anomaly_detection (kind, source, metric, observed, threshold, severity, detail, recorded_at)
		VALUES (:kind, :source, :metric, :observed, :threshold, :severity, :detail, :recorded_at)`
	if _, err := db.NamedExec(query, a); err != nil {
		return fmt.Errorf("failed to insert anomaly: %w", err)
	}
	return nil
}
