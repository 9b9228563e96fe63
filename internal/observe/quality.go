package observe

import (
	"fmt"
	"time"

	"github.com/setgraph/setgraph/internal/logger"
	"github.com/setgraph/setgraph/internal/store"
)

const (
	schemaConformityWarnBelow     = 0.95
	schemaConformityCriticalBelow = 0.80

	volumeClampMin = 0.5
	volumeClampMax = 1.5
)

// QualityChecker computes the five quality pillars over silver entities and
// persists a snapshot row per run.
type QualityChecker struct {
	db       *store.DB
	detector *Detector
	log      *logger.Logger
}

func NewQualityChecker(db *store.DB, detector *Detector, log *logger.Logger) *QualityChecker {
	return &QualityChecker{
		db:       db,
		detector: detector,
		log:      log.WithComponent("quality"),
	}
}

// SnapshotTracks samples the tracks table:
//   - freshness: mean recency with linear decay over 24 hours
//   - volume: row count against the previous snapshot, clamped to [0.5, 1.5]
//   - schema conformity: 1 minus the share of rows failing range and format checks
//   - distribution: artist diversity, unique artists over row count
//   - lineage: share of rows carrying their bronze back-reference
//
// Schema conformity below its thresholds raises an anomaly.
func (q *QualityChecker) SnapshotTracks() (*store.QualityMetric, error) {
	var total int
	if err := q.db.Get(&total, `SELECT COUNT(*) FROM tracks`); err != nil {
		return nil, fmt.Errorf("failed to count tracks: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	metric := &store.QualityMetric{
		Entity:     "tracks",
		SampleSize: total,
		RecordedAt: time.Now(),
	}

	if err := q.db.Get(&metric.Freshness,
		`SELECT COALESCE(AVG(GREATEST(0, 1 - EXTRACT(EPOCH FROM (now() - updated_at)) / 86400.0)), 0)
		FROM tracks`); err != nil {
		return nil, fmt.Errorf("failed to compute freshness: %w", err)
	}

	prior, err := q.db.LastQualitySampleSize("tracks")
	if err != nil {
		return nil, err
	}
	metric.Volume = volumeRatio(total, prior)

	var violations int
	if err := q.db.Get(&violations, `SELECT COUNT(*) FROM tracks
		WHERE (bpm IS NOT NULL AND (bpm < 60 OR bpm > 200))
			OR (camelot_key IS NOT NULL AND camelot_key !~ '^(1[0-2]|[1-9])[AB]$')
			OR (duration_ms IS NOT NULL AND duration_ms <= 0)
			OR (isrc IS NOT NULL AND isrc !~ '^[A-Z]{2}[A-Z0-9]{3}[0-9]{7}$')`); err != nil {
		return nil, fmt.Errorf("failed to compute schema conformity: %w", err)
	}
	metric.SchemaConformity = 1 - float64(violations)/float64(total)

	var uniqueArtists int
	if err := q.db.Get(&uniqueArtists,
		`SELECT COUNT(DISTINCT lower(artist_name)) FROM tracks`); err != nil {
		return nil, fmt.Errorf("failed to compute distribution: %w", err)
	}
	metric.Distribution = float64(uniqueArtists) / float64(total)

	var withLineage int
	if err := q.db.Get(&withLineage,
		`SELECT COUNT(*) FROM tracks WHERE bronze_id IS NOT NULL`); err != nil {
		return nil, fmt.Errorf("failed to compute lineage: %w", err)
	}
	metric.Lineage = float64(withLineage) / float64(total)

	if err := q.db.InsertQualityMetric(metric); err != nil {
		return nil, err
	}

	if q.detector != nil {
		switch {
		case metric.SchemaConformity < schemaConformityCriticalBelow:
			q.detector.Raise("data_quality", nil, "tracks.schema_conformity",
				metric.SchemaConformity, schemaConformityCriticalBelow, SeverityCritical,
				fmt.Sprintf("%d of %d rows fail range or format checks", violations, total))
		case metric.SchemaConformity < schemaConformityWarnBelow:
			q.detector.Raise("data_quality", nil, "tracks.schema_conformity",
				metric.SchemaConformity, schemaConformityWarnBelow, SeverityWarning,
				fmt.Sprintf("%d of %d rows fail range or format checks", violations, total))
		}
	}

	q.log.Info("quality snapshot",
		"entity", metric.Entity,
		"freshness", metric.Freshness,
		"volume", metric.Volume,
		"schema_conformity", metric.SchemaConformity,
		"distribution", metric.Distribution,
		"lineage", metric.Lineage,
		"sample_size", metric.SampleSize,
	)
	return metric, nil
}

// volumeRatio compares the current row count with the previous snapshot's,
// clamped to [0.5, 1.5]. A first snapshot has no baseline and reads as 1.0.
func volumeRatio(total, prior int) float64 {
	if prior <= 0 {
		return 1.0
	}
	ratio := float64(total) / float64(prior)
	if ratio < volumeClampMin {
		return volumeClampMin
	}
	if ratio > volumeClampMax {
		return volumeClampMax
	}
	return ratio
}
