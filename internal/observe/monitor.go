// Package observe records pipeline health: stage timings, per-fetch
// extraction logs, data-quality snapshots, graph validation, and anomaly
// detection. Everything lands in the audit tables so history survives
// restarts.
package observe

import (
	"time"

	"github.com/setgraph/setgraph/internal/domain"
	"github.com/setgraph/setgraph/internal/logger"
	"github.com/setgraph/setgraph/internal/store"
)

// Monitor is the write path for stage and extraction telemetry. Recording is
// best-effort: a failed insert is logged, never propagated, so observability
// trouble cannot stall the pipeline.
type Monitor struct {
	db  *store.DB
	log *logger.Logger
}

func NewMonitor(db *store.DB, log *logger.Logger) *Monitor {
	return &Monitor{
		db:  db,
		log: log.WithComponent("observe"),
	}
}

// RecordStage logs one pipeline stage execution.
func (m *Monitor) RecordStage(runID *string, stage string, start time.Time, itemsIn, itemsOut, errs int) {
	metric := &store.PipelineMetric{
		RunID:      runID,
		Stage:      stage,
		DurationMS: time.Since(start).Milliseconds(),
		ItemsIn:    itemsIn,
		ItemsOut:   itemsOut,
		Errors:     errs,
		RecordedAt: time.Now(),
	}
	if err := m.db.InsertPipelineMetric(metric); err != nil {
		m.log.Warn("failed to record stage metric", "stage", stage, "error", err)
	}
}

// RecordExtraction logs one fetch attempt against a source.
func (m *Monitor) RecordExtraction(runID *string, source domain.Source, url string, statusCode *int, duration time.Duration, records int, fetchErr error) {
	entry := &store.ExtractionLog{
		RunID:      runID,
		Source:     source,
		URL:        url,
		StatusCode: statusCode,
		DurationMS: duration.Milliseconds(),
		Records:    records,
		RecordedAt: time.Now(),
	}
	if fetchErr != nil {
		msg := fetchErr.Error()
		entry.Error = &msg
	}
	if err := m.db.InsertExtractionLog(entry); err != nil {
		m.log.Warn("failed to record extraction log", "source", source, "error", err)
	}
}
