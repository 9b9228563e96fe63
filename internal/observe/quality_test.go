package observe

import (
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/setgraph/setgraph/internal/logger"
	"github.com/setgraph/setgraph/internal/store"
)

func qualityDB(t *testing.T) (*store.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = raw.Close()
	})
	return store.NewFromDB(sqlx.NewDb(raw, "postgres")), mock
}

func count(rows ...int) *sqlmock.Rows {
	r := sqlmock.NewRows([]string{"count"})
	for _, n := range rows {
		r.AddRow(n)
	}
	return r
}

func TestSnapshotTracksComputesFivePillars(t *testing.T) {
	db, mock := qualityDB(t)
	d := NewDetector(nil, logger.Default())
	q := NewQualityChecker(db, d, logger.Default())

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM tracks`).
		WillReturnRows(count(100))
	mock.ExpectQuery(`SELECT COALESCE\(AVG\(GREATEST`).
		WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(0.9))
	mock.ExpectQuery(`SELECT sample_size FROM data_quality_metrics`).
		WithArgs("tracks").
		WillReturnRows(sqlmock.NewRows([]string{"sample_size"}).AddRow(80))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM tracks\s+WHERE \(bpm IS NOT NULL`).
		WillReturnRows(count(10))
	mock.ExpectQuery(`SELECT COUNT\(DISTINCT lower\(artist_name\)\) FROM tracks`).
		WillReturnRows(count(70))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM tracks WHERE bronze_id IS NOT NULL`).
		WillReturnRows(count(100))
	mock.ExpectExec(`INSERT INTO data_quality_metrics \(entity, freshness, volume, schema_conformity, distribution, lineage, sample_size, recorded_at\)`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	m, err := q.SnapshotTracks()
	if err != nil {
		t.Fatal(err)
	}
	if m.Freshness != 0.9 {
		t.Errorf("Freshness = %v, want 0.9", m.Freshness)
	}
	if m.Volume != 1.25 {
		t.Errorf("Volume = %v, want 1.25 (100 rows against 80)", m.Volume)
	}
	if m.SchemaConformity != 0.9 {
		t.Errorf("SchemaConformity = %v, want 0.9", m.SchemaConformity)
	}
	if m.Distribution != 0.7 {
		t.Errorf("Distribution = %v, want 0.7", m.Distribution)
	}
	if m.Lineage != 1.0 {
		t.Errorf("Lineage = %v, want 1.0", m.Lineage)
	}

	// Conformity 0.9 sits between the critical and warn thresholds.
	if d.Pending() != 1 {
		t.Errorf("anomalies pending = %d, want 1 warning", d.Pending())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestVolumeRatio(t *testing.T) {
	cases := []struct {
		total, prior int
		want         float64
	}{
		{100, 0, 1.0},  // no baseline yet
		{100, 80, 1.25},
		{100, 100, 1.0},
		{30, 100, 0.5},  // collapse clamps low
		{500, 100, 1.5}, // burst clamps high
	}
	for _, c := range cases {
		if got := volumeRatio(c.total, c.prior); got != c.want {
			t.Errorf("volumeRatio(%d, %d) = %v, want %v", c.total, c.prior, got, c.want)
		}
	}
}
