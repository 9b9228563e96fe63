package store

import (
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/setgraph/setgraph/internal/domain"
)

func mockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = raw.Close()
	})
	return NewFromDB(sqlx.NewDb(raw, "postgres")), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestInsertRawIgnoresDuplicateNaturalKey(t *testing.T) {
	db, mock := mockDB(t)

	rec := &domain.RawScrape{
		ScrapeID:   "s1",
		Source:     domain.SourceMixesDB,
		ScrapeType: domain.ScrapeTypeTrack,
		NaturalKey: "nk1",
		RawData:    domain.JSONMap{"raw_title": "Bicep - Glue"},
		ScrapedAt:  time.Now(),
	}

	// Bronze is append-only: the conflict clause must drop the re-scrape
	// instead of touching the stored payload.
	mock.ExpectExec(`INSERT INTO raw_scrapes .+ ON CONFLICT \(source, scrape_type, natural_key\) DO NOTHING`).
		WithArgs("s1", "mixesdb", "track", "nk1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := db.InsertRaw(rec); err != nil {
		t.Fatal(err)
	}

	// The same natural key under a fresh scrape id affects zero rows and
	// still reports success.
	dup := *rec
	dup.ScrapeID = "s2"
	mock.ExpectExec(`INSERT INTO raw_scrapes .+ DO NOTHING`).
		WithArgs("s2", "mixesdb", "track", "nk1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := db.InsertRaw(&dup); err != nil {
		t.Fatal(err)
	}
	expectationsMet(t, mock)
}

func TestListUnprocessed(t *testing.T) {
	db, mock := mockDB(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"scrape_id", "source", "scrape_type", "natural_key", "raw_data", "scraped_at", "processed", "processed_at"}).
		AddRow("s1", "mixesdb", "track", "nk1", []byte(`{"raw_title":"A - B"}`), now, false, nil).
		AddRow("s2", "mixesdb", "track", "nk2", []byte(`{"raw_title":"C - D"}`), now, false, nil)

	mock.ExpectQuery(`SELECT \* FROM raw_scrapes\s+WHERE NOT processed AND scrape_type = \$1`).
		WithArgs("track", 10).
		WillReturnRows(rows)

	recs, err := db.ListUnprocessed(domain.ScrapeTypeTrack, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].RawData["raw_title"] != "A - B" {
		t.Errorf("raw_data not decoded: %v", recs[0].RawData)
	}
	expectationsMet(t, mock)
}

func TestMarkProcessedNotFound(t *testing.T) {
	db, mock := mockDB(t)

	mock.ExpectExec(`UPDATE raw_scrapes SET processed = TRUE`).
		WithArgs(sqlmock.AnyArg(), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := db.MarkProcessed("missing"); err == nil {
		t.Fatal("expected error for unknown scrape id")
	}
	expectationsMet(t, mock)
}

func TestUpsertTrackReturnsSurvivingID(t *testing.T) {
	db, mock := mockDB(t)

	track := &domain.Track{
		TrackID:          "new-id",
		Title:            "Glue",
		NormalizedTitle:  "glue",
		ArtistName:       "bicep",
		BronzeID:         "s1",
		DataQualityScore: 0.6,
		ValidationStatus: domain.ValidationValid,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}

	// Conflict path: the pre-existing row's id comes back, not ours.
	mock.ExpectQuery(`INSERT INTO tracks .+ ON CONFLICT \(artist_name, normalized_title\) DO UPDATE SET .+ RETURNING track_id`).
		WillReturnRows(sqlmock.NewRows([]string{"track_id"}).AddRow("existing-id"))

	id, err := db.UpsertTrack(track)
	if err != nil {
		t.Fatal(err)
	}
	if id != "existing-id" {
		t.Errorf("id = %s, want existing-id", id)
	}
	expectationsMet(t, mock)
}

func TestGetTrackByISRCNoRows(t *testing.T) {
	db, mock := mockDB(t)

	mock.ExpectQuery(`SELECT \* FROM tracks WHERE isrc = \$1`).
		WithArgs("GBXXX0000001").
		WillReturnRows(sqlmock.NewRows([]string{"track_id"}))

	track, err := db.GetTrackByISRC("GBXXX0000001")
	if err != nil {
		t.Fatalf("no-rows lookup must not error: %v", err)
	}
	if track != nil {
		t.Errorf("track = %+v, want nil", track)
	}
	expectationsMet(t, mock)
}

func TestRecordTransitionCanonicalOrder(t *testing.T) {
	db, mock := mockDB(t)

	// Caller passes (b, a); the row is stored as (a, b).
	mock.ExpectExec(`INSERT INTO track_transitions .+ ON CONFLICT \(track_a_id, track_b_id\) DO UPDATE SET`).
		WithArgs("track-a", "track-b", 1.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := db.RecordTransition("track-b", "track-a", 1.0); err != nil {
		t.Fatal(err)
	}
	expectationsMet(t, mock)
}

func TestRecordTransitionRejectsSelfEdge(t *testing.T) {
	db, _ := mockDB(t)
	if err := db.RecordTransition("same", "same", 1.0); err == nil {
		t.Fatal("expected error for self transition")
	}
}

func TestCountUnprocessed(t *testing.T) {
	db, mock := mockDB(t)

	rows := sqlmock.NewRows([]string{"scrape_type", "n"}).
		AddRow("track", 12).
		AddRow("playlist", 3)
	mock.ExpectQuery(`SELECT scrape_type, COUNT\(\*\) AS n FROM raw_scrapes`).
		WillReturnRows(rows)

	counts, err := db.CountUnprocessed()
	if err != nil {
		t.Fatal(err)
	}
	if counts[domain.ScrapeTypeTrack] != 12 || counts[domain.ScrapeTypePlaylist] != 3 {
		t.Errorf("counts = %v", counts)
	}
	expectationsMet(t, mock)
}

func TestUpsertTrackArtistIdempotent(t *testing.T) {
	db, mock := mockDB(t)

	ta := &domain.TrackArtist{
		TrackID:   "t1",
		ArtistID:  "a1",
		Role:      domain.RolePrimary,
		CreatedAt: time.Now(),
	}
	mock.ExpectExec(`INSERT INTO track_artists .+ ON CONFLICT \(track_id, artist_id, role\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := db.UpsertTrackArtist(ta); err != nil {
		t.Fatal(err)
	}
	expectationsMet(t, mock)
}
