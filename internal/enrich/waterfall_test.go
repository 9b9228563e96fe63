package enrich

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/setgraph/setgraph/internal/domain"
	"github.com/setgraph/setgraph/internal/logger"
	"github.com/setgraph/setgraph/internal/spotify"
	"github.com/setgraph/setgraph/internal/store"
)

func waterfallDB(t *testing.T) (*store.DB, sqlmock.Sqlmock) {
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

// deadlineSpotify records the context its first call ran under.
type deadlineSpotify struct {
	deadline time.Time
	ok       bool
}

func (s *deadlineSpotify) SearchTrack(ctx context.Context, artist, title string) (*spotify.Track, error) {
	s.deadline, s.ok = ctx.Deadline()
	return nil, nil
}

func (s *deadlineSpotify) GetTrack(ctx context.Context, id string) (*spotify.Track, error) {
	return nil, nil
}

func (s *deadlineSpotify) SearchByISRC(ctx context.Context, isrc string) (*spotify.Track, error) {
	return nil, nil
}

func (s *deadlineSpotify) GetAudioFeatures(ctx context.Context, id string) (*spotify.AudioFeatures, error) {
	return nil, nil
}

func emptyRows(cols ...string) *sqlmock.Rows {
	return sqlmock.NewRows(cols)
}

func TestEnrichBoundsEachTrack(t *testing.T) {
	db, mock := waterfallDB(t)
	sp := &deadlineSpotify{}
	w := NewWaterfall(Deps{DB: db, Breakers: NewBreakerSet(logger.Default()), Spotify: sp}, logger.Default())

	mock.ExpectQuery(`SELECT a\.normalized_name`).
		WithArgs("t1").
		WillReturnRows(emptyRows("normalized_name"))
	mock.ExpectQuery(`SELECT t\.\*\s+FROM playlist_tracks`).
		WithArgs("t1").
		WillReturnRows(emptyRows("track_id"))
	mock.ExpectExec(`UPDATE tracks SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM artists WHERE normalized_name = \$1`).
		WithArgs("bicep").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO artists`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO track_artists`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM enrichment_status WHERE track_id = \$1`).
		WithArgs("t1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO enrichment_status`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	track := &domain.Track{TrackID: "t1", Title: "Glue", ArtistName: "Bicep"}
	status, err := w.Enrich(context.Background(), track)
	if err != nil {
		t.Fatal(err)
	}
	if status.Status != domain.EnrichmentCompleted {
		t.Errorf("status = %s, want completed for a clean no-hit run", status.Status)
	}

	// Every external call runs under the per-track deadline.
	if !sp.ok {
		t.Fatal("spotify call carried no deadline")
	}
	if remaining := time.Until(sp.deadline); remaining <= 0 || remaining > trackDeadline {
		t.Errorf("deadline %v away, want within %v", remaining, trackDeadline)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestContextSignals(t *testing.T) {
	db, mock := waterfallDB(t)
	w := NewWaterfall(Deps{DB: db}, logger.Default())

	genre := "Electronica"
	bpm := 128.0
	key := "8A"
	track := &domain.Track{
		TrackID:    "t1",
		ArtistName: "Bicep",
		Genre:      &genre,
		BPM:        &bpm,
		CamelotKey: &key,
	}

	mock.ExpectQuery(`SELECT a\.normalized_name`).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"normalized_name"}).AddRow("bicep"))
	mock.ExpectQuery(`SELECT t\.\*\s+FROM playlist_tracks`).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"track_id", "artist_name", "genre", "bpm", "camelot_key"}).
			AddRow("t2", "Four Tet", "electronica", 126.0, "9A"))

	djAffinity, setCoherence := w.contextSignals(track)
	if !djAffinity {
		t.Error("djAffinity = false, want true when the set DJ matches the artist")
	}
	if !setCoherence {
		t.Error("setCoherence = false, want true for a genre and BPM match")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestContextSignalsAbsentWithoutContext(t *testing.T) {
	db, mock := waterfallDB(t)
	w := NewWaterfall(Deps{DB: db}, logger.Default())

	mock.ExpectQuery(`SELECT a\.normalized_name`).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"normalized_name"}).AddRow("someone else"))
	mock.ExpectQuery(`SELECT t\.\*\s+FROM playlist_tracks`).
		WithArgs("t1").
		WillReturnRows(emptyRows("track_id"))

	djAffinity, setCoherence := w.contextSignals(&domain.Track{TrackID: "t1", ArtistName: "Bicep"})
	if djAffinity || setCoherence {
		t.Errorf("signals = (%v, %v), want both false", djAffinity, setCoherence)
	}
}

func TestCoherentWith(t *testing.T) {
	ptrS := func(s string) *string { return &s }
	ptrF := func(f float64) *float64 { return &f }

	base := &domain.Track{Genre: ptrS("techno"), BPM: ptrF(130), CamelotKey: ptrS("8A")}

	cases := []struct {
		name string
		nb   *domain.Track
		want bool
	}{
		{"genre and bpm", &domain.Track{Genre: ptrS("Techno"), BPM: ptrF(128)}, true},
		{"bpm and compatible key", &domain.Track{BPM: ptrF(132), CamelotKey: ptrS("9A")}, true},
		{"genre only", &domain.Track{Genre: ptrS("techno")}, false},
		{"bpm too far", &domain.Track{Genre: ptrS("techno"), BPM: ptrF(100)}, false},
		{"distant key", &domain.Track{BPM: ptrF(130), CamelotKey: ptrS("2A")}, false},
		{"no fields", &domain.Track{}, false},
	}
	for _, c := range cases {
		if got := coherentWith(base, c.nb); got != c.want {
			t.Errorf("%s: coherentWith = %v, want %v", c.name, got, c.want)
		}
	}
}
