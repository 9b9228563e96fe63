package resolve

import (
	"context"
	"database/sql"
	"reflect"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/setgraph/setgraph/internal/domain"
	"github.com/setgraph/setgraph/internal/logger"
	"github.com/setgraph/setgraph/internal/store"
)

func mockResolver(t *testing.T) (*Resolver, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = raw.Close()
	})
	db := store.NewFromDB(sqlx.NewDb(raw, "postgres"))
	return New(db, nil, nil, logger.Default()), mock
}

func TestExtractLabel(t *testing.T) {
	tests := []struct {
		input     string
		wantTitle string
		wantLabel string
	}{
		{"Strobe [Mau5trap]", "Strobe", "Mau5trap"},
		{"Strobe", "Strobe", ""},
		{"Two [Brackets] In [Anjunabeats]", "Two [Brackets] In", "Anjunabeats"},
		{"  Padded [Drumcode]  ", "Padded", "Drumcode"},
		{"[OnlyLabel]", "", "OnlyLabel"},
	}
	for _, tt := range tests {
		title, label := extractLabel(tt.input)
		if title != tt.wantTitle || label != tt.wantLabel {
			t.Errorf("extractLabel(%q) = (%q, %q), want (%q, %q)",
				tt.input, title, label, tt.wantTitle, tt.wantLabel)
		}
	}
}

func TestDedupe(t *testing.T) {
	got := dedupe([]string{"Bicep", "bicep", "Moderat", "BICEP", "Moderat"})
	want := []string{"Bicep", "Moderat"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("dedupe = %v, want %v", got, want)
	}
}

func TestTopArtists(t *testing.T) {
	shares := map[string]float64{
		"a": 0.1,
		"b": 0.4,
		"c": 0.3,
		"d": 0.2,
	}
	got := topArtists(shares, 3)
	want := []string{"b", "c", "d"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("topArtists = %v, want %v", got, want)
	}

	// Ties break alphabetically for a stable order.
	tied := map[string]float64{"z": 0.5, "a": 0.5}
	if got := topArtists(tied, 2); !reflect.DeepEqual(got, []string{"a", "z"}) {
		t.Errorf("tied topArtists = %v", got)
	}
}

func TestSharesFromCounts(t *testing.T) {
	shares := sharesFromCounts(map[string]int{"a": 75, "b": 25})
	if shares["a"] != 0.75 || shares["b"] != 0.25 {
		t.Errorf("shares = %v", shares)
	}
	if sharesFromCounts(map[string]int{}) != nil {
		t.Error("empty counts should yield nil")
	}
}

func trackRows(pairs ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"track_id", "title", "normalized_title", "artist_name"})
	for i := 0; i+2 < len(pairs); i += 3 {
		rows.AddRow(pairs[i], pairs[i+1], pairs[i+1], pairs[i+2])
	}
	return rows
}

func TestTryMashupResolvesComponents(t *testing.T) {
	r, mock := mockResolver(t)

	mock.ExpectQuery(`SELECT \* FROM tracks`).
		WithArgs("adagio for strings", candidateLimit).
		WillReturnRows(trackRows("t1", "adagio for strings", "tiesto"))
	mock.ExpectQuery(`SELECT \* FROM tracks`).
		WithArgs("born slippy", candidateLimit).
		WillReturnRows(trackRows("t2", "born slippy", "underworld"))

	res := r.tryMashup("Adagio For Strings vs. Born Slippy (Club Mix)")
	if res == nil {
		t.Fatal("expected a mashup resolution")
	}
	if res.Artist != "tiesto and underworld" {
		t.Errorf("Artist = %q", res.Artist)
	}
	if res.Tier != TierMashup || res.Confidence != 0.9 {
		t.Errorf("tier/confidence = %s/%v", res.Tier, res.Confidence)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestTryMashupNonMashupTitle(t *testing.T) {
	r, _ := mockResolver(t)
	if res := r.tryMashup("Just A Regular Title"); res != nil {
		t.Errorf("non-mashup resolved: %+v", res)
	}
}

func TestTryMashupUnresolvableComponent(t *testing.T) {
	r, mock := mockResolver(t)

	// First component misses: the whole mashup fails, all or nothing.
	mock.ExpectQuery(`SELECT \* FROM tracks`).
		WithArgs("unknown thing", candidateLimit).
		WillReturnRows(sqlmock.NewRows([]string{"track_id"}))

	if res := r.tryMashup("Unknown Thing vs Other Thing"); res != nil {
		t.Errorf("partial mashup resolved: %+v", res)
	}
}

type stubDiscogs struct {
	artist string
	calls  int
}

func (s *stubDiscogs) SearchArtistForTitle(ctx context.Context, title, label string) (string, error) {
	s.calls++
	return s.artist, nil
}

func TestResolveFeedsExternalAnswerBack(t *testing.T) {
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = raw.Close()
	})
	db := store.NewFromDB(sqlx.NewDb(raw, "postgres"))
	ds := &stubDiscogs{artist: "Adam Beyer"}
	r := New(db, nil, ds, logger.Default())

	track := &domain.Track{TrackID: "t1", Title: "Teach Me [Drumcode]", ArtistName: "id"}

	// First pass: the label map knows nothing, so the external tier answers
	// and the answer is written back into silver.
	mock.ExpectQuery(`SELECT artist_name, COUNT\(\*\) AS n`).
		WithArgs("Drumcode").
		WillReturnRows(sqlmock.NewRows([]string{"artist_name", "n"}))
	mock.ExpectQuery(`SELECT \* FROM artists WHERE normalized_name = \$1`).
		WithArgs("adam beyer").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO artists`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO track_artists`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO artist_resolution_feedback`).
		WithArgs("t1", "Adam Beyer", TierDiscogs, 0.85, true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := r.Resolve(context.Background(), track)
	if err != nil {
		t.Fatal(err)
	}
	if res == nil || res.Artist != "Adam Beyer" || res.Tier != TierDiscogs || res.Confidence != 0.85 {
		t.Fatalf("first resolution = %+v", res)
	}

	// Second pass: feedback invalidated the cached label map, so the label
	// tier re-reads it and now answers internally.
	mock.ExpectQuery(`SELECT artist_name, COUNT\(\*\) AS n`).
		WithArgs("Drumcode").
		WillReturnRows(sqlmock.NewRows([]string{"artist_name", "n"}).AddRow("adam beyer", 3))
	mock.ExpectQuery(`SELECT normalized_title FROM tracks WHERE artist_name = \$1`).
		WithArgs("adam beyer").
		WillReturnRows(sqlmock.NewRows([]string{"normalized_title"}).AddRow("teach me"))

	res2, err := r.Resolve(context.Background(), track)
	if err != nil {
		t.Fatal(err)
	}
	if res2 == nil || res2.Tier != TierLabelMap || res2.Artist != "adam beyer" {
		t.Fatalf("second resolution = %+v", res2)
	}
	if ds.calls != 1 {
		t.Errorf("external searcher consulted %d times, want 1", ds.calls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestTryMashupDedupesRepeatedArtist(t *testing.T) {
	r, mock := mockResolver(t)

	mock.ExpectQuery(`SELECT \* FROM tracks`).
		WithArgs("glue", candidateLimit).
		WillReturnRows(trackRows("t1", "glue", "bicep"))
	mock.ExpectQuery(`SELECT \* FROM tracks`).
		WithArgs("opal", candidateLimit).
		WillReturnRows(trackRows("t2", "opal", "bicep"))

	res := r.tryMashup("Glue vs Opal")
	if res == nil {
		t.Fatal("expected a resolution")
	}
	if res.Artist != "bicep" {
		t.Errorf("Artist = %q, want deduped single artist", res.Artist)
	}
}
