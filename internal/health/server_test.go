package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/setgraph/setgraph/internal/logger"
	"github.com/setgraph/setgraph/internal/store"
)

func TestHealthzOK(t *testing.T) {
	s := NewServer(":0", nil, nil, nil, nil, nil, nil, nil, logger.Default())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" {
		t.Errorf("Status = %s, want ok", resp.Status)
	}
	if resp.HeapBytes == 0 {
		t.Error("heap bytes not reported")
	}
}

func TestHealthzDegradedOnDBFailure(t *testing.T) {
	raw, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatal(err)
	}
	defer raw.Close() //nolint:errcheck // test cleanup
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	db := store.NewFromDB(sqlx.NewDb(raw, "postgres"))
	s := NewServer(":0", db, nil, nil, nil, nil, nil, nil, logger.Default())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "degraded" {
		t.Errorf("Status = %s, want degraded", resp.Status)
	}
}

func TestStats(t *testing.T) {
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer raw.Close() //nolint:errcheck // test cleanup

	count := func(table string, n int) {
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM ` + table).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(n))
	}
	count("tracks", 100)
	count("artists", 40)
	count("playlists", 7)
	count("track_transitions", 250)
	mock.ExpectQuery(`SELECT scrape_type, COUNT\(\*\) AS n FROM raw_scrapes`).
		WillReturnRows(sqlmock.NewRows([]string{"scrape_type", "n"}).AddRow("track", 12))
	mock.ExpectQuery(`SELECT status, COUNT\(\*\) AS n FROM enrichment_status`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "n"}).AddRow("completed", 80))

	db := store.NewFromDB(sqlx.NewDb(raw, "postgres"))
	s := NewServer(":0", db, nil, nil, nil, nil, nil, nil, logger.Default())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Tracks != 100 || resp.Artists != 40 || resp.Playlists != 7 || resp.Transitions != 250 {
		t.Errorf("counts = %d/%d/%d/%d", resp.Tracks, resp.Artists, resp.Playlists, resp.Transitions)
	}
	if resp.UnprocessedRaw["track"] != 12 {
		t.Errorf("UnprocessedRaw = %v", resp.UnprocessedRaw)
	}
	if resp.Enrichment["completed"] != 80 {
		t.Errorf("Enrichment = %v", resp.Enrichment)
	}
	if resp.Tasks != nil {
		t.Error("Tasks should be absent without a queue db")
	}
}
