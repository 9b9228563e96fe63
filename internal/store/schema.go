package store

// Schema is applied at startup. Every statement is idempotent so restarts
// are safe without a migration tool.
const Schema = `
CREATE TABLE IF NOT EXISTS raw_scrapes (
	scrape_id    UUID PRIMARY KEY,
	source       TEXT NOT NULL,
	scrape_type  TEXT NOT NULL,
	natural_key  TEXT NOT NULL,
	raw_data     JSONB NOT NULL,
	scraped_at   TIMESTAMPTZ NOT NULL,
	processed    BOOLEAN NOT NULL DEFAULT FALSE,
	processed_at TIMESTAMPTZ,
	UNIQUE (source, scrape_type, natural_key)
);
CREATE INDEX IF NOT EXISTS idx_raw_scrapes_unprocessed
	ON raw_scrapes (scrape_type, scraped_at) WHERE NOT processed;

CREATE TABLE IF NOT EXISTS tracks (
	track_id           UUID PRIMARY KEY,
	title              TEXT NOT NULL,
	normalized_title   TEXT NOT NULL,
	artist_name        TEXT NOT NULL,
	duration_ms        INTEGER,
	bpm                DOUBLE PRECISION,
	key_name           TEXT,
	camelot_key        TEXT,
	genre              TEXT,
	label              TEXT,
	isrc               TEXT,
	spotify_id         TEXT,
	tidal_id           TEXT,
	musicbrainz_id     TEXT,
	discogs_id         TEXT,
	beatport_id        TEXT,
	is_remix           BOOLEAN NOT NULL DEFAULT FALSE,
	is_mashup          BOOLEAN NOT NULL DEFAULT FALSE,
	is_live            BOOLEAN NOT NULL DEFAULT FALSE,
	is_cover           BOOLEAN NOT NULL DEFAULT FALSE,
	remix_type         TEXT,
	bronze_id          UUID NOT NULL,
	data_quality_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	validation_status  TEXT NOT NULL DEFAULT 'pending',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (artist_name, normalized_title)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tracks_isrc ON tracks (isrc) WHERE isrc IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_tracks_normalized_title ON tracks (normalized_title);

CREATE TABLE IF NOT EXISTS artists (
	artist_id       UUID PRIMARY KEY,
	canonical_name  TEXT NOT NULL,
	normalized_name TEXT NOT NULL UNIQUE,
	aliases         JSONB NOT NULL DEFAULT '[]',
	spotify_id      TEXT,
	musicbrainz_id  TEXT,
	discogs_id      TEXT,
	bronze_ids      JSONB NOT NULL DEFAULT '[]',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS playlists (
	playlist_id        UUID PRIMARY KEY,
	name               TEXT NOT NULL,
	source             TEXT NOT NULL,
	source_url         TEXT,
	dj_artist_id       UUID REFERENCES artists(artist_id),
	event_date         TIMESTAMPTZ,
	venue              TEXT,
	track_count        INTEGER NOT NULL DEFAULT 0,
	data_quality_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (source, source_url)
);

CREATE TABLE IF NOT EXISTS playlist_tracks (
	playlist_id UUID NOT NULL REFERENCES playlists(playlist_id),
	position    INTEGER NOT NULL,
	track_id    UUID NOT NULL REFERENCES tracks(track_id),
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (playlist_id, position)
);

CREATE TABLE IF NOT EXISTS track_transitions (
	track_a_id       UUID NOT NULL REFERENCES tracks(track_id),
	track_b_id       UUID NOT NULL REFERENCES tracks(track_id),
	occurrence_count INTEGER NOT NULL DEFAULT 1,
	avg_distance     DOUBLE PRECISION NOT NULL DEFAULT 1,
	last_observed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (track_a_id, track_b_id),
	CHECK (track_a_id < track_b_id)
);

CREATE TABLE IF NOT EXISTS track_artists (
	track_id   UUID NOT NULL REFERENCES tracks(track_id),
	artist_id  UUID NOT NULL REFERENCES artists(artist_id),
	role       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (track_id, artist_id, role)
);

CREATE TABLE IF NOT EXISTS enrichment_status (
	track_id         UUID PRIMARY KEY REFERENCES tracks(track_id),
	status           TEXT NOT NULL,
	sources_enriched JSONB NOT NULL DEFAULT '[]',
	retry_count      INTEGER NOT NULL DEFAULT 0,
	last_attempt     TIMESTAMPTZ NOT NULL DEFAULT now(),
	is_retriable     BOOLEAN NOT NULL DEFAULT TRUE,
	error_message    TEXT,
	confidence_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	confidence_tier  TEXT NOT NULL DEFAULT 'low'
);

CREATE TABLE IF NOT EXISTS target_tracks (
	target_id        UUID PRIMARY KEY,
	artist_name      TEXT NOT NULL,
	title            TEXT NOT NULL,
	priority         INTEGER NOT NULL DEFAULT 5,
	enabled          BOOLEAN NOT NULL DEFAULT TRUE,
	last_searched_at TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (artist_name, title)
);

CREATE TABLE IF NOT EXISTS scraping_runs (
	run_id          UUID PRIMARY KEY,
	source          TEXT NOT NULL,
	started_at      TIMESTAMPTZ NOT NULL,
	finished_at     TIMESTAMPTZ,
	status          TEXT NOT NULL,
	playlists_found INTEGER NOT NULL DEFAULT 0,
	tracks_added    INTEGER NOT NULL DEFAULT 0,
	artists_added   INTEGER NOT NULL DEFAULT 0,
	errors_count    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_scraping_runs_source ON scraping_runs (source, started_at DESC);

CREATE TABLE IF NOT EXISTS scraper_state (
	source               TEXT PRIMARY KEY,
	last_run_at          TIMESTAMPTZ,
	current_interval_sec INTEGER NOT NULL DEFAULT 0,
	rate_limit_hits      INTEGER NOT NULL DEFAULT 0,
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pipeline_execution_metrics (
	id          BIGSERIAL PRIMARY KEY,
	run_id      UUID,
	stage       TEXT NOT NULL,
	duration_ms BIGINT NOT NULL,
	items_in    INTEGER NOT NULL DEFAULT 0,
	items_out   INTEGER NOT NULL DEFAULT 0,
	errors      INTEGER NOT NULL DEFAULT 0,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS data_quality_metrics (
	id                BIGSERIAL PRIMARY KEY,
	entity            TEXT NOT NULL,
	freshness         DOUBLE PRECISION NOT NULL,
	volume            DOUBLE PRECISION NOT NULL,
	schema_conformity DOUBLE PRECISION NOT NULL,
	distribution      DOUBLE PRECISION NOT NULL,
	lineage           DOUBLE PRECISION NOT NULL,
	sample_size       INTEGER NOT NULL,
	recorded_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS source_extraction_log (
	id             BIGSERIAL PRIMARY KEY,
	run_id         UUID,
	source         TEXT NOT NULL,
	url            TEXT NOT NULL,
	status_code    INTEGER,
	duration_ms    BIGINT NOT NULL,
	records        INTEGER NOT NULL DEFAULT 0,
	error          TEXT,
	recorded_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS graph_validation_results (
	id                     BIGSERIAL PRIMARY KEY,
	playlist_id            UUID NOT NULL,
	nodes                  INTEGER NOT NULL,
	edges                  INTEGER NOT NULL,
	expected_edges         INTEGER NOT NULL,
	same_artist_exceptions INTEGER NOT NULL,
	valid                  BOOLEAN NOT NULL,
	recorded_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS anomaly_detection (
	id          BIGSERIAL PRIMARY KEY,
	kind        TEXT NOT NULL,
	source      TEXT,
	metric      TEXT NOT NULL,
	observed    DOUBLE PRECISION NOT NULL,
	threshold   DOUBLE PRECISION NOT NULL,
	severity    TEXT NOT NULL,
	detail      TEXT,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS artist_resolution_feedback (
	id             BIGSERIAL PRIMARY KEY,
	track_id       UUID NOT NULL,
	resolved_name  TEXT NOT NULL,
	tier           TEXT NOT NULL,
	confidence     DOUBLE PRECISION NOT NULL,
	accepted       BOOLEAN NOT NULL,
	recorded_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
