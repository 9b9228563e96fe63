// Package health exposes the control surface: liveness under a memory
// watermark and a stats endpoint summarizing the warehouse, the queue, the
// breakers and the crawl governors.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/setgraph/setgraph/internal/domain"
	"github.com/setgraph/setgraph/internal/enrich"
	"github.com/setgraph/setgraph/internal/logger"
	"github.com/setgraph/setgraph/internal/observe"
	"github.com/setgraph/setgraph/internal/robots"
	"github.com/setgraph/setgraph/internal/scheduler"
	"github.com/setgraph/setgraph/internal/scrape"
	"github.com/setgraph/setgraph/internal/store"
)

// memoryWatermarkBytes is the heap size past which /healthz reports degraded
// so orchestration can recycle the process before the OOM killer does.
const memoryWatermarkBytes = 1 << 30

// externalSources are the services whose breaker state /stats reports.
var externalSources = []domain.Source{
	domain.SourceSpotify,
	domain.SourceTidal,
	domain.SourceMusicBrainz,
	domain.SourceDiscogs,
	domain.SourceLastFM,
	domain.SourceAcousticBrainz,
	domain.SourceGetSongBPM,
}

type Server struct {
	db       *store.DB
	qdb      *store.QueueDB
	breakers *enrich.BreakerSet
	governor *robots.Governor
	registry *scrape.Registry
	sched    *scheduler.Scheduler
	detector *observe.Detector
	log      *logger.Logger

	httpServer *http.Server
}

func NewServer(addr string, db *store.DB, qdb *store.QueueDB, breakers *enrich.BreakerSet, governor *robots.Governor, registry *scrape.Registry, sched *scheduler.Scheduler, detector *observe.Detector, log *logger.Logger) *Server {
	s := &Server{
		db:       db,
		qdb:      qdb,
		breakers: breakers,
		governor: governor,
		registry: registry,
		sched:    sched,
		detector: detector,
		log:      log.WithComponent("health"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/stats", s.handleStats)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("control surface listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

type healthResponse struct {
	Status    string `json:"status"`
	HeapBytes uint64 `json:"heap_bytes"`
	Detail    string `json:"detail,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := healthResponse{Status: "ok", HeapBytes: mem.HeapAlloc}
	code := http.StatusOK

	if mem.HeapAlloc > memoryWatermarkBytes {
		resp.Status = "degraded"
		resp.Detail = "heap over memory watermark"
		code = http.StatusServiceUnavailable
	} else if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			resp.Status = "degraded"
			resp.Detail = "warehouse unreachable: " + err.Error()
			code = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, resp)
}

type statsResponse struct {
	Tracks           int                            `json:"tracks"`
	Artists          int                            `json:"artists"`
	Playlists        int                            `json:"playlists"`
	Transitions      int                            `json:"transitions"`
	UnprocessedRaw   map[domain.ScrapeType]int      `json:"unprocessed_raw"`
	Enrichment       map[domain.EnrichmentState]int `json:"enrichment"`
	Tasks            *store.TaskStats               `json:"tasks"`
	Breakers         map[string]string              `json:"breakers"`
	Hosts            map[string]robots.HostStats    `json:"hosts"`
	RunningSources   []domain.Source                `json:"running_sources"`
	PendingAnomalies int                            `json:"pending_anomalies"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := &statsResponse{
		Breakers: make(map[string]string),
		Hosts:    make(map[string]robots.HostStats),
	}

	var err error
	if resp.Tracks, err = s.db.CountTracks(); err != nil {
		s.statsError(w, err)
		return
	}
	if resp.Artists, err = s.db.CountArtists(); err != nil {
		s.statsError(w, err)
		return
	}
	if resp.Playlists, err = s.db.CountPlaylists(); err != nil {
		s.statsError(w, err)
		return
	}
	if resp.Transitions, err = s.db.CountTransitions(); err != nil {
		s.statsError(w, err)
		return
	}
	if resp.UnprocessedRaw, err = s.db.CountUnprocessed(); err != nil {
		s.statsError(w, err)
		return
	}
	if resp.Enrichment, err = s.db.CountEnrichmentByStatus(); err != nil {
		s.statsError(w, err)
		return
	}
	if s.qdb != nil {
		if resp.Tasks, err = s.qdb.GetTaskStats(); err != nil {
			s.statsError(w, err)
			return
		}
	}

	if s.breakers != nil {
		for _, src := range externalSources {
			resp.Breakers[string(src)] = s.breakers.State(src)
		}
	}
	if s.governor != nil && s.registry != nil {
		for _, adapter := range s.registry.All() {
			for _, host := range adapter.AllowedDomains() {
				resp.Hosts[host] = s.governor.Stats(host)
			}
		}
	}
	if s.sched != nil {
		resp.RunningSources = s.sched.Running()
	}
	if s.detector != nil {
		resp.PendingAnomalies = s.detector.Pending()
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) statsError(w http.ResponseWriter, err error) {
	s.log.Error("stats query failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
