// Package scheduler drives the scrapers: each enabled source runs on its own
// adaptive interval, walking the seed rotation through search, index and
// detail fetches into the bronze store. All scheduling state is persisted so
// restarts resume where the previous process stopped.
package scheduler

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/setgraph/setgraph/internal/config"
	"github.com/setgraph/setgraph/internal/domain"
	"github.com/setgraph/setgraph/internal/logger"
	"github.com/setgraph/setgraph/internal/observe"
	"github.com/setgraph/setgraph/internal/robots"
	"github.com/setgraph/setgraph/internal/scrape"
	"github.com/setgraph/setgraph/internal/store"
)

const (
	// seedsPerRun bounds how many seed queries one run consumes so a single
	// source cannot monopolize the rotation.
	seedsPerRun = 5

	// maxDetailPages bounds detail fetches per index page.
	maxDetailPages = 10

	// rateLimitPenaltyCap stops repeated 429s from pushing the interval
	// beyond 4x the computed base.
	rateLimitPenaltyCap = 4.0

	// expectedRunRequests is the worst-case request count of one run: every
	// seed costs an index fetch plus up to maxDetailPages detail fetches.
	expectedRunRequests = seedsPerRun * (1 + maxDetailPages)
)

// Scheduler owns the per-source run loops.
type Scheduler struct {
	cfg      *config.Config
	db       *store.DB
	registry *scrape.Registry
	governor *robots.Governor
	monitor  *observe.Monitor
	detector *observe.Detector
	log      *logger.Logger

	mu      sync.Mutex
	running map[domain.Source]bool
}

func New(cfg *config.Config, db *store.DB, registry *scrape.Registry, governor *robots.Governor, monitor *observe.Monitor, detector *observe.Detector, log *logger.Logger) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		db:       db,
		registry: registry,
		governor: governor,
		monitor:  monitor,
		detector: detector,
		log:      log.WithComponent("scheduler"),
		running:  make(map[domain.Source]bool),
	}
}

// Run blocks until ctx is cancelled, looping every enabled source on its own
// goroutine. Sources overdue at boot run immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, adapter := range s.registry.All() {
		sc := s.cfg.SourceConfigFor(adapter.Name())
		if !sc.Enabled {
			s.log.Info("source disabled", "source", adapter.Name())
			continue
		}
		adapter := adapter
		g.Go(func() error {
			return s.loopSource(ctx, adapter)
		})
	}

	return g.Wait()
}

func (s *Scheduler) loopSource(ctx context.Context, adapter scrape.Adapter) error {
	source := adapter.Name()
	log := s.log.With("source", string(source))

	for {
		state, err := s.db.GetScraperState(source)
		if err != nil {
			return fmt.Errorf("failed to load scraper state for %s: %w", source, err)
		}

		wait := s.waitFor(adapter, state)
		if wait > 0 {
			log.Debug("sleeping until next run", "wait", wait)
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		if err := s.RunSource(ctx, source); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("source run failed", "error", err)
		}
	}
}

// waitFor computes how long until a source is due: last run plus its current
// interval, falling back to the configured minimum for fresh state. Overdue
// sources return zero.
func (s *Scheduler) waitFor(adapter scrape.Adapter, state *store.ScraperState) time.Duration {
	sc := s.cfg.SourceConfigFor(adapter.Name())
	interval := time.Duration(state.CurrentIntervalSec) * time.Second
	if interval <= 0 {
		interval = sc.MinInterval
	}
	if hints := adapter.IntervalHints(); hints.Min > 0 && interval < hints.Min {
		interval = hints.Min
	}
	if state.LastRunAt == nil {
		return 0
	}
	due := state.LastRunAt.Add(interval)
	wait := time.Until(due)
	if wait < 0 {
		return 0
	}
	return wait
}

// RunSource executes one run of a source: seed rotation, index fetch, detail
// fetches, bronze writes, then re-interval. Overlapping runs of the same
// source are rejected.
func (s *Scheduler) RunSource(ctx context.Context, source domain.Source) error {
	s.mu.Lock()
	if s.running[source] {
		s.mu.Unlock()
		return fmt.Errorf("source %s already running", source)
	}
	s.running[source] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.running, source)
		s.mu.Unlock()
	}()

	adapter, err := s.registry.Get(source)
	if err != nil {
		return err
	}

	run := &domain.ScrapeRun{
		RunID:     uuid.New().String(),
		Source:    source,
		StartedAt: time.Now(),
		Status:    "running",
	}
	if err := s.db.StartRun(run); err != nil {
		return err
	}
	log := s.log.WithRun(run.RunID, string(source))
	log.Info("run started")

	stats := s.scrapeSeeds(ctx, adapter, run, log)

	now := time.Now()
	run.FinishedAt = &now
	run.Status = "completed"
	if stats.attempts > 0 && stats.successes == 0 {
		run.Status = "failed"
	}
	if err := s.db.FinishRun(run); err != nil {
		log.Error("failed to finish run", "error", err)
	}
	s.monitor.RecordStage(&run.RunID, "scrape."+string(source), run.StartedAt,
		stats.attempts, run.TracksAdded, run.ErrorsCount)

	if err := s.reinterval(adapter, stats, log); err != nil {
		log.Warn("failed to persist scraper state", "error", err)
	}

	log.Info("run finished",
		"status", run.Status,
		"playlists_found", run.PlaylistsFound,
		"tracks_added", run.TracksAdded,
		"errors", run.ErrorsCount,
	)
	return nil
}

// runStats is shared by the page workers; counters are mutex-guarded.
type runStats struct {
	mu            sync.Mutex
	attempts      int
	successes     int
	rateLimitHits int
}

func (s *Scheduler) scrapeSeeds(ctx context.Context, adapter scrape.Adapter, run *domain.ScrapeRun, log *logger.Logger) *runStats {
	stats := &runStats{}

	targets, err := s.db.ListDueTargets(seedsPerRun)
	if err != nil {
		log.Error("failed to list due targets", "error", err)
		run.ErrorsCount++
		return stats
	}
	if len(targets) == 0 {
		log.Info("no seeds due")
		return stats
	}

	for _, seed := range targets {
		if ctx.Err() != nil {
			return stats
		}
		s.scrapeSeed(ctx, adapter, run, seed, stats, log)
		if err := s.db.TouchTargetSearched(seed.TargetID); err != nil {
			log.Warn("failed to touch target", "target_id", seed.TargetID, "error", err)
		}
	}
	return stats
}

func (s *Scheduler) scrapeSeed(ctx context.Context, adapter scrape.Adapter, run *domain.ScrapeRun, seed *domain.TargetTrack, stats *runStats, log *logger.Logger) {
	index := adapter.SearchTarget(seed.Query())

	resp, err := s.fetch(ctx, adapter, run, index, stats)
	if err != nil {
		log.Warn("index fetch failed", "url", index.URL, "error", err)
		run.ErrorsCount++
		return
	}

	details, err := adapter.ParseIndex(resp)
	if err != nil {
		log.Warn("index parse failed", "url", index.URL, "error", err)
		run.ErrorsCount++
		return
	}
	if len(details) > maxDetailPages {
		details = details[:maxDetailPages]
	}

	// Detail pages drain through the smart queue: highest priority first,
	// handed out only while the host bucket has capacity.
	pending := robots.NewSmartQueue(s.governor)
	byURL := make(map[string]scrape.TargetRef, len(details))
	for _, detail := range details {
		pending.Enqueue(detail.URL, detail.Priority)
		byURL[detail.URL] = detail
	}

	sc := s.cfg.SourceConfigFor(adapter.Name())
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	for i := 0; i < sc.MaxConcurrentPages; i++ {
		g.Go(func() error {
			for gctx.Err() == nil {
				item := pending.GetNext()
				if item == nil {
					if pending.Len() == 0 {
						return nil
					}
					// Host busy; let the in-flight fetch release the lease.
					select {
					case <-gctx.Done():
						return nil
					case <-time.After(200 * time.Millisecond):
					}
					continue
				}

				detail := byURL[item.URL]
				resp, err := s.fetch(gctx, adapter, run, detail, stats)
				if err != nil {
					log.Warn("detail fetch failed", "url", detail.URL, "error", err)
					mu.Lock()
					run.ErrorsCount++
					mu.Unlock()
					continue // one bad page never aborts the batch
				}

				records, err := adapter.ParseDetail(resp)
				if err != nil {
					log.Warn("detail parse failed", "url", detail.URL, "error", err)
					mu.Lock()
					run.ErrorsCount++
					mu.Unlock()
					continue
				}

				if err := s.db.InsertRawBatch(records); err != nil {
					log.Error("bronze insert failed", "url", detail.URL, "error", err)
					mu.Lock()
					run.ErrorsCount++
					mu.Unlock()
					continue
				}

				mu.Lock()
				for _, rec := range records {
					switch rec.ScrapeType {
					case domain.ScrapeTypePlaylist:
						run.PlaylistsFound++
					case domain.ScrapeTypeTrack:
						run.TracksAdded++
					case domain.ScrapeTypeArtist:
						run.ArtistsAdded++
					}
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers swallow their own errors
}

// fetch wraps Adapter.Fetch with extraction logging, anomaly feed and
// rate-limit accounting.
func (s *Scheduler) fetch(ctx context.Context, adapter scrape.Adapter, run *domain.ScrapeRun, target scrape.TargetRef, stats *runStats) (*scrape.RawResponse, error) {
	start := time.Now()
	resp, err := adapter.Fetch(ctx, target)
	duration := time.Since(start)

	var statusCode *int
	if resp != nil {
		statusCode = &resp.StatusCode
	}
	records := 0
	stats.mu.Lock()
	stats.attempts++
	if err == nil {
		stats.successes++
		records = 1
	} else if domain.KindOf(err) == domain.ErrKindRateLimited {
		stats.rateLimitHits++
	}
	stats.mu.Unlock()

	s.monitor.RecordExtraction(&run.RunID, adapter.Name(), target.URL, statusCode, duration, records, err)
	if s.detector != nil {
		s.detector.ObserveFetch(adapter.Name(), duration, err)
	}
	return resp, err
}

// reinterval recomputes the source interval from the run's success rate,
// inflated by rate-limit hits, clamped to the configured bounds and floored
// by the robots delay scaled to a full run's request budget.
func (s *Scheduler) reinterval(adapter scrape.Adapter, stats *runStats, log *logger.Logger) error {
	source := adapter.Name()
	state, err := s.db.GetScraperState(source)
	if err != nil {
		return err
	}

	sc := s.cfg.SourceConfigFor(source)
	interval := sc.MinInterval
	if sc.AdaptiveScheduling && stats.attempts > 0 {
		interval = nextInterval(sc, float64(stats.successes)/float64(stats.attempts), stats.rateLimitHits)
	}
	if floor := runFloor(s.robotsFloor(adapter)); interval < floor {
		interval = floor
	}

	now := time.Now()
	state.LastRunAt = &now
	state.CurrentIntervalSec = int(interval / time.Second)
	state.RateLimitHits += stats.rateLimitHits

	log.Info("interval updated", "interval", interval, "rate_limit_hits", stats.rateLimitHits)
	return s.db.SaveScraperState(state)
}

// nextInterval maps a run's success rate onto the interval band, then applies
// a compounding rate-limit penalty.
func nextInterval(sc config.SourceConfig, successRate float64, rateLimitHits int) time.Duration {
	var base time.Duration
	switch {
	case successRate >= 0.95:
		base = sc.MinInterval
	case successRate >= 0.80:
		base = time.Duration(1.5 * float64(sc.MinInterval))
	case successRate >= 0.50:
		base = 2 * sc.MinInterval
	default:
		base = 4 * sc.MinInterval
	}

	if rateLimitHits > 0 {
		penalty := math.Min(rateLimitPenaltyCap, math.Pow(1.5, float64(rateLimitHits)))
		base = time.Duration(float64(base) * penalty)
	}

	if base < sc.MinInterval {
		base = sc.MinInterval
	}
	if base > sc.MaxInterval {
		base = sc.MaxInterval
	}
	return base
}

// runFloor scales a crawl delay up to a full run's worth of requests, so the
// interval between runs never asks a host for more than its robots.txt allows.
func runFloor(crawlDelay time.Duration) time.Duration {
	return crawlDelay * expectedRunRequests
}

func (s *Scheduler) robotsFloor(adapter scrape.Adapter) time.Duration {
	floor := time.Duration(0)
	for _, domainName := range adapter.AllowedDomains() {
		host := domainName
		if u, err := url.Parse("https://" + domainName); err == nil && u.Host != "" {
			host = u.Host
		}
		if d := s.governor.CrawlDelay(host); d > floor {
			floor = d
		}
	}
	return floor
}

// Running reports the sources with a run in flight, for /stats.
func (s *Scheduler) Running() []domain.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Source, 0, len(s.running))
	for src := range s.running {
		out = append(out, src)
	}
	return out
}
