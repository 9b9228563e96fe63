// Command setgraph runs the music-metadata pipeline: scrapers feeding the
// bronze store, the bronze-to-silver transformer, the enrichment waterfall
// with the artist resolver, and the long-running service combining all of
// them behind the control surface.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/setgraph/setgraph/internal/acousticbrainz"
	"github.com/setgraph/setgraph/internal/cache"
	"github.com/setgraph/setgraph/internal/config"
	"github.com/setgraph/setgraph/internal/discogs"
	"github.com/setgraph/setgraph/internal/domain"
	"github.com/setgraph/setgraph/internal/enrich"
	"github.com/setgraph/setgraph/internal/getsongbpm"
	"github.com/setgraph/setgraph/internal/health"
	"github.com/setgraph/setgraph/internal/lastfm"
	"github.com/setgraph/setgraph/internal/logger"
	"github.com/setgraph/setgraph/internal/musicbrainz"
	"github.com/setgraph/setgraph/internal/observe"
	"github.com/setgraph/setgraph/internal/queue"
	"github.com/setgraph/setgraph/internal/resolve"
	"github.com/setgraph/setgraph/internal/robots"
	"github.com/setgraph/setgraph/internal/scheduler"
	"github.com/setgraph/setgraph/internal/scrape"
	"github.com/setgraph/setgraph/internal/spotify"
	"github.com/setgraph/setgraph/internal/store"
	"github.com/setgraph/setgraph/internal/tidal"
	"github.com/setgraph/setgraph/internal/tracklists"
	"github.com/setgraph/setgraph/internal/transform"
)

const (
	exitOK          = 0
	exitError       = 1
	exitInterrupted = 130

	maintenanceInterval = time.Hour
	mbCacheTTL          = 7 * 24 * time.Hour

	// batchDeadline bounds one transform-and-enrich pass.
	batchDeadline = 10 * time.Minute
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: setgraph <command> [flags]

commands:
  serve            run scrapers, workers and the control surface
  run-pipeline     one-shot scrape, transform and enrich pass
  transform-bronze promote pending bronze records to silver
  enrich-track <track_id>    run the enrichment waterfall over one track
  resolve-artist <track_id>  run the artist resolver over one track`)
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return exitError
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch args[0] {
	case "serve":
		err = cmdServe(ctx, cfg, log)
	case "run-pipeline":
		err = cmdRunPipeline(ctx, cfg, log, args[1:])
	case "transform-bronze":
		err = cmdTransformBronze(ctx, cfg, log, args[1:])
	case "enrich-track":
		err = cmdEnrichTrack(ctx, cfg, log, args[1:])
	case "resolve-artist":
		err = cmdResolveArtist(ctx, cfg, log, args[1:])
	default:
		usage()
		return exitError
	}

	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			log.Info("interrupted")
			return exitInterrupted
		}
		log.Error("command failed", "error", err)
		return exitError
	}
	return exitOK
}

// app holds the wired dependency graph shared by every command.
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	db        *store.DB
	qdb       *store.QueueDB
	governor  *robots.Governor
	registry  *scrape.Registry
	monitor   *observe.Monitor
	detector  *observe.Detector
	quality   *observe.QualityChecker
	graphs    *observe.GraphValidator
	breakers  *enrich.BreakerSet
	waterfall *enrich.Waterfall
	resolver  *resolve.Resolver
	sched     *scheduler.Scheduler
}

func buildApp(cfg *config.Config, log *logger.Logger) (*app, error) {
	db, err := store.NewPostgres(cfg.PostgresDSN())
	if err != nil {
		return nil, err
	}
	qdb, err := store.NewQueueDB(cfg.QueueDBPath)
	if err != nil {
		return nil, err
	}

	var robotsCache cache.Cache
	if addr := cfg.RedisAddr(); addr != "" {
		robotsCache = cache.NewRedis(addr, cfg.RedisPassword, "setgraph")
	} else {
		robotsCache = cache.NewMemory()
	}

	ua := cfg.MusicBrainzUserAgent
	governor := robots.NewGovernor(ua, cfg.RobotsMinInterval, robotsCache, log)
	fetcher := scrape.NewFetcher(governor, ua)

	registry := scrape.NewRegistry()
	registry.Register(scrape.NewTracklists1001(fetcher, cfg.SourceConfigFor(domain.SourceTracklists1001)))
	registry.Register(scrape.NewMixesDB(fetcher, cfg.SourceConfigFor(domain.SourceMixesDB)))
	registry.Register(scrape.NewSetlistFM(fetcher, cfg.SourceConfigFor(domain.SourceSetlistFM)))
	registry.Register(scrape.NewReddit(fetcher, cfg.SourceConfigFor(domain.SourceReddit)))

	monitor := observe.NewMonitor(db, log)
	detector := observe.NewDetector(db, log)
	breakers := enrich.NewBreakerSet(log)

	mb := musicbrainz.NewCachedClient(
		musicbrainz.NewClient("", cfg.MusicBrainzUserAgent), qdb, mbCacheTTL)

	deps := enrich.Deps{
		DB:          db,
		Breakers:    breakers,
		MusicBrainz: mb,
	}
	var discogsClient *discogs.Client
	if cfg.SpotifyClientID != "" && cfg.SpotifyClientSecret != "" {
		deps.Spotify = spotify.NewClient(cfg.SpotifyClientID, cfg.SpotifyClientSecret)
	}
	if cfg.TidalAPIToken != "" {
		deps.Tidal = tidal.NewClient("", cfg.TidalAPIToken)
	}
	if cfg.DiscogsAPIToken != "" {
		discogsClient = discogs.NewClient("", cfg.DiscogsAPIToken, ua)
		deps.Discogs = discogsClient
	}
	if cfg.LastFMAPIKey != "" {
		deps.LastFM = lastfm.NewClient("", cfg.LastFMAPIKey)
	}
	deps.AcousticBrainz = acousticbrainz.NewClient("")
	if cfg.GetSongBPMAPIKey != "" {
		deps.GetSongBPM = getsongbpm.NewClient("", cfg.GetSongBPMAPIKey)
	}

	var discogsSearcher resolve.DiscogsSearcher
	if discogsClient != nil {
		discogsSearcher = discogsClient
	}
	resolver := resolve.New(db, tracklists.NewSearcher(fetcher), discogsSearcher, log)
	deps.Resolver = resolver

	waterfall := enrich.NewWaterfall(deps, log)
	sched := scheduler.New(cfg, db, registry, governor, monitor, detector, log)

	return &app{
		cfg:       cfg,
		log:       log,
		db:        db,
		qdb:       qdb,
		governor:  governor,
		registry:  registry,
		monitor:   monitor,
		detector:  detector,
		quality:   observe.NewQualityChecker(db, detector, log),
		graphs:    observe.NewGraphValidator(db, log),
		breakers:  breakers,
		waterfall: waterfall,
		resolver:  resolver,
		sched:     sched,
	}, nil
}

func (a *app) close() {
	if err := a.qdb.Close(); err != nil {
		a.log.Warn("failed to close queue db", "error", err)
	}
	if err := a.db.Close(); err != nil {
		a.log.Warn("failed to close warehouse", "error", err)
	}
}

func cmdServe(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	a, err := buildApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	dispatcher := queue.NewDispatcher(a.qdb, queue.Options{
		Workers:      cfg.TotalWorkers,
		PerTypeLimit: cfg.PerSourceLimit,
	}, log)
	dispatcher.Register(domain.TaskEnrichTrack, queue.EnrichHandler(a.db, a.waterfall))
	dispatcher.Register(domain.TaskResolveArtist, queue.ResolveHandler(a.db, a.resolver))

	server := health.NewServer(cfg.ListenAddr, a.db, a.qdb, a.breakers,
		a.governor, a.registry, a.sched, a.detector, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.sched.Run(ctx) })
	g.Go(func() error { return dispatcher.Run(ctx) })
	g.Go(func() error { return server.Run(ctx) })
	g.Go(func() error { return a.maintenanceLoop(ctx, dispatcher) })

	log.Info("setgraph serving", "addr", cfg.ListenAddr, "workers", cfg.TotalWorkers)
	return g.Wait()
}

// maintenanceLoop periodically transforms the bronze backlog, refills the
// work queue, snapshots data quality, validates playlist graphs and flushes
// anomalies.
func (a *app) maintenanceLoop(ctx context.Context, dispatcher *queue.Dispatcher) error {
	transformer := transform.New(a.db, a.log)
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		bctx, cancel := context.WithTimeout(ctx, batchDeadline)
		start := time.Now()
		res, err := transformer.Run(bctx, 0, false)
		if err != nil {
			if ctx.Err() != nil {
				cancel()
				return ctx.Err()
			}
			a.log.Error("transform pass failed", "error", err)
		} else {
			a.monitor.RecordStage(nil, "transform", start,
				res.Processed+res.SkippedInvalid+res.Errors, res.Processed, res.Errors)
		}

		if offered, err := dispatcher.EnqueuePending(a.db, 200); err != nil {
			a.log.Error("failed to enqueue pending work", "error", err)
		} else if offered > 0 {
			a.log.Info("queued pending work", "offered", offered)
		}

		if _, err := a.quality.SnapshotTracks(); err != nil {
			a.log.Error("quality snapshot failed", "error", err)
		}
		if _, err := a.graphs.ValidateRecent(20); err != nil {
			a.log.Error("graph validation failed", "error", err)
		}
		if err := a.detector.Flush(); err != nil {
			a.log.Error("anomaly flush failed", "error", err)
		}
		cancel()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func cmdRunPipeline(ctx context.Context, cfg *config.Config, log *logger.Logger, args []string) error {
	fs := flag.NewFlagSet("run-pipeline", flag.ExitOnError)
	forceRescrape := fs.Bool("force-rescrape", false, "reprocess all bronze records")
	clearLastSearched := fs.Bool("clear-last-searched", false, "make every seed due again")
	trackID := fs.String("track-id", "", "enrich only this track")
	artist := fs.String("artist", "", "seed artist to add before running")
	title := fs.String("title", "", "seed title to add before running")
	limit := fs.Int("limit", 100, "max tracks to enrich")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := buildApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	if *clearLastSearched {
		if err := a.db.ClearLastSearched(); err != nil {
			return err
		}
	}
	if *forceRescrape {
		if err := a.db.ResetProcessed(); err != nil {
			return err
		}
	}
	if *title != "" {
		if err := a.db.AddTarget(&domain.TargetTrack{
			TargetID:   uuid.New().String(),
			ArtistName: *artist,
			Title:      *title,
			Priority:   5,
			Enabled:    true,
			CreatedAt:  time.Now(),
		}); err != nil {
			return err
		}
	}

	if *trackID == "" {
		for _, adapter := range a.registry.All() {
			if !cfg.SourceConfigFor(adapter.Name()).Enabled {
				continue
			}
			if err := a.sched.RunSource(ctx, adapter.Name()); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Error("source run failed", "source", adapter.Name(), "error", err)
			}
		}
	}

	transformer := transform.New(a.db, log)
	res, err := transformer.Run(ctx, 0, false)
	if err != nil {
		return err
	}
	log.Info("transform done", "processed", res.Processed, "errors", res.Errors)

	var tracks []*domain.Track
	if *trackID != "" {
		track, err := a.db.GetTrackByID(*trackID)
		if err != nil {
			return err
		}
		tracks = append(tracks, track)
	} else {
		if tracks, err = a.db.ListTracksForEnrichment(*limit); err != nil {
			return err
		}
	}

	bctx, cancel := context.WithTimeout(ctx, batchDeadline)
	defer cancel()

	enriched := 0
	for _, track := range tracks {
		if err := bctx.Err(); err != nil {
			if ctx.Err() != nil {
				return err
			}
			log.Warn("batch deadline reached", "enriched", enriched, "of", len(tracks))
			break
		}
		if _, err := a.waterfall.Enrich(bctx, track); err != nil {
			log.Error("enrichment failed", "track_id", track.TrackID, "error", err)
			continue
		}
		enriched++
	}
	log.Info("pipeline done", "enriched", enriched, "of", len(tracks))

	if _, err := a.quality.SnapshotTracks(); err != nil {
		log.Warn("quality snapshot failed", "error", err)
	}
	return a.detector.Flush()
}

func cmdTransformBronze(ctx context.Context, cfg *config.Config, log *logger.Logger, args []string) error {
	fs := flag.NewFlagSet("transform-bronze", flag.ExitOnError)
	limit := fs.Int("limit", 0, "max bronze rows per scrape type (0 = default batch)")
	dryRun := fs.Bool("dry-run", false, "parse and validate without writing")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := buildApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := transform.New(a.db, log).Run(ctx, *limit, *dryRun)
	if err != nil {
		return err
	}
	return printJSON(res)
}

// positionalTrackID parses commands of the form "<command> <track_id>".
func positionalTrackID(cmd string, args []string) (string, error) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 || fs.Arg(0) == "" {
		return "", fmt.Errorf("usage: setgraph %s <track_id>", cmd)
	}
	return fs.Arg(0), nil
}

func cmdEnrichTrack(ctx context.Context, cfg *config.Config, log *logger.Logger, args []string) error {
	trackID, err := positionalTrackID("enrich-track", args)
	if err != nil {
		return err
	}

	a, err := buildApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	track, err := a.db.GetTrackByID(trackID)
	if err != nil {
		return err
	}
	status, err := a.waterfall.Enrich(ctx, track)
	if err != nil {
		return err
	}
	return printJSON(status)
}

func cmdResolveArtist(ctx context.Context, cfg *config.Config, log *logger.Logger, args []string) error {
	trackID, err := positionalTrackID("resolve-artist", args)
	if err != nil {
		return err
	}

	a, err := buildApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	track, err := a.db.GetTrackByID(trackID)
	if err != nil {
		return err
	}
	res, err := a.resolver.Resolve(ctx, track)
	if err != nil {
		return err
	}
	if res == nil {
		fmt.Println("no resolution")
		return nil
	}
	return printJSON(res)
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
