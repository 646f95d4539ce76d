package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"bus-radar/internal/api"
	"bus-radar/internal/catalog"
	"bus-radar/internal/config"
	"bus-radar/internal/datamall"
	"bus-radar/internal/metrics"
	"bus-radar/internal/publisher"
	"bus-radar/internal/tracker"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := datamall.NewClient(cfg.DataMallBaseURL, cfg.DataMallKey, cfg.HTTPTimeout)

	// Optional Postgres catalog cache
	var store *catalog.Store
	if cfg.DatabaseURL != "" {
		store, err = catalog.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db open error: %v", err)
		}
		defer store.Close()
		if err := store.Ping(ctx); err != nil {
			log.Fatalf("db ping error: %v", err)
		}
		if err := store.Init(ctx); err != nil {
			log.Fatalf("db init error: %v", err)
		}
	}

	// The catalog is loaded once per session; without it there is nothing
	// to track, so failure here is fatal.
	stops, err := catalog.Load(ctx, client, store)
	if err != nil {
		log.Fatalf("catalog error: %v", err)
	}
	log.Printf("loaded %d stops", len(stops))

	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.PollInterval, cfg.RadiusMeters, cfg.FetchConcurrency)
		srv := mcol.Serve(cfg.MetricsAddr)
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// Optional NATS snapshot publishing
	var snapPub tracker.SnapshotPublisher
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject, wrapPublisherMetrics(mcol))
		if err != nil {
			log.Fatalf("nats error: %v", err)
		}
		defer pub.Close()
		snapPub = pub
	}

	trk := tracker.New(client, tracker.Options{
		Interval:    cfg.PollInterval,
		Concurrency: cfg.FetchConcurrency,
		Publisher:   snapPub,
		Metrics:     mcol,
	})
	trk.SetCatalog(stops)
	if err := trk.SetRadius(cfg.RadiusMeters); err != nil {
		log.Fatalf("radius error: %v", err)
	}
	trk.Start(ctx)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	api.NewHandler(trk, stops).RegisterRoutes(e)
	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()
	log.Printf("api listening on %s", cfg.ListenAddr)

	// Block until context cancelled
	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("api shutdown error: %v", err)
	}
	trk.Stop()
	log.Println("shutdown complete")
}

// wrapPublisherMetrics adapts the Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
