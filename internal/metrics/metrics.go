package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	WorkingSetSize prometheus.Gauge
	Sightings      prometheus.Gauge

	CyclesTotal   prometheus.Counter
	StopFetchErrs prometheus.Counter

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	CycleDuration   prometheus.Histogram
	FetchDuration   prometheus.Histogram
	PublishDuration prometheus.Histogram

	PollInterval     prometheus.Gauge // seconds
	RadiusMeters     prometheus.Gauge
	FetchConcurrency prometheus.Gauge
}

func NewCollector(pollInterval time.Duration, radiusMeters float64, fetchConcurrency int) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		WorkingSetSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "radar_working_set_stops",
			Help: "Number of stops in the current working set.",
		}),
		Sightings: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "radar_sightings",
			Help: "Number of deduplicated sightings in the latest snapshot.",
		}),
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radar_cycles_total",
			Help: "Total refresh cycles completed.",
		}),
		StopFetchErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radar_stop_fetch_errors_total",
			Help: "Total per-stop feed fetches that failed.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radar_nats_published_total",
			Help: "Total NATS snapshot messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radar_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "radar_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "radar_cycle_duration_seconds",
			Help:    "Duration of one full refresh cycle.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "radar_stop_fetch_duration_seconds",
			Help:    "Duration of a single per-stop feed fetch.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "radar_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		PollInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "radar_poll_interval_seconds",
			Help: "Refresh interval in seconds.",
		}),
		RadiusMeters: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "radar_radius_meters",
			Help: "Current search radius in meters.",
		}),
		FetchConcurrency: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "radar_fetch_concurrency",
			Help: "Maximum concurrent per-stop fetches.",
		}),
	}

	reg.MustRegister(
		c.WorkingSetSize, c.Sightings,
		c.CyclesTotal, c.StopFetchErrs,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.CycleDuration, c.FetchDuration, c.PublishDuration,
		c.PollInterval, c.RadiusMeters, c.FetchConcurrency,
	)

	c.PollInterval.Set(pollInterval.Seconds())
	c.RadiusMeters.Set(radiusMeters)
	c.FetchConcurrency.Set(float64(fetchConcurrency))

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
