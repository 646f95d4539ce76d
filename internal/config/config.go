package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"bus-radar/internal/transit"
)

type Config struct {
	DataMallKey     string
	DataMallBaseURL string
	DatabaseURL     string
	NATSURL         string
	NATSSubject     string
	MetricsAddr     string
	ListenAddr      string

	PollInterval     time.Duration
	RadiusMeters     float64
	FetchConcurrency int
	HTTPTimeout      time.Duration
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	// DataMall credentials; the legacy variable name is still honoured
	cfg.DataMallKey = firstNonEmpty(
		os.Getenv("DATAMALL_ACCOUNT_KEY"),
		os.Getenv("LTA_API_KEY"),
	)
	if cfg.DataMallKey == "" {
		return nil, errors.New("DATAMALL_ACCOUNT_KEY (or LTA_API_KEY) must be set")
	}
	cfg.DataMallBaseURL = os.Getenv("DATAMALL_BASE_URL")

	// Optional Postgres catalog cache: DATABASE_URL/PG_DSN, else PG* parts
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" && os.Getenv("PGDATABASE") != "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		db := os.Getenv("PGDATABASE")
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
		} else {
			dsn = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
		}
	}
	cfg.DatabaseURL = dsn

	// NATS snapshot publishing; empty URL disables it
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSSubject = getenvDefault("NATS_SUBJECT", "bus.snapshots")

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	cfg.ListenAddr = getenvDefault("LISTEN_ADDR", ":8080")

	// Poll interval
	if v := os.Getenv("POLL_INTERVAL_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid POLL_INTERVAL_SEC: %q", v)
		}
		cfg.PollInterval = time.Duration(sec) * time.Second
	} else {
		cfg.PollInterval = 15 * time.Second
	}

	// Initial search radius; must be one of the allowed values
	if v := os.Getenv("RADIUS_M"); v != "" {
		m, err := strconv.ParseFloat(v, 64)
		if err != nil || !transit.ValidRadius(m) {
			return nil, fmt.Errorf("invalid RADIUS_M: %q (allowed: %v)", v, transit.AllowedRadii)
		}
		cfg.RadiusMeters = m
	} else {
		cfg.RadiusMeters = 1000
	}

	// Bounded fan-out for per-stop feed fetches
	if v := os.Getenv("FETCH_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid FETCH_CONCURRENCY: %q", v)
		}
		cfg.FetchConcurrency = n
	} else {
		cfg.FetchConcurrency = 8
	}

	// Per-request timeout for DataMall calls
	if v := os.Getenv("HTTP_TIMEOUT_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid HTTP_TIMEOUT_SEC: %q", v)
		}
		cfg.HTTPTimeout = time.Duration(sec) * time.Second
	} else {
		cfg.HTTPTimeout = 10 * time.Second
	}

	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
