package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"bus-radar/internal/transit"
)

// Store is an optional Postgres cache of the stop catalog. It exists so a
// session can still come up when the upstream catalog endpoint is down.
type Store struct {
	db *sql.DB
}

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Init creates the bus_stops table if it does not exist yet.
func (s *Store) Init(ctx context.Context) error {
	q := `
CREATE TABLE IF NOT EXISTS bus_stops (
  code        text PRIMARY KEY,
  description text NOT NULL DEFAULT '',
  road_name   text NOT NULL DEFAULT '',
  lat         double precision NOT NULL,
  lon         double precision NOT NULL
)`
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("init bus_stops: %w", err)
	}
	return nil
}

// Stops returns every cached stop in code order.
func (s *Store) Stops(ctx context.Context) ([]transit.Stop, error) {
	q := `SELECT code, description, road_name, lat, lon FROM bus_stops ORDER BY code`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query bus_stops: %w", err)
	}
	defer rows.Close()

	var stops []transit.Stop
	for rows.Next() {
		var st transit.Stop
		if err := rows.Scan(&st.Code, &st.Description, &st.RoadName, &st.Latitude, &st.Longitude); err != nil {
			return nil, err
		}
		stops = append(stops, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stops, nil
}

// ReplaceStops swaps the cached catalog for the given one in a single
// transaction.
func (s *Store) ReplaceStops(ctx context.Context, stops []transit.Stop) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM bus_stops`); err != nil {
		return fmt.Errorf("clear bus_stops: %w", err)
	}
	q := `INSERT INTO bus_stops (code, description, road_name, lat, lon) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (code) DO UPDATE SET description = EXCLUDED.description, road_name = EXCLUDED.road_name, lat = EXCLUDED.lat, lon = EXCLUDED.lon`
	for _, st := range stops {
		if _, err := tx.ExecContext(ctx, q, st.Code, st.Description, st.RoadName, st.Latitude, st.Longitude); err != nil {
			return fmt.Errorf("insert stop %s: %w", st.Code, err)
		}
	}
	return tx.Commit()
}
