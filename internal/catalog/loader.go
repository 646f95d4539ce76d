package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"

	"bus-radar/internal/transit"
)

// ErrCatalogUnavailable means no stops could be obtained from the upstream
// catalog or the cache. Fatal to the whole feature; the core never retries.
var ErrCatalogUnavailable = errors.New("catalog unavailable")

// Source is the upstream stop-catalog endpoint.
type Source interface {
	FetchAllStops(ctx context.Context) ([]transit.Stop, error)
}

// Load fetches the stop catalog for this session. The upstream API wins; the
// Postgres cache (if configured) is refreshed on success and used as a
// fallback when the API yields nothing.
func Load(ctx context.Context, src Source, store *Store) ([]transit.Stop, error) {
	stops, err := src.FetchAllStops(ctx)
	if err != nil {
		log.Printf("catalog fetch failed: %v", err)
	}
	if len(stops) > 0 {
		if store != nil {
			if err := store.ReplaceStops(ctx, stops); err != nil {
				log.Printf("catalog cache refresh failed: %v", err)
			}
		}
		return stops, nil
	}

	if store != nil {
		cached, cacheErr := store.Stops(ctx)
		if cacheErr != nil {
			log.Printf("catalog cache read failed: %v", cacheErr)
		}
		if len(cached) > 0 {
			log.Printf("using cached catalog with %d stops", len(cached))
			return cached, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	return nil, ErrCatalogUnavailable
}
