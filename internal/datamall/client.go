package datamall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"bus-radar/internal/transit"
)

const (
	// DefaultBaseURL is the production DataMall OData root.
	DefaultBaseURL = "https://datamall2.mytransport.sg/ltaodataservice"

	// The BusStops endpoint caps each page at 500 records.
	catalogPageSize = 500

	maxRetries      = 3
	initialInterval = 200 * time.Millisecond
)

// Client talks to the LTA DataMall endpoints: the BusStops catalog and the
// per-stop BusArrivalv2 live feed.
type Client struct {
	baseURL    string
	accountKey string
	httpClient *http.Client
}

func NewClient(baseURL, accountKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		accountKey: accountKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type httpStatusError struct {
	Code int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("datamall: HTTP %d", e.Code)
}

// get fetches path with query params and decodes the JSON response into out.
// Transient failures (429, 5xx, network errors) are retried with exponential
// backoff; other HTTP errors fail immediately.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	operation := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("AccountKey", c.accountKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			statusErr := &httpStatusError{Code: resp.StatusCode}
			switch resp.StatusCode {
			case http.StatusTooManyRequests,
				http.StatusInternalServerError,
				http.StatusBadGateway,
				http.StatusServiceUnavailable,
				http.StatusGatewayTimeout:
				return nil, statusErr
			}
			return nil, backoff.Permanent(statusErr)
		}

		return io.ReadAll(resp.Body)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = initialInterval
	body, err := backoff.RetryWithData(operation, backoff.WithContext(backoff.WithMaxRetries(expo, maxRetries), ctx))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// FetchAllStops pages through the BusStops catalog. If a page fails after at
// least one page already succeeded, the stops collected so far are returned
// rather than failing the whole call; an error is returned only when nothing
// was fetched at all.
func (c *Client) FetchAllStops(ctx context.Context) ([]transit.Stop, error) {
	var all []transit.Stop
	for skip := 0; ; skip += catalogPageSize {
		params := url.Values{}
		if skip > 0 {
			params.Set("$skip", strconv.Itoa(skip))
		}
		var page busStopsResponse
		if err := c.get(ctx, "/BusStops", params, &page); err != nil {
			if len(all) > 0 {
				return all, nil
			}
			return nil, fmt.Errorf("fetch bus stops: %w", err)
		}
		for _, s := range page.Value {
			all = append(all, s.toStop())
		}
		if len(page.Value) < catalogPageSize {
			break
		}
	}
	return all, nil
}

// FetchArrivals returns the live arrivals for one stop. Failures are explicit
// so callers can tell a failed stop from a stop with no upcoming buses.
func (c *Client) FetchArrivals(ctx context.Context, stopCode string) (transit.StopArrivals, error) {
	if stopCode == "" {
		return transit.StopArrivals{}, errors.New("datamall: stop code is required")
	}
	params := url.Values{}
	params.Set("BusStopCode", stopCode)
	var resp arrivalsResponse
	if err := c.get(ctx, "/BusArrivalv2", params, &resp); err != nil {
		return transit.StopArrivals{}, fmt.Errorf("fetch arrivals for stop %s: %w", stopCode, err)
	}
	return resp.toStopArrivals(), nil
}
