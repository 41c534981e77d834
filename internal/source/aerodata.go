package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
)

// AirportRecord is one airport found near a coordinate pair.
type AirportRecord struct {
	IATA string
	Name string
}

// FlightRecord is one scheduled arrival.
type FlightRecord struct {
	Number           string
	ScheduledArrival time.Time
}

// AeroDataClient searches airports by location and fetches arrival
// schedules (AeroDataBox via RapidAPI).
type AeroDataClient struct {
	apiKey  string
	host    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewAeroDataClient(client *http.Client, apiKey string) *AeroDataClient {
	return &AeroDataClient{
		apiKey:  apiKey,
		host:    "aerodatabox.p.rapidapi.com",
		baseURL: "https://aerodatabox.p.rapidapi.com",
		httpCfg: defaultHTTPConfig(client),
		circuit: newBreaker("aerodatabox"),
	}
}

func (c *AeroDataClient) get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("flights api key is not configured")
	}

	buildRequest := func() (*http.Request, error) {
		u := c.baseURL + path
		if len(query) > 0 {
			u = fmt.Sprintf("%s?%s", u, query.Encode())
		}
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("x-rapidapi-key", c.apiKey)
		req.Header.Set("x-rapidapi-host", c.host)
		return req, nil
	}

	return doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
}

// SearchAirports returns airports with live flight data within 50 km of
// the given coordinates, at most ten. Items without an IATA code are
// dropped.
func (c *AeroDataClient) SearchAirports(ctx context.Context, lat, lon float64) ([]AirportRecord, error) {
	query := url.Values{}
	query.Set("lat", fmt.Sprintf("%f", lat))
	query.Set("lon", fmt.Sprintf("%f", lon))
	query.Set("radiusKm", "50")
	query.Set("limit", "10")
	query.Set("withFlightInfoOnly", "true")

	resp, err := c.get(ctx, "/airports/search/location", query)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Items []struct {
			IATA string `json:"iata"`
			Name string `json:"name"`
		} `json:"items"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode airport search response: %w", err)
	}

	var records []AirportRecord
	for _, item := range payload.Items {
		if item.IATA == "" {
			continue
		}
		records = append(records, AirportRecord{IATA: item.IATA, Name: item.Name})
	}
	return records, nil
}

const (
	windowLayout    = "2006-01-02T15:04"
	scheduledLayout = "2006-01-02 15:04:05"
)

// FetchArrivals returns the arrivals scheduled at an airport within the
// given time window. The upstream local timestamp carries a zone offset;
// it is truncated to second precision and kept as local wall-clock time.
// Arrivals without a parseable scheduled time are dropped.
func (c *AeroDataClient) FetchArrivals(ctx context.Context, iata string, from, to time.Time) ([]FlightRecord, error) {
	path := fmt.Sprintf("/flights/airports/iata/%s/%s/%s",
		iata, from.Format(windowLayout), to.Format(windowLayout))

	query := url.Values{}
	query.Set("withLeg", "false")
	query.Set("direction", "Arrival")
	query.Set("withCancelled", "false")
	query.Set("withCodeshared", "true")
	query.Set("withCargo", "false")
	query.Set("withPrivate", "false")
	query.Set("withLocation", "false")

	resp, err := c.get(ctx, path, query)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Arrivals []struct {
			Number   string `json:"number"`
			Movement struct {
				ScheduledTime struct {
					Local string `json:"local"`
				} `json:"scheduledTime"`
			} `json:"movement"`
		} `json:"arrivals"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode arrivals response for %s: %w", iata, err)
	}

	var records []FlightRecord
	for _, arrival := range payload.Arrivals {
		ts, ok := parseScheduledLocal(arrival.Movement.ScheduledTime.Local)
		if !ok {
			continue
		}
		records = append(records, FlightRecord{
			Number:           arrival.Number,
			ScheduledArrival: ts,
		})
	}
	return records, nil
}

// parseScheduledLocal truncates an ISO-8601-like local timestamp to its
// first 19 characters (second precision, offset discarded) and parses it.
func parseScheduledLocal(local string) (time.Time, bool) {
	if len(local) < 19 {
		return time.Time{}, false
	}
	local = local[:19]

	for _, layout := range []string{scheduledLayout, "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, local); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
