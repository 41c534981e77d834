package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sony/gobreaker"
)

// CityRecord is the normalized result of a city lookup.
type CityRecord struct {
	Name        string
	CountryCode string
	Latitude    float64
	Longitude   float64
	Population  int64
}

// CityClient looks up city metadata and population figures by name
// (API Ninjas /v1/city).
type CityClient struct {
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewCityClient(client *http.Client, apiKey string) *CityClient {
	return &CityClient{
		apiKey:  apiKey,
		baseURL: "https://api.api-ninjas.com/v1/city",
		httpCfg: defaultHTTPConfig(client),
		circuit: newBreaker("city"),
	}
}

// Lookup fetches metadata for one city name. An empty result array means
// the city is unknown upstream and yields ok=false with no error.
func (c *CityClient) Lookup(ctx context.Context, name string) (CityRecord, bool, error) {
	if c.apiKey == "" {
		return CityRecord{}, false, fmt.Errorf("city api key is not configured")
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("name", name)

		u := fmt.Sprintf("%s?%s", c.baseURL, values.Encode())
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Api-Key", c.apiKey)
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return CityRecord{}, false, err
	}
	defer resp.Body.Close()

	var payload []struct {
		Name       string  `json:"name"`
		Country    string  `json:"country"`
		Latitude   float64 `json:"latitude"`
		Longitude  float64 `json:"longitude"`
		Population int64   `json:"population"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return CityRecord{}, false, fmt.Errorf("decode city response for %q: %w", name, err)
	}

	// The API returns an array; the first match wins, none means unknown.
	if len(payload) == 0 {
		return CityRecord{}, false, nil
	}

	first := payload[0]
	return CityRecord{
		Name:        first.Name,
		CountryCode: first.Country,
		Latitude:    first.Latitude,
		Longitude:   first.Longitude,
		Population:  first.Population,
	}, true, nil
}
