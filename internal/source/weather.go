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

// ForecastRecord is one normalized 3-hour forecast slot.
type ForecastRecord struct {
	Temperature       float64
	MainForecast      string
	Description       string
	WindSpeed         float64
	DateTime          time.Time
	PrecipProbability float64
	RainAmount        float64
}

// WeatherClient fetches 5-day forecasts by coordinates
// (OpenWeatherMap /data/2.5/forecast, metric units).
type WeatherClient struct {
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewWeatherClient(client *http.Client, apiKey string) *WeatherClient {
	return &WeatherClient{
		apiKey:  apiKey,
		baseURL: "https://api.openweathermap.org/data/2.5/forecast",
		httpCfg: defaultHTTPConfig(client),
		circuit: newBreaker("openweather"),
	}
}

const forecastSlotLayout = "2006-01-02 15:04:05"

// FetchForecast returns forecast slots for the given coordinates, sampled
// every other 3-hour slot (a 6-hour cadence). Optional fields absent from
// a slot decode to zero values; in particular a missing rain volume is 0.
func (c *WeatherClient) FetchForecast(ctx context.Context, lat, lon float64) ([]ForecastRecord, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("weather api key is not configured")
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("lat", fmt.Sprintf("%f", lat))
		values.Set("lon", fmt.Sprintf("%f", lon))
		values.Set("appid", c.apiKey)
		values.Set("units", "metric")

		u := fmt.Sprintf("%s?%s", c.baseURL, values.Encode())
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		List []struct {
			Dt   int64 `json:"dt"`
			Main struct {
				Temp float64 `json:"temp"`
			} `json:"main"`
			Weather []struct {
				Main        string `json:"main"`
				Description string `json:"description"`
			} `json:"weather"`
			Wind struct {
				Speed float64 `json:"speed"`
			} `json:"wind"`
			Pop  float64 `json:"pop"`
			Rain struct {
				ThreeH float64 `json:"3h"`
			} `json:"rain"`
			DtTxt string `json:"dt_txt"`
		} `json:"list"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode forecast response: %w", err)
	}

	var records []ForecastRecord
	for i := 0; i < len(payload.List); i += 2 {
		slot := payload.List[i]

		ts, err := time.Parse(forecastSlotLayout, slot.DtTxt)
		if err != nil {
			ts = time.Unix(slot.Dt, 0).UTC()
		}

		var mainForecast, description string
		if len(slot.Weather) > 0 {
			mainForecast = slot.Weather[0].Main
			description = slot.Weather[0].Description
		}

		records = append(records, ForecastRecord{
			Temperature:       slot.Main.Temp,
			MainForecast:      mainForecast,
			Description:       description,
			WindSpeed:         slot.Wind.Speed,
			DateTime:          ts,
			PrecipProbability: slot.Pop,
			RainAmount:        slot.Rain.ThreeH,
		})
	}

	return records, nil
}
