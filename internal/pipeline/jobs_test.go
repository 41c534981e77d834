package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citysync/internal/source"
	"citysync/internal/store"
)

type stubCitySource struct {
	records map[string]source.CityRecord
	errs    map[string]error
}

func (s *stubCitySource) Lookup(_ context.Context, name string) (source.CityRecord, bool, error) {
	if err := s.errs[name]; err != nil {
		return source.CityRecord{}, false, err
	}
	rec, ok := s.records[name]
	return rec, ok, nil
}

type stubWeatherSource struct {
	records []source.ForecastRecord
	err     error
}

func (s *stubWeatherSource) FetchForecast(_ context.Context, _, _ float64) ([]source.ForecastRecord, error) {
	return s.records, s.err
}

type arrivalsCall struct {
	iata string
	from time.Time
	to   time.Time
}

type stubAirportSource struct {
	airports  []source.AirportRecord
	searchErr error
	arrivals  map[string][]source.FlightRecord
	calls     []arrivalsCall
}

func (s *stubAirportSource) SearchAirports(_ context.Context, _, _ float64) ([]source.AirportRecord, error) {
	return s.airports, s.searchErr
}

func (s *stubAirportSource) FetchArrivals(_ context.Context, iata string, from, to time.Time) ([]source.FlightRecord, error) {
	s.calls = append(s.calls, arrivalsCall{iata: iata, from: from, to: to})
	return s.arrivals[iata], nil
}

func berlin() source.CityRecord {
	return source.CityRecord{
		Name:        "Berlin",
		CountryCode: "DE",
		Latitude:    52.5,
		Longitude:   13.4,
		Population:  3645000,
	}
}

func TestSeedCitiesThenRefreshPopulations(t *testing.T) {
	mem := NewMemoryStore()
	citySrc := &stubCitySource{records: map[string]source.CityRecord{"Berlin": berlin()}}

	jobs := New(mem, citySrc, nil, nil, nil)
	jobs.now = func() time.Time { return time.Date(2026, 8, 29, 6, 0, 0, 0, time.UTC) }

	status, err := jobs.SeedCities(context.Background(), []string{"Berlin"})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, status)

	cities := mem.Rows(store.Cities.Name)
	require.Len(t, cities, 1)
	assert.Equal(t, []any{"Berlin", "DE", 52.5, 13.4}, cities[0])

	status, err = jobs.RefreshPopulations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusOK, status)

	populations := mem.Rows(store.Populations.Name)
	require.Len(t, populations, 1)
	assert.Equal(t, []any{1, int64(3645000), "2026-08-29"}, populations[0])
}

func TestSeedCitiesIsIdempotentWithLatestValues(t *testing.T) {
	mem := NewMemoryStore()
	citySrc := &stubCitySource{records: map[string]source.CityRecord{"Berlin": berlin()}}
	jobs := New(mem, citySrc, nil, nil, nil)

	_, err := jobs.SeedCities(context.Background(), []string{"Berlin"})
	require.NoError(t, err)

	// Revised coordinates under the same natural key.
	revised := berlin()
	revised.Latitude = 52.52
	citySrc.records["Berlin"] = revised

	_, err = jobs.SeedCities(context.Background(), []string{"Berlin"})
	require.NoError(t, err)

	cities := mem.Rows(store.Cities.Name)
	require.Len(t, cities, 1)
	assert.Equal(t, 52.52, cities[0][2])
}

func TestSeedCitiesSkipsFailedAndUnknownEntities(t *testing.T) {
	mem := NewMemoryStore()
	citySrc := &stubCitySource{
		records: map[string]source.CityRecord{"Berlin": berlin()},
		errs:    map[string]error{"Hamburg": errors.New("timeout")},
	}
	jobs := New(mem, citySrc, nil, nil, nil)

	// One fetch fails, one city is unknown upstream: the job still
	// succeeds and writes the remaining city.
	status, err := jobs.SeedCities(context.Background(), []string{"Hamburg", "Atlantis", "Berlin"})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, status)

	cities := mem.Rows(store.Cities.Name)
	require.Len(t, cities, 1)
	assert.Equal(t, "Berlin", cities[0][0])
}

func TestRefreshPopulationsKeyStability(t *testing.T) {
	mem := NewMemoryStore()
	citySrc := &stubCitySource{records: map[string]source.CityRecord{"Berlin": berlin()}}
	jobs := New(mem, citySrc, nil, nil, nil)

	_, err := jobs.SeedCities(context.Background(), []string{"Berlin"})
	require.NoError(t, err)

	_, err = jobs.RefreshPopulations(context.Background())
	require.NoError(t, err)

	revised := berlin()
	revised.Population = 3677000
	citySrc.records["Berlin"] = revised

	_, err = jobs.RefreshPopulations(context.Background())
	require.NoError(t, err)

	populations := mem.Rows(store.Populations.Name)
	require.Len(t, populations, 1)
	assert.Equal(t, int64(3677000), populations[0][1])
}

func TestRefreshWeatherAppendsOnEveryRun(t *testing.T) {
	mem := NewMemoryStore()
	citySrc := &stubCitySource{records: map[string]source.CityRecord{"Berlin": berlin()}}
	weatherSrc := &stubWeatherSource{records: []source.ForecastRecord{
		{Temperature: 21.3, MainForecast: "Clouds", Description: "scattered clouds", WindSpeed: 4.2,
			DateTime: time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC), PrecipProbability: 0.2},
		{Temperature: 19.8, MainForecast: "Rain", Description: "light rain", WindSpeed: 5.1,
			DateTime: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC), PrecipProbability: 0.7, RainAmount: 1.2},
	}}
	jobs := New(mem, citySrc, weatherSrc, nil, nil)

	_, err := jobs.SeedCities(context.Background(), []string{"Berlin"})
	require.NoError(t, err)

	// Two runs, no dedup: the row count doubles. This is the documented
	// append-only behavior, not a bug.
	_, err = jobs.RefreshWeather(context.Background())
	require.NoError(t, err)
	_, err = jobs.RefreshWeather(context.Background())
	require.NoError(t, err)

	assert.Len(t, mem.Rows(store.CityWeather.Name), 4)
}

func TestRefreshWeatherFailedCityDoesNotAbortOthers(t *testing.T) {
	mem := NewMemoryStore()
	require.NoError(t, mem.ReconcileBatch(context.Background(), store.Cities, [][]any{
		{"Berlin", "DE", 52.5, 13.4},
		{"Hamburg", "DE", 53.55, 9.99},
	}))

	calls := 0
	weatherSrc := &flakyWeatherSource{fail: func() bool { calls++; return calls == 1 }}
	jobs := New(mem, nil, weatherSrc, nil, nil)

	status, err := jobs.RefreshWeather(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusOK, status)

	// First city's fetch timed out; the second city's slot still landed.
	rows := mem.Rows(store.CityWeather.Name)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0][0])
}

type flakyWeatherSource struct {
	fail func() bool
}

func (s *flakyWeatherSource) FetchForecast(_ context.Context, _, _ float64) ([]source.ForecastRecord, error) {
	if s.fail() {
		return nil, errors.New("timeout")
	}
	return []source.ForecastRecord{{Temperature: 18.0, MainForecast: "Clear"}}, nil
}

func TestSeedAirportsAndLinks(t *testing.T) {
	mem := NewMemoryStore()
	require.NoError(t, mem.ReconcileBatch(context.Background(), store.Cities, [][]any{
		{"Berlin", "DE", 52.5, 13.4},
		{"Potsdam", "DE", 52.4, 13.06},
	}))

	// Both cities are within range of the same airport.
	aero := &stubAirportSource{airports: []source.AirportRecord{{IATA: "BER", Name: "Berlin Brandenburg"}}}
	jobs := New(mem, nil, nil, aero, nil)

	_, err := jobs.SeedAirports(context.Background())
	require.NoError(t, err)

	// One airport row despite two contributing cities.
	airports := mem.Rows(store.Airports.Name)
	require.Len(t, airports, 1)
	assert.Equal(t, []any{"BER", "Berlin Brandenburg"}, airports[0])

	_, err = jobs.LinkCityAirports(context.Background())
	require.NoError(t, err)

	// One link per (city, airport) pair; re-running adds nothing.
	_, err = jobs.LinkCityAirports(context.Background())
	require.NoError(t, err)
	assert.Len(t, mem.Rows(store.CityAirports.Name), 2)
}

func TestRefreshFlightsUsesTwoWindowsOfNextDay(t *testing.T) {
	mem := NewMemoryStore()
	require.NoError(t, mem.ReconcileBatch(context.Background(), store.Airports, [][]any{
		{"BER", "Berlin Brandenburg"},
	}))

	aero := &stubAirportSource{arrivals: map[string][]source.FlightRecord{
		"BER": {{Number: "LH 1234", ScheduledArrival: time.Date(2026, 8, 30, 14, 35, 0, 0, time.UTC)}},
	}}
	jobs := New(mem, nil, nil, aero, nil)
	jobs.now = func() time.Time { return time.Date(2026, 8, 29, 6, 0, 0, 0, time.UTC) }

	status, err := jobs.RefreshFlights(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusOK, status)

	require.Len(t, aero.calls, 2)
	assert.Equal(t, time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), aero.calls[0].from)
	assert.Equal(t, time.Date(2026, 8, 30, 11, 59, 0, 0, time.UTC), aero.calls[0].to)
	assert.Equal(t, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC), aero.calls[1].from)
	assert.Equal(t, time.Date(2026, 8, 30, 23, 59, 0, 0, time.UTC), aero.calls[1].to)

	// One arrival returned per window call.
	rows := mem.Rows(store.Flights.Name)
	require.Len(t, rows, 2)
	assert.Equal(t, "BER", rows[0][0])
	assert.Equal(t, "LH 1234", rows[0][1])
}

func TestJobsReturnStoreErrors(t *testing.T) {
	jobs := New(&failingStore{}, &stubCitySource{records: map[string]source.CityRecord{"Berlin": berlin()}}, nil, nil, nil)

	_, err := jobs.SeedCities(context.Background(), []string{"Berlin"})
	assert.Error(t, err)
}

type failingStore struct{}

func (f *failingStore) ListCities(context.Context) ([]store.City, error) {
	return nil, errors.New("connection refused")
}

func (f *failingStore) ListAirportCodes(context.Context) ([]string, error) {
	return nil, errors.New("connection refused")
}

func (f *failingStore) ReconcileBatch(context.Context, store.TableSpec, [][]any) error {
	return errors.New("connection refused")
}
