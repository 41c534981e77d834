package pipeline

import (
	"context"
	"time"

	"citysync/internal/source"
	"citysync/internal/store"
)

// Store is the contract the jobs need from the datastore: the driving key
// reads and the batch upsert write. Satisfied by store.Postgres and by
// the in-memory store used in tests.
type Store interface {
	ListCities(ctx context.Context) ([]store.City, error)
	ListAirportCodes(ctx context.Context) ([]string, error)
	ReconcileBatch(ctx context.Context, spec store.TableSpec, rows [][]any) error
}

// CitySource looks up city metadata and population by name.
type CitySource interface {
	Lookup(ctx context.Context, name string) (source.CityRecord, bool, error)
}

// WeatherSource fetches forecast slots by coordinates.
type WeatherSource interface {
	FetchForecast(ctx context.Context, lat, lon float64) ([]source.ForecastRecord, error)
}

// AirportSource searches airports near coordinates and fetches arrival
// schedules.
type AirportSource interface {
	SearchAirports(ctx context.Context, lat, lon float64) ([]source.AirportRecord, error)
	FetchArrivals(ctx context.Context, iata string, from, to time.Time) ([]source.FlightRecord, error)
}
