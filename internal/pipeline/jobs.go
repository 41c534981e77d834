// Package pipeline wires the external sources, the batch builder and the
// store reconciler into the top-level refresh jobs.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"citysync/internal/source"
	"citysync/internal/store"
)

// StatusOK is the confirmation returned by every successful job run.
const StatusOK = "Data successfully added"

const dateLayout = "2006-01-02"

// Jobs holds the externally triggered pipeline entry points. Each job is
// stateless across invocations: it reads its driving key set from the
// store, fetches per key, accumulates a batch and reconciles it in one
// transaction. Failures of a single entity's fetch are logged and the
// job moves on; store errors abort the run and propagate to the caller.
type Jobs struct {
	store   Store
	cities  CitySource
	weather WeatherSource
	aero    AirportSource
	log     *zap.Logger
	now     func() time.Time
}

// New creates the job set.
func New(st Store, cities CitySource, weather WeatherSource, aero AirportSource, log *zap.Logger) *Jobs {
	if log == nil {
		log = zap.NewNop()
	}
	return &Jobs{
		store:   st,
		cities:  cities,
		weather: weather,
		aero:    aero,
		log:     log,
		now:     time.Now,
	}
}

func (j *Jobs) runLogger(job string) *zap.Logger {
	return j.log.With(zap.String("job", job), zap.String("run_id", uuid.NewString()))
}

// SeedCities looks up each configured city name and upserts the cities
// reference table keyed by city name.
func (j *Jobs) SeedCities(ctx context.Context, names []string) (string, error) {
	log := j.runLogger("seed_cities")

	var batch Batch[source.CityRecord]
	for _, name := range names {
		rec, ok, err := j.cities.Lookup(ctx, name)
		if err != nil {
			log.Warn("city lookup failed", zap.String("city", name), zap.Error(err))
			continue
		}
		if !ok {
			log.Warn("city unknown upstream", zap.String("city", name))
			continue
		}
		batch.Append(rec)
	}

	rows := make([][]any, 0, batch.Len())
	for _, rec := range batch.Items() {
		rows = append(rows, []any{rec.Name, rec.CountryCode, rec.Latitude, rec.Longitude})
	}

	if err := j.store.ReconcileBatch(ctx, store.Cities, rows); err != nil {
		return "", err
	}
	log.Info("cities reconciled", zap.Int("rows", len(rows)))
	return StatusOK, nil
}

// SeedAirports searches airports near each seeded city and upserts the
// airports reference table keyed by IATA code.
func (j *Jobs) SeedAirports(ctx context.Context) (string, error) {
	log := j.runLogger("seed_airports")

	cities, err := j.store.ListCities(ctx)
	if err != nil {
		return "", err
	}

	var batch Batch[source.AirportRecord]
	for _, city := range cities {
		records, err := j.aero.SearchAirports(ctx, city.Latitude, city.Longitude)
		if err != nil {
			log.Warn("airport search failed", zap.String("city", city.Name), zap.Error(err))
			continue
		}
		batch.Append(records...)
	}

	rows := make([][]any, 0, batch.Len())
	for _, rec := range batch.Items() {
		rows = append(rows, []any{rec.IATA, rec.Name})
	}

	if err := j.store.ReconcileBatch(ctx, store.Airports, rows); err != nil {
		return "", err
	}
	log.Info("airports reconciled", zap.Int("rows", len(rows)))
	return StatusOK, nil
}

type cityAirportLink struct {
	cityID int
	iata   string
}

// LinkCityAirports rebuilds the city-airport bridge rows. Pairs already
// present are left untouched; the composite key carries no attributes.
func (j *Jobs) LinkCityAirports(ctx context.Context) (string, error) {
	log := j.runLogger("link_city_airports")

	cities, err := j.store.ListCities(ctx)
	if err != nil {
		return "", err
	}

	var batch Batch[cityAirportLink]
	for _, city := range cities {
		records, err := j.aero.SearchAirports(ctx, city.Latitude, city.Longitude)
		if err != nil {
			log.Warn("airport search failed", zap.String("city", city.Name), zap.Error(err))
			continue
		}
		for _, rec := range records {
			batch.Append(cityAirportLink{cityID: city.ID, iata: rec.IATA})
		}
	}

	rows := make([][]any, 0, batch.Len())
	for _, link := range batch.Items() {
		rows = append(rows, []any{link.cityID, link.iata})
	}

	if err := j.store.ReconcileBatch(ctx, store.CityAirports, rows); err != nil {
		return "", err
	}
	log.Info("city-airport links reconciled", zap.Int("rows", len(rows)))
	return StatusOK, nil
}

type populationFact struct {
	cityID     int
	population int64
}

// RefreshPopulations fetches the current population figure per city and
// overwrites the single populations row keyed by city id.
func (j *Jobs) RefreshPopulations(ctx context.Context) (string, error) {
	log := j.runLogger("refresh_populations")

	cities, err := j.store.ListCities(ctx)
	if err != nil {
		return "", err
	}

	var batch Batch[populationFact]
	for _, city := range cities {
		rec, ok, err := j.cities.Lookup(ctx, city.Name)
		if err != nil {
			log.Warn("city lookup failed", zap.String("city", city.Name), zap.Error(err))
			continue
		}
		if !ok {
			log.Warn("city unknown upstream", zap.String("city", city.Name))
			continue
		}
		batch.Append(populationFact{cityID: city.ID, population: rec.Population})
	}

	today := j.now().Format(dateLayout)
	rows := make([][]any, 0, batch.Len())
	for _, fact := range batch.Items() {
		rows = append(rows, []any{fact.cityID, fact.population, today})
	}

	if err := j.store.ReconcileBatch(ctx, store.Populations, rows); err != nil {
		return "", err
	}
	log.Info("populations reconciled", zap.Int("rows", len(rows)))
	return StatusOK, nil
}

type weatherFact struct {
	cityID int
	slot   source.ForecastRecord
}

// RefreshWeather fetches the forecast per city and appends the sampled
// slots. Prior rows are never checked: re-running within a window
// produces duplicates.
func (j *Jobs) RefreshWeather(ctx context.Context) (string, error) {
	log := j.runLogger("refresh_weather")

	cities, err := j.store.ListCities(ctx)
	if err != nil {
		return "", err
	}

	var batch Batch[weatherFact]
	for _, city := range cities {
		records, err := j.weather.FetchForecast(ctx, city.Latitude, city.Longitude)
		if err != nil {
			log.Warn("forecast fetch failed", zap.String("city", city.Name), zap.Error(err))
			continue
		}
		for _, rec := range records {
			batch.Append(weatherFact{cityID: city.ID, slot: rec})
		}
	}

	rows := make([][]any, 0, batch.Len())
	for _, fact := range batch.Items() {
		rows = append(rows, []any{
			fact.cityID,
			fact.slot.Temperature,
			fact.slot.MainForecast,
			fact.slot.Description,
			fact.slot.WindSpeed,
			fact.slot.DateTime,
			fact.slot.PrecipProbability,
			fact.slot.RainAmount,
		})
	}

	if err := j.store.ReconcileBatch(ctx, store.CityWeather, rows); err != nil {
		return "", err
	}
	log.Info("weather reconciled", zap.Int("rows", len(rows)))
	return StatusOK, nil
}

type flightFact struct {
	iata   string
	flight source.FlightRecord
}

// RefreshFlights fetches tomorrow's scheduled arrivals per airport, in
// two half-day windows, and appends them.
func (j *Jobs) RefreshFlights(ctx context.Context) (string, error) {
	log := j.runLogger("refresh_flights")

	codes, err := j.store.ListAirportCodes(ctx)
	if err != nil {
		return "", err
	}

	nextDay := j.now().AddDate(0, 0, 1)
	day := time.Date(nextDay.Year(), nextDay.Month(), nextDay.Day(), 0, 0, 0, 0, nextDay.Location())
	windows := [][2]time.Time{
		{day, day.Add(11*time.Hour + 59*time.Minute)},
		{day.Add(12 * time.Hour), day.Add(23*time.Hour + 59*time.Minute)},
	}

	var batch Batch[flightFact]
	for _, code := range codes {
		for _, window := range windows {
			records, err := j.aero.FetchArrivals(ctx, code, window[0], window[1])
			if err != nil {
				log.Warn("arrivals fetch failed", zap.String("airport", code), zap.Error(err))
				continue
			}
			for _, rec := range records {
				batch.Append(flightFact{iata: code, flight: rec})
			}
		}
	}

	rows := make([][]any, 0, batch.Len())
	for _, fact := range batch.Items() {
		rows = append(rows, []any{fact.iata, fact.flight.Number, fact.flight.ScheduledArrival})
	}

	if err := j.store.ReconcileBatch(ctx, store.Flights, rows); err != nil {
		return "", err
	}
	log.Info("flights reconciled", zap.Int("rows", len(rows)))
	return StatusOK, nil
}
