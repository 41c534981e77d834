// Package store persists fetched city, weather and flight data in
// PostgreSQL and implements the batch upsert reconciliation the refresh
// jobs are built on.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// Postgres wraps a PostgreSQL connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// Open opens a connection pool to PostgreSQL and verifies connectivity.
func Open(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (d *Postgres) Close() {
	d.pool.Close()
}

// CreateSchema creates the tables if they do not exist.
func (d *Postgres) CreateSchema(ctx context.Context) error {
	schema := `
	-- Reference data: cities tracked by the pipeline.
	CREATE TABLE IF NOT EXISTS cities (
		city_id      SERIAL PRIMARY KEY,
		city_name    TEXT NOT NULL UNIQUE,
		country_code TEXT,
		latitude     DOUBLE PRECISION,
		longitude    DOUBLE PRECISION
	);

	-- Reference data: airports near tracked cities.
	CREATE TABLE IF NOT EXISTS airports (
		airport_iata TEXT PRIMARY KEY,
		airport_name TEXT
	);

	-- Bridge between cities and airports (many-to-many, within 50 km).
	CREATE TABLE IF NOT EXISTS cities_airports (
		city_id      INTEGER NOT NULL REFERENCES cities(city_id),
		airport_iata TEXT NOT NULL REFERENCES airports(airport_iata),
		PRIMARY KEY (city_id, airport_iata)
	);

	-- One population figure per city, overwritten on refresh.
	CREATE TABLE IF NOT EXISTS populations (
		city_id              INTEGER PRIMARY KEY REFERENCES cities(city_id),
		population           BIGINT,
		timestamp_population DATE
	);

	-- Forecast slots, appended on every refresh.
	CREATE TABLE IF NOT EXISTS city_weather (
		city_id                 INTEGER NOT NULL REFERENCES cities(city_id),
		temperature             DOUBLE PRECISION,
		main_forecast           TEXT,
		description             TEXT,
		wind_speed              DOUBLE PRECISION,
		date_time               TIMESTAMP,
		chance_of_precipitation DOUBLE PRECISION,
		rain_amount             DOUBLE PRECISION
	);

	CREATE INDEX IF NOT EXISTS idx_city_weather_city ON city_weather(city_id);

	-- Scheduled arrivals, appended on every refresh.
	CREATE TABLE IF NOT EXISTS flights (
		arrival_iata           TEXT NOT NULL REFERENCES airports(airport_iata),
		flight_num             TEXT,
		arrival_time_scheduled TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_flights_arrival ON flights(arrival_iata);
	`

	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// City is a row of the cities reference table.
type City struct {
	ID        int
	Name      string
	Latitude  float64
	Longitude float64
}

// ListCities returns the driving key set for the city-scoped jobs.
func (d *Postgres) ListCities(ctx context.Context) ([]City, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT city_id, city_name, COALESCE(latitude, 0), COALESCE(longitude, 0)
		FROM cities
		ORDER BY city_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cities []City
	for rows.Next() {
		var c City
		if err := rows.Scan(&c.ID, &c.Name, &c.Latitude, &c.Longitude); err != nil {
			return nil, err
		}
		cities = append(cities, c)
	}
	return cities, rows.Err()
}

// ListAirportCodes returns the IATA codes driving the flights job.
func (d *Postgres) ListAirportCodes(ctx context.Context) ([]string, error) {
	rows, err := d.pool.Query(ctx, `SELECT airport_iata FROM airports ORDER BY airport_iata`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// ReconcileBatch writes one batch against its target table: a single
// multi-row upsert statement, on one connection, in one transaction.
// Rows whose natural key already exists have their non-key columns
// overwritten (last write wins); append-only targets always insert.
// An empty batch commits nothing and is not an error.
func (d *Postgres) ReconcileBatch(ctx context.Context, spec TableSpec, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	for i, row := range rows {
		if len(row) != len(spec.Columns) {
			return fmt.Errorf("reconcile %s: row %d has %d values, want %d",
				spec.Name, i, len(row), len(spec.Columns))
		}
	}
	rows = collapseByKey(spec, rows)

	args := make([]any, 0, len(rows)*len(spec.Columns))
	for _, row := range rows {
		args = append(args, row...)
	}

	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, buildUpsertSQL(spec, len(rows)), args...); err != nil {
		return fmt.Errorf("reconcile %s: %w", spec.Name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s batch: %w", spec.Name, err)
	}
	return nil
}

// Pool returns the underlying connection pool for advanced operations.
func (d *Postgres) Pool() *pgxpool.Pool {
	return d.pool
}
