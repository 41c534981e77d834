package httpapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citysync/internal/pipeline"
	"citysync/internal/source"
)

type seededCitySource struct {
	records map[string]source.CityRecord
}

func (s *seededCitySource) Lookup(_ context.Context, name string) (source.CityRecord, bool, error) {
	rec, ok := s.records[name]
	return rec, ok, nil
}

func newTestApp() (*fiber.App, *pipeline.MemoryStore) {
	mem := pipeline.NewMemoryStore()
	citySrc := &seededCitySource{records: map[string]source.CityRecord{
		"Berlin": {Name: "Berlin", CountryCode: "DE", Latitude: 52.5, Longitude: 13.4, Population: 3645000},
	}}

	jobs := pipeline.New(mem, citySrc, nil, nil, nil)

	app := fiber.New()
	RegisterRoutes(app, jobs, []string{"Berlin"})
	return app, mem
}

func TestTriggerSeedCities(t *testing.T) {
	app, mem := newTestApp()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/seed-cities", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusOK, string(body))

	cities, err := mem.ListCities(context.Background())
	require.NoError(t, err)
	require.Len(t, cities, 1)
	assert.Equal(t, "Berlin", cities[0].Name)
}

func TestTriggerUnknownJobIs404(t *testing.T) {
	app, _ := newTestApp()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/reticulate-splines", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTriggerIgnoresOpaquePayload(t *testing.T) {
	app, _ := newTestApp()

	// Whatever the external scheduler sends along is irrelevant.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/seed-cities",
		strings.NewReader(`{"trigger":"cron","attempt":2}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
