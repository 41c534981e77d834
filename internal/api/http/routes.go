package httpapi

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"citysync/internal/pipeline"
)

// RegisterRoutes wires the job trigger endpoints into the Fiber app.
// The request body is an opaque trigger payload and is ignored; a
// successful run answers with the job's status string, a failed one
// with a 500 so the scheduler can retry the whole invocation.
func RegisterRoutes(app *fiber.App, jobs *pipeline.Jobs, cityList []string) {
	v1 := app.Group("/api/v1")

	triggers := map[string]func(context.Context) (string, error){
		"seed-cities": func(ctx context.Context) (string, error) {
			return jobs.SeedCities(ctx, cityList)
		},
		"seed-airports":       jobs.SeedAirports,
		"link-city-airports":  jobs.LinkCityAirports,
		"refresh-populations": jobs.RefreshPopulations,
		"refresh-weather":     jobs.RefreshWeather,
		"refresh-flights":     jobs.RefreshFlights,
	}

	v1.Post("/jobs/:name", func(c *fiber.Ctx) error {
		trigger, ok := triggers[c.Params("name")]
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "unknown job")
		}

		status, err := trigger(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		return c.SendString(status)
	})
}
