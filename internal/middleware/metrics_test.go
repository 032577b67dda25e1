package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/soltixdb/forecaster/internal/logging"
	"github.com/soltixdb/forecaster/internal/metrics"
	"github.com/soltixdb/forecaster/internal/services"
)

// requestCount reads forecaster_http_requests_total for one label set from
// the default registry.
func requestCount(t *testing.T, method, route, code string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "forecaster_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["method"] == method && labels["route"] == route && labels["code"] == code {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestMetrics_LabelsByRoutePattern(t *testing.T) {
	metrics.MustRegister()

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.Nop())})
	app.Use(Metrics())
	app.Get("/v1/forecasts/:id", func(c *fiber.Ctx) error {
		if c.Params("id") == "missing" {
			return services.NewServiceError(services.CodeJobNotFound, "not found")
		}
		return c.SendString("OK")
	})

	okBefore := requestCount(t, "GET", "/v1/forecasts/:id", "200")
	nfBefore := requestCount(t, "GET", "/v1/forecasts/:id", "404")

	for _, path := range []string{"/v1/forecasts/a", "/v1/forecasts/b", "/v1/forecasts/missing"} {
		if _, err := app.Test(httptest.NewRequest("GET", path, nil)); err != nil {
			t.Fatalf("Failed to test request: %v", err)
		}
	}

	if got := requestCount(t, "GET", "/v1/forecasts/:id", "200") - okBefore; got != 2 {
		t.Errorf("Expected 2 successful requests, got %v", got)
	}
	if got := requestCount(t, "GET", "/v1/forecasts/:id", "404") - nfBefore; got != 1 {
		t.Errorf("Expected 1 not found request, got %v", got)
	}
	if got := requestCount(t, "GET", "/v1/forecasts/a", "200"); got != 0 {
		t.Errorf("Expected no per-id label, got %v", got)
	}
}
