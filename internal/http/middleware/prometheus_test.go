package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMetricsApp(t *testing.T) (*fiber.App, *PrometheusMiddleware, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := NewPrometheusMiddleware(reg)
	require.NoError(t, err)

	app := fiber.New()
	app.Use(m.Handler())
	app.Post("/metarepo/find", func(c *fiber.Ctx) error {
		return c.JSON([]string{})
	})
	app.Get("/metarepo/docs/:id", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Post("/metarepo/notate", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusConflict, "busy")
	})
	app.Get("/slow", func(c *fiber.Ctx) error {
		time.Sleep(20 * time.Millisecond)
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Get("/metrics", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app, m, reg
}

// latency returns the histogram series for method and path, or nil.
func latency(t *testing.T, reg *prometheus.Registry, method, path string) *dto.Histogram {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "http_request_duration_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["method"] == method && labels["path"] == path {
				return m.GetHistogram()
			}
		}
	}
	return nil
}

func TestPrometheusMiddleware(t *testing.T) {
	app, m, reg := newMetricsApp(t)

	tests := []struct {
		method, target string
		status         int
	}{
		{"POST", "/metarepo/find", fiber.StatusOK},
		{"POST", "/metarepo/find", fiber.StatusOK},
		{"GET", "/metarepo/docs/123", fiber.StatusOK},
		{"GET", "/metarepo/docs/456", fiber.StatusOK},
		{"POST", "/metarepo/notate", fiber.StatusConflict},
	}
	for _, tt := range tests {
		resp, err := app.Test(httptest.NewRequest(tt.method, tt.target, nil))
		require.NoError(t, err)
		assert.Equal(t, tt.status, resp.StatusCode)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestCount.WithLabelValues("POST", "/metarepo/find", "200")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestCount.WithLabelValues("GET", "/metarepo/docs/:id", "200")), "route pattern, not raw path")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestCount.WithLabelValues("POST", "/metarepo/notate", "409")), "fiber error code counted")

	find := latency(t, reg, "POST", "/metarepo/find")
	require.NotNil(t, find)
	assert.Equal(t, uint64(2), find.GetSampleCount())

	docs := latency(t, reg, "GET", "/metarepo/docs/:id")
	require.NotNil(t, docs)
	assert.Equal(t, uint64(2), docs.GetSampleCount())
	assert.Nil(t, latency(t, reg, "GET", "/metarepo/docs/123"))

	notate := latency(t, reg, "POST", "/metarepo/notate")
	require.NotNil(t, notate)
	assert.Equal(t, uint64(1), notate.GetSampleCount(), "failed requests are timed too")
}

func TestPrometheusMiddleware_LatencyBuckets(t *testing.T) {
	app, _, reg := newMetricsApp(t)

	_, err := app.Test(httptest.NewRequest("GET", "/slow", nil))
	require.NoError(t, err)

	h := latency(t, reg, "GET", "/slow")
	require.NotNil(t, h)
	assert.Equal(t, uint64(1), h.GetSampleCount())
	assert.GreaterOrEqual(t, h.GetSampleSum(), 0.02)

	seen := 0
	for _, b := range h.GetBucket() {
		switch {
		case b.GetUpperBound() < 0.02:
			assert.Zero(t, b.GetCumulativeCount(), "le=%v", b.GetUpperBound())
			seen++
		case b.GetUpperBound() == 10:
			assert.Equal(t, uint64(1), b.GetCumulativeCount())
			seen++
		}
	}
	assert.Equal(t, 3, seen, "buckets 0.005, 0.01 and 10")
}

func TestPrometheusMiddleware_ExcludeMetrics(t *testing.T) {
	app, _, reg := newMetricsApp(t)

	_, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		assert.Empty(t, mf.GetMetric(), "%s must not observe /metrics", mf.GetName())
	}
	assert.Nil(t, latency(t, reg, "GET", "/metrics"))
}

func TestPrometheusMiddleware_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheusMiddleware(reg)
	require.NoError(t, err)

	_, err = NewPrometheusMiddleware(reg)
	assert.Error(t, err)
}
