package middleware

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"metarepo/internal/identity"
	"metarepo/internal/model"
)

func TestRequestID(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())

	app.Get("/test", func(c *fiber.Ctx) error {
		rid := c.Locals(RequestIDLocalKey)
		return c.SendString(rid.(string))
	})

	t.Run("should generate new request id if not present", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		ridHeader := resp.Header.Get(RequestIDHeader)
		assert.NotEmpty(t, ridHeader)

		buf := new(bytes.Buffer)
		buf.ReadFrom(resp.Body)
		assert.Equal(t, ridHeader, buf.String())
	})

	t.Run("should preserve existing request id", func(t *testing.T) {
		existingID := "test-id-123"
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set(RequestIDHeader, existingID)

		resp, _ := app.Test(req)

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, existingID, resp.Header.Get(RequestIDHeader))

		buf := new(bytes.Buffer)
		buf.ReadFrom(resp.Body)
		assert.Equal(t, existingID, buf.String())
	})

	t.Run("should replace an unusable request id", func(t *testing.T) {
		for _, bad := range []string{"has space", strings.Repeat("x", 129), "tab\tid"} {
			req := httptest.NewRequest("GET", "/test", nil)
			req.Header.Set(RequestIDHeader, bad)

			resp, _ := app.Test(req)

			got := resp.Header.Get(RequestIDHeader)
			assert.NotEqual(t, bad, got)
			_, err := uuid.Parse(got)
			assert.NoError(t, err)
		}
	})
}

func TestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	app := fiber.New()

	app.Use(RequestID())
	app.Use(Logger(zap.New(core)))
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(PrincipalLocalKey, &model.Principal{Username: "alice"})
		return c.Next()
	})

	app.Get("/test", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusAccepted)
	})
	app.Get("/missing", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "nope")
	})

	resp, _ := app.Test(httptest.NewRequest("GET", "/test", nil))
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	fields := entry.ContextMap()
	assert.NotEmpty(t, fields["request_id"])
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/test", fields["path"])
	assert.Equal(t, int64(fiber.StatusAccepted), fields["status"])
	assert.Equal(t, "alice", fields["user"])
	assert.Equal(t, "http", fields["component"])
	assert.Contains(t, fields, "latency_ms")

	app.Test(httptest.NewRequest("GET", "/missing", nil))
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, zapcore.WarnLevel, logs.All()[1].Level)
	assert.Equal(t, int64(fiber.StatusNotFound), logs.All()[1].ContextMap()["status"])
}

type authFunc func(ctx context.Context, token string) (*model.Principal, error)

func (f authFunc) Authenticate(ctx context.Context, token string) (*model.Principal, error) {
	return f(ctx, token)
}

func TestLogger_TraceID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	app := fiber.New()
	app.Use(Logger(zap.New(core)))
	app.Use(func(c *fiber.Ctx) error {
		ctx, span := tp.Tracer("test").Start(c.UserContext(), "request")
		defer span.End()
		c.SetUserContext(ctx)
		return c.Next()
	})
	app.Get("/traced", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	_, err := app.Test(httptest.NewRequest("GET", "/traced", nil))
	require.NoError(t, err)
	require.Equal(t, 1, logs.Len())
	traceID, _ := logs.All()[0].ContextMap()["trace_id"].(string)
	assert.Len(t, traceID, 32)
}

func TestAuth(t *testing.T) {
	alice := &model.Principal{Username: "alice"}
	a := authFunc(func(_ context.Context, token string) (*model.Principal, error) {
		switch token {
		case "Bearer good":
			return alice, nil
		case "Bearer down":
			return nil, fmt.Errorf("%w: dial tcp", identity.ErrUnavailable)
		default:
			return nil, fmt.Errorf("%w: token rejected", model.ErrAuthorization)
		}
	})

	app := fiber.New()
	app.Use(Auth(a))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.SendString(PrincipalFrom(c).Username)
	})

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid token", "Bearer good", fiber.StatusOK},
		{"missing header", "", fiber.StatusUnauthorized},
		{"rejected token", "Bearer bad", fiber.StatusUnauthorized},
		{"identity service down", "Bearer down", fiber.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, _ := app.Test(req)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantStatus == fiber.StatusOK {
				buf := new(bytes.Buffer)
				buf.ReadFrom(resp.Body)
				assert.Equal(t, "alice", buf.String())
			}
		})
	}
}

func TestPrincipalFrom_Unset(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		assert.Nil(t, PrincipalFrom(c))
		return nil
	})
	app.Test(httptest.NewRequest("GET", "/", nil))
}
