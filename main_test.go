package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"catalog/internal/config"
	"catalog/internal/models"
	"catalog/internal/telemetry"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(authEnabled bool) *config.Config {
	return &config.Config{
		AppPort:  ":0",
		Database: config.DatabaseConfig{Driver: "memory"},
		Auth: config.AuthConfig{
			Enabled:   authEnabled,
			JWTSecret: "test_jwt_secret",
		},
		Telemetry: config.TelemetryConfig{
			ServiceName: "catalog-test",
			Environment: "test",
			LogLevel:    "error",
		},
	}
}

func newTestApp(t *testing.T, authEnabled bool) *App {
	t.Helper()

	telem, err := telemetry.New(context.Background(), &testConfig(authEnabled).Telemetry, io.Discard)
	require.NoError(t, err)

	app, err := NewApp(testConfig(authEnabled), telem)
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, app.closeResources())
		assert.NoError(t, telem.Shutdown(context.Background()))
	})
	return app
}

func doJSON(t *testing.T, app *App, method, path, token string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(jsonBody)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Fiber.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthCheck(t *testing.T) {
	app := newTestApp(t, false)

	resp := doJSON(t, app, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "disabled", health["database"])
	assert.Equal(t, "disabled", health["rabbitmq"])
	assert.NotEmpty(t, health["time"])
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t, false)

	resp := doJSON(t, app, http.MethodPost, "/api/v1/products", "", map[string]any{"name": "Lamp", "price": 12})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, app, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "products_created_total")
	assert.Contains(t, string(body), "products_operations_total")
}

func TestProductRoutesAreOpenByDefault(t *testing.T) {
	app := newTestApp(t, false)

	resp := doJSON(t, app, http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var products []models.Product
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&products))
	assert.Empty(t, products)
}

func TestUnknownRouteUsesJSONErrors(t *testing.T) {
	app := newTestApp(t, false)

	resp := doJSON(t, app, http.MethodGet, "/does-not-exist", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body["message"])
}

func TestAuthGuardedProductRoutes(t *testing.T) {
	app := newTestApp(t, true)

	resp := doJSON(t, app, http.MethodGet, "/health", "", nil)
	var health map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "up", health["database"])

	resp = doJSON(t, app, http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "authuser",
		"email":    "auth@example.com",
		"password": "securepassword",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "authuser",
		"password": "securepassword",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var login map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))
	token := login["token"]
	require.NotEmpty(t, token)

	resp = doJSON(t, app, http.MethodPost, "/api/v1/products", token, map[string]any{
		"name":  "Smartphone",
		"price": "799.99",
		"stock": 50,
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, app, http.MethodGet, "/api/v1/products", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var products []models.Product
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&products))
	require.Len(t, products, 1)
	assert.Equal(t, "Smartphone", products[0].Name)

	resp = doJSON(t, app, http.MethodGet, "/api/v1/products", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogProductEvent(t *testing.T) {
	handler := logProductEvent(slog.New(slog.NewTextHandler(io.Discard, nil)))

	body, err := json.Marshal(models.NewProductEvent(models.EventProductDeleted, 7, nil))
	require.NoError(t, err)
	assert.NoError(t, handler(amqp.Delivery{Body: body}))

	assert.NoError(t, handler(amqp.Delivery{Body: []byte("not json")}))
	assert.Error(t, handler(amqp.Delivery{Body: []byte(`{"product_id":7}`)}))
}
