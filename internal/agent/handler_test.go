package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridebench/dispatchsim/pkg/middleware"
	"github.com/ridebench/dispatchsim/pkg/models"
)

// erroringAgent fails every call with a plain error so tests can exercise
// the handler's default error classification.
type erroringAgent struct {
	err error
}

func (a *erroringAgent) Name() string { return "erroring" }

func (a *erroringAgent) Parse(ctx context.Context, request models.NaturalLanguageRequest, fleetView FleetView) (models.StructuredRequest, error) {
	return models.StructuredRequest{}, a.err
}

func (a *erroringAgent) Route(ctx context.Context, parsed models.StructuredRequest, fleetView FleetView) (models.RoutingDecision, error) {
	return models.RoutingDecision{}, a.err
}

func (a *erroringAgent) QueryDistanceAndTime(ctx context.Context, from, to models.Location) (float64, float64, error) {
	return 0, 0, a.err
}

func setupAgentRouter(agent RoutingAgent, groupMiddleware ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(agent).RegisterRoutes(router, groupMiddleware...)
	return router
}

func performJSON(t *testing.T, router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(http.MethodPost, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var envelope map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope
}

func TestHandlerParseSuccess(t *testing.T) {
	baseline, _, zones := newBaselineAgent()
	router := setupAgentRouter(baseline)

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	origin, _ := zones.Centroid(161)
	destination, _ := zones.Centroid(79)

	w := performJSON(t, router, "/v1/agent/parse", ParseRequest{
		Request: models.NaturalLanguageRequest{
			RequestID:   "req-001",
			RequestTime: at,
			Text:        "Midtown Center to East Village",
			GroundTruth: &models.StructuredRequest{
				Origin:         origin,
				Destination:    destination,
				PassengerCount: 2,
			},
		},
	})

	assert.Equal(t, http.StatusOK, w.Code)

	envelope := decodeEnvelope(t, w)
	assert.True(t, envelope["success"].(bool))

	parsed := envelope["data"].(map[string]interface{})["parsed"].(map[string]interface{})
	assert.Equal(t, "req-001", parsed["request_id"])
	assert.Equal(t, float64(2), parsed["passenger_count"])

	parsedOrigin := parsed["origin"].(map[string]interface{})
	assert.Equal(t, float64(161), parsedOrigin["zone_id"])
}

func TestHandlerParseRejectsMalformedJSON(t *testing.T) {
	baseline, _, _ := newBaselineAgent()
	router := setupAgentRouter(baseline)

	w := performJSON(t, router, "/v1/agent/parse", `{invalid json`)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	envelope := decodeEnvelope(t, w)
	assert.False(t, envelope["success"].(bool))

	errInfo := envelope["error"].(map[string]interface{})
	assert.Equal(t, float64(http.StatusBadRequest), errInfo["code"])
	assert.NotEmpty(t, errInfo["message"])
}

func TestHandlerParseClassifiesPlainErrors(t *testing.T) {
	router := setupAgentRouter(&erroringAgent{err: errors.New("model exploded")})

	w := performJSON(t, router, "/v1/agent/parse", ParseRequest{
		Request: models.NaturalLanguageRequest{
			RequestID:   "req-002",
			RequestTime: time.Now(),
			Text:        "anywhere",
		},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	envelope := decodeEnvelope(t, w)
	assert.False(t, envelope["success"].(bool))

	errInfo := envelope["error"].(map[string]interface{})
	assert.Equal(t, "AGENT_PARSE_ERROR", errInfo["error_code"])
	assert.Equal(t, "model exploded", errInfo["message"])
}

func TestHandlerRouteSuccess(t *testing.T) {
	baseline, _, _ := newBaselineAgent()
	router := setupAgentRouter(baseline)

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	w := performJSON(t, router, "/v1/agent/route", RouteRequest{
		Parsed: models.StructuredRequest{
			RequestID:      "req-003",
			RequestTime:    at,
			Origin:         models.Location{Latitude: 40.76, Longitude: -73.98},
			Destination:    models.Location{Latitude: 40.78, Longitude: -73.98},
			PassengerCount: 1,
		},
		Fleet: []models.Vehicle{idleVehicle("veh-001", 40.75, -73.98)},
	})

	assert.Equal(t, http.StatusOK, w.Code)

	envelope := decodeEnvelope(t, w)
	assert.True(t, envelope["success"].(bool))

	decision := envelope["data"].(map[string]interface{})["decision"].(map[string]interface{})
	assert.Equal(t, "veh-001", decision["vehicle_id"])
	assert.Equal(t, "req-003", decision["request_id"])
	assert.InDelta(t, 0.69, decision["estimated_pickup_distance_miles"].(float64), 1e-6)
	assert.InDelta(t, 1.38, decision["estimated_trip_distance_miles"].(float64), 1e-6)
}

func TestHandlerRouteNoVehicleEnvelope(t *testing.T) {
	baseline, _, _ := newBaselineAgent()
	router := setupAgentRouter(baseline)

	w := performJSON(t, router, "/v1/agent/route", RouteRequest{
		Parsed: models.StructuredRequest{
			RequestID:   "req-004",
			RequestTime: time.Now(),
			Origin:      models.Location{Latitude: 40.76, Longitude: -73.98},
			Destination: models.Location{Latitude: 40.78, Longitude: -73.98},
		},
		Fleet: []models.Vehicle{},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	envelope := decodeEnvelope(t, w)
	assert.False(t, envelope["success"].(bool))

	errInfo := envelope["error"].(map[string]interface{})
	assert.Equal(t, "AGENT_ROUTE_ERROR", errInfo["error_code"])
	assert.Contains(t, errInfo["message"], "req-004")
}

func TestHandlerDistance(t *testing.T) {
	baseline, _, _ := newBaselineAgent()
	router := setupAgentRouter(baseline)

	w := performJSON(t, router, "/v1/agent/distance", DistanceRequest{
		From: models.Location{Latitude: 40.75, Longitude: -73.98},
		To:   models.Location{Latitude: 40.76, Longitude: -73.98},
	})

	assert.Equal(t, http.StatusOK, w.Code)

	envelope := decodeEnvelope(t, w)
	assert.True(t, envelope["success"].(bool))

	data := envelope["data"].(map[string]interface{})
	assert.InDelta(t, 0.69, data["miles"].(float64), 1e-6)
	assert.InDelta(t, 1.38, data["minutes"].(float64), 1e-6)
}

func TestHandlerDistanceRequiresEndpoints(t *testing.T) {
	baseline, _, _ := newBaselineAgent()
	router := setupAgentRouter(baseline)

	w := performJSON(t, router, "/v1/agent/distance", `{}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerInternalAPIKeyGuardsAgentRoutes(t *testing.T) {
	baseline, _, _ := newBaselineAgent()
	router := setupAgentRouter(baseline, middleware.InternalAPIKey("secret-key"))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	body := DistanceRequest{
		From: models.Location{Latitude: 40.75, Longitude: -73.98},
		To:   models.Location{Latitude: 40.76, Longitude: -73.98},
	}

	t.Run("missing key rejected", func(t *testing.T) {
		w := performJSON(t, router, "/v1/agent/distance", body)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong key rejected", func(t *testing.T) {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/v1/agent/distance", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(InternalAPIKeyHeader, "wrong")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("correct key accepted", func(t *testing.T) {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/v1/agent/distance", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(InternalAPIKeyHeader, "secret-key")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("health endpoint stays open", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestHandlerRegisterRoutes(t *testing.T) {
	baseline, _, _ := newBaselineAgent()
	router := setupAgentRouter(baseline)

	expected := map[string]bool{
		"POST /v1/agent/parse":    false,
		"POST /v1/agent/route":    false,
		"POST /v1/agent/distance": false,
	}
	for _, route := range router.Routes() {
		key := route.Method + " " + route.Path
		if _, ok := expected[key]; ok {
			expected[key] = true
		}
	}
	for route, found := range expected {
		assert.True(t, found, "expected route %s to be registered", route)
	}
}
