package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ridebench/dispatchsim/pkg/common"
	"github.com/ridebench/dispatchsim/pkg/geo"
	"github.com/ridebench/dispatchsim/pkg/httpclient"
	"github.com/ridebench/dispatchsim/pkg/logger"
	"github.com/ridebench/dispatchsim/pkg/models"
	"github.com/ridebench/dispatchsim/pkg/resilience"
)

// InternalAPIKeyHeader authenticates simulator-to-agent calls.
const InternalAPIKeyHeader = "X-Internal-API-Key"

// RemoteAgent implements RoutingAgent against an agent server speaking the
// /v1/agent HTTP protocol. Every call goes through the shared retry policy
// and a circuit breaker; distance queries fall back to the local oracle when
// the remote endpoint misbehaves, so a flaky agent degrades estimates rather
// than halting the run.
type RemoteAgent struct {
	name    string
	client  *httpclient.Client
	breaker *resilience.CircuitBreaker
	apiKey  string
	oracle  geo.Oracle
}

// NewRemoteAgent creates a remote agent client for the given base URL.
// The oracle is used as a fallback for distance queries only.
func NewRemoteAgent(baseURL string, timeout time.Duration, apiKey string, settings resilience.Settings, oracle geo.Oracle) *RemoteAgent {
	if settings.Name == "" {
		settings.Name = "routing-agent"
	}

	return &RemoteAgent{
		name:    fmt.Sprintf("remote[%s]", baseURL),
		client:  httpclient.NewClient(baseURL, timeout, httpclient.WithDefaultRetry()),
		breaker: resilience.NewCircuitBreaker(settings, resilience.NoopFallback),
		apiKey:  apiKey,
		oracle:  oracle,
	}
}

// Name returns the agent identifier used in logs and event payloads.
func (a *RemoteAgent) Name() string {
	return a.name
}

// Parse sends the natural-language request and a fleet snapshot to the
// remote agent and returns its structured interpretation.
func (a *RemoteAgent) Parse(ctx context.Context, request models.NaturalLanguageRequest, fleetView FleetView) (models.StructuredRequest, error) {
	var out ParseResponse
	if err := a.post(ctx, "/v1/agent/parse", ParseRequest{Request: request, Fleet: fleetView.All()}, &out); err != nil {
		return models.StructuredRequest{}, remoteCallError(err, common.CodeAgentParseError, "remote agent parse failed")
	}
	return out.Parsed, nil
}

// Route sends the parsed request and a fleet snapshot to the remote agent
// and returns its routing decision.
func (a *RemoteAgent) Route(ctx context.Context, parsed models.StructuredRequest, fleetView FleetView) (models.RoutingDecision, error) {
	var out RouteResponse
	if err := a.post(ctx, "/v1/agent/route", RouteRequest{Parsed: parsed, Fleet: fleetView.All()}, &out); err != nil {
		return models.RoutingDecision{}, remoteCallError(err, common.CodeAgentRouteError, "remote agent route failed")
	}
	return out.Decision, nil
}

// QueryDistanceAndTime asks the remote agent for a distance estimate and
// falls back to the local oracle when the call fails.
func (a *RemoteAgent) QueryDistanceAndTime(ctx context.Context, from, to models.Location) (float64, float64, error) {
	var out DistanceResponse
	if err := a.post(ctx, "/v1/agent/distance", DistanceRequest{From: from, To: to}, &out); err != nil {
		logger.WarnContext(ctx, "remote distance query failed, using local oracle",
			zap.String("agent", a.name),
			zap.Error(err),
		)
		miles, minutes := a.oracle.Query(from, to)
		return miles, minutes, nil
	}
	return out.Miles, out.Minutes, nil
}

func (a *RemoteAgent) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	headers := map[string]string{}
	if a.apiKey != "" {
		headers[InternalAPIKeyHeader] = a.apiKey
	}

	result, err := a.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return a.client.Post(ctx, path, body, headers)
	})
	if err != nil {
		return err
	}

	raw := result.([]byte)
	var envelope struct {
		Success bool              `json:"success"`
		Data    json.RawMessage   `json:"data"`
		Error   *common.ErrorInfo `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("failed to decode agent response: %w", err)
	}
	if !envelope.Success {
		if envelope.Error != nil {
			return common.NewAppError(envelope.Error.Code, envelope.Error.ErrorCode, envelope.Error.Message, nil)
		}
		return fmt.Errorf("agent returned unsuccessful response for %s", path)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode agent payload: %w", err)
		}
	}
	return nil
}

// remoteCallError normalizes transport and envelope failures into an
// AppError so the orchestrator records a stable error code. Envelope errors
// that already carry an agent error code pass through unchanged.
func remoteCallError(err error, defaultCode string, message string) error {
	if appErr, ok := common.AsAppError(err); ok {
		if appErr.ErrorCode == common.CodeAgentParseError || appErr.ErrorCode == common.CodeAgentRouteError {
			return appErr
		}
	}

	var httpErr *httpclient.HTTPError
	if errors.As(err, &httpErr) {
		// Unparseable error body from the agent; classify by call site.
		return common.NewAppError(httpErr.StatusCode, defaultCode, message, err)
	}

	return common.NewAppError(502, defaultCode, message, err)
}
