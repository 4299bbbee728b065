package agent

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ridebench/dispatchsim/pkg/common"
)

// Handler exposes a RoutingAgent over the /v1/agent HTTP protocol.
type Handler struct {
	agent RoutingAgent
}

// NewHandler creates an agent HTTP handler.
func NewHandler(agent RoutingAgent) *Handler {
	return &Handler{agent: agent}
}

// Parse handles parsing a natural-language request into a structured one.
func (h *Handler) Parse(c *gin.Context) {
	var req ParseRequest
	if !common.BindJSON(c, &req) {
		return
	}

	parsed, err := h.agent.Parse(c.Request.Context(), req.Request, NewSnapshot(req.Fleet))
	if err != nil {
		respondAgentError(c, err, common.CodeAgentParseError)
		return
	}

	common.SuccessResponse(c, ParseResponse{Parsed: parsed})
}

// Route handles producing a routing decision for a parsed request.
func (h *Handler) Route(c *gin.Context) {
	var req RouteRequest
	if !common.BindJSON(c, &req) {
		return
	}

	decision, err := h.agent.Route(c.Request.Context(), req.Parsed, NewSnapshot(req.Fleet))
	if err != nil {
		respondAgentError(c, err, common.CodeAgentRouteError)
		return
	}

	common.SuccessResponse(c, RouteResponse{Decision: decision})
}

// Distance handles point-to-point distance and travel time estimates.
func (h *Handler) Distance(c *gin.Context) {
	var req DistanceRequest
	if !common.BindJSON(c, &req) {
		return
	}

	miles, minutes, err := h.agent.QueryDistanceAndTime(c.Request.Context(), req.From, req.To)
	if common.HandleServiceError(c, err, "distance query failed") {
		return
	}

	common.SuccessResponse(c, DistanceResponse{Miles: miles, Minutes: minutes})
}

// RegisterRoutes registers the agent protocol routes. Middleware applies to
// the agent group only, keeping health and metrics endpoints open.
func (h *Handler) RegisterRoutes(r *gin.Engine, groupMiddleware ...gin.HandlerFunc) {
	v1 := r.Group("/v1/agent", groupMiddleware...)
	{
		v1.POST("/parse", h.Parse)
		v1.POST("/route", h.Route)
		v1.POST("/distance", h.Distance)
	}
}

// respondAgentError maps agent failures onto the error envelope. Anything
// without an explicit AppError becomes a 422 refusal with the call-site code.
func respondAgentError(c *gin.Context, err error, defaultCode string) {
	if appErr, ok := common.AsAppError(err); ok {
		common.AppErrorResponse(c, appErr)
		return
	}
	common.AppErrorResponse(c, common.NewAppError(http.StatusUnprocessableEntity, defaultCode, err.Error(), nil))
}
