package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ridebench/dispatchsim/pkg/logger"
)

// BindJSON binds the JSON request body and sends a 400 response on failure.
// Returns true on success, false when a response has already been sent.
//
// Usage:
//
//	var req ParseRequest
//	if !BindJSON(c, &req) {
//	    return
//	}
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// HandleServiceError responds to service-layer failures with a consistent
// shape: typed AppErrors keep their status and code, anything else is logged
// and becomes a 500 with the fallback message. Returns true if an error was
// handled and a response sent.
//
// Usage:
//
//	result, err := h.service.DoSomething(ctx, req)
//	if HandleServiceError(c, err, "failed to do something") {
//	    return
//	}
func HandleServiceError(c *gin.Context, err error, fallbackMessage string) bool {
	if err == nil {
		return false
	}

	if appErr, ok := AsAppError(err); ok {
		AppErrorResponse(c, appErr)
		return true
	}

	logger.ErrorContext(c.Request.Context(), fallbackMessage,
		zap.Error(err),
	)
	ErrorResponse(c, http.StatusInternalServerError, fallbackMessage)
	return true
}
