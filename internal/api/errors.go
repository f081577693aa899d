package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-safe-routes/internal/apperr"
)

// statusClientClosedRequest is reported when the caller went away before
// the engine finished.
const statusClientClosedRequest = 499

const retryAfterSeconds = "5"

func writeError(c *gin.Context, err error) {
	if errors.Is(err, context.Canceled) {
		c.AbortWithStatus(statusClientClosedRequest)
		return
	}

	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case apperr.KindNotFound:
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case apperr.KindUpstreamUnavailable:
		slog.Warn("upstream unavailable", "error", err, "path", c.FullPath())
		c.Header("Retry-After", retryAfterSeconds)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service temporarily unavailable"})
	default:
		slog.Error("request failed", "error", err, "path", c.FullPath())
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
