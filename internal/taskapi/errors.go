package taskapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/taskengine/internal/registry"
	"github.com/codeready-toolchain/taskengine/internal/store"
)

// respondError maps a service-layer error to a JSON error response,
// mirroring the teacher's pkg/api/errors.go mapServiceError.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "task not found"})
	case errors.Is(err, store.ErrTaskAlreadyExists):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "task already exists"})
	case errors.Is(err, registry.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "task already running"})
	default:
		slog.Error("unexpected taskapi error", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
