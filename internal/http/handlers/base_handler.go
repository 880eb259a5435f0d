// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"porter/internal/modules/cancellation"
	"porter/internal/modules/order"
	"porter/internal/modules/tracking"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, order.ErrBadRequest), errors.Is(err, tracking.ErrBadRole):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, order.ErrConflict),
		errors.Is(err, cancellation.ErrCancellationNotAllowed),
		errors.Is(err, tracking.ErrTrackingInactive):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
