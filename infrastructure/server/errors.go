package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ahrav/go-hydra/internal/domain"
	"github.com/ahrav/go-hydra/internal/ports"
)

type errorBody struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	var verr *domain.ValidationError
	var llmErr *ports.LLMError
	switch {
	case errors.As(err, &verr), errors.Is(err, domain.ErrInvalidDecision):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyDecided), errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, ports.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoVerdict):
		return http.StatusUnprocessableEntity
	case errors.As(err, &llmErr):
		return http.StatusInternalServerError
	case errors.Is(err, ports.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes err as JSON and attaches it to the request log.
func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	var verr *domain.ValidationError
	if errors.As(err, &verr) && len(verr.Errors) > 1 {
		body.Details = verr.Errors
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

// badRequest reports a malformed request.
func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: msg})
}
