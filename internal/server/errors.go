package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/quick-resume/internal/archive"
	"github.com/jonathan/quick-resume/internal/generation"
	"github.com/jonathan/quick-resume/internal/pipeline"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrNotPending indicates a proceed call for an id with no pending export
type ErrNotPending struct {
	ID string
}

func (e *ErrNotPending) Error() string {
	return fmt.Sprintf("no pending request: %s", e.ID)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validationErr *ErrValidation
		notPendingErr *ErrNotPending
		captureErr    *pipeline.CaptureError
		schemaErr     *generation.SchemaValidationError
		transportErr  *generation.TransportError
		configErr     *pipeline.ConfigurationError
		existsErr     *archive.ExistsError
	)

	switch {
	case errors.As(err, &validationErr), errors.As(err, &captureErr):
		return http.StatusBadRequest
	case errors.As(err, &notPendingErr):
		return http.StatusNotFound
	case errors.As(err, &existsErr):
		return http.StatusConflict
	case errors.As(err, &schemaErr), errors.As(err, &transportErr):
		return http.StatusBadGateway
	case errors.As(err, &configErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
