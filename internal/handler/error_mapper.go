package handler

import (
	"context"
	"errors"

	"github.com/forgo/negotiator/internal/agent"
	"github.com/forgo/negotiator/internal/model"
	"github.com/forgo/negotiator/internal/service"
)

// MapServiceError converts a service error to a ProblemDetails response.
// This centralizes error handling logic for all handlers, ensuring consistent
// HTTP status codes and error messages across the API.
func MapServiceError(err error) *model.ProblemDetails {
	if err == nil {
		return nil
	}

	// Services return request validation failures as ready-made problems
	var problem *model.ProblemDetails
	if errors.As(err, &problem) {
		return problem
	}

	var upErr *service.UpstreamError
	switch {
	// ===== Not Found Errors → 404 =====
	case errors.Is(err, service.ErrThreadNotFound):
		return model.NewNotFoundError("thread")

	// ===== Conflict Errors → 409 =====
	case errors.Is(err, service.ErrNotAwaitingApproval),
		errors.Is(err, service.ErrThreadBusy):
		return model.NewConflictError(err.Error())

	// ===== Understanding Errors → 422 =====
	case errors.Is(err, agent.ErrMissingCity):
		return model.NewValidationError([]model.FieldError{{Field: "city", Message: err.Error()}})
	case errors.Is(err, agent.ErrMissingPlaceType):
		return model.NewValidationError([]model.FieldError{{Field: "place_type", Message: err.Error()}})

	// ===== Unavailable Dependencies → 503 =====
	case errors.Is(err, service.ErrProviderNotConfigured),
		errors.Is(err, service.ErrCircuitOpen),
		errors.Is(err, agent.ErrNoSearchTool):
		return model.NewServiceUnavailableError(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return model.NewServiceUnavailableError("the run did not finish in time")

	// ===== Provider/External Errors → 502 =====
	case errors.As(err, &upErr):
		return model.NewBadGatewayError(upErr.Provider, upErr.Error())
	case errors.Is(err, agent.ErrSearchFailed):
		return model.NewBadGatewayError("search", err.Error())

	// ===== Default → 500 =====
	default:
		return model.NewInternalError("")
	}
}

// MapServiceErrorWithContext converts a service error to a ProblemDetails response
// with additional context about the operation that failed.
func MapServiceErrorWithContext(err error, operation string) *model.ProblemDetails {
	pd := MapServiceError(err)
	if pd != nil && pd.Status == 500 {
		pd.Detail = operation + ": an unexpected error occurred"
	}
	return pd
}
