// Package handler provides HTTP request handlers for the negotiator API.
//
// Each handler struct encapsulates the dependencies needed to serve one
// feature area: NegotiatorHandler runs searches and manages threads,
// StatusHandler serves liveness and operator status.
//
// # Handler Pattern
//
// All handlers follow a consistent pattern:
//
//   - Constructor function (NewXxxHandler) accepts its dependencies
//   - RegisterRoutes attaches method-qualified patterns to a http.ServeMux
//   - Response helpers from response.go standardize output format
//   - Errors are mapped to RFC 9457 Problem Details responses by MapServiceError
//
// # Response Format
//
// Handlers use standardized response functions:
//
//   - WriteData: Single resource with optional HATEOAS links
//   - WriteRun: A thread's run view with self, history and approve links
//   - WriteCollection: List of resources with optional pagination
//   - WriteJSON: Raw JSON response
//   - WriteError: RFC 9457 Problem Details error response
//
// # Example Usage
//
//	mux := http.NewServeMux()
//	handler.NewNegotiatorHandler(negotiatorService, logger).RegisterRoutes(mux)
//	handler.NewStatusHandler(handler.StatusHandlerConfig{Store: negotiatorService}).RegisterRoutes(mux)
package handler
