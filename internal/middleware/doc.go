// Package middleware provides HTTP middleware for the negotiator API.
//
// # Available Middleware
//
//   - RequestID: assigns or propagates X-Request-ID
//   - Logger: structured access log through slog
//   - Recovery: turns panics into RFC 9457 500 responses
//   - CORS: lets the configured frontend origins call the API
//   - Compress: gzip responses for clients that accept it
//   - RateLimit: token bucket per client IP
//   - Idempotency: replays POST responses for a repeated Idempotency-Key
//
// Middlewares compose with Chain, outermost first:
//
//	h := middleware.Chain(mux,
//	    middleware.RequestID,
//	    middleware.Logger(logger),
//	    middleware.Recovery,
//	    middleware.CORS(origins),
//	    middleware.Compress,
//	    middleware.RateLimit(limiter),
//	    middleware.Idempotency(store),
//	)
//
// Compress sits outside Idempotency so replayed bodies are stored
// uncompressed and re-encoded per client.
//
// # Context Values
//
//   - GetRequestID(ctx): Returns unique request identifier
package middleware
