// Package server assembles the negotiator API from configuration.
//
// New connects the checkpoint store selected by CHECKPOINT_BACKEND, builds
// the provider clients and the workflow service, and mounts the routes
// behind the middleware chain:
//
//	RequestID → Logger → Recovery → CORS → Compress → RateLimit → Idempotency → mux
//
// Run serves until its context is cancelled and runs the checkpoint pruner
// and keep-alive jobs alongside. Reconfigure swaps provider keys without a
// restart; serve --reload calls it when the env file changes.
package server
