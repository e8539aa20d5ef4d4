// Package service implements the business logic layer of the negotiator API.
//
// It holds two kinds of services: clients for the external providers the
// workflow calls (Groq, SerpStack, WebScraping.AI, Tavily and the LLM-backed
// shop simulator), and NegotiatorService, which starts, resumes and inspects
// workflow runs on top of a checkpoint store.
//
// # Provider Clients
//
// Every client follows the same shape:
//
//   - Constructor function (NewXxxClient) accepts a config struct; zero values pick defaults
//   - Configured reports whether a key is set, so the workflow can skip the tool
//   - Keys can be replaced at runtime (SetAPIKey / SetKeys) for hot reload
//   - Failures are returned as *UpstreamError, which matches ErrUpstream
//
// Calls that may succeed when repeated (429, 5xx, timeouts) are retried with
// exponential backoff by Retrier. The Groq client also sits behind a
// CircuitBreaker and fails over between its keys.
//
// # Error Handling
//
// Services return domain-specific errors defined as package-level variables
// in errors.go:
//
//	var (
//	    ErrThreadNotFound      = errors.New("thread not found")
//	    ErrNotAwaitingApproval = errors.New("thread is not awaiting approval")
//	)
//
// Request validation failures are returned as *model.ProblemDetails.
//
// # Example Usage
//
//	providers := NewProviders(ProvidersConfig{...})
//	defer providers.Close()
//
//	negotiator, err := NewNegotiatorService(NegotiatorServiceConfig{
//	    Tools: providers.Toolset(),
//	    Store: repository.NewCheckpointRepository(db),
//	})
//	state, err := negotiator.Start(ctx, &model.SearchRequest{Query: "gyms in Pune under 3000"})
package service
