// Package helpers provides common test utilities.
//
// It includes HTTP request builders, Problem Details assertions, database
// assertions against the thread table, and fake upstream servers for the
// Groq and SerpStack APIs:
//
//	groq, calls := helpers.FakeGroq(t, func(prompt string) string { return `{"city":"Pune"}` })
//	resp := helpers.NewRequest(t, http.MethodPost, "/v1/search").WithBody(req).Do(router)
//	helpers.AssertStatus(t, resp, http.StatusCreated)
package helpers
