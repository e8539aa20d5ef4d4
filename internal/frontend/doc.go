// Package frontend serves the browser entry page and tells it which API to
// call.
//
// The page is read from FRONTEND_DIR when that directory holds an
// index.html, otherwise a built-in page is served. Either way the page gets
// a meta tag naming the API base URL, and GET /config.json returns the same
// value:
//
//	{"api_base_url": "http://localhost:8000"}
//
// A page loaded from localhost, 127.0.0.1, 0.0.0.0 or ::1 talks to
// FRONTEND_LOCAL_API_URL. Any other hostname gets FRONTEND_PRODUCTION_API_URL,
// or the serving origin when that is unset.
package frontend
