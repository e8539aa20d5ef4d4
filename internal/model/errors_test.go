package model

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// ============================================================================
// Error() Interface Tests
// ============================================================================

func TestProblemDetails_Error_ReturnsFormattedMessage(t *testing.T) {
	t.Parallel()

	pd := &ProblemDetails{
		Status: http.StatusNotFound,
		Title:  "Not Found",
		Detail: "Thread not found",
	}

	errMsg := pd.Error()

	if !strings.Contains(errMsg, "404") {
		t.Errorf("error message should contain status code, got: %s", errMsg)
	}
	if !strings.Contains(errMsg, "Not Found") {
		t.Errorf("error message should contain title, got: %s", errMsg)
	}
	if !strings.Contains(errMsg, "Thread not found") {
		t.Errorf("error message should contain detail, got: %s", errMsg)
	}
}

// ============================================================================
// WriteJSON Tests
// ============================================================================

func TestProblemDetails_WriteJSON_SetsContentTypeAndStatus(t *testing.T) {
	t.Parallel()

	pd := NewConflictError("thread is not awaiting approval")
	rr := httptest.NewRecorder()

	pd.WriteJSON(rr)

	if ct := rr.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("expected Content-Type 'application/problem+json', got %q", ct)
	}
	if rr.Code != http.StatusConflict {
		t.Errorf("expected status %d, got %d", http.StatusConflict, rr.Code)
	}
}

func TestProblemDetails_WriteJSON_EncodesBody(t *testing.T) {
	t.Parallel()

	pd := NewBadRequestError("invalid input")
	rr := httptest.NewRecorder()

	pd.WriteJSON(rr)

	var result ProblemDetails
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}

	if result.Title != "Bad Request" {
		t.Errorf("expected title 'Bad Request', got %q", result.Title)
	}
	if result.Detail != "invalid input" {
		t.Errorf("expected detail 'invalid input', got %q", result.Detail)
	}
}

// ============================================================================
// Constructor Tests
// ============================================================================

func TestNewNotFoundError_ReturnsCorrectValues(t *testing.T) {
	t.Parallel()

	pd := NewNotFoundError("thread")

	if pd.Status != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, pd.Status)
	}
	if pd.Detail != "thread not found" {
		t.Errorf("expected detail 'thread not found', got %q", pd.Detail)
	}
	if pd.Code != ErrCodeNotFound {
		t.Errorf("expected code %d, got %d", ErrCodeNotFound, pd.Code)
	}
	if !strings.HasSuffix(pd.Type, "/not-found") {
		t.Errorf("expected type to end with '/not-found', got %q", pd.Type)
	}
}

func TestNewValidationError_SingleField_ReturnsCorrectValues(t *testing.T) {
	t.Parallel()

	pd := NewValidationError([]FieldError{{Field: "city", Message: "is required"}})

	if pd.Status != http.StatusUnprocessableEntity {
		t.Errorf("expected status %d, got %d", http.StatusUnprocessableEntity, pd.Status)
	}
	if pd.Code != ErrCodeValidation {
		t.Errorf("expected code %d, got %d", ErrCodeValidation, pd.Code)
	}
	if pd.Detail != "city: is required" {
		t.Errorf("unexpected detail %q", pd.Detail)
	}
}

func TestNewValidationError_MultipleFields_SummarizesCount(t *testing.T) {
	t.Parallel()

	pd := NewValidationError([]FieldError{
		{Field: "query", Message: "required"},
		{Field: "budget", Message: "must not be negative"},
		{Field: "place_type", Message: "too long"},
	})

	if len(pd.Errors) != 3 {
		t.Errorf("expected 3 errors, got %d", len(pd.Errors))
	}
	if !strings.Contains(pd.Detail, "2 more errors") {
		t.Errorf("detail should mention count of additional errors, got %q", pd.Detail)
	}
}

func TestNewValidationError_EmptyErrors_ReturnsDefaultMessage(t *testing.T) {
	t.Parallel()

	pd := NewValidationError(nil)

	if pd.Detail != "One or more fields failed validation" {
		t.Errorf("expected default detail message, got %q", pd.Detail)
	}
}

func TestNewInternalError_EmptyDetail_UsesDefault(t *testing.T) {
	t.Parallel()

	pd := NewInternalError("")

	if pd.Status != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, pd.Status)
	}
	if pd.Detail != "An unexpected error occurred" {
		t.Errorf("expected default detail message, got %q", pd.Detail)
	}
}

func TestNewMethodNotAllowedError_ReturnsCorrectValues(t *testing.T) {
	t.Parallel()

	pd := NewMethodNotAllowedError("POST")

	if pd.Status != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, pd.Status)
	}
	if !strings.Contains(pd.Detail, "POST") {
		t.Errorf("detail should contain allowed method, got %q", pd.Detail)
	}
}

func TestNewRateLimitError_ReturnsCorrectValues(t *testing.T) {
	t.Parallel()

	pd := NewRateLimitError(60)

	if pd.Status != http.StatusTooManyRequests {
		t.Errorf("expected status %d, got %d", http.StatusTooManyRequests, pd.Status)
	}
	if !strings.Contains(pd.Detail, "60") {
		t.Errorf("detail should contain retry seconds, got %q", pd.Detail)
	}
}

func TestNewBadGatewayError_CarriesProvider(t *testing.T) {
	t.Parallel()

	pd := NewBadGatewayError("serpstack", "")

	if pd.Status != http.StatusBadGateway {
		t.Errorf("expected status %d, got %d", http.StatusBadGateway, pd.Status)
	}
	if pd.Provider != "serpstack" {
		t.Errorf("expected provider 'serpstack', got %q", pd.Provider)
	}
	if pd.Detail != "serpstack request failed" {
		t.Errorf("expected default detail, got %q", pd.Detail)
	}
	if pd.Code != ErrCodeExternalAPI {
		t.Errorf("expected code %d, got %d", ErrCodeExternalAPI, pd.Code)
	}
}

func TestNewServiceUnavailableError_ReturnsCorrectValues(t *testing.T) {
	t.Parallel()

	pd := NewServiceUnavailableError("GROQ_API_KEY is not configured")

	if pd.Status != http.StatusServiceUnavailable {
		t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, pd.Status)
	}
	if pd.Code != ErrCodeUnavailable {
		t.Errorf("expected code %d, got %d", ErrCodeUnavailable, pd.Code)
	}
}

// ============================================================================
// Error Code Constants Tests
// ============================================================================

func TestErrorCodes_CorrectRanges(t *testing.T) {
	t.Parallel()

	ranges := []struct {
		name  string
		codes []ErrorCode
		low   ErrorCode
	}{
		{"resource", []ErrorCode{ErrCodeNotFound, ErrCodeConflict}, 3000},
		{"validation", []ErrorCode{ErrCodeValidation, ErrCodeInvalidInput, ErrCodeRateLimited}, 4000},
		{"internal", []ErrorCode{ErrCodeInternal, ErrCodeDatabase, ErrCodeExternalAPI, ErrCodeUnavailable}, 5000},
	}

	seen := make(map[ErrorCode]bool)
	for _, r := range ranges {
		for _, code := range r.codes {
			if code < r.low || code >= r.low+1000 {
				t.Errorf("%s error code %d should be in %dxxx range", r.name, code, r.low/1000)
			}
			if seen[code] {
				t.Errorf("duplicate error code %d", code)
			}
			seen[code] = true
		}
	}
}

// ============================================================================
// JSON Serialization Tests
// ============================================================================

func TestProblemDetails_JSON_OmitsEmptyFields(t *testing.T) {
	t.Parallel()

	pd := &ProblemDetails{
		Type:   "test",
		Title:  "Test",
		Status: 400,
	}

	data, err := json.Marshal(pd)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	jsonStr := string(data)
	for _, field := range []string{"detail", "instance", "errors", "provider", "code"} {
		if strings.Contains(jsonStr, `"`+field+`"`) {
			t.Errorf("empty %s should be omitted from JSON: %s", field, jsonStr)
		}
	}
}
