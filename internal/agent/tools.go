package agent

import (
	"context"

	"github.com/forgo/negotiator/internal/model"
)

// LLM is the chat completion model used for extraction and summaries
type LLM interface {
	Chat(ctx context.Context, messages []model.ChatMessage, opts model.ChatOptions) (string, error)
	ChatJSON(ctx context.Context, messages []model.ChatMessage, opts model.ChatOptions, v any) error
}

// PlaceSearcher finds businesses of a type in a city
type PlaceSearcher interface {
	SearchPlaces(ctx context.Context, city, placeType, query string) ([]model.Place, error)
}

// ReviewFetcher extracts customer reviews for a place
type ReviewFetcher interface {
	FetchReviews(ctx context.Context, query string, limit int) ([]string, error)
}

// ReviewSearcher runs a web search for reviews of a place
type ReviewSearcher interface {
	SearchReviews(ctx context.Context, placeName, city string) model.ReviewSearch
}

// ShopContactor sends an inquiry to a business and returns its reply
type ShopContactor interface {
	Contact(ctx context.Context, place model.Place, placeType, questionType string, budget *float64) model.ShopResponse
}

// Toolset holds the external tools available to the workflow. Only Places is
// required; steps skip tools that are nil.
type Toolset struct {
	LLM          LLM
	Places       PlaceSearcher
	Reviews      ReviewFetcher
	ReviewSearch ReviewSearcher
	Shops        ShopContactor
}

type configurable interface {
	Configured() bool
}

// enabled reports whether a tool is present and, when it can tell, has
// credentials.
func enabled(tool any) bool {
	if tool == nil {
		return false
	}
	if c, ok := tool.(configurable); ok {
		return c.Configured()
	}
	return true
}
