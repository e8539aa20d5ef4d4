package model

// ChatMessage is one message of a chat completion request
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatOptions overrides model defaults for a single completion.
// A nil Temperature uses the configured default.
type ChatOptions struct {
	Temperature *float64
	MaxTokens   int
	JSONMode    bool
}

// WithTemperature returns options using the given temperature
func WithTemperature(t float64) ChatOptions {
	return ChatOptions{Temperature: &t}
}
