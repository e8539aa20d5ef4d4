package agent

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/forgo/negotiator/internal/model"
)

// Intent is what the understand step extracts from a free-text query
type Intent struct {
	City       string      `json:"city"`
	PlaceType  string      `json:"place_type"`
	UserIntent string      `json:"user_intent"`
	Budget     *float64    `json:"budget"`
	Route      model.Route `json:"route"`
	ShowAll    *bool       `json:"show_all"`
}

var (
	locationPattern  = regexp.MustCompile(`(?i)^(.*?)\s+(?:in|near|around)\s+(.+)$`)
	cityStopPattern  = regexp.MustCompile(`(?i)\s+(?:under|below|within|for|with|budget|and|that|which|having|less|around|costing)\b|[,.?!;:₹$\d]`)
	budgetPattern    = regexp.MustCompile(`(?i)(?:₹|\brs\.?|\binr\b|\bunder\b|\bbelow\b|\bwithin\b|\bbudget(?:\s+of)?\b|\bless than\b|\bmax(?:imum)?\b)\s*(?:₹|rs\.?|inr)?\s*(\d[\d,]*(?:\.\d+)?)\s*(k\b)?`)
	showAllPattern   = regexp.MustCompile(`(?i)\b(?:all|list|every|options)\b`)
	negotiatePattern = regexp.MustCompile(`(?i)negotiat|\bdeals?\b|discount|cheaper|bargain`)
	comparePattern   = regexp.MustCompile(`(?i)\bcompar(?:e|ing|ison)\b|\bvs\.?(?:\s|$)|\bversus\b`)
)

var leadingFillers = map[string]bool{
	"find": true, "me": true, "a": true, "an": true, "the": true, "best": true,
	"top": true, "good": true, "cheap": true, "affordable": true, "show": true,
	"list": true, "all": true, "some": true, "nearby": true, "looking": true,
	"for": true, "i": true, "i'm": true, "am": true, "want": true, "need": true,
	"please": true, "compare": true, "negotiate": true, "with": true, "get": true,
	"search": true, "recommend": true, "suggest": true, "of": true,
}

// ParseIntent extracts an intent from a query with pattern heuristics. It is
// the fallback when the LLM is unavailable.
func ParseIntent(query string) Intent {
	q := strings.TrimSpace(query)
	in := Intent{UserIntent: q, Route: model.RouteInfoOnly}

	if m := locationPattern.FindStringSubmatch(q); m != nil {
		in.PlaceType = stripFillers(m[1])
		city := m[2]
		if loc := cityStopPattern.FindStringIndex(city); loc != nil {
			city = city[:loc[0]]
		}
		in.City = strings.TrimSpace(city)
	}

	in.Budget = parseBudget(q)

	if showAllPattern.MatchString(q) {
		all := true
		in.ShowAll = &all
	}

	switch {
	case negotiatePattern.MatchString(q):
		in.Route = model.RouteNegotiation
	case comparePattern.MatchString(q):
		in.Route = model.RouteComparison
	}
	return in
}

func stripFillers(s string) string {
	words := strings.Fields(s)
	for len(words) > 0 && leadingFillers[strings.ToLower(words[0])] {
		words = words[1:]
	}
	return strings.Join(words, " ")
}

func parseBudget(q string) *float64 {
	m := budgetPattern.FindStringSubmatch(q)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil || v <= 0 {
		return nil
	}
	if m[2] != "" {
		v *= 1000
	}
	return &v
}

const understandPrompt = `Extract the search parameters from the user's request.

Request: %q

Respond with a JSON object only:
{"city": "city name", "place_type": "kind of business, e.g. gym", "user_intent": "one sentence describing what the user wants", "budget": number or null, "route": "negotiation" | "comparison" | "info_only", "show_all": true | false}

Use "negotiation" when the user wants a better deal or discount, "comparison" when they want prices compared, otherwise "info_only". Budget is in rupees per month.`

// extractIntent asks the LLM for an intent and falls back to ParseIntent for
// anything the model leaves out.
func extractIntent(ctx context.Context, llm LLM, query string) (Intent, bool) {
	base := ParseIntent(query)
	if !enabled(llm) || strings.TrimSpace(query) == "" {
		return base, false
	}

	var got Intent
	msgs := []model.ChatMessage{
		{Role: model.RoleSystem, Content: "You extract structured search parameters. Reply with JSON only."},
		{Role: model.RoleUser, Content: fmt.Sprintf(understandPrompt, query)},
	}
	opts := model.WithTemperature(0)
	opts.JSONMode = true
	if err := llm.ChatJSON(ctx, msgs, opts, &got); err != nil {
		return base, false
	}

	if s := strings.TrimSpace(got.City); s != "" {
		base.City = s
	}
	if s := strings.TrimSpace(got.PlaceType); s != "" {
		base.PlaceType = s
	}
	if s := strings.TrimSpace(got.UserIntent); s != "" {
		base.UserIntent = s
	}
	if got.Budget != nil && *got.Budget > 0 {
		base.Budget = got.Budget
	}
	if got.Route.IsValid() {
		base.Route = got.Route
	}
	if got.ShowAll != nil {
		base.ShowAll = got.ShowAll
	}
	return base, true
}

// apply fills the fields of s the caller did not set explicitly
func (in Intent) apply(s *model.AgentState) {
	if s.City == "" {
		s.City = in.City
	}
	if s.PlaceType == "" {
		s.PlaceType = in.PlaceType
	}
	if s.UserIntent == "" {
		s.UserIntent = in.UserIntent
	}
	if s.Budget == nil {
		s.Budget = in.Budget
	}
	if !s.Route.IsValid() {
		s.Route = in.Route
	}
	if !s.ShowAll && in.ShowAll != nil {
		s.ShowAll = *in.ShowAll
	}
}
