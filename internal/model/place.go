package model

import "strings"

// NoResultsPlaceName names the placeholder returned when a search finds nothing
const NoResultsPlaceName = "No results found"

// Place is a business found by the places search
type Place struct {
	Name         string      `json:"name"`
	Address      string      `json:"address"`
	Phone        string      `json:"phone"`
	Rating       *float64    `json:"rating"`
	ReviewsCount int         `json:"reviews_count"`
	PriceLevel   interface{} `json:"price_level,omitempty"`
	Type         string      `json:"type"`
	URL          string      `json:"url,omitempty"`
	Position     int         `json:"position,omitempty"`
	Extensions   interface{} `json:"extensions,omitempty"`
	// Error is set instead of the other fields when the search itself failed
	Error string `json:"error,omitempty"`
}

// PlaceKey identifies a place within a run. Chains list several branches
// under one name, so the address is part of the key.
func PlaceKey(name, address string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return name
	}
	return name + "|" + address
}

// Key returns the place's PlaceKey
func (p Place) Key() string {
	return PlaceKey(p.Name, p.Address)
}

// IsPlaceholder reports whether this is the "No results found" entry
func (p Place) IsPlaceholder() bool {
	return p.Name == NoResultsPlaceName
}

// IsReal reports whether the place is an actual search hit
func (p Place) IsReal() bool {
	return p.Error == "" && !p.IsPlaceholder() && p.Name != ""
}

// ShopResponse is a (simulated) reply from a business to an inquiry
type ShopResponse struct {
	PlaceName    string             `json:"place_name"`
	PlaceAddress string             `json:"place_address,omitempty"`
	ResponseType string             `json:"response_type"`
	Message      string             `json:"message"`
	PricingInfo  map[string]float64 `json:"pricing_info,omitempty"`
	Available    bool               `json:"available"`
	Features     []string           `json:"features,omitempty"`
	Iteration    int                `json:"iteration"`
}

// PlaceKey returns the PlaceKey of the place that replied
func (r ShopResponse) PlaceKey() string {
	return PlaceKey(r.PlaceName, r.PlaceAddress)
}

// Price returns the monthly price, falling back to the base price
func (r ShopResponse) Price() (float64, bool) {
	if p := r.PricingInfo["monthly"]; p > 0 {
		return p, true
	}
	if p := r.PricingInfo["base"]; p > 0 {
		return p, true
	}
	return 0, false
}

// PricedPlace pairs a place name with its quoted price
type PricedPlace struct {
	Name    string  `json:"name"`
	Address string  `json:"address,omitempty"`
	Price   float64 `json:"price"`
}

// PriceComparison groups quoted prices against the user's budget
type PriceComparison struct {
	WithinBudget []PricedPlace `json:"within_budget"`
	AboveBudget  []PricedPlace `json:"above_budget"`
	NoPriceInfo  []string      `json:"no_price_info"`
	AveragePrice *float64      `json:"average_price"`
}

// ReviewSearch is the outcome of a review web search for one place
type ReviewSearch struct {
	Source    string               `json:"source"` // tavily, fallback or error
	PlaceName string               `json:"place_name,omitempty"`
	Address   string               `json:"address,omitempty"`
	Answer    string               `json:"answer,omitempty"`
	Results   []ReviewSearchResult `json:"results,omitempty"`
	Summary   string               `json:"summary,omitempty"`
	Message   string               `json:"message,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// ReviewSearchResult is a single web page returned by the review search
type ReviewSearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// PlaceAnalysis is the scored assessment of one candidate place
type PlaceAnalysis struct {
	Name         string   `json:"name"`
	Address      string   `json:"address,omitempty"`
	Phone        string   `json:"phone,omitempty"`
	Rating       *float64 `json:"rating"`
	ReviewsCount int      `json:"reviews_count"`
	Score        float64  `json:"score"`
	Price        *float64 `json:"price,omitempty"`
	Pros         []string `json:"pros,omitempty"`
	Cons         []string `json:"cons,omitempty"`
	Summary      string   `json:"summary,omitempty"`
	Reviews      []string `json:"reviews,omitempty"`
}

// Key returns the PlaceKey of the analysed place
func (a PlaceAnalysis) Key() string {
	return PlaceKey(a.Name, a.Address)
}

// Recommendation is a ranked final pick
type Recommendation struct {
	Rank         int           `json:"rank"`
	Name         string        `json:"name"`
	Address      string        `json:"address,omitempty"`
	Phone        string        `json:"phone,omitempty"`
	Rating       *float64      `json:"rating"`
	Score        float64       `json:"score"`
	Price        *float64      `json:"price,omitempty"`
	Reason       string        `json:"reason"`
	Pros         []string      `json:"pros,omitempty"`
	Cons         []string      `json:"cons,omitempty"`
	IsWinner     bool          `json:"is_winner"`
	ShopResponse *ShopResponse `json:"shop_response,omitempty"`
}
