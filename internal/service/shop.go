package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/forgo/negotiator/internal/model"
)

// shopTemperature keeps simulated replies varied
const shopTemperature = 0.8

// ShopSimulator produces realistic business replies to customer inquiries
// using the language model. It stands in for actually calling the business.
type ShopSimulator struct {
	llm Chatter
}

// NewShopSimulator creates a shop simulator
func NewShopSimulator(llm Chatter) *ShopSimulator {
	return &ShopSimulator{llm: llm}
}

type shopReply struct {
	ResponseType string                 `json:"response_type"`
	Message      string                 `json:"message"`
	PricingInfo  map[string]interface{} `json:"pricing_info"`
	Available    *bool                  `json:"available"`
	Features     []interface{}          `json:"features"`
}

// Contact asks place about questionType (pricing, availability, features,
// negotiation). It never fails: any model or decoding error produces a
// polite fallback reply.
func (s *ShopSimulator) Contact(ctx context.Context, place model.Place, placeType, questionType string, budget *float64) model.ShopResponse {
	system := fmt.Sprintf("You are simulating a %s business owner/manager responding to a customer inquiry.\n"+
		"Business name: %s\n"+
		"Be professional, realistic, and provide specific details.", placeType, place.Name)

	budgetLine := "No budget mentioned"
	if budget != nil && *budget > 0 {
		budgetLine = "Customer budget: ₹" + strconv.FormatFloat(*budget, 'f', -1, 64)
	}

	user := fmt.Sprintf(`Generate a realistic response for this inquiry:

Question type: %s
%s

Provide response in this JSON format:
{
    "response_type": "%s",
    "message": "Your detailed response here",
    "pricing_info": {"monthly": 3000, "quarterly": 8000} (if applicable),
    "available": true/false,
    "features": ["feature1", "feature2"] (if applicable)
}
`, questionType, budgetLine, questionType)

	reply, err := s.llm.Chat(ctx, []model.ChatMessage{
		{Role: model.RoleSystem, Content: system},
		{Role: model.RoleUser, Content: user},
	}, model.WithTemperature(shopTemperature))
	if err != nil {
		slog.Warn("shop simulation failed, using fallback",
			slog.String("place", place.Name),
			slog.String("error", err.Error()),
		)
		return fallbackShopResponse(place, questionType)
	}

	resp, err := ParseShopReply(reply, questionType)
	if err != nil {
		return fallbackShopResponse(place, questionType)
	}
	resp.PlaceName = place.Name
	resp.PlaceAddress = place.Address
	return resp
}

// ParseShopReply decodes a model reply into a ShopResponse. Prices may be
// numbers or numeric strings ("₹3,000"); anything else is dropped.
func ParseShopReply(reply, questionType string) (model.ShopResponse, error) {
	var raw shopReply
	if err := json.Unmarshal([]byte(StripCodeFences(reply)), &raw); err != nil {
		return model.ShopResponse{}, err
	}
	if strings.TrimSpace(raw.Message) == "" {
		return model.ShopResponse{}, fmt.Errorf("reply has no message")
	}

	resp := model.ShopResponse{
		ResponseType: raw.ResponseType,
		Message:      raw.Message,
		Available:    raw.Available == nil || *raw.Available,
	}
	if resp.ResponseType == "" {
		resp.ResponseType = questionType
	}
	for k, v := range raw.PricingInfo {
		if price, ok := toPrice(v); ok {
			if resp.PricingInfo == nil {
				resp.PricingInfo = make(map[string]float64)
			}
			resp.PricingInfo[strings.ToLower(k)] = price
		}
	}
	for _, f := range raw.Features {
		if s := strings.TrimSpace(stringify(f)); s != "" {
			resp.Features = append(resp.Features, s)
		}
	}
	return resp, nil
}

func toPrice(v interface{}) (float64, bool) {
	switch p := v.(type) {
	case float64:
		return p, p > 0
	case string:
		cleaned := strings.Map(func(r rune) rune {
			if (r >= '0' && r <= '9') || r == '.' {
				return r
			}
			return -1
		}, p)
		f, err := strconv.ParseFloat(cleaned, 64)
		return f, err == nil && f > 0
	}
	return 0, false
}

func fallbackShopResponse(place model.Place, questionType string) model.ShopResponse {
	return model.ShopResponse{
		PlaceName:    place.Name,
		PlaceAddress: place.Address,
		ResponseType: questionType,
		Message:      fmt.Sprintf("We'd be happy to help! Please call us for details about %s.", questionType),
		Available:    true,
	}
}
