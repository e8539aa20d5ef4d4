package agent

import "github.com/forgo/negotiator/internal/model"

// LatestResponses keeps the most recent reply per place, preferring the most
// recent reply that carries a price. Order follows first contact.
func LatestResponses(responses []model.ShopResponse) []model.ShopResponse {
	idx := make(map[string]int)
	var out []model.ShopResponse
	for _, r := range responses {
		i, seen := idx[r.PlaceKey()]
		if !seen {
			idx[r.PlaceKey()] = len(out)
			out = append(out, r)
			continue
		}
		_, newPriced := r.Price()
		_, oldPriced := out[i].Price()
		if newPriced || !oldPriced {
			out[i] = r
		}
	}
	return out
}

// ComparePrices groups quoted prices against budget. A place whose reply has
// no pricing at all is listed under NoPriceInfo; the within/above split only
// happens when a positive budget is given. The average covers every priced
// place.
func ComparePrices(responses []model.ShopResponse, budget *float64) model.PriceComparison {
	cmp := model.PriceComparison{
		WithinBudget: []model.PricedPlace{},
		AboveBudget:  []model.PricedPlace{},
		NoPriceInfo:  []string{},
	}

	var sum float64
	var priced int
	for _, r := range LatestResponses(responses) {
		if len(r.PricingInfo) == 0 {
			cmp.NoPriceInfo = append(cmp.NoPriceInfo, r.PlaceName)
			continue
		}
		price, ok := r.Price()
		if !ok {
			continue
		}
		sum += price
		priced++

		if budget == nil || *budget <= 0 {
			continue
		}
		pp := model.PricedPlace{Name: r.PlaceName, Address: r.PlaceAddress, Price: price}
		if price <= *budget {
			cmp.WithinBudget = append(cmp.WithinBudget, pp)
		} else {
			cmp.AboveBudget = append(cmp.AboveBudget, pp)
		}
	}

	if priced > 0 {
		avg := sum / float64(priced)
		cmp.AveragePrice = &avg
	}
	return cmp
}

// quotedPrices maps place key to its latest quoted price
func quotedPrices(responses []model.ShopResponse) map[string]float64 {
	out := make(map[string]float64)
	for _, r := range LatestResponses(responses) {
		if p, ok := r.Price(); ok {
			out[r.PlaceKey()] = p
		}
	}
	return out
}
