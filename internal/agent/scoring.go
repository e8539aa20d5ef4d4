package agent

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/forgo/negotiator/internal/model"
)

// Scoring weights. A place scores at most 100 before price adjustments.
const (
	ratingWeight       = 60.0
	confidenceWeight   = 20.0
	sentimentWeight    = 10.0
	contactWeight      = 5.0
	addressWeight      = 5.0
	unratedRating      = 2.0
	withinBudgetBonus  = 10.0
	overBudgetPenalty  = 15.0
	preferenceBonus    = 3.0
	unavailablePenalty = 10.0

	// closeScoreRatio is how near the top two scores must be to justify
	// another round of inquiries
	closeScoreRatio = 0.05
)

var positiveWords = []string{
	"excellent", "great", "good", "clean", "friendly", "helpful", "professional",
	"amazing", "best", "recommend", "spacious", "affordable", "well maintained", "polite",
}

var negativeWords = []string{
	"bad", "dirty", "rude", "worst", "poor", "expensive", "overpriced", "crowded",
	"terrible", "slow", "unhygienic", "broken", "avoid", "noisy",
}

// Sentiment scores review text in [-1, 1] by counting keyword hits
func Sentiment(texts ...string) (score float64, pos, neg []string) {
	joined := strings.ToLower(strings.Join(texts, " "))
	var p, n int
	for _, w := range positiveWords {
		if c := strings.Count(joined, w); c > 0 {
			p += c
			pos = append(pos, w)
		}
	}
	for _, w := range negativeWords {
		if c := strings.Count(joined, w); c > 0 {
			n += c
			neg = append(neg, w)
		}
	}
	if p+n == 0 {
		return 0, pos, neg
	}
	return float64(p-n) / float64(p+n), pos, neg
}

// BaseScore is the price-independent score of a place
func BaseScore(p model.Place, sentiment float64) float64 {
	rating := unratedRating
	if p.Rating != nil {
		rating = math.Max(0, math.Min(*p.Rating, 5))
	}
	confidence := math.Min(math.Log10(float64(p.ReviewsCount)+1)/3, 1)

	score := rating/5*ratingWeight + confidence*confidenceWeight + sentiment*sentimentWeight
	if p.Phone != "" {
		score += contactWeight
	}
	if p.Address != "" {
		score += addressWeight
	}
	return round2(score)
}

// AnalyzePlace scores a place from its listing and collected reviews
func AnalyzePlace(p model.Place, reviews []string, extra ...string) model.PlaceAnalysis {
	clean := usableReviews(reviews)
	sentiment, pos, neg := Sentiment(append(append([]string{}, clean...), extra...)...)

	a := model.PlaceAnalysis{
		Name:         p.Name,
		Address:      p.Address,
		Phone:        p.Phone,
		Rating:       p.Rating,
		ReviewsCount: p.ReviewsCount,
		Score:        BaseScore(p, sentiment),
		Reviews:      clean,
	}

	switch {
	case p.Rating == nil:
		a.Cons = append(a.Cons, "No rating available")
	case *p.Rating >= 4.5:
		a.Pros = append(a.Pros, fmt.Sprintf("Highly rated (%.1f★)", *p.Rating))
	case *p.Rating >= 4.0:
		a.Pros = append(a.Pros, fmt.Sprintf("Well rated (%.1f★)", *p.Rating))
	case *p.Rating < 3.5:
		a.Cons = append(a.Cons, fmt.Sprintf("Below-average rating (%.1f★)", *p.Rating))
	}
	switch {
	case p.ReviewsCount >= 100:
		a.Pros = append(a.Pros, fmt.Sprintf("Popular (%d reviews)", p.ReviewsCount))
	case p.ReviewsCount < 10:
		a.Cons = append(a.Cons, "Few reviews")
	}
	if p.Phone != "" {
		a.Pros = append(a.Pros, "Phone number listed")
	} else {
		a.Cons = append(a.Cons, "No phone number listed")
	}
	if len(pos) > 0 {
		a.Pros = append(a.Pros, "Reviewers mention: "+strings.Join(limitStrings(pos, 3), ", "))
	}
	if len(neg) > 0 {
		a.Cons = append(a.Cons, "Complaints about: "+strings.Join(limitStrings(neg, 3), ", "))
	}

	a.Summary = basicSummary(a)
	return a
}

func basicSummary(a model.PlaceAnalysis) string {
	var b strings.Builder
	b.WriteString(a.Name)
	if a.Rating != nil {
		fmt.Fprintf(&b, " is rated %.1f from %d reviews", *a.Rating, a.ReviewsCount)
	} else {
		b.WriteString(" has no rating yet")
	}
	if a.Address != "" {
		fmt.Fprintf(&b, " and is located at %s", a.Address)
	}
	b.WriteString(".")
	return b.String()
}

// Refine rescores the initial analysis with quoted prices, availability and
// the reviewer's notes. It always starts from the initial scores so repeated
// rounds do not compound.
func Refine(initial []model.PlaceAnalysis, responses []model.ShopResponse, budget *float64, notes *string) []model.PlaceAnalysis {
	prices := quotedPrices(responses)
	latest := make(map[string]model.ShopResponse)
	for _, r := range LatestResponses(responses) {
		latest[r.PlaceKey()] = r
	}
	keywords := noteKeywords(notes)

	out := make([]model.PlaceAnalysis, 0, len(initial))
	for _, a := range initial {
		a.Pros = append([]string(nil), a.Pros...)
		a.Cons = append([]string(nil), a.Cons...)
		a.Price = nil

		if price, ok := prices[a.Key()]; ok {
			p := price
			a.Price = &p
			if budget != nil && *budget > 0 {
				if price <= *budget {
					a.Score += withinBudgetBonus
					a.Pros = append(a.Pros, fmt.Sprintf("Within budget (₹%.0f)", price))
				} else {
					over := (price - *budget) / *budget
					a.Score -= overBudgetPenalty * math.Min(over, 1)
					a.Cons = append(a.Cons, fmt.Sprintf("Above budget (₹%.0f)", price))
				}
			}
		}

		resp, contacted := latest[a.Key()]
		if contacted && !resp.Available {
			a.Score -= unavailablePenalty
			a.Cons = append(a.Cons, "Not currently available")
		}

		if matchesNotes(keywords, a, resp) {
			a.Score += preferenceBonus
			a.Pros = append(a.Pros, "Matches your notes")
		}

		a.Score = round2(a.Score)
		out = append(out, a)
	}
	SortAnalysis(out)
	return out
}

var noteStopWords = map[string]bool{
	"with": true, "that": true, "this": true, "place": true, "prefer": true,
	"want": true, "have": true, "near": true, "should": true, "would": true,
	"from": true, "some": true, "please": true, "only": true,
}

func noteKeywords(notes *string) []string {
	if notes == nil {
		return nil
	}
	var out []string
	for _, w := range strings.FieldsFunc(strings.ToLower(*notes), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if len(w) >= 4 && !noteStopWords[w] {
			out = append(out, w)
		}
	}
	return out
}

func matchesNotes(keywords []string, a model.PlaceAnalysis, r model.ShopResponse) bool {
	if len(keywords) == 0 {
		return false
	}
	text := strings.ToLower(strings.Join(append(append(append([]string{a.Summary, r.Message}, a.Reviews...), a.Pros...), r.Features...), " "))
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// SortAnalysis orders by score, then rating, then name
func SortAnalysis(list []model.PlaceAnalysis) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Score != list[j].Score {
			return list[i].Score > list[j].Score
		}
		ri, rj := ratingOf(list[i].Rating), ratingOf(list[j].Rating)
		if ri != rj {
			return ri > rj
		}
		return list[i].Name < list[j].Name
	})
}

// topTwoClose reports whether the two best scores are within closeScoreRatio
func topTwoClose(list []model.PlaceAnalysis) bool {
	if len(list) < 2 {
		return false
	}
	a, b := list[0].Score, list[1].Score
	if a <= 0 {
		return a == b
	}
	return (a-b)/a <= closeScoreRatio
}

func usableReviews(reviews []string) []string {
	out := make([]string, 0, len(reviews))
	for _, r := range reviews {
		r = strings.TrimSpace(r)
		if r == "" || strings.HasPrefix(r, "Error:") {
			continue
		}
		out = append(out, r)
	}
	return out
}

func ratingOf(r *float64) float64 {
	if r == nil {
		return -1
	}
	return *r
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func limitStrings(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
