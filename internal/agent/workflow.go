package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/forgo/negotiator/internal/model"
)

// ===== Workflow Errors =====

var (
	ErrMissingCity      = errors.New("could not determine the city to search in")
	ErrMissingPlaceType = errors.New("could not determine what kind of place to search for")
	ErrSearchFailed     = errors.New("place search failed")
	ErrNoSearchTool     = errors.New("no place search tool configured")
)

// Question types sent to shops
const (
	QuestionPricing     = "pricing"
	QuestionNegotiation = "negotiation"
)

// ShopsPerRound is how many candidates are contacted per inquiry round
const ShopsPerRound = 3

// WorkflowConfig parameterises the negotiator workflow
type WorkflowConfig struct {
	Tools            Toolset
	MaxIterations    int
	ReviewsPerPlace  int
	ReviewCandidates int
	// Concurrency bounds parallel upstream calls within a step
	Concurrency int64
	// Summarize asks the LLM for a short summary of each analysed place
	Summarize bool
	Logger    *slog.Logger
}

func (c *WorkflowConfig) defaults() {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 3
	}
	if c.ReviewsPerPlace <= 0 {
		c.ReviewsPerPlace = 3
	}
	if c.ReviewCandidates <= 0 {
		c.ReviewCandidates = 3
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// NewWorkflow builds and compiles the negotiator graph:
//
//	understand → search → gather_reviews → analyze → human_review
//	human_review → contact_shops | recommend
//	contact_shops → reflect → contact_shops | recommend
//	recommend → end
//
// Runs pause before human_review unless the state has AutoApprove set.
func NewWorkflow(cfg WorkflowConfig, cp Checkpointer, opts ...Option) (*Runner, error) {
	cfg.defaults()
	if cfg.Tools.Places == nil {
		return nil, ErrNoSearchTool
	}
	w := &workflow{cfg: cfg}

	g := NewGraph().
		AddNode(model.StepUnderstand, w.understand).
		AddNode(model.StepSearch, w.search).
		AddNode(model.StepGatherReviews, w.gatherReviews).
		AddNode(model.StepAnalyze, w.analyze).
		AddNode(model.StepHumanReview, w.humanReview).
		AddNode(model.StepContactShops, w.contactShops).
		AddNode(model.StepReflect, w.reflect).
		AddNode(model.StepRecommend, w.recommend).
		SetEntry(model.StepUnderstand).
		AddEdge(model.StepUnderstand, model.StepSearch).
		AddEdge(model.StepSearch, model.StepGatherReviews).
		AddEdge(model.StepGatherReviews, model.StepAnalyze).
		AddEdge(model.StepAnalyze, model.StepHumanReview).
		AddConditionalEdges(model.StepHumanReview, afterReview, model.StepContactShops, model.StepRecommend).
		AddEdge(model.StepContactShops, model.StepReflect).
		AddConditionalEdges(model.StepReflect, w.afterReflect, model.StepContactShops, model.StepRecommend).
		AddEdge(model.StepRecommend, End).
		InterruptIf(model.StepHumanReview, func(s *model.AgentState) bool { return !s.AutoApprove })

	return g.Compile(cp, opts...)
}

type workflow struct {
	cfg WorkflowConfig
}

// ===== Routers =====

func afterReview(s *model.AgentState) string {
	if s.HumanApproved && s.Route.ContactsShops() {
		return model.StepContactShops
	}
	return model.StepRecommend
}

func (w *workflow) afterReflect(s *model.AgentState) string {
	if s.Iteration >= w.cfg.MaxIterations {
		return model.StepRecommend
	}
	list := s.Analysis()
	if !topTwoClose(list) {
		return model.StepRecommend
	}
	if len(w.unpricedCandidates(s)) == 0 {
		return model.StepRecommend
	}
	return model.StepContactShops
}

// ===== Nodes =====

func (w *workflow) understand(ctx context.Context, s *model.AgentState) error {
	s.AddMessages(model.Message{Role: model.RoleUser, Content: userMessage(s)})

	intent, usedLLM := extractIntent(ctx, w.cfg.Tools.LLM, s.UserQuery)
	intent.apply(s)
	if !s.Route.IsValid() {
		s.Route = model.RouteInfoOnly
	}

	if s.City == "" {
		return ErrMissingCity
	}
	if s.PlaceType == "" {
		return ErrMissingPlaceType
	}

	w.cfg.Logger.Debug("understood request",
		slog.String("thread_id", s.ThreadID),
		slog.String("city", s.City),
		slog.String("place_type", s.PlaceType),
		slog.String("route", string(s.Route)),
		slog.Bool("llm", usedLLM),
	)
	s.Say(fmt.Sprintf("Looking for %s in %s%s.", s.PlaceType, s.City, budgetSuffix(s.Budget)))
	return nil
}

func (w *workflow) search(ctx context.Context, s *model.AgentState) error {
	places, err := w.cfg.Tools.Places.SearchPlaces(ctx, s.City, s.PlaceType, "")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}
	for _, p := range places {
		if p.Error != "" {
			return fmt.Errorf("%w: %s", ErrSearchFailed, p.Error)
		}
	}
	s.SerpResults = places

	found := s.RealPlaces()
	if len(found) == 0 {
		s.Say(fmt.Sprintf("No %s found in %s.", s.PlaceType, s.City))
		return nil
	}
	s.Say(fmt.Sprintf("Found %d %s in %s.", len(found), s.PlaceType, s.City))
	return nil
}

func (w *workflow) gatherReviews(ctx context.Context, s *model.AgentState) error {
	candidates := topRated(s.RealPlaces(), w.cfg.ReviewCandidates)
	if s.Reviews == nil {
		s.Reviews = make(map[string][]string)
	}
	if len(candidates) == 0 {
		return nil
	}

	fetch := enabled(w.cfg.Tools.Reviews)
	searchWeb := w.cfg.Tools.ReviewSearch != nil
	if !fetch && !searchWeb {
		return nil
	}

	reviews := make([][]string, len(candidates))
	searches := make([]*model.ReviewSearch, len(candidates))
	sem := semaphore.NewWeighted(w.cfg.Concurrency)
	g, gctx := errgroup.WithContext(ctx)

	for i, p := range candidates {
		if fetch {
			g.Go(func() error {
				if err := sem.Acquire(gctx, 1); err != nil {
					return err
				}
				defer sem.Release(1)

				got, err := w.cfg.Tools.Reviews.FetchReviews(gctx, p.Name+" "+s.City, w.cfg.ReviewsPerPlace)
				if err != nil {
					w.cfg.Logger.Warn("review fetch failed",
						slog.String("place", p.Name),
						slog.String("error", err.Error()),
					)
					reviews[i] = []string{"Error: " + err.Error()}
					return nil
				}
				reviews[i] = got
				return nil
			})
		}
		if searchWeb {
			g.Go(func() error {
				if err := sem.Acquire(gctx, 1); err != nil {
					return err
				}
				defer sem.Release(1)

				rs := w.cfg.Tools.ReviewSearch.SearchReviews(gctx, p.Name, s.City)
				rs.PlaceName = p.Name
				rs.Address = p.Address
				searches[i] = &rs
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, p := range candidates {
		if reviews[i] != nil {
			s.Reviews[p.Key()] = reviews[i]
		}
		if searches[i] != nil {
			s.TavilyReviews = append(s.TavilyReviews, *searches[i])
		}
	}
	s.Say(fmt.Sprintf("Collected reviews for %d places.", len(candidates)))
	return nil
}

func (w *workflow) analyze(ctx context.Context, s *model.AgentState) error {
	web := make(map[string][]string)
	for _, rs := range s.TavilyReviews {
		if rs.Source != "tavily" {
			continue
		}
		texts := []string{rs.Answer}
		for _, r := range rs.Results {
			texts = append(texts, r.Content)
		}
		key := model.PlaceKey(rs.PlaceName, rs.Address)
		web[key] = append(web[key], texts...)
	}

	places := s.RealPlaces()
	list := make([]model.PlaceAnalysis, 0, len(places))
	for _, p := range places {
		list = append(list, AnalyzePlace(p, s.Reviews[p.Key()], web[p.Key()]...))
	}
	SortAnalysis(list)

	if w.cfg.Summarize && enabled(w.cfg.Tools.LLM) && len(list) > 0 {
		w.summarize(ctx, s, list)
	}

	s.InitialAnalysis = list
	s.RefinedAnalysis = nil
	if len(list) > 0 {
		s.Say(fmt.Sprintf("Top candidate so far: %s (score %.1f).", list[0].Name, list[0].Score))
	}
	return nil
}

const summaryPrompt = `Summarise each %s below for someone in %s in one sentence, using its rating and reviews.

%s
Respond with a JSON object mapping each place name to its summary.`

// summarize replaces the generated summaries with LLM ones for the
// candidates that had reviews fetched. Failures keep the generated text.
func (w *workflow) summarize(ctx context.Context, s *model.AgentState, list []model.PlaceAnalysis) {
	n := min(len(list), w.cfg.ReviewCandidates)
	labels := summaryLabels(list[:n])
	var b strings.Builder
	for i, a := range list[:n] {
		fmt.Fprintf(&b, "- %s: %s Reviews: %s\n", labels[i], a.Summary, strings.Join(a.Reviews, " | "))
	}

	var out map[string]string
	opts := model.WithTemperature(0.3)
	opts.JSONMode = true
	msgs := []model.ChatMessage{{Role: model.RoleUser, Content: fmt.Sprintf(summaryPrompt, s.PlaceType, s.City, b.String())}}
	if err := w.cfg.Tools.LLM.ChatJSON(ctx, msgs, opts, &out); err != nil {
		w.cfg.Logger.Warn("summary generation failed", slog.String("error", err.Error()))
		return
	}
	for i := range list[:n] {
		if sum := strings.TrimSpace(out[labels[i]]); sum != "" {
			list[i].Summary = sum
		}
	}
}

// summaryLabels names each place for the summary prompt, adding the address
// where two candidates share a name
func summaryLabels(list []model.PlaceAnalysis) []string {
	seen := make(map[string]int, len(list))
	for _, a := range list {
		seen[a.Name]++
	}
	labels := make([]string, len(list))
	for i, a := range list {
		labels[i] = a.Name
		if seen[a.Name] > 1 && a.Address != "" {
			labels[i] = a.Name + " (" + a.Address + ")"
		}
	}
	return labels
}

func (w *workflow) humanReview(_ context.Context, s *model.AgentState) error {
	if s.AutoApprove {
		s.HumanApproved = true
	}
	if s.HumanNotes != nil && strings.TrimSpace(*s.HumanNotes) != "" {
		s.AddMessages(model.Message{Role: model.RoleUser, Content: *s.HumanNotes})
	}
	if s.HumanApproved {
		s.Say("Shortlist approved.")
	} else {
		s.Say("Shortlist not approved; recommending from the initial analysis.")
	}
	return nil
}

func (w *workflow) contactShops(ctx context.Context, s *model.AgentState) error {
	targets := w.unpricedCandidates(s)
	if len(targets) == 0 || w.cfg.Tools.Shops == nil {
		return nil
	}

	question := QuestionPricing
	if s.Route == model.RouteNegotiation {
		question = QuestionNegotiation
	}

	replies := make([]model.ShopResponse, len(targets))
	sem := semaphore.NewWeighted(w.cfg.Concurrency)
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range targets {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			r := w.cfg.Tools.Shops.Contact(gctx, p, s.PlaceType, question, s.Budget)
			r.PlaceName = p.Name
			r.PlaceAddress = p.Address
			r.Iteration = s.Iteration
			replies[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.ShopResponses = append(s.ShopResponses, replies...)
	s.Say(fmt.Sprintf("Sent %s inquiries to %d places.", question, len(replies)))
	return nil
}

func (w *workflow) reflect(_ context.Context, s *model.AgentState) error {
	cmp := ComparePrices(s.ShopResponses, s.Budget)
	s.PriceComparison = &cmp
	s.RefinedAnalysis = Refine(s.InitialAnalysis, s.ShopResponses, s.Budget, s.HumanNotes)
	s.Iteration++

	if cmp.AveragePrice != nil {
		s.Say(fmt.Sprintf("Round %d: average quoted price ₹%.0f, %d within budget.", s.Iteration, *cmp.AveragePrice, len(cmp.WithinBudget)))
	} else {
		s.Say(fmt.Sprintf("Round %d: no prices quoted yet.", s.Iteration))
	}
	return nil
}

func (w *workflow) recommend(_ context.Context, s *model.AgentState) error {
	list := s.Analysis()
	latest := make(map[string]model.ShopResponse)
	for _, r := range LatestResponses(s.ShopResponses) {
		latest[r.PlaceKey()] = r
	}

	recs := make([]model.Recommendation, 0, len(list))
	for i, a := range list {
		rec := model.Recommendation{
			Rank:     i + 1,
			Name:     a.Name,
			Address:  a.Address,
			Phone:    a.Phone,
			Rating:   a.Rating,
			Score:    a.Score,
			Price:    a.Price,
			Pros:     a.Pros,
			Cons:     a.Cons,
			IsWinner: i == 0,
			Reason:   reason(a, i == 0, s.Budget),
		}
		if r, ok := latest[a.Key()]; ok {
			rec.ShopResponse = &r
		}
		recs = append(recs, rec)
	}
	if !s.ShowAll && len(recs) > 1 {
		recs = recs[:1]
	}

	s.Recommendations = recs
	s.IsComplete = true
	if len(recs) == 0 {
		s.Say(fmt.Sprintf("Sorry, I couldn't find any %s in %s to recommend.", s.PlaceType, s.City))
		return nil
	}
	s.Say(fmt.Sprintf("My recommendation: %s. %s", recs[0].Name, recs[0].Reason))
	return nil
}

// ===== Helpers =====

// unpricedCandidates returns the top places by current score that have no
// quoted price yet
func (w *workflow) unpricedCandidates(s *model.AgentState) []model.Place {
	byKey := make(map[string]model.Place)
	for _, p := range s.RealPlaces() {
		byKey[p.Key()] = p
	}
	prices := quotedPrices(s.ShopResponses)

	var out []model.Place
	for _, a := range s.Analysis() {
		if len(out) == ShopsPerRound {
			break
		}
		if _, ok := prices[a.Key()]; ok {
			continue
		}
		if p, ok := byKey[a.Key()]; ok {
			out = append(out, p)
		}
	}
	return out
}

func topRated(places []model.Place, n int) []model.Place {
	sorted := append([]model.Place(nil), places...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := ratingOf(sorted[i].Rating), ratingOf(sorted[j].Rating)
		if ri != rj {
			return ri > rj
		}
		return sorted[i].ReviewsCount > sorted[j].ReviewsCount
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func reason(a model.PlaceAnalysis, winner bool, budget *float64) string {
	var parts []string
	if a.Rating != nil {
		parts = append(parts, fmt.Sprintf("rated %.1f★ from %d reviews", *a.Rating, a.ReviewsCount))
	}
	if a.Price != nil {
		if budget != nil && *budget > 0 && *a.Price <= *budget {
			parts = append(parts, fmt.Sprintf("quoted ₹%.0f, within your budget", *a.Price))
		} else {
			parts = append(parts, fmt.Sprintf("quoted ₹%.0f", *a.Price))
		}
	}
	if len(a.Pros) > 0 && len(parts) < 2 {
		parts = append(parts, strings.ToLower(a.Pros[0]))
	}

	prefix := "Alternative"
	if winner {
		prefix = "Best overall match"
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s with a score of %.1f.", prefix, a.Score)
	}
	return fmt.Sprintf("%s: %s (score %.1f).", prefix, strings.Join(parts, ", "), a.Score)
}

func userMessage(s *model.AgentState) string {
	if s.UserQuery != "" {
		return s.UserQuery
	}
	return fmt.Sprintf("%s in %s", s.PlaceType, s.City)
}

func budgetSuffix(b *float64) string {
	if b == nil {
		return ""
	}
	return fmt.Sprintf(" within ₹%.0f", *b)
}
