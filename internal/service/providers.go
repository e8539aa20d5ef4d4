package service

import (
	"time"

	"github.com/forgo/negotiator/internal/agent"
)

// defaultCacheCapacity bounds the number of cached provider results
const defaultCacheCapacity = 512

// ProvidersConfig holds the settings of every external provider
type ProvidersConfig struct {
	Groq          GroqConfig
	SerpStack     SerpStackConfig
	WebScraping   ReviewFetcherConfig
	Tavily        TavilyConfig
	CacheTTL      time.Duration
	CacheCapacity uint64
}

// ProviderKeys are the credentials that can be swapped while serving
type ProviderKeys struct {
	Groq        []string
	SerpStack   string
	WebScraping string
	Tavily      string
}

// Providers owns the external tool clients and the result cache they share
type Providers struct {
	Cache        *ResultCache
	LLM          *GroqClient
	Places       *SerpStackClient
	Reviews      *ReviewFetcher
	ReviewSearch *TavilyClient
	Shops        *ShopSimulator
}

// NewProviders builds every provider client. Clients without a key are still
// created; they report Configured() == false and the workflow skips them.
func NewProviders(cfg ProvidersConfig) *Providers {
	if cfg.CacheCapacity == 0 {
		cfg.CacheCapacity = defaultCacheCapacity
	}
	cache := NewResultCache(cfg.CacheTTL, cfg.CacheCapacity)

	llm := NewGroqClient(cfg.Groq)

	cfg.SerpStack.Cache = cache
	cfg.WebScraping.Cache = cache
	cfg.WebScraping.LLM = llm
	cfg.Tavily.Cache = cache

	return &Providers{
		Cache:        cache,
		LLM:          llm,
		Places:       NewSerpStackClient(cfg.SerpStack),
		Reviews:      NewReviewFetcher(cfg.WebScraping),
		ReviewSearch: NewTavilyClient(cfg.Tavily),
		Shops:        NewShopSimulator(llm),
	}
}

// Toolset exposes the clients to the workflow
func (p *Providers) Toolset() agent.Toolset {
	return agent.Toolset{
		LLM:          p.LLM,
		Places:       p.Places,
		Reviews:      p.Reviews,
		ReviewSearch: p.ReviewSearch,
		Shops:        p.Shops,
	}
}

// ApplyKeys replaces provider credentials in place. Runs already in flight
// pick up the new keys on their next upstream call.
func (p *Providers) ApplyKeys(keys ProviderKeys) {
	p.LLM.SetKeys(keys.Groq)
	p.Places.SetAPIKey(keys.SerpStack)
	p.Reviews.SetAPIKey(keys.WebScraping)
	p.ReviewSearch.SetAPIKey(keys.Tavily)
}

// Close stops the cache expiry loop
func (p *Providers) Close() {
	p.Cache.Stop()
}
