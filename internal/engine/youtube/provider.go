package youtube

import (
	"context"
	"net/url"
	"sync"

	"github.com/anatolykoptev/go_vidsearch/internal/engine"
)

// checkVideoID is a long-lived public video used to validate keys.
const checkVideoID = "dQw4w9WgXcQ"

// Provider hands out one Client per credential. All clients share the
// response cache; each has its own ledger (from the registry) and limiter.
type Provider struct {
	cfg        engine.Config
	cache      *engine.ResponseCache
	quotas     *engine.QuotaRegistry
	defaultKey string

	mu      sync.Mutex
	clients map[string]*Client
}

// NewProvider builds a provider from the engine config. Caller clients live
// as long as their ledger in quotas; an evicted ledger drops its client too.
func NewProvider(cfg engine.Config, cache *engine.ResponseCache, quotas *engine.QuotaRegistry) *Provider {
	p := &Provider{
		cfg:        cfg,
		cache:      cache,
		quotas:     quotas,
		defaultKey: cfg.YouTubeAPIKey,
		clients:    make(map[string]*Client),
	}
	quotas.OnEvict(p.forget)
	return p
}

func (p *Provider) forget(id string) {
	p.mu.Lock()
	delete(p.clients, id)
	p.mu.Unlock()
}

// Len returns the number of clients held, the default one included.
func (p *Provider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// HasDefault reports whether a service credential is configured.
func (p *Provider) HasDefault() bool { return p.defaultKey != "" }

// Quotas returns the ledger registry.
func (p *Provider) Quotas() *engine.QuotaRegistry { return p.quotas }

// Default returns the client for the service credential.
func (p *Provider) Default() *Client { return p.Client("") }

// Client returns the client for apiKey; "" selects the service credential.
// A caller-supplied key never charges the default ledger.
func (p *Provider) Client(apiKey string) *Client {
	// Taken before mu: it may evict, and eviction calls back into forget.
	ledger := p.quotas.Ledger(apiKey)
	id := engine.CredentialID(apiKey)
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[id]; ok && c.ledger == ledger {
		return c
	}

	key := apiKey
	if key == "" {
		key = p.defaultKey
	}
	c := NewClient(Options{
		APIKey:     key,
		BaseURL:    p.cfg.YouTubeAPIBase,
		HTTPClient: p.cfg.HTTPClient,
		Ledger:     ledger,
		Cache:      p.cache,
		Limiter:    NewLimiter(p.cfg.RateLimit, p.cfg.RateWindow, p.cfg.RateBurst),
		Retry:      p.cfg.Retry,
		TTLs:       p.cfg.CacheTTLs,
		MaxWorkers: p.cfg.MaxWorkers,
	})
	p.clients[id] = c
	return c
}

// ValidateKey checks apiKey with a one-unit videos.list call that bypasses
// the cache. It returns nil, an InvalidCredentialError, or another API error.
func (p *Provider) ValidateKey(ctx context.Context, apiKey string) error {
	c := p.Client(apiKey)
	params := url.Values{}
	params.Set("part", "id")
	params.Set("id", checkVideoID)
	_, err := c.fetch(ctx, engine.OpVideos, "videos", params)
	return err
}
