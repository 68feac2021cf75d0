// Package search turns a query into an ordered URL list for the fetcher.
package search

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/Sriram-PR/webfetch/pkg/config"
	"github.com/Sriram-PR/webfetch/pkg/utils"
)

const (
	ProviderDuckDuckGo        = "duckduckgo"
	ProviderDuckDuckGoInstant = "duckduckgo_instant"
)

// Request is a normalized search request.
type Request struct {
	Query string
	Count int
}

// Result is a normalized search result.
type Result struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// Response is a normalized search response.
type Response struct {
	Query     string   `json:"query"`
	Provider  string   `json:"provider"`
	TookMs    int64    `json:"took_ms"`
	Results   []Result `json:"results"`
	Answer    string   `json:"answer,omitempty"`
	Summary   string   `json:"summary,omitempty"`
	NoResults bool     `json:"no_results,omitempty"`
}

// Provider performs web searches for one backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, req Request) (*Response, error)
}

// Registry stores named providers.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds or replaces a provider by name.
func (r *Registry) Register(provider Provider) {
	if r == nil || provider == nil {
		return
	}
	r.providers[provider.Name()] = provider
}

// Get returns a provider by name, or nil.
func (r *Registry) Get(name string) Provider {
	if r == nil {
		return nil
	}
	return r.providers[name]
}

// Names returns registered provider names, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DefaultRegistry registers every built-in provider. BaseURL, when set, overrides
// the endpoint of each (used by tests and self-hosted mirrors).
func DefaultRegistry(cfg config.SearchConfig, client *http.Client) *Registry {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	r := NewRegistry()
	r.Register(NewDuckDuckGo(client, cfg.BaseURL))
	r.Register(NewDuckDuckGoInstant(client, cfg.BaseURL))
	return r
}

// NewProvider returns the provider named by cfg.Provider.
func NewProvider(cfg config.SearchConfig, client *http.Client) (Provider, error) {
	r := DefaultRegistry(cfg, client)
	name := cfg.Provider
	if name == "" {
		name = ProviderDuckDuckGo
	}
	p := r.Get(name)
	if p == nil {
		return nil, fmt.Errorf("%w: unknown search provider %q (available: %v)", utils.ErrConfigValidation, name, r.Names())
	}
	return p, nil
}
