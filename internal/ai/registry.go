package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/suPer8Hu/vidblog/internal/config"
)

type ProviderFactory func(ctx context.Context, model string) (Provider, error)

type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

// NewRegistryFromConfig registers the openai, openrouter and ollama backends.
// An empty model passed to Get falls back to the configured one.
func NewRegistryFromConfig(cfg *config.Config) *Registry {
	r := NewRegistry()
	r.Register("openai", func(ctx context.Context, model string) (Provider, error) {
		return NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, orDefault(model, cfg.OpenAIModel)), nil
	})
	r.Register("openrouter", func(ctx context.Context, model string) (Provider, error) {
		return NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, orDefault(model, cfg.OpenRouterModel),
			cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	})
	r.Register("ollama", func(ctx context.Context, model string) (Provider, error) {
		return NewOllamaProvider(cfg.OllamaBaseURL, orDefault(model, cfg.OllamaModel)), nil
	})
	return r
}

func (r *Registry) Register(name string, f ProviderFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Get(ctx context.Context, name string, model string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider %q (have %s)", name, strings.Join(r.Names(), ", "))
	}
	return f(ctx, model)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
