package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/parleyhq/parley/pkg/modeladapter"
	"github.com/parleyhq/parley/pkg/providers/anthropic"
	"github.com/parleyhq/parley/pkg/providers/foundry"
	"github.com/parleyhq/parley/pkg/providers/openai"
	"github.com/rs/zerolog"
)

// ProviderFactory creates a Completer from a ProviderConfig. The logger is the
// engine's diagnostic logger; factories hand it to the adapters they build.
type ProviderFactory func(cfg ProviderConfig, logger zerolog.Logger) (modeladapter.Completer, error)

var (
	factoryMu   sync.RWMutex
	factories   = map[string]ProviderFactory{}
	defaultsReg sync.Once
)

func ensureDefaults() {
	defaultsReg.Do(func() {
		factories["foundry"] = newFoundry
		factories["openai"] = newOpenAI
		factories["anthropic"] = newAnthropic
	})
}

// RegisterProvider registers a custom provider factory under the given kind.
// It can be called before New to extend the engine with additional providers.
func RegisterProvider(kind string, factory ProviderFactory) {
	ensureDefaults()

	factoryMu.Lock()
	defer factoryMu.Unlock()

	factories[kind] = factory
}

// getFactory returns the factory for the given kind.
func getFactory(kind string) (ProviderFactory, bool) {
	ensureDefaults()

	factoryMu.RLock()
	defer factoryMu.RUnlock()

	f, ok := factories[kind]
	return f, ok
}

func newFoundry(cfg ProviderConfig, logger zerolog.Logger) (modeladapter.Completer, error) {
	return foundry.New(foundry.Config{
		Model:       cfg.Model,
		Endpoint:    cfg.Endpoint,
		APIKey:      cfg.APIKey,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Logger:      logger,
	})
}

func newOpenAI(cfg ProviderConfig, logger zerolog.Logger) (modeladapter.Completer, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api.openai.com"
	}

	a := openai.New(endpoint, cfg.APIKey, cfg.Model)
	a.Temperature = cfg.Temperature
	if cfg.MaxTokens > 0 {
		a.MaxTokens = cfg.MaxTokens
	}
	a.Logger = logger

	return a, nil
}

func newAnthropic(cfg ProviderConfig, logger zerolog.Logger) (modeladapter.Completer, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api.anthropic.com"
	}

	a := anthropic.New(endpoint, cfg.APIKey, cfg.Model)
	a.Temperature = cfg.Temperature
	if cfg.MaxTokens > 0 {
		a.MaxTokens = cfg.MaxTokens
	}
	a.Logger = logger

	return a, nil
}

// buildCompleter creates a Completer from a ProviderConfig using the registered
// factory for its Kind. If rate limiting is configured, the completer is wrapped
// with a RateLimitedCompleter.
func buildCompleter(cfg ProviderConfig, logger zerolog.Logger) (modeladapter.Completer, error) {
	factory, ok := getFactory(cfg.Kind)
	if !ok {
		return nil, fmt.Errorf("engine: unknown provider kind %q", cfg.Kind)
	}

	c, err := factory(cfg, logger)
	if err != nil {
		return nil, err
	}

	rl := cfg.RateLimit
	if rl.InputTPM > 0 || rl.OutputTPM > 0 || rl.RPM > 0 || rl.MaxRetries > 0 || rl.BaseDelay != "" {
		var baseDelay time.Duration
		if rl.BaseDelay != "" {
			var parseErr error
			baseDelay, parseErr = time.ParseDuration(rl.BaseDelay)
			if parseErr != nil {
				return nil, fmt.Errorf("engine: provider %q: invalid base_delay %q: %w", cfg.Name, rl.BaseDelay, parseErr)
			}
		}

		c = modeladapter.NewRateLimitedCompleter(c, modeladapter.RateLimitOpts{
			InputTPM:   rl.InputTPM,
			OutputTPM:  rl.OutputTPM,
			RPM:        rl.RPM,
			MaxRetries: rl.MaxRetries,
			BaseDelay:  baseDelay,
		})
	}

	return c, nil
}
