package engine

import (
	"fmt"
	"sort"

	"github.com/parleyhq/parley/pkg/modeladapter"
	"github.com/rs/zerolog"
)

// Engine holds the completers built from a validated Config and exposes them
// by name. It is immutable after New and safe for concurrent lookups.
type Engine struct {
	cfg        Config
	completers map[string]modeladapter.Completer
	logger     zerolog.Logger
}

// Option configures an Engine during New.
type Option func(*Engine)

// WithLogger sets the engine's diagnostic logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New validates cfg and constructs a completer for every configured provider.
// Construction is eager so misconfiguration surfaces at startup, not on the
// first completion call.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		completers: make(map[string]modeladapter.Completer, len(cfg.Providers)),
	}
	for _, opt := range opts {
		opt(e)
	}

	for _, pc := range cfg.Providers {
		c, err := buildCompleter(pc, e.logger)
		if err != nil {
			return nil, fmt.Errorf("engine: provider %q: %w", pc.Name, err)
		}

		e.completers[pc.Name] = c

		e.logger.Debug().
			Str("provider", pc.Name).
			Str("kind", pc.Kind).
			Str("model", pc.Model).
			Msg("provider registered")
	}

	return e, nil
}

// Completer returns the completer registered under name.
func (e *Engine) Completer(name string) (modeladapter.Completer, error) {
	c, ok := e.completers[name]
	if !ok {
		return nil, fmt.Errorf("engine: unknown provider %q", name)
	}

	return c, nil
}

// Default returns the configured default provider's completer. When no
// default_provider is set and exactly one provider is configured, that
// provider is the default.
func (e *Engine) Default() (modeladapter.Completer, error) {
	name := e.cfg.DefaultProvider
	if name == "" {
		if len(e.cfg.Providers) == 1 {
			name = e.cfg.Providers[0].Name
		} else {
			return nil, fmt.Errorf("engine: no default_provider configured")
		}
	}

	return e.Completer(name)
}

// DefaultName returns the name of the default provider, or "" when ambiguous.
func (e *Engine) DefaultName() string {
	if e.cfg.DefaultProvider != "" {
		return e.cfg.DefaultProvider
	}
	if len(e.cfg.Providers) == 1 {
		return e.cfg.Providers[0].Name
	}
	return ""
}

// Names returns the sorted names of all registered providers.
func (e *Engine) Names() []string {
	names := make([]string, 0, len(e.completers))
	for name := range e.completers {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
