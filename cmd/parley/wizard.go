package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/parleyhq/parley/pkg/engine"
	"gopkg.in/yaml.v3"
)

// runWizard walks through provider setup interactively and returns the
// resulting config as YAML. API keys are stored as ${VAR} references so the
// file stays safe to commit; LoadConfig expands them at startup.
func runWizard() ([]byte, error) {
	var (
		kind      string
		name      = "main"
		model     string
		endpoint  string
		apiKeyEnv string
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Provider kind").
				Options(
					huh.NewOption("Azure AI Foundry", "foundry"),
					huh.NewOption("OpenAI", "openai"),
					huh.NewOption("Anthropic", "anthropic"),
				).
				Value(&kind),
			huh.NewInput().
				Title("Provider name").
				Value(&name).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("name is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Model").
				Placeholder("e.g. gpt-4o").
				Value(&model).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("model is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Endpoint (leave blank for the provider default)").
				Value(&endpoint),
			huh.NewInput().
				Title("API key environment variable").
				Placeholder("e.g. AZURE_INFERENCE_CREDENTIAL").
				Value(&apiKeyEnv),
		),
	)

	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("wizard: %w", err)
	}

	pc := engine.ProviderConfig{
		Name:     name,
		Kind:     kind,
		Endpoint: endpoint,
		Model:    model,
	}
	if apiKeyEnv != "" {
		pc.APIKey = "${" + apiKeyEnv + "}"
	}

	cfg := engine.Config{
		Providers:       []engine.ProviderConfig{pc},
		DefaultProvider: name,
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("wizard: marshal config: %w", err)
	}

	return out, nil
}
