// Package providers groups the concrete LLM provider adapters.
//
// It is organized into sub-packages:
//   - [github.com/parleyhq/parley/pkg/providers/foundry] — Azure AI Foundry chat completions
//   - [github.com/parleyhq/parley/pkg/providers/openai] — OpenAI Chat Completions API
//   - [github.com/parleyhq/parley/pkg/providers/anthropic] — Anthropic Messages API
//
// This package contains no provider-specific code — concrete adapters live in
// the sub-packages and share the modeladapter base.
package providers
