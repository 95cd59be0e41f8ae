// Package engine is the composition root that assembles provider adapters
// from configuration and exposes them through a frontend-agnostic API.
// Frontends (CLI, web, desktop) look up completers by name on the Engine and
// never construct provider packages directly.
package engine
