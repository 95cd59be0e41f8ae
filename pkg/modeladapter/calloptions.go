package modeladapter

import "encoding/json"

// CallOptions carries per-call settings that travel alongside the conversation.
type CallOptions struct {
	// OutputFormat is a JSON schema the reply must conform to. Backends that
	// cannot enforce it return ErrOutputFormatUnsupported rather than
	// ignoring it.
	OutputFormat json.RawMessage

	// Extra holds provider-passthrough request fields. Extras are applied to
	// the request after the adapter's named fields, so on a key collision the
	// extra wins.
	Extra map[string]any
}

// CallOption mutates CallOptions.
type CallOption func(*CallOptions)

// NewCallOptions applies opts to a zero CallOptions and returns the result.
func NewCallOptions(opts ...CallOption) CallOptions {
	var co CallOptions
	for _, opt := range opts {
		opt(&co)
	}
	return co
}

// WithOutputFormat requests that the reply conform to the given JSON schema.
func WithOutputFormat(schema json.RawMessage) CallOption {
	return func(co *CallOptions) {
		co.OutputFormat = schema
	}
}

// WithExtra merges the given fields into the call's extra options.
func WithExtra(extra map[string]any) CallOption {
	return func(co *CallOptions) {
		if co.Extra == nil {
			co.Extra = make(map[string]any, len(extra))
		}
		for k, v := range extra {
			co.Extra[k] = v
		}
	}
}

// WithExtraOption sets a single extra request field.
func WithExtraOption(key string, value any) CallOption {
	return func(co *CallOptions) {
		if co.Extra == nil {
			co.Extra = make(map[string]any, 1)
		}
		co.Extra[key] = value
	}
}
