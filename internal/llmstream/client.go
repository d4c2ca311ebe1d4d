// Package llmstream implements the streaming LLM client contract from
// SPEC_FULL.md §4.4: a vendor-agnostic Chat call that streams tokens via
// callback, behind a Router keyed by an agent's configured engine name.
package llmstream

import "context"

// Request is one turn sent to an LLM backend.
type Request struct {
	UserMessage  string
	SystemPrompt string
	Model        string
}

// Result is the complete response with timing, once the stream ends.
type Result struct {
	Text               string
	LatencyMs          float64
	TimeToFirstTokenMs float64
}

// TokenFunc is invoked once per streamed token/delta.
type TokenFunc func(token string)

// Client streams a chat completion from a configured vendor.
type Client interface {
	Chat(ctx context.Context, req Request, onToken TokenFunc) (Result, error)
}
