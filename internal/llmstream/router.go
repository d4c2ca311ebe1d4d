package llmstream

import "github.com/voicebridge/gateway/internal/vendor"

// Router dispatches to an agent's selected LLM vendor, falling back to a
// configured default.
type Router = vendor.Router[Client]

// NewRouter builds an LLM Router.
func NewRouter(backends map[string]Client, fallback string) *Router {
	return vendor.NewRouter(backends, fallback)
}
