package asr

import "github.com/voicebridge/gateway/internal/vendor"

// Router dispatches to an agent's selected ASR vendor, falling back to a
// configured default.
type Router = vendor.Router[Client]

// NewRouter builds an ASR Router.
func NewRouter(backends map[string]Client, fallback string) *Router {
	return vendor.NewRouter(backends, fallback)
}
