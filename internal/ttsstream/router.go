package ttsstream

import "github.com/voicebridge/gateway/internal/vendor"

// Router dispatches to an agent's selected TTS vendor, falling back to a
// configured default.
type Router = vendor.Router[Synthesizer]

// NewRouter builds a TTS Router.
func NewRouter(backends map[string]Synthesizer, fallback string) *Router {
	return vendor.NewRouter(backends, fallback)
}
