package llmstream

import "github.com/voicebridge/gateway/internal/vendor"

// Generation is the llmSession counter from SPEC_FULL.md §4.4/§5.
type Generation = vendor.Generation

// Guard wraps a TokenFunc so it silently no-ops once gen no longer matches
// the current generation, i.e. once this call's output has gone stale.
func Guard(g *Generation, gen int64, fn TokenFunc) TokenFunc {
	return func(token string) {
		if g.Stale(gen) {
			return
		}
		if fn != nil {
			fn(token)
		}
	}
}
