package llmstream

import "time"

// streamResult accumulates text/thinking plus the time-to-first-token
// marker shared by the three streaming HTTP backends (OpenAI and Anthropic
// over SSE, Ollama over NDJSON).
type streamResult struct {
	text     string
	thinking string
	ttft     time.Time
}

func ttftMillis(sr streamResult, start time.Time) float64 {
	if sr.ttft.IsZero() {
		return 0
	}
	return float64(sr.ttft.Sub(start).Milliseconds())
}
