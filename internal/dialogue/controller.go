// Package dialogue implements the per-call state machine from
// SPEC_FULL.md §4.3: Idle → Setup → Greeting → Listening → Generating →
// Speaking → (loop) → Teardown, the barge-in predicate and gentle/hard
// stop escalation, and the sentence chunker that feeds TTS.
package dialogue

import (
	"sync"
	"time"

	"github.com/voicebridge/gateway/internal/vendor"
)

const (
	// bargeInMinWords and bargeInMinConfidence are the interruption
	// candidate predicate from SPEC_FULL.md §4.3 rule 1.
	bargeInMinWords      = 2
	bargeInMinConfidence = 0.3
	// stutterWindow rejects a repeat interim arriving within this long of
	// the last one, so a vendor's rapid interim re-emits don't each count
	// as a fresh interruption candidate.
	stutterWindow = 25 * time.Millisecond
	// sentenceCompletionMs is the grace window: a gentle-stopped item may
	// finish if less than this much audio remains.
	sentenceCompletionMs = 2000
)

// Controller owns one call's dialogue state and the llmSession/ttsSession
// generation counters used to discard stale in-flight work.
type Controller struct {
	mu    sync.Mutex
	state State

	llmGen vendor.Generation
	ttsGen vendor.Generation

	lastInterimText string
	lastInterimAt   time.Time
	gentleStopAt    time.Time
	hardGenMark     int64 // ttsGen value at/after which stops are "hard"
}

// New creates a controller starting in Idle.
func New() *Controller {
	return &Controller{state: StateIdle}
}

// State returns the current dialogue state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState transitions the controller. Teardown is idempotent: once set,
// further transitions are ignored.
func (c *Controller) SetState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateTeardown {
		return
	}
	c.state = s
}

// StartTurn advances llmSession and returns the new generation, tagging
// the LLM streamer call that's about to start.
func (c *Controller) StartTurn() int64 {
	return c.llmGen.Next()
}

// LLMStale reports whether gen is no longer the current llmSession —
// i.e. a newer ASR final superseded this turn.
func (c *Controller) LLMStale(gen int64) bool {
	return c.llmGen.Stale(gen)
}

// GuardLLM wraps a token callback so it silently no-ops once gen no longer
// matches the current llmSession, i.e. a newer ASR final superseded this
// turn. The streamer itself need not abort its HTTP response; it simply
// must not call back into a stale chunker.
func (c *Controller) GuardLLM(gen int64, fn func(token string)) func(token string) {
	return func(token string) {
		if c.LLMStale(gen) {
			return
		}
		if fn != nil {
			fn(token)
		}
	}
}

// TTSGen returns the current ttsSession, to tag a newly enqueued item.
func (c *Controller) TTSGen() int64 {
	return c.ttsGen.Current()
}

// TTSStale implements egress.StaleFunc: reports whether gen is stale, and
// whether that invalidation was a hard stop.
func (c *Controller) TTSStale(gen int64) (stale, force bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ttsGen.Stale(gen) {
		return false, false
	}
	return true, gen < c.hardGenMark
}

// OnInterim evaluates an ASR interim transcript against the barge-in
// predicate and, during Listening/Generating/Speaking, escalates to a
// gentle or hard stop. Returns BargeInNone if no action is warranted.
func (c *Controller) OnInterim(text string, confidence float64, wordCount int, now time.Time) BargeInAction {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateGreeting {
		return BargeInNone // the greeting never barges itself
	}
	activeSpeaking := c.state == StateGenerating || c.state == StateSpeaking
	withinGrace := !c.gentleStopAt.IsZero() && now.Sub(c.gentleStopAt) < sentenceCompletionMs*time.Millisecond
	if !activeSpeaking && !withinGrace {
		return BargeInNone // nothing in flight to interrupt
	}
	if wordCount < bargeInMinWords || confidence < bargeInMinConfidence {
		c.lastInterimText, c.lastInterimAt = text, now
		return BargeInNone
	}
	if text == c.lastInterimText && now.Sub(c.lastInterimAt) < stutterWindow {
		return BargeInNone // stutter of the last interim
	}
	c.lastInterimText, c.lastInterimAt = text, now

	if withinGrace {
		// Caller kept talking past the grace window after a gentle stop:
		// escalate. ttsSession advances by 2 (vs. 1 for a gentle stop) so
		// a hard stop is always distinguishable from a plain gentle one,
		// and everything up to the new generation is force-dropped.
		c.ttsGen.Next()
		c.hardGenMark = c.ttsGen.Next()
		c.gentleStopAt = time.Time{}
		c.llmGen.Next() // the agent's in-flight response is abandoned too
		c.state = StateListening
		return BargeInHard
	}

	c.ttsGen.Next()
	c.gentleStopAt = now
	c.llmGen.Next()
	c.state = StateListening
	return BargeInGentle
}
