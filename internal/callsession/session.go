// Package callsession implements the call session and PBX event handler
// from SPEC_FULL.md §3/§4.1: the per-connection state described in the
// Data Model, and the event dispatch table that drives ASR, the dialogue
// controller, LLM streaming, TTS synthesis and egress pacing for one call.
package callsession

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voicebridge/gateway/internal/config"
	"github.com/voicebridge/gateway/internal/dialogue"
	"github.com/voicebridge/gateway/internal/egress"
	"github.com/voicebridge/gateway/internal/history"
)

// Direction is the call's originating direction, cached from `connected`/`start`.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Session is the per-call state described in SPEC_FULL.md §3: identified
// by the {streamId, callId, channelId} triple, owning the agent config,
// conversation history, dialogue controller and egress pacer for the
// lifetime of one PBX connection.
type Session struct {
	streamID  string
	callID    string
	channelID string

	Direction  Direction
	CallerE164 string
	DialedE164 string
	Agent      config.Agent
	Language   string
	StartTime  time.Time

	History    *history.History
	Controller *dialogue.Controller
	Pacer      *egress.Pacer

	framesIn  atomic.Int64
	framesOut atomic.Int64

	mu                 sync.Mutex
	leadStatusHint     string
	messagingRequested bool
	messagingSent      bool
}

// New creates a Session in the Idle state for one PBX connection, with an
// empty history and a new dialogue controller. New leaves the Pacer field
// nil; the call handler keeps each call's egress pacer on its own per-call
// record.
func New(streamID, callID, channelID string, agent config.Agent) *Session {
	return &Session{
		streamID:   streamID,
		callID:     callID,
		channelID:  channelID,
		Agent:      agent,
		StartTime:  time.Now(),
		History:    history.New(),
		Controller: dialogue.New(),
	}
}

// StreamID satisfies registry.Session.
func (s *Session) StreamID() string { return s.streamID }

// CallID returns the call's callId.
func (s *Session) CallID() string { return s.callID }

// ChannelID returns the call's channelId.
func (s *Session) ChannelID() string { return s.channelID }

// RecordFrameIn counts one inbound PBX media frame.
func (s *Session) RecordFrameIn() { s.framesIn.Add(1) }

// RecordFrameOut counts one outbound reverse-media frame.
func (s *Session) RecordFrameOut() { s.framesOut.Add(1) }

// FramesIn returns the cumulative inbound frame count.
func (s *Session) FramesIn() int64 { return s.framesIn.Load() }

// FramesOut returns the cumulative outbound frame count.
func (s *Session) FramesOut() int64 { return s.framesOut.Load() }

// ElapsedSeconds returns the call's connected duration so far, for billing.
func (s *Session) ElapsedSeconds() float64 {
	return time.Since(s.StartTime).Seconds()
}

// SetLeadStatusHint records a caller-stated preference the analyzer may
// weigh (e.g. an explicit "yes, enroll me"), distinct from the LLM's
// post-call classification.
func (s *Session) SetLeadStatusHint(hint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leadStatusHint = hint
}

// LeadStatusHint returns the recorded hint, if any.
func (s *Session) LeadStatusHint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leadStatusHint
}

// RequestMessaging marks that the caller explicitly asked for a message
// during the call, independent of the lead-status-driven trigger.
func (s *Session) RequestMessaging() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messagingRequested = true
}

// MessagingRequested reports whether the caller asked for a message.
func (s *Session) MessagingRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messagingRequested
}

// MarkMessagingSent records that the messaging endpoint was dispatched
// successfully, so teardown never double-sends.
func (s *Session) MarkMessagingSent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messagingSent = true
}

// MessagingSent reports whether a message was already dispatched.
func (s *Session) MessagingSent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messagingSent
}

// CallerName extracts a personalization name from a `start` event's
// extraParams, if present, for the greeting and system-prompt injection.
func CallerName(extraParams map[string]interface{}) (string, bool) {
	for _, key := range []string{"name", "callerName", "callerId_name"} {
		if v, ok := extraParams[key]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s), true
			}
		}
	}
	return "", false
}

// NormalizeE164 normalizes a caller number to a 12-digit E.164 string with
// the 91 country prefix, per SPEC_FULL.md §4.6's messaging-dispatch rule.
func NormalizeE164(number string) string {
	var digits strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case len(d) == 10:
		return "91" + d
	case len(d) == 12 && strings.HasPrefix(d, "91"):
		return d
	case len(d) > 10:
		return "91" + d[len(d)-10:]
	default:
		return d
	}
}
