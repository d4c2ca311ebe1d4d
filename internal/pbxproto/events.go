// Package pbxproto implements the PBX WebSocket wire contract: the JSON
// event shapes exchanged on the single per-call socket (SPEC_FULL.md §6),
// a small adapter abstraction that parameterizes frame size/encoding/rate
// over the PBX profile, and the serialized event sender both the egress
// worker and the JSON event path share.
package pbxproto

import "encoding/json"

// EventType enumerates the recognized inbound PBX event names.
type EventType string

const (
	EventConnected             EventType = "connected"
	EventStart                 EventType = "start"
	EventMedia                 EventType = "media"
	EventStop                  EventType = "stop"
	EventDTMF                  EventType = "dtmf"
	EventMark                  EventType = "mark"
	EventClear                 EventType = "clear"
	EventAnswer                EventType = "answer"
	EventTransferCallResponse  EventType = "transfer-call-response"
	EventHangupCallResponse    EventType = "hangup-call-response"
)

// OutEventReverseMedia and OutEventError are the only two event names the
// gateway ever sends.
const (
	OutEventReverseMedia = "reverse-media"
	OutEventError        = "error"
)

// MediaFormat describes the encoding of a `start` event's audio.
type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// StartEvent carries the call identity triple and media/routing metadata.
type StartEvent struct {
	StreamID    string                 `json:"streamId"`
	CallID      string                 `json:"callId"`
	ChannelID   string                 `json:"channelId"`
	MediaFormat MediaFormat            `json:"mediaFormat"`
	From        string                 `json:"from"`
	To          string                 `json:"to"`
	ExtraParams map[string]interface{} `json:"extraParams"`
}

// ConnectedEvent caches caller/dialed/direction hints.
type ConnectedEvent struct {
	ChannelID    string `json:"channelId,omitempty"`
	CallID       string `json:"callId,omitempty"`
	StreamID     string `json:"streamId,omitempty"`
	CallerID     string `json:"callerId,omitempty"`
	CallDirection string `json:"callDirection,omitempty"`
	DID          string `json:"did,omitempty"`
	From         string `json:"from,omitempty"`
	To           string `json:"to,omitempty"`
}

// MediaEvent carries one base64-encoded audio payload.
type MediaEvent struct {
	Payload string `json:"payload"`
}

// StopEvent signals teardown.
type StopEvent struct {
	StreamID string `json:"streamId,omitempty"`
	CallID   string `json:"callId,omitempty"`
}

// DTMFEvent carries a single DTMF digit.
type DTMFEvent struct {
	Digit string `json:"digit"`
}

// ReverseMediaEvent is the only audio-bearing outbound event: exactly
// FrameBytes (320) bytes of PCM-16 mono 8 kHz, base64-encoded.
type ReverseMediaEvent struct {
	Event     string `json:"event"`
	Payload   string `json:"payload"`
	StreamID  string `json:"streamId"`
	ChannelID string `json:"channelId"`
	CallID    string `json:"callId"`
}

// ErrorEvent is sent and the socket closed for unrecoverable per-call
// conditions (insufficient credits, no matching agent).
type ErrorEvent struct {
	Event   string `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	ErrCodeInsufficientCredits = "insufficient_credits"
	ErrCodeNoAgent             = "no_matching_agent"
)

// ParseEvent extracts the `event` discriminant from a raw inbound frame.
// Malformed JSON is reported as an error the caller should log-and-continue
// on, per the protocol error policy in SPEC_FULL.md §7.
func ParseEvent(raw []byte) (EventType, json.RawMessage, error) {
	var env struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, err
	}
	return EventType(env.Event), raw, nil
}
