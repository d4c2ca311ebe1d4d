// Package asr implements the streaming ASR client contract from
// SPEC_FULL.md §4.2/§6: a vendor WebSocket session that forwards inbound
// PBX audio and emits interim/final/utteranceEnd transcript events, with
// bounded queuing while the socket opens and bounded-retry reconnect on
// abnormal close.
package asr

import "context"

// EventType distinguishes the three upstream ASR events.
type EventType string

const (
	EventInterim      EventType = "interim"
	EventFinal        EventType = "final"
	EventUtteranceEnd EventType = "utteranceEnd"
)

// Event is one ASR result, tagged with the type that determines how the
// dialogue controller reacts to it.
type Event struct {
	Type       EventType
	Text       string
	Confidence float64
}

// WordCount is a small helper the controller's barge-in predicate needs
// (interim must have >= 2 words); kept here so the rule lives next to the
// data it operates on.
func (e Event) WordCount() int {
	n := 0
	inWord := false
	for _, r := range e.Text {
		isSpace := r == ' ' || r == '\t' || r == '\n'
		if !isSpace && !inWord {
			n++
		}
		inWord = !isSpace
	}
	return n
}

// OpenOptions parameterizes a streaming session per SPEC_FULL.md §4.2.
type OpenOptions struct {
	SampleRate  int
	Channels    int
	Encoding    string // "linear16" | "mulaw"
	Language    string
	Model       string
	Endpointing int // ms
}

// Session is one open ASR connection for the lifetime of a call.
type Session interface {
	// SendAudio forwards one inbound PBX frame verbatim.
	SendAudio(frame []byte) error
	// Events returns the channel upstream transcripts arrive on. Closed
	// once the session is done after Close; cancelling the context passed
	// to Open does not close it by itself.
	Events() <-chan Event
	// Close ends the session and releases its resources.
	Close() error
}

// Client opens ASR sessions against a configured vendor.
type Client interface {
	Open(ctx context.Context, opts OpenOptions) (Session, error)
}
