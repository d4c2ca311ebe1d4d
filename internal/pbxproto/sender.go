package pbxproto

import (
	"encoding/base64"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

// Conn is the subset of *websocket.Conn the sender needs, so call sessions
// can be exercised against a fake in tests.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
}

// Sender is the single writer for a PBX connection. Both the egress
// worker (reverse-media frames) and the event path (error events) send
// through the same instance, satisfying the single-send-critical-section
// requirement in SPEC_FULL.md §5 — adapted from the teacher's
// newEventSender closure into a reusable, testable type.
type Sender struct {
	mu   sync.Mutex
	conn Conn
}

// NewSender wraps conn with the serialized-write critical section.
func NewSender(conn Conn) *Sender {
	return &Sender{conn: conn}
}

// SendFrame writes one reverse-media event carrying exactly len(payload)
// PCM bytes, base64-encoded per the wire contract.
func (s *Sender) SendFrame(payload []byte, streamID, channelID, callID string) error {
	ev := ReverseMediaEvent{
		Event:     OutEventReverseMedia,
		Payload:   base64.StdEncoding.EncodeToString(payload),
		StreamID:  streamID,
		ChannelID: channelID,
		CallID:    callID,
	}
	return s.writeJSON(ev)
}

// SendError writes an error event. Callers close the socket afterward.
func (s *Sender) SendError(code, message string) error {
	return s.writeJSON(ErrorEvent{Event: OutEventError, Code: code, Message: message})
}

func (s *Sender) writeJSON(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, b)
}
