package pbxproto

import (
	"encoding/base64"
	"encoding/json"
	"sync"
	"testing"
)

type recordingConn struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (c *recordingConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	c.msgs = append(c.msgs, cp)
	return nil
}

func TestSendFrameEncodesPayload(t *testing.T) {
	t.Parallel()

	conn := &recordingConn{}
	s := NewSender(conn)
	payload := make([]byte, 320)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	if err := s.SendFrame(payload, "stream1", "chan1", "call1"); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(conn.msgs))
	}
	var ev ReverseMediaEvent
	if err := json.Unmarshal(conn.msgs[0], &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Event != OutEventReverseMedia {
		t.Errorf("event = %q, want %q", ev.Event, OutEventReverseMedia)
	}
	decoded, err := base64.StdEncoding.DecodeString(ev.Payload)
	if err != nil {
		t.Fatalf("base64 decode: %v", err)
	}
	if len(decoded) != 320 {
		t.Errorf("decoded payload len = %d, want 320", len(decoded))
	}
}

func TestSendErrorShape(t *testing.T) {
	t.Parallel()

	conn := &recordingConn{}
	s := NewSender(conn)
	if err := s.SendError(ErrCodeInsufficientCredits, "balance is zero"); err != nil {
		t.Fatalf("SendError: %v", err)
	}
	var ev ErrorEvent
	if err := json.Unmarshal(conn.msgs[0], &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Code != ErrCodeInsufficientCredits {
		t.Errorf("code = %q, want %q", ev.Code, ErrCodeInsufficientCredits)
	}
}

func TestParseEventDiscriminant(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"event":"start","streamId":"s1"}`)
	typ, _, err := ParseEvent(raw)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if typ != EventStart {
		t.Errorf("type = %q, want %q", typ, EventStart)
	}
}

func TestParseEventMalformedJSON(t *testing.T) {
	t.Parallel()

	_, _, err := ParseEvent([]byte(`not json`))
	if err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestConcurrentSendsSerialize(t *testing.T) {
	t.Parallel()

	conn := &recordingConn{}
	s := NewSender(conn)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.SendFrame(make([]byte, 320), "s", "c", "call")
		}()
	}
	wg.Wait()

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.msgs) != 50 {
		t.Errorf("got %d messages, want 50 (no messages should be lost or corrupted by concurrent sends)", len(conn.msgs))
	}
}
