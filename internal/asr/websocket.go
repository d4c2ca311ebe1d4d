package asr

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicebridge/gateway/internal/metrics"
)

// inboundQueueCap bounds the FIFO of audio frames queued while the ASR
// socket is (re)connecting. Beyond this, the oldest frame is dropped — the
// "safety cap in the hundreds of frames" named in SPEC_FULL.md §4.2/§5.
const inboundQueueCap = 300

// reconnectBackoff is the fixed 1s/2s/4s sequence from SPEC_FULL.md §4.2/§5.
var reconnectBackoff = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// WebSocketClient opens streaming sessions against a Deepgram-shaped ASR
// vendor endpoint (SPEC_FULL.md §6).
type WebSocketClient struct {
	baseURL string
	apiKey  string
	dialer  *websocket.Dialer
}

// NewWebSocketClient builds a client for a vendor base URL (e.g.
// "wss://api.example-asr.com/v1/listen") and bearer token.
func NewWebSocketClient(baseURL, apiKey string) *WebSocketClient {
	return &WebSocketClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		dialer:  websocket.DefaultDialer,
	}
}

func (c *WebSocketClient) Open(ctx context.Context, opts OpenOptions) (Session, error) {
	s := &wsSession{
		client:   c,
		opts:     opts,
		events:   make(chan Event, 32),
		inbound:  make(chan []byte, inboundQueueCap),
		done:     make(chan struct{}),
		ctx:      ctx,
	}
	if err := s.dial(); err != nil {
		return nil, fmt.Errorf("asr: initial dial: %w", err)
	}
	go s.readLoop()
	go s.writeLoop()
	return s, nil
}

func (c *WebSocketClient) dialURL(opts OpenOptions) (string, http.Header) {
	q := url.Values{}
	q.Set("sample_rate", strconv.Itoa(opts.SampleRate))
	q.Set("channels", strconv.Itoa(opts.Channels))
	q.Set("encoding", opts.Encoding)
	q.Set("language", opts.Language)
	q.Set("model", opts.Model)
	q.Set("interim_results", "true")
	q.Set("smart_format", "true")
	q.Set("punctuate", "true")
	q.Set("endpointing", strconv.Itoa(opts.Endpointing))

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.apiKey)

	return c.baseURL + "?" + q.Encode(), header
}

type wsSession struct {
	client *WebSocketClient
	opts   OpenOptions
	ctx    context.Context

	mu       sync.Mutex
	conn     *websocket.Conn
	closed   bool
	degraded bool // reconnect attempts exhausted; audio accepted and discarded

	events  chan Event
	inbound chan []byte
	done    chan struct{}
}

func (s *wsSession) dial() error {
	u, header := s.client.dialURL(s.opts)
	conn, _, err := s.client.dialer.DialContext(s.ctx, u, header)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return nil
}

func (s *wsSession) SendAudio(frame []byte) error {
	select {
	case s.inbound <- frame:
		return nil
	default:
		// Queue full: drop the oldest frame, then enqueue this one.
		select {
		case <-s.inbound:
		default:
		}
		select {
		case s.inbound <- frame:
		default:
		}
		return nil
	}
}

func (s *wsSession) Events() <-chan Event { return s.events }

func (s *wsSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	close(s.done)
	if conn != nil {
		_ = conn.Close()
	}
	return nil
}

// writeLoop drains the inbound queue to the active connection. When the
// connection is mid-reconnect, frames accumulate in s.inbound (bounded,
// drop-oldest) until a new connection is in place.
func (s *wsSession) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case frame := <-s.inbound:
			s.mu.Lock()
			degraded := s.degraded
			conn := s.conn
			s.mu.Unlock()
			if degraded || conn == nil {
				continue // audio accepted and discarded, per failure policy
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				slog.Warn("asr write failed", "error", err)
			}
		}
	}
}

// readLoop reads vendor events off the active connection and reconnects
// with the fixed backoff on abnormal close, per SPEC_FULL.md §4.2.
func (s *wsSession) readLoop() {
	defer close(s.events)
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if !s.reconnect() {
				s.mu.Lock()
				s.degraded = true
				s.mu.Unlock()
				slog.Warn("asr reconnect exhausted; session degraded")
				// writeLoop keeps accepting and discarding audio; no more
				// events arrive, so wait for Close before closing events.
				<-s.done
				return
			}
			continue
		}

		ev, ok := decodeVendorEvent(data)
		if !ok {
			continue
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

// reconnect retries the fixed 1s/2s/4s backoff up to three attempts.
// Returns true if a new connection was established.
func (s *wsSession) reconnect() bool {
	for _, backoff := range reconnectBackoff {
		metrics.ASRReconnects.Inc()
		select {
		case <-s.done:
			return false
		case <-time.After(backoff):
		}
		if err := s.dial(); err == nil {
			return true
		}
	}
	return false
}

// vendorEvent mirrors the Deepgram-shaped ASR vendor response envelope
// from SPEC_FULL.md §6.
type vendorEvent struct {
	Type     string `json:"type"`
	Channel  struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal bool `json:"is_final"`
}

func decodeVendorEvent(data []byte) (Event, bool) {
	var v vendorEvent
	if err := json.Unmarshal(data, &v); err != nil {
		return Event{}, false
	}
	switch v.Type {
	case "UtteranceEnd":
		return Event{Type: EventUtteranceEnd}, true
	case "Results":
		if len(v.Channel.Alternatives) == 0 {
			return Event{}, false
		}
		alt := v.Channel.Alternatives[0]
		typ := EventInterim
		if v.IsFinal {
			typ = EventFinal
		}
		return Event{Type: typ, Text: alt.Transcript, Confidence: alt.Confidence}, true
	default:
		return Event{}, false
	}
}
