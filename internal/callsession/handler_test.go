package callsession

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicebridge/gateway/internal/asr"
	"github.com/voicebridge/gateway/internal/config"
	"github.com/voicebridge/gateway/internal/llmstream"
	"github.com/voicebridge/gateway/internal/pbxproto"
	"github.com/voicebridge/gateway/internal/registry"
	"github.com/voicebridge/gateway/internal/ttsstream"
)

type fakeAgentStore struct {
	agent config.Agent
	ok    bool
}

func (s fakeAgentStore) Lookup(dialed, caller string) (config.Agent, bool) {
	if !s.ok || s.agent.CallingNumber != dialed {
		return config.Agent{}, false
	}
	return s.agent, true
}

type fakeBilling struct {
	mu       sync.Mutex
	balance  float64
	billed   []BillMeta
	credited []string
	finalize chan struct{}
}

func (b *fakeBilling) GetOrCreate(ctx context.Context, clientID string) (Account, error) {
	return Account{ClientID: clientID, Balance: b.balance}, nil
}

func (b *fakeBilling) BillCall(ctx context.Context, clientID string, seconds float64, meta BillMeta) (BillResult, error) {
	b.mu.Lock()
	b.billed = append(b.billed, meta)
	b.mu.Unlock()
	if b.finalize != nil {
		close(b.finalize)
	}
	return BillResult{CreditsUsed: seconds / 30, BalanceAfter: b.balance - seconds/30}, nil
}

func (b *fakeBilling) UseCredits(ctx context.Context, clientID string, credits float64, reason string, meta map[string]string) error {
	b.mu.Lock()
	b.credited = append(b.credited, reason)
	b.mu.Unlock()
	return nil
}

func (b *fakeBilling) billCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.billed)
}

type fakeCallLog struct {
	mu       sync.Mutex
	finals   []CallLogFinal
	finalize chan struct{}
}

func (c *fakeCallLog) CreateInitial(ctx context.Context, rec CallLogInitial) (string, error) {
	return "log-1", nil
}

func (c *fakeCallLog) UpdateLive(ctx context.Context, logID string, update CallLogUpdate) error {
	return nil
}

func (c *fakeCallLog) Finalize(ctx context.Context, logID string, final CallLogFinal) error {
	c.mu.Lock()
	c.finals = append(c.finals, final)
	c.mu.Unlock()
	if c.finalize != nil {
		close(c.finalize)
	}
	return nil
}

type fakeASRSession struct {
	events chan asr.Event
	sent   [][]byte
	mu     sync.Mutex
}

func (s *fakeASRSession) SendAudio(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, frame)
	return nil
}
func (s *fakeASRSession) Events() <-chan asr.Event { return s.events }
func (s *fakeASRSession) Close() error             { return nil }

type fakeASRClient struct {
	mu       sync.Mutex
	sessions []*fakeASRSession
}

func (c *fakeASRClient) Open(ctx context.Context, opts asr.OpenOptions) (asr.Session, error) {
	s := &fakeASRSession{events: make(chan asr.Event, 8)}
	c.mu.Lock()
	c.sessions = append(c.sessions, s)
	c.mu.Unlock()
	return s, nil
}

func (c *fakeASRClient) last() *fakeASRSession {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		n := len(c.sessions)
		var s *fakeASRSession
		if n > 0 {
			s = c.sessions[n-1]
		}
		c.mu.Unlock()
		if s != nil {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	return nil
}

type fakeLLMClient struct{}

func (fakeLLMClient) Chat(ctx context.Context, req llmstream.Request, onToken llmstream.TokenFunc) (llmstream.Result, error) {
	tokens := []string{"Sure", ", ", "I can help", " with that."}
	for _, tok := range tokens {
		if onToken != nil {
			onToken(tok)
		}
	}
	return llmstream.Result{Text: "Sure, I can help with that."}, nil
}

type fakeTTS struct{}

func (fakeTTS) Synthesize(ctx context.Context, req ttsstream.Request, onChunk ttsstream.ChunkFunc) (ttsstream.Result, error) {
	if onChunk != nil {
		onChunk(ttsstream.Chunk{PCM: make([]byte, 640), Final: true}) // 2 frames
	}
	return ttsstream.Result{}, nil
}

func newTestHandler(balance float64) (*Handler, *fakeASRClient, *fakeBilling, *fakeCallLog) {
	agent := config.Agent{
		ID:            "agent-1",
		ClientID:      "client-1",
		CallingNumber: "15559998888",
		SystemPrompt:  "You are a helpful assistant.",
		FirstMessage:  "Hello, thanks for calling.",
		VoiceID:       "voice-1",
		Language:      "en",
		ASREngine:     "fake-asr",
		LLMEngine:     "fake-llm",
		TTSEngine:     "fake-tts",
	}
	asrClient := &fakeASRClient{}
	billing := &fakeBilling{balance: balance, finalize: make(chan struct{})}
	calllog := &fakeCallLog{finalize: make(chan struct{})}

	h := &Handler{
		ASR:      asr.NewRouter(map[string]asr.Client{"fake-asr": asrClient}, "fake-asr"),
		LLM:      llmstream.NewRouter(map[string]llmstream.Client{"fake-llm": fakeLLMClient{}}, "fake-llm"),
		TTS:      ttsstream.NewRouter(map[string]ttsstream.Synthesizer{"fake-tts": fakeTTS{}}, "fake-tts"),
		Agents:   fakeAgentStore{agent: agent, ok: true},
		Registry: registry.New(),
		Billing:  billing,
		CallLog:  calllog,
		Profile:  pbxproto.Linear8kHz,
	}
	return h, asrClient, billing, calllog
}

func dialTestServer(t *testing.T, h *Handler) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(h)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func readJSON(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
}

func TestHandlerNoMatchingAgentClosesWithError(t *testing.T) {
	t.Parallel()

	h, _, _, _ := newTestHandler(10)
	h.Agents = fakeAgentStore{ok: false}
	conn, cleanup := dialTestServer(t, h)
	defer cleanup()

	start := map[string]interface{}{
		"event": "start", "streamId": "s1", "callId": "c1", "channelId": "ch1",
		"from": "1000", "to": "2000",
		"mediaFormat": map[string]interface{}{"encoding": "linear16", "sampleRate": 8000, "channels": 1},
	}
	b, _ := json.Marshal(start)
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write start: %v", err)
	}

	var errEv pbxproto.ErrorEvent
	readJSON(t, conn, &errEv)
	if errEv.Code != pbxproto.ErrCodeNoAgent {
		t.Errorf("got error code %q, want %q", errEv.Code, pbxproto.ErrCodeNoAgent)
	}
}

func TestHandlerInsufficientCreditsClosesWithError(t *testing.T) {
	t.Parallel()

	h, _, _, _ := newTestHandler(0)
	conn, cleanup := dialTestServer(t, h)
	defer cleanup()

	start := map[string]interface{}{
		"event": "start", "streamId": "s1", "callId": "c1", "channelId": "ch1",
		"from": "15551230000", "to": "15559998888",
		"mediaFormat": map[string]interface{}{"encoding": "linear16", "sampleRate": 8000, "channels": 1},
	}
	b, _ := json.Marshal(start)
	conn.WriteMessage(websocket.TextMessage, b)

	var errEv pbxproto.ErrorEvent
	readJSON(t, conn, &errEv)
	if errEv.Code != pbxproto.ErrCodeInsufficientCredits {
		t.Errorf("got error code %q, want %q", errEv.Code, pbxproto.ErrCodeInsufficientCredits)
	}
}

func TestHandlerFullCallFlowGreetsRespondsAndBills(t *testing.T) {
	t.Parallel()

	h, asrClient, billing, calllog := newTestHandler(10)
	conn, cleanup := dialTestServer(t, h)
	defer cleanup()

	start := map[string]interface{}{
		"event": "start", "streamId": "s1", "callId": "c1", "channelId": "ch1",
		"from": "15551230000", "to": "15559998888",
		"mediaFormat": map[string]interface{}{"encoding": "linear16", "sampleRate": 8000, "channels": 1},
	}
	b, _ := json.Marshal(start)
	conn.WriteMessage(websocket.TextMessage, b)

	totalFrames := 0
	readFrames := func(min int, timeout time.Duration) {
		deadline := time.Now().Add(timeout)
		conn.SetReadDeadline(deadline)
		for totalFrames < min && time.Now().Before(deadline) {
			var ev pbxproto.ReverseMediaEvent
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if json.Unmarshal(data, &ev) == nil && ev.Event == pbxproto.OutEventReverseMedia {
				if raw, err := base64.StdEncoding.DecodeString(ev.Payload); err == nil && len(raw) == 320 {
					totalFrames++
				}
			}
		}
	}

	// Greeting: 2 PCM frames + 3 trailing silence frames.
	readFrames(5, 2*time.Second)
	if totalFrames < 5 {
		t.Fatalf("got %d greeting frames, want at least 5", totalFrames)
	}

	sess := asrClient.last()
	if sess == nil {
		t.Fatal("ASR session was never opened")
	}
	sess.events <- asr.Event{Type: asr.EventFinal, Text: "I need help with my account", Confidence: 0.9}

	totalFrames = 0
	readFrames(5, 2*time.Second)
	if totalFrames < 5 {
		t.Fatalf("got %d response frames, want at least 5", totalFrames)
	}

	stop := map[string]interface{}{"event": "stop", "streamId": "s1", "callId": "c1"}
	b, _ = json.Marshal(stop)
	conn.WriteMessage(websocket.TextMessage, b)

	select {
	case <-billing.finalize:
	case <-time.After(2 * time.Second):
		t.Fatal("BillCall was never invoked")
	}
	select {
	case <-calllog.finalize:
	case <-time.After(2 * time.Second):
		t.Fatal("CallLog.Finalize was never invoked")
	}
	if billing.billCount() != 1 {
		t.Errorf("got %d BillCall invocations, want 1", billing.billCount())
	}
}
