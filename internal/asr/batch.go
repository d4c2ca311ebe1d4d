package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"github.com/voicebridge/gateway/internal/audio"
	"github.com/voicebridge/gateway/internal/metrics"
)

// HTTPBatchClient is a secondary, non-streaming ASR backend: it buffers
// inbound frames and transcribes them on demand via a single multipart
// POST, adapted from the teacher's whisper.cpp client. Selectable per
// agent alongside the default streaming vendor, since the agent
// configuration data model names a "selected ASR vendor" rather than a
// single hardcoded one.
type HTTPBatchClient struct {
	url    string
	client *http.Client
}

// NewHTTPBatchClient points at a whisper.cpp-shaped inference server.
func NewHTTPBatchClient(url string, timeout time.Duration) *HTTPBatchClient {
	return &HTTPBatchClient{url: url, client: &http.Client{Timeout: timeout}}
}

func (c *HTTPBatchClient) Open(ctx context.Context, opts OpenOptions) (Session, error) {
	return &batchSession{client: c, opts: opts, events: make(chan Event, 4)}, nil
}

type batchSession struct {
	client *HTTPBatchClient
	opts   OpenOptions
	events chan Event

	mu  sync.Mutex
	buf []byte
}

func (s *batchSession) SendAudio(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(s.buf, frame...)
	return nil
}

func (s *batchSession) Events() <-chan Event { return s.events }

// Flush transcribes everything buffered since the last Flush and emits it
// as a single `final` event. Flush is not part of the Session interface and
// the call handler does not call it, so a call using this backend receives
// no transcript events unless its owner calls Flush.
func (s *batchSession) Flush(ctx context.Context) error {
	s.mu.Lock()
	buf := s.buf
	s.buf = nil
	s.mu.Unlock()

	if len(buf) == 0 {
		return nil
	}

	start := time.Now()
	text, err := s.client.transcribe(ctx, buf, s.opts.SampleRate)
	metrics.StageDuration.WithLabelValues("asr_batch").Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	s.events <- Event{Type: EventFinal, Text: text, Confidence: 1.0}
	return nil
}

func (s *batchSession) Close() error {
	close(s.events)
	return nil
}

func (c *HTTPBatchClient) transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	wav := audio.BuildWAV(pcm, sampleRate)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err = part.Write(wav); err != nil {
		return "", fmt.Errorf("write wav data: %w", err)
	}
	if err = writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("asr_batch", "transient").Inc()
		return "", fmt.Errorf("asr batch request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		metrics.Errors.WithLabelValues("asr_batch", "transient").Inc()
		return "", fmt.Errorf("asr batch status %d: %s", resp.StatusCode, string(respBody))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode asr batch response: %w", err)
	}
	return out.Text, nil
}
