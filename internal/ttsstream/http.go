package ttsstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voicebridge/gateway/internal/audio"
	"github.com/voicebridge/gateway/internal/httpx"
	"github.com/voicebridge/gateway/internal/metrics"
)

// HTTPBatchClient synthesizes a complete utterance in one request against a
// Piper-shaped HTTP TTS service, adapted from the batch whisper.cpp/Piper
// client pattern: POST JSON, read back a WAV payload.
type HTTPBatchClient struct {
	url    string
	client *http.Client
}

// NewHTTPBatchClient points at a Piper-shaped synthesis endpoint.
func NewHTTPBatchClient(url string, poolSize int) *HTTPBatchClient {
	return &HTTPBatchClient{
		url:    url,
		client: httpx.NewPooledClient(poolSize, 30*time.Second),
	}
}

func (c *HTTPBatchClient) Synthesize(ctx context.Context, req Request, onChunk ChunkFunc) (Result, error) {
	start := time.Now()

	body, err := json.Marshal(httpBatchRequest{Text: req.Text, Voice: req.VoiceID})
	if err != nil {
		return Result{}, fmt.Errorf("marshal tts request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("create tts request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		metrics.Errors.WithLabelValues("tts_http", "transient").Inc()
		return Result{}, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.Errors.WithLabelValues("tts_http", "contract").Inc()
		return Result{}, fmt.Errorf("tts status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read tts response: %w", err)
	}

	pcm, srcRate, err := decodeVendorAudio(raw)
	if err != nil {
		return Result{}, err
	}
	samples := audio.ResampleTo8kHz(audio.BytesToInt16(pcm), srcRate)
	out := audio.PadToFrame(audio.Int16ToBytes(samples))

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("tts").Observe(latency.Seconds())

	if onChunk != nil {
		onChunk(Chunk{PCM: out, Final: true})
	}

	return Result{LatencyMs: float64(latency.Milliseconds())}, nil
}

// decodeVendorAudio strips a RIFF container if present, defaulting to a
// 22050Hz source rate (Piper's common low-quality voice output) when the
// payload is bare PCM with no fmt chunk to read a rate from.
func decodeVendorAudio(raw []byte) ([]byte, int, error) {
	pcm, err := audio.StripContainer(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("strip tts container: %w", err)
	}
	rate, ok := audio.SampleRate(raw)
	if !ok {
		rate = 22050
	}
	return pcm, rate, nil
}

type httpBatchRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}
