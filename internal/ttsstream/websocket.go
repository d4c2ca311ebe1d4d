package ttsstream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voicebridge/gateway/internal/audio"
	"github.com/voicebridge/gateway/internal/metrics"
)

// WebSocketClient streams synthesis over a per-utterance WebSocket
// connection against an ElevenLabs-shaped multi-stream endpoint: send text,
// receive base64-encoded audio chunks as they're generated, with an
// isFinal marker ending the utterance.
type WebSocketClient struct {
	baseURL      string
	apiKey       string
	model        string
	outputFormat string
	srcRate      int
	dialer       *websocket.Dialer
}

// NewWebSocketClient builds a streaming TTS client. outputFormat/srcRate
// must agree (e.g. "pcm_16000"/16000) since the vendor returns raw PCM at
// the requested rate with no container to read it back from.
func NewWebSocketClient(baseURL, apiKey, model, outputFormat string, srcRate int) *WebSocketClient {
	return &WebSocketClient{
		baseURL:      baseURL,
		apiKey:       apiKey,
		model:        model,
		outputFormat: outputFormat,
		srcRate:      srcRate,
		dialer:       websocket.DefaultDialer,
	}
}

func (c *WebSocketClient) Synthesize(ctx context.Context, req Request, onChunk ChunkFunc) (Result, error) {
	start := time.Now()

	wsURL := fmt.Sprintf("%s/v1/text-to-speech/%s/multi-stream-input?model_id=%s&output_format=%s&auto_mode=true",
		c.baseURL, req.VoiceID, c.model, c.outputFormat)

	header := http.Header{}
	header.Set("xi-api-key", c.apiKey)

	conn, _, err := c.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		metrics.Errors.WithLabelValues("tts_ws", "transient").Inc()
		return Result{}, fmt.Errorf("tts websocket dial: %w", err)
	}
	defer conn.Close()

	contextID := uuid.New().String()
	if err := conn.WriteJSON(wsOutbound{Text: req.Text, ContextID: contextID}); err != nil {
		return Result{}, fmt.Errorf("tts websocket send: %w", err)
	}
	if err := conn.WriteJSON(wsOutbound{Text: "", ContextID: contextID, Flush: true}); err != nil {
		return Result{}, fmt.Errorf("tts websocket flush: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return Result{}, fmt.Errorf("tts websocket read: %w", err)
		}

		var msg wsInbound
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		if msg.IsFinal {
			if onChunk != nil {
				onChunk(Chunk{Final: true})
			}
			latency := time.Since(start)
			metrics.StageDuration.WithLabelValues("tts").Observe(latency.Seconds())
			return Result{LatencyMs: float64(latency.Milliseconds())}, nil
		}
		if msg.Audio == "" {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(msg.Audio)
		if err != nil {
			continue
		}
		samples := audio.ResampleTo8kHz(audio.BytesToInt16(raw), c.srcRate)
		if onChunk != nil {
			onChunk(Chunk{PCM: audio.Int16ToBytes(samples)})
		}
	}
}

type wsOutbound struct {
	Text      string `json:"text"`
	ContextID string `json:"context_id"`
	Flush     bool   `json:"flush,omitempty"`
}

type wsInbound struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
}
