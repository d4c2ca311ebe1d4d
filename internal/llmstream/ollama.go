package llmstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voicebridge/gateway/internal/httpx"
	"github.com/voicebridge/gateway/internal/metrics"
)

// OllamaClient streams chat completions from a self-hosted Ollama server.
type OllamaClient struct {
	url          string
	model        string
	systemPrompt string
	maxTokens    int
	client       *http.Client
}

// NewOllamaClient creates an Ollama HTTP client.
func NewOllamaClient(url, model, systemPrompt string, maxTokens, poolSize int) *OllamaClient {
	return &OllamaClient{
		url:          url,
		model:        model,
		systemPrompt: systemPrompt,
		maxTokens:    maxTokens,
		client:       httpx.NewPooledClient(poolSize, 60*time.Second),
	}
}

func (c *OllamaClient) Chat(ctx context.Context, req Request, onToken TokenFunc) (Result, error) {
	start := time.Now()

	resp, err := c.postChatRequest(ctx, req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.Errors.WithLabelValues("llm_ollama", "contract").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("ollama status %d: %s", resp.StatusCode, body)
	}

	sr := c.consumeStream(resp, onToken)

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("llm").Observe(latency.Seconds())
	if !sr.ttft.IsZero() {
		metrics.LLMFirstTokenSeconds.Observe(sr.ttft.Sub(start).Seconds())
	}

	return Result{
		Text:               sr.text,
		LatencyMs:          float64(latency.Milliseconds()),
		TimeToFirstTokenMs: ttftMillis(sr, start),
	}, nil
}

func (c *OllamaClient) postChatRequest(ctx context.Context, req Request) (*http.Response, error) {
	useModel := c.model
	if req.Model != "" {
		useModel = req.Model
	}
	sysPrompt := c.systemPrompt
	if req.SystemPrompt != "" {
		sysPrompt = req.SystemPrompt
	}

	reqBody := ollamaRequest{
		Model:   useModel,
		Stream:  true,
		Options: ollamaOptions{NumPredict: c.maxTokens},
		Messages: []ollamaMessage{
			{Role: "system", Content: sysPrompt},
			{Role: "user", Content: req.UserMessage},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/api/chat", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		metrics.Errors.WithLabelValues("llm_ollama", "transient").Inc()
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	return resp, nil
}

func (c *OllamaClient) consumeStream(resp *http.Response, onToken TokenFunc) streamResult {
	var sr streamResult
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		chunk := c.parseChunk(scanner.Bytes())
		if chunk == nil {
			return sr
		}
		sr = applyOllamaChunk(chunk, sr, onToken)
	}

	return sr
}

func applyOllamaChunk(chunk *ollamaParsedChunk, sr streamResult, onToken TokenFunc) streamResult {
	if chunk.Thinking != "" {
		sr.thinking += chunk.Thinking
		return sr
	}
	if chunk.Content == "" {
		return sr
	}
	if sr.ttft.IsZero() {
		sr.ttft = time.Now()
	}
	if onToken != nil {
		onToken(chunk.Content)
	}
	sr.text += chunk.Content
	return sr
}

type ollamaParsedChunk struct {
	Content  string
	Thinking string
}

func (c *OllamaClient) parseChunk(data []byte) *ollamaParsedChunk {
	var chunk ollamaStreamChunk
	if json.Unmarshal(data, &chunk) != nil {
		return &ollamaParsedChunk{}
	}
	if chunk.Done {
		return nil
	}
	return &ollamaParsedChunk{Content: chunk.Message.Content, Thinking: chunk.Message.Thinking}
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Stream   bool            `json:"stream"`
	Messages []ollamaMessage `json:"messages"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	Thinking string `json:"thinking,omitempty"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict"`
}

type ollamaStreamChunk struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}
