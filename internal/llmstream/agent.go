package llmstream

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/nlpodyssey/openai-agents-go/modelsettings"
	"github.com/openai/openai-go/v2/packages/param"
)

// AgentClient routes chat turns through the openai-agents-go SDK, for
// engines that front an Agent/tool-use model rather than a bare chat
// endpoint.
type AgentClient struct {
	provider  agents.ModelProvider
	model     string
	maxTokens int
}

// NewAgentClient wraps an SDK model provider as a Client.
func NewAgentClient(provider agents.ModelProvider, defaultModel string, maxTokens int) *AgentClient {
	return &AgentClient{provider: provider, model: defaultModel, maxTokens: maxTokens}
}

func (c *AgentClient) Chat(ctx context.Context, req Request, onToken TokenFunc) (Result, error) {
	useModel := c.model
	if req.Model != "" {
		useModel = req.Model
	}

	agent := agents.New("assistant").
		WithInstructions(req.SystemPrompt).
		WithModel(useModel).
		WithModelSettings(modelsettings.ModelSettings{
			MaxTokens: param.NewOpt(int64(c.maxTokens)),
		})

	runner := agents.Runner{Config: agents.RunConfig{
		ModelProvider:   c.provider,
		MaxTurns:        1,
		TracingDisabled: true,
	}}

	start := time.Now()

	events, errCh, err := runner.RunStreamedChan(ctx, agent, req.UserMessage)
	if err != nil {
		return Result{}, fmt.Errorf("agent stream start: %w", err)
	}

	var textBuf strings.Builder
	var sr streamResult
	for ev := range events {
		handleAgentStreamEvent(ev, &sr, onToken, &textBuf)
	}

	if streamErr := <-errCh; streamErr != nil {
		return Result{}, fmt.Errorf("agent stream: %w", streamErr)
	}

	latency := time.Since(start)

	return Result{
		Text:               textBuf.String(),
		LatencyMs:          float64(latency.Milliseconds()),
		TimeToFirstTokenMs: ttftMillis(sr, start),
	}, nil
}

func handleAgentStreamEvent(ev agents.StreamEvent, sr *streamResult, onToken TokenFunc, textBuf *strings.Builder) {
	raw, ok := ev.(agents.RawResponsesStreamEvent)
	if !ok {
		return
	}
	if raw.Data.Type != "response.output_text.delta" {
		return
	}
	if sr.ttft.IsZero() {
		sr.ttft = time.Now()
	}
	if onToken != nil {
		onToken(raw.Data.Delta)
	}
	textBuf.WriteString(raw.Data.Delta)
}
