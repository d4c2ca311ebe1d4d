package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voicebridge/gateway/internal/analyzer"
	"github.com/voicebridge/gateway/internal/asr"
	"github.com/voicebridge/gateway/internal/billing"
	"github.com/voicebridge/gateway/internal/calllog"
	"github.com/voicebridge/gateway/internal/callsession"
	"github.com/voicebridge/gateway/internal/config"
	"github.com/voicebridge/gateway/internal/llmstream"
	"github.com/voicebridge/gateway/internal/noise"
	"github.com/voicebridge/gateway/internal/pbxproto"
	"github.com/voicebridge/gateway/internal/registry"
	"github.com/voicebridge/gateway/internal/trace"
	"github.com/voicebridge/gateway/internal/ttsstream"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/openai/openai-go/v2/packages/param"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	t := loadTuning("gateway.json")
	s := loadSettings()

	agentStore := config.NewMemoryStore(loadAgents(s.agentsFile))

	asrRouter := initASR(s)
	llmRouter := initLLM(s, t)
	ttsRouter := initTTS(s, t)

	billingLedger, err := openBilling(s.billingPostgresURL)
	if err != nil {
		slog.Error("billing ledger open failed", "error", err)
		os.Exit(1)
	}
	defer billingLedger.Close()

	callLogStore, err := openCallLog(s.calllogPostgresURL)
	if err != nil {
		slog.Error("call log store open failed", "error", err)
		os.Exit(1)
	}
	defer callLogStore.Close()

	var noiseClient *noise.Client
	if s.noiseReduceURL != "" {
		noiseClient = noise.New(s.noiseReduceURL)
		slog.Info("noise reduction enabled", "url", s.noiseReduceURL)
	}

	var traceStore *trace.Store
	if s.tracePostgresURL != "" {
		traceStore, err = trace.Open(s.tracePostgresURL)
		if err != nil {
			slog.Error("trace store open failed", "error", err)
		} else {
			slog.Info("tracing enabled")
		}
	}
	if traceStore != nil {
		defer traceStore.Close()
	}

	handler := &callsession.Handler{
		ASR:       asrRouter,
		LLM:       llmRouter,
		TTS:       ttsRouter,
		Agents:    agentStore,
		Registry:  registry.New(),
		Billing:   billingLedger,
		CallLog:   callLogStore,
		Analyzer:  analyzer.New(llmRouter),
		Messaging: analyzer.NewMessagingClient(),
		Profile:   pbxproto.Linear8kHz,
		Trace:     traceStore,
		Noise:     noiseClient,
	}

	mux := http.NewServeMux()
	registerRoutes(mux, handler)

	addr := ":" + s.port
	srv := &http.Server{Addr: addr, Handler: mux}

	go awaitShutdown(srv)

	slog.Info("gateway starting", "addr", addr)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("gateway stopped")
}

// awaitShutdown blocks until SIGINT/SIGTERM, then gracefully drains
// in-flight PBX connections before the process exits.
func awaitShutdown(srv *http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	srv.Shutdown(ctx)
}

// openBilling opens the billing ledger, per §6 an always-required
// collaborator: a call cannot be answered without a credit check.
func openBilling(connStr string) (*billing.Ledger, error) {
	return billing.Open(connStr)
}

func openCallLog(connStr string) (*calllog.Store, error) {
	return calllog.Open(connStr)
}

func initASR(s settings) *asr.Router {
	backends := map[string]asr.Client{}
	fallback := ""
	if s.whisperServerURL != "" {
		backends["whisper-server"] = asr.NewHTTPBatchClient(s.whisperServerURL, 30*time.Second)
		fallback = "whisper-server"
	}
	if s.deepgramAPIKey != "" {
		backends["deepgram"] = asr.NewWebSocketClient(s.deepgramURL, s.deepgramAPIKey)
		fallback = "deepgram"
	}
	return asr.NewRouter(backends, fallback)
}

func initLLM(s settings, t tuning) *llmstream.Router {
	backends := map[string]llmstream.Client{
		"ollama": llmstream.NewOllamaClient(s.ollamaURL, s.ollamaModel, "", t.LLMMaxTokens, t.LLMPoolSize),
	}
	fallback := "ollama"
	if s.openaiAPIKey != "" {
		backends["openai"] = llmstream.NewOpenAIClient(s.openaiAPIKey, s.openaiURL, s.openaiModel, t.LLMMaxTokens, t.LLMPoolSize)
		fallback = "openai"
	}
	if s.anthropicAPIKey != "" {
		backends["anthropic"] = llmstream.NewAnthropicClient(s.anthropicAPIKey, s.anthropicURL, s.anthropicModel, t.LLMMaxTokens, t.LLMPoolSize)
	}
	backends["agent"] = llmstream.NewAgentClient(agents.NewOpenAIProvider(agents.OpenAIProviderParams{
		BaseURL:      param.NewOpt(s.ollamaURL + "/v1/"),
		APIKey:       param.NewOpt("ollama"),
		UseResponses: param.NewOpt(false),
	}), s.ollamaModel, t.LLMMaxTokens)
	return llmstream.NewRouter(backends, fallback)
}

func initTTS(s settings, t tuning) *ttsstream.Router {
	backends := map[string]ttsstream.Synthesizer{
		"piper": ttsstream.NewHTTPBatchClient(s.piperURL, t.TTSPoolSize),
	}
	fallback := "piper"
	if s.elevenlabsAPIKey != "" {
		backends["elevenlabs"] = ttsstream.NewWebSocketClient(
			"wss://api.elevenlabs.io/v1/text-to-speech", s.elevenlabsAPIKey, s.elevenlabsModelID, "pcm_8000", 8000,
		)
		fallback = "elevenlabs"
	}
	return ttsstream.NewRouter(backends, fallback)
}
