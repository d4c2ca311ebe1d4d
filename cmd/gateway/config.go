package main

import (
	"encoding/json"
	"log/slog"
	"os"

	"github.com/voicebridge/gateway/internal/config"
	"github.com/voicebridge/gateway/internal/env"
)

// tuning holds knobs loaded from gateway.json, the same "defaults plus an
// optional JSON override" shape the teacher used for its pipeline knobs.
type tuning struct {
	LLMMaxTokens int `json:"llm_max_tokens"`
	LLMPoolSize  int `json:"llm_pool_size"`
	TTSPoolSize  int `json:"tts_pool_size"`
}

func defaultTuning() tuning {
	return tuning{
		LLMMaxTokens: 2048,
		LLMPoolSize:  50,
		TTSPoolSize:  50,
	}
}

func loadTuning(path string) tuning {
	t := defaultTuning()
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Info("no config file, using defaults", "path", path)
		return t
	}
	if err = json.Unmarshal(data, &t); err != nil {
		slog.Warn("bad config file, using defaults", "path", path, "error", err)
		return defaultTuning()
	}
	slog.Info("loaded config", "path", path)
	return t
}

// settings collects the deployment-level env vars the gateway reads at
// startup. Agent configuration storage proper is out of scope (SPEC_FULL.md
// §1); agentsFile only seeds the in-memory config.Store for local
// development and small fixed deployments.
type settings struct {
	port               string
	agentsFile         string
	ollamaURL          string
	ollamaModel        string
	openaiAPIKey       string
	openaiURL          string
	openaiModel        string
	anthropicAPIKey    string
	anthropicURL       string
	anthropicModel     string
	whisperServerURL   string
	deepgramAPIKey     string
	deepgramURL        string
	elevenlabsAPIKey   string
	elevenlabsModelID  string
	piperURL           string
	noiseReduceURL     string
	billingPostgresURL string
	calllogPostgresURL string
	tracePostgresURL   string
}

func loadSettings() settings {
	postgresURL := env.Str("POSTGRES_URL", "")
	return settings{
		port:               env.Str("GATEWAY_PORT", "8000"),
		agentsFile:         env.Str("AGENTS_FILE", "agents.json"),
		ollamaURL:          env.Str("OLLAMA_URL", "http://localhost:11434"),
		ollamaModel:        env.Str("OLLAMA_MODEL", "llama3.2:3b"),
		openaiAPIKey:       env.Str("OPENAI_API_KEY", ""),
		openaiURL:          env.Str("OPENAI_URL", "https://api.openai.com"),
		openaiModel:        env.Str("OPENAI_MODEL", "gpt-4.1-nano"),
		anthropicAPIKey:    env.Str("ANTHROPIC_API_KEY", ""),
		anthropicURL:       env.Str("ANTHROPIC_URL", "https://api.anthropic.com"),
		anthropicModel:     env.Str("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
		whisperServerURL:   env.Str("WHISPER_SERVER_URL", ""),
		deepgramAPIKey:     env.Str("DEEPGRAM_API_KEY", ""),
		deepgramURL:        env.Str("DEEPGRAM_URL", "wss://api.deepgram.com/v1/listen"),
		elevenlabsAPIKey:   env.Str("ELEVENLABS_API_KEY", ""),
		elevenlabsModelID:  env.Str("ELEVENLABS_MODEL_ID", "eleven_turbo_v2_5"),
		piperURL:           env.Str("PIPER_URL", "http://localhost:5100"),
		noiseReduceURL:     env.Str("NOISE_REDUCE_URL", ""),
		billingPostgresURL: env.Str("BILLING_POSTGRES_URL", postgresURL),
		calllogPostgresURL: env.Str("CALLLOG_POSTGRES_URL", postgresURL),
		tracePostgresURL:   env.Str("TRACE_POSTGRES_URL", postgresURL),
	}
}

// loadAgents reads a JSON array of config.Agent from path. Missing files are
// not an error: a deployment with no agents configured yet simply rejects
// every call with ErrCodeNoAgent, per §4.1.
func loadAgents(path string) []config.Agent {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Info("no agents file, starting with zero agents configured", "path", path)
		return nil
	}
	var agents []config.Agent
	if err := json.Unmarshal(data, &agents); err != nil {
		slog.Error("bad agents file, starting with zero agents configured", "path", path, "error", err)
		return nil
	}
	slog.Info("loaded agents", "path", path, "count", len(agents))
	return agents
}
