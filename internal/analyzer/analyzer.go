// Package analyzer implements the end-of-call classification step from
// spec.md §4.6: lead-status and (optional) disposition classification via
// the agent's configured LLM vendor, plus the messaging-intent decision
// that gates Messaging dispatch. Runs once per call, at Teardown.
package analyzer

import (
	"context"
	"log/slog"
	"strings"

	"github.com/voicebridge/gateway/internal/callsession"
	"github.com/voicebridge/gateway/internal/llmstream"
)

// Analyzer classifies a finished call via the agent's LLM vendor, reusing
// the same llmstream.Router the live conversation used rather than a
// separate classification API.
type Analyzer struct {
	LLM *llmstream.Router
}

// New returns an Analyzer dispatching through llm.
func New(llm *llmstream.Router) *Analyzer {
	return &Analyzer{LLM: llm}
}

// Analyze runs the four-step classification from spec.md §4.6. Failures at
// any step fall back to a safe default rather than propagating — per §4.6's
// "analyzer errors must never prevent the final record from being saved."
// leadStatusHint, if non-empty, is a caller-stated preference recorded
// mid-call; it is folded into the classification prompt as context, not
// used to skip or override the LLM's own classification.
func (a *Analyzer) Analyze(ctx context.Context, agent callsession.AnalyzerAgent, turns []callsession.AnalyzerTurn, messagingRequested bool, leadStatusHint string) callsession.AnalysisResult {
	if len(turns) == 0 {
		return callsession.AnalysisResult{LeadStatus: LeadStatusNotConnected}
	}

	transcript := buildTranscript(turns)
	leadStatus := a.classifyLeadStatus(ctx, agent, transcript, leadStatusHint)

	var disposition, subDisposition string
	if agent.DispositionTitle != "" && len(agent.DispositionSub) > 0 {
		disposition, subDisposition = a.classifyDisposition(ctx, agent, turns)
	}

	shouldSend := agent.MessagingEnabled && (leadStatus == LeadStatusStrongestPositive || messagingRequested)

	return callsession.AnalysisResult{
		LeadStatus:        leadStatus,
		Disposition:       disposition,
		SubDisposition:    subDisposition,
		ShouldSendMessage: shouldSend,
	}
}

func buildTranscript(turns []callsession.AnalyzerTurn) string {
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(t.Role)
		b.WriteString(": ")
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	return b.String()
}

const leadStatusPrompt = `You are classifying the outcome of a phone call transcript. Reply with
exactly one of the following codes and nothing else: vvi, maybe, enrolled,
junk_lead, not_required, enrolled_other, decline, not_eligible,
wrong_number, hot_followup, cold_followup, schedule, not_connected.`

func (a *Analyzer) classifyLeadStatus(ctx context.Context, agent callsession.AnalyzerAgent, transcript, leadStatusHint string) string {
	client, err := a.LLM.Route(agent.LLMEngine)
	if err != nil {
		slog.Warn("analyzer: no llm backend for lead status", "engine", agent.LLMEngine, "error", err)
		return LeadStatusMaybe
	}

	userMessage := transcript
	if leadStatusHint != "" {
		userMessage += "\nCaller hint during the call: " + leadStatusHint
	}

	result, err := client.Chat(ctx, llmstream.Request{
		UserMessage:  userMessage,
		SystemPrompt: leadStatusPrompt,
	}, nil)
	if err != nil {
		slog.Warn("analyzer: lead status classification failed", "error", err)
		return LeadStatusMaybe
	}

	code := normalizeLeadStatus(firstLine(result.Text))
	if !ValidLeadStatus(code) {
		slog.Warn("analyzer: invalid lead status from llm", "raw", result.Text)
		return LeadStatusMaybe
	}
	return code
}

func dispositionPrompt(title string, sub []string) string {
	var b strings.Builder
	b.WriteString("You are classifying the disposition of a phone call against the \"")
	b.WriteString(title)
	b.WriteString("\" taxonomy. Choose one sub-disposition from: ")
	b.WriteString(strings.Join(sub, ", "))
	b.WriteString(`. Reply with exactly two lines:
DISPOSITION: <the taxonomy title>
SUB_DISPOSITION: <the chosen sub-disposition>`)
	return b.String()
}

func (a *Analyzer) classifyDisposition(ctx context.Context, agent callsession.AnalyzerAgent, turns []callsession.AnalyzerTurn) (disposition, subDisposition string) {
	client, err := a.LLM.Route(agent.LLMEngine)
	if err != nil {
		slog.Warn("analyzer: no llm backend for disposition", "engine", agent.LLMEngine, "error", err)
		return "", ""
	}

	window := turns
	if len(window) > 10 {
		window = window[len(window)-10:]
	}

	result, err := client.Chat(ctx, llmstream.Request{
		UserMessage:  buildTranscript(window),
		SystemPrompt: dispositionPrompt(agent.DispositionTitle, agent.DispositionSub),
	}, nil)
	if err != nil {
		slog.Warn("analyzer: disposition classification failed", "error", err)
		return "", ""
	}

	d, sd := parseDisposition(result.Text)
	if !strings.EqualFold(d, agent.DispositionTitle) {
		return "", ""
	}
	for _, valid := range agent.DispositionSub {
		if strings.EqualFold(valid, sd) {
			return agent.DispositionTitle, valid
		}
	}
	return "", ""
}

func parseDisposition(text string) (disposition, subDisposition string) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(strings.ToUpper(line), "DISPOSITION:"):
			disposition = strings.TrimSpace(line[len("DISPOSITION:"):])
		case strings.HasPrefix(strings.ToUpper(line), "SUB_DISPOSITION:"):
			subDisposition = strings.TrimSpace(line[len("SUB_DISPOSITION:"):])
		}
	}
	return disposition, subDisposition
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	return text
}
