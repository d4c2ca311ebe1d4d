package analyzer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/voicebridge/gateway/internal/callsession"
	"github.com/voicebridge/gateway/internal/llmstream"
)

type fakeLLM struct {
	reply string
	err   error
}

func (f fakeLLM) Chat(ctx context.Context, req llmstream.Request, onToken llmstream.TokenFunc) (llmstream.Result, error) {
	if f.err != nil {
		return llmstream.Result{}, f.err
	}
	return llmstream.Result{Text: f.reply}, nil
}

func newAnalyzer(reply string, err error) *Analyzer {
	return New(llmstream.NewRouter(map[string]llmstream.Client{"fake": fakeLLM{reply: reply, err: err}}, "fake"))
}

func TestAnalyzeEmptyTranscriptIsNotConnectedWithoutLLMCall(t *testing.T) {
	t.Parallel()
	a := newAnalyzer("", errors.New("should never be called"))

	result := a.Analyze(context.Background(), callsession.AnalyzerAgent{LLMEngine: "fake"}, nil, false, "")
	if result.LeadStatus != LeadStatusNotConnected {
		t.Errorf("got lead status %q, want %q", result.LeadStatus, LeadStatusNotConnected)
	}
}

func TestAnalyzeValidLeadStatusIsStoredVerbatim(t *testing.T) {
	t.Parallel()
	a := newAnalyzer("vvi", nil)
	turns := []callsession.AnalyzerTurn{{Role: "user", Text: "I want to enroll today"}}

	result := a.Analyze(context.Background(), callsession.AnalyzerAgent{LLMEngine: "fake"}, turns, false, "")
	if result.LeadStatus != "vvi" {
		t.Errorf("got lead status %q, want vvi", result.LeadStatus)
	}
}

func TestAnalyzeInvalidLeadStatusFallsBackToMaybe(t *testing.T) {
	t.Parallel()
	a := newAnalyzer("not-a-real-code", nil)
	turns := []callsession.AnalyzerTurn{{Role: "user", Text: "hello"}}

	result := a.Analyze(context.Background(), callsession.AnalyzerAgent{LLMEngine: "fake"}, turns, false, "")
	if result.LeadStatus != LeadStatusMaybe {
		t.Errorf("got lead status %q, want fallback %q", result.LeadStatus, LeadStatusMaybe)
	}
}

func TestAnalyzeLLMErrorFallsBackToMaybe(t *testing.T) {
	t.Parallel()
	a := newAnalyzer("", errors.New("upstream down"))
	turns := []callsession.AnalyzerTurn{{Role: "user", Text: "hello"}}

	result := a.Analyze(context.Background(), callsession.AnalyzerAgent{LLMEngine: "fake"}, turns, false, "")
	if result.LeadStatus != LeadStatusMaybe {
		t.Errorf("got lead status %q, want fallback %q", result.LeadStatus, LeadStatusMaybe)
	}
}

func TestAnalyzeMessagingTriggeredByStrongestPositiveLeadStatus(t *testing.T) {
	t.Parallel()
	a := newAnalyzer("vvi", nil)
	turns := []callsession.AnalyzerTurn{{Role: "user", Text: "sign me up"}}

	result := a.Analyze(context.Background(), callsession.AnalyzerAgent{LLMEngine: "fake", MessagingEnabled: true}, turns, false, "")
	if !result.ShouldSendMessage {
		t.Error("expected ShouldSendMessage=true for lead status vvi with messaging enabled")
	}
}

func TestAnalyzeMessagingTriggeredByExplicitRequestRegardlessOfLeadStatus(t *testing.T) {
	t.Parallel()
	a := newAnalyzer("maybe", nil)
	turns := []callsession.AnalyzerTurn{{Role: "user", Text: "text me the link please"}}

	result := a.Analyze(context.Background(), callsession.AnalyzerAgent{LLMEngine: "fake", MessagingEnabled: true}, turns, true, "")
	if !result.ShouldSendMessage {
		t.Error("expected ShouldSendMessage=true when the caller explicitly requested messaging")
	}
}

func TestAnalyzeMessagingNotTriggeredWhenDisabledForAgent(t *testing.T) {
	t.Parallel()
	a := newAnalyzer("vvi", nil)
	turns := []callsession.AnalyzerTurn{{Role: "user", Text: "sign me up"}}

	result := a.Analyze(context.Background(), callsession.AnalyzerAgent{LLMEngine: "fake", MessagingEnabled: false}, turns, false, "")
	if result.ShouldSendMessage {
		t.Error("expected ShouldSendMessage=false when messaging is disabled for the agent")
	}
}

func TestAnalyzeDispositionSkippedWithoutTaxonomy(t *testing.T) {
	t.Parallel()
	a := newAnalyzer("maybe", nil)
	turns := []callsession.AnalyzerTurn{{Role: "user", Text: "hello"}}

	result := a.Analyze(context.Background(), callsession.AnalyzerAgent{LLMEngine: "fake"}, turns, false, "")
	if result.Disposition != "" || result.SubDisposition != "" {
		t.Errorf("expected empty disposition without a taxonomy, got %q/%q", result.Disposition, result.SubDisposition)
	}
}

func TestAnalyzeDispositionValidatedAgainstTaxonomy(t *testing.T) {
	t.Parallel()
	llm := fakeTwoStageLLM{leadStatus: "maybe", dispositionReply: "DISPOSITION: Interested\nSUB_DISPOSITION: Callback Requested"}
	a := New(llmstream.NewRouter(map[string]llmstream.Client{"fake": llm}, "fake"))

	agent := callsession.AnalyzerAgent{
		LLMEngine:        "fake",
		DispositionTitle: "Interested",
		DispositionSub:   []string{"Callback Requested", "Needs More Info"},
	}
	turns := []callsession.AnalyzerTurn{{Role: "user", Text: "call me back tomorrow"}}

	result := a.Analyze(context.Background(), agent, turns, false, "")
	if result.Disposition != "Interested" || result.SubDisposition != "Callback Requested" {
		t.Errorf("got disposition %q/%q, want Interested/Callback Requested", result.Disposition, result.SubDisposition)
	}
}

func TestAnalyzeDispositionMismatchYieldsNull(t *testing.T) {
	t.Parallel()
	llm := fakeTwoStageLLM{leadStatus: "maybe", dispositionReply: "DISPOSITION: Not Interested\nSUB_DISPOSITION: Hung Up"}
	a := New(llmstream.NewRouter(map[string]llmstream.Client{"fake": llm}, "fake"))

	agent := callsession.AnalyzerAgent{
		LLMEngine:        "fake",
		DispositionTitle: "Interested",
		DispositionSub:   []string{"Callback Requested"},
	}
	turns := []callsession.AnalyzerTurn{{Role: "user", Text: "not interested"}}

	result := a.Analyze(context.Background(), agent, turns, false, "")
	if result.Disposition != "" || result.SubDisposition != "" {
		t.Errorf("got disposition %q/%q, want both empty on taxonomy mismatch", result.Disposition, result.SubDisposition)
	}
}

// fakeTwoStageLLM replies differently to the lead-status prompt vs. the
// disposition prompt, distinguishing them by system prompt content the way
// Analyzer actually issues two distinct calls.
type fakeTwoStageLLM struct {
	leadStatus       string
	dispositionReply string
}

func (f fakeTwoStageLLM) Chat(ctx context.Context, req llmstream.Request, onToken llmstream.TokenFunc) (llmstream.Result, error) {
	if req.SystemPrompt == leadStatusPrompt {
		return llmstream.Result{Text: f.leadStatus}, nil
	}
	return llmstream.Result{Text: f.dispositionReply}, nil
}

func TestAnalyzeLeadStatusHintReachesLLMUserMessage(t *testing.T) {
	t.Parallel()
	var gotMessage string
	llm := capturingLLM{reply: "vvi", captured: &gotMessage}
	a := New(llmstream.NewRouter(map[string]llmstream.Client{"fake": llm}, "fake"))
	turns := []callsession.AnalyzerTurn{{Role: "user", Text: "hello"}}

	a.Analyze(context.Background(), callsession.AnalyzerAgent{LLMEngine: "fake"}, turns, false, "sign me up")

	if !strings.Contains(gotMessage, "sign me up") {
		t.Errorf("expected lead-status hint in LLM user message, got %q", gotMessage)
	}
}

// capturingLLM records the user message it was sent with, for asserting the
// lead-status hint is folded into the classification prompt.
type capturingLLM struct {
	reply    string
	captured *string
}

func (f capturingLLM) Chat(ctx context.Context, req llmstream.Request, onToken llmstream.TokenFunc) (llmstream.Result, error) {
	*f.captured = req.UserMessage
	return llmstream.Result{Text: f.reply}, nil
}

func TestValidLeadStatusIsCaseInsensitive(t *testing.T) {
	t.Parallel()
	if !ValidLeadStatus("VVI") {
		t.Error("expected ValidLeadStatus to accept uppercase codes")
	}
	if ValidLeadStatus("not-a-code") {
		t.Error("expected ValidLeadStatus to reject an unknown code")
	}
}
