package callsession

import "context"

// Account is the billing ledger's per-client balance snapshot.
type Account struct {
	ClientID string
	Balance  float64
}

// BillResult is returned by a successful billCall, per SPEC_FULL.md §6.
type BillResult struct {
	CreditsUsed  float64
	BalanceAfter float64
}

// Billing is the external billing ledger adapter from SPEC_FULL.md §6.
// Implementations live in internal/billing.
type Billing interface {
	GetOrCreate(ctx context.Context, clientID string) (Account, error)
	BillCall(ctx context.Context, clientID string, seconds float64, meta BillMeta) (BillResult, error)
	UseCredits(ctx context.Context, clientID string, credits float64, reason string, meta map[string]string) error
}

// BillMeta carries the call attribution fields billCall logs alongside the charge.
type BillMeta struct {
	Mobile    string
	Direction string
	CallLogID string
	StreamID  string
	UniqueID  string
}

// CallLogInitial is the record created at `start`, before any transcript exists.
type CallLogInitial struct {
	ClientID string
	AgentID  string
	Mobile   string
	Start    string
	StreamID string
	CallID   string
	Metadata map[string]string
}

// CallLogUpdate is a periodic in-call snapshot.
type CallLogUpdate struct {
	Transcript string
	Duration   float64
	FramesIn   int64
	FramesOut  int64
	LastUpdate string
}

// CallLogFinal is the record written once, at Teardown.
type CallLogFinal struct {
	LeadStatus     string
	Disposition    string
	SubDisposition string
	Duration       float64
	Transcript     string
	Metadata       map[string]string
}

// CallLog is the external call-log adapter from SPEC_FULL.md §6.
// Implementations live in internal/calllog.
type CallLog interface {
	CreateInitial(ctx context.Context, rec CallLogInitial) (logID string, err error)
	UpdateLive(ctx context.Context, logID string, update CallLogUpdate) error
	Finalize(ctx context.Context, logID string, final CallLogFinal) error
}

// AnalysisResult is the end-of-call analyzer's verdict, consumed to
// finalize the call log and decide whether to dispatch messaging.
type AnalysisResult struct {
	LeadStatus        string
	Disposition       string
	SubDisposition    string
	ShouldSendMessage bool
}

// Analyzer runs the end-of-call classification from SPEC_FULL.md §4.6.
// leadStatusHint is the caller-stated preference recorded mid-call (the
// §3 "lead-status hint" field), weighed alongside the LLM's own
// post-call classification rather than overriding it. Implementations
// live in internal/analyzer.
type Analyzer interface {
	Analyze(ctx context.Context, agent AnalyzerAgent, turns []AnalyzerTurn, messagingRequested bool, leadStatusHint string) AnalysisResult
}

// AnalyzerAgent is the subset of config.Agent the analyzer needs, kept
// narrow so internal/analyzer doesn't need to import internal/config.
type AnalyzerAgent struct {
	LLMEngine        string
	MessagingEnabled bool
	DispositionTitle string
	DispositionSub   []string
}

// AnalyzerTurn is one transcript entry handed to the analyzer.
type AnalyzerTurn struct {
	Role string
	Text string
}

// Messaging dispatches the post-call message endpoint from SPEC_FULL.md §6.
// Implementations live in internal/analyzer.
type Messaging interface {
	Send(ctx context.Context, endpoint, to, link string) error
}
