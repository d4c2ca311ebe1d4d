package callsession

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicebridge/gateway/internal/asr"
	"github.com/voicebridge/gateway/internal/audio"
	"github.com/voicebridge/gateway/internal/config"
	"github.com/voicebridge/gateway/internal/dialogue"
	"github.com/voicebridge/gateway/internal/egress"
	"github.com/voicebridge/gateway/internal/history"
	"github.com/voicebridge/gateway/internal/llmstream"
	"github.com/voicebridge/gateway/internal/metrics"
	"github.com/voicebridge/gateway/internal/noise"
	"github.com/voicebridge/gateway/internal/pbxproto"
	"github.com/voicebridge/gateway/internal/registry"
	"github.com/voicebridge/gateway/internal/trace"
	"github.com/voicebridge/gateway/internal/ttsstream"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	egressQueueDepth = 64
	asrModel         = "nova-grade"
	asrEndpointingMs = 300
)

// Handler wires the shared backend routers and external collaborators
// used by every call session; one Handler serves the PBX's `/ws/call`
// endpoint for the life of the process.
type Handler struct {
	ASR       *asr.Router
	LLM       *llmstream.Router
	TTS       *ttsstream.Router
	Agents    config.Store
	Registry  *registry.Registry
	Billing   Billing
	CallLog   CallLog
	Analyzer  Analyzer
	Messaging Messaging
	Profile   pbxproto.Adapter
	Trace     *trace.Store  // optional; nil disables tracing for the process
	Noise     *noise.Client // optional; nil skips pre-ASR noise reduction
}

// ServeHTTP upgrades one PBX connection and runs its call session to
// completion.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("pbx websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	h.runCall(conn)
}

// activeCall bundles the per-connection state that spans the session's
// full Idle->Teardown lifecycle.
type activeCall struct {
	h          *Handler
	sess       *Session
	sender     *pbxproto.Sender
	pacer      *egress.Pacer
	asrSess    asr.Session
	tracer     *trace.Tracer
	logID      string
	callerName string
}

func (h *Handler) runCall(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sender := pbxproto.NewSender(conn)
	var call *activeCall
	defer func() {
		if call != nil {
			h.teardown(ctx, call)
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		evType, payload, err := pbxproto.ParseEvent(raw)
		if err != nil {
			slog.Warn("pbx malformed event", "error", err)
			continue
		}

		switch evType {
		case pbxproto.EventConnected:
			slog.Info("pbx connected")
		case pbxproto.EventStart:
			call = h.handleStart(ctx, sender, payload)
			if call == nil {
				return // error event already sent; the session never begins
			}
		case pbxproto.EventMedia:
			if call != nil {
				h.handleMedia(call, payload)
			}
		case pbxproto.EventStop:
			if call != nil {
				h.teardown(ctx, call)
				call = nil
			}
			return
		case pbxproto.EventDTMF, pbxproto.EventMark, pbxproto.EventClear,
			pbxproto.EventAnswer, pbxproto.EventTransferCallResponse, pbxproto.EventHangupCallResponse:
			slog.Info("pbx event acknowledged", "event", evType)
		default:
			slog.Info("pbx event ignored", "event", evType)
		}
	}
}

func (h *Handler) handleStart(ctx context.Context, sender *pbxproto.Sender, payload json.RawMessage) *activeCall {
	var ev pbxproto.StartEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		slog.Warn("pbx malformed start event", "error", err)
		return nil
	}

	agent, ok := h.Agents.Lookup(ev.To, ev.From)
	if !ok {
		_ = sender.SendError(pbxproto.ErrCodeNoAgent, "no agent configured for this number")
		return nil
	}

	account, err := h.Billing.GetOrCreate(ctx, agent.ClientID)
	if err != nil || account.Balance <= 0 {
		_ = sender.SendError(pbxproto.ErrCodeInsufficientCredits, "insufficient credit balance")
		return nil
	}

	sess := New(ev.StreamID, ev.CallID, ev.ChannelID, agent)
	sess.CallerE164 = ev.From
	sess.DialedE164 = ev.To
	sess.Language = agent.Language

	name, _ := CallerName(ev.ExtraParams)

	logID, err := h.CallLog.CreateInitial(ctx, CallLogInitial{
		ClientID: agent.ClientID,
		AgentID:  agent.ID,
		Mobile:   sess.CallerE164,
		Start:    sess.StartTime.UTC().Format(time.RFC3339),
		StreamID: sess.StreamID(),
		CallID:   sess.CallID(),
	})
	if err != nil {
		slog.Error("call log create failed", "error", err)
	}

	call := &activeCall{
		h:          h,
		sess:       sess,
		sender:     sender,
		logID:      logID,
		callerName: name,
	}

	if h.Trace != nil {
		if err := h.Trace.CreateSession(sess.StreamID(), agent.ID); err != nil {
			slog.Warn("trace session create failed", "error", err)
		}
		call.tracer = trace.NewTracer(h.Trace, sess.StreamID())
	}

	if asrClient, err := h.ASR.Route(agent.ASREngine); err != nil {
		slog.Error("no asr backend configured", "engine", agent.ASREngine, "error", err)
	} else if asrSess, err := asrClient.Open(ctx, asr.OpenOptions{
		SampleRate:  h.Profile.SampleRate,
		Channels:    1,
		Encoding:    asrEncoding(h.Profile),
		Language:    agent.Language,
		Model:       asrModel,
		Endpointing: asrEndpointingMs,
	}); err != nil {
		// Transient-upstream policy: the call proceeds without ASR rather
		// than failing `start`; no interim/final events will ever arrive.
		slog.Error("asr open failed", "error", err)
	} else {
		call.asrSess = asrSess
		go call.pumpASREvents(ctx)
	}

	call.pacer = egress.New(sender, sess.Controller.TTSStale, egressQueueDepth,
		func() {
			sess.RecordFrameOut()
			metrics.EgressFramesSent.Inc()
		},
		func(reason string, count int) {
			metrics.EgressFramesDropped.WithLabelValues(reason).Add(float64(count))
		},
	)

	h.Registry.Insert(sess)
	metrics.CallsActive.Inc()
	metrics.CallsTotal.Inc()

	sess.Controller.SetState(dialogue.StateSetup)
	go call.greet(ctx)
	go call.liveTicker(ctx)

	return call
}

func asrEncoding(p pbxproto.Adapter) string {
	if p.Codec == "g711_ulaw" || p.Codec == "g711_alaw" {
		return "mulaw"
	}
	return "linear16"
}

func (h *Handler) handleMedia(call *activeCall, payload json.RawMessage) {
	var ev pbxproto.MediaEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		slog.Warn("pbx malformed media event", "error", err)
		return
	}
	frame, err := base64.StdEncoding.DecodeString(ev.Payload)
	if err != nil {
		slog.Warn("pbx media payload not base64", "error", err)
		return
	}
	call.sess.RecordFrameIn()
	if h.Noise != nil && h.Profile.Codec == audio.CodecPCM {
		if cleaned, err := h.Noise.DenoiseFrame(context.Background(), frame); err != nil {
			slog.Warn("noise reduction failed, using raw frame", "error", err)
		} else {
			frame = cleaned
		}
	}
	if call.asrSess != nil {
		_ = call.asrSess.SendAudio(frame)
	}
}

func (c *activeCall) greet(ctx context.Context) {
	c.sess.Controller.SetState(dialogue.StateGreeting)
	text := personalizeGreeting(c.sess.Agent.FirstMessage, c.callerName)
	gen := c.sess.Controller.TTSGen()
	c.speak(ctx, text, true, gen, func() {
		c.sess.Controller.SetState(dialogue.StateListening)
	})
}

func personalizeGreeting(template, name string) string {
	if name == "" {
		return template
	}
	if strings.Contains(template, "{name}") {
		return strings.ReplaceAll(template, "{name}", name)
	}
	return fmt.Sprintf("Hi %s, %s", name, template)
}

// speak synthesizes text via the agent's configured TTS backend and enqueues
// it for playback. Synthesis and framing run in a separate goroutine so
// producing text never blocks the caller; the pacer enqueue itself also
// runs off-goroutine so a full egress queue (backpressure) never blocks the
// event loop or the LLM token callback. onDone, if non-nil, fires once the
// item has been fully enqueued (not fully played).
func (c *activeCall) speak(ctx context.Context, text string, priority bool, gen int64, onDone func()) {
	c.speakTraced(ctx, "", text, priority, gen, onDone)
}

// speakTraced is speak with an optional runID: when non-empty, the
// synthesis call is recorded as a "tts" span on that run, the way
// pipeline.go records an LLM-adjacent TTS span under the same run.
func (c *activeCall) speakTraced(ctx context.Context, runID, text string, priority bool, gen int64, onDone func()) {
	if strings.TrimSpace(text) == "" {
		if onDone != nil {
			onDone()
		}
		return
	}

	synth, err := c.h.TTS.Route(c.sess.Agent.TTSEngine)
	if err != nil {
		slog.Error("no tts backend configured", "engine", c.sess.Agent.TTSEngine, "error", err)
		if onDone != nil {
			onDone()
		}
		return
	}

	frames := make(chan []byte, 32)
	framer := egress.NewFramer(frames)

	go func() {
		defer framer.Flush()
		start := time.Now()
		_, err := synth.Synthesize(ctx, ttsstream.Request{
			Text:    text,
			VoiceID: c.sess.Agent.VoiceID,
			Engine:  c.sess.Agent.TTSEngine,
		}, func(chunk ttsstream.Chunk) {
			if len(chunk.PCM) > 0 {
				framer.Write(chunk.PCM)
			}
		})
		status := "ok"
		errMsg := ""
		if err != nil {
			slog.Warn("tts synthesize failed", "error", err)
			status = "error"
			errMsg = err.Error()
		}
		if runID != "" {
			c.tracer.RecordSpan(runID, "tts", start, float64(time.Since(start).Milliseconds()), text, "", status, errMsg)
		}
	}()

	go func() {
		c.pacer.Enqueue(egress.Item{
			StreamID:  c.sess.StreamID(),
			ChannelID: c.sess.ChannelID(),
			CallID:    c.sess.CallID(),
			Gen:       gen,
			Priority:  priority,
			Frames:    frames,
		})
		if onDone != nil {
			onDone()
		}
	}()
}

func (c *activeCall) pumpASREvents(ctx context.Context) {
	for ev := range c.asrSess.Events() {
		switch ev.Type {
		case asr.EventInterim:
			action := c.sess.Controller.OnInterim(ev.Text, ev.Confidence, ev.WordCount(), time.Now())
			switch action {
			case dialogue.BargeInGentle:
				metrics.BargeInTotal.WithLabelValues("gentle").Inc()
			case dialogue.BargeInHard:
				metrics.BargeInTotal.WithLabelValues("hard").Inc()
			}
		case asr.EventFinal:
			if strings.TrimSpace(ev.Text) == "" {
				continue
			}
			c.onFinalTranscript(ctx, ev.Text)
		case asr.EventUtteranceEnd:
			// Any buffered partial is already accounted for: finals trigger
			// generation as they arrive, not on utterance boundary.
		}
	}
}

// messagingRequestPhrases are the caller utterances that count as an
// explicit messaging request per SPEC_FULL.md §4.6 rule 4, independent of
// the lead-status-driven trigger.
var messagingRequestPhrases = []string{
	"send me", "text me", "message me", "send it to me",
	"send the link", "text the link", "can you text", "can you send",
}

// detectMessagingRequest reports whether text contains an explicit request
// for a follow-up message.
func detectMessagingRequest(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range messagingRequestPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// leadStatusHintPhrases are caller statements strong enough to record as a
// hint the analyzer may weigh alongside its own post-call classification
// (SPEC_FULL.md §3's "lead-status hint" field).
var leadStatusHintPhrases = []string{
	"sign me up", "enroll me", "i'm interested", "i am interested",
	"not interested", "wrong number", "don't call again", "do not call again",
}

// detectLeadStatusHint reports the matched phrase, if text contains one of
// leadStatusHintPhrases.
func detectLeadStatusHint(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, phrase := range leadStatusHintPhrases {
		if strings.Contains(lower, phrase) {
			return phrase, true
		}
	}
	return "", false
}

func (c *activeCall) onFinalTranscript(ctx context.Context, text string) {
	if detectMessagingRequest(text) {
		c.sess.RequestMessaging()
	}
	if hint, ok := detectLeadStatusHint(text); ok {
		c.sess.SetLeadStatusHint(hint)
	}
	c.sess.Controller.SetState(dialogue.StateGenerating)
	gen := c.sess.Controller.StartTurn()
	ttsGen := c.sess.Controller.TTSGen()
	go c.runTurn(ctx, text, gen, ttsGen)
}

// liveTicker drives the call-log adapter's batched in-call snapshots
// (SPEC_FULL.md §9's "enhanced call logger": flush at 5 updates or 3s,
// whichever first) on a fixed cadence for the life of the call, so a log
// row is kept current even through a long turn with no committed finals.
func (c *activeCall) liveTicker(ctx context.Context) {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.updateLive(ctx)
		}
	}
}

// updateLive reports the call's current transcript, duration and frame
// counters to the call-log adapter. It is a no-op until CreateInitial has
// produced a logID and the handler has a CallLog configured.
func (c *activeCall) updateLive(ctx context.Context) {
	if c.h.CallLog == nil || c.logID == "" {
		return
	}
	if err := c.h.CallLog.UpdateLive(ctx, c.logID, CallLogUpdate{
		Transcript: transcriptOf(c.sess.History.All()),
		Duration:   c.sess.ElapsedSeconds(),
		FramesIn:   c.sess.FramesIn(),
		FramesOut:  c.sess.FramesOut(),
		LastUpdate: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		slog.Warn("call log update live failed", "error", err)
	}
}

// transcriptOf renders a call's turns as the flat "role: text" transcript
// both the live snapshot and the final call-log record use.
func transcriptOf(turns []history.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(string(t.Role))
		b.WriteString(": ")
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	return b.String()
}

func (c *activeCall) runTurn(ctx context.Context, userText string, gen, ttsGen int64) {
	runID := c.tracer.StartRun()
	turnStart := time.Now()

	llmClient, err := c.h.LLM.Route(c.sess.Agent.LLMEngine)
	if err != nil {
		slog.Error("no llm backend configured", "engine", c.sess.Agent.LLMEngine, "error", err)
		c.tracer.EndRun(runID, float64(time.Since(turnStart).Milliseconds()), userText, "", "error")
		return
	}

	// System prompt is built from history as of just before this utterance,
	// so the current turn isn't duplicated between it and UserMessage.
	req := llmstream.Request{
		UserMessage:  userText,
		SystemPrompt: buildSystemPrompt(c.sess.Agent, c.callerName, c.sess.History),
	}
	c.sess.History.Append(history.Turn{Role: history.RoleUser, Text: userText, Language: c.sess.Language, Timestamp: time.Now()})

	chunker := dialogue.NewChunker()
	spoke := false
	onToken := c.sess.Controller.GuardLLM(gen, func(token string) {
		text, ready := chunker.Add(token)
		if !ready {
			return
		}
		if !spoke {
			c.sess.Controller.SetState(dialogue.StateSpeaking)
			spoke = true
		}
		c.speakTraced(ctx, runID, text, false, ttsGen, nil)
	})

	llmStart := time.Now()
	result, err := llmClient.Chat(ctx, req, onToken)
	status := "ok"
	errMsg := ""
	if err != nil {
		slog.Warn("llm chat failed", "error", err)
		status = "error"
		errMsg = err.Error()
	}
	c.tracer.RecordSpan(runID, "llm", llmStart, float64(time.Since(llmStart).Milliseconds()), userText, result.Text, status, errMsg)

	if c.sess.Controller.LLMStale(gen) {
		c.tracer.EndRun(runID, float64(time.Since(turnStart).Milliseconds()), userText, result.Text, "stale")
		return
	}

	if tail, ok := chunker.Tail(); ok {
		if !spoke {
			c.sess.Controller.SetState(dialogue.StateSpeaking)
			spoke = true
		}
		c.speakTraced(ctx, runID, tail, false, ttsGen, nil)
	}

	if strings.TrimSpace(result.Text) != "" {
		c.sess.History.Append(history.Turn{
			Role: history.RoleAssistant, Text: result.Text, Language: c.sess.Language, Timestamp: time.Now(),
		})
	}
	c.updateLive(ctx)

	if c.sess.Controller.State() != dialogue.StateListening {
		c.sess.Controller.SetState(dialogue.StateListening)
	}

	c.tracer.EndRun(runID, float64(time.Since(turnStart).Milliseconds()), userText, result.Text, status)
}

// buildSystemPrompt folds the conversation history window and an optional
// name personalization into the system prompt, since the LLM client
// contract is a single user message + system prompt rather than a message
// array (SPEC_FULL.md §4.3: "context is the last 6-8 entries of history
// plus the system prompt plus an optional name personalization message").
func buildSystemPrompt(agent config.Agent, callerName string, h *history.History) string {
	var b strings.Builder
	b.WriteString(agent.SystemPrompt)
	if callerName != "" {
		fmt.Fprintf(&b, "\nThe caller's name is %s; address them by name when natural.", callerName)
	}
	if turns := h.ContextWindow(); len(turns) > 0 {
		b.WriteString("\n\nConversation so far:\n")
		for _, t := range turns {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Text)
		}
	}
	return b.String()
}

// teardown runs the end-of-call sequence from SPEC_FULL.md §4.6: analyzer,
// billing, optional messaging dispatch and the final call-log write. runCall
// runs it once per call: after a `stop` it clears the call, so the deferred
// socket-close path does not run it again. teardown itself is not
// repeatable for one call (Pacer.Stop closes its done channel), and the
// Registry.MarkBilled mark it sets is cleared by Registry.Remove right after.
func (h *Handler) teardown(ctx context.Context, call *activeCall) {
	call.sess.Controller.SetState(dialogue.StateTeardown)
	if call.asrSess != nil {
		_ = call.asrSess.Close()
	}
	if call.pacer != nil {
		call.pacer.Stop()
	}
	metrics.CallsActive.Dec()

	first := h.Registry.MarkBilled(call.sess.StreamID())
	h.Registry.Remove(call.sess.StreamID())
	if !first {
		call.tracer.Close()
		return // already torn down by a racing event
	}

	if h.Trace != nil {
		if err := h.Trace.EndSession(call.sess.StreamID()); err != nil {
			slog.Warn("trace session end failed", "error", err)
		}
	}
	defer call.tracer.Close()

	turns := call.sess.History.All()
	analyzerTurns := make([]AnalyzerTurn, len(turns))
	for i, t := range turns {
		analyzerTurns[i] = AnalyzerTurn{Role: string(t.Role), Text: t.Text}
	}

	analyzerAgent := AnalyzerAgent{
		LLMEngine:        call.sess.Agent.LLMEngine,
		MessagingEnabled: call.sess.Agent.MessagingEnabled,
	}
	if d := call.sess.Agent.Disposition; d != nil {
		analyzerAgent.DispositionTitle = d.Title
		analyzerAgent.DispositionSub = d.Sub
	}

	var result AnalysisResult
	if h.Analyzer != nil {
		result = h.Analyzer.Analyze(ctx, analyzerAgent, analyzerTurns, call.sess.MessagingRequested(), call.sess.LeadStatusHint())
	} else if len(turns) == 0 {
		result.LeadStatus = "not_connected"
	} else {
		result.LeadStatus = "maybe"
	}

	seconds := call.sess.ElapsedSeconds()
	if h.Billing != nil {
		billResult, err := h.Billing.BillCall(ctx, call.sess.Agent.ClientID, seconds, BillMeta{
			Mobile:    call.sess.CallerE164,
			Direction: string(call.sess.Direction),
			CallLogID: call.logID,
			StreamID:  call.sess.StreamID(),
		})
		if err != nil {
			slog.Error("bill call failed", "error", err)
		} else {
			metrics.CallsBilled.Inc()
			metrics.CreditsCharged.Add(billResult.CreditsUsed)
		}
	}

	if result.ShouldSendMessage && call.sess.Agent.MessagingEnabled && !call.sess.MessagingSent() {
		to := NormalizeE164(call.sess.CallerE164)
		if err := h.Messaging.Send(ctx, call.sess.Agent.MessagingEndpoint, to, call.sess.Agent.MessagingLink); err != nil {
			metrics.MessagesDispatched.WithLabelValues("failed").Inc()
			slog.Warn("messaging dispatch failed", "error", err)
		} else {
			metrics.MessagesDispatched.WithLabelValues("sent").Inc()
			call.sess.MarkMessagingSent()
			if h.Billing != nil {
				_ = h.Billing.UseCredits(ctx, call.sess.Agent.ClientID, 1, "messaging", map[string]string{
					"streamId": call.sess.StreamID(),
				})
				metrics.CreditsCharged.Add(1)
			}
		}
	}

	if h.CallLog != nil && call.logID != "" {
		err := h.CallLog.Finalize(ctx, call.logID, CallLogFinal{
			LeadStatus:     result.LeadStatus,
			Disposition:    result.Disposition,
			SubDisposition: result.SubDisposition,
			Duration:       seconds,
			Transcript:     transcriptOf(turns),
		})
		if err != nil {
			slog.Error("call log finalize failed", "error", err)
		}
	}
}
