package dialogue

import (
	"testing"
	"time"
)

func TestControllerOnInterimIgnoresLowConfidenceOrShortTranscript(t *testing.T) {
	t.Parallel()

	c := New()
	c.SetState(StateSpeaking)
	now := time.Now()

	if got := c.OnInterim("yes", 0.9, 1, now); got != BargeInNone {
		t.Errorf("1-word interim: got %v, want BargeInNone", got)
	}
	if got := c.OnInterim("wait stop", 0.1, 2, now); got != BargeInNone {
		t.Errorf("low-confidence interim: got %v, want BargeInNone", got)
	}
}

func TestControllerOnInterimIgnoresDuringGreeting(t *testing.T) {
	t.Parallel()

	c := New()
	c.SetState(StateGreeting)
	now := time.Now()

	if got := c.OnInterim("please hold on", 0.9, 3, now); got != BargeInNone {
		t.Errorf("greeting interim: got %v, want BargeInNone (greeting never barges itself)", got)
	}
}

func TestControllerOnInterimGentleStopOnFirstCandidate(t *testing.T) {
	t.Parallel()

	c := New()
	c.SetState(StateSpeaking)
	now := time.Now()

	gen0 := c.TTSGen()
	got := c.OnInterim("actually wait a second", 0.9, 4, now)
	if got != BargeInGentle {
		t.Fatalf("got %v, want BargeInGentle", got)
	}
	if c.TTSGen() == gen0 {
		t.Error("ttsSession generation should have advanced on a gentle stop")
	}
}

func TestControllerOnInterimRejectsStutterOfLastInterim(t *testing.T) {
	t.Parallel()

	c := New()
	c.SetState(StateSpeaking)
	now := time.Now()

	c.OnInterim("hold on please", 0.9, 3, now)
	gen := c.TTSGen()

	// Same text, 10ms later: a stutter re-emit, not a fresh candidate.
	got := c.OnInterim("hold on please", 0.9, 3, now.Add(10*time.Millisecond))
	if got != BargeInNone {
		t.Errorf("got %v, want BargeInNone for a stutter within the window", got)
	}
	if c.TTSGen() != gen {
		t.Error("ttsSession should not advance again for a stutter")
	}
}

func TestControllerOnInterimEscalatesToHardStopWithinGraceWindow(t *testing.T) {
	t.Parallel()

	c := New()
	c.SetState(StateSpeaking)
	now := time.Now()

	got := c.OnInterim("actually never mind that", 0.9, 4, now)
	if got != BargeInGentle {
		t.Fatalf("first candidate: got %v, want BargeInGentle", got)
	}

	// A second, distinct interruption candidate arrives well within the
	// sentence-completion grace window: the caller is still talking.
	got = c.OnInterim("no really stop now please", 0.9, 5, now.Add(200*time.Millisecond))
	if got != BargeInHard {
		t.Fatalf("second candidate within grace window: got %v, want BargeInHard", got)
	}
}

func TestControllerTTSStaleReportsForceAfterHardStop(t *testing.T) {
	t.Parallel()

	c := New()
	c.SetState(StateSpeaking)
	now := time.Now()

	firstGen := c.TTSGen()
	c.OnInterim("actually never mind that", 0.9, 4, now)
	c.OnInterim("no really stop now please", 0.9, 5, now.Add(200*time.Millisecond))

	stale, force := c.TTSStale(firstGen)
	if !stale || !force {
		t.Errorf("got (stale=%v force=%v), want (true, true) for a generation invalidated by a hard stop", stale, force)
	}
}

func TestControllerTTSStaleNotForceAfterOnlyGentleStop(t *testing.T) {
	t.Parallel()

	c := New()
	c.SetState(StateSpeaking)
	now := time.Now()

	firstGen := c.TTSGen()
	c.OnInterim("actually never mind that", 0.9, 4, now)

	stale, force := c.TTSStale(firstGen)
	if !stale || force {
		t.Errorf("got (stale=%v force=%v), want (true, false) for a gentle-only stop", stale, force)
	}
}

func TestControllerLLMStaleTracksStartTurn(t *testing.T) {
	t.Parallel()

	c := New()
	gen1 := c.StartTurn()
	if c.LLMStale(gen1) {
		t.Error("freshly started turn should not be stale")
	}
	gen2 := c.StartTurn()
	if !c.LLMStale(gen1) {
		t.Error("superseded turn should be stale once a new turn starts")
	}
	if c.LLMStale(gen2) {
		t.Error("current turn should not be stale")
	}
}

func TestControllerSetStateIgnoresTransitionsAfterTeardown(t *testing.T) {
	t.Parallel()

	c := New()
	c.SetState(StateTeardown)
	c.SetState(StateListening)
	if got := c.State(); got != StateTeardown {
		t.Errorf("got state %v, want StateTeardown to be terminal", got)
	}
}
