package history

import (
	"testing"
	"time"
)

func TestAppendMonotonicTimestamps(t *testing.T) {
	t.Parallel()

	h := New()
	base := time.Now()
	h.Append(Turn{Role: RoleUser, Text: "hi", Timestamp: base})
	h.Append(Turn{Role: RoleAssistant, Text: "hello", Timestamp: base.Add(-time.Second)})

	all := h.All()
	if len(all) != 2 {
		t.Fatalf("got %d turns, want 2", len(all))
	}
	if all[1].Timestamp.Before(all[0].Timestamp) {
		t.Errorf("timestamps not monotonic: %v then %v", all[0].Timestamp, all[1].Timestamp)
	}
}

func TestContextWindowCap(t *testing.T) {
	t.Parallel()

	h := New()
	base := time.Now()
	for i := 0; i < 20; i++ {
		h.Append(Turn{Role: RoleUser, Text: "turn", Timestamp: base.Add(time.Duration(i) * time.Second)})
	}
	window := h.ContextWindow()
	if len(window) != contextWindow {
		t.Errorf("got %d turns in context window, want %d", len(window), contextWindow)
	}
	if h.Len() != 20 {
		t.Errorf("full history len = %d, want 20 (full retention for post-call analysis)", h.Len())
	}
}

func TestContextWindowShorterThanCap(t *testing.T) {
	t.Parallel()

	h := New()
	h.Append(Turn{Role: RoleUser, Text: "only one", Timestamp: time.Now()})
	if got := len(h.ContextWindow()); got != 1 {
		t.Errorf("got %d turns, want 1", got)
	}
}
