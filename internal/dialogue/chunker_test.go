package dialogue

import "testing"

func TestChunkerFlushesOnTerminalPunctuation(t *testing.T) {
	t.Parallel()

	c := NewChunker()
	var got string
	var ready bool
	for _, tok := range []string{"Hello", " there", ".", " How are you"} {
		got, ready = c.Add(tok)
		if ready {
			break
		}
	}
	if !ready || got != "Hello there." {
		t.Fatalf("got (%q, %v), want (\"Hello there.\", true)", got, ready)
	}
}

func TestChunkerFlushesShortCompleteSentence(t *testing.T) {
	t.Parallel()

	c := NewChunker()
	got, ready := c.Add("Ok. ")
	if !ready || got != "Ok." {
		t.Errorf("got (%q, %v), want (\"Ok.\", true) — completeness flag should override min length", got, ready)
	}
}

func TestChunkerDoesNotFlushMidSentence(t *testing.T) {
	t.Parallel()

	c := NewChunker()
	_, ready := c.Add("We are open")
	if ready {
		t.Error("should not flush without a terminal boundary or length threshold")
	}
}

func TestChunkerFlushesOnMaxBufferLength(t *testing.T) {
	t.Parallel()

	c := NewChunker()
	long := "this sentence keeps going and going without any punctuation mark at all yet"
	var ready bool
	var got string
	for i := 0; i < len(long); i += 5 {
		end := i + 5
		if end > len(long) {
			end = len(long)
		}
		got, ready = c.Add(long[i:end])
		if ready {
			break
		}
	}
	if !ready {
		t.Fatal("expected a flush once the buffer exceeds maxBufferChars")
	}
	// The flush fires once the buffer holds maxBufferChars (60) characters;
	// the 60th is a space, which trimming removes from the chunk.
	if want := "this sentence keeps going and going without any punctuation"; got != want {
		t.Errorf("flushed chunk %q, want %q (the first %d buffered characters, trimmed)", got, want, maxBufferChars)
	}
}

func TestChunkerTailFlushesRemainder(t *testing.T) {
	t.Parallel()

	c := NewChunker()
	c.Add("no terminator here")
	text, ok := c.Tail()
	if !ok || text != "no terminator here" {
		t.Errorf("got (%q, %v), want (\"no terminator here\", true)", text, ok)
	}

	// A second tail call on an empty buffer reports nothing to flush.
	text, ok = c.Tail()
	if ok || text != "" {
		t.Errorf("expected empty tail on drained buffer, got (%q, %v)", text, ok)
	}
}

func TestChunkerHandlesMultipleSentencesInOneToken(t *testing.T) {
	t.Parallel()

	c := NewChunker()
	got, ready := c.Add("First one. Second one.")
	if !ready || got != "First one." {
		t.Fatalf("got (%q, %v), want (\"First one.\", true)", got, ready)
	}
	// The remainder should still be buffered and flush on its own.
	got2, ready2 := c.Tail()
	if !ready2 || got2 != "Second one." {
		t.Errorf("got (%q, %v), want (\"Second one.\", true)", got2, ready2)
	}
}
