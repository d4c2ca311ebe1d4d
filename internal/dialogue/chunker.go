package dialogue

import "strings"

// maxBufferChars forces a flush once the buffer grows this long, even
// mid-sentence, so TTS never waits on an unusually long clause. Any
// terminal-punctuation boundary flushes regardless of length — the
// completeness flag overrides the 8-character/8-word minimums, which this
// implementation folds into "terminal punctuation always ends the chunk".
const maxBufferChars = 60

var sentenceEnders = map[byte]bool{'.': true, '!': true, '?': true}

// Chunker accumulates streamed LLM token deltas and decides when the
// buffered text is ready to hand to TTS as one speakable chunk, adapted
// from the token-buffering shape used elsewhere in this codebase but
// generalized to the chunking thresholds below.
type Chunker struct {
	buf strings.Builder
}

// NewChunker returns an empty chunker.
func NewChunker() *Chunker {
	return &Chunker{}
}

// Add appends one token delta and returns (chunk, ready). ready is true
// once a flush condition fires, in which case chunk holds the text to
// speak and the internal buffer is reset to any remainder.
func (c *Chunker) Add(token string) (string, bool) {
	c.buf.WriteString(token)
	text := c.buf.String()

	boundary, ok := findFlushBoundary(text)
	if !ok {
		return "", false
	}

	chunk := strings.TrimSpace(text[:boundary])
	remainder := text[boundary:]
	c.buf.Reset()
	c.buf.WriteString(remainder)
	return chunk, true
}

// Tail flushes whatever remains unconditionally — always allowed once the
// LLM stream ends.
func (c *Chunker) Tail() (string, bool) {
	text := strings.TrimSpace(c.buf.String())
	c.buf.Reset()
	if text == "" {
		return "", false
	}
	return text, true
}

// findFlushBoundary looks for the earliest point in text that satisfies a
// flush condition: a sentence-terminal punctuation mark at a word
// boundary (the completeness flag — always sufficient on its own,
// regardless of the minimum-chunk-length rule, which subsumes the
// "8+ words with terminal punctuation" threshold since any terminal
// punctuation already ends the chunk); or the buffer growing past
// maxBufferChars with no punctuation in sight.
func findFlushBoundary(text string) (int, bool) {
	for i := 0; i < len(text)-1; i++ {
		if !sentenceEnders[text[i]] || !isWordBoundary(text[i+1]) {
			continue
		}
		boundary := i + 1
		if len(strings.TrimSpace(text[:boundary])) == 0 {
			continue
		}
		return boundary, true
	}

	if len([]rune(text)) >= maxBufferChars {
		return len(text), true
	}

	return 0, false
}

func isWordBoundary(ch byte) bool {
	return ch == ' ' || ch == '\n' || ch == '\t'
}
