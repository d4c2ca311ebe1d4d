package egress

import (
	"testing"

	"github.com/voicebridge/gateway/internal/audio"
)

func drain(ch <-chan []byte) [][]byte {
	var got [][]byte
	for f := range ch {
		got = append(got, f)
	}
	return got
}

func TestFramerEmitsOnlyCompleteFramesUntilFlush(t *testing.T) {
	t.Parallel()

	ch := make(chan []byte, 8)
	f := NewFramer(ch)

	f.Write(make([]byte, audio.FrameBytes+100))
	f.Flush()

	frames := drain(ch)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2 (1 full + 1 padded remainder)", len(frames))
	}
	for i, fr := range frames {
		if len(fr) != audio.FrameBytes {
			t.Errorf("frame %d: len %d, want %d", i, len(fr), audio.FrameBytes)
		}
	}
}

func TestFramerFlushWithNoRemainderOnlyClosesChannel(t *testing.T) {
	t.Parallel()

	ch := make(chan []byte, 4)
	f := NewFramer(ch)
	f.Write(make([]byte, audio.FrameBytes*2))
	f.Flush()

	frames := drain(ch)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
}

func TestFramerAccumulatesAcrossMultipleWrites(t *testing.T) {
	t.Parallel()

	ch := make(chan []byte, 4)
	f := NewFramer(ch)
	for i := 0; i < audio.FrameBytes; i++ {
		f.Write([]byte{byte(i % 256)})
	}
	f.Flush()

	frames := drain(ch)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
}
