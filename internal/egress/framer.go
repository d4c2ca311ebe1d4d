package egress

import "github.com/voicebridge/gateway/internal/audio"

// Framer accumulates arbitrary-length PCM byte chunks (as they arrive from
// a streaming or batch TTS backend) and emits complete 320-byte frames on
// out as soon as enough bytes have accumulated, per SPEC_FULL.md §4.5 ("Do
// not emit partial frames mid-stream; on stream completion, pad the last
// fragment with zeros to 320 bytes"). Not safe for concurrent use; one
// Framer per playback item.
type Framer struct {
	buf []byte
	out chan<- []byte
}

// NewFramer returns a Framer that writes complete frames to out.
func NewFramer(out chan<- []byte) *Framer {
	return &Framer{out: out}
}

// Write appends pcm to the buffer and emits any complete frames it forms.
func (f *Framer) Write(pcm []byte) {
	f.buf = append(f.buf, pcm...)
	for len(f.buf) >= audio.FrameBytes {
		frame := make([]byte, audio.FrameBytes)
		copy(frame, f.buf[:audio.FrameBytes])
		f.out <- frame
		f.buf = f.buf[audio.FrameBytes:]
	}
}

// Flush pads any remaining partial fragment to a full frame and emits it,
// then closes out. Safe to call with an empty buffer (closes out only).
func (f *Framer) Flush() {
	if len(f.buf) > 0 {
		f.out <- audio.PadToFrame(f.buf)
		f.buf = nil
	}
	close(f.out)
}
