// Package audio implements the PCM framing, container and resampling
// transforms the voice pipeline needs to move audio between the PBX
// (8 kHz PCM-16 or G.711), the TTS vendor (16 kHz PCM-16, optionally
// WAV-wrapped) and the wire frame contract (320-byte 20 ms frames).
package audio

import "encoding/binary"

// FrameBytes is the size in bytes of one 20 ms frame of 8 kHz mono PCM-16.
const FrameBytes = 320

// BytesToInt16 decodes little-endian PCM-16 bytes into samples. A trailing
// odd byte, if any, is dropped.
func BytesToInt16(data []byte) []int16 {
	n := len(data) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// Int16ToBytes encodes PCM-16 samples as little-endian bytes.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// PadToFrame zero-pads data to the next multiple of FrameBytes. Used on the
// final fragment of an utterance so egress never emits a partial frame.
func PadToFrame(data []byte) []byte {
	rem := len(data) % FrameBytes
	if rem == 0 {
		return data
	}
	padded := make([]byte, len(data)+FrameBytes-rem)
	copy(padded, data)
	return padded
}

// SilenceFrame returns one frame of digital silence.
func SilenceFrame() []byte {
	return make([]byte, FrameBytes)
}
