package audio

import (
	"encoding/binary"
	"fmt"
)

// BuildWAV wraps little-endian PCM-16 mono samples in a canonical 44-byte
// RIFF/WAVE header. Used by the batch TTS mode's response and by tests that
// need a round-trippable fixture.
func BuildWAV(pcm []byte, sampleRate int) []byte {
	dataLen := len(pcm)
	totalLen := 44 + dataLen

	buf := make([]byte, totalLen)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(totalLen-8))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], 2)                    // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16)                   // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))
	copy(buf[44:], pcm)

	return buf
}

// StripContainer isolates the PCM `data` sub-chunk from a RIFF/WAVE payload.
// If data does not begin with a RIFF header it is returned unchanged, since
// some TTS vendors return bare PCM with no container.
func StripContainer(data []byte) ([]byte, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return data, nil
	}

	pos := 12
	for pos+8 <= len(data) {
		chunkID := string(data[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		chunkStart := pos + 8

		if chunkID == "data" {
			end := chunkStart + chunkSize
			if end > len(data) {
				end = len(data)
			}
			return data[chunkStart:end], nil
		}

		pos = chunkStart + chunkSize
		if chunkSize%2 == 1 {
			pos++ // chunks are word-aligned
		}
	}

	return nil, fmt.Errorf("wav: no data sub-chunk found")
}

// SampleRate reads the fmt sub-chunk's sample rate from a RIFF/WAVE
// payload. Returns (0, false) if data has no RIFF header or no fmt chunk,
// so callers can fall back to an assumed rate for bare PCM.
func SampleRate(data []byte) (int, bool) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return 0, false
	}

	pos := 12
	for pos+8 <= len(data) {
		chunkID := string(data[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		chunkStart := pos + 8

		if chunkID == "fmt " && chunkStart+8 <= len(data) {
			return int(binary.LittleEndian.Uint32(data[chunkStart+4 : chunkStart+8])), true
		}

		pos = chunkStart + chunkSize
		if chunkSize%2 == 1 {
			pos++
		}
	}

	return 0, false
}
