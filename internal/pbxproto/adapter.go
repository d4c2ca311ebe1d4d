package pbxproto

import "github.com/voicebridge/gateway/internal/audio"

// Adapter supplies the per-profile framing parameters the Design Notes
// call for ("unified by parameterizing the session over a PBX adapter that
// supplies: media format, frame encoding, frame size, and send/receive
// primitives"). Two profiles are provided; only Linear8kHz is wired into
// the default path, per the Open Question on the secondary SIP profile.
type Adapter struct {
	Name       string
	Codec      audio.Codec
	SampleRate int
	FrameBytes int
}

// Linear8kHz is the default PBX profile: PCM-16 mono 8 kHz, 320-byte frames.
var Linear8kHz = Adapter{
	Name:       "linear-8k",
	Codec:      audio.CodecPCM,
	SampleRate: 8000,
	FrameBytes: audio.FrameBytes,
}

// MuLaw8kHz is the optional secondary SIP profile named in the spec's Open
// Questions: mu-law 8 kHz both inbound and outbound. Not enabled by
// default: ForProfile("mulaw") resolves it, and cmd/gateway always uses
// Linear8kHz.
var MuLaw8kHz = Adapter{
	Name:       "mulaw-8k",
	Codec:      audio.CodecG711Ulaw,
	SampleRate: 8000,
	FrameBytes: audio.FrameBytes,
}

// ForProfile resolves a named profile, defaulting to Linear8kHz.
func ForProfile(name string) Adapter {
	if name == "mulaw" {
		return MuLaw8kHz
	}
	return Linear8kHz
}
