package audio

import "fmt"

// Codec identifies the wire encoding of a PBX media frame.
type Codec string

const (
	CodecPCM      Codec = "pcm"
	CodecG711Ulaw Codec = "g711_ulaw"
	CodecG711Alaw Codec = "g711_alaw"
)

// Decode converts encoded frame bytes to PCM-16 samples at the codec's
// native rate. PCM is passed straight through; G.711 is always 8 kHz.
func Decode(data []byte, codec Codec) ([]int16, int, error) {
	switch codec {
	case CodecPCM:
		return BytesToInt16(data), 8000, nil
	case CodecG711Ulaw:
		return decodeG711Ulaw(data), 8000, nil
	case CodecG711Alaw:
		return decodeG711Alaw(data), 8000, nil
	default:
		return nil, 0, fmt.Errorf("unsupported codec: %s", codec)
	}
}

// Encode converts PCM-16 samples to the wire bytes for codec. Used on the
// optional secondary SIP profile, whose egress path companding-approximates
// PCM-16 down to G.711 instead of sending linear PCM.
func Encode(samples []int16, codec Codec) ([]byte, error) {
	switch codec {
	case CodecPCM:
		return Int16ToBytes(samples), nil
	case CodecG711Ulaw:
		return encodeG711Ulaw(samples), nil
	case CodecG711Alaw:
		return encodeG711Alaw(samples), nil
	default:
		return nil, fmt.Errorf("unsupported codec: %s", codec)
	}
}
