// Package noise calls an out-of-process noise-reduction sidecar on inbound
// call audio before it reaches ASR. It is optional: a deployment with no
// sidecar configured skips the call entirely.
package noise

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/voicebridge/gateway/internal/audio"
)

// Client calls the noisereduce HTTP sidecar to suppress background noise.
type Client struct {
	url    string
	client *http.Client
}

// New creates a client for the noisereduce HTTP sidecar at url.
func New(url string) *Client {
	return &Client{
		url:    url,
		client: &http.Client{Timeout: 2 * time.Second},
	}
}

// Denoise sends float32 samples to the sidecar and returns denoised samples.
func (c *Client) Denoise(ctx context.Context, samples []float32) ([]float32, error) {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/denoise", bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("noise request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("noise http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("noise status %d: %s", resp.StatusCode, string(body))
	}

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("noise read: %w", err)
	}
	if len(respBytes)%4 != 0 {
		return nil, fmt.Errorf("noise response not aligned to float32")
	}

	out := make([]float32, len(respBytes)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(respBytes[i*4:]))
	}
	return out, nil
}

// DenoiseFrame runs one PCM-16 frame (as delivered by the PBX adapter)
// through the sidecar, converting to and from the float32 wire format the
// sidecar expects. A sidecar error leaves the caller free to fall back to
// the original frame.
func (c *Client) DenoiseFrame(ctx context.Context, frame []byte) ([]byte, error) {
	samples := audio.BytesToInt16(frame)
	floats := make([]float32, len(samples))
	for i, s := range samples {
		floats[i] = float32(s) / 32768
	}

	out, err := c.Denoise(ctx, floats)
	if err != nil {
		return nil, err
	}

	cleaned := make([]int16, len(out))
	for i, f := range out {
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		cleaned[i] = int16(f * 32767)
	}
	return audio.Int16ToBytes(cleaned), nil
}
