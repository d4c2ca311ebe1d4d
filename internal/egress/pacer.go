// Package egress implements the frame pacer from SPEC_FULL.md §4.1/§4.3/§5:
// a single serialized worker that drains a bounded queue of playback items
// and writes paced 20ms/320-byte PCM-16 frames to the PBX connection,
// honoring barge-in's per-frame session staleness check.
package egress

import (
	"sync"
	"time"

	"github.com/voicebridge/gateway/internal/audio"
)

const (
	normalInterFrameSleep   = 20 * time.Millisecond
	priorityInterFrameSleep = 15 * time.Millisecond
	interItemGap            = 60 * time.Millisecond
	trailingSilenceFrames   = 3

	// defaultSentenceCompletionMs is the grace window below which a stale,
	// non-priority item is still allowed to finish rather than being cut
	// off mid-sentence.
	defaultSentenceCompletionMs = 2000
)

// Sender is the subset of pbxproto.Sender the pacer needs, kept as a local
// interface so tests can substitute a recorder.
type Sender interface {
	SendFrame(payload []byte, streamID, channelID, callID string) error
}

// StaleFunc reports whether gen is no longer the current ttsSession
// (stale), and whether that invalidation was a hard stop that must drop
// in-flight frames immediately rather than honor the grace window
// (force). A gentle stop returns (true, false); a hard stop (true, true).
type StaleFunc func(gen int64) (stale, force bool)

// FrameSentFunc is called once per frame successfully written to the PBX
// socket, for the caller's outbound frame counter and egress metrics.
type FrameSentFunc func()

// FramesDroppedFunc is called when count frames are discarded without
// being sent, tagged with why ("gentle", "hard" or "send_error").
type FramesDroppedFunc func(reason string, count int)

// Item is one playback unit: a greeting, or one sentence chunk of an
// LLM-driven response. Frames must already be 320-byte PCM-16 8kHz units;
// the channel is closed by the producer once the item's audio is fully
// buffered (batch synth) or fully streamed (streaming synth).
type Item struct {
	StreamID  string
	ChannelID string
	CallID    string
	Gen       int64 // ttsSession tag at enqueue time
	Priority  bool  // true for greeting / completion catch-up: immune to barge-in
	Frames    <-chan []byte
}

// Pacer is the single serialized egress worker for one call.
type Pacer struct {
	sender               Sender
	stale                StaleFunc
	sentenceCompletionMs int
	onSent               FrameSentFunc
	onDropped            FramesDroppedFunc

	queue chan Item
	done  chan struct{}
	wg    sync.WaitGroup

	mu     sync.Mutex
	active map[string]bool // StreamID -> item currently playing
}

// New creates a pacer with a bounded queue of depth queueDepth. A blocking
// Enqueue is used deliberately: "if producers exceed the pacer, the
// TTS-prep task blocks" (SPEC_FULL.md §5). onSent and onDropped are
// optional (nil disables the corresponding callback) and drive the
// session's outbound frame counter and the gateway_egress_frames_* metrics.
func New(sender Sender, stale StaleFunc, queueDepth int, onSent FrameSentFunc, onDropped FramesDroppedFunc) *Pacer {
	p := &Pacer{
		sender:               sender,
		stale:                stale,
		sentenceCompletionMs: defaultSentenceCompletionMs,
		onSent:               onSent,
		onDropped:            onDropped,
		queue:                make(chan Item, queueDepth),
		done:                 make(chan struct{}),
		active:               make(map[string]bool),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Enqueue blocks until there is room in the egress queue or the pacer is
// stopped.
func (p *Pacer) Enqueue(item Item) {
	select {
	case p.queue <- item:
	case <-p.done:
	}
}

// Stop ends the worker: the item being played is cut off after its current
// frame, and queued items are not played.
func (p *Pacer) Stop() {
	close(p.done)
	p.wg.Wait()
}

func (p *Pacer) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case item := <-p.queue:
			p.playItem(item)
			select {
			case <-p.done:
				return
			case <-time.After(interItemGap):
			}
		}
	}
}

func (p *Pacer) playItem(item Item) {
	p.mu.Lock()
	p.active[item.StreamID] = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.active, item.StreamID)
		p.mu.Unlock()
	}()

	sleep := normalInterFrameSleep
	if item.Priority {
		sleep = priorityInterFrameSleep
	}

	sent := 0
	for frame := range item.Frames {
		if p.stale != nil && !item.Priority {
			stale, force := p.stale(item.Gen)
			if stale {
				if force {
					p.drop("hard", 1+len(item.Frames))
					return // hard stop: drop in-flight frames immediately
				}
				remainingMs := len(item.Frames) * 20
				if remainingMs > p.sentenceCompletionMs {
					p.drop("gentle", 1+len(item.Frames))
					return // gentle stop: grace window exceeded
				}
			}
		}

		if err := p.sender.SendFrame(frame, item.StreamID, item.ChannelID, item.CallID); err != nil {
			p.drop("send_error", 1+len(item.Frames))
			return
		}
		sent++
		if p.onSent != nil {
			p.onSent()
		}

		select {
		case <-p.done:
			return
		case <-time.After(sleep):
		}
	}

	if sent == 0 {
		return
	}
	for i := 0; i < trailingSilenceFrames; i++ {
		if err := p.sender.SendFrame(audio.SilenceFrame(), item.StreamID, item.ChannelID, item.CallID); err != nil {
			return
		}
		if p.onSent != nil {
			p.onSent()
		}
	}
}

// drop reports count frames discarded without being sent, tagged with
// reason ("gentle", "hard" or "send_error").
func (p *Pacer) drop(reason string, count int) {
	if p.onDropped != nil {
		p.onDropped(reason, count)
	}
}

// Active reports whether an item for streamID is currently playing.
func (p *Pacer) Active(streamID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active[streamID]
}
