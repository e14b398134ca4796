package audio

import (
	"log/slog"
	"sync"
)

// PlayerState describes what the playback queue is doing.
type PlayerState int

const (
	// PlayerIdle means nothing is rendering and the backlog is empty.
	PlayerIdle PlayerState = iota
	// PlayerPlaying means a segment is rendering or queued behind one.
	PlayerPlaying
)

func (s PlayerState) String() string {
	switch s {
	case PlayerIdle:
		return "idle"
	case PlayerPlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithSampleRate overrides the render sample rate.
func WithSampleRate(hz int) PlayerOption {
	return func(p *Player) { p.rate = hz }
}

// Player is a FIFO playback queue over an OutputDevice. Segments
// enqueue in arrival order and render gaplessly one at a time; at most
// one render is in flight. Flush drops everything, including the
// segment currently rendering, and returns the player to idle.
type Player struct {
	out  OutputDevice
	rate int

	mu      sync.Mutex
	backlog [][]float32
	state   PlayerState
	stop    func()        // aborts the in-flight render, nil when none
	abort   chan struct{} // closed by Flush to release the drain wait

	notify chan struct{}
	done   chan struct{}
	closed bool
}

// NewPlayer creates the queue and starts its drain goroutine.
func NewPlayer(out OutputDevice, opts ...PlayerOption) *Player {
	p := &Player{
		out:    out,
		rate:   TargetSampleRate,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.drain()
	return p
}

// Enqueue appends a PCM16 segment to the backlog. If the player is idle
// rendering begins immediately; otherwise the segment plays after
// everything ahead of it. Byte counts that do not align to whole
// samples are rejected with a DecodeError.
func (p *Player) Enqueue(pcm []byte) error {
	if len(pcm)%2 != 0 {
		return &DecodeError{Reason: "odd PCM byte count"}
	}
	samples := DecodePCM16(pcm)
	if len(samples) == 0 {
		return nil
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.backlog = append(p.backlog, samples)
	p.state = PlayerPlaying
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
	return nil
}

// Flush drops the backlog and aborts the segment currently rendering,
// leaving the player idle. Flushing an idle player is a no-op.
func (p *Player) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		p.stop()
		p.stop = nil
	}
	if p.abort != nil {
		close(p.abort)
		p.abort = nil
	}
	p.backlog = nil
	p.state = PlayerIdle
}

// State reports whether the player is idle or playing.
func (p *Player) State() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Depth reports how many segments are waiting behind the current one.
func (p *Player) Depth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.backlog)
}

// Close flushes the queue and stops the drain goroutine. Close is
// idempotent.
func (p *Player) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.Flush()
	close(p.done)
}

func (p *Player) drain() {
	for {
		select {
		case <-p.done:
			return
		case <-p.notify:
		}
		for {
			samples, abort, ok := p.next()
			if !ok {
				break
			}
			rendered, stop, err := p.out.Play(samples, p.rate)
			if err != nil {
				slog.Warn("audio: playback start failed", "error", err)
				p.finish()
				continue
			}
			p.setStop(stop)
			select {
			case <-p.done:
				stop()
				return
			case <-abort:
				// Flushed mid-render; the stop func already ran.
				continue
			case <-rendered:
			}
			p.finish()
		}
	}
}

// next dequeues the oldest segment and arms the abort channel that
// Flush uses to release the wait in drain.
func (p *Player) next() ([]float32, chan struct{}, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.backlog) == 0 {
		p.state = PlayerIdle
		return nil, nil, false
	}
	samples := p.backlog[0]
	p.backlog = p.backlog[1:]
	p.state = PlayerPlaying
	p.abort = make(chan struct{})
	p.stop = nil
	return samples, p.abort, true
}

// setStop publishes the in-flight render's stop func. If a Flush raced
// in between dequeue and device start, the render is aborted here.
func (p *Player) setStop(stop func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.abort == nil {
		stop()
		return
	}
	p.stop = stop
}

// finish clears in-flight bookkeeping after a segment completes.
func (p *Player) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stop = nil
	p.abort = nil
	if len(p.backlog) == 0 {
		p.state = PlayerIdle
	}
}
