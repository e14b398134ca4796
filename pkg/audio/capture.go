package audio

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// ChunkFunc receives one base64-encoded PCM16 chunk at TargetSampleRate.
type ChunkFunc func(chunk string)

// CaptureOption configures a Capture.
type CaptureOption func(*Capture)

// WithFrameSize overrides the per-frame sample count requested from the
// input device.
func WithFrameSize(n int) CaptureOption {
	return func(c *Capture) { c.frameSize = n }
}

// WithTargetRate overrides the output sample rate.
func WithTargetRate(hz int) CaptureOption {
	return func(c *Capture) { c.targetRate = hz }
}

// Capture runs the push-to-talk microphone pipeline: it pulls fixed-size
// frames from an InputDevice, resamples them to the target rate and
// emits each as a base64 PCM16 chunk.
//
// The emit callback can be rebound at any time, including while capture
// is running; frames in flight see either the old or the new callback,
// never a torn mix. Start and Stop delimit a talk turn.
type Capture struct {
	device     InputDevice
	frameSize  int
	targetRate int

	emit     atomic.Pointer[ChunkFunc]
	sawFrame atomic.Bool

	mu     sync.Mutex
	active bool
}

// NewCapture wires a Capture to the given input device. The emit
// callback starts unbound; frames arriving before Bind are resampled
// and dropped.
func NewCapture(device InputDevice, opts ...CaptureOption) *Capture {
	c := &Capture{
		device:     device,
		frameSize:  DefaultFrameSize,
		targetRate: TargetSampleRate,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Bind replaces the chunk callback. A nil fn unbinds it.
func (c *Capture) Bind(fn ChunkFunc) {
	if fn == nil {
		c.emit.Store(nil)
		return
	}
	c.emit.Store(&fn)
}

// Start opens the device and begins a talk turn. It returns
// ErrCaptureActive if a turn is already running and a DeviceError if
// the device fails to open; neither changes capture state.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return ErrCaptureActive
	}
	c.sawFrame.Store(false)
	if err := c.device.Open(c.frameSize, c.onFrame); err != nil {
		return &DeviceError{Op: "open", Err: err}
	}
	c.active = true
	return nil
}

// Stop ends the talk turn and releases the device. Stopping an inactive
// capture is a no-op.
func (c *Capture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	if err := c.device.Close(); err != nil {
		slog.Warn("audio: input device close failed", "error", err)
	}
	c.active = false
}

// Active reports whether a talk turn is in progress.
func (c *Capture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// HasAudio reports whether at least one frame arrived since the last
// Start. Callers use it to gate a downstream commit of the turn.
func (c *Capture) HasAudio() bool { return c.sawFrame.Load() }

func (c *Capture) onFrame(f Frame) {
	c.sawFrame.Store(true)
	pcm := Resample(f.Samples, f.SampleRate, c.targetRate)
	if len(pcm) == 0 {
		return
	}
	fn := c.emit.Load()
	if fn == nil {
		return
	}
	(*fn)(ToText(pcm))
}
