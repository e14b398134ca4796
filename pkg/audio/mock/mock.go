// Package mock provides in-memory audio devices for tests.
package mock

import (
	"sync"

	"github.com/akshaymakw8/Realtime-Voice-Agent/pkg/audio"
)

// Input implements audio.InputDevice. Tests drive it by calling
// EmitFrame, which invokes the registered frame callback synchronously.
type Input struct {
	// OpenError, when set, is returned by Open.
	OpenError error
	// CloseError, when set, is returned by Close.
	CloseError error

	mu             sync.Mutex
	open           bool
	frameSize      int
	fn             func(audio.Frame)
	OpenCallCount  int
	CloseCallCount int
}

var _ audio.InputDevice = (*Input)(nil)

func (d *Input) Open(frameSize int, fn func(audio.Frame)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenCallCount++
	if d.OpenError != nil {
		return d.OpenError
	}
	d.open = true
	d.frameSize = frameSize
	d.fn = fn
	return nil
}

func (d *Input) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CloseCallCount++
	d.open = false
	d.fn = nil
	return d.CloseError
}

// EmitFrame delivers one frame to the registered callback. It is a
// no-op when the device is not open.
func (d *Input) EmitFrame(f audio.Frame) {
	d.mu.Lock()
	fn := d.fn
	d.mu.Unlock()
	if fn != nil {
		fn(f)
	}
}

// Opened reports whether the device is currently delivering frames.
func (d *Input) Opened() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// FrameSize returns the frame size requested by the last Open.
func (d *Input) FrameSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frameSize
}

// PlayCall records one Output.Play invocation.
type PlayCall struct {
	Samples    []float32
	SampleRate int
}

// Output implements audio.OutputDevice. Renders do not complete on
// their own; tests call Complete to finish the current one, so ordering
// and abort behavior are fully deterministic.
type Output struct {
	// PlayError, when set, is returned by Play.
	PlayError error

	// Started receives one value per accepted Play call.
	Started chan PlayCall

	mu            sync.Mutex
	calls         []PlayCall
	current       *render
	active        int
	maxConcurrent int
	stopCalls     int
}

type render struct {
	done chan struct{}
	out  *Output
	once sync.Once
}

func (r *render) end() {
	r.once.Do(func() {
		close(r.done)
		r.out.mu.Lock()
		r.out.active--
		r.out.mu.Unlock()
	})
}

var _ audio.OutputDevice = (*Output)(nil)

// NewOutput returns a ready-to-use mock output device.
func NewOutput() *Output {
	return &Output{Started: make(chan PlayCall, 16)}
}

func (d *Output) Play(samples []float32, sampleRate int) (<-chan struct{}, func(), error) {
	d.mu.Lock()
	if d.PlayError != nil {
		d.mu.Unlock()
		return nil, nil, d.PlayError
	}
	call := PlayCall{Samples: append([]float32(nil), samples...), SampleRate: sampleRate}
	d.calls = append(d.calls, call)
	r := &render{done: make(chan struct{}), out: d}
	d.current = r
	d.active++
	if d.active > d.maxConcurrent {
		d.maxConcurrent = d.active
	}
	d.mu.Unlock()

	select {
	case d.Started <- call:
	default:
	}
	stop := func() {
		d.mu.Lock()
		d.stopCalls++
		d.mu.Unlock()
		r.end()
	}
	return r.done, stop, nil
}

// Complete finishes the current render as if the device drained it.
func (d *Output) Complete() {
	d.mu.Lock()
	r := d.current
	d.mu.Unlock()
	if r != nil {
		r.end()
	}
}

// Calls returns a copy of all recorded Play invocations.
func (d *Output) Calls() []PlayCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]PlayCall(nil), d.calls...)
}

// Active reports how many renders are currently in flight.
func (d *Output) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// MaxConcurrent reports the high-water mark of simultaneous renders.
func (d *Output) MaxConcurrent() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxConcurrent
}

// StopCalls reports how many times a stop func was invoked.
func (d *Output) StopCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopCalls
}
