// Package audio provides the capture and playback primitives for the
// realtime voice pipeline: PCM16 encode/decode between float samples and
// little-endian bytes, a linear-interpolation resampler, a framed
// microphone capture loop and a FIFO playback queue.
//
// All pipeline audio is mono. Samples travel as float32 in [-1, 1];
// the wire format is 16-bit little-endian PCM, base64-encoded for
// transport.
package audio

import "time"

const (
	// TargetSampleRate is the pipeline-wide rate in Hz. Capture output is
	// resampled to this rate before transport and playback renders at it.
	TargetSampleRate = 24000

	// DefaultFrameSize is the number of samples per capture frame.
	DefaultFrameSize = 4096
)

// Frame is one fixed-size block of mono samples as delivered by an
// input device, tagged with the device's native sample rate.
type Frame struct {
	Samples    []float32
	SampleRate int
	Timestamp  time.Time
}

// InputDevice abstracts a microphone. Open begins delivering mono frames
// of frameSize samples to fn, in capture order, from the device's own
// delivery goroutine. Close stops delivery; no calls to fn happen after
// Close returns.
type InputDevice interface {
	Open(frameSize int, fn func(Frame)) error
	Close() error
}

// OutputDevice abstracts a speaker. Play begins rendering the given mono
// samples and returns a channel that is closed when rendering completes,
// plus a stop function that aborts rendering early. Calling stop after
// rendering has already completed is a no-op. Implementations render at
// most one stream at a time per device.
type OutputDevice interface {
	Play(samples []float32, sampleRate int) (done <-chan struct{}, stop func(), err error)
}
