// Package portaudio backs the audio device interfaces with real
// hardware through PortAudio. Microphone captures from the default
// input device at its native rate; Speaker renders on the default
// output device.
package portaudio

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/akshaymakw8/Realtime-Voice-Agent/pkg/audio"
)

// writeFrames is the blocking-write buffer size for playback, small
// enough to keep stop latency low.
const writeFrames = 1024

// Microphone implements audio.InputDevice on the default input device.
// The zero value is ready to use.
type Microphone struct {
	mu     sync.Mutex
	stream *portaudio.Stream
}

var _ audio.InputDevice = (*Microphone)(nil)

func (m *Microphone) Open(frameSize int, fn func(audio.Frame)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream != nil {
		return fmt.Errorf("portaudio: microphone already open")
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio: initialize: %w", err)
	}
	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("portaudio: default input device: %w", err)
	}
	rate := int(dev.DefaultSampleRate)
	stream, err := portaudio.OpenDefaultStream(1, 0, dev.DefaultSampleRate, frameSize, func(in []float32) {
		// PortAudio reuses the callback buffer between invocations.
		samples := append([]float32(nil), in...)
		fn(audio.Frame{Samples: samples, SampleRate: rate, Timestamp: time.Now()})
	})
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("portaudio: open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("portaudio: start input stream: %w", err)
	}
	m.stream = stream
	return nil
}

func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == nil {
		return nil
	}
	stopErr := m.stream.Stop()
	closeErr := m.stream.Close()
	m.stream = nil
	portaudio.Terminate()
	if stopErr != nil {
		return fmt.Errorf("portaudio: stop input stream: %w", stopErr)
	}
	if closeErr != nil {
		return fmt.Errorf("portaudio: close input stream: %w", closeErr)
	}
	return nil
}

// Speaker implements audio.OutputDevice on the default output device.
// Each Play opens a blocking-write stream and feeds it from a render
// goroutine; stop aborts between writes.
type Speaker struct {
	mu sync.Mutex
}

var _ audio.OutputDevice = (*Speaker)(nil)

func (s *Speaker) Play(samples []float32, sampleRate int) (<-chan struct{}, func(), error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	buf := make([]float32, writeFrames)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), writeFrames, &buf)
	if err != nil {
		portaudio.Terminate()
		return nil, nil, fmt.Errorf("portaudio: open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, nil, fmt.Errorf("portaudio: start output stream: %w", err)
	}

	done := make(chan struct{})
	var stopped atomic.Bool
	go func() {
		defer close(done)
		defer func() {
			stream.Stop()
			stream.Close()
			portaudio.Terminate()
		}()
		// One stream writes at a time; serialize across Play calls.
		s.mu.Lock()
		defer s.mu.Unlock()
		for off := 0; off < len(samples); off += writeFrames {
			if stopped.Load() {
				return
			}
			n := copy(buf, samples[off:])
			for i := n; i < len(buf); i++ {
				buf[i] = 0
			}
			if err := stream.Write(); err != nil {
				return
			}
		}
	}()
	stop := func() { stopped.Store(true) }
	return done, stop, nil
}
