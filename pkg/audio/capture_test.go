package audio_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/akshaymakw8/Realtime-Voice-Agent/pkg/audio"
	"github.com/akshaymakw8/Realtime-Voice-Agent/pkg/audio/mock"
)

// chunkRecorder collects emitted chunks for assertions.
type chunkRecorder struct {
	mu     sync.Mutex
	chunks []string
}

func (r *chunkRecorder) record(chunk string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, chunk)
}

func (r *chunkRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.chunks...)
}

func TestCaptureStartStop(t *testing.T) {
	t.Parallel()

	dev := &mock.Input{}
	cap := audio.NewCapture(dev)

	if err := cap.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !cap.Active() {
		t.Error("capture not active after Start")
	}
	if got := dev.FrameSize(); got != audio.DefaultFrameSize {
		t.Errorf("device frame size = %d, want %d", got, audio.DefaultFrameSize)
	}

	if err := cap.Start(); !errors.Is(err, audio.ErrCaptureActive) {
		t.Errorf("second Start error = %v, want ErrCaptureActive", err)
	}
	if dev.OpenCallCount != 1 {
		t.Errorf("device opened %d times, want 1", dev.OpenCallCount)
	}

	cap.Stop()
	if cap.Active() {
		t.Error("capture still active after Stop")
	}
	cap.Stop() // idempotent
	if dev.CloseCallCount != 1 {
		t.Errorf("device closed %d times, want 1", dev.CloseCallCount)
	}

	if err := cap.Start(); err != nil {
		t.Fatalf("restart after Stop: %v", err)
	}
}

func TestCaptureDeviceOpenFailure(t *testing.T) {
	t.Parallel()

	dev := &mock.Input{OpenError: errors.New("no such device")}
	cap := audio.NewCapture(dev)

	err := cap.Start()
	var devErr *audio.DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("error type = %T, want *audio.DeviceError", err)
	}
	if cap.Active() {
		t.Error("capture active after failed Start")
	}
}

func TestCaptureEmitsResampledChunks(t *testing.T) {
	t.Parallel()

	dev := &mock.Input{}
	cap := audio.NewCapture(dev)
	rec := &chunkRecorder{}
	cap.Bind(rec.record)
	if err := cap.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	dev.EmitFrame(audio.Frame{Samples: make([]float32, 4096), SampleRate: 48000})

	chunks := rec.all()
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	pcm, err := audio.FromText(chunks[0])
	if err != nil {
		t.Fatalf("chunk is not valid base64: %v", err)
	}
	if got := len(pcm) / 2; got != 2048 {
		t.Errorf("chunk holds %d samples, want 2048 after 48k to 24k", got)
	}
}

func TestCaptureRebindSwitchesSink(t *testing.T) {
	t.Parallel()

	dev := &mock.Input{}
	cap := audio.NewCapture(dev)
	first, second := &chunkRecorder{}, &chunkRecorder{}

	cap.Bind(first.record)
	if err := cap.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	dev.EmitFrame(audio.Frame{Samples: make([]float32, 8), SampleRate: 24000})

	cap.Bind(second.record)
	dev.EmitFrame(audio.Frame{Samples: make([]float32, 8), SampleRate: 24000})

	if got := len(first.all()); got != 1 {
		t.Errorf("old sink received %d chunks after rebind, want 1", got)
	}
	if got := len(second.all()); got != 1 {
		t.Errorf("new sink received %d chunks, want 1", got)
	}
}

func TestCaptureUnboundDropsFrames(t *testing.T) {
	t.Parallel()

	dev := &mock.Input{}
	cap := audio.NewCapture(dev)
	if err := cap.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Must not panic without a bound sink.
	dev.EmitFrame(audio.Frame{Samples: make([]float32, 8), SampleRate: 24000})

	rec := &chunkRecorder{}
	cap.Bind(rec.record)
	cap.Bind(nil)
	dev.EmitFrame(audio.Frame{Samples: make([]float32, 8), SampleRate: 24000})
	if got := len(rec.all()); got != 0 {
		t.Errorf("unbound sink received %d chunks", got)
	}
}

func TestCaptureHasAudioFlag(t *testing.T) {
	t.Parallel()

	dev := &mock.Input{}
	cap := audio.NewCapture(dev)
	if err := cap.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if cap.HasAudio() {
		t.Error("HasAudio true before any frame")
	}
	dev.EmitFrame(audio.Frame{Samples: make([]float32, 8), SampleRate: 24000})
	if !cap.HasAudio() {
		t.Error("HasAudio false after a frame")
	}
	cap.Stop()
	if err := cap.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if cap.HasAudio() {
		t.Error("HasAudio not reset by Start")
	}
}
