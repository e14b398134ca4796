package audio_test

import (
	"bytes"
	"math"
	"testing"

	"github.com/akshaymakw8/Realtime-Voice-Agent/pkg/audio"
)

func TestResampleIdentityWhenRatesMatch(t *testing.T) {
	t.Parallel()

	in := []float32{0.1, -0.2, 0.3, -0.4}
	got := audio.Resample(in, 24000, 24000)
	want := audio.EncodePCM16(in)
	if !bytes.Equal(got, want) {
		t.Error("equal rates should encode samples unchanged")
	}
}

func TestResampleOutputLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      int
		rateIn  int
		rateOut int
		want    int
	}{
		{"halve 48k to 24k", 4096, 48000, 24000, 2048},
		{"upsample 16k to 24k", 4096, 16000, 24000, 6144},
		{"44.1k to 24k", 1000, 44100, 24000, 544},
		{"single sample upsample", 1, 12000, 24000, 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := make([]float32, tc.in)
			pcm := audio.Resample(in, tc.rateIn, tc.rateOut)
			if got := len(pcm) / 2; got != tc.want {
				t.Errorf("output samples = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestResampleInterpolatesBetweenNeighbors(t *testing.T) {
	t.Parallel()

	// Upsampling a two-sample ramp by 2x lands one position halfway
	// between the sources and one past the end, which clamps to the
	// final sample.
	out := audio.DecodePCM16(audio.Resample([]float32{0, 1}, 12000, 24000))
	want := []float32{0, 0.5, 1, 1}
	if len(out) != len(want) {
		t.Fatalf("output samples = %d, want %d", len(out), len(want))
	}
	const tol = 1e-3
	for i := range want {
		if diff := math.Abs(float64(out[i] - want[i])); diff > tol {
			t.Errorf("sample %d: got %v, want %v", i, out[i], want[i])
		}
	}
}

func TestResampleEmptyInput(t *testing.T) {
	t.Parallel()

	if got := audio.Resample(nil, 48000, 24000); len(got) != 0 {
		t.Errorf("empty input produced %d bytes", len(got))
	}
}
