package audio

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"strings"
)

// encodeChunk is the byte granularity for incremental base64 encoding.
// It is a multiple of 3 so chunk boundaries never introduce padding and
// the concatenated output is identical to encoding the whole buffer.
const encodeChunk = 3 * 4096

// EncodePCM16 converts mono float samples in [-1, 1] to 16-bit
// little-endian PCM. Out-of-range samples are clamped. Negative values
// scale by 32768 and non-negative by 32767 so both rails map onto the
// full int16 range.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// DecodePCM16 converts 16-bit little-endian PCM back to float samples,
// using the same asymmetric scaling as EncodePCM16 so a round trip is
// exact to within one quantization step. A trailing odd byte is dropped.
func DecodePCM16(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := range n {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		if v < 0 {
			out[i] = float32(v) / 32768
		} else {
			out[i] = float32(v) / 32767
		}
	}
	return out
}

// ToText base64-encodes PCM bytes for transport. Large buffers are
// encoded in chunks to bound the working set; the result is the same as
// a single whole-buffer encode.
func ToText(pcm []byte) string {
	if len(pcm) <= encodeChunk {
		return base64.StdEncoding.EncodeToString(pcm)
	}
	var b strings.Builder
	b.Grow(base64.StdEncoding.EncodedLen(len(pcm)))
	for off := 0; off < len(pcm); off += encodeChunk {
		end := min(off+encodeChunk, len(pcm))
		b.WriteString(base64.StdEncoding.EncodeToString(pcm[off:end]))
	}
	return b.String()
}

// FromText decodes a base64 transport payload back to PCM bytes. A
// malformed payload yields a DecodeError and no partial data.
func FromText(text string) ([]byte, error) {
	pcm, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, &DecodeError{Reason: "malformed base64 payload", Err: err}
	}
	return pcm, nil
}

// Resample converts mono samples from rateIn to rateOut by linear
// interpolation and returns the result PCM16-encoded. When the rates
// match the samples are encoded unchanged. The output length is
// round(len(samples) / (rateIn/rateOut)) samples.
func Resample(samples []float32, rateIn, rateOut int) []byte {
	if rateIn == rateOut || len(samples) == 0 {
		return EncodePCM16(samples)
	}
	ratio := float64(rateIn) / float64(rateOut)
	outLen := int(math.Round(float64(len(samples)) / ratio))
	out := make([]float32, outLen)
	last := len(samples) - 1
	for i := range outLen {
		pos := float64(i) * ratio
		lo := int(pos)
		if lo > last {
			lo = last
		}
		hi := min(lo+1, last)
		frac := float32(pos - float64(lo))
		out[i] = samples[lo]*(1-frac) + samples[hi]*frac
	}
	return EncodePCM16(out)
}
