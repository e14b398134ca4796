package audio

import "errors"

// ErrCaptureActive is returned by Capture.Start when a capture session
// is already running.
var ErrCaptureActive = errors.New("audio: capture already active")

// DeviceError wraps a failure reported by the underlying input or
// output device.
type DeviceError struct {
	Op  string // "open", "close", "play"
	Err error
}

func (e *DeviceError) Error() string {
	return "audio: device " + e.Op + ": " + e.Err.Error()
}

func (e *DeviceError) Unwrap() error { return e.Err }

// DecodeError reports a malformed inbound payload, either base64 text
// that does not decode or PCM bytes that do not align to whole samples.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return "audio: decode: " + e.Reason + ": " + e.Err.Error()
	}
	return "audio: decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }
