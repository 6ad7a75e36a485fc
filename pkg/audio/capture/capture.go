// Package capture turns live microphone input into a steady stream of
// fixed-size encoded PCM frames at the uplink rate, regardless of the
// device's native rate, and flags short-term voice activity.
//
// The two abstractions are:
//
//   - [Device] — opens an exclusive handle on a microphone and returns a
//     [Stream] of raw float blocks at the hardware's native rate.
//   - [Engine] — consumes a Stream, resamples to [audio.CaptureRate],
//     accumulates exactly [audio.FrameSamples] samples per frame, and emits
//     frames, voice-activity events, and rate-limited level samples on
//     bounded channels.
//
// Implementations of [Device] are provided by backend files in this package
// (portaudio) and by the mock subpackage for tests.
package capture

import (
	"context"
	"errors"
	"time"
)

// ErrPermissionDenied indicates the user or OS denied microphone access.
// Not retryable from inside this package; the caller decides whether to
// retry the whole Start call.
var ErrPermissionDenied = errors.New("capture: microphone permission denied")

// ErrNoDevice indicates no usable input device is available.
var ErrNoDevice = errors.New("capture: no input device available")

// Stream is an open microphone handle delivering raw mono float blocks at
// the device's native sample rate. Blocks is closed when the stream ends.
type Stream interface {
	// Blocks returns the channel of captured sample blocks. Block sizes are
	// device-dependent and may vary between reads.
	Blocks() <-chan []float32

	// SampleRate returns the native hardware rate in Hz.
	SampleRate() int

	// Close releases the device. Idempotent; never returns an error that the
	// caller must act on beyond logging.
	Close() error
}

// Device acquires an exclusive microphone handle. Implementations request
// mono input with echo cancellation and noise suppression where the platform
// offers them, and must not return before the stream is actually producing
// (a platform that starts suspended is resumed first).
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Config holds the tunable parameters of an [Engine]. The zero value is
// usable; unset fields take the defaults below.
type Config struct {
	// VoiceThreshold is the RMS energy above which a block counts as voice
	// activity. Default 0.04.
	VoiceThreshold float64

	// VoiceCooldown is the minimum spacing between consecutive
	// voice-activity events. Default 300ms.
	VoiceCooldown time.Duration

	// LevelInterval is the cadence of level samples for visualisation.
	// Default 50ms (~20 Hz).
	LevelInterval time.Duration

	// FrameBuffer is the depth of the emitted frame channel. Default 16.
	FrameBuffer int
}

const (
	defaultVoiceThreshold = 0.04
	defaultVoiceCooldown  = 300 * time.Millisecond
	defaultLevelInterval  = 50 * time.Millisecond
	defaultFrameBuffer    = 16
)

func (c Config) withDefaults() Config {
	if c.VoiceThreshold == 0 {
		c.VoiceThreshold = defaultVoiceThreshold
	}
	if c.VoiceCooldown == 0 {
		c.VoiceCooldown = defaultVoiceCooldown
	}
	if c.LevelInterval == 0 {
		c.LevelInterval = defaultLevelInterval
	}
	if c.FrameBuffer == 0 {
		c.FrameBuffer = defaultFrameBuffer
	}
	return c
}
