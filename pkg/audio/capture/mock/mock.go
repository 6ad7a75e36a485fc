// Package mock provides scripted implementations of [capture.Device] and
// [capture.Stream] for tests that need to drive the capture engine without
// real audio hardware.
package mock

import (
	"context"
	"sync"

	"github.com/wayfarelabs/voxguide/pkg/audio/capture"
)

// Compile-time assertions.
var (
	_ capture.Device = (*Device)(nil)
	_ capture.Stream = (*Stream)(nil)
)

// Device is a scripted [capture.Device]. Configure Rate and OpenErr before
// handing it to an engine; after Start, feed samples via Stream().Push.
type Device struct {
	// Rate is the pretend native sample rate. Defaults to 48000.
	Rate int

	// OpenErr, when non-nil, is returned from Open to simulate permission
	// or device failures.
	OpenErr error

	mu     sync.Mutex
	stream *Stream
}

// Open returns OpenErr if set, otherwise a fresh [Stream].
func (d *Device) Open(_ context.Context) (capture.Stream, error) {
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	rate := d.Rate
	if rate == 0 {
		rate = 48000
	}
	s := &Stream{
		rate:   rate,
		blocks: make(chan []float32, 64),
	}
	d.mu.Lock()
	d.stream = s
	d.mu.Unlock()
	return s, nil
}

// Stream returns the stream created by the last Open call, or nil.
func (d *Device) Stream() *Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stream
}

// Stream is a scripted [capture.Stream] fed by the test via [Stream.Push].
type Stream struct {
	rate   int
	blocks chan []float32

	mu     sync.Mutex
	closed bool
}

// Push delivers one block of samples to the engine. The block is copied.
// Pushing to a closed stream is a silent no-op.
func (s *Stream) Push(block []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	owned := make([]float32, len(block))
	copy(owned, block)
	s.blocks <- owned
}

// Blocks implements [capture.Stream].
func (s *Stream) Blocks() <-chan []float32 { return s.blocks }

// SampleRate implements [capture.Stream].
func (s *Stream) SampleRate() int { return s.rate }

// Close implements [capture.Stream]. Idempotent.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.blocks)
	return nil
}

// Closed reports whether Close has been called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
