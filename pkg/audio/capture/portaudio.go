package capture

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Compile-time assertions.
var (
	_ Device = (*PortAudioDevice)(nil)
	_ Stream = (*portAudioStream)(nil)
)

// defaultBlockSize is the portaudio callback buffer size in samples. At
// typical native rates this is 10–20 ms per callback, small enough that the
// voice-activity clock stays responsive.
const defaultBlockSize = 960

// PortAudioDevice is a [Device] backed by the system default microphone via
// portaudio. The zero value is ready to use.
type PortAudioDevice struct {
	// BlockSize overrides the callback buffer size in samples. Zero means
	// the package default.
	BlockSize int
}

// Open initialises portaudio, resolves the default input device, and starts
// a mono input stream at the device's native rate. Missing devices map to
// [ErrNoDevice] and OS-level access refusals to [ErrPermissionDenied].
func (d *PortAudioDevice) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}

	info, err := portaudio.DefaultInputDevice()
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}

	blockSize := d.BlockSize
	if blockSize <= 0 {
		blockSize = defaultBlockSize
	}

	ps := &portAudioStream{
		rate:   int(info.DefaultSampleRate),
		blocks: make(chan []float32, 8),
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, info.DefaultSampleRate, blockSize, ps.callback)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, classifyOpenError(err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, classifyOpenError(err)
	}

	ps.stream = stream
	return ps, nil
}

// classifyOpenError maps portaudio open/start failures onto the package
// error taxonomy where the host error text allows it.
func classifyOpenError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission") || strings.Contains(msg, "access"):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case strings.Contains(msg, "no device") || strings.Contains(msg, "invalid device"):
		return fmt.Errorf("%w: %v", ErrNoDevice, err)
	default:
		return fmt.Errorf("capture: open stream: %w", err)
	}
}

type portAudioStream struct {
	stream *portaudio.Stream
	rate   int
	blocks chan []float32

	mu     sync.Mutex
	closed bool
}

// callback runs on portaudio's real-time thread. It must never block, so a
// block is dropped when the processing side has fallen behind.
func (s *portAudioStream) callback(in []float32) {
	block := make([]float32, len(in))
	copy(block, in)
	select {
	case s.blocks <- block:
	default:
	}
}

func (s *portAudioStream) Blocks() <-chan []float32 { return s.blocks }

func (s *portAudioStream) SampleRate() int { return s.rate }

func (s *portAudioStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.stream.Stop()
	err := s.stream.Close()
	_ = portaudio.Terminate()
	close(s.blocks)
	return err
}
