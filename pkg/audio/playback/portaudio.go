package playback

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/wayfarelabs/voxguide/pkg/audio"
)

// Compile-time assertion.
var _ Sink = (*PortAudioSink)(nil)

// portAudioBlockSize is the output callback buffer size in samples (20 ms
// at 48 kHz).
const portAudioBlockSize = 960

// PortAudioSink is a [Sink] backed by the system default output device via
// portaudio. The zero value is ready to use.
type PortAudioSink struct {
	mu     sync.Mutex
	stream *portaudio.Stream
}

// Start initialises portaudio and opens a mono output stream at
// [audio.PlaybackRate] which pulls samples through fill.
func (p *PortAudioSink) Start(fill func(out []float32)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream != nil {
		return fmt.Errorf("playback: sink already started")
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio: initialize: %w", err)
	}
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(audio.PlaybackRate), portAudioBlockSize,
		func(out []float32) { fill(out) },
	)
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("playback: open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("playback: start output stream: %w", err)
	}

	p.stream = stream
	return nil
}

// Close stops pulling and releases the output device. Idempotent.
func (p *PortAudioSink) Close() error {
	p.mu.Lock()
	stream := p.stream
	p.stream = nil
	p.mu.Unlock()

	if stream == nil {
		return nil
	}
	_ = stream.Stop()
	err := stream.Close()
	_ = portaudio.Terminate()
	return err
}
