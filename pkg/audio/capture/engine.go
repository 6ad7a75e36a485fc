package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wayfarelabs/voxguide/pkg/audio"
)

// Engine converts a [Device]'s raw input into fixed-size uplink frames and
// voice-activity signals. Create with [New], then call [Engine.Start] once;
// [Engine.Stop] is idempotent and safe to call at any point, including
// before Start.
//
// All timing (voice-activity cooldown, level cadence) derives from the
// number of consumed input samples rather than a wall clock, so processing
// is deterministic under test and immune to scheduling jitter.
type Engine struct {
	dev Device
	cfg Config
	log *slog.Logger

	frames   chan []byte
	activity chan float64
	levels   chan float64

	mu      sync.Mutex
	stream  Stream
	started bool
	stopped bool

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates an Engine reading from dev. Unset Config fields take defaults.
func New(dev Device, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		dev:      dev,
		cfg:      cfg,
		log:      slog.Default(),
		frames:   make(chan []byte, cfg.FrameBuffer),
		activity: make(chan float64, 4),
		levels:   make(chan float64, 8),
		done:     make(chan struct{}),
	}
}

// Frames returns the channel of emitted uplink frames. Each frame is an
// owned [audio.FrameBytes]-byte buffer; the internal accumulator never
// aliases emitted memory. Closed by Stop.
func (e *Engine) Frames() <-chan []byte { return e.frames }

// Activity returns the channel of voice-activity events. Each value is the
// RMS of the triggering block. Events are spaced at least VoiceCooldown
// apart. Closed by Stop.
func (e *Engine) Activity() <-chan float64 { return e.activity }

// Levels returns the channel of rate-limited RMS samples for visualisation,
// emitted roughly every LevelInterval regardless of the voice threshold.
// Closed by Stop.
func (e *Engine) Levels() <-chan float64 { return e.levels }

// Start acquires the microphone and begins emitting frames. Permission and
// device failures from the underlying [Device] propagate unchanged (test
// with [errors.Is] against [ErrPermissionDenied] and [ErrNoDevice]).
// Start returns only once the device is actually producing.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return fmt.Errorf("capture: engine already stopped")
	}
	if e.started {
		e.mu.Unlock()
		return fmt.Errorf("capture: engine already started")
	}
	e.mu.Unlock()

	stream, err := e.dev.Open(ctx)
	if err != nil {
		return fmt.Errorf("capture: open device: %w", err)
	}

	e.mu.Lock()
	if e.stopped {
		// Stop raced with Start; release the device we just acquired.
		e.mu.Unlock()
		_ = stream.Close()
		return fmt.Errorf("capture: engine already stopped")
	}
	e.stream = stream
	e.started = true
	e.mu.Unlock()

	e.wg.Add(1)
	go e.run(stream)

	e.log.Debug("capture started",
		"native_rate", stream.SampleRate(),
		"target_rate", audio.CaptureRate,
		"frame_samples", audio.FrameSamples,
	)
	return nil
}

// run is the processing loop: RMS sensing, resampling, frame accumulation.
func (e *Engine) run(stream Stream) {
	defer e.wg.Done()

	res := audio.NewResampler(stream.SampleRate(), audio.CaptureRate)
	acc := make([]float32, 0, audio.FrameSamples)

	nativeRate := float64(stream.SampleRate())
	cooldown := e.cfg.VoiceCooldown.Seconds()
	interval := e.cfg.LevelInterval.Seconds()

	var clock float64 // seconds of consumed input
	lastVoice := -cooldown
	lastLevel := -interval

	for {
		select {
		case <-e.done:
			return
		case block, ok := <-stream.Blocks():
			if !ok {
				return
			}

			rms := audio.RMS(block)
			if rms > e.cfg.VoiceThreshold && clock-lastVoice >= cooldown {
				lastVoice = clock
				e.offer(e.activity, rms)
			}
			if clock-lastLevel >= interval {
				lastLevel = clock
				e.offer(e.levels, rms)
			}
			clock += float64(len(block)) / nativeRate

			for _, s := range res.Process(block) {
				acc = append(acc, s)
				if len(acc) == audio.FrameSamples {
					// EncodeFrame allocates, so the emitted frame owns its
					// memory and the accumulator can be reused.
					if !e.emit(audio.EncodeFrame(acc)) {
						return
					}
					acc = acc[:0]
				}
			}
		}
	}
}

// emit delivers one frame, preferring to drop the frame over stalling the
// processing loop when the consumer has fallen far behind. Returns false
// when the engine is shutting down.
func (e *Engine) emit(frame []byte) bool {
	select {
	case <-e.done:
		return false
	case e.frames <- frame:
		return true
	default:
		e.log.Debug("capture: frame dropped, consumer behind")
		return true
	}
}

// offer performs a non-blocking send of a signal value.
func (e *Engine) offer(ch chan float64, v float64) {
	select {
	case ch <- v:
	default:
	}
}

// Stop tears down in reverse order: signal the processing loop to stop
// emitting, release the device, then close the output channels. Idempotent;
// safe to call when never started. Never returns resource-release errors —
// they are logged and swallowed.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	stream := e.stream
	e.stream = nil
	e.mu.Unlock()

	close(e.done)
	if stream != nil {
		if err := stream.Close(); err != nil {
			e.log.Warn("capture: stream close", "err", err)
		}
	}
	e.wg.Wait()

	close(e.frames)
	close(e.activity)
	close(e.levels)
}
