package capture_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wayfarelabs/voxguide/pkg/audio"
	"github.com/wayfarelabs/voxguide/pkg/audio/capture"
	"github.com/wayfarelabs/voxguide/pkg/audio/capture/mock"
)

// constBlock returns n samples at a fixed amplitude.
func constBlock(n int, amp float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = amp
	}
	return out
}

// collectFrames reads n frames from ch, failing the test on timeout.
func collectFrames(t *testing.T, ch <-chan []byte, n int) [][]byte {
	t.Helper()
	var frames [][]byte
	for len(frames) < n {
		select {
		case f, ok := <-ch:
			if !ok {
				t.Fatalf("frame channel closed after %d of %d frames", len(frames), n)
			}
			frames = append(frames, f)
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout after %d of %d frames", len(frames), n)
		}
	}
	return frames
}

func startEngine(t *testing.T, dev *mock.Device, cfg capture.Config) *capture.Engine {
	t.Helper()
	e := capture.New(dev, cfg)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(e.Stop)
	return e
}

func TestEngine_EmitsFixedSizeFrames(t *testing.T) {
	dev := &mock.Device{Rate: 48000}
	e := startEngine(t, dev, capture.Config{})

	// 2:1 downsampling: two 48 kHz input frames' worth yields exactly two
	// 1920-sample uplink frames.
	dev.Stream().Push(constBlock(2*audio.FrameSamples*2, 0.5))

	frames := collectFrames(t, e.Frames(), 2)
	for i, f := range frames {
		if len(f) != audio.FrameBytes {
			t.Errorf("frame %d length = %d; want %d", i, len(f), audio.FrameBytes)
		}
	}

	// Amplitude 0.5 encodes to 16383 (0x3FFF little-endian).
	if frames[0][0] != 0xFF || frames[0][1] != 0x3F {
		t.Errorf("frame sample bytes = %#x %#x; want 0xff 0x3f", frames[0][0], frames[0][1])
	}
}

func TestEngine_FramesDoNotAliasAccumulator(t *testing.T) {
	dev := &mock.Device{Rate: 48000}
	e := startEngine(t, dev, capture.Config{})

	dev.Stream().Push(constBlock(audio.FrameSamples*2, 0.5))
	first := collectFrames(t, e.Frames(), 1)[0]

	dev.Stream().Push(constBlock(audio.FrameSamples*2, -0.5))
	collectFrames(t, e.Frames(), 1)

	// The first frame must be unaffected by later accumulator reuse.
	if first[0] != 0xFF || first[1] != 0x3F {
		t.Errorf("first frame mutated after later emission: bytes %#x %#x", first[0], first[1])
	}
}

func TestEngine_ChunkingProducesSameFrameCount(t *testing.T) {
	// The same total input split into irregular blocks must yield the same
	// number of frames as a single push — the resample cursor carries over.
	const totalIn = audio.FrameSamples * 2 * 3 // three frames' worth at 48 kHz

	run := func(blockSizes []int) int {
		dev := &mock.Device{Rate: 48000}
		e := startEngine(t, dev, capture.Config{})

		pushed := 0
		for i := 0; pushed < totalIn; i++ {
			n := blockSizes[i%len(blockSizes)]
			if pushed+n > totalIn {
				n = totalIn - pushed
			}
			dev.Stream().Push(constBlock(n, 0.25))
			pushed += n
		}
		return len(collectFrames(t, e.Frames(), 3))
	}

	if got := run([]int{totalIn}); got != 3 {
		t.Errorf("single block: %d frames; want 3", got)
	}
	if got := run([]int{960, 31, 1477, 128}); got != 3 {
		t.Errorf("irregular blocks: %d frames; want 3", got)
	}
}

func TestEngine_VoiceActivityCooldown(t *testing.T) {
	dev := &mock.Device{Rate: 48000}
	e := startEngine(t, dev, capture.Config{
		VoiceThreshold: 0.04,
		VoiceCooldown:  300 * time.Millisecond,
	})

	// Six loud 100 ms blocks: activity may fire at t=0 and t=300ms only.
	for i := 0; i < 6; i++ {
		dev.Stream().Push(constBlock(4800, 0.5))
	}

	// 28800 input samples resample to 14400 → seven full frames; waiting for
	// them guarantees all blocks were processed.
	collectFrames(t, e.Frames(), 7)
	e.Stop()

	var events int
	for range e.Activity() {
		events++
	}
	if events != 2 {
		t.Errorf("activity events = %d; want 2 (cooldown gating)", events)
	}
}

func TestEngine_QuietInputProducesNoActivity(t *testing.T) {
	dev := &mock.Device{Rate: 48000}
	e := startEngine(t, dev, capture.Config{VoiceThreshold: 0.04})

	for i := 0; i < 4; i++ {
		dev.Stream().Push(constBlock(4800, 0.01))
	}
	collectFrames(t, e.Frames(), 4)
	e.Stop()

	for range e.Activity() {
		t.Fatal("activity event fired for sub-threshold input")
	}
}

func TestEngine_LevelCadence(t *testing.T) {
	dev := &mock.Device{Rate: 48000}
	e := startEngine(t, dev, capture.Config{
		LevelInterval: 150 * time.Millisecond,
	})

	// Six 100 ms blocks → level samples at t=0, 200 ms, 400 ms.
	for i := 0; i < 6; i++ {
		dev.Stream().Push(constBlock(4800, 0.01))
	}
	collectFrames(t, e.Frames(), 7)
	e.Stop()

	var levels int
	for range e.Levels() {
		levels++
	}
	if levels != 3 {
		t.Errorf("level samples = %d; want 3", levels)
	}
}

func TestEngine_StartPropagatesDeviceErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"permission denied", capture.ErrPermissionDenied},
		{"no device", capture.ErrNoDevice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := capture.New(&mock.Device{OpenErr: tt.err}, capture.Config{})
			err := e.Start(context.Background())
			if !errors.Is(err, tt.err) {
				t.Errorf("Start error = %v; want errors.Is(%v)", err, tt.err)
			}
		})
	}
}

func TestEngine_StopIdempotentAndReleasesDevice(t *testing.T) {
	dev := &mock.Device{Rate: 48000}
	e := capture.New(dev, capture.Config{})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	e.Stop()
	e.Stop() // second call must be a no-op

	if !dev.Stream().Closed() {
		t.Error("device stream not closed after Stop")
	}
	if _, ok := <-e.Frames(); ok {
		t.Error("frame channel should be closed after Stop")
	}
}

func TestEngine_StopWithoutStart(t *testing.T) {
	e := capture.New(&mock.Device{}, capture.Config{})
	e.Stop() // must not panic or block
}
