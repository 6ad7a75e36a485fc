package playback

import (
	"fmt"
	"math"
	"sync"

	"github.com/wayfarelabs/voxguide/pkg/audio"
)

// Scheduler schedules decoded PCM chunks for contiguous output through a
// [Sink]. All methods are safe for concurrent use; the mutable scheduling
// state (cursor and tracked unit set) is owned exclusively by this type.
type Scheduler struct {
	sink Sink
	rate int

	mu      sync.Mutex
	started bool
	pos     int64   // samples pulled since Start — the output clock
	next    float64 // start-time cursor for the next chunk, in seconds
	units   []*unit // scheduled but not yet finished chunks
}

// unit is one scheduled chunk: the decoded float buffer and its start
// position on the output clock. The Scheduler exclusively owns both for the
// unit's lifetime.
type unit struct {
	samples []float32
	start   int64 // output-clock sample index of the first sample
}

// New creates a Scheduler that plays through sink at [audio.PlaybackRate].
func New(sink Sink) *Scheduler {
	return &Scheduler{sink: sink, rate: audio.PlaybackRate}
}

// Start opens the output and resets the start-time cursor to the clock
// origin.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("playback: already started")
	}
	s.started = true
	s.pos = 0
	s.next = 0
	s.units = nil
	s.mu.Unlock()

	if err := s.sink.Start(s.fill); err != nil {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return fmt.Errorf("playback: start sink: %w", err)
	}
	return nil
}

// PlayChunk decodes a 16-bit PCM chunk and schedules it to begin at the
// later of the cursor and "now". The cursor then advances by exactly the
// chunk's duration, so the next chunk starts precisely when this one ends.
// If the cursor has fallen behind real time it snaps forward to now first,
// accepting a gap rather than scheduling into the past.
func (s *Scheduler) PlayChunk(pcm []byte) error {
	samples := audio.DecodeChunk(pcm)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrNotStarted
	}
	if len(samples) == 0 {
		return nil
	}

	now := float64(s.pos) / float64(s.rate)
	start := s.next
	if start < now {
		start = now
	}
	s.units = append(s.units, &unit{
		samples: samples,
		start:   int64(math.Round(start * float64(s.rate))),
	})
	s.next = start + float64(len(samples))/float64(s.rate)
	return nil
}

// fill is the sink's pull callback. It mixes every overlapping unit into
// out, drops units whose playback has completed, and advances the clock.
func (s *Scheduler) fill(out []float32) {
	for i := range out {
		out[i] = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	windowStart := s.pos
	windowEnd := s.pos + int64(len(out))

	live := s.units[:0]
	for _, u := range s.units {
		end := u.start + int64(len(u.samples))
		if end <= windowStart {
			// Finished before this window; the unit removes itself.
			continue
		}
		from := max(u.start, windowStart)
		to := min(end, windowEnd)
		for p := from; p < to; p++ {
			out[p-windowStart] += u.samples[p-u.start]
		}
		live = append(live, u)
	}
	s.units = live
	s.pos = windowEnd
}

// Interrupt immediately stops every scheduled or playing unit, clears the
// tracking set, and resets the start-time cursor to the origin so the next
// PlayChunk schedules from "now" rather than a stale future cursor. Safe to
// call when nothing is playing.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units = nil
	s.next = 0
}

// IsPlaying reports whether any scheduled unit has not yet finished.
func (s *Scheduler) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := s.units[:0]
	for _, u := range s.units {
		if u.start+int64(len(u.samples)) > s.pos {
			live = append(live, u)
		}
	}
	s.units = live
	return len(s.units) > 0
}

// Stop interrupts all playback and releases the output. Idempotent; sink
// release failures are swallowed after best-effort cleanup.
func (s *Scheduler) Stop() {
	s.Interrupt()

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	_ = s.sink.Close()
}
