// Package playback plays a stream of independently-arriving PCM chunks of
// varying length with no audible gap or overlap between consecutive chunks,
// and supports immediate hard interruption for barge-in.
//
// The [Scheduler] owns a start-time cursor on the output clock: each chunk
// is scheduled to begin exactly where the previous one ends. The clock is
// the cumulative number of samples pulled by the [Sink], so scheduling is
// fully deterministic under test — no wall clock is involved.
package playback

import "errors"

// ErrNotStarted is returned by PlayChunk before Start or after Stop.
var ErrNotStarted = errors.New("playback: scheduler not started")

// Sink is a pull-based audio output device. After Start, the sink invokes
// fill from its own output context whenever it needs samples; fill must
// completely overwrite out. Close stops pulling and releases the device.
type Sink interface {
	Start(fill func(out []float32)) error
	Close() error
}
