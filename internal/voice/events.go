package voice

import "sync"

// Status is the authoritative connection state of a [Client].
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Event is the tagged union of everything a [Client] reports to subscribers.
// The concrete types below are the only implementations.
type Event interface{ isEvent() }

// StatusEvent reports a connection status transition.
type StatusEvent struct {
	Status Status
}

// TranscriptEvent carries recognized user speech. Partial transcripts are
// interim recognition results; the final transcript follows.
type TranscriptEvent struct {
	Text    string
	Partial bool
}

// ReplyTextEvent carries one fragment of the guide's textual reply.
type ReplyTextEvent struct {
	Text string
}

// ReplyClearedEvent tells subscribers to drop any displayed reply text: a new
// response has started or the current one was cancelled.
type ReplyClearedEvent struct{}

// PlaybackStartedEvent fires when the first audio chunk of the active
// response reaches the playback scheduler. It is the anchor point for
// synchronising word timings with the audio clock.
type PlaybackStartedEvent struct {
	ResponseID string
}

// FactEvent carries a point of interest about the current location.
type FactEvent struct {
	Text     string
	Category string
}

// WorldStatusEvent reports backend world-generation progress.
type WorldStatusEvent struct {
	Status   string
	WorldID  string
	SplatURL string
}

// MusicEvent announces a background music track for the current scene.
type MusicEvent struct {
	TrackURL string
}

// SuggestedLocationEvent proposes a place the user might explore next.
type SuggestedLocationEvent struct {
	Lat  float64
	Lng  float64
	Name string
	Year int
}

// SessionSummaryEvent carries the backend's end-of-session synthesis.
type SessionSummaryEvent struct {
	UserProfile      string
	WorldDescription string
}

// WordTimingEvent positions one reply word on the playback clock, relative to
// the [PlaybackStartedEvent] anchor of the same response.
type WordTimingEvent struct {
	Text   string
	StartS float64
	StopS  float64
}

// MicLevelEvent is a rate-limited microphone RMS sample for visualisation.
// It is a level reading, not a voice-activity signal.
type MicLevelEvent struct {
	RMS float64
}

func (StatusEvent) isEvent()            {}
func (TranscriptEvent) isEvent()        {}
func (ReplyTextEvent) isEvent()         {}
func (ReplyClearedEvent) isEvent()      {}
func (PlaybackStartedEvent) isEvent()   {}
func (FactEvent) isEvent()              {}
func (WorldStatusEvent) isEvent()       {}
func (MusicEvent) isEvent()             {}
func (SuggestedLocationEvent) isEvent() {}
func (SessionSummaryEvent) isEvent()    {}
func (WordTimingEvent) isEvent()        {}
func (MicLevelEvent) isEvent()          {}

// Subscription is a registered event listener. Cancel detaches it; events
// already being dispatched may still be delivered.
type Subscription struct {
	d  *dispatcher
	fn func(Event)
}

// Cancel removes the subscription from its dispatcher. Idempotent and safe
// on a nil receiver.
func (s *Subscription) Cancel() {
	if s == nil || s.d == nil {
		return
	}
	s.d.remove(s)
}

// dispatcher fans events out to subscribers in registration order. Delivery
// order matches registration order; dispatch itself is serialised so no two
// events interleave across subscribers.
type dispatcher struct {
	mu   sync.Mutex
	subs []*Subscription
}

func (d *dispatcher) add(fn func(Event)) *Subscription {
	sub := &Subscription{d: d, fn: fn}
	d.mu.Lock()
	d.subs = append(d.subs, sub)
	d.mu.Unlock()
	return sub
}

func (d *dispatcher) remove(sub *Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, s := range d.subs {
		if s == sub {
			d.subs = append(d.subs[:i], d.subs[i+1:]...)
			return
		}
	}
}

func (d *dispatcher) emit(evt Event) {
	d.mu.Lock()
	subs := make([]*Subscription, len(d.subs))
	copy(subs, d.subs)
	d.mu.Unlock()

	for _, s := range subs {
		s.fn(evt)
	}
}
