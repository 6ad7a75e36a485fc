// Package view is the presentation adapter: a thin reactive mirror of the
// session orchestrator's event stream for rendering layers. It holds no
// protocol state of its own — everything here is a copy of what the
// orchestrator reported, kept only so a UI can read it at any time.
package view

import (
	"context"
	"sync"

	"github.com/wayfarelabs/voxguide/internal/voice"
)

// Session is the slice of the orchestrator the view consumes. Satisfied by
// [voice.Client].
type Session interface {
	Subscribe(fn func(voice.Event)) *voice.Subscription
	Connect(ctx context.Context) error
	Disconnect()
	Status() voice.Status
	SendContext(loc voice.Location, tp voice.TimePeriod)
	SendPhase(phase string)
	SendSessionStart(tp voice.TimePeriod)
	SendConfirmExploration()
}

var _ Session = (*voice.Client)(nil)

// Model mirrors orchestrator events as observable state. All accessors are
// safe for concurrent use with the event stream.
type Model struct {
	session Session
	sub     *voice.Subscription

	mu          sync.RWMutex
	status      voice.Status
	transcripts []voice.TranscriptEvent
	reply       []string
	micLevel    float64
	fact        *voice.FactEvent
	world       *voice.WorldStatusEvent
	music       *voice.MusicEvent
	suggestion  *voice.SuggestedLocationEvent
	summary     *voice.SessionSummaryEvent
}

// New creates a Model subscribed to the session's event stream.
func New(session Session) *Model {
	m := &Model{
		session: session,
		status:  voice.StatusDisconnected,
	}
	m.sub = session.Subscribe(m.apply)
	return m
}

// Close detaches the model from the event stream. The mirrored state remains
// readable but no longer updates.
func (m *Model) Close() {
	m.sub.Cancel()
}

// apply folds one event into the mirrored state.
func (m *Model) apply(evt voice.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch e := evt.(type) {
	case voice.StatusEvent:
		m.status = e.Status
	case voice.TranscriptEvent:
		m.transcripts = append(m.transcripts, e)
	case voice.ReplyTextEvent:
		m.reply = append(m.reply, e.Text)
	case voice.ReplyClearedEvent:
		m.reply = nil
	case voice.MicLevelEvent:
		m.micLevel = e.RMS
	case voice.FactEvent:
		m.fact = &e
	case voice.WorldStatusEvent:
		m.world = &e
	case voice.MusicEvent:
		m.music = &e
	case voice.SuggestedLocationEvent:
		m.suggestion = &e
	case voice.SessionSummaryEvent:
		m.summary = &e
	}
}

// ── Pass-through control surface ──────────────────────────────────────────────

// Connect starts a session through the underlying orchestrator.
func (m *Model) Connect(ctx context.Context) error { return m.session.Connect(ctx) }

// Disconnect ends the session.
func (m *Model) Disconnect() { m.session.Disconnect() }

// SendContext forwards a location/time-period update.
func (m *Model) SendContext(loc voice.Location, tp voice.TimePeriod) {
	m.session.SendContext(loc, tp)
}

// SendPhase forwards an application phase label.
func (m *Model) SendPhase(phase string) { m.session.SendPhase(phase) }

// SendSessionStart forwards a session-start request.
func (m *Model) SendSessionStart(tp voice.TimePeriod) { m.session.SendSessionStart(tp) }

// SendConfirmExploration forwards the user's exploration confirmation.
func (m *Model) SendConfirmExploration() { m.session.SendConfirmExploration() }

// ── Mirrored state ────────────────────────────────────────────────────────────

// Status returns the last observed connection status.
func (m *Model) Status() voice.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Transcripts returns the append-only list of recognized user utterances.
func (m *Model) Transcripts() []voice.TranscriptEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]voice.TranscriptEvent, len(m.transcripts))
	copy(out, m.transcripts)
	return out
}

// Reply returns the reply-text fragments of the reply currently being
// spoken. Empty after a reply is cleared.
func (m *Model) Reply() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.reply))
	copy(out, m.reply)
	return out
}

// MicLevel returns the most recent microphone RMS sample.
func (m *Model) MicLevel() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.micLevel
}

// Fact returns the latest fact, or nil.
func (m *Model) Fact() *voice.FactEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fact
}

// WorldStatus returns the latest world-generation status, or nil.
func (m *Model) WorldStatus() *voice.WorldStatusEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.world
}

// Music returns the latest music announcement, or nil.
func (m *Model) Music() *voice.MusicEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.music
}

// SuggestedLocation returns the latest location suggestion, or nil.
func (m *Model) SuggestedLocation() *voice.SuggestedLocationEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.suggestion
}

// Summary returns the end-of-session summary, or nil.
func (m *Model) Summary() *voice.SessionSummaryEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.summary
}
