// Package voice implements the session orchestrator: it owns the WebSocket
// connection to the guide backend, speaks the wire protocol, drives the
// capture engine and playback scheduler, tracks which backend response is
// currently authoritative, and implements the barge-in/interrupt logic.
//
// One Client supports many connect/disconnect cycles. All protocol state —
// connection status, active response id, stale counters — has the Client as
// its single writer; other components observe it through the event stream.
package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/wayfarelabs/voxguide/internal/observe"
	"github.com/wayfarelabs/voxguide/pkg/audio/capture"
	"github.com/wayfarelabs/voxguide/pkg/audio/playback"
)

// voicePath is appended to endpoint URLs that carry no explicit path.
const voicePath = "/ws/voice"

// maxStaleDrops bounds the per-epoch stale counter. Diagnostics only; once
// saturated further drops are still silent but uncounted.
const maxStaleDrops = 1 << 16

// Capture is the slice of the capture engine the orchestrator drives.
// Satisfied by [capture.Engine].
type Capture interface {
	Start(ctx context.Context) error
	Frames() <-chan []byte
	Activity() <-chan float64
	Levels() <-chan float64
	Stop()
}

// Player is the slice of the playback scheduler the orchestrator drives.
// Satisfied by [playback.Scheduler].
type Player interface {
	Start() error
	PlayChunk(pcm []byte) error
	Interrupt()
	IsPlaying() bool
	Stop()
}

var (
	_ Capture = (*capture.Engine)(nil)
	_ Player  = (*playback.Scheduler)(nil)
)

// CaptureFactory builds a fresh capture engine for one connect cycle. Engines
// are single-use; the Client asks for a new one on every Connect.
type CaptureFactory func() Capture

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithLogger sets the Client's logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// Client is the session orchestrator.
type Client struct {
	endpoint   string
	newCapture CaptureFactory
	player     Player
	log        *slog.Logger
	metrics    *observe.Metrics
	events     dispatcher

	mu            sync.Mutex
	status        Status
	active        bool
	conn          *websocket.Conn
	capture       Capture
	sessCtx       context.Context
	cancel        context.CancelFunc
	epoch         string
	awaitingFirst bool
	staleDrops    int

	wg sync.WaitGroup
}

// New creates a Client for the given endpoint. The endpoint may be an http(s)
// origin — the scheme is mapped to ws(s) and the voice path appended — or a
// full ws(s) URL. newCapture supplies a fresh capture engine per session;
// player is reused across sessions.
func New(endpoint string, newCapture CaptureFactory, player Player, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		newCapture: newCapture,
		player:     player,
		log:        slog.Default(),
		status:     StatusDisconnected,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Subscribe registers fn for every event the Client emits. Multiple
// subscribers are invoked in registration order.
func (c *Client) Subscribe(fn func(Event)) *Subscription {
	return c.events.add(fn)
}

// Status returns the current connection status.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SetEndpoint changes the endpoint used by subsequent calls to [Client.Connect].
// An active session keeps its current connection. Returns false while a
// connect attempt is in flight.
func (c *Client) SetEndpoint(endpoint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusConnecting {
		return false
	}
	c.endpoint = endpoint
	return true
}

// StaleDrops returns the number of stale messages dropped since the current
// response started. Diagnostics only.
func (c *Client) StaleDrops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.staleDrops
}

// Connect opens the transport and starts capture; the status becomes
// connected only once both have succeeded, so a mic failure after the socket
// opened still yields the error path. Returns the setup error, mirrored by an
// error status event.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.status == StatusConnecting || c.status == StatusConnected {
		c.mu.Unlock()
		return fmt.Errorf("voice: already %s", c.status)
	}
	setupCtx, setupCancel := context.WithCancel(ctx)
	c.cancel = setupCancel
	c.status = StatusConnecting
	endpoint := c.endpoint
	c.mu.Unlock()
	c.events.emit(StatusEvent{Status: StatusConnecting})

	begin := time.Now()

	wsURL, err := endpointURL(endpoint)
	if err != nil {
		setupCancel()
		return c.failConnect(err)
	}

	eng := c.newCapture()

	// Transport open and capture start must both succeed; whichever fails
	// first cancels the other.
	var conn *websocket.Conn
	g, gctx := errgroup.WithContext(setupCtx)
	g.Go(func() error {
		var err error
		conn, _, err = websocket.Dial(gctx, wsURL, nil)
		if err != nil {
			return fmt.Errorf("voice: dial %s: %w", wsURL, err)
		}
		return nil
	})
	g.Go(func() error {
		if err := eng.Start(gctx); err != nil {
			return fmt.Errorf("voice: start capture: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		setupCancel()
		eng.Stop()
		if conn != nil {
			conn.Close(websocket.StatusInternalError, "setup failed")
		}
		return c.failConnect(err)
	}

	if err := c.player.Start(); err != nil {
		setupCancel()
		eng.Stop()
		conn.Close(websocket.StatusInternalError, "setup failed")
		return c.failConnect(fmt.Errorf("voice: start playback: %w", err))
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	setupCancel()

	c.mu.Lock()
	c.conn = conn
	c.capture = eng
	c.sessCtx = sessCtx
	c.cancel = sessCancel
	c.active = true
	c.epoch = ""
	c.awaitingFirst = false
	c.staleDrops = 0
	c.status = StatusConnected
	c.mu.Unlock()

	c.metrics.ActiveSessions.Add(sessCtx, 1)
	c.metrics.ConnectDuration.Record(sessCtx, time.Since(begin).Seconds())

	c.wg.Add(4)
	go c.receiveLoop(sessCtx, conn)
	go c.frameLoop(eng)
	go c.activityLoop(eng)
	go c.levelLoop(eng)

	c.log.Info("voice: connected", "endpoint", wsURL)
	c.events.emit(StatusEvent{Status: StatusConnected})
	return nil
}

// failConnect records a failed setup: error status, matching event, logged.
func (c *Client) failConnect(err error) error {
	c.mu.Lock()
	c.status = StatusError
	c.cancel = nil
	c.mu.Unlock()
	c.log.Error("voice: connect failed", "err", err)
	c.events.emit(StatusEvent{Status: StatusError})
	return err
}

// Disconnect tears the session down: stop capture, stop playback, discard the
// active response, close the transport — all before the disconnected status
// event is emitted. Safe to call in any state, including mid-Connect (the
// in-flight setup is cancelled). After Disconnect returns no further frames
// or inbound messages are processed.
func (c *Client) Disconnect() {
	c.teardown(StatusDisconnected, websocket.StatusNormalClosure, "client disconnect")
	c.wg.Wait()
}

// teardown releases session resources in reverse acquisition order and then
// publishes the final status. Only the first caller per session proceeds.
func (c *Client) teardown(final Status, code websocket.StatusCode, reason string) {
	c.mu.Lock()
	if !c.active {
		// Mid-Connect: cancel the in-flight setup and let Connect's error
		// path report the failure.
		if cancel := c.cancel; cancel != nil {
			cancel()
		}
		c.mu.Unlock()
		return
	}
	c.active = false
	conn, eng, cancel := c.conn, c.capture, c.cancel
	c.conn, c.capture, c.cancel = nil, nil, nil
	c.epoch = ""
	c.awaitingFirst = false
	c.status = final
	c.mu.Unlock()

	cancel()
	eng.Stop()
	c.player.Stop()
	conn.Close(code, reason)
	c.metrics.ActiveSessions.Add(context.Background(), -1)

	c.log.Info("voice: session ended", "status", string(final))
	c.events.emit(StatusEvent{Status: final})
}

// ── Session loops ──────────────────────────────────────────────────────────────

// receiveLoop processes inbound messages strictly in arrival order. A read
// error means the transport is gone: remote closure ends in disconnected,
// anything else in error, with full teardown before either status event.
func (c *Client) receiveLoop(ctx context.Context, conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				// Local teardown already in progress.
				return
			}
			final := StatusError
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				final = StatusDisconnected
			}
			c.log.Warn("voice: transport closed", "err", err)
			c.teardown(final, websocket.StatusNormalClosure, "transport closed")
			return
		}
		c.handleMessage(ctx, data)
	}
}

// frameLoop forwards captured frames to the transport in capture order.
func (c *Client) frameLoop(eng Capture) {
	defer c.wg.Done()
	for frame := range eng.Frames() {
		c.send(audioMessage{Type: "audio", Data: base64.StdEncoding.EncodeToString(frame)})
		c.metrics.FramesSent.Add(context.Background(), 1)
	}
}

// activityLoop barges in on local voice activity: if the guide is audibly
// speaking when the user starts talking, the reply is cut immediately rather
// than after the backend round-trip.
func (c *Client) activityLoop(eng Capture) {
	defer c.wg.Done()
	for range eng.Activity() {
		if c.player.IsPlaying() {
			c.bargeIn(context.Background(), "voice")
		}
	}
}

func (c *Client) levelLoop(eng Capture) {
	defer c.wg.Done()
	for rms := range eng.Levels() {
		c.events.emit(MicLevelEvent{RMS: rms})
	}
}

// ── Inbound protocol ───────────────────────────────────────────────────────────

// handleMessage decodes and dispatches one inbound message. Malformed
// messages are absorbed: logged, counted, never fatal to the session.
func (c *Client) handleMessage(ctx context.Context, data []byte) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Warn("voice: malformed message dropped", "err", err)
		c.metrics.ProtocolErrors.Add(ctx, 1)
		return
	}

	switch msg.Type {
	case "response_start":
		c.mu.Lock()
		c.epoch = msg.ResponseID
		c.awaitingFirst = true
		c.staleDrops = 0
		c.mu.Unlock()
		c.events.emit(ReplyClearedEvent{})

	case "transcript":
		c.events.emit(TranscriptEvent{Text: msg.Text, Partial: msg.Partial})
		// New user speech always visually cancels an in-progress reply.
		c.events.emit(ReplyClearedEvent{})
		if c.player.IsPlaying() {
			c.bargeIn(ctx, "transcript")
		}

	case "audio":
		if c.stale(ctx, msg.ResponseID, "audio") {
			return
		}
		pcm, err := base64.StdEncoding.DecodeString(msg.Data)
		if err != nil {
			c.log.Warn("voice: undecodable audio payload dropped", "err", err)
			c.metrics.ProtocolErrors.Add(ctx, 1)
			return
		}
		if err := c.player.PlayChunk(pcm); err != nil {
			c.log.Warn("voice: play chunk", "err", err)
			return
		}
		c.metrics.ChunksPlayed.Add(ctx, 1)
		c.mu.Lock()
		first := c.awaitingFirst
		c.awaitingFirst = false
		epoch := c.epoch
		c.mu.Unlock()
		if first {
			c.events.emit(PlaybackStartedEvent{ResponseID: epoch})
		}

	case "guide_text":
		if c.stale(ctx, msg.ResponseID, "guide_text") {
			return
		}
		c.events.emit(ReplyTextEvent{Text: msg.Text})

	case "fact":
		c.events.emit(FactEvent{Text: msg.Text, Category: msg.Category})

	case "world_status":
		c.events.emit(WorldStatusEvent{Status: msg.Status, WorldID: msg.WorldID, SplatURL: msg.SplatURL})

	case "music":
		c.events.emit(MusicEvent{TrackURL: msg.TrackURL})

	case "suggested_location":
		c.events.emit(SuggestedLocationEvent{Lat: msg.Lat, Lng: msg.Lng, Name: msg.Name, Year: msg.Year})

	case "session_summary":
		c.events.emit(SessionSummaryEvent{UserProfile: msg.UserProfile, WorldDescription: msg.WorldDescription})

	case "word_timestamp":
		if c.stale(ctx, msg.ResponseID, "word_timestamp") {
			return
		}
		// Start offsets are promised non-decreasing by the backend; a
		// violation is passed through rather than re-sorted.
		c.events.emit(WordTimingEvent{Text: msg.Text, StartS: msg.StartS, StopS: msg.StopS})

	case "interrupt":
		// The backend cancelled its own in-flight response.
		c.player.Interrupt()
		c.mu.Lock()
		c.epoch = ""
		c.awaitingFirst = false
		c.mu.Unlock()
		c.metrics.RecordBargeIn(ctx, "server")
		c.events.emit(ReplyClearedEvent{})

	default:
		c.log.Debug("voice: unrecognized message type", "type", msg.Type)
	}
}

// stale reports whether a message tagged with id belongs to a response that
// is no longer active. Stale messages are dropped without side effects beyond
// a bounded diagnostic counter. Untagged messages are never stale.
func (c *Client) stale(ctx context.Context, id, kind string) bool {
	if id == "" {
		return false
	}
	c.mu.Lock()
	if id == c.epoch {
		c.mu.Unlock()
		return false
	}
	if c.staleDrops < maxStaleDrops {
		c.staleDrops++
	}
	c.mu.Unlock()

	c.log.Debug("voice: stale message dropped", "kind", kind, "response_id", id)
	c.metrics.RecordStaleDrop(ctx, kind)
	return true
}

// bargeIn cuts the reply locally and tells the backend: exactly one playback
// interrupt, one outbound interrupt message, and the active response cleared.
// The decision is made here, without waiting for a server acknowledgment —
// barge-in latency is the point.
func (c *Client) bargeIn(ctx context.Context, origin string) {
	c.player.Interrupt()
	c.mu.Lock()
	c.epoch = ""
	c.awaitingFirst = false
	c.mu.Unlock()
	c.send(interruptMessage{Type: "interrupt"})
	c.metrics.RecordBargeIn(ctx, origin)
	c.log.Debug("voice: barge-in", "origin", origin)
}

// ── Outbound protocol ──────────────────────────────────────────────────────────

// SendContext reports the explored location and time period.
func (c *Client) SendContext(loc Location, tp TimePeriod) {
	c.send(contextMessage{Type: "context", Location: &loc, TimePeriod: &tp})
}

// SendPhase reports the embedding application's phase label.
func (c *Client) SendPhase(phase string) {
	c.send(phaseMessage{Type: "phase", Phase: phase})
}

// SendSessionStart begins a guided session in the given time period.
func (c *Client) SendSessionStart(tp TimePeriod) {
	c.send(sessionStartMessage{Type: "session_start", TimePeriod: &tp})
}

// SendConfirmExploration confirms the user's choice to explore the suggested
// world.
func (c *Client) SendConfirmExploration() {
	c.send(confirmExplorationMessage{Type: "confirm_exploration"})
}

// send writes one JSON message to the transport. Sends while not connected
// are dropped — not queued, not retried.
func (c *Client) send(v any) {
	c.mu.Lock()
	conn, ctx, status := c.conn, c.sessCtx, c.status
	c.mu.Unlock()

	if status != StatusConnected || conn == nil {
		c.log.Debug("voice: send dropped, not connected")
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("voice: marshal outbound", "err", err)
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.log.Warn("voice: send failed", "err", err)
	}
}

// endpointURL derives the WebSocket URL from a configured endpoint: http(s)
// schemes map to ws(s), and the fixed voice path is appended when the URL
// names only an origin.
func endpointURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("voice: parse endpoint %q: %w", endpoint, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("voice: unsupported endpoint scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = voicePath
	}
	return u.String(), nil
}
