package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wayfarelabs/voxguide/internal/resilience"
	"github.com/wayfarelabs/voxguide/internal/voice"
)

// Session is the slice of the voice client the supervisor drives.
type Session interface {
	Connect(ctx context.Context) error
	Disconnect()
	SetEndpoint(endpoint string) bool
	Subscribe(fn func(voice.Event)) *voice.Subscription
}

var _ Session = (*voice.Client)(nil)

// SupervisorConfig tunes the reconnect behaviour. The zero value is usable.
type SupervisorConfig struct {
	// RetryDelay is the pause between failed connect rounds. Default 2s.
	RetryDelay time.Duration

	// Breaker configures the per-endpoint circuit breakers.
	Breaker resilience.CircuitBreakerConfig
}

// Supervisor keeps a session alive: it connects through a fallback group of
// endpoints, waits for the session to end, and reconnects on error. A clean
// disconnect ends the run loop.
type Supervisor struct {
	sess       Session
	group      *resilience.FallbackGroup[string]
	retryDelay time.Duration
	log        *slog.Logger
}

// NewSupervisor creates a supervisor over the primary endpoint and its
// fallbacks. Each endpoint gets its own circuit breaker so a flapping primary
// is skipped in favour of a healthy fallback.
func NewSupervisor(sess Session, primary string, fallbacks []string, cfg SupervisorConfig) *Supervisor {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	group := resilience.NewFallbackGroup(primary, primary, resilience.FallbackConfig{
		CircuitBreaker: cfg.Breaker,
	})
	for _, ep := range fallbacks {
		group.AddFallback(ep, ep)
	}
	return &Supervisor{
		sess:       sess,
		group:      group,
		retryDelay: cfg.RetryDelay,
		log:        slog.Default(),
	}
}

// Run connects and supervises the session until ctx is cancelled or the
// session ends with a clean disconnect. An error status triggers a reconnect
// round through the fallback group.
func (s *Supervisor) Run(ctx context.Context) error {
	terminal := make(chan voice.Status, 8)
	sub := s.sess.Subscribe(func(evt voice.Event) {
		st, ok := evt.(voice.StatusEvent)
		if !ok {
			return
		}
		if st.Status == voice.StatusDisconnected || st.Status == voice.StatusError {
			select {
			case terminal <- st.Status:
			default:
			}
		}
	})
	defer sub.Cancel()

	for {
		err := s.group.Execute(func(endpoint string) error {
			if !s.sess.SetEndpoint(endpoint) {
				return errors.New("connect already in flight")
			}
			// Earlier failed attempts left their error statuses behind; a
			// failed connect emits its status before Connect returns, so
			// everything buffered at this point is stale.
			drain(terminal)
			return s.sess.Connect(ctx)
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn("connect round failed, retrying", "err", err, "delay", s.retryDelay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.retryDelay):
			}
			continue
		}

		select {
		case <-ctx.Done():
			s.sess.Disconnect()
			return ctx.Err()
		case st := <-terminal:
			if st == voice.StatusDisconnected {
				return nil
			}
			s.log.Warn("session ended with error, reconnecting")
		}
	}
}

func drain(ch chan voice.Status) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
