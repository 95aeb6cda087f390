// Package broadcast periodically snapshots the authoritative game state and
// fans the framed snapshot out to every registered connection.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blukai/pewpew/internal/logging"
	"github.com/blukai/pewpew/internal/metrics"
	"github.com/blukai/pewpew/internal/protocol"
	"github.com/blukai/pewpew/internal/registry"
	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"github.com/phuslu/log"
)

const DefaultInterval = 50 * time.Millisecond

// Snapshotter produces the current state, serialized. The payload is opaque to
// the scheduler.
type Snapshotter interface {
	Snapshot() ([]byte, error)
}

type SnapshotFunc func() ([]byte, error)

func (fn SnapshotFunc) Snapshot() ([]byte, error) {
	return fn()
}

type Scheduler struct {
	registry *registry.Registry
	source   Snapshotter

	interval time.Duration
	clock    clockwork.Clock

	logger  *log.Logger
	metrics *metrics.Metrics
}

type Option func(*Scheduler)

func WithInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		s.interval = interval
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

func NewScheduler(reg *registry.Registry, source Snapshotter, opts ...Option) *Scheduler {
	s := &Scheduler{
		registry: reg,
		source:   source,
		interval: DefaultInterval,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrDiscard(s.logger)
	s.metrics = metrics.OrDiscard(s.metrics)
	return s
}

func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Run ticks until ctx is done. A tick that runs late is not made up for: the
// ticker drops ticks a slow receiver missed.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("invalid broadcast interval: %s", s.interval)
	}

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			// per-peer failures were already logged; nothing else to
			// do with them.
			_ = s.Tick()
		}
	}
}

// Tick snapshots once and enqueues the same framed buffer to every registered
// connection. It returns the per-connection enqueue failures, if any; they
// never stop delivery to the other connections.
func (s *Scheduler) Tick() error {
	start := s.clock.Now()
	s.metrics.BroadcastTicks.Inc()

	payload, err := s.source.Snapshot()
	if err != nil {
		s.metrics.SnapshotFailures.Inc()
		s.logger.Error().
			Err(err).
			Msg("could not snapshot state, skipping tick")
		return fmt.Errorf("could not snapshot: %w", err)
	}

	buf := protocol.EncodeFrame(payload)

	var errs error
	delivered := 0
	s.registry.ForEach(func(entry registry.Entry) {
		if err := entry.Outbox.Send(buf); err != nil {
			s.metrics.SendFailures.WithLabelValues(reason(err)).Inc()
			s.logger.Debug().
				Str("addr", entry.Addr.String()).
				Err(err).
				Msg("could not enqueue snapshot")

			errs = multierror.Append(errs, fmt.Errorf("%s: %w", entry.Addr, err))
			return
		}
		delivered++
	})

	s.metrics.BroadcastBytes.Add(float64(delivered * len(buf)))
	s.metrics.BroadcastDuration.Observe(s.clock.Since(start).Seconds())

	return errs
}

func reason(err error) string {
	switch {
	case errors.Is(err, registry.ErrOutboxFull):
		return metrics.ReasonFull
	case errors.Is(err, registry.ErrOutboxClosed):
		return metrics.ReasonClosed
	default:
		return "other"
	}
}
