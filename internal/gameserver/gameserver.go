// Package gameserver accepts client connections and streams them the state
// snapshots produced by the broadcast scheduler.
//
// Every connection gets an outbox in the registry and a write loop draining
// it. Bytes sent by clients are read and dropped, only to notice when they
// hang up.
package gameserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/blukai/pewpew/internal/broadcast"
	"github.com/blukai/pewpew/internal/logging"
	"github.com/blukai/pewpew/internal/metrics"
	"github.com/blukai/pewpew/internal/registry"
	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"github.com/phuslu/log"
	"golang.org/x/time/rate"
)

const (
	DefaultOutboxSize   = 16
	DefaultWriteTimeout = 5 * time.Second

	maxAcceptBackoff = time.Second
)

type GameServer struct {
	listener net.Listener

	logger  *log.Logger
	metrics *metrics.Metrics

	registry  *registry.Registry
	scheduler *broadcast.Scheduler

	acceptLimiter  *rate.Limiter
	maxConnections int
	outboxSize     int
	writeTimeout   time.Duration

	interval time.Duration
	clock    clockwork.Clock

	conns sync.WaitGroup
}

type Option func(*GameServer)

// WithInterval sets the broadcast interval.
func WithInterval(interval time.Duration) Option {
	return func(gs *GameServer) {
		gs.interval = interval
	}
}

// WithClock sets the clock driving broadcast ticks.
func WithClock(clock clockwork.Clock) Option {
	return func(gs *GameServer) {
		gs.clock = clock
	}
}

// WithOutboxSize sets how many snapshots may queue up for a slow client
// before new ones are dropped for it.
func WithOutboxSize(size int) Option {
	return func(gs *GameServer) {
		gs.outboxSize = size
	}
}

// WithWriteTimeout bounds a single socket write. Zero disables the deadline.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(gs *GameServer) {
		gs.writeTimeout = timeout
	}
}

// WithAcceptRate limits how many connections per second are admitted. A non
// positive rate means unlimited.
func WithAcceptRate(perSecond float64, burst int) Option {
	return func(gs *GameServer) {
		if perSecond <= 0 {
			gs.acceptLimiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		gs.acceptLimiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// WithMaxConnections caps the number of registered connections. Zero means
// unlimited.
func WithMaxConnections(n int) Option {
	return func(gs *GameServer) {
		gs.maxConnections = n
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(gs *GameServer) {
		gs.metrics = m
	}
}

func NewGameServer(
	network, address string,
	source broadcast.Snapshotter,
	logger *log.Logger,
	opts ...Option,
) (*GameServer, error) {
	gs := &GameServer{
		logger: logging.OrDiscard(logger),

		registry: registry.New(),

		acceptLimiter: rate.NewLimiter(rate.Inf, 0),
		outboxSize:    DefaultOutboxSize,
		writeTimeout:  DefaultWriteTimeout,

		interval: broadcast.DefaultInterval,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(gs)
	}
	gs.metrics = metrics.OrDiscard(gs.metrics)

	if gs.outboxSize < 1 {
		return nil, fmt.Errorf("invalid outbox size: %d", gs.outboxSize)
	}
	if gs.interval <= 0 {
		return nil, fmt.Errorf("invalid broadcast interval: %s", gs.interval)
	}

	gs.scheduler = broadcast.NewScheduler(
		gs.registry,
		source,
		broadcast.WithInterval(gs.interval),
		broadcast.WithClock(gs.clock),
		broadcast.WithLogger(gs.logger),
		broadcast.WithMetrics(gs.metrics),
	)

	listener, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("could not listen %s: %w", network, err)
	}
	gs.listener = listener

	return gs, nil
}

// Addr can be useful to retrieve server's address when GameServer was
// constructed with ":0".
func (gs *GameServer) Addr() net.Addr {
	return gs.listener.Addr()
}

func (gs *GameServer) Registry() *registry.Registry {
	return gs.registry
}

// Run accepts connections and broadcasts snapshots until ctx is done. It then
// closes the listener and every connection and waits for their loops.
func (gs *GameServer) Run(ctx context.Context) error {
	wg := &sync.WaitGroup{}

	var acceptErr, schedulerErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		acceptErr = gs.runAccept(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		schedulerErr = gs.scheduler.Run(ctx)
	}()

	<-ctx.Done()

	var errs error
	if err := gs.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = multierror.Append(errs, fmt.Errorf("could not close listener: %w", err))
	}
	wg.Wait()

	gs.registry.CloseAll()
	gs.conns.Wait()
	gs.metrics.ActiveConnections.Set(0)

	if acceptErr != nil {
		errs = multierror.Append(errs, fmt.Errorf("accept loop failed: %w", acceptErr))
	}
	if schedulerErr != nil {
		errs = multierror.Append(errs, fmt.Errorf("broadcast scheduler failed: %w", schedulerErr))
	}
	return errs
}

func (gs *GameServer) runAccept(ctx context.Context) error {
	backoff := time.Duration(0)

	for {
		conn, err := gs.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}

			// same approach as net/http: back off on accept errors
			// (e.g. too many open files) instead of spinning.
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff = min(2*backoff, maxAcceptBackoff)
			}
			gs.logger.Error().
				Err(err).
				Dur("backoff", backoff).
				Msg("could not accept connection")

			select {
			case <-ctx.Done():
				return nil
			case <-gs.clock.After(backoff):
			}
			continue
		}
		backoff = 0

		gs.handleConn(ctx, conn)
	}
}

func (gs *GameServer) reject(conn net.Conn, reason string) {
	gs.metrics.RejectedConnections.WithLabelValues(reason).Inc()
	gs.logger.Warn().
		Str("addr", conn.RemoteAddr().String()).
		Str("reason", reason).
		Msg("rejected connection")
	_ = conn.Close()
}

func (gs *GameServer) handleConn(ctx context.Context, conn net.Conn) {
	if !gs.acceptLimiter.Allow() {
		gs.reject(conn, "rate")
		return
	}
	if gs.maxConnections > 0 && gs.registry.Len() >= gs.maxConnections {
		gs.reject(conn, "capacity")
		return
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			gs.logger.Warn().
				Err(err).
				Msg("could not disable nagle's algorithm")
		}
	}

	addr := conn.RemoteAddr()
	out := registry.NewOutbox(gs.outboxSize)
	gs.registry.Insert(addr, out)

	gs.metrics.AcceptedConnections.Inc()
	gs.metrics.ActiveConnections.Set(float64(gs.registry.Len()))
	gs.logger.Info().
		Str("addr", addr.String()).
		Msg("new connection")

	// a write stuck on a peer that doesn't read must not hold up shutdown.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})

	gs.conns.Add(2)
	go func() {
		defer gs.conns.Done()
		defer stop()
		gs.runSend(conn, out)
	}()
	go func() {
		defer gs.conns.Done()
		gs.runDiscard(conn, out)
	}()
}

// runSend writes everything enqueued on out to conn, in order, until either
// the outbox is closed or a write fails.
func (gs *GameServer) runSend(conn net.Conn, out *registry.Outbox) {
	addr := conn.RemoteAddr()

	defer func() {
		gs.registry.Release(addr, out)
		out.Close()
		_ = conn.Close()

		gs.metrics.ActiveConnections.Set(float64(gs.registry.Len()))
		gs.logger.Info().
			Str("addr", addr.String()).
			Msg("connection closed")
	}()

	for {
		select {
		case <-out.Done():
			return
		case buf := <-out.C():
			if err := gs.write(conn, buf); err != nil {
				gs.metrics.WriteErrors.Inc()
				gs.logger.Error().
					Str("addr", addr.String()).
					Err(err).
					Msg("could not write")
				return
			}
		}
	}
}

func (gs *GameServer) write(conn net.Conn, buf []byte) error {
	if gs.writeTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(gs.writeTimeout)); err != nil {
			return fmt.Errorf("could not set write deadline: %w", err)
		}
	}
	return writeFull(conn, buf)
}

// writeFull retries short writes until buf is written or the writer fails.
func writeFull(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		buf = buf[n:]
	}
	return nil
}

// runDiscard drains whatever the client sends. When the client hangs up (or
// the connection is closed under it) the outbox is closed, which ends
// runSend.
func (gs *GameServer) runDiscard(conn net.Conn, out *registry.Outbox) {
	n, err := io.Copy(io.Discard, conn)
	if err != nil && !errors.Is(err, net.ErrClosed) {
		gs.logger.Debug().
			Str("addr", conn.RemoteAddr().String()).
			Err(err).
			Msg("read failed")
	}
	if n > 0 {
		gs.logger.Debug().
			Str("addr", conn.RemoteAddr().String()).
			Int64("bytes", n).
			Msg("discarded client bytes")
	}
	out.Close()
}

