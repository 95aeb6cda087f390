package gameclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blukai/pewpew/internal/board"
	"github.com/blukai/pewpew/internal/logging"
	"github.com/blukai/pewpew/internal/protocol"
	"github.com/phuslu/log"
)

const DefaultReadTimeout = time.Second

type GameClient struct {
	conn    net.Conn
	readBuf []byte
	demux   *protocol.Demuxer

	logger *log.Logger

	readTimeout time.Duration
	// set once Run's context is done; no read may wait past that.
	stopped atomic.Bool

	mu       sync.Mutex
	board    *board.Board
	received uint64
}

type Option func(*options)

type options struct {
	maxFrameSize uint32
	readTimeout  time.Duration
}

// WithMaxFrameSize drops the connection when the server announces a frame
// larger than max bytes. Zero means unlimited.
func WithMaxFrameSize(max uint32) Option {
	return func(o *options) {
		o.maxFrameSize = max
	}
}

// WithReadTimeout bounds a single ReadFrames call.
func WithReadTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.readTimeout = timeout
	}
}

func NewGameClient(network, address string, logger *log.Logger, opts ...Option) (*GameClient, error) {
	o := options{
		maxFrameSize: protocol.DefaultMaxFrameSize,
		readTimeout:  DefaultReadTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	conn, err := net.Dial(network, address)
	if err != nil {
		return nil, fmt.Errorf("could not dial %s: %w", network, err)
	}

	logger = logging.OrDiscard(logger)

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			logger.Warn().
				Err(err).
				Msg("could not disable nagle's algorithm")
		}
	}

	gc := &GameClient{
		conn:    conn,
		readBuf: make([]byte, protocol.ReadBufferSize),
		demux:   protocol.NewDemuxer(protocol.WithMaxFrameSize(o.maxFrameSize)),

		logger: logger,

		readTimeout: o.readTimeout,
	}

	return gc, nil
}

func (gc *GameClient) LocalAddr() net.Addr {
	return gc.conn.LocalAddr()
}

// ReadFrames reads from the connection once and returns every frame that
// became complete. Running into the read timeout is not an error, it just
// yields no frames.
func (gc *GameClient) ReadFrames() ([]*protocol.Frame, error) {
	if gc.readTimeout > 0 {
		if err := gc.conn.SetReadDeadline(time.Now().Add(gc.readTimeout)); err != nil {
			return nil, fmt.Errorf("could not set read deadline: %w", err)
		}
		// the cancellation may have landed right before the deadline
		// above replaced the one it set.
		if gc.stopped.Load() {
			_ = gc.conn.SetReadDeadline(time.Now())
		}
	}

	n, readErr := gc.conn.Read(gc.readBuf)

	frames, err := gc.demux.Feed(gc.readBuf[:n])
	if err != nil {
		return frames, err
	}

	if readErr != nil {
		var netErr net.Error
		if errors.As(readErr, &netErr) && netErr.Timeout() {
			return frames, nil
		}
		return frames, readErr
	}

	return frames, nil
}

// Run reads and decodes board snapshots until ctx is done or the connection
// fails. The connection is closed when Run returns.
func (gc *GameClient) Run(ctx context.Context) error {
	defer gc.conn.Close()

	// unblock a pending read as soon as ctx is done.
	stop := context.AfterFunc(ctx, func() {
		gc.stopped.Store(true)
		_ = gc.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		frames, err := gc.ReadFrames()
		for _, frame := range frames {
			gc.handleFrame(frame)
		}

		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("could not read frames: %w", err)
		}
	}
}

func (gc *GameClient) handleFrame(frame *protocol.Frame) {
	b := board.New()
	if err := b.UnmarshalBinary(frame.Bytes()); err != nil {
		gc.logger.Error().
			Int("size", frame.Len()).
			Err(err).
			Msg("could not decode snapshot")
		return
	}

	gc.logger.Trace().
		Uint32("time", uint32(b.Time)).
		Int("ships", len(b.Ships)).
		Msg("recv")

	gc.mu.Lock()
	gc.board = b
	gc.received += 1
	gc.mu.Unlock()
}

// GetBoard returns the most recently received board, nil if none arrived
// yet.
func (gc *GameClient) GetBoard() *board.Board {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	if gc.board == nil {
		return nil
	}
	return gc.board.Clone()
}

// Received returns how many snapshots were decoded so far.
func (gc *GameClient) Received() uint64 {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	return gc.received
}

func (gc *GameClient) Close() error {
	return gc.conn.Close()
}
