// Package round runs the simulation of one game round at a fixed timestep and
// hands out serialized snapshots of its board.
package round

import (
	"context"
	"sync"
	"time"

	"github.com/blukai/pewpew/internal/board"
	"github.com/blukai/pewpew/internal/broadcast"
	"github.com/blukai/pewpew/internal/logging"
	"github.com/jonboulle/clockwork"
	"github.com/phuslu/log"
)

// Physics runs at 100 steps per second.
const (
	Timestep   = 10 * time.Millisecond
	timestepMs = int64(Timestep / time.Millisecond)
)

var _ broadcast.Snapshotter = (*Round)(nil)

type Round struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	lastTick time.Time
	board    *board.Board
	// per ship movement below a millimetre, in thousandths of a millimetre.
	carry map[board.PlayerID]*board.Vector3

	logger *log.Logger
}

func New(clock clockwork.Clock, logger *log.Logger) *Round {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Round{
		clock:    clock,
		lastTick: clock.Now(),
		board:    board.New(),
		carry:    make(map[board.PlayerID]*board.Vector3),
		logger:   logging.OrDiscard(logger),
	}
}

func (r *Round) AddShip(player board.PlayerID, ship *board.Ship) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.board.AddShip(player, ship)
	r.carry[player] = &board.Vector3{}
}

// FireEngine applies impulse to the ship of player. Ships have unit mass, so
// the impulse is added to the velocity as is.
func (r *Round) FireEngine(player board.PlayerID, impulse board.Vector3) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ship, ok := r.board.Ships[player]
	if !ok {
		r.logger.Warn().
			Int("player", int(player)).
			Msg("no ship registered for player")
		return
	}
	ship.Velocity = ship.Velocity.Add(impulse)
}

// Tick advances the round by as many whole timesteps as have elapsed since
// the last tick and returns how many that were. Leftover time carries over to
// the next tick.
func (r *Round) Tick() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	steps := uint32(r.clock.Since(r.lastTick) / Timestep)
	r.tickAhead(steps)
	return steps
}

func (r *Round) tickAhead(steps uint32) {
	for i := uint32(0); i < steps; i++ {
		for player, ship := range r.board.Ships {
			carry := r.carry[player]
			ship.Position = ship.Position.Add(board.Vector3{
				X: integrate(ship.Velocity.X, &carry.X),
				Y: integrate(ship.Velocity.Y, &carry.Y),
				Z: integrate(ship.Velocity.Z, &carry.Z),
			})
		}
	}
	r.lastTick = r.lastTick.Add(time.Duration(steps) * Timestep)
	r.board.Advance(steps * uint32(timestepMs))
}

// integrate returns how many whole millimetres velocity (mm/s) covers in one
// timestep and keeps the rest in carry.
func integrate(velocity int32, carry *int32) int32 {
	n := int64(velocity)*timestepMs + int64(*carry)
	*carry = int32(n % 1000)
	return int32(n / 1000)
}

// Snapshot returns the serialized board.
func (r *Round) Snapshot() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.board.MarshalBinary()
}

// Board returns a copy of the current board.
func (r *Round) Board() *board.Board {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.board.Clone()
}

// Run ticks the round until ctx is done.
func (r *Round) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(Timestep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.Tick()
		}
	}
}
