package round_test

import (
	"context"
	"testing"
	"time"

	"github.com/blukai/pewpew/internal/board"
	"github.com/blukai/pewpew/internal/round"
	"github.com/jonboulle/clockwork"
	"github.com/matryer/is"
)

func TestAddShip(t *testing.T) {
	is := is.New(t)

	r := round.New(clockwork.NewFakeClock(), nil)
	r.AddShip(2, board.ShipAtOrigin())
	is.Equal(len(r.Board().Ships), 1)
}

func TestTick(t *testing.T) {
	is := is.New(t)

	clock := clockwork.NewFakeClock()
	r := round.New(clock, nil)

	// time alone doesn't advance the round
	clock.Advance(42 * time.Millisecond)
	is.Equal(r.Board().Time, board.Timestep(0))

	// 4 full steps plus some slop
	is.Equal(r.Tick(), uint32(4))
	is.Equal(r.Board().Time, board.Timestep(40))

	// the slop carries over
	clock.Advance(8 * time.Millisecond)
	is.Equal(r.Tick(), uint32(1))
	is.Equal(r.Board().Time, board.Timestep(50))

	is.Equal(r.Tick(), uint32(0))
}

func TestPhysics(t *testing.T) {
	is := is.New(t)

	clock := clockwork.NewFakeClock()
	r := round.New(clock, nil)
	r.AddShip(1, &board.Ship{})

	r.FireEngine(1, board.Vector3{X: 1000})
	// unknown players are ignored
	r.FireEngine(9, board.Vector3{X: 1000})

	clock.Advance(time.Second)
	is.Equal(r.Tick(), uint32(100))

	ship := r.Board().Ships[1]
	is.Equal(ship.Velocity, board.Vector3{X: 1000})
	is.Equal(ship.Position, board.Vector3{X: 1000})
}

func TestSlowShipsMove(t *testing.T) {
	is := is.New(t)

	clock := clockwork.NewFakeClock()
	r := round.New(clock, nil)
	r.AddShip(1, &board.Ship{Velocity: board.Vector3{X: 90, Y: -90, Z: 1}})

	// all at once
	clock.Advance(10 * time.Second)
	is.Equal(r.Tick(), uint32(1000))
	is.Equal(r.Board().Ships[1].Position, board.Vector3{X: 900, Y: -900, Z: 10})

	// one step at a time
	for i := 0; i < 100; i++ {
		clock.Advance(round.Timestep)
		is.Equal(r.Tick(), uint32(1))
	}
	is.Equal(r.Board().Ships[1].Position, board.Vector3{X: 990, Y: -990, Z: 11})
}

func TestSnapshot(t *testing.T) {
	is := is.New(t)

	r := round.New(clockwork.NewFakeClock(), nil)
	r.AddShip(1, board.ShipAtOrigin())
	r.AddShip(2, board.ShipAtOrigin())

	snapshot, err := r.Snapshot()
	is.NoErr(err)

	decoded := board.New()
	is.NoErr(decoded.UnmarshalBinary(snapshot))
	is.Equal(decoded, r.Board())
}

func TestRun(t *testing.T) {
	is := is.New(t)

	clock := clockwork.NewFakeClock()
	r := round.New(clock, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	is.NoErr(clock.BlockUntilContext(ctx, 1))
	clock.Advance(round.Timestep)

	for r.Board().Time == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("round did not tick")
		case <-time.After(time.Millisecond):
		}
	}
	is.Equal(r.Board().Time, board.Timestep(10))

	cancel()
	<-done
}
