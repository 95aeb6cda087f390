package board_test

import (
	"testing"

	"github.com/blukai/pewpew/internal/board"
	"github.com/matryer/is"
)

func TestSerialization(t *testing.T) {
	is := is.New(t)

	b := board.New()
	b.AddShip(1, board.ShipAtOrigin())
	b.AddShip(2, &board.Ship{
		Position: board.Vector3{X: -1500, Y: 20, Z: 1 << 30},
		Velocity: board.Vector3{Y: -3},
		Heading:  3141,
	})
	b.Advance(25)

	encoded, err := b.MarshalBinary()
	is.NoErr(err)

	decoded := board.New()
	is.NoErr(decoded.UnmarshalBinary(encoded))
	is.Equal(decoded, b)
}

func TestSerializationDeterministic(t *testing.T) {
	is := is.New(t)

	a := board.New()
	b := board.New()
	for player := board.PlayerID(0); player < 32; player++ {
		a.AddShip(player, board.ShipAtOrigin())
		b.AddShip(31-player, board.ShipAtOrigin())
	}

	aBytes, err := a.MarshalBinary()
	is.NoErr(err)
	bBytes, err := b.MarshalBinary()
	is.NoErr(err)
	is.Equal(aBytes, bBytes)
}

func TestEmptyBoard(t *testing.T) {
	is := is.New(t)

	encoded, err := board.New().MarshalBinary()
	is.NoErr(err)
	is.Equal(encoded, []byte{0, 0})
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	is := is.New(t)

	b := board.New()
	b.AddShip(7, board.ShipAtOrigin())
	encoded, err := b.MarshalBinary()
	is.NoErr(err)

	is.True(board.New().UnmarshalBinary(encoded[:len(encoded)-1]) != nil)
	is.True(board.New().UnmarshalBinary(append(encoded, 0)) != nil)
	is.True(board.New().UnmarshalBinary([]byte{0, 200}) != nil)
	is.True(board.New().UnmarshalBinary(nil) != nil)
}

func TestAdvance(t *testing.T) {
	is := is.New(t)

	b := board.New()
	is.Equal(b.Time, board.Timestep(0))
	b.Advance(25)
	is.Equal(b.Time, board.Timestep(25))
	b.Advance(10)
	is.Equal(b.Time, board.Timestep(35))
}

func TestClone(t *testing.T) {
	is := is.New(t)

	b := board.New()
	b.AddShip(1, board.ShipAtOrigin())
	clone := b.Clone()
	clone.Ships[1].Position.X = 99

	is.Equal(b.Ships[1].Position.X, int32(0))
	is.Equal(b.Players(), []board.PlayerID{1})
}
