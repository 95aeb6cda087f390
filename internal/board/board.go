// Package board holds the authoritative game state that the server
// snapshots and the clients render.
package board

import (
	"encoding"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/blukai/pewpew/internal/zigzag"
)

type (
	PlayerID uint8
	Timestep uint32 // milliseconds
)

// Vector3 is in fixed point: millimetres for positions, mm/s for velocities.
type Vector3 struct {
	X, Y, Z int32
}

func (v Vector3) Add(o Vector3) Vector3 {
	return Vector3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

func appendVector3(dst []byte, v Vector3) []byte {
	dst = zigzag.AppendVarint32(dst, v.X)
	dst = zigzag.AppendVarint32(dst, v.Y)
	return zigzag.AppendVarint32(dst, v.Z)
}

type Ship struct {
	Position Vector3
	Velocity Vector3
	Heading  int32 // milliradians
}

func ShipAtOrigin() *Ship {
	return &Ship{
		Velocity: Vector3{X: 1000},
	}
}

type Board struct {
	Ships map[PlayerID]*Ship
	Time  Timestep
}

var (
	_ encoding.BinaryMarshaler   = (*Board)(nil)
	_ encoding.BinaryUnmarshaler = (*Board)(nil)
)

func New() *Board {
	return &Board{
		Ships: make(map[PlayerID]*Ship),
	}
}

func (b *Board) AddShip(player PlayerID, ship *Ship) {
	b.Ships[player] = ship
}

func (b *Board) Advance(ms uint32) {
	b.Time += Timestep(ms)
}

// Players returns the ids of all players on the board in ascending order.
func (b *Board) Players() []PlayerID {
	players := make([]PlayerID, 0, len(b.Ships))
	for player := range b.Ships {
		players = append(players, player)
	}
	slices.Sort(players)
	return players
}

func (b *Board) Clone() *Board {
	clone := &Board{
		Ships: make(map[PlayerID]*Ship, len(b.Ships)),
		Time:  b.Time,
	}
	for player, ship := range b.Ships {
		tmp := *ship
		clone.Ships[player] = &tmp
	}
	return clone
}

// MarshalBinary encodes the board as
//
//	uvarint time | uvarint ship count | ships ordered by player id
//
// where a ship is its player id byte followed by position, velocity (3
// zigzag varints each) and heading (1 zigzag varint). Equal boards always
// encode to equal bytes.
func (b *Board) MarshalBinary() ([]byte, error) {
	data := make([]byte, 0, 2*binary.MaxVarintLen32+len(b.Ships)*(1+7*binary.MaxVarintLen32))

	data = binary.AppendUvarint(data, uint64(b.Time))
	data = binary.AppendUvarint(data, uint64(len(b.Ships)))
	for _, player := range b.Players() {
		ship := b.Ships[player]
		data = append(data, byte(player))
		data = appendVector3(data, ship.Position)
		data = appendVector3(data, ship.Velocity)
		data = zigzag.AppendVarint32(data, ship.Heading)
	}

	return data, nil
}

var errShortBuffer = errors.New("short buffer")

type decoder struct {
	data []byte
	err  error
}

func (d *decoder) uvarint32() uint32 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.data)
	if n <= 0 || v > 0xffffffff {
		d.err = fmt.Errorf("could not read uvarint: %w", errShortBuffer)
		return 0
	}
	d.data = d.data[n:]
	return uint32(v)
}

func (d *decoder) varint32() int32 {
	if d.err != nil {
		return 0
	}
	v, n, err := zigzag.Varint32(d.data)
	if err != nil {
		d.err = fmt.Errorf("could not read varint: %w", err)
		return 0
	}
	d.data = d.data[n:]
	return v
}

func (d *decoder) readByte() byte {
	if d.err != nil {
		return 0
	}
	if len(d.data) == 0 {
		d.err = fmt.Errorf("could not read byte: %w", errShortBuffer)
		return 0
	}
	v := d.data[0]
	d.data = d.data[1:]
	return v
}

func (d *decoder) vector3() Vector3 {
	return Vector3{X: d.varint32(), Y: d.varint32(), Z: d.varint32()}
}

func (b *Board) UnmarshalBinary(data []byte) error {
	d := &decoder{data: data}

	time := Timestep(d.uvarint32())
	count := d.uvarint32()
	if d.err == nil && int(count) > len(d.data) {
		// every ship takes at least 8 bytes; don't let a bogus count
		// size the map.
		return fmt.Errorf("could not unmarshal board: ship count %d exceeds payload", count)
	}

	ships := make(map[PlayerID]*Ship, count)
	for i := uint32(0); i < count && d.err == nil; i++ {
		player := PlayerID(d.readByte())
		ship := &Ship{
			Position: d.vector3(),
			Velocity: d.vector3(),
			Heading:  d.varint32(),
		}
		if _, ok := ships[player]; ok && d.err == nil {
			return fmt.Errorf("could not unmarshal board: duplicate player %d", player)
		}
		ships[player] = ship
	}
	if d.err != nil {
		return fmt.Errorf("could not unmarshal board: %w", d.err)
	}
	if len(d.data) != 0 {
		return fmt.Errorf("could not unmarshal board: %d trailing bytes", len(d.data))
	}

	b.Time = time
	b.Ships = ships
	return nil
}
