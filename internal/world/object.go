package world

import (
	"encoding/binary"
	"fmt"
)

// Vector is an integer world position (fixed point, one unit per step).
type Vector struct {
	X, Y, Z int32
}

// PlacedObject is a decoded object instance.
type PlacedObject struct {
	Position Vector
	Heading  uint8  // 0..63 over a full turn
	Type     uint16 // index into the model table
}

// PackedObject is the 8-byte on-disk form. X and Z are deltas from the
// near-cell anchor; the low bit of Y is the 11th bit of the type.
type PackedObject struct {
	X, Y, Z  uint16
	Combined uint16
}

// IsTombstone reports whether the slot was deleted.
func (p PackedObject) IsTombstone() bool {
	return p.Combined == 0xFFFF && p.Y&1 == 1
}

// Unpack decodes p relative to anchor.
func (p PackedObject) Unpack(anchor Vector) PlacedObject {
	return PlacedObject{
		Position: Vector{
			X: anchor.X + int32(int16(p.X)),
			Y: int32(int16(p.Y)) >> 1,
			Z: anchor.Z + int32(int16(p.Z)),
		},
		Heading: uint8(p.Combined & 0x3F),
		Type:    p.Combined>>6 | (p.Y&1)<<10,
	}
}

// Pack encodes o relative to anchor. Horizontal deltas must fit in 16 bits,
// Y in 15 bits and the type in 11 bits.
func Pack(o PlacedObject, anchor Vector) (PackedObject, error) {
	dx := o.Position.X - anchor.X
	dz := o.Position.Z - anchor.Z
	if dx < -32768 || dx > 32767 || dz < -32768 || dz > 32767 {
		return PackedObject{}, fmt.Errorf("pack object: delta (%d, %d) out of range", dx, dz)
	}
	if o.Position.Y < -16384 || o.Position.Y > 16383 {
		return PackedObject{}, fmt.Errorf("pack object: y %d out of range", o.Position.Y)
	}
	if o.Type >= 1<<11 {
		return PackedObject{}, fmt.Errorf("pack object: type %d out of range", o.Type)
	}
	if o.Heading >= HeadingSteps {
		return PackedObject{}, fmt.Errorf("pack object: heading %d out of range", o.Heading)
	}
	return PackedObject{
		X:        uint16(int16(dx)),
		Y:        uint16(int16(o.Position.Y))<<1 | (o.Type>>10)&1,
		Z:        uint16(int16(dz)),
		Combined: uint16(o.Heading) | (o.Type&0x3FF)<<6,
	}, nil
}

// DecodePacked reads one packed record.
func DecodePacked(b []byte) PackedObject {
	return PackedObject{
		X:        binary.LittleEndian.Uint16(b[0:]),
		Y:        binary.LittleEndian.Uint16(b[2:]),
		Z:        binary.LittleEndian.Uint16(b[4:]),
		Combined: binary.LittleEndian.Uint16(b[6:]),
	}
}

// AppendPacked appends the on-disk form of p.
func AppendPacked(b []byte, p PackedObject) []byte {
	b = binary.LittleEndian.AppendUint16(b, p.X)
	b = binary.LittleEndian.AppendUint16(b, p.Y)
	b = binary.LittleEndian.AppendUint16(b, p.Z)
	return binary.LittleEndian.AppendUint16(b, p.Combined)
}

// DecodeDirect reads one 16-byte direct record.
// Layout: i32 x, i32 y, i32 z, u8 pad, u8 heading, u16 type.
func DecodeDirect(b []byte) PlacedObject {
	return PlacedObject{
		Position: Vector{
			X: int32(binary.LittleEndian.Uint32(b[0:])),
			Y: int32(binary.LittleEndian.Uint32(b[4:])),
			Z: int32(binary.LittleEndian.Uint32(b[8:])),
		},
		Heading: b[13] & 0x3F,
		Type:    binary.LittleEndian.Uint16(b[14:]),
	}
}

// AppendDirect appends the 16-byte direct form of o.
func AppendDirect(b []byte, o PlacedObject) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(o.Position.X))
	b = binary.LittleEndian.AppendUint32(b, uint32(o.Position.Y))
	b = binary.LittleEndian.AppendUint32(b, uint32(o.Position.Z))
	b = append(b, 0, o.Heading)
	return binary.LittleEndian.AppendUint16(b, o.Type)
}
