package world

import (
	"encoding/binary"
	"fmt"

	"github.com/udisondev/levspool/internal/level"
)

// Span is a byte range in the container.
type Span struct {
	Offset int64
	Size   int64
}

// Segments locates every block of one region's spooled data.
type Segments struct {
	PVS          Span
	RoadMap      Span
	RoadHeights  Span
	CellPointers Span
	CellData     Span
	Objects      Span
}

// cellEntry is one decoded cell-data entry.
type cellEntry struct {
	num  uint16
	next uint16 // linked layout only
}

func (e cellEntry) slot() uint16 { return e.num & cellSlotMask }
func (e cellEntry) isEnd() bool  { return e.num&cellEndFlag != 0 }
func (e cellEntry) isEmpty() bool {
	return e.num&cellEmptyFlag != 0
}

// regionFormat captures everything that differs between container
// generations. It is a closed set selected once per Map.
type regionFormat struct {
	format    level.Format
	packed    bool // 8-byte packed objects vs 16-byte direct
	linked    bool // explicit next pointers vs array-order chains
	entrySize int
	objSize   int
}

func newRegionFormat(f level.Format) (regionFormat, error) {
	switch f {
	case level.FormatLegacy:
		return regionFormat{format: f, linked: true, entrySize: linkedCellEntrySize, objSize: DirectObjectSize}, nil
	case level.FormatPreRelease, level.FormatRetail:
		return regionFormat{format: f, packed: true, entrySize: compactCellEntrySize, objSize: PackedObjectSize}, nil
	default:
		return regionFormat{}, fmt.Errorf("unsupported level format %s", f)
	}
}

// segments computes where a region's blocks live. base is the absolute
// offset of the spool section.
func (rf regionFormat) segments(sp SpoolRecord, base int64) Segments {
	offset := base + int64(sp.Offset)*level.SectorSize
	take := func(sectors uint8) Span {
		s := Span{Offset: offset, Size: int64(sectors) * level.SectorSize}
		offset += s.Size
		return s
	}

	var seg Segments
	seg.PVS = take(sp.PVSSize)
	switch rf.format {
	case level.FormatRetail:
		seg.RoadMap = take(sp.RoadMapSize)
		seg.CellPointers = take(sp.CellDataSize[0])
		seg.CellData = take(sp.CellDataSize[1])
		seg.Objects = take(sp.CellDataSize[2])
		seg.RoadHeights = take(sp.RoadHeightSize)
	case level.FormatPreRelease:
		seg.RoadMap = take(sp.RoadMapSize)
		seg.RoadHeights = take(sp.RoadHeightSize)
		seg.CellPointers = take(sp.CellDataSize[0])
		seg.CellData = take(sp.CellDataSize[1])
		seg.Objects = take(sp.CellDataSize[2])
	default:
		seg.CellPointers = take(sp.CellDataSize[0])
		seg.CellData = take(sp.CellDataSize[1])
		seg.Objects = take(sp.CellDataSize[2])
		seg.RoadMap = take(sp.RoadMapSize)
		seg.RoadHeights = take(sp.RoadHeightSize)
	}
	return seg
}

// decodeCellData splits a raw cell-data blob into entries.
func (rf regionFormat) decodeCellData(data []byte) []cellEntry {
	n := len(data) / rf.entrySize
	entries := make([]cellEntry, n)
	for i := range entries {
		b := data[i*rf.entrySize:]
		entries[i].num = binary.LittleEndian.Uint16(b)
		if rf.linked {
			entries[i].next = binary.LittleEndian.Uint16(b[2:])
		} else {
			entries[i].next = NoNextCell
		}
	}
	return entries
}

// decodeObject decodes one object record. The second result is true for
// tombstoned slots.
func (rf regionFormat) decodeObject(rec []byte, anchor Vector) (PlacedObject, bool) {
	if rf.packed {
		p := DecodePacked(rec)
		if p.IsTombstone() {
			return PlacedObject{}, true
		}
		return p.Unpack(anchor), false
	}
	return DecodeDirect(rec), false
}

// RegionSegments locates the blocks of a region for a container format.
// base is the absolute offset of the spool section.
func RegionSegments(f level.Format, sp SpoolRecord, base int64) (Segments, error) {
	rf, err := newRegionFormat(f)
	if err != nil {
		return Segments{}, err
	}
	return rf.segments(sp, base), nil
}

// End returns the first byte offset past the span.
func (s Span) End() int64 {
	return s.Offset + s.Size
}
