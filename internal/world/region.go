package world

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	"github.com/udisondev/levspool/internal/level"
)

// StraddlerList is the ObjectRef.Region value for the global straddler list.
const StraddlerList = -1

// ObjectRef addresses one object record: a buffer (a region number or
// StraddlerList) and an index into it.
type ObjectRef struct {
	Region int
	Index  int
}

// Region is one tile of the world grid. It is created once by its Map and
// loaded and unloaded repeatedly.
type Region struct {
	x, z   int32
	number int
	barrel int
	ix     *Index
	rf     regionFormat

	loaded       bool
	spool        SpoolRecord
	segments     Segments
	pointers     []uint16 // regionSize² cell-data slots or EmptyPointer
	pointerCount int
	cells        []cellEntry
	objects      []byte // raw object records
}

func newRegion(x, z int32, number int, ix *Index, rf regionFormat) *Region {
	return &Region{
		x:      x,
		z:      z,
		number: number,
		barrel: barrelOf(x, z),
		ix:     ix,
		rf:     rf,
	}
}

// barrelOf returns the quadrant address space of a region.
func barrelOf(x, z int32) int {
	return int(x&1) + int(z&1)*2
}

// X returns the region column.
func (r *Region) X() int32 { return r.x }

// Z returns the region row.
func (r *Region) Z() int32 { return r.z }

// Number returns the region index.
func (r *Region) Number() int { return r.number }

// Barrel returns the quadrant address space (0..3).
func (r *Region) Barrel() int { return r.barrel }

// IsLoaded reports whether the region has been spooled in.
func (r *Region) IsLoaded() bool { return r.loaded }

// IsEmpty reports whether the region has no cell data to iterate.
func (r *Region) IsEmpty() bool { return r.pointerCount == 0 }

// PointerCount returns how many cells carry data, as reported by the
// cell-pointer decoder.
func (r *Region) PointerCount() int { return r.pointerCount }

// Spool returns the spool record the region was loaded from.
func (r *Region) Spool() SpoolRecord { return r.spool }

// Segments returns the located blocks of the region. PVS and road-map
// contents are not interpreted.
func (r *Region) Segments() Segments { return r.segments }

// NumObjects returns the number of object records owned by the region.
func (r *Region) NumObjects() int { return len(r.objects) / r.rf.objSize }

// NumCellEntries returns the number of cell-data entries.
func (r *Region) NumCellEntries() int { return len(r.cells) }

// Load reads the region's blocks from s. base is the absolute offset of the
// spool section. An unrecognised cell-pointer encoding is logged and leaves
// the region loaded without objects; stream errors leave it unloaded.
func (r *Region) Load(s *level.Stream, sp SpoolRecord, base int64) error {
	seg := r.rf.segments(sp, base)

	blob, err := s.ReadAt(seg.CellPointers.Offset, int(seg.CellPointers.Size))
	if err != nil {
		return fmt.Errorf("reading cell pointers of region %d: %w", r.number, err)
	}

	r.spool = sp
	r.segments = seg
	r.pointers = make([]uint16, r.ix.Grid.RegionCells())
	n, err := DecodeCellPointers(blob, r.pointers, 0)
	if err != nil {
		slog.Warn("region cell pointers not decoded", "region", r.number, "err", err)
		r.pointerCount = 0
		r.loaded = true
		return nil
	}
	r.pointerCount = n

	cellData, err := s.ReadAt(seg.CellData.Offset, int(seg.CellData.Size))
	if err != nil {
		r.Unload()
		return fmt.Errorf("reading cell data of region %d: %w", r.number, err)
	}
	r.cells = r.rf.decodeCellData(cellData)

	objects, err := s.ReadAt(seg.Objects.Offset, int(seg.Objects.Size))
	if err != nil {
		r.Unload()
		return fmt.Errorf("reading objects of region %d: %w", r.number, err)
	}
	r.objects = objects[:len(objects)/r.rf.objSize*r.rf.objSize]

	r.loaded = true
	slog.Debug("region loaded",
		"region", r.number,
		"cells", r.pointerCount,
		"cellEntries", len(r.cells),
		"objects", r.NumObjects())
	return nil
}

// markEmpty loads a region that has no spool data.
func (r *Region) markEmpty() {
	r.Unload()
	r.loaded = true
}

// Unload releases the decoded storage.
func (r *Region) Unload() {
	r.pointers = nil
	r.pointerCount = 0
	r.cells = nil
	r.objects = nil
	r.spool = SpoolRecord{}
	r.segments = Segments{}
	r.loaded = false
}

// cellPointer returns the cell-data slot of a local cell.
func (r *Region) cellPointer(local int) uint16 {
	if local < 0 || local >= len(r.pointers) {
		return EmptyPointer
	}
	return r.pointers[local]
}

// cellEntry returns a cell-data entry by local slot.
func (r *Region) cellEntry(slot int) (cellEntry, bool) {
	if slot < 0 || slot >= len(r.cells) {
		return cellEntry{}, false
	}
	return r.cells[slot], true
}

// globalObjectIndex turns the object slot of a cell-data entry owned by this
// region into a global object index.
func (r *Region) globalObjectIndex(slot uint16) int {
	if int(slot) < r.ix.numStraddlers {
		return int(slot)
	}
	return int(r.ix.CellObjectBase[r.barrel]) + int(slot)
}

// ObjectRef resolves a global object index to the straddler list or to this
// region's own object array.
func (r *Region) ObjectRef(global int) (ObjectRef, error) {
	if global < 0 {
		return ObjectRef{}, fmt.Errorf("object index %d is negative", global)
	}
	if global < r.ix.numStraddlers {
		return ObjectRef{Region: StraddlerList, Index: global}, nil
	}
	local := global - int(r.ix.CellObjectBase[r.barrel]) - r.ix.numStraddlers
	if local < 0 || local >= r.NumObjects() {
		return ObjectRef{}, fmt.Errorf("object index %d outside region %d (barrel %d, %d objects)",
			global, r.number, r.barrel, r.NumObjects())
	}
	return ObjectRef{Region: r.number, Index: local}, nil
}

// Record returns the raw on-disk record of a global object index.
func (r *Region) Record(global int) ([]byte, error) {
	ref, err := r.ObjectRef(global)
	if err != nil {
		return nil, err
	}
	if ref.Region == StraddlerList {
		return r.ix.straddler(ref.Index), nil
	}
	size := r.rf.objSize
	return r.objects[ref.Index*size : (ref.Index+1)*size], nil
}

// WriteTo writes the loaded contents of the region: its spool record, the
// decoded pointer table, the cell-data entries and the raw object records.
// Two regions with equal output decode to the same placements.
func (r *Region) WriteTo(w io.Writer) (int64, error) {
	buf := AppendSpoolRecord(nil, r.spool)
	for _, p := range r.pointers {
		buf = binary.LittleEndian.AppendUint16(buf, p)
	}
	for _, e := range r.cells {
		buf = binary.LittleEndian.AppendUint16(buf, e.num)
		buf = binary.LittleEndian.AppendUint16(buf, e.next)
	}
	buf = append(buf, r.objects...)
	n, err := w.Write(buf)
	return int64(n), err
}
