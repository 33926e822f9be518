package world

import (
	"fmt"
	"iter"
	"log/slog"
)

// CellIterator walks the placed objects of one cell, following the
// cell-data chain and skipping tombstones. It only reads region state, so
// several iterators may share a region. The regions it walks must stay
// loaded while it is in use.
type CellIterator struct {
	m      *Map
	region *Region // owner of the current cell-data entry
	slot   int
	entry  cellEntry
	anchor Vector
	obj    PlacedObject
	err    error
}

// First positions an iterator on the first live object of a cell. ok is
// false when the cell is out of range, its region is not loaded, the cell
// has no data, or every object in it is a tombstone. A cell whose first
// object cannot be resolved is logged and reported as having none.
func First(m *Map, cellX, cellZ int32) (it *CellIterator, ok bool) {
	r, err := m.CellRegion(cellX, cellZ)
	if err != nil || r.pointers == nil {
		return nil, false
	}
	g := m.ix.Grid
	local := int((cellZ%g.RegionSize)*g.RegionSize + cellX%g.RegionSize)
	ptr := r.cellPointer(local)
	if ptr == EmptyPointer {
		return nil, false
	}

	it = &CellIterator{
		m:      m,
		region: r,
		slot:   int(ptr),
		anchor: m.CellAnchor(cellX, cellZ),
	}
	entry, found := r.cellEntry(it.slot)
	if !found {
		return nil, false
	}
	it.entry = entry

	obj, tombstone, err := it.resolve()
	if err != nil {
		slog.Warn("cell object not resolved", "region", r.number, "cellX", cellX, "cellZ", cellZ, "err", err)
		return nil, false
	}
	if tombstone {
		if obj, ok = it.Next(); !ok {
			if it.err != nil {
				slog.Warn("cell chain cut short", "region", r.number, "cellX", cellX, "cellZ", cellZ, "err", it.err)
			}
			return nil, false
		}
	}
	it.obj = obj
	return it, true
}

// Object returns the current object.
func (it *CellIterator) Object() PlacedObject {
	return it.obj
}

// Next advances to the next live object of the cell.
func (it *CellIterator) Next() (PlacedObject, bool) {
	for it.advance() {
		obj, tombstone, err := it.resolve()
		if err != nil {
			it.err = err
			return PlacedObject{}, false
		}
		if !tombstone {
			it.obj = obj
			return obj, true
		}
	}
	return PlacedObject{}, false
}

// Err returns the error that ended iteration early, if any.
func (it *CellIterator) Err() error {
	return it.err
}

// advance steps to the next cell-data entry of the chain.
func (it *CellIterator) advance() bool {
	if it.err != nil || it.entry.isEnd() {
		return false
	}

	if it.m.rf.linked {
		if it.entry.next == NoNextCell {
			return false
		}
		r, slot, err := it.m.resolveCellSlot(it.region, it.entry.next)
		if err != nil {
			it.err = err
			return false
		}
		it.region, it.slot = r, slot
	} else {
		it.slot++
	}

	entry, ok := it.region.cellEntry(it.slot)
	if !ok {
		it.err = fmt.Errorf("%w: slot %d of region %d", ErrChainBroken, it.slot, it.region.number)
		return false
	}
	if entry.isEmpty() {
		return false
	}
	it.entry = entry
	return true
}

// resolve decodes the object named by the current entry.
func (it *CellIterator) resolve() (PlacedObject, bool, error) {
	global := it.region.globalObjectIndex(it.entry.slot())
	rec, err := it.region.Record(global)
	if err != nil {
		return PlacedObject{}, false, err
	}
	obj, tombstone := it.m.rf.decodeObject(rec, it.anchor)
	return obj, tombstone, nil
}

// CellObjects iterates the live objects of a cell. The cell's region must
// already be spooled.
func (m *Map) CellObjects(cellX, cellZ int32) iter.Seq[PlacedObject] {
	return func(yield func(PlacedObject) bool) {
		it, ok := First(m, cellX, cellZ)
		if !ok {
			return
		}
		for obj := it.Object(); ok; obj, ok = it.Next() {
			if !yield(obj) {
				return
			}
		}
	}
}
