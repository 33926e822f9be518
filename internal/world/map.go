package world

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/udisondev/levspool/internal/level"
)

// Map is the grid of regions of one level plus the global straddler list.
// It is not safe for concurrent use: the stream and the regions belong to
// one caller at a time.
type Map struct {
	ix      *Index
	rf      regionFormat
	layout  level.Layout
	stream  *level.Stream
	regions []*Region
	areas   []*Area

	// window holds the most recently spooled region of each barrel.
	window [Barrels]*Region

	textures TextureLoader
	registry ModelRegistry
}

// NewMap builds the region grid over an already parsed index.
func NewMap(s *level.Stream, layout level.Layout, ix *Index) (*Map, error) {
	if layout.Format != ix.Format {
		return nil, fmt.Errorf("layout format %s does not match index format %s", layout.Format, ix.Format)
	}
	rf, err := newRegionFormat(ix.Format)
	if err != nil {
		return nil, err
	}

	m := &Map{
		ix:      ix,
		rf:      rf,
		layout:  layout,
		stream:  s,
		regions: make([]*Region, ix.Grid.NumRegions()),
		areas:   make([]*Area, len(ix.Areas)),
	}
	across := ix.Grid.RegionsAcross()
	for i := range m.regions {
		x, z := int32(i)%across, int32(i)/across
		m.regions[i] = newRegion(x, z, i, ix, rf)
	}
	return m, nil
}

// LoadMap reads the map and spool-info lumps located by layout and builds
// the Map.
func LoadMap(s *level.Stream, layout level.Layout) (*Map, error) {
	mapLump, err := s.ReadSection(layout.Map)
	if err != nil {
		return nil, fmt.Errorf("reading map lump: %w", err)
	}
	spoolLump, err := s.ReadSection(layout.SpoolInfo)
	if err != nil {
		return nil, fmt.Errorf("reading spool info lump: %w", err)
	}
	ix, err := ParseIndex(layout.Format, mapLump, spoolLump)
	if err != nil {
		return nil, fmt.Errorf("parsing world index: %w", err)
	}
	m, err := NewMap(s, layout, ix)
	if err != nil {
		return nil, err
	}
	slog.Info("world index loaded",
		"format", layout.Format,
		"cellsAcross", ix.Grid.CellsAcross,
		"cellsDown", ix.Grid.CellsDown,
		"regions", ix.Grid.NumRegions(),
		"straddlers", ix.NumStraddlers(),
		"areas", len(ix.Areas))
	return m, nil
}

// SetTextureLoader installs the texture-page collaborator.
func (m *Map) SetTextureLoader(t TextureLoader) { m.textures = t }

// SetModelRegistry installs the collaborator that receives area models.
func (m *Map) SetModelRegistry(r ModelRegistry) { m.registry = r }

// Index returns the parsed world index.
func (m *Map) Index() *Index { return m.ix }

// Grid returns the world dimensions.
func (m *Map) Grid() Grid { return m.ix.Grid }

// NumRegions returns the number of region slots.
func (m *Map) NumRegions() int { return len(m.regions) }

// WorldToCell converts a world position to cell coordinates. The world is
// centred on the grid; positions outside it give out-of-range cells.
func (m *Map) WorldToCell(pos Vector) (cellX, cellZ int32) {
	g := m.ix.Grid
	cellX = floorDiv(pos.X+g.CellsAcross/2*g.CellSize, g.CellSize)
	cellZ = floorDiv(pos.Z+g.CellsDown/2*g.CellSize, g.CellSize)
	return cellX, cellZ
}

// CellToRegion returns the index of the region containing a cell. The
// cell must be inside the grid.
func (m *Map) CellToRegion(cellX, cellZ int32) int {
	g := m.ix.Grid
	return int(cellX/g.RegionSize + cellZ/g.RegionSize*g.RegionsAcross())
}

// CellAnchor returns the near-cell anchor: the world position of the
// centre of a cell, against which packed objects are delta-encoded.
func (m *Map) CellAnchor(cellX, cellZ int32) Vector {
	g := m.ix.Grid
	return Vector{
		X: (cellX-g.CellsAcross/2)*g.CellSize + g.CellSize/2,
		Z: (cellZ-g.CellsDown/2)*g.CellSize + g.CellSize/2,
	}
}

// ValidCell reports whether a cell lies inside the grid.
func (m *Map) ValidCell(cellX, cellZ int32) bool {
	g := m.ix.Grid
	return cellX >= 0 && cellX < g.CellsAcross && cellZ >= 0 && cellZ < g.CellsDown
}

// Region returns a region by index.
func (m *Map) Region(index int) (*Region, error) {
	if index < 0 || index >= len(m.regions) {
		return nil, fmt.Errorf("%w: %d of %d", ErrRegionOutOfRange, index, len(m.regions))
	}
	return m.regions[index], nil
}

// RegionAt returns the region containing a world position.
func (m *Map) RegionAt(pos Vector) (*Region, error) {
	cellX, cellZ := m.WorldToCell(pos)
	return m.CellRegion(cellX, cellZ)
}

// CellRegion returns the region containing a cell.
func (m *Map) CellRegion(cellX, cellZ int32) (*Region, error) {
	if !m.ValidCell(cellX, cellZ) {
		return nil, fmt.Errorf("%w: cell (%d, %d)", ErrRegionOutOfRange, cellX, cellZ)
	}
	return m.regions[m.CellToRegion(cellX, cellZ)], nil
}

// SpoolRegion loads a region if it is not loaded yet.
func (m *Map) SpoolRegion(index int) error {
	r, err := m.Region(index)
	if err != nil {
		return err
	}
	return m.spool(r)
}

// SpoolRegionAt loads the region containing a world position.
func (m *Map) SpoolRegionAt(pos Vector) error {
	r, err := m.RegionAt(pos)
	if err != nil {
		return err
	}
	return m.spool(r)
}

// SpoolCell loads the region containing a cell.
func (m *Map) SpoolCell(cellX, cellZ int32) error {
	r, err := m.CellRegion(cellX, cellZ)
	if err != nil {
		return err
	}
	return m.spool(r)
}

func (m *Map) spool(r *Region) error {
	if r.loaded {
		return nil
	}

	sp, ok, err := m.ix.Spool(r.number)
	if err != nil {
		return err
	}
	if !ok {
		r.markEmpty()
		m.window[r.barrel] = r
		slog.Debug("region has no spool data", "region", r.number)
		return nil
	}

	if err := r.Load(m.stream, sp, m.layout.Spool.Offset); err != nil {
		return fmt.Errorf("spooling region %d: %w", r.number, err)
	}
	m.window[r.barrel] = r

	if err := m.loadRegionAreas(r.number, sp); err != nil {
		m.unload(r)
		return err
	}
	return nil
}

// loadRegionAreas loads the super-region and connected areas of a region.
// Missing or malformed areas only cost their textures and models.
func (m *Map) loadRegionAreas(region int, sp SpoolRecord) error {
	var areas []uint8
	if sp.SuperRegion != NoSuperRegion {
		areas = append(areas, sp.SuperRegion)
	}
	for i := range min(int(sp.NumConnectedAreas), len(sp.ConnectedAreas)) {
		if a := sp.ConnectedAreas[i]; a != sp.SuperRegion {
			areas = append(areas, a)
		}
	}

	for _, a := range areas {
		err := m.loadArea(a)
		switch {
		case err == nil:
		case errors.Is(err, ErrUnresolvedArea), errors.Is(err, ErrMalformedArea):
			slog.Warn("area unavailable", "region", region, "area", a, "err", err)
		default:
			return fmt.Errorf("loading area %d for region %d: %w", a, region, err)
		}
	}
	return nil
}

// UnloadRegion releases a region's storage. No cell iteration may be in
// flight over it.
func (m *Map) UnloadRegion(index int) error {
	r, err := m.Region(index)
	if err != nil {
		return err
	}
	m.unload(r)
	return nil
}

// unload releases r and hands its barrel's window slot to another loaded
// region of the same barrel, if there is one.
func (m *Map) unload(r *Region) {
	r.Unload()
	if m.window[r.barrel] != r {
		return
	}
	m.window[r.barrel] = nil
	for _, other := range m.regions {
		if other.loaded && other.barrel == r.barrel {
			m.window[r.barrel] = other
			return
		}
	}
}

// UpdateWindow spools the 2×2 block of regions around the region corner
// nearest to pos and unloads every other region.
func (m *Map) UpdateWindow(pos Vector) error {
	cellX, cellZ := m.WorldToCell(pos)
	if !m.ValidCell(cellX, cellZ) {
		return fmt.Errorf("%w: position %+v", ErrRegionOutOfRange, pos)
	}
	g := m.ix.Grid
	rx, rz := cellX/g.RegionSize, cellZ/g.RegionSize
	nx, nz := rx+1, rz+1
	if cellX%g.RegionSize < g.RegionSize/2 {
		nx = rx - 1
	}
	if cellZ%g.RegionSize < g.RegionSize/2 {
		nz = rz - 1
	}

	keep := make(map[int]bool, Barrels)
	for _, x := range [2]int32{rx, nx} {
		for _, z := range [2]int32{rz, nz} {
			if x < 0 || x >= g.RegionsAcross() || z < 0 || z >= g.RegionsDown() {
				continue
			}
			keep[int(x+z*g.RegionsAcross())] = true
		}
	}

	for _, r := range m.regions {
		if r.loaded && !keep[r.number] {
			if err := m.UnloadRegion(r.number); err != nil {
				return err
			}
		}
	}
	for _, index := range slices.Sorted(maps.Keys(keep)) {
		if err := m.SpoolRegion(index); err != nil {
			return err
		}
	}
	return nil
}

// LoadedRegions returns the indices of loaded regions in ascending order.
func (m *Map) LoadedRegions() []int {
	var out []int
	for _, r := range m.regions {
		if r.loaded {
			out = append(out, r.number)
		}
	}
	return out
}

// Area returns a cached area, or nil if it was never loaded.
func (m *Map) Area(index uint8) *Area {
	if int(index) >= len(m.areas) {
		return nil
	}
	return m.areas[index]
}

// resolveCellSlot maps a global cell-data slot to the region holding it.
// Slots inside from's own barrel stay in from.
func (m *Map) resolveCellSlot(from *Region, global uint16) (*Region, int, error) {
	g := int32(global)
	for b := range Barrels {
		lo, hi := m.ix.CellSlotBase[b], m.ix.CellSlotBase[b+1]
		if g < lo || g >= hi {
			continue
		}
		r := from
		if b != from.barrel {
			r = m.window[b]
		}
		if r == nil || !r.loaded {
			return nil, 0, fmt.Errorf("%w: slot %d in barrel %d", ErrChainBroken, global, b)
		}
		return r, int(g - lo), nil
	}
	return nil, 0, fmt.Errorf("%w: slot %d outside every barrel", ErrChainBroken, global)
}

func floorDiv(a, b int32) int32 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
