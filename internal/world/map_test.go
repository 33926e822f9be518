package world_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/levspool/internal/level"
	"github.com/udisondev/levspool/internal/testutil"
	"github.com/udisondev/levspool/internal/world"
)

func populatedRegion(t *testing.T) testutil.LevelRegion {
	return testutil.LevelRegion{
		Pointers: testutil.SinglePointer(t, regionCells, 0, 0),
		CellData: testutil.CompactCells(0x8000),
		Objects:  testutil.PackedObjects(world.PackedObject{Combined: 1}),
	}
}

func TestMapCoordinates(t *testing.T) {
	m, _ := openMap(t, &testutil.Level{Format: level.FormatRetail, Grid: smallGrid()})

	tests := []struct {
		name         string
		pos          world.Vector
		cellX, cellZ int32
		region       int
	}{
		{"world origin", world.Vector{}, 4, 4, 3},
		{"grid corner", world.Vector{X: -4096, Z: -4096}, 0, 0, 0},
		{"just below origin", world.Vector{X: -1, Z: -1}, 3, 3, 0},
		{"top right", world.Vector{X: 4095, Z: -4096}, 7, 0, 1},
		{"bottom left", world.Vector{X: -4096, Z: 1024}, 0, 5, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cx, cz := m.WorldToCell(tt.pos)
			assert.Equal(t, tt.cellX, cx)
			assert.Equal(t, tt.cellZ, cz)
			assert.Equal(t, tt.region, m.CellToRegion(cx, cz))

			r, err := m.RegionAt(tt.pos)
			require.NoError(t, err)
			assert.Equal(t, tt.region, r.Number())
		})
	}

	cx, cz := m.WorldToCell(world.Vector{X: -4097})
	assert.Equal(t, int32(-1), cx)
	assert.Equal(t, int32(4), cz)
	_, err := m.RegionAt(world.Vector{X: -4097})
	assert.ErrorIs(t, err, world.ErrRegionOutOfRange)
	_, err = m.RegionAt(world.Vector{Z: 4096})
	assert.ErrorIs(t, err, world.ErrRegionOutOfRange)
}

func TestMapCellAnchor(t *testing.T) {
	m, _ := openMap(t, &testutil.Level{Format: level.FormatRetail, Grid: smallGrid()})

	a := m.CellAnchor(1, 1)
	assert.Equal(t, world.Vector{X: -2560, Z: -2560}, a)

	cx, cz := m.WorldToCell(a)
	assert.Equal(t, int32(1), cx)
	assert.Equal(t, int32(1), cz)
}

func TestMapRegionOutOfRange(t *testing.T) {
	m, s := openMap(t, &testutil.Level{Format: level.FormatRetail, Grid: smallGrid()})
	reads := s.Reads()

	for _, idx := range []int{-1, 4, 100} {
		_, err := m.Region(idx)
		assert.ErrorIs(t, err, world.ErrRegionOutOfRange)
		assert.ErrorIs(t, m.SpoolRegion(idx), world.ErrRegionOutOfRange)
		assert.ErrorIs(t, m.UnloadRegion(idx), world.ErrRegionOutOfRange)
	}
	assert.ErrorIs(t, m.SpoolCell(8, 0), world.ErrRegionOutOfRange)
	assert.Equal(t, reads, s.Reads())
}

func TestMapSpoolIsIdempotent(t *testing.T) {
	l := &testutil.Level{
		Format:  level.FormatRetail,
		Grid:    smallGrid(),
		Regions: map[int]testutil.LevelRegion{0: populatedRegion(t)},
	}
	m, s := openMap(t, l)

	before := s.Reads()
	require.NoError(t, m.SpoolRegionAt(world.Vector{X: -4000, Z: -4000}))
	first := s.Reads()
	assert.Equal(t, before+3, first)

	require.NoError(t, m.SpoolRegionAt(world.Vector{X: -100, Z: -100}))
	require.NoError(t, m.SpoolRegion(0))
	require.NoError(t, m.SpoolCell(2, 3))
	assert.Equal(t, first, s.Reads())
	assert.Equal(t, []int{0}, m.LoadedRegions())
}

func TestMapEmptyRegion(t *testing.T) {
	l := &testutil.Level{
		Format:  level.FormatRetail,
		Grid:    smallGrid(),
		Regions: map[int]testutil.LevelRegion{0: populatedRegion(t)},
	}
	m, s := openMap(t, l)
	reads, seeks := s.Reads(), s.Seeks()

	require.NoError(t, m.SpoolRegion(3))
	r, err := m.Region(3)
	require.NoError(t, err)
	assert.True(t, r.IsLoaded())
	assert.True(t, r.IsEmpty())

	for x := int32(4); x < 8; x++ {
		for z := int32(4); z < 8; z++ {
			_, ok := world.First(m, x, z)
			assert.False(t, ok, "cell (%d, %d)", x, z)
			assert.Empty(t, collect(m, x, z))
		}
	}
	assert.Equal(t, reads, s.Reads())
	assert.Equal(t, seeks, s.Seeks())
}

func TestMapUpdateWindow(t *testing.T) {
	l := &testutil.Level{
		Format: level.FormatRetail,
		Grid:   world.Grid{CellSize: 1024, CellsAcross: 12, CellsDown: 12, RegionSize: 4},
		Regions: map[int]testutil.LevelRegion{
			0: populatedRegion(t),
			4: populatedRegion(t),
			8: populatedRegion(t),
		},
	}
	m, _ := openMap(t, l)

	// Cell (5,5): region (1,1), upper-left quarter, so the window reaches
	// towards region (0,0).
	require.NoError(t, m.UpdateWindow(m.CellAnchor(5, 5)))
	assert.Equal(t, []int{0, 1, 3, 4}, m.LoadedRegions())

	// Cell (10,10): region (2,2), lower-right quarter at the grid edge.
	require.NoError(t, m.UpdateWindow(m.CellAnchor(10, 10)))
	assert.Equal(t, []int{8}, m.LoadedRegions())

	// Cell (7,6): region (1,1), right half, lower half.
	require.NoError(t, m.UpdateWindow(m.CellAnchor(7, 6)))
	assert.Equal(t, []int{4, 5, 7, 8}, m.LoadedRegions())

	for _, idx := range []int{0, 1, 2, 3, 6} {
		r, err := m.Region(idx)
		require.NoError(t, err)
		assert.False(t, r.IsLoaded(), "region %d", idx)
	}

	assert.ErrorIs(t, m.UpdateWindow(world.Vector{X: 1 << 20}), world.ErrRegionOutOfRange)
}

func TestNewMapFormatMismatch(t *testing.T) {
	l := &testutil.Level{Format: level.FormatRetail, Grid: smallGrid()}
	s, layout := l.Stream(t)
	data, _, err := l.Build()
	require.NoError(t, err)

	ix, err := world.ParseIndex(level.FormatRetail,
		data[layout.Map.Offset:layout.Map.End()],
		data[layout.SpoolInfo.Offset:layout.SpoolInfo.End()])
	require.NoError(t, err)

	layout.Format = level.FormatPreRelease
	_, err = world.NewMap(s, layout, ix)
	assert.Error(t, err)
}

func TestUnloadRegionKeepsBarrelWindow(t *testing.T) {
	// 4×2 regions: regions 1 and 3 both sit in barrel 1.
	grid := world.Grid{CellSize: 1024, CellsAcross: 16, CellsDown: 8, RegionSize: 4}
	target := world.PlacedObject{Position: world.Vector{X: 5, Y: 6, Z: 7}, Heading: 8, Type: 9}
	barrelOne := testutil.LevelRegion{
		Pointers: testutil.SinglePointer(t, regionCells, 0, 0),
		CellData: testutil.LinkedCells(testutil.LinkedCell{Num: 0x8000, Next: world.NoNextCell}),
		Objects:  testutil.DirectObjects(target),
	}
	l := &testutil.Level{
		Format:         level.FormatLegacy,
		Grid:           grid,
		CellSlotBase:   [5]int32{0, 100, 200, 300, 400},
		CellObjectBase: [5]int32{0, 50, 60, 70, 80},
		Regions: map[int]testutil.LevelRegion{
			0: {
				Pointers: testutil.SinglePointer(t, regionCells, 0, 0),
				CellData: testutil.LinkedCells(testutil.LinkedCell{Num: 0, Next: 100}),
				Objects:  testutil.DirectObjects(world.PlacedObject{Type: 1}),
			},
			1: barrelOne,
			3: barrelOne,
		},
	}
	m, _ := openMap(t, l)
	require.NoError(t, m.SpoolRegion(0))
	require.NoError(t, m.SpoolRegion(1))
	require.NoError(t, m.SpoolRegion(3))

	require.NoError(t, m.UnloadRegion(3))
	assert.Equal(t, []int{0, 1}, m.LoadedRegions())

	it, ok := world.First(m, 0, 0)
	require.True(t, ok)
	obj, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, target, obj)
	require.NoError(t, it.Err())

	require.NoError(t, m.UnloadRegion(1))
	it, ok = world.First(m, 0, 0)
	require.True(t, ok)
	_, ok = it.Next()
	assert.False(t, ok)
	assert.ErrorIs(t, it.Err(), world.ErrChainBroken)
}
