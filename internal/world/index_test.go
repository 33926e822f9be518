package world_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/levspool/internal/level"
	"github.com/udisondev/levspool/internal/testutil"
	"github.com/udisondev/levspool/internal/world"
)

func buildLumps(t *testing.T, l *testutil.Level) (mapLump, spoolLump []byte, layout level.Layout) {
	t.Helper()
	data, layout, err := l.Build()
	require.NoError(t, err)
	return data[layout.Map.Offset:layout.Map.End()], data[layout.SpoolInfo.Offset:layout.SpoolInfo.End()], layout
}

func TestParseIndex(t *testing.T) {
	l := &testutil.Level{
		Format:         level.FormatRetail,
		Grid:           smallGrid(),
		NumStraddlers:  2,
		Straddlers:     testutil.PackedObjects(world.PackedObject{X: 1}, world.PackedObject{X: 2}),
		CellSlotBase:   [5]int32{0, 10, 20, 30, 40},
		CellObjectBase: [5]int32{0, 100, 200, 300, 400},
		Regions: map[int]testutil.LevelRegion{
			2: {
				Pointers:       testutil.SinglePointer(t, regionCells, 0, 0),
				PVSSectors:     1,
				HasSuperRegion: true,
				SuperRegion:    0,
				ConnectedAreas: []uint8{0, 1},
			},
		},
		Areas: []testutil.LevelArea{
			{TexturePages: []uint8{3, 9}},
			{},
		},
	}
	mapLump, spoolLump, _ := buildLumps(t, l)

	ix, err := world.ParseIndex(level.FormatRetail, mapLump, spoolLump)
	require.NoError(t, err)

	assert.Equal(t, smallGrid(), ix.Grid)
	assert.Equal(t, int32(2), ix.Grid.RegionsAcross())
	assert.Equal(t, 4, ix.Grid.NumRegions())
	assert.Equal(t, 2, ix.NumStraddlers())
	assert.Equal(t, [5]int32{0, 10, 20, 30, 40}, ix.CellSlotBase)
	assert.Equal(t, [5]int32{0, 100, 200, 300, 400}, ix.CellObjectBase)
	require.Len(t, ix.Areas, 2)
	assert.Equal(t, []uint8{3, 9}, ix.Areas[0].Pages())
	assert.Empty(t, ix.Areas[1].Pages())

	for _, empty := range []int{0, 1, 3} {
		_, ok, err := ix.Spool(empty)
		require.NoError(t, err)
		assert.False(t, ok, "region %d", empty)
	}

	sp, ok, err := ix.Spool(2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint8(1), sp.PVSSize)
	assert.Equal(t, uint8(1), sp.CellDataSize[0])
	assert.Equal(t, uint8(0), sp.SuperRegion)
	assert.Equal(t, uint8(2), sp.NumConnectedAreas)
	assert.Equal(t, [2]uint8{0, 1}, sp.ConnectedAreas)

	_, _, err = ix.Spool(4)
	assert.ErrorIs(t, err, world.ErrRegionOutOfRange)

	_, err = ix.Area(2)
	assert.ErrorIs(t, err, world.ErrUnresolvedArea)
}

func TestParseIndexMalformed(t *testing.T) {
	good := &testutil.Level{Format: level.FormatRetail, Grid: smallGrid()}
	mapLump, spoolLump, _ := buildLumps(t, good)

	badGrid := &testutil.Level{
		Format: level.FormatRetail,
		Grid:   world.Grid{CellSize: 1024, CellsAcross: 6, CellsDown: 8, RegionSize: 4},
	}
	badMap, _, _ := buildLumps(t, badGrid)

	tests := []struct {
		name      string
		mapLump   []byte
		spoolLump []byte
	}{
		{"short map lump", mapLump[:12], spoolLump},
		{"region size does not divide grid", badMap, spoolLump},
		{"short spool lump", mapLump, spoolLump[:len(spoolLump)-6]},
		{"empty spool lump", mapLump, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := world.ParseIndex(level.FormatRetail, tt.mapLump, tt.spoolLump)
			assert.ErrorIs(t, err, world.ErrMalformedIndex)
		})
	}
}

func TestParseIndexSlotCountMismatch(t *testing.T) {
	l := &testutil.Level{Format: level.FormatRetail, Grid: smallGrid()}
	_, spoolLump, _ := buildLumps(t, l)

	bigger := &testutil.Level{
		Format: level.FormatRetail,
		Grid:   world.Grid{CellSize: 1024, CellsAcross: 12, CellsDown: 8, RegionSize: 4},
	}
	bigMap, _, _ := buildLumps(t, bigger)

	_, err := world.ParseIndex(level.FormatRetail, bigMap, spoolLump)
	assert.ErrorIs(t, err, world.ErrMalformedIndex)
}

func TestParseIndexUnknownFormat(t *testing.T) {
	_, err := world.ParseIndex(level.FormatUnknown, nil, nil)
	assert.Error(t, err)
}

func TestLegacyStraddlersAreDirect(t *testing.T) {
	l := &testutil.Level{
		Format:        level.FormatLegacy,
		Grid:          smallGrid(),
		NumStraddlers: 1,
		Straddlers:    testutil.DirectObjects(world.PlacedObject{Type: 5}),
	}
	mapLump, spoolLump, _ := buildLumps(t, l)

	ix, err := world.ParseIndex(level.FormatLegacy, mapLump, spoolLump)
	require.NoError(t, err)
	assert.Equal(t, 1, ix.NumStraddlers())

	// A straddler count beyond the lump.
	l.NumStraddlers = 3
	mapLump, spoolLump, _ = buildLumps(t, l)
	_, err = world.ParseIndex(level.FormatLegacy, mapLump, spoolLump)
	assert.ErrorIs(t, err, world.ErrMalformedIndex)
}
