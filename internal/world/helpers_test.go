package world_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/udisondev/levspool/internal/level"
	"github.com/udisondev/levspool/internal/testutil"
	"github.com/udisondev/levspool/internal/world"
)

// 2×2 regions of 4×4 cells, 1024 units per cell.
func smallGrid() world.Grid {
	return world.Grid{CellSize: 1024, CellsAcross: 8, CellsDown: 8, RegionSize: 4}
}

const regionCells = 16

func openMap(t *testing.T, l *testutil.Level) (*world.Map, *level.Stream) {
	t.Helper()
	s, layout := l.Stream(t)
	m, err := world.LoadMap(s, layout)
	require.NoError(t, err)
	return m, s
}

func collect(m *world.Map, cellX, cellZ int32) []world.PlacedObject {
	var out []world.PlacedObject
	for o := range m.CellObjects(cellX, cellZ) {
		out = append(out, o)
	}
	return out
}

func packedAt(t *testing.T, m *world.Map, cellX, cellZ int32, o world.PlacedObject) world.PackedObject {
	t.Helper()
	p, err := world.Pack(o, m.CellAnchor(cellX, cellZ))
	require.NoError(t, err)
	return p
}
