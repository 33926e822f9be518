package testutil

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/udisondev/levspool/internal/level"
	"github.com/udisondev/levspool/internal/world"
)

// LevelRegion describes the spooled data of one region in a synthetic level.
type LevelRegion struct {
	Pointers []byte // complete cell-pointer blob, tag included
	CellData []byte
	Objects  []byte

	PVSSectors        uint8
	RoadMapSectors    uint8
	RoadHeightSectors uint8

	HasSuperRegion bool
	SuperRegion    uint8
	ConnectedAreas []uint8
}

// LevelArea describes one super-region of a synthetic level.
type LevelArea struct {
	TexturePages []uint8
	Textures     []byte // texture block, read by the texture loader
	Models       []world.AreaModel
}

// Level is an in-memory level container. Regions not listed carry the
// empty-region sentinel.
type Level struct {
	Format         level.Format
	Grid           world.Grid
	Straddlers     []byte // raw object records
	NumStraddlers  int
	CellSlotBase   [world.Barrels + 1]int32
	CellObjectBase [world.Barrels + 1]int32
	Regions        map[int]LevelRegion
	Areas          []LevelArea
}

// Build serialises the level and returns the container bytes together with
// the layout a container resolver would report for them.
func (l *Level) Build() ([]byte, level.Layout, error) {
	var spool []byte
	var records []byte
	offsets := make([]uint16, l.Grid.NumRegions())
	for i := range offsets {
		offsets[i] = world.EmptyRegionSlot
	}

	indices := make([]int, 0, len(l.Regions))
	for idx := range l.Regions {
		indices = append(indices, idx)
	}
	slices.Sort(indices)

	for _, idx := range indices {
		if idx < 0 || idx >= len(offsets) {
			return nil, level.Layout{}, fmt.Errorf("region %d outside %d slots", idx, len(offsets))
		}
		r := l.Regions[idx]
		sp := world.SpoolRecord{
			Offset:         uint16(len(spool) / level.SectorSize),
			PVSSize:        r.PVSSectors,
			CellDataSize:   [3]uint8{sectors(r.Pointers), sectors(r.CellData), sectors(r.Objects)},
			SuperRegion:    world.NoSuperRegion,
			RoadMapSize:    r.RoadMapSectors,
			RoadHeightSize: r.RoadHeightSectors,
		}
		if r.HasSuperRegion {
			sp.SuperRegion = r.SuperRegion
		}
		copy(sp.ConnectedAreas[:], r.ConnectedAreas)
		sp.NumConnectedAreas = uint8(min(len(r.ConnectedAreas), len(sp.ConnectedAreas)))

		seg, err := world.RegionSegments(l.Format, sp, 0)
		if err != nil {
			return nil, level.Layout{}, err
		}
		end := max(seg.PVS.End(), seg.RoadMap.End(), seg.RoadHeights.End(),
			seg.CellPointers.End(), seg.CellData.End(), seg.Objects.End())
		spool = grow(spool, int(end))
		copy(spool[seg.CellPointers.Offset:], r.Pointers)
		copy(spool[seg.CellData.Offset:], r.CellData)
		copy(spool[seg.Objects.Offset:], r.Objects)

		offsets[idx] = uint16(len(records))
		records = world.AppendSpoolRecord(records, sp)
	}

	descs := make([]world.AreaDescriptor, len(l.Areas))
	for i, a := range l.Areas {
		d := world.AreaDescriptor{NumTexturePages: uint8(len(a.TexturePages))}
		for j := range d.TexturePages {
			d.TexturePages[j] = world.NoTexturePage
		}
		copy(d.TexturePages[:], a.TexturePages)

		d.TextureOffset = uint16(len(spool) / level.SectorSize)
		spool = append(spool, a.Textures...)
		spool = grow(spool, alignSector(len(spool)))

		if len(a.Models) > 0 {
			block := ModelBlock(a.Models)
			d.ModelOffset = uint16(len(spool) / level.SectorSize)
			d.ModelSize = uint16(len(block) / level.SectorSize)
			spool = append(spool, block...)
		}
		descs[i] = d
	}

	mapLump := binary.LittleEndian.AppendUint32(nil, uint32(l.Grid.CellSize))
	mapLump = binary.LittleEndian.AppendUint32(mapLump, uint32(l.Grid.CellsAcross))
	mapLump = binary.LittleEndian.AppendUint32(mapLump, uint32(l.Grid.CellsDown))
	mapLump = binary.LittleEndian.AppendUint32(mapLump, uint32(l.Grid.RegionSize))
	mapLump = binary.LittleEndian.AppendUint32(mapLump, uint32(l.NumStraddlers))
	mapLump = append(mapLump, l.Straddlers...)

	info := binary.LittleEndian.AppendUint32(nil, uint32(len(descs)))
	for _, d := range descs {
		info = binary.LittleEndian.AppendUint16(info, d.TextureOffset)
		info = binary.LittleEndian.AppendUint16(info, d.ModelOffset)
		info = binary.LittleEndian.AppendUint16(info, d.ModelSize)
		info = append(info, d.NumTexturePages, d.AmbientIndex)
	}
	for _, d := range descs {
		info = append(info, d.TexturePages[:]...)
	}
	for _, v := range l.CellSlotBase {
		info = binary.LittleEndian.AppendUint32(info, uint32(v))
	}
	for _, v := range l.CellObjectBase {
		info = binary.LittleEndian.AppendUint32(info, uint32(v))
	}
	info = binary.LittleEndian.AppendUint32(info, uint32(len(offsets)))
	for _, off := range offsets {
		info = binary.LittleEndian.AppendUint16(info, off)
	}
	if len(offsets)%2 == 1 {
		info = binary.LittleEndian.AppendUint16(info, 0)
	}
	info = binary.LittleEndian.AppendUint32(info, uint32(len(records)))
	info = append(info, records...)

	container := append([]byte{}, mapLump...)
	container = append(container, info...)
	container = grow(container, alignSector(len(container)))
	spoolStart := len(container)
	container = append(container, spool...)

	layout := level.Layout{
		Format:    l.Format,
		Map:       level.Section{Offset: 0, Size: int64(len(mapLump))},
		SpoolInfo: level.Section{Offset: int64(len(mapLump)), Size: int64(len(info))},
		Spool:     level.Section{Offset: int64(spoolStart), Size: int64(len(spool))},
	}
	return container, layout, nil
}

// Stream builds the level and returns an in-memory stream over it.
func (l *Level) Stream(tb testing.TB) (*level.Stream, level.Layout) {
	tb.Helper()
	data, layout, err := l.Build()
	if err != nil {
		tb.Fatalf("building level: %v", err)
	}
	return level.NewStream(bytes.NewReader(data)), layout
}

// WriteFile builds the level into a file under tb's temp dir.
func (l *Level) WriteFile(tb testing.TB) (string, level.Layout) {
	tb.Helper()
	data, layout, err := l.Build()
	if err != nil {
		tb.Fatalf("building level: %v", err)
	}
	path := filepath.Join(tb.TempDir(), "level.lev")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		tb.Fatalf("writing level: %v", err)
	}
	return path, layout
}

// DensePointers encodes a dense cell-pointer blob.
func DensePointers(tb testing.TB, ptrs []uint16) []byte {
	tb.Helper()
	b, err := world.EncodeCellPointers(world.PointerEncodingDense, ptrs)
	if err != nil {
		tb.Fatalf("encoding pointers: %v", err)
	}
	return b
}

// SinglePointer returns a dense blob of n cells where only cell local points
// at slot.
func SinglePointer(tb testing.TB, n, local int, slot uint16) []byte {
	tb.Helper()
	ptrs := make([]uint16, n)
	for i := range ptrs {
		ptrs[i] = world.EmptyPointer
	}
	ptrs[local] = slot
	return DensePointers(tb, ptrs)
}

// CompactCells encodes compact cell-data entries.
func CompactCells(nums ...uint16) []byte {
	var b []byte
	for _, n := range nums {
		b = binary.LittleEndian.AppendUint16(b, n)
	}
	return b
}

// LinkedCell is one linked cell-data entry.
type LinkedCell struct {
	Num  uint16
	Next uint16
}

// LinkedCells encodes linked cell-data entries.
func LinkedCells(cells ...LinkedCell) []byte {
	var b []byte
	for _, c := range cells {
		b = binary.LittleEndian.AppendUint16(b, c.Num)
		b = binary.LittleEndian.AppendUint16(b, c.Next)
	}
	return b
}

// PackedObjects encodes packed object records.
func PackedObjects(objs ...world.PackedObject) []byte {
	var b []byte
	for _, o := range objs {
		b = world.AppendPacked(b, o)
	}
	return b
}

// DirectObjects encodes direct object records.
func DirectObjects(objs ...world.PlacedObject) []byte {
	var b []byte
	for _, o := range objs {
		b = world.AppendDirect(b, o)
	}
	return b
}

// ModelBlock encodes an area model block: size/payload pairs padded to 4
// bytes, then a final sector holding the count and model indices.
func ModelBlock(models []world.AreaModel) []byte {
	var body []byte
	for _, m := range models {
		body = binary.LittleEndian.AppendUint32(body, uint32(len(m.Data)))
		body = append(body, m.Data...)
		body = grow(body, (len(body)+3)&^3)
	}
	body = grow(body, alignSector(len(body)))

	tail := make([]byte, level.SectorSize)
	binary.LittleEndian.PutUint16(tail, uint16(len(models)))
	for i, m := range models {
		binary.LittleEndian.PutUint16(tail[2+i*2:], m.Index)
	}
	return append(body, tail...)
}

func sectors(b []byte) uint8 {
	return uint8(alignSector(len(b)) / level.SectorSize)
}

func alignSector(n int) int {
	return (n + level.SectorSize - 1) / level.SectorSize * level.SectorSize
}

func grow(b []byte, n int) []byte {
	if len(b) >= n {
		return b
	}
	return append(b, make([]byte, n-len(b))...)
}
