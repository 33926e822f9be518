package world

import (
	"encoding/binary"
	"fmt"

	"github.com/udisondev/levspool/internal/level"
)

// Grid holds the world dimensions from the map lump.
type Grid struct {
	CellSize    int32 // world units per cell side
	CellsAcross int32
	CellsDown   int32
	RegionSize  int32 // cells per region side
}

// RegionsAcross returns the number of region columns.
func (g Grid) RegionsAcross() int32 { return g.CellsAcross / g.RegionSize }

// RegionsDown returns the number of region rows.
func (g Grid) RegionsDown() int32 { return g.CellsDown / g.RegionSize }

// NumRegions returns the number of region slots.
func (g Grid) NumRegions() int { return int(g.RegionsAcross() * g.RegionsDown()) }

// RegionCells returns the number of cells in one region.
func (g Grid) RegionCells() int { return int(g.RegionSize * g.RegionSize) }

// SpoolRecord is the demand-loading record of one region. Sizes and the
// offset are counted in sectors.
type SpoolRecord struct {
	Offset            uint16
	ConnectedAreas    [2]uint8
	PVSSize           uint8
	CellDataSize      [3]uint8 // cell pointers, cell data, objects
	SuperRegion       uint8
	NumConnectedAreas uint8
	RoadMapSize       uint8
	RoadHeightSize    uint8
}

func decodeSpoolRecord(b []byte) SpoolRecord {
	return SpoolRecord{
		Offset:            binary.LittleEndian.Uint16(b),
		ConnectedAreas:    [2]uint8{b[2], b[3]},
		PVSSize:           b[4],
		CellDataSize:      [3]uint8{b[5], b[6], b[7]},
		SuperRegion:       b[8],
		NumConnectedAreas: b[9],
		RoadMapSize:       b[10],
		RoadHeightSize:    b[11],
	}
}

// AppendSpoolRecord appends the 12-byte on-disk form of sp.
func AppendSpoolRecord(b []byte, sp SpoolRecord) []byte {
	b = binary.LittleEndian.AppendUint16(b, sp.Offset)
	return append(b,
		sp.ConnectedAreas[0], sp.ConnectedAreas[1],
		sp.PVSSize,
		sp.CellDataSize[0], sp.CellDataSize[1], sp.CellDataSize[2],
		sp.SuperRegion,
		sp.NumConnectedAreas,
		sp.RoadMapSize,
		sp.RoadHeightSize,
	)
}

// AreaDescriptor locates the shared texture pages and models of a
// super-region. Offsets and sizes are counted in sectors.
type AreaDescriptor struct {
	TextureOffset   uint16
	ModelOffset     uint16
	ModelSize       uint16
	NumTexturePages uint8
	AmbientIndex    uint8
	TexturePages    [AreaTexturePageSlots]uint8
}

// Pages returns the texture page list up to the first NoTexturePage.
func (a AreaDescriptor) Pages() []uint8 {
	n := min(int(a.NumTexturePages), AreaTexturePageSlots)
	pages := make([]uint8, 0, n)
	for _, p := range a.TexturePages[:n] {
		if p == NoTexturePage {
			break
		}
		pages = append(pages, p)
	}
	return pages
}

// Index is the parsed map-dimension and spool-info lumps.
type Index struct {
	Format         level.Format
	Grid           Grid
	Areas          []AreaDescriptor
	CellSlotBase   [Barrels + 1]int32
	CellObjectBase [Barrels + 1]int32

	numStraddlers int
	straddlers    []byte // raw object records
	objSize       int
	spoolOffsets  []uint16
	spoolBlob     []byte
}

// ParseIndex parses the map-dimension lump and the spool-info lump.
func ParseIndex(format level.Format, mapLump, spoolLump []byte) (*Index, error) {
	rf, err := newRegionFormat(format)
	if err != nil {
		return nil, err
	}
	ix := &Index{Format: format, objSize: rf.objSize}

	r := lumpReader{data: mapLump, name: "map lump"}
	ix.Grid = Grid{
		CellSize:    r.i32(),
		CellsAcross: r.i32(),
		CellsDown:   r.i32(),
		RegionSize:  r.i32(),
	}
	ix.numStraddlers = int(r.i32())
	if r.err != nil {
		return nil, r.err
	}
	if err := ix.Grid.validate(); err != nil {
		return nil, err
	}
	if ix.numStraddlers < 0 || ix.numStraddlers > cellSlotMask+1 {
		return nil, fmt.Errorf("%w: straddler count %d", ErrMalformedIndex, ix.numStraddlers)
	}
	ix.straddlers = r.bytes(ix.numStraddlers * rf.objSize)
	if r.err != nil {
		return nil, r.err
	}

	r = lumpReader{data: spoolLump, name: "spool info lump"}
	numAreas := int(r.i32())
	if r.err != nil {
		return nil, r.err
	}
	if numAreas < 0 || numAreas*(AreaDescriptorSize+AreaTexturePageSlots) > len(spoolLump) {
		return nil, fmt.Errorf("%w: area count %d", ErrMalformedIndex, numAreas)
	}
	ix.Areas = make([]AreaDescriptor, 0, numAreas)
	for range numAreas {
		ix.Areas = append(ix.Areas, AreaDescriptor{
			TextureOffset:   r.u16(),
			ModelOffset:     r.u16(),
			ModelSize:       r.u16(),
			NumTexturePages: r.u8(),
			AmbientIndex:    r.u8(),
		})
	}
	for i := range ix.Areas {
		copy(ix.Areas[i].TexturePages[:], r.bytes(AreaTexturePageSlots))
	}
	for i := range ix.CellSlotBase {
		ix.CellSlotBase[i] = r.i32()
	}
	for i := range ix.CellObjectBase {
		ix.CellObjectBase[i] = r.i32()
	}

	numSlots := int(r.i32())
	if r.err != nil {
		return nil, r.err
	}
	if numSlots != ix.Grid.NumRegions() {
		return nil, fmt.Errorf("%w: %d spool slots for %d regions", ErrMalformedIndex, numSlots, ix.Grid.NumRegions())
	}
	ix.spoolOffsets = make([]uint16, numSlots)
	for i := range ix.spoolOffsets {
		ix.spoolOffsets[i] = r.u16()
	}
	if numSlots%2 == 1 {
		r.u16()
	}
	blobSize := int(r.i32())
	if r.err == nil && blobSize < 0 {
		return nil, fmt.Errorf("%w: negative spool blob size %d", ErrMalformedIndex, blobSize)
	}
	ix.spoolBlob = r.bytes(blobSize)
	if r.err != nil {
		return nil, r.err
	}

	for i, off := range ix.spoolOffsets {
		if off != EmptyRegionSlot && int(off)+SpoolRecordSize > len(ix.spoolBlob) {
			return nil, fmt.Errorf("%w: spool offset %d of region %d beyond blob of %d bytes",
				ErrMalformedIndex, off, i, len(ix.spoolBlob))
		}
	}

	return ix, nil
}

func (g Grid) validate() error {
	if g.CellSize <= 0 || g.CellsAcross <= 0 || g.CellsDown <= 0 || g.RegionSize <= 0 {
		return fmt.Errorf("%w: grid %+v", ErrMalformedIndex, g)
	}
	if g.CellsAcross%g.RegionSize != 0 || g.CellsDown%g.RegionSize != 0 {
		return fmt.Errorf("%w: region size %d does not divide %dx%d cells",
			ErrMalformedIndex, g.RegionSize, g.CellsAcross, g.CellsDown)
	}
	if g.RegionSize*g.RegionSize > cellSlotMask+1 {
		return fmt.Errorf("%w: region size %d too large", ErrMalformedIndex, g.RegionSize)
	}
	return nil
}

// NumStraddlers returns the size of the global straddler list.
func (ix *Index) NumStraddlers() int {
	return ix.numStraddlers
}

// StraddlerRecords returns the raw records of the straddler list.
func (ix *Index) StraddlerRecords() []byte {
	return ix.straddlers
}

// straddler returns the raw record of straddler i.
func (ix *Index) straddler(i int) []byte {
	return ix.straddlers[i*ix.objSize : (i+1)*ix.objSize]
}

// Spool returns the spool record of a region. ok is false when the slot
// carries the empty-region sentinel.
func (ix *Index) Spool(region int) (sp SpoolRecord, ok bool, err error) {
	if region < 0 || region >= len(ix.spoolOffsets) {
		return SpoolRecord{}, false, fmt.Errorf("%w: %d", ErrRegionOutOfRange, region)
	}
	off := ix.spoolOffsets[region]
	if off == EmptyRegionSlot {
		return SpoolRecord{}, false, nil
	}
	return decodeSpoolRecord(ix.spoolBlob[off:]), true, nil
}

// Area returns the descriptor of a super-region.
func (ix *Index) Area(i uint8) (AreaDescriptor, error) {
	if int(i) >= len(ix.Areas) {
		return AreaDescriptor{}, fmt.Errorf("%w: area %d of %d", ErrUnresolvedArea, i, len(ix.Areas))
	}
	return ix.Areas[i], nil
}

// lumpReader reads little-endian fields; the first overrun sticks in err
// and every later read yields zero.
type lumpReader struct {
	data   []byte
	offset int
	name   string
	err    error
}

func (r *lumpReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.offset+n > len(r.data) {
		r.err = fmt.Errorf("%w: %s truncated at offset %d (need %d of %d bytes)",
			ErrMalformedIndex, r.name, r.offset, n, len(r.data))
		return nil
	}
	b := r.data[r.offset : r.offset+n]
	r.offset += n
	return b
}

func (r *lumpReader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *lumpReader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *lumpReader) i32() int32 {
	if b := r.take(4); b != nil {
		return int32(binary.LittleEndian.Uint32(b))
	}
	return 0
}

func (r *lumpReader) bytes(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}
