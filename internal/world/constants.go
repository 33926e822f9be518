package world

// Sentinels and field masks of the on-disk layout.
const (
	EmptyPointer    = 0xFFFF // cell-pointer entry with no cell data
	EmptyRegionSlot = 0xFFFF // spoolOffset entry for a region without spool data
	NoSuperRegion   = 0xFF
	NoTexturePage   = 0xFF
	NoNextCell      = 0xFFFF // linked cell-data entry without successor

	HeadingSteps = 64 // heading quantization per full turn

	cellSlotMask  = 0x3FFF
	cellEmptyFlag = 0x4000
	cellEndFlag   = 0x8000
)

// Cell-pointer blob encodings.
const (
	PointerEncodingEmpty  uint32 = 0
	PointerEncodingDense  uint32 = 1
	PointerEncodingSparse uint32 = 2
)

// Record sizes in bytes.
const (
	PackedObjectSize     = 8
	DirectObjectSize     = 16
	SpoolRecordSize      = 12
	AreaDescriptorSize   = 8
	AreaTexturePageSlots = 16
	compactCellEntrySize = 2
	linkedCellEntrySize  = 4
)

// Barrels is the number of quadrant address spaces; the extra base entry
// holds the grand total.
const Barrels = 4
