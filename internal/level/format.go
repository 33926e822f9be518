package level

import "fmt"

// SectorSize is the spool data block size. Every offset and size stored in
// spool records and area descriptors is counted in sectors.
const SectorSize = 2048

// Format identifies the level container generation.
type Format uint8

const (
	FormatUnknown Format = iota
	// FormatLegacy is the older generation: direct 16-byte object records
	// and linked cell-data entries.
	FormatLegacy
	// FormatPreRelease uses packed objects but stores both road-map
	// segments before the cell pointers.
	FormatPreRelease
	// FormatRetail uses packed objects and compact cell-data chains.
	FormatRetail
)

func (f Format) String() string {
	switch f {
	case FormatLegacy:
		return "legacy"
	case FormatPreRelease:
		return "prerelease"
	case FormatRetail:
		return "retail"
	default:
		return "unknown"
	}
}

// ParseFormat parses a format name as written in configuration.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "legacy":
		return FormatLegacy, nil
	case "prerelease":
		return FormatPreRelease, nil
	case "retail":
		return FormatRetail, nil
	default:
		return FormatUnknown, fmt.Errorf("unknown level format %q", s)
	}
}

// Section locates one lump or section inside the container.
type Section struct {
	Offset int64 `yaml:"offset"`
	Size   int64 `yaml:"size"`
}

// End returns the first byte offset past the section.
func (s Section) End() int64 {
	return s.Offset + s.Size
}

// Layout is what the container resolver yields: the detected format and the
// sections this package reads from. Lump walking itself happens elsewhere.
type Layout struct {
	Format      Format
	Map         Section // map-dimension lump
	SpoolInfo   Section // spool-info lump
	Description Section
	Textures    Section
	Data        Section
	Spool       Section // base of all region and area data blocks
}

// SectorOffset converts a sector count relative to the spool section into an
// absolute byte offset.
func (l Layout) SectorOffset(sectors int) int64 {
	return l.Spool.Offset + int64(sectors)*SectorSize
}
