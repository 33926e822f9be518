package world

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/udisondev/levspool/internal/level"
)

// TextureLoader loads one texture page of an area. src is positioned at the
// start of the page; the next page begins where the loader stops reading.
type TextureLoader interface {
	LoadPage(src *level.Stream, page uint8) error
}

// ModelRegistry receives models materialised from area model blocks.
type ModelRegistry interface {
	RegisterModel(index uint16, data []byte)
}

// AreaModel is one model of a super-region block.
type AreaModel struct {
	Index uint16
	Data  []byte
}

// Area is a super-region: geometry and texture pages shared by a cluster
// of regions. Its models are read at most once.
type Area struct {
	index        uint8
	desc         AreaDescriptor
	models       []AreaModel
	modelsLoaded bool
}

// Index returns the area number.
func (a *Area) Index() uint8 { return a.index }

// Descriptor returns the area descriptor.
func (a *Area) Descriptor() AreaDescriptor { return a.desc }

// Models returns the materialised models, in block order.
func (a *Area) Models() []AreaModel { return a.models }

// ModelsLoaded reports whether the model table has been read.
func (a *Area) ModelsLoaded() bool { return a.modelsLoaded }

// loadArea loads the texture pages of an area and, the first time, its
// model table.
func (m *Map) loadArea(idx uint8) error {
	desc, err := m.ix.Area(idx)
	if err != nil {
		return err
	}
	a := m.areas[idx]
	if a == nil {
		a = &Area{index: idx, desc: desc}
		m.areas[idx] = a
	}

	if m.textures != nil {
		pages := desc.Pages()
		start := m.layout.SectorOffset(int(desc.TextureOffset))
		if len(pages) > 0 {
			if err := m.stream.Seek(start); err != nil {
				return fmt.Errorf("seeking texture pages of area %d: %w", idx, err)
			}
		}
		for _, page := range pages {
			if err := m.textures.LoadPage(m.stream, page); err != nil {
				return fmt.Errorf("loading texture page %d of area %d: %w", page, idx, err)
			}
		}
		if len(pages) > 0 {
			slog.Debug("area texture pages loaded", "area", idx, "pages", len(pages), "bytes", m.stream.Tell()-start)
		}
	}

	if a.modelsLoaded {
		return nil
	}
	if desc.ModelSize == 0 {
		a.modelsLoaded = true
		return nil
	}
	data, err := m.stream.ReadAt(m.layout.SectorOffset(int(desc.ModelOffset)), int(desc.ModelSize)*level.SectorSize)
	if err != nil {
		return fmt.Errorf("reading model block of area %d: %w", idx, err)
	}
	models, err := parseAreaModels(data)
	if err != nil {
		return fmt.Errorf("area %d: %w", idx, err)
	}
	a.models = models
	a.modelsLoaded = true
	if m.registry != nil {
		for _, model := range models {
			m.registry.RegisterModel(model.Index, model.Data)
		}
	}
	slog.Debug("area models loaded", "area", idx, "models", len(models))
	return nil
}

// parseAreaModels reads the count+index table from the final sector of a
// model block, then the size/payload pairs from the block start.
func parseAreaModels(data []byte) ([]AreaModel, error) {
	if len(data) < level.SectorSize {
		return nil, fmt.Errorf("%w: block of %d bytes", ErrMalformedArea, len(data))
	}
	body := data[:len(data)-level.SectorSize]
	tail := data[len(data)-level.SectorSize:]

	count := int(binary.LittleEndian.Uint16(tail))
	if 2+count*2 > len(tail) {
		return nil, fmt.Errorf("%w: %d models do not fit the index table", ErrMalformedArea, count)
	}

	models := make([]AreaModel, 0, count)
	offset := 0
	for i := range count {
		if offset+4 > len(body) {
			return nil, fmt.Errorf("%w: model %d header beyond block", ErrMalformedArea, i)
		}
		size := int(binary.LittleEndian.Uint32(body[offset:]))
		offset += 4
		if size < 0 || offset+size > len(body) {
			return nil, fmt.Errorf("%w: model %d of %d bytes overruns block", ErrMalformedArea, i, size)
		}
		payload := make([]byte, size)
		copy(payload, body[offset:offset+size])
		models = append(models, AreaModel{
			Index: binary.LittleEndian.Uint16(tail[2+i*2:]),
			Data:  payload,
		})
		offset = (offset + size + 3) &^ 3
	}
	return models, nil
}
