package world

import (
	"encoding/binary"
	"fmt"
)

// DecodeCellPointers decodes a cell-pointer blob into out, which must hold
// regionSize² entries. extraBase is added to every non-empty entry.
// Returns the number of non-empty entries written. On error out is left
// filled with EmptyPointer.
func DecodeCellPointers(data []byte, out []uint16, extraBase uint16) (int, error) {
	clearPointers(out)
	if len(data) < 4 {
		return 0, fmt.Errorf("%w: blob of %d bytes has no tag", ErrMalformedCellPointers, len(data))
	}
	tag := binary.LittleEndian.Uint32(data)
	data = data[4:]

	count := 0
	switch tag {
	case PointerEncodingEmpty:
		return 0, nil

	case PointerEncodingDense:
		if len(data) < len(out)*2 {
			return 0, fmt.Errorf("%w: dense payload %d bytes, need %d", ErrMalformedCellPointers, len(data), len(out)*2)
		}
		for i := range out {
			v := binary.LittleEndian.Uint16(data[i*2:])
			if v != EmptyPointer {
				v += extraBase
				count++
			}
			out[i] = v
		}
		return count, nil

	case PointerEncodingSparse:
		offset := 0
		var mask uint16
		for i := range out {
			if i%16 == 0 {
				if offset+2 > len(data) {
					clearPointers(out)
					return 0, fmt.Errorf("%w: sparse bitmask truncated at entry %d", ErrMalformedCellPointers, i)
				}
				mask = binary.LittleEndian.Uint16(data[offset:])
				offset += 2
			}
			if mask&0x8000 != 0 {
				if offset+2 > len(data) {
					clearPointers(out)
					return 0, fmt.Errorf("%w: sparse value truncated at entry %d", ErrMalformedCellPointers, i)
				}
				out[i] = binary.LittleEndian.Uint16(data[offset:]) + extraBase
				offset += 2
				count++
			}
			mask <<= 1
		}
		return count, nil

	default:
		return 0, fmt.Errorf("%w: tag %d", ErrMalformedCellPointers, tag)
	}
}

// EncodeCellPointers produces a blob in the given encoding. It is the
// inverse of DecodeCellPointers with a zero extra base.
func EncodeCellPointers(tag uint32, ptrs []uint16) ([]byte, error) {
	out := binary.LittleEndian.AppendUint32(nil, tag)
	switch tag {
	case PointerEncodingEmpty:
		return out, nil
	case PointerEncodingDense:
		for _, p := range ptrs {
			out = binary.LittleEndian.AppendUint16(out, p)
		}
		return out, nil
	case PointerEncodingSparse:
		for start := 0; start < len(ptrs); start += 16 {
			end := min(start+16, len(ptrs))
			var mask uint16
			for i := start; i < end; i++ {
				if ptrs[i] != EmptyPointer {
					mask |= 0x8000 >> (i - start)
				}
			}
			out = binary.LittleEndian.AppendUint16(out, mask)
			for i := start; i < end; i++ {
				if ptrs[i] != EmptyPointer {
					out = binary.LittleEndian.AppendUint16(out, ptrs[i])
				}
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("encode cell pointers: unknown tag %d", tag)
	}
}

func clearPointers(out []uint16) {
	for i := range out {
		out[i] = EmptyPointer
	}
}
