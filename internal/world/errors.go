package world

import "errors"

var (
	ErrRegionOutOfRange      = errors.New("region index out of range")
	ErrMalformedCellPointers = errors.New("malformed cell pointer encoding")
	ErrUnresolvedArea        = errors.New("super-region descriptor not found")
	ErrMalformedArea         = errors.New("malformed area model block")
	ErrMalformedIndex        = errors.New("malformed world index")
	ErrChainBroken           = errors.New("cell data chain points outside loaded regions")
)
