package texture

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/levspool/internal/level"
)

func pageBlock(payloads ...string) []byte {
	var b []byte
	for _, p := range payloads {
		b = binary.LittleEndian.AppendUint32(b, uint32(len(p)))
		b = append(b, p...)
	}
	return b
}

func TestPageCacheLoadAndSkip(t *testing.T) {
	c, err := NewPageCache(DefaultConfig())
	require.NoError(t, err)
	defer c.Close()

	block := pageBlock("first page", "second")
	s := level.NewStream(bytes.NewReader(block))
	require.NoError(t, s.Seek(0))

	require.NoError(t, c.LoadPage(s, 1))
	require.NoError(t, c.LoadPage(s, 2))
	assert.Equal(t, int64(len(block)), s.Tell())

	p, ok := c.Page(1)
	require.True(t, ok)
	assert.Equal(t, []byte("first page"), p)

	require.NoError(t, s.Seek(0))
	reads := s.Reads()
	require.NoError(t, c.LoadPage(s, 1))
	assert.Equal(t, reads+1, s.Reads())
	assert.Equal(t, int64(4+len("first page")), s.Tell())

	loads, hits := c.Stats()
	assert.Equal(t, 2, loads)
	assert.Equal(t, 1, hits)
}

func TestPageCacheRejectsOversizedPage(t *testing.T) {
	c, err := NewPageCache(DefaultConfig())
	require.NoError(t, err)
	defer c.Close()

	hdr := binary.LittleEndian.AppendUint32(nil, MaxPageSize+1)
	s := level.NewStream(bytes.NewReader(hdr))

	assert.Error(t, c.LoadPage(s, 0))
}

func TestPageCacheTruncatedPage(t *testing.T) {
	c, err := NewPageCache(DefaultConfig())
	require.NoError(t, err)
	defer c.Close()

	block := pageBlock("complete")
	s := level.NewStream(bytes.NewReader(block[:len(block)-2]))

	assert.Error(t, c.LoadPage(s, 4))
	_, ok := c.Page(4)
	assert.False(t, ok)
}
