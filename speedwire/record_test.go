package speedwire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSerialString(t *testing.T) {
	t.Run("DecodedRecord", func(t *testing.T) {
		s, ok := Record{"serial": uint32(3012345678)}.SerialString()
		require.True(t, ok)
		assert.Equal(t, "3012345678", s)
	})

	t.Run("JSONLoadedRecord", func(t *testing.T) {
		// Records loaded back from a sample file carry float64 numbers.
		s, ok := Record{"serial": float64(3012345678)}.SerialString()
		require.True(t, ok)
		assert.Equal(t, "3012345678", s)
	})

	t.Run("Missing", func(t *testing.T) {
		_, ok := Record{}.SerialString()
		assert.False(t, ok)
	})

	t.Run("EmptyString", func(t *testing.T) {
		_, ok := Record{"serial": ""}.SerialString()
		assert.False(t, ok)
	})
}
