package speedwire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The tables are static; every unit symbol a channel declares must
// resolve to a divisor, otherwise readings would be dropped at runtime.
func TestChannelTableConsistency(t *testing.T) {
	seenNames := make(map[string]uint16)

	for id, ch := range Channels() {
		assert.Equal(t, id, ch.ID, "table key and channel ID must agree for %q", ch.Name)

		if prev, dup := seenNames[ch.Name]; dup {
			t.Errorf("channel name %q used by both %d and %d", ch.Name, prev, id)
		}
		seenNames[ch.Name] = id

		if ch.ActualUnit != "" {
			_, ok := DivisorFor(ch.ActualUnit)
			assert.True(t, ok, "actual unit %q of channel %q has no divisor", ch.ActualUnit, ch.Name)
		}
		if ch.TotalUnit != "" {
			_, ok := DivisorFor(ch.TotalUnit)
			assert.True(t, ok, "total unit %q of channel %q has no divisor", ch.TotalUnit, ch.Name)
		}
	}
}

func TestVersionChannel(t *testing.T) {
	ch, ok := LookupChannel(VersionChannelID)
	require.True(t, ok, "the version pseudo-channel must be in the table")

	assert.Equal(t, "speedwire-version", ch.Name)
	assert.Empty(t, ch.ActualUnit, "the version channel has no instantaneous value")
	assert.Empty(t, ch.TotalUnit, "the version channel has no counter")
}

func TestLookupChannelMiss(t *testing.T) {
	_, ok := LookupChannel(9999)
	assert.False(t, ok)
}
