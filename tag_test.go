package flowsdr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTag_AccessorsRejectWrongKind(t *testing.T) {
	tg := TagU64("clock", 42)
	v, ok := tg.UInt()
	assert.True(t, ok)
	assert.Equal(t, uint64(42), v)

	_, ok = tg.F32()
	assert.False(t, ok)
}

func TestTag_NullCarriesNoPayload(t *testing.T) {
	tg := TagNull("marker")
	assert.Equal(t, TagKindNull, tg.Kind)
	assert.Equal(t, "marker", tg.Name)
}

func TestTag_AnyRoundTripsArbitraryPayload(t *testing.T) {
	tg := TagAny("meta", map[string]int{"x": 1})
	v, ok := tg.Any()
	assert.True(t, ok)
	assert.Equal(t, map[string]int{"x": 1}, v)
}
