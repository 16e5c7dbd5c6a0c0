package flowsdr

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPmt_JSONRoundTrip(t *testing.T) {
	cases := []Pmt{
		PmtNull(),
		PmtOk(),
		PmtInvalidValue(),
		PmtBool(true),
		PmtInt(-42),
		PmtUInt(42),
		PmtF32(1.5),
		PmtF64(2.5),
		PmtString("foo"),
		PmtBlob([]byte{0x01, 0x02, 0xff}),
		PmtVecF32([]float32{1, 2, 3}),
		PmtVecU64([]uint64{1, 2, 3}),
		PmtMap(map[string]Pmt{"a": PmtInt(1), "b": PmtString("x")}),
		PmtList([]Pmt{PmtInt(1), PmtString("x"), PmtBool(false)}),
	}

	for _, want := range cases {
		data, err := json.Marshal(want)
		require.NoError(t, err)

		var got Pmt
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Truef(t, want.Equal(got), "round trip mismatch for kind %s: %v != %v", want.Kind(), want, got)
	}
}

func TestPmt_EqualDistinguishesKinds(t *testing.T) {
	assert.False(t, PmtInt(0).Equal(PmtUInt(0)))
	assert.False(t, PmtNull().Equal(PmtOk()))
	assert.True(t, PmtNull().IsNull())
	assert.False(t, PmtOk().IsNull())
}

func TestPmt_AccessorsRejectWrongKind(t *testing.T) {
	_, ok := PmtString("x").Int()
	assert.False(t, ok)

	v, ok := PmtInt(7).Int()
	assert.True(t, ok)
	assert.Equal(t, int64(7), v)
}
