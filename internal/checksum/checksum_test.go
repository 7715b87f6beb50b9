package checksum

import (
	"crypto/md5" //nolint:gosec // test mirrors the production digest
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func md5hex(s string) string {
	sum := md5.Sum([]byte(s)) //nolint:gosec // see import
	return hex.EncodeToString(sum[:])
}

func TestCompute_KnownDigest(t *testing.T) {
	// {"b":[1,"X Y"],"a":"Q"} -> "a,q,b,1,xy"
	got := FromQuery(`{"b":[1,"X Y"],"a":"Q"}`)
	assert.Equal(t, md5hex("a,q,b,1,xy"), got)
	assert.Len(t, got, 32)
}

func TestCompute_KeyOrderInvariant(t *testing.T) {
	h1 := FromQuery(`{"a":1,"b":{"x":true,"y":[1,2]}}`)
	h2 := FromQuery(`{"b":{"y":[1,2],"x":true},"a":1}`)
	assert.Equal(t, h1, h2)
}

func TestCompute_CaseAndWhitespaceInvariant(t *testing.T) {
	h1 := FromQuery(`{"Region":"North America","tags":["Alpha","Beta"]}`)
	h2 := FromQuery(`{ "region" : "north   america",
		"TAGS": [ "alpha", "beta" ] }`)
	assert.Equal(t, h1, h2)
}

func TestCompute_KeyCaseDoesNotChangeOrder(t *testing.T) {
	assert.Equal(t, FromQuery(`{"B":1,"a":2}`), FromQuery(`{"b":1,"A":2}`))
	assert.Equal(t, md5hex("a,2,b,1"), FromQuery(`{"B":1,"a":2}`))
	assert.Equal(t,
		FromQuery(`{"f":[{"Zeta":1,"alpha":2}]}`),
		FromQuery(`{"f":[{"zeta":1,"ALPHA":2}]}`))
}

func TestCompute_VolatileKeysMatchAnyCase(t *testing.T) {
	base := FromQuery(`{"q":"x"}`)
	assert.Equal(t, base, FromQuery(`{"q":"x","DateStart":"2024-01-01"}`))
	assert.Equal(t, base, FromQuery(`{"q":"x","DATEEND":"2024-02-01"}`))
}

func TestCompute_VolatileKeysIgnored(t *testing.T) {
	h1 := FromQuery(`{"q":"x","dateStart":"2024-01-01","dateEnd":"2024-02-01"}`)
	h2 := FromQuery(`{"q":"x","dateStart":"2025-06-01"}`)
	h3 := FromQuery(`{"q":"x"}`)
	assert.Equal(t, h1, h2)
	assert.Equal(t, h1, h3)
}

func TestCompute_VolatileKeysOnlyTopLevel(t *testing.T) {
	h1 := FromQuery(`{"q":"x","inner":{"dateStart":"2024-01-01"}}`)
	h2 := FromQuery(`{"q":"x","inner":{"dateStart":"2025-01-01"}}`)
	assert.NotEqual(t, h1, h2, "nested date keys are part of the content")
}

func TestCompute_SequenceOrderMatters(t *testing.T) {
	h1 := FromQuery(`{"ids":[1,2,3]}`)
	h2 := FromQuery(`{"ids":[3,2,1]}`)
	assert.NotEqual(t, h1, h2)
}

func TestCompute_DifferentValues(t *testing.T) {
	assert.NotEqual(t, FromQuery(`{"q":"cats"}`), FromQuery(`{"q":"dogs"}`))
}

func TestCompute_NestedSequencesSorted(t *testing.T) {
	h1 := FromQuery(`{"f":[{"b":1,"a":2},{"d":3,"c":4}]}`)
	h2 := FromQuery(`{"f":[{"a":2,"b":1},{"c":4,"d":3}]}`)
	assert.Equal(t, h1, h2)
}

func TestCompute_Scalars(t *testing.T) {
	assert.Equal(t, md5hex("n,none,t,true,x,1.50"), FromQuery(`{"x":1.50,"t":true,"n":null}`))
	assert.Equal(t, md5hex("2.5"), Compute(2.5, DefaultDelimiter))
	assert.Equal(t, md5hex("false"), Compute(false, DefaultDelimiter))
}

func TestFromQuery_NonJSON(t *testing.T) {
	assert.Equal(t, md5hex("selectallcats"), FromQuery("Select all CATS"))
	assert.Equal(t, FromQuery("select all cats"), FromQuery("SELECT  ALL\tCATS"))
}

func TestCompute_CustomDelimiter(t *testing.T) {
	payload, err := Decode(`{"a":"1","b":"2"}`)
	require.NoError(t, err)
	assert.Equal(t, md5hex("a|1|b|2"), Compute(payload, "|"))
}

func TestCompute_DoesNotMutateInput(t *testing.T) {
	payload := map[string]any{"dateStart": "x", "q": "y"}
	_ = Compute(payload, DefaultDelimiter)
	assert.Contains(t, payload, "dateStart")
}

func TestDecode_TrailingData(t *testing.T) {
	_, err := Decode(`{"a":1} {"b":2}`)
	assert.Error(t, err)
}

func TestRevision(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "1704164645_abc", Revision(ts, "abc"))
}

func TestVerify(t *testing.T) {
	q := `{"q":"x"}`
	assert.True(t, Verify(FromQuery(q), q))
	assert.False(t, Verify(FromQuery(q), `{"q":"y"}`))
}
