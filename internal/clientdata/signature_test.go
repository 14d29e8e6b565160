package clientdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignatureKey_Stable(t *testing.T) {
	a, err := NewSignature("fnlttSinglAcntAll", "00126380", 2023, "11011", "CFS").Key()
	require.NoError(t, err)
	b, err := NewSignature("fnlttSinglAcntAll", "00126380", 2023, "11011", "CFS").Key()
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestSignatureKey_KnownValue(t *testing.T) {
	// sha256 of `["a",1]`
	key, err := Signature{"a", 1}.Key()
	require.NoError(t, err)
	assert.Equal(t, "135f17a475a61afdeeaf3759ad2e45ad1c7abb192395abe47e41fc8e395dc1a9", key)
}

func TestSignatureKey_OrderMatters(t *testing.T) {
	a, err := Signature{"x", "y"}.Key()
	require.NoError(t, err)
	b, err := Signature{"y", "x"}.Key()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestSignatureKey_TypeMatters(t *testing.T) {
	a, err := Signature{"2023"}.Key()
	require.NoError(t, err)
	b, err := Signature{2023}.Key()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestSignatureKey_NonScalar(t *testing.T) {
	_, err := Signature{"ok", map[string]int{"a": 1}}.Key()
	assert.ErrorContains(t, err, "signature part 1")
}
