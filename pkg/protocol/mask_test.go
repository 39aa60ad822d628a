package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMask_BitLayout(t *testing.T) {
	m, err := MaskOf(0, 1, 127)
	require.NoError(t, err)

	want := Mask{0x03, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x80}
	assert.Equal(t, want, m)
	assert.Equal(t, []int{0, 1, 127}, m.Slots())
	assert.Equal(t, 3, m.Count())
	assert.Equal(t, "{0,1,127}", m.String())
}

func TestMask_SetClear(t *testing.T) {
	var m Mask
	assert.True(t, m.IsZero())

	require.NoError(t, m.Set(64))
	assert.True(t, m.Has(64))
	assert.Equal(t, byte(0x01), m[8])

	require.NoError(t, m.Clear(64))
	assert.False(t, m.Has(64))
	assert.True(t, m.IsZero())
}

func TestMask_OutOfRange(t *testing.T) {
	var m Mask
	for _, bit := range []int{-1, 128, 1000} {
		err := m.Set(bit)
		assert.ErrorIs(t, err, ErrValidation, "bit %d", bit)
		assert.ErrorIs(t, err, ErrMaskBit, "bit %d", bit)
		assert.False(t, m.Has(bit))
	}
	assert.True(t, m.IsZero())

	_, err := MaskOf(3, 128)
	assert.ErrorIs(t, err, ErrMaskBit)
}

func TestParseMask(t *testing.T) {
	m, err := ParseMask("{0, 1,127}")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 127}, m.Slots())

	m, err = ParseMask("")
	require.NoError(t, err)
	assert.True(t, m.IsZero())

	_, err = ParseMask("1,x")
	assert.ErrorIs(t, err, ErrMaskBit)

	_, err = ParseMask("200")
	assert.ErrorIs(t, err, ErrMaskBit)
}
