package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinMapper_TrivialAllSameValue(t *testing.T) {
	// Scenario 3 of spec §8: a column whose sampled values are all 5.0.
	m := NewBinMapper()
	values := []float64{5, 5, 5, 5, 5}
	require.NoError(t, m.FindBin(values, len(values), 16))
	assert.True(t, m.IsTrivial())
	assert.Equal(t, 1, m.NumBin())
}

func TestBinMapper_TrivialEmptySample(t *testing.T) {
	m := NewBinMapper()
	require.NoError(t, m.FindBin(nil, 10, 16))
	assert.True(t, m.IsTrivial())
}

func TestBinMapper_NonTrivialBinsUpToMaxBin(t *testing.T) {
	m := NewBinMapper()
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, m.FindBin(values, len(values), 4))
	assert.False(t, m.IsTrivial())
	assert.LessOrEqual(t, m.NumBin(), 4)
	assert.GreaterOrEqual(t, m.NumBin(), 2)
}

func TestBinMapper_ValueToBinMonotonic(t *testing.T) {
	m := NewBinMapper()
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	require.NoError(t, m.FindBin(values, len(values), 5))
	lastBin := m.ValueToBin(-1000)
	for _, v := range []float64{0, 1, 2, 5, 8, 10, 1000} {
		bin := m.ValueToBin(v)
		assert.GreaterOrEqual(t, bin, lastBin)
		lastBin = bin
	}
}

func TestBinMapper_CopyToFromRoundTrip(t *testing.T) {
	maxBin := 8
	m := NewBinMapper()
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	require.NoError(t, m.FindBin(values, len(values), maxBin))

	buf := make([]byte, SizeForSpecificBin(maxBin))
	m.CopyTo(buf)

	restored := NewBinMapper()
	restored.CopyFrom(buf)

	assert.Equal(t, m.IsTrivial(), restored.IsTrivial())
	assert.Equal(t, m.NumBin(), restored.NumBin())
	for _, v := range []float64{0, 1, 3, 5, 9, 100} {
		assert.Equal(t, m.ValueToBin(v), restored.ValueToBin(v))
	}
}

func TestBinMapper_CopyToFromRoundTrip_Trivial(t *testing.T) {
	maxBin := 255
	m := NewBinMapper()
	require.NoError(t, m.FindBin([]float64{3, 3, 3}, 3, maxBin))

	buf := make([]byte, SizeForSpecificBin(maxBin))
	m.CopyTo(buf)

	restored := NewBinMapper()
	restored.CopyFrom(buf)
	assert.True(t, restored.IsTrivial())
}

func TestBinMapper_CopyToWrongSizePanics(t *testing.T) {
	m := NewBinMapper()
	require.NoError(t, m.FindBin([]float64{1, 2, 3}, 3, 4))
	assert.Panics(t, func() {
		m.CopyTo(make([]byte, 1))
	})
}

func TestSizeForSpecificBin(t *testing.T) {
	assert.Equal(t, 3, SizeForSpecificBin(1))
	assert.Equal(t, 11, SizeForSpecificBin(2))
	assert.Equal(t, 3+8*254, SizeForSpecificBin(255))
}
