package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatCSV, DetectFormat("1,2,3"))
	assert.Equal(t, FormatTSV, DetectFormat("1\t2\t3"))
	assert.Equal(t, FormatLibSVM, DetectFormat("1 1:0.5 2:0.3 3:1.0"))
}

func TestDelimitedParser_CSV(t *testing.T) {
	p, err := New(FormatCSV, 3) // label is the 4th (original) column.
	require.NoError(t, err)
	pairs, label, err := p.ParseOneLine("1,2,3,9")
	require.NoError(t, err)
	assert.Equal(t, float64(9), label)
	assert.Equal(t, []ColumnValue{{0, 1}, {1, 2}, {2, 3}}, pairs)
}

func TestDelimitedParser_LabelNotFirstColumn(t *testing.T) {
	p, err := New(FormatCSV, 0)
	require.NoError(t, err)
	pairs, label, err := p.ParseOneLine("9,1,2,3")
	require.NoError(t, err)
	assert.Equal(t, float64(9), label)
	assert.Equal(t, []ColumnValue{{0, 1}, {1, 2}, {2, 3}}, pairs)
}

func TestDelimitedParser_EmptyFieldIsZero(t *testing.T) {
	p, err := New(FormatCSV, -1)
	require.NoError(t, err)
	pairs, _, err := p.ParseOneLine("1,,3")
	require.NoError(t, err)
	assert.Equal(t, []ColumnValue{{0, 1}, {1, 0}, {2, 3}}, pairs)
}

func TestDelimitedParser_TSV(t *testing.T) {
	p, err := New(FormatTSV, -1)
	require.NoError(t, err)
	pairs, _, err := p.ParseOneLine("1\t2\t3")
	require.NoError(t, err)
	assert.Equal(t, []ColumnValue{{0, 1}, {1, 2}, {2, 3}}, pairs)
}

func TestDelimitedParser_MalformedValueIsError(t *testing.T) {
	p, err := New(FormatCSV, -1)
	require.NoError(t, err)
	_, _, err = p.ParseOneLine("1,abc,3")
	require.Error(t, err)
}

func TestLibSVMParser(t *testing.T) {
	p, err := New(FormatLibSVM, -1)
	require.NoError(t, err)
	pairs, label, err := p.ParseOneLine("1 1:0.5 3:2.0")
	require.NoError(t, err)
	assert.Equal(t, float64(1), label)
	// LibSVM indices are 1-based; shifted to 0-based.
	assert.Equal(t, []ColumnValue{{0, 0.5}, {2, 2.0}}, pairs)
}

func TestLibSVMParser_MalformedPairIsError(t *testing.T) {
	p, err := New(FormatLibSVM, -1)
	require.NoError(t, err)
	_, _, err = p.ParseOneLine("1 bad_pair")
	require.Error(t, err)
}

func TestLibSVMParser_EmptyLineIsError(t *testing.T) {
	p, err := New(FormatLibSVM, -1)
	require.NoError(t, err)
	_, _, err = p.ParseOneLine("")
	require.Error(t, err)
}

func TestNew_UnknownFormatIsError(t *testing.T) {
	_, err := New(FormatUnknown, 0)
	require.Error(t, err)
}
