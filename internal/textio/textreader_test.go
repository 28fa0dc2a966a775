package textio

import (
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestFileReader_FirstLineAndCountLine(t *testing.T) {
	path := writeTemp(t, "header\na\nb\nc\n")
	r := NewFileReader(path, true)

	first, err := r.FirstLine()
	require.NoError(t, err)
	assert.Equal(t, "header", first)

	n, err := r.CountLine()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestFileReader_ReadAllLines(t *testing.T) {
	path := writeTemp(t, "header\na\nb\nc\n")
	r := NewFileReader(path, true)
	lines, n, err := r.ReadAllLines()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"a", "b", "c"}, lines)
}

func TestFileReader_ReadAllLines_NoHeader(t *testing.T) {
	path := writeTemp(t, "a\nb\n")
	r := NewFileReader(path, false)
	lines, n, err := r.ReadAllLines()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b"}, lines)
}

func TestFileReader_ReadAndFilterLines(t *testing.T) {
	path := writeTemp(t, "header\na\nb\nc\nd\n")
	r := NewFileReader(path, true)
	var used []int
	n, err := r.ReadAndFilterLines(func(i int) bool { return i%2 == 0 }, &used)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []int{0, 2}, used)
}

func TestFileReader_SampleFromFile_ReturnsKLinesAndGlobalCount(t *testing.T) {
	path := writeTemp(t, "header\n1\n2\n3\n4\n5\n6\n7\n8\n9\n10\n")
	r := NewFileReader(path, true)
	rng := rand.New(rand.NewSource(42))
	sampled, n, err := r.SampleFromFile(rng, 4)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Len(t, sampled, 4)
}

func TestFileReader_SampleFromFile_KGreaterThanLineCount(t *testing.T) {
	path := writeTemp(t, "header\n1\n2\n")
	r := NewFileReader(path, true)
	rng := rand.New(rand.NewSource(1))
	sampled, n, err := r.SampleFromFile(rng, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, sampled, 2)
}

func TestFileReader_SampleAndFilterFromFile(t *testing.T) {
	path := writeTemp(t, "header\n1\n2\n3\n4\n5\n6\n")
	r := NewFileReader(path, true)
	rng := rand.New(rand.NewSource(7))
	var used []int
	sampled, n, err := r.SampleAndFilterFromFile(func(i int) bool { return i%2 == 0 }, &used, rng, 2)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, []int{0, 2, 4}, used)
	assert.Len(t, sampled, 2)
}

func TestFileReader_ReadPartAndProcessParallel_AllLines(t *testing.T) {
	path := writeTemp(t, "header\na\nb\nc\nd\ne\n")
	r := NewFileReader(path, true)

	var mu = make(chan struct{}, 1)
	mu <- struct{}{}
	var seen []int
	err := r.ReadAllAndProcessParallel(func(_, startIdx int, lines []string) error {
		<-mu
		for i := range lines {
			seen = append(seen, startIdx+i)
		}
		mu <- struct{}{}
		return nil
	})
	require.NoError(t, err)
	sort.Ints(seen)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, seen)
}

func TestFileReader_ReadPartAndProcessParallel_OnlyIndices(t *testing.T) {
	path := writeTemp(t, "header\na\nb\nc\nd\ne\n")
	r := NewFileReader(path, true)

	mu := make(chan struct{}, 1)
	mu <- struct{}{}
	var seen []string
	err := r.ReadPartAndProcessParallel([]int{1, 3}, func(_, startIdx int, lines []string) error {
		<-mu
		seen = append(seen, lines...)
		mu <- struct{}{}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(seen)
	assert.Equal(t, []string{"b", "d"}, seen)
}

func TestExists(t *testing.T) {
	path := writeTemp(t, "x\n")
	assert.True(t, Exists(path))
	assert.False(t, Exists(path+".nope"))
}
