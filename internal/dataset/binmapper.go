package dataset

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/gomlx/exceptions"
)

// zeroEpsilon is the threshold below which a feature value is treated as an
// implicit zero and excluded from quantile statistics, matching §4.3's
// "|value| > 1e-15" rule.
const zeroEpsilon = 1e-15

// BinMapper is the external collaborator contract of §6: a quantizer that
// learns a mapping from a continuous feature's sampled values into a small
// integer bin id.
type BinMapper interface {
	// FindBin learns the quantization boundaries from sampleValues (a subset
	// of the feature's values across sampleSize rows; sampleValues omits
	// implicit zeros) bounded to at most maxBin distinct bins.
	FindBin(sampleValues []float64, sampleSize int, maxBin int) error

	// IsTrivial reports whether the learned mapping has a single bin: such a
	// feature carries no splitting signal and is dropped by the assembly step.
	IsTrivial() bool

	// ValueToBin maps a raw feature value to its discretized bin id.
	ValueToBin(value float64) uint32

	// NumBin returns the number of bins actually used (<= maxBin).
	NumBin() int

	// CopyTo serializes the mapper into buf, which must be exactly
	// SizeForSpecificBin(maxBin) bytes.
	CopyTo(buf []byte)

	// CopyFrom deserializes the mapper from buf, the inverse of CopyTo.
	CopyFrom(buf []byte)
}

// SizeForSpecificBin returns the fixed number of bytes CopyTo/CopyFrom always
// use for a mapper built with the given maxBin: a 2-byte bin count, a 1-byte
// triviality flag, and maxBin-1 upper bounds (float64) -- the last bin's
// upper bound is implicitly +Inf and isn't stored.
func SizeForSpecificBin(maxBin int) int {
	return 2 + 1 + 8*(maxBin-1)
}

// quantileBinMapper is the default BinMapper: an equal-frequency (quantile)
// histogram over the sorted sample, the same family of statistic
// CloudForest's DenseNumFeature numeric handling implies, adapted here to a
// fixed-cardinality (maxBin) output instead of CloudForest's ad hoc split
// search.
type quantileBinMapper struct {
	maxBin     int
	upperBound []float64 // length numBin-1; upperBound[i] is the inclusive upper bound of bin i.
	isTrivial  bool
}

var _ BinMapper = (*quantileBinMapper)(nil)

// NewBinMapper returns the default quantile-histogram BinMapper.
func NewBinMapper() BinMapper {
	return &quantileBinMapper{}
}

func (m *quantileBinMapper) FindBin(sampleValues []float64, sampleSize int, maxBin int) error {
	m.maxBin = maxBin
	if len(sampleValues) == 0 {
		// All-zero (or all-absent) feature: a single bin at 0.
		m.upperBound = nil
		m.isTrivial = true
		return nil
	}

	sorted := make([]float64, len(sampleValues))
	copy(sorted, sampleValues)
	sort.Float64s(sorted)

	distinct := distinctValues(sorted)
	if len(distinct) <= 1 {
		m.upperBound = nil
		m.isTrivial = true
		return nil
	}

	numBin := maxBin
	if numBin > len(distinct) {
		numBin = len(distinct)
	}
	if numBin < 1 {
		numBin = 1
	}

	m.upperBound = make([]float64, 0, numBin-1)
	for i := 1; i < numBin; i++ {
		// Equal-frequency boundary: the value at the i/numBin-th quantile of
		// the distinct-value population.
		pos := i * len(distinct) / numBin
		if pos >= len(distinct) {
			pos = len(distinct) - 1
		}
		boundary := distinct[pos]
		if len(m.upperBound) == 0 || m.upperBound[len(m.upperBound)-1] != boundary {
			m.upperBound = append(m.upperBound, boundary)
		}
	}
	m.isTrivial = len(m.upperBound) == 0
	return nil
}

func distinctValues(sorted []float64) []float64 {
	if len(sorted) == 0 {
		return nil
	}
	out := make([]float64, 0, len(sorted))
	out = append(out, sorted[0])
	for _, v := range sorted[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

func (m *quantileBinMapper) IsTrivial() bool { return m.isTrivial }

func (m *quantileBinMapper) NumBin() int {
	if m.isTrivial {
		return 1
	}
	return len(m.upperBound) + 1
}

func (m *quantileBinMapper) ValueToBin(value float64) uint32 {
	if m.isTrivial || len(m.upperBound) == 0 {
		return 0
	}
	// First bin whose upper bound is >= value.
	lo, hi := 0, len(m.upperBound)
	for lo < hi {
		mid := (lo + hi) / 2
		if value <= m.upperBound[mid] {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return uint32(lo)
}

func (m *quantileBinMapper) CopyTo(buf []byte) {
	size := SizeForSpecificBin(m.maxBin)
	if len(buf) != size {
		exceptions.Panicf("BinMapper.CopyTo: buffer must be exactly %d bytes, got %d", size, len(buf))
	}
	for i := range buf {
		buf[i] = 0
	}
	numBin := uint16(m.NumBin())
	binary.LittleEndian.PutUint16(buf[0:2], numBin)
	if m.isTrivial {
		buf[2] = 1
	}
	offset := 3
	for _, ub := range m.upperBound {
		binary.LittleEndian.PutUint64(buf[offset:offset+8], math.Float64bits(ub))
		offset += 8
	}
}

func (m *quantileBinMapper) CopyFrom(buf []byte) {
	numBin := int(binary.LittleEndian.Uint16(buf[0:2]))
	m.isTrivial = buf[2] != 0
	numBounds := numBin - 1
	if numBounds < 0 {
		numBounds = 0
	}
	m.upperBound = make([]float64, numBounds)
	offset := 3
	for i := range m.upperBound {
		m.upperBound[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[offset : offset+8]))
		offset += 8
	}
	m.maxBin = (len(buf)-3)/8 + 1
}
