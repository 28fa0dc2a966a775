package dataset

import (
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/janpfeifer/gbdataset/internal/generics"
	"github.com/janpfeifer/gbdataset/internal/network"
	"github.com/janpfeifer/gbdataset/internal/textio/parser"
)

// BinConstructor drives per-feature BinMapper learning from a sample of
// parsed rows, either locally (single machine) or distributed via Allgather
// (§4.3).
type BinConstructor struct {
	MaxBin         int
	IgnoreFeatures generics.Set[int]
	FeatureNames   []string // optional, indexed by post-removal column; may be shorter than observed columns.
}

// ConstructResult is the output of a BinConstructor run: it becomes the
// Features/UsedFeatureMap/FeatureNames/NumTotalFeatures of the Dataset under
// construction.
type ConstructResult struct {
	NumTotalFeatures int
	UsedFeatureMap   []int32
	FeatureNames     []string
	Features         []*Feature
}

// Construct parses every sample line, builds per-column sample-value slices,
// and learns a BinMapper for every non-ignored column, either locally
// (numMachines == 1) or distributedly via allgather.
func (bc *BinConstructor) Construct(
	sampleLines []string, p parser.Parser, rank, numMachines int, allgather network.Allgather,
) (*ConstructResult, error) {
	sampleValues, sampleSize, numTotalFeatures, err := bc.collectSampleValues(sampleLines, p)
	if err != nil {
		return nil, err
	}

	names := bc.resolveFeatureNames(numTotalFeatures)

	var mappers []BinMapper // indexed by column, nil if ignored.
	if numMachines <= 1 {
		mappers, err = bc.buildLocal(sampleValues, sampleSize, numTotalFeatures)
	} else {
		mappers, err = bc.buildDistributed(sampleValues, sampleSize, numTotalFeatures, rank, numMachines, allgather)
	}
	if err != nil {
		return nil, err
	}

	return bc.assemble(mappers, names, numTotalFeatures), nil
}

// collectSampleValues implements §4.3 step 1-2: parse every sample line,
// appending each column's non-near-zero values into a ragged per-column
// array, and determine num_total_features as the highest observed column
// plus one.
func (bc *BinConstructor) collectSampleValues(sampleLines []string, p parser.Parser) (values [][]float64, sampleSize, numTotalFeatures int, err error) {
	sampleSize = len(sampleLines)
	for _, line := range sampleLines {
		pairs, _, parseErr := p.ParseOneLine(line)
		if parseErr != nil {
			return nil, 0, 0, wrapError(ErrFormat, parseErr, "parsing sample line")
		}
		for _, pair := range pairs {
			if pair.Column+1 > numTotalFeatures {
				numTotalFeatures = pair.Column + 1
			}
		}
	}

	values = make([][]float64, numTotalFeatures)
	for _, line := range sampleLines {
		pairs, _, _ := p.ParseOneLine(line)
		for _, pair := range pairs {
			if absFloat64(pair.Value) <= zeroEpsilon {
				continue
			}
			values[pair.Column] = append(values[pair.Column], pair.Value)
		}
	}
	return values, sampleSize, numTotalFeatures, nil
}

func absFloat64(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// resolveFeatureNames fills synthetic "Column_N" placeholders for any column
// beyond what a header provided, or for every column if there is no header
// at all (§4.3 step 3).
func (bc *BinConstructor) resolveFeatureNames(numTotalFeatures int) []string {
	names := make([]string, numTotalFeatures)
	for c := range names {
		if c < len(bc.FeatureNames) {
			names[c] = bc.FeatureNames[c]
		} else {
			names[c] = placeholderName(c)
		}
	}
	return names
}

// buildLocal implements §4.3 step 4: every non-ignored column's BinMapper is
// learned in parallel by a worker pool (fork-join, §5).
func (bc *BinConstructor) buildLocal(sampleValues [][]float64, sampleSize, numTotalFeatures int) ([]BinMapper, error) {
	mappers := make([]BinMapper, numTotalFeatures)
	g := new(errgroup.Group)
	for c := 0; c < numTotalFeatures; c++ {
		c := c
		if bc.IgnoreFeatures.Has(c) {
			continue
		}
		g.Go(func() error {
			m := NewBinMapper()
			if err := m.FindBin(sampleValues[c], sampleSize, bc.MaxBin); err != nil {
				return wrapError(ErrFormat, err, "learning bin mapper for column %d", c)
			}
			mappers[c] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mappers, nil
}

// buildDistributed implements §4.3 step 5: a contiguous, ceil-divided
// partition of the numTotalFeatures columns across numMachines ranks, each
// rank building BinMappers only for its shard, followed by one Allgather
// that gives every rank every shard.
func (bc *BinConstructor) buildDistributed(
	sampleValues [][]float64, sampleSize, numTotalFeatures, rank, numMachines int, allgather network.Allgather,
) ([]BinMapper, error) {
	starts, lens := shardColumns(numTotalFeatures, numMachines)
	typeSize := SizeForSpecificBin(bc.MaxBin)

	myStart, myLen := starts[rank], lens[rank]
	localBuf := make([]byte, myLen*typeSize)
	localMappers := make([]BinMapper, myLen)

	g := new(errgroup.Group)
	for i := 0; i < myLen; i++ {
		i := i
		c := myStart + i
		if bc.IgnoreFeatures.Has(c) {
			continue
		}
		g.Go(func() error {
			m := NewBinMapper()
			if err := m.FindBin(sampleValues[c], sampleSize, bc.MaxBin); err != nil {
				return wrapError(ErrFormat, err, "learning bin mapper for column %d", c)
			}
			localMappers[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, m := range localMappers {
		if m == nil {
			continue // ignored column: slot stays zeroed and is skipped when deserializing below.
		}
		m.CopyTo(localBuf[i*typeSize : (i+1)*typeSize])
	}

	byteStarts := make([]int, numMachines)
	byteLens := make([]int, numMachines)
	for r := 0; r < numMachines; r++ {
		byteStarts[r] = starts[r] * typeSize
		byteLens[r] = lens[r] * typeSize
	}
	totalBytes := numTotalFeatures * typeSize

	fullBuf, err := allgather.Allgather(rank, localBuf, totalBytes, byteStarts, byteLens)
	if err != nil {
		return nil, wrapError(ErrIO, err, "allgather of bin mappers across %d machines", numMachines)
	}

	mappers := make([]BinMapper, numTotalFeatures)
	for c := 0; c < numTotalFeatures; c++ {
		if bc.IgnoreFeatures.Has(c) {
			continue
		}
		m := NewBinMapper()
		m.CopyFrom(fullBuf[c*typeSize : (c+1)*typeSize])
		mappers[c] = m
	}
	return mappers, nil
}

// shardColumns computes a contiguous, ceil-divided partition of n columns
// across numMachines ranks: the last shard absorbs the remainder.
func shardColumns(n, numMachines int) (starts, lens []int) {
	starts = make([]int, numMachines)
	lens = make([]int, numMachines)
	per := (n + numMachines - 1) / numMachines
	for r := 0; r < numMachines; r++ {
		start := r * per
		if start > n {
			start = n
		}
		end := start + per
		if end > n {
			end = n
		}
		starts[r] = start
		lens[r] = end - start
	}
	return starts, lens
}

// assemble implements the "both paths" tail of §4.3: iterate columns in
// ascending order, drop any column whose mapper is nil or trivial, and
// assign the kept ones to ascending Features slots.
func (bc *BinConstructor) assemble(mappers []BinMapper, names []string, numTotalFeatures int) *ConstructResult {
	result := &ConstructResult{
		NumTotalFeatures: numTotalFeatures,
		UsedFeatureMap:   make([]int32, numTotalFeatures),
		FeatureNames:     names,
	}
	for c := 0; c < numTotalFeatures; c++ {
		m := mappers[c]
		if m == nil || m.IsTrivial() {
			result.UsedFeatureMap[c] = NoSpecific
			if m != nil {
				klog.V(1).Infof("dropping trivial feature %q (column %d)", names[c], c)
			} else if bc.IgnoreFeatures.Has(c) {
				klog.V(1).Infof("ignoring feature %q (column %d)", names[c], c)
			}
			continue
		}
		idx := len(result.Features)
		result.UsedFeatureMap[c] = int32(idx)
		result.Features = append(result.Features, &Feature{Name: names[c], Mapper: m})
	}
	return result
}
