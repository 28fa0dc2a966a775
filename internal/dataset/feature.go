package dataset

// Feature is one kept (non-trivial, non-ignored) column: it owns a BinMapper
// and holds the discretized bin id for every retained row.
//
// PushData is safe for concurrent callers as long as: (a) tid identifies a
// distinct pre-allocated shard, and (b) row indices are disjoint across
// threads -- see §4.4's thread-safety contract.
type Feature struct {
	Name   string
	Mapper BinMapper

	// sparse holds (row, bin) pairs per thread shard until FinishLoad,
	// used when the dataset is configured IsEnableSparse.
	sparse [][]sparseEntry

	// dense holds one bin id per row, indexed directly by row -- used when
	// IsEnableSparse is false (the default).
	dense []uint32

	isSparse bool
	finished bool
}

type sparseEntry struct {
	row int
	bin uint32
}

// NewFeature takes ownership of mapper and allocates storage for numData
// rows across numShards per-thread shards (§9 "ownership transfer of
// BinMapper into Feature").
func NewFeature(name string, mapper BinMapper, numData, numShards int, sparse bool) *Feature {
	f := &Feature{Name: name, Mapper: mapper, isSparse: sparse}
	if sparse {
		f.sparse = make([][]sparseEntry, numShards)
	} else {
		f.dense = make([]uint32, numData)
	}
	return f
}

// PushData discretizes value through the Feature's BinMapper and records it
// for row, using shard tid. When dense, this writes directly into the final
// row-indexed array; when sparse, it appends to the thread's shard, merged
// at FinishLoad.
func (f *Feature) PushData(tid, row int, value float64) {
	bin := f.Mapper.ValueToBin(value)
	if f.isSparse {
		f.sparse[tid] = append(f.sparse[tid], sparseEntry{row: row, bin: bin})
		return
	}
	f.dense[row] = bin
}

// FinishLoad merges per-thread sparse shards (if any) into the feature's
// final form. It implements the per-feature half of §4.4's "Dataset's
// FinishLoad hook".
func (f *Feature) FinishLoad(numData int) {
	if f.finished {
		return
	}
	f.finished = true
	if !f.isSparse {
		return
	}
	dense := make([]uint32, numData)
	for _, shard := range f.sparse {
		for _, e := range shard {
			dense[e.row] = e.bin
		}
	}
	// Keep the sparse representation if density is low, otherwise densify:
	// this mirrors CloudForest's DenseNumFeature/sparse choice made once
	// after all rows are known, rather than per-push.
	nonZero := 0
	for _, shard := range f.sparse {
		nonZero += len(shard)
	}
	if numData == 0 || float64(nonZero)/float64(numData) > 0.5 {
		f.dense = dense
		f.isSparse = false
		f.sparse = nil
	}
}

// BinAt returns the discretized bin id of row i.
func (f *Feature) BinAt(i int) uint32 {
	if !f.isSparse {
		return f.dense[i]
	}
	for _, shard := range f.sparse {
		for _, e := range shard {
			if e.row == i {
				return e.bin
			}
		}
	}
	return 0
}

// NumData returns how many rows this feature was allocated for, or -1 if it
// kept sparse storage after FinishLoad.
func (f *Feature) NumData() int {
	if !f.isSparse {
		return len(f.dense)
	}
	// Sparse storage doesn't track numData directly; callers track it via
	// the owning Dataset.
	return -1
}
