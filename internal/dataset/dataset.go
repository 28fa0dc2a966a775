// Package dataset implements the dataset-loading and feature-binning core of
// a gradient boosting trainer: it resolves column roles, samples rows to
// learn per-feature bin mappers (in parallel, with a distributed allgather
// step), partitions rows across machines, and streams the source a second
// time to fill a binned, in-memory Dataset ready for tree learning.
package dataset

import "strconv"

// Dataset is the product of a DatasetBuilder run: rows partitioned across
// machines, feature values discretized into bounded-cardinality bins.
//
// A Dataset is exclusively owned by its builder during construction; once
// built it is handed out by ownership transfer and never mutated again.
// BinaryCodec re-partitions on reload by building a new Dataset.
type Dataset struct {
	NumData          int
	NumTotalFeatures int
	NumFeatures      int
	NumClass         int

	// UsedFeatureMap has length NumTotalFeatures; entry c is -1 if column c
	// was dropped (ignored or trivial), else the index into Features where
	// column c lives. The non-negative entries are a permutation of
	// 0..NumFeatures, assigned in ascending original-column order.
	UsedFeatureMap []int32

	// FeatureNames has length NumTotalFeatures; placeholders "Column_0", ...
	// are used when the source had no header.
	FeatureNames []string

	Features []*Feature

	Metadata *Metadata

	// IsLoadingFromBinFile records this Dataset's provenance.
	IsLoadingFromBinFile bool
}

// Validate checks the two invariants the builder's training-load flow
// enforces before handing the Dataset to a caller (§4.6, DataError row of
// §7): non-empty data and at least one usable feature. Validation-load flows
// (LoadFromFileAlignedWith) skip this call by design.
func (d *Dataset) Validate() error {
	if d.NumData == 0 {
		return newError(ErrData, "dataset has zero rows after partitioning")
	}
	if d.NumFeatures == 0 {
		return newError(ErrData, "dataset has zero usable features (all columns were ignored or trivial)")
	}
	return nil
}

// FeatureIndex returns the Features index for original (post-label-removal)
// column c, or -1 if c was dropped.
func (d *Dataset) FeatureIndex(c int) int {
	if c < 0 || c >= len(d.UsedFeatureMap) {
		return NoSpecific
	}
	return int(d.UsedFeatureMap[c])
}

// DroppedColumns returns the names (or placeholders) of every column that
// isn't present in Features, for diagnostics/logging.
func (d *Dataset) DroppedColumns() []string {
	var dropped []string
	for c, used := range d.UsedFeatureMap {
		if used >= 0 {
			continue
		}
		name := placeholderName(c)
		if c < len(d.FeatureNames) {
			name = d.FeatureNames[c]
		}
		dropped = append(dropped, name)
	}
	return dropped
}

// CopyFeatureMapperFrom copies bin mappers, UsedFeatureMap, and FeatureNames
// from train into d, used by LoadFromFileAlignedWith (§4.6 flow 2) so a
// validation Dataset is binned identically to its training Dataset.
func (d *Dataset) CopyFeatureMapperFrom(train *Dataset) {
	d.NumTotalFeatures = train.NumTotalFeatures
	d.NumFeatures = train.NumFeatures
	d.UsedFeatureMap = append([]int32(nil), train.UsedFeatureMap...)
	d.FeatureNames = append([]string(nil), train.FeatureNames...)
	d.Features = make([]*Feature, len(train.Features))
	for i, f := range train.Features {
		d.Features[i] = &Feature{Name: f.Name, Mapper: f.Mapper}
	}
}

func placeholderName(c int) string {
	return "Column_" + strconv.Itoa(c)
}
