package dataset

import (
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
)

// GoMLXTensors is the hand-off point between this package and a tree-learner:
// a built Dataset reduced to the flat tensors a training loop consumes.
// Feature values are int32 bin ids (not the original floats) since everything
// downstream of a BinMapper operates on discretized bins.
type GoMLXTensors struct {
	// Features has shape [NumData, NumFeatures], row-major, int32 bin ids.
	Features *tensors.Tensor

	// Labels has shape [NumData], float32.
	Labels *tensors.Tensor

	// Weights has shape [NumData], float32; nil if the dataset has no weight
	// column.
	Weights *tensors.Tensor

	// Queries has shape [NumData], int32; nil if the dataset has no group
	// column.
	Queries *tensors.Tensor
}

// ToGoMLXTensors exports d into row-major GoMLX tensors, following the same
// tensors.FromShape + tensors.MutableFlatData pattern the teacher's
// AlphaZeroFNN.createBoardsFeatures uses to fill a board-feature batch. It is
// the dataset package's only point of contact with a training loop: no tree
// or boosting logic lives here (that remains out of scope, per the
// package's Non-goals).
func (d *Dataset) ToGoMLXTensors() *GoMLXTensors {
	out := &GoMLXTensors{}

	featuresT := tensors.FromShape(shapes.Make(dtypes.Int32, d.NumData, d.NumFeatures))
	tensors.MutableFlatData(featuresT, func(flat []int32) {
		for col, feat := range d.Features {
			for row := 0; row < d.NumData; row++ {
				flat[row*d.NumFeatures+col] = int32(feat.BinAt(row))
			}
		}
	})
	out.Features = featuresT

	labelsT := tensors.FromShape(shapes.Make(dtypes.Float32, d.NumData))
	tensors.MutableFlatData(labelsT, func(flat []float32) {
		copy(flat, d.Metadata.Label)
	})
	out.Labels = labelsT

	if d.Metadata.Weight != nil {
		weightsT := tensors.FromShape(shapes.Make(dtypes.Float32, d.NumData))
		tensors.MutableFlatData(weightsT, func(flat []float32) {
			copy(flat, d.Metadata.Weight)
		})
		out.Weights = weightsT
	}

	if d.Metadata.Query != nil {
		queriesT := tensors.FromShape(shapes.Make(dtypes.Int32, d.NumData))
		tensors.MutableFlatData(queriesT, func(flat []int32) {
			copy(flat, d.Metadata.Query)
		})
		out.Queries = queriesT
	}

	return out
}
