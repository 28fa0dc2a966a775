package dataset

import (
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/janpfeifer/gbdataset/internal/textio/parser"
)

// PredictFunc computes an initial-score vector of length numClass for one
// parsed row, used to warm-start boosting from a previously trained model
// (§4.4's predict_fun hook). It receives the row's feature pairs exactly as
// the Parser produced them (pre-binning, post-label-removal coordinates).
type PredictFunc func(pairs []parser.ColumnValue) []float64

// FeatureExtractor implements §4.4: given a ConstructResult's BinMapper
// assignment, it streams rows a second time (or, for in-memory loads, the
// same rows already held), discretizes every value through its feature's
// BinMapper, and fills a Dataset's Metadata.
//
// PushRow calls for distinct row indices are safe to call concurrently, as
// long as each goroutine owns a distinct shard id tid in [0, numShards); this
// mirrors the teacher's errgroup-per-worker fan-out pattern used throughout
// cmd/trainer's self-play loop.
type FeatureExtractor struct {
	roles   *ColumnRoles
	result  *ConstructResult
	predict PredictFunc

	numData   int
	numShards int

	features []*Feature
	meta     *Metadata
}

// NewFeatureExtractor allocates a FeatureExtractor that will fill numData
// rows across numShards concurrent shards, one Feature per column kept by
// result, plus the label/weight/group metadata resolved by roles.
func NewFeatureExtractor(roles *ColumnRoles, result *ConstructResult, numData, numShards int, sparse bool, predict PredictFunc) *FeatureExtractor {
	features := make([]*Feature, len(result.Features))
	for i, f := range result.Features {
		features[i] = NewFeature(f.Name, f.Mapper, numData, numShards, sparse)
	}
	meta := NewMetadata(numData, 1, roles.WeightIdx != NoSpecific, roles.GroupIdx != NoSpecific)
	return &FeatureExtractor{
		roles:     roles,
		result:    result,
		predict:   predict,
		numData:   numData,
		numShards: numShards,
		features:  features,
		meta:      meta,
	}
}

// PushRow discretizes one parsed row into shard tid, row row, recording its
// label/weight/group into the Metadata and, if a PredictFunc was configured,
// its initial score.
func (e *FeatureExtractor) PushRow(tid, row int, pairs []parser.ColumnValue, label float64) {
	for _, pair := range pairs {
		idx := e.result.UsedFeatureMap[pair.Column]
		if idx < 0 {
			continue
		}
		e.features[idx].PushData(tid, row, pair.Value)
	}

	e.meta.Label[row] = float32(label)

	if e.roles.WeightIdx != NoSpecific {
		for _, pair := range pairs {
			if pair.Column == e.roles.WeightIdx {
				e.meta.Weight[row] = float32(pair.Value)
				break
			}
		}
	}
	if e.roles.GroupIdx != NoSpecific {
		for _, pair := range pairs {
			if pair.Column == e.roles.GroupIdx {
				e.meta.Query[row] = int32(pair.Value)
				break
			}
		}
	}

	if e.predict != nil {
		e.pushInitScore(row, pairs)
	}
}

// pushInitScore lazily allocates the column-major InitScore buffer on first
// use, then fills row's column for every class.
func (e *FeatureExtractor) pushInitScore(row int, pairs []parser.ColumnValue) {
	scores := e.predict(pairs)
	if e.meta.InitScore == nil {
		e.meta.NumClass = len(scores)
		e.meta.InitScore = make([]float64, e.numData*len(scores))
	}
	for k, s := range scores {
		e.meta.InitScore[k*e.numData+row] = s
	}
}

// ExtractFromLines parses and pushes every line in parallel, sharding rows
// across errgroup workers the way the teacher's self-play loop shards games
// across goroutines: each worker owns a contiguous row range and its own
// shard id, so Feature.PushData never races.
func (e *FeatureExtractor) ExtractFromLines(lines []string, p parser.Parser) error {
	numWorkers := e.numShards
	if numWorkers <= 0 {
		numWorkers = 1
	}
	chunk := (len(lines) + numWorkers - 1) / numWorkers
	if chunk == 0 {
		chunk = 1
	}

	g := new(errgroup.Group)
	for w := 0; w < numWorkers; w++ {
		start := w * chunk
		end := start + chunk
		if start >= len(lines) {
			break
		}
		if end > len(lines) {
			end = len(lines)
		}
		tid := w
		g.Go(func() error {
			for row := start; row < end; row++ {
				pairs, label, err := p.ParseOneLine(lines[row])
				if err != nil {
					return wrapError(ErrFormat, err, "parsing row %d", row)
				}
				e.PushRow(tid, row, pairs, label)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	klog.V(2).Infof("FeatureExtractor: extracted %d rows across %d features with %d workers", len(lines), len(e.features), numWorkers)
	return nil
}

// Finish merges every Feature's per-thread shards and finalizes query
// boundaries, producing the Dataset fields this extraction run owns.
func (e *FeatureExtractor) Finish() ([]*Feature, *Metadata) {
	for _, f := range e.features {
		f.FinishLoad(e.numData)
	}
	e.meta.FinalizeQueryBoundaries()
	return e.features, e.meta
}
