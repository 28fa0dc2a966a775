package dataset

import (
	"math/rand"

	"github.com/gomlx/exceptions"
)

// Sampler drives every pseudo-random decision in the builder from a single
// seeded generator. It is not safe for concurrent use: per §5, the RNG is
// only ever touched from the orchestrator goroutine.
type Sampler struct {
	rng *rand.Rand
}

// NewSampler seeds a new Sampler. Same seed, same sequence of draws: this is
// the reproducibility contract §4.2 and §8 require.
func NewSampler(seed int64) *Sampler {
	return &Sampler{rng: rand.New(rand.NewSource(seed))}
}

// ChooseIndices returns min(n, k) distinct indices in [0, n), drawn uniformly
// without replacement. It implements a partial Fisher-Yates shuffle, so its
// cost is O(k), not O(n), once the population vector itself is O(n) to build
// -- acceptable since the caller bounds n by a line count already in memory.
func (s *Sampler) ChooseIndices(n, k int) []int {
	if k > n {
		k = n
	}
	if k <= 0 {
		return nil
	}
	pool := make([]int, n)
	for i := range pool {
		pool[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + s.rng.Intn(n-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	chosen := make([]int, k)
	copy(chosen, pool[:k])
	return chosen
}

// nextRank draws a uniform rank in [0, numMachines), consuming exactly one
// RNG draw -- the unit every partitioning predicate below is built from, so
// that row-granularity and group-granularity partitioning share one linear
// draw-per-decision-point ordering guarantee.
func (s *Sampler) nextRank(numMachines int) int {
	return s.rng.Intn(numMachines)
}

// RowPartitioner decides, one row at a time and in strictly increasing row
// order, whether row i is kept by the given rank. Reproducible under a fixed
// seed: the n-th call draws the n-th RNG sample, matching a single linear
// pass over the rows.
type RowPartitioner struct {
	sampler     *Sampler
	rank        int
	numMachines int
}

// NewRowPartitioner partitions at row granularity.
func NewRowPartitioner(sampler *Sampler, rank, numMachines int) *RowPartitioner {
	return &RowPartitioner{sampler: sampler, rank: rank, numMachines: numMachines}
}

// ShouldKeep must be called once per row index, in ascending order.
func (p *RowPartitioner) ShouldKeep(_ int) bool {
	return p.sampler.nextRank(p.numMachines) == p.rank
}

// GroupPartitioner decides whether a row is kept by carrying the partition
// decision for its whole query group: the RNG is drawn once per group, at
// the group's first row, and the decision is reused for every subsequent row
// of that group (§4.2 "group-granularity partitioning").
type GroupPartitioner struct {
	sampler     *Sampler
	rank        int
	numMachines int

	queryBoundaries []int64

	currentGroup int
	currentKeep  bool
	groupStarted bool
}

// NewGroupPartitioner partitions at query-group granularity. queryBoundaries
// must be a monotonically increasing array of length num_queries+1.
func NewGroupPartitioner(sampler *Sampler, rank, numMachines int, queryBoundaries []int64) *GroupPartitioner {
	return &GroupPartitioner{
		sampler:         sampler,
		rank:            rank,
		numMachines:     numMachines,
		queryBoundaries: queryBoundaries,
		currentGroup:    -1,
	}
}

// ShouldKeep must be called once per row index, in ascending order, rowIdx
// being the global row index (0-based) into the data the queryBoundaries
// were computed over.
func (p *GroupPartitioner) ShouldKeep(rowIdx int) bool {
	row64 := int64(rowIdx)
	qid := p.groupForRow(row64)
	if qid >= len(p.queryBoundaries)-1 {
		exceptions.Panicf("row %d maps to query id %d, which exceeds the declared number of queries (%d)",
			rowIdx, qid, len(p.queryBoundaries)-1)
	}
	if qid != p.currentGroup || !p.groupStarted {
		p.currentGroup = qid
		p.groupStarted = true
		p.currentKeep = p.sampler.nextRank(p.numMachines) == p.rank
	}
	return p.currentKeep
}

// groupForRow returns the index q such that queryBoundaries[q] <= row <
// queryBoundaries[q+1].
func (p *GroupPartitioner) groupForRow(row int64) int {
	// Linear scan forward from currentGroup: callers always present rows in
	// ascending order, so this is amortized O(1) per row, O(num_queries)
	// total over a full pass.
	q := p.currentGroup
	if q < 0 {
		q = 0
	}
	for q < len(p.queryBoundaries)-1 && row >= p.queryBoundaries[q+1] {
		q++
	}
	return q
}
