package dataset

// Metadata holds everything about a Dataset's rows that isn't a feature
// column: labels, optional weights, optional query/group boundaries, and an
// optional initial-score matrix.
type Metadata struct {
	// Label has length NumData.
	Label []float32

	// Weight has length NumData if weights are configured, else nil.
	Weight []float32

	// Query holds, for each row, the query/group id it belongs to. Nil if no
	// group column is configured.
	Query []int32

	// QueryBoundaries holds the first row of each group, of length
	// num_queries+1, with QueryBoundaries[num_queries] == NumData. Nil if no
	// group column is configured.
	QueryBoundaries []int64

	// InitScore is laid out column-major: InitScore[k*NumData+i] is the
	// initial score of class k for row i. Nil unless a predict_fun was
	// configured during extraction.
	InitScore []float64

	NumClass int
}

// NewMetadata allocates a Metadata for numData rows and numClass classes.
func NewMetadata(numData, numClass int, hasWeight, hasGroup bool) *Metadata {
	m := &Metadata{
		Label:    make([]float32, numData),
		NumClass: numClass,
	}
	if hasWeight {
		m.Weight = make([]float32, numData)
	}
	if hasGroup {
		m.Query = make([]int32, numData)
	}
	return m
}

// SetInitScore installs a precomputed, already column-major initial-score
// buffer of shape numData x NumClass.
func (m *Metadata) SetInitScore(buf []float64) {
	m.InitScore = buf
}

// FinalizeQueryBoundaries derives QueryBoundaries from Query, which must
// already be grouped into contiguous runs (as produced by in-order
// extraction). It is a no-op if Query is nil.
func (m *Metadata) FinalizeQueryBoundaries() {
	if m.Query == nil {
		return
	}
	boundaries := make([]int64, 0, 16)
	var lastQid int32 = -1
	for i, qid := range m.Query {
		if i == 0 || qid != lastQid {
			boundaries = append(boundaries, int64(i))
			lastQid = qid
		}
	}
	boundaries = append(boundaries, int64(len(m.Query)))
	m.QueryBoundaries = boundaries
}

// Subset returns a new Metadata retaining only the given (ascending, 0-based)
// row indices -- used by the binary codec when re-partitioning on reload.
func (m *Metadata) Subset(usedIndices []int) *Metadata {
	out := &Metadata{NumClass: m.NumClass}
	out.Label = make([]float32, len(usedIndices))
	for i, row := range usedIndices {
		out.Label[i] = m.Label[row]
	}
	if m.Weight != nil {
		out.Weight = make([]float32, len(usedIndices))
		for i, row := range usedIndices {
			out.Weight[i] = m.Weight[row]
		}
	}
	if m.Query != nil {
		out.Query = make([]int32, len(usedIndices))
		for i, row := range usedIndices {
			out.Query[i] = m.Query[row]
		}
		out.FinalizeQueryBoundaries()
	}
	if m.InitScore != nil {
		oldNumData := len(m.Label)
		out.InitScore = make([]float64, len(usedIndices)*m.NumClass)
		for k := 0; k < m.NumClass; k++ {
			for i, row := range usedIndices {
				out.InitScore[k*len(usedIndices)+i] = m.InitScore[k*oldNumData+row]
			}
		}
	}
	return out
}
