package dataset

import (
	"runtime"
	"sort"
	"strings"

	"k8s.io/klog/v2"

	"github.com/janpfeifer/gbdataset/internal/network"
	"github.com/janpfeifer/gbdataset/internal/textio"
	"github.com/janpfeifer/gbdataset/internal/textio/parser"
)

// Builder orchestrates the three entry flows of §4.6: LoadFromFile,
// LoadFromFileAlignedWith, and ConstructFromSampleData. It owns the single
// Sampler every pseudo-random decision in a build is drawn from.
type Builder struct {
	Config      *Config
	Rank        int
	NumMachines int
	Allgather   network.Allgather

	sampler *Sampler
}

// NewBuilder creates a Builder for one rank of a (possibly) distributed
// build. allgather is ignored when NumMachines <= 1; pass network.SingleMachine{}
// in that case.
func NewBuilder(cfg *Config, rank, numMachines int, allgather network.Allgather) *Builder {
	return &Builder{
		Config:      cfg,
		Rank:        rank,
		NumMachines: numMachines,
		Allgather:   allgather,
		sampler:     NewSampler(cfg.DataRandomSeed),
	}
}

// LoadFromFile implements §4.6 flow 1. It resolves columns against the
// file's header (if any), defers to the ".bin" cache when present, and
// otherwise samples and builds bin mappers before extracting either from a
// fully materialized in-memory copy or, under UseTwoRoundLoading, directly
// from the file a second time.
func (b *Builder) LoadFromFile(path string) (*Dataset, error) {
	if b.NumMachines > 1 && !b.Config.IsPrePartition && b.Config.GroupColumn != "" {
		return nil, newError(ErrConfig,
			"group_column %q is configured in-data with %d machines and is_pre_partition=false; "+
				"group-aware multi-machine training requires either a pre-partitioned input or a separate query file",
			b.Config.GroupColumn, b.NumMachines)
	}

	reader := textio.NewFileReader(path, b.Config.HasHeader)
	var header []string
	if b.Config.HasHeader {
		firstLine, err := reader.FirstLine()
		if err != nil {
			return nil, wrapError(ErrIO, err, "reading header of %q", path)
		}
		header = splitHeader(firstLine)
	}
	roles, err := ResolveColumnRoles(b.Config, header)
	if err != nil {
		return nil, err
	}

	binPath := path + ".bin"
	if Exists(binPath) {
		ds, err := b.loadFromBinFile(binPath)
		if err != nil {
			return nil, err
		}
		return ds, ds.Validate()
	}

	firstDataLine, err := reader.FirstDataLine()
	if err != nil {
		return nil, wrapError(ErrIO, err, "reading first data line of %q", path)
	}
	format := parser.DetectFormat(firstDataLine)
	p, err := parser.New(format, roles.LabelIdx)
	if err != nil {
		return nil, wrapError(ErrFormat, err, "building parser")
	}

	var ds *Dataset
	if b.Config.UseTwoRoundLoading {
		ds, err = b.loadTwoRound(reader, roles, p)
	} else {
		ds, err = b.loadInMemory(reader, roles, p)
	}
	if err != nil {
		return nil, err
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

// LoadFromFileAlignedWith implements §4.6 flow 2: a single-machine read of
// path, binned with train's already-learned BinMappers instead of learning
// new ones. Validation is skipped, matching a prediction/eval dataset that
// may legitimately have zero rows or a feature train dropped.
func (b *Builder) LoadFromFileAlignedWith(path string, train *Dataset) (*Dataset, error) {
	reader := textio.NewFileReader(path, b.Config.HasHeader)
	var header []string
	if b.Config.HasHeader {
		firstLine, err := reader.FirstLine()
		if err != nil {
			return nil, wrapError(ErrIO, err, "reading header of %q", path)
		}
		header = splitHeader(firstLine)
	}
	roles, err := ResolveColumnRoles(b.Config, header)
	if err != nil {
		return nil, err
	}

	lines, numData, err := reader.ReadAllLines()
	if err != nil {
		return nil, wrapError(ErrIO, err, "reading %q", path)
	}

	format := parser.DetectFormat(firstLineOf(lines))
	p, err := parser.New(format, roles.LabelIdx)
	if err != nil {
		return nil, wrapError(ErrFormat, err, "building parser")
	}

	ds := &Dataset{NumClass: b.Config.NumClass}
	ds.CopyFeatureMapperFrom(train)

	result := &ConstructResult{
		NumTotalFeatures: train.NumTotalFeatures,
		UsedFeatureMap:   train.UsedFeatureMap,
		FeatureNames:     train.FeatureNames,
		Features:         ds.Features,
	}
	extractor := NewFeatureExtractor(roles, result, numData, numWorkers(), b.Config.IsEnableSparse, nil)
	if err := extractor.ExtractFromLines(lines, p); err != nil {
		return nil, err
	}
	ds.Features, ds.Metadata = extractor.Finish()
	ds.NumData = numData
	klog.V(1).Infof("LoadFromFileAlignedWith: binned %d rows of %q against an existing train dataset", numData, path)
	return ds, nil
}

// ConstructFromSampleData implements §4.6 flow 3: learn BinMappers directly
// from caller-supplied per-column sample arrays, bypassing text parsing
// entirely. The returned Dataset has NumData set to numData and a freshly
// allocated Metadata of that size, but no row has been pushed into its
// Features; it is meant to seed a Feature set that a caller fills itself
// (e.g. from an existing in-memory matrix).
func (b *Builder) ConstructFromSampleData(sampleValues [][]float64, totalSampleSize, numData int, featureNames []string) (*Dataset, error) {
	bc := &BinConstructor{MaxBin: b.Config.MaxBin, FeatureNames: featureNames}
	numTotalFeatures := len(sampleValues)
	names := bc.resolveFeatureNames(numTotalFeatures)

	mappers, err := bc.buildLocal(sampleValues, totalSampleSize, numTotalFeatures)
	if err != nil {
		return nil, err
	}
	result := bc.assemble(mappers, names, numTotalFeatures)

	ds := &Dataset{
		NumData:          numData,
		NumTotalFeatures: result.NumTotalFeatures,
		NumFeatures:      len(result.Features),
		NumClass:         b.Config.NumClass,
		UsedFeatureMap:   result.UsedFeatureMap,
		FeatureNames:     result.FeatureNames,
		Features:         result.Features,
		Metadata:         NewMetadata(numData, b.Config.NumClass, false, false),
	}
	return ds, nil
}

// loadFromBinFile implements the BinaryCodec precedence branch of §4.6 flow
// 1: it re-samples used_data_indices at this rank when this load is
// multi-machine and the Config is not IsPrePartition.
func (b *Builder) loadFromBinFile(binPath string) (*Dataset, error) {
	codec := &BinaryCodec{MaxBin: b.Config.MaxBin}
	var partition PartitionFunc
	if b.NumMachines > 1 && !b.Config.IsPrePartition {
		partition = func(queryBoundaries []int64) func(int) bool {
			if queryBoundaries != nil {
				return NewGroupPartitioner(b.sampler, b.Rank, b.NumMachines, queryBoundaries).ShouldKeep
			}
			return NewRowPartitioner(b.sampler, b.Rank, b.NumMachines).ShouldKeep
		}
	}
	result, err := codec.Read(binPath, partition)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("loadFromBinFile: read %q, global=%d rows, kept %d rows on rank %d", binPath, result.NumGlobalData, result.Dataset.NumData, b.Rank)
	return result.Dataset, nil
}

// loadTwoRound implements §4.6 flow 1's use_two_round_loading branch: the
// file is opened twice, once to reservoir-sample rows for bin construction,
// once to extract every retained row's discretized values.
func (b *Builder) loadTwoRound(reader *textio.FileReader, roles *ColumnRoles, p parser.Parser) (*Dataset, error) {
	var usedIndices []int
	var sampled []string
	var globalCount int
	var err error

	if b.NumMachines > 1 && !b.Config.IsPrePartition {
		keepRow := b.newPartitionPredicate()
		sampled, globalCount, err = reader.SampleAndFilterFromFile(keepRow, &usedIndices, b.sampler, b.Config.BinConstructSampleCount)
	} else {
		sampled, globalCount, err = reader.SampleFromFile(b.sampler, b.Config.BinConstructSampleCount)
	}
	if err != nil {
		return nil, wrapError(ErrIO, err, "sampling from file")
	}

	result, err := b.constructBins(sampled, p, roles)
	if err != nil {
		return nil, err
	}

	numData := globalCount
	if usedIndices != nil {
		numData = len(usedIndices)
	}

	ds := b.datasetFromConstructResult(result, numData)
	extractor := NewFeatureExtractor(roles, result, numData, numWorkers(), b.Config.IsEnableSparse, nil)
	if err := b.extractFromFileTwoRound(reader, extractor, p, usedIndices); err != nil {
		return nil, err
	}
	ds.Features, ds.Metadata = extractor.Finish()
	return ds, nil
}

// loadInMemory implements §4.6 flow 1's default branch: the whole file is
// read once into memory (optionally filtered to this rank's rows), sampled
// in place, and extracted in one pass.
func (b *Builder) loadInMemory(reader *textio.FileReader, roles *ColumnRoles, p parser.Parser) (*Dataset, error) {
	all, globalCount, err := reader.ReadAllLines()
	if err != nil {
		return nil, wrapError(ErrIO, err, "reading file")
	}

	lines := all
	if b.NumMachines > 1 && !b.Config.IsPrePartition {
		keepRow := b.newPartitionPredicate()
		lines = make([]string, 0, len(all))
		for i, line := range all {
			if keepRow(i) {
				lines = append(lines, line)
			}
		}
	}

	k := b.Config.BinConstructSampleCount
	if k > len(lines) {
		k = len(lines)
	}
	sampleIdx := b.sampler.ChooseIndices(len(lines), k)
	sampleLines := make([]string, len(sampleIdx))
	for i, idx := range sampleIdx {
		sampleLines[i] = lines[idx]
	}

	result, err := b.constructBins(sampleLines, p, roles)
	if err != nil {
		return nil, err
	}

	numData := len(lines)
	ds := b.datasetFromConstructResult(result, numData)
	extractor := NewFeatureExtractor(roles, result, numData, numWorkers(), b.Config.IsEnableSparse, nil)
	if err := extractor.ExtractFromLines(lines, p); err != nil {
		return nil, err
	}
	ds.Features, ds.Metadata = extractor.Finish()
	klog.V(1).Infof("loadInMemory: kept %d of %d rows on rank %d", numData, globalCount, b.Rank)
	return ds, nil
}

func (b *Builder) constructBins(sampleLines []string, p parser.Parser, roles *ColumnRoles) (*ConstructResult, error) {
	bc := &BinConstructor{
		MaxBin:         b.Config.MaxBin,
		IgnoreFeatures: roles.IgnoreFeatures,
		FeatureNames:   roles.FeatureNames,
	}
	return bc.Construct(sampleLines, p, b.Rank, b.NumMachines, b.Allgather)
}

func (b *Builder) datasetFromConstructResult(result *ConstructResult, numData int) *Dataset {
	return &Dataset{
		NumData:          numData,
		NumTotalFeatures: result.NumTotalFeatures,
		NumFeatures:      len(result.Features),
		NumClass:         b.Config.NumClass,
		UsedFeatureMap:   result.UsedFeatureMap,
		FeatureNames:     result.FeatureNames,
		Features:         result.Features,
	}
}

// newPartitionPredicate builds this rank's row-granularity keep-predicate
// (§4.2). Group-granularity partitioning is never reached from a text load:
// LoadFromFile already rejects an in-data group column combined with
// multi-machine, non-pre-partitioned input before getting here. Reloading a
// ".bin" file with a group column does use group granularity, in
// loadFromBinFile, where the query boundaries are already known.
func (b *Builder) newPartitionPredicate() textio.FilterFunc {
	rp := NewRowPartitioner(b.sampler, b.Rank, b.NumMachines)
	return rp.ShouldKeep
}

// extractFromFileTwoRound streams path a second time in parallel blocks,
// pushing only usedIndices rows (or every row, if usedIndices is nil) into
// extractor -- the two-round-loading half of §4.4. Each block's startIdx is
// a *global* row index; when usedIndices is set, a block's lines aren't
// contiguous in global-row space (though they are consecutive output rows),
// so every block's first output row is found by searching usedIndices for
// startIdx.
func (b *Builder) extractFromFileTwoRound(reader *textio.FileReader, extractor *FeatureExtractor, p parser.Parser, usedIndices []int) error {
	process := func(tid, startIdx int, lines []string) error {
		outStart := startIdx
		if usedIndices != nil {
			outStart = sort.SearchInts(usedIndices, startIdx)
		}
		for i, line := range lines {
			pairs, label, err := p.ParseOneLine(line)
			if err != nil {
				return wrapError(ErrFormat, err, "parsing row at global index %d", startIdx+i)
			}
			extractor.PushRow(tid, outStart+i, pairs, label)
		}
		return nil
	}
	return reader.ReadPartAndProcessParallel(usedIndices, process)
}

func numWorkers() int {
	return runtime.GOMAXPROCS(0)
}

// splitHeader tokenizes a header line on the same delimiter DetectFormat
// would pick for a data line: a literal tab selects TSV, else CSV.
func splitHeader(line string) []string {
	if strings.Contains(line, "\t") {
		return strings.Split(line, "\t")
	}
	return strings.Split(line, ",")
}

func firstLineOf(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return lines[0]
}
