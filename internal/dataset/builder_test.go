package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janpfeifer/gbdataset/internal/network"
)

func writeTempFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestBuilder_LoadFromFile_BasicCSVWithHeader(t *testing.T) {
	// Scenario 1 of spec §8.
	dir := t.TempDir()
	path := writeTempFile(t, dir, "data.csv", "a,b,c,label\n1,2,3,0\n4,5,6,1\n7,8,9,0\n")

	cfg := DefaultConfig()
	cfg.LabelColumn = "name:label"
	cfg.MaxBin = 16
	cfg.BinConstructSampleCount = 1000

	b := NewBuilder(cfg, 0, 1, network.SingleMachine{})
	ds, err := b.LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 3, ds.NumData)
	assert.Equal(t, 3, ds.NumTotalFeatures)
	assert.Equal(t, []string{"a", "b", "c"}, ds.FeatureNames)
	assert.Equal(t, 3, ds.NumFeatures)
	require.NotNil(t, ds.Metadata)
	assert.Equal(t, []float32{0, 1, 0}, ds.Metadata.Label)
}

func TestBuilder_LoadFromFile_TwoRoundMatchesInMemory(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "data.csv", "a,b,label\n1,10,0\n2,20,1\n3,30,0\n4,40,1\n5,50,0\n")

	newCfg := func(twoRound bool) *Config {
		cfg := DefaultConfig()
		cfg.LabelColumn = "name:label"
		cfg.MaxBin = 16
		cfg.BinConstructSampleCount = 1000
		cfg.UseTwoRoundLoading = twoRound
		return cfg
	}

	inMem, err := NewBuilder(newCfg(false), 0, 1, network.SingleMachine{}).LoadFromFile(path)
	require.NoError(t, err)
	twoRound, err := NewBuilder(newCfg(true), 0, 1, network.SingleMachine{}).LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, inMem.NumData, twoRound.NumData)
	assert.Equal(t, inMem.NumFeatures, twoRound.NumFeatures)
	assert.Equal(t, inMem.Metadata.Label, twoRound.Metadata.Label)
}

func TestBuilder_LoadFromFile_IgnoreAndWeightColumns(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "data.csv",
		"id,x,y,label,w\n1,10,100,0,1.0\n2,20,200,1,2.0\n3,30,300,0,1.5\n4,40,400,1,0.5\n")

	cfg := DefaultConfig()
	cfg.LabelColumn = "name:label"
	cfg.WeightColumn = "name:w"
	cfg.IgnoreColumn = "name:id"
	cfg.MaxBin = 16
	cfg.BinConstructSampleCount = 1000

	ds, err := NewBuilder(cfg, 0, 1, network.SingleMachine{}).LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 4, ds.NumData)
	// id and w are dropped (ignored); only x, y remain.
	assert.Equal(t, 2, ds.NumFeatures)
	require.NotNil(t, ds.Metadata.Weight)
	assert.Equal(t, []float32{1.0, 2.0, 1.5, 0.5}, ds.Metadata.Weight)
}

func TestBuilder_BinFileTakesPrecedence(t *testing.T) {
	// Scenario 6 of spec §8.
	dir := t.TempDir()
	path := writeTempFile(t, dir, "data.csv", "a,b,label\n1,2,0\n3,4,1\n5,6,0\n")

	cfg := DefaultConfig()
	cfg.LabelColumn = "name:label"
	cfg.MaxBin = 16
	cfg.BinConstructSampleCount = 1000

	original, err := NewBuilder(cfg, 0, 1, network.SingleMachine{}).LoadFromFile(path)
	require.NoError(t, err)

	codec := &BinaryCodec{MaxBin: cfg.MaxBin}
	require.NoError(t, codec.Write(path+".bin", original))

	// Modifying the CSV must have no effect now that the .bin cache exists.
	require.NoError(t, os.WriteFile(path, []byte("a,b,label\n999,999,1\n"), 0o644))

	reloaded, err := NewBuilder(cfg, 0, 1, network.SingleMachine{}).LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, original.NumData, reloaded.NumData)
	assert.Equal(t, original.Metadata.Label, reloaded.Metadata.Label)
	assert.True(t, reloaded.IsLoadingFromBinFile)
}

func TestBuilder_RoundTrip_WriteThenRead(t *testing.T) {
	// §8: Build(text) -> Write(bin) -> Read(bin) round trip.
	dir := t.TempDir()
	path := writeTempFile(t, dir, "data.csv", "a,b,c,label\n1,2,3,0\n4,5,6,1\n7,8,9,0\n10,11,12,1\n")

	cfg := DefaultConfig()
	cfg.LabelColumn = "name:label"
	cfg.MaxBin = 16
	cfg.BinConstructSampleCount = 1000

	built, err := NewBuilder(cfg, 0, 1, network.SingleMachine{}).LoadFromFile(path)
	require.NoError(t, err)

	binPath := filepath.Join(dir, "roundtrip.bin")
	codec := &BinaryCodec{MaxBin: cfg.MaxBin}
	require.NoError(t, codec.Write(binPath, built))

	result, err := codec.Read(binPath, nil)
	require.NoError(t, err)
	reloaded := result.Dataset

	assert.Equal(t, built.NumData, reloaded.NumData)
	assert.Equal(t, built.NumTotalFeatures, reloaded.NumTotalFeatures)
	assert.Equal(t, built.NumFeatures, reloaded.NumFeatures)
	assert.Equal(t, built.UsedFeatureMap, reloaded.UsedFeatureMap)
	assert.Equal(t, built.FeatureNames, reloaded.FeatureNames)
	assert.Equal(t, built.Metadata.Label, reloaded.Metadata.Label)
}

func TestBuilder_RoundTrip_RepartitionOnReload(t *testing.T) {
	// Scenario 5 of spec §8, at a smaller scale: write a dataset built at
	// num_machines=1, then reload it split across 4 ranks. Every rank's row
	// count must be reproducible across independent reloads, and the ranks'
	// kept rows must partition the global rows exactly (disjoint, covering).
	dir := t.TempDir()
	const numRows = 200
	lines := "x,label\n"
	for i := 0; i < numRows; i++ {
		lines += fmt.Sprintf("%d,%d\n", i%7, i%2)
	}
	path := writeTempFile(t, dir, "data.csv", lines)

	cfg := DefaultConfig()
	cfg.LabelColumn = "name:label"
	cfg.MaxBin = 16
	cfg.BinConstructSampleCount = 1000

	built, err := NewBuilder(cfg, 0, 1, network.SingleMachine{}).LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, numRows, built.NumData)

	binPath := filepath.Join(dir, "repartition.bin")
	codec := &BinaryCodec{MaxBin: cfg.MaxBin}
	require.NoError(t, codec.Write(binPath, built))

	const numMachines = 4
	loadAllRanks := func() []*Dataset {
		out := make([]*Dataset, numMachines)
		for rank := 0; rank < numMachines; rank++ {
			b := NewBuilder(cfg, rank, numMachines, network.SingleMachine{})
			ds, err := b.loadFromBinFile(binPath)
			require.NoError(t, err)
			out[rank] = ds
		}
		return out
	}

	first := loadAllRanks()
	second := loadAllRanks()

	totalKept := 0
	for rank := 0; rank < numMachines; rank++ {
		assert.Equal(t, first[rank].NumData, len(first[rank].Metadata.Label))
		// Reproducible: an independent reload at the same rank keeps the same rows.
		assert.Equal(t, first[rank].NumData, second[rank].NumData)
		assert.Equal(t, first[rank].Metadata.Label, second[rank].Metadata.Label)
		totalKept += first[rank].NumData
	}
	// Every global row is assigned to exactly one rank.
	assert.Equal(t, numRows, totalKept)
}

func TestBuilder_MultiMachineGroupColumnWithoutPrePartitionIsFatal(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "data.csv", "x,label,qid\n1,0,0\n2,1,0\n3,0,1\n")

	cfg := DefaultConfig()
	cfg.LabelColumn = "name:label"
	cfg.GroupColumn = "name:qid"
	cfg.IsPrePartition = false

	_, err := NewBuilder(cfg, 0, 2, network.SingleMachine{}).LoadFromFile(path)
	require.Error(t, err)
	var dsErr *Error
	require.ErrorAs(t, err, &dsErr)
	assert.Equal(t, ErrConfig, dsErr.Kind())
}

func TestBuilder_ConstructFromSampleData(t *testing.T) {
	b := NewBuilder(DefaultConfig(), 0, 1, network.SingleMachine{})
	sampleValues := [][]float64{
		{1, 2, 3, 4, 5},
		{5, 5, 5, 5, 5}, // trivial, will be dropped
	}
	ds, err := b.ConstructFromSampleData(sampleValues, 5, 100, []string{"f0", "f1"})
	require.NoError(t, err)
	assert.Equal(t, 100, ds.NumData)
	assert.Equal(t, 2, ds.NumTotalFeatures)
	assert.Equal(t, 1, ds.NumFeatures)
	assert.Equal(t, int32(0), ds.UsedFeatureMap[0])
	assert.Equal(t, int32(NoSpecific), ds.UsedFeatureMap[1])
}

func TestBuilder_LoadFromFileAlignedWith(t *testing.T) {
	dir := t.TempDir()
	trainPath := writeTempFile(t, dir, "train.csv", "a,b,label\n1,10,0\n2,20,1\n3,30,0\n4,40,1\n5,50,0\n6,60,1\n")
	validPath := writeTempFile(t, dir, "valid.csv", "a,b,label\n7,70,1\n8,80,0\n")

	cfg := DefaultConfig()
	cfg.LabelColumn = "name:label"
	cfg.MaxBin = 16
	cfg.BinConstructSampleCount = 1000

	train, err := NewBuilder(cfg, 0, 1, network.SingleMachine{}).LoadFromFile(trainPath)
	require.NoError(t, err)

	b := NewBuilder(cfg, 0, 1, network.SingleMachine{})
	valid, err := b.LoadFromFileAlignedWith(validPath, train)
	require.NoError(t, err)

	assert.Equal(t, 2, valid.NumData)
	assert.Equal(t, train.UsedFeatureMap, valid.UsedFeatureMap)
	assert.Equal(t, train.FeatureNames, valid.FeatureNames)
	assert.Equal(t, []float32{1, 0}, valid.Metadata.Label)
}
