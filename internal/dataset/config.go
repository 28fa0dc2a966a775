package dataset

import (
	"github.com/janpfeifer/gbdataset/internal/parameters"
)

// NoSpecific is the sentinel for "no column assigned to this role".
const NoSpecific = -1

// Config is frozen at builder construction time: roles are resolved once on
// first file touch, and the Dataset built from it is mutated only during its
// own construction.
type Config struct {
	// HasHeader indicates the source file's first line names its columns.
	HasHeader bool

	// LabelColumn, WeightColumn, GroupColumn and IgnoreColumn accept either
	// "name:<header>" (requires HasHeader) or a plain non-negative integer
	// column index. IgnoreColumn additionally accepts a comma-separated list.
	LabelColumn  string
	WeightColumn string
	GroupColumn  string
	IgnoreColumn string

	// MaxBin caps the cardinality of every feature's histogram.
	MaxBin int

	// BinConstructSampleCount bounds how many rows are sampled to learn bin
	// mappers.
	BinConstructSampleCount int

	// UseTwoRoundLoading avoids materializing the whole file in memory: the
	// file is read once to sample rows for bin construction, and a second
	// time to extract discretized values.
	UseTwoRoundLoading bool

	// IsPrePartition asserts the input is already split per machine: the
	// builder reads every row instead of sub-sampling by rank.
	IsPrePartition bool

	// IsEnableSparse lets Feature columns choose a sparse in-memory layout.
	IsEnableSparse bool

	// NumClass is the number of model output classes (>= 1).
	NumClass int

	// DataRandomSeed seeds every pseudo-random decision: row sampling,
	// machine partitioning, and (indirectly, via sampling) trivial-feature
	// detection.
	DataRandomSeed int64
}

// DefaultConfig returns a Config with the same defaults LightGBM-style
// trainers assume when a field is left unset.
func DefaultConfig() *Config {
	return &Config{
		HasHeader:               true,
		MaxBin:                  255,
		BinConstructSampleCount: 200000,
		NumClass:                1,
		DataRandomSeed:          1,
	}
}

// FromParams overlays a parameters.Params configuration string onto a copy of
// the default Config, the same way the teacher overlays AI hyperparameters in
// its "-ai" flag (see internal/parameters.NewFromConfigString).
func FromParams(params parameters.Params) (*Config, error) {
	cfg := DefaultConfig()
	var err error
	if cfg.HasHeader, err = parameters.GetParamOr(params, "has_header", cfg.HasHeader); err != nil {
		return nil, wrapError(ErrConfig, err, "parsing has_header")
	}
	if cfg.LabelColumn, err = parameters.GetParamOr(params, "label_column", cfg.LabelColumn); err != nil {
		return nil, wrapError(ErrConfig, err, "parsing label_column")
	}
	if cfg.WeightColumn, err = parameters.GetParamOr(params, "weight_column", cfg.WeightColumn); err != nil {
		return nil, wrapError(ErrConfig, err, "parsing weight_column")
	}
	if cfg.GroupColumn, err = parameters.GetParamOr(params, "group_column", cfg.GroupColumn); err != nil {
		return nil, wrapError(ErrConfig, err, "parsing group_column")
	}
	if cfg.IgnoreColumn, err = parameters.GetParamOr(params, "ignore_column", cfg.IgnoreColumn); err != nil {
		return nil, wrapError(ErrConfig, err, "parsing ignore_column")
	}
	if cfg.MaxBin, err = parameters.GetParamOr(params, "max_bin", cfg.MaxBin); err != nil {
		return nil, wrapError(ErrConfig, err, "parsing max_bin")
	}
	if cfg.BinConstructSampleCount, err = parameters.GetParamOr(params, "bin_construct_sample_cnt", cfg.BinConstructSampleCount); err != nil {
		return nil, wrapError(ErrConfig, err, "parsing bin_construct_sample_cnt")
	}
	if cfg.UseTwoRoundLoading, err = parameters.GetParamOr(params, "two_round", cfg.UseTwoRoundLoading); err != nil {
		return nil, wrapError(ErrConfig, err, "parsing two_round")
	}
	if cfg.IsPrePartition, err = parameters.GetParamOr(params, "is_pre_partition", cfg.IsPrePartition); err != nil {
		return nil, wrapError(ErrConfig, err, "parsing is_pre_partition")
	}
	if cfg.IsEnableSparse, err = parameters.GetParamOr(params, "is_enable_sparse", cfg.IsEnableSparse); err != nil {
		return nil, wrapError(ErrConfig, err, "parsing is_enable_sparse")
	}
	if cfg.NumClass, err = parameters.GetParamOr(params, "num_class", cfg.NumClass); err != nil {
		return nil, wrapError(ErrConfig, err, "parsing num_class")
	}
	var seed int
	if seed, err = parameters.GetParamOr(params, "data_random_seed", int(cfg.DataRandomSeed)); err != nil {
		return nil, wrapError(ErrConfig, err, "parsing data_random_seed")
	}
	cfg.DataRandomSeed = int64(seed)
	return cfg, nil
}
