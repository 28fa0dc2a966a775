package dataset

import (
	"strconv"
	"strings"

	"github.com/janpfeifer/gbdataset/internal/generics"
	"github.com/pkg/errors"
)

const namePrefix = "name:"

// ColumnRoles holds the resolved state produced once from Config by
// ResolveColumnRoles, and consumed unchanged by every later build phase.
//
// Every index here is in post-label-removal coordinates: an original column
// number c becomes c-1 iff c > LabelIdx.
type ColumnRoles struct {
	LabelIdx  int
	WeightIdx int // NoSpecific if unset.
	GroupIdx  int // NoSpecific if unset.

	IgnoreFeatures generics.Set[int]

	// FeatureNames has length num_total_features once resolved against a
	// header; it is empty if the source has no header.
	FeatureNames []string
}

// ResolveColumnRoles implements §4.1: it maps the Config's four role strings
// (plus an optional header line) into label/weight/group/ignore indices, all
// shifted into post-label-removal coordinates.
func ResolveColumnRoles(cfg *Config, header []string) (*ColumnRoles, error) {
	roles := &ColumnRoles{
		WeightIdx:      NoSpecific,
		GroupIdx:       NoSpecific,
		IgnoreFeatures: generics.MakeSet[int](),
	}

	nameToIdx := make(map[string]int, len(header))
	for i, name := range header {
		nameToIdx[name] = i
	}

	// Label: defaults to column 0 if unconfigured.
	if cfg.LabelColumn == "" {
		roles.LabelIdx = 0
	} else {
		idx, err := resolveColumnSpec(cfg.LabelColumn, nameToIdx)
		if err != nil {
			return nil, wrapError(ErrConfig, err, "resolving label_column %q", cfg.LabelColumn)
		}
		roles.LabelIdx = idx
	}

	// Feature names: drop the label's name, so FeatureNames[i] refers to
	// feature index i in post-removal coordinates.
	if len(header) > 0 {
		roles.FeatureNames = make([]string, 0, len(header)-1)
		for i, name := range header {
			if i == roles.LabelIdx {
				continue
			}
			roles.FeatureNames = append(roles.FeatureNames, name)
		}
	}

	shift := func(c int) int {
		if c > roles.LabelIdx {
			return c - 1
		}
		return c
	}

	if cfg.WeightColumn != "" {
		idx, err := resolveColumnSpec(cfg.WeightColumn, nameToIdx)
		if err != nil {
			return nil, wrapError(ErrConfig, err, "resolving weight_column %q", cfg.WeightColumn)
		}
		roles.WeightIdx = shift(idx)
		roles.IgnoreFeatures.Insert(roles.WeightIdx)
	}

	if cfg.GroupColumn != "" {
		idx, err := resolveColumnSpec(cfg.GroupColumn, nameToIdx)
		if err != nil {
			return nil, wrapError(ErrConfig, err, "resolving group_column %q", cfg.GroupColumn)
		}
		roles.GroupIdx = shift(idx)
		roles.IgnoreFeatures.Insert(roles.GroupIdx)
	}

	if cfg.IgnoreColumn != "" {
		hasNamePrefix := strings.HasPrefix(cfg.IgnoreColumn, namePrefix)
		body := cfg.IgnoreColumn
		if hasNamePrefix {
			body = body[len(namePrefix):]
		}
		for _, token := range strings.Split(body, ",") {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			var idx int
			var err error
			if hasNamePrefix {
				idx, err = resolveName(token, nameToIdx)
			} else {
				idx, err = resolveColumnSpec(token, nameToIdx)
			}
			if err != nil {
				return nil, wrapError(ErrConfig, err, "resolving ignore_column token %q", token)
			}
			roles.IgnoreFeatures.Insert(shift(idx))
		}
	}

	return roles, nil
}

// resolveColumnSpec parses a single "name:<header>" or integer column spec
// into an (original, pre-label-removal) column index.
func resolveColumnSpec(spec string, nameToIdx map[string]int) (int, error) {
	if strings.HasPrefix(spec, namePrefix) {
		return resolveName(spec[len(namePrefix):], nameToIdx)
	}
	idx, err := strconv.Atoi(strings.TrimSpace(spec))
	if err != nil {
		return 0, errors.Errorf("column spec %q is neither a %q-prefixed header name nor an integer index; "+
			"did you mean %q%s?", spec, namePrefix, namePrefix, spec)
	}
	if idx < 0 {
		return 0, errors.Errorf("column index %d must be non-negative", idx)
	}
	return idx, nil
}

func resolveName(name string, nameToIdx map[string]int) (int, error) {
	idx, ok := nameToIdx[name]
	if !ok {
		return 0, errors.Errorf("header name %q not found among the file's columns", name)
	}
	return idx, nil
}
