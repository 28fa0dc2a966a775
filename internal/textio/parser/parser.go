// Package parser implements the line-parser external collaborator of §6:
// ParseOneLine turns one line of text into (column, value) pairs plus a
// label scalar, auto-detecting CSV, TSV, and LibSVM format the way
// CloudForest's ParseAFM/ParseFeature sniff "N:"/"C:"/"B:" headers and
// entreya-csvquery's engine sniffs delimiters.
package parser

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ColumnValue is one (column, value) pair of a parsed row. Column is in
// post-label-removal coordinates: the Parser is constructed with the label
// index and hides the label column from its output, per §6.
type ColumnValue struct {
	Column int
	Value  float64
}

// Parser is the external collaborator contract of §6.
type Parser interface {
	// ParseOneLine parses line into its (column, value) pairs and label.
	ParseOneLine(line string) (pairs []ColumnValue, label float64, err error)
}

// Format identifies the wire format a Parser was built for.
type Format int

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatTSV
	FormatLibSVM
)

// DetectFormat sniffs the format of a sample line: a LibSVM line's first
// token (after an optional label) contains "idx:value" pairs; otherwise a
// literal tab selects TSV and anything else defaults to CSV. This mirrors
// CloudForest's convention of sniffing the first bytes of a line/header to
// decide the parse strategy.
func DetectFormat(sampleLine string) Format {
	if strings.Contains(sampleLine, "\t") {
		fields := strings.Split(sampleLine, "\t")
		if looksLikeLibSVM(fields) {
			return FormatLibSVM
		}
		return FormatTSV
	}
	fields := strings.Split(sampleLine, ",")
	if looksLikeLibSVM(fields) {
		return FormatLibSVM
	}
	return FormatCSV
}

func looksLikeLibSVM(fields []string) bool {
	count := 0
	for _, f := range fields {
		if strings.Contains(f, ":") && !strings.HasPrefix(f, ":") {
			count++
		}
	}
	return count > 0 && count >= len(fields)-1
}

// New builds a Parser for the given format and label index (in
// pre-label-removal, i.e. original, column coordinates). Returns a
// FormatError-flavored error (see dataset.ErrFormat) if format is unknown.
func New(format Format, labelIdx int) (Parser, error) {
	switch format {
	case FormatCSV:
		return &delimitedParser{delim: ',', labelIdx: labelIdx}, nil
	case FormatTSV:
		return &delimitedParser{delim: '\t', labelIdx: labelIdx}, nil
	case FormatLibSVM:
		return &libSVMParser{labelIdx: labelIdx}, nil
	default:
		return nil, errors.Errorf("parser: unrecognized format %v", format)
	}
}

// delimitedParser handles CSV/TSV: one value per column, comma- or
// tab-separated, no header (the header, if any, was already consumed by the
// caller before sampling/extraction begins).
type delimitedParser struct {
	delim    byte
	labelIdx int
}

func (p *delimitedParser) ParseOneLine(line string) ([]ColumnValue, float64, error) {
	fields := strings.Split(line, string(p.delim))
	pairs := make([]ColumnValue, 0, len(fields))
	var label float64
	outCol := 0
	for origCol, field := range fields {
		field = strings.TrimSpace(field)
		var value float64
		if field != "" {
			var err error
			value, err = strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, 0, errors.Wrapf(err, "parsing column %d value %q", origCol, field)
			}
		}
		if origCol == p.labelIdx {
			label = value
			continue
		}
		pairs = append(pairs, ColumnValue{Column: outCol, Value: value})
		outCol++
	}
	return pairs, label, nil
}

// libSVMParser handles "label idx1:val1 idx2:val2 ..." lines, 1-based
// feature indices shifted to 0-based, post-label-removal coordinates (the
// label is always field 0 in LibSVM, never at an arbitrary column).
type libSVMParser struct {
	labelIdx int
}

func (p *libSVMParser) ParseOneLine(line string) ([]ColumnValue, float64, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, 0, errors.New("empty LibSVM line")
	}
	label, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "parsing LibSVM label %q", fields[0])
	}
	pairs := make([]ColumnValue, 0, len(fields)-1)
	for _, field := range fields[1:] {
		parts := strings.SplitN(field, ":", 2)
		if len(parts) != 2 {
			return nil, 0, errors.Errorf("malformed LibSVM idx:value pair %q", field)
		}
		idx, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, 0, errors.Wrapf(err, "parsing LibSVM index %q", parts[0])
		}
		value, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "parsing LibSVM value %q", parts[1])
		}
		// LibSVM indices are 1-based; shift to 0-based feature-column space.
		pairs = append(pairs, ColumnValue{Column: idx - 1, Value: value})
	}
	return pairs, label, nil
}
