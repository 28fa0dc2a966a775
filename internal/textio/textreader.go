// Package textio implements the TextReader external collaborator of §6:
// reading a file with an optional header, counting and sampling lines, and
// streaming the file in parallel-processable blocks. The block-chunked
// fan-out is grounded on other_examples' jacopoRufini-parallel-csv
// processor.go, adapted to the teacher's error-wrapping and logging idiom.
package textio

import (
	"bufio"
	"io"
	"os"
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// RNG is the minimal randomness contract textio needs for reservoir
// sampling, satisfied by *dataset.Sampler without this package importing
// the dataset package (which would be a cycle).
type RNG interface {
	Intn(n int) int
}

// ProcessFunc is invoked once per streamed block with the id of the worker
// goroutine running it (stable across that goroutine's whole lifetime, so a
// caller may use it as a Feature PushData shard id), the global 0-based
// index of the block's first line, and the lines themselves.
type ProcessFunc func(tid, startIdx int, lines []string) error

// FilterFunc decides, for global line index i, whether to keep it.
type FilterFunc func(i int) bool

// TextReader is the external collaborator contract of §6.
type TextReader interface {
	// FirstLine returns the file's first line (the header, if HasHeader).
	FirstLine() (string, error)

	// CountLine counts the total number of lines (excluding the header, if
	// any) without materializing them.
	CountLine() (int, error)

	// ReadAllLines reads every (non-header) line into memory and returns the
	// global line count.
	ReadAllLines() (lines []string, globalCount int, err error)

	// ReadAndFilterLines calls predicate(i) for every line i and appends i to
	// *usedIndices when it returns true; it returns the global line count.
	ReadAndFilterLines(predicate FilterFunc, usedIndices *[]int) (globalCount int, err error)

	// SampleFromFile reservoir-samples k lines using rng and returns the
	// global line count.
	SampleFromFile(rng RNG, k int) (sampled []string, globalCount int, err error)

	// SampleAndFilterFromFile reservoir-samples k lines among those accepted
	// by predicate, recording every accepted line's global index into
	// usedIndices, and returns the global line count.
	SampleAndFilterFromFile(predicate FilterFunc, usedIndices *[]int, rng RNG, k int) (sampled []string, globalCount int, err error)

	// ReadAllAndProcessParallel streams the whole file in blocks, invoking
	// process on each block from a worker pool. Blocks are handed out in
	// order of appearance but processed concurrently.
	ReadAllAndProcessParallel(process ProcessFunc) error

	// ReadPartAndProcessParallel is like ReadAllAndProcessParallel, but
	// materializes only the lines whose global index is in indices.
	ReadPartAndProcessParallel(indices []int, process ProcessFunc) error
}

const defaultBlockLines = 64 * 1024

// FileReader is the concrete, file-backed TextReader.
type FileReader struct {
	path       string
	hasHeader  bool
	blockLines int
}

var _ TextReader = (*FileReader)(nil)

// NewFileReader prepares path for repeated streaming passes; it does not open
// the file itself. No file is kept open between calls: every method opens it
// anew, so a FileReader is
// safe to reuse and to share across goroutines (each call gets its own
// *os.File).
func NewFileReader(path string, hasHeader bool) *FileReader {
	return &FileReader{path: path, hasHeader: hasHeader, blockLines: defaultBlockLines}
}

func (r *FileReader) open() (*os.File, *bufio.Scanner, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening %q", r.path)
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if r.hasHeader {
		if !scanner.Scan() {
			f.Close()
			return nil, nil, errors.Errorf("file %q is empty, expected a header line", r.path)
		}
	}
	return f, scanner, nil
}

func (r *FileReader) FirstLine() (string, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return "", errors.Wrapf(err, "opening %q", r.path)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return "", errors.Errorf("file %q is empty", r.path)
	}
	return scanner.Text(), nil
}

// FirstDataLine returns the first non-header line, without materializing
// the rest of the file -- used to sniff the wire format before a full read.
func (r *FileReader) FirstDataLine() (string, error) {
	f, scanner, err := r.open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", errors.Wrapf(err, "scanning %q", r.path)
		}
		return "", errors.Errorf("file %q has no data lines", r.path)
	}
	return scanner.Text(), nil
}

func (r *FileReader) CountLine() (int, error) {
	_, scanner, err := r.open()
	if err != nil {
		return 0, err
	}
	count := 0
	for scanner.Scan() {
		count++
	}
	if err := scanner.Err(); err != nil {
		return 0, errors.Wrapf(err, "scanning %q", r.path)
	}
	return count, nil
}

func (r *FileReader) ReadAllLines() ([]string, int, error) {
	f, scanner, err := r.open()
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, errors.Wrapf(err, "scanning %q", r.path)
	}
	return lines, len(lines), nil
}

func (r *FileReader) ReadAndFilterLines(predicate FilterFunc, usedIndices *[]int) (int, error) {
	f, scanner, err := r.open()
	if err != nil {
		return 0, err
	}
	defer f.Close()
	i := 0
	for scanner.Scan() {
		if predicate(i) {
			*usedIndices = append(*usedIndices, i)
		}
		i++
	}
	if err := scanner.Err(); err != nil {
		return 0, errors.Wrapf(err, "scanning %q", r.path)
	}
	return i, nil
}

func (r *FileReader) SampleFromFile(rng RNG, k int) ([]string, int, error) {
	f, scanner, err := r.open()
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	sampled := make([]string, 0, k)
	i := 0
	for scanner.Scan() {
		line := scanner.Text()
		if len(sampled) < k {
			sampled = append(sampled, line)
		} else {
			j := rng.Intn(i + 1)
			if j < k {
				sampled[j] = line
			}
		}
		i++
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, errors.Wrapf(err, "scanning %q", r.path)
	}
	return sampled, i, nil
}

func (r *FileReader) SampleAndFilterFromFile(predicate FilterFunc, usedIndices *[]int, rng RNG, k int) ([]string, int, error) {
	f, scanner, err := r.open()
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	sampled := make([]string, 0, k)
	kept := 0
	i := 0
	for scanner.Scan() {
		if predicate(i) {
			line := scanner.Text()
			*usedIndices = append(*usedIndices, i)
			if len(sampled) < k {
				sampled = append(sampled, line)
			} else {
				j := rng.Intn(kept + 1)
				if j < k {
					sampled[j] = line
				}
			}
			kept++
		}
		i++
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, errors.Wrapf(err, "scanning %q", r.path)
	}
	return sampled, i, nil
}

func (r *FileReader) ReadAllAndProcessParallel(process ProcessFunc) error {
	return r.ReadPartAndProcessParallel(nil, process)
}

// ReadPartAndProcessParallel streams blocks of up to r.blockLines lines, each
// dispatched to process(); if indices is non-nil, only those global line
// indices are materialized (everything else is skipped while still being
// scanned, to keep the global index counter correct).
func (r *FileReader) ReadPartAndProcessParallel(indices []int, process ProcessFunc) error {
	f, scanner, err := r.open()
	if err != nil {
		return err
	}
	defer f.Close()

	var wantSet map[int]bool
	if indices != nil {
		wantSet = make(map[int]bool, len(indices))
		for _, idx := range indices {
			wantSet[idx] = true
		}
	}

	type block struct {
		startIdx int
		lines    []string
	}
	blocks := make(chan block, 4)

	numWorkers := runtime.GOMAXPROCS(0)
	g := new(errgroup.Group)
	for w := 0; w < numWorkers; w++ {
		tid := w
		g.Go(func() error {
			for b := range blocks {
				if err := process(tid, b.startIdx, b.lines); err != nil {
					return err
				}
			}
			return nil
		})
	}

	i := 0
	blockStart := 0
	lines := make([]string, 0, r.blockLines)
	flush := func() {
		if len(lines) == 0 {
			return
		}
		blocks <- block{startIdx: blockStart, lines: lines}
		lines = make([]string, 0, r.blockLines)
	}
	var scanErr error
	for scanner.Scan() {
		if wantSet == nil || wantSet[i] {
			if len(lines) == 0 {
				blockStart = i
			}
			lines = append(lines, scanner.Text())
		}
		i++
		if len(lines) >= r.blockLines {
			flush()
		}
	}
	if err := scanner.Err(); err != nil {
		scanErr = errors.Wrapf(err, "scanning %q", r.path)
	}
	flush()
	close(blocks)

	if err := g.Wait(); err != nil {
		return err
	}
	if scanErr != nil {
		return scanErr
	}
	klog.V(2).Infof("ReadPartAndProcessParallel: streamed %d lines from %q with %d workers", i, r.path, numWorkers)
	return nil
}

// Exists reports whether the given ".bin"-suffixed cache path exists next to
// a source file, matching §4.5's "absence is not an error" rule: the caller
// is expected to check Exists before attempting BinaryCodec.Read.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Open is a small convenience wrapper for callers that need a raw io.Reader
// on the same path conventions as FileReader. BinaryCodec does not use it; it
// opens its file with os.Open directly.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %q", path)
	}
	return f, nil
}
