package dataset

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/janpfeifer/gbdataset/internal/textio"
)

// binaryByteOrder is the one concrete choice this Go rewrite makes where the
// original format left endianness as a host-compatibility wrinkle: every
// blob is little-endian, matching BinMapper.CopyTo/CopyFrom in binmapper.go.
var binaryByteOrder = binary.LittleEndian

// BinaryCodec implements §4.5 and the byte grammar of §6: it writes a built
// Dataset to a ".bin" file as a fixed header, a metadata blob, and one
// size-prefixed blob per feature, and reads it back, optionally
// re-partitioning rows across a different (rank, numMachines) than the one
// that wrote it.
type BinaryCodec struct {
	// MaxBin must match the Config.MaxBin the Dataset's BinMappers were built
	// with: it determines the fixed per-feature mapper blob size
	// (SizeForSpecificBin) that Write/Read agree on.
	MaxBin int
}

// Write serializes ds to path, following the §6 grammar exactly: a
// size-prefixed header, a size-prefixed metadata blob, then one
// size-prefixed blob per kept feature. Every on-disk array is at global
// (pre-partition) row granularity: re-partitioning happens only on Read.
func (c *BinaryCodec) Write(path string, ds *Dataset) error {
	header, err := c.encodeHeader(ds)
	if err != nil {
		return err
	}
	metadata := c.encodeMetadata(ds.Metadata, ds.NumData)

	f, err := os.Create(path)
	if err != nil {
		return wrapError(ErrIO, err, "creating %q", path)
	}
	defer f.Close()

	if err := writeSizePrefixed(f, header); err != nil {
		return wrapError(ErrIO, err, "writing header to %q", path)
	}
	if err := writeSizePrefixed(f, metadata); err != nil {
		return wrapError(ErrIO, err, "writing metadata to %q", path)
	}
	for _, feat := range ds.Features {
		blob := c.encodeFeature(feat, ds.NumData)
		if err := writeSizePrefixed(f, blob); err != nil {
			return wrapError(ErrIO, err, "writing feature %q to %q", feat.Name, path)
		}
	}
	klog.V(1).Infof("BinaryCodec: wrote %d rows, %d features to %q", ds.NumData, len(ds.Features), path)
	return nil
}

// ReadResult is what Read hands back: a fully-formed Dataset, plus the
// global (pre-partition) row count the file was written with, needed by the
// caller to re-derive a partition predicate over the same row numbering.
type ReadResult struct {
	Dataset         *Dataset
	NumGlobalData   int
	UsedDataIndices []int // rows retained from the on-disk global numbering; nil when Read was given no partition.
}

// PartitionFunc builds the keep-predicate used to re-partition rows on
// reload, given the query boundaries decoded from the file's metadata (nil
// if it has no group column). It lets Read pick row- or group-granularity
// partitioning (§4.2) without the caller having seen the metadata yet.
type PartitionFunc func(queryBoundaries []int64) func(globalRow int) bool

// Read deserializes path. If partition is non-nil, it is invoked once the
// metadata has been decoded, and the resulting predicate is consulted once
// per global row index (in ascending order) to decide retention -- the
// re-partition-on-reload behavior of §4.5; pass nil to keep every row (the
// is_pre_partition or single-machine case).
func (c *BinaryCodec) Read(path string, partition PartitionFunc) (*ReadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapError(ErrIO, err, "opening %q", path)
	}
	defer f.Close()

	headerBytes, err := readSizePrefixed(f)
	if err != nil {
		return nil, wrapError(ErrIO, err, "reading header from %q", path)
	}
	header, err := decodeHeader(headerBytes)
	if err != nil {
		return nil, wrapError(ErrFormat, err, "decoding header of %q", path)
	}

	metadataBytes, err := readSizePrefixed(f)
	if err != nil {
		return nil, wrapError(ErrIO, err, "reading metadata from %q", path)
	}
	fullMeta, err := decodeMetadata(metadataBytes)
	if err != nil {
		return nil, wrapError(ErrFormat, err, "decoding metadata of %q", path)
	}

	var usedIndices []int
	if partition != nil {
		keepRow := partition(fullMeta.QueryBoundaries)
		usedIndices = make([]int, 0, header.numData)
		for row := 0; row < header.numData; row++ {
			if keepRow(row) {
				usedIndices = append(usedIndices, row)
			}
		}
	}

	ds := &Dataset{
		NumTotalFeatures:     header.numTotalFeatures,
		NumFeatures:          header.numFeatures,
		NumClass:             header.numClass,
		UsedFeatureMap:       header.usedFeatureMap,
		FeatureNames:         header.featureNames,
		Features:             make([]*Feature, header.numFeatures),
		IsLoadingFromBinFile: true,
	}
	if usedIndices != nil {
		ds.Metadata = fullMeta.Subset(usedIndices)
		ds.NumData = len(usedIndices)
	} else {
		ds.Metadata = fullMeta
		ds.NumData = header.numData
	}

	for i := range ds.Features {
		blob, err := readSizePrefixed(f)
		if err != nil {
			return nil, wrapError(ErrIO, err, "reading feature %d from %q", i, path)
		}
		feat, err := decodeFeature(blob, c.MaxBin, header.numData, usedIndices)
		if err != nil {
			return nil, wrapError(ErrFormat, err, "decoding feature %d of %q", i, path)
		}
		ds.Features[i] = feat
	}

	return &ReadResult{Dataset: ds, NumGlobalData: header.numData, UsedDataIndices: usedIndices}, nil
}

// Exists reports whether a file exists at path itself; LoadFromFile calls it
// with the source path plus ".bin" as its §4.6 precedence check.
func Exists(path string) bool {
	return textio.Exists(path)
}

type binaryHeader struct {
	numData          int
	numClass         int
	numFeatures      int
	numTotalFeatures int
	usedFeatureMap   []int32
	featureNames     []string
}

func (c *BinaryCodec) encodeHeader(ds *Dataset) ([]byte, error) {
	var buf bytes.Buffer
	writeI64(&buf, int64(ds.NumData))
	writeI32(&buf, int32(ds.NumClass))
	writeI32(&buf, int32(ds.NumFeatures))
	writeI32(&buf, int32(ds.NumTotalFeatures))
	writeU64(&buf, uint64(len(ds.UsedFeatureMap)))
	for _, v := range ds.UsedFeatureMap {
		writeI32(&buf, v)
	}
	for i := 0; i < ds.NumTotalFeatures; i++ {
		name := placeholderName(i)
		if i < len(ds.FeatureNames) {
			name = ds.FeatureNames[i]
		}
		writeI32(&buf, int32(len(name)))
		buf.WriteString(name)
	}
	return buf.Bytes(), nil
}

func decodeHeader(data []byte) (*binaryHeader, error) {
	r := bytes.NewReader(data)
	h := &binaryHeader{}
	var err error
	var numData int64
	if numData, err = readI64(r); err != nil {
		return nil, err
	}
	h.numData = int(numData)
	var v32 int32
	if v32, err = readI32(r); err != nil {
		return nil, err
	}
	h.numClass = int(v32)
	if v32, err = readI32(r); err != nil {
		return nil, err
	}
	h.numFeatures = int(v32)
	if v32, err = readI32(r); err != nil {
		return nil, err
	}
	h.numTotalFeatures = int(v32)

	numUsed, err := readU64(r)
	if err != nil {
		return nil, err
	}
	h.usedFeatureMap = make([]int32, numUsed)
	for i := range h.usedFeatureMap {
		if h.usedFeatureMap[i], err = readI32(r); err != nil {
			return nil, err
		}
	}
	h.featureNames = make([]string, h.numTotalFeatures)
	for i := range h.featureNames {
		nameLen, err := readI32(r)
		if err != nil {
			return nil, err
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, errors.Wrap(err, "reading feature name")
		}
		h.featureNames[i] = string(name)
	}
	return h, nil
}

const (
	metaFlagWeight = 1 << iota
	metaFlagGroup
	metaFlagInitScore
)

func (c *BinaryCodec) encodeMetadata(m *Metadata, numData int) []byte {
	var buf bytes.Buffer
	var flags byte
	if m.Weight != nil {
		flags |= metaFlagWeight
	}
	if m.Query != nil {
		flags |= metaFlagGroup
	}
	if m.InitScore != nil {
		flags |= metaFlagInitScore
	}
	buf.WriteByte(flags)
	writeI32(&buf, int32(numData))
	writeI32(&buf, int32(m.NumClass))
	for _, v := range m.Label {
		writeF32(&buf, v)
	}
	if m.Weight != nil {
		for _, v := range m.Weight {
			writeF32(&buf, v)
		}
	}
	if m.Query != nil {
		for _, v := range m.Query {
			writeI32(&buf, v)
		}
	}
	if m.InitScore != nil {
		for _, v := range m.InitScore {
			writeF64(&buf, v)
		}
	}
	return buf.Bytes()
}

func decodeMetadata(data []byte) (*Metadata, error) {
	r := bytes.NewReader(data)
	flagByte, err := r.ReadByte()
	if err != nil {
		return nil, errors.Wrap(err, "reading metadata flags")
	}
	storedNumData, err := readI32(r)
	if err != nil {
		return nil, err
	}
	storedNumClass, err := readI32(r)
	if err != nil {
		return nil, err
	}
	m := &Metadata{NumClass: int(storedNumClass)}
	n := int(storedNumData)

	m.Label = make([]float32, n)
	for i := range m.Label {
		if m.Label[i], err = readF32(r); err != nil {
			return nil, err
		}
	}
	if flagByte&metaFlagWeight != 0 {
		m.Weight = make([]float32, n)
		for i := range m.Weight {
			if m.Weight[i], err = readF32(r); err != nil {
				return nil, err
			}
		}
	}
	if flagByte&metaFlagGroup != 0 {
		m.Query = make([]int32, n)
		for i := range m.Query {
			if m.Query[i], err = readI32(r); err != nil {
				return nil, err
			}
		}
		m.FinalizeQueryBoundaries()
	}
	if flagByte&metaFlagInitScore != 0 {
		m.InitScore = make([]float64, n*m.NumClass)
		for i := range m.InitScore {
			if m.InitScore[i], err = readF64(r); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// encodeFeature writes a feature's BinMapper blob, its name, and a dense
// uint32 bin array at global-row granularity (numGlobalData entries): the
// on-disk representation is always dense, since §6's "Feature(buffer,
// num_global_data, used_data_indices)" constructor materializes only the
// retained subset at load time regardless of how it was stored.
func (c *BinaryCodec) encodeFeature(f *Feature, numGlobalData int) []byte {
	var buf bytes.Buffer
	mapperBuf := make([]byte, SizeForSpecificBin(c.MaxBin))
	f.Mapper.CopyTo(mapperBuf)
	buf.Write(mapperBuf)

	writeI32(&buf, int32(len(f.Name)))
	buf.WriteString(f.Name)

	for row := 0; row < numGlobalData; row++ {
		writeU32(&buf, f.BinAt(row))
	}
	return buf.Bytes()
}

func decodeFeature(data []byte, maxBin, numGlobalData int, usedIndices []int) (*Feature, error) {
	r := bytes.NewReader(data)
	mapperSize := SizeForSpecificBin(maxBin)
	mapperBuf := make([]byte, mapperSize)
	if _, err := io.ReadFull(r, mapperBuf); err != nil {
		return nil, errors.Wrap(err, "reading feature mapper blob")
	}
	mapper := NewBinMapper()
	mapper.CopyFrom(mapperBuf)

	nameLen, err := readI32(r)
	if err != nil {
		return nil, err
	}
	nameBuf := make([]byte, nameLen)
	if _, err := io.ReadFull(r, nameBuf); err != nil {
		return nil, errors.Wrap(err, "reading feature name")
	}
	name := string(nameBuf)

	numKept := numGlobalData
	if usedIndices != nil {
		numKept = len(usedIndices)
	}
	feat := NewFeature(name, mapper, numKept, 1, false)
	if usedIndices == nil {
		for row := 0; row < numGlobalData; row++ {
			bin, err := readU32(r)
			if err != nil {
				return nil, err
			}
			feat.dense[row] = bin
		}
	} else {
		next := 0
		for row := 0; row < numGlobalData; row++ {
			bin, err := readU32(r)
			if err != nil {
				return nil, err
			}
			if next < len(usedIndices) && usedIndices[next] == row {
				feat.dense[next] = bin
				next++
			}
		}
	}
	feat.FinishLoad(numKept)
	return feat, nil
}

// writeSizePrefixed writes len(payload) as a u64 followed by payload itself,
// the "size-prefixed blob" pattern every section of the §6 grammar uses.
func writeSizePrefixed(w io.Writer, payload []byte) error {
	if err := binary.Write(w, binaryByteOrder, uint64(len(payload))); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readSizePrefixed reads a u64 size then exactly that many bytes into a
// buffer allocated at that size for each blob -- never reading a blob into a
// too-small one (§4.5's "buffer growth" invariant).
func readSizePrefixed(r io.Reader) ([]byte, error) {
	var size uint64
	if err := binary.Read(r, binaryByteOrder, &size); err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeI32(buf *bytes.Buffer, v int32)   { _ = binary.Write(buf, binaryByteOrder, v) }
func writeU32(buf *bytes.Buffer, v uint32)  { _ = binary.Write(buf, binaryByteOrder, v) }
func writeI64(buf *bytes.Buffer, v int64)   { _ = binary.Write(buf, binaryByteOrder, v) }
func writeU64(buf *bytes.Buffer, v uint64)  { _ = binary.Write(buf, binaryByteOrder, v) }
func writeF32(buf *bytes.Buffer, v float32) { _ = binary.Write(buf, binaryByteOrder, v) }
func writeF64(buf *bytes.Buffer, v float64) { _ = binary.Write(buf, binaryByteOrder, v) }

func readI32(r io.Reader) (int32, error) {
	var v int32
	err := binary.Read(r, binaryByteOrder, &v)
	return v, err
}
func readU32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binaryByteOrder, &v)
	return v, err
}
func readI64(r io.Reader) (int64, error) {
	var v int64
	err := binary.Read(r, binaryByteOrder, &v)
	return v, err
}
func readU64(r io.Reader) (uint64, error) {
	var v uint64
	err := binary.Read(r, binaryByteOrder, &v)
	return v, err
}
func readF32(r io.Reader) (float32, error) {
	var v float32
	err := binary.Read(r, binaryByteOrder, &v)
	return v, err
}
func readF64(r io.Reader) (float64, error) {
	var v float64
	err := binary.Read(r, binaryByteOrder, &v)
	return v, err
}
