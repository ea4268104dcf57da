package sparse

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	lz4 "github.com/pierrec/lz4/v4"
	"github.com/zeebo/xxh3"

	"github.com/ViktorB9898/GPU-Programming/device"
)

// Compression selects the per-section codec of the matrix container.
type Compression uint32

const (
	CompressNone Compression = iota
	CompressZstd
	CompressLZ4
)

var magic = [8]byte{'P', 'C', 'S', 'R', 0, 0, 0, 0}

const fileVersion = 1

// fileHeader follows the magic bytes.
type fileHeader struct {
	Version     uint32
	Compression uint32
	N           uint64
	NNZ         uint64
}

// sectionHeader precedes each of the three CSR sections, stored in fixed
// order: row offsets, column indices, values. The checksum is xxh3 over
// the uncompressed payload.
type sectionHeader struct {
	RawSize    uint64
	StoredSize uint64
	Checksum   uint64
}

// WriteFile saves the matrix to path in the PCSR container format, with
// every section compressed according to comp. Pending kernels touching
// the matrix must have been synchronized.
func (m *Matrix) WriteFile(path string, comp Compression) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(magic[:]); err != nil {
		return err
	}
	hdr := fileHeader{
		Version:     fileVersion,
		Compression: uint32(comp),
		N:           uint64(m.N),
		NNZ:         uint64(m.NNZ),
	}
	if err := binary.Write(f, binary.LittleEndian, &hdr); err != nil {
		return err
	}

	sections := [][]byte{
		m.RowOffsets.Byte(),
		m.ColIndices.Byte(),
		m.Values.Byte(),
	}
	for _, raw := range sections {
		if err := writeSection(f, raw, comp); err != nil {
			return err
		}
	}
	return nil
}

// ReadFile loads a matrix saved by WriteFile into fresh device memory.
func ReadFile(ctx *device.Context, path string) (*Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	head := make([]byte, len(magic))
	if _, err := io.ReadFull(f, head); err != nil {
		return nil, err
	}
	if !bytes.Equal(head, magic[:]) {
		return nil, fmt.Errorf("sparse: %s is not a PCSR matrix file", path)
	}
	var hdr fileHeader
	if err := binary.Read(f, binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}
	if hdr.Version != fileVersion {
		return nil, fmt.Errorf("sparse: unsupported PCSR version %d", hdr.Version)
	}

	n := int(hdr.N)
	nnz := int(hdr.NNZ)
	m, err := NewMatrix(ctx, n, nnz)
	if err != nil {
		return nil, err
	}

	comp := Compression(hdr.Compression)
	sections := []struct {
		dst  []byte
		want int
	}{
		{m.RowOffsets.Byte(), (n + 1) * 4},
		{m.ColIndices.Byte(), nnz * 4},
		{m.Values.Byte(), nnz * 8},
	}
	for _, s := range sections {
		raw, err := readSection(f, comp)
		if err != nil {
			m.Free(ctx)
			return nil, err
		}
		if len(raw) != s.want {
			m.Free(ctx)
			return nil, fmt.Errorf("sparse: section size %d, want %d", len(raw), s.want)
		}
		copy(s.dst, raw)
	}
	return m, nil
}

func writeSection(w io.Writer, raw []byte, comp Compression) error {
	stored, err := encode(raw, comp)
	if err != nil {
		return err
	}
	hdr := sectionHeader{
		RawSize:    uint64(len(raw)),
		StoredSize: uint64(len(stored)),
		Checksum:   xxh3.Hash(raw),
	}
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return err
	}
	_, err = w.Write(stored)
	return err
}

func readSection(r io.Reader, comp Compression) ([]byte, error) {
	var hdr sectionHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}
	stored := make([]byte, hdr.StoredSize)
	if _, err := io.ReadFull(r, stored); err != nil {
		return nil, err
	}
	raw, err := decode(stored, comp)
	if err != nil {
		return nil, err
	}
	if uint64(len(raw)) != hdr.RawSize {
		return nil, fmt.Errorf("sparse: decompressed size %d, want %d", len(raw), hdr.RawSize)
	}
	if sum := xxh3.Hash(raw); sum != hdr.Checksum {
		return nil, fmt.Errorf("sparse: section checksum mismatch: %016x, want %016x", sum, hdr.Checksum)
	}
	return raw, nil
}

func encode(b []byte, comp Compression) ([]byte, error) {
	switch comp {
	case CompressNone:
		return b, nil
	case CompressZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(b, make([]byte, 0, len(b))), nil
	case CompressLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(b); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("sparse: unknown compression %d", comp)
	}
}

func decode(b []byte, comp Compression) ([]byte, error) {
	switch comp {
	case CompressNone:
		return b, nil
	case CompressZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(b, nil)
	case CompressLZ4:
		r := lz4.NewReader(bytes.NewReader(b))
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, r); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("sparse: unknown compression %d", comp)
	}
}
