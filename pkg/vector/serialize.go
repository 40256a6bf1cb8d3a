package vector

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Snapshot wire format: magic, version, dim, count, then count*dim
// little-endian float32 values. The format is self-describing enough to
// reject snapshots from a different dimension or a corrupt upload.
const (
	snapshotMagic   uint32 = 0x50565849 // "PVXI"
	snapshotVersion uint32 = 1
)

// Serialize encodes the index into a binary snapshot blob.
func (idx *Index) Serialize() ([]byte, error) {
	var buf bytes.Buffer

	header := []uint32{snapshotMagic, snapshotVersion, uint32(idx.dim), uint32(idx.Len())}
	for _, v := range header {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("vector: serialize header: %w", err)
		}
	}

	for _, v := range idx.data {
		if err := binary.Write(&buf, binary.LittleEndian, math.Float32bits(v)); err != nil {
			return nil, fmt.Errorf("vector: serialize data: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// Deserialize decodes a snapshot blob produced by Serialize. It validates
// the header and the payload length before returning a usable index.
func Deserialize(blob []byte) (*Index, error) {
	r := bytes.NewReader(blob)

	var magic, version, dim, count uint32
	for _, target := range []*uint32{&magic, &version, &dim, &count} {
		if err := binary.Read(r, binary.LittleEndian, target); err != nil {
			return nil, fmt.Errorf("vector: truncated snapshot header: %w", err)
		}
	}

	if magic != snapshotMagic {
		return nil, fmt.Errorf("vector: bad snapshot magic %#x", magic)
	}
	if version != snapshotVersion {
		return nil, fmt.Errorf("vector: unsupported snapshot version %d", version)
	}
	if dim == 0 {
		return nil, fmt.Errorf("vector: snapshot has zero dimension")
	}

	want := int(dim) * int(count)
	if r.Len() != want*4 {
		return nil, fmt.Errorf("vector: snapshot payload size mismatch: got %d bytes want %d", r.Len(), want*4)
	}

	data := make([]float32, want)
	for i := range data {
		var bits uint32
		if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
			return nil, fmt.Errorf("vector: truncated snapshot payload: %w", err)
		}
		data[i] = math.Float32frombits(bits)
	}

	return &Index{dim: int(dim), data: data}, nil
}
