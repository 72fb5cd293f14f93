package hnsw

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

// File layout, little-endian:
//
//	magic "FOLIOVEC" | version u32 | signature (u32 len + bytes) | dims u32 | count u64
//	count × { chunkID (u32 len + bytes) | deleted u8 | dims × f32 }
const (
	magic         = "FOLIOVEC"
	formatVersion = 1

	// maxStringLen bounds length prefixes read from disk.
	maxStringLen = 1 << 16
)

var errCorrupt = errors.New("corrupt index file")

type snapshot struct {
	signature  string
	dimensions int
	entries    []entry
}

// writeSnapshotFile writes snap to a temporary file next to path and renames
// it into place, so readers never observe a partial file.
func writeSnapshotFile(path string, snap *snapshot) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename

	w := bufio.NewWriter(tmp)
	if err := writeSnapshot(w, snap); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func writeSnapshot(w io.Writer, snap *snapshot) error {
	bw := &binWriter{w: w}
	bw.bytes([]byte(magic))
	bw.u32(formatVersion)
	bw.str(snap.signature)
	bw.u32(uint32(snap.dimensions))
	bw.u64(uint64(len(snap.entries)))
	for _, e := range snap.entries {
		bw.str(e.chunkID)
		if e.deleted {
			bw.bytes([]byte{1})
		} else {
			bw.bytes([]byte{0})
		}
		for _, x := range e.vec {
			bw.u32(math.Float32bits(x))
		}
	}
	return bw.err
}

func readSnapshot(r io.Reader) (*snapshot, error) {
	br := &binReader{r: bufio.NewReader(r)}

	head := br.bytes(len(magic))
	if br.err == nil && string(head) != magic {
		return nil, fmt.Errorf("%w: bad magic", errCorrupt)
	}
	if v := br.u32(); br.err == nil && v != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", errCorrupt, v)
	}
	snap := &snapshot{
		signature:  br.str(),
		dimensions: int(br.u32()),
	}
	count := br.u64()
	if br.err != nil {
		return nil, br.err
	}
	if snap.dimensions <= 0 || snap.dimensions > maxStringLen {
		return nil, fmt.Errorf("%w: dimensions %d", errCorrupt, snap.dimensions)
	}

	snap.entries = make([]entry, 0, min(count, 1<<20))
	for i := uint64(0); i < count; i++ {
		e := entry{chunkID: br.str()}
		e.deleted = br.bytes(1)[0] == 1
		e.vec = make([]float32, snap.dimensions)
		for j := range e.vec {
			e.vec[j] = math.Float32frombits(br.u32())
		}
		if br.err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, br.err)
		}
		snap.entries = append(snap.entries, e)
	}
	return snap, nil
}

// binWriter records the first write error and ignores later writes.
type binWriter struct {
	w   io.Writer
	err error
	buf [8]byte
}

func (b *binWriter) bytes(p []byte) {
	if b.err == nil {
		_, b.err = b.w.Write(p)
	}
}

func (b *binWriter) u32(v uint32) {
	binary.LittleEndian.PutUint32(b.buf[:4], v)
	b.bytes(b.buf[:4])
}

func (b *binWriter) u64(v uint64) {
	binary.LittleEndian.PutUint64(b.buf[:8], v)
	b.bytes(b.buf[:8])
}

func (b *binWriter) str(s string) {
	b.u32(uint32(len(s)))
	b.bytes([]byte(s))
}

// binReader records the first read error. After an error every read
// returns zero values.
type binReader struct {
	r   io.Reader
	err error
}

func (b *binReader) bytes(n int) []byte {
	p := make([]byte, n)
	if b.err != nil {
		return p
	}
	if _, err := io.ReadFull(b.r, p); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			err = fmt.Errorf("%w: truncated", errCorrupt)
		}
		b.err = err
	}
	return p
}

func (b *binReader) u32() uint32 {
	return binary.LittleEndian.Uint32(b.bytes(4))
}

func (b *binReader) u64() uint64 {
	return binary.LittleEndian.Uint64(b.bytes(8))
}

func (b *binReader) str() string {
	n := b.u32()
	if b.err == nil && n > maxStringLen {
		b.err = fmt.Errorf("%w: string length %d", errCorrupt, n)
	}
	if b.err != nil {
		return ""
	}
	return string(b.bytes(int(n)))
}
