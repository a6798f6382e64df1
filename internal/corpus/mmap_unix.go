//go:build unix

package corpus

import (
	"encoding/binary"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/nblibris/libris-match/internal/encoding"
)

// mappedFloats is a []float32 view onto an mmap'd region. On unix
// platforms the dataset-vectors.bin payload is mapped directly, avoiding a
// copy of the (potentially multi-gigabyte) embedding matrix into the heap.
type mappedFloats struct {
	raw   []byte
	start int
	n     int
	d     int
}

func (m mappedFloats) Floats() []float32 {
	if len(m.raw) == 0 {
		return nil
	}
	payload := m.raw[m.start:]
	return unsafe.Slice((*float32)(unsafe.Pointer(&payload[0])), m.n*m.d)
}

func (m mappedFloats) Close() error {
	if m.raw == nil {
		return nil
	}
	return unix.Munmap(m.raw)
}

// mapVectorsFile mmaps `<prefix>-dataset-vectors.bin` and returns a typed
// view over its payload along with the parsed N and D.
func mapVectorsFile(path string) (mappedFloats, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return mappedFloats{}, 0, 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return mappedFloats{}, 0, 0, err
	}
	size := info.Size()
	if size == 0 {
		return mappedFloats{}, 0, 0, fmt.Errorf("empty vectors file")
	}

	raw, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return mappedFloats{}, 0, 0, fmt.Errorf("mmap: %w", err)
	}

	hdr, offset, err := parseVectorsHeader(raw)
	if err != nil {
		unix.Munmap(raw)
		return mappedFloats{}, 0, 0, err
	}

	expected := offset + int(hdr.N)*int(hdr.D)*4
	if expected != len(raw) {
		unix.Munmap(raw)
		return mappedFloats{}, 0, 0, fmt.Errorf("vectors file size %d does not match header (want %d)", len(raw), expected)
	}

	return mappedFloats{raw: raw, start: offset, n: int(hdr.N), d: int(hdr.D)}, int(hdr.N), int(hdr.D), nil
}

// parseVectorsHeader reads the magic/version/N/D/dtype header out of a raw
// byte slice without copying the vector payload that follows it.
func parseVectorsHeader(raw []byte) (encoding.VectorsHeader, int, error) {
	const fixedLen = 4 + 2 + 4 + 4 + 2 // magic + version + N + D + dtypeLen
	if len(raw) < fixedLen {
		return encoding.VectorsHeader{}, 0, fmt.Errorf("vectors file truncated")
	}
	if [4]byte(raw[0:4]) != encoding.MagicVectors {
		return encoding.VectorsHeader{}, 0, fmt.Errorf("bad magic in vectors file")
	}
	version := binary.LittleEndian.Uint16(raw[4:6])
	if version != encoding.FormatVersion {
		return encoding.VectorsHeader{}, 0, fmt.Errorf("unsupported format version %d", version)
	}
	n := binary.LittleEndian.Uint32(raw[6:10])
	d := binary.LittleEndian.Uint32(raw[10:14])
	dtypeLen := int(binary.LittleEndian.Uint16(raw[14:16]))
	offset := 16 + dtypeLen
	if len(raw) < offset {
		return encoding.VectorsHeader{}, 0, fmt.Errorf("vectors file truncated in dtype field")
	}
	dtype := string(raw[16:offset])
	if dtype != "f32" {
		return encoding.VectorsHeader{}, 0, fmt.Errorf("unsupported dtype %q", dtype)
	}
	return encoding.VectorsHeader{N: n, D: d, DType: dtype}, offset, nil
}
