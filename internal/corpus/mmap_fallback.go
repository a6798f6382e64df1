//go:build !unix

package corpus

import (
	"fmt"
	"os"

	"github.com/nblibris/libris-match/internal/encoding"
)

// mappedFloats on non-unix platforms is a plain heap-allocated copy of the
// vector payload decoded via the shared binary codec; there is no mmap(2)
// to fall back to.
type mappedFloats struct {
	data []float32
}

func (m mappedFloats) Floats() []float32 { return m.data }

func (m mappedFloats) Close() error { return nil }

func mapVectorsFile(path string) (mappedFloats, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return mappedFloats{}, 0, 0, err
	}
	defer f.Close()

	hdr, data, err := encoding.ReadVectorsFile(f)
	if err != nil {
		return mappedFloats{}, 0, 0, fmt.Errorf("read vectors file: %w", err)
	}
	return mappedFloats{data: data}, int(hdr.N), int(hdr.D), nil
}
