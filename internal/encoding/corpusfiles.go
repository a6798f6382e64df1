package encoding

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Each corpus file starts with a 4-byte magic and a 2-byte little-endian
// format version, per spec.md §6.
var (
	MagicVocab   = [4]byte{'L', 'V', 'O', 'C'}
	MagicVectors = [4]byte{'L', 'V', 'E', 'C'}
	MagicSource  = [4]byte{'L', 'S', 'R', 'C'}
)

// FormatVersion is the only format version this codec understands.
const FormatVersion uint16 = 1

// CheckHeader reads and validates the magic + version header common to all
// three corpus files.
func CheckHeader(r io.Reader, want [4]byte) error {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return fmt.Errorf("read magic: %w", err)
	}
	if magic != want {
		return fmt.Errorf("bad magic: got %q, want %q", magic, want)
	}
	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return fmt.Errorf("read format version: %w", err)
	}
	if version != FormatVersion {
		return fmt.Errorf("unsupported format version %d", version)
	}
	return nil
}

// WriteHeader writes the magic + version header.
func WriteHeader(w io.Writer, magic [4]byte) error {
	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, FormatVersion)
}

// VocabToken is one on-disk vocabulary entry.
type VocabToken struct {
	ID    uint32
	Token string
	IDF   float32
}

// VocabHeader is the vocabulary file's post-magic header: token count and a
// content hash used only for diagnostic logging (no verification of hash
// correctness is specified, so it is carried through opaquely).
type VocabHeader struct {
	V    uint32
	Hash uint32
}

// ReadVocabFile parses `<source>-vocab.bin`: header {V, hash}, then V
// records of {u32 id, u16 token_length, bytes, f32 idf}.
func ReadVocabFile(r io.Reader) (VocabHeader, []VocabToken, error) {
	if err := CheckHeader(r, MagicVocab); err != nil {
		return VocabHeader{}, nil, err
	}

	br := bufio.NewReader(r)

	var hdr VocabHeader
	if err := binary.Read(br, binary.LittleEndian, &hdr.V); err != nil {
		return VocabHeader{}, nil, fmt.Errorf("read vocab count: %w", err)
	}
	if err := binary.Read(br, binary.LittleEndian, &hdr.Hash); err != nil {
		return VocabHeader{}, nil, fmt.Errorf("read vocab hash: %w", err)
	}

	tokens := make([]VocabToken, 0, hdr.V)
	for i := uint32(0); i < hdr.V; i++ {
		var id uint32
		if err := binary.Read(br, binary.LittleEndian, &id); err != nil {
			return VocabHeader{}, nil, fmt.Errorf("read token %d id: %w", i, err)
		}
		var length uint16
		if err := binary.Read(br, binary.LittleEndian, &length); err != nil {
			return VocabHeader{}, nil, fmt.Errorf("read token %d length: %w", i, err)
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(br, buf); err != nil {
			return VocabHeader{}, nil, fmt.Errorf("read token %d bytes: %w", i, err)
		}
		var idf float32
		if err := binary.Read(br, binary.LittleEndian, &idf); err != nil {
			return VocabHeader{}, nil, fmt.Errorf("read token %d idf: %w", i, err)
		}
		tokens = append(tokens, VocabToken{ID: id, Token: string(buf), IDF: idf})
	}

	return hdr, tokens, nil
}

// WriteVocabFile serialises a vocabulary in the on-disk format. Provided for
// symmetry with ReadVocabFile and exercised by round-trip tests; the
// offline ingestion job that builds the real corpus files is out of scope.
func WriteVocabFile(w io.Writer, hdr VocabHeader, tokens []VocabToken) error {
	if err := WriteHeader(w, MagicVocab); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, hdr.V); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, hdr.Hash); err != nil {
		return err
	}
	for _, t := range tokens {
		if err := binary.Write(w, binary.LittleEndian, t.ID); err != nil {
			return err
		}
		if len(t.Token) > 0xFFFF {
			return fmt.Errorf("token %q too long", t.Token)
		}
		if err := binary.Write(w, binary.LittleEndian, uint16(len(t.Token))); err != nil {
			return err
		}
		if _, err := io.WriteString(w, t.Token); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, t.IDF); err != nil {
			return err
		}
	}
	return nil
}

// VectorsHeader describes the dataset-vectors file's shape.
type VectorsHeader struct {
	N     uint32
	D     uint32
	DType string // always "f32"
}

// ReadVectorsFile parses `<source>-dataset-vectors.bin`: header
// {N, D, dtype=f32}, then N*D floats row-major.
func ReadVectorsFile(r io.Reader) (VectorsHeader, []float32, error) {
	if err := CheckHeader(r, MagicVectors); err != nil {
		return VectorsHeader{}, nil, err
	}

	var n, d uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return VectorsHeader{}, nil, fmt.Errorf("read N: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &d); err != nil {
		return VectorsHeader{}, nil, fmt.Errorf("read D: %w", err)
	}
	var dtypeLen uint16
	if err := binary.Read(r, binary.LittleEndian, &dtypeLen); err != nil {
		return VectorsHeader{}, nil, fmt.Errorf("read dtype length: %w", err)
	}
	dtypeBuf := make([]byte, dtypeLen)
	if _, err := io.ReadFull(r, dtypeBuf); err != nil {
		return VectorsHeader{}, nil, fmt.Errorf("read dtype: %w", err)
	}
	hdr := VectorsHeader{N: n, D: d, DType: string(dtypeBuf)}
	if hdr.DType != "f32" {
		return VectorsHeader{}, nil, fmt.Errorf("unsupported dtype %q", hdr.DType)
	}

	total := int64(n) * int64(d)
	data := make([]float32, total)
	if total > 0 {
		if err := binary.Read(r, binary.LittleEndian, data); err != nil {
			return VectorsHeader{}, nil, fmt.Errorf("read vector data: %w", err)
		}
	}

	return hdr, data, nil
}

// WriteVectorsFile serialises the dataset-vectors file.
func WriteVectorsFile(w io.Writer, n, d uint32, data []float32) error {
	if err := WriteHeader(w, MagicVectors); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, n); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, d); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len("f32"))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "f32"); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, data)
}

// ReadSourceFile parses `<source>-source-data.bin`: header {N}, then N
// variable-length records of {u32 length, bytes}.
func ReadSourceFile(r io.Reader) (uint32, [][]byte, error) {
	if err := CheckHeader(r, MagicSource); err != nil {
		return 0, nil, err
	}

	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return 0, nil, fmt.Errorf("read N: %w", err)
	}

	records := make([][]byte, 0, n)
	br := bufio.NewReader(r)
	for i := uint32(0); i < n; i++ {
		var length uint32
		if err := binary.Read(br, binary.LittleEndian, &length); err != nil {
			return 0, nil, fmt.Errorf("read record %d length: %w", i, err)
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(br, buf); err != nil {
			return 0, nil, fmt.Errorf("read record %d bytes: %w", i, err)
		}
		records = append(records, buf)
	}

	return n, records, nil
}

// WriteSourceFile serialises the source-data file.
func WriteSourceFile(w io.Writer, records [][]byte) error {
	if err := WriteHeader(w, MagicSource); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(records))); err != nil {
		return err
	}
	for i, rec := range records {
		if len(rec) > 0xFFFFFFFF {
			return fmt.Errorf("record %d too large", i)
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(rec))); err != nil {
			return err
		}
		if _, err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// noYear is the sentinel written in place of a null yearOfPublication.
const noYear int32 = -1 << 31

// ReferenceFields is the title/author/place/year tuple carried inside each
// source-data.bin record, plus an opaque metadata tail retained verbatim
// for report emission (spec.md §4.4's FIELDS and META arrays share this
// one on-disk record to avoid a fourth corpus file).
type ReferenceFields struct {
	Title  string
	Author string
	Place  string
	Year   *int
	Meta   []byte
}

// EncodeSourceRecord serialises one reference's fields into the fixed
// internal layout referenced by spec.md §6: three length-prefixed strings,
// a 4-byte year (noYear sentinel for null), then the raw metadata tail.
func EncodeSourceRecord(f ReferenceFields) []byte {
	buf := make([]byte, 0, 64+len(f.Meta))
	buf = appendString(buf, f.Title)
	buf = appendString(buf, f.Author)
	buf = appendString(buf, f.Place)

	year := noYear
	if f.Year != nil {
		year = int32(*f.Year)
	}
	var yearBuf [4]byte
	binary.LittleEndian.PutUint32(yearBuf[:], uint32(year))
	buf = append(buf, yearBuf[:]...)

	buf = append(buf, f.Meta...)
	return buf
}

// DecodeSourceRecord parses the layout written by EncodeSourceRecord.
func DecodeSourceRecord(rec []byte) (ReferenceFields, error) {
	var f ReferenceFields
	var ok bool

	f.Title, rec, ok = readString(rec)
	if !ok {
		return f, fmt.Errorf("source record: truncated title")
	}
	f.Author, rec, ok = readString(rec)
	if !ok {
		return f, fmt.Errorf("source record: truncated author")
	}
	f.Place, rec, ok = readString(rec)
	if !ok {
		return f, fmt.Errorf("source record: truncated place")
	}
	if len(rec) < 4 {
		return f, fmt.Errorf("source record: truncated year")
	}
	year := int32(binary.LittleEndian.Uint32(rec[:4]))
	rec = rec[4:]
	if year != noYear {
		y := int(year)
		f.Year = &y
	}

	if len(rec) > 0 {
		f.Meta = append([]byte(nil), rec...)
	}
	return f, nil
}

func appendString(buf []byte, s string) []byte {
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(s)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, s...)
}

func readString(rec []byte) (string, []byte, bool) {
	if len(rec) < 2 {
		return "", rec, false
	}
	n := int(binary.LittleEndian.Uint16(rec[:2]))
	rec = rec[2:]
	if len(rec) < n {
		return "", rec, false
	}
	return string(rec[:n]), rec[n:], true
}
