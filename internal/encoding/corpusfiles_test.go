package encoding

import (
	"bytes"
	"math"
	"testing"
)

func TestVectorRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		vector []float32
	}{
		{"simple", []float32{1.0, 2.0, 3.0}},
		{"empty", []float32{}},
		{"negative", []float32{-1.5, 0, 2.25}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := EncodeVector(tt.vector)
			if err != nil {
				t.Fatalf("EncodeVector() error = %v", err)
			}
			decoded, err := DecodeVector(encoded)
			if err != nil {
				t.Fatalf("DecodeVector() error = %v", err)
			}
			if len(decoded) != len(tt.vector) {
				t.Fatalf("length mismatch: got %d, want %d", len(decoded), len(tt.vector))
			}
			for i := range tt.vector {
				if decoded[i] != tt.vector[i] {
					t.Errorf("index %d: got %v, want %v", i, decoded[i], tt.vector[i])
				}
			}
		})
	}
}

func TestValidateVector(t *testing.T) {
	if err := ValidateVector(nil); err == nil {
		t.Error("expected error for nil vector")
	}
	if err := ValidateVector([]float32{1, float32(math.NaN())}); err == nil {
		t.Error("expected error for NaN component")
	}
	if err := ValidateVector([]float32{1, float32(math.Inf(1))}); err == nil {
		t.Error("expected error for Inf component")
	}
	if err := ValidateVector([]float32{0.1, 0.2}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestVocabFileRoundTrip(t *testing.T) {
	tokens := []VocabToken{
		{ID: 0, Token: "moby", IDF: 2.1},
		{ID: 1, Token: "dick", IDF: 3.4},
		{ID: 2, Token: "melville", IDF: 5.0},
	}
	hdr := VocabHeader{V: uint32(len(tokens)), Hash: 0xdeadbeef}

	var buf bytes.Buffer
	if err := WriteVocabFile(&buf, hdr, tokens); err != nil {
		t.Fatalf("WriteVocabFile() error = %v", err)
	}

	gotHdr, gotTokens, err := ReadVocabFile(&buf)
	if err != nil {
		t.Fatalf("ReadVocabFile() error = %v", err)
	}
	if gotHdr != hdr {
		t.Errorf("header mismatch: got %+v, want %+v", gotHdr, hdr)
	}
	if len(gotTokens) != len(tokens) {
		t.Fatalf("token count mismatch: got %d, want %d", len(gotTokens), len(tokens))
	}
	for i, want := range tokens {
		if gotTokens[i] != want {
			t.Errorf("token %d: got %+v, want %+v", i, gotTokens[i], want)
		}
	}
}

func TestVocabFileBadMagic(t *testing.T) {
	buf := bytes.NewBufferString("nope")
	if _, _, err := ReadVocabFile(buf); err == nil {
		t.Error("expected error for bad magic")
	}
}

func TestVectorsFileRoundTrip(t *testing.T) {
	n, d := uint32(2), uint32(3)
	data := []float32{1, 0, 0, 0, 1, 0}

	var buf bytes.Buffer
	if err := WriteVectorsFile(&buf, n, d, data); err != nil {
		t.Fatalf("WriteVectorsFile() error = %v", err)
	}

	hdr, got, err := ReadVectorsFile(&buf)
	if err != nil {
		t.Fatalf("ReadVectorsFile() error = %v", err)
	}
	if hdr.N != n || hdr.D != d || hdr.DType != "f32" {
		t.Errorf("header mismatch: %+v", hdr)
	}
	if len(got) != len(data) {
		t.Fatalf("data length mismatch: got %d, want %d", len(got), len(data))
	}
	for i := range data {
		if got[i] != data[i] {
			t.Errorf("index %d: got %v, want %v", i, got[i], data[i])
		}
	}
}

func TestSourceRecordRoundTrip(t *testing.T) {
	year := 1851
	tests := []struct {
		name string
		in   ReferenceFields
	}{
		{"with year and meta", ReferenceFields{Title: "Moby Dick", Author: "Herman Melville", Place: "Boston", Year: &year, Meta: []byte(`{"id":"abc"}`)}},
		{"nil year", ReferenceFields{Title: "Untitled", Author: "", Place: "", Year: nil}},
		{"empty strings and meta", ReferenceFields{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := EncodeSourceRecord(tt.in)
			got, err := DecodeSourceRecord(enc)
			if err != nil {
				t.Fatalf("DecodeSourceRecord() error = %v", err)
			}
			if got.Title != tt.in.Title || got.Author != tt.in.Author || got.Place != tt.in.Place {
				t.Errorf("fields mismatch: got %+v, want %+v", got, tt.in)
			}
			if (got.Year == nil) != (tt.in.Year == nil) {
				t.Fatalf("year nilness mismatch: got %v, want %v", got.Year, tt.in.Year)
			}
			if got.Year != nil && *got.Year != *tt.in.Year {
				t.Errorf("year = %d, want %d", *got.Year, *tt.in.Year)
			}
			if !bytes.Equal(got.Meta, tt.in.Meta) {
				t.Errorf("meta = %q, want %q", got.Meta, tt.in.Meta)
			}
		})
	}
}

func TestDecodeSourceRecordTruncated(t *testing.T) {
	if _, err := DecodeSourceRecord([]byte{1, 2}); err == nil {
		t.Error("expected error for truncated record")
	}
}

func TestSourceFileRoundTrip(t *testing.T) {
	records := [][]byte{
		[]byte("record one"),
		{},
		[]byte("record three, longer payload"),
	}

	var buf bytes.Buffer
	if err := WriteSourceFile(&buf, records); err != nil {
		t.Fatalf("WriteSourceFile() error = %v", err)
	}

	n, got, err := ReadSourceFile(&buf)
	if err != nil {
		t.Fatalf("ReadSourceFile() error = %v", err)
	}
	if int(n) != len(records) {
		t.Fatalf("count mismatch: got %d, want %d", n, len(records))
	}
	for i := range records {
		if !bytes.Equal(got[i], records[i]) {
			t.Errorf("record %d: got %q, want %q", i, got[i], records[i])
		}
	}
}
