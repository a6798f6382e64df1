package archive

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFixtureArchive(t *testing.T, entries map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip.Create(%s): %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zw.Close(): %v", err)
	}
	return path
}

func TestReadAllSchemaV1MultipleEditions(t *testing.T) {
	path := writeFixtureArchive(t, map[string]string{
		"a.json": `{"title":"Moby Dick","author":"Herman Melville","editions":[
			{"placeOfPublication":"Boston","yearOfPublication":1851},
			{"placeOfPublication":"London","yearOfPublication":1852}
		]}`,
	})

	recs, err := NewReader(1, path).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len(recs) = %d, want 2", len(recs))
	}
	if recs[0].Edition != 0 || recs[1].Edition != 1 {
		t.Errorf("edition indices = %d, %d, want 0, 1", recs[0].Edition, recs[1].Edition)
	}
	if recs[0].Place != "Boston" || *recs[0].Year != 1851 {
		t.Errorf("recs[0] = %+v", recs[0])
	}
	if recs[1].Place != "London" || *recs[1].Year != 1852 {
		t.Errorf("recs[1] = %+v", recs[1])
	}
}

func TestReadAllSchemaV2FlattenedSingleEdition(t *testing.T) {
	path := writeFixtureArchive(t, map[string]string{
		"b.json": `{"title":"Moby Dick","author":"Herman Melville","placeOfPublication":"Boston","yearOfPublication":1851}`,
	})

	recs, err := NewReader(2, path).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("len(recs) = %d, want 1", len(recs))
	}
	if recs[0].Edition != 0 || recs[0].Place != "Boston" || *recs[0].Year != 1851 {
		t.Errorf("recs[0] = %+v", recs[0])
	}
}

func TestReadAllDeterministicFileOrder(t *testing.T) {
	path := writeFixtureArchive(t, map[string]string{
		"z.json": `{"title":"Z","author":"A","editions":[{"placeOfPublication":"","yearOfPublication":null}]}`,
		"a.json": `{"title":"A","author":"A","editions":[{"placeOfPublication":"","yearOfPublication":null}]}`,
	})

	recs, err := NewReader(1, path).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(recs) != 2 || recs[0].SourceFile != "a.json" || recs[1].SourceFile != "z.json" {
		t.Errorf("expected filename-sorted order, got %+v", recs)
	}
}

func TestReadAllMalformedJSONIsError(t *testing.T) {
	path := writeFixtureArchive(t, map[string]string{
		"bad.json": `{not valid json`,
	})
	if _, err := NewReader(1, path).ReadAll(); err == nil {
		t.Error("expected error for malformed JSON entry")
	}
}

func TestRecordsStreamsInCancellableChannel(t *testing.T) {
	path := writeFixtureArchive(t, map[string]string{
		"a.json": `{"title":"A","author":"A","editions":[{"placeOfPublication":"","yearOfPublication":null}]}`,
		"b.json": `{"title":"B","author":"B","editions":[{"placeOfPublication":"","yearOfPublication":null}]}`,
	})

	r := NewReader(1, path)
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := r.Records(ctx)
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}

	first, ok := <-ch
	if !ok {
		t.Fatalf("expected at least one record before cancellation")
	}
	if first.SourceFile != "a.json" {
		t.Errorf("first.SourceFile = %q, want a.json", first.SourceFile)
	}

	cancel()
	for range ch {
	}
	if err := r.Err(); err == nil {
		t.Error("expected Err() to report the cancellation")
	}
}

func TestRecordsMissingArchiveIsError(t *testing.T) {
	r := NewReader(1, filepath.Join(t.TempDir(), "missing.zip"))
	if _, err := r.Records(context.Background()); err == nil {
		t.Error("expected error opening a missing archive")
	}
}
