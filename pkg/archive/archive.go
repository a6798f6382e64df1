// Package archive reads batches of query records from a ZIP archive of
// per-source JSON files, the canonical input shape from spec.md §6.
package archive

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/nblibris/libris-match/internal/matcherr"
)

// QueryRecord is one edition of one source record read from the archive,
// not yet assigned a batch sequence number.
type QueryRecord struct {
	SourceFile string
	Edition    int
	Title      string
	Author     string
	Place      string
	Year       *int
}

// ArchiveReader is the external collaborator spec.md §6 describes: a
// source of QueryRecords streamed over a channel, honouring ctx
// cancellation between records.
type ArchiveReader interface {
	Records(ctx context.Context) (<-chan QueryRecord, error)
}

// schemaV1 nests editions under one title/author record (spec.md §6).
type schemaV1 struct {
	Title    string `json:"title"`
	Author   string `json:"author"`
	Editions []struct {
		PlaceOfPublication string `json:"placeOfPublication"`
		YearOfPublication  *int   `json:"yearOfPublication"`
	} `json:"editions"`
}

// schemaV2 flattens a single edition directly onto the record (the
// `json-schema-version=2` resolution recorded in DESIGN.md).
type schemaV2 struct {
	Title              string `json:"title"`
	Author             string `json:"author"`
	PlaceOfPublication string `json:"placeOfPublication"`
	YearOfPublication  *int   `json:"yearOfPublication"`
}

// Reader reads QueryRecords out of a ZIP archive's JSON entries in
// deterministic (filename-sorted) order, required for reproducible batch
// runs (spec.md §8 property 4). It implements ArchiveReader.
type Reader struct {
	SchemaVersion int
	Path          string

	mu  sync.Mutex
	err error
}

var _ ArchiveReader = (*Reader)(nil)

// NewReader builds a Reader for the given schema version (1 or 2) over the
// ZIP archive at path.
func NewReader(schemaVersion int, path string) *Reader {
	return &Reader{SchemaVersion: schemaVersion, Path: path}
}

// Records opens the archive and streams one QueryRecord per edition, in
// filename order, on the returned channel. The channel closes when every
// entry has been sent, the context is cancelled, or an entry fails to
// decode; call Err after the channel closes to distinguish a clean finish
// from a stream that was cut short.
func (r *Reader) Records(ctx context.Context) (<-chan QueryRecord, error) {
	zr, err := zip.OpenReader(r.Path)
	if err != nil {
		return nil, matcherr.Wrap("archive.Records", matcherr.KindQueryMalformed, err)
	}

	names := make([]string, 0, len(zr.File))
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		names = append(names, f.Name)
		files[f.Name] = f
	}
	sort.Strings(names)

	out := make(chan QueryRecord)
	go func() {
		defer close(out)
		defer zr.Close()
		for _, name := range names {
			if ctx.Err() != nil {
				r.setErr(ctx.Err())
				return
			}
			recs, err := r.readEntry(files[name])
			if err != nil {
				r.setErr(matcherr.Wrap(fmt.Sprintf("archive.Records(%s)", name), matcherr.KindQueryMalformed, err))
				return
			}
			for _, rec := range recs {
				select {
				case out <- rec:
				case <-ctx.Done():
					r.setErr(ctx.Err())
					return
				}
			}
		}
	}()
	return out, nil
}

// ReadAll is a convenience over Records for callers that want the whole
// batch as a slice rather than a stream; it drains Records with a
// background context and returns any error observed while streaming.
func (r *Reader) ReadAll() ([]QueryRecord, error) {
	ch, err := r.Records(context.Background())
	if err != nil {
		return nil, err
	}
	var records []QueryRecord
	for rec := range ch {
		records = append(records, rec)
	}
	return records, r.Err()
}

// Err returns the error that stopped the most recent Records stream early,
// or nil if the stream ran to completion (or hasn't run yet).
func (r *Reader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Reader) setErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func (r *Reader) readEntry(f *zip.File) ([]QueryRecord, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}

	if r.SchemaVersion == 2 {
		var rec schemaV2
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, err
		}
		return []QueryRecord{{
			SourceFile: f.Name,
			Edition:    0,
			Title:      rec.Title,
			Author:     rec.Author,
			Place:      rec.PlaceOfPublication,
			Year:       rec.YearOfPublication,
		}}, nil
	}

	var rec schemaV1
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	out := make([]QueryRecord, len(rec.Editions))
	for i, ed := range rec.Editions {
		out[i] = QueryRecord{
			SourceFile: f.Name,
			Edition:    i,
			Title:      rec.Title,
			Author:     rec.Author,
			Place:      ed.PlaceOfPublication,
			Year:       ed.YearOfPublication,
		}
	}
	return out, nil
}
