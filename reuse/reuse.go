// Package reuse persists and restores a reuse record: the snapshot of
// model lists, explicit hunk order and hash-table size spec.md §3 and §6
// define, used to reproduce or bound a previous best compression result.
package reuse

import (
	"bytes"
	"encoding/gob"
	"io"

	"github.com/klauspost/compress/zstd"

	"moria.us/mlink/model"
)

// Record is a persisted snapshot of a previous run's best-known
// configuration.
type Record struct {
	CodeModels *model.ModelList4k
	DataModels *model.ModelList4k
	Model1k    *model.ModelList1k
	HunkOrder  []string
	HashSize   int
}

func init() {
	gob.Register(model.ModelList4k{})
	gob.Register(model.ModelList1k{})
}

// Save writes r to w as a gob-encoded, zstd-compressed stream. Save is
// written so that Save(Load(f)) reproduces f byte-for-byte: the encoding
// is entirely determined by r's fields (gob's field order is fixed by the
// Record type, and the zstd encoder parameters below are fixed constants)
// with no embedded timestamps or non-deterministic framing.
func Save(w io.Writer, r *Record) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return err
	}

	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return err
	}
	if _, err := zw.Write(buf.Bytes()); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// Load reads a Record previously written by Save.
func Load(r io.Reader) (*Record, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var rec Record
	if err := gob.NewDecoder(zr).Decode(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
