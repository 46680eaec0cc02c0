package trace

import (
	"io"
	"iter"
	"os"

	"github.com/pkg/errors"
)

// Reader replays a trace file for human inspection. Nothing in this
// module ever feeds a Reader's output back into Filesystem state.
//
// A trace file is a flat run of recordSize-byte frames with no index, so
// getting to record N means decoding records 0..N-1 regardless of how
// that decoding is scheduled. OpenReader does it all eagerly, once, at
// open time, rather than leaving each Record to be decoded lazily as a
// caller asks for it: the file is small diagnostic output meant to be
// skimmed top to bottom, not paged through repeatedly, and deciding the
// whole file up front means a corrupt frame is reported as an Open error
// instead of surfacing partway through an otherwise-successful iteration.
type Reader struct {
	records []Record
}

// OpenReader opens path and decodes every record it contains.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "trace: opening %s for read", path)
	}
	defer f.Close()

	var records []Record
	for {
		rec, err := Decode(f)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "trace: decoding %s", path)
		}
		records = append(records, *rec)
	}
	return &Reader{records: records}, nil
}

// All iterates every decoded record in file order.
func (r *Reader) All() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for _, rec := range r.records {
			if !yield(rec) {
				return
			}
		}
	}
}

// Close is a no-op kept so a Reader has the same open/close lifecycle as
// a Writer; OpenReader already released the underlying file handle.
func (r *Reader) Close() error {
	return nil
}
