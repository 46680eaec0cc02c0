// Package trace provides a write-only, non-authoritative diagnostic event
// log for an eepromfs.Filesystem. Records are CRC32'd, but the log is
// never read back by Mount or any recovery path — losing the trace file
// never changes filesystem behavior. It exists purely for offline
// debugging of an access sequence.
package trace

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/pkg/errors"
)

// ErrCorruptTrace is returned by Decode when a record's stored CRC
// doesn't match its payload.
var ErrCorruptTrace = errors.New("trace: corrupt record")

// EventKind identifies which Filesystem operation a Record describes.
type EventKind uint8

const (
	EventMount EventKind = iota
	EventOpenRead
	EventOpenWrite
	EventOpenAppend
	EventRead
	EventWrite
	EventClose
	EventDelete
)

func (k EventKind) String() string {
	switch k {
	case EventMount:
		return "mount"
	case EventOpenRead:
		return "open_read"
	case EventOpenWrite:
		return "open_write"
	case EventOpenAppend:
		return "open_append"
	case EventRead:
		return "read"
	case EventWrite:
		return "write"
	case EventClose:
		return "close"
	case EventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Record is one diagnostic event: which file, which operation, how many
// bytes moved, and the resulting protocol code (0 for success). Every
// field is fixed-width, so an encoded Record always occupies exactly
// recordSize bytes — there is no length prefix to carry and no entry ever
// needs splitting across more than one write.
type Record struct {
	File  uint8
	Kind  EventKind
	Bytes uint32
	Code  int8
}

const (
	payloadSize = 1 + 1 + 4 + 1 // File + Kind + Bytes + Code
	recordSize  = 4 + payloadSize
)

// Encode appends r to w as a single fixed-size frame:
//
//	| CRC (4) | FILE (1) | KIND (1) | BYTES (4) | CODE (1) |
//
// CRC is the checksum of the four payload fields. The frame size is a
// compile-time constant, so it's assembled in a stack array and handed to
// w in one Write call — nothing here needs to seek back and patch a
// checksum in after the fact, the way a self-describing variable-length
// record would.
func (r *Record) Encode(w io.Writer) error {
	var buf [recordSize]byte
	payload := buf[4:]
	payload[0] = r.File
	payload[1] = byte(r.Kind)
	binary.LittleEndian.PutUint32(payload[2:6], r.Bytes)
	payload[6] = byte(r.Code)
	binary.LittleEndian.PutUint32(buf[0:4], crc32.ChecksumIEEE(payload))

	_, err := w.Write(buf[:])
	return err
}

// Decode reads back one fixed-size Record, returning io.EOF once the
// stream is exhausted. A short final frame — the tail of a write that
// never completed — also reads as a clean io.EOF rather than corruption:
// tracing never fsyncs ahead of the event it describes, so a torn last
// record is an expected artifact of a crash mid-append, not damage worth
// flagging.
func Decode(r io.Reader) (*Record, error) {
	var buf [recordSize]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil {
		if err == io.ErrUnexpectedEOF || (n == 0 && err == io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}

	payload := buf[4:]
	if crc32.ChecksumIEEE(payload) != binary.LittleEndian.Uint32(buf[0:4]) {
		return nil, ErrCorruptTrace
	}

	return &Record{
		File:  payload[0],
		Kind:  EventKind(payload[1]),
		Bytes: binary.LittleEndian.Uint32(payload[2:6]),
		Code:  int8(payload[6]),
	}, nil
}
