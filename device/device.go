// Package device models the byte-addressable non-volatile storage that
// eepromfs is built on: a flat address space of fixed total size,
// supporting single-byte and whole-block reads and writes. Port is the
// only polymorphic boundary in the design.
package device

import "github.com/pkg/errors"

// Port is the capability every other package in this module depends on.
// Implementations are assumed idempotent per byte; endurance (wear) is
// implementation-defined and out of scope here. A Port is not expected to
// be safe for concurrent use by more than one Filesystem value at a time.
type Port interface {
	// Size returns the total addressable size in bytes.
	Size() int

	// ReadByte reads the single byte at off.
	ReadByte(off int) (byte, error)

	// WriteByte writes the single byte at off.
	WriteByte(off int, b byte) error

	// ReadBlock reads len(buf) bytes starting at off into buf.
	ReadBlock(off int, buf []byte) error

	// WriteBlock writes buf to the device starting at off.
	WriteBlock(off int, buf []byte) error
}

// ErrOutOfRange is returned by any Port implementation when an access
// falls outside [0, Size()).
var ErrOutOfRange = errors.New("device: address out of range")

func checkRange(size, off, n int) error {
	if off < 0 || n < 0 || off+n > size {
		return errors.Wrapf(ErrOutOfRange, "off=%d n=%d size=%d", off, n, size)
	}
	return nil
}
