// Package chain implements the chain engine: walking, extending,
// truncating, and terminating a file's singly-linked block chain, and
// interpreting the dual-purpose terminator byte that closes it.
package chain

import (
	"github.com/pkg/errors"

	"github.com/mirosta/eepromfs/bitmap"
	"github.com/mirosta/eepromfs/device"
	"github.com/mirosta/eepromfs/layout"
)

// IsLenMarker reports whether a terminator byte value encodes a stored
// length (bit 7 set) rather than a next-block pointer.
func IsLenMarker(term byte) bool {
	return term&0x80 != 0
}

// Len extracts the stored length from a length-marker terminator. The
// caller must have already checked IsLenMarker and term != layout.NullBlock.
func Len(term byte) int {
	return int(term &^ 0x80)
}

// MakeLenMarker builds a length-marker terminator byte for n data bytes,
// 0 <= n <= layout.DataBytesPerBlock. A block closed exactly when full
// (n == DataBytesPerBlock == 31) produces the largest marker, 0x80|31 ==
// 0x9F — still distinct from NullBlock (0xFF), which also has bits 5 and
// 6 set.
func MakeLenMarker(n int) byte {
	return 0x80 | byte(n)
}

// Engine operates on a single device/layout pair, walking and mutating
// block chains. It holds no per-file state of its own; all state lives
// in the handles that call it.
type Engine struct {
	dev device.Port
	lay *layout.Layout
}

// New returns a chain Engine bound to dev/lay.
func New(dev device.Port, lay *layout.Layout) *Engine {
	return &Engine{dev: dev, lay: lay}
}

// GetNext reads block's terminator byte.
func (e *Engine) GetNext(block int) (byte, error) {
	b, err := e.dev.ReadByte(e.lay.TerminatorOffset(block))
	if err != nil {
		return 0, errors.Wrapf(err, "chain: reading terminator of block %d", block)
	}
	return b, nil
}

// SetNext writes block's terminator byte.
func (e *Engine) SetNext(block int, value byte) error {
	if err := e.dev.WriteByte(e.lay.TerminatorOffset(block), value); err != nil {
		return errors.Wrapf(err, "chain: writing terminator of block %d", block)
	}
	return nil
}

// Wipe walks from file's start block, freeing every block reached via a
// pointer terminator, then resets the start block's terminator to
// layout.NullBlock (an empty open tail). The start block itself stays
// allocated: this keeps a subsequent re-open for write cheap and leaves
// the file existing but empty.
func (e *Engine) Wipe(bm *bitmap.Bitmap, start int) error {
	if start == layout.NullBlock {
		return nil
	}

	next, err := e.GetNext(start)
	if err != nil {
		return err
	}
	for next != layout.NullBlock && !IsLenMarker(next) {
		block := int(next)
		next, err = e.GetNext(block)
		if err != nil {
			return err
		}
		if err := bm.SetInUse(block, false); err != nil {
			return err
		}
	}

	return e.SetNext(start, layout.NullBlock)
}

// FastForward walks from file's start block to its tail, returning the
// byte position and block index at which an append must resume.
// Each pointer-terminator hop advances position by BlockSize; the final
// hop adds either 0 (an open, NullBlock tail) or the stored length (a
// length-marker tail).
func (e *Engine) FastForward(start int) (position int, block int, err error) {
	if start == layout.NullBlock {
		return 0, layout.NullBlock, nil
	}

	block = start
	next, err := e.GetNext(block)
	if err != nil {
		return 0, 0, err
	}
	for next != layout.NullBlock && !IsLenMarker(next) {
		position += layout.BlockSize
		block = int(next)
		next, err = e.GetNext(block)
		if err != nil {
			return 0, 0, err
		}
	}
	if next != layout.NullBlock {
		position += Len(next)
	}
	return position, block, nil
}
