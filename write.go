package eepromfs

import (
	"github.com/mirosta/eepromfs/bitmap"
	"github.com/mirosta/eepromfs/layout"
	"github.com/mirosta/eepromfs/trace"
)

// Write appends p to the file under handle, which must be in AccessWrite.
// A new block is only allocated once the caller asks for more bytes than
// remain in the current block (room = DataBytesPerBlock - offset); filling
// a block exactly does not by itself allocate the next one, since Close is
// what stamps the terminator on whichever block the handle is left in.
//
// On OutOfSpace, bytes already committed to the device remain committed
// and Position(handle) reflects exactly how many bytes were written; the
// handle stays in AccessWrite and must still be Close'd to finalize the
// file at its partial length.
func (f *Filesystem) Write(handle int, p []byte) error {
	if err := f.checkHandle(handle); err != nil {
		return err
	}
	h := &f.handles[handle]
	if h.access != AccessWrite {
		f.traceEvent(trace.EventWrite, handle, 0, CodeWrongFileIOType)
		return ErrWrongFileIOType
	}

	i := 0
	for i < len(p) {
		off := h.position % layout.BlockSize
		room := layout.DataBytesPerBlock - off
		remaining := len(p) - i

		if remaining > room {
			if room > 0 {
				if err := f.dev.WriteBlock(f.lay.BlockOffset(h.currentBlock)+off, p[i:i+room]); err != nil {
					return err
				}
				i += room
				h.position += room
			}

			next := f.bm.FindFree()
			if next == bitmap.NoFreeBlock {
				// The room bytes above are already committed and already
				// reflected in h.position; the current block's terminator
				// is still open (NullBlock) since it was never chained
				// onward, so Close will stamp it with exactly that length.
				f.traceEvent(trace.EventWrite, handle, i, CodeOutOfSpace)
				return ErrOutOfSpace
			}
			if err := f.chain.SetNext(h.currentBlock, byte(next)); err != nil {
				return err
			}
			if err := f.chain.SetNext(next, layout.NullBlock); err != nil {
				return err
			}
			if err := f.bm.SetInUse(next, true); err != nil {
				return err
			}
			h.currentBlock = next
			h.position++ // skip the terminator byte, landing at offset 0 of the fresh block
			continue
		}

		if remaining > 0 {
			if err := f.dev.WriteBlock(f.lay.BlockOffset(h.currentBlock)+off, p[i:i+remaining]); err != nil {
				return err
			}
		}
		h.position += remaining
		i += remaining
	}

	f.traceEvent(trace.EventWrite, handle, len(p), CodeOK)
	return nil
}

// Position returns handle's current byte offset within its file, chiefly
// useful after a partial Write returns ErrOutOfSpace.
func (f *Filesystem) Position(handle int) int {
	return f.handles[handle].position
}
