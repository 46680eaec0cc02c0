package eepromfs

import (
	"github.com/mirosta/eepromfs/chain"
	"github.com/mirosta/eepromfs/layout"
	"github.com/mirosta/eepromfs/trace"
)

// Read fills buf from the file under handle, which must be in AccessRead,
// returning the number of bytes actually read. Returning fewer than
// len(buf) is not an error — it signals end of file — and the handle
// remains readable/closeable.
//
// The block-hop decision compares bytes still wanted against this
// block's actual remaining capacity from the current offset, not a flat
// 31: using the flat constant instead can under-read or spin forever
// whenever a read resumes mid-block at a nonzero offset into a pointer
// block and asks for more than is left in it but not more than 31.
func (f *Filesystem) Read(handle int, buf []byte) (int, error) {
	if err := f.checkHandle(handle); err != nil {
		return 0, err
	}
	h := &f.handles[handle]
	if h.access != AccessRead {
		f.traceEvent(trace.EventRead, handle, 0, CodeWrongFileIOType)
		return 0, ErrWrongFileIOType
	}

	total := 0
	for total < len(buf) {
		off := h.position % layout.BlockSize
		next, err := f.chain.GetNext(h.currentBlock)
		if err != nil {
			return total, err
		}

		terminal := chain.IsLenMarker(next)
		cap := layout.DataBytesPerBlock
		if terminal && next != layout.NullBlock {
			cap = chain.Len(next)
		}
		avail := cap - off
		wanted := len(buf) - total

		if avail == 0 && terminal {
			break // end of file
		}

		if wanted > avail && avail > 0 {
			if err := f.dev.ReadBlock(f.lay.BlockOffset(h.currentBlock)+off, buf[total:total+avail]); err != nil {
				return total, err
			}
			total += avail
			h.position += avail
			if terminal {
				break // short read: this was the last block and it's now drained
			}
			h.currentBlock = int(next)
			h.position++ // skip the terminator byte
			continue
		}

		if avail > 0 {
			if err := f.dev.ReadBlock(f.lay.BlockOffset(h.currentBlock)+off, buf[total:total+wanted]); err != nil {
				return total, err
			}
			total += wanted
			h.position += wanted
			break // fully satisfied the request
		}

		if avail == 0 {
			// An earlier call stopped exactly at the end of this
			// non-terminal block: hop past its terminator and go on.
			h.currentBlock = int(next)
			h.position++
			continue
		}

		// avail < 0 on a non-terminal block only comes from a corrupt
		// chain. Break rather than spin.
		break
	}

	f.traceEvent(trace.EventRead, handle, total, CodeOK)
	return total, nil
}
