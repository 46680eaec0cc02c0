// Package bitmap implements the allocation bitmap: an in-memory mirror of
// the device's free-block bitmap, kept write-through on every mutation.
// Bit value 1 means free, 0 means in use — the same convention
// github.com/bits-and-blooms/bitset uses for "set", so no inversion is
// needed between the library's semantics and the device's.
package bitmap

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"

	"github.com/mirosta/eepromfs/device"
	"github.com/mirosta/eepromfs/layout"
)

// NoFreeBlock is returned by FindFree when every block is in use.
const NoFreeBlock = layout.NullBlock

// Bitmap is the owning value for one device's free-block bitmap. It is
// created by Load (recovering an existing device) or Format (initializing
// a fresh one) and must be threaded explicitly through every operation;
// it holds no package-level state of its own.
type Bitmap struct {
	dev  device.Port
	lay  *layout.Layout
	bits *bitset.BitSet
}

// Format initializes every block as free and flushes the whole bitmap
// region to the device in one write.
func Format(dev device.Port, lay *layout.Layout) (*Bitmap, error) {
	b := &Bitmap{dev: dev, lay: lay, bits: bitset.New(uint(lay.NumBlocks))}
	for i := 0; i < lay.NumBlocks; i++ {
		b.bits.Set(uint(i))
	}
	if err := b.flushAll(); err != nil {
		return nil, errors.Wrap(err, "bitmap: format")
	}
	return b, nil
}

// Load reads the bitmap region off the device into a fresh in-memory
// mirror.
func Load(dev device.Port, lay *layout.Layout) (*Bitmap, error) {
	raw := make([]byte, lay.BitmapBytes)
	if err := dev.ReadBlock(lay.BitmapOffset, raw); err != nil {
		return nil, errors.Wrap(err, "bitmap: load")
	}

	b := &Bitmap{dev: dev, lay: lay, bits: bitset.New(uint(lay.NumBlocks))}
	for i := 0; i < lay.NumBlocks; i++ {
		byteIdx := i >> 3
		bit := uint(i & 7)
		if raw[byteIdx]&(1<<bit) != 0 {
			b.bits.Set(uint(i))
		}
	}
	return b, nil
}

func (b *Bitmap) flushAll() error {
	raw := make([]byte, b.lay.BitmapBytes)
	for i := 0; i < b.lay.BitmapBytes*8; i++ {
		// Padding bits beyond NumBlocks are written set (free), as in
		// flushByte.
		if i >= b.lay.NumBlocks || b.bits.Test(uint(i)) {
			raw[i>>3] |= 1 << uint(i&7)
		}
	}
	return b.dev.WriteBlock(b.lay.BitmapOffset, raw)
}

// flushByte recomposes and writes through exactly the device byte that
// block index i lives in, rather than the whole bitmap region.
func (b *Bitmap) flushByte(i int) error {
	byteIdx := i >> 3
	base := byteIdx * 8
	var v byte
	for bit := 0; bit < 8; bit++ {
		blockIdx := base + bit
		if blockIdx >= b.lay.NumBlocks {
			// Padding bits beyond NumBlocks are conventionally left set
			// (free) so they never look allocated; they're never consulted
			// by FindFree since it's bounded by NumBlocks.
			v |= 1 << uint(bit)
			continue
		}
		if b.bits.Test(uint(blockIdx)) {
			v |= 1 << uint(bit)
		}
	}
	return b.dev.WriteByte(b.lay.BitmapOffset+byteIdx, v)
}

// IsInUse reports whether block b is currently allocated.
func (bm *Bitmap) IsInUse(b int) bool {
	return !bm.bits.Test(uint(b))
}

// SetInUse marks block b used or free and flushes the single affected
// device byte.
func (bm *Bitmap) SetInUse(b int, used bool) error {
	bm.bits.SetTo(uint(b), !used)
	return bm.flushByte(b)
}

// FindFree returns the lowest-indexed free block, or NoFreeBlock if none
// remain. Allocation is strictly first-fit ascending: NextSet(0) is
// exactly that search.
func (bm *Bitmap) FindFree() int {
	i, ok := bm.bits.NextSet(0)
	if !ok {
		return NoFreeBlock
	}
	return int(i)
}
