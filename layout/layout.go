// Package layout derives the on-device region geometry (configure byte,
// allocation bitmap, file pointer table, data area) from a total device
// size and a fixed block size. Every other package in this module is
// handed a *Layout rather than re-deriving these numbers itself.
package layout

import "github.com/pkg/errors"

// BlockSize is fixed by the on-device format: 31 data bytes plus one
// terminator byte.
const BlockSize = 32

// DataBytesPerBlock is the number of usable data bytes in a block, the
// terminator byte excluded.
const DataBytesPerBlock = BlockSize - 1

// NullBlock is the sentinel block index meaning "no block" (current_block
// unset, or a pointer-table entry for a nonexistent file).
const NullBlock = 0xFF

// MaxFilesHardLimit is the largest MAX_FILES the one-byte pointer table and
// the 0xFF sentinel allow.
const MaxFilesHardLimit = 254

// DefaultDeviceSize and DefaultMaxFiles describe a concrete, commonly
// used configuration: a 2048 byte device with 61 files and 61 data
// blocks.
const (
	DefaultDeviceSize = 2048
	DefaultMaxFiles   = 61
)

// Layout is the derived geometry of one device size/file-count
// combination. All fields are read-only after New.
type Layout struct {
	DeviceSize int
	MaxFiles   int

	BitmapBytes int
	NumBlocks   int

	ConfigureOffset int
	BitmapOffset    int
	PtrTableOffset  int
	DataOffset      int

	ConfigureMagic byte
}

// New derives a Layout from a device size and a file count, validating
// three invariants: MAX_FILES <= 254; the device must be large enough
// to hold the configure byte, the pointer table and at least zero data
// blocks (NumBlocks may be 0, a degenerate but valid device that can hold
// no files); and every derived block index must fit in a terminator
// pointer.
func New(deviceSize, maxFiles int) (*Layout, error) {
	if maxFiles < 0 || maxFiles > MaxFilesHardLimit {
		return nil, errors.Errorf("layout: maxFiles %d out of range [0, %d]", maxFiles, MaxFilesHardLimit)
	}
	if deviceSize < 1+maxFiles {
		return nil, errors.Errorf("layout: deviceSize %d too small for %d files", deviceSize, maxFiles)
	}

	// NumBlocks and BitmapBytes are mutually dependent: a larger bitmap
	// leaves fewer blocks, which may need a smaller bitmap again. When the
	// bitmap would shrink back, the smaller bitmap is kept and NumBlocks is
	// capped at the number of blocks it can track, so the loop always ends.
	bitmapBytes := 0
	numBlocks := 0
	for {
		dataBytesTotal := deviceSize - (1 + bitmapBytes + maxFiles)
		if dataBytesTotal < 0 {
			dataBytesTotal = 0
		}
		nb := dataBytesTotal / BlockSize
		nextBitmapBytes := (nb + 7) / 8
		if nextBitmapBytes == bitmapBytes {
			numBlocks = nb
			break
		}
		if nextBitmapBytes < bitmapBytes {
			bitmapBytes = nextBitmapBytes
			numBlocks = (deviceSize - (1 + bitmapBytes + maxFiles)) / BlockSize
			if numBlocks > bitmapBytes*8 {
				numBlocks = bitmapBytes * 8
			}
			break
		}
		bitmapBytes = nextBitmapBytes
	}
	// A next-block pointer in a terminator byte must keep bit 7 clear
	// (bit 7 set marks a length), so block indices are limited to 0..127.
	if numBlocks > 0x80 {
		return nil, errors.Errorf("layout: deviceSize %d yields %d blocks, more than a terminator pointer can address", deviceSize, numBlocks)
	}

	l := &Layout{
		DeviceSize:      deviceSize,
		MaxFiles:        maxFiles,
		BitmapBytes:     bitmapBytes,
		NumBlocks:       numBlocks,
		ConfigureOffset: 0,
		BitmapOffset:    1,
		PtrTableOffset:  1 + bitmapBytes,
		DataOffset:      1 + bitmapBytes + maxFiles,
		ConfigureMagic:  byte(bitmapBytes) ^ 0xA1,
	}
	return l, nil
}

// Default returns the Layout for DefaultDeviceSize/DefaultMaxFiles.
func Default() *Layout {
	l, err := New(DefaultDeviceSize, DefaultMaxFiles)
	if err != nil {
		// DefaultDeviceSize/DefaultMaxFiles are constants verified by
		// TestDefaultLayout; this can't happen.
		panic(err)
	}
	return l
}

// BlockOffset returns the absolute device byte offset of block b's first
// data byte.
func (l *Layout) BlockOffset(b int) int {
	return l.DataOffset + b*BlockSize
}

// TerminatorOffset returns the absolute device byte offset of block b's
// terminator byte.
func (l *Layout) TerminatorOffset(b int) int {
	return l.BlockOffset(b) + DataBytesPerBlock
}
