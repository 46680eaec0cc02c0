// Package ptrtable implements the file pointer table: an in-memory,
// write-through mirror of the device's per-file start-block table.
package ptrtable

import (
	"github.com/pkg/errors"

	"github.com/mirosta/eepromfs/device"
	"github.com/mirosta/eepromfs/layout"
)

// NoFile is the sentinel start-block value meaning "file does not
// exist", stored in a pointer-table entry.
const NoFile = layout.NullBlock

// Table is the owning value for one device's file pointer table.
type Table struct {
	dev    device.Port
	lay    *layout.Layout
	starts []byte
}

// Format initializes every file entry to NoFile and flushes the whole
// region.
func Format(dev device.Port, lay *layout.Layout) (*Table, error) {
	t := &Table{dev: dev, lay: lay, starts: make([]byte, lay.MaxFiles)}
	for i := range t.starts {
		t.starts[i] = NoFile
	}
	if err := dev.WriteBlock(lay.PtrTableOffset, t.starts); err != nil {
		return nil, errors.Wrap(err, "ptrtable: format")
	}
	return t, nil
}

// Load reads the pointer table region off the device.
func Load(dev device.Port, lay *layout.Layout) (*Table, error) {
	starts := make([]byte, lay.MaxFiles)
	if err := dev.ReadBlock(lay.PtrTableOffset, starts); err != nil {
		return nil, errors.Wrap(err, "ptrtable: load")
	}
	return &Table{dev: dev, lay: lay, starts: starts}, nil
}

// Exists reports whether file f has an allocated start block.
func (t *Table) Exists(f int) bool {
	return t.starts[f] != NoFile
}

// Start returns file f's start block, or NoFile if it doesn't exist.
func (t *Table) Start(f int) int {
	return int(t.starts[f])
}

// SetStart stores file f's start block and flushes the single affected
// device byte.
func (t *Table) SetStart(f int, block int) error {
	t.starts[f] = byte(block)
	return t.dev.WriteByte(t.lay.PtrTableOffset+f, byte(block))
}
