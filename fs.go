package eepromfs

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mirosta/eepromfs/bitmap"
	"github.com/mirosta/eepromfs/chain"
	"github.com/mirosta/eepromfs/device"
	"github.com/mirosta/eepromfs/layout"
	"github.com/mirosta/eepromfs/ptrtable"
	"github.com/mirosta/eepromfs/trace"
)

// Filesystem is the owning value for one mounted device: the in-memory
// bitmap and pointer-table mirrors, the handle table, and the chain
// engine, all threaded explicitly through every operation rather than
// living as package-level statics.
type Filesystem struct {
	dev     device.Port
	lay     *layout.Layout
	bm      *bitmap.Bitmap
	pt      *ptrtable.Table
	chain   *chain.Engine
	handles []handleState

	log   *logrus.Logger
	trace *trace.Writer
}

// Option configures a Filesystem at Mount time.
type Option func(*Filesystem)

// WithLogger overrides the default logrus.StandardLogger() diagnostic
// sink. Logging is optional and affects only observability, never
// filesystem behavior.
func WithLogger(l *logrus.Logger) Option {
	return func(f *Filesystem) { f.log = l }
}

// WithTrace attaches a trace.Writer that records every operation for
// offline debugging. It is never consulted on Mount; see the trace
// package doc comment.
func WithTrace(w *trace.Writer) Option {
	return func(f *Filesystem) { f.trace = w }
}

// Mount brings the in-memory mirrors in sync with dev, formatting it
// first if its configure byte doesn't match lay's magic. It never
// touches the data area directly — only the bitmap and pointer-table
// regions are read or (on format) written.
func Mount(dev device.Port, lay *layout.Layout, opts ...Option) (*Filesystem, error) {
	if dev.Size() != lay.DeviceSize {
		return nil, errors.Errorf("eepromfs: device size %d doesn't match layout size %d", dev.Size(), lay.DeviceSize)
	}

	fsys := &Filesystem{
		dev:     dev,
		lay:     lay,
		chain:   chain.New(dev, lay),
		handles: make([]handleState, lay.MaxFiles),
		log:     logrus.StandardLogger(),
	}
	for i := range fsys.handles {
		fsys.handles[i] = freshHandle()
	}
	for _, opt := range opts {
		opt(fsys)
	}

	configured, err := dev.ReadByte(lay.ConfigureOffset)
	if err != nil {
		return nil, errors.Wrap(err, "eepromfs: reading configure byte")
	}

	if configured == lay.ConfigureMagic {
		fsys.log.WithField("maxFiles", lay.MaxFiles).Info("eepromfs: mounting existing device")
		bm, err := bitmap.Load(dev, lay)
		if err != nil {
			return nil, errors.Wrap(err, "eepromfs: loading bitmap")
		}
		pt, err := ptrtable.Load(dev, lay)
		if err != nil {
			return nil, errors.Wrap(err, "eepromfs: loading pointer table")
		}
		fsys.bm, fsys.pt = bm, pt
	} else {
		fsys.log.WithField("maxFiles", lay.MaxFiles).Info("eepromfs: formatting unconfigured device")
		if err := dev.WriteByte(lay.ConfigureOffset, lay.ConfigureMagic); err != nil {
			return nil, errors.Wrap(err, "eepromfs: writing configure byte")
		}
		bm, err := bitmap.Format(dev, lay)
		if err != nil {
			return nil, errors.Wrap(err, "eepromfs: formatting bitmap")
		}
		pt, err := ptrtable.Format(dev, lay)
		if err != nil {
			return nil, errors.Wrap(err, "eepromfs: formatting pointer table")
		}
		fsys.bm, fsys.pt = bm, pt
	}

	fsys.traceEvent(trace.EventMount, 0, 0, CodeOK)
	return fsys, nil
}

func (f *Filesystem) traceEvent(kind trace.EventKind, file int, n int, code int) {
	if f.trace == nil {
		return
	}
	_ = f.trace.Write(&trace.Record{File: uint8(file), Kind: kind, Bytes: uint32(n), Code: int8(code)})
}

func (f *Filesystem) checkHandle(h int) error {
	if h < 0 || h >= f.lay.MaxFiles {
		return ErrInvalidAccessHandle
	}
	return nil
}

// Exists reports whether file f has an allocated start block.
func (f *Filesystem) Exists(file int) bool {
	return f.pt.Exists(file)
}

// MaxFiles returns the number of distinct file ids this mount supports.
func (f *Filesystem) MaxFiles() int {
	return f.lay.MaxFiles
}

// ensureFile allocates file's start block if it doesn't exist yet: grab
// the lowest free block, point the pointer table at it, mark it used,
// and give it an open (NullBlock) tail.
func (f *Filesystem) ensureFile(file int) error {
	if f.pt.Exists(file) {
		return nil
	}

	start := f.bm.FindFree()
	if start == bitmap.NoFreeBlock {
		return ErrOutOfSpace
	}
	if err := f.pt.SetStart(file, start); err != nil {
		return err
	}
	if err := f.bm.SetInUse(start, true); err != nil {
		return err
	}
	return f.chain.SetNext(start, layout.NullBlock)
}

// OpenForRead transitions file from CLOSED to READ, positioning the
// cursor at the start of the chain.
func (f *Filesystem) OpenForRead(file int) (int, error) {
	if err := f.checkHandle(file); err != nil {
		return 0, err
	}
	h := &f.handles[file]
	if h.access != AccessClosed {
		f.traceEvent(trace.EventOpenRead, file, 0, CodeFileAlreadyOpen)
		return 0, ErrFileAlreadyOpen
	}
	if !f.pt.Exists(file) {
		f.traceEvent(trace.EventOpenRead, file, 0, CodeFileDoesNotExist)
		return 0, ErrFileDoesNotExist
	}

	h.access = AccessRead
	h.position = 0
	h.currentBlock = f.pt.Start(file)
	f.traceEvent(trace.EventOpenRead, file, 0, CodeOK)
	return file, nil
}

// OpenForWrite transitions file from CLOSED to WRITE. If the file
// doesn't exist its start block is allocated eagerly; if it does, its
// chain is wiped (truncated to empty) so the write starts fresh.
func (f *Filesystem) OpenForWrite(file int) (int, error) {
	if err := f.checkHandle(file); err != nil {
		return 0, err
	}
	h := &f.handles[file]
	if h.access != AccessClosed {
		f.traceEvent(trace.EventOpenWrite, file, 0, CodeFileAlreadyOpen)
		return 0, ErrFileAlreadyOpen
	}

	if err := f.ensureFile(file); err != nil {
		f.traceEvent(trace.EventOpenWrite, file, 0, Code(err))
		return 0, err
	}
	start := f.pt.Start(file)
	if err := f.chain.Wipe(f.bm, start); err != nil {
		return 0, err
	}

	h.access = AccessWrite
	h.position = 0
	h.currentBlock = start
	f.traceEvent(trace.EventOpenWrite, file, 0, CodeOK)
	return file, nil
}

// OpenForAppend transitions file from CLOSED to WRITE, positioning the
// cursor at the end of the existing chain (allocating the file if it
// doesn't exist yet, exactly like OpenForWrite).
func (f *Filesystem) OpenForAppend(file int) (int, error) {
	if err := f.checkHandle(file); err != nil {
		return 0, err
	}
	h := &f.handles[file]
	if h.access != AccessClosed {
		f.traceEvent(trace.EventOpenAppend, file, 0, CodeFileAlreadyOpen)
		return 0, ErrFileAlreadyOpen
	}

	if err := f.ensureFile(file); err != nil {
		f.traceEvent(trace.EventOpenAppend, file, 0, Code(err))
		return 0, err
	}
	start := f.pt.Start(file)
	position, block, err := f.chain.FastForward(start)
	if err != nil {
		return 0, err
	}

	h.access = AccessWrite
	h.position = position
	h.currentBlock = block
	f.traceEvent(trace.EventOpenAppend, file, 0, CodeOK)
	return file, nil
}

// Close finalizes and closes an open handle. Closing an already-closed
// file is a no-op success; closing a file that was never created is
// FileDoesNotExist.
func (f *Filesystem) Close(file int) error {
	if err := f.checkHandle(file); err != nil {
		return err
	}
	if !f.pt.Exists(file) {
		f.traceEvent(trace.EventClose, file, 0, CodeFileDoesNotExist)
		return ErrFileDoesNotExist
	}

	h := &f.handles[file]
	if h.access == AccessClosed {
		return nil
	}

	if h.access == AccessWrite {
		marker := chain.MakeLenMarker(h.position % layout.BlockSize)
		if err := f.chain.SetNext(h.currentBlock, marker); err != nil {
			return err
		}
	}

	h.access = AccessClosed
	h.currentBlock = layout.NullBlock
	f.traceEvent(trace.EventClose, file, 0, CodeOK)
	return nil
}

// Delete removes file: its chain is freed, its start block is freed, and
// its pointer-table entry is cleared. Requires the file to be CLOSED.
func (f *Filesystem) Delete(file int) error {
	if err := f.checkHandle(file); err != nil {
		return err
	}
	if !f.pt.Exists(file) {
		f.traceEvent(trace.EventDelete, file, 0, CodeFileDoesNotExist)
		return ErrFileDoesNotExist
	}
	if f.handles[file].access != AccessClosed {
		f.traceEvent(trace.EventDelete, file, 0, CodeFileAlreadyOpen)
		return ErrFileAlreadyOpen
	}

	start := f.pt.Start(file)
	if err := f.chain.Wipe(f.bm, start); err != nil {
		return err
	}
	if err := f.bm.SetInUse(start, false); err != nil {
		return err
	}
	if err := f.pt.SetStart(file, ptrtable.NoFile); err != nil {
		return err
	}
	f.traceEvent(trace.EventDelete, file, 0, CodeOK)
	return nil
}
