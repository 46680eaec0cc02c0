package device

import (
	"os"
	"sync"

	"github.com/pkg/errors"
)

// FileDevice persists the flat address space as a single fixed-size
// regular file. Adapted from segmentmanager/disk.go's file lifecycle
// handling, stripped of segment rotation: this device format has exactly
// one region, of fixed size, and is never rotated.
type FileDevice struct {
	mu   sync.Mutex
	f    *os.File
	size int
}

var _ Port = (*FileDevice)(nil)

// FileDeviceOption configures NewFileDevice, mirroring the
// DiskSegmentManagerOption pattern in segmentmanager/disk.go.
type FileDeviceOption func(*fileDeviceConfig)

type fileDeviceConfig struct {
	perm os.FileMode
}

// WithFilePerm overrides the permission bits used when the device image
// doesn't exist yet and must be created.
func WithFilePerm(perm os.FileMode) FileDeviceOption {
	return func(c *fileDeviceConfig) { c.perm = perm }
}

// NewFileDevice opens (or creates) path as a size-byte device image. If
// the file already exists it must be exactly size bytes; a shorter or
// longer file is a configuration error rather than something this
// package silently truncates or extends, since that would invisibly
// shift every region offset derived from size.
func NewFileDevice(path string, size int, opts ...FileDeviceOption) (*FileDevice, error) {
	cfg := fileDeviceConfig{perm: 0o644}
	for _, opt := range opts {
		opt(&cfg)
	}

	info, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		if info.IsDir() {
			return nil, errors.Errorf("device: %s is a directory", path)
		}
		if info.Size() != int64(size) {
			return nil, errors.Errorf("device: %s is %d bytes, want %d", path, info.Size(), size)
		}
	case os.IsNotExist(statErr):
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, cfg.perm)
		if err != nil {
			return nil, errors.Wrapf(err, "device: creating %s", path)
		}
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "device: sizing %s to %d bytes", path, size)
		}
		if err := f.Close(); err != nil {
			return nil, errors.Wrapf(err, "device: closing freshly created %s", path)
		}
	default:
		return nil, errors.Wrapf(statErr, "device: statting %s", path)
	}

	f, err := os.OpenFile(path, os.O_RDWR, cfg.perm)
	if err != nil {
		return nil, errors.Wrapf(err, "device: opening %s", path)
	}

	return &FileDevice{f: f, size: size}, nil
}

// Size implements Port.
func (d *FileDevice) Size() int {
	return d.size
}

// ReadByte implements Port.
func (d *FileDevice) ReadByte(off int) (byte, error) {
	var buf [1]byte
	if err := d.ReadBlock(off, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// WriteByte implements Port.
func (d *FileDevice) WriteByte(off int, b byte) error {
	return d.WriteBlock(off, []byte{b})
}

// ReadBlock implements Port.
func (d *FileDevice) ReadBlock(off int, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := checkRange(d.size, off, len(buf)); err != nil {
		return err
	}
	if _, err := d.f.ReadAt(buf, int64(off)); err != nil {
		return errors.Wrapf(err, "device: reading %d bytes at %d", len(buf), off)
	}
	return nil
}

// WriteBlock implements Port. Every write is followed by Sync so callers
// get a write-through guarantee even with a file-backed device: the
// operation doesn't return until the byte has reached the image file.
func (d *FileDevice) WriteBlock(off int, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := checkRange(d.size, off, len(buf)); err != nil {
		return err
	}
	if _, err := d.f.WriteAt(buf, int64(off)); err != nil {
		return errors.Wrapf(err, "device: writing %d bytes at %d", len(buf), off)
	}
	return errors.Wrap(d.f.Sync(), "device: sync")
}

// Close releases the underlying file handle.
func (d *FileDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Close()
}
