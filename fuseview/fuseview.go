// Package fuseview exposes a mounted Filesystem as a flat, read-only
// FUSE directory: one regular file per existing file id, named by its
// decimal id, with no subdirectories. It exists purely as a debugging
// aid for poking at a device image with ordinary shell tools (cat, ls,
// hexdump) rather than the Read/Write API.
package fuseview

import (
	"context"
	"strconv"
	"sync"
	"syscall"
	"time"

	gofusefs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/sirupsen/logrus"

	"github.com/mirosta/eepromfs"
)

// attrTTL is long: the backing device only changes through this same
// process's own mutex-guarded calls, never behind the kernel's back.
const attrTTL = 24 * time.Hour

// Root is the FUSE root directory node. It serializes every access to
// the wrapped Filesystem with a mutex: the underlying handle table is
// built for one caller at a time, but the kernel can and does dispatch
// concurrent requests.
type Root struct {
	gofusefs.Inode

	mu   sync.Mutex
	fsys *eepromfs.Filesystem
	log  *logrus.Logger
}

// NewRoot builds a Root node ready to pass to gofusefs.NewNodeFS.
func NewRoot(fsys *eepromfs.Filesystem, log *logrus.Logger) *Root {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Root{fsys: fsys, log: log}
}

var (
	_ = (gofusefs.InodeEmbedder)((*Root)(nil))
	_ = (gofusefs.NodeLookuper)((*Root)(nil))
	_ = (gofusefs.NodeReaddirer)((*Root)(nil))
	_ = (gofusefs.NodeGetattrer)((*Root)(nil))
)

func (r *Root) Getattr(ctx context.Context, f gofusefs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = syscall.S_IFDIR | 0555
	out.SetTimeout(attrTTL)
	return 0
}

func (r *Root) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofusefs.Inode, syscall.Errno) {
	file, ok := parseFileName(name)
	if !ok {
		return nil, syscall.ENOENT
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if file < 0 || file >= r.fsys.MaxFiles() || !r.fsys.Exists(file) {
		return nil, syscall.ENOENT
	}

	size, errno := r.readSizeLocked(file)
	if errno != 0 {
		return nil, errno
	}

	out.Mode = syscall.S_IFREG | 0444
	out.Size = uint64(size)
	out.SetAttrTimeout(attrTTL)
	out.SetEntryTimeout(attrTTL)

	leaf := &leafNode{root: r, file: file}
	return r.NewInode(ctx, leaf, gofusefs.StableAttr{Mode: syscall.S_IFREG}), 0
}

func (r *Root) Readdir(ctx context.Context) (gofusefs.DirStream, syscall.Errno) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]fuse.DirEntry, 0, r.fsys.MaxFiles())
	for f := 0; f < r.fsys.MaxFiles(); f++ {
		if !r.fsys.Exists(f) {
			continue
		}
		entries = append(entries, fuse.DirEntry{
			Name: strconv.Itoa(f),
			Mode: syscall.S_IFREG,
		})
	}
	return gofusefs.NewListDirStream(entries), 0
}

// readSizeLocked materializes file's entire contents to learn its
// length. Called with r.mu held.
func (r *Root) readSizeLocked(file int) (int, syscall.Errno) {
	data, errno := r.readAllLocked(file)
	return len(data), errno
}

// readAllLocked opens file for read, drains it fully, and closes it.
// Called with r.mu held.
func (r *Root) readAllLocked(file int) ([]byte, syscall.Errno) {
	h, err := r.fsys.OpenForRead(file)
	if err != nil {
		r.log.WithError(err).WithField("file", file).Warn("fuseview: open for read failed")
		return nil, toErrno(err)
	}
	defer func() {
		if err := r.fsys.Close(h); err != nil {
			r.log.WithError(err).WithField("file", file).Warn("fuseview: close failed")
		}
	}()

	var data []byte
	buf := make([]byte, 4096)
	for {
		n, err := r.fsys.Read(h, buf)
		if err != nil {
			r.log.WithError(err).WithField("file", file).Warn("fuseview: read failed")
			return nil, toErrno(err)
		}
		data = append(data, buf[:n]...)
		if n < len(buf) {
			break
		}
	}
	return data, 0
}

func toErrno(err error) syscall.Errno {
	switch eepromfs.Code(err) {
	case eepromfs.CodeFileDoesNotExist:
		return syscall.ENOENT
	case eepromfs.CodeFileAlreadyOpen:
		return syscall.EBUSY
	default:
		return syscall.EIO
	}
}

func parseFileName(name string) (int, bool) {
	n, err := strconv.Atoi(name)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// leafNode is one file id exposed as a regular file. Its contents are
// read in full on every Open rather than cached, since the device is
// small enough that re-materializing per handle is cheap and avoids
// ever serving stale bytes after a concurrent write through the
// library API.
type leafNode struct {
	gofusefs.Inode
	root *Root
	file int
}

var (
	_ = (gofusefs.InodeEmbedder)((*leafNode)(nil))
	_ = (gofusefs.NodeGetattrer)((*leafNode)(nil))
	_ = (gofusefs.NodeOpener)((*leafNode)(nil))
)

func (l *leafNode) Getattr(ctx context.Context, f gofusefs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	l.root.mu.Lock()
	size, errno := l.root.readSizeLocked(l.file)
	l.root.mu.Unlock()
	if errno != 0 {
		return errno
	}

	out.Mode = syscall.S_IFREG | 0444
	out.Size = uint64(size)
	out.SetTimeout(attrTTL)
	return 0
}

func (l *leafNode) Open(ctx context.Context, flags uint32) (gofusefs.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}

	l.root.mu.Lock()
	data, errno := l.root.readAllLocked(l.file)
	l.root.mu.Unlock()
	if errno != 0 {
		return nil, 0, errno
	}

	return &leafHandle{data: data}, fuse.FOPEN_KEEP_CACHE, 0
}

type leafHandle struct {
	data []byte
}

var _ = (gofusefs.FileReader)((*leafHandle)(nil))

func (h *leafHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	if off < 0 || off >= int64(len(h.data)) {
		return fuse.ReadResultData(nil), 0
	}
	end := off + int64(len(dest))
	if end > int64(len(h.data)) {
		end = int64(len(h.data))
	}
	return fuse.ReadResultData(h.data[off:end]), 0
}
