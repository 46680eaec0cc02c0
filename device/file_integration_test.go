package device_test

import (
	"path/filepath"
	"testing"

	"github.com/mirosta/eepromfs"
	"github.com/mirosta/eepromfs/device"
	"github.com/mirosta/eepromfs/layout"
)

// TestFileDevicePersistsAcrossRemount drives a FileDevice through the
// same mount/write/close/reopen/mount/read cycle a real power-cycled
// firmware would: nothing but the bytes already on disk survive between
// the two *device.FileDevice instances, so any state eepromfs.Mount
// needs again after "rebooting" has to have actually reached the image.
func TestFileDevicePersistsAcrossRemount(t *testing.T) {
	lay := layout.Default()
	path := filepath.Join(t.TempDir(), "image.bin")

	dev1, err := device.NewFileDevice(path, lay.DeviceSize)
	if err != nil {
		t.Fatalf("opening fresh image: %v", err)
	}
	fsys1, err := eepromfs.Mount(dev1, lay)
	if err != nil {
		t.Fatalf("first mount: %v", err)
	}

	const file = 3
	want := []byte("persisted across a simulated reboot")
	h, err := fsys1.OpenForWrite(file)
	if err != nil {
		t.Fatalf("open for write: %v", err)
	}
	if err := fsys1.Write(h, want); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := fsys1.Close(h); err != nil {
		t.Fatalf("close handle: %v", err)
	}

	// Snapshot the bitmap and pointer-table regions directly off the
	// device before "shutting down", so the post-remount comparison
	// below is against bytes, not against fsys1's in-memory view of
	// them.
	bitmapBefore := readRegion(t, dev1, lay.BitmapOffset, lay.BitmapBytes)
	pointersBefore := readRegion(t, dev1, lay.PtrTableOffset, lay.MaxFiles)

	if err := dev1.Close(); err != nil {
		t.Fatalf("closing device image: %v", err)
	}

	// A fresh *device.FileDevice on the same path stands in for the
	// image surviving a process restart: dev1 is gone, nothing but the
	// file on disk carries state forward.
	dev2, err := device.NewFileDevice(path, lay.DeviceSize)
	if err != nil {
		t.Fatalf("reopening image: %v", err)
	}
	defer dev2.Close()

	bitmapAfter := readRegion(t, dev2, lay.BitmapOffset, lay.BitmapBytes)
	pointersAfter := readRegion(t, dev2, lay.PtrTableOffset, lay.MaxFiles)
	if string(bitmapAfter) != string(bitmapBefore) {
		t.Fatalf("bitmap changed across remount: got %x, want %x", bitmapAfter, bitmapBefore)
	}
	if string(pointersAfter) != string(pointersBefore) {
		t.Fatalf("pointer table changed across remount: got %x, want %x", pointersAfter, pointersBefore)
	}

	fsys2, err := eepromfs.Mount(dev2, lay)
	if err != nil {
		t.Fatalf("second mount: %v", err)
	}

	h2, err := fsys2.OpenForRead(file)
	if err != nil {
		t.Fatalf("open for read after remount: %v", err)
	}
	defer fsys2.Close(h2)

	got := make([]byte, len(want))
	n, err := fsys2.Read(h2, got)
	if err != nil {
		t.Fatalf("read after remount: %v", err)
	}
	if n != len(want) || string(got) != string(want) {
		t.Fatalf("read after remount = %q, want %q", got[:n], want)
	}
}

func readRegion(t *testing.T, d device.Port, off, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	if err := d.ReadBlock(off, buf); err != nil {
		t.Fatalf("reading region [%d:%d]: %v", off, off+n, err)
	}
	return buf
}
