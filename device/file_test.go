package device

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewFileDeviceCreatesFreshImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.bin")

	d, err := NewFileDevice(path, 64)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if d.Size() != 64 {
		t.Fatalf("Size() = %d, want 64", d.Size())
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 64 {
		t.Fatalf("image file is %d bytes, want 64", info.Size())
	}
}

func TestNewFileDeviceReopensExistingImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.bin")

	d1, err := NewFileDevice(path, 32)
	if err != nil {
		t.Fatal(err)
	}
	if err := d1.WriteByte(5, 0x99); err != nil {
		t.Fatal(err)
	}
	if err := d1.Close(); err != nil {
		t.Fatal(err)
	}

	d2, err := NewFileDevice(path, 32)
	if err != nil {
		t.Fatal(err)
	}
	defer d2.Close()

	b, err := d2.ReadByte(5)
	if err != nil {
		t.Fatal(err)
	}
	if b != 0x99 {
		t.Fatalf("ReadByte(5) = %#x, want 0x99 (reopen must preserve contents)", b)
	}
}

func TestNewFileDeviceRejectsSizeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.bin")

	d, err := NewFileDevice(path, 32)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := NewFileDevice(path, 64); err == nil {
		t.Fatal("expected an error reopening a 32-byte image at size 64")
	}
}

func TestNewFileDeviceRejectsDirectory(t *testing.T) {
	dir := t.TempDir()

	if _, err := NewFileDevice(dir, 32); err == nil {
		t.Fatal("expected an error opening a directory as a device image")
	}
}

func TestFileDeviceReadWriteBlockRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.bin")

	d, err := NewFileDevice(path, 128)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	want := []byte("hello, eeprom")
	if err := d.WriteBlock(10, want); err != nil {
		t.Fatal(err)
	}

	got := make([]byte, len(want))
	if err := d.ReadBlock(10, got); err != nil {
		t.Fatal(err)
	}
	if string(got) != string(want) {
		t.Fatalf("ReadBlock = %q, want %q", got, want)
	}
}
