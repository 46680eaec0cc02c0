// Package eepromfs implements a miniature persistent filesystem over a
// small byte-addressable non-volatile memory device: a fixed-capacity,
// fixed-file-count, byte-stream store with no directories, no filenames,
// and no concurrent clients. Files are addressed by a small integer id
// and stored as a singly-linked chain of fixed-size blocks.
//
// A typical session:
//
//	dev := device.NewMemDevice(layout.DefaultDeviceSize)
//	lay := layout.Default()
//	fsys, err := eepromfs.Mount(dev, lay)
//	h, err := fsys.OpenForWrite(0)
//	err = fsys.Write(h, []byte("hello"))
//	err = fsys.Close(h)
//	h, err = fsys.OpenForRead(0)
//	n, err := fsys.Read(h, buf)
package eepromfs
