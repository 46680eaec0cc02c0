// Command eepromfs-fuse mounts a device image read-only at a mountpoint,
// exposing each existing file id as a flat, numerically-named regular
// file. It exists for poking at a device image with ordinary shell
// tools instead of the Read/Write API.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	gofusefs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/sirupsen/logrus"

	"github.com/mirosta/eepromfs"
	"github.com/mirosta/eepromfs/device"
	"github.com/mirosta/eepromfs/fuseview"
	"github.com/mirosta/eepromfs/layout"
)

func main() {
	var (
		deviceSize = flag.Int("size", layout.DefaultDeviceSize, "device image size in bytes")
		maxFiles   = flag.Int("max-files", layout.DefaultMaxFiles, "maximum file count")
		debug      = flag.Bool("debug", false, "enable go-fuse protocol tracing")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <device-image> <mountpoint>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(1)
	}
	imagePath, mountPoint := flag.Arg(0), flag.Arg(1)

	log := logrus.StandardLogger()

	lay, err := layout.New(*deviceSize, *maxFiles)
	if err != nil {
		log.WithError(err).Fatal("eepromfs-fuse: deriving layout")
	}

	dev, err := device.NewFileDevice(imagePath, lay.DeviceSize)
	if err != nil {
		log.WithError(err).Fatal("eepromfs-fuse: opening device image")
	}

	fsys, err := eepromfs.Mount(dev, lay, eepromfs.WithLogger(log))
	if err != nil {
		log.WithError(err).Fatal("eepromfs-fuse: mounting")
	}

	root := fuseview.NewRoot(fsys, log)
	opts := &gofusefs.Options{
		MountOptions: fuse.MountOptions{
			Debug:          *debug,
			FsName:         "eepromfs",
			Name:           "eepromfs",
			SingleThreaded: true,
		},
	}
	rawFS := gofusefs.NewNodeFS(root, opts)
	server, err := fuse.NewServer(rawFS, mountPoint, &opts.MountOptions)
	if err != nil {
		log.WithError(err).Fatal("eepromfs-fuse: creating server")
	}

	go server.Serve()
	if err := server.WaitMount(); err != nil {
		log.WithError(err).Fatal("eepromfs-fuse: mounting filesystem")
	}
	log.WithFields(logrus.Fields{"image": imagePath, "mountpoint": mountPoint}).Info("eepromfs-fuse: mounted")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("eepromfs-fuse: unmounting")
	if err := server.Unmount(); err != nil {
		log.WithError(err).Error("eepromfs-fuse: unmount failed")
	}
	server.Wait()
}
