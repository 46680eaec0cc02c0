// Command eepromfs-demo drives a device image from the command line:
// write, read, list, and delete files, with every operation's error
// code reported the way a firmware caller that only sees an int would
// see it.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/mirosta/eepromfs"
	"github.com/mirosta/eepromfs/device"
	"github.com/mirosta/eepromfs/layout"
	"github.com/mirosta/eepromfs/trace"
)

func main() {
	var (
		deviceSize = flag.Int("size", layout.DefaultDeviceSize, "device image size in bytes")
		maxFiles   = flag.Int("max-files", layout.DefaultMaxFiles, "maximum file count")
		verbose    = flag.Bool("v", false, "debug-level logging")
		tracePath  = flag.String("trace", "", "append a diagnostic event record to this file for every operation")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: %s [flags] <device-image> <command> [args]

Commands:
  write <file-id> <text>   open <file-id> for write, write text, close
  append <file-id> <text>  open <file-id> for append, write text, close
  read <file-id>           open <file-id> for read, print its contents
  ls                       list existing file ids
  rm <file-id>             delete <file-id>

`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() < 2 {
		flag.Usage()
		os.Exit(2)
	}

	log := logrus.StandardLogger()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	imagePath, command, args := flag.Arg(0), flag.Arg(1), flag.Args()[2:]

	lay, err := layout.New(*deviceSize, *maxFiles)
	if err != nil {
		log.WithError(err).Fatal("eepromfs-demo: deriving layout")
	}
	dev, err := device.NewFileDevice(imagePath, lay.DeviceSize)
	if err != nil {
		log.WithError(err).Fatal("eepromfs-demo: opening device image")
	}

	mountOpts := []eepromfs.Option{eepromfs.WithLogger(log)}
	if *tracePath != "" {
		w, err := trace.NewWriter(*tracePath, 16)
		if err != nil {
			log.WithError(err).Fatal("eepromfs-demo: opening trace file")
		}
		defer w.Close()
		mountOpts = append(mountOpts, eepromfs.WithTrace(w))
	}

	fsys, err := eepromfs.Mount(dev, lay, mountOpts...)
	if err != nil {
		log.WithError(err).Fatal("eepromfs-demo: mounting")
	}

	if err := run(fsys, command, args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v (code %d)\n", command, err, eepromfs.Code(err))
		os.Exit(1)
	}
}

func run(fsys *eepromfs.Filesystem, command string, args []string) error {
	switch command {
	case "write":
		return writeFile(fsys, args, fsys.OpenForWrite)
	case "append":
		return writeFile(fsys, args, fsys.OpenForAppend)
	case "read":
		return readFile(fsys, args)
	case "ls":
		return list(fsys)
	case "rm":
		return remove(fsys, args)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func writeFile(fsys *eepromfs.Filesystem, args []string, open func(int) (int, error)) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: write/append <file-id> <text>")
	}
	file, err := fileID(args[0])
	if err != nil {
		return err
	}
	h, err := open(file)
	if err != nil {
		return err
	}
	if err := fsys.Write(h, []byte(args[1])); err != nil {
		_ = fsys.Close(h)
		return err
	}
	return fsys.Close(h)
}

func readFile(fsys *eepromfs.Filesystem, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: read <file-id>")
	}
	file, err := fileID(args[0])
	if err != nil {
		return err
	}
	h, err := fsys.OpenForRead(file)
	if err != nil {
		return err
	}
	defer fsys.Close(h)

	buf := make([]byte, 4096)
	var out []byte
	for {
		n, err := fsys.Read(h, buf)
		if err != nil {
			return err
		}
		out = append(out, buf[:n]...)
		if n < len(buf) {
			break
		}
	}
	fmt.Println(string(out))
	return nil
}

func list(fsys *eepromfs.Filesystem) error {
	for f := 0; f < fsys.MaxFiles(); f++ {
		if fsys.Exists(f) {
			fmt.Println(f)
		}
	}
	return nil
}

func remove(fsys *eepromfs.Filesystem, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: rm <file-id>")
	}
	file, err := fileID(args[0])
	if err != nil {
		return err
	}
	return fsys.Delete(file)
}

func fileID(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid file id %q", s)
	}
	return n, nil
}
