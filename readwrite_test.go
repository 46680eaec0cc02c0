package eepromfs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mirosta/eepromfs/chain"
	"github.com/mirosta/eepromfs/device"
	"github.com/mirosta/eepromfs/layout"
)

func sequence(n int, start byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = start + byte(i)
	}
	return b
}

// S1 — Write-read 64 bytes.
func TestScenarioWriteRead64Bytes(t *testing.T) {
	fsys, _, _ := mustMount(t)

	h, err := fsys.OpenForWrite(0)
	require.NoError(t, err)
	want := sequence(64, 1)
	require.NoError(t, fsys.Write(h, want))
	require.NoError(t, fsys.Close(0))

	h, err = fsys.OpenForRead(0)
	require.NoError(t, err)
	buf := make([]byte, 65)
	n, err := fsys.Read(h, buf)
	require.NoError(t, err)
	require.Equal(t, 64, n)
	require.Equal(t, want, buf[:64])
	require.Equal(t, byte(0), buf[64])
}

// S2 — Exact block boundary.
func TestScenarioExactBlockBoundary(t *testing.T) {
	fsys, _, _ := mustMount(t)

	h, err := fsys.OpenForWrite(0)
	require.NoError(t, err)
	want := sequence(31, 1)
	require.NoError(t, fsys.Write(h, want))
	require.NoError(t, fsys.Close(0))

	h, err = fsys.OpenForRead(0)
	require.NoError(t, err)
	buf := make([]byte, 32)
	n, err := fsys.Read(h, buf)
	require.NoError(t, err)
	require.Equal(t, 31, n)
	require.Equal(t, want, buf[:31])
}

// S3 — Two-block file, exact on-device terminator layout.
func TestScenarioTwoBlockFile(t *testing.T) {
	fsys, dev, lay := mustMount(t)

	h, err := fsys.OpenForWrite(0)
	require.NoError(t, err)
	want := sequence(40, 1)
	require.NoError(t, fsys.Write(h, want))
	require.NoError(t, fsys.Close(0))

	start := fsys.pt.Start(0)
	firstTerm, err := dev.ReadByte(lay.TerminatorOffset(start))
	require.NoError(t, err)
	require.False(t, chain.IsLenMarker(firstTerm), "first block's terminator must be a pointer")
	secondBlock := int(firstTerm)

	secondTerm, err := dev.ReadByte(lay.TerminatorOffset(secondBlock))
	require.NoError(t, err)
	require.Equal(t, byte(0x80|9), secondTerm)

	h, err = fsys.OpenForRead(0)
	require.NoError(t, err)
	buf := make([]byte, 100)
	n, err := fsys.Read(h, buf)
	require.NoError(t, err)
	require.Equal(t, 40, n)
	require.Equal(t, want, buf[:40])
}

// S4 — Append.
func TestScenarioAppend(t *testing.T) {
	fsys, _, _ := mustMount(t)

	h, err := fsys.OpenForWrite(1)
	require.NoError(t, err)
	require.NoError(t, fsys.Write(h, sequence(10, 1)))
	require.NoError(t, fsys.Close(1))

	h, err = fsys.OpenForAppend(1)
	require.NoError(t, err)
	require.NoError(t, fsys.Write(h, sequence(10, 11)))
	require.NoError(t, fsys.Close(1))

	h, err = fsys.OpenForRead(1)
	require.NoError(t, err)
	buf := make([]byte, 64)
	n, err := fsys.Read(h, buf)
	require.NoError(t, err)
	require.Equal(t, 20, n)
	require.Equal(t, sequence(20, 1), buf[:20])
}

// S5 — Delete frees blocks.
func TestScenarioDeleteFreesBlocks(t *testing.T) {
	fsys, dev, lay := mustMount(t)
	beforeBitmap := dev.Snapshot()[lay.BitmapOffset : lay.BitmapOffset+lay.BitmapBytes]
	before := append([]byte(nil), beforeBitmap...)

	h, err := fsys.OpenForWrite(2)
	require.NoError(t, err)
	require.NoError(t, fsys.Write(h, sequence(200, 1)))
	require.NoError(t, fsys.Close(2))
	require.NoError(t, fsys.Delete(2))

	after := dev.Snapshot()[lay.BitmapOffset : lay.BitmapOffset+lay.BitmapBytes]
	require.Equal(t, before, after)
	require.False(t, fsys.Exists(2))
}

// S6 — OutOfSpace: each file's chunk spans two blocks (a full first
// block plus a short second one), so the device exhausts its free list
// midway through one file's Write rather than at OpenForWrite, which
// only ever claims a single start block. Confirms a clean partial close
// and exact readback of whatever was actually committed.
func TestScenarioOutOfSpace(t *testing.T) {
	lay := layout.Default()
	dev := device.NewMemDevice(lay.DeviceSize)
	fsys, err := Mount(dev, lay)
	require.NoError(t, err)

	chunk := sequence(layout.DataBytesPerBlock+9, 1)
	var lastHandle, committed int
	var lastErr error

	for f := 0; f < lay.MaxFiles; f++ {
		h, err := fsys.OpenForWrite(f)
		require.NoError(t, err)
		lastHandle = h

		err = fsys.Write(h, chunk)
		if err != nil {
			lastErr = err
			committed = fsys.Position(h)
			break
		}
		require.NoError(t, fsys.Close(f))
	}

	require.ErrorIs(t, lastErr, ErrOutOfSpace)
	require.Equal(t, layout.DataBytesPerBlock, committed)
	require.NoError(t, fsys.Close(lastHandle))

	h, err := fsys.OpenForRead(lastHandle)
	require.NoError(t, err)
	buf := make([]byte, len(chunk))
	n, err := fsys.Read(h, buf)
	require.NoError(t, err)
	require.Equal(t, committed, n)
	require.Equal(t, chunk[:n], buf[:n])
}

// Property: round trip for an arbitrary byte string within capacity.
func TestRoundTripArbitraryPayload(t *testing.T) {
	fsys, _, lay := mustMount(t)

	capacity := layout.DataBytesPerBlock * lay.NumBlocks
	sizes := []int{0, 1, 30, 31, 32, 63, 64, capacity / 2}

	for i, n := range sizes {
		file := i % lay.MaxFiles
		payload := sequence(n, byte(i+1))

		h, err := fsys.OpenForWrite(file)
		require.NoError(t, err)
		require.NoError(t, fsys.Write(h, payload))
		require.NoError(t, fsys.Close(file))

		h, err = fsys.OpenForRead(file)
		require.NoError(t, err)
		buf := make([]byte, n+1)
		got, err := fsys.Read(h, buf)
		require.NoError(t, err)
		require.Equal(t, n, got)
		require.Equal(t, payload, buf[:n])
		require.NoError(t, fsys.Close(file))
		require.NoError(t, fsys.Delete(file))
	}
}

// Property: re-opening for write truncates a file back to empty.
func TestOpenForWriteTruncatesExistingFile(t *testing.T) {
	fsys, _, _ := mustMount(t)

	h, err := fsys.OpenForWrite(0)
	require.NoError(t, err)
	require.NoError(t, fsys.Write(h, sequence(70, 1)))
	require.NoError(t, fsys.Close(0))

	h, err = fsys.OpenForWrite(0)
	require.NoError(t, err)
	require.NoError(t, fsys.Write(h, []byte("new")))
	require.NoError(t, fsys.Close(0))

	h, err = fsys.OpenForRead(0)
	require.NoError(t, err)
	buf := make([]byte, 16)
	n, err := fsys.Read(h, buf)
	require.NoError(t, err)
	require.Equal(t, "new", string(buf[:n]))
}

// Terminator invariant at rest: every existing file's tail block carries
// a length-marker terminator, or NullBlock if it's an untouched empty
// file. Writing exactly DataBytesPerBlock bytes and closing is the one
// case where the stored length equals DataBytesPerBlock itself (31), not
// merely up to 30 — see chain.MakeLenMarker.
func TestTerminatorInvariantAtRest(t *testing.T) {
	fsys, dev, lay := mustMount(t)

	sizes := []int{0, 5, 31, 40}
	for i, n := range sizes {
		h, err := fsys.OpenForWrite(i)
		require.NoError(t, err)
		require.NoError(t, fsys.Write(h, sequence(n, 1)))
		require.NoError(t, fsys.Close(i))

		_, block, err := newChainFastForward(dev, lay, fsys.pt.Start(i))
		require.NoError(t, err)

		term, err := dev.ReadByte(lay.TerminatorOffset(block))
		require.NoError(t, err)
		if n == 0 {
			require.Equal(t, byte(layout.NullBlock), term)
		} else {
			require.True(t, chain.IsLenMarker(term))
			require.LessOrEqual(t, chain.Len(term), layout.DataBytesPerBlock)
		}
	}
}

func newChainFastForward(dev device.Port, lay *layout.Layout, start int) (int, int, error) {
	return chain.New(dev, lay).FastForward(start)
}
