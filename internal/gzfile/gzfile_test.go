package gzfile

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/uuxo/zlib-accel/internal/backend/accela"
	"github.com/uuxo/zlib-accel/internal/config"
	"github.com/uuxo/zlib-accel/internal/dispatch"
)

func TestParseModeFlags(t *testing.T) {
	m, err := ParseMode("wbe")
	if err != nil {
		t.Fatal(err)
	}
	if !m.Write || !m.CloseOnExec || m.Read {
		t.Fatalf("unexpected mode: %+v", m)
	}
	if _, err := ParseMode("rw"); err == nil {
		t.Fatal("expected rejection of combined read+write mode")
	}
	if _, err := ParseMode("q"); err == nil {
		t.Fatal("expected rejection of unknown flag")
	}
}

func TestWriteReadRoundTripSoftwareOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.gz")
	core := dispatch.New(config.NewStore(), nil, nil)

	wf, err := Open(core, nil, config.NewStore(), path, "w", 6)
	if err != nil {
		t.Fatal(err)
	}
	payload := bytes.Repeat([]byte("gzfile round trip payload line\n"), 10000) // exceeds the 256 KiB data buffer, forcing multiple segments
	if n, err := wf.Write(payload); err != nil || n != len(payload) {
		t.Fatalf("write: n=%d err=%v", n, err)
	}
	if err := wf.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rf, err := Open(core, nil, config.NewStore(), path, "r", 6)
	if err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(rf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(payload))
	}
	if !rf.EOF() {
		t.Fatal("expected EOF to be latched after exhausting the file")
	}
	rf.Close()
}

func TestWriteReadRoundTripAccelA(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "accela.gz")
	core := dispatch.New(config.NewStore(), nil, nil)
	accelA := accela.New(accela.NewSimDriver(), func() bool { return true }, func() int { return 6 }, nil)

	wf, err := Open(core, accelA, config.NewStore(), path, "w", 6)
	if err != nil {
		t.Fatal(err)
	}
	// Several multiples of the 256 KiB data buffer, forcing compressAndFlush
	// to emit many concatenated gzip members into one file, reproducing the
	// end-to-end scenario of repeated bulk writes through ACCEL-A.
	payload := bytes.Repeat([]byte("accel-a round trip payload line, repeated for many members.\n"), 60000)
	if n, err := wf.Write(payload); err != nil || n != len(payload) {
		t.Fatalf("write: n=%d err=%v", n, err)
	}
	if err := wf.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rf, err := Open(core, accelA, config.NewStore(), path, "r", 6)
	if err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(rf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(payload))
	}
	rf.Close()
}

func TestSoftwareLevelAffectsCompressedOutput(t *testing.T) {
	dir := t.TempDir()
	core := dispatch.New(config.NewStore(), nil, nil)

	// A small vocabulary shuffled into ~64 KiB gives deflate plenty of
	// repeated substrings to find, the way ordinary text does, without the
	// whole buffer being one trivially-compressible repeat: a higher level
	// (longer hash-chain search) should still beat a lower one on it.
	vocab := []string{"accel", "gzip", "window", "zlib", "stream", "member",
		"buffer", "deflate", "softflate", "level", "chunk", "payload", "flush"}
	r := rand.New(rand.NewSource(1))
	var sb bytes.Buffer
	for sb.Len() < 64*1024 {
		sb.WriteString(vocab[r.Intn(len(vocab))])
		sb.WriteByte(' ')
	}
	payload := sb.Bytes()

	sizeAt := func(level int) int64 {
		path := filepath.Join(dir, fmt.Sprintf("level%d.gz", level))
		f, err := Open(core, nil, config.NewStore(), path, "w", level)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write(payload); err != nil {
			t.Fatal(err)
		}
		if err := f.Close(); err != nil {
			t.Fatal(err)
		}
		fi, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		return fi.Size()
	}

	if got := sizeAt(0); got == 0 {
		t.Fatal("expected an out-of-range level to still clamp to a usable default and produce output")
	}
	if sizeAt(1) == sizeAt(9) {
		t.Fatal("expected level 1 and level 9 to produce different compressed sizes for non-trivial data")
	}
}

func TestOpenExclusiveRejectsExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exists.gz")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	core := dispatch.New(config.NewStore(), nil, nil)
	if _, err := Open(core, nil, config.NewStore(), path, "wx", 6); err == nil {
		t.Fatal("expected exclusive open of an existing file to fail")
	}
}

func TestLookupByDescriptor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lookup.gz")
	core := dispatch.New(config.NewStore(), nil, nil)

	f, err := Open(core, nil, config.NewStore(), path, "w", 6)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if got, ok := Lookup(int(f.fd.Fd())); !ok || got != f {
		t.Fatal("expected the open handle to be registered by descriptor")
	}
}
