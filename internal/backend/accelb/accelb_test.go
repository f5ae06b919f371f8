package accelb

import (
	"bytes"
	"testing"

	"github.com/uuxo/zlib-accel/internal/backend"
	"github.com/uuxo/zlib-accel/internal/format"
)

func newAdapter(markerOn bool) *Adapter {
	return New(NewSimDriver(), func() bool { return markerOn })
}

func TestRoundTripRawWithMarker(t *testing.T) {
	a := newAdapter(true)
	payload := bytes.Repeat([]byte("small random-access payload "), 40)

	cin := backend.CompressInput{Framing: format.Raw, WindowBits: -15, Input: payload, OutputCap: len(payload) + 1024, PrependEmptyBlock: true}
	cout, err := a.Compress(cin)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if !format.HasEmptyBlockSentinel(cout.Output) {
		t.Fatal("expected sentinel")
	}

	din := backend.DecompressInput{Framing: format.Raw, WindowBits: -15, Input: cout.Output, OutputCap: len(payload) + 1024}
	if !a.SupportsDecompress(din) {
		t.Fatal("expected decompressibility predicate true with sentinel present")
	}
	dout, err := a.Decompress(din)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(dout.Output, payload) {
		t.Error("round trip mismatch")
	}
}

func TestDecompressibilityByZlibWindow(t *testing.T) {
	a := newAdapter(false)
	// windowBits=8 -> encoded window size 0 (<=12), decompressible.
	din := backend.DecompressInput{Framing: format.Zlib, WindowBits: 8, Input: []byte{0x08, 0x00}, OutputCap: 4096}
	if !a.SupportsDecompress(din) {
		t.Error("expected window<=12 bits to be decompressible")
	}
	// A zlib header whose CMF high nibble encodes a large window should fail.
	big := []byte{0x78, 0x00}
	din2 := backend.DecompressInput{Framing: format.Zlib, WindowBits: 15, Input: big, OutputCap: 4096}
	if a.SupportsDecompress(din2) {
		t.Error("expected large window to be rejected")
	}
}

func TestMaxBufferSizeGate(t *testing.T) {
	a := newAdapter(false)
	big := make([]byte, MaxBufferSize+1)
	cin := backend.CompressInput{Framing: format.Raw, Input: big, OutputCap: len(big) * 2}
	if a.SupportsCompress(cin) {
		t.Error("expected oversized input to be rejected")
	}
}

func TestConcatenatedStreamsStopAfterFirst(t *testing.T) {
	a := newAdapter(false)
	first := []byte("first stream payload")
	second := []byte("second stream payload that should be ignored")

	c1, err := a.Compress(backend.CompressInput{Framing: format.Raw, WindowBits: -15, Input: first, OutputCap: 4096})
	if err != nil {
		t.Fatal(err)
	}
	c2, err := a.Compress(backend.CompressInput{Framing: format.Raw, WindowBits: -15, Input: second, OutputCap: 4096})
	if err != nil {
		t.Fatal(err)
	}
	concatenated := append(append([]byte{}, c1.Output...), c2.Output...)

	dout, err := a.Decompress(backend.DecompressInput{Framing: format.Raw, WindowBits: -15, Input: concatenated, OutputCap: 4096})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dout.Output, first) {
		t.Errorf("expected only the first stream's payload, got %q", dout.Output)
	}
	if dout.ConsumedIn != len(concatenated) {
		t.Errorf("expected the known-wrong consumed-bytes workaround to report full length, got %d of %d", dout.ConsumedIn, len(concatenated))
	}
}
