package accela

import (
	"bytes"
	"testing"

	"github.com/uuxo/zlib-accel/internal/backend"
	"github.com/uuxo/zlib-accel/internal/format"
)

func newAdapter() *Adapter {
	return New(NewSimDriver(), func() bool { return false }, func() int { return 6 }, nil)
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		framing format.Framing
		wbits   int
	}{
		{"raw", format.Raw, -15},
		{"zlib", format.Zlib, 15},
		{"gzip", format.Gzip, 31},
	}
	payload := bytes.Repeat([]byte("hello world, compress me please "), 100)

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			a := newAdapter()
			cin := backend.CompressInput{Framing: c.framing, WindowBits: c.wbits, Input: payload, OutputCap: len(payload) + 1024}
			if !a.SupportsCompress(cin) {
				t.Fatal("expected support")
			}
			cout, err := a.Compress(cin)
			if err != nil {
				t.Fatalf("compress: %v", err)
			}

			din := backend.DecompressInput{Framing: c.framing, WindowBits: c.wbits, Input: cout.Output, OutputCap: len(payload) + 1024}
			dout, err := a.Decompress(din)
			if err != nil {
				t.Fatalf("decompress: %v", err)
			}
			if !dout.EndOfStream {
				t.Error("expected end of stream true")
			}
			if !bytes.Equal(dout.Output, payload) {
				t.Errorf("round trip mismatch: got %d bytes, want %d", len(dout.Output), len(payload))
			}
		})
	}
}

func TestGzipExtraRoundTrip(t *testing.T) {
	a := newAdapter()
	payload := []byte("short payload for gzip extra mode")
	cin := backend.CompressInput{Framing: format.Gzip, WindowBits: 31, Input: payload, OutputCap: 4096, GzipExtra: true}
	cout, err := a.Compress(cin)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if _, ok := format.DetectExtraSubfield(cout.Output); !ok {
		t.Fatal("expected extra subfield in output")
	}

	din := backend.DecompressInput{Framing: format.Gzip, WindowBits: 31, Input: cout.Output, OutputCap: 4096, DetectExtra: true}
	dout, err := a.Decompress(din)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(dout.Output, payload) {
		t.Error("round trip mismatch")
	}
}

func TestEmptyBlockSentinelPrepended(t *testing.T) {
	a := newAdapter()
	payload := []byte("data")
	cin := backend.CompressInput{Framing: format.Raw, WindowBits: -15, Input: payload, OutputCap: 4096, PrependEmptyBlock: true}
	cout, err := a.Compress(cin)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if !format.HasEmptyBlockSentinel(cout.Output) {
		t.Error("expected sentinel at start of raw output")
	}
}

func TestSessionOpenFailureReportsError(t *testing.T) {
	driver := NewSimDriver()
	driver.FailNext[sessionKey{format.Gzip, false}] = true
	a := New(driver, func() bool { return false }, func() int { return 6 }, nil)

	cin := backend.CompressInput{Framing: format.Gzip, WindowBits: 31, Input: []byte("x"), OutputCap: 4096}
	if _, err := a.Compress(cin); err == nil {
		t.Fatal("expected session-open failure to surface as an error")
	}
}

func TestChunkingGateOnNonRawOverHWBuffer(t *testing.T) {
	a := newAdapter()
	big := make([]byte, HWBufferSize+1)
	cin := backend.CompressInput{Framing: format.Gzip, WindowBits: 31, Input: big, OutputCap: len(big) * 2}
	if a.SupportsCompress(cin) {
		t.Error("expected unsupported when chunking disallowed and input exceeds HW buffer")
	}
}
