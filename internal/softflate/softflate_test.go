package softflate

import (
	"bytes"
	"testing"

	"github.com/uuxo/zlib-accel/internal/format"
)

func TestDeflateInflateRoundTrip(t *testing.T) {
	for _, f := range []format.Framing{format.Raw, format.Zlib, format.Gzip} {
		payload := bytes.Repeat([]byte("software fallback round trip "), 50)

		d := NewDeflate(f, 15, 6)
		out := make([]byte, len(payload)+2048)
		code, consumed, produced, err := d.Process(payload, out, Finish)
		if err != nil {
			t.Fatalf("%v: deflate process: %v", f, err)
		}
		if code != StreamEnd {
			t.Fatalf("%v: code = %v, want STREAM_END", f, code)
		}
		if consumed != len(payload) {
			t.Fatalf("%v: consumed = %d, want %d", f, consumed, len(payload))
		}
		compressed := out[:produced]

		inf := NewInflate(f, 15)
		dout := make([]byte, len(payload)+2048)
		icode, _, iproduced, err := inf.Process(compressed, dout, SyncFlush)
		if err != nil {
			t.Fatalf("%v: inflate process: %v", f, err)
		}
		if icode != StreamEnd {
			t.Fatalf("%v: inflate code = %v, want STREAM_END", f, icode)
		}
		if !bytes.Equal(dout[:iproduced], payload) {
			t.Fatalf("%v: round trip mismatch", f)
		}
	}
}

func TestInflateIncompleteReturnsOK(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 500)
	d := NewDeflate(format.Gzip, 31, 6)
	out := make([]byte, len(payload)+1024)
	_, _, produced, _ := d.Process(payload, out, Finish)
	full := out[:produced]

	inf := NewInflate(format.Gzip, 31)
	dout := make([]byte, len(payload)+1024)
	code, _, n, err := inf.Process(full[:len(full)/2], dout, SyncFlush)
	if err != nil {
		t.Fatalf("unexpected error on truncated stream: %v", err)
	}
	if code != OK || n != 0 {
		t.Fatalf("code = %v, n = %d, want OK/0 for incomplete stream", code, n)
	}

	code, _, n, err = inf.Process(full[len(full)/2:], dout, SyncFlush)
	if err != nil {
		t.Fatalf("unexpected error completing stream: %v", err)
	}
	if code != StreamEnd || !bytes.Equal(dout[:n], payload) {
		t.Fatalf("completion failed: code=%v n=%d", code, n)
	}
}

func TestGzipConcatenatedStreamsDecodeAsOne(t *testing.T) {
	a := []byte("first segment ")
	b := []byte("second segment")

	var compressed []byte
	for _, seg := range [][]byte{a, b} {
		d := NewDeflate(format.Gzip, 31, 6)
		out := make([]byte, len(seg)+256)
		_, _, n, err := d.Process(seg, out, Finish)
		if err != nil {
			t.Fatal(err)
		}
		compressed = append(compressed, out[:n]...)
	}

	got, err := UncompressBuffer(compressed, format.Gzip)
	if err != nil {
		t.Fatalf("UncompressBuffer: %v", err)
	}
	want := append(append([]byte{}, a...), b...)
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCompressUncompressBuffer(t *testing.T) {
	payload := []byte("one shot buffer")
	compressed, err := CompressBuffer(payload, format.Zlib, 15, 6)
	if err != nil {
		t.Fatal(err)
	}
	got, err := UncompressBuffer(compressed, format.Zlib)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}
