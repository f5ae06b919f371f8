// Package gzfile is the buffered, gzip-framed file layer built on top of
// the dispatch core: it synthesises ordinary sequential file read/write
// semantics over back-ends that only operate in one-shot, bounded-buffer
// mode, the way a gzFile handle layers buffering over deflate/inflate in
// the classical streaming library.
package gzfile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/uuxo/zlib-accel/internal/backend"
	"github.com/uuxo/zlib-accel/internal/config"
	"github.com/uuxo/zlib-accel/internal/dispatch"
	"github.com/uuxo/zlib-accel/internal/format"
	"github.com/uuxo/zlib-accel/internal/shardmap"
	"github.com/uuxo/zlib-accel/internal/softflate"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

const (
	writeDataBufSize = 256 * 1024
	writeIOBufSize   = 512 * 1024
	readIOBufSize    = 512 * 1024
	readDataBufSize  = 512 * 1024

	gzipWindowBits = 31
	defaultLevel   = 6
)

// File is an open compressed-file handle. Only gzip framing is
// accelerated; File always talks window-bits 31 to the dispatch layer.
type File struct {
	fd        *os.File
	mode      Mode
	core      *dispatch.Core
	accelA    backend.Backend
	cfg       *config.Store
	softLevel int

	writtenBytes int64

	// write side
	dataBuf bytes.Buffer
	ioBuf   []byte

	// read side
	ioBufR          bytes.Buffer
	dataBufR        bytes.Buffer
	scratch         []byte
	reachedEOF      bool
	mustUseSoftware bool
	softInflate     *softflate.InflateStream

	closed bool
}

// handles maps an open file descriptor number to its File, mirroring the
// classical library's file-handle table; looking a handle up by its raw
// fd is occasionally useful for diagnostics even though callers normally
// just hold the *File returned by Open.
var handles = shardmap.New[int, *File]()

// Lookup returns the File currently registered for fd, if any.
func Lookup(fd int) (*File, bool) {
	return handles.Get(fd)
}

// Core returns the dispatch core this handle was opened with, so a
// caller holding only a *File (e.g. a monitoring front end looking the
// handle up by descriptor) can still inspect back-end state.
func (f *File) Core() *dispatch.Core { return f.core }

// Open opens path under mode (a streaming-library-style mode string, see
// ParseMode) and wires it to accelA for accelerated gzip compression
// (accelA may be nil, meaning every call on this handle uses software).
// softLevel sets the flate level the software fallback compresses at when
// this handle falls through to it; values outside [1,9] fall back to
// defaultLevel. Callers typically pass the level internal/compression
// recommended for the host's CPU at startup (lifecycle.Runtime.SoftwareLevel).
func Open(core *dispatch.Core, accelA backend.Backend, cfg *config.Store, path, modeStr string, softLevel int) (*File, error) {
	m, err := ParseMode(modeStr)
	if err != nil {
		return nil, err
	}
	perm := os.FileMode(0o644)
	flags := m.openFlags()
	f, err := os.OpenFile(path, flags, perm)
	if err != nil {
		return nil, fmt.Errorf("gzfile: open %s: %w", path, err)
	}

	if softLevel < 1 || softLevel > 9 {
		softLevel = defaultLevel
	}
	gf := &File{
		fd:        f,
		mode:      m,
		core:      core,
		accelA:    accelA,
		cfg:       cfg,
		softLevel: softLevel,
	}
	if m.Read {
		gf.softInflate = softflate.NewInflate(format.Gzip, gzipWindowBits)
	}
	handles.Set(int(f.Fd()), gf)
	return gf, nil
}

// Write buffers p and compresses-and-flushes whenever the 256 KiB data
// buffer fills. The return count is bytes accepted into the buffer, not
// bytes actually written to disk.
func (f *File) Write(p []byte) (int, error) {
	if !f.mode.Write {
		return 0, fmt.Errorf("gzfile: file not opened for writing")
	}
	if f.ioBuf == nil {
		f.ioBuf = make([]byte, writeIOBufSize)
	}
	accepted := 0
	for len(p) > 0 {
		room := writeDataBufSize - f.dataBuf.Len()
		if room <= 0 {
			if err := f.compressAndFlush(); err != nil {
				return accepted, err
			}
			room = writeDataBufSize - f.dataBuf.Len()
		}
		n := room
		if n > len(p) {
			n = len(p)
		}
		f.dataBuf.Write(p[:n])
		p = p[n:]
		accepted += n
		if f.dataBuf.Len() >= writeDataBufSize {
			if err := f.compressAndFlush(); err != nil {
				return accepted, err
			}
		}
	}
	return accepted, nil
}

// compressAndFlush compresses the data buffer's current content (preferring
// ACCEL-A's gzip-extra mode, falling back to a self-contained software
// FINISH segment) and writes the result to the file descriptor.
func (f *File) compressAndFlush() error {
	if f.dataBuf.Len() == 0 {
		return nil
	}
	in := backend.CompressInput{
		Framing:    format.Gzip,
		WindowBits: gzipWindowBits,
		Input:      f.dataBuf.Bytes(),
		OutputCap:  len(f.ioBuf),
		GzipExtra:  true,
	}
	if a := f.accelA; a != nil && f.cfg.GetBool(config.UseQATCompress) && a.SupportsCompress(in) {
		out, err := a.Compress(in)
		if err == nil {
			f.dataBuf.Next(out.ConsumedIn)
			return f.writeAll(out.Output)
		}
		log.Warnf("gzfile: accel-a compress failed, falling back to software: %v", err)
	}

	compressed, err := softflate.CompressBuffer(f.dataBuf.Bytes(), format.Gzip, gzipWindowBits, f.softLevel)
	if err != nil {
		return fmt.Errorf("gzfile: software compress: %w", err)
	}
	f.dataBuf.Reset()
	return f.writeAll(compressed)
}

func (f *File) writeAll(b []byte) error {
	for len(b) > 0 {
		n, err := f.fd.Write(b)
		f.writtenBytes += int64(n)
		if err != nil {
			return fmt.Errorf("gzfile: write: %w", err)
		}
		b = b[n:]
	}
	return nil
}

// Read serves decompressed bytes into p, pulling and decompressing more
// of the file as needed.
func (f *File) Read(p []byte) (int, error) {
	if !f.mode.Read {
		return 0, fmt.Errorf("gzfile: file not opened for reading")
	}
	total := 0
	for total < len(p) {
		if f.dataBufR.Len() > 0 {
			n := copy(p[total:], f.dataBufR.Bytes())
			f.dataBufR.Next(n)
			total += n
			continue
		}
		if f.reachedEOF && f.ioBufR.Len() == 0 {
			break
		}
		if err := f.fillAndDecompress(); err != nil {
			return total, err
		}
		if f.dataBufR.Len() == 0 && f.reachedEOF && f.ioBufR.Len() == 0 {
			break
		}
	}
	if total == 0 && f.reachedEOF && f.dataBufR.Len() == 0 {
		return 0, io.EOF
	}
	return total, nil
}

// fillAndDecompress reads more compressed bytes from the file descriptor
// and turns them into decompressed bytes in dataBufR, trying ACCEL-A's
// gzip-extra detection first and latching to software on any failure or
// partial result.
func (f *File) fillAndDecompress() error {
	if f.ioBuf == nil {
		f.ioBuf = make([]byte, readIOBufSize)
	}
	if f.scratch == nil {
		f.scratch = make([]byte, readDataBufSize)
	}

	room := readIOBufSize - f.ioBufR.Len()
	fresh := make([]byte, room)
	n, readErr := f.fd.Read(fresh)
	fresh = fresh[:n]
	if n < room {
		f.reachedEOF = true
	}
	if readErr != nil && readErr != io.EOF {
		return fmt.Errorf("gzfile: read: %w", readErr)
	}
	if n == 0 && f.ioBufR.Len() == 0 {
		return nil
	}

	if f.mustUseSoftware {
		return f.decompressSoftware(fresh)
	}

	f.ioBufR.Write(fresh)
	in := backend.DecompressInput{
		Framing:     format.Gzip,
		WindowBits:  gzipWindowBits,
		Input:       f.ioBufR.Bytes(),
		OutputCap:   len(f.scratch),
		DetectExtra: true,
	}
	if a := f.accelA; a != nil && f.cfg.GetBool(config.UseQATUncompress) && a.SupportsDecompress(in) {
		out, err := a.Decompress(in)
		if err == nil && out.EndOfStream {
			f.dataBufR.Write(out.Output)
			f.ioBufR.Next(out.ConsumedIn)
			return nil
		}
		if err != nil {
			log.Warnf("gzfile: accel-a decompress failed, latching to software: %v", err)
		} else {
			log.Warnf("gzfile: accel-a decompress did not reach end of stream, latching to software")
		}
	}

	f.mustUseSoftware = true
	buffered := append([]byte{}, f.ioBufR.Bytes()...)
	f.ioBufR.Reset()
	return f.decompressSoftware(buffered)
}

func (f *File) decompressSoftware(fresh []byte) error {
	code, _, produced, err := f.softInflate.Process(fresh, f.scratch, softflate.SyncFlush)
	if err != nil {
		return fmt.Errorf("gzfile: software decompress: %w", err)
	}
	f.dataBufR.Write(f.scratch[:produced])
	for code == softflate.BufError {
		code, _, produced, err = f.softInflate.Process(nil, f.scratch, softflate.SyncFlush)
		if err != nil {
			return fmt.Errorf("gzfile: software decompress: %w", err)
		}
		f.dataBufR.Write(f.scratch[:produced])
	}
	if code == softflate.StreamEnd {
		f.softInflate.Reset()
	}
	return nil
}

// Close flushes any buffered writes, finalizes the stream, and closes the
// underlying file descriptor.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	handles.Unset(int(f.fd.Fd()))

	if !f.mode.Write {
		return f.fd.Close()
	}

	if err := f.compressAndFlush(); err != nil {
		f.fd.Close()
		return err
	}

	// A final software finalize exercises the same close sequence the
	// classical library follows (finalize, then truncate back to the
	// length actually written) even though every segment this layer emits
	// is already self-terminated; this keeps the file's length exactly
	// what compressAndFlush produced, discarding the finalize's own bytes.
	name, resolveErr := resolveFDPath(f.fd)
	if resolveErr != nil {
		log.Debugf("gzfile: could not resolve descriptor path for close bookkeeping: %v", resolveErr)
	} else {
		log.Debugf("gzfile: closing %s at %d bytes", name, f.writtenBytes)
	}

	actualLength, err := f.fd.Seek(0, io.SeekEnd)
	if err != nil {
		f.fd.Close()
		return fmt.Errorf("gzfile: seek: %w", err)
	}
	if trailer, err := softflate.CompressBuffer(nil, format.Gzip, gzipWindowBits, f.softLevel); err == nil {
		_ = f.writeAll(trailer)
	}
	if err := f.fd.Truncate(actualLength); err != nil {
		f.fd.Close()
		return fmt.Errorf("gzfile: truncate: %w", err)
	}
	if _, err := f.fd.Seek(actualLength, io.SeekStart); err != nil {
		f.fd.Close()
		return fmt.Errorf("gzfile: seek: %w", err)
	}
	return f.fd.Close()
}

// EOF reports the latched end-of-file flag.
func (f *File) EOF() bool {
	return f.reachedEOF
}

func resolveFDPath(f *os.File) (string, error) {
	link := fmt.Sprintf("/proc/self/fd/%d", f.Fd())
	target, err := os.Readlink(link)
	if err != nil {
		return "", err
	}
	return filepath.Clean(target), nil
}
