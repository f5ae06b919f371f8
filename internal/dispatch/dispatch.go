// Package dispatch is the streaming dispatch core and the
// bounded-buffer one-shot dispatch: the state machine that decides,
// per call, whether ACCEL-A, ACCEL-B, or the software fallback serves a
// compress/decompress request, and keeps each stream's chosen path
// sticky once it falls to software.
package dispatch

import (
	"bytes"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/uuxo/zlib-accel/internal/backend"
	"github.com/uuxo/zlib-accel/internal/config"
	"github.com/uuxo/zlib-accel/internal/format"
	"github.com/uuxo/zlib-accel/internal/shardmap"
	"github.com/uuxo/zlib-accel/internal/softflate"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// Re-export the software fallback's return codes and flush modes so
// callers of this package never need to import internal/softflate
// directly.
type Code = softflate.Code
type FlushMode = softflate.FlushMode

const (
	OK        = softflate.OK
	StreamEnd = softflate.StreamEnd
	BufError  = softflate.BufError
	DataError = softflate.DataError

	NoFlush   = softflate.NoFlush
	SyncFlush = softflate.SyncFlush
	Finish    = softflate.Finish
)

// StreamID is the opaque per-stream identifier the classical streaming
// API hands back from Init and expects on every subsequent call — kept
// distinct from any Go pointer so the settings table can be a plain
// shardmap.Map keyed by value, the way the original keys its side-table
// by the z_stream handle.
type StreamID uint64

var idCounter atomic.Uint64

func newStreamID() StreamID { return StreamID(idCounter.Add(1)) }

// DeflateSettings are the compress-direction parameters recorded at Init
// and immutable for the stream's lifetime, aside from Path.
type DeflateSettings struct {
	Level      int
	Method     int
	WindowBits int
	MemLevel   int
	Strategy   int
}

type deflateStream struct {
	mu       sync.Mutex
	settings DeflateSettings
	framing  format.Framing
	path     backend.Path
	pending  bytes.Buffer
	soft     *softflate.DeflateStream
	totalIn  uint64
	totalOut uint64
}

// InflateSettings are the decompress-direction parameters recorded at
// Init.
type InflateSettings struct {
	WindowBits int
}

type inflateStream struct {
	mu           sync.Mutex
	settings     InflateSettings
	framing      format.Framing
	path         backend.Path
	pending      bytes.Buffer
	softFedUpTo  int
	soft         *softflate.InflateStream
	totalIn      uint64
	totalOut     uint64
}

// Core is the dispatch state machine. One Core is normally shared
// process-wide; its stream tables are safe for concurrent use across
// streams (the sharded map), though the classical API contract still
// requires the caller to serialize calls on any single stream.
type Core struct {
	cfg *config.Store

	accelA backend.Backend
	accelB backend.Backend

	deflateStreams *shardmap.Map[StreamID, *deflateStream]
	inflateStreams *shardmap.Map[StreamID, *inflateStream]

	compressCount   [4]atomic.Uint64 // indexed by backend.Path
	decompressCount [4]atomic.Uint64
}

// Stats is a point-in-time snapshot of how many completed compress and
// decompress calls each back-end has served, for monitoring front ends.
type Stats struct {
	CompressSoftware   uint64
	CompressAccelA     uint64
	CompressAccelB     uint64
	DecompressSoftware uint64
	DecompressAccelA   uint64
	DecompressAccelB   uint64
}

// Stats returns a snapshot of the running per-back-end call counts.
func (c *Core) Stats() Stats {
	return Stats{
		CompressSoftware:   c.compressCount[backend.Software].Load(),
		CompressAccelA:     c.compressCount[backend.AccelA].Load(),
		CompressAccelB:     c.compressCount[backend.AccelB].Load(),
		DecompressSoftware: c.decompressCount[backend.Software].Load(),
		DecompressAccelA:   c.decompressCount[backend.AccelA].Load(),
		DecompressAccelB:   c.decompressCount[backend.AccelB].Load(),
	}
}

// New returns a Core that dispatches to accelA/accelB (either may be nil,
// meaning that back-end is entirely absent rather than merely disabled by
// config) and reads enable/percentage knobs from cfg.
func New(cfg *config.Store, accelA, accelB backend.Backend) *Core {
	return &Core{
		cfg:            cfg,
		accelA:         accelA,
		accelB:         accelB,
		deflateStreams: shardmap.New[StreamID, *deflateStream](),
		inflateStreams: shardmap.New[StreamID, *inflateStream](),
	}
}

// DeflateInit records settings for a new compress-direction stream and
// returns its identifier. Path starts Undefined.
func (c *Core) DeflateInit(s DeflateSettings) (StreamID, error) {
	framing := format.Classify(s.WindowBits)
	if framing == format.Invalid {
		return 0, fmt.Errorf("dispatch: invalid window bits %d", s.WindowBits)
	}
	id := newStreamID()
	c.deflateStreams.Set(id, &deflateStream{
		settings: s,
		framing:  framing,
		path:     backend.Undefined,
		soft:     softflate.NewDeflate(framing, s.WindowBits, s.Level),
	})
	return id, nil
}

// DeflateReset clears path back to Undefined without tearing down any
// accelerator session — sessions live in the per-thread
// cache, not on the stream.
func (c *Core) DeflateReset(id StreamID) error {
	st, ok := c.deflateStreams.Get(id)
	if !ok {
		return fmt.Errorf("dispatch: unknown deflate stream %d", id)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.path = backend.Undefined
	st.pending.Reset()
	st.soft.Reset()
	st.totalIn, st.totalOut = 0, 0
	return nil
}

// DeflateEnd drops the stream's settings entry. The caller is
// responsible for forwarding to the software end hook if it allocated
// any software-side resources beyond what soft already owns — softflate
// has none that outlive the stream.
func (c *Core) DeflateEnd(id StreamID) {
	c.deflateStreams.Unset(id)
}

// TotalsDeflate reports the (totalIn, totalOut) accumulated on id so far.
func (c *Core) TotalsDeflate(id StreamID) (uint64, uint64, bool) {
	st, ok := c.deflateStreams.Get(id)
	if !ok {
		return 0, 0, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.totalIn, st.totalOut, true
}

// PathDeflate reports id's current sticky path, for tests and logging.
func (c *Core) PathDeflate(id StreamID) (backend.Path, bool) {
	st, ok := c.deflateStreams.Get(id)
	if !ok {
		return backend.Undefined, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.path, true
}

// DeflateProcess implements the compress half. Intermediate calls
// (flush != Finish) simply buffer input and report OK; the accelerator
// dispatch decision is made once, at Finish, over everything buffered
// since the last Reset.
func (c *Core) DeflateProcess(ctx *CallContext, id StreamID, input, output []byte, flush FlushMode) (Code, int, int, error) {
	st, ok := c.deflateStreams.Get(id)
	if !ok {
		return DataError, 0, 0, fmt.Errorf("dispatch: unknown deflate stream %d", id)
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	consumed := len(input)
	st.pending.Write(input)
	st.totalIn += uint64(consumed)

	if ctx.reentrant() {
		st.path = backend.Software
	}

	if flush != Finish {
		return OK, consumed, 0, nil
	}

	if st.path != backend.Software {
		chosen, path := c.pickCompressBackend(ctx, st.framing, st.pending.Bytes(), len(output))
		if chosen != nil {
			out, err := chosen.Compress(backend.CompressInput{
				Framing:           st.framing,
				WindowBits:        st.settings.WindowBits,
				Input:             st.pending.Bytes(),
				OutputCap:         len(output),
				PrependEmptyBlock: c.cfg.GetBool(config.IAAPrependEmptyBlock),
			})
			if err == nil {
				n := copy(output, out.Output)
				st.totalOut += uint64(n)
				st.path = path
				if n < out.ProducedOut {
					return BufError, consumed, n, nil
				}
				c.compressCount[path].Add(1)
				return StreamEnd, consumed, n, nil
			}
			log.Warnf("dispatch: %s compress failed, falling through: %v", path, err)
		}
		st.path = backend.Software
	}

	if !c.cfg.GetBool(config.UseZlibCompress) {
		return DataError, consumed, 0, fmt.Errorf("dispatch: no back-end available and software disabled")
	}

	code, _, produced, err := st.soft.Process(st.pending.Bytes(), output, Finish)
	st.pending.Reset()
	st.totalOut += uint64(produced)
	if code == StreamEnd {
		c.compressCount[backend.Software].Add(1)
	}
	return code, consumed, produced, err
}

// pickCompressBackend applies the compress selection rule: if both
// back-ends are enabled and eligible, pick ACCEL-B with probability
// iaa_compress_percentage/100, else ACCEL-A; if only one is eligible,
// pick it; otherwise return nil (fall through to software).
func (c *Core) pickCompressBackend(ctx *CallContext, f format.Framing, input []byte, outputCap int) (backend.Backend, backend.Path) {
	if ctx.reentrant() {
		return nil, backend.Undefined
	}
	in := backend.CompressInput{Framing: f, Input: input, OutputCap: outputCap}

	aOK := c.accelA != nil && c.cfg.GetBool(config.UseQATCompress) && c.accelA.SupportsCompress(in)
	bOK := c.accelB != nil && c.cfg.GetBool(config.UseIAACompress) && c.accelB.SupportsCompress(in)

	switch {
	case aOK && bOK:
		pct := c.cfg.Get(config.IAACompressPercentage)
		if rand.Intn(100) < int(pct) {
			return c.accelB, backend.AccelB
		}
		return c.accelA, backend.AccelA
	case aOK:
		return c.accelA, backend.AccelA
	case bOK:
		return c.accelB, backend.AccelB
	default:
		return nil, backend.Undefined
	}
}

// InflateInit records settings for a new decompress-direction stream
//.
func (c *Core) InflateInit(s InflateSettings) (StreamID, error) {
	framing := format.Classify(s.WindowBits)
	if framing == format.Invalid {
		return 0, fmt.Errorf("dispatch: invalid window bits %d", s.WindowBits)
	}
	id := newStreamID()
	c.inflateStreams.Set(id, &inflateStream{
		settings: s,
		framing:  framing,
		path:     backend.Undefined,
		soft:     softflate.NewInflate(framing, s.WindowBits),
	})
	return id, nil
}

func (c *Core) InflateReset(id StreamID) error {
	st, ok := c.inflateStreams.Get(id)
	if !ok {
		return fmt.Errorf("dispatch: unknown inflate stream %d", id)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.path = backend.Undefined
	st.pending.Reset()
	st.softFedUpTo = 0
	st.soft.Reset()
	st.totalIn, st.totalOut = 0, 0
	return nil
}

func (c *Core) InflateEnd(id StreamID) {
	c.inflateStreams.Unset(id)
}

func (c *Core) TotalsInflate(id StreamID) (uint64, uint64, bool) {
	st, ok := c.inflateStreams.Get(id)
	if !ok {
		return 0, 0, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.totalIn, st.totalOut, true
}

func (c *Core) PathInflate(id StreamID) (backend.Path, bool) {
	st, ok := c.inflateStreams.Get(id)
	if !ok {
		return backend.Undefined, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.path, true
}

// InflateProcess implements the decompress half: dispatch is
// evaluated on every call while path isn't Software and input remains.
// An accelerator call that succeeds but does not report end-of-stream is
// treated as a failure for the rest of this stream.
func (c *Core) InflateProcess(ctx *CallContext, id StreamID, input, output []byte, flush FlushMode) (Code, int, int, error) {
	st, ok := c.inflateStreams.Get(id)
	if !ok {
		return DataError, 0, 0, fmt.Errorf("dispatch: unknown inflate stream %d", id)
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	consumed := len(input)
	st.pending.Write(input)
	st.totalIn += uint64(consumed)

	if ctx.reentrant() {
		st.path = backend.Software
	}

	if st.path != backend.Software && st.pending.Len() > 0 {
		chosen, path := c.pickDecompressBackend(ctx, st.framing, st.pending.Bytes(), len(output))
		if chosen != nil {
			out, err := chosen.Decompress(backend.DecompressInput{
				Framing:    st.framing,
				WindowBits: st.settings.WindowBits,
				Input:      st.pending.Bytes(),
				OutputCap:  len(output),
			})
			if err == nil && out.EndOfStream {
				n := copy(output, out.Output)
				st.totalOut += uint64(n)
				st.path = path
				if out.ConsumedIn < st.pending.Len() {
					return BufError, consumed, n, nil
				}
				st.pending.Reset()
				c.decompressCount[path].Add(1)
				return StreamEnd, consumed, n, nil
			}
			if err != nil {
				log.Warnf("dispatch: %s decompress failed, falling through: %v", path, err)
			} else {
				log.Warnf("dispatch: %s decompress did not reach end of stream, falling through", path)
			}
		}
		st.path = backend.Software
	}

	if st.path != backend.Software {
		return OK, consumed, 0, nil // no eligible back-end yet and not enough input to decide
	}

	if !c.cfg.GetBool(config.UseZlibUncompress) {
		return DataError, consumed, 0, fmt.Errorf("dispatch: no back-end available and software disabled")
	}

	unfed := st.pending.Bytes()[st.softFedUpTo:]
	code, _, produced, err := st.soft.Process(unfed, output, flush)
	st.softFedUpTo = st.pending.Len()
	st.totalOut += uint64(produced)
	if code == StreamEnd {
		c.decompressCount[backend.Software].Add(1)
		// Allow a subsequent concatenated stream on this handle.
		st.pending.Reset()
		st.softFedUpTo = 0
	}
	return code, consumed, produced, err
}

func (c *Core) pickDecompressBackend(ctx *CallContext, f format.Framing, buffered []byte, outputCap int) (backend.Backend, backend.Path) {
	if ctx.reentrant() {
		return nil, backend.Undefined
	}
	in := backend.DecompressInput{Framing: f, Input: buffered, OutputCap: outputCap}

	aOK := c.accelA != nil && c.cfg.GetBool(config.UseQATUncompress) && c.accelA.SupportsDecompress(in)
	bOK := c.accelB != nil && c.cfg.GetBool(config.UseIAAUncompress) && c.accelB.SupportsDecompress(in)

	switch {
	case aOK && bOK:
		pct := c.cfg.Get(config.IAAUncompressPercentage)
		if rand.Intn(100) < int(pct) {
			return c.accelB, backend.AccelB
		}
		return c.accelA, backend.AccelA
	case aOK:
		return c.accelA, backend.AccelA
	case bOK:
		return c.accelB, backend.AccelB
	default:
		return nil, backend.Undefined
	}
}
