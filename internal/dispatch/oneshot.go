package dispatch

import (
	"fmt"

	"github.com/uuxo/zlib-accel/internal/backend"
	"github.com/uuxo/zlib-accel/internal/config"
	"github.com/uuxo/zlib-accel/internal/format"
	"github.com/uuxo/zlib-accel/internal/softflate"
)

// CompressBuffer is the bounded-buffer, one-shot compress entry point:
// no stream state, no stickiness — every call independently picks a
// back-end the same way DeflateProcess's Finish step does, then falls
// through to software on failure or when nothing was eligible.
func (c *Core) CompressBuffer(ctx *CallContext, framing format.Framing, windowBits, level int, input []byte, outputCap int, gzipExtra bool) ([]byte, backend.Path, error) {
	chosen, path := c.pickCompressBackend(ctx, framing, input, outputCap)
	if chosen != nil {
		out, err := chosen.Compress(backend.CompressInput{
			Framing:           framing,
			WindowBits:        windowBits,
			Input:             input,
			OutputCap:         outputCap,
			GzipExtra:         gzipExtra,
			PrependEmptyBlock: c.cfg.GetBool(config.IAAPrependEmptyBlock),
		})
		if err == nil {
			c.compressCount[path].Add(1)
			return out.Output, path, nil
		}
		log.Warnf("dispatch: one-shot %s compress failed, falling through: %v", path, err)
	}

	if !c.cfg.GetBool(config.UseZlibCompress) {
		return nil, backend.Undefined, fmt.Errorf("dispatch: no back-end available and software disabled")
	}
	out, err := softflate.CompressBuffer(input, framing, windowBits, level)
	if err != nil {
		return nil, backend.Undefined, err
	}
	c.compressCount[backend.Software].Add(1)
	return out, backend.Software, nil
}

// UncompressBuffer is the bounded-buffer, one-shot decompress entry
// point.
func (c *Core) UncompressBuffer(ctx *CallContext, framing format.Framing, windowBits int, framed []byte, outputCap int, detectExtra bool) ([]byte, backend.Path, error) {
	chosen, path := c.pickDecompressBackend(ctx, framing, framed, outputCap)
	if chosen != nil {
		out, err := chosen.Decompress(backend.DecompressInput{
			Framing:     framing,
			WindowBits:  windowBits,
			Input:       framed,
			OutputCap:   outputCap,
			DetectExtra: detectExtra,
		})
		if err == nil && out.EndOfStream {
			c.decompressCount[path].Add(1)
			return out.Output, path, nil
		}
		if err != nil {
			log.Warnf("dispatch: one-shot %s decompress failed, falling through: %v", path, err)
		} else {
			log.Warnf("dispatch: one-shot %s decompress did not reach end of stream, falling through", path)
		}
	}

	if !c.cfg.GetBool(config.UseZlibUncompress) {
		return nil, backend.Undefined, fmt.Errorf("dispatch: no back-end available and software disabled")
	}
	out, err := softflate.UncompressBuffer(framed, framing)
	if err != nil {
		return nil, backend.Undefined, err
	}
	c.decompressCount[backend.Software].Add(1)
	return out, backend.Software, nil
}
