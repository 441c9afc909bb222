// Package png decodes PNG streams chunk by chunk. The Decoder validates
// every chunk header, checksum and position before a handler sees its
// payload, sorts failures into fatal errors and recoverable diagnostics,
// and reconstructs image rows from the IDAT stream.
package png

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jpfielding/png.go/pkg/compress/inflate"
	"github.com/jpfielding/png.go/pkg/png/chunk"
)

// Signature starts every PNG stream.
var Signature = [8]byte{137, 'P', 'N', 'G', '\r', '\n', 26, '\n'}

type phase int

const (
	phaseSignature phase = iota
	phaseInfo
	phaseImage // positioned inside IDAT
	phaseEnd   // image data finished, reading trailing chunks
	phaseDone  // IEND read
)

// ChunkFunc observes each chunk after it has been processed.
type ChunkFunc func(h chunk.Header, handled Handled, mode Mode)

// Decoder reads one PNG stream. It is not safe for concurrent use.
type Decoder struct {
	r    io.Reader
	opts *Options
	log  *slog.Logger
	id   string

	state    State
	info     *Info
	crc      hash.Hash32
	scratch  []byte
	skip     [1024]byte
	engine   *inflate.Engine
	idat     idatReader
	warnings Diagnostics
	cached   int
	phase    phase
	err      error

	frame    [][]byte
	expanded []byte

	// OnChunk, when set, is called after every chunk.
	OnChunk ChunkFunc
}

// NewDecoder reads from r. A nil opts uses DefaultOptions.
func NewDecoder(r io.Reader, opts *Options) *Decoder {
	o := opts.normalize()
	id := uuid.NewString()
	log := o.Logger.With("session", id)
	d := &Decoder{
		r:      r,
		opts:   o,
		log:    log,
		id:     id,
		state:  newState(),
		info:   &Info{},
		crc:    crc32.NewIEEE(),
		engine: inflate.NewEngine(log, o.StrictClaims),
	}
	d.idat.d = d
	return d
}

// ID identifies this decode in log output.
func (d *Decoder) ID() string { return d.id }

// Info returns the metadata read so far.
func (d *Decoder) Info() *Info { return d.info }

// State exposes the chunk bookkeeping.
func (d *Decoder) State() *State { return &d.state }

// Warnings returns the recoverable problems seen so far.
func (d *Decoder) Warnings() Diagnostics { return d.warnings }

// Close releases the decompressor.
func (d *Decoder) Close() error { return d.engine.Close() }

func (d *Decoder) fail(err error) error {
	if d.err == nil {
		d.err = err
		d.log.Debug("png: decode failed", "err", err)
	}
	return err
}

// benign records a recoverable problem with the current chunk. It returns
// an error only when Options.StrictBenign is set.
func (d *Decoder) benign(msg string) error {
	t := d.state.Header.Type
	if d.opts.StrictBenign {
		return &ChunkError{Type: t, Msg: msg}
	}
	d.warnings = append(d.warnings, Diagnostic{Chunk: t, Message: msg})
	d.log.Warn("png: benign error", "chunk", t.String(), "msg", msg)
	return nil
}

func (d *Decoder) ioError(err error) error {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	if d.state.Header.Type == 0 {
		return fmt.Errorf("png: read: %w", err)
	}
	return fmt.Errorf("png: %s: read: %w", d.state.Header.Type, err)
}

func (d *Decoder) readSignature() error {
	var sig [8]byte
	if _, err := io.ReadFull(d.r, sig[:]); err != nil {
		return d.ioError(err)
	}
	if sig != Signature {
		if bytes.Equal(sig[1:4], Signature[1:4]) {
			return fmt.Errorf("%w: corrupted by ASCII conversion", ErrSignature)
		}
		return ErrSignature
	}
	d.phase = phaseInfo
	return nil
}

// readHeader reads the next chunk header and starts its CRC.
func (d *Decoder) readHeader() (chunk.Header, error) {
	var b [chunk.HeaderSize]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return chunk.Header{}, d.ioError(err)
	}
	h, err := chunk.ParseHeader(b[:])
	if err != nil {
		return h, fmt.Errorf("%w: %w", FormatError("chunk header"), err)
	}
	d.state.Header = h
	d.crc.Reset()
	d.crc.Write(b[4:8])
	d.log.Debug("png: chunk", "type", h.Type.String(), "length", h.Length)
	return h, nil
}

// crcRead fills buf from the chunk payload.
func (d *Decoder) crcRead(buf []byte) error {
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return d.ioError(err)
	}
	d.crc.Write(buf)
	return nil
}

func (d *Decoder) crcSkip(n uint32) error {
	for n > 0 {
		m := min(n, uint32(len(d.skip)))
		if err := d.crcRead(d.skip[:m]); err != nil {
			return err
		}
		n -= m
	}
	return nil
}

// crcFinish skips the rest of the payload and checks the stored CRC. bad
// reports a mismatch the policy let through.
func (d *Decoder) crcFinish(skip uint32) (bad bool, err error) {
	return d.crcFinishAs(skip, false)
}

// crcFinishAs is crcFinish with the option of applying the ancillary CRC
// policy to a critical chunk, used where the chunk is optional for this
// image.
func (d *Decoder) crcFinishAs(skip uint32, asAncillary bool) (bool, error) {
	if err := d.crcSkip(skip); err != nil {
		return false, err
	}
	var b [4]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return false, d.ioError(err)
	}
	t := d.state.Header.Type
	action := d.opts.CRC.Critical
	if t.Ancillary() || (asAncillary && action != CRCIgnore) {
		action = d.opts.CRC.Ancillary
	}
	if action == CRCIgnore || binary.BigEndian.Uint32(b[:]) == d.crc.Sum32() {
		return false, nil
	}
	if action == CRCError {
		return true, &ChunkError{Type: t, Msg: "CRC error"}
	}
	return true, d.benign("CRC error")
}

// readBuffer returns the scratch buffer resized to n bytes. The buffer
// only ever grows.
func (d *Decoder) readBuffer(n uint32) ([]byte, error) {
	if d.opts.ChunkMax > 0 && int64(n) > d.opts.ChunkMax {
		return nil, fmt.Errorf("%w: %d bytes", ErrChunkTooLarge, n)
	}
	if uint32(cap(d.scratch)) < n {
		d.scratch = make([]byte, n)
	}
	return d.scratch[:n], nil
}

// payload reads a whole chunk into the scratch buffer and checks its CRC.
// ok is false when the chunk was dropped with a diagnostic.
func (d *Decoder) payload(length uint32) (buf []byte, ok bool, err error) {
	buf, err = d.readBuffer(length)
	if err != nil {
		if _, err := d.crcFinish(length); err != nil {
			return nil, false, err
		}
		return nil, false, d.benign("insufficient memory to read chunk")
	}
	if err := d.crcRead(buf); err != nil {
		return nil, false, err
	}
	bad, err := d.crcFinish(0)
	if err != nil || bad {
		return nil, false, err
	}
	return buf, true, nil
}

// ReadChunk reads and processes the next chunk. Benign problems are
// recorded in Warnings and do not produce an error.
func (d *Decoder) ReadChunk() (Handled, error) {
	if d.err != nil {
		return HandledError, d.err
	}
	switch d.phase {
	case phaseSignature:
		if err := d.readSignature(); err != nil {
			return HandledError, d.fail(err)
		}
	case phaseImage:
		return HandledError, fmt.Errorf("%w: image data has not been read", ErrPhase)
	case phaseDone:
		return HandledError, ErrSessionEnded
	}

	h, err := d.readHeader()
	if err != nil {
		return HandledError, d.fail(err)
	}
	handled, err := d.handleChunk(h)
	if err != nil {
		return handled, d.fail(err)
	}
	if d.OnChunk != nil {
		d.OnChunk(h, handled, d.state.Mode)
	}
	return handled, nil
}

func (d *Decoder) handleChunk(h chunk.Header) (Handled, error) {
	t, mode := h.Type, d.state.Mode
	if t != chunk.IHDR && mode&HaveIHDR == 0 {
		return HandledError, fmt.Errorf("%w before %s", ErrMissingIHDR, t)
	}
	if t == chunk.IDAT && mode&AfterIDAT != 0 {
		return d.extraIDAT(h.Length)
	}

	desc, known := descriptors[t]
	if !known || desc.handler == nil {
		handled, err := d.handleUnknown(h.Length)
		if err == nil && known && handled >= HandledSaved {
			d.state.seen[t] = true
		}
		return handled, err
	}

	var errmsg string
	switch {
	case mode&desc.before != 0 || mode&desc.after != desc.after:
		errmsg = "out of place"
	case !desc.multiple && d.state.seen[t]:
		errmsg = "duplicate"
	case h.Length < desc.minLength:
		errmsg = "too short"
	case desc.maxLength == lengthLimit:
		if d.opts.ChunkMax > 0 && int64(h.Length) > d.opts.ChunkMax {
			errmsg = "length exceeds limit"
		}
	case desc.maxLength != lengthNoCheck && h.Length > desc.maxLength:
		errmsg = "too long"
	}
	if errmsg != "" {
		if t.Critical() {
			return HandledError, &ChunkError{Type: t, Msg: errmsg}
		}
		if _, err := d.crcFinish(h.Length); err != nil {
			return HandledError, err
		}
		return HandledError, d.benign(errmsg)
	}

	handled, err := desc.handler(d, h.Length)
	if err != nil {
		return HandledError, err
	}
	if handled >= HandledSaved {
		d.state.seen[t] = true
	}
	return handled, nil
}

// extraIDAT skips image data chunks that follow the end of the image.
func (d *Decoder) extraIDAT(length uint32) (Handled, error) {
	if length > 0 {
		if err := d.benign("too many IDATs found"); err != nil {
			return HandledError, err
		}
	}
	if _, err := d.crcFinish(length); err != nil {
		return HandledError, err
	}
	return HandledDiscarded, nil
}

// ReadInfo reads the signature and every chunk up to the image data.
func (d *Decoder) ReadInfo() (*Info, error) {
	for d.phase < phaseImage {
		if _, err := d.ReadChunk(); err != nil {
			return nil, err
		}
	}
	return d.info, nil
}

// ReadEnd finishes the image data if needed and reads the remaining
// chunks through IEND.
func (d *Decoder) ReadEnd() error {
	if d.phase < phaseEnd {
		if err := d.ReadRows(nil); err != nil {
			return err
		}
	}
	for d.phase == phaseEnd {
		if _, err := d.ReadChunk(); err != nil {
			return err
		}
	}
	return d.err
}

// cacheSlot reserves room for one more saved text or unknown chunk.
func (d *Decoder) cacheSlot() (bool, error) {
	if d.opts.CacheMax <= 0 {
		return true, nil
	}
	if d.cached >= d.opts.CacheMax {
		if d.cached == d.opts.CacheMax {
			d.cached++
			return false, d.benign("no space in chunk cache")
		}
		return false, nil
	}
	d.cached++
	return true, nil
}

func isInflateData(err error) bool {
	return errors.Is(err, inflate.ErrTruncated) ||
		errors.Is(err, inflate.ErrCorrupt) ||
		errors.Is(err, inflate.ErrOverflow) ||
		errors.Is(err, inflate.ErrTooLarge) ||
		errors.Is(err, inflate.ErrMemory) ||
		errors.Is(err, inflate.ErrSizeMismatch)
}
