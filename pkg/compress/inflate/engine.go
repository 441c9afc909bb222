// Package inflate wraps a single reusable zlib stream shared by every
// consumer of compressed data inside one PNG decode: the image data and the
// compressed ancillary chunks. Only one consumer may own the stream at a
// time; ownership is taken with Claim and returned with Lease.Release.
package inflate

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jpfielding/png.go/pkg/png/chunk"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
)

// MaxIO caps the output requested from the decompressor in one call.
const MaxIO = 1<<16 - 1

const probeSize = 1024

var (
	ErrClaimed      = errors.New("inflate: stream claimed by another owner")
	ErrUnclaimed    = errors.New("inflate: stream not claimed")
	ErrTruncated    = errors.New("inflate: truncated compressed stream")
	ErrCorrupt      = errors.New("inflate: corrupt compressed stream")
	ErrOverflow     = errors.New("inflate: decompressed data exceeds output space")
	ErrTooLarge     = errors.New("inflate: decompressed data exceeds limit")
	ErrSizeMismatch = errors.New("inflate: decompressed size changed between passes")
	ErrMemory       = errors.New("inflate: memory limit exceeded")
)

// Engine owns the zlib state. The zero value is not usable, see NewEngine.
type Engine struct {
	log    *slog.Logger
	strict bool

	owner chunk.Type
	gen   uint64

	zr    io.ReadCloser
	src   source
	fresh bool
	setup error // header failure, repeated until the next start
	ended bool
	probe [probeSize]byte
}

// NewEngine builds an engine. When strict is set a conflicting claim is an
// error instead of a forced reassignment; builds tagged pngdebug are always
// strict.
func NewEngine(log *slog.Logger, strict bool) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{log: log, strict: strict || strictBuild}
}

// Owner returns the chunk type holding the stream, or 0.
func (e *Engine) Owner() chunk.Type { return e.owner }

// Claim takes ownership of the stream for owner and points it at in. The
// stream state is reset; the zlib header is read lazily on first use so a
// claim never fails because of the data.
func (e *Engine) Claim(owner chunk.Type, in io.Reader) (*Lease, error) {
	if e.owner != 0 && e.owner != owner {
		if e.strict {
			return nil, fmt.Errorf("%w: %s using zstream, %s requested", ErrClaimed, e.owner, owner)
		}
		e.log.Warn("inflate: forcing stream reassignment", "owner", e.owner.String(), "claimant", owner.String())
	}
	e.owner = owner
	e.gen++
	e.start(in)
	return &Lease{e: e, owner: owner, gen: e.gen}, nil
}

// Close frees the underlying decompressor.
func (e *Engine) Close() error {
	e.owner = 0
	if e.zr == nil {
		return nil
	}
	err := e.zr.Close()
	e.zr = nil
	return err
}

func (e *Engine) start(in io.Reader) {
	e.src = source{r: in}
	if br, ok := in.(io.ByteReader); ok {
		e.src.br = br
	}
	e.fresh = true
	e.ended = false
	e.setup = nil
}

func (e *Engine) read(p []byte) (int, error) {
	if e.setup != nil {
		return 0, e.setup
	}
	if e.fresh {
		var err error
		if e.zr == nil {
			e.zr, err = zlib.NewReader(&e.src)
		} else {
			err = e.zr.(zlib.Resetter).Reset(&e.src, nil)
		}
		if err != nil {
			e.setup = err
			return 0, err
		}
		e.fresh = false
	}
	return e.zr.Read(p)
}

// classify maps decompressor failures onto the package errors; errors from
// the input source pass through untouched.
func classify(err error) error {
	var corrupt flate.CorruptInputError
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %w", ErrTruncated, err)
	case errors.Is(err, zlib.ErrHeader), errors.Is(err, zlib.ErrChecksum), errors.Is(err, zlib.ErrDictionary):
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	case errors.As(err, &corrupt):
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return err
}

// source counts consumed input and always offers ReadByte, which keeps
// the decompressor from buffering past the end of the compressed data.
type source struct {
	r  io.Reader
	br io.ByteReader
	n  int64
	b  [1]byte
}

func (s *source) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.n += int64(n)
	return n, err
}

func (s *source) ReadByte() (byte, error) {
	if s.br != nil {
		c, err := s.br.ReadByte()
		if err == nil {
			s.n++
		}
		return c, err
	}
	if _, err := io.ReadFull(s.r, s.b[:]); err != nil {
		return 0, err
	}
	s.n++
	return s.b[0], nil
}

// Lease is one claim on the engine. Operations on a lease that has been
// released or superseded by a forced reassignment return ErrUnclaimed.
type Lease struct {
	e        *Engine
	owner    chunk.Type
	gen      uint64
	released bool
}

func (l *Lease) engine() (*Engine, error) {
	if l.released || l.e.gen != l.gen || l.e.owner != l.owner {
		return nil, fmt.Errorf("%w: %s", ErrUnclaimed, l.owner)
	}
	return l.e, nil
}

// Owner is the chunk type the lease was claimed for.
func (l *Lease) Owner() chunk.Type { return l.owner }

// Inflate fills out with decompressed bytes, asking for at most MaxIO per
// call. It returns early, without error, when the stream ends. With finish
// set the stream must end within out.
func (l *Lease) Inflate(out []byte, finish bool) (int, error) {
	e, err := l.engine()
	if err != nil {
		return 0, err
	}
	n := 0
	for n < len(out) && !e.ended {
		m, err := e.read(out[n:min(len(out), n+MaxIO)])
		n += m
		if err == io.EOF {
			e.ended = true
			break
		}
		if err != nil {
			return n, classify(err)
		}
	}
	if finish && !e.ended {
		m, err := e.read(e.probe[:1])
		switch {
		case m > 0:
			return n, ErrOverflow
		case err == io.EOF:
			e.ended = true
		case err != nil:
			return n, classify(err)
		}
	}
	return n, nil
}

// Discard decompresses to the end of the stream through a fixed probe
// buffer and reports the output size. A positive limit bounds the output.
func (l *Lease) Discard(limit int64) (int64, error) {
	e, err := l.engine()
	if err != nil {
		return 0, err
	}
	var total int64
	for !e.ended {
		m, err := e.read(e.probe[:])
		total += int64(m)
		if limit > 0 && total > limit {
			return total, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
		}
		if err == io.EOF {
			e.ended = true
			break
		}
		if err != nil {
			return total, classify(err)
		}
	}
	return total, nil
}

// Reset restarts decompression on new input without giving up ownership.
func (l *Lease) Reset(in io.Reader) error {
	e, err := l.engine()
	if err != nil {
		return err
	}
	e.start(in)
	return nil
}

// Ended reports whether the stream end marker and checksum have been read.
func (l *Lease) Ended() bool { return l.e.gen == l.gen && l.e.ended }

// Consumed is the number of compressed bytes read since the last claim or
// reset.
func (l *Lease) Consumed() int64 {
	if l.e.gen != l.gen {
		return 0
	}
	return l.e.src.n
}

// Release returns ownership. It is safe to call more than once.
func (l *Lease) Release() {
	if l.released {
		return
	}
	l.released = true
	if l.e.gen == l.gen && l.e.owner == l.owner {
		l.e.owner = 0
	}
}
