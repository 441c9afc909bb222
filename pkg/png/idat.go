package png

import (
	"fmt"

	"github.com/jpfielding/png.go/pkg/png/chunk"
)

const idatBlock = 8192

// idatReader presents the payloads of consecutive IDAT chunks as one
// stream, checking each chunk's CRC as it is crossed. It reads the next
// chunk header itself and fails on anything that is not IDAT.
type idatReader struct {
	d         *Decoder
	remaining uint32 // unread payload bytes of the current chunk
	open      bool   // the current chunk's CRC has not been checked
	buf       []byte
	pos       int
}

func (r *idatReader) start(length uint32) {
	r.remaining, r.open = length, true
	r.buf, r.pos = nil, 0
}

func (r *idatReader) fill() error {
	d := r.d
	for r.remaining == 0 {
		if r.open {
			r.open = false
			if _, err := d.crcFinish(0); err != nil {
				return err
			}
		}
		h, err := d.readHeader()
		if err != nil {
			return err
		}
		if h.Type != chunk.IDAT {
			return fmt.Errorf("%w: found %s", ErrImageData, h.Type)
		}
		r.remaining, r.open = h.Length, true
	}
	n := min(r.remaining, idatBlock)
	if d.opts.ChunkMax > 0 {
		n = min(n, uint32(min(d.opts.ChunkMax, idatBlock)))
	}
	buf, err := d.readBuffer(n)
	if err != nil {
		return err
	}
	if err := d.crcRead(buf); err != nil {
		return err
	}
	r.remaining -= n
	r.buf, r.pos = buf, 0
	return nil
}

func (r *idatReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.buf) {
		if err := r.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(p, r.buf[r.pos:])
	r.pos += n
	return n, nil
}

func (r *idatReader) ReadByte() (byte, error) {
	if r.pos >= len(r.buf) {
		if err := r.fill(); err != nil {
			return 0, err
		}
	}
	c := r.buf[r.pos]
	r.pos++
	return c, nil
}

// leftover reports compressed bytes after the end of the zlib stream.
func (r *idatReader) leftover() bool {
	return r.pos < len(r.buf) || r.remaining > 0
}

// finish skips what is left of the current chunk and checks its CRC.
func (r *idatReader) finish() error {
	if !r.open {
		return nil
	}
	r.open = false
	n := r.remaining
	r.remaining, r.buf, r.pos = 0, nil, 0
	_, err := r.d.crcFinish(n)
	return err
}
