package png

import (
	"errors"
	"fmt"

	"github.com/jpfielding/png.go/pkg/compress/inflate"
	"github.com/jpfielding/png.go/pkg/png/chunk"
	"github.com/jpfielding/png.go/pkg/png/scanline"
)

// RowFunc receives reconstructed rows. For non-interlaced images pass is 0
// and y is the image row. Interlaced rows are combined into full width
// image rows, y being the image row; with Options.RawPasses the row is the
// pass row as decoded and y counts rows within the pass. row is only valid
// during the call.
type RowFunc func(row []byte, pass, y int) error

// frameSize is the memory needed for every row of the image.
func (d *Decoder) frameSize() (int64, error) {
	size := int64(d.info.RowBytes()) * int64(d.info.Height)
	if d.opts.ImageMax > 0 && size > d.opts.ImageMax {
		return size, fmt.Errorf("%w: %d bytes", ErrImageTooLarge, size)
	}
	return size, nil
}

// ReadRows decompresses the image data and hands each row to fn, which may
// be nil to skip the pixels. Metadata is read first when ReadInfo has not
// been called.
func (d *Decoder) ReadRows(fn RowFunc) error {
	if d.err != nil {
		return d.err
	}
	if d.phase < phaseImage {
		if _, err := d.ReadInfo(); err != nil {
			return err
		}
	}
	if d.phase != phaseImage {
		return fmt.Errorf("%w: image data already read", ErrPhase)
	}

	h := d.info.Header
	combine := fn != nil && h.Interlaced() && !d.opts.RawPasses
	if combine {
		if err := d.allocFrame(); err != nil {
			return d.fail(err)
		}
	}

	lease, err := d.engine.Claim(chunk.IDAT, &d.idat)
	if err != nil {
		return d.fail(err)
	}
	defer lease.Release()

	rec := scanline.NewReconstructor(int(h.Width), int(h.Height), h.PixelDepth(), h.Interlaced())
	for !rec.Done() {
		buf := rec.Buffer()
		n, err := lease.Inflate(buf, false)
		if err != nil {
			return d.fail(d.idatError(err))
		}
		if n < len(buf) {
			return d.fail(fmt.Errorf("%w: stream ended in row %d of pass %d", ErrImageData, rec.PassRow(), rec.Pass()))
		}
		if err := rec.Unfilter(); err != nil {
			return d.fail(&ChunkError{Type: chunk.IDAT, Msg: "bad adaptive filter value", Err: err})
		}
		if fn != nil {
			if err := d.deliver(rec, fn, combine); err != nil {
				return d.fail(err)
			}
		}
		rec.Advance()
	}
	return d.finishIDAT(lease)
}

func (d *Decoder) idatError(err error) error {
	if isInflateData(err) {
		return &ChunkError{Type: chunk.IDAT, Msg: "decompression error", Err: err}
	}
	return err
}

func (d *Decoder) allocFrame() error {
	if _, err := d.frameSize(); err != nil {
		return err
	}
	width, depth := int(d.info.Width), d.info.PixelDepth()
	n := d.info.RowBytes()
	d.frame = make([][]byte, d.info.Height)
	for y := range d.frame {
		d.frame[y] = make([]byte, n)
	}
	// expanded rows may run up to a full pixel group past the width
	d.expanded = make([]byte, scanline.RowBytes(depth, width+8))
	return nil
}

func (d *Decoder) deliver(rec *scanline.Reconstructor, fn RowFunc, combine bool) error {
	row, pass := rec.Row(), rec.Pass()
	switch {
	case !rec.Interlaced():
		return fn(row, 0, rec.Y())
	case !combine:
		return fn(row, pass, rec.PassRow())
	}

	width, depth := int(d.info.Width), d.info.PixelDepth()
	scanline.ExpandRow(d.expanded, row, rec.PassWidth(), depth, pass)
	y, rows := rec.Y(), 1
	if d.opts.Display {
		rows = scanline.BlockHeight(pass)
	}
	for i := y; i < min(y+rows, len(d.frame)); i++ {
		scanline.CombineRow(d.frame[i], d.expanded, width, depth, pass, d.opts.Display, true)
		if err := fn(d.frame[i], pass, i); err != nil {
			return err
		}
	}
	return nil
}

// finishIDAT reads the zlib stream to its end, skips any trailing
// compressed bytes and leaves the decoder reading the chunks after the
// image data.
func (d *Decoder) finishIDAT(lease *inflate.Lease) error {
	if !lease.Ended() {
		extra, err := lease.Discard(0)
		switch {
		case err != nil && isInflateData(err) && !errors.Is(err, ErrImageData):
			if err := d.benign("decompression error in trailing data"); err != nil {
				return d.fail(err)
			}
		case err != nil:
			return d.fail(d.idatError(err))
		case extra > 0:
			if err := d.benign("too much image data"); err != nil {
				return d.fail(err)
			}
		}
	}
	lease.Release()

	if d.idat.leftover() {
		if err := d.benign("extra compressed data"); err != nil {
			return d.fail(err)
		}
	}
	if err := d.idat.finish(); err != nil {
		return d.fail(err)
	}
	d.state.Mode |= AfterIDAT
	d.phase = phaseEnd
	d.frame, d.expanded = nil, nil
	return nil
}
