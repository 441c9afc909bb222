package scanline

// Reconstructor walks the rows of an image in stream order, passes first
// for interlaced images, and reverses each row's filter against the
// previous row of the same pass.
//
// For each row the caller fills Buffer with the stored row (filter byte
// first), calls Unfilter, consumes Row and then calls Advance.
type Reconstructor struct {
	width, height int
	pixelDepth    int
	bpp           int
	interlaced    bool

	pass      int
	row       int
	numRows   int
	passWidth int
	done      bool

	cur, prev []byte
}

// NewReconstructor sizes the row buffers for the full image width.
func NewReconstructor(width, height, pixelDepth int, interlaced bool) *Reconstructor {
	size := 1 + RowBytes(pixelDepth, width)
	r := &Reconstructor{
		width:      width,
		height:     height,
		pixelDepth: pixelDepth,
		bpp:        BytesPerPixel(pixelDepth),
		interlaced: interlaced,
		cur:        make([]byte, size),
		prev:       make([]byte, size),
	}
	if !interlaced {
		r.numRows, r.passWidth = height, width
		r.done = width == 0 || height == 0
		return r
	}
	r.pass = -1
	r.nextPass()
	return r
}

func (r *Reconstructor) nextPass() {
	for {
		r.pass++
		if r.pass >= Passes {
			r.done = true
			return
		}
		w, h := PassCols(r.pass, r.width), PassRows(r.pass, r.height)
		if w > 0 && h > 0 {
			r.row, r.numRows, r.passWidth = 0, h, w
			clear(r.prev)
			return
		}
	}
}

// Done reports whether every row has been consumed.
func (r *Reconstructor) Done() bool { return r.done }

func (r *Reconstructor) Pass() int { return r.pass }

func (r *Reconstructor) Interlaced() bool { return r.interlaced }

// PassRow is the index of the current row within its pass.
func (r *Reconstructor) PassRow() int { return r.row }

// PassWidth is the number of pixels in the current row.
func (r *Reconstructor) PassWidth() int { return r.passWidth }

// Y is the destination row of the current row.
func (r *Reconstructor) Y() int {
	if !r.interlaced {
		return r.row
	}
	a := adam7[r.pass]
	return a.YStart + r.row*a.YInc
}

func (r *Reconstructor) rowBytes() int { return RowBytes(r.pixelDepth, r.passWidth) }

// Buffer is where the stored row, filter byte included, is written.
func (r *Reconstructor) Buffer() []byte { return r.cur[:1+r.rowBytes()] }

// Unfilter reverses the filter of the row in Buffer.
func (r *Reconstructor) Unfilter() error {
	n := 1 + r.rowBytes()
	return Reverse(FilterType(r.cur[0]), r.cur[1:n], r.prev[1:n], r.bpp)
}

// Row is the reconstructed current row without its filter byte. It is
// valid until Advance.
func (r *Reconstructor) Row() []byte { return r.cur[1 : 1+r.rowBytes()] }

// Advance moves to the next row, and to the next non-empty pass when the
// current one is finished.
func (r *Reconstructor) Advance() {
	if r.done {
		return
	}
	r.cur, r.prev = r.prev, r.cur
	r.row++
	if r.row < r.numRows {
		return
	}
	if r.interlaced {
		r.nextPass()
		return
	}
	r.done = true
}
