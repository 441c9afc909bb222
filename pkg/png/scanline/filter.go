// Package scanline turns decompressed PNG rows back into pixels: it
// reverses the per-row prediction filters and recombines the seven
// Adam7 passes of an interlaced image.
package scanline

import (
	"errors"
	"fmt"
)

// FilterType is the leading byte of every stored row.
type FilterType byte

const (
	FilterNone    FilterType = 0
	FilterSub     FilterType = 1
	FilterUp      FilterType = 2
	FilterAverage FilterType = 3
	FilterPaeth   FilterType = 4
)

// ErrFilter is returned for a filter byte outside 0..4.
var ErrFilter = errors.New("scanline: bad adaptive filter value")

func (f FilterType) String() string {
	switch f {
	case FilterNone:
		return "None"
	case FilterSub:
		return "Sub"
	case FilterUp:
		return "Up"
	case FilterAverage:
		return "Average"
	case FilterPaeth:
		return "Paeth"
	default:
		return fmt.Sprintf("Filter(%d)", byte(f))
	}
}

// BytesPerPixel is the filter distance for a pixel depth in bits, never
// less than one.
func BytesPerPixel(pixelDepth int) int {
	return (pixelDepth + 7) >> 3
}

// Reverse undoes filter ft on row in place. prev is the previous
// reconstructed row of the same pass, all zero for the first row; it must
// be at least as long as row.
func Reverse(ft FilterType, row, prev []byte, bpp int) error {
	prev = prev[:len(row)]
	switch ft {
	case FilterNone:
	case FilterSub:
		for i := bpp; i < len(row); i++ {
			row[i] += row[i-bpp]
		}
	case FilterUp:
		for i, p := range prev {
			row[i] += p
		}
	case FilterAverage:
		n := min(bpp, len(row))
		for i := range n {
			row[i] += prev[i] / 2
		}
		for i := n; i < len(row); i++ {
			row[i] += byte((int(row[i-bpp]) + int(prev[i])) / 2)
		}
	case FilterPaeth:
		if bpp == 1 {
			paeth1(row, prev)
		} else {
			paethN(row, prev, bpp)
		}
	default:
		return fmt.Errorf("%w: %d", ErrFilter, byte(ft))
	}
	return nil
}

// Apply writes the filtered form of raw into dst. It is the inverse of
// Reverse and is used to build test streams.
func Apply(ft FilterType, dst, raw, prev []byte, bpp int) error {
	dst = dst[:len(raw)]
	prev = prev[:len(raw)]
	left := func(i int) byte {
		if i < bpp {
			return 0
		}
		return raw[i-bpp]
	}
	upLeft := func(i int) byte {
		if i < bpp {
			return 0
		}
		return prev[i-bpp]
	}
	for i, x := range raw {
		switch ft {
		case FilterNone:
			dst[i] = x
		case FilterSub:
			dst[i] = x - left(i)
		case FilterUp:
			dst[i] = x - prev[i]
		case FilterAverage:
			dst[i] = x - byte((int(left(i))+int(prev[i]))/2)
		case FilterPaeth:
			dst[i] = x - predict(left(i), prev[i], upLeft(i))
		default:
			return fmt.Errorf("%w: %d", ErrFilter, byte(ft))
		}
	}
	return nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// predict is the Paeth predictor; ties go to a, then b, then c.
func predict(a, b, c byte) byte {
	p := int(b) - int(c)
	pc := int(a) - int(c)
	pa := abs(p)
	pb := abs(pc)
	pc = abs(p + pc)
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	default:
		return c
	}
}

// paeth1 carries the left and upper-left bytes in registers.
func paeth1(row, prev []byte) {
	var a, c byte
	for i, b := range prev {
		pa := abs(int(b) - int(c))
		pb := abs(int(a) - int(c))
		pc := abs(int(a) + int(b) - 2*int(c))
		if pb < pa {
			pa, a = pb, b
		}
		if pc < pa {
			a = c
		}
		a += row[i]
		row[i] = a
		c = b
	}
}

func paethN(row, prev []byte, bpp int) {
	n := min(bpp, len(row))
	for i := range n {
		row[i] += prev[i]
	}
	for i := n; i < len(row); i++ {
		row[i] += predict(row[i-bpp], prev[i], prev[i-bpp])
	}
}
