package scanline

// BlockHeight is the number of destination rows, starting at its own, that
// a row of pass p is replicated into in display mode.
func BlockHeight(p int) int { return blockHeight[p] }

// blockWidth is the number of destination pixels, starting at its own,
// that a pixel of an odd pass covers in display mode.
func blockWidth(p int) int { return 1 << ((6 - p) >> 1) }

// supplies reports whether pixel x of an 8 pixel group is written by pass
// p. Final mode writes only the pixels the pass owns; display mode also
// writes the block each pixel stands in for.
func supplies(p, x int, display bool) bool {
	a := adam7[p]
	if x < a.XStart {
		return false
	}
	span := 1
	if display {
		span = blockWidth(p)
	}
	return (x-a.XStart)%a.XInc < span
}

// rowMasks[d][p][m] is the byte mask, packed four bytes to a uint32 with
// the first byte lowest, for pixel depth 1<<d (1, 2, 4), pass p and mode m
// (0 final, 1 display). The pattern repeats every 8 pixels.
var rowMasks = func() (m [3][Passes][2]uint32) {
	for d := range 3 {
		depth := 1 << d
		for p := range Passes {
			for mode := range 2 {
				var mask uint32
				for x := range 8 {
					if supplies(p, x, mode == 1) {
						mask |= uint32(1<<depth-1) << ((x * depth) ^ (8 - depth))
					}
				}
				switch depth {
				case 1:
					mask *= 0x01010101
				case 2:
					mask *= 0x00010001
				}
				m[d][p][mode] = mask
			}
		}
	}
	return
}()

func depthIndex(pixelDepth int) int {
	switch pixelDepth {
	case 1:
		return 0
	case 2:
		return 1
	default:
		return 2
	}
}

// CombineRow merges src, a row of pass p already expanded by ExpandRow to
// full image width, into the destination row dst. Pixels outside the
// pass are left alone, as are bits of the last byte beyond width pixels.
// Non-interlaced rows and pass 6 are copied whole, as are even passes in
// display mode.
func CombineRow(dst, src []byte, width, pixelDepth, p int, display, interlaced bool) {
	n := RowBytes(pixelDepth, width)
	if n == 0 {
		return
	}
	var endByte, endMask byte
	if bits := (pixelDepth * width) & 7; bits != 0 {
		endByte = dst[n-1]
		endMask = 0xff >> bits
	}

	switch {
	case !interlaced || p >= Passes-1 || (display && p&1 == 0):
		copy(dst[:n], src[:n])
	case pixelDepth < 8:
		combinePacked(dst, src, width, pixelDepth, p, display)
	default:
		a := adam7[p]
		bpp := pixelDepth >> 3
		span := bpp
		if display {
			span = blockWidth(p) * bpp
		}
		for o := a.XStart * bpp; o < n; o += a.XInc * bpp {
			e := min(o+span, n)
			copy(dst[o:e], src[o:e])
		}
	}

	if endMask != 0 {
		dst[n-1] = endByte&endMask | dst[n-1]&^endMask
	}
}

func combinePacked(dst, src []byte, width, pixelDepth, p int, display bool) {
	if width <= adam7[p].XStart {
		return
	}
	mode := 0
	if display {
		mode = 1
	}
	mask := rowMasks[depthIndex(pixelDepth)][p][mode]
	perByte := 8 / pixelDepth
	for i := 0; ; i++ {
		m := byte(mask)
		mask = mask>>8 | mask<<24
		if m != 0 {
			dst[i] = dst[i]&^m | src[i]&m
		}
		if width <= perByte {
			break
		}
		width -= perByte
	}
}

// ExpandRow widens src, holding passWidth pixels of pass p, into dst by
// repeating each pixel XInc times. dst must hold RowBytes(pixelDepth,
// passWidth*XInc) bytes.
func ExpandRow(dst, src []byte, passWidth, pixelDepth, p int) {
	inc := adam7[p].XInc
	if pixelDepth >= 8 {
		bpp := pixelDepth >> 3
		o := 0
		for i := range passWidth {
			px := src[i*bpp : i*bpp+bpp]
			for range inc {
				copy(dst[o:o+bpp], px)
				o += bpp
			}
		}
		return
	}
	clear(dst[:RowBytes(pixelDepth, passWidth*inc)])
	for i := range passWidth {
		v := packed(src, i, pixelDepth)
		for j := range inc {
			setPacked(dst, i*inc+j, pixelDepth, v)
		}
	}
}

// packed returns pixel i of a row of sub-byte pixels, most significant
// bits first.
func packed(row []byte, i, depth int) byte {
	bit := i * depth
	shift := 8 - depth - bit&7
	return row[bit>>3] >> shift & byte(1<<depth-1)
}

func setPacked(row []byte, i, depth int, v byte) {
	bit := i * depth
	shift := 8 - depth - bit&7
	row[bit>>3] |= v << shift
}
