package scanline

// Passes is the number of Adam7 passes.
const Passes = 7

// Pass geometry: pixel (x, y) belongs to pass p when
// x = XStart + i*XInc and y = YStart + j*YInc.
type Pass struct {
	XStart, XInc int
	YStart, YInc int
}

var adam7 = [Passes]Pass{
	{0, 8, 0, 8},
	{4, 8, 0, 8},
	{0, 4, 4, 8},
	{2, 4, 0, 4},
	{0, 2, 2, 4},
	{1, 2, 0, 2},
	{0, 1, 1, 2},
}

// Adam7 returns the geometry of pass p.
func Adam7(p int) Pass { return adam7[p] }

// PassCols is the number of pixels in each row of pass p.
func PassCols(p, width int) int {
	a := adam7[p]
	if width <= a.XStart {
		return 0
	}
	return (width + a.XInc - 1 - a.XStart) / a.XInc
}

// PassRows is the number of rows in pass p.
func PassRows(p, height int) int {
	a := adam7[p]
	if height <= a.YStart {
		return 0
	}
	return (height + a.YInc - 1 - a.YStart) / a.YInc
}

// blockHeight is the number of destination rows a row of pass p stands in
// for in display mode until later passes refine them.
var blockHeight = [Passes]int{8, 8, 4, 4, 2, 2, 1}

// RowBytes is the packed size of width pixels of pixelDepth bits.
func RowBytes(pixelDepth, width int) int {
	if pixelDepth >= 8 {
		return width * (pixelDepth >> 3)
	}
	return (width*pixelDepth + 7) >> 3
}
