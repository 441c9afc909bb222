package png

import (
	"fmt"
	"image"
	"image/color"
	"io"
)

// Image is a fully decoded stream: metadata, unfiltered and deinterlaced
// rows in stream sample format, and the recoverable problems met.
type Image struct {
	Info     *Info
	Pix      []byte
	Stride   int
	Warnings Diagnostics
}

// Decode reads a whole PNG stream through IEND.
func Decode(r io.Reader, opts *Options) (*Image, error) {
	o := opts.normalize()
	o.RawPasses = false
	o.Display = false
	d := NewDecoder(r, o)
	defer d.Close()

	info, err := d.ReadInfo()
	if err != nil {
		return nil, err
	}
	size, err := d.frameSize()
	if err != nil {
		return nil, d.fail(err)
	}
	img := &Image{Info: info, Pix: make([]byte, size), Stride: info.RowBytes()}
	err = d.ReadRows(func(row []byte, _, y int) error {
		copy(img.Pix[y*img.Stride:], row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := d.ReadEnd(); err != nil {
		return nil, err
	}
	img.Warnings = d.Warnings()
	return img, nil
}

// Row returns image row y.
func (m *Image) Row(y int) []byte { return m.Pix[y*m.Stride : (y+1)*m.Stride] }

func (m *Image) sample(row []byte, i int) uint16 {
	switch depth := int(m.Info.BitDepth); depth {
	case 16:
		return uint16(row[2*i])<<8 | uint16(row[2*i+1])
	case 8:
		return uint16(row[i])
	default:
		bit := i * depth
		return uint16(row[bit>>3]>>(8-depth-bit&7)) & (1<<depth - 1)
	}
}

// scale8 widens a sample of fewer than 8 bits to the full 8 bit range.
func scale8(v uint16, depth uint8) uint8 {
	if depth >= 8 {
		return uint8(v)
	}
	return uint8(uint32(v) * 255 / (1<<depth - 1))
}

// ToImage converts the decoded samples into the standard image model.
// Palette images become image.Paletted with tRNS alpha folded into the
// palette; a gray or RGB tRNS key turns into an alpha channel.
func (m *Image) ToImage() (image.Image, error) {
	info := m.Info
	w, h := int(info.Width), int(info.Height)
	rect := image.Rect(0, 0, w, h)
	trns := info.Transparency
	deep := info.BitDepth == 16

	switch info.ColorType {
	case ColorPalette:
		pal := make(color.Palette, len(info.Palette))
		for i, c := range info.Palette {
			a := uint8(0xff)
			if trns != nil && i < len(trns.Alpha) {
				a = trns.Alpha[i]
			}
			pal[i] = color.NRGBA{c.R, c.G, c.B, a}
		}
		out := image.NewPaletted(rect, pal)
		for y := range h {
			row := m.Row(y)
			for x := range w {
				idx := m.sample(row, x)
				if int(idx) >= len(pal) {
					return nil, FormatError(fmt.Sprintf("palette index %d out of range at (%d,%d)", idx, x, y))
				}
				out.Pix[y*out.Stride+x] = uint8(idx)
			}
		}
		return out, nil

	case ColorGray:
		switch {
		case trns == nil && deep:
			out := image.NewGray16(rect)
			for y := range h {
				copy(out.Pix[y*out.Stride:], m.Row(y))
			}
			return out, nil
		case trns == nil:
			out := image.NewGray(rect)
			for y := range h {
				row := m.Row(y)
				for x := range w {
					out.Pix[y*out.Stride+x] = scale8(m.sample(row, x), info.BitDepth)
				}
			}
			return out, nil
		}
		return m.keyed(rect, func(row []byte, x int) ([3]uint16, bool) {
			v := m.sample(row, x)
			return [3]uint16{v, v, v}, v == trns.Gray
		}), nil

	case ColorRGB:
		return m.keyed(rect, func(row []byte, x int) ([3]uint16, bool) {
			c := [3]uint16{m.sample(row, 3*x), m.sample(row, 3*x+1), m.sample(row, 3*x+2)}
			return c, trns != nil && c == trns.RGB
		}), nil

	case ColorGrayAlpha:
		if deep {
			out := image.NewNRGBA64(rect)
			for y := range h {
				row := m.Row(y)
				for x := range w {
					o := y*out.Stride + 8*x
					for i := 0; i < 6; i += 2 {
						copy(out.Pix[o+i:o+i+2], row[4*x:4*x+2])
					}
					copy(out.Pix[o+6:o+8], row[4*x+2:4*x+4])
				}
			}
			return out, nil
		}
		out := image.NewNRGBA(rect)
		for y := range h {
			row := m.Row(y)
			for x := range w {
				o := y*out.Stride + 4*x
				g := row[2*x]
				out.Pix[o], out.Pix[o+1], out.Pix[o+2], out.Pix[o+3] = g, g, g, row[2*x+1]
			}
		}
		return out, nil

	case ColorRGBA:
		if deep {
			out := image.NewNRGBA64(rect)
			for y := range h {
				copy(out.Pix[y*out.Stride:], m.Row(y))
			}
			return out, nil
		}
		out := image.NewNRGBA(rect)
		for y := range h {
			copy(out.Pix[y*out.Stride:], m.Row(y))
		}
		return out, nil
	}
	return nil, UnsupportedError(fmt.Sprintf("color type %d", info.ColorType))
}

// keyed builds an NRGBA image, 16 bit for 16 bit samples, from a pixel
// function returning raw samples and whether the pixel matches the tRNS
// key.
func (m *Image) keyed(rect image.Rectangle, px func(row []byte, x int) ([3]uint16, bool)) image.Image {
	w, h := rect.Dx(), rect.Dy()
	if m.Info.BitDepth == 16 {
		out := image.NewNRGBA64(rect)
		for y := range h {
			row := m.Row(y)
			for x := range w {
				c, key := px(row, x)
				a := uint16(0xffff)
				if key {
					a = 0
				}
				out.SetNRGBA64(x, y, color.NRGBA64{c[0], c[1], c[2], a})
			}
		}
		return out
	}
	out := image.NewNRGBA(rect)
	for y := range h {
		row := m.Row(y)
		for x := range w {
			c, key := px(row, x)
			a := uint8(0xff)
			if key {
				a = 0
			}
			d := m.Info.BitDepth
			out.SetNRGBA(x, y, color.NRGBA{scale8(c[0], d), scale8(c[1], d), scale8(c[2], d), a})
		}
	}
	return out
}
