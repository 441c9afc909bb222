// Package pngtest writes small PNG streams for tests. It is not an encoder:
// it writes exactly the chunks it is told to, valid or not.
package pngtest

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/jpfielding/png.go/pkg/png/scanline"
	"github.com/klauspost/compress/zlib"
)

var signature = []byte{137, 'P', 'N', 'G', '\r', '\n', 26, '\n'}

// Stream accumulates a PNG byte stream.
type Stream struct {
	buf bytes.Buffer
}

// New starts a stream with the PNG signature.
func New() *Stream {
	s := &Stream{}
	s.buf.Write(signature)
	return s
}

// Raw appends bytes as they are.
func (s *Stream) Raw(b []byte) *Stream {
	s.buf.Write(b)
	return s
}

// Chunk appends a chunk with a correct length and CRC.
func (s *Stream) Chunk(typ string, data []byte) *Stream {
	s.buf.Write(Chunk(typ, data))
	return s
}

// BadCRC appends a chunk whose CRC is off by one.
func (s *Stream) BadCRC(typ string, data []byte) *Stream {
	c := Chunk(typ, data)
	c[len(c)-1]++
	s.buf.Write(c)
	return s
}

// IHDR appends a header chunk.
func (s *Stream) IHDR(width, height uint32, depth, colorType, interlace uint8) *Stream {
	return s.Chunk("IHDR", IHDR(width, height, depth, colorType, interlace))
}

// IDAT appends the compressed image data split into chunks of at most
// split bytes, or one chunk when split is 0.
func (s *Stream) IDAT(compressed []byte, split int) *Stream {
	if split <= 0 || split >= len(compressed) {
		return s.Chunk("IDAT", compressed)
	}
	for len(compressed) > 0 {
		n := min(split, len(compressed))
		s.Chunk("IDAT", compressed[:n])
		compressed = compressed[n:]
	}
	return s
}

func (s *Stream) IEND() *Stream { return s.Chunk("IEND", nil) }

func (s *Stream) Bytes() []byte { return bytes.Clone(s.buf.Bytes()) }

// Chunk encodes one chunk.
func Chunk(typ string, data []byte) []byte {
	out := make([]byte, 8, 12+len(data))
	binary.BigEndian.PutUint32(out, uint32(len(data)))
	copy(out[4:8], typ)
	out = append(out, data...)
	return binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(out[4:]))
}

func IHDR(width, height uint32, depth, colorType, interlace uint8) []byte {
	b := make([]byte, 13)
	binary.BigEndian.PutUint32(b[0:], width)
	binary.BigEndian.PutUint32(b[4:], height)
	b[8], b[9], b[12] = depth, colorType, interlace
	return b
}

// Zlib compresses data into a zlib stream.
func Zlib(data []byte) []byte {
	var out bytes.Buffer
	zw := zlib.NewWriter(&out)
	if _, err := zw.Write(data); err != nil {
		panic(err)
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return out.Bytes()
}

// Filter turns unfiltered rows into the stored form, each row prefixed
// with its filter byte and filtered against the row above.
func Filter(rows [][]byte, pixelDepth int, ft scanline.FilterType) []byte {
	bpp := scanline.BytesPerPixel(pixelDepth)
	var out []byte
	var prev []byte
	for _, row := range rows {
		if prev == nil {
			prev = make([]byte, len(row))
		}
		dst := make([]byte, len(row))
		if err := scanline.Apply(ft, dst, row, prev, bpp); err != nil {
			panic(err)
		}
		out = append(out, byte(ft))
		out = append(out, dst...)
		prev = row
	}
	return out
}

// Interlace splits full image rows into the seven Adam7 passes and filters
// each pass on its own. Empty passes contribute nothing.
func Interlace(rows [][]byte, width, pixelDepth int, ft scanline.FilterType) []byte {
	var out []byte
	for p := range scanline.Passes {
		a := scanline.Adam7(p)
		cols := scanline.PassCols(p, width)
		if cols == 0 {
			continue
		}
		var pass [][]byte
		for y := a.YStart; y < len(rows); y += a.YInc {
			row := make([]byte, scanline.RowBytes(pixelDepth, cols))
			for i := range cols {
				SetPixel(row, i, pixelDepth, Pixel(rows[y], a.XStart+i*a.XInc, pixelDepth))
			}
			pass = append(pass, row)
		}
		out = append(out, Filter(pass, pixelDepth, ft)...)
	}
	return out
}

// Pixel returns the bytes of pixel x. Sub-byte pixels come back as a
// single right aligned byte.
func Pixel(row []byte, x, depth int) []byte {
	if depth >= 8 {
		n := depth / 8
		return row[x*n : x*n+n]
	}
	bit := x * depth
	return []byte{row[bit/8] >> (8 - depth - bit%8) & byte(1<<depth-1)}
}

// SetPixel stores v, as returned by Pixel, as pixel x.
func SetPixel(row []byte, x, depth int, v []byte) {
	if depth >= 8 {
		copy(row[x*depth/8:], v)
		return
	}
	bit := x * depth
	shift := 8 - depth - bit%8
	mask := byte(1<<depth-1) << shift
	row[bit/8] = row[bit/8]&^mask | v[0]<<shift&mask
}

// Image is a full PNG with the given rows compressed into a single IDAT.
func Image(width, height uint32, depth, colorType uint8, interlace bool, rows [][]byte, ft scanline.FilterType) []byte {
	pd := int(depth) * channels(colorType)
	var stored []byte
	var il uint8
	if interlace {
		il = 1
		stored = Interlace(rows, int(width), pd, ft)
	} else {
		stored = Filter(rows, pd, ft)
	}
	s := New().IHDR(width, height, depth, colorType, il)
	if colorType == 3 {
		s.Chunk("PLTE", Palette(1<<depth))
	}
	return s.IDAT(Zlib(stored), 0).IEND().Bytes()
}

// Palette returns n gray entries.
func Palette(n int) []byte {
	b := make([]byte, 3*n)
	for i := range n {
		v := byte(i * 255 / max(n-1, 1))
		b[3*i], b[3*i+1], b[3*i+2] = v, v, v
	}
	return b
}

func channels(colorType uint8) int {
	switch colorType {
	case 2:
		return 3
	case 4:
		return 2
	case 6:
		return 4
	}
	return 1
}

// Offset returns the position of the first chunk of type typ in a stream,
// pointing at its length field, or -1.
func Offset(stream []byte, typ string) int {
	for o := len(signature); o+8 <= len(stream); {
		n := int(binary.BigEndian.Uint32(stream[o:]))
		if string(stream[o+4:o+8]) == typ {
			return o
		}
		o += 12 + n
	}
	return -1
}
