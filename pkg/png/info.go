package png

import (
	"fmt"
	"time"

	"github.com/jpfielding/png.go/pkg/png/chunk"
	"github.com/jpfielding/png.go/pkg/png/scanline"
)

const maxDimension = 1<<31 - 1

// ColorType is the IHDR colour type byte.
type ColorType uint8

const (
	ColorGray      ColorType = 0
	ColorRGB       ColorType = 2
	ColorPalette   ColorType = 3
	ColorGrayAlpha ColorType = 4
	ColorRGBA      ColorType = 6
)

func (c ColorType) String() string {
	switch c {
	case ColorGray:
		return "gray"
	case ColorRGB:
		return "rgb"
	case ColorPalette:
		return "palette"
	case ColorGrayAlpha:
		return "gray+alpha"
	case ColorRGBA:
		return "rgba"
	default:
		return fmt.Sprintf("ColorType(%d)", uint8(c))
	}
}

// Channels is the number of samples per pixel.
func (c ColorType) Channels() int {
	switch c {
	case ColorRGB:
		return 3
	case ColorGrayAlpha:
		return 2
	case ColorRGBA:
		return 4
	default:
		return 1
	}
}

// Header holds the IHDR fields.
type Header struct {
	Width       uint32    `json:"width"`
	Height      uint32    `json:"height"`
	BitDepth    uint8     `json:"bitDepth"`
	ColorType   ColorType `json:"colorType"`
	Compression uint8     `json:"compression"`
	Filter      uint8     `json:"filter"`
	Interlace   uint8     `json:"interlace"`
}

func (h Header) Interlaced() bool { return h.Interlace == 1 }

// PixelDepth is the number of bits per pixel.
func (h Header) PixelDepth() int { return int(h.BitDepth) * h.ColorType.Channels() }

// RowBytes is the size of one unfiltered image row.
func (h Header) RowBytes() int { return scanline.RowBytes(h.PixelDepth(), int(h.Width)) }

type RGB struct{ R, G, B uint8 }

// Transparency is the tRNS chunk: per entry alpha for palette images or
// a single transparent sample value otherwise.
type Transparency struct {
	Alpha []uint8   `json:"alpha,omitempty"`
	Gray  uint16    `json:"gray,omitempty"`
	RGB   [3]uint16 `json:"rgb,omitempty"`
}

// Background is the bKGD chunk, interpreted per colour type.
type Background struct {
	Index uint8     `json:"index,omitempty"`
	Gray  uint16    `json:"gray,omitempty"`
	RGB   [3]uint16 `json:"rgb,omitempty"`
}

// Chromaticities are the cHRM values scaled by 100000.
type Chromaticities struct {
	WhiteX, WhiteY uint32
	RedX, RedY     uint32
	GreenX, GreenY uint32
	BlueX, BlueY   uint32
}

type PhysicalDims struct {
	X, Y uint32
	Unit uint8 // 1 = metre
}

type Offset struct {
	X, Y int32
	Unit uint8 // 0 = pixel, 1 = micrometre
}

// ModTime is the raw tIME chunk.
type ModTime struct {
	Year                             uint16
	Month, Day, Hour, Minute, Second uint8
}

func (m ModTime) Time() time.Time {
	return time.Date(int(m.Year), time.Month(m.Month), int(m.Day), int(m.Hour), int(m.Minute), int(m.Second), 0, time.UTC)
}

// CICP holds coding-independent code points.
type CICP struct {
	ColourPrimaries, TransferFunction, MatrixCoefficients, VideoFullRange uint8
}

// ContentLight is the cLLI chunk in units of 0.0001 cd/m².
type ContentLight struct {
	MaxCLL, MaxFALL uint32
}

// MasteringDisplay is the mDCV chunk.
type MasteringDisplay struct {
	Primaries    [3][2]uint16
	WhitePoint   [2]uint16
	MaxLuminance uint32
	MinLuminance uint32
}

type ICCProfile struct {
	Name    string
	Profile []byte
}

// TextCompression records which chunk a Text came from.
type TextCompression int

const (
	TextPlain TextCompression = iota // tEXt
	TextZ                            // zTXt
	TextInternational                // iTXt, uncompressed
	TextInternationalZ               // iTXt, compressed
)

type Text struct {
	Keyword     string
	Text        string
	Language    string `json:",omitempty"`
	Translated  string `json:",omitempty"`
	Compression TextCompression
}

// UnknownChunk is a chunk the decoder did not interpret.
type UnknownChunk struct {
	Type     chunk.Type
	Data     []byte
	Location Mode // decoder milestones reached when it was read
}

// Info is everything read from the stream apart from pixels.
type Info struct {
	Header

	Palette         []RGB             `json:",omitempty"`
	Transparency    *Transparency     `json:",omitempty"`
	Gamma           uint32            `json:",omitempty"` // scaled by 100000
	SRGBIntent      *uint8            `json:",omitempty"`
	Chroma          *Chromaticities   `json:",omitempty"`
	SignificantBits []uint8           `json:",omitempty"`
	Background      *Background       `json:",omitempty"`
	Histogram       []uint16          `json:",omitempty"`
	Phys            *PhysicalDims     `json:",omitempty"`
	Offset          *Offset           `json:",omitempty"`
	ModTime         *ModTime          `json:",omitempty"`
	ICC             *ICCProfile       `json:",omitempty"`
	CICP            *CICP             `json:",omitempty"`
	ContentLight    *ContentLight     `json:",omitempty"`
	Mastering       *MasteringDisplay `json:",omitempty"`
	Exif            []byte            `json:",omitempty"`
	Text            []Text            `json:",omitempty"`
	Unknown         []UnknownChunk    `json:",omitempty"`
}
