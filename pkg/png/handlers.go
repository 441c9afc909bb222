package png

import (
	"encoding/binary"
	"fmt"

	"github.com/jpfielding/png.go/pkg/png/chunk"
)

var be = binary.BigEndian

const maxPalette = 256

// fixed reads a short, fixed size ancillary payload and checks its CRC.
// ok is false when the chunk must be dropped.
func (d *Decoder) fixed(buf []byte) (ok bool, err error) {
	if err := d.crcRead(buf); err != nil {
		return false, err
	}
	bad, err := d.crcFinish(0)
	return err == nil && !bad, err
}

// drop skips the payload and records msg.
func (d *Decoder) drop(length uint32, msg string) (Handled, error) {
	if _, err := d.crcFinish(length); err != nil {
		return HandledError, err
	}
	return HandledError, d.benign(msg)
}

func validDepth(c ColorType, depth uint8) bool {
	switch c {
	case ColorGray:
		return depth == 1 || depth == 2 || depth == 4 || depth == 8 || depth == 16
	case ColorPalette:
		return depth == 1 || depth == 2 || depth == 4 || depth == 8
	case ColorRGB, ColorGrayAlpha, ColorRGBA:
		return depth == 8 || depth == 16
	}
	return false
}

func (d *Decoder) checkHeader(h Header) error {
	bad := func(msg string) error { return &ChunkError{Type: chunk.IHDR, Msg: msg} }
	switch {
	case h.Width == 0 || h.Width > maxDimension:
		return bad(fmt.Sprintf("invalid image width %d", h.Width))
	case h.Height == 0 || h.Height > maxDimension:
		return bad(fmt.Sprintf("invalid image height %d", h.Height))
	case h.Width > d.opts.MaxWidth:
		return bad(fmt.Sprintf("image width %d exceeds user limit", h.Width))
	case h.Height > d.opts.MaxHeight:
		return bad(fmt.Sprintf("image height %d exceeds user limit", h.Height))
	case h.ColorType != ColorGray && h.ColorType != ColorRGB && h.ColorType != ColorPalette &&
		h.ColorType != ColorGrayAlpha && h.ColorType != ColorRGBA:
		return bad(fmt.Sprintf("invalid color type %d", h.ColorType))
	case !validDepth(h.ColorType, h.BitDepth):
		return bad(fmt.Sprintf("invalid bit depth %d for color type %d", h.BitDepth, h.ColorType))
	case h.Compression != 0:
		return bad("unknown compression method")
	case h.Filter != 0:
		return bad("unknown filter method")
	case h.Interlace > 1:
		return bad("unknown interlace method")
	}
	return nil
}

func handleIHDR(d *Decoder, _ uint32) (Handled, error) {
	var b [13]byte
	if err := d.crcRead(b[:]); err != nil {
		return HandledError, err
	}
	if _, err := d.crcFinish(0); err != nil {
		return HandledError, err
	}
	h := Header{
		Width:       be.Uint32(b[0:4]),
		Height:      be.Uint32(b[4:8]),
		BitDepth:    b[8],
		ColorType:   ColorType(b[9]),
		Compression: b[10],
		Filter:      b[11],
		Interlace:   b[12],
	}
	if err := d.checkHeader(h); err != nil {
		return HandledError, err
	}
	d.info.Header = h
	d.state.Mode |= HaveIHDR
	d.log.Debug("png: header", "width", h.Width, "height", h.Height, "depth", h.BitDepth, "color", h.ColorType.String(), "interlace", h.Interlace)
	return HandledOK, nil
}

// handlePLTE does its own ordering checks: a bad palette only stops the
// decode when the image needs it.
func handlePLTE(d *Decoder, length uint32) (Handled, error) {
	mode, ct := d.state.Mode, d.info.ColorType
	var errmsg string
	switch {
	case mode&HavePLTE != 0:
		errmsg = "duplicate"
	case mode&HaveIDAT != 0:
		errmsg = "out of place"
	case ct == ColorGray || ct == ColorGrayAlpha:
		errmsg = "ignored in grayscale PNG"
	case length > 3*maxPalette || length%3 != 0:
		errmsg = "invalid"
	case ct != ColorPalette && (d.state.Seen(chunk.TRNS) || d.state.Seen(chunk.BKGD)):
		errmsg = "out of place"
	}
	if errmsg != "" {
		if ct == ColorPalette {
			return HandledError, &ChunkError{Type: chunk.PLTE, Msg: errmsg}
		}
		if _, err := d.crcFinishAs(length, true); err != nil {
			return HandledError, err
		}
		return HandledError, d.benign(errmsg)
	}

	limit := uint32(maxPalette)
	if ct == ColorPalette {
		limit = 1 << d.info.BitDepth
	}
	num := min(length/3, limit)
	var buf [3 * maxPalette]byte
	if err := d.crcRead(buf[:3*num]); err != nil {
		return HandledError, err
	}
	if _, err := d.crcFinishAs(length-3*num, ct != ColorPalette); err != nil {
		return HandledError, err
	}
	pal := make([]RGB, num)
	for i := range pal {
		pal[i] = RGB{buf[3*i], buf[3*i+1], buf[3*i+2]}
	}
	d.info.Palette = pal
	d.state.Mode |= HavePLTE
	return HandledOK, nil
}

func handleIDAT(d *Decoder, length uint32) (Handled, error) {
	if d.info.ColorType == ColorPalette && d.state.Mode&HavePLTE == 0 {
		return HandledError, ErrMissingPLTE
	}
	d.state.Mode |= HaveIDAT
	d.idat.start(length)
	d.phase = phaseImage
	return HandledImageData, nil
}

func handleIEND(d *Decoder, length uint32) (Handled, error) {
	d.state.Mode |= AfterIDAT | HaveIEND
	if length != 0 {
		if err := d.benign("invalid"); err != nil {
			return HandledError, err
		}
	}
	if _, err := d.crcFinishAs(length, true); err != nil {
		return HandledError, err
	}
	d.phase = phaseDone
	return HandledOK, nil
}

func handleTRNS(d *Decoder, length uint32) (Handled, error) {
	var buf [maxPalette]byte
	var trns Transparency
	switch d.info.ColorType {
	case ColorGray:
		if length != 2 {
			return d.drop(length, "invalid")
		}
		if ok, err := d.fixed(buf[:2]); !ok {
			return HandledError, err
		}
		trns.Gray = be.Uint16(buf[:])
	case ColorRGB:
		if length != 6 {
			return d.drop(length, "invalid")
		}
		if ok, err := d.fixed(buf[:6]); !ok {
			return HandledError, err
		}
		trns.RGB = [3]uint16{be.Uint16(buf[0:]), be.Uint16(buf[2:]), be.Uint16(buf[4:])}
	case ColorPalette:
		if d.state.Mode&HavePLTE == 0 {
			return d.drop(length, "out of place")
		}
		if length == 0 || length > uint32(len(d.info.Palette)) || length > maxPalette {
			return d.drop(length, "invalid")
		}
		if ok, err := d.fixed(buf[:length]); !ok {
			return HandledError, err
		}
		trns.Alpha = append([]uint8(nil), buf[:length]...)
	default:
		return d.drop(length, "invalid with alpha channel")
	}
	d.info.Transparency = &trns
	return HandledOK, nil
}

func handleBKGD(d *Decoder, length uint32) (Handled, error) {
	var buf [6]byte
	var bg Background
	switch d.info.ColorType {
	case ColorPalette:
		if d.state.Mode&HavePLTE == 0 {
			return d.drop(length, "out of place")
		}
		if length != 1 {
			return d.drop(length, "invalid")
		}
		if ok, err := d.fixed(buf[:1]); !ok {
			return HandledError, err
		}
		if int(buf[0]) >= len(d.info.Palette) {
			return HandledError, d.benign("invalid index")
		}
		bg.Index = buf[0]
	case ColorGray, ColorGrayAlpha:
		if length != 2 {
			return d.drop(length, "invalid")
		}
		if ok, err := d.fixed(buf[:2]); !ok {
			return HandledError, err
		}
		bg.Gray = be.Uint16(buf[:])
		if d.info.BitDepth < 16 && bg.Gray>>d.info.BitDepth != 0 {
			return HandledError, d.benign("invalid gray level")
		}
	default:
		if length != 6 {
			return d.drop(length, "invalid")
		}
		if ok, err := d.fixed(buf[:6]); !ok {
			return HandledError, err
		}
		bg.RGB = [3]uint16{be.Uint16(buf[0:]), be.Uint16(buf[2:]), be.Uint16(buf[4:])}
		if d.info.BitDepth < 16 && (bg.RGB[0]|bg.RGB[1]|bg.RGB[2])>>d.info.BitDepth != 0 {
			return HandledError, d.benign("invalid color")
		}
	}
	d.info.Background = &bg
	return HandledOK, nil
}

func handleHIST(d *Decoder, length uint32) (Handled, error) {
	num := length / 2
	if length != 2*num || int(num) != len(d.info.Palette) || num > maxPalette {
		return d.drop(length, "invalid")
	}
	var buf [2 * maxPalette]byte
	if ok, err := d.fixed(buf[:length]); !ok {
		return HandledError, err
	}
	hist := make([]uint16, num)
	for i := range hist {
		hist[i] = be.Uint16(buf[2*i:])
	}
	d.info.Histogram = hist
	return HandledOK, nil
}

func handleGAMA(d *Decoder, _ uint32) (Handled, error) {
	var buf [4]byte
	if ok, err := d.fixed(buf[:]); !ok {
		return HandledError, err
	}
	g := be.Uint32(buf[:])
	if g > maxDimension {
		return HandledError, d.benign("invalid")
	}
	d.info.Gamma = g
	return HandledOK, nil
}

func handleSRGB(d *Decoder, _ uint32) (Handled, error) {
	var buf [1]byte
	if ok, err := d.fixed(buf[:]); !ok {
		return HandledError, err
	}
	if buf[0] > 3 {
		return HandledError, d.benign("invalid")
	}
	intent := buf[0]
	d.info.SRGBIntent = &intent
	return HandledOK, nil
}

func handleCHRM(d *Decoder, _ uint32) (Handled, error) {
	var buf [32]byte
	if ok, err := d.fixed(buf[:]); !ok {
		return HandledError, err
	}
	var v [8]uint32
	for i := range v {
		v[i] = be.Uint32(buf[4*i:])
		if v[i] > maxDimension {
			return HandledError, d.benign("invalid")
		}
	}
	d.info.Chroma = &Chromaticities{
		WhiteX: v[0], WhiteY: v[1],
		RedX: v[2], RedY: v[3],
		GreenX: v[4], GreenY: v[5],
		BlueX: v[6], BlueY: v[7],
	}
	return HandledOK, nil
}

func handleSBIT(d *Decoder, length uint32) (Handled, error) {
	want, depth := uint32(d.info.ColorType.Channels()), d.info.BitDepth
	if d.info.ColorType == ColorPalette {
		want, depth = 3, 8
	}
	if length != want {
		return d.drop(length, "bad length")
	}
	buf := make([]byte, want)
	if ok, err := d.fixed(buf); !ok {
		return HandledError, err
	}
	for _, b := range buf {
		if b == 0 || b > depth {
			return HandledError, d.benign("invalid")
		}
	}
	d.info.SignificantBits = buf
	return HandledOK, nil
}

func handleCICP(d *Decoder, _ uint32) (Handled, error) {
	var buf [4]byte
	if ok, err := d.fixed(buf[:]); !ok {
		return HandledError, err
	}
	if buf[2] != 0 || buf[3] > 1 {
		return HandledError, d.benign("invalid")
	}
	d.info.CICP = &CICP{buf[0], buf[1], buf[2], buf[3]}
	return HandledOK, nil
}

func handleCLLI(d *Decoder, _ uint32) (Handled, error) {
	var buf [8]byte
	if ok, err := d.fixed(buf[:]); !ok {
		return HandledError, err
	}
	cl := ContentLight{MaxCLL: be.Uint32(buf[0:]), MaxFALL: be.Uint32(buf[4:])}
	if cl.MaxCLL > maxDimension || cl.MaxFALL > maxDimension {
		return HandledError, d.benign("invalid")
	}
	d.info.ContentLight = &cl
	return HandledOK, nil
}

func handleMDCV(d *Decoder, _ uint32) (Handled, error) {
	var buf [24]byte
	if ok, err := d.fixed(buf[:]); !ok {
		return HandledError, err
	}
	var md MasteringDisplay
	for i := range 3 {
		md.Primaries[i] = [2]uint16{be.Uint16(buf[4*i:]), be.Uint16(buf[4*i+2:])}
	}
	md.WhitePoint = [2]uint16{be.Uint16(buf[12:]), be.Uint16(buf[14:])}
	md.MaxLuminance = be.Uint32(buf[16:])
	md.MinLuminance = be.Uint32(buf[20:])
	if md.MaxLuminance > maxDimension || md.MinLuminance > maxDimension {
		return HandledError, d.benign("invalid")
	}
	d.info.Mastering = &md
	return HandledOK, nil
}

func handleEXIF(d *Decoder, length uint32) (Handled, error) {
	buf, ok, err := d.payload(length)
	if !ok {
		return HandledError, err
	}
	if buf[0] != buf[1] || (buf[0] != 'M' && buf[0] != 'I') {
		return HandledError, d.benign("invalid")
	}
	d.info.Exif = append([]byte(nil), buf...)
	return HandledOK, nil
}

func handlePHYS(d *Decoder, _ uint32) (Handled, error) {
	var buf [9]byte
	if ok, err := d.fixed(buf[:]); !ok {
		return HandledError, err
	}
	d.info.Phys = &PhysicalDims{X: be.Uint32(buf[0:]), Y: be.Uint32(buf[4:]), Unit: buf[8]}
	return HandledOK, nil
}

func handleOFFS(d *Decoder, _ uint32) (Handled, error) {
	var buf [9]byte
	if ok, err := d.fixed(buf[:]); !ok {
		return HandledError, err
	}
	d.info.Offset = &Offset{X: int32(be.Uint32(buf[0:])), Y: int32(be.Uint32(buf[4:])), Unit: buf[8]}
	return HandledOK, nil
}

func handleTIME(d *Decoder, _ uint32) (Handled, error) {
	var buf [7]byte
	if ok, err := d.fixed(buf[:]); !ok {
		return HandledError, err
	}
	t := ModTime{
		Year:   be.Uint16(buf[0:]),
		Month:  buf[2],
		Day:    buf[3],
		Hour:   buf[4],
		Minute: buf[5],
		Second: buf[6],
	}
	if t.Month == 0 || t.Month > 12 || t.Day == 0 || t.Day > 31 || t.Hour > 23 || t.Minute > 59 || t.Second > 60 {
		return HandledError, d.benign("invalid time value")
	}
	d.info.ModTime = &t
	return HandledOK, nil
}
