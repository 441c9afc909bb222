package png

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/jpfielding/png.go/pkg/png/chunk"
	"github.com/jpfielding/png.go/pkg/png/pngtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() *Options {
	o := DefaultOptions()
	o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return o
}

// gray1x1 is the compressed image data of a 1x1 8 bit gray image.
func gray1x1() []byte { return pngtest.Zlib([]byte{0, 0x80}) }

func u32(v uint32) []byte { return binary.BigEndian.AppendUint32(nil, v) }

func TestDecode_OnePixel(t *testing.T) {
	stream := pngtest.New().IHDR(1, 1, 8, 0, 0).IDAT(gray1x1(), 0).IEND().Bytes()
	img, err := Decode(bytes.NewReader(stream), quiet())
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80}, img.Pix)
	assert.Equal(t, 1, img.Stride)
	assert.Empty(t, img.Warnings)
	assert.Equal(t, uint32(1), img.Info.Width)
	assert.Equal(t, ColorGray, img.Info.ColorType)
}

func TestDecode_SubFilter(t *testing.T) {
	stored := []byte{1, 10, 5}
	stream := pngtest.New().IHDR(2, 1, 8, 0, 0).IDAT(pngtest.Zlib(stored), 0).IEND().Bytes()
	img, err := Decode(bytes.NewReader(stream), quiet())
	require.NoError(t, err)
	assert.Equal(t, []byte{10, 15}, img.Pix)
}

func TestDecode_Signature(t *testing.T) {
	stream := pngtest.New().IHDR(1, 1, 8, 0, 0).IDAT(gray1x1(), 0).IEND().Bytes()

	bad := bytes.Clone(stream)
	bad[0] = 'x'
	_, err := Decode(bytes.NewReader(bad), quiet())
	assert.ErrorIs(t, err, ErrSignature)

	ascii := bytes.Clone(stream)
	ascii[4] = '\n'
	_, err = Decode(bytes.NewReader(ascii), quiet())
	require.ErrorIs(t, err, ErrSignature)
	assert.Contains(t, err.Error(), "ASCII")

	_, err = Decode(bytes.NewReader(stream[:5]), quiet())
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDecode_MissingIHDR(t *testing.T) {
	stream := pngtest.New().Chunk("gAMA", u32(45455)).IEND().Bytes()
	_, err := Decode(bytes.NewReader(stream), quiet())
	assert.ErrorIs(t, err, ErrMissingIHDR)
}

func TestDecode_BadHeader(t *testing.T) {
	tests := []struct {
		name   string
		ihdr   []byte
		opts   func(*Options)
		errMsg string
	}{
		{name: "zero width", ihdr: pngtest.IHDR(0, 1, 8, 0, 0), errMsg: "width"},
		{name: "zero height", ihdr: pngtest.IHDR(1, 0, 8, 0, 0), errMsg: "height"},
		{name: "width over 2^31", ihdr: pngtest.IHDR(1<<31, 1, 8, 0, 0), errMsg: "width"},
		{name: "width over limit", ihdr: pngtest.IHDR(20, 1, 8, 0, 0), opts: func(o *Options) { o.MaxWidth = 10 }, errMsg: "user limit"},
		{name: "rgb depth 4", ihdr: pngtest.IHDR(1, 1, 4, 2, 0), errMsg: "bit depth"},
		{name: "palette depth 16", ihdr: pngtest.IHDR(1, 1, 16, 3, 0), errMsg: "bit depth"},
		{name: "color type 1", ihdr: pngtest.IHDR(1, 1, 8, 1, 0), errMsg: "color type"},
		{name: "interlace 2", ihdr: pngtest.IHDR(1, 1, 8, 0, 2), errMsg: "interlace"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := quiet()
			if tt.opts != nil {
				tt.opts(o)
			}
			stream := pngtest.New().Chunk("IHDR", tt.ihdr).IEND().Bytes()
			_, err := Decode(bytes.NewReader(stream), o)
			var ce *ChunkError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, chunk.IHDR, ce.Type)
			assert.Contains(t, ce.Msg, tt.errMsg)
		})
	}
}

func TestDecode_BadTypeTag(t *testing.T) {
	stream := pngtest.New().IHDR(1, 1, 8, 0, 0).Chunk("g@MA", u32(1)).IEND().Bytes()
	_, err := Decode(bytes.NewReader(stream), quiet())
	assert.ErrorIs(t, err, chunk.ErrTypeTag)
}

func TestDecode_Ordering(t *testing.T) {
	z := gray1x1()
	pal := pngtest.Palette(2)
	pz := pngtest.Zlib([]byte{0, 0x00})

	tests := []struct {
		name    string
		stream  []byte
		fatal   error  // expected error, nil when the decode succeeds
		warning string // expected diagnostic
		chunk   chunk.Type
	}{
		{
			name:    "IEND with payload",
			stream:  pngtest.New().IHDR(1, 1, 8, 0, 0).IDAT(z, 0).Chunk("IEND", []byte{1, 2}).Bytes(),
			warning: "invalid",
			chunk:   chunk.IEND,
		},
		{
			name:    "duplicate gAMA",
			stream:  pngtest.New().IHDR(1, 1, 8, 0, 0).Chunk("gAMA", u32(45455)).Chunk("gAMA", u32(100000)).IDAT(z, 0).IEND().Bytes(),
			warning: "duplicate",
			chunk:   chunk.GAMA,
		},
		{
			name:    "gAMA after PLTE",
			stream:  pngtest.New().IHDR(1, 1, 1, 3, 0).Chunk("PLTE", pal).Chunk("gAMA", u32(45455)).IDAT(pz, 0).IEND().Bytes(),
			warning: "out of place",
			chunk:   chunk.GAMA,
		},
		{
			name:    "gAMA too short",
			stream:  pngtest.New().IHDR(1, 1, 8, 0, 0).Chunk("gAMA", []byte{1, 2, 3}).IDAT(z, 0).IEND().Bytes(),
			warning: "too short",
			chunk:   chunk.GAMA,
		},
		{
			name:    "sRGB too long",
			stream:  pngtest.New().IHDR(1, 1, 8, 0, 0).Chunk("sRGB", []byte{0, 0}).IDAT(z, 0).IEND().Bytes(),
			warning: "too long",
			chunk:   chunk.SRGB,
		},
		{
			name:    "PLTE in gray image",
			stream:  pngtest.New().IHDR(1, 1, 8, 0, 0).Chunk("PLTE", pal).IDAT(z, 0).IEND().Bytes(),
			warning: "ignored in grayscale PNG",
			chunk:   chunk.PLTE,
		},
		{
			name:    "tRNS after IDAT",
			stream:  pngtest.New().IHDR(1, 1, 8, 0, 0).IDAT(z, 0).Chunk("tRNS", []byte{0, 1}).IEND().Bytes(),
			warning: "out of place",
			chunk:   chunk.TRNS,
		},
		{
			name:    "hIST before PLTE",
			stream:  pngtest.New().IHDR(1, 1, 1, 3, 0).Chunk("hIST", []byte{0, 1, 0, 1}).Chunk("PLTE", pal).IDAT(pz, 0).IEND().Bytes(),
			warning: "out of place",
			chunk:   chunk.HIST,
		},
		{
			name:    "IDAT after other chunks",
			stream:  pngtest.New().IHDR(1, 1, 8, 0, 0).IDAT(z, 0).Chunk("tEXt", []byte("a\x00b")).Chunk("IDAT", []byte{1, 2}).IEND().Bytes(),
			warning: "too many IDATs found",
			chunk:   chunk.IDAT,
		},
		{
			name:   "duplicate IHDR",
			stream: pngtest.New().IHDR(1, 1, 8, 0, 0).IHDR(1, 1, 8, 0, 0).IDAT(z, 0).IEND().Bytes(),
			fatal:  &ChunkError{Type: chunk.IHDR, Msg: "out of place"},
		},
		{
			name:   "IEND before IDAT",
			stream: pngtest.New().IHDR(1, 1, 8, 0, 0).IEND().Bytes(),
			fatal:  &ChunkError{Type: chunk.IEND, Msg: "out of place"},
		},
		{
			name:   "palette image without PLTE",
			stream: pngtest.New().IHDR(1, 1, 1, 3, 0).IDAT(pz, 0).IEND().Bytes(),
			fatal:  ErrMissingPLTE,
		},
		{
			name:   "duplicate PLTE in palette image",
			stream: pngtest.New().IHDR(1, 1, 1, 3, 0).Chunk("PLTE", pal).Chunk("PLTE", pal).IDAT(pz, 0).IEND().Bytes(),
			fatal:  &ChunkError{Type: chunk.PLTE, Msg: "duplicate"},
		},
		{
			name:   "PLTE length not a multiple of 3",
			stream: pngtest.New().IHDR(1, 1, 1, 3, 0).Chunk("PLTE", []byte{1, 2, 3, 4}).IDAT(pz, 0).IEND().Bytes(),
			fatal:  &ChunkError{Type: chunk.PLTE, Msg: "invalid"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := Decode(bytes.NewReader(tt.stream), quiet())
			if tt.fatal != nil {
				require.Error(t, err)
				var want *ChunkError
				if errors.As(tt.fatal, &want) {
					var ce *ChunkError
					require.ErrorAs(t, err, &ce)
					assert.Equal(t, want.Type, ce.Type)
					assert.Equal(t, want.Msg, ce.Msg)
					return
				}
				assert.ErrorIs(t, err, tt.fatal)
				return
			}
			require.NoError(t, err)
			ws := img.Warnings.For(tt.chunk)
			require.Len(t, ws, 1, "warnings: %v", img.Warnings)
			assert.Equal(t, tt.warning, ws[0].Message)
		})
	}
}

func TestDecode_DuplicateKeepsFirst(t *testing.T) {
	stream := pngtest.New().IHDR(1, 1, 8, 0, 0).
		Chunk("gAMA", u32(45455)).Chunk("gAMA", u32(100000)).
		IDAT(gray1x1(), 0).IEND().Bytes()
	img, err := Decode(bytes.NewReader(stream), quiet())
	require.NoError(t, err)
	assert.Equal(t, uint32(45455), img.Info.Gamma)
}

func TestDecode_StrictBenign(t *testing.T) {
	stream := pngtest.New().IHDR(1, 1, 8, 0, 0).IDAT(gray1x1(), 0).Chunk("IEND", []byte{1}).Bytes()
	o := quiet()
	o.StrictBenign = true
	_, err := Decode(bytes.NewReader(stream), o)
	var ce *ChunkError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, chunk.IEND, ce.Type)
	assert.Equal(t, "invalid", ce.Msg)
}

// flipStream is an image carrying one chunk of each kind the CRC tests
// corrupt.
func flipStream() []byte {
	return pngtest.New().IHDR(1, 1, 8, 0, 0).
		Chunk("gAMA", u32(45455)).
		Chunk("tEXt", []byte("Title\x00flip")).
		IDAT(gray1x1(), 0).
		IEND().Bytes()
}

func TestDecode_SingleByteFlips(t *testing.T) {
	stream := flipStream()
	tests := []struct {
		typ   string
		fatal bool
		check func(t *testing.T, img *Image)
	}{
		{typ: "IHDR", fatal: true},
		{typ: "IDAT", fatal: true},
		{typ: "gAMA", check: func(t *testing.T, img *Image) { assert.Zero(t, img.Info.Gamma) }},
		{typ: "tEXt", check: func(t *testing.T, img *Image) { assert.Empty(t, img.Info.Text) }},
		{typ: "IEND"},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			start := pngtest.Offset(stream, tt.typ)
			require.GreaterOrEqual(t, start, 0)
			length := int(binary.BigEndian.Uint32(stream[start:]))
			// every payload and CRC byte
			for o := start + 8; o < start+12+length; o++ {
				bad := bytes.Clone(stream)
				bad[o] ^= 0x01
				img, err := Decode(bytes.NewReader(bad), quiet())
				if tt.fatal {
					assert.Error(t, err, "offset %d", o)
					continue
				}
				require.NoError(t, err, "offset %d", o)
				assert.True(t, img.Warnings.Contains("CRC error"), "offset %d: %v", o, img.Warnings)
				if tt.check != nil {
					tt.check(t, img)
				}
			}
		})
	}
}

func TestDecode_CRCPolicy(t *testing.T) {
	stream := pngtest.New().IHDR(1, 1, 8, 0, 0).
		BadCRC("gAMA", u32(45455)).
		IDAT(gray1x1(), 0).IEND().Bytes()
	badHeader := pngtest.New().BadCRC("IHDR", pngtest.IHDR(1, 1, 8, 0, 0)).
		IDAT(gray1x1(), 0).IEND().Bytes()

	t.Run("ancillary ignore", func(t *testing.T) {
		o := quiet()
		o.CRC.Ancillary = CRCIgnore
		img, err := Decode(bytes.NewReader(stream), o)
		require.NoError(t, err)
		assert.Equal(t, uint32(45455), img.Info.Gamma)
		assert.Empty(t, img.Warnings)
	})
	t.Run("ancillary error", func(t *testing.T) {
		o := quiet()
		o.CRC.Ancillary = CRCError
		_, err := Decode(bytes.NewReader(stream), o)
		var ce *ChunkError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, chunk.GAMA, ce.Type)
		assert.Equal(t, "CRC error", ce.Msg)
	})
	t.Run("critical default", func(t *testing.T) {
		_, err := Decode(bytes.NewReader(badHeader), quiet())
		var ce *ChunkError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, chunk.IHDR, ce.Type)
	})
	t.Run("critical warn", func(t *testing.T) {
		o := quiet()
		o.CRC.Critical = CRCWarn
		img, err := Decode(bytes.NewReader(badHeader), o)
		require.NoError(t, err)
		assert.True(t, img.Warnings.Contains("CRC error"))
		assert.Equal(t, []byte{0x80}, img.Pix)
	})
}

func TestDecoder_ChunkByChunk(t *testing.T) {
	stream := pngtest.New().IHDR(1, 1, 8, 0, 0).
		Chunk("gAMA", u32(45455)).
		Chunk("gAMA", u32(1)).
		IDAT(gray1x1(), 0).
		Chunk("tIME", []byte{0x07, 0xe9, 1, 2, 3, 4, 5}).
		IEND().Bytes()

	d := NewDecoder(bytes.NewReader(stream), quiet())
	defer d.Close()
	var seen []chunk.Type
	d.OnChunk = func(h chunk.Header, _ Handled, _ Mode) { seen = append(seen, h.Type) }

	tests := []struct {
		handled Handled
		mode    Mode
	}{
		{HandledOK, HaveIHDR},
		{HandledOK, HaveIHDR},
		{HandledError, HaveIHDR},
		{HandledImageData, HaveIHDR | HaveIDAT},
	}
	for i, tt := range tests {
		handled, err := d.ReadChunk()
		require.NoError(t, err, "chunk %d", i)
		assert.Equal(t, tt.handled, handled, "chunk %d", i)
		assert.Equal(t, tt.mode, d.State().Mode, "chunk %d", i)
	}

	_, err := d.ReadChunk()
	assert.ErrorIs(t, err, ErrPhase)

	var rows [][]byte
	require.NoError(t, d.ReadRows(func(row []byte, pass, y int) error {
		rows = append(rows, bytes.Clone(row))
		return nil
	}))
	assert.Equal(t, [][]byte{{0x80}}, rows)
	assert.ErrorIs(t, d.ReadRows(nil), ErrPhase)

	require.NoError(t, d.ReadEnd())
	assert.Equal(t, HaveIHDR|HaveIDAT|AfterIDAT|HaveIEND, d.State().Mode)
	assert.Equal(t, []chunk.Type{chunk.IHDR, chunk.GAMA, chunk.GAMA, chunk.IDAT, chunk.TIME, chunk.IEND}, seen)
	require.NotNil(t, d.Info().ModTime)
	assert.Equal(t, uint16(2025), d.Info().ModTime.Year)

	_, err = d.ReadChunk()
	assert.ErrorIs(t, err, ErrSessionEnded)
	assert.NotEmpty(t, d.ID())
}

func TestDecoder_FatalIsSticky(t *testing.T) {
	stream := pngtest.New().Chunk("gAMA", u32(1)).Bytes()
	d := NewDecoder(bytes.NewReader(stream), quiet())
	_, err := d.ReadChunk()
	require.ErrorIs(t, err, ErrMissingIHDR)
	_, again := d.ReadChunk()
	assert.Equal(t, err, again)
	assert.Equal(t, err, d.ReadEnd())
}

func TestDecode_ChunkMax(t *testing.T) {
	big := append([]byte("Comment\x00"), bytes.Repeat([]byte("x"), 200)...)
	stream := pngtest.New().IHDR(1, 1, 8, 0, 0).
		Chunk("tEXt", big).
		Chunk("eXIf", bytes.Repeat([]byte("M"), 300)).
		IDAT(gray1x1(), 0).IEND().Bytes()
	o := quiet()
	o.ChunkMax = 100
	img, err := Decode(bytes.NewReader(stream), o)
	require.NoError(t, err)
	assert.Empty(t, img.Info.Text)
	assert.Nil(t, img.Info.Exif)
	assert.Equal(t, "insufficient memory to read chunk", img.Warnings.For(chunk.TEXT)[0].Message)
	assert.Equal(t, "length exceeds limit", img.Warnings.For(chunk.EXIF)[0].Message)
	assert.Equal(t, []byte{0x80}, img.Pix)
}
