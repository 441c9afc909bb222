package png

import (
	"bytes"
	"testing"

	"github.com/jpfielding/png.go/pkg/png/chunk"
	"github.com/jpfielding/png.go/pkg/png/pngtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	safeType   = chunk.TypeOf([]byte("prVt"))
	unsafeType = chunk.TypeOf([]byte("prVT"))
	critType   = chunk.TypeOf([]byte("CrVt"))
)

func TestDecode_UnknownKeepPolicy(t *testing.T) {
	stream := withChunks(ck("prVt", []byte("safe")), ck("prVT", []byte("unsafe")))
	tests := []struct {
		keep KeepPolicy
		want []chunk.Type
	}{
		{KeepNever, nil},
		{KeepIfSafe, []chunk.Type{safeType, unsafeType}},
		{KeepAlways, []chunk.Type{safeType, unsafeType}},
	}
	for _, tt := range tests {
		o := quiet()
		o.KeepUnknown = tt.keep
		img, err := Decode(bytes.NewReader(stream), o)
		require.NoError(t, err)
		var got []chunk.Type
		for _, u := range img.Info.Unknown {
			got = append(got, u.Type)
			assert.Equal(t, HaveIHDR, u.Location)
		}
		assert.Equal(t, tt.want, got, "keep %d", tt.keep)
		assert.Empty(t, img.Warnings)
	}
}

func TestDecode_UnknownSavedData(t *testing.T) {
	stream := pngtest.New().IHDR(1, 1, 8, 0, 0).
		Chunk("prVt", []byte("before")).
		IDAT(gray1x1(), 0).
		Chunk("prVt", []byte("after")).
		IEND().Bytes()
	o := quiet()
	o.KeepUnknown = KeepAlways
	img, err := Decode(bytes.NewReader(stream), o)
	require.NoError(t, err)
	require.Len(t, img.Info.Unknown, 2)
	assert.Equal(t, []byte("before"), img.Info.Unknown[0].Data)
	assert.Equal(t, []byte("after"), img.Info.Unknown[1].Data)
	assert.Equal(t, HaveIHDR|HaveIDAT|AfterIDAT, img.Info.Unknown[1].Location)
}

func TestDecode_UnknownCritical(t *testing.T) {
	stream := withChunks(ck("CrVt", []byte{1, 2, 3}))
	for _, keep := range []KeepPolicy{KeepNever, KeepIfSafe, KeepAlways} {
		o := quiet()
		o.KeepUnknown = keep
		_, err := Decode(bytes.NewReader(stream), o)
		assert.ErrorIs(t, err, ErrUnhandled, "keep %d", keep)
	}
}

func TestDecode_UnknownHandler(t *testing.T) {
	tests := []struct {
		name   string
		chunk  string
		action UnknownAction
		keep   KeepPolicy
		err    error
		saved  bool
	}{
		{name: "discard ancillary", chunk: "prVt", action: UnknownDiscard, keep: KeepAlways},
		{name: "save ancillary", chunk: "prVt", action: UnknownSave, saved: true},
		{name: "default falls back to keep", chunk: "prVt", action: UnknownDefault, keep: KeepIfSafe, saved: true},
		{name: "default unsafe ancillary kept", chunk: "prVT", action: UnknownDefault, keep: KeepIfSafe, saved: true},
		{name: "default never kept", chunk: "prVt", action: UnknownDefault, keep: KeepNever},
		{name: "error", chunk: "prVt", action: UnknownError, err: ErrUserChunk},
		{name: "critical handled", chunk: "CrVt", action: UnknownDiscard},
		{name: "critical saved", chunk: "CrVt", action: UnknownSave, saved: true},
		{name: "critical default", chunk: "CrVt", action: UnknownDefault, keep: KeepAlways, err: ErrUnhandled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []UnknownChunk
			o := quiet()
			o.KeepUnknown = tt.keep
			o.UnknownHandler = func(u UnknownChunk) UnknownAction {
				u.Data = bytes.Clone(u.Data)
				calls = append(calls, u)
				return tt.action
			}
			img, err := Decode(bytes.NewReader(withChunks(ck(tt.chunk, []byte("data")))), o)
			require.Len(t, calls, 1)
			assert.Equal(t, []byte("data"), calls[0].Data)
			assert.Equal(t, chunk.TypeOf([]byte(tt.chunk)), calls[0].Type)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.saved, len(img.Info.Unknown) == 1)
		})
	}
}

func TestDecode_KnownUnsupported(t *testing.T) {
	splt := []byte("pal\x00\x08\x01\x02\x03\x04\x00\x05")
	stream := withChunks(ck("sPLT", splt), ck("sPLT", splt))
	o := quiet()
	o.KeepUnknown = KeepAlways

	d := NewDecoder(bytes.NewReader(stream), o)
	defer d.Close()
	var handled []Handled
	d.OnChunk = func(h chunk.Header, res Handled, _ Mode) {
		if h.Type == chunk.SPLT {
			handled = append(handled, res)
		}
	}
	require.NoError(t, d.ReadEnd())
	assert.Equal(t, []Handled{HandledSaved, HandledSaved}, handled)
	assert.True(t, d.State().Seen(chunk.SPLT))
	assert.Len(t, d.Info().Unknown, 2)
}

func TestDecode_UnknownCache(t *testing.T) {
	stream := withChunks(ck("prVt", []byte("1")), ck("prVt", []byte("2")), ck("tEXt", []byte("k\x00v")))
	o := quiet()
	o.KeepUnknown = KeepAlways
	o.CacheMax = 1
	img, err := Decode(bytes.NewReader(stream), o)
	require.NoError(t, err)
	assert.Len(t, img.Info.Unknown, 1)
	assert.Empty(t, img.Info.Text)
	require.Len(t, img.Warnings, 1)
	assert.Equal(t, safeType, img.Warnings[0].Chunk)
	assert.Equal(t, "no space in chunk cache", img.Warnings[0].Message)
}
