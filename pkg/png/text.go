package png

import (
	"bytes"
	"errors"
	"unicode/utf8"

	"github.com/jpfielding/png.go/pkg/compress/inflate"
	"golang.org/x/text/encoding/charmap"
)

const maxKeyword = 79

// keyword splits buf at the first NUL. n is the keyword length, or -1
// when the keyword is empty, too long, not terminated or not printable.
func keyword(buf []byte) (string, int) {
	n := bytes.IndexByte(buf, 0)
	if n < 1 || n > maxKeyword || !printable(buf[:n]) {
		return "", -1
	}
	return latin1(buf[:n]), n
}

// printable holds Latin-1 graphic characters and single inner spaces.
func printable(key []byte) bool {
	if key[0] == ' ' || key[len(key)-1] == ' ' || bytes.Contains(key, []byte("  ")) {
		return false
	}
	for _, c := range key {
		if c < 32 || (c > 126 && c < 161) {
			return false
		}
	}
	return true
}

func latin1(b []byte) string {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

// expand decompresses the zlib stream that follows prefix bytes of buf.
// ok is false when the chunk was dropped with a diagnostic.
func (d *Decoder) expand(buf []byte, prefix int, terminate bool) (inflate.Expanded, bool, error) {
	x, err := d.engine.Decompress(d.state.Header.Type, inflate.Payload{
		Data:      buf,
		Prefix:    prefix,
		Terminate: terminate,
	}, d.opts.inflateCeiling())
	switch {
	case err == nil:
	case errors.Is(err, inflate.ErrTooLarge), errors.Is(err, inflate.ErrMemory):
		return x, false, d.benign("insufficient memory")
	case isInflateData(err):
		return x, false, d.benign("damaged compressed data")
	default:
		return x, false, &ChunkError{Type: d.state.Header.Type, Msg: "decompression failed", Err: err}
	}
	if x.Extra {
		if err := d.benign("extra compressed data"); err != nil {
			return x, false, err
		}
	}
	return x, true, nil
}

func (d *Decoder) saveText(t Text) (Handled, error) {
	ok, err := d.cacheSlot()
	if !ok {
		return HandledError, err
	}
	d.info.Text = append(d.info.Text, t)
	return HandledOK, nil
}

func handleTEXT(d *Decoder, length uint32) (Handled, error) {
	buf, ok, err := d.payload(length)
	if !ok {
		return HandledError, err
	}
	key, n := keyword(append(buf, 0))
	if n < 0 {
		return HandledError, d.benign("bad keyword")
	}
	text := ""
	if n < len(buf) {
		text = latin1(buf[n+1:])
	}
	return d.saveText(Text{Keyword: key, Text: text, Compression: TextPlain})
}

func handleZTXT(d *Decoder, length uint32) (Handled, error) {
	buf, ok, err := d.payload(length)
	if !ok {
		return HandledError, err
	}
	key, n := keyword(buf)
	switch {
	case n < 0:
		return HandledError, d.benign("bad keyword")
	case n+3 > len(buf):
		return HandledError, d.benign("truncated")
	case buf[n+1] != 0:
		return HandledError, d.benign("unknown compression type")
	}
	x, ok, err := d.expand(buf, n+2, true)
	if !ok {
		return HandledError, err
	}
	return d.saveText(Text{Keyword: key, Text: latin1(x.Text(n + 2)), Compression: TextZ})
}

func handleITXT(d *Decoder, length uint32) (Handled, error) {
	buf, ok, err := d.payload(length)
	if !ok {
		return HandledError, err
	}
	key, n := keyword(buf)
	if n < 0 {
		return HandledError, d.benign("bad keyword")
	}
	pos := n + 1
	if pos+2 > len(buf) {
		return HandledError, d.benign("truncated")
	}
	compressed, method := buf[pos], buf[pos+1]
	if compressed > 1 || method != 0 {
		return HandledError, d.benign("bad compression info")
	}
	pos += 2

	lang := bytes.IndexByte(buf[pos:], 0)
	if lang < 0 {
		return HandledError, d.benign("truncated")
	}
	language := string(buf[pos : pos+lang])
	pos += lang + 1
	tr := bytes.IndexByte(buf[pos:], 0)
	if tr < 0 {
		return HandledError, d.benign("truncated")
	}
	translated := string(buf[pos : pos+tr])
	pos += tr + 1

	t := Text{Keyword: key, Language: language, Translated: translated, Compression: TextInternational}
	if compressed == 0 {
		t.Text = string(buf[pos:])
	} else {
		x, ok, err := d.expand(buf, pos, true)
		if !ok {
			return HandledError, err
		}
		t.Text = string(x.Text(pos))
		t.Compression = TextInternationalZ
	}
	if !utf8.ValidString(t.Text) || !utf8.ValidString(translated) {
		if err := d.benign("invalid UTF-8"); err != nil {
			return HandledError, err
		}
	}
	return d.saveText(t)
}

func handleICCP(d *Decoder, length uint32) (Handled, error) {
	buf, ok, err := d.payload(length)
	if !ok {
		return HandledError, err
	}
	name, n := keyword(buf)
	switch {
	case n < 0:
		return HandledError, d.benign("bad keyword")
	case n+3 > len(buf):
		return HandledError, d.benign("truncated")
	case buf[n+1] != 0:
		return HandledError, d.benign("bad compression method")
	}
	x, ok, err := d.expand(buf, n+2, false)
	if !ok {
		return HandledError, err
	}
	profile := x.Text(n + 2)
	if len(profile) < 132 {
		return HandledError, d.benign("too short")
	}
	if int(be.Uint32(profile)) != len(profile) {
		return HandledError, d.benign("profile length does not match")
	}
	d.info.ICC = &ICCProfile{Name: name, Profile: bytes.Clone(profile)}
	return HandledOK, nil
}
