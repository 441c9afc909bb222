package inflate

import (
	"bytes"
	"fmt"

	"github.com/jpfielding/png.go/pkg/png/chunk"
)

// Payload is a chunk body made of an uncompressed prefix followed by a zlib
// stream, as in zTXt, iTXt and iCCP.
type Payload struct {
	Data      []byte
	Prefix    int
	MaxOutput int64 // 0 = no per call cap
	Terminate bool  // append a NUL after the output
}

// Expanded is the result of Decompress. Buf holds the prefix, Size bytes of
// output and the optional terminator.
type Expanded struct {
	Buf   []byte
	Size  int
	Extra bool // compressed bytes followed the end of the stream
}

// Text returns the decompressed bytes without prefix or terminator.
func (x Expanded) Text(prefix int) []byte {
	return x.Buf[prefix : prefix+x.Size]
}

// Decompress expands a payload in two passes: the first discards output
// to learn its size, the second writes it into an exactly sized buffer.
// ceiling is the memory allowed for the whole result, 0 for unlimited.
func (e *Engine) Decompress(owner chunk.Type, p Payload, ceiling int64) (Expanded, error) {
	if p.Prefix < 0 || p.Prefix > len(p.Data) {
		return Expanded{}, fmt.Errorf("inflate: prefix %d outside payload of %d bytes", p.Prefix, len(p.Data))
	}
	term := 0
	if p.Terminate {
		term = 1
	}
	limit := p.MaxOutput
	if ceiling > 0 {
		room := ceiling - int64(p.Prefix+term)
		if room <= 0 {
			return Expanded{}, fmt.Errorf("%w: %d byte prefix", ErrMemory, p.Prefix)
		}
		if limit <= 0 || room < limit {
			limit = room
		}
	}

	compressed := p.Data[p.Prefix:]
	lease, err := e.Claim(owner, bytes.NewReader(compressed))
	if err != nil {
		return Expanded{}, err
	}
	defer lease.Release()

	size, err := lease.Discard(limit)
	if err != nil {
		return Expanded{}, err
	}
	if err := lease.Reset(bytes.NewReader(compressed)); err != nil {
		return Expanded{}, err
	}

	buf := make([]byte, p.Prefix+int(size)+term)
	copy(buf, p.Data[:p.Prefix])
	n, err := lease.Inflate(buf[p.Prefix:p.Prefix+int(size)], true)
	if err != nil {
		return Expanded{}, err
	}
	if int64(n) != size {
		return Expanded{}, fmt.Errorf("%w: %d then %d", ErrSizeMismatch, size, n)
	}
	return Expanded{
		Buf:   buf,
		Size:  n,
		Extra: lease.Consumed() < int64(len(compressed)),
	}, nil
}
