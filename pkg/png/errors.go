package png

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jpfielding/png.go/pkg/png/chunk"
)

var (
	ErrSignature     = errors.New("png: not a PNG file")
	ErrMissingIHDR   = errors.New("png: missing IHDR")
	ErrMissingPLTE   = errors.New("png: missing PLTE before IDAT")
	ErrImageData     = errors.New("png: not enough image data")
	ErrSessionEnded  = errors.New("png: read after IEND")
	ErrPhase         = errors.New("png: call out of order")
	ErrUnhandled     = errors.New("png: unhandled critical chunk")
	ErrUserChunk     = errors.New("png: error in user chunk")
	ErrChunkTooLarge = errors.New("png: chunk data exceeds memory limit")
	ErrImageTooLarge = errors.New("png: image exceeds memory limit")
)

// FormatError reports a stream that is not valid PNG.
type FormatError string

func (e FormatError) Error() string { return "png: invalid format: " + string(e) }

// UnsupportedError reports valid PNG that this decoder does not handle.
type UnsupportedError string

func (e UnsupportedError) Error() string { return "png: unsupported feature: " + string(e) }

// ChunkError is a fatal problem tied to one chunk.
type ChunkError struct {
	Type chunk.Type
	Msg  string
	Err  error
}

func (e *ChunkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("png: %s: %s: %v", e.Type, e.Msg, e.Err)
	}
	return fmt.Sprintf("png: %s: %s", e.Type, e.Msg)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// Diagnostic is a recoverable problem. The decode continues and the
// offending chunk, or part of it, is ignored.
type Diagnostic struct {
	Chunk   chunk.Type
	Message string
}

func (d Diagnostic) String() string {
	if d.Chunk == 0 {
		return d.Message
	}
	return d.Chunk.String() + ": " + d.Message
}

// Diagnostics collects the recoverable problems of one decode.
type Diagnostics []Diagnostic

// For returns the diagnostics raised for chunk type t.
func (ds Diagnostics) For(t chunk.Type) Diagnostics {
	var out Diagnostics
	for _, d := range ds {
		if d.Chunk == t {
			out = append(out, d)
		}
	}
	return out
}

// Contains reports whether any message includes s.
func (ds Diagnostics) Contains(s string) bool {
	for _, d := range ds {
		if strings.Contains(d.Message, s) {
			return true
		}
	}
	return false
}
