package png

import (
	"log/slog"
)

// CRCAction selects what a checksum mismatch does.
type CRCAction int

const (
	CRCDefault CRCAction = iota
	CRCError             // fatal
	CRCWarn              // benign, chunk discarded
	CRCIgnore            // not checked
)

// CRCPolicy sets the mismatch action for each chunk class. The defaults
// are CRCError for critical chunks and CRCWarn for ancillary ones.
type CRCPolicy struct {
	Critical  CRCAction
	Ancillary CRCAction
}

// KeepPolicy decides which unrecognized chunks are saved in Info.Unknown.
type KeepPolicy int

const (
	KeepNever KeepPolicy = iota
	// KeepIfSafe keeps ancillary chunks whatever their safe-to-copy bit.
	KeepIfSafe
	KeepAlways
)

// UnknownAction is returned by an UnknownHandler.
type UnknownAction int

const (
	UnknownDefault UnknownAction = iota // apply Options.KeepUnknown
	UnknownDiscard                      // handled, drop the chunk
	UnknownSave                         // handled, keep it in Info.Unknown
	UnknownError                        // stop decoding
)

// UnknownHandler sees every chunk the decoder does not process itself.
// The chunk data is only valid for the duration of the call.
type UnknownHandler func(UnknownChunk) UnknownAction

// Options configures a Decoder. Zero limits mean unlimited.
type Options struct {
	// ChunkMax caps the memory used for any one chunk's data.
	ChunkMax int64
	// InflateMax caps the decompressed size of zTXt, iTXt and iCCP
	// payloads; 0 falls back to ChunkMax.
	InflateMax int64
	// CacheMax caps the number of saved text and unknown chunks.
	CacheMax int
	// MaxWidth and MaxHeight bound IHDR dimensions.
	MaxWidth, MaxHeight uint32
	// ImageMax caps the memory of a full decoded frame, needed for
	// combined interlaced rows and by Decode.
	ImageMax int64

	CRC CRCPolicy

	KeepUnknown    KeepPolicy
	UnknownHandler UnknownHandler

	// StrictBenign turns every recoverable diagnostic into an error.
	StrictBenign bool
	// StrictClaims makes a conflicting claim on the decompression stream
	// an error rather than a forced reassignment.
	StrictClaims bool

	// Display replicates interlaced pass pixels over the area they cover
	// so every delivered row is a complete preview.
	Display bool
	// RawPasses delivers interlaced rows as decoded, one pass at a time,
	// without combining them into full width rows.
	RawPasses bool

	Logger *slog.Logger
}

// DefaultOptions returns the limits libpng ships with.
func DefaultOptions() *Options {
	return &Options{
		ChunkMax:  8_000_000,
		CacheMax:  1000,
		MaxWidth:  1_000_000,
		MaxHeight: 1_000_000,
		ImageMax:  1 << 30,
		CRC:       CRCPolicy{Critical: CRCError, Ancillary: CRCWarn},
	}
}

func (o *Options) normalize() *Options {
	out := *DefaultOptions()
	if o != nil {
		out = *o
	}
	if out.CRC.Critical == CRCDefault {
		out.CRC.Critical = CRCError
	}
	if out.CRC.Ancillary == CRCDefault {
		out.CRC.Ancillary = CRCWarn
	}
	if out.MaxWidth == 0 || out.MaxWidth > maxDimension {
		out.MaxWidth = maxDimension
	}
	if out.MaxHeight == 0 || out.MaxHeight > maxDimension {
		out.MaxHeight = maxDimension
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return &out
}

func (o *Options) inflateCeiling() int64 {
	if o.InflateMax > 0 {
		return o.InflateMax
	}
	return o.ChunkMax
}
