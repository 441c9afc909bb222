package png

import (
	"strings"

	"github.com/jpfielding/png.go/pkg/png/chunk"
)

// Mode records the milestones a decode has passed.
type Mode uint32

const (
	HaveIHDR Mode = 1 << iota
	HavePLTE
	HaveIDAT
	AfterIDAT
	HaveIEND
)

func (m Mode) String() string {
	var parts []string
	for _, f := range []struct {
		bit  Mode
		name string
	}{
		{HaveIHDR, "IHDR"},
		{HavePLTE, "PLTE"},
		{HaveIDAT, "IDAT"},
		{AfterIDAT, "after-IDAT"},
		{HaveIEND, "IEND"},
	} {
		if m&f.bit != 0 {
			parts = append(parts, f.name)
		}
	}
	if len(parts) == 0 {
		return "start"
	}
	return strings.Join(parts, "|")
}

// Handled is the outcome of processing one chunk, ordered so that
// anything at or above HandledSaved counts as having seen the chunk.
type Handled int

const (
	HandledError Handled = iota
	HandledDiscarded
	HandledSaved
	HandledOK
	// HandledImageData means the stream is positioned inside the first
	// IDAT payload and rows can be read.
	HandledImageData
)

func (h Handled) String() string {
	switch h {
	case HandledError:
		return "error"
	case HandledDiscarded:
		return "discarded"
	case HandledSaved:
		return "saved"
	case HandledOK:
		return "ok"
	case HandledImageData:
		return "image-data"
	default:
		return "unknown"
	}
}

// State is the per decode bookkeeping the controller checks chunks
// against.
type State struct {
	Mode   Mode
	Header chunk.Header
	seen   map[chunk.Type]bool
}

func newState() State {
	return State{seen: make(map[chunk.Type]bool)}
}

// Seen reports whether a chunk of type t was accepted.
func (s *State) Seen(t chunk.Type) bool { return s.seen[t] }

// Length policies beyond a fixed maximum.
const (
	lengthNoCheck uint32 = 1<<32 - 1 // handler validates
	lengthLimit   uint32 = 1<<32 - 2 // Options.ChunkMax
)

// lz77Min is the smallest zlib stream, its two byte header.
const lz77Min = 2

type handlerFunc func(d *Decoder, length uint32) (Handled, error)

type descriptor struct {
	handler   handlerFunc
	maxLength uint32
	minLength uint32
	before    Mode // none of these may be set
	after     Mode // all of these must be set
	multiple  bool
}

const hCOL = HavePLTE | HaveIDAT

var descriptors map[chunk.Type]descriptor

func init() {
	descriptors = map[chunk.Type]descriptor{
		chunk.IHDR: {handleIHDR, 13, 13, HaveIHDR, 0, false},
		chunk.PLTE: {handlePLTE, lengthNoCheck, 0, 0, HaveIHDR, true},
		chunk.IDAT: {handleIDAT, lengthNoCheck, 0, AfterIDAT, HaveIHDR, true},
		chunk.IEND: {handleIEND, lengthNoCheck, 0, 0, AfterIDAT, false},
		chunk.TRNS: {handleTRNS, 256, 0, HaveIDAT, HaveIHDR, false},
		chunk.CHRM: {handleCHRM, 32, 32, hCOL, HaveIHDR, false},
		chunk.GAMA: {handleGAMA, 4, 4, hCOL, HaveIHDR, false},
		chunk.ICCP: {handleICCP, lengthNoCheck, 3 + lz77Min, hCOL, HaveIHDR, false},
		chunk.SBIT: {handleSBIT, 4, 1, hCOL, HaveIHDR, false},
		chunk.SRGB: {handleSRGB, 1, 1, hCOL, HaveIHDR, false},
		chunk.CICP: {handleCICP, 4, 4, hCOL, HaveIHDR, false},
		chunk.MDCV: {handleMDCV, 24, 24, hCOL, HaveIHDR, false},
		chunk.EXIF: {handleEXIF, lengthLimit, 4, 0, HaveIHDR, false},
		chunk.CLLI: {handleCLLI, 8, 8, hCOL, HaveIHDR, false},
		chunk.TEXT: {handleTEXT, lengthNoCheck, 2, 0, HaveIHDR, true},
		chunk.ZTXT: {handleZTXT, lengthLimit, 3 + lz77Min, 0, HaveIHDR, true},
		chunk.ITXT: {handleITXT, lengthNoCheck, 6, 0, HaveIHDR, true},
		chunk.BKGD: {handleBKGD, 6, 1, HaveIDAT, HaveIHDR, false},
		chunk.HIST: {handleHIST, 1024, 0, HaveIDAT, HavePLTE, false},
		chunk.PHYS: {handlePHYS, 9, 9, HaveIDAT, HaveIHDR, false},
		chunk.SPLT: {nil, lengthNoCheck, 3, HaveIDAT, HaveIHDR, true},
		chunk.TIME: {handleTIME, 7, 7, 0, HaveIHDR, false},
		chunk.ACTL: {nil, 8, 8, HaveIDAT, HaveIHDR, false},
		chunk.FCTL: {nil, 26, 26, 0, HaveIHDR, true},
		chunk.FDAT: {nil, lengthLimit, 4, HaveIDAT, HaveIHDR, true},
		chunk.OFFS: {handleOFFS, 9, 9, HaveIDAT, HaveIHDR, false},
		chunk.PCAL: {nil, lengthNoCheck, 14, HaveIDAT, HaveIHDR, false},
		chunk.SCAL: {nil, lengthLimit, 4, HaveIDAT, HaveIHDR, false},
	}
}
