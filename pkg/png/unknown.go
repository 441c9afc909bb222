package png

import (
	"bytes"
	"fmt"
)

// handleUnknown processes a chunk with no handler of its own. The user
// callback, when set, sees the chunk first; otherwise Options.KeepUnknown
// decides whether it is saved. A critical chunk nobody handled stops the
// decode.
func (d *Decoder) handleUnknown(length uint32) (Handled, error) {
	t := d.state.Header.Type
	keep := d.opts.KeepUnknown
	handled := HandledDiscarded
	var data []byte
	read, user := false, false

	if d.opts.UnknownHandler != nil {
		buf, ok, err := d.payload(length)
		if err != nil {
			return HandledError, err
		}
		if !ok {
			if t.Critical() {
				return HandledError, &ChunkError{Type: t, Msg: "unknown critical chunk dropped", Err: ErrUnhandled}
			}
			return HandledError, nil
		}
		data, read = buf, true
		switch d.opts.UnknownHandler(UnknownChunk{Type: t, Data: buf, Location: d.state.Mode}) {
		case UnknownError:
			return HandledError, &ChunkError{Type: t, Msg: "error in user chunk", Err: ErrUserChunk}
		case UnknownDiscard:
			handled, keep, user = HandledOK, KeepNever, true
		case UnknownSave:
			handled, keep, user = HandledOK, KeepAlways, true
		}
	}
	if t.Critical() && !user {
		if !read {
			if _, err := d.crcFinish(length); err != nil {
				return HandledError, err
			}
		}
		return HandledError, &ChunkError{Type: t, Msg: fmt.Sprintf("unhandled critical chunk (length %d)", length), Err: ErrUnhandled}
	}

	save := keep == KeepAlways || (keep == KeepIfSafe && t.Ancillary())
	if save && !read {
		buf, ok, err := d.payload(length)
		if err != nil {
			return HandledError, err
		}
		if ok {
			data, read = buf, true
		} else {
			save = false
		}
	}
	if !read {
		if _, err := d.crcFinish(length); err != nil {
			return HandledError, err
		}
	}

	if save {
		ok, err := d.cacheSlot()
		if err != nil {
			return HandledError, err
		}
		if ok {
			d.info.Unknown = append(d.info.Unknown, UnknownChunk{
				Type:     t,
				Data:     bytes.Clone(data),
				Location: d.state.Mode,
			})
			handled = HandledSaved
		}
	}

	return handled, nil
}
