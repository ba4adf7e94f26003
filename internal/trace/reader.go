package trace

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects trace events. Zero fields match everything.
type Filter struct {
	DeviceID  string
	Direction *Direction
	Telegram  *uint16
	Since     time.Time
}

func (f *Filter) matches(e Event) bool {
	if f.DeviceID != "" && e.DeviceID != f.DeviceID {
		return false
	}
	if f.Direction != nil && e.Direction != *f.Direction {
		return false
	}
	if f.Telegram != nil && e.Telegram != *f.Telegram {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// Reader streams events from a trace.
type Reader struct {
	closer  io.Closer
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader reads events matching filter from r.
func NewReader(r io.Reader, filter Filter) *Reader {
	return &Reader{decoder: newDecoder(r), filter: filter}
}

// Open opens a trace file for reading.
func Open(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path) //nolint:gosec // path is user supplied on purpose
	if err != nil {
		return nil, fmt.Errorf("opening trace file: %w", err)
	}
	rd := NewReader(f, filter)
	rd.closer = f
	return rd, nil
}

// Next returns the next matching event, or io.EOF at the end of the trace.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		if err := r.decoder.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			return Event{}, fmt.Errorf("decoding trace event: %w", err)
		}
		if r.filter.matches(event) {
			return event, nil
		}
	}
}

// Close closes the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Dump writes every remaining event of r to w as one JSON object per line
// and returns the number of events written.
func Dump(r *Reader, w io.Writer) (int, error) {
	enc := json.NewEncoder(w)
	n := 0
	for {
		event, err := r.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if err := enc.Encode(event); err != nil {
			return n, fmt.Errorf("writing event: %w", err)
		}
		n++
	}
}
