package trace

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/nerrad567/gray-logic-ism7/internal/bridges/ism7"
)

// FileRecorder appends telegram events to a trace file.
// It implements ism7.TelegramTracer and is safe for concurrent use.
type FileRecorder struct {
	file    *os.File
	encoder *cbor.Encoder
	mu      sync.Mutex
	closed  bool

	// errs counts events that could not be written.
	errs uint64
}

// NewFileRecorder opens path for appending, creating it and its directory
// when missing.
func NewFileRecorder(path string) (*FileRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating trace directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("opening trace file: %w", err)
	}
	return &FileRecorder{
		file:    f,
		encoder: newEncoder(f),
	}, nil
}

// Record writes one event. Events after Close are ignored; encoding
// failures are counted and never disrupt the bridge.
func (r *FileRecorder) Record(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if err := r.encoder.Encode(event); err != nil {
		r.errs++
	}
}

// TraceReceived records a telegram received from the gateway.
func (r *FileRecorder) TraceReceived(deviceID string, t ism7.Telegram, at time.Time) {
	r.Record(Event{
		Timestamp: at,
		DeviceID:  deviceID,
		Direction: DirectionRx,
		Telegram:  t.Number,
		Low:       t.Low,
		High:      t.High,
	})
}

// TraceSent records a write command sent to the gateway.
func (r *FileRecorder) TraceSent(deviceID string, cmd ism7.WriteCommand, at time.Time) {
	r.Record(Event{
		Timestamp: at,
		DeviceID:  deviceID,
		Direction: DirectionTx,
		Telegram:  cmd.Telegram,
		Low:       cmd.Low,
		High:      cmd.High,
	})
}

// Errors returns the number of events that could not be written.
func (r *FileRecorder) Errors() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errs
}

// Close closes the trace file. It is safe to call Close multiple times.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}

var _ ism7.TelegramTracer = (*FileRecorder)(nil)
