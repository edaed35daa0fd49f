// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package morse

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/morsefs/lib/clock"
	"github.com/bureau-foundation/morsefs/lib/logging"
)

// InvalidInputPolicy selects how a write handles unrecognized bytes and
// over-long symbol groups.
type InvalidInputPolicy string

const (
	// PolicySkip logs a warning, emits nothing for the invalid input,
	// and keeps scanning. This is the default.
	PolicySkip InvalidInputPolicy = "skip"

	// PolicyAbort fails the whole write. The session keeps whatever
	// output it held before the call.
	PolicyAbort InvalidInputPolicy = "abort"
)

// ParsePolicy validates a policy name. The empty string selects
// PolicySkip.
func ParsePolicy(name string) (InvalidInputPolicy, error) {
	switch InvalidInputPolicy(name) {
	case "", PolicySkip:
		return PolicySkip, nil
	case PolicyAbort:
		return PolicyAbort, nil
	}
	return "", fmt.Errorf("invalid input policy %q (want %q or %q)", name, PolicySkip, PolicyAbort)
}

// SessionOptions configures a Session.
type SessionOptions struct {
	// Name identifies the session in logs and stats.
	Name string

	// MaxCapacity bounds the output buffer. Zero means unbounded.
	MaxCapacity int

	// Policy handles invalid input. Empty means PolicySkip.
	Policy InvalidInputPolicy

	// Clock stamps writes and reads. Nil uses the real clock.
	Clock clock.Clock

	// Logger receives diagnostics. Nil discards them.
	Logger *slog.Logger
}

// Stats is a point-in-time snapshot of a session's counters.
type Stats struct {
	Name          string    `cbor:"name"`
	Writes        uint64    `cbor:"writes"`
	FailedWrites  uint64    `cbor:"failed_writes"`
	Reads         uint64    `cbor:"reads"`
	Overwrites    uint64    `cbor:"overwrites"`
	SkippedInputs uint64    `cbor:"skipped_inputs"`
	BytesWritten  uint64    `cbor:"bytes_written"`
	BytesProduced uint64    `cbor:"bytes_produced"`
	BytesRead     uint64    `cbor:"bytes_read"`
	Pending       int       `cbor:"pending"`
	Capacity      int       `cbor:"capacity"`
	LastWrite     time.Time `cbor:"last_write"`
	LastRead      time.Time `cbor:"last_read"`
}

// Session transcodes Morse input into a single pending output buffer.
// Each Write replaces the pending output; each Read drains it once.
type Session struct {
	name        string
	maxCapacity int
	policy      InvalidInputPolicy
	clock       clock.Clock
	logger      *slog.Logger

	// mu protects output, pending, closed and stats.
	mu      sync.Mutex
	output  *Buffer
	pending bool
	closed  bool
	stats   Stats
}

var _ io.Writer = (*Session)(nil)

// NewSession returns an empty session.
func NewSession(options SessionOptions) (*Session, error) {
	policy, err := ParsePolicy(string(options.Policy))
	if err != nil {
		return nil, err
	}
	if options.MaxCapacity < 0 {
		return nil, fmt.Errorf("max capacity must not be negative, got %d", options.MaxCapacity)
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = logging.Discard()
	}
	return &Session{
		name:        options.Name,
		maxCapacity: options.MaxCapacity,
		policy:      policy,
		clock:       options.Clock,
		logger:      options.Logger,
	}, nil
}

// Name returns the session name.
func (s *Session) Name() string { return s.name }

// Write transcodes input and makes the result the pending output,
// discarding any earlier output that was never read. On success it
// returns len(input). On failure the session is left as it was before
// the call.
func (s *Session) Write(input []byte) (int, error) {
	if s.isClosed() {
		return 0, ErrClosed
	}

	output, skipped, err := s.translate(input)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	if err != nil {
		s.stats.FailedWrites++
		return 0, err
	}

	if s.pending {
		s.logger.Info("discarding unread output",
			"endpoint", s.name,
			"bytes", s.output.Len(),
		)
		s.output.Release()
		s.stats.Overwrites++
	}
	s.output = output
	s.pending = true

	s.stats.Writes++
	s.stats.SkippedInputs += uint64(skipped)
	s.stats.BytesWritten += uint64(len(input))
	s.stats.BytesProduced += uint64(output.Len())
	s.stats.LastWrite = s.clock.Now()

	s.logger.Debug("translation complete",
		"endpoint", s.name,
		"input_bytes", len(input),
		"output_bytes", output.Len(),
		"capacity", output.Cap(),
	)
	return len(input), nil
}

// Read returns up to maxLength bytes of pending output and releases the
// buffer. Bytes past maxLength are dropped: there is no read cursor, so
// a second Read without an intervening Write returns nothing.
func (s *Session) Read(maxLength int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pending {
		return nil
	}

	valid := s.output.Bytes()
	count := min(max(maxLength, 0), len(valid))
	result := make([]byte, count)
	copy(result, valid)

	if dropped := len(valid) - count; dropped > 0 {
		s.logger.Warn("read shorter than pending output",
			"endpoint", s.name,
			"requested", maxLength,
			"dropped", dropped,
		)
	}

	s.output.Release()
	s.output = nil
	s.pending = false

	s.stats.Reads++
	s.stats.BytesRead += uint64(count)
	s.stats.LastRead = s.clock.Now()
	return result
}

// Pending returns the number of unread output bytes.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pending {
		return 0
	}
	return s.output.Len()
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.stats
	snapshot.Name = s.name
	if s.pending {
		snapshot.Pending = s.output.Len()
		snapshot.Capacity = s.output.Cap()
	}
	return snapshot
}

// Close releases any pending output. Later writes fail with ErrClosed
// and reads return nothing. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if s.pending {
		s.output.Release()
		s.output = nil
		s.pending = false
	}
	s.closed = true
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// translate runs the scanner over input into a private buffer.
func (s *Session) translate(input []byte) (*Buffer, int, error) {
	t := &translator{
		output: NewBuffer(s.maxCapacity),
		policy: s.policy,
		logger: s.logger.With("endpoint", s.name),
	}
	for offset, b := range input {
		if symbol, ok := SymbolOf(b); ok {
			t.push(symbol)
			continue
		}
		var err error
		switch b {
		case ' ':
			err = t.terminate(offset, 0)
		case '|', '/':
			err = t.terminate(offset, ' ')
		case '\n', 0:
			err = t.terminate(offset, '\n')
		case '\r':
		default:
			err = t.reject(&TranslationError{Offset: offset, Byte: b})
		}
		if err != nil {
			return nil, t.skipped, err
		}
	}
	if t.length > 0 {
		if err := t.terminate(len(input), '\n'); err != nil {
			return nil, t.skipped, err
		}
	}
	return t.output, t.skipped, nil
}

// translator holds the scan state of one write.
type translator struct {
	output *Buffer
	policy InvalidInputPolicy
	logger *slog.Logger

	// group holds the first MaxDepth symbols of the open group;
	// length counts all of them, so length > MaxDepth marks an
	// over-long group.
	group  [MaxDepth]Symbol
	length int

	skipped int
}

func (t *translator) push(symbol Symbol) {
	if t.length < MaxDepth {
		t.group[t.length] = symbol
	}
	t.length++
}

// terminate closes the open group at offset. The decoded character, if
// any, is followed by trailer unless trailer is zero.
func (t *translator) terminate(offset int, trailer byte) error {
	if t.length > 0 {
		length := t.length
		t.length = 0
		if length > MaxDepth {
			err := fmt.Errorf("%w: %d symbols ending at offset %d", ErrInvalidSymbolGroup, length, offset)
			if rejectErr := t.reject(err); rejectErr != nil {
				return rejectErr
			}
		} else {
			character, err := Decode(t.group[:length])
			if err != nil {
				return err
			}
			if err := t.output.Append(character); err != nil {
				return err
			}
		}
	}
	if trailer != 0 {
		return t.output.Append(trailer)
	}
	return nil
}

// reject applies the invalid input policy to err.
func (t *translator) reject(err error) error {
	if t.policy == PolicyAbort {
		return err
	}
	t.skipped++
	t.logger.Warn("skipping invalid input", "error", err)
	return nil
}
