// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package morse

import "fmt"

// InitialCapacity is the size of a freshly allocated output buffer.
const InitialCapacity = 8

// Buffer is a growable output region. Its capacity is always
// InitialCapacity times a power of two: it starts at InitialCapacity
// and doubles whenever an append would overflow it. A Buffer is not
// safe for concurrent use; Session owns one exclusively.
type Buffer struct {
	data   []byte
	length int

	// limit is the largest capacity the buffer may grow to. Zero
	// means unbounded.
	limit int
}

// NewBuffer allocates a zeroed buffer of InitialCapacity bytes. limit
// bounds growth (zero for unbounded) and is rounded down to the
// nearest valid capacity, never below InitialCapacity.
func NewBuffer(limit int) *Buffer {
	return &Buffer{
		data:  make([]byte, InitialCapacity),
		limit: normalizeLimit(limit),
	}
}

// normalizeLimit rounds limit down to InitialCapacity·2^k.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 0
	}
	capacity := InitialCapacity
	for capacity*2 <= limit {
		capacity *= 2
	}
	return capacity
}

// Len returns the number of valid bytes.
func (b *Buffer) Len() int { return b.length }

// Cap returns the current capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Bytes returns the valid bytes. The slice aliases the buffer and is
// only valid until the next Append or Release.
func (b *Buffer) Bytes() []byte { return b.data[:b.length] }

// Append writes p after the valid bytes, doubling the capacity as many
// times as needed first. If the required capacity exceeds the limit,
// Append returns ErrOutOfMemory and the buffer is unchanged.
func (b *Buffer) Append(p ...byte) error {
	required := b.length + len(p)
	if required > len(b.data) {
		capacity := len(b.data)
		if capacity == 0 {
			capacity = InitialCapacity
		}
		for capacity < required {
			capacity *= 2
		}
		if b.limit > 0 && capacity > b.limit {
			return fmt.Errorf("%w: need %d bytes, limit %d", ErrOutOfMemory, capacity, b.limit)
		}
		b.grow(capacity)
	}
	copy(b.data[b.length:], p)
	b.length = required
	return nil
}

// grow moves the valid bytes into a new region of the given capacity.
func (b *Buffer) grow(capacity int) {
	grown := make([]byte, capacity)
	copy(grown, b.data[:b.length])
	b.data = grown
}

// Release drops the storage. The buffer reads as empty afterwards.
func (b *Buffer) Release() {
	b.data = nil
	b.length = 0
}
