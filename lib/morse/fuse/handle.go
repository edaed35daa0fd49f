// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"syscall"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// endpointHandle is the per-open state of an endpoint file.
//
// The kernel delivers a large write(2) as several FUSE requests at
// increasing offsets. The handle reassembles them and hands the whole
// input to the endpoint as one write when the descriptor is flushed,
// so a symbol group split across requests decodes as one group and the
// earlier requests are not treated as overwritten output.
//
// Reads are the mirror image: the first read request drains the whole
// endpoint into the handle, and every request on the handle is served
// from that snapshot at its offset.
type endpointHandle struct {
	name     string
	endpoint Endpoint
	logger   *slog.Logger

	mu sync.Mutex

	// input holds collected writes. Offsets are relative to base, the
	// offset of the first write since the last commit: an O_APPEND
	// descriptor starts writing at the current file size.
	input   []byte
	base    int64
	writing bool

	// output is the drained endpoint output once drained is set.
	output  []byte
	drained bool
}

var _ gofuse.FileWriter = (*endpointHandle)(nil)
var _ gofuse.FileReader = (*endpointHandle)(nil)
var _ gofuse.FileFlusher = (*endpointHandle)(nil)
var _ gofuse.FileReleaser = (*endpointHandle)(nil)

func newEndpointHandle(name string, endpoint Endpoint, logger *slog.Logger) *endpointHandle {
	return &endpointHandle{name: name, endpoint: endpoint, logger: logger}
}

// Write stores data at offset. Nothing reaches the endpoint until
// Flush.
func (h *endpointHandle) Write(_ context.Context, data []byte, offset int64) (uint32, syscall.Errno) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.writing {
		h.writing = true
		h.base = offset
	}
	position := offset - h.base
	if position < 0 {
		return 0, syscall.EINVAL
	}

	end := position + int64(len(data))
	if end > int64(len(h.input)) {
		grown := make([]byte, end)
		copy(grown, h.input)
		h.input = grown
	}
	copy(h.input[position:], data)

	// New input invalidates a snapshot taken by an earlier read on
	// this handle.
	h.output = nil
	h.drained = false
	return uint32(len(data)), 0
}

// Flush commits collected input as a single endpoint write. It runs on
// every close(2) of a descriptor sharing this handle; only the first
// after new writes has anything to commit. A translation failure is
// reported here, as the close(2) error.
func (h *endpointHandle) Flush(_ context.Context) syscall.Errno {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.commit()
}

// commit must be called with h.mu held.
func (h *endpointHandle) commit() syscall.Errno {
	if !h.writing {
		return 0
	}
	input := h.input
	h.input = nil
	h.writing = false

	if _, err := h.endpoint.Write(input); err != nil {
		errno := errnoFor(err)
		h.logger.Warn("endpoint write failed",
			"endpoint", h.name,
			"bytes", len(input),
			"errno", errno,
			"error", err,
		)
		return errno
	}
	h.logger.Debug("endpoint write committed", "endpoint", h.name, "bytes", len(input))
	return 0
}

// Read serves dest from the drained output. The first read on the
// handle commits pending input, then drains the endpoint.
func (h *endpointHandle) Read(_ context.Context, dest []byte, offset int64) (fuse.ReadResult, syscall.Errno) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.drained {
		if errno := h.commit(); errno != 0 {
			return nil, errno
		}
		h.output = h.endpoint.Read(math.MaxInt)
		h.drained = true
		h.logger.Debug("endpoint drained", "endpoint", h.name, "bytes", len(h.output))
	}
	return sliceAt(h.output, dest, offset), 0
}

// Release drops buffered data. Flush has already committed any input.
func (h *endpointHandle) Release(_ context.Context) syscall.Errno {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.input = nil
	h.output = nil
	return 0
}
