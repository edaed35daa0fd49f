// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"context"
	"errors"
	"syscall"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/bureau-foundation/morsefs/lib/morse"
)

// endpointNode serves one endpoint as a regular file. The file size is
// the number of unread output bytes; the modification time is the last
// successful write. I/O goes through the endpointHandle returned by
// Open.
type endpointNode struct {
	gofuse.Inode
	name     string
	endpoint Endpoint
	host     *Host
}

var _ gofuse.InodeEmbedder = (*endpointNode)(nil)
var _ gofuse.NodeGetattrer = (*endpointNode)(nil)
var _ gofuse.NodeSetattrer = (*endpointNode)(nil)
var _ gofuse.NodeOpener = (*endpointNode)(nil)

func (e *endpointNode) fillAttr(out *fuse.Attr) {
	out.Mode = syscall.S_IFREG | 0o666
	out.Size = uint64(e.endpoint.Pending())
	out.Blocks = (out.Size + 511) / 512

	modified := e.endpoint.Stats().LastWrite
	if modified.IsZero() {
		modified = e.host.started
	}
	out.SetTimes(nil, &modified, &modified)
}

func (e *endpointNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	e.fillAttr(&out.Attr)
	return 0
}

// Setattr accepts truncation (shell redirection opens with O_TRUNC)
// without touching pending output: the next write replaces it anyway.
// Mode and ownership changes are refused.
func (e *endpointNode) Setattr(ctx context.Context, f gofuse.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if _, ok := in.GetMode(); ok {
		return syscall.EPERM
	}
	if _, ok := in.GetUID(); ok {
		return syscall.EPERM
	}
	if _, ok := in.GetGID(); ok {
		return syscall.EPERM
	}
	e.fillAttr(&out.Attr)
	return 0
}

// Open returns a fresh handle. The kernel splits large transfers into
// several requests, so the handle collects a whole write and a whole
// read before they touch the endpoint.
func (e *endpointNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	return newEndpointHandle(e.name, e.endpoint, e.host.options.Logger), fuse.FOPEN_DIRECT_IO, 0
}

// errnoFor maps endpoint errors to errno values.
func errnoFor(err error) syscall.Errno {
	switch {
	case errors.Is(err, morse.ErrOutOfMemory):
		return syscall.ENOMEM
	case errors.Is(err, morse.ErrTranslation), errors.Is(err, morse.ErrInvalidSymbolGroup):
		return syscall.EINVAL
	}
	return syscall.EIO
}
