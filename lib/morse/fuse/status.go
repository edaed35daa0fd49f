// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"context"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/bureau-foundation/morsefs/lib/codec"
	"github.com/bureau-foundation/morsefs/lib/morse"
)

const statusIno = 2

// Status is the document served by the status file.
type Status struct {
	Mountpoint string        `cbor:"mountpoint"`
	Started    time.Time     `cbor:"started"`
	Generated  time.Time     `cbor:"generated"`
	Endpoints  []morse.Stats `cbor:"endpoints"`
}

// Status returns the current status document.
func (h *Host) Status() Status {
	return Status{
		Mountpoint: h.options.Mountpoint,
		Started:    h.started,
		Generated:  h.options.Clock.Now(),
		Endpoints:  h.snapshot(),
	}
}

// DecodeStatus parses the contents of a status file.
func DecodeStatus(data []byte) (Status, error) {
	var status Status
	err := codec.Unmarshal(data, &status)
	return status, err
}

// statusNode is the read-only status file. Each open captures one
// snapshot, so a reader sees a consistent document across partial
// reads.
type statusNode struct {
	gofuse.Inode
	host *Host
}

var _ gofuse.InodeEmbedder = (*statusNode)(nil)
var _ gofuse.NodeGetattrer = (*statusNode)(nil)
var _ gofuse.NodeOpener = (*statusNode)(nil)
var _ gofuse.NodeReader = (*statusNode)(nil)

func (s *statusNode) fillAttr(out *fuse.Attr) {
	out.Mode = syscall.S_IFREG | 0o444
	started := s.host.started
	out.SetTimes(nil, &started, &started)
}

func (s *statusNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	s.fillAttr(&out.Attr)
	return 0
}

func (s *statusNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EACCES
	}
	data, err := codec.Marshal(s.host.Status())
	if err != nil {
		s.host.options.Logger.Error("encoding status failed", "error", err)
		return nil, 0, syscall.EIO
	}
	return &statusHandle{data: data}, fuse.FOPEN_DIRECT_IO, 0
}

func (s *statusNode) Read(ctx context.Context, f gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	handle, ok := f.(*statusHandle)
	if !ok {
		return nil, syscall.EBADF
	}
	return sliceAt(handle.data, dest, off), 0
}

// statusHandle holds the snapshot taken at open.
type statusHandle struct {
	data []byte
}

// sliceAt returns the part of data that a read of len(dest) bytes at
// off covers. Reads at or past the end return no data.
func sliceAt(data, dest []byte, off int64) fuse.ReadResult {
	if off < 0 || off >= int64(len(data)) {
		return fuse.ReadResultData(nil)
	}
	end := min(off+int64(len(dest)), int64(len(data)))
	return fuse.ReadResultData(data[off:end])
}
