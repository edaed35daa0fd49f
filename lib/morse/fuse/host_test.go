// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/bureau-foundation/morsefs/lib/clock"
	"github.com/bureau-foundation/morsefs/lib/morse"
)

// testTimestamp is a fixed timestamp for the fake clock.
var testTimestamp = time.Unix(1735689600, 0) // 2025-01-01T00:00:00Z

func newTestSession(t *testing.T, options morse.SessionOptions) *morse.Session {
	t.Helper()
	session, err := morse.NewSession(options)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return session
}

// unmountedHost returns a host that is never mounted, for exercising
// node operations directly.
func unmountedHost(t *testing.T) (*Host, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(testTimestamp)
	return newHost(Options{Mountpoint: "/unmounted", Clock: fake}), fake
}

func TestRegisterValidation(t *testing.T) {
	host, _ := unmountedHost(t)
	session := newTestSession(t, morse.SessionOptions{})

	for _, name := range []string{"", ".status", ".", "..", "a/b", "nul\x00"} {
		if err := host.Register(name, session); err == nil {
			t.Errorf("Register(%q) succeeded, want error", name)
		}
	}
	if err := host.Register("morse", nil); err == nil {
		t.Error("Register with nil endpoint succeeded")
	}
	if err := host.Register("morse", session); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := host.Register("morse", session); err == nil {
		t.Error("duplicate Register succeeded")
	}
}

func TestUnregisterClosesEndpoint(t *testing.T) {
	host, _ := unmountedHost(t)
	session := newTestSession(t, morse.SessionOptions{})
	if err := host.Register("morse", session); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := session.Write([]byte("...\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := host.Unregister("morse"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if session.Pending() != 0 {
		t.Errorf("Pending after Unregister = %d, want 0", session.Pending())
	}
	if _, err := session.Write([]byte("...\n")); !errors.Is(err, morse.ErrClosed) {
		t.Errorf("Write after Unregister = %v, want ErrClosed", err)
	}
	if err := host.Unregister("morse"); err == nil {
		t.Error("second Unregister succeeded")
	}
	if names := host.Endpoints(); len(names) != 0 {
		t.Errorf("Endpoints after Unregister = %v", names)
	}
}

func TestReregisterGetsNewInode(t *testing.T) {
	host, _ := unmountedHost(t)
	if err := host.Register("morse", newTestSession(t, morse.SessionOptions{})); err != nil {
		t.Fatalf("Register: %v", err)
	}
	first, _ := host.lookup("morse")
	if err := host.Unregister("morse"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if err := host.Register("morse", newTestSession(t, morse.SessionOptions{})); err != nil {
		t.Fatalf("Register again: %v", err)
	}
	second, _ := host.lookup("morse")
	if first.ino == second.ino {
		t.Errorf("re-registered endpoint reused inode %d", first.ino)
	}
	if first.ino == statusIno || second.ino == statusIno {
		t.Error("endpoint inode collides with status file")
	}
}

func TestEndpointHandleWriteRead(t *testing.T) {
	host, _ := unmountedHost(t)
	node := &endpointNode{
		name:     "morse",
		endpoint: newTestSession(t, morse.SessionOptions{}),
		host:     host,
	}
	ctx := context.Background()

	writer := openHandle(t, node)
	input := []byte("... --- ...\n")
	written, errno := writer.Write(ctx, input, 0)
	if errno != 0 {
		t.Fatalf("Write errno = %v", errno)
	}
	if int(written) != len(input) {
		t.Errorf("Write = %d bytes, want %d", written, len(input))
	}
	if pending := node.endpoint.Pending(); pending != 0 {
		t.Errorf("Pending before Flush = %d, want 0", pending)
	}
	if errno := writer.Flush(ctx); errno != 0 {
		t.Fatalf("Flush errno = %v", errno)
	}

	var attr fuse.AttrOut
	if errno := node.Getattr(ctx, nil, &attr); errno != 0 {
		t.Fatalf("Getattr errno = %v", errno)
	}
	if attr.Size != 4 {
		t.Errorf("Size = %d, want 4", attr.Size)
	}
	if attr.Mode != syscall.S_IFREG|0o666 {
		t.Errorf("Mode = %o", attr.Mode)
	}

	if got := readAt(t, openHandle(t, node), 4096, 0); got != "SOS\n" {
		t.Errorf("first Read = %q, want %q", got, "SOS\n")
	}
	if got := readAt(t, openHandle(t, node), 4096, 0); got != "" {
		t.Errorf("second Read = %q, want empty", got)
	}
}

// TestEndpointHandleReassemblesChunkedWrite feeds one input as several
// requests, the way the kernel splits a large write(2), with a symbol
// group straddling each request boundary.
func TestEndpointHandleReassemblesChunkedWrite(t *testing.T) {
	host, _ := unmountedHost(t)
	session := newTestSession(t, morse.SessionOptions{})
	node := &endpointNode{name: "morse", endpoint: session, host: host}
	ctx := context.Background()

	input := strings.Repeat("-- --- .-. ... .|", 1000) + "\n"
	handle := openHandle(t, node)
	const chunk = 7
	for offset := 0; offset < len(input); offset += chunk {
		end := min(offset+chunk, len(input))
		if _, errno := handle.Write(ctx, []byte(input[offset:end]), int64(offset)); errno != 0 {
			t.Fatalf("Write at %d errno = %v", offset, errno)
		}
	}
	if errno := handle.Flush(ctx); errno != 0 {
		t.Fatalf("Flush errno = %v", errno)
	}
	// A second close of a dup'd descriptor has nothing left to commit.
	if errno := handle.Flush(ctx); errno != 0 {
		t.Fatalf("second Flush errno = %v", errno)
	}

	stats := session.Stats()
	if stats.Writes != 1 || stats.Overwrites != 0 {
		t.Errorf("stats = %+v, want exactly one write and no overwrites", stats)
	}
	want := strings.Repeat("MORSE ", 1000) + "\n"
	if got := string(session.Read(len(want) + 1)); got != want {
		t.Errorf("decoded %d bytes, want %d", len(got), len(want))
	}
}

func TestEndpointHandleAppendOffset(t *testing.T) {
	host, _ := unmountedHost(t)
	session := newTestSession(t, morse.SessionOptions{})
	node := &endpointNode{name: "morse", endpoint: session, host: host}
	ctx := context.Background()

	// O_APPEND writes start at the current file size, not zero.
	handle := openHandle(t, node)
	if _, errno := handle.Write(ctx, []byte("... "), 40); errno != 0 {
		t.Fatalf("Write errno = %v", errno)
	}
	if _, errno := handle.Write(ctx, []byte("---\n"), 44); errno != 0 {
		t.Fatalf("Write errno = %v", errno)
	}
	if _, errno := handle.Write(ctx, []byte("x"), 10); errno != syscall.EINVAL {
		t.Errorf("Write before base offset errno = %v, want EINVAL", errno)
	}
	if errno := handle.Flush(ctx); errno != 0 {
		t.Fatalf("Flush errno = %v", errno)
	}
	if got := string(session.Read(64)); got != "SO\n" {
		t.Errorf("decoded %q, want %q", got, "SO\n")
	}
}

// TestEndpointHandleReadSnapshot reads output larger than one request
// in several requests at increasing offsets.
func TestEndpointHandleReadSnapshot(t *testing.T) {
	host, _ := unmountedHost(t)
	session := newTestSession(t, morse.SessionOptions{})
	node := &endpointNode{name: "morse", endpoint: session, host: host}

	if _, err := session.Write([]byte(strings.Repeat(". ", 3000))); err != nil {
		t.Fatalf("Write: %v", err)
	}

	handle := openHandle(t, node)
	var output strings.Builder
	for {
		chunk := readAt(t, handle, 1024, int64(output.Len()))
		if chunk == "" {
			break
		}
		output.WriteString(chunk)
	}
	if output.String() != strings.Repeat("E", 3000) {
		t.Errorf("read %d bytes, want 3000 E's", output.Len())
	}
	if stats := session.Stats(); stats.Reads != 1 || stats.BytesRead != 3000 {
		t.Errorf("stats = %+v, want one read of 3000 bytes", stats)
	}
	if got := readAt(t, openHandle(t, node), 1024, 0); got != "" {
		t.Errorf("read after drain = %q, want empty", got)
	}
}

func TestEndpointHandleReadAfterWrite(t *testing.T) {
	host, _ := unmountedHost(t)
	node := &endpointNode{name: "morse", endpoint: newTestSession(t, morse.SessionOptions{}), host: host}
	ctx := context.Background()

	handle := openHandle(t, node)
	if _, errno := handle.Write(ctx, []byte(".. -\n"), 0); errno != 0 {
		t.Fatalf("Write errno = %v", errno)
	}
	if got := readAt(t, handle, 64, 0); got != "IT\n" {
		t.Errorf("Read on the writing handle = %q, want %q", got, "IT\n")
	}
	if errno := handle.Flush(ctx); errno != 0 {
		t.Errorf("Flush after read errno = %v", errno)
	}
}

func TestEndpointNodeOpenUsesDirectIO(t *testing.T) {
	host, _ := unmountedHost(t)
	node := &endpointNode{name: "morse", endpoint: newTestSession(t, morse.SessionOptions{}), host: host}
	_, flags, errno := node.Open(context.Background(), syscall.O_RDWR|syscall.O_TRUNC)
	if errno != 0 {
		t.Fatalf("Open errno = %v", errno)
	}
	if flags&fuse.FOPEN_DIRECT_IO == 0 {
		t.Errorf("Open flags = %#x, want FOPEN_DIRECT_IO", flags)
	}
}

func TestEndpointHandleFlushErrnos(t *testing.T) {
	host, _ := unmountedHost(t)
	tests := []struct {
		name    string
		options morse.SessionOptions
		input   string
		close   bool
		want    syscall.Errno
	}{
		{"output limit", morse.SessionOptions{MaxCapacity: 8}, ". . . . . . . . . .\n", false, syscall.ENOMEM},
		{"abort on foreign byte", morse.SessionOptions{Policy: morse.PolicyAbort}, "... x\n", false, syscall.EINVAL},
		{"abort on long group", morse.SessionOptions{Policy: morse.PolicyAbort}, "......\n", false, syscall.EINVAL},
		{"closed", morse.SessionOptions{}, "...\n", true, syscall.EIO},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			session := newTestSession(t, test.options)
			if test.close {
				session.Close()
			}
			node := &endpointNode{name: "morse", endpoint: session, host: host}
			handle := openHandle(t, node)
			written, errno := handle.Write(context.Background(), []byte(test.input), 0)
			if errno != 0 || int(written) != len(test.input) {
				t.Fatalf("Write = %d, %v; want %d, 0", written, errno, len(test.input))
			}
			if errno := handle.Flush(context.Background()); errno != test.want {
				t.Errorf("Flush errno = %v, want %v", errno, test.want)
			}
		})
	}
}

func TestErrnoForWrapped(t *testing.T) {
	wrapped := fmt.Errorf("writing: %w", morse.ErrOutOfMemory)
	if errno := errnoFor(wrapped); errno != syscall.ENOMEM {
		t.Errorf("errnoFor(wrapped ErrOutOfMemory) = %v", errno)
	}
	if errno := errnoFor(errors.New("other")); errno != syscall.EIO {
		t.Errorf("errnoFor(other) = %v", errno)
	}
}

func TestEndpointNodeSetattr(t *testing.T) {
	host, _ := unmountedHost(t)
	node := &endpointNode{name: "morse", endpoint: newTestSession(t, morse.SessionOptions{}), host: host}
	ctx := context.Background()

	var truncate fuse.SetAttrIn
	truncate.Valid = fuse.FATTR_SIZE
	var out fuse.AttrOut
	if errno := node.Setattr(ctx, nil, &truncate, &out); errno != 0 {
		t.Errorf("truncate errno = %v", errno)
	}

	var chmod fuse.SetAttrIn
	chmod.Valid = fuse.FATTR_MODE
	chmod.Mode = 0o600
	if errno := node.Setattr(ctx, nil, &chmod, &out); errno != syscall.EPERM {
		t.Errorf("chmod errno = %v, want EPERM", errno)
	}
}

func TestEndpointNodeModTime(t *testing.T) {
	host, fake := unmountedHost(t)
	session := newTestSession(t, morse.SessionOptions{Clock: fake})
	node := &endpointNode{name: "morse", endpoint: session, host: host}

	var before fuse.AttrOut
	node.Getattr(context.Background(), nil, &before)
	if before.Mtime != uint64(testTimestamp.Unix()) {
		t.Errorf("Mtime before write = %d, want mount time %d", before.Mtime, testTimestamp.Unix())
	}

	fake.Advance(time.Minute)
	if _, err := session.Write([]byte(".\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var after fuse.AttrOut
	node.Getattr(context.Background(), nil, &after)
	if want := uint64(testTimestamp.Add(time.Minute).Unix()); after.Mtime != want {
		t.Errorf("Mtime after write = %d, want %d", after.Mtime, want)
	}
}

func TestRootReaddir(t *testing.T) {
	host, _ := unmountedHost(t)
	for _, name := range []string{"telegraph", "morse"} {
		if err := host.Register(name, newTestSession(t, morse.SessionOptions{})); err != nil {
			t.Fatalf("Register(%s): %v", name, err)
		}
	}

	stream, errno := host.root.Readdir(context.Background())
	if errno != 0 {
		t.Fatalf("Readdir errno = %v", errno)
	}
	var names []string
	for stream.HasNext() {
		entry, errno := stream.Next()
		if errno != 0 {
			t.Fatalf("Next errno = %v", errno)
		}
		names = append(names, entry.Name)
	}
	want := []string{".status", "morse", "telegraph"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Errorf("Readdir = %v, want %v", names, want)
	}
}

func TestStatusDocument(t *testing.T) {
	host, fake := unmountedHost(t)
	session := newTestSession(t, morse.SessionOptions{Clock: fake})
	if err := host.Register("morse", session); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := session.Write([]byte("-- --- .-. ... .\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	node := &statusNode{host: host}
	handle, flags, errno := node.Open(context.Background(), syscall.O_RDONLY)
	if errno != 0 {
		t.Fatalf("Open errno = %v", errno)
	}
	if flags&fuse.FOPEN_DIRECT_IO == 0 {
		t.Error("status file not opened with direct I/O")
	}

	data := handle.(*statusHandle).data
	status, err := DecodeStatus(data)
	if err != nil {
		t.Fatalf("DecodeStatus: %v", err)
	}
	if status.Mountpoint != "/unmounted" {
		t.Errorf("Mountpoint = %q", status.Mountpoint)
	}
	if !status.Started.Equal(testTimestamp) {
		t.Errorf("Started = %v, want %v", status.Started, testTimestamp)
	}
	if len(status.Endpoints) != 1 {
		t.Fatalf("Endpoints = %+v, want 1 entry", status.Endpoints)
	}
	stats := status.Endpoints[0]
	if stats.Name != "morse" || stats.Writes != 1 || stats.Pending != 6 || stats.Capacity != 8 {
		t.Errorf("endpoint stats = %+v", stats)
	}

	// Partial reads walk the captured snapshot.
	first := make([]byte, 5)
	result, errno := node.Read(context.Background(), handle, first, 0)
	if errno != 0 {
		t.Fatalf("Read errno = %v", errno)
	}
	chunk, _ := result.Bytes(nil)
	if string(chunk) != string(data[:5]) {
		t.Errorf("first chunk = %x, want %x", chunk, data[:5])
	}
	result, _ = node.Read(context.Background(), handle, make([]byte, 5), int64(len(data)))
	if chunk, _ := result.Bytes(nil); len(chunk) != 0 {
		t.Errorf("read past end returned %d bytes", len(chunk))
	}
}

func TestStatusRejectsWrite(t *testing.T) {
	host, _ := unmountedHost(t)
	node := &statusNode{host: host}
	if _, _, errno := node.Open(context.Background(), syscall.O_WRONLY); errno != syscall.EACCES {
		t.Errorf("Open for write errno = %v, want EACCES", errno)
	}
}

func openHandle(t *testing.T, node *endpointNode) *endpointHandle {
	t.Helper()
	handle, _, errno := node.Open(context.Background(), syscall.O_RDWR)
	if errno != 0 {
		t.Fatalf("Open errno = %v", errno)
	}
	return handle.(*endpointHandle)
}

func readAt(t *testing.T, handle *endpointHandle, size int, offset int64) string {
	t.Helper()
	result, errno := handle.Read(context.Background(), make([]byte, size), offset)
	if errno != 0 {
		t.Fatalf("Read errno = %v", errno)
	}
	data, status := result.Bytes(nil)
	if !status.Ok() {
		t.Fatalf("ReadResult.Bytes status = %v", status)
	}
	return string(data)
}
