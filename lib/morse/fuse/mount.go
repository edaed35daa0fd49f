// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/morsefs/lib/clock"
	"github.com/bureau-foundation/morsefs/lib/logging"
	"github.com/bureau-foundation/morsefs/lib/morse"
)

// StatusFileName is the name of the status file at the mount root.
const StatusFileName = ".status"

// Endpoint is a named byte stream served by the filesystem.
// *morse.Session implements it.
type Endpoint interface {
	// Write consumes input and returns the number of bytes consumed.
	Write(input []byte) (int, error)

	// Read drains up to maxLength bytes of pending output.
	Read(maxLength int) []byte

	// Pending returns the number of bytes the next Read would return
	// given enough room.
	Pending() int

	// Stats returns the endpoint's counters.
	Stats() morse.Stats

	// Close releases held output. Later writes fail.
	Close() error
}

var _ Endpoint = (*morse.Session)(nil)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted.
	Mountpoint string

	// AllowOther permits other users (including root) to access the
	// mount. Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Clock provides timestamps for the root and status file. If nil,
	// the real clock is used.
	Clock clock.Clock

	// Logger receives diagnostic messages. If nil, a no-op logger is
	// used.
	Logger *slog.Logger
}

// Host is a mounted filesystem serving endpoints.
type Host struct {
	options Options
	root    *rootNode
	server  *fuse.Server
	started time.Time

	mu        sync.Mutex
	endpoints map[string]*registration
	nextIno   uint64
}

// registration binds an endpoint to the inode number it is served
// under. A name that is unregistered and registered again gets a new
// inode, so stale kernel handles never reach the new endpoint.
type registration struct {
	endpoint Endpoint
	ino      uint64
}

// Mount mounts the filesystem at the configured mountpoint. The
// mountpoint directory is created if it does not exist. The caller must
// call Unmount on the returned Host when done.
func Mount(options Options) (*Host, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if err := unix.Access("/dev/fuse", unix.R_OK|unix.W_OK); err != nil {
		return nil, fmt.Errorf("/dev/fuse is not accessible: %w", err)
	}
	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	host := newHost(options)

	// Entries change whenever an endpoint is registered, so the kernel
	// only caches them briefly and never caches misses.
	entryTimeout := 100 * time.Millisecond
	attrTimeout := 100 * time.Millisecond
	negativeTimeout := time.Duration(0)

	server, err := gofuse.Mount(host.options.Mountpoint, host.root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "morsefs",
			Name:       "morsefs",
			AllowOther: host.options.AllowOther,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", host.options.Mountpoint, err)
	}
	host.server = server

	host.options.Logger.Info("morse FUSE filesystem mounted", "mountpoint", host.options.Mountpoint)
	return host, nil
}

// newHost builds a host without mounting it.
func newHost(options Options) *Host {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = logging.Discard()
	}
	host := &Host{
		options:   options,
		started:   options.Clock.Now(),
		endpoints: make(map[string]*registration),
		// Inode 1 is the root; 2 is the status file.
		nextIno: 3,
	}
	host.root = &rootNode{host: host}
	return host
}

// Register exposes endpoint under name at the mount root.
func (h *Host) Register(name string, endpoint Endpoint) error {
	if err := validateName(name); err != nil {
		return err
	}
	if endpoint == nil {
		return fmt.Errorf("endpoint %q is nil", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.endpoints[name]; exists {
		return fmt.Errorf("endpoint %q is already registered", name)
	}
	h.endpoints[name] = &registration{endpoint: endpoint, ino: h.nextIno}
	h.nextIno++

	h.options.Logger.Info("endpoint registered", "endpoint", name)
	return nil
}

// Unregister removes the endpoint and closes it, releasing any unread
// output.
func (h *Host) Unregister(name string) error {
	h.mu.Lock()
	entry, exists := h.endpoints[name]
	if exists {
		delete(h.endpoints, name)
	}
	h.mu.Unlock()

	if !exists {
		return fmt.Errorf("endpoint %q is not registered", name)
	}

	if err := entry.endpoint.Close(); err != nil {
		h.options.Logger.Warn("closing endpoint failed", "endpoint", name, "error", err)
	}

	// Outside the lock: the kernel may call back into Lookup while
	// processing the notification.
	if h.server != nil {
		if errno := h.root.NotifyEntry(name); errno != 0 && errno != syscall.ENOENT {
			h.options.Logger.Debug("entry invalidation failed", "endpoint", name, "errno", errno)
		}
	}

	h.options.Logger.Info("endpoint unregistered", "endpoint", name)
	return nil
}

// Endpoints returns the registered endpoint names in sorted order.
func (h *Host) Endpoints() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.endpoints))
	for name := range h.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Mountpoint returns the directory the host is mounted at.
func (h *Host) Mountpoint() string { return h.options.Mountpoint }

// Wait blocks until the filesystem is unmounted.
func (h *Host) Wait() {
	if h.server != nil {
		h.server.Wait()
	}
}

// Unmount unregisters every endpoint and unmounts the filesystem.
func (h *Host) Unmount() error {
	for _, name := range h.Endpoints() {
		if err := h.Unregister(name); err != nil {
			h.options.Logger.Warn("unregistering endpoint during unmount", "endpoint", name, "error", err)
		}
	}
	if h.server == nil {
		return nil
	}
	if err := h.server.Unmount(); err != nil {
		return fmt.Errorf("unmounting %s: %w", h.options.Mountpoint, err)
	}
	h.options.Logger.Info("morse FUSE filesystem unmounted", "mountpoint", h.options.Mountpoint)
	return nil
}

func (h *Host) lookup(name string) (*registration, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.endpoints[name]
	return entry, ok
}

// snapshot returns every endpoint's stats, sorted by name.
func (h *Host) snapshot() []morse.Stats {
	h.mu.Lock()
	entries := make(map[string]Endpoint, len(h.endpoints))
	for name, entry := range h.endpoints {
		entries[name] = entry.endpoint
	}
	h.mu.Unlock()

	stats := make([]morse.Stats, 0, len(entries))
	for name, endpoint := range entries {
		snapshot := endpoint.Stats()
		snapshot.Name = name
		stats = append(stats, snapshot)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

func validateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("endpoint name is required")
	case name == StatusFileName:
		return fmt.Errorf("endpoint name %q is reserved", name)
	case name == "." || name == "..":
		return fmt.Errorf("endpoint name %q is not a valid file name", name)
	}
	for i := 0; i < len(name); i++ {
		if name[i] == '/' || name[i] == 0 {
			return fmt.Errorf("endpoint name %q is not a valid file name", name)
		}
	}
	return nil
}

// rootNode is the mount root. It lists the status file and one file per
// registered endpoint.
type rootNode struct {
	gofuse.Inode
	host *Host
}

var _ gofuse.InodeEmbedder = (*rootNode)(nil)
var _ gofuse.NodeLookuper = (*rootNode)(nil)
var _ gofuse.NodeReaddirer = (*rootNode)(nil)
var _ gofuse.NodeGetattrer = (*rootNode)(nil)

func (r *rootNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = syscall.S_IFDIR | 0o755
	started := r.host.started
	out.SetTimes(nil, &started, &started)
	return 0
}

func (r *rootNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	if name == StatusFileName {
		node := &statusNode{host: r.host}
		node.fillAttr(&out.Attr)
		return r.NewInode(ctx, node, gofuse.StableAttr{Mode: syscall.S_IFREG, Ino: statusIno}), 0
	}

	entry, ok := r.host.lookup(name)
	if !ok {
		return nil, syscall.ENOENT
	}
	node := &endpointNode{
		name:     name,
		endpoint: entry.endpoint,
		host:     r.host,
	}
	node.fillAttr(&out.Attr)
	return r.NewInode(ctx, node, gofuse.StableAttr{Mode: syscall.S_IFREG, Ino: entry.ino}), 0
}

func (r *rootNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	names := r.host.Endpoints()
	entries := make([]fuse.DirEntry, 0, len(names)+1)
	entries = append(entries, fuse.DirEntry{Name: StatusFileName, Mode: syscall.S_IFREG, Ino: statusIno})
	for _, name := range names {
		entry, ok := r.host.lookup(name)
		if !ok {
			continue
		}
		entries = append(entries, fuse.DirEntry{Name: name, Mode: syscall.S_IFREG, Ino: entry.ino})
	}
	return gofuse.NewListDirStream(entries), 0
}
