// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fuse exposes Morse transcoding sessions as files in a FUSE
// filesystem.
//
// The mount root is a flat directory. Each registered endpoint appears
// as a regular file (mode 0666): writing Morse text to it replaces the
// endpoint's pending output, and reading it returns the decoded text
// once. A read-only .status file holds a CBOR snapshot of every
// endpoint's counters.
//
//	$ echo '... --- ...' > /mnt/morse/morse
//	$ cat /mnt/morse/morse
//	SOS
//
// # Read and Write Path
//
// Endpoint files are opened with direct I/O, so the kernel page cache
// never holds decoded output and every read(2) and write(2) reaches the
// endpoint. File offsets are ignored: a write always transcodes the
// data it carries, and a read always drains whatever is pending. The
// first read after a write returns the output; the next one returns
// zero bytes, which ends a cat.
//
// Endpoint errors map to errno values: output over the configured
// ceiling is ENOMEM, invalid input under the abort policy is EINVAL,
// and writes to an unregistered endpoint are EIO.
//
// # Registration
//
// [Host.Register] and [Host.Unregister] add and remove endpoints while
// the filesystem is mounted. Unregistering closes the endpoint, which
// releases any unread output, and invalidates the kernel's cached
// directory entry.
package fuse
