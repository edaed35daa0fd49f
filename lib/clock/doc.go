// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts the wall clock so timestamps can be pinned in
// tests. Production code injects [Real]; tests inject [Fake] and move
// time explicitly with Advance.
package clock
