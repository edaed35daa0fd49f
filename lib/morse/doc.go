// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package morse transcodes Morse code text into ASCII.
//
// The package has three layers:
//
//   - [Decode] maps one symbol group (a run of dots and dashes) to a
//     single character through a fixed binary trie stored as a flat
//     array. The array index is built by folding the symbols onto an
//     implicit leading 1 bit: a dot appends a 0, a dash appends a 1.
//
//   - [Buffer] is the growable output region. It starts at
//     [InitialCapacity] bytes and doubles on overflow, optionally
//     bounded by a ceiling beyond which appends fail with
//     [ErrOutOfMemory].
//
//   - [Session] owns one Buffer and implements the write-then-drain
//     protocol: each Write transcodes its whole input into a fresh
//     buffer (discarding any output that was never read), and the next
//     Read returns that output once and releases it.
//
// # Input Format
//
// Symbols are '.' and '-'. A space ends a character. '|' or '/' ends a
// character and a word (the decoded output gets a trailing space).
// '\n' or '\0' ends a character and a line (trailing newline). The end
// of the input behaves like '\n' when a group is still open. Carriage
// returns are ignored so CRLF input decodes the same as LF input.
//
// Any other byte, and any group longer than [MaxDepth] symbols, is
// invalid. [InvalidInputPolicy] selects whether the session skips the
// offending input with a warning or rejects the whole write.
//
// # Concurrency
//
// A Session is safe for concurrent use. Translation runs on a private
// buffer; only the final swap into the session is serialized, so a
// failed write never leaves partial output behind.
package morse
