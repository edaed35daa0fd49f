// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package morse

import "fmt"

// Symbol is one element of a Morse character.
type Symbol uint8

const (
	// Dot is the short mark, written as '.'.
	Dot Symbol = 0
	// Dash is the long mark, written as '-'.
	Dash Symbol = 1
)

// String returns the wire representation of the symbol.
func (s Symbol) String() string {
	if s == Dash {
		return "-"
	}
	return "."
}

// MaxDepth is the longest symbol group the decoder table covers. Every
// letter of the Latin alphabet fits in four symbols; digits and
// punctuation (five and six symbols) are outside the table.
const MaxDepth = 4

// Unknown is the character produced for the four-symbol codes that
// stand for non-ASCII letters (Ü, Ä, Ö and CH).
const Unknown = '?'

// table is the binary trie flattened into an array. A node at index i
// has its dot child at 2i and its dash child at 2i+1; the root (the
// empty group) is index 1. Index 0 is unreachable.
var table = [1 << (MaxDepth + 1)]byte{
	0, 0,
	'E', 'T',
	'I', 'A', 'N', 'M',
	'S', 'U', 'R', 'W', 'D', 'K', 'G', 'O',
	'H', 'V', 'F', Unknown, 'L', Unknown, 'P', 'J',
	'B', 'X', 'C', 'Y', 'Z', 'Q', Unknown, Unknown,
}

// SymbolOf returns the symbol for a wire byte and whether the byte is a
// symbol at all.
func SymbolOf(b byte) (Symbol, bool) {
	switch b {
	case '.':
		return Dot, true
	case '-':
		return Dash, true
	}
	return 0, false
}

// Decode returns the character encoded by group. Groups that are empty
// or longer than MaxDepth return ErrInvalidSymbolGroup.
func Decode(group []Symbol) (byte, error) {
	if len(group) == 0 || len(group) > MaxDepth {
		return 0, fmt.Errorf("%w: length %d", ErrInvalidSymbolGroup, len(group))
	}
	index := 1
	for _, symbol := range group {
		index = index<<1 | int(symbol&1)
	}
	return table[index], nil
}
