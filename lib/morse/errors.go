// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package morse

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfMemory is returned when the output buffer would have to
	// grow past its configured ceiling.
	ErrOutOfMemory = errors.New("morse: output buffer limit exceeded")

	// ErrInvalidSymbolGroup is returned when a symbol group is empty or
	// longer than MaxDepth symbols.
	ErrInvalidSymbolGroup = errors.New("morse: invalid symbol group")

	// ErrTranslation matches any *TranslationError via errors.Is.
	ErrTranslation = errors.New("morse: translation error")

	// ErrClosed is returned by writes to a closed session.
	ErrClosed = errors.New("morse: session closed")
)

// TranslationError reports a byte in the input stream that is neither
// a symbol nor a separator.
type TranslationError struct {
	// Offset is the position of the byte in the write that contained it.
	Offset int

	// Byte is the unrecognized input byte.
	Byte byte
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("morse: unrecognized byte %q at offset %d", e.Byte, e.Offset)
}

// Is reports whether target is ErrTranslation.
func (e *TranslationError) Is(target error) bool {
	return target == ErrTranslation
}
