// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package archive implements the KalaData container format: the fixed
// magic/version header, the per-member framing, and the writer/reader that
// drive the LZSS and Huffman codecs over it. See spec §3-§4.
package archive

import (
	"errors"
	"fmt"
)

// Method is the per-member storage method.
type Method byte

const (
	MethodRaw  Method = 0
	MethodLZSS Method = 1
)

const (
	magicPrefix    = "KDAT"
	defaultVersion = "01"

	minVersion = 1
	maxVersion = 99

	maxFileCount = 100000

	// maxSourceBytes is the 5 GiB input-size precondition (spec §4.1).
	maxSourceBytes = 5 * 1 << 30
)

var (
	ErrBadMagic       = errors.New("archive: bad magic")
	ErrBadVersion     = errors.New("archive: bad version digits")
	ErrFileCount      = errors.New("archive: file count out of range")
	ErrTruncated      = errors.New("archive: truncated archive")
	ErrMethod         = errors.New("archive: invalid storage method")
	ErrSizeInvariant  = errors.New("archive: stored/original size invariant violated")
	ErrEmptySource    = errors.New("archive: source directory has no regular files")
	ErrSourceTooLarge = errors.New("archive: source exceeds 5 GiB limit")
	ErrBadExtension   = errors.New("archive: target does not have a .kdat extension")
	ErrTargetExists   = errors.New("archive: target archive already exists")
	ErrNotDirectory   = errors.New("archive: path is not a directory")
)

// Stats summarises one compress/decompress call, supplementing spec §6's
// CLI-facing "pretty-printed statistics" carve-out with data for the
// caller to format however it likes.
type Stats struct {
	FilesProcessed int64
	BytesIn        int64
	BytesOut       int64
}

func formatVersionError(digits []byte) error {
	return fmt.Errorf("%w: %q", ErrBadVersion, string(digits))
}
