// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package archive

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// MemberInfo describes one member's header fields, without decoding its
// payload -- used by the CLI's listing verb.
type MemberInfo struct {
	RelPath      string
	Method       Method
	OriginalSize uint64
	StoredSize   uint64
}

// ListMembers reads sourceArchive's header and every member's framing,
// skipping over (not decoding) payload bytes.
func ListMembers(sourceArchive string) ([]MemberInfo, error) {
	if err := checkSource(sourceArchive); err != nil {
		return nil, err
	}

	f, err := os.Open(sourceArchive)
	if err != nil {
		return nil, fmt.Errorf("archive: opening %q: %w", sourceArchive, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	count, err := readHeader(br)
	if err != nil {
		return nil, err
	}

	members := make([]MemberInfo, 0, count)
	for i := uint32(0); i < count; i++ {
		mi, err := readMemberHeader(br)
		if err != nil {
			return nil, fmt.Errorf("archive: member %d: %w", i, err)
		}
		members = append(members, mi)
	}
	return members, nil
}

func readMemberHeader(r *bufio.Reader) (MemberInfo, error) {
	var mi MemberInfo

	var pathLenBuf [4]byte
	if _, err := io.ReadFull(r, pathLenBuf[:]); err != nil {
		return mi, fmt.Errorf("%w: reading path length: %v", ErrTruncated, err)
	}
	pathLen := binary.LittleEndian.Uint32(pathLenBuf[:])

	pathBytes := make([]byte, pathLen)
	if _, err := io.ReadFull(r, pathBytes); err != nil {
		return mi, fmt.Errorf("%w: reading path: %v", ErrTruncated, err)
	}

	var methodByte [1]byte
	if _, err := io.ReadFull(r, methodByte[:]); err != nil {
		return mi, fmt.Errorf("%w: reading method: %v", ErrTruncated, err)
	}
	method := Method(methodByte[0])
	if method != MethodRaw && method != MethodLZSS {
		return mi, fmt.Errorf("%w: %d", ErrMethod, methodByte[0])
	}

	var sizeBuf [16]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return mi, fmt.Errorf("%w: reading sizes: %v", ErrTruncated, err)
	}
	originalSize := binary.LittleEndian.Uint64(sizeBuf[0:8])
	storedSize := binary.LittleEndian.Uint64(sizeBuf[8:16])

	if method == MethodRaw && storedSize != originalSize {
		return mi, fmt.Errorf("%w: raw method with stored=%d original=%d", ErrSizeInvariant, storedSize, originalSize)
	}
	if method == MethodLZSS && storedSize >= originalSize {
		return mi, fmt.Errorf("%w: lzss method with stored=%d original=%d", ErrSizeInvariant, storedSize, originalSize)
	}

	if _, err := io.CopyN(io.Discard, r, int64(storedSize)); err != nil {
		return mi, fmt.Errorf("%w: skipping payload: %v", ErrTruncated, err)
	}

	mi.RelPath = string(pathBytes)
	mi.Method = method
	mi.OriginalSize = originalSize
	mi.StoredSize = storedSize
	return mi, nil
}
