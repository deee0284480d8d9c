// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package archive

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/youslam77/kaladata/internal/huffman"
	"github.com/youslam77/kaladata/internal/kdatlog"
	"github.com/youslam77/kaladata/internal/lzss"
	"github.com/youslam77/kaladata/internal/pathguard"
)

// Decompress restores every member of sourceArchive under targetRoot,
// processing members in archive order (spec §5 "readers preserve it").
// Any format, I/O, codec-invariant, or path-traversal failure aborts the
// whole call; members already written to disk stay there (spec §4.5).
func Decompress(sourceArchive, targetRoot string, logger *kdatlog.Logger) (Stats, error) {
	var stats Stats

	if err := checkSource(sourceArchive); err != nil {
		return stats, err
	}

	info, err := os.Stat(targetRoot)
	if err != nil {
		return stats, fmt.Errorf("archive: target root %q: %w", targetRoot, err)
	}
	if !info.IsDir() {
		return stats, fmt.Errorf("%w: %q", ErrNotDirectory, targetRoot)
	}
	// Spec requires target_root's *parent* be writable, mirroring the probe
	// compress runs against target_archive's parent -- not target_root
	// itself, which must already exist per the precondition above.
	if err := pathguard.EnsureWritableDir(filepath.Dir(targetRoot)); err != nil {
		return stats, err
	}

	f, err := os.Open(sourceArchive)
	if err != nil {
		return stats, fmt.Errorf("archive: opening %q: %w", sourceArchive, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)

	fileCount, err := readHeader(br)
	if err != nil {
		return stats, err
	}

	logger.Printf("unpacking %d members from %s into %s", fileCount, sourceArchive, targetRoot)

	for i := uint32(0); i < fileCount; i++ {
		n, err := decodeMember(br, targetRoot, logger)
		stats.BytesIn += n.stored
		stats.BytesOut += n.original
		if err != nil {
			return stats, fmt.Errorf("archive: member %d: %w", i, err)
		}
		stats.FilesProcessed++
	}

	return stats, nil
}

func checkSource(sourceArchive string) error {
	if filepath.Ext(sourceArchive) != ".kdat" {
		return fmt.Errorf("%w: %q", ErrBadExtension, sourceArchive)
	}
	info, err := os.Stat(sourceArchive)
	if err != nil {
		return fmt.Errorf("archive: source %q: %w", sourceArchive, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("archive: %q is not a regular file", sourceArchive)
	}
	return nil
}

// readHeader consumes the 6-byte magic/version and the u32 file count,
// validating both against spec §3/§4.2.
func readHeader(r io.Reader) (uint32, error) {
	var magic [6]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return 0, fmt.Errorf("%w: reading magic: %v", ErrTruncated, err)
	}
	if string(magic[:4]) != magicPrefix {
		return 0, fmt.Errorf("%w: %q", ErrBadMagic, magic[:4])
	}
	if magic[4] < '0' || magic[4] > '9' || magic[5] < '0' || magic[5] > '9' {
		return 0, formatVersionError(magic[4:6])
	}
	version, err := strconv.Atoi(string(magic[4:6]))
	if err != nil || version < minVersion || version > maxVersion {
		return 0, formatVersionError(magic[4:6])
	}

	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return 0, fmt.Errorf("%w: reading file count: %v", ErrTruncated, err)
	}
	count := binary.LittleEndian.Uint32(countBuf[:])
	if count == 0 || count > maxFileCount {
		return 0, fmt.Errorf("%w: %d", ErrFileCount, count)
	}
	return count, nil
}

type memberSizes struct {
	original, stored int64
}

// decodeMember reads one member record and materialises it under
// targetRoot.
func decodeMember(r io.Reader, targetRoot string, logger *kdatlog.Logger) (memberSizes, error) {
	var sizes memberSizes

	var pathLenBuf [4]byte
	if _, err := io.ReadFull(r, pathLenBuf[:]); err != nil {
		return sizes, fmt.Errorf("%w: reading path length: %v", ErrTruncated, err)
	}
	pathLen := binary.LittleEndian.Uint32(pathLenBuf[:])

	pathBytes := make([]byte, pathLen)
	if _, err := io.ReadFull(r, pathBytes); err != nil {
		return sizes, fmt.Errorf("%w: reading path: %v", ErrTruncated, err)
	}
	if len(pathBytes) == 0 {
		return sizes, fmt.Errorf("archive: empty relative path")
	}

	var methodByte [1]byte
	if _, err := io.ReadFull(r, methodByte[:]); err != nil {
		return sizes, fmt.Errorf("%w: reading method: %v", ErrTruncated, err)
	}
	method := Method(methodByte[0])
	if method != MethodRaw && method != MethodLZSS {
		return sizes, fmt.Errorf("%w: %d", ErrMethod, methodByte[0])
	}

	var sizeBuf [16]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return sizes, fmt.Errorf("%w: reading sizes: %v", ErrTruncated, err)
	}
	originalSize := binary.LittleEndian.Uint64(sizeBuf[0:8])
	storedSize := binary.LittleEndian.Uint64(sizeBuf[8:16])
	sizes.original = int64(originalSize)
	sizes.stored = int64(storedSize)

	if method == MethodRaw && storedSize != originalSize {
		return sizes, fmt.Errorf("%w: raw method with stored=%d original=%d", ErrSizeInvariant, storedSize, originalSize)
	}
	if method == MethodLZSS && storedSize >= originalSize {
		return sizes, fmt.Errorf("%w: lzss method with stored=%d original=%d", ErrSizeInvariant, storedSize, originalSize)
	}

	relPath := string(pathBytes)
	outPath, err := pathguard.ResolveUnderRoot(targetRoot, relPath)
	if err != nil {
		return sizes, err
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return sizes, fmt.Errorf("archive: creating parent of %q: %w", outPath, err)
	}

	payload := make([]byte, storedSize)
	if _, err := io.ReadFull(r, payload); err != nil {
		return sizes, fmt.Errorf("%w: reading payload of %q: %v", ErrTruncated, relPath, err)
	}

	var final []byte
	switch method {
	case MethodRaw:
		final = payload
	case MethodLZSS:
		tokens, err := huffman.Decode(payload)
		if err != nil {
			return sizes, fmt.Errorf("huffman decode of %q: %w", relPath, err)
		}
		final, err = lzss.Decode(tokens, int(originalSize))
		if err != nil {
			return sizes, fmt.Errorf("lzss decode of %q: %w", relPath, err)
		}
	}

	if uint64(len(final)) != originalSize {
		return sizes, fmt.Errorf("%w: %q decoded to %d bytes, want %d", ErrSizeInvariant, relPath, len(final), originalSize)
	}

	if err := os.WriteFile(outPath, final, 0o644); err != nil {
		return sizes, fmt.Errorf("archive: writing %q: %w", outPath, err)
	}

	label := "raw"
	if method == MethodLZSS {
		label = "lzss"
	}
	logger.Member(relPath, int64(originalSize), int64(storedSize), label)

	return sizes, nil
}
