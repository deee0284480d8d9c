// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package archive

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/youslam77/kaladata/internal/huffman"
	"github.com/youslam77/kaladata/internal/kdatlog"
	"github.com/youslam77/kaladata/internal/lzss"
	"github.com/youslam77/kaladata/internal/pathguard"
	"github.com/youslam77/kaladata/internal/preset"
	"github.com/youslam77/kaladata/internal/walk"
)

// Compress packs every regular file under sourceRoot into a new archive at
// targetArchive. Member order follows planMembers' disk-order walk, and is
// the archive's only authoritative ordering (spec §5 "Ordering").
func Compress(sourceRoot, targetArchive string, p preset.Preset, logger *kdatlog.Logger) (Stats, error) {
	var stats Stats

	relPaths, totalIn, err := planMembers(sourceRoot)
	if err != nil {
		return stats, err
	}

	if err := checkTarget(targetArchive); err != nil {
		return stats, err
	}
	if err := pathguard.EnsureWritableDir(filepath.Dir(targetArchive)); err != nil {
		return stats, err
	}

	out, err := os.OpenFile(targetArchive, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return stats, fmt.Errorf("archive: creating %q: %w", targetArchive, err)
	}
	defer out.Close()

	bw := bufio.NewWriter(out)

	if _, err := bw.WriteString(magicPrefix + defaultVersion); err != nil {
		return stats, fmt.Errorf("archive: writing magic: %w", err)
	}
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(relPaths)))
	if _, err := bw.Write(countBuf[:]); err != nil {
		return stats, fmt.Errorf("archive: writing file count: %w", err)
	}

	logger.Printf("packing %d files (%d bytes) from %s into %s", len(relPaths), totalIn, sourceRoot, targetArchive)

	for _, rel := range relPaths {
		full := filepath.Join(sourceRoot, rel)
		raw, err := os.ReadFile(full)
		if err != nil {
			return stats, fmt.Errorf("archive: reading %q: %w", full, err)
		}

		method, payload, err := encodeMember(raw, p)
		if err != nil {
			return stats, fmt.Errorf("archive: encoding %q: %w", rel, err)
		}

		if err := writeMemberRecord(bw, rel, method, uint64(len(raw)), payload); err != nil {
			return stats, fmt.Errorf("archive: writing member %q: %w", rel, err)
		}

		label := "raw"
		if method == MethodLZSS {
			label = "lzss"
		}
		logger.Member(rel, int64(len(raw)), int64(len(payload)), label)

		stats.FilesProcessed++
		stats.BytesIn += int64(len(raw))
		stats.BytesOut += int64(len(payload))
	}

	if err := bw.Flush(); err != nil {
		return stats, fmt.Errorf("archive: flushing %q: %w", targetArchive, err)
	}
	if err := out.Close(); err != nil {
		return stats, fmt.Errorf("archive: closing %q: %w", targetArchive, err)
	}

	return stats, nil
}

// encodeMember runs the compress pipeline (LZSS then Huffman) and picks
// whichever of the pipeline output or the raw bytes is smaller, per spec
// §4.1's per-member algorithm. Empty files short-circuit to raw storage
// without invoking either codec.
func encodeMember(raw []byte, p preset.Preset) (Method, []byte, error) {
	if len(raw) == 0 {
		return MethodRaw, nil, nil
	}

	tokens := lzss.Encode(raw, p)
	huf, err := huffman.Encode(tokens)
	if err != nil {
		return 0, nil, fmt.Errorf("huffman encode: %w", err)
	}

	if len(huf) < len(raw) {
		return MethodLZSS, huf, nil
	}
	return MethodRaw, raw, nil
}

func writeMemberRecord(w io.Writer, relPath string, method Method, originalSize uint64, payload []byte) error {
	pathBytes := []byte(relPath)

	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(pathBytes)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.Write(pathBytes); err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(method)}); err != nil {
		return err
	}

	var sizes [16]byte
	binary.LittleEndian.PutUint64(sizes[0:8], originalSize)
	binary.LittleEndian.PutUint64(sizes[8:16], uint64(len(payload)))
	if _, err := w.Write(sizes[:]); err != nil {
		return err
	}

	_, err := w.Write(payload)
	return err
}

// planMembers enumerates sourceRoot's regular files in disk order (see
// internal/walk), enforcing the "non-empty, <=5 GiB" preconditions
// before any output file is opened.
func planMembers(sourceRoot string) (relPaths []string, totalBytes int64, err error) {
	info, err := os.Stat(sourceRoot)
	if err != nil {
		return nil, 0, fmt.Errorf("archive: source %q: %w", sourceRoot, err)
	}
	if !info.IsDir() {
		return nil, 0, fmt.Errorf("%w: %q", ErrNotDirectory, sourceRoot)
	}

	fsys := os.DirFS(sourceRoot)
	_, paths := walk.FilesInDiskOrder(fsys)
	for rel := range paths {
		fi, statErr := fs.Stat(fsys, rel)
		if statErr != nil {
			return nil, 0, fmt.Errorf("archive: stat %q: %w", rel, statErr)
		}

		relPaths = append(relPaths, filepath.FromSlash(rel))
		totalBytes += fi.Size()
		if totalBytes > maxSourceBytes {
			return nil, 0, ErrSourceTooLarge
		}
	}

	if len(relPaths) == 0 {
		return nil, 0, ErrEmptySource
	}

	return relPaths, totalBytes, nil
}

func checkTarget(targetArchive string) error {
	if filepath.Ext(targetArchive) != ".kdat" {
		return fmt.Errorf("%w: %q", ErrBadExtension, targetArchive)
	}
	if _, err := os.Stat(targetArchive); err == nil {
		return fmt.Errorf("%w: %q", ErrTargetExists, targetArchive)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("archive: checking target %q: %w", targetArchive, err)
	}
	return nil
}
