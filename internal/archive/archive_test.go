// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package archive

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"

	"github.com/youslam77/kaladata/internal/kdatlog"
	"github.com/youslam77/kaladata/internal/preset"
)

func quietLogger() *kdatlog.Logger { return kdatlog.New(nil, false) }

// hashTree returns a content digest per relative path, used to check a
// restored tree matches the source tree without a byte-for-byte file
// comparison loop.
func hashTree(t *testing.T, root string) map[string]uint64 {
	t.Helper()
	out := map[string]uint64{}
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = xxhash.Sum64(data)
		return nil
	})
	if err != nil {
		t.Fatalf("walking %q: %v", root, err)
	}
	return out
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	source := t.TempDir()
	target := t.TempDir()

	files := map[string]string{
		"a.txt":            "hello, hello, hello world",
		"empty.txt":        "",
		"nested/b.txt":     strings.Repeat("compressible ", 200),
		"nested/deep/c.bin": string([]byte{0x00, 0x01, 0x02, 0xff, 0xfe, 0x00, 0x01, 0x02}),
	}
	writeTree(t, source, files)

	archivePath := filepath.Join(target, "out.kdat")
	logger := quietLogger()

	stats, err := Compress(source, archivePath, preset.ByName(preset.Balanced), logger)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if int(stats.FilesProcessed) != len(files) {
		t.Fatalf("FilesProcessed = %d, want %d", stats.FilesProcessed, len(files))
	}

	restoreDir := t.TempDir()
	dstats, err := Decompress(archivePath, restoreDir, logger)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if dstats.FilesProcessed != stats.FilesProcessed {
		t.Fatalf("decompress processed %d files, compress processed %d", dstats.FilesProcessed, stats.FilesProcessed)
	}

	want := hashTree(t, source)
	got := hashTree(t, restoreDir)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("restored tree content differs (-want +got):\n%s", diff)
	}
}

func TestListMembersMatchesCompress(t *testing.T) {
	source := t.TempDir()
	target := t.TempDir()
	writeTree(t, source, map[string]string{
		"one.txt": "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"two.txt": "unique unrepeated bytes here",
	})

	archivePath := filepath.Join(target, "list.kdat")
	logger := quietLogger()
	if _, err := Compress(source, archivePath, preset.ByName(preset.Fastest), logger); err != nil {
		t.Fatal(err)
	}

	members, err := ListMembers(archivePath)
	if err != nil {
		t.Fatalf("ListMembers: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("got %d members, want 2", len(members))
	}
	for _, m := range members {
		if m.Method != MethodRaw && m.Method != MethodLZSS {
			t.Errorf("member %q has invalid method %d", m.RelPath, m.Method)
		}
	}
}

func TestCompressRejectsEmptySource(t *testing.T) {
	source := t.TempDir()
	target := filepath.Join(t.TempDir(), "out.kdat")
	if _, err := Compress(source, target, preset.ByName(preset.Fastest), quietLogger()); err == nil {
		t.Fatal("expected error for an empty source tree, got nil")
	}
}

func TestCompressRejectsExistingTarget(t *testing.T) {
	source := t.TempDir()
	writeTree(t, source, map[string]string{"a.txt": "x"})

	target := filepath.Join(t.TempDir(), "out.kdat")
	if err := os.WriteFile(target, []byte("already here"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Compress(source, target, preset.ByName(preset.Fastest), quietLogger()); err == nil {
		t.Fatal("expected error for a pre-existing target, got nil")
	}
}

func TestCompressRejectsBadExtension(t *testing.T) {
	source := t.TempDir()
	writeTree(t, source, map[string]string{"a.txt": "x"})

	target := filepath.Join(t.TempDir(), "out.zip")
	if _, err := Compress(source, target, preset.ByName(preset.Fastest), quietLogger()); err == nil {
		t.Fatal("expected error for a non-.kdat target extension, got nil")
	}
}

func TestDecompressRejectsTruncatedHeader(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "broken.kdat")
	if err := os.WriteFile(archivePath, []byte("KD"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Decompress(archivePath, t.TempDir(), quietLogger()); err == nil {
		t.Fatal("expected error for a truncated header, got nil")
	}
}

func TestDecompressRejectsBadMagic(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "broken.kdat")
	if err := os.WriteFile(archivePath, []byte("ZZZZ0100000000"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Decompress(archivePath, t.TempDir(), quietLogger()); err == nil {
		t.Fatal("expected error for bad magic, got nil")
	}
}

// TestConcreteScenarios exercises the literal input/output pairs the
// spec calls out directly.
func TestConcreteScenarios(t *testing.T) {
	t.Run("repetitive text selects LZSS", func(t *testing.T) {
		source := t.TempDir()
		writeTree(t, source, map[string]string{"a.txt": "AAAAAAAAAAAA"})
		archivePath := filepath.Join(t.TempDir(), "out.kdat")
		if _, err := Compress(source, archivePath, preset.ByName(preset.Fastest), quietLogger()); err != nil {
			t.Fatal(err)
		}
		members, err := ListMembers(archivePath)
		if err != nil {
			t.Fatal(err)
		}
		if len(members) != 1 || members[0].Method != MethodLZSS || members[0].OriginalSize != 12 {
			t.Fatalf("got %+v, want a single LZSS member of original size 12", members)
		}

		restoreDir := t.TempDir()
		if _, err := Decompress(archivePath, restoreDir, quietLogger()); err != nil {
			t.Fatal(err)
		}
		got, err := os.ReadFile(filepath.Join(restoreDir, "a.txt"))
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "AAAAAAAAAAAA" {
			t.Fatalf("got %q", got)
		}
	})

	t.Run("high entropy selects RAW", func(t *testing.T) {
		source := t.TempDir()
		// Not a real CSPRNG draw, but high-entropy enough that LZSS+Huffman
		// cannot beat storing it raw -- the property under test.
		random := make([]byte, 4096)
		state := uint32(0x9e3779b9)
		for i := range random {
			state ^= state << 13
			state ^= state >> 17
			state ^= state << 5
			random[i] = byte(state)
		}
		writeTree(t, source, map[string]string{"r.bin": string(random)})
		archivePath := filepath.Join(t.TempDir(), "out.kdat")
		if _, err := Compress(source, archivePath, preset.ByName(preset.Fastest), quietLogger()); err != nil {
			t.Fatal(err)
		}
		members, err := ListMembers(archivePath)
		if err != nil {
			t.Fatal(err)
		}
		if len(members) != 1 || members[0].Method != MethodRaw || members[0].StoredSize != 4096 {
			t.Fatalf("got %+v, want a single RAW member of stored size 4096", members)
		}
	})

	t.Run("empty file round trips", func(t *testing.T) {
		source := t.TempDir()
		writeTree(t, source, map[string]string{"e.txt": ""})
		archivePath := filepath.Join(t.TempDir(), "out.kdat")
		if _, err := Compress(source, archivePath, preset.ByName(preset.Fastest), quietLogger()); err != nil {
			t.Fatal(err)
		}
		members, err := ListMembers(archivePath)
		if err != nil {
			t.Fatal(err)
		}
		if len(members) != 1 || members[0].Method != MethodRaw || members[0].OriginalSize != 0 || members[0].StoredSize != 0 {
			t.Fatalf("got %+v, want a single empty RAW member", members)
		}

		restoreDir := t.TempDir()
		if _, err := Decompress(archivePath, restoreDir, quietLogger()); err != nil {
			t.Fatal(err)
		}
		info, err := os.Stat(filepath.Join(restoreDir, "e.txt"))
		if err != nil {
			t.Fatal(err)
		}
		if info.Size() != 0 {
			t.Fatalf("restored e.txt has size %d, want 0", info.Size())
		}
	})

	t.Run("nested tree preserves relative paths", func(t *testing.T) {
		source := t.TempDir()
		writeTree(t, source, map[string]string{
			"dir/x.txt": "abc",
			"dir/y.txt": "abcabcabc",
		})
		archivePath := filepath.Join(t.TempDir(), "out.kdat")
		if _, err := Compress(source, archivePath, preset.ByName(preset.Fastest), quietLogger()); err != nil {
			t.Fatal(err)
		}
		restoreDir := t.TempDir()
		if _, err := Decompress(archivePath, restoreDir, quietLogger()); err != nil {
			t.Fatal(err)
		}
		for rel, want := range map[string]string{"dir/x.txt": "abc", "dir/y.txt": "abcabcabc"} {
			got, err := os.ReadFile(filepath.Join(restoreDir, filepath.FromSlash(rel)))
			if err != nil {
				t.Fatalf("%s: %v", rel, err)
			}
			if string(got) != want {
				t.Fatalf("%s: got %q, want %q", rel, got, want)
			}
		}
	})
}

func TestDecompressTruncatedMidPayloadKeepsFirstMember(t *testing.T) {
	source := t.TempDir()
	writeTree(t, source, map[string]string{
		"one.txt": "first member content",
		"two.txt": "second member content",
	})
	archivePath := filepath.Join(t.TempDir(), "out.kdat")
	if _, err := Compress(source, archivePath, preset.ByName(preset.Fastest), quietLogger()); err != nil {
		t.Fatal(err)
	}

	// Member order follows the disk-order walk, not the map literal above,
	// so ask the archive itself which member is first.
	members, err := ListMembers(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2 {
		t.Fatalf("got %d members, want 2", len(members))
	}
	first, second := members[0], members[1]

	full, err := os.ReadFile(archivePath)
	if err != nil {
		t.Fatal(err)
	}

	// 6-byte magic/version + u32 file count + first member's full record
	// (path_len, path, method, two u64 sizes, payload) brings us exactly to
	// the start of the second member's record; truncate a few bytes into
	// that record so it never fully decodes.
	firstRecordLen := 4 + len(first.RelPath) + 1 + 8 + 8 + int(first.StoredSize)
	cut := 10 + firstRecordLen + 4 + len(second.RelPath) + 1 + 8 + 8 + 1
	if cut >= len(full) {
		t.Fatalf("test fixture too small to truncate mid second-member payload (cut=%d, len=%d)", cut, len(full))
	}

	truncated := filepath.Join(t.TempDir(), "truncated.kdat")
	if err := os.WriteFile(truncated, full[:cut], 0o644); err != nil {
		t.Fatal(err)
	}

	restoreDir := t.TempDir()
	if _, err := Decompress(truncated, restoreDir, quietLogger()); err == nil {
		t.Fatal("expected an error decompressing a truncated archive, got nil")
	}

	if _, err := os.Stat(filepath.Join(restoreDir, first.RelPath)); err != nil {
		t.Fatalf("first member was not left on disk: %v", err)
	}
	if _, err := os.Stat(filepath.Join(restoreDir, second.RelPath)); err == nil {
		t.Fatal("second member should not have been written")
	}
}

func TestDecompressRejectsPathTraversalMember(t *testing.T) {
	// Hand-craft a one-member archive whose path escapes the target root.
	var buf bytes.Buffer
	buf.WriteString("KDAT01")
	buf.Write([]byte{1, 0, 0, 0}) // file_count = 1

	evil := "../escape.txt"
	pathBytes := []byte(evil)
	writeU32 := func(v uint32) {
		buf.Write([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
	}
	writeU64 := func(v uint64) {
		for i := 0; i < 8; i++ {
			buf.WriteByte(byte(v >> (8 * i)))
		}
	}
	writeU32(uint32(len(pathBytes)))
	buf.Write(pathBytes)
	buf.WriteByte(byte(MethodRaw))
	writeU64(3)
	writeU64(3)
	buf.WriteString("bad")

	archivePath := filepath.Join(t.TempDir(), "evil.kdat")
	if err := os.WriteFile(archivePath, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Decompress(archivePath, t.TempDir(), quietLogger()); err == nil {
		t.Fatal("expected traversal error, got nil")
	}
}
