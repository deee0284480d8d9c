// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package huffman implements the entropy filter stage: a frequency table
// (dense or sparse, whichever is smaller) followed by an MSB-first
// bit-packed code stream. See spec §3-4.4 for the wire format.
package huffman

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	modeDense  = 0
	modeSparse = 1

	denseTableBytes = 256 * 4
)

// ErrEmptyTable is returned by Decode when the transmitted frequency table
// has no nonzero entries -- a payload that can never legally decode.
var ErrEmptyTable = errors.New("huffman: empty frequency table")

// Encode counts byte frequencies in input, builds a Huffman tree over
// them, and emits mode byte + table + bit-packed code stream. Empty input
// yields an empty buffer; callers must not invoke Encode for a nonempty
// outer file with empty codec input (spec §4.4).
func Encode(input []byte) ([]byte, error) {
	if len(input) == 0 {
		return nil, nil
	}

	var freq [256]uint32
	for _, b := range input {
		freq[b]++
	}

	leaves := make([]leaf[uint32], 0, 256)
	for s := 0; s < 256; s++ {
		if freq[s] > 0 {
			leaves = append(leaves, leaf[uint32]{symbol: byte(s), freq: freq[s]})
		}
	}
	// The phantom leaf exists only to give the tree depth >= 1; it is never
	// part of the transmitted frequency table, so it costs nothing on the
	// wire and the decoder reconstructs the identical extra leaf from the
	// same one-entry table.
	if len(leaves) == 1 {
		leaves = append(leaves, phantomLeaf)
	}

	arena, root := buildTree(leaves)
	table := codes(arena, root)

	var out []byte
	out = appendTable(out, freq[:])

	var bw bitWriter
	for _, b := range input {
		bw.writeBits(table[b])
	}
	out = append(out, bw.bytes()...)

	return out, nil
}

// phantomLeaf is merged in (tree-construction only, never transmitted)
// whenever exactly one distinct symbol is present, so that symbol still
// gets a non-empty code. Symbol 0 is used unconditionally: it may coincide
// with the real symbol, producing a harmless duplicate leaf, since only
// the tree-walk path matters for decoding, not which leaf a symbol maps
// to in the (discarded) code-assignment map.
var phantomLeaf = leaf[uint32]{symbol: 0, freq: 1}

// appendTable chooses sparse vs dense per spec §3 and appends mode byte +
// table bytes to dst.
func appendTable(dst []byte, freq []uint32) []byte {
	nonzero := 0
	for _, f := range freq {
		if f > 0 {
			nonzero++
		}
	}

	if 2+5*nonzero < denseTableBytes {
		dst = append(dst, modeSparse)
		var cnt [2]byte
		binary.LittleEndian.PutUint16(cnt[:], uint16(nonzero))
		dst = append(dst, cnt[:]...)
		for s, f := range freq {
			if f > 0 {
				var rec [5]byte
				rec[0] = byte(s)
				binary.LittleEndian.PutUint32(rec[1:], f)
				dst = append(dst, rec[:]...)
			}
		}
		return dst
	}

	dst = append(dst, modeDense)
	for _, f := range freq {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], f)
		dst = append(dst, b[:]...)
	}
	return dst
}

// Decode reverses Encode: read the table, rebuild the identical tree via
// the canonical two-queue merge, then walk bits from the root, emitting a
// symbol and resetting to the root on every leaf hit, until every
// transmitted frequency has been accounted for.
func Decode(buf []byte) ([]byte, error) {
	if len(buf) == 0 {
		return nil, nil
	}

	mode := buf[0]
	rest := buf[1:]

	var freq [256]uint32
	var payload []byte

	switch mode {
	case modeDense:
		if len(rest) < denseTableBytes {
			return nil, fmt.Errorf("huffman: truncated dense table (have %d bytes, want %d)", len(rest), denseTableBytes)
		}
		for s := 0; s < 256; s++ {
			freq[s] = binary.LittleEndian.Uint32(rest[s*4:])
		}
		payload = rest[denseTableBytes:]
	case modeSparse:
		if len(rest) < 2 {
			return nil, fmt.Errorf("huffman: truncated sparse count")
		}
		nonzero := int(binary.LittleEndian.Uint16(rest))
		rest = rest[2:]
		need := nonzero * 5
		if len(rest) < need {
			return nil, fmt.Errorf("huffman: truncated sparse table (have %d bytes, want %d)", len(rest), need)
		}
		for i := 0; i < nonzero; i++ {
			rec := rest[i*5:]
			sym := rec[0]
			freq[sym] = binary.LittleEndian.Uint32(rec[1:])
		}
		payload = rest[need:]
	default:
		return nil, fmt.Errorf("huffman: unknown table mode %d", mode)
	}

	leaves := make([]leaf[uint32], 0, 256)
	var total uint64
	for s := 0; s < 256; s++ {
		if freq[s] > 0 {
			leaves = append(leaves, leaf[uint32]{symbol: byte(s), freq: freq[s]})
			total += uint64(freq[s])
		}
	}
	if len(leaves) == 0 {
		return nil, ErrEmptyTable
	}
	// Mirror the encoder: a one-entry table means the encoder merged in the
	// same untransmitted phantom leaf to get a two-leaf tree. total stays
	// based on the real, transmitted frequency only.
	if len(leaves) == 1 {
		leaves = append(leaves, phantomLeaf)
	}

	arena, root := buildTree(leaves)

	out := make([]byte, 0, total)
	br := bitReader{buf: payload}

	cursor := root
	for uint64(len(out)) < total {
		bit, ok := br.readBit()
		if !ok {
			return nil, fmt.Errorf("huffman: bit stream exhausted after %d of %d symbols", len(out), total)
		}
		if bit == 0 {
			cursor = arena[cursor].left
		} else {
			cursor = arena[cursor].right
		}
		if arena[cursor].left == noChild && arena[cursor].right == noChild {
			out = append(out, arena[cursor].symbol)
			cursor = root
		}
	}

	return out, nil
}
