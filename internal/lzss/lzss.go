// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package lzss implements the LZSS back-reference codec: a flat byte
// stream of literal and (offset, length) match tokens, searched over a
// configurable sliding window. See spec §4.3 for the wire format.
package lzss

import (
	"encoding/binary"
	"fmt"

	"github.com/youslam77/kaladata/internal/preset"
)

const (
	flagLiteral = 0x01
	flagMatch   = 0x00
)

// hashBits sizes the chain-search hash table; 3-byte prefixes only, since
// MinMatch is 3.
const hashBits = 15
const hashSize = 1 << hashBits

func hash3(b0, b1, b2 byte) uint32 {
	h := uint32(b0) | uint32(b1)<<8 | uint32(b2)<<16
	return (h * 2654435761) >> (32 - hashBits)
}

// Encode walks input left to right, emitting the longest valid match found
// in [p-window, p) at every position, falling back to a literal otherwise.
func Encode(input []byte, cfg preset.Preset) []byte {
	n := len(input)
	if n == 0 {
		return nil
	}

	window := cfg.Window
	lookahead := cfg.Lookahead

	out := make([]byte, 0, n)

	// head[h] is the most recent position whose 3-byte prefix hashes to h.
	// prev[p] is the previous position with the same hash, or -1.
	head := make([]int32, hashSize)
	for i := range head {
		head[i] = -1
	}
	prev := make([]int32, n)

	insert := func(pos int) {
		if pos+3 > n {
			return
		}
		h := hash3(input[pos], input[pos+1], input[pos+2])
		prev[pos] = head[h]
		head[h] = int32(pos)
	}

	p := 0
	for p < n {
		bestLen := 0
		bestPos := -1

		if p+3 <= n {
			h := hash3(input[p], input[p+1], input[p+2])
			cand := head[h]
			minPos := p - window
			maxScan := lookahead
			if p+maxScan > n {
				maxScan = n - p
			}
			for cand >= 0 && int(cand) >= minPos {
				l := matchLen(input, int(cand), p, maxScan)
				// The chain visits candidates most-recent-first (largest i,
				// smallest offset). Ties must resolve to the earliest i, so
				// keep updating bestPos on equal length as we walk toward
				// smaller i.
				if l > bestLen {
					bestLen = l
					bestPos = int(cand)
				} else if l == bestLen && l > 0 {
					bestPos = int(cand)
				}
				cand = prev[cand]
			}
		}

		if bestLen >= preset.MinMatch {
			offset := uint32(p - bestPos)
			out = append(out, flagMatch)
			var buf [4]byte
			binary.LittleEndian.PutUint32(buf[:], offset)
			out = append(out, buf[:]...)
			out = append(out, byte(bestLen))
			for i := 0; i < bestLen; i++ {
				insert(p + i)
			}
			p += bestLen
		} else {
			out = append(out, flagLiteral, input[p])
			insert(p)
			p++
		}
	}

	return out
}

// matchLen returns the longest common prefix of input[cand:] and
// input[p:], capped at maxLen.
func matchLen(input []byte, cand, p, maxLen int) int {
	l := 0
	for l < maxLen && input[cand+l] == input[p+l] {
		l++
	}
	return l
}

// Decode reverses Encode, reconstructing exactly originalSize bytes.
func Decode(tokens []byte, originalSize int) ([]byte, error) {
	out := make([]byte, 0, originalSize)
	i := 0
	for i < len(tokens) {
		flag := tokens[i]
		i++
		switch flag {
		case flagLiteral:
			if i >= len(tokens) {
				return nil, fmt.Errorf("lzss: truncated literal token at offset %d", i)
			}
			out = append(out, tokens[i])
			i++
		case flagMatch:
			if i+5 > len(tokens) {
				return nil, fmt.Errorf("lzss: truncated match token at offset %d", i)
			}
			offset := binary.LittleEndian.Uint32(tokens[i:])
			length := int(tokens[i+4])
			i += 5

			if offset == 0 || uint64(offset) > uint64(len(out)) {
				return nil, fmt.Errorf("lzss: invalid match offset %d at output length %d", offset, len(out))
			}
			if len(out)+length > originalSize {
				return nil, fmt.Errorf("lzss: match would overrun declared size %d", originalSize)
			}
			start := len(out) - int(offset)
			for k := 0; k < length; k++ {
				out = append(out, out[start+k])
			}
		default:
			return nil, fmt.Errorf("lzss: unknown token flag 0x%02x at offset %d", flag, i-1)
		}
	}

	if len(out) != originalSize {
		return nil, fmt.Errorf("lzss: decoded length %d does not match declared size %d", len(out), originalSize)
	}
	return out, nil
}
