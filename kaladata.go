// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package kaladata is the library surface of the KalaData archive tool:
// pack a directory tree into a single ".kdat" container and restore it
// exactly. See spec §1-§2 for the overall design and §6 for this surface.
package kaladata

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/youslam77/kaladata/internal/archive"
	"github.com/youslam77/kaladata/internal/kdatlog"
	"github.com/youslam77/kaladata/internal/preset"
)

// ErrBusy is returned by Compress/Decompress when another operation is
// already in flight (spec §5).
var ErrBusy = errors.New("kaladata: another compress/decompress is already running")

// CodecConfig is the explicit configuration threaded into every
// compress/decompress call: the LZSS window/lookahead and the verbosity
// knob. Spec §9 re-architects the source's process-wide statics into this
// value, keeping a package-level mirror only as a CLI convenience (see
// SetPreset/SetWindow/SetLookahead/SetVerbose below).
type CodecConfig struct {
	Window    int
	Lookahead int
	Verbose   bool

	// LogWriter receives verbose progress lines when Verbose is true. A nil
	// LogWriter with Verbose true silently discards them.
	LogWriter io.Writer
}

// DefaultConfig returns the "fastest" preset, non-verbose.
func DefaultConfig() CodecConfig {
	p := preset.ByName(preset.Fastest)
	return CodecConfig{Window: p.Window, Lookahead: p.Lookahead}
}

func (c CodecConfig) toPreset() preset.Preset {
	return preset.Preset{
		Window:    preset.ClampWindow(c.Window),
		Lookahead: preset.ClampLookahead(c.Lookahead),
	}
}

// Result carries the outcome of one Compress or Decompress call, beyond
// the bare error: a place for the pretty-printing CLI collaborator (spec
// §6) to pull statistics from instead of the core formatting any of it
// itself.
type Result struct {
	stats archive.Stats
}

// Stats returns files processed and bytes in/out for the completed call.
func (r *Result) Stats() (filesProcessed, bytesIn, bytesOut int64) {
	if r == nil {
		return 0, 0, 0
	}
	return r.stats.FilesProcessed, r.stats.BytesIn, r.stats.BytesOut
}

var (
	busy atomic.Bool

	defaultMu  sync.Mutex
	defaultCfg = DefaultConfig()
)

// busyGuard rejects re-entrant compress/decompress calls (spec §5: "a busy
// flag rejects re-entry, including the command layer's issuing new
// commands while one is in flight"). Only one compress or decompress call
// may run at a time, process-wide.
func busyGuard() (release func(), err error) {
	if !busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	return func() { busy.Store(false) }, nil
}

// IsBusy reports whether a compress or decompress call is currently in
// flight.
func IsBusy() bool { return busy.Load() }

// Compress packs sourceRoot into targetArchive per spec §4.1.
func Compress(cfg CodecConfig, sourceRoot, targetArchive string) (*Result, error) {
	release, err := busyGuard()
	if err != nil {
		return nil, err
	}
	defer release()

	logger := kdatlog.New(cfg.LogWriter, cfg.Verbose)
	stats, err := archive.Compress(sourceRoot, targetArchive, cfg.toPreset(), logger)
	return &Result{stats: stats}, err
}

// Decompress restores sourceArchive into targetRoot per spec §4.2.
func Decompress(cfg CodecConfig, sourceArchive, targetRoot string) (*Result, error) {
	release, err := busyGuard()
	if err != nil {
		return nil, err
	}
	defer release()

	logger := kdatlog.New(cfg.LogWriter, cfg.Verbose)
	stats, err := archive.Decompress(sourceArchive, targetRoot, logger)
	return &Result{stats: stats}, err
}

// --- package-level convenience mirror, for the CLI collaborator ---

// SetPreset updates the default CodecConfig's window/lookahead to a named
// preset (spec §6).
func SetPreset(name preset.Name) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	p := preset.ByName(name)
	defaultCfg.Window = p.Window
	defaultCfg.Lookahead = p.Lookahead
}

// SetWindow overrides the default CodecConfig's window size; out-of-range
// values fall back to the fastest preset's window (spec §3).
func SetWindow(bytes int) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultCfg.Window = preset.ClampWindow(bytes)
}

// SetLookahead overrides the default CodecConfig's lookahead, clamped to
// [18, 255].
func SetLookahead(n int) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultCfg.Lookahead = preset.ClampLookahead(n)
}

// SetVerbose toggles the default CodecConfig's logging knob.
func SetVerbose(v bool) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultCfg.Verbose = v
}

// SetLogWriter sets where the default CodecConfig's verbose output goes.
func SetLogWriter(w io.Writer) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultCfg.LogWriter = w
}

// Default returns a copy of the current package-level default CodecConfig.
func Default() CodecConfig {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultCfg
}

// CompressDefault runs Compress with the current package-level default
// configuration, the convenience binding spec §9 describes for the CLI.
func CompressDefault(sourceRoot, targetArchive string) (*Result, error) {
	return Compress(Default(), sourceRoot, targetArchive)
}

// DecompressDefault runs Decompress with the current package-level
// default configuration.
func DecompressDefault(sourceArchive, targetRoot string) (*Result, error) {
	return Decompress(Default(), sourceArchive, targetRoot)
}
