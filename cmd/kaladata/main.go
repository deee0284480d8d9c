// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Command kaladata is the CLI collaborator (spec §6) around the
// kaladata library: it passes user-supplied paths through as given,
// rejects a reserved device name as the compress target, and drives
// Compress/Decompress/ListMembers. The full
// interactive shell described informationally in spec §6 is out of
// scope (spec §1's "Out of scope" list); this is a plain subcommand CLI
// over the same library surface.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/youslam77/kaladata"
	"github.com/youslam77/kaladata/internal/archive"
	"github.com/youslam77/kaladata/internal/pathguard"
	"github.com/youslam77/kaladata/internal/preset"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "kaladata:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "kaladata",
		Short:         "pack and restore directory trees as .kdat archives",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "log per-member progress (purely informational, no semantic effect)")

	root.AddCommand(newCompressCmd(&verbose))
	root.AddCommand(newDecompressCmd(&verbose))
	root.AddCommand(newListCmd())
	root.AddCommand(newIsBusyCmd())
	root.AddCommand(newSetVerboseCmd())
	root.AddCommand(newToggleVerboseCmd())

	return root
}

func newSetVerboseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-verbose <true|false>",
		Short: "set the package-level default logging verbosity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "true":
				kaladata.SetVerbose(true)
			case "false":
				kaladata.SetVerbose(false)
			default:
				return fmt.Errorf("expected true or false, got %q", args[0])
			}
			return nil
		},
	}
}

func newToggleVerboseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle-verbose",
		Short: "flip the package-level default logging verbosity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cur := kaladata.Default().Verbose
			kaladata.SetVerbose(!cur)
			fmt.Println(!cur)
			return nil
		},
	}
}

func newCompressCmd(verbose *bool) *cobra.Command {
	var presetName string

	cmd := &cobra.Command{
		Use:   "compress <source-dir> <target.kdat>",
		Short: "pack a directory tree into a new .kdat archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, target := args[0], args[1]
			if err := rejectReservedName(target); err != nil {
				return err
			}

			p := preset.ByName(preset.Name(presetName))
			cfg := kaladata.CodecConfig{
				Window:    p.Window,
				Lookahead: p.Lookahead,
				Verbose:   *verbose,
				LogWriter: os.Stderr,
			}

			result, err := kaladata.Compress(cfg, source, target)
			if err != nil {
				return err
			}
			files, in, out := result.Stats()
			fmt.Printf("packed %d files: %d -> %d bytes\n", files, in, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&presetName, "preset", string(preset.Fastest),
		"compression preset: fastest, fast, balanced, slow, archive")
	return cmd
}

func newDecompressCmd(verbose *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decompress <source.kdat> <target-dir>",
		Short: "restore a .kdat archive into an existing directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, target := args[0], args[1]

			cfg := kaladata.CodecConfig{
				Verbose:   *verbose,
				LogWriter: os.Stderr,
			}

			result, err := kaladata.Decompress(cfg, source, target)
			if err != nil {
				return err
			}
			files, in, out := result.Stats()
			fmt.Printf("restored %d files: %d -> %d bytes\n", files, in, out)
			return nil
		},
	}
	return cmd
}

func newListCmd() *cobra.Command {
	var glob string

	cmd := &cobra.Command{
		Use:   "list <archive.kdat>",
		Short: "list members of a .kdat archive without extracting them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			members, err := archive.ListMembers(args[0])
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
			fmt.Fprintln(tw, "METHOD\tORIGINAL\tSTORED\tPATH")
			for _, m := range members {
				if glob != "" {
					matched, err := doublestar.Match(glob, filepath.ToSlash(m.RelPath))
					if err != nil {
						return fmt.Errorf("invalid --glob pattern: %w", err)
					}
					if !matched {
						continue
					}
				}
				method := "raw"
				if m.Method == archive.MethodLZSS {
					method = "lzss"
				}
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", method, m.OriginalSize, m.StoredSize, m.RelPath)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&glob, "glob", "", "only list members whose path matches this doublestar glob")
	return cmd
}

func newIsBusyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "is-busy",
		Short: "report whether a compress/decompress is currently in flight in this process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(kaladata.IsBusy())
			return nil
		},
	}
}

// rejectReservedName enforces spec §6's CLI-layer Windows-device-name
// guard ahead of handing a path to the core.
func rejectReservedName(path string) error {
	base := filepath.Base(path)
	if pathguard.IsReservedName(base) {
		return fmt.Errorf("%q is a reserved device name", base)
	}
	return nil
}
