package main

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"bluebear.game/internal/lot"
	"bluebear.game/internal/persistence/lotfile"
	"bluebear.game/internal/threading"
)

func buildFile(o *rootOptions, cmd *cobra.Command, path string) (*lot.Lot, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd, cfg)
	b, err := newBuilder(cfg, logger)
	if err != nil {
		return nil, err
	}
	raw, err := lotfile.Read(path)
	if err != nil {
		return nil, err
	}
	l, err := b.Load(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

func newValidateCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <lot>",
		Short: "Check that a lot document builds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := buildFile(o, cmd, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
			return nil
		},
	}
}

func newInspectCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <lot>",
		Short: "Print a summary of a lot document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := buildFile(o, cmd, args[0])
			if err != nil {
				return err
			}
			return summarize(cmd.OutOrStdout(), l)
		},
	}
}

func newConvertCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "convert <in> <out>",
		Short: "Rebuild a lot and write it back compacted (zstd when <out> ends in .zst)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := buildFile(o, cmd, args[0])
			if err != nil {
				return err
			}
			doc, err := l.Export()
			if err != nil {
				return err
			}
			if err := lotfile.Write(args[1], doc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[1])
			return nil
		},
	}
}

func summarize(w io.Writer, l *lot.Lot) error {
	tiles := map[string]int{}
	empty := 0
	for i := 0; i < l.FloorMap.Len(); i++ {
		c, err := l.FloorMap.CellDirect(i)
		if err != nil {
			return err
		}
		if t, ok := c.Load(); ok && t != nil {
			tiles[t.Key]++
		} else {
			empty++
		}
	}
	segments := 0
	for i := 0; i < l.WallMap.Len(); i++ {
		err := l.WallMap.AccessDirect(i, func(w *lot.WallCell) {
			for _, s := range w.Segments() {
				if *s != nil {
					segments++
				}
			}
		})
		if err != nil && !isEmptyCell(err) {
			return err
		}
	}

	fmt.Fprintf(w, "lot       %s\n", l.ID)
	fmt.Fprintf(w, "size      %d x %d, %d stories (%d underground)\n", l.FloorX, l.FloorY, l.Stories, l.UndergroundStories)
	fmt.Fprintf(w, "terrain   %s, rotation %d, revision %d\n", l.Terrain, l.Rotation, l.Revision)
	fmt.Fprintf(w, "floor     %d cells, %d empty\n", l.FloorMap.Len(), empty)
	keys := make([]string, 0, len(tiles))
	for k := range tiles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-12s %d\n", k, tiles[k])
	}
	fmt.Fprintf(w, "walls     %d cells, %d segments\n", l.WallMap.Len(), segments)
	return nil
}

func isEmptyCell(err error) bool { return errors.Is(err, threading.ErrEmptyCell) }
