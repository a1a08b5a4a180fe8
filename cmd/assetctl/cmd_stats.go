package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmgilman/go/assets"
	"github.com/jmgilman/go/assets/asset"
)

func newStatsCommand(cfg *config) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:               "stats",
		Short:             "Show cache usage and metrics",
		Args:              cobra.NoArgs,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := cfg.open(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			stats := client.Stats()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			printStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func printStats(w io.Writer, s assets.Stats) {
	c := s.Cache
	m := c.Metrics

	failed := "none"
	if len(s.FailedEndpoints) > 0 {
		failed = strings.Join(s.FailedEndpoints, ", ")
	}

	fmt.Fprintf(w, "environment:  %s\n", s.Environment)
	fmt.Fprintf(w, "entries:      %d\n", c.Entries)
	fmt.Fprintf(w, "used:         %s of %s (%.1f%%)\n",
		humanize.IBytes(uint64(c.UsedBytes)), humanize.IBytes(uint64(c.MaxBytes)), c.Utilization*100)
	fmt.Fprintf(w, "hit rate:     %.1f%% (%s hits, %s misses)\n",
		m.HitRate*100, humanize.Comma(m.Hits), humanize.Comma(m.Misses))
	fmt.Fprintf(w, "evictions:    %s (%s)\n", humanize.Comma(m.Evictions), humanize.IBytes(uint64(m.BytesEvicted)))
	fmt.Fprintf(w, "prefetch:     %s of %s\n",
		humanize.IBytes(uint64(s.PrefetchBytes)), humanize.IBytes(uint64(s.PrefetchBudget)))
	fmt.Fprintf(w, "failed:       %s\n", failed)

	if len(c.ByType) == 0 {
		return
	}
	types := make([]asset.Type, 0, len(c.ByType))
	for t := range c.ByType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	fmt.Fprintln(w, "by type:")
	for _, t := range types {
		ts := c.ByType[t]
		fmt.Fprintf(w, "  %-8s %4d  %s\n", t, ts.Entries, humanize.IBytes(uint64(ts.Bytes)))
	}
}
