package main

import (
	"sort"
	"strings"

	"github.com/spf13/cobra"

	asseterrors "github.com/jmgilman/go/assets/errors"
)

func newHealthCommand(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe every configured endpoint",
		Long: `
The "health" command probes the health path of each endpoint and prints
which are up. Probing does not change failover routing.

EXIT STATUS
===========

Exit status is 0 if every endpoint is healthy, and non-zero otherwise.
`,
		Args:              cobra.NoArgs,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client, err := cfg.open(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			status := client.CheckEndpointHealth(ctx)
			if err := writeJSON(cmd.OutOrStdout(), status); err != nil {
				return err
			}

			var down []string
			for name, ok := range status {
				if !ok {
					down = append(down, name)
				}
			}
			if len(down) > 0 {
				sort.Strings(down)
				return asseterrors.WithContext(
					asseterrors.New(asseterrors.CodeNetwork, "unhealthy endpoints: "+strings.Join(down, ", ")),
					"endpoints", down)
			}
			return nil
		},
	}
}
