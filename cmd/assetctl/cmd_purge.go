package main

import (
	"github.com/spf13/cobra"

	asseterrors "github.com/jmgilman/go/assets/errors"
)

func newPurgeCommand(cfg *config) *cobra.Command {
	opts := &selector{}
	var all bool
	cmd := &cobra.Command{
		Use:   "purge [path]",
		Short: "Remove an asset, or every asset, from the cache",
		Long: `
The "purge" command removes one cached variant, selected the same way as for
"fetch", or with --all empties the cache. Purging an asset that is not cached
succeeds.
`,
		Args:              cobra.MaximumNArgs(1),
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return asseterrors.New(asseterrors.CodeInvalidInput, "specify either a path or --all")
			}

			ctx := cmd.Context()
			client, err := cfg.open(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			if all {
				return client.Clear(ctx)
			}
			key, _, err := opts.key(client.Policy(), args[0])
			if err != nil {
				return err
			}
			return client.Purge(ctx, key)
		},
	}
	opts.register(cmd.Flags())
	cmd.Flags().BoolVar(&all, "all", false, "remove every cached asset")
	return cmd
}
