package main

import (
	"time"

	"github.com/jmgilman/go/fs/billy"
	"github.com/spf13/cobra"

	"github.com/jmgilman/go/assets"
	"github.com/jmgilman/go/assets/asset"
	asseterrors "github.com/jmgilman/go/assets/errors"
)

func newHeadersCommand(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "headers [type]...",
		Short: "Print HTTP caching headers per asset type",
		Long: `
The "headers" command prints the Cache-Control and Expires headers the policy
prescribes for each asset type. With no arguments every type is printed.
`,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := cfg.loadPolicy(billy.NewLocal())
			if err != nil {
				return err
			}

			types := asset.Types
			if len(args) > 0 {
				types = make([]asset.Type, 0, len(args))
				for _, a := range args {
					t, err := asset.ParseType(a)
					if err != nil {
						return asseterrors.Wrap(err, asseterrors.CodeInvalidInput, "invalid asset type")
					}
					types = append(types, t)
				}
			}

			now := time.Now()
			out := make(map[asset.Type]assets.CacheHeaders, len(types))
			for _, t := range types {
				out[t] = assets.BuildCacheHeaders(p.CacheControlFor(t), now)
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}
