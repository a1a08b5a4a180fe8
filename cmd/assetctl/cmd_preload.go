package main

import (
	"github.com/spf13/cobra"

	"github.com/jmgilman/go/assets/asset"
	asseterrors "github.com/jmgilman/go/assets/errors"
)

func newPreloadCommand(cfg *config) *cobra.Command {
	opts := &selector{}
	cmd := &cobra.Command{
		Use:   "preload <path>...",
		Short: "Warm the cache with a list of assets",
		Long: `
The "preload" command fetches every listed asset that is not already cached,
using at most the policy's max_concurrent_loads requests at a time. One
failed asset does not stop the others.

EXIT STATUS
===========

Exit status is 0 if every asset is cached afterwards, and non-zero otherwise.
`,
		Args:              cobra.MinimumNArgs(1),
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreload(cmd, cfg, opts, args)
		},
	}
	opts.register(cmd.Flags())
	return cmd
}

type preloadResult struct {
	Key    string                     `json:"key"`
	Cached bool                       `json:"cached"`
	Size   int64                      `json:"size"`
	Error  *asseterrors.ErrorResponse `json:"error,omitempty"`
}

func runPreload(cmd *cobra.Command, cfg *config, opts *selector, paths []string) error {
	ctx := cmd.Context()
	client, err := cfg.open(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	keys := make([]asset.Key, 0, len(paths))
	for _, p := range paths {
		key, _, err := opts.key(client.Policy(), p)
		if err != nil {
			return err
		}
		keys = append(keys, key)
	}

	outcomes := client.PreloadAssets(ctx, keys)
	results := make([]preloadResult, len(outcomes))
	failed := 0
	for i, o := range outcomes {
		results[i] = preloadResult{
			Key:    o.Key.String(),
			Cached: o.Cached,
			Size:   o.Size,
			Error:  asseterrors.ToJSON(o.Err),
		}
		if !o.OK() {
			failed++
		}
	}

	if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
		return err
	}
	if failed > 0 {
		return asseterrors.Newf(asseterrors.CodeAssetUnavailable, "%d of %d assets failed to preload", failed, len(outcomes))
	}
	return nil
}
