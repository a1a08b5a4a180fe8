package main

import (
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmgilman/go/assets"
	asseterrors "github.com/jmgilman/go/assets/errors"
)

// fetchOptions bundles the options for the fetch command.
type fetchOptions struct {
	selector
	Signal float64
	Output string
}

func newFetchCommand(cfg *config) *cobra.Command {
	opts := &fetchOptions{}
	cmd := &cobra.Command{
		Use:   "fetch <path>",
		Short: "Fetch an asset through the cache",
		Long: `
The "fetch" command returns an asset from the cache, downloading and caching
it first on a miss. With --signal the tier is picked by the resolution
ladder and the next tier up is preloaded before the command exits.

EXIT STATUS
===========

Exit status is 0 if the asset was served, and non-zero otherwise.
`,
		Args:              cobra.ExactArgs(1),
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, cfg, opts, args[0])
		},
	}

	f := cmd.Flags()
	opts.register(f)
	f.Float64Var(&opts.Signal, "signal", 0, "level-of-detail signal; picks the tier instead of --tier")
	f.StringVarP(&opts.Output, "output", "o", "", "write the asset to this file, or - for stdout")
	return cmd
}

type fetchResult struct {
	Key       string `json:"key"`
	Tier      string `json:"tier"`
	Size      int    `json:"size"`
	HumanSize string `json:"human_size"`
	URL       string `json:"url,omitempty"`
}

func runFetch(cmd *cobra.Command, cfg *config, opts *fetchOptions, path string) error {
	ctx := cmd.Context()
	client, err := cfg.open(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	var resp *assets.Response
	if cmd.Flags().Changed("signal") {
		t, err := opts.assetType()
		if err != nil {
			return err
		}
		device, err := opts.device()
		if err != nil {
			return err
		}
		resp, err = client.Request(ctx, assets.AssetRequest{
			Path:   path,
			Type:   t,
			Signal: opts.Signal,
			Device: device,
		})
		if err != nil {
			return err
		}
	} else {
		key, tier, err := opts.key(client.Policy(), path)
		if err != nil {
			return err
		}
		data, err := client.RequestAsset(ctx, key)
		if err != nil {
			return err
		}
		resp = &assets.Response{Key: key, Tier: tier, Data: data}
	}

	switch opts.Output {
	case "":
	case "-":
		_, err := cmd.OutOrStdout().Write(resp.Data)
		return err
	default:
		if err := os.WriteFile(opts.Output, resp.Data, 0o644); err != nil {
			return asseterrors.Wrap(err, asseterrors.CodeStorage, "failed to write output")
		}
	}

	u, _ := client.ResolveURL(resp.Key)
	return writeJSON(cmd.OutOrStdout(), fetchResult{
		Key:       resp.Key.String(),
		Tier:      resp.Tier.String(),
		Size:      len(resp.Data),
		HumanSize: humanize.IBytes(uint64(len(resp.Data))),
		URL:       u,
	})
}
