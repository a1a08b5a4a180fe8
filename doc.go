// Package assets delivers 3D assets to a rendering client.
//
// A Client combines four pieces:
//
//   - a resolution ladder that turns a level-of-detail signal into a
//     quality tier, with hysteresis and device caps
//   - a bounded local cache with usage-weighted eviction
//   - a delivery manager that resolves URLs across a primary and a
//     fallback CDN endpoint and fetches with retries and failover
//   - the orchestration between them: cache first, fetch on miss, commit
//     before returning
//
// # Basic usage
//
//	client, err := assets.New(ctx, assets.WithEnvironment(assets.Production))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	resp, err := client.Request(ctx, assets.AssetRequest{
//	    Path:   "skin.png",
//	    Type:   asset.TypeTexture,
//	    Signal: zoom,
//	    Device: assets.DeviceHints{Performance: asset.PerformanceLow},
//	})
//
// # Errors
//
// Errors carry codes from the errors package. Callers typically branch on
// ASSET_UNAVAILABLE (every endpoint failed; HasCode reports whether the
// last failure was a CLIENT_ERROR) and QUOTA_EXCEEDED (the asset can never
// fit in the cache).
//
// # Policy
//
// Every limit comes from a policy.Policy, either policy.Default() or a
// YAML file loaded with policy.Load.
package assets
