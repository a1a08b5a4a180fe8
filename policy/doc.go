// Package policy holds the static limits and tunables that drive asset
// delivery: storage quotas, per-type ceilings, the resolution ladder,
// eviction weights, the prefetch budget, retry timing and cache headers.
//
// A Policy is plain data. Build one with Default, adjust it or load a YAML
// or CUE override with Load, then call Validate before handing it to a client.
// Nothing in the module mutates a Policy after construction.
//
//	p, err := policy.Load(fsys, "assets.yaml")
//	if err != nil {
//	    return err
//	}
//	ceiling := p.CeilingFor(asset.TypeTexture)
package policy
