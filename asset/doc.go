// Package asset defines the identifiers shared by the cache, the delivery
// layer and the client: asset types, quality tiers, device performance
// levels and the composite Key that names one cached variant.
package asset
