// Package assetcache caches AI-generated marketing creatives and finds
// reuse opportunities across campaigns by metadata similarity instead of
// regenerating near-identical assets.
//
// Components:
//   - Index: JSON-backed key -> entry store with content-derived keys,
//     atomic persistence, and self-healing reads.
//   - Matcher: weighted similarity scoring over asset metadata
//     (type, category, region, season, aspect ratio).
//   - Versions: parent/child lineage for derived variants.
//   - Usage: append-only reuse journal; boosts recommendations by
//     historical success.
//   - Tier: local/remote tiering against an object store, with
//     promote-hot and demote-cold sweeps.
//   - Migrator: bulk migration planning, cost estimates, validation.
//
// Keys:
//
//	<16 hex chars>      - sha256 over content + discriminator
//	product:<slug>      - stable product registrations
//
// Typical flow:
//
//	c, _ := assetcache.Open(assetcache.Options{Dir: dir, Remote: store})
//	if m, ok := c.FindReusable(target, "summer_2026", assetcache.ConfidentReuse); ok {
//	    reuse(m.Entry) // skip generation entirely
//	}
package assetcache
