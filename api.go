package assetcache

import (
	"context"
	"errors"
	"time"

	"github.com/creativepipe/assetcache/remote"
)

// Options configures a Cache. Dir is the only required field.
type Options struct {
	// Dir is the local cache directory. Created if missing.
	Dir string

	// Remote is the object store backing tiered storage. Nil disables
	// all remote operations.
	Remote remote.Store

	// RemotePrefix prepends every remote key. Defaults to
	// "creative-assets" when a remote store is set.
	RemotePrefix string

	// Logger receives diagnostics. Defaults to NopLogger.
	Logger Logger

	// Hooks observes cache lifecycle events. Defaults to NopHooks.
	Hooks Hooks

	// Weights tunes similarity scoring. Zero value means DefaultWeights.
	Weights Weights

	// RetryAttempts bounds retries of failed remote operations.
	// Defaults to 3.
	RetryAttempts uint64

	// RetryInterval is the initial backoff between retries.
	// Defaults to 500ms.
	RetryInterval time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Cache is a semantic asset cache for generated marketing creatives.
// It indexes assets by content, matches them by metadata similarity,
// tracks version lineage, learns from reuse outcomes, and tiers rarely
// used assets to a remote object store.
type Cache struct {
	opts     Options
	idx      *Index
	matcher  *Matcher
	versions *Versions
	usage    *Usage
	tier     *Tier
	migrator *Migrator
	log      Logger
	now      func() time.Time
}

// Open initializes a Cache rooted at opts.Dir, loading any existing
// index, version lineage, and reuse journal.
func Open(opts Options) (*Cache, error) {
	if opts.Dir == "" {
		return nil, errors.New("assetcache: Options.Dir required")
	}
	log := Logger(NopLogger{})
	if opts.Logger != nil {
		log = opts.Logger
	}
	hooks := Hooks(NopHooks{})
	if opts.Hooks != nil {
		hooks = opts.Hooks
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	prefix := opts.RemotePrefix
	if prefix == "" && opts.Remote != nil {
		prefix = "creative-assets"
	}
	attempts := coalesce(opts.RetryAttempts, 3)
	interval := coalesce(opts.RetryInterval, 500*time.Millisecond)

	idx, err := openIndex(opts.Dir, log, hooks, now)
	if err != nil {
		return nil, err
	}
	matcher := newMatcher(idx, opts.Weights)
	versions, err := openVersions(idx, log, now)
	if err != nil {
		return nil, err
	}
	usage, err := openUsage(idx, matcher, log, now)
	if err != nil {
		return nil, err
	}
	tier := newTier(idx, opts.Remote, remote.Layout{Prefix: prefix}, log, hooks, now, attempts, interval)
	migrator := newMigrator(idx, tier, log, now)

	return &Cache{
		opts:     opts,
		idx:      idx,
		matcher:  matcher,
		versions: versions,
		usage:    usage,
		tier:     tier,
		migrator: migrator,
		log:      log,
		now:      now,
	}, nil
}

// Register caches an asset under key with its metadata, associates it
// with campaignID, and uploads it to the remote store when one is
// configured. A failed upload is logged and does not fail registration.
func (c *Cache) Register(ctx context.Context, key, filePath string, md Metadata, campaignID string) error {
	if _, err := c.idx.Set(key, filePath, md); err != nil {
		return err
	}
	if campaignID != "" {
		if err := c.idx.AddCampaign(key, campaignID); err != nil {
			return err
		}
	}
	if c.tier.Enabled() {
		if _, err := c.tier.Upload(ctx, key); err != nil {
			c.log.Warn("deferred remote upload", Fields{"key": key, "err": err})
		}
	}
	return nil
}

// Lookup returns the cached entry for key, bumping its access state.
func (c *Cache) Lookup(key string) (*Entry, bool) { return c.idx.Get(key) }

// Exists reports whether key is cached, without touching access state.
func (c *Cache) Exists(key string) bool { return c.idx.Exists(key) }

// ContentKey derives the cache key for a file's content.
func (c *Cache) ContentKey(filePath, discriminator string) (string, error) {
	return c.idx.ContentKey(filePath, discriminator)
}

// RegisterProduct caches a transparent product cutout under a stable
// product-derived key and returns that key.
func (c *Cache) RegisterProduct(productName, filePath, campaignID string, tags []string) (string, error) {
	return c.idx.RegisterProduct(productName, filePath, campaignID, tags)
}

// LookupProduct finds a registered product by name.
func (c *Cache) LookupProduct(productName string) (*Entry, bool) {
	return c.idx.LookupProduct(productName)
}

// ListProducts returns every registered product, sorted by key.
func (c *Cache) ListProducts() []*Entry { return c.idx.Products() }

// FindSimilar returns cached assets of the given type scoring at least
// minSimilarity against target, best first. limit <= 0 means no limit.
func (c *Cache) FindSimilar(target Metadata, minSimilarity float64, limit int) []Match {
	return c.matcher.Discover(target.AssetType, target, minSimilarity, limit)
}

// FindReusable looks for the single best cross-campaign reuse candidate.
func (c *Cache) FindReusable(target Metadata, campaignID string, minSimilarity float64) (Match, bool) {
	return c.matcher.FindReusable(target, campaignID, minSimilarity)
}

// GetSeasonalBackground finds a scene background matching the category,
// region, and the season implied by date. Style narrows the match when
// set. Requires at least confident-reuse similarity.
func (c *Cache) GetSeasonalBackground(category ProductCategory, region string, date time.Time, style VisualStyle) (*Entry, bool) {
	f := Filter{
		Category: category,
		Region:   region,
		Season:   SeasonForMonth(int(date.Month())),
		Style:    style,
	}
	matches := c.matcher.DiscoverFiltered(AssetSceneBackground, f, ConfidentReuse, 1)
	if len(matches) == 0 {
		return nil, false
	}
	return matches[0].Entry, true
}

// RecordReuse logs that sourceKey was reused in targetCampaign with the
// given outcome. Context is free-form, e.g. "summer hero banner".
func (c *Cache) RecordReuse(sourceKey, targetCampaign string, success bool, context string) error {
	return c.usage.RecordReuse(sourceKey, targetCampaign, success, context)
}

// GetRecommended ranks reuse candidates for target by similarity
// boosted with historical reuse success.
func (c *Cache) GetRecommended(target Metadata, campaignID string, limit int) []Match {
	return c.usage.Recommend(target, campaignID, limit)
}

// GetReuseAnalytics summarizes logged reuse, optionally scoped to one
// campaign.
func (c *Cache) GetReuseAnalytics(campaignID string) AnalyticsReport {
	return c.usage.Analytics(campaignID)
}

// CreateSeasonalVariant derives a new asset from sourceKey with the
// season changed, recording lineage.
func (c *Cache) CreateSeasonalVariant(sourceKey, newKey, newFilePath string, season Season, notes string) (*VersionRecord, error) {
	return c.versions.CreateVariant(sourceKey, newKey, newFilePath, notes, func(md *Metadata) {
		md.Season = season
	})
}

// CreateVariant derives a new asset from sourceKey, inheriting its
// metadata with mutate applied, and records lineage.
func (c *Cache) CreateVariant(sourceKey, newKey, newFilePath, notes string, mutate func(*Metadata)) (*VersionRecord, error) {
	return c.versions.CreateVariant(sourceKey, newKey, newFilePath, notes, mutate)
}

// GetVersionHistory returns the lineage containing key, oldest first.
func (c *Cache) GetVersionHistory(key string) []VersionRecord {
	return c.versions.History(key)
}

// DiscoverCrossCampaign groups assets from other campaigns by type.
func (c *Cache) DiscoverCrossCampaign(excludeCampaign string, assetTypes []AssetType) map[AssetType][]*Entry {
	return c.versions.DiscoverCrossCampaign(excludeCampaign, assetTypes)
}

// GetAssetPath returns a local path for key, restoring the file from
// the remote store when the local copy was demoted.
func (c *Cache) GetAssetPath(ctx context.Context, key string) (string, error) {
	return c.tier.GetAssetPath(ctx, key, true)
}

// PromoteHotAssets restores local copies of remote-only assets accessed
// within the window.
func (c *Cache) PromoteHotAssets(ctx context.Context, hotWindowDays int) ([]string, error) {
	return c.tier.PromoteHot(ctx, hotWindowDays)
}

// DemoteColdAssets uploads and locally evicts assets untouched past the
// threshold.
func (c *Cache) DemoteColdAssets(ctx context.Context, coldThresholdDays int) ([]string, error) {
	return c.tier.DemoteCold(ctx, coldThresholdDays)
}

// SyncRemoteAssets registers remote objects missing from the index.
func (c *Cache) SyncRemoteAssets(ctx context.Context) ([]string, error) {
	return c.tier.SyncRemoteAssets(ctx)
}

// GetStats snapshots cache contents and remote operation counters.
func (c *Cache) GetStats() Stats {
	s := c.idx.Stats()
	s.Remote = c.tier.Counts()
	return s
}

// CleanupStale drops entries whose files vanished or went untouched
// beyond maxAgeDays. Remote-backed entries are kept.
func (c *Cache) CleanupStale(maxAgeDays int) int { return c.idx.CleanupStale(maxAgeDays) }

// Clear removes all cached files and resets the index.
func (c *Cache) Clear() error { return c.idx.Clear() }

// Index exposes the underlying cache index.
func (c *Cache) Index() *Index { return c.idx }

// Matcher exposes the similarity matcher.
func (c *Cache) Matcher() *Matcher { return c.matcher }

// Versions exposes the version tracker.
func (c *Cache) Versions() *Versions { return c.versions }

// Usage exposes the reuse learner.
func (c *Cache) Usage() *Usage { return c.usage }

// Tier exposes the tiered storage manager.
func (c *Cache) Tier() *Tier { return c.tier }

// Migrator exposes the migration planner.
func (c *Cache) Migrator() *Migrator { return c.migrator }
