package assetcache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/creativepipe/assetcache/internal/keys"
	"github.com/creativepipe/assetcache/remote"
)

// TierState describes where an asset's bytes currently live.
type TierState string

const (
	// TierLocal means the asset exists only on local disk.
	TierLocal TierState = "local"
	// TierRemoteOnly means the local copy was demoted and the asset
	// must be downloaded before use.
	TierRemoteOnly TierState = "remote_only"
	// TierBoth means the asset is on disk and backed by the remote store.
	TierBoth TierState = "both"
)

// OpCounts tracks remote operations performed by a Tier.
type OpCounts struct {
	Uploads   int64 `json:"uploads"`
	Downloads int64 `json:"downloads"`
	Deletes   int64 `json:"deletes"`
	Failures  int64 `json:"failures"`
}

// Tier moves assets between local disk and the remote store based on
// access recency. A nil store disables all remote operations.
type Tier struct {
	idx    *Index
	store  remote.Store
	layout remote.Layout
	log    Logger
	hooks  Hooks
	now    func() time.Time

	retryAttempts uint64
	retryInterval time.Duration

	uploads   atomic.Int64
	downloads atomic.Int64
	deletes   atomic.Int64
	failures  atomic.Int64
}

func newTier(idx *Index, store remote.Store, layout remote.Layout, log Logger, hooks Hooks, now func() time.Time, attempts uint64, interval time.Duration) *Tier {
	return &Tier{
		idx:           idx,
		store:         store,
		layout:        layout,
		log:           log,
		hooks:         hooks,
		now:           now,
		retryAttempts: attempts,
		retryInterval: interval,
	}
}

// Enabled reports whether a remote store is configured.
func (t *Tier) Enabled() bool { return t.store != nil }

// Counts returns a snapshot of remote operation counters.
func (t *Tier) Counts() OpCounts {
	return OpCounts{
		Uploads:   t.uploads.Load(),
		Downloads: t.downloads.Load(),
		Deletes:   t.deletes.Load(),
		Failures:  t.failures.Load(),
	}
}

// State derives the tier state of a cached asset.
func (t *Tier) State(key string) (TierState, error) {
	e, ok := t.idx.peek(key)
	if !ok {
		return "", ErrNotFound
	}
	_, statErr := os.Stat(e.FilePath)
	local := statErr == nil
	switch {
	case local && e.RemoteKey != "":
		return TierBoth, nil
	case e.RemoteKey != "":
		return TierRemoteOnly, nil
	case local:
		return TierLocal, nil
	default:
		return "", &SourceMissingError{Key: key, Path: e.FilePath, Err: statErr}
	}
}

// retry wraps a remote operation in bounded exponential backoff.
func (t *Tier) retry(ctx context.Context, op string, key string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.retryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, t.retryAttempts), ctx)
	err := backoff.Retry(fn, policy)
	if err != nil {
		t.failures.Add(1)
		t.hooks.RemoteOpFailed(op, key, err)
	}
	return err
}

// remoteKeyFor maps an entry to its place in the remote layout.
func (t *Tier) remoteKeyFor(e *Entry) string {
	filename := filepath.Base(e.FilePath)
	md := e.Metadata
	switch md.AssetType {
	case AssetProductTransparent:
		slug := keys.Slugify(md.ProductName)
		if slug == "" {
			slug = strings.TrimSuffix(filename, filepath.Ext(filename))
		}
		return t.layout.ProductKey(string(md.ProductCategory), slug, filename)
	case AssetSceneBackground:
		return t.layout.SceneKey(md.Region, string(md.Season), filename)
	case AssetComposite, AssetTextOverlay:
		campaign := "shared"
		if len(e.Campaigns) > 0 {
			campaign = e.Campaigns[0]
		}
		slug := strings.TrimSuffix(filename, filepath.Ext(filename))
		return t.layout.CompositeKey(campaign, slug, md.AspectRatio, filename)
	default:
		return t.layout.ProductKey("general", e.Key, filename)
	}
}

func objectMetadata(e *Entry) map[string]string {
	md := map[string]string{
		"cache-key":  e.Key,
		"asset-type": string(e.Metadata.AssetType),
	}
	if e.Metadata.ProductCategory != "" {
		md["category"] = string(e.Metadata.ProductCategory)
	}
	if e.Metadata.Region != "" {
		md["region"] = e.Metadata.Region
	}
	return md
}

// Upload copies a cached asset to the remote store and records its
// remote key. Uploading an already-backed asset refreshes the object.
func (t *Tier) Upload(ctx context.Context, key string) (string, error) {
	if !t.Enabled() {
		return "", ErrRemoteDisabled
	}
	e, ok := t.idx.peek(key)
	if !ok {
		return "", ErrNotFound
	}
	if _, err := os.Stat(e.FilePath); err != nil {
		return "", &SourceMissingError{Key: key, Path: e.FilePath, Err: err}
	}
	rk := e.RemoteKey
	if rk == "" {
		rk = t.remoteKeyFor(e)
	}
	err := t.retry(ctx, "upload", key, func() error {
		return t.store.Upload(ctx, rk, e.FilePath, objectMetadata(e))
	})
	if err != nil {
		return "", err
	}
	t.uploads.Add(1)
	if err := t.idx.setRemoteKey(key, rk); err != nil {
		return "", err
	}
	t.log.Debug("uploaded asset", Fields{"key": key, "remote_key": rk})
	return rk, nil
}

// GetAssetPath returns a usable local path for the asset. When the local
// copy is gone and the asset is remote-backed, autoDownload restores it.
func (t *Tier) GetAssetPath(ctx context.Context, key string, autoDownload bool) (string, error) {
	e, ok := t.idx.peek(key)
	if !ok {
		return "", ErrNotFound
	}
	if _, err := os.Stat(e.FilePath); err == nil {
		t.idx.touch(key)
		return e.FilePath, nil
	}
	if e.RemoteKey == "" || !autoDownload {
		return "", ErrNotFound
	}
	if !t.Enabled() {
		return "", ErrRemoteDisabled
	}
	err := t.retry(ctx, "download", key, func() error {
		return t.store.Download(ctx, e.RemoteKey, e.FilePath)
	})
	if err != nil {
		return "", err
	}
	t.downloads.Add(1)
	t.idx.touch(key)
	t.log.Info("restored asset from remote", Fields{"key": key, "remote_key": e.RemoteKey})
	t.hooks.AssetPromoted(key)
	return e.FilePath, nil
}

// PromoteHot downloads remote-only assets accessed within hotWindowDays
// so upcoming reads hit local disk. Returns the keys promoted.
func (t *Tier) PromoteHot(ctx context.Context, hotWindowDays int) ([]string, error) {
	if !t.Enabled() {
		return nil, ErrRemoteDisabled
	}
	cutoff := t.now().AddDate(0, 0, -hotWindowDays)
	var promoted []string
	for _, e := range t.idx.snapshot() {
		if e.RemoteKey == "" || e.AccessedAt.Before(cutoff) {
			continue
		}
		if _, err := os.Stat(e.FilePath); err == nil {
			continue
		}
		e := e
		err := t.retry(ctx, "download", e.Key, func() error {
			return t.store.Download(ctx, e.RemoteKey, e.FilePath)
		})
		if err != nil {
			t.log.Warn("promote failed", Fields{"key": e.Key, "err": err})
			continue
		}
		t.downloads.Add(1)
		t.hooks.AssetPromoted(e.Key)
		promoted = append(promoted, e.Key)
	}
	if len(promoted) > 0 {
		t.log.Info("promoted hot assets", Fields{"count": len(promoted)})
	}
	return promoted, nil
}

// DemoteCold uploads assets untouched for coldThresholdDays and removes
// the local copy. The local file is deleted only after the remote object
// is verified to exist with the expected size.
func (t *Tier) DemoteCold(ctx context.Context, coldThresholdDays int) ([]string, error) {
	if !t.Enabled() {
		return nil, ErrRemoteDisabled
	}
	cutoff := t.now().AddDate(0, 0, -coldThresholdDays)
	var demoted []string
	for _, e := range t.idx.snapshot() {
		if !e.AccessedAt.Before(cutoff) {
			continue
		}
		fi, err := os.Stat(e.FilePath)
		if err != nil {
			continue
		}
		rk, err := t.Upload(ctx, e.Key)
		if err != nil {
			t.log.Warn("demote upload failed", Fields{"key": e.Key, "err": err})
			continue
		}
		info, found, headErr := t.store.Head(ctx, rk)
		if headErr != nil || !found || info.SizeBytes != fi.Size() {
			verifyErr := headErr
			if verifyErr == nil {
				verifyErr = fmt.Errorf("remote object %s missing or size mismatch", rk)
			}
			t.log.Error("demote verification failed, keeping local copy",
				Fields{"key": e.Key, "err": verifyErr})
			t.hooks.RemoteOpFailed("verify", e.Key, &DemoteError{Key: e.Key, VerifyErr: verifyErr})
			continue
		}
		if err := os.Remove(e.FilePath); err != nil {
			t.log.Warn("demote local delete failed", Fields{"key": e.Key, "err": err})
			continue
		}
		t.hooks.AssetDemoted(e.Key)
		demoted = append(demoted, e.Key)
	}
	if len(demoted) > 0 {
		t.log.Info("demoted cold assets", Fields{"count": len(demoted), "threshold_days": coldThresholdDays})
	}
	return demoted, nil
}

// Progress reports batch transfer state. Callbacks receive a snapshot
// after every file.
type Progress struct {
	Total    int
	Uploaded int
	Failed   int
	Bytes    int64
	Started  time.Time
	nowFn    func() time.Time
}

// Elapsed is the wall time since the batch started.
func (p Progress) Elapsed() time.Duration {
	now := time.Now
	if p.nowFn != nil {
		now = p.nowFn
	}
	return now().Sub(p.Started)
}

// MBPerSec is the effective transfer throughput so far.
func (p Progress) MBPerSec() float64 {
	secs := p.Elapsed().Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(p.Bytes) / (1024 * 1024) / secs
}

// BatchUpload uploads every local-only cached asset, invoking cb after
// each file. Individual failures are counted, not fatal.
func (t *Tier) BatchUpload(ctx context.Context, cb func(Progress)) (Progress, error) {
	if !t.Enabled() {
		return Progress{}, ErrRemoteDisabled
	}
	entries := t.idx.snapshot()
	var pending []*Entry
	for _, e := range entries {
		if e.RemoteKey == "" {
			pending = append(pending, e)
		}
	}
	p := Progress{Total: len(pending), Started: t.now(), nowFn: t.now}
	for _, e := range pending {
		if err := ctx.Err(); err != nil {
			return p, err
		}
		if _, err := t.Upload(ctx, e.Key); err != nil {
			p.Failed++
		} else {
			p.Uploaded++
			p.Bytes += e.SizeBytes
		}
		if cb != nil {
			cb(p)
		}
	}
	t.log.Info("batch upload complete", Fields{
		"total": p.Total, "uploaded": p.Uploaded, "failed": p.Failed,
	})
	return p, nil
}

// SyncRemoteAssets lists the remote store and registers objects that are
// not yet in the index as remote-only entries. Returns the keys added.
func (t *Tier) SyncRemoteAssets(ctx context.Context) ([]string, error) {
	if !t.Enabled() {
		return nil, ErrRemoteDisabled
	}
	prefix := ""
	if t.layout.Prefix != "" {
		prefix = strings.Trim(t.layout.Prefix, "/") + "/"
	}
	var infos []remote.ObjectInfo
	err := t.retry(ctx, "list", prefix, func() error {
		var listErr error
		infos, listErr = t.store.List(ctx, prefix)
		return listErr
	})
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool)
	for _, e := range t.idx.snapshot() {
		if e.RemoteKey != "" {
			known[e.RemoteKey] = true
		}
	}
	var added []string
	for _, info := range infos {
		if known[info.Key] || info.Key == t.layout.IndexKey() {
			continue
		}
		key := info.Metadata["cache-key"]
		if key == "" {
			key = keys.Slugify(strings.TrimSuffix(filepath.Base(info.Key), filepath.Ext(info.Key)))
		}
		if t.idx.Exists(key) {
			continue
		}
		localPath := filepath.Join(t.idx.Dir(), filepath.Base(info.Key))
		md := metadataFromRemoteKey(info.Key, t.layout)
		if t.idx.addRemote(key, info.Key, localPath, md, info.SizeBytes, info.LastModified) {
			added = append(added, key)
		}
	}
	if len(added) > 0 {
		t.log.Info("synced remote assets", Fields{"added": len(added)})
	}
	return added, nil
}

// metadataFromRemoteKey recovers coarse metadata from a layout-shaped key.
func metadataFromRemoteKey(key string, l remote.Layout) Metadata {
	pk, ok := l.ParseKey(key)
	if !ok {
		return Metadata{}
	}
	var md Metadata
	switch pk.Folder {
	case remote.FolderProducts:
		md.AssetType = AssetProductTransparent
		md.ProductCategory = ProductCategory(pk.Category)
	case remote.FolderScenes:
		md.AssetType = AssetSceneBackground
		md.Region = pk.Region
		md.Season = Season(pk.Season)
	case remote.FolderComposites:
		md.AssetType = AssetComposite
	}
	return md
}
