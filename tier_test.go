package assetcache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/creativepipe/assetcache/remote"
)

type memObject struct {
	data     []byte
	metadata map[string]string
	modified time.Time
}

// memStore is an in-memory remote.Store. failNext makes the next n
// operations of any kind fail, to exercise retry paths.
type memStore struct {
	objects  map[string]memObject
	failNext int
	headErr  error
	calls    int
}

var _ remote.Store = (*memStore)(nil)

func newMemStore() *memStore { return &memStore{objects: make(map[string]memObject)} }

func (s *memStore) fail() error {
	s.calls++
	if s.failNext > 0 {
		s.failNext--
		return errors.New("transient store failure")
	}
	return nil
}

func (s *memStore) Upload(_ context.Context, key, localPath string, metadata map[string]string) error {
	if err := s.fail(); err != nil {
		return err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	s.objects[key] = memObject{data: data, metadata: metadata, modified: time.Now()}
	return nil
}

func (s *memStore) Download(_ context.Context, key, localPath string) error {
	if err := s.fail(); err != nil {
		return err
	}
	obj, ok := s.objects[key]
	if !ok {
		return errors.New("no such key")
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(localPath, obj.data, 0o644)
}

func (s *memStore) Head(_ context.Context, key string) (remote.ObjectInfo, bool, error) {
	if s.headErr != nil {
		return remote.ObjectInfo{}, false, s.headErr
	}
	if err := s.fail(); err != nil {
		return remote.ObjectInfo{}, false, err
	}
	obj, ok := s.objects[key]
	if !ok {
		return remote.ObjectInfo{}, false, nil
	}
	return remote.ObjectInfo{
		Key:          key,
		SizeBytes:    int64(len(obj.data)),
		LastModified: obj.modified,
		Metadata:     obj.metadata,
	}, true, nil
}

func (s *memStore) List(_ context.Context, prefix string) ([]remote.ObjectInfo, error) {
	if err := s.fail(); err != nil {
		return nil, err
	}
	var out []remote.ObjectInfo
	for k, obj := range s.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, remote.ObjectInfo{
				Key:          k,
				SizeBytes:    int64(len(obj.data)),
				LastModified: obj.modified,
				Metadata:     obj.metadata,
			})
		}
	}
	return out, nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	if err := s.fail(); err != nil {
		return err
	}
	delete(s.objects, key)
	return nil
}

func newTieredCache(t *testing.T) (*Cache, *memStore, *time.Time) {
	t.Helper()
	store := newMemStore()
	c, clock := newTestCache(t, func(o *Options) {
		o.Remote = store
		o.RetryInterval = time.Millisecond
	})
	return c, store, clock
}

func TestTierDisabledWithoutStore(t *testing.T) {
	c, _ := newTestCache(t, nil)
	if c.Tier().Enabled() {
		t.Fatalf("tier enabled with nil store")
	}
	if _, err := c.DemoteColdAssets(context.Background(), 30); !errors.Is(err, ErrRemoteDisabled) {
		t.Errorf("DemoteColdAssets err = %v, want ErrRemoteDisabled", err)
	}
	if _, err := c.Tier().Upload(context.Background(), "k"); !errors.Is(err, ErrRemoteDisabled) {
		t.Errorf("Upload err = %v, want ErrRemoteDisabled", err)
	}
}

func TestRegisterUploadsWhenRemoteConfigured(t *testing.T) {
	c, store, _ := newTieredCache(t)
	path := writeAsset(t, c.Index().Dir(), "scene.png", 256)

	md := sceneMetadata("US", SeasonSummer, StyleWarm)
	if err := c.Register(context.Background(), "k1", path, md, "summer_2026"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	e, _ := c.Index().peek("k1")
	if e.RemoteKey == "" {
		t.Fatalf("no remote key recorded")
	}
	if !strings.Contains(e.RemoteKey, "backgrounds/scene/us/summer") {
		t.Errorf("remote key = %q, want scene layout", e.RemoteKey)
	}
	if _, ok := store.objects[e.RemoteKey]; !ok {
		t.Errorf("object not in store")
	}

	state, err := c.Tier().State("k1")
	if err != nil || state != TierBoth {
		t.Errorf("State = %q err = %v, want both", state, err)
	}
	if s := c.GetStats(); s.Remote.Uploads != 1 || s.RemoteBacked != 1 {
		t.Errorf("stats = %+v", s.Remote)
	}
}

func TestUploadRetriesTransientFailure(t *testing.T) {
	c, store, _ := newTieredCache(t)
	path := writeAsset(t, c.Index().Dir(), "a.png", 10)
	c.Index().Set("k1", path, Metadata{AssetType: AssetComposite})

	store.failNext = 2
	if _, err := c.Tier().Upload(context.Background(), "k1"); err != nil {
		t.Fatalf("Upload with transient failures: %v", err)
	}
	if counts := c.Tier().Counts(); counts.Uploads != 1 {
		t.Errorf("Uploads = %d, want 1", counts.Uploads)
	}
}

func TestGetAssetPathRestoresDemotedFile(t *testing.T) {
	c, _, _ := newTieredCache(t)
	path := writeAsset(t, c.Index().Dir(), "a.png", 64)
	c.Index().Set("k1", path, sceneMetadata("US", SeasonSummer, StyleWarm))
	if _, err := c.Tier().Upload(context.Background(), "k1"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	os.Remove(path)

	state, _ := c.Tier().State("k1")
	if state != TierRemoteOnly {
		t.Fatalf("State = %q, want remote_only", state)
	}

	got, err := c.GetAssetPath(context.Background(), "k1")
	if err != nil {
		t.Fatalf("GetAssetPath: %v", err)
	}
	if got != path {
		t.Errorf("path = %q, want %q", got, path)
	}
	if fi, err := os.Stat(path); err != nil || fi.Size() != 64 {
		t.Errorf("restored file wrong: %v", err)
	}
}

func TestGetAssetPathNoAutoDownload(t *testing.T) {
	c, _, _ := newTieredCache(t)
	path := writeAsset(t, c.Index().Dir(), "a.png", 10)
	c.Index().Set("k1", path, Metadata{AssetType: AssetComposite})
	c.Tier().Upload(context.Background(), "k1")
	os.Remove(path)

	_, err := c.Tier().GetAssetPath(context.Background(), "k1", false)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDemoteColdKeepsRecentAssets(t *testing.T) {
	c, store, clock := newTieredCache(t)
	dir := c.Index().Dir()
	cold := writeAsset(t, dir, "cold.png", 32)
	c.Index().Set("cold", cold, sceneMetadata("US", SeasonWinter, StyleCool))
	*clock = clock.AddDate(0, 0, 45)
	hot := writeAsset(t, dir, "hot.png", 32)
	c.Index().Set("hot", hot, sceneMetadata("US", SeasonSummer, StyleWarm))

	demoted, err := c.DemoteColdAssets(context.Background(), 30)
	if err != nil {
		t.Fatalf("DemoteColdAssets: %v", err)
	}
	if len(demoted) != 1 || demoted[0] != "cold" {
		t.Fatalf("demoted = %v", demoted)
	}
	if _, err := os.Stat(cold); !os.IsNotExist(err) {
		t.Errorf("cold local copy not removed")
	}
	if _, err := os.Stat(hot); err != nil {
		t.Errorf("hot local copy removed")
	}
	e, _ := c.Index().peek("cold")
	if _, ok := store.objects[e.RemoteKey]; !ok {
		t.Errorf("cold asset not uploaded before local delete")
	}

	if _, err := c.Tier().GetAssetPath(context.Background(), "cold", false); !errors.Is(err, ErrNotFound) {
		t.Errorf("demoted asset readable without download: %v", err)
	}
	got, err := c.Tier().GetAssetPath(context.Background(), "cold", true)
	if err != nil || got != cold {
		t.Errorf("restore after demote: path=%q err=%v", got, err)
	}
}

func TestDemoteSkipsOnVerificationFailure(t *testing.T) {
	c, store, clock := newTieredCache(t)
	path := writeAsset(t, c.Index().Dir(), "a.png", 10)
	c.Index().Set("k1", path, Metadata{AssetType: AssetComposite})
	*clock = clock.AddDate(0, 0, 45)

	// Upload succeeds, then the verification Head fails hard.
	store.headErr = errors.New("head unavailable")
	demoted, err := c.DemoteColdAssets(context.Background(), 30)
	if err != nil {
		t.Fatalf("DemoteColdAssets: %v", err)
	}
	if len(demoted) != 0 {
		t.Fatalf("demoted = %v, want none", demoted)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("local copy deleted despite failed verification")
	}
}

func TestPromoteHotDownloadsRecentRemoteOnly(t *testing.T) {
	c, _, clock := newTieredCache(t)
	dir := c.Index().Dir()
	path := writeAsset(t, dir, "a.png", 16)
	c.Index().Set("k1", path, sceneMetadata("US", SeasonSummer, StyleWarm))
	c.Tier().Upload(context.Background(), "k1")
	os.Remove(path)

	// Still within the hot window.
	*clock = clock.AddDate(0, 0, 3)
	promoted, err := c.PromoteHotAssets(context.Background(), 7)
	if err != nil {
		t.Fatalf("PromoteHotAssets: %v", err)
	}
	if len(promoted) != 1 || promoted[0] != "k1" {
		t.Fatalf("promoted = %v", promoted)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("local copy not restored: %v", err)
	}

	// Outside the window nothing happens.
	os.Remove(path)
	*clock = clock.AddDate(0, 0, 30)
	promoted, _ = c.PromoteHotAssets(context.Background(), 7)
	if len(promoted) != 0 {
		t.Errorf("promoted stale asset: %v", promoted)
	}
}

func TestBatchUploadProgress(t *testing.T) {
	c, store, _ := newTieredCache(t)
	dir := c.Index().Dir()
	for _, name := range []string{"a", "b", "c"} {
		c.Index().Set(name, writeAsset(t, dir, name+".png", 100), Metadata{AssetType: AssetComposite})
	}

	var callbacks int
	p, err := c.Tier().BatchUpload(context.Background(), func(Progress) { callbacks++ })
	if err != nil {
		t.Fatalf("BatchUpload: %v", err)
	}
	if p.Total != 3 || p.Uploaded != 3 || p.Failed != 0 {
		t.Fatalf("progress = %+v", p)
	}
	if p.Bytes != 300 {
		t.Errorf("Bytes = %d, want 300", p.Bytes)
	}
	if callbacks != 3 {
		t.Errorf("callbacks = %d, want 3", callbacks)
	}
	if len(store.objects) != 3 {
		t.Errorf("store has %d objects, want 3", len(store.objects))
	}

	// A second batch finds nothing pending.
	p, _ = c.Tier().BatchUpload(context.Background(), nil)
	if p.Total != 0 {
		t.Errorf("second batch total = %d, want 0", p.Total)
	}
}

func TestSyncRemoteAssets(t *testing.T) {
	c, store, _ := newTieredCache(t)
	store.objects["creative-assets/backgrounds/scene/us/summer/beach.png"] = memObject{
		data:     make([]byte, 50),
		metadata: map[string]string{"cache-key": "scene_beach"},
		modified: time.Now(),
	}

	added, err := c.SyncRemoteAssets(context.Background())
	if err != nil {
		t.Fatalf("SyncRemoteAssets: %v", err)
	}
	if len(added) != 1 || added[0] != "scene_beach" {
		t.Fatalf("added = %v", added)
	}
	e, ok := c.Index().peek("scene_beach")
	if !ok {
		t.Fatalf("synced entry missing")
	}
	if e.Metadata.AssetType != AssetSceneBackground || e.Metadata.Region != "US" || e.Metadata.Season != SeasonSummer {
		t.Errorf("recovered metadata = %+v", e.Metadata)
	}
	if e.SizeBytes != 50 {
		t.Errorf("SizeBytes = %d, want 50", e.SizeBytes)
	}

	// Idempotent.
	added, _ = c.SyncRemoteAssets(context.Background())
	if len(added) != 0 {
		t.Errorf("second sync added %v", added)
	}
}

func TestProductRemoteKeyLayout(t *testing.T) {
	c, _, _ := newTieredCache(t)
	path := writeAsset(t, c.Index().Dir(), "bottle.png", 10)
	md := Metadata{
		AssetType:       AssetProductTransparent,
		ProductCategory: CategoryDishSoap,
		ProductName:     "Sparkle Dish Soap",
	}
	c.Index().Set("p1", path, md)

	rk, err := c.Tier().Upload(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	want := "creative-assets/products/dish_soap/sparkle-dish-soap/bottle.png"
	if rk != want {
		t.Errorf("remote key = %q, want %q", rk, want)
	}
}
