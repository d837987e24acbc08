package assetcache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/creativepipe/assetcache/internal/keys"
)

const (
	indexFilename    = "index.json"
	versionsFilename = "versions.json"
	journalFilename  = "reuse.journal"

	productKeyPrefix = "product:"
)

// Entry is one cached asset. The map key in the index file is the cache key;
// the entry itself carries everything else.
type Entry struct {
	Key        string    `json:"-"`
	FilePath   string    `json:"file_path"`
	RemoteKey  string    `json:"s3_key,omitempty"`
	Metadata   Metadata  `json:"metadata"`
	SizeBytes  int64     `json:"size_bytes"`
	CreatedAt  time.Time `json:"created_at"`
	AccessedAt time.Time `json:"accessed_at"`
	Campaigns  []string  `json:"campaigns"`
	UsageCount int       `json:"usage_count"`
}

// Index is the single source of truth for the key->entry mapping. Every
// mutation is persisted with a full load-modify-save cycle so readers never
// observe a partial write. One Index per process; all other components
// receive it by injection.
type Index struct {
	mu      sync.Mutex
	dir     string
	path    string
	entries map[string]*Entry
	log     Logger
	hooks   Hooks
	now     func() time.Time
}

func openIndex(dir string, log Logger, hooks Hooks, now func() time.Time) (*Index, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	i := &Index{
		dir:     dir,
		path:    filepath.Join(dir, indexFilename),
		entries: make(map[string]*Entry),
		log:     log,
		hooks:   hooks,
		now:     now,
	}
	if err := i.load(); err != nil {
		return nil, err
	}
	return i, nil
}

func (i *Index) load() error {
	data, err := os.ReadFile(i.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var raw map[string]*Entry
	if err := json.Unmarshal(data, &raw); err != nil {
		// Data loss beats total unavailability: entries can be re-registered
		// from the filesystem.
		i.hooks.IndexCorrupt(i.path, err)
		i.log.Warn("corrupt index, starting empty", Fields{"path": i.path, "err": err})
		return nil
	}
	for k, e := range raw {
		e.Key = k
	}
	i.entries = raw
	return nil
}

// saveLocked writes the whole index atomically. Callers hold i.mu.
func (i *Index) saveLocked() error {
	data, err := json.MarshalIndent(i.entries, "", "  ")
	if err != nil {
		return err
	}
	tmp := i.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, i.path)
}

// Get returns the entry for key, or (nil, false) on miss. A hit bumps
// accessed_at and usage_count. An entry whose local file vanished is stale:
// it is removed from the index and reported as a miss, unless the entry is
// remote-backed, in which case it stays a hit even though FilePath does not
// exist locally. Callers that need usable bytes go through Tier.GetAssetPath.
func (i *Index) Get(key string) (*Entry, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	e, ok := i.entries[key]
	if !ok {
		return nil, false
	}
	if _, err := os.Stat(e.FilePath); err != nil {
		// Remote-only entries keep their index slot; the tier manager is
		// responsible for materializing them.
		if e.RemoteKey == "" {
			delete(i.entries, key)
			_ = i.saveLocked()
			i.hooks.StaleEntryRemoved(key, e.FilePath)
			i.log.Debug("removed stale entry", Fields{"key": key, "path": e.FilePath})
			return nil, false
		}
	}
	e.AccessedAt = i.now()
	e.UsageCount++
	_ = i.saveLocked()
	cp := *e
	return &cp, true
}

// Set registers key with the given local file and metadata. The file must
// exist; its size is recorded from disk. Re-registering a key overwrites the
// entry but merges campaign history and usage counts.
func (i *Index) Set(key, filePath string, md Metadata) (*Entry, error) {
	st, err := os.Stat(filePath)
	if err != nil {
		return nil, &SourceMissingError{Key: key, Path: filePath, Err: err}
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	e := &Entry{
		Key:        key,
		FilePath:   filePath,
		Metadata:   md,
		SizeBytes:  st.Size(),
		CreatedAt:  i.now(),
		AccessedAt: i.now(),
	}
	if prev, ok := i.entries[key]; ok {
		e.Campaigns = prev.Campaigns
		e.UsageCount = prev.UsageCount
		e.RemoteKey = prev.RemoteKey
	}
	i.entries[key] = e
	if err := i.saveLocked(); err != nil {
		return nil, err
	}
	i.log.Debug("registered entry", Fields{"key": key, "path": filePath, "size": st.Size()})
	cp := *e
	return &cp, nil
}

// AddCampaign appends campaignID to the entry's association list if absent.
func (i *Index) AddCampaign(key, campaignID string) error {
	if campaignID == "" {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	e, ok := i.entries[key]
	if !ok {
		return ErrNotFound
	}
	for _, c := range e.Campaigns {
		if c == campaignID {
			return nil
		}
	}
	e.Campaigns = append(e.Campaigns, campaignID)
	return i.saveLocked()
}

// Exists reports whether key has an entry whose local file is present.
func (i *Index) Exists(key string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	e, ok := i.entries[key]
	if !ok {
		return false
	}
	_, err := os.Stat(e.FilePath)
	return err == nil
}

// Clear removes every entry and deletes all cached files under the cache
// directory except the index and its sidecars.
func (i *Index) Clear() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, e := range i.entries {
		if err := os.Remove(e.FilePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			i.log.Warn("failed to delete cached file", Fields{"path": e.FilePath, "err": err})
		}
	}
	i.entries = make(map[string]*Entry)
	if err := i.saveLocked(); err != nil {
		return err
	}
	keep := map[string]struct{}{
		indexFilename: {}, versionsFilename: {}, journalFilename: {},
	}
	return filepath.WalkDir(i.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if _, ok := keep[d.Name()]; ok {
			return nil
		}
		return os.Remove(path)
	})
}

// CleanupStale deletes entries (index slot and local file) not accessed in
// the last maxAgeDays and returns how many were removed. Remote-backed
// entries are kept: dropping their slot would orphan the remote object, and
// a demoted asset is cold by construction.
func (i *Index) CleanupStale(maxAgeDays int) int {
	cutoff := i.now().AddDate(0, 0, -maxAgeDays)
	i.mu.Lock()
	defer i.mu.Unlock()
	removed := 0
	for key, e := range i.entries {
		if !e.AccessedAt.Before(cutoff) || e.RemoteKey != "" {
			continue
		}
		if err := os.Remove(e.FilePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			i.log.Warn("failed to delete stale file", Fields{"path": e.FilePath, "err": err})
		}
		delete(i.entries, key)
		removed++
	}
	if removed > 0 {
		_ = i.saveLocked()
		i.log.Info("cleaned up stale entries", Fields{"removed": removed})
	}
	return removed
}

// ContentKey derives a reproducible cache key from a file's bytes and a
// discriminator such as a product slug.
func (i *Index) ContentKey(filePath, discriminator string) (string, error) {
	return keys.ContentFile(filePath, discriminator)
}

// Stats summarizes index contents. Remote is filled in by the facade from
// tier counters; Index.Stats alone leaves it zero.
type Stats struct {
	TotalEntries   int               `json:"total_entries"`
	TotalSizeBytes int64             `json:"total_size_bytes"`
	ByType         map[AssetType]int `json:"by_type"`
	RemoteBacked   int               `json:"remote_backed"`
	IndexPath      string            `json:"index_path"`
	Remote         OpCounts          `json:"remote_ops"`
}

func (i *Index) Stats() Stats {
	i.mu.Lock()
	defer i.mu.Unlock()
	s := Stats{ByType: make(map[AssetType]int), IndexPath: i.path}
	for _, e := range i.entries {
		s.TotalEntries++
		s.TotalSizeBytes += e.SizeBytes
		s.ByType[e.Metadata.AssetType]++
		if e.RemoteKey != "" {
			s.RemoteBacked++
		}
	}
	return s
}

// ValidationSummary reports index integrity against the local filesystem.
type ValidationSummary struct {
	Total       int      `json:"total_entries"`
	Valid       int      `json:"valid_entries"`
	Missing     int      `json:"missing_entries"`
	MissingKeys []string `json:"missing_keys"`
}

// Validate checks every entry's local file without mutating the index.
func (i *Index) Validate() ValidationSummary {
	i.mu.Lock()
	defer i.mu.Unlock()
	var v ValidationSummary
	for key, e := range i.entries {
		v.Total++
		if _, err := os.Stat(e.FilePath); err == nil {
			v.Valid++
		} else {
			v.Missing++
			v.MissingKeys = append(v.MissingKeys, key)
		}
	}
	sort.Strings(v.MissingKeys)
	return v
}

// RegisterProduct records a named product asset under a slug-derived key and
// associates it with the campaign. Returns the cache key.
func (i *Index) RegisterProduct(name, filePath, campaignID string, tags []string) (string, error) {
	key := productKeyPrefix + keys.Slugify(name)
	md := Metadata{
		AssetType:   AssetProductTransparent,
		ProductName: name,
		Tags:        tags,
	}
	if _, err := i.Set(key, filePath, md); err != nil {
		return "", err
	}
	if err := i.AddCampaign(key, campaignID); err != nil {
		return "", err
	}
	return key, nil
}

// LookupProduct resolves a product by its human name. Miss is (nil, false).
func (i *Index) LookupProduct(name string) (*Entry, bool) {
	return i.Get(productKeyPrefix + keys.Slugify(name))
}

// Products returns all product-registry entries, sorted by key.
func (i *Index) Products() []*Entry {
	i.mu.Lock()
	defer i.mu.Unlock()
	var out []*Entry
	for key, e := range i.entries {
		if len(key) > len(productKeyPrefix) && key[:len(productKeyPrefix)] == productKeyPrefix {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Key < out[b].Key })
	return out
}

// snapshot returns copies of all entries for read-only scans.
func (i *Index) snapshot() []*Entry {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]*Entry, 0, len(i.entries))
	for _, e := range i.entries {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Key < out[b].Key })
	return out
}

// setRemoteKey records the remote object backing an entry.
func (i *Index) setRemoteKey(key, remoteKey string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	e, ok := i.entries[key]
	if !ok {
		return ErrNotFound
	}
	e.RemoteKey = remoteKey
	return i.saveLocked()
}

// addRemote inserts an entry discovered in the remote store with no local
// file yet. Existing keys are left untouched.
func (i *Index) addRemote(key, remoteKey, localPath string, md Metadata, size int64, modified time.Time) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.entries[key]; ok {
		return false
	}
	i.entries[key] = &Entry{
		Key:        key,
		FilePath:   localPath,
		RemoteKey:  remoteKey,
		Metadata:   md,
		SizeBytes:  size,
		CreatedAt:  modified,
		AccessedAt: modified,
	}
	_ = i.saveLocked()
	return true
}

// peek reads an entry without bumping access state or self-healing.
func (i *Index) peek(key string) (*Entry, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	e, ok := i.entries[key]
	if !ok {
		return nil, false
	}
	cp := *e
	return &cp, true
}

// touch refreshes accessed_at without counting a usage.
func (i *Index) touch(key string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if e, ok := i.entries[key]; ok {
		e.AccessedAt = i.now()
		_ = i.saveLocked()
	}
}

// Dir returns the cache directory the index lives in.
func (i *Index) Dir() string { return i.dir }
