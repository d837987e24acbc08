package assetcache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// VersionRecord links a derived variant to its source asset. Records for one
// lineage form the asset's version history, oldest first.
type VersionRecord struct {
	ID          string    `json:"id"`
	Version     int       `json:"version"`
	Key         string    `json:"key"`
	ParentKey   string    `json:"parent_key"`
	ChangeNotes string    `json:"change_notes"`
	CreatedAt   time.Time `json:"created_at"`
}

// Versions tracks parent->child lineage between assets. Every asset has zero
// or one parent, so the records form a forest. Persisted as a sidecar file
// next to the index, load-modify-save like the index itself.
type Versions struct {
	mu      sync.Mutex
	idx     *Index
	path    string
	records []VersionRecord
	log     Logger
	now     func() time.Time
}

func openVersions(idx *Index, log Logger, now func() time.Time) (*Versions, error) {
	v := &Versions{
		idx:  idx,
		path: filepath.Join(idx.Dir(), versionsFilename),
		log:  log,
		now:  now,
	}
	data, err := os.ReadFile(v.path)
	if errors.Is(err, fs.ErrNotExist) {
		return v, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &v.records); err != nil {
		log.Warn("corrupt version history, starting empty", Fields{"path": v.path, "err": err})
		v.records = nil
	}
	return v, nil
}

func (v *Versions) saveLocked() error {
	data, err := json.MarshalIndent(v.records, "", "  ")
	if err != nil {
		return err
	}
	tmp := v.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, v.path)
}

// CreateVariant registers newKey as a brand-new entry derived from sourceKey
// and records the lineage link. The source entry is never mutated. The
// variant inherits the source metadata; mutate selectively via the md
// callback before registration. newKey must not already belong to the
// source's lineage; re-linking a member would create a cycle.
func (v *Versions) CreateVariant(sourceKey, newKey, newFilePath, changeNotes string, md func(*Metadata)) (*VersionRecord, error) {
	source, ok := v.idx.peek(sourceKey)
	if !ok {
		return nil, ErrNotFound
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	root := v.rootLocked(sourceKey)
	lineage := v.lineageLocked(root)
	if newKey == root {
		return nil, &LineageError{SourceKey: sourceKey, NewKey: newKey}
	}
	for _, r := range lineage {
		if r.Key == newKey {
			return nil, &LineageError{SourceKey: sourceKey, NewKey: newKey}
		}
	}

	meta := source.Metadata
	if md != nil {
		md(&meta)
	}
	if _, err := v.idx.Set(newKey, newFilePath, meta); err != nil {
		return nil, err
	}
	rec := VersionRecord{
		ID:          uuid.NewString(),
		Version:     len(lineage) + 1,
		Key:         newKey,
		ParentKey:   sourceKey,
		ChangeNotes: changeNotes,
		CreatedAt:   v.now(),
	}
	v.records = append(v.records, rec)
	if err := v.saveLocked(); err != nil {
		return nil, err
	}
	v.log.Debug("created variant", Fields{"source": sourceKey, "key": newKey, "version": rec.Version})
	return &rec, nil
}

// History returns every record in the lineage rooted at rootKey, oldest
// first. rootKey may name any member of the lineage.
func (v *Versions) History(rootKey string) []VersionRecord {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lineageLocked(v.rootLocked(rootKey))
}

// rootLocked walks parent links up to the lineage root. A hand-edited or
// corrupt sidecar can link records into a cycle; the first revisited key is
// treated as the root rather than spinning.
func (v *Versions) rootLocked(key string) string {
	parents := make(map[string]string, len(v.records))
	for _, r := range v.records {
		parents[r.Key] = r.ParentKey
	}
	seen := make(map[string]struct{})
	for {
		p, ok := parents[key]
		if !ok {
			return key
		}
		if _, dup := seen[key]; dup {
			v.log.Warn("version lineage cycle", Fields{"key": key})
			return key
		}
		seen[key] = struct{}{}
		key = p
	}
}

// lineageLocked collects all descendants of root in append order. Records
// are appended parent-before-child, so one pass suffices.
func (v *Versions) lineageLocked(root string) []VersionRecord {
	member := map[string]struct{}{root: {}}
	var out []VersionRecord
	for _, r := range v.records {
		if _, ok := member[r.ParentKey]; ok {
			member[r.Key] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

// DiscoverCrossCampaign returns entries grouped by asset type whose campaign
// associations do not include excludeCampaign: assets proven useful elsewhere
// but not yet used by the current campaign. An empty assetTypes slice means
// all types.
func (v *Versions) DiscoverCrossCampaign(excludeCampaign string, assetTypes []AssetType) map[AssetType][]*Entry {
	wanted := make(map[AssetType]struct{}, len(assetTypes))
	for _, t := range assetTypes {
		wanted[t] = struct{}{}
	}
	out := make(map[AssetType][]*Entry)
	for _, e := range v.idx.snapshot() {
		if len(wanted) > 0 {
			if _, ok := wanted[e.Metadata.AssetType]; !ok {
				continue
			}
		}
		if containsCampaign(e.Campaigns, excludeCampaign) {
			continue
		}
		out[e.Metadata.AssetType] = append(out[e.Metadata.AssetType], e)
	}
	return out
}
