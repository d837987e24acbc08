package assetcache

import (
	"errors"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// topReusedLimit bounds the most-reused list in analytics reports.
const topReusedLimit = 5

// ReusePattern is one logged reuse event: an asset from one campaign applied
// to another, with outcome. Patterns are historical facts; they are appended,
// never mutated, and stay valid even if the source key later disappears.
type ReusePattern struct {
	SourceKey      string    `msgpack:"source_key"`
	TargetCampaign string    `msgpack:"target_campaign"`
	Success        bool      `msgpack:"success"`
	Context        string    `msgpack:"context"`
	At             time.Time `msgpack:"at"`
}

// Usage learns from reuse outcomes. Events are journaled to an append-only
// msgpack stream next to the index and aggregated in memory.
type Usage struct {
	mu       sync.Mutex
	idx      *Index
	matcher  *Matcher
	path     string
	patterns []ReusePattern
	log      Logger
	now      func() time.Time
}

func openUsage(idx *Index, matcher *Matcher, log Logger, now func() time.Time) (*Usage, error) {
	u := &Usage{
		idx:     idx,
		matcher: matcher,
		path:    filepath.Join(idx.Dir(), journalFilename),
		log:     log,
		now:     now,
	}
	f, err := os.Open(u.path)
	if errors.Is(err, fs.ErrNotExist) {
		return u, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec := msgpack.NewDecoder(f)
	for {
		var p ReusePattern
		if err := dec.Decode(&p); err != nil {
			if !errors.Is(err, io.EOF) {
				// A torn tail record loses at most one event.
				log.Warn("truncated reuse journal", Fields{"path": u.path, "err": err})
			}
			break
		}
		u.patterns = append(u.patterns, p)
	}
	return u, nil
}

// RecordReuse appends a reuse event. It never rejects: reuse of a key that
// later disappears is still valid history.
func (u *Usage) RecordReuse(sourceKey, targetCampaign string, success bool, context string) error {
	p := ReusePattern{
		SourceKey:      sourceKey,
		TargetCampaign: targetCampaign,
		Success:        success,
		Context:        context,
		At:             u.now(),
	}
	data, err := msgpack.Marshal(p)
	if err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	f, err := os.OpenFile(u.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return err
	}
	u.patterns = append(u.patterns, p)
	u.log.Debug("recorded reuse", Fields{"source": sourceKey, "campaign": targetCampaign, "success": success})
	return nil
}

// successCounts aggregates successful reuse events per source key.
func (u *Usage) successCounts() map[string]int {
	u.mu.Lock()
	defer u.mu.Unlock()
	counts := make(map[string]int)
	for _, p := range u.patterns {
		if p.Success {
			counts[p.SourceKey]++
		}
	}
	return counts
}

// Recommend ranks candidates for target by similarity boosted with
// historical success: score = similarity * (1 + ln(1 + successes)).
// Candidates with no history stay eligible at pure similarity. Assets
// already associated with campaignID are excluded.
func (u *Usage) Recommend(target Metadata, campaignID string, limit int) []Match {
	discovered := u.matcher.Discover(target.AssetType, target, BroadDiscovery, 0)
	candidates := discovered[:0]
	for _, m := range discovered {
		if campaignID != "" && containsCampaign(m.Entry.Campaigns, campaignID) {
			continue
		}
		candidates = append(candidates, m)
	}
	if len(candidates) == 0 {
		return nil
	}
	successes := u.successCounts()
	for i := range candidates {
		boost := 1 + math.Log(1+float64(successes[candidates[i].Key]))
		candidates[i].Score *= boost
	}
	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].Score != candidates[b].Score {
			return candidates[a].Score > candidates[b].Score
		}
		return candidates[a].Entry.UsageCount > candidates[b].Entry.UsageCount
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// ReuseCount pairs a source key with its reuse event count.
type ReuseCount struct {
	Key   string `json:"cache_key"`
	Count int    `json:"reuse_count"`
}

// AnalyticsReport aggregates the reuse journal.
type AnalyticsReport struct {
	TotalPatterns      int          `json:"total_patterns"`
	TotalReuses        int          `json:"total_reuses"`
	AverageSuccessRate float64      `json:"average_success_rate"`
	MostReused         []ReuseCount `json:"most_reused_assets"`
}

// Analytics summarizes logged reuse, optionally scoped to one campaign
// (empty campaignID means all).
func (u *Usage) Analytics(campaignID string) AnalyticsReport {
	u.mu.Lock()
	defer u.mu.Unlock()
	perKey := make(map[string]int)
	total, succeeded := 0, 0
	for _, p := range u.patterns {
		if campaignID != "" && p.TargetCampaign != campaignID {
			continue
		}
		total++
		if p.Success {
			succeeded++
		}
		perKey[p.SourceKey]++
	}
	rep := AnalyticsReport{
		TotalPatterns: len(perKey),
		TotalReuses:   total,
	}
	if total > 0 {
		rep.AverageSuccessRate = float64(succeeded) / float64(total)
	}
	for k, n := range perKey {
		rep.MostReused = append(rep.MostReused, ReuseCount{Key: k, Count: n})
	}
	sort.Slice(rep.MostReused, func(a, b int) bool {
		if rep.MostReused[a].Count != rep.MostReused[b].Count {
			return rep.MostReused[a].Count > rep.MostReused[b].Count
		}
		return rep.MostReused[a].Key < rep.MostReused[b].Key
	})
	if len(rep.MostReused) > topReusedLimit {
		rep.MostReused = rep.MostReused[:topReusedLimit]
	}
	return rep
}
