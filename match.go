package assetcache

import "sort"

// Similarity thresholds used across call sites. These are empirically tuned
// values carried over from production use, not derived ones.
const (
	// BroadDiscovery admits loosely related candidates.
	BroadDiscovery = 0.3
	// ConfidentReuse is the floor for reusing an asset without review.
	ConfidentReuse = 0.5
	// HighConfidenceReuse is the floor for fully automated reuse.
	HighConfidenceReuse = 0.6
)

// Weights control the similarity scorer. Asset type dominates deliberately:
// it is a hard filter in practice, region and category are strong secondary
// signals, and aspect ratio is a minor tie-breaker.
type Weights struct {
	AssetType float64
	Category  float64
	Region    float64
	Season    float64
	Ratio     float64
}

// DefaultWeights are the production-tuned scorer weights.
var DefaultWeights = Weights{
	AssetType: 0.4,
	Category:  0.3,
	Region:    0.2,
	Season:    0.2,
	Ratio:     0.1,
}

// Match is one discovery result.
type Match struct {
	Key   string
	Score float64
	Entry *Entry
}

// Filter narrows discovery beyond the asset type gate. Zero-valued fields
// are unconstrained.
type Filter struct {
	Category ProductCategory
	Region   string
	Season   Season
	Style    VisualStyle
	Ratio    string
}

// Matcher ranks index entries against a requested semantic profile.
type Matcher struct {
	idx     *Index
	weights Weights
}

func newMatcher(idx *Index, w Weights) *Matcher {
	if w == (Weights{}) {
		w = DefaultWeights
	}
	return &Matcher{idx: idx, weights: w}
}

// Score computes the weighted similarity of candidate against target in
// [0, 1]. A dimension contributes only when both sides specify it.
func (m *Matcher) Score(target, candidate Metadata) float64 {
	score := 0.0
	if target.AssetType != "" && candidate.AssetType == target.AssetType {
		score += m.weights.AssetType
	}
	if target.ProductCategory != "" && candidate.ProductCategory == target.ProductCategory {
		score += m.weights.Category
	}
	if target.Region != "" && candidate.Region == target.Region {
		score += m.weights.Region
	}
	if target.Season != "" && target.Season != SeasonNone && candidate.Season == target.Season {
		score += m.weights.Season
	}
	if target.AspectRatio != "" && candidate.AspectRatio == target.AspectRatio {
		score += m.weights.Ratio
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// Discover filters the index to assetType, scores every candidate against
// target, drops those below minSimilarity and returns at most limit results,
// best first. Ties break on usage count, then most recent access.
func (m *Matcher) Discover(assetType AssetType, target Metadata, minSimilarity float64, limit int) []Match {
	target.AssetType = assetType
	var matches []Match
	for _, e := range m.idx.snapshot() {
		if e.Metadata.AssetType != assetType {
			continue
		}
		score := m.Score(target, e.Metadata)
		if score < minSimilarity {
			continue
		}
		matches = append(matches, Match{Key: e.Key, Score: score, Entry: e})
	}
	sort.Slice(matches, func(a, b int) bool {
		ma, mb := matches[a], matches[b]
		if ma.Score != mb.Score {
			return ma.Score > mb.Score
		}
		if ma.Entry.UsageCount != mb.Entry.UsageCount {
			return ma.Entry.UsageCount > mb.Entry.UsageCount
		}
		return ma.Entry.AccessedAt.After(mb.Entry.AccessedAt)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// metadata builds the scoring target for a Filter.
func (f Filter) metadata() Metadata {
	return Metadata{
		ProductCategory: f.Category,
		Region:          f.Region,
		Season:          f.Season,
		VisualStyle:     f.Style,
		AspectRatio:     f.Ratio,
	}
}

// DiscoverFiltered is Discover with the target expressed as a Filter.
func (m *Matcher) DiscoverFiltered(assetType AssetType, f Filter, minSimilarity float64, limit int) []Match {
	return m.Discover(assetType, f.metadata(), minSimilarity, limit)
}

// FindReusable looks for an asset matching target at or above minSimilarity.
// When the semantic cache has no qualifying match it falls back to the
// cross-campaign library - assets proven useful elsewhere but never used by
// campaignID - before reporting no reusable asset.
func (m *Matcher) FindReusable(target Metadata, campaignID string, minSimilarity float64) (Match, bool) {
	if matches := m.Discover(target.AssetType, target, minSimilarity, 1); len(matches) > 0 {
		return matches[0], true
	}
	for _, e := range m.idx.snapshot() {
		if e.Metadata.AssetType != target.AssetType {
			continue
		}
		if containsCampaign(e.Campaigns, campaignID) {
			continue
		}
		return Match{Key: e.Key, Score: m.Score(target, e.Metadata), Entry: e}, true
	}
	return Match{}, false
}

func containsCampaign(campaigns []string, id string) bool {
	for _, c := range campaigns {
		if c == id {
			return true
		}
	}
	return false
}
