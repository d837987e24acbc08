package assetcache

import (
	"math"
	"testing"
	"time"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func timeFor(t *testing.T, year, month int) time.Time {
	t.Helper()
	return time.Date(year, time.Month(month), 10, 0, 0, 0, 0, time.UTC)
}

func TestScoreFullMatchCapped(t *testing.T) {
	c, _ := newTestCache(t, nil)
	target := sceneMetadata("US", SeasonSummer, StyleWarm)
	// All five dimensions match: 0.4+0.3+0.2+0.2+0.1 = 1.2 capped at 1.0.
	got := c.Matcher().Score(target, target)
	if !almostEqual(got, 1.0) {
		t.Fatalf("Score = %v, want 1.0", got)
	}
}

func TestScorePartialDimensions(t *testing.T) {
	c, _ := newTestCache(t, nil)
	m := c.Matcher()

	target := sceneMetadata("US", SeasonSummer, StyleWarm)

	cand := target
	cand.Region = "DE"
	// type + category + season + ratio = 0.4+0.3+0.2+0.1
	if got := m.Score(target, cand); !almostEqual(got, 1.0) {
		t.Errorf("region mismatch: Score = %v, want 1.0", got)
	}

	cand = target
	cand.Season = SeasonWinter
	cand.AspectRatio = "1:1"
	// type + category + region = 0.4+0.3+0.2
	if got := m.Score(target, cand); !almostEqual(got, 0.9) {
		t.Errorf("season+ratio mismatch: Score = %v, want 0.9", got)
	}
}

func TestScoreUnspecifiedDimensionsDontCount(t *testing.T) {
	c, _ := newTestCache(t, nil)
	m := c.Matcher()

	target := Metadata{AssetType: AssetSceneBackground, Region: "US"}
	cand := Metadata{AssetType: AssetSceneBackground}
	// Candidate has no region, so only type contributes.
	if got := m.Score(target, cand); !almostEqual(got, 0.4) {
		t.Errorf("Score = %v, want 0.4", got)
	}

	// SeasonNone on either side never scores.
	target.Season = SeasonNone
	cand.Season = SeasonNone
	if got := m.Score(target, cand); !almostEqual(got, 0.4) {
		t.Errorf("Score with none seasons = %v, want 0.4", got)
	}
}

func TestDiscoverFiltersTypeAndThreshold(t *testing.T) {
	c, _ := newTestCache(t, nil)
	dir := c.Index().Dir()
	c.Index().Set("scene_us", writeAsset(t, dir, "s1.png", 10), sceneMetadata("US", SeasonSummer, StyleWarm))
	c.Index().Set("scene_jp", writeAsset(t, dir, "s2.png", 10), Metadata{
		AssetType:       AssetSceneBackground,
		ProductCategory: CategoryHairCare,
		Region:          "JP",
		Season:          SeasonWinter,
		AspectRatio:     "1:1",
	})
	c.Index().Set("comp", writeAsset(t, dir, "c1.png", 10), Metadata{AssetType: AssetComposite})

	target := sceneMetadata("US", SeasonSummer, StyleWarm)
	matches := c.FindSimilar(target, HighConfidenceReuse, 0)
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(matches))
	}
	if matches[0].Key != "scene_us" {
		t.Errorf("best match = %q", matches[0].Key)
	}

	// Broad discovery also admits the weaker scene match, never the composite.
	matches = c.FindSimilar(target, BroadDiscovery, 0)
	for _, m := range matches {
		if m.Entry.Metadata.AssetType != AssetSceneBackground {
			t.Errorf("wrong type in results: %q", m.Key)
		}
	}
}

func TestDiscoverOrdering(t *testing.T) {
	c, _ := newTestCache(t, nil)
	dir := c.Index().Dir()
	c.Index().Set("far", writeAsset(t, dir, "a.png", 10), sceneMetadata("DE", SeasonWinter, StyleCool))
	c.Index().Set("near", writeAsset(t, dir, "b.png", 10), sceneMetadata("US", SeasonSummer, StyleWarm))

	matches := c.FindSimilar(sceneMetadata("US", SeasonSummer, StyleWarm), BroadDiscovery, 0)
	if len(matches) != 2 || matches[0].Key != "near" {
		t.Fatalf("order = %v", matchKeys(matches))
	}
	if matches[0].Score < matches[1].Score {
		t.Errorf("not sorted by score desc")
	}
}

func matchKeys(ms []Match) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Key
	}
	return out
}

// Mirrors the flagship reuse flow: a summer laundry scene cached for one
// campaign is strongly recommended for a matching brief in another.
func TestFindReusableCrossCampaign(t *testing.T) {
	c, _ := newTestCache(t, nil)
	path := writeAsset(t, c.Index().Dir(), "scene_summer_laundry_us_001.png", 2048)
	md := Metadata{
		AssetType:       AssetSceneBackground,
		ProductCategory: CategoryLaundryDetergent,
		Region:          "US",
		Season:          SeasonSummer,
		VisualStyle:     StyleWarm,
		AspectRatio:     "16:9",
	}
	if _, err := c.Index().Set("scene_summer_laundry_us_001", path, md); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Index().AddCampaign("scene_summer_laundry_us_001", "summer_2025"); err != nil {
		t.Fatalf("AddCampaign: %v", err)
	}

	m, ok := c.FindReusable(md, "summer_2026", ConfidentReuse)
	if !ok {
		t.Fatalf("no reusable match found")
	}
	if m.Score < 0.9 {
		t.Errorf("Score = %v, want >= 0.9", m.Score)
	}
	if m.Key != "scene_summer_laundry_us_001" {
		t.Errorf("Key = %q", m.Key)
	}
}

func TestGetSeasonalBackground(t *testing.T) {
	c, _ := newTestCache(t, nil)
	dir := c.Index().Dir()
	c.Index().Set("summer", writeAsset(t, dir, "su.png", 10), sceneMetadata("US", SeasonSummer, StyleWarm))
	c.Index().Set("winter", writeAsset(t, dir, "wi.png", 10), sceneMetadata("US", SeasonWinter, StyleCool))

	july := timeFor(t, 2026, 7)
	e, ok := c.GetSeasonalBackground(CategoryLaundryDetergent, "US", july, StyleWarm)
	if !ok {
		t.Fatalf("no background for july")
	}
	if e.Metadata.Season != SeasonSummer {
		t.Errorf("season = %q, want summer", e.Metadata.Season)
	}

	january := timeFor(t, 2026, 1)
	e, ok = c.GetSeasonalBackground(CategoryLaundryDetergent, "US", january, StyleCool)
	if !ok || e.Metadata.Season != SeasonWinter {
		t.Errorf("january background = %+v ok=%v", e, ok)
	}
}

func TestSeasonForMonth(t *testing.T) {
	cases := map[int]Season{
		1: SeasonWinter, 3: SeasonSpring, 5: SeasonSpring,
		6: SeasonSummer, 8: SeasonSummer, 9: SeasonFall,
		11: SeasonFall, 12: SeasonWinter,
	}
	for month, want := range cases {
		if got := SeasonForMonth(month); got != want {
			t.Errorf("SeasonForMonth(%d) = %q, want %q", month, got, want)
		}
	}
}
