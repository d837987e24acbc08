package remote

import "testing"

func TestLayoutKeys(t *testing.T) {
	l := Layout{Prefix: "creative-assets"}

	if got, want := l.ProductKey("dish_soap", "sparkle", "bottle.png"),
		"creative-assets/products/dish_soap/sparkle/bottle.png"; got != want {
		t.Errorf("ProductKey = %q, want %q", got, want)
	}
	if got, want := l.SceneKey("US", "summer", "beach.png"),
		"creative-assets/backgrounds/scene/us/summer/beach.png"; got != want {
		t.Errorf("SceneKey = %q, want %q", got, want)
	}
	if got, want := l.CompositeKey("summer_2026", "hero", "16:9", "hero.png"),
		"creative-assets/composites/summer_2026/hero/16x9/hero.png"; got != want {
		t.Errorf("CompositeKey = %q, want %q", got, want)
	}
	if got, want := l.IndexKey(),
		"creative-assets/metadata/index.json"; got != want {
		t.Errorf("IndexKey = %q, want %q", got, want)
	}
}

func TestParseKeyRoundTrip(t *testing.T) {
	l := Layout{Prefix: "creative-assets"}

	pk, ok := l.ParseKey(l.ProductKey("dish_soap", "sparkle", "bottle.png"))
	if !ok || pk.Folder != FolderProducts || pk.Category != "dish_soap" || pk.Slug != "sparkle" || pk.Filename != "bottle.png" {
		t.Errorf("product parse = %+v ok=%v", pk, ok)
	}

	pk, ok = l.ParseKey(l.SceneKey("us", "summer", "beach.png"))
	if !ok || pk.Folder != FolderScenes || pk.Region != "US" || pk.Season != "summer" {
		t.Errorf("scene parse = %+v ok=%v", pk, ok)
	}

	pk, ok = l.ParseKey(l.CompositeKey("summer_2026", "hero", "16:9", "hero.png"))
	if !ok || pk.Folder != FolderComposites || pk.Campaign != "summer_2026" || pk.Slug != "hero" {
		t.Errorf("composite parse = %+v ok=%v", pk, ok)
	}

	if _, ok := l.ParseKey("creative-assets/metadata/index.json"); ok {
		t.Errorf("metadata key parsed as asset")
	}
	if _, ok := l.ParseKey("foreign/products/x/y/z.png"); ok {
		t.Errorf("foreign prefix parsed")
	}
}

func TestLayoutEmptySegmentsAndPrefix(t *testing.T) {
	l := Layout{}
	if got, want := l.SceneKey("", "summer", "a.png"),
		"backgrounds/scene/unknown/summer/a.png"; got != want {
		t.Errorf("empty region key = %q, want %q", got, want)
	}

	l = Layout{Prefix: "/padded/"}
	if got, want := l.IndexKey(), "padded/metadata/index.json"; got != want {
		t.Errorf("padded prefix key = %q, want %q", got, want)
	}
	if !l.HasPrefix("padded/products/x") {
		t.Errorf("HasPrefix false for own key")
	}
	if l.HasPrefix("other/products/x") {
		t.Errorf("HasPrefix true for foreign key")
	}
}
