package remote

import (
	"path"
	"strings"
)

// Well-known top-level folders in the remote layout.
const (
	FolderProducts   = "products"
	FolderScenes     = "backgrounds/scene"
	FolderComposites = "composites"
	FolderMetadata   = "metadata"
)

// Layout maps assets to deterministic object keys so the bucket stays
// browsable by humans and by prefix listings:
//
//	<prefix>/products/<category>/<slug>/<filename>
//	<prefix>/backgrounds/scene/<region>/<season>/<filename>
//	<prefix>/composites/<campaign>/<slug>/<ratio>/<filename>
//	<prefix>/metadata/index.json
type Layout struct {
	// Prefix is prepended to every key. May be empty.
	Prefix string
}

func (l Layout) join(parts ...string) string {
	cleaned := make([]string, 0, len(parts)+1)
	if l.Prefix != "" {
		cleaned = append(cleaned, strings.Trim(l.Prefix, "/"))
	}
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p == "" {
			p = "unknown"
		}
		cleaned = append(cleaned, p)
	}
	return path.Join(cleaned...)
}

// ProductKey places a product asset under its category.
func (l Layout) ProductKey(category, slug, filename string) string {
	return l.join(FolderProducts, category, slug, filename)
}

// SceneKey places a scene background under region and season.
func (l Layout) SceneKey(region, season, filename string) string {
	return l.join(FolderScenes, strings.ToLower(region), season, filename)
}

// CompositeKey places a finished composite under its campaign.
func (l Layout) CompositeKey(campaign, slug, ratio, filename string) string {
	return l.join(FolderComposites, campaign, slug, strings.ReplaceAll(ratio, ":", "x"), filename)
}

// IndexKey is the remote copy of the cache index.
func (l Layout) IndexKey() string {
	return l.join(FolderMetadata, "index.json")
}

// ParsedKey is the semantic information recoverable from a layout-shaped
// object key. Fields outside the key's asset class are empty.
type ParsedKey struct {
	Folder   string // FolderProducts, FolderScenes or FolderComposites
	Category string
	Slug     string
	Region   string
	Season   string
	Campaign string
	Filename string
}

// ParseKey inverts the layout: it recovers the semantic path segments from
// an object key. ok is false when the key does not follow the layout.
func (l Layout) ParseKey(key string) (ParsedKey, bool) {
	rest := key
	if l.Prefix != "" {
		trimmed := strings.Trim(l.Prefix, "/") + "/"
		if !strings.HasPrefix(rest, trimmed) {
			return ParsedKey{}, false
		}
		rest = strings.TrimPrefix(rest, trimmed)
	}
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) >= 4 && parts[0] == FolderProducts:
		return ParsedKey{
			Folder:   FolderProducts,
			Category: parts[1],
			Slug:     parts[2],
			Filename: parts[len(parts)-1],
		}, true
	case len(parts) >= 5 && parts[0]+"/"+parts[1] == FolderScenes:
		return ParsedKey{
			Folder:   FolderScenes,
			Region:   strings.ToUpper(parts[2]),
			Season:   parts[3],
			Filename: parts[len(parts)-1],
		}, true
	case len(parts) >= 5 && parts[0] == FolderComposites:
		return ParsedKey{
			Folder:   FolderComposites,
			Campaign: parts[1],
			Slug:     parts[2],
			Filename: parts[len(parts)-1],
		}, true
	}
	return ParsedKey{}, false
}

// HasPrefix reports whether key lives under this layout's prefix.
func (l Layout) HasPrefix(key string) bool {
	if l.Prefix == "" {
		return true
	}
	return strings.HasPrefix(key, strings.Trim(l.Prefix, "/")+"/")
}
