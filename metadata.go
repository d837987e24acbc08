package assetcache

import "encoding/json"

// AssetType classifies what an asset depicts. The scorer treats it as a hard
// gate: discovery never crosses asset type boundaries.
type AssetType string

const (
	AssetProductTransparent AssetType = "product_transparent"
	AssetSceneBackground    AssetType = "scene_background"
	AssetComposite          AssetType = "composite"
	AssetTextOverlay        AssetType = "text_overlay"
)

func (t AssetType) IsValid() bool {
	switch t {
	case AssetProductTransparent, AssetSceneBackground, AssetComposite, AssetTextOverlay:
		return true
	}
	return false
}

// ProductCategory is an optional secondary signal for matching.
type ProductCategory string

const (
	CategoryDishSoap         ProductCategory = "dish_soap"
	CategoryLaundryDetergent ProductCategory = "laundry_detergent"
	CategoryAirFreshener     ProductCategory = "air_freshener"
	CategoryHairCare         ProductCategory = "hair_care"
	CategoryOralCare         ProductCategory = "oral_care"
	CategoryGeneral          ProductCategory = "general"
)

// Season tags seasonal assets. SeasonNone marks season-agnostic assets and
// never contributes to similarity.
type Season string

const (
	SeasonNone    Season = "none"
	SeasonSpring  Season = "spring"
	SeasonSummer  Season = "summer"
	SeasonFall    Season = "fall"
	SeasonWinter  Season = "winter"
	SeasonHoliday Season = "holiday"
)

// SeasonForMonth maps a calendar month to the campaign season used when
// selecting seasonal backgrounds.
func SeasonForMonth(month int) Season {
	switch {
	case month >= 3 && month <= 5:
		return SeasonSpring
	case month >= 6 && month <= 8:
		return SeasonSummer
	case month >= 9 && month <= 11:
		return SeasonFall
	default:
		return SeasonWinter
	}
}

type VisualStyle string

const (
	StyleWarm    VisualStyle = "warm"
	StyleCool    VisualStyle = "cool"
	StyleVibrant VisualStyle = "vibrant"
	StyleMinimal VisualStyle = "minimal"
	StyleNatural VisualStyle = "natural"
)

// Metadata is the semantic description attached to a cache entry. It is
// immutable once registered except through explicit variant creation.
//
// Unknown JSON fields survive a load/save round trip: older and newer index
// files can be exchanged without dropping data.
type Metadata struct {
	AssetType       AssetType
	ProductCategory ProductCategory
	ProductName     string
	Region          string
	Season          Season
	VisualStyle     VisualStyle
	ColorPalette    []string
	Tags            []string
	AspectRatio     string
	Width           int
	Height          int

	// extra holds fields this version of the package does not know about.
	extra map[string]json.RawMessage
}

// metadataJSON is the stable wire shape of Metadata.
type metadataJSON struct {
	AssetType       AssetType       `json:"asset_type,omitempty"`
	ProductCategory ProductCategory `json:"product_category,omitempty"`
	ProductName     string          `json:"product_name,omitempty"`
	Region          string          `json:"region,omitempty"`
	Season          Season          `json:"season,omitempty"`
	VisualStyle     VisualStyle     `json:"visual_style,omitempty"`
	ColorPalette    []string        `json:"color_palette,omitempty"`
	Tags            []string        `json:"tags,omitempty"`
	AspectRatio     string          `json:"aspect_ratio,omitempty"`
	Width           int             `json:"width,omitempty"`
	Height          int             `json:"height,omitempty"`
}

var metadataKnownKeys = map[string]struct{}{
	"asset_type": {}, "product_category": {}, "product_name": {},
	"region": {}, "season": {}, "visual_style": {}, "color_palette": {},
	"tags": {}, "aspect_ratio": {}, "width": {}, "height": {},
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(metadataJSON{
		AssetType:       m.AssetType,
		ProductCategory: m.ProductCategory,
		ProductName:     m.ProductName,
		Region:          m.Region,
		Season:          m.Season,
		VisualStyle:     m.VisualStyle,
		ColorPalette:    m.ColorPalette,
		Tags:            m.Tags,
		AspectRatio:     m.AspectRatio,
		Width:           m.Width,
		Height:          m.Height,
	})
	if err != nil || len(m.extra) == 0 {
		return known, err
	}
	merged := make(map[string]json.RawMessage, len(m.extra)+11)
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range m.extra {
		// known fields win over stale extras
		if _, ok := metadataKnownKeys[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var known metadataJSON
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var extra map[string]json.RawMessage
	for k, v := range raw {
		if _, ok := metadataKnownKeys[k]; ok {
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = v
	}
	*m = Metadata{
		AssetType:       known.AssetType,
		ProductCategory: known.ProductCategory,
		ProductName:     known.ProductName,
		Region:          known.Region,
		Season:          known.Season,
		VisualStyle:     known.VisualStyle,
		ColorPalette:    known.ColorPalette,
		Tags:            known.Tags,
		AspectRatio:     known.AspectRatio,
		Width:           known.Width,
		Height:          known.Height,
		extra:           extra,
	}
	return nil
}

// Extra returns the value of an unknown metadata field preserved from disk.
func (m Metadata) Extra(key string) (json.RawMessage, bool) {
	v, ok := m.extra[key]
	return v, ok
}

// SetExtra attaches a field outside the typed schema. It is kept on
// round-trip but ignored by the scorer.
func (m *Metadata) SetExtra(key string, value json.RawMessage) {
	if m.extra == nil {
		m.extra = make(map[string]json.RawMessage)
	}
	m.extra[key] = value
}
