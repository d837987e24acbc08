package keys

import (
	"strings"
	"testing"
)

func TestContentDeterministic(t *testing.T) {
	k1, err := Content(strings.NewReader("asset bytes"), "16:9")
	if err != nil {
		t.Fatalf("Content: %v", err)
	}
	k2, _ := Content(strings.NewReader("asset bytes"), "16:9")
	if k1 != k2 {
		t.Fatalf("same input gave %q and %q", k1, k2)
	}
	if len(k1) != 16 {
		t.Errorf("len = %d, want 16", len(k1))
	}
	for _, r := range k1 {
		if !strings.ContainsRune("0123456789abcdef", r) {
			t.Fatalf("non-hex rune %q in key %q", r, k1)
		}
	}
}

func TestContentDiscriminatorChangesKey(t *testing.T) {
	k1, _ := Content(strings.NewReader("asset bytes"), "16:9")
	k2, _ := Content(strings.NewReader("asset bytes"), "1:1")
	if k1 == k2 {
		t.Errorf("discriminator ignored")
	}
	k3, _ := Content(strings.NewReader("other bytes"), "16:9")
	if k1 == k3 {
		t.Errorf("content ignored")
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Sparkle Dish Soap":  "sparkle-dish-soap",
		"  spaced   out  ":   "spaced-out",
		"under_score_name":   "under-score-name",
		"Mixed-CASE 99":      "mixed-case-99",
		"trailing punct!?":   "trailing-punct",
		"":                   "",
		"---":                "",
		"émoji ünicode café": "moji-nicode-caf",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}
