package keys

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"strings"
)

// Content derives a deterministic cache key from asset bytes plus a
// discriminator (e.g. a product slug): identical input always maps to the
// same key.
func Content(r io.Reader, discriminator string) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	h.Write([]byte(discriminator))
	return fmt.Sprintf("%x", h.Sum(nil))[:16], nil
}

// ContentFile is Content over a file on disk.
func ContentFile(path, discriminator string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return Content(f, discriminator)
}

// Slugify converts free text to a lowercased hyphenated identifier suitable
// for keys and object paths.
func Slugify(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevHyphen := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			prevHyphen = false
		case r == ' ' || r == '_' || r == '-':
			if !prevHyphen && b.Len() > 0 {
				b.WriteByte('-')
				prevHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
