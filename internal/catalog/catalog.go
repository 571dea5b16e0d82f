package catalog

// #region imports
import (
	"fmt"
	"strings"
)

// #endregion

// #region ad

// Ad is one catalog entry's display payload.
type Ad struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	URL     string `json:"url"`
	Sponsor string `json:"sponsor"`
	Title   string `json:"title,omitempty"`
}

// Validate checks the payload is complete enough to surface.
func (a Ad) Validate() error {
	if strings.TrimSpace(a.Text) == "" {
		return fmt.Errorf("ad %s: empty display text", a.ID)
	}
	if strings.TrimSpace(a.URL) == "" {
		return fmt.Errorf("ad %s: empty target url", a.ID)
	}
	if strings.TrimSpace(a.Sponsor) == "" {
		return fmt.Errorf("ad %s: empty sponsor name", a.ID)
	}
	return nil
}

// #endregion ad

// #region bundle

// Bundle is a downloaded ad catalog: ad lists keyed by dash-delimited
// category path ("sports-rugby-worldcup").
type Bundle struct {
	Categories map[string][]Ad `json:"categories"`
}

// #endregion bundle

// #region lookup

// Lookup resolves a category path with progressive-prefix fallback: the full
// path first, then with the last segment dropped, until a bucket matches.
// sports-rugby-worldcup → sports-rugby → sports.
func (b *Bundle) Lookup(path string) (prefix string, ads []Ad, ok bool) {
	if b == nil || path == "" {
		return "", nil, false
	}
	segments := strings.Split(path, "-")
	for i := len(segments); i > 0; i-- {
		p := strings.Join(segments[:i], "-")
		if ads, found := b.Categories[p]; found {
			return p, ads, true
		}
	}
	return "", nil, false
}

// #endregion lookup
