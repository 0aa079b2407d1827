package selectors

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"

	"github.com/andybalholm/cascadia"
)

// Logical field names, in the order the cascade extracts them.
const (
	FieldContainer = "container"
	FieldTitle     = "title"
	FieldPrice     = "price"
	FieldRating    = "rating"
	FieldURL       = "url"
	FieldImage     = "image"
)

// Rule is one named CSS matching pattern for a logical field. Rules for a
// field are tried in order; the first one yielding a usable value wins.
type Rule struct {
	Name     string `json:"name"`
	Selector string `json:"selector"`
}

// ContainerBounds are the plausibility limits applied when adopting a
// container rule: the matched element's text must fall inside
// [MinTextLen, MaxTextLen] and the element must contain at least one link.
type ContainerBounds struct {
	MinTextLen int `json:"min_text_len"`
	MaxTextLen int `json:"max_text_len"`
}

// Profile describes one marketplace: where to search, how product detail
// URLs look, and the ordered selector rules per logical field.
//
// The engine treats a Profile as read-only during an extraction pass.
// Only the health monitor proposes replacements, and only out-of-band.
type Profile struct {
	// Marketplace is a short identifier, e.g. "flipkart".
	Marketplace string `json:"marketplace"`

	// SearchURL is a template with a single %s for the escaped query.
	SearchURL string `json:"search_url"`

	// BaseURL resolves root-relative product and image links.
	BaseURL string `json:"base_url"`

	// ProductPath is the URL fragment identifying a product-detail link,
	// used by the fallback extractor for anchor discovery.
	ProductPath string `json:"product_path"`

	// CurrencyMarker is the symbol that signals a price in listing text.
	CurrencyMarker string `json:"currency_marker"`

	// Container holds the container plausibility bounds.
	Container ContainerBounds `json:"container"`

	// Fields maps a logical field name to its ordered rule list.
	Fields map[string][]Rule `json:"fields"`
}

// Rules returns the ordered rule list for a field, or nil when none are
// configured. A missing field is not an error; the cascade simply leaves
// that field unset.
func (p *Profile) Rules(field string) []Rule {
	return p.Fields[field]
}

// SearchURLFor builds the marketplace search URL for a raw query.
func SearchURLFor(p *Profile, query string) string {
	return fmt.Sprintf(p.SearchURL, url.QueryEscape(query))
}

// Validate checks that every configured rule parses as a CSS selector and
// that the profile names the pieces the engine cannot default.
func (p *Profile) Validate() error {
	if p.SearchURL == "" {
		return fmt.Errorf("selectors: profile %q missing search_url", p.Marketplace)
	}
	if len(p.Fields[FieldContainer]) == 0 {
		return fmt.Errorf("selectors: profile %q has no container rules", p.Marketplace)
	}
	for field, rules := range p.Fields {
		for _, r := range rules {
			// ParseGroup, not Parse: rules may be comma-separated selector
			// groups ("div._2kHMtA, div._3pLy-c").
			if _, err := cascadia.ParseGroup(r.Selector); err != nil {
				return fmt.Errorf("selectors: profile %q field %q rule %q: %w",
					p.Marketplace, field, r.Name, err)
			}
		}
	}
	if p.Container.MinTextLen <= 0 {
		p.Container.MinTextLen = 50
	}
	if p.Container.MaxTextLen <= 0 {
		p.Container.MaxTextLen = 1500
	}
	if p.CurrencyMarker == "" {
		p.CurrencyMarker = "₹"
	}
	return nil
}

// Load reads a Profile from a JSON file. An absent or malformed file is
// recovered by returning the embedded default profile — loading never fails
// hard; the engine must always come up with a usable selector set.
func Load(path string) *Profile {
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("selector profile not readable, using embedded default",
			"path", path, "error", err)
		return Default()
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		slog.Warn("selector profile malformed, using embedded default",
			"path", path, "error", err)
		return Default()
	}
	if err := p.Validate(); err != nil {
		slog.Warn("selector profile invalid, using embedded default",
			"path", path, "error", err)
		return Default()
	}

	slog.Info("selector profile loaded", "path", path, "marketplace", p.Marketplace)
	return &p
}

// Default returns the embedded Flipkart profile. The selector lists carry
// several generations of Flipkart's class names; newer ones first.
func Default() *Profile {
	return &Profile{
		Marketplace:    "flipkart",
		SearchURL:      "https://www.flipkart.com/search?q=%s",
		BaseURL:        "https://www.flipkart.com",
		ProductPath:    "/p/",
		CurrencyMarker: "₹",
		Container: ContainerBounds{
			MinTextLen: 50,
			MaxTextLen: 1500,
		},
		Fields: map[string][]Rule{
			FieldContainer: {
				{Name: "data-id", Selector: "div[data-id]"},
				{Name: "grid-card", Selector: "div.tUxRFH"},
				{Name: "row-card", Selector: "div._13oc-S"},
				{Name: "legacy-card", Selector: "div._1AtVbE"},
				{Name: "legacy-col", Selector: "div._2kHMtA, div._3pLy-c"},
			},
			FieldTitle: {
				{Name: "grid-title", Selector: "div.KzDlHZ"},
				{Name: "row-title", Selector: "div._4rR01T"},
				{Name: "small-title", Selector: "a.s1Q9rs, a.wjcEIp"},
				{Name: "alt-title", Selector: "a.IRpwTa, div._2WkVRV"},
			},
			FieldPrice: {
				{Name: "price", Selector: "div.Nx9bqj"},
				{Name: "legacy-price", Selector: "div._30jeq3"},
				{Name: "strike-price", Selector: "div._1_WHN1, div._25b18c"},
			},
			FieldRating: {
				{Name: "rating", Selector: "div.XQDdHH"},
				{Name: "legacy-rating", Selector: "div._3LWZlK"},
				{Name: "alt-rating", Selector: "span.gUuXy-"},
			},
			FieldURL: {
				{Name: "any-link", Selector: "a[href]"},
			},
			FieldImage: {
				{Name: "any-image", Selector: "img"},
			},
		},
	}
}
