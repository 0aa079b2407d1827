package extract

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/trawlhq/trawl/models"
	"github.com/trawlhq/trawl/selectors"
)

// RawFieldValue is one pre-normalization extraction: which field, the raw
// display text, and the rule that produced it. Absent fields simply never
// appear — absence is not an error at this stage.
type RawFieldValue struct {
	Field      string
	Text       string
	SourceRule string
}

// Cascade applies a selector profile to a parsed document.
//
// Container adoption: rules are tried in priority order and the first rule
// matching at least one plausible container is adopted for the whole pass.
// Rules are never mixed across containers mid-pass, so every record of one
// pass shares the same structural assumption. Within an adopted container
// each field runs its own first-match-wins cascade; the configured order is
// the only tie-break, which keeps output deterministic.
type Cascade struct {
	profile *selectors.Profile
}

// NewCascade creates a Cascade bound to a read-only profile.
func NewCascade(p *selectors.Profile) *Cascade {
	return &Cascade{profile: p}
}

// Extract returns the product-record candidates found by the configured
// rules, in document order. An empty slice means no container rule matched;
// the caller should then try the fallback extractor.
func (c *Cascade) Extract(doc *goquery.Document) []models.ProductRecord {
	containers, rule := c.adoptContainers(doc)
	if len(containers) == 0 {
		return nil
	}
	slog.Debug("container rule adopted", "rule", rule, "containers", len(containers))

	records := make([]models.ProductRecord, 0, len(containers))
	for _, sel := range containers {
		rec, ok := c.extractOne(sel)
		if ok {
			records = append(records, rec)
		}
	}
	return records
}

// adoptContainers runs the container cascade and returns the plausible
// matches of the first rule that yields any, plus the winning rule name.
func (c *Cascade) adoptContainers(doc *goquery.Document) ([]*goquery.Selection, string) {
	bounds := c.profile.Container
	for _, rule := range c.profile.Rules(selectors.FieldContainer) {
		var plausible []*goquery.Selection
		doc.Find(rule.Selector).Each(func(_ int, s *goquery.Selection) {
			if ContainerPlausible(s, bounds) {
				plausible = append(plausible, s)
			}
		})
		if len(plausible) > 0 {
			return plausible, rule.Name
		}
	}
	return nil, ""
}

// ContainerPlausible checks the adoption criteria: trimmed text inside the
// configured length window and at least one embedded link. The health
// monitor shares this predicate so probe yields count the same cards
// production extraction would.
func ContainerPlausible(s *goquery.Selection, b selectors.ContainerBounds) bool {
	text := strings.TrimSpace(s.Text())
	if len(text) < b.MinTextLen || len(text) > b.MaxTextLen {
		return false
	}
	return s.Find("a[href]").Length() > 0
}

// extractOne assembles a record from a single adopted container. Field order
// is fixed: title → price → rating → url → image. A missing field leaves the
// record field unset; only an unusable title discards the candidate here —
// everything else is the validator's call.
func (c *Cascade) extractOne(container *goquery.Selection) (models.ProductRecord, bool) {
	var rec models.ProductRecord
	rec.ExtractionMethod = models.MethodCascade
	rec.Availability = detectAvailability(container)

	if raw, ok := c.firstText(container, selectors.FieldTitle); ok {
		rec.Title = CleanTitle(raw.Text)
	}
	if rec.Title == "" {
		return rec, false
	}

	if raw, ok := c.firstText(container, selectors.FieldPrice); ok {
		rec.PriceDisplay = strings.TrimSpace(raw.Text)
		rec.PriceNumeric = ParsePrice(raw.Text)
	}
	if raw, ok := c.firstText(container, selectors.FieldRating); ok {
		rec.RatingNumeric = ParseRating(raw.Text)
	}
	if href, ok := c.firstAttr(container, selectors.FieldURL, "href"); ok {
		rec.URL = AbsoluteURL(c.profile.BaseURL, href)
	}
	if src, ok := c.firstImageSrc(container); ok {
		rec.ImageURL = AbsoluteURL(c.profile.BaseURL, src)
	}

	return rec, true
}

// ExtractPage treats the whole document as one product-detail page and
// recovers a single record from it. Detail pages reuse the listing field
// markup, so the field cascade applies against the document root. The page
// URL becomes the record URL; pageURL should be the post-redirect address.
func (c *Cascade) ExtractPage(doc *goquery.Document, pageURL string) (models.ProductRecord, bool) {
	rec, ok := c.extractOne(doc.Selection)
	if !ok {
		return rec, false
	}
	rec.URL = pageURL
	return rec, true
}

// firstText runs the field cascade and returns the first rule's non-empty
// trimmed text.
func (c *Cascade) firstText(container *goquery.Selection, field string) (RawFieldValue, bool) {
	for _, rule := range c.profile.Rules(field) {
		el := container.Find(rule.Selector).First()
		if el.Length() == 0 {
			continue
		}
		text := strings.TrimSpace(el.Text())
		if text == "" {
			continue
		}
		return RawFieldValue{Field: field, Text: text, SourceRule: rule.Name}, true
	}
	return RawFieldValue{}, false
}

// firstAttr runs the field cascade against an attribute instead of text.
func (c *Cascade) firstAttr(container *goquery.Selection, field, attr string) (string, bool) {
	for _, rule := range c.profile.Rules(field) {
		el := container.Find(rule.Selector).First()
		if el.Length() == 0 {
			continue
		}
		if v, ok := el.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// firstImageSrc prefers the primary src and falls back to the lazy-load
// attribute marketplaces use before images scroll into view.
func (c *Cascade) firstImageSrc(container *goquery.Selection) (string, bool) {
	for _, rule := range c.profile.Rules(selectors.FieldImage) {
		el := container.Find(rule.Selector).First()
		if el.Length() == 0 {
			continue
		}
		if v, ok := el.Attr("src"); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
		if v, ok := el.Attr("data-src"); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// Out-of-stock phrases seen across marketplace listing cards.
var outOfStockPhrases = []string{
	"currently unavailable",
	"out of stock",
	"sold out",
	"temporarily unavailable",
}

// detectAvailability scans the container text for stock signals. Listing
// cards rarely carry an in-stock marker, so absence of a negative phrase
// plus an add-to-cart control is the only positive signal.
func detectAvailability(s *goquery.Selection) models.Availability {
	text := strings.ToLower(s.Text())
	for _, phrase := range outOfStockPhrases {
		if strings.Contains(text, phrase) {
			return models.OutOfStock
		}
	}

	inStock := false
	s.Find("button").EachWithBreak(func(_ int, b *goquery.Selection) bool {
		if strings.Contains(strings.ToLower(b.Text()), "add to cart") {
			inStock = true
			return false
		}
		return true
	})
	if inStock {
		return models.InStock
	}
	return models.AvailabilityUnknown
}

// AbsoluteURL resolves protocol-relative and root-relative links against
// the marketplace base URL. Already-absolute links pass through untouched.
func AbsoluteURL(base, href string) string {
	switch {
	case href == "":
		return ""
	case strings.HasPrefix(href, "//"):
		return "https:" + href
	case strings.HasPrefix(href, "/"):
		return strings.TrimSuffix(base, "/") + href
	default:
		return href
	}
}
