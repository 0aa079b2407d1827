package extract

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/trawlhq/trawl/models"
	"github.com/trawlhq/trawl/selectors"
	"golang.org/x/net/html"
)

// How far up the ancestor chain the container search walks from an anchor.
const maxAncestorDepth = 8

// Bounded text windows for per-field regex scans inside a card, so one
// card's regexes never bleed into a neighbour's text.
const (
	priceScanWindow  = 500
	ratingScanWindow = 300
)

// Fallback recovers product records when the selector cascade finds zero
// containers — typically after a marketplace ships a new class-name
// generation. It trades precision for survival: product-detail anchors are
// located by URL pattern, the enclosing card is found by walking ancestors,
// and fields are recovered by bounded regex scans with plausibility checks.
type Fallback struct {
	profile *selectors.Profile
}

// NewFallback creates a Fallback bound to a read-only profile.
func NewFallback(p *selectors.Profile) *Fallback {
	return &Fallback{profile: p}
}

// pricePattern pairs a regex with the digit-grouping shape it captures, so
// a syntactic match can still be rejected as implausible.
type pricePattern struct {
	re     *regexp.Regexp
	groups int // 0 = plain digits, 2 = "1–3,3", 3 = "1–2,2,3"
}

var pricePatterns = []pricePattern{
	// ₹1,23,456 — full Indian grouping.
	{regexp.MustCompile(`₹\s*(\d{1,2},\d{2},\d{3})`), 3},
	// ₹55,990 — two-part grouping.
	{regexp.MustCompile(`₹\s*(\d{1,3},\d{3})`), 2},
	// ₹12345 — plain digits.
	{regexp.MustCompile(`₹\s*(\d{4,7})`), 0},
	// Rs. variants.
	{regexp.MustCompile(`Rs\.?\s*(\d{1,2},\d{2},\d{3})`), 3},
	{regexp.MustCompile(`Rs\.?\s*(\d{1,3},\d{3})`), 2},
	{regexp.MustCompile(`Rs\.?\s*(\d{4,7})`), 0},
}

var ratingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d\.\d{1,2})\s*★`),
	regexp.MustCompile(`(?i)(\d\.\d{1,2})\s*out of 5`),
	regexp.MustCompile(`(\d\.\d{1,2})\s*\(\d`),
	regexp.MustCompile(`(\d\.\d{1,2})\s*[|,(]`),
	regexp.MustCompile(`★\s*(\d\.\d{1,2})`),
}

// Extract runs the heuristic recovery pass. Zero discovered anchors is not
// an error: the caller reports it as a successful extraction with an empty
// record list, distinct from a network failure.
func (f *Fallback) Extract(doc *goquery.Document, limit int) []models.ProductRecord {
	anchors := f.discoverAnchors(doc)
	if len(anchors) == 0 {
		return []models.ProductRecord{}
	}
	slog.Debug("fallback anchors discovered", "count", len(anchors))

	records := make([]models.ProductRecord, 0, limit)
	for _, a := range anchors {
		rec, ok := f.recover(a)
		if !ok {
			continue
		}
		if isFallbackDuplicate(records, rec) {
			continue
		}
		records = append(records, rec)
		if limit > 0 && len(records) >= limit {
			break
		}
	}
	return records
}

// discoverAnchors collects anchors whose target matches the marketplace's
// product-detail path, in document order.
func (f *Fallback) discoverAnchors(doc *goquery.Document) []*goquery.Selection {
	var anchors []*goquery.Selection
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if strings.Contains(href, f.profile.ProductPath) {
			anchors = append(anchors, a)
		}
	})
	return anchors
}

// recover rebuilds one record from a product anchor. A candidate without
// both a title and a price after recovery is discarded.
func (f *Fallback) recover(anchor *goquery.Selection) (models.ProductRecord, bool) {
	var rec models.ProductRecord
	rec.ExtractionMethod = models.MethodFallback
	rec.Availability = models.AvailabilityUnknown

	container := f.bestContainer(anchor)
	cardText := strings.TrimSpace(container.Text())

	rec.Title = f.recoverTitle(anchor, container)
	price, display := f.recoverPrice(cardText)
	rec.PriceNumeric = price
	rec.PriceDisplay = display
	rec.RatingNumeric = recoverRating(cardText)
	if href, ok := anchor.Attr("href"); ok {
		rec.URL = AbsoluteURL(f.profile.BaseURL, href)
	}
	rec.ImageURL = f.recoverImage(container)

	if rec.Title == "" || !rec.PriceNumeric.Known {
		return rec, false
	}
	return rec, true
}

// bestContainer walks the ancestor chain up to maxAncestorDepth and returns
// the closest ancestor whose text contains the currency marker and fits the
// plausible card length window. Closest wins: a wider ancestor would bleed
// neighbouring cards' prices into this card's scan. The walk stops at
// body/html; with no match the anchor itself is the container.
func (f *Fallback) bestContainer(anchor *goquery.Selection) *goquery.Selection {
	marker := f.profile.CurrencyMarker
	bounds := f.profile.Container

	node := anchor
	for depth := 0; depth < maxAncestorDepth; depth++ {
		parent := node.Parent()
		if parent.Length() == 0 || parent.Is("body") || parent.Is("html") {
			break
		}
		node = parent
		text := node.Text()
		if strings.Contains(text, marker) &&
			len(text) > bounds.MinTextLen && len(text) < bounds.MaxTextLen {
			return node
		}
	}
	return anchor
}

// recoverTitle prefers the anchor's own text (after noise stripping); when
// that is implausible, it scans the container's text nodes for the first
// title-like one: 15–150 chars, no currency marker, not a bare number.
func (f *Fallback) recoverTitle(anchor, container *goquery.Selection) string {
	if t := fallbackTitle(anchor.Text()); t != "" {
		return t
	}

	marker := f.profile.CurrencyMarker
	for _, text := range textNodes(container, 10) {
		if len(text) < 15 || len(text) > 150 {
			continue
		}
		if strings.Contains(text, marker) || isDigits(text) ||
			strings.Contains(strings.ToLower(text), "rating") {
			continue
		}
		if t := fallbackTitle(text); t != "" {
			return t
		}
	}
	return ""
}

// fallbackTitle cleans a candidate string and applies the heuristic length
// floor. Without configured selectors a short remnant is as likely a badge
// or button label as a product name, so the fallback demands more than the
// cascade does.
func fallbackTitle(text string) string {
	t := CleanTitle(text)
	if len(t) <= 10 {
		return ""
	}
	return t
}

// textNodes walks the selection's subtree in document order and returns up
// to limit non-empty trimmed text nodes.
func textNodes(sel *goquery.Selection, limit int) []string {
	var out []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(out) >= limit {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				out = append(out, text)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return out
}

// recoverPrice scans the head of the card text with the ordered currency
// patterns, validating each match's digit grouping and magnitude before
// accepting it.
func (f *Fallback) recoverPrice(cardText string) (models.Maybe, string) {
	window := cardText
	if len(window) > priceScanWindow {
		window = window[:priceScanWindow]
	}

	for _, p := range pricePatterns {
		for _, m := range p.re.FindAllStringSubmatch(window, -1) {
			raw := m[1]
			if !groupingPlausible(raw, p.groups) {
				continue
			}
			n, err := strconv.Atoi(strings.ReplaceAll(raw, ",", ""))
			if err != nil {
				continue
			}
			if n < MinPlausiblePrice || n > MaxPlausiblePrice {
				continue
			}
			return models.Some(float64(n)), "₹" + raw
		}
	}
	return models.None(), ""
}

// groupingPlausible validates the comma structure of a matched price:
// a 2-part group must be "1–3 digits, 3 digits"; a 3-part group must be
// "1–2 digits, 2 digits, 3 digits" (Indian grouping).
func groupingPlausible(raw string, groups int) bool {
	parts := strings.Split(raw, ",")
	switch groups {
	case 0:
		return len(parts) == 1
	case 2:
		return len(parts) == 2 &&
			len(parts[0]) >= 1 && len(parts[0]) <= 3 && len(parts[1]) == 3
	case 3:
		return len(parts) == 3 &&
			len(parts[0]) >= 1 && len(parts[0]) <= 2 &&
			len(parts[1]) == 2 && len(parts[2]) == 3
	default:
		return false
	}
}

// recoverRating applies the rating patterns to the head of the card text and
// keeps the first match inside [1.0, 5.0].
func recoverRating(cardText string) models.Maybe {
	window := cardText
	if len(window) > ratingScanWindow {
		window = window[:ratingScanWindow]
	}

	for _, re := range ratingPatterns {
		for _, m := range re.FindAllStringSubmatch(window, -1) {
			v, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			if v >= minRating && v <= maxRating {
				return models.Some(v)
			}
		}
	}
	return models.None()
}

// recoverImage takes the first img element's src, or its lazy-load source,
// normalized to an absolute URL.
func (f *Fallback) recoverImage(container *goquery.Selection) string {
	img := container.Find("img").First()
	if img.Length() == 0 {
		return ""
	}
	src, ok := img.Attr("src")
	if !ok || strings.TrimSpace(src) == "" {
		src, _ = img.Attr("data-src")
	}
	return AbsoluteURL(f.profile.BaseURL, strings.TrimSpace(src))
}

// isFallbackDuplicate applies the fallback-local dedup rule: a candidate
// whose (price, rating, title prefix) tuple matches an accepted one is
// assumed to be the same card reached through a second anchor.
func isFallbackDuplicate(accepted []models.ProductRecord, rec models.ProductRecord) bool {
	for _, a := range accepted {
		if a.PriceNumeric == rec.PriceNumeric &&
			a.RatingNumeric == rec.RatingNumeric &&
			titlePrefix(a.Title) == titlePrefix(rec.Title) {
			return true
		}
	}
	return false
}

func titlePrefix(title string) string {
	r := []rune(title)
	if len(r) > 30 {
		r = r[:30]
	}
	return string(r)
}
