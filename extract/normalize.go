// Package extract turns a fetched marketplace search page into normalized
// product records. Two paths exist: the selector cascade driven by a
// configured profile, and a heuristic fallback used when every container
// rule comes up empty.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/trawlhq/trawl/models"
)

// Plausibility window for listing prices. Anything outside is treated as a
// mis-parse (percentage, review count, pixel value) rather than a price.
const (
	MinPlausiblePrice = 1000
	MaxPlausiblePrice = 9999999
)

// Rating bounds: marketplace ratings are always on a 1–5 scale.
const (
	minRating = 1.0
	maxRating = 5.0
)

var (
	reNonNumeric   = regexp.MustCompile(`[^\d.]`)
	reRatingToken  = regexp.MustCompile(`(\d+(?:\.\d+)?)`)
	rePriceNoise   = regexp.MustCompile(`₹[\d,]+.*$`)
	reRatingNoise  = regexp.MustCompile(`\d+\.\d+.*$`)
	reCountSuffix  = regexp.MustCompile(`\(\d[\d,]*\)`)
	reLeadingEnum  = regexp.MustCompile(`^\d+\.\s*`)
	reMultiSpace   = regexp.MustCompile(`\s+`)
	reCurrencyLead = regexp.MustCompile(`^(₹|Rs\.?|INR)\s*`)
)

// ParsePrice converts a display price ("₹55,990", "Rs. 1,33,999") to a
// numeric value. It is pure and total: any input that does not reduce to a
// number inside the plausibility window yields None.
func ParsePrice(text string) models.Maybe {
	s := strings.TrimSpace(text)
	if s == "" {
		return models.None()
	}
	s = reCurrencyLead.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, ",", "")
	s = reNonNumeric.ReplaceAllString(s, "")
	if s == "" || strings.Count(s, ".") > 1 {
		return models.None()
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return models.None()
	}
	if v < MinPlausiblePrice || v > MaxPlausiblePrice {
		return models.None()
	}
	return models.Some(v)
}

// ParseRating extracts the first numeric token from a rating string
// ("4.3", "4.3 stars", "★4.3"). Values outside [1.0, 5.0] yield None even
// when syntactically valid.
func ParseRating(text string) models.Maybe {
	m := reRatingToken.FindString(text)
	if m == "" {
		return models.None()
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return models.None()
	}
	if v < minRating || v > maxRating {
		return models.None()
	}
	return models.Some(v)
}

// FormatPrice renders a numeric price in the display format the rest of the
// pipeline expects: rupee symbol plus Indian digit grouping
// (55990 → "₹55,990", 133999 → "₹1,33,999").
func FormatPrice(v float64) string {
	n := int64(v)
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return "₹" + s
	}

	// Last group of 3, then groups of 2 walking left.
	var groups []string
	groups = append(groups, s[len(s)-3:])
	s = s[:len(s)-3]
	for len(s) > 2 {
		groups = append(groups, s[len(s)-2:])
		s = s[:len(s)-2]
	}
	if s != "" {
		groups = append(groups, s)
	}
	for i, j := 0, len(groups)-1; i < j; i, j = i+1, j-1 {
		groups[i], groups[j] = groups[j], groups[i]
	}
	return "₹" + strings.Join(groups, ",")
}

// CleanTitle strips the price, rating, and review-count noise that listing
// anchors drag along with the product name, and normalizes whitespace.
// Returns "" when nothing title-like survives. Any non-empty remainder is a
// valid title: a selector-matched "Mi Band 7" is a real product name, so
// length plausibility is the fallback extractor's concern, not the
// normalizer's.
func CleanTitle(text string) string {
	t := strings.TrimSpace(text)
	t = rePriceNoise.ReplaceAllString(t, "")
	t = reRatingNoise.ReplaceAllString(t, "")
	t = reCountSuffix.ReplaceAllString(t, "")
	t = reLeadingEnum.ReplaceAllString(t, "")
	t = reMultiSpace.ReplaceAllString(t, " ")
	t = strings.TrimSpace(t)

	if isDigits(t) {
		return ""
	}
	if r := []rune(t); len(r) > 120 {
		t = strings.TrimSpace(string(r[:120]))
	}
	return t
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
