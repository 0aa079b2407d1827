package health

import (
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/trawlhq/trawl/extract"
	"github.com/trawlhq/trawl/selectors"
)

// Discovery bounds. Price elements on listing cards are short ("₹55,990"),
// titles are sentence-length; longer matches are wrappers, not leaves.
const (
	maxPriceTextLen = 20
	minTitleTextLen = 20
	maxTitleTextLen = 200
	maxCandidates   = 10
)

// CandidateRule is a selector the monitor found matching field-shaped
// content on the live page. Candidates are advisory: an operator (or a
// provisioning pipeline) promotes them into the profile, never the monitor
// itself.
type CandidateRule struct {
	Field    string `json:"field"`
	Selector string `json:"selector"`
	Matches  int    `json:"matches"`
	Sample   string `json:"sample"`
}

// DiscoverCandidates scans the probe page for elements that look like
// prices or titles and proposes class-based selectors for them, skipping
// selectors the profile already carries. Run only when the cascade is
// degraded; on a healthy page it would just re-discover the active rules.
func DiscoverCandidates(doc *goquery.Document, p *selectors.Profile) []CandidateRule {
	known := knownSelectors(p)
	marker := p.CurrencyMarker

	type bucket struct {
		field   string
		matches int
		sample  string
	}
	buckets := make(map[string]*bucket)

	doc.Find("div, span, a, p, h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}

		sel := classSelector(s)
		if sel == "" {
			return
		}
		if _, dup := known[sel]; dup {
			return
		}

		var field string
		switch {
		case strings.Contains(text, marker) && len(text) <= maxPriceTextLen &&
			extract.ParsePrice(text).Known:
			field = selectors.FieldPrice
		case len(text) >= minTitleTextLen && len(text) <= maxTitleTextLen &&
			!strings.Contains(text, marker) && s.Children().Length() == 0:
			field = selectors.FieldTitle
		default:
			return
		}

		key := field + "|" + sel
		if b, ok := buckets[key]; ok {
			b.matches++
			return
		}
		buckets[key] = &bucket{field: field, matches: 1, sample: truncate(text, 80)}
	})

	candidates := make([]CandidateRule, 0, len(buckets))
	for key, b := range buckets {
		sel := key[strings.IndexByte(key, '|')+1:]
		candidates = append(candidates, CandidateRule{
			Field:    b.field,
			Selector: sel,
			Matches:  b.matches,
			Sample:   b.sample,
		})
	}

	// Most frequent first; a selector matching one element is noise, a
	// selector matching every card is the new generation.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Matches != candidates[j].Matches {
			return candidates[i].Matches > candidates[j].Matches
		}
		return candidates[i].Selector < candidates[j].Selector
	})
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}
	return candidates
}

// classSelector builds "tag.class1.class2" for an element, or "" when the
// element carries no classes (a bare tag selector is useless as a rule).
func classSelector(s *goquery.Selection) string {
	node := s.Get(0)
	if node == nil {
		return ""
	}
	classAttr, ok := s.Attr("class")
	if !ok {
		return ""
	}
	classes := strings.Fields(classAttr)
	if len(classes) == 0 {
		return ""
	}
	return node.Data + "." + strings.Join(classes, ".")
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// knownSelectors flattens every selector already in the profile for
// duplicate suppression.
func knownSelectors(p *selectors.Profile) map[string]struct{} {
	known := make(map[string]struct{})
	for _, field := range []string{
		selectors.FieldContainer, selectors.FieldTitle, selectors.FieldPrice,
		selectors.FieldRating, selectors.FieldURL, selectors.FieldImage,
	} {
		for _, rule := range p.Rules(field) {
			known[rule.Selector] = struct{}{}
		}
	}
	return known
}
