package extract

import (
	"testing"

	"github.com/trawlhq/trawl/models"
	"github.com/trawlhq/trawl/selectors"
)

// unknownClassFixture simulates a page after a class-name sweep: none of
// the profile selectors match, but product anchors and currency markers
// are still present.
const unknownClassFixture = `
<html><body><div class="zz-results">
  <div class="zz-card">
    <a href="/widget-pro-keyboard/p/zz1">Widget Pro Mechanical Keyboard</a>
    <span class="zz-price">₹12,499</span>
    <span class="zz-meta">4.1★ (1,204)</span>
    <img src="/img/zz1.jpg">
  </div>
  <div class="zz-card">
    <a href="/acme-laptop-16/p/zz2">Acme Laptop 16 inch FHD Display</a>
    <span class="zz-price">₹55,990</span>
    <span class="zz-meta">4.3★ (88)</span>
    <img data-src="/img/zz2.jpg">
  </div>
  <div class="zz-card">
    <a href="/about-us">Not a product link</a>
  </div>
</div></body></html>`

func TestFallbackExtract(t *testing.T) {
	f := NewFallback(selectors.Default())
	records := f.Extract(doc(t, unknownClassFixture), 10)

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d: %+v", len(records), records)
	}

	first := records[0]
	if first.Title != "Widget Pro Mechanical Keyboard" {
		t.Errorf("title = %q", first.Title)
	}
	if !first.PriceNumeric.Known || first.PriceNumeric.Value != 12499 {
		t.Errorf("price = %+v, want 12499", first.PriceNumeric)
	}
	if first.PriceDisplay != "₹12,499" {
		t.Errorf("price display = %q", first.PriceDisplay)
	}
	if !first.RatingNumeric.Known || first.RatingNumeric.Value != 4.1 {
		t.Errorf("rating = %+v, want 4.1", first.RatingNumeric)
	}
	if first.URL != "https://www.flipkart.com/widget-pro-keyboard/p/zz1" {
		t.Errorf("url = %q", first.URL)
	}
	if first.ImageURL != "https://www.flipkart.com/img/zz1.jpg" {
		t.Errorf("image = %q", first.ImageURL)
	}
	if first.ExtractionMethod != models.MethodFallback {
		t.Errorf("method = %q", first.ExtractionMethod)
	}

	if records[1].ImageURL != "https://www.flipkart.com/img/zz2.jpg" {
		t.Errorf("lazy image = %q", records[1].ImageURL)
	}
}

func TestFallbackExtract_NoAnchors(t *testing.T) {
	f := NewFallback(selectors.Default())
	records := f.Extract(doc(t, `<html><body><a href="/help">help</a></body></html>`), 10)

	if records == nil || len(records) != 0 {
		t.Errorf("expected empty (non-nil) slice, got %+v", records)
	}
}

func TestFallbackExtract_Limit(t *testing.T) {
	f := NewFallback(selectors.Default())
	records := f.Extract(doc(t, unknownClassFixture), 1)
	if len(records) != 1 {
		t.Errorf("limit 1 should cap output, got %d", len(records))
	}
}

func TestFallbackExtract_DedupsRepeatedAnchors(t *testing.T) {
	// The same card reached via two anchors: title anchor + image anchor.
	fixture := `
	<div class="zz-card">
	  <a href="/widget-pro-keyboard/p/zz1"><img src="/img/zz1.jpg"></a>
	  <a href="/widget-pro-keyboard/p/zz1">Widget Pro Mechanical Keyboard</a>
	  <span>₹12,499</span>
	  <span>4.1★</span>
	</div>`

	f := NewFallback(selectors.Default())
	records := f.Extract(doc(t, fixture), 10)
	if len(records) != 1 {
		t.Errorf("expected 1 deduped record, got %d: %+v", len(records), records)
	}
}

func TestFallbackExtract_DiscardsPriceless(t *testing.T) {
	fixture := `
	<div class="zz-card">
	  <a href="/mystery-item/p/zz9">Mystery Item With No Price Anywhere</a>
	  <span>special offer</span>
	</div>`

	f := NewFallback(selectors.Default())
	records := f.Extract(doc(t, fixture), 10)
	if len(records) != 0 {
		t.Errorf("priceless candidate should be discarded, got %+v", records)
	}
}

func TestFallbackExtract_RejectsShortTitles(t *testing.T) {
	// Without a selector match, a short remnant like "Mi Band 7" cannot be
	// told apart from a badge or button label, so the fallback's length
	// floor discards the candidate.
	fixture := `
	<div class="zz-card">
	  <a href="/mi-band/p/zz7">Mi Band 7</a>
	  <span>₹2,799</span>
	</div>`

	f := NewFallback(selectors.Default())
	records := f.Extract(doc(t, fixture), 10)
	if len(records) != 0 {
		t.Errorf("short-titled candidate should be discarded, got %+v", records)
	}
}

func TestRecoverPrice(t *testing.T) {
	f := NewFallback(selectors.Default())

	tests := []struct {
		name    string
		text    string
		want    models.Maybe
		display string
	}{
		{"two-part grouping", "Widget ₹12,499 great deal", models.Some(12499), "₹12,499"},
		{"indian grouping", "Laptop ₹1,33,999 premium", models.Some(133999), "₹1,33,999"},
		{"plain digits", "Phone ₹45990 offer", models.Some(45990), "₹45990"},
		{"rs prefix", "Tablet Rs. 24,999 only", models.Some(24999), "₹24,999"},
		{"bad grouping rejected", "Item ₹1,24 nope", models.None(), ""},
		{"below magnitude window", "Cable ₹499 budget", models.None(), ""},
		{"no currency", "Item 55990 count", models.None(), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, display := f.recoverPrice(tt.text)
			if got != tt.want || display != tt.display {
				t.Errorf("recoverPrice(%q) = (%+v, %q), want (%+v, %q)",
					tt.text, got, display, tt.want, tt.display)
			}
		})
	}
}

func TestRecoverRating(t *testing.T) {
	tests := []struct {
		name string
		text string
		want models.Maybe
	}{
		{"star suffix", "Widget 4.1★ (1,204)", models.Some(4.1)},
		{"out of five", "rated 3.9 out of 5 by buyers", models.Some(3.9)},
		{"before count", "4.3 (88 ratings)", models.Some(4.3)},
		{"star prefix", "★ 4.5 excellent", models.Some(4.5)},
		{"out of scale", "9.9★ suspicious", models.None()},
		{"no rating", "no reviews yet", models.None()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := recoverRating(tt.text); got != tt.want {
				t.Errorf("recoverRating(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
		})
	}
}

func TestGroupingPlausible(t *testing.T) {
	tests := []struct {
		raw    string
		groups int
		want   bool
	}{
		{"12499", 0, true},
		{"12,499", 2, true},
		{"123,499", 2, true},
		{"1,33,999", 3, true},
		{"12,33,999", 3, true},
		{"1,24", 2, false},
		{"1234,499", 2, false},
		{"123,33,999", 3, false},
		{"1,3,999", 3, false},
	}

	for _, tt := range tests {
		if got := groupingPlausible(tt.raw, tt.groups); got != tt.want {
			t.Errorf("groupingPlausible(%q, %d) = %v, want %v", tt.raw, tt.groups, got, tt.want)
		}
	}
}

func TestRecoverTitle_FallsBackToTextNodes(t *testing.T) {
	// Anchor text is pure noise; the card carries the title in a sibling.
	fixture := `
	<div class="zz-card">
	  <a href="/acme-laptop/p/zz2">₹55,990</a>
	  <span>Acme Laptop 16 inch FHD Display</span>
	  <span>4.3★</span>
	</div>`

	f := NewFallback(selectors.Default())
	records := f.Extract(doc(t, fixture), 10)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Title != "Acme Laptop 16 inch FHD Display" {
		t.Errorf("title = %q", records[0].Title)
	}
}
