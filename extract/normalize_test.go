package extract

import (
	"strings"
	"testing"

	"github.com/trawlhq/trawl/models"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  models.Maybe
	}{
		{"rupee symbol with grouping", "₹55,990", models.Some(55990)},
		{"lakh grouping", "₹1,33,999", models.Some(133999)},
		{"rs prefix", "Rs. 1,33,999", models.Some(133999)},
		{"rs without dot", "Rs 45000", models.Some(45000)},
		{"inr prefix", "INR 24,999", models.Some(24999)},
		{"bare digits", "55990", models.Some(55990)},
		{"surrounding whitespace", "  ₹12,499  ", models.Some(12499)},
		{"decimal price", "₹1299.50", models.Some(1299.5)},
		{"below window", "₹999", models.None()},
		{"above window", "₹10,000,000", models.None()},
		{"empty", "", models.None()},
		{"no digits", "Price on request", models.None()},
		{"two dots", "1.2.3", models.None()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePrice(tt.input)
			if got != tt.want {
				t.Errorf("ParsePrice(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseRating(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  models.Maybe
	}{
		{"bare", "4.3", models.Some(4.3)},
		{"with suffix", "4.3 stars", models.Some(4.3)},
		{"star prefix", "★4.1", models.Some(4.1)},
		{"out of five", "3.9 out of 5", models.Some(3.9)},
		{"integer rating", "4", models.Some(4)},
		{"lower bound", "1.0", models.Some(1)},
		{"upper bound", "5.0", models.Some(5)},
		{"below scale", "0.5", models.None()},
		{"above scale", "9.2", models.None()},
		{"no number", "no ratings yet", models.None()},
		{"empty", "", models.None()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseRating(tt.input)
			if got != tt.want {
				t.Errorf("ParseRating(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{999, "₹999"},
		{1000, "₹1,000"},
		{55990, "₹55,990"},
		{133999, "₹1,33,999"},
		{9999999, "₹99,99,999"},
		{12499, "₹12,499"},
	}

	for _, tt := range tests {
		if got := FormatPrice(tt.in); got != tt.want {
			t.Errorf("FormatPrice(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	for _, v := range []float64{1000, 55990, 133999, 9999999} {
		got := ParsePrice(FormatPrice(v))
		if !got.Known || got.Value != v {
			t.Errorf("ParsePrice(FormatPrice(%v)) = %+v", v, got)
		}
	}
}

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			"price noise stripped",
			"Widget Pro Max Keyboard ₹12,499 (1,204)",
			"Widget Pro Max Keyboard",
		},
		{
			"rating decimal stripped",
			"Acme Laptop 15 inch display 4.1★ 55,990",
			"Acme Laptop 15 inch display",
		},
		{
			"leading enumeration stripped",
			"1. Mechanical Keyboard RGB",
			"Mechanical Keyboard RGB",
		},
		{
			"whitespace collapsed",
			"  Gaming   Mouse\n  Wireless  ",
			"Gaming Mouse Wireless",
		},
		{"nothing survives cleanup", "₹55,990", ""},
		{"short title kept", "Mi Band 7", "Mi Band 7"},
		{"digits only", "12345678901", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanTitle(tt.input); got != tt.want {
				t.Errorf("CleanTitle(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCleanTitle_CapsLength(t *testing.T) {
	long := "Laptop" + strings.Repeat(" with very long marketing description", 12)
	got := CleanTitle(long)
	if len([]rune(got)) > 120 {
		t.Errorf("cleaned title exceeds 120 runes: %d", len([]rune(got)))
	}
}
