// Package layout fingerprints marketplace page structure so the health
// monitor can tell "the selectors rotted" apart from "the page layout
// changed". Fingerprints are 64-bit SimHashes over shingled tag+class
// tokens: class churn is the usual symptom of a marketplace redesign, so
// classes are part of the token, not noise.
package layout

import (
	"hash/fnv"
	"math/bits"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

const shingleSize = 3

// Fingerprint computes a structural SimHash of a rendered page. Text
// content and non-class attributes are ignored; two pages with the same
// markup skeleton produce the same fingerprint regardless of which
// products they show.
func Fingerprint(rawHTML string) uint64 {
	tokens := structureTokens(rawHTML)
	if len(tokens) == 0 {
		return 0
	}

	shingles := makeShingles(tokens, shingleSize)
	if len(shingles) == 0 {
		shingles = tokens
	}
	return simhash(shingles)
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Drifted reports whether two fingerprints differ by more than the
// threshold. A zero fingerprint (unparseable or empty page) never drifts —
// the fetch layer reports that failure separately.
func Drifted(a, b uint64, threshold int) bool {
	if a == 0 || b == 0 {
		return false
	}
	return Distance(a, b) > threshold
}

// structureTokens walks the HTML with the tokenizer and emits one token per
// opening tag: the tag name joined with its sorted class list, e.g.
// "div.Nx9bqj._4b5DiR". Sorting makes the token independent of attribute
// order in the markup.
func structureTokens(rawHTML string) []string {
	tokenizer := html.NewTokenizer(strings.NewReader(rawHTML))
	var tokens []string

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return tokens
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := tokenizer.TagName()
			token := string(name)
			if hasAttr {
				if classes := classList(tokenizer); len(classes) > 0 {
					token += "." + strings.Join(classes, ".")
				}
			}
			tokens = append(tokens, token)
		}
	}
}

// classList drains the current tag's attributes and returns its classes,
// sorted.
func classList(tokenizer *html.Tokenizer) []string {
	var classes []string
	for {
		key, val, more := tokenizer.TagAttr()
		if string(key) == "class" {
			classes = strings.Fields(string(val))
		}
		if !more {
			break
		}
	}
	sort.Strings(classes)
	return classes
}

// makeShingles creates n-gram shingles from a token sequence.
func makeShingles(tokens []string, n int) []string {
	if len(tokens) < n {
		return nil
	}
	shingles := make([]string, 0, len(tokens)-n+1)
	for i := 0; i <= len(tokens)-n; i++ {
		shingles = append(shingles, strings.Join(tokens[i:i+n], ">"))
	}
	return shingles
}

// simhash accumulates FNV-64a hashes of the shingles into the classic
// 64-bit bit-vector SimHash.
func simhash(shingles []string) uint64 {
	var vector [64]int

	for _, s := range shingles {
		h := fnv.New64a()
		h.Write([]byte(s))
		sum := h.Sum64()

		for i := 0; i < 64; i++ {
			if sum&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fp uint64
	for i := 0; i < 64; i++ {
		if vector[i] > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}
