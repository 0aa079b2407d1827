package fetch

import (
	"strings"

	"golang.org/x/net/html"
)

// BlockSignal classifies how a marketplace rejected a request. It is
// derived per response and consumed only by the retry loop, never persisted.
type BlockSignal string

const (
	SignalOK          BlockSignal = "ok"
	SignalCaptcha     BlockSignal = "captcha"
	SignalRateLimited BlockSignal = "rate_limited"
	SignalOverloaded  BlockSignal = "overloaded"
)

// Blocked reports whether the signal indicates rejection.
func (s BlockSignal) Blocked() bool { return s != SignalOK }

// Phrases marketplaces render on interstitial and challenge pages. Matched
// against visible text only, so a mention inside a script blob does not
// false-positive.
var blockMarkers = []string{
	"access denied",
	"captcha",
	"security check",
	"unusual traffic",
	"please verify",
	"are you a robot",
	"robot check",
}

// Classify derives the block signal from an HTTP status and body. A CAPTCHA
// marker in the body wins regardless of status code — challenge pages are
// routinely served with 200.
func Classify(statusCode int, body string) BlockSignal {
	text := strings.ToLower(visibleText(body, 4096))
	for _, marker := range blockMarkers {
		if strings.Contains(text, marker) {
			return SignalCaptcha
		}
	}

	switch statusCode {
	case 429:
		return SignalRateLimited
	case 503, 529:
		return SignalOverloaded
	}
	return SignalOK
}

// visibleText extracts up to limit bytes of visible body text, skipping
// script, style, and noscript subtrees.
func visibleText(rawHTML string, limit int) string {
	tokenizer := html.NewTokenizer(strings.NewReader(rawHTML))
	var buf strings.Builder
	skipDepth := 0

	for buf.Len() < limit {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return buf.String()
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "script", "style", "noscript":
				skipDepth++
			}
		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "script", "style", "noscript":
				if skipDepth > 0 {
					skipDepth--
				}
			}
		case html.TextToken:
			if skipDepth == 0 {
				if text := strings.TrimSpace(string(tokenizer.Text())); text != "" {
					buf.WriteString(text)
					buf.WriteByte(' ')
				}
			}
		}
	}
	return buf.String()
}

// needsBrowser decides whether an HTTP-fetched page is an empty SPA shell
// that requires JS rendering before extraction has anything to work with.
func needsBrowser(body string) bool {
	text := visibleText(body, 8192)
	if len(text) < 200 {
		return true
	}

	lower := strings.ToLower(body)
	for _, shell := range []string{
		`<div id="root"></div>`,
		`<div id="app"></div>`,
		`<div id="__next"></div>`,
	} {
		if strings.Contains(lower, shell) {
			return true
		}
	}

	// Many scripts plus little body text is the other SPA tell.
	if strings.Count(lower, "<script") > 10 && len(text) < 500 {
		return true
	}
	return false
}
