// Package engine defines the pluggable page-fetch strategies. The scraper
// never talks to the network directly: it asks an Engine for a document and
// lets the fetch layer decide which engine, how often, and when to give up.
package engine

import (
	"context"
	"time"
)

// Engine is the interface all fetch strategies implement.
type Engine interface {
	// Name returns the engine identifier ("http", "rod", "rod-stealth").
	Name() string

	// Fetch retrieves the page for the given request. Engines return a
	// result for any HTTP response they receive, including error statuses;
	// classifying a status as a block is the fetch layer's job. An error
	// means the transport itself failed.
	Fetch(ctx context.Context, req *Request) (*Result, error)
}

// Request contains everything an engine needs to fetch a page.
type Request struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
	Stealth bool
}

// Result is the output of an engine fetch.
type Result struct {
	HTML       string
	StatusCode int
	FinalURL   string
	EngineName string
}
