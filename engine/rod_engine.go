package engine

import (
	"context"
	"fmt"
)

// BrowserFetchFunc wraps the scraper's rod-based page fetch. It is injected
// from main.go to avoid a circular import (engine/ -> scraper/).
type BrowserFetchFunc func(ctx context.Context, req *Request) (*Result, error)

// RodEngine is a browser-rendering strategy that delegates to the rod
// session via a callback. The forceStealth flag distinguishes the plain
// browser tier from the stealth tier used against bot-sensitive pages.
type RodEngine struct {
	fetchFunc    BrowserFetchFunc
	forceStealth bool
	name         string
}

// NewRodEngine creates a RodEngine.
func NewRodEngine(fetchFunc BrowserFetchFunc, forceStealth bool) *RodEngine {
	name := "rod"
	if forceStealth {
		name = "rod-stealth"
	}
	return &RodEngine{
		fetchFunc:    fetchFunc,
		forceStealth: forceStealth,
		name:         name,
	}
}

func (e *RodEngine) Name() string { return e.name }

func (e *RodEngine) Fetch(ctx context.Context, req *Request) (*Result, error) {
	if e.fetchFunc == nil {
		return nil, fmt.Errorf("%s: fetchFunc not configured", e.name)
	}

	// Clone the request so we don't mutate the caller's copy.
	r := *req
	if e.forceStealth {
		r.Stealth = true
	}

	result, err := e.fetchFunc(ctx, &r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.name, err)
	}

	result.EngineName = e.name
	return result, nil
}
