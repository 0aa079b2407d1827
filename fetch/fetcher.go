// Package fetch owns the fetch-retry-detect-block loop. It drives the
// configured engines with exponential backoff for transient failures,
// classifies every response for block signals, rate-limits politely per
// host, and fails fast through a per-host circuit breaker once a
// marketplace starts rejecting us.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker/v2"
	"github.com/trawlhq/trawl/config"
	"github.com/trawlhq/trawl/engine"
	"golang.org/x/time/rate"
)

// Result is the fetch outcome handed to the extraction pipeline.
type Result struct {
	HTML       string
	StatusCode int
	FinalURL   string
	EngineUsed string
}

// BlockedError is returned when the target rejected the request. It is
// deliberately not retried against the same host within the breaker window.
type BlockedError struct {
	Signal BlockSignal
	Host   string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("fetch: blocked by %s (%s)", e.Host, e.Signal)
}

// AsBlocked unwraps a BlockedError from an error chain.
func AsBlocked(err error) (*BlockedError, bool) {
	var be *BlockedError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// Fetcher coordinates the engine ladder. Engines are ordered cheapest
// first; a request escalates to the next tier when the current one returns
// an SPA shell or gets blocked. Per-host memory short-circuits the ladder
// to whichever tier last worked.
type Fetcher struct {
	engines []engine.Engine
	memory  *engine.HostMemory
	cfg     config.FetchConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	breakers map[string]*gobreaker.CircuitBreaker[*Result]
}

// New creates a Fetcher over the given engine ladder.
func New(cfg config.FetchConfig, engines []engine.Engine, memory *engine.HostMemory) *Fetcher {
	return &Fetcher{
		engines:  engines,
		memory:   memory,
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
		breakers: make(map[string]*gobreaker.CircuitBreaker[*Result]),
	}
}

// Fetch retrieves targetURL within the attempt budget. It returns a
// *BlockedError when every usable tier was rejected, or a plain error when
// the transport failed after exhausting retries. No state beyond the
// connection pools, breaker counters, and engine memory survives the call.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*Result, error) {
	host := hostOf(targetURL)

	if err := f.limiter(host).Wait(ctx); err != nil {
		return nil, fmt.Errorf("fetch: rate wait: %w", err)
	}

	result, err := f.breaker(host).Execute(func() (*Result, error) {
		return f.fetchLadder(ctx, targetURL, host)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		// Breaker open means a recent block; report it as such so the
		// caller degrades explicitly instead of hammering the host.
		return nil, &BlockedError{Signal: SignalOverloaded, Host: host}
	}
	return result, err
}

// fetchLadder walks the engine tiers for one request.
func (f *Fetcher) fetchLadder(ctx context.Context, targetURL, host string) (*Result, error) {
	ladder := f.ladderFor(host)

	var lastErr error
	for i, eng := range ladder {
		result, err := f.fetchWithRetry(ctx, eng, targetURL)
		if err != nil {
			if blocked, ok := AsBlocked(err); ok {
				lastErr = err
				// Overload and rate-limit responses mean back off the host
				// entirely; re-hitting it with a heavier engine only makes
				// it worse. A CAPTCHA challenge may still be beaten by a
				// stealthier identity, so that escalates one tier.
				if blocked.Signal != SignalCaptcha {
					return nil, lastErr
				}
				slog.Warn("engine hit a challenge page, escalating",
					"engine", eng.Name(), "host", host, "signal", blocked.Signal)
				continue
			}
			lastErr = err
			continue
		}

		// An SPA shell from the HTTP tier needs a rendering tier.
		if eng.Name() == "http" && i+1 < len(ladder) && needsBrowser(result.HTML) {
			slog.Debug("http result looks like an SPA shell, escalating", "host", host)
			lastErr = fmt.Errorf("fetch: %s returned unrendered shell", eng.Name())
			continue
		}

		f.memory.Set(host, eng.Name())
		return result, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("fetch: no engines configured")
	}
	if _, ok := AsBlocked(lastErr); !ok {
		f.memory.Forget(host)
	}
	return nil, lastErr
}

// fetchWithRetry runs one engine with exponential backoff. Block signals
// are permanent: a CAPTCHA or overload response must not be retried against
// the same endpoint.
func (f *Fetcher) fetchWithRetry(ctx context.Context, eng engine.Engine, targetURL string) (*Result, error) {
	host := hostOf(targetURL)

	operation := func() (*Result, error) {
		res, err := eng.Fetch(ctx, &engine.Request{
			URL:     targetURL,
			Timeout: f.cfg.DefaultTimeout,
		})
		if err != nil {
			return nil, err // transient: retried up to the budget
		}

		if signal := Classify(res.StatusCode, res.HTML); signal.Blocked() {
			return nil, backoff.Permanent(&BlockedError{Signal: signal, Host: host})
		}
		if res.StatusCode < 200 || res.StatusCode >= 300 {
			return nil, fmt.Errorf("fetch: HTTP %d from %s", res.StatusCode, host)
		}

		return &Result{
			HTML:       res.HTML,
			StatusCode: res.StatusCode,
			FinalURL:   res.FinalURL,
			EngineUsed: res.EngineName,
		}, nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = f.cfg.BaseDelay
	expo.Multiplier = 2

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(f.cfg.MaxAttempts)),
	)
}

// ladderFor orders the engines for a host: pinned mode or remembered tier
// first, then the remaining tiers cheapest-first.
func (f *Fetcher) ladderFor(host string) []engine.Engine {
	switch f.cfg.EngineMode {
	case "http":
		return f.pick("http")
	case "browser":
		return f.pick("rod", "rod-stealth")
	}

	if remembered := f.memory.Get(host); remembered != "" {
		ordered := f.pick(remembered)
		for _, eng := range f.engines {
			if eng.Name() != remembered {
				ordered = append(ordered, eng)
			}
		}
		return ordered
	}
	return f.engines
}

func (f *Fetcher) pick(names ...string) []engine.Engine {
	var out []engine.Engine
	for _, name := range names {
		for _, eng := range f.engines {
			if eng.Name() == name {
				out = append(out, eng)
			}
		}
	}
	return out
}

// limiter returns the polite per-host rate limiter, creating it on first use.
func (f *Fetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(f.cfg.HostRPS), 1)
		f.limiters[host] = l
	}
	return l
}

// breaker returns the per-host circuit breaker, creating it on first use.
// The breaker trips on block signals only: ordinary transport errors are
// already absorbed by the retry budget.
func (f *Fetcher) breaker(host string) *gobreaker.CircuitBreaker[*Result] {
	f.mu.Lock()
	defer f.mu.Unlock()
	cb, ok := f.breakers[host]
	if !ok {
		cb = gobreaker.NewCircuitBreaker[*Result](gobreaker.Settings{
			Name:    host,
			Timeout: f.cfg.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 2
			},
			IsSuccessful: func(err error) bool {
				if err == nil {
					return true
				}
				_, blocked := AsBlocked(err)
				return !blocked
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Info("host breaker state change",
					"host", name, "from", from.String(), "to", to.String())
			},
		})
		f.breakers[host] = cb
	}
	return cb
}

// Timeout clamps a client-requested timeout to the configured maximum.
func (f *Fetcher) Timeout(requested time.Duration) time.Duration {
	if requested <= 0 {
		return f.cfg.DefaultTimeout
	}
	if requested > f.cfg.MaxTimeout {
		return f.cfg.MaxTimeout
	}
	return requested
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}
