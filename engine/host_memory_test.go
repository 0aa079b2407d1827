package engine

import (
	"context"
	"testing"
	"time"
)

func TestHostMemory(t *testing.T) {
	m := NewHostMemory(time.Hour)

	if got := m.Get("market.example"); got != "" {
		t.Errorf("unknown host should return empty, got %q", got)
	}

	m.Set("market.example", "rod-stealth")
	if got := m.Get("market.example"); got != "rod-stealth" {
		t.Errorf("remembered engine = %q", got)
	}

	m.Forget("market.example")
	if got := m.Get("market.example"); got != "" {
		t.Errorf("forgotten host should return empty, got %q", got)
	}
}

func TestHostMemory_Expiry(t *testing.T) {
	m := NewHostMemory(5 * time.Millisecond)
	m.Set("market.example", "rod")

	time.Sleep(15 * time.Millisecond)
	if got := m.Get("market.example"); got != "" {
		t.Errorf("expired entry should return empty, got %q", got)
	}
}

func TestHostMemory_SetPrunesExpired(t *testing.T) {
	m := NewHostMemory(5 * time.Millisecond)
	m.Set("old.example", "http")

	time.Sleep(15 * time.Millisecond)
	m.Set("new.example", "rod")

	m.mu.Lock()
	_, oldPresent := m.store["old.example"]
	m.mu.Unlock()
	if oldPresent {
		t.Error("expired entries should be pruned on Set")
	}
}

func TestRodEngine_Naming(t *testing.T) {
	plain := NewRodEngine(nil, false)
	stealth := NewRodEngine(nil, true)

	if plain.Name() != "rod" {
		t.Errorf("plain name = %q", plain.Name())
	}
	if stealth.Name() != "rod-stealth" {
		t.Errorf("stealth name = %q", stealth.Name())
	}
}

func TestRodEngine_StealthFlag(t *testing.T) {
	var seen *Request
	fetch := func(_ context.Context, req *Request) (*Result, error) {
		seen = req
		return &Result{HTML: "<html></html>", StatusCode: 200}, nil
	}

	eng := NewRodEngine(fetch, true)
	original := &Request{URL: "https://market.example"}

	res, err := eng.Fetch(context.Background(), original)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !seen.Stealth {
		t.Error("stealth tier must force the stealth flag")
	}
	if original.Stealth {
		t.Error("caller's request must not be mutated")
	}
	if res.EngineName != "rod-stealth" {
		t.Errorf("engine name = %q", res.EngineName)
	}
}
