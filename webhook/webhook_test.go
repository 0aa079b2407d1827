package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cenkalti/backoff/v5"
)

func TestDeliver_SignsPayload(t *testing.T) {
	const secret = "test-secret"
	var gotSig string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Trawl-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	event := NewEvent(EventSelectorsDegraded, "flipkart", map[string]any{"yield": 0.25})
	if err := Deliver(context.Background(), srv.URL, secret, event); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSig != want {
		t.Errorf("signature = %q, want %q", gotSig, want)
	}

	var decoded Event
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	if decoded.Type != EventSelectorsDegraded || decoded.Marketplace != "flipkart" {
		t.Errorf("decoded event = %+v", decoded)
	}
	if decoded.Timestamp == 0 {
		t.Error("event timestamp not stamped")
	}
}

func TestDeliver_NoSignatureWithoutSecret(t *testing.T) {
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Trawl-Signature")
	}))
	defer srv.Close()

	event := NewEvent(EventSelectorsRecovered, "flipkart", nil)
	if err := Deliver(context.Background(), srv.URL, "", event); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if gotSig != "" {
		t.Errorf("unexpected signature header: %q", gotSig)
	}
}

func TestDeliver_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := Deliver(context.Background(), srv.URL, "", NewEvent(EventLayoutDrifted, "flipkart", nil))
	if err == nil {
		t.Fatal("expected an error for a 500 response")
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		t.Error("5xx must stay retryable")
	}
}

func TestDeliver_ClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := Deliver(context.Background(), srv.URL, "", NewEvent(EventLayoutDrifted, "flipkart", nil))
	if err == nil {
		t.Fatal("expected an error for a 400 response")
	}
	var perm *backoff.PermanentError
	if !errors.As(err, &perm) {
		t.Errorf("4xx must be permanent, got %T: %v", err, err)
	}
}
