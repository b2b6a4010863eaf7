package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"voice-command-pipeline/internal/config"
)

func newIAMServer(t *testing.T, calls *atomic.Int32, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("grant_type") != grantType {
			t.Errorf("expected apikey grant type, got %s", r.Form.Get("grant_type"))
		}
		if r.Form.Get("apikey") != "key-123" {
			t.Errorf("expected apikey 'key-123', got %s", r.Form.Get("apikey"))
		}
		if status != http.StatusOK {
			http.Error(w, `{"errorMessage":"bad key"}`, status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-abc","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewIAM_MissingKey(t *testing.T) {
	if _, err := NewIAM("  ", ""); !errors.Is(err, config.ErrConfigurationMissing) {
		t.Errorf("expected ErrConfigurationMissing, got %v", err)
	}
}

func TestIAM_TokenCachedUntilNearExpiry(t *testing.T) {
	var calls atomic.Int32
	srv := newIAMServer(t, &calls, http.StatusOK)

	a, err := NewIAM("key-123", srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Ready() {
		t.Error("expected not ready before first exchange")
	}

	tok, err := a.Token(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok != "tok-abc" {
		t.Errorf("expected token 'tok-abc', got %s", tok)
	}
	if !a.Ready() {
		t.Error("expected ready after exchange")
	}

	a.Token(context.Background())
	if calls.Load() != 1 {
		t.Errorf("expected cached token to be reused, got %d calls", calls.Load())
	}

	// jump to just inside the refresh margin
	base := time.Now()
	a.now = func() time.Time { return base.Add(3600*time.Second - 30*time.Second) }
	a.Token(context.Background())
	if calls.Load() != 2 {
		t.Errorf("expected refresh near expiry, got %d calls", calls.Load())
	}
}

func TestIAM_ErrorStatus(t *testing.T) {
	var calls atomic.Int32
	srv := newIAMServer(t, &calls, http.StatusBadRequest)

	a, _ := NewIAM("key-123", srv.URL)
	if _, err := a.Token(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
	if a.Ready() {
		t.Error("expected not ready after failed exchange")
	}
}

func TestIAM_RunBecomesReady(t *testing.T) {
	var calls atomic.Int32
	srv := newIAMServer(t, &calls, http.StatusOK)
	a, _ := NewIAM("key-123", srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	if err := WaitReady(waitCtx, a, 10*time.Millisecond); err != nil {
		t.Fatalf("expected authenticator to become ready, got %v", err)
	}
}

type flag struct{ ready atomic.Bool }

func (f *flag) Ready() bool { return f.ready.Load() }

func TestWaitReady(t *testing.T) {
	f := &flag{}
	go func() {
		time.Sleep(30 * time.Millisecond)
		f.ready.Store(true)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := WaitReady(ctx, f, 5*time.Millisecond); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestWaitReady_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := WaitReady(ctx, &flag{}, 5*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestStatic(t *testing.T) {
	if !Static("t").Ready() {
		t.Error("expected non-empty static token to be ready")
	}
	if Static("").Ready() {
		t.Error("expected empty static token to not be ready")
	}
	if _, err := Static("").Token(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
}
