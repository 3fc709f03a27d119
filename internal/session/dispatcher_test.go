package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

func authenticatedManager(t *testing.T, refresh *refresherStub) (*Manager, *Vault) {
	t.Helper()
	api := &apiStub{
		login: func(ctx context.Context, email, password string) (*Identity, Tokens, error) {
			return &Identity{ID: uuid.New(), Email: email}, Tokens{Access: "T1", Refresh: "R1"}, nil
		},
	}
	manager, vault := newTestManager(api, refresh)
	if err := manager.SignIn(context.Background(), "a@b.com", "x"); err != nil {
		t.Fatalf("SignIn returned error: %v", err)
	}
	return manager, vault
}

func TestDispatcherAttachesBearerCredential(t *testing.T) {
	manager, _ := authenticatedManager(t, &refresherStub{})

	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dispatcher := NewDispatcher(NewDirectSource(manager), server.Client())

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL+"/api/v1/spots", nil)
	resp, err := dispatcher.Do(req)
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	resp.Body.Close()

	if gotAuth != "Bearer T1" {
		t.Fatalf("expected bearer credential on the wire, got %q", gotAuth)
	}
}

func TestDispatcherServer401IsTerminal(t *testing.T) {
	manager, vault := authenticatedManager(t, &refresherStub{})

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	dispatcher := NewDispatcher(NewDirectSource(manager), server.Client())

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL+"/api/v1/spots", nil)
	_, err := dispatcher.Do(req)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	if got := hits.Load(); got != 1 {
		t.Fatalf("a 401 must never be retried; server saw %d requests", got)
	}
	if manager.State() != StateAnonymous {
		t.Fatalf("expected session torn down before returning, got %s", manager.State())
	}
	if _, ok := vault.Get(); ok {
		t.Fatal("expected vault cleared before returning")
	}
}

func TestDispatcherRefreshFailureSkipsNetworkCall(t *testing.T) {
	refresh := &refresherStub{
		refresh: func(ctx context.Context, refreshToken string) (Tokens, error) {
			return Tokens{}, fmt.Errorf("%w: identity service returned status 401", ErrRefreshFailed)
		},
	}
	manager, vault := authenticatedManager(t, refresh)
	vault.now = func() time.Time { return time.Now().Add(16 * time.Minute) }

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	dispatcher := NewDispatcher(NewDirectSource(manager), server.Client())

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL+"/api/v1/spots", nil)
	_, err := dispatcher.Do(req)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("expected the refresh failure to be forwarded, got %v", err)
	}

	if got := hits.Load(); got != 0 {
		t.Fatalf("request must not be dispatched after a failed refresh; server saw %d", got)
	}
	if manager.State() != StateAnonymous {
		t.Fatalf("expected forced sign-out, got %s", manager.State())
	}
}

func TestAccessorSourceFunnelsThroughSameSession(t *testing.T) {
	manager, _ := authenticatedManager(t, &refresherStub{})

	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var fetches atomic.Int32
	source := NewAccessorSource(func(ctx context.Context) (*Manager, error) {
		fetches.Add(1)
		return manager, nil
	})
	dispatcher := NewDispatcher(source, server.Client())

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL+"/api/v1/bookings", nil)
	resp, err := dispatcher.Do(req)
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	resp.Body.Close()

	if fetches.Load() != 1 {
		t.Fatalf("expected the accessor to be consulted, got %d fetches", fetches.Load())
	}
	if gotAuth != "Bearer T1" {
		t.Fatalf("expected the same credential as the direct path, got %q", gotAuth)
	}
}

func TestAccessorFailureIsUnauthorized(t *testing.T) {
	source := NewAccessorSource(func(ctx context.Context) (*Manager, error) {
		return nil, errors.New("no session in this context")
	})
	dispatcher := NewDispatcher(source, nil)

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://resource.invalid/api", nil)
	if _, err := dispatcher.Do(req); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
