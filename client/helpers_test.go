package client_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"github.com/unihub/unihub/auth"
	"github.com/unihub/unihub/client"
	"github.com/unihub/unihub/storage"
)

// fakeBackend is a tiny API with one protected resource family and a refresh endpoint.
type fakeBackend struct {
	server *httptest.Server

	mu         sync.Mutex
	validToken string
	seenAuth   []string

	// refresh behaviour
	newToken       string
	refreshStatus  int
	refreshBody    string
	requireCookie  bool
	waitFor401s    int32
	gate           chan struct{}
	refreshCalls   atomic.Int32
	unauthorized   atomic.Int32
	protectedCalls atomic.Int32
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{newToken: "T2"}

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/refresh", b.refresh).Methods(http.MethodPost)
	api.HandleFunc("/session", b.session).Methods(http.MethodPost)
	api.HandleFunc("/public", b.public).Methods(http.MethodGet)
	api.HandleFunc("/fail", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	api.HandleFunc("/always401", func(w http.ResponseWriter, r *http.Request) {
		b.protectedCalls.Add(1)
		b.record(r)
		w.WriteHeader(http.StatusUnauthorized)
	})
	api.HandleFunc("/echo", b.protected(b.echo)).Methods(http.MethodPost)
	api.HandleFunc("/items/{id}", b.protected(b.item)).Methods(http.MethodGet)

	b.server = httptest.NewServer(r)
	t.Cleanup(b.server.Close)
	return b
}

func (b *fakeBackend) baseURL() string { return b.server.URL + "/api" }

func (b *fakeBackend) setValid(token string) {
	b.mu.Lock()
	b.validToken = token
	b.mu.Unlock()
}

func (b *fakeBackend) record(r *http.Request) {
	b.mu.Lock()
	b.seenAuth = append(b.seenAuth, r.Header.Get("Authorization"))
	b.mu.Unlock()
}

func (b *fakeBackend) authHeaders() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.seenAuth...)
}

func (b *fakeBackend) protected(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.protectedCalls.Add(1)
		b.record(r)
		b.mu.Lock()
		valid := b.validToken
		b.mu.Unlock()
		if valid == "" || r.Header.Get("Authorization") != "Bearer "+valid {
			b.unauthorized.Add(1)
			http.Error(w, `{"detail":"token expired"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (b *fakeBackend) refresh(w http.ResponseWriter, r *http.Request) {
	b.refreshCalls.Add(1)

	// Hold the refresh until every concurrent caller has seen its 401.
	deadline := time.Now().Add(2 * time.Second)
	for b.unauthorized.Load() < b.waitFor401s && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if b.gate != nil {
		<-b.gate
	}

	if b.requireCookie {
		if _, err := r.Cookie("sid"); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}
	if b.refreshStatus != 0 {
		w.WriteHeader(b.refreshStatus)
		return
	}
	if b.refreshBody != "" {
		_, _ = io.WriteString(w, b.refreshBody)
		return
	}
	b.setValid(b.newToken)
	_ = json.NewEncoder(w).Encode(map[string]string{"access_token": b.newToken})
}

func (b *fakeBackend) session(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: "sid", Value: "s3ss10n", Path: "/"})
	w.WriteHeader(http.StatusNoContent)
}

func (b *fakeBackend) public(w http.ResponseWriter, r *http.Request) {
	b.record(r)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (b *fakeBackend) item(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(map[string]string{
		"id":   mux.Vars(r)["id"],
		"auth": r.Header.Get("Authorization"),
	})
}

func (b *fakeBackend) echo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.Copy(w, r.Body)
}

// newTokens returns a token service over a fresh in-memory device store.
func newTokens(t *testing.T, initial string) (*auth.Service, *storage.DeviceStore) {
	t.Helper()
	store := storage.New(storage.NewMemoryBackend())
	if initial != "" {
		store.Set(context.Background(), storage.KeyAccessToken, initial)
	}
	return auth.NewService(store), store
}

func newClient(t *testing.T, b *fakeBackend, tokens client.TokenSource, options ...client.Option) *client.Client {
	t.Helper()
	options = append([]client.Option{client.WithTokenSource(tokens), client.WithTimeout(5 * time.Second)}, options...)
	c, err := client.New(b.baseURL(), options...)
	require.NoError(t, err)
	return c
}
