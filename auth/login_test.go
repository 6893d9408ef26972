package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unihub/unihub/auth"
	"github.com/unihub/unihub/client"
	"github.com/unihub/unihub/storage"
)

type loginServer struct {
	*httptest.Server
	logouts    atomic.Int32
	logoutAuth atomic.Value
	lastLogin  atomic.Value
}

func newLoginServer(t *testing.T) *loginServer {
	t.Helper()
	s := &loginServer{}
	r := mux.NewRouter()
	r.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var creds auth.Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.lastLogin.Store(creds)
		if creds.InitData == "" && creds.Password != "secret" {
			http.Error(w, `{"detail":"bad credentials"}`, http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc", Path: "/"})
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "T1"})
	}).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		s.logouts.Add(1)
		s.logoutAuth.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPost)
	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

func newService(t *testing.T, baseURL string) (*auth.Service, *client.Client, *storage.DeviceStore) {
	t.Helper()
	store := storage.New(storage.NewMemoryBackend())
	service := auth.NewService(store)
	c, err := client.New(baseURL, client.WithTokenSource(service))
	require.NoError(t, err)
	return service, c, store
}

func TestLogin_WithPassword(t *testing.T) {
	srv := newLoginServer(t)
	service, c, store := newService(t, srv.URL)

	err := service.Login(context.Background(), c, auth.Credentials{Username: "ada", Password: "secret"})
	require.NoError(t, err)

	assert.Equal(t, "T1", service.Token(context.Background()))
	stored, ok := store.Get(context.Background(), storage.KeyAccessToken)
	require.True(t, ok)
	assert.Equal(t, "T1", stored)
	assert.Equal(t, "ada", srv.lastLogin.Load().(auth.Credentials).Username)
}

func TestLogin_WithInitData(t *testing.T) {
	srv := newLoginServer(t)
	service, c, _ := newService(t, srv.URL)

	err := service.Login(context.Background(), c, auth.Credentials{InitData: "query_id=1&hash=ff"})
	require.NoError(t, err)

	sent := srv.lastLogin.Load().(auth.Credentials)
	assert.Equal(t, "query_id=1&hash=ff", sent.InitData)
	assert.Empty(t, sent.Username)
}

func TestLogin_RejectedDoesNotStoreToken(t *testing.T) {
	srv := newLoginServer(t)
	service, c, _ := newService(t, srv.URL)

	err := service.Login(context.Background(), c, auth.Credentials{Username: "ada", Password: "wrong"})
	require.Error(t, err)
	assert.True(t, client.IsUnauthorized(err))
	assert.Empty(t, service.Token(context.Background()))
}

func TestLogin_MissingCredentials(t *testing.T) {
	service, c, _ := newService(t, "https://api.example.com")
	err := service.Login(context.Background(), c, auth.Credentials{Username: "ada"})
	assert.ErrorIs(t, err, auth.ErrMissingCredentials)
}

func TestLogout_ClearsTokenAndNotifiesBackend(t *testing.T) {
	srv := newLoginServer(t)
	service, c, store := newService(t, srv.URL)
	service.Save(context.Background(), "T1")

	require.NoError(t, service.Logout(context.Background(), c))

	assert.Equal(t, int32(1), srv.logouts.Load())
	assert.Equal(t, "Bearer T1", srv.logoutAuth.Load())
	assert.Empty(t, service.Token(context.Background()))
	_, ok := store.Get(context.Background(), storage.KeyAccessToken)
	assert.False(t, ok)
}

func TestLogout_ClearsEvenWhenBackendIsDown(t *testing.T) {
	srv := newLoginServer(t)
	service, c, _ := newService(t, srv.URL)
	service.Save(context.Background(), "T1")
	srv.Close()

	err := service.Logout(context.Background(), c)
	assert.Error(t, err)
	assert.Empty(t, service.Token(context.Background()))
}

func TestLogout_WithoutTokenSkipsBackend(t *testing.T) {
	srv := newLoginServer(t)
	service, c, _ := newService(t, srv.URL)

	require.NoError(t, service.Logout(context.Background(), c))
	assert.Equal(t, int32(0), srv.logouts.Load())
}
