package client_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unihub/unihub/client"
	"github.com/unihub/unihub/storage"
)

func newJar(t *testing.T, store *storage.DeviceStore, site string) *client.PersistentJar {
	t.Helper()
	jar, err := client.NewPersistentJar(context.Background(), store, storage.KeySessionCookies, site)
	require.NoError(t, err)
	return jar
}

func TestPersistentJar_SessionSurvivesNewClient(t *testing.T) {
	b := newFakeBackend(t)
	b.requireCookie = true
	store := storage.New(storage.NewMemoryBackend())

	first := newClient(t, b, &scriptedTokens{}, client.WithCookieJar(newJar(t, store, b.baseURL())))
	_, err := first.Do(context.Background(), &client.Request{Method: http.MethodPost, Path: "/session", NoAuth: true})
	require.NoError(t, err)

	saved, ok := store.Get(context.Background(), storage.KeySessionCookies)
	require.True(t, ok)
	assert.Contains(t, saved, "s3ss10n")

	tokens := &scriptedTokens{current: "T1"}
	second := newClient(t, b, tokens, client.WithCookieJar(newJar(t, store, b.baseURL())))
	var item map[string]string
	require.NoError(t, second.Get(context.Background(), "/items/7", &item))
	assert.Equal(t, "Bearer T2", item["auth"])
	assert.Equal(t, int32(1), b.refreshCalls.Load())
}

func TestPersistentJar_Forget(t *testing.T) {
	b := newFakeBackend(t)
	b.requireCookie = true
	store := storage.New(storage.NewMemoryBackend())
	jar := newJar(t, store, b.baseURL())

	c := newClient(t, b, &scriptedTokens{current: "T1"}, client.WithCookieJar(jar))
	_, err := c.Do(context.Background(), &client.Request{Method: http.MethodPost, Path: "/session", NoAuth: true})
	require.NoError(t, err)

	jar.Forget(context.Background())
	_, ok := store.Get(context.Background(), storage.KeySessionCookies)
	assert.False(t, ok)

	err = c.Get(context.Background(), "/items/1", nil)
	assert.ErrorIs(t, err, client.ErrRefreshFailed)
}

func TestPersistentJar_IgnoresUnreadableState(t *testing.T) {
	store := storage.New(storage.NewMemoryBackend())
	store.Set(context.Background(), storage.KeySessionCookies, "{not json")

	jar := newJar(t, store, "https://api.example.com")
	u, _ := http.NewRequest(http.MethodGet, "https://api.example.com/", nil)
	assert.Empty(t, jar.Cookies(u.URL))
}

func TestPersistentJar_Validation(t *testing.T) {
	_, err := client.NewPersistentJar(context.Background(), nil, storage.KeySessionCookies, "https://api.example.com")
	assert.Error(t, err)

	_, err = client.New("https://api.example.com", client.WithCookieJar(nil))
	assert.Error(t, err)
}
