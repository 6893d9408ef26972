package bridge_test

import (
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unihub/unihub/bridge"
)

const miniAppPage = `<!doctype html>
<html><body><script>
window.readyCalled = false;
window.Telegram = { WebApp: {
  initData: "query_id=Q1&hash=abc",
  ready: function () { window.readyCalled = true; },
  close: function () { window.closedByHost = true; },
  openLink: function (u) { window.lastLink = u; }
} };
</script></body></html>`

func requireChrome(t *testing.T) {
	t.Helper()
	for _, name := range []string{"google-chrome", "chromium", "chrome"} {
		if _, err := exec.LookPath(name); err == nil {
			return
		}
	}
	t.Skip("Chrome or Chromium is not installed")
}

func TestBrowserProbe_FindsWebApp(t *testing.T) {
	requireChrome(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(miniAppPage))
	}))
	defer server.Close()

	probe := bridge.NewBrowserProbe(server.URL, true)
	defer probe.Close()

	h, ok := probe.Lookup()
	require.True(t, ok)
	assert.Equal(t, "query_id=Q1&hash=abc", h.InitData())
	assert.ElementsMatch(t, []string{"ready", "close", "open_link"}, bridge.Capabilities(h))

	cache := bridge.NewCache(probe)
	require.NotNil(t, cache.Get())
	called := make(chan struct{}, 1)
	cache.OnReady(func() { called <- struct{}{} })
	<-called
}

func TestBrowserProbe_NoWebApp(t *testing.T) {
	requireChrome(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>plain page</body></html>"))
	}))
	defer server.Close()

	probe := bridge.NewBrowserProbe(server.URL, true)
	defer probe.Close()

	_, ok := probe.Lookup()
	assert.False(t, ok)
}
