package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autostats/config"
)

// hiddenStatsPage renders the Stats table on click, but with display:none.
const hiddenStatsPage = `<!doctype html>
<html><body>
<div class="Chain-Tab" title="Stats" onclick="show()">Stats</div>
<div class="Chain-content"></div>
<script>
function show() {
  document.querySelector('.Chain-content').innerHTML =
    '<table style="display:none"><tr><td class="Stats-count">42</td><td>Nodes</td></tr></table>';
}
</script>
</body></html>`

func lookupChrome(t *testing.T) string {
	t.Helper()
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no Chrome binary available")
	return ""
}

func TestChromePage_HiddenStatsTableIsReady(t *testing.T) {
	execPath := lookupChrome(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(hiddenStatsPage))
	}))
	defer srv.Close()

	cfg := config.Default().Browser
	cfg.ExecPath = execPath
	cfg.TimeoutSeconds = 10
	cfg.NetworkIdleMillis = 100

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	browser, err := NewChromeLauncher(cfg).Launch(ctx)
	require.NoError(t, err)
	defer browser.Close()

	page, err := browser.NewPage(ctx)
	require.NoError(t, err)
	defer page.Close()

	require.NoError(t, page.Load(ctx, srv.URL))
	require.NoError(t, page.OpenStatsTab(ctx))
	require.NoError(t, page.Settle(ctx))

	body, err := page.HTML(ctx)
	require.NoError(t, err)
	assert.Contains(t, body, `class="Stats-count">42</td>`)
}
