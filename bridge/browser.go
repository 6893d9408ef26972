package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
)

// DefaultGlobal is the JavaScript expression that resolves the host's WebApp binding.
const DefaultGlobal = "(window.Telegram && window.Telegram.WebApp)"

const evalTimeout = 5 * time.Second

// BrowserProbe loads the mini-app page in a Chrome tab and looks for the host
// binding there. The browser starts on the first lookup and is reused after.
type BrowserProbe struct {
	URL      string
	Global   string
	Headless bool

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewBrowserProbe(pageURL string, headless bool) *BrowserProbe {
	return &BrowserProbe{URL: pageURL, Global: DefaultGlobal, Headless: headless}
}

func (p *BrowserProbe) Lookup() (Handle, bool) {
	ctx, err := p.page()
	if err != nil {
		log.Warn().Err(err).Str("url", p.URL).Msg("Failed to open mini-app page")
		return nil, false
	}

	var present bool
	if err := evaluate(ctx, "!!"+p.Global, &present); err != nil {
		log.Debug().Err(err).Msg("Host binding lookup failed")
		return nil, false
	}
	if !present {
		return nil, false
	}
	return &browserHandle{ctx: ctx, global: p.Global}, true
}

// Close shuts the browser down.
func (p *BrowserProbe) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.ctx, p.cancel = nil, nil
	}
}

func (p *BrowserProbe) page() (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx != nil {
		return p.ctx, nil
	}

	ctx, cancel, err := createChromeContext(p.Headless)
	if err != nil {
		return nil, err
	}
	navCtx, navCancel := context.WithTimeout(ctx, 30*time.Second)
	defer navCancel()
	if err := chromedp.Run(navCtx, chromedp.Navigate(p.URL)); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to navigate to %s: %w", p.URL, err)
	}
	p.ctx, p.cancel = ctx, cancel
	return ctx, nil
}

func createChromeContext(headless bool) (context.Context, context.CancelFunc, error) {
	var execPath string
	if path, err := exec.LookPath("google-chrome"); err == nil {
		execPath = path
	} else if path, err := exec.LookPath("chromium"); err == nil {
		execPath = path
	} else if path, err := exec.LookPath("chrome"); err == nil {
		execPath = path
	} else {
		return nil, nil, fmt.Errorf("no Chrome or Chromium executable found in PATH")
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.ExecPath(execPath))
	if !headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	allocatorCtx, cancelAllocator := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancelContext := chromedp.NewContext(allocatorCtx, chromedp.WithLogf(log.Debug().Msgf))
	return ctx, func() {
		cancelContext()
		cancelAllocator()
	}, nil
}

func evaluate(ctx context.Context, expr string, res any) error {
	evalCtx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()
	return chromedp.Run(evalCtx, chromedp.Evaluate(expr, res))
}

// browserHandle drives the WebApp binding inside the page.
type browserHandle struct {
	ctx    context.Context
	global string
}

func (h *browserHandle) InitData() string {
	var raw string
	if err := evaluate(h.ctx, "("+h.global+".initData || '')", &raw); err != nil {
		log.Debug().Err(err).Msg("Failed to read init data from page")
		return ""
	}
	return raw
}

func (h *browserHandle) Ready(done func()) error {
	var ok bool
	if err := evaluate(h.ctx, "("+h.global+".ready(), true)", &ok); err != nil {
		return fmt.Errorf("ready call failed: %w", err)
	}
	done()
	return nil
}

func (h *browserHandle) Close() error {
	var ok bool
	return evaluate(h.ctx, "("+h.global+".close(), true)", &ok)
}

func (h *browserHandle) OpenLink(link string) error {
	quoted, err := json.Marshal(link)
	if err != nil {
		return err
	}
	var ok bool
	return evaluate(h.ctx, "("+h.global+".openLink("+string(quoted)+"), true)", &ok)
}
