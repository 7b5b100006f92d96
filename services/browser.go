package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"

	"autostats/config"
)

const (
	statsTabSelector   = `.Chain-Tab[title="Stats"]`
	statsTableSelector = `.Chain-content table`
	statsCountScript   = `document.querySelectorAll('.Chain-content td.Stats-count').length`
)

// BrowserLauncher starts a browser session. One session is shared by every
// network scraped in a run.
type BrowserLauncher interface {
	Launch(ctx context.Context) (Browser, error)
}

// Browser hands out fresh pages; pages are never reused across networks.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page drives a single dashboard tab.
type Page interface {
	// Load navigates and waits for the network to go idle.
	Load(ctx context.Context, url string) error
	// OpenStatsTab selects the Stats tab and waits for its table.
	OpenStatsTab(ctx context.Context) error
	// Settle waits for late-rendering rows. It never fails on its own bound.
	Settle(ctx context.Context) error
	HTML(ctx context.Context) (string, error)
	Close() error
}

// ChromeLauncher runs headless Chrome through chromedp.
type ChromeLauncher struct {
	cfg config.BrowserConfig
}

func NewChromeLauncher(cfg config.BrowserConfig) *ChromeLauncher {
	return &ChromeLauncher{cfg: cfg}
}

func (l *ChromeLauncher) Launch(ctx context.Context) (Browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.cfg.Headless),
	)
	if l.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox, chromedp.Flag("disable-setuid-sandbox", true))
	}
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}

	// the browser outlives the launch call; Close tears it down
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	stop := context.AfterFunc(ctx, browserCancel)
	defer stop()

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	log.Debug().Str("exec_path", l.cfg.ExecPath).Bool("headless", l.cfg.Headless).Msg("Browser launched")

	return &chromeBrowser{
		cfg:           l.cfg,
		ctx:           browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

type chromeBrowser struct {
	cfg           config.BrowserConfig
	ctx           context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	closeOnce     sync.Once
	closeErr      error
}

func (b *chromeBrowser) NewPage(ctx context.Context) (Page, error) {
	if err := b.ctx.Err(); err != nil {
		return nil, fmt.Errorf("browser already closed: %w", err)
	}
	tabCtx, cancel := chromedp.NewContext(b.ctx)
	// open the tab on the unbounded context so later timeouts do not close it
	stop := context.AfterFunc(ctx, cancel)
	err := chromedp.Run(tabCtx)
	stop()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	return &chromePage{
		cfg:    b.cfg,
		ctx:    tabCtx,
		cancel: cancel,
	}, nil
}

func (b *chromeBrowser) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = chromedp.Cancel(b.ctx)
		b.browserCancel()
		b.allocCancel()
		log.Debug().Msg("Browser closed")
	})
	return b.closeErr
}

type chromePage struct {
	cfg    config.BrowserConfig
	ctx    context.Context
	cancel context.CancelFunc
}

// bounded derives a chromedp context from the tab that also stops when the
// caller's context does.
func (p *chromePage) bounded(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(p.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (p *chromePage) timeout() time.Duration {
	if p.cfg.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(p.cfg.TimeoutSeconds) * time.Second
}

func (p *chromePage) Load(ctx context.Context, url string) error {
	runCtx, cancel := p.bounded(ctx, p.timeout())
	defer cancel()

	idle := newNetworkIdle()
	chromedp.ListenTarget(p.ctx, idle.observe)

	if err := chromedp.Run(runCtx, network.Enable(), chromedp.Navigate(url)); err != nil {
		return navigationError(runCtx, url, err)
	}

	window := time.Duration(p.cfg.NetworkIdleMillis) * time.Millisecond
	if window <= 0 {
		window = 500 * time.Millisecond
	}
	if err := idle.wait(runCtx, window); err != nil {
		return navigationError(runCtx, url, err)
	}
	return nil
}

func navigationError(ctx context.Context, url string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s did not settle: %v", ErrNavigationTimeout, url, err)
	}
	return fmt.Errorf("failed to load %s: %w", url, err)
}

func (p *chromePage) OpenStatsTab(ctx context.Context) error {
	runCtx, cancel := p.bounded(ctx, p.timeout())
	defer cancel()

	err := chromedp.Run(runCtx,
		chromedp.Click(statsTabSelector, chromedp.ByQuery),
		// present in the DOM is enough; the table may still be laid out hidden
		chromedp.WaitReady(statsTableSelector, chromedp.ByQuery),
	)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: waiting for %s: %v", ErrSelectorTimeout, statsTableSelector, err)
		}
		return fmt.Errorf("failed to open stats tab: %w", err)
	}
	return nil
}

func (p *chromePage) Settle(ctx context.Context) error {
	interval := time.Duration(p.cfg.SettleMillis) * time.Millisecond
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	bound := time.Duration(p.cfg.SettleMaxMillis) * time.Millisecond
	if bound < interval {
		bound = interval
	}

	runCtx, cancel := p.bounded(ctx, bound)
	defer cancel()

	return settle(runCtx, interval, func(ctx context.Context) (int, error) {
		var count int
		err := chromedp.Run(ctx, chromedp.Evaluate(statsCountScript, &count))
		return count, err
	})
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	runCtx, cancel := p.bounded(ctx, p.timeout())
	defer cancel()

	var body string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &body, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page html: %w", err)
	}
	return body, nil
}

func (p *chromePage) Close() error {
	p.cancel()
	return nil
}

// settle polls count every interval until two consecutive non-zero readings
// agree. Running out of time is not an error: extraction tolerates partial data.
func settle(ctx context.Context, interval time.Duration, count func(context.Context) (int, error)) error {
	prev := -1
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := count(ctx)
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("failed to poll stats rows: %w", err)
		}
		if err == nil && n > 0 && n == prev {
			return nil
		}
		prev = n

		select {
		case <-ctx.Done():
			log.Debug().Int("rows", prev).Msg("Settle bound reached, continuing with current page")
			return nil
		case <-ticker.C:
		}
	}
}

// networkIdle tracks in-flight requests the way networkidle0 does.
type networkIdle struct {
	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
	lastSeen time.Time
}

func newNetworkIdle() *networkIdle {
	return &networkIdle{
		inflight: make(map[network.RequestID]struct{}),
		lastSeen: time.Now(),
	}
}

func (n *networkIdle) observe(ev interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		n.inflight[e.RequestID] = struct{}{}
	case *network.EventLoadingFinished:
		delete(n.inflight, e.RequestID)
	case *network.EventLoadingFailed:
		delete(n.inflight, e.RequestID)
	default:
		return
	}
	n.lastSeen = time.Now()
}

func (n *networkIdle) idleFor() (time.Duration, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return time.Since(n.lastSeen), len(n.inflight) == 0
}

func (n *networkIdle) wait(ctx context.Context, window time.Duration) error {
	ticker := time.NewTicker(window / 5)
	defer ticker.Stop()

	for {
		if quiet, idle := n.idleFor(); idle && quiet >= window {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
