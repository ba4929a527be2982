// Package browser provides browser automation using CDP.
package browser

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
)

// DefaultUserAgent is sent when no user agent is configured. Chat sites tend
// to gate automation-looking clients, so it mimics a desktop Chrome.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config holds browser configuration.
type Config struct {
	ControlURL string // CDP endpoint, e.g., http://localhost:9222; empty launches a local Chrome
	Headless   bool
	UserAgent  string
	Timeout    time.Duration // per-operation timeout
}

// Browser manages a browser automation session.
type Browser struct {
	ctx       context.Context
	cancelFns []context.CancelFunc
	cfg       Config
	connected bool
}

// New creates a new browser instance.
func New(cfg Config) *Browser {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Browser{cfg: cfg}
}

// Start connects to a remote browser or launches a local one.
func (b *Browser) Start(ctx context.Context) error {
	var allocCtx context.Context
	var cancel context.CancelFunc

	if b.cfg.ControlURL != "" {
		allocCtx, cancel = chromedp.NewRemoteAllocator(ctx, b.cfg.ControlURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", b.cfg.Headless),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.NoSandbox,
			chromedp.UserAgent(b.cfg.UserAgent),
			chromedp.WindowSize(1920, 1080),
		)
		allocCtx, cancel = chromedp.NewExecAllocator(ctx, opts...)
	}
	b.cancelFns = append(b.cancelFns, cancel)

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	b.cancelFns = append(b.cancelFns, taskCancel)
	b.ctx = taskCtx

	// Test connection
	if err := chromedp.Run(taskCtx, chromedp.Navigate("about:blank")); err != nil {
		b.Close()
		return err
	}

	b.connected = true
	return nil
}

// Close closes the browser connection.
func (b *Browser) Close() {
	for i := len(b.cancelFns) - 1; i >= 0; i-- {
		b.cancelFns[i]()
	}
	b.cancelFns = nil
	b.connected = false
}

// IsConnected returns whether the browser is connected.
func (b *Browser) IsConnected() bool {
	return b.connected
}

// run executes chromedp actions against the session with the configured
// per-operation timeout, honoring cancellation from the caller context.
func (b *Browser) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(b.ctx, b.cfg.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(runCtx, actions...) }()

	select {
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Navigate navigates to a URL.
func (b *Browser) Navigate(ctx context.Context, url string) error {
	return b.run(ctx, chromedp.Navigate(url))
}

// SendKeys types text into an element.
func (b *Browser) SendKeys(ctx context.Context, selector, text string, xpath bool) error {
	return b.run(ctx, chromedp.SendKeys(selector, text, queryOption(xpath)))
}

// Evaluate evaluates JavaScript in the page. out may be nil to discard the
// result, otherwise it must be a pointer.
func (b *Browser) Evaluate(ctx context.Context, js string, out interface{}) error {
	return b.run(ctx, chromedp.Evaluate(js, out))
}

func queryOption(xpath bool) chromedp.QueryOption {
	if xpath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}
