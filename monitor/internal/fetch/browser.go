package fetch

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// Browser wraps a lazily launched headless Chrome for rendered fetches.
// The browser is shared across sources; each fetch gets its own page.
type Browser struct {
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewBrowser creates a Browser. Chrome launches on the first rendered fetch.
func NewBrowser() *Browser {
	return &Browser{}
}

// HTML navigates to url in a fresh stealth page, waits for the load event,
// and returns the serialized DOM.
func (b *Browser) HTML(ctx context.Context, url string) (string, error) {
	br, err := b.get()
	if err != nil {
		return "", err
	}

	page, err := stealth.Page(br)
	if err != nil {
		return "", fmt.Errorf("browser: new page: %w", err)
	}
	defer page.Close()
	page = page.Context(ctx)

	if err := page.Navigate(url); err != nil {
		return "", fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("browser: wait load %s: %w", url, err)
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("browser: serialize %s: %w", url, err)
	}
	return html, nil
}

// Close shuts down Chrome. Subsequent rendered fetches fail.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.browser != nil {
		b.browser.Close()
		b.browser = nil
	}
	if b.lnch != nil {
		b.lnch.Cleanup()
		b.lnch = nil
	}
	return nil
}

func (b *Browser) get() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("browser: closed")
	}
	if b.browser != nil {
		return b.browser, nil
	}

	l := launcher.New().
		Headless(true).
		Set("disable-blink-features", "AutomationControlled")
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("browser: launch: %w", err)
	}

	br := rod.New().ControlURL(u)
	if err := br.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	b.lnch = l
	b.browser = br
	return br, nil
}
