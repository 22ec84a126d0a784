// Package screenshot captures evidence screenshots of suspect pages with a
// headless Chrome.
package screenshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"catchphish/internal/validation"
)

// ErrDisabled is returned when capturing is switched off.
var ErrDisabled = errors.New("screenshots are disabled")

// Capturer takes a full-page PNG of a URL.
type Capturer struct {
	enabled  bool
	execPath string
	timeout  time.Duration
	settle   time.Duration
	quality  int
	lookup   validation.Resolver
}

// Option configures a Capturer.
type Option func(*Capturer)

// WithExecPath selects the Chrome binary.
func WithExecPath(path string) Option {
	return func(c *Capturer) { c.execPath = path }
}

// WithTimeout bounds one capture, including browser start-up.
func WithTimeout(d time.Duration) Option {
	return func(c *Capturer) { c.timeout = d }
}

// New creates a capturer. A disabled capturer never starts Chrome.
func New(enabled bool, opts ...Option) *Capturer {
	c := &Capturer{
		enabled: enabled,
		timeout: 45 * time.Second,
		settle:  2 * time.Second,
		quality: 90,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Enabled returns true if captures will be attempted.
func (c *Capturer) Enabled() bool {
	return c.enabled
}

// Capture navigates to pageURL and returns a full-page PNG.
func (c *Capturer) Capture(ctx context.Context, pageURL string) ([]byte, error) {
	if !c.enabled {
		return nil, ErrDisabled
	}
	if err := validation.ValidateURLForFetch(pageURL, c.lookup); err != nil {
		return nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
		chromedp.Flag("headless", true),
		chromedp.WindowSize(1366, 768),
	)
	if c.execPath != "" {
		opts = append(opts, chromedp.ExecPath(c.execPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	browserCtx, cancel := context.WithTimeout(browserCtx, c.timeout)
	defer cancel()

	var buf []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(pageURL),
		chromedp.Sleep(c.settle),
		chromedp.FullScreenshot(&buf, c.quality),
	)
	if err != nil {
		return nil, fmt.Errorf("capturing %s: %w", pageURL, err)
	}
	return buf, nil
}
