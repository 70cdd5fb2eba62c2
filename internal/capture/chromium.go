// Package capture screenshots the rendered digest with headless Chromium.
package capture

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/chromedp"
)

// Default capture parameters. The width matches the digest's 720px card
// plus padding.
const (
	DefaultWidth      = 800
	DefaultHeight     = 1200
	DefaultTimeoutSec = 30

	// ReadySelector is the element the digest marks as fully rendered.
	ReadySelector = `[data-ready="true"]`
)

// Options defines parameters for a Chromium-based screenshot capture.
type Options struct {
	// URL to capture, e.g. "http://127.0.0.1:8080/preview".
	URL string

	// OutputPath is where the PNG screenshot will be written.
	OutputPath string

	// Width and Height are the viewport dimensions in pixels. If zero,
	// DefaultWidth / DefaultHeight are used.
	Width  int
	Height int

	// Timeout bounds the entire capture operation.
	Timeout time.Duration
}

func (o *Options) normalize() error {
	if o.URL == "" {
		return fmt.Errorf("capture: URL is required")
	}
	if o.OutputPath == "" {
		return fmt.Errorf("capture: OutputPath is required")
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = time.Duration(DefaultTimeoutSec) * time.Second
	}
	return nil
}

// tasks is the chromedp action list: size the viewport, load the page,
// wait for the ready marker, then take a full-page screenshot into png.
func (o Options) tasks(png *[]byte) chromedp.Tasks {
	return chromedp.Tasks{
		chromedp.EmulateViewport(int64(o.Width), int64(o.Height)),
		chromedp.Navigate(o.URL),
		chromedp.WaitVisible(ReadySelector, chromedp.ByQuery),
		// Small extra delay to allow final paints.
		chromedp.Sleep(300 * time.Millisecond),
		chromedp.FullScreenshot(png, 100),
	}
}

// PreviewPNG navigates to opts.URL, waits until the digest's root element
// is visible, and writes a full-page PNG to opts.OutputPath.
func PreviewPNG(parentCtx context.Context, opts Options) error {
	if err := opts.normalize(); err != nil {
		return err
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	if err := chromedp.Run(ctx, opts.tasks(&png)); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if err := os.WriteFile(opts.OutputPath, png, 0o644); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}
	return nil
}
