// File: internal/browser/session.go

// Package browser wraps a single Chrome tab driven over the DevTools
// protocol. It exposes the small capability set the automation loop needs:
// navigation, screenshots, DOM search-and-click, choice selection, and
// scrolling. DOM work happens in single JS evaluations so the top-level
// document and the course content iframe can be searched uniformly.
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/coursepilot-dev/coursepilot/internal/config"
)

// contentFrameSelector matches the course player's content iframe.
const contentFrameSelector = `iframe[name="text"], iframe#text, iframe.contentIframe`

// courseMarkers are the page elements whose presence means we are inside a
// course player rather than on the course selection page.
var courseMarkers = []string{
	"#playerCourseTitle",
	".content_topBar",
	`iframe[name="text"]`,
	".playerImageContainer",
}

// Session owns one browser process and one tab for the lifetime of a run.
type Session struct {
	cfg    *config.Config
	logger *zap.Logger

	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	screenshotDir string
	screenshotSeq int

	// nestedFrames is the capability flag: when set, DOM searches also
	// descend into the content iframe if one is reachable.
	nestedFrames bool
}

// NewSession launches the browser and opens the tab. The caller must Close
// the session regardless of how the run ends.
func NewSession(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Browser.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	for _, arg := range cfg.Browser.Args {
		opts = append(opts, chromedp.Flag(strings.TrimPrefix(arg, "--"), true))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		cfg:           cfg,
		logger:        logger.Named("browser"),
		allocCancel:   allocCancel,
		tabCtx:        tabCtx,
		tabCancel:     tabCancel,
		screenshotDir: cfg.Browser.ScreenshotDir,
		nestedFrames:  cfg.Browser.NestedFrames,
	}

	width, height := cfg.Browser.Viewport["width"], cfg.Browser.Viewport["height"]
	if width <= 0 || height <= 0 {
		width, height = 1920, 1080
	}

	// The first Run starts the browser process and connects CDP.
	if err := chromedp.Run(tabCtx, chromedp.EmulateViewport(int64(width), int64(height))); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}

	if s.screenshotDir != "" {
		if err := os.MkdirAll(s.screenshotDir, 0o755); err != nil {
			s.logger.Warn("Could not create screenshot directory; screenshots will not be saved.",
				zap.String("dir", s.screenshotDir), zap.Error(err))
			s.screenshotDir = ""
		}
	}

	s.logger.Info("Browser session started.",
		zap.Bool("headless", cfg.Browser.Headless),
		zap.Int("viewport_width", width),
		zap.Int("viewport_height", height),
	)
	return s, nil
}

// Close tears down the tab and the browser process.
func (s *Session) Close() {
	s.tabCancel()
	s.allocCancel()
	s.logger.Info("Browser session closed.")
}

// run executes chromedp actions on the session tab, bounded by a timeout and
// aborted early if the caller's context is already done.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads the given URL and waits for the document body.
func (s *Session) Navigate(ctx context.Context, url string) error {
	err := s.run(ctx, s.cfg.Network.NavigationTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// WaitForLoad waits for the page to settle after an interaction: document
// ready plus a fixed post-load wait for dynamic content and iframes. Load
// timeouts are best effort, never fatal.
func (s *Session) WaitForLoad(ctx context.Context) {
	if err := s.run(ctx, s.cfg.Network.NavigationTimeout, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		s.logger.Debug("Page load wait timed out (continuing anyway).", zap.Error(err))
	}
	select {
	case <-time.After(s.cfg.Network.PostLoadWait):
	case <-ctx.Done():
	}
}

// Screenshot captures the viewport as PNG, writes it to the screenshot
// directory with a zero-padded sequence prefix, and returns the raw bytes.
// The files are diagnostic artifacts only and are never read back.
func (s *Session) Screenshot(ctx context.Context, label string) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, s.cfg.Network.NavigationTimeout, chromedp.ActionFunc(func(cctx context.Context) error {
		b, err := page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			Do(cctx)
		if err != nil {
			return err
		}
		buf = b
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}

	s.screenshotSeq++
	if s.screenshotDir != "" {
		name := fmt.Sprintf("%04d_%s.png", s.screenshotSeq, sanitizeLabel(label))
		path := filepath.Join(s.screenshotDir, name)
		if err := os.WriteFile(path, buf, 0o644); err != nil {
			s.logger.Warn("Failed to save screenshot artifact.", zap.String("path", path), zap.Error(err))
		} else if s.cfg.Browser.Debug {
			s.logger.Debug("Screenshot saved.", zap.String("path", path))
		}
	}
	return buf, nil
}

// Scroll issues a fixed-size viewport scroll.
func (s *Session) Scroll(ctx context.Context) bool {
	err := s.run(ctx, s.cfg.Network.NavigationTimeout,
		chromedp.Evaluate(`window.scrollBy(0, window.innerHeight * 0.8); true`, nil),
	)
	if err != nil {
		s.logger.Debug("Scroll failed.", zap.Error(err))
		return false
	}
	return true
}

// InCourse reports whether any of the course player markers is present on the
// top-level page. Errors degrade to false: an unreadable page is treated as
// the selection page.
func (s *Session) InCourse(ctx context.Context) bool {
	var found bool
	script := buildMarkerScript(courseMarkers)
	if err := s.run(ctx, s.cfg.Network.NavigationTimeout, chromedp.Evaluate(script, &found)); err != nil {
		s.logger.Debug("Course marker check failed.", zap.Error(err))
		return false
	}
	return found
}

// evaluate runs a JS expression on the tab and decodes the result into out.
func (s *Session) evaluate(ctx context.Context, script string, out interface{}) error {
	return s.run(ctx, s.cfg.Network.NavigationTimeout, chromedp.Evaluate(script, out))
}

// buildMarkerScript returns an expression that tests marker presence.
func buildMarkerScript(markers []string) string {
	quoted := make([]string, len(markers))
	for i, m := range markers {
		quoted[i] = fmt.Sprintf("%q", m)
	}
	return fmt.Sprintf(`[%s].some((sel) => document.querySelector(sel) !== null)`, strings.Join(quoted, ", "))
}

// sanitizeLabel keeps screenshot file names filesystem-safe.
func sanitizeLabel(label string) string {
	if label == "" {
		return "screen"
	}
	var sb strings.Builder
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return sb.String()
}
