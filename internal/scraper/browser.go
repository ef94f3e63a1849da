package scraper

import (
	"context"
	"errors"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"quotescraper/internal/utils"
)

// Session is one exclusively owned browser. Close must be called on every path.
type Session interface {
	Render(ctx context.Context, url, waitSelector string, settle time.Duration) (Page, error)
	Close() error
}

// SessionOpener starts a fresh Session for each fetch call.
type SessionOpener interface {
	Open(ctx context.Context) (Session, error)
}

// ChromeOpener launches a headless Chrome per session from a shared
// allocator configuration.
type ChromeOpener struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	logger   *utils.Logger
}

func NewChromeOpener(cfg utils.BrowserConfig, userAgent string, logger *utils.Logger) *ChromeOpener {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.NoSandbox,
		chromedp.Flag("enable-logging", cfg.Debug),
		chromedp.WindowSize(1920, 1080),
	)
	if userAgent != "" {
		opts = append(opts, chromedp.UserAgent(userAgent))
	}
	if cfg.DisableImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &ChromeOpener{allocCtx: allocCtx, cancel: cancel, logger: logger}
}

// Open starts a new browser process. Cancelling ctx tears it down as well.
func (o *ChromeOpener) Open(ctx context.Context) (Session, error) {
	browserCtx, cancel := chromedp.NewContext(o.allocCtx,
		chromedp.WithLogf(o.logger.Debug),
		chromedp.WithErrorf(o.logger.BrowserError),
	)
	stop := context.AfterFunc(ctx, cancel)

	// Accept alerts and confirms so they cannot block the page
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		if ev, ok := ev.(*page.EventJavascriptDialogOpening); ok {
			o.logger.Debug("Dialog detected: %s", ev.Message)
			go func() {
				if err := chromedp.Run(browserCtx, page.HandleJavaScriptDialog(true)); err != nil {
					o.logger.Debug("Failed to handle dialog: %v", err)
				}
			}()
		}
	})

	// An empty Run launches the browser
	if err := chromedp.Run(browserCtx); err != nil {
		stop()
		cancel()
		return nil, err
	}
	return &chromeSession{ctx: browserCtx, cancel: cancel, stop: stop}, nil
}

// Close shuts the allocator down; sessions still open are killed with it.
func (o *ChromeOpener) Close() error {
	o.cancel()
	return nil
}

type chromeSession struct {
	ctx    context.Context
	cancel context.CancelFunc
	stop   func() bool
}

func (s *chromeSession) Render(ctx context.Context, url, waitSelector string, settle time.Duration) (Page, error) {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var p Page
	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady(waitSelector, chromedp.ByQuery),
		chromedp.Sleep(settle),
		chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &p.Text),
		chromedp.OuterHTML("html", &p.HTML, chromedp.ByQuery),
	)
	if err != nil && ctx.Err() != nil {
		return Page{}, ctx.Err()
	}
	return p, err
}

func (s *chromeSession) Close() error {
	s.stop()
	err := chromedp.Cancel(s.ctx)
	s.cancel()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// BrowserSource renders the quote page in a headless browser and applies Rule
// to the captured text and markup.
type BrowserSource struct {
	Opener       SessionOpener
	Rule         Rule
	URLTemplate  string
	MarketSuffix string
	WaitSelector string
	Settle       time.Duration
	Timeout      time.Duration
}

func (s *BrowserSource) Name() string   { return "browser" }
func (s *BrowserSource) Suffix() string { return s.MarketSuffix }

func (s *BrowserSource) Retrieve(ctx context.Context, symbol string) (Fields, error) {
	p, err := s.render(ctx, BuildURL(s.URLTemplate, symbol), s.WaitSelector, s.Settle)
	if err != nil {
		return Fields{}, err
	}
	return s.Rule.Extract(p)
}

func (s *BrowserSource) render(ctx context.Context, url, waitSelector string, settle time.Duration) (Page, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	session, err := s.Opener.Open(ctx)
	if err != nil {
		return Page{}, transportError(ctx, err)
	}
	defer session.Close()

	p, err := session.Render(ctx, url, waitSelector, settle)
	if err != nil {
		return Page{}, transportError(ctx, err)
	}
	return p, nil
}

// Check launches a browser and loads a blank page.
func (s *BrowserSource) Check(ctx context.Context) error {
	_, err := s.render(ctx, "about:blank", "body", 0)
	return err
}

// Close releases the opener when it holds a browser allocator.
func (s *BrowserSource) Close() error {
	if closer, ok := s.Opener.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
