package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Launch opens a Chrome/Chromium session via chromedp.  With
// Options.ProfileDir set the browser uses a persistent user-data
// directory, otherwise the profile is ephemeral.
func Launch(ctx context.Context, opts Options) (Session, error) {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.Flag("headless", opts.Headless),
		chromedp.WindowSize(1280, 800),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ProfileDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(opts.ProfileDir))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	pageCtx, cancelPage := chromedp.NewContext(allocCtx)

	session := &chromeSession{
		ctx: pageCtx,
		cancel: func() {
			cancelPage()
			cancelAlloc()
		},
		navTimeout: opts.NavigateTimeout,
	}

	// The first Run starts the browser process; network events are
	// needed for the response observer.
	if err := chromedp.Run(pageCtx, network.Enable()); err != nil {
		session.cancel()
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	return session, nil
}

type chromeSession struct {
	ctx        context.Context
	cancel     context.CancelFunc
	navTimeout time.Duration
}

func (s *chromeSession) OnResponse(handler ResponseHandler) {
	chromedp.ListenTarget(s.ctx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok {
			return
		}

		info := ResponseInfo{
			URL:         resp.Response.URL,
			ContentType: resp.Response.MimeType,
		}
		requestID := resp.RequestID

		// Handlers fetch bodies and parse JSON; they must not block
		// the event listener.
		go handler(info, func() ([]byte, error) {
			return s.responseBody(requestID)
		})
	})
}

// responseBody retrieves the body for an observed response.  Chrome
// may have already evicted it, in which case an error is returned and
// the response is simply not mined.
func (s *chromeSession) responseBody(id network.RequestID) ([]byte, error) {
	c := chromedp.FromContext(s.ctx)
	if c == nil {
		return nil, fmt.Errorf("session closed")
	}
	return network.GetResponseBody(id).Do(cdp.WithExecutor(s.ctx, c.Target))
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	navCtx := s.ctx
	if s.navTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(s.ctx, s.navTimeout)
		defer cancel()
	}
	return chromedp.Run(navCtx, chromedp.Navigate(url))
}

func (s *chromeSession) ScrollBy(ctx context.Context, pixels int) error {
	return s.Evaluate(ctx, fmt.Sprintf("window.scrollBy(0, %d)", pixels), nil)
}

func (s *chromeSession) ScrollHeight(ctx context.Context) (int, error) {
	var height int
	err := s.Evaluate(ctx, "document.body.scrollHeight", &height)
	return height, err
}

func (s *chromeSession) Evaluate(ctx context.Context, expr string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return chromedp.Run(s.ctx, chromedp.Evaluate(expr, out))
}

func (s *chromeSession) Location(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var loc string
	err := chromedp.Run(s.ctx, chromedp.Location(&loc))
	return loc, err
}

func (s *chromeSession) Close() error {
	s.cancel()
	return nil
}
