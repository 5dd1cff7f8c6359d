// Package probe drives a headless Chromium instance over CDP to read the
// availability banner, delivery ETA and sold-out markers off aggregator
// store pages.
package probe

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"github.com/adonese/storewatch/track_fields"
)

// Prober visits store pages. A fresh browser is launched per probe so that
// parallel checks never share profile state.
type Prober struct {
	Headless        bool
	ExecPath        string
	PageLoadTimeout time.Duration
	AfterLoadWait   time.Duration
	Logger          *logrus.Logger
}

// New builds a Prober from config.
func New(cfg track_fields.Config, logger *logrus.Logger) *Prober {
	return &Prober{
		Headless:        !cfg.Windowed,
		ExecPath:        cfg.ChromePath,
		PageLoadTimeout: cfg.PageLoadTimeout(),
		AfterLoadWait:   cfg.AfterLoadWait(),
		Logger:          logger,
	}
}

func (p *Prober) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("start-maximized", true),
	)
	if p.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if p.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(p.ExecPath))
	}
	return opts
}

// Probe visits the target and returns what it saw. Navigation problems are
// retried once after a 2s pause; a result is always returned, with Err set
// when both attempts failed.
func (p *Prober) Probe(ctx context.Context, t track_fields.Target) track_fields.CheckResult {
	start := time.Now()
	res := track_fields.CheckResult{
		Tab:        t.Tab,
		Row:        t.Row,
		Brand:      t.Brand,
		Location:   t.Location,
		Aggregator: t.Aggregator,
		Link:       t.Link,
	}

	url := normalizeURL(t.Link)
	op := func() error {
		return p.visit(ctx, url, t, &res)
	}
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(2*time.Second), 1), ctx))
	res.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		res.Err = errKind(err)
		if p.Logger != nil {
			p.Logger.WithFields(logrus.Fields{"link": url, "error": err.Error()}).Warn("probe failed")
		}
	}
	track_fields.RecordCheck(t.Aggregator, res.Status, err, time.Since(start))
	return res
}

func (p *Prober) visit(parent context.Context, url string, t track_fields.Target, res *track_fields.CheckResult) error {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, p.allocatorOptions()...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	total := p.PageLoadTimeout + p.AfterLoadWait + 30*time.Second
	tctx, cancel := context.WithTimeout(browserCtx, total)
	defer cancel()

	var actions []chromedp.Action
	if t.HasGeo() {
		actions = append(actions,
			cdpbrowser.GrantPermissions([]cdpbrowser.PermissionType{cdpbrowser.PermissionTypeGeolocation}).WithOrigin(originOf(url)),
			emulation.SetGeolocationOverride().
				WithLatitude(*t.Latitude).
				WithLongitude(*t.Longitude).
				WithAccuracy(50),
		)
	}
	actions = append(actions,
		chromedp.Navigate(url),
		chromedp.Sleep(p.AfterLoadWait),
	)
	if err := chromedp.Run(tctx, actions...); err != nil {
		return err
	}

	// The body should long be there after the post-load wait; tolerate a
	// straggler the way the original tolerated its WebDriverWait timeout.
	waitCtx, cancelWait := context.WithTimeout(tctx, 15*time.Second)
	defer cancelWait()
	if err := chromedp.Run(waitCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil && p.Logger != nil {
		p.Logger.WithField("link", url).Debug("body never became ready")
	}

	statusLocs, etaLocs := zomatoStatusLocs, zomatoETALocs
	if t.IsSwiggy() {
		statusLocs, etaLocs = swiggyStatusLocs, swiggyETALocs
	}

	statusTexts := extractTexts(tctx, statusLocs, 60)
	etaTexts := extractTexts(tctx, etaLocs, 60)
	res.Status = InferStatus(statusTexts)
	res.ETA = ParseETA(etaTexts)
	if t.IsSwiggy() {
		res.SoldOut = len(extractTexts(tctx, swiggySoldOutLocs, 300))
	}
	return nil
}

const cssCollector = `(function(sel, max){const out=[];for(const el of document.querySelectorAll(sel)){if(out.length>=max)break;const t=(el.innerText||'').trim();if(t)out.push(t)}return out})(%s, %d)`

const xpathCollector = `(function(xp, max){const out=[];const it=document.evaluate(xp, document, null, XPathResult.ORDERED_NODE_ITERATOR_TYPE, null);let n;while((n=it.iterateNext()) && out.length<max){const t=((n.innerText!==undefined?n.innerText:n.textContent)||'').trim();if(t)out.push(t)}return out})(%s, %d)`

// extractTexts pulls visible text for every locator, deduplicated in page
// order. Locators that fail to evaluate are skipped.
func extractTexts(ctx context.Context, locs []Locator, max int) []string {
	var out []string
	seen := make(map[string]bool)
	for _, loc := range locs {
		tmpl := cssCollector
		if loc.By == "xpath" {
			tmpl = xpathCollector
		}
		expr := fmt.Sprintf(tmpl, strconv.Quote(loc.Value), max)
		var texts []string
		if err := chromedp.Run(ctx, chromedp.Evaluate(expr, &texts)); err != nil {
			continue
		}
		for _, t := range texts {
			if t != "" && !seen[t] {
				out = append(out, t)
				seen[t] = true
			}
		}
	}
	return out
}

// errKind compresses a probe failure into a cell-sized label.
func errKind(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Timeout"
	case errors.Is(err, context.Canceled):
		return "Canceled"
	}
	msg := err.Error()
	if len(msg) > 60 {
		msg = msg[:60]
	}
	return msg
}
