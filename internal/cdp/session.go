// session.go - Chrome session lifecycle and the settle.Target implementation.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/brennhill/pagesettle/internal/activity"
	"github.com/brennhill/pagesettle/internal/occlusion"
	"github.com/brennhill/pagesettle/internal/readiness"
	"github.com/brennhill/pagesettle/internal/util"
)

// ErrShimUnavailable is returned when the page-side shim cannot be loaded
// into the current document.
var ErrShimUnavailable = errors.New("page shim unavailable")

// DefaultCallTimeout bounds a single protocol round trip.
const DefaultCallTimeout = 5 * time.Second

// BrowserConfig selects and tunes the browser.
type BrowserConfig struct {
	// RemoteURL is a DevTools websocket URL of a running browser. When empty,
	// a local Chrome is launched.
	RemoteURL string `json:"remoteUrl,omitempty"`
	// Bin overrides the Chrome executable used for a local launch.
	Bin            string        `json:"bin,omitempty"`
	Headless       bool          `json:"headless"`
	ViewportWidth  int           `json:"viewportWidth"`
	ViewportHeight int           `json:"viewportHeight"`
	CallTimeout    time.Duration `json:"callTimeout"`
	Debug          bool          `json:"debug"`
	// Probe tunes occlusion checks.
	Probe occlusion.Config `json:"probe"`
}

const signalsExpr = `(function () {
	var jq = null;
	try {
		if (typeof jQuery !== "undefined" && jQuery && typeof jQuery.active === "number") jq = jQuery.active;
	} catch (e) {}
	return {readyState: document.readyState, thirdPartyActive: jq};
})()`

type pageSignals struct {
	ReadyState       string `json:"readyState"`
	ThirdPartyActive *int   `json:"thirdPartyActive"`
}

// Session is one browser tab. It implements settle.Target.
type Session struct {
	ID  string
	cfg BrowserConfig
	log zerolog.Logger

	tab         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	launcher    *launcher.Launcher
	prober      *occlusion.Prober

	mu   sync.Mutex
	page *pageContext
}

// Launch connects to cfg.RemoteURL, or starts a local browser, and opens a
// tab sized to the configured viewport.
func Launch(ctx context.Context, cfg BrowserConfig, log zerolog.Logger) (*Session, error) {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.Probe == (occlusion.Config{}) {
		cfg.Probe = occlusion.DefaultConfig()
	}
	s := &Session{ID: uuid.NewString(), cfg: cfg}
	s.log = log.With().Str("session", s.ID).Logger()
	s.prober = occlusion.NewProber(cfg.Probe, s.log)

	url := cfg.RemoteURL
	if url == "" {
		l := launcher.New().Headless(cfg.Headless)
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		url, s.launcher = u, l
		s.log.Debug().Str("url", url).Msg("cdp: launched local browser")
	}

	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(context.Background(), url)
	tab, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			s.log.Debug().Msgf("cdp: "+format, args...)
		}),
	)
	s.tab, s.cancelTab, s.cancelAlloc = tab, cancelTab, cancelAlloc
	s.page = newPageContext(s.installShim, s.log)

	chromedp.ListenTarget(tab, s.onEvent)

	setup := []chromedp.Action{runtime.AddBinding(bindingName)}
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		setup = append(setup, chromedp.EmulateViewport(int64(cfg.ViewportWidth), int64(cfg.ViewportHeight)))
	}
	if err := s.run(ctx, setup...); err != nil {
		s.Close()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	s.log.Debug().Msg("cdp: session ready")
	return s, nil
}

// run executes actions on the tab, bounded by ctx and the call timeout.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.tab, s.cfg.CallTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (s *Session) onEvent(ev any) {
	switch ev := ev.(type) {
	case *runtime.EventBindingCalled:
		if ev.Name == bindingName {
			s.current().dispatch(ev.Payload)
		}
	case *page.EventFrameNavigated:
		if ev.Frame != nil && ev.Frame.ParentID == "" {
			s.mu.Lock()
			s.page = newPageContext(s.installShim, s.log)
			s.mu.Unlock()
			s.log.Debug().Str("url", util.LogURL(ev.Frame.URL)).Msg("cdp: main frame navigated, page context reset")
		}
	}
}

func (s *Session) current() *pageContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// installShim loads the shim into the current document if needed and
// installs one mechanism tagged with the page generation.
func (s *Session) installShim(ctx context.Context, mechanism, gen string) (bool, error) {
	var loaded, ok bool
	load := fmt.Sprintf("(%s)(%q)", shimSource, bindingName)
	install := fmt.Sprintf("window.__settleShim.install(%q, %q)", mechanism, gen)
	err := s.run(ctx,
		chromedp.Evaluate(load, &loaded),
		chromedp.Evaluate(install, &ok),
	)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrShimUnavailable, err)
	}
	if !loaded {
		return false, ErrShimUnavailable
	}
	return ok, nil
}

// Navigate loads url in the tab and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := context.WithCancel(s.tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", util.LogURL(url), err)
	}
	s.log.Debug().Str("origin", util.Origin(url)).Msg("cdp: navigated")
	return nil
}

// Install implements settle.Target for the current document.
func (s *Session) Install(ctx context.Context) bool {
	return activity.Install(ctx, s.current(),
		activity.WithDebug(s.cfg.Debug),
		activity.WithLogger(s.log),
	)
}

// Activity returns the tracker state of the current document.
func (s *Session) Activity() (activity.State, bool) {
	return s.current().slot.Snapshot()
}

// Classify implements settle.Target.
func (s *Session) Classify(ctx context.Context, quietWindow time.Duration) readiness.Report {
	c := readiness.Classifier{
		Activity: s.current().ActivitySlot(),
		Signals:  readiness.SignalFunc(s.pageSignals),
		Logger:   s.log,
	}
	return c.Classify(ctx, quietWindow)
}

func (s *Session) pageSignals(ctx context.Context) (readiness.Signals, error) {
	var ps pageSignals
	if err := s.run(ctx, chromedp.Evaluate(signalsExpr, &ps)); err != nil {
		return readiness.Signals{}, fmt.Errorf("read page signals: %w", err)
	}
	return readiness.Signals{ReadyState: ps.ReadyState, ThirdPartyActive: ps.ThirdPartyActive}, nil
}

// Probe implements settle.Target. Any protocol failure reports false.
func (s *Session) Probe(ctx context.Context, selectors []string) bool {
	if len(selectors) == 0 {
		return false
	}
	var busy bool
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		root, err := dom.GetDocument().WithDepth(-1).WithPierce(true).Do(ctx)
		if err != nil {
			return fmt.Errorf("get document: %w", err)
		}
		busy = s.prober.Probe(ctx, newSnapshot(root, protocolBackend{}), selectors)
		return nil
	}))
	if err != nil {
		if s.cfg.Debug {
			s.log.Debug().Err(err).Msg("cdp: probe failed, reporting not busy")
		}
		return false
	}
	return busy
}

// Close closes the tab and stops a locally launched browser.
func (s *Session) Close() {
	if s.cancelTab != nil {
		s.cancelTab()
	}
	if s.cancelAlloc != nil {
		s.cancelAlloc()
	}
	if s.launcher != nil {
		l := s.launcher
		s.launcher = nil
		l.Kill()
		util.SafeGo(s.log, l.Cleanup)
	}
}
