package inspect

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Tegath/kaleads/internal/services"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// BrowserConfig holds headless browser settings.
type BrowserConfig struct {
	// DebuggerURL attaches to an already running Chrome instead of launching one.
	DebuggerURL string
	Bin         string
	Headless    bool
	SettleDelay time.Duration
}

// BrowserInspector renders pages in a headless Chrome driven by rod, for
// sites whose content only exists after scripts run. The browser is
// started lazily and shared by all concurrent inspections.
type BrowserInspector struct {
	cfg    BrowserConfig
	logger *zap.Logger

	mu      sync.Mutex
	browser *rod.Browser
}

// NewBrowserInspector creates a BrowserInspector. No browser is started yet.
func NewBrowserInspector(cfg BrowserConfig, logger *zap.Logger) *BrowserInspector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BrowserInspector{cfg: cfg, logger: logger.Named("browser")}
}

func (b *BrowserInspector) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		return b.browser, nil
	}

	controlURL := b.cfg.DebuggerURL
	if controlURL == "" {
		l := launcher.New().Headless(b.cfg.Headless)
		if b.cfg.Bin != "" {
			l = l.Bin(b.cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("site inspection: launching browser: %w", services.ErrServiceUnavailable)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("site inspection: connecting to browser: %w", services.ErrServiceUnavailable)
	}
	b.logger.Info("browser connected", zap.String("control_url", controlURL))
	b.browser = browser
	return browser, nil
}

// Inspect implements Inspector.
func (b *BrowserInspector) Inspect(ctx context.Context, pageURL string) (*PageSummary, error) {
	target, err := NormalizeURL(pageURL)
	if err != nil {
		return nil, err
	}

	browser, err := b.connect()
	if err != nil {
		return nil, err
	}

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{URL: target})
	if err != nil {
		return nil, fmt.Errorf("site inspection: opening %s: %w", target, services.Classify(err))
	}
	defer func() { _ = page.Close() }()

	if err := page.Context(ctx).WaitLoad(); err != nil {
		return nil, fmt.Errorf("site inspection: loading %s: %w", target, services.Classify(err))
	}
	if b.cfg.SettleDelay > 0 {
		select {
		case <-time.After(b.cfg.SettleDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("site inspection: %w", services.Classify(ctx.Err()))
		}
	}

	document, err := page.Context(ctx).HTML()
	if err != nil {
		return nil, fmt.Errorf("site inspection: reading DOM: %w", services.Classify(err))
	}
	return Summarize(target, document)
}

// Close shuts the browser down if it was started.
func (b *BrowserInspector) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	return err
}
