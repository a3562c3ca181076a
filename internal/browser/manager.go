package browser

import (
	"context"
	"fmt"
	"insights-exporter/internal/config"
	"insights-exporter/internal/ports"
	"insights-exporter/pkg/apperr"
	"insights-exporter/pkg/logg"
	"insights-exporter/pkg/tracing"
	"io"
	"os"
	"sync"

	"github.com/playwright-community/playwright-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	browserManagerName = "BrowserManager"
	browserTracer      = "browser.manager"
)

// Manager owns the single browser session of a run. Exactly one scope is active at a time:
// the main page, or the content frame entered through EnterFrame.
type Manager struct {
	config         *config.Config
	logger         *zap.Logger
	tracer         trace.Tracer
	playwright     *playwright.Playwright
	browser        playwright.Browser
	browserContext playwright.BrowserContext
	page           playwright.Page
	scope          *frameScope

	mu    sync.Mutex
	ready bool
}

type Params struct {
	fx.In

	Config *config.Config
	Logger *zap.Logger
}

func NewManager(params Params) *Manager {
	return &Manager{
		config: params.Config,
		logger: params.Logger.With(zap.String(logg.Layer, browserManagerName)),
		tracer: otel.Tracer(browserTracer),
		ready:  false,
	}
}

func (m *Manager) Launch(ctx context.Context) (err error) {
	const op = "Launch"
	logger := m.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	logger.Info("Launching browser...")

	runOptions := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if !m.config.BrowserConfig.SkipInstall {
		step.AddEvent("installing playwright")

		if err = playwright.Install(runOptions); err != nil {
			return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
				apperr.MetaReason: "playwright_install_failed",
				apperr.MetaStage:  apperr.StageBrowser,
			})
		}
	}

	step.AddEvent("starting playwright")

	pw, err := playwright.Run(runOptions)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "playwright_start_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	m.playwright = pw

	if m.config.BrowserConfig.UserDataDir != "" {
		return m.launchPersistent(ctx)
	}

	return m.launchNew(ctx)
}

func (m *Manager) launchPersistent(ctx context.Context) (err error) {
	const op = "launchPersistent"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	userDataDir := m.config.BrowserConfig.UserDataDir

	if err := os.MkdirAll(userDataDir, 0o755); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "mkdir_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	browserContext, err := m.playwright.Chromium.LaunchPersistentContext(userDataDir, playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless:        playwright.Bool(m.config.BrowserConfig.Headless),
		SlowMo:          playwright.Float(float64(m.config.BrowserConfig.SlowMo)),
		Viewport:        &playwright.Size{Width: 1920, Height: 1080},
		AcceptDownloads: playwright.Bool(true),
		Args: []string{
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "launch_persistent_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	m.browserContext = browserContext

	var page playwright.Page
	if pages := browserContext.Pages(); len(pages) > 0 {
		page = pages[0]
	} else if page, err = browserContext.NewPage(); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "new_page_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	m.attach(page)
	logger.Info("Browser launched with persistent profile", zap.String("user_data_dir", userDataDir))

	return nil
}

func (m *Manager) launchNew(ctx context.Context) (err error) {
	const op = "launchNew"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	browser, err := m.playwright.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(m.config.BrowserConfig.Headless),
		SlowMo:   playwright.Float(float64(m.config.BrowserConfig.SlowMo)),
		Args: []string{
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "browser_launch_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	m.browser = browser

	browserContext, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport:        &playwright.Size{Width: 1920, Height: 1080},
		AcceptDownloads: playwright.Bool(true),
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "context_create_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	m.browserContext = browserContext

	page, err := browserContext.NewPage()
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "page_create_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	m.attach(page)
	logger.Info("Browser launched successfully")

	return nil
}

func (m *Manager) attach(page playwright.Page) {
	page.SetDefaultTimeout(float64(m.config.BrowserConfig.Timeout))

	m.mu.Lock()
	defer m.mu.Unlock()

	m.page = page
	m.scope = m.newScope(page.MainFrame(), "main")
	m.ready = true
}

// Close tears down every browser resource. It is safe to call on a partially launched or
// already closed manager.
func (m *Manager) Close(ctx context.Context) (err error) {
	const op = "Close"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	m.mu.Lock()
	m.ready = false
	m.scope = nil
	m.mu.Unlock()

	if m.browserContext != nil {
		if err := m.browserContext.Close(); err != nil {
			logger.Warn("Failed to close context", zap.Error(err))
		}
		m.browserContext = nil
	}

	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			logger.Warn("Failed to close browser", zap.Error(err))
		}
		m.browser = nil
	}

	if m.playwright != nil {
		pw := m.playwright
		m.playwright = nil

		if err := pw.Stop(); err != nil {
			return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
				apperr.MetaReason: "playwright_stop_failed",
				apperr.MetaStage:  apperr.StageBrowser,
			})
		}
	}

	logger.Info("Browser closed")

	return nil
}

func (m *Manager) Navigate(ctx context.Context, url string) (err error) {
	const op = "Navigate"
	logger := m.logger.With(zap.String(logg.Operation, op), zap.String(logg.URL, url))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op, attribute.String("url", url))
	defer func() {
		step.End(err)
	}()

	if !m.IsReady() {
		return apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	_, err = m.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(m.config.BrowserConfig.Timeout)),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason: "goto_failed",
			apperr.MetaStage:  apperr.StageNavigation,
			apperr.MetaURL:    url,
		})
	}

	// Any frame entered before is gone with the old document.
	m.mu.Lock()
	m.scope = m.newScope(m.page.MainFrame(), "main")
	m.mu.Unlock()

	logger.Debug("Navigation completed")

	return nil
}

func (m *Manager) Scope() ports.Scope {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.scope == nil {
		return closedScope{}
	}

	return m.scope
}

func (m *Manager) EnterFrame(ctx context.Context, frame ports.Element) (err error) {
	const op = "EnterFrame"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	if !m.IsReady() {
		return apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	el, ok := frame.(*element)
	if !ok {
		return apperr.InvalidReqError(op, "frame", fmt.Errorf("unsupported element type %T", frame))
	}

	content, err := el.handle.ContentFrame()
	if err != nil || content == nil {
		if err == nil {
			err = fmt.Errorf("element has no content frame")
		}

		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason: "content_frame_failed",
			apperr.MetaStage:  apperr.StageFrame,
		})
	}

	m.mu.Lock()
	m.scope = m.newScope(content, "frame")
	m.mu.Unlock()

	logger.Debug("Entered frame", zap.String("frame_url", content.URL()))

	return nil
}

func (m *Manager) OpenView(ctx context.Context, trigger func(ctx context.Context) error) (view ports.View, err error) {
	const op = "OpenView"
	logger := m.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	if !m.IsReady() {
		return nil, apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	page, err := m.browserContext.ExpectPage(func() error {
		return trigger(ctx)
	}, playwright.BrowserContextExpectPageOptions{
		Timeout: playwright.Float(float64(m.config.BrowserConfig.Timeout)),
	})
	if err != nil {
		if apperr.CodeOf(err) != "" {
			return nil, err
		}

		return nil, apperr.Wrap(op, apperr.CodeNotFound, err, map[string]any{
			apperr.MetaReason: "view_not_opened",
			apperr.MetaStage:  apperr.StageExport,
		})
	}

	if err := page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateDomcontentloaded,
	}); err != nil {
		logger.Warn("View did not finish loading", zap.Error(err))
	}

	step.AddEvent("view opened", attribute.String("url", page.URL()))

	return &pageView{
		frameScope: m.newScope(page.MainFrame(), "view"),
		page:       page,
	}, nil
}

func (m *Manager) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.ready
}

func (m *Manager) newScope(frame playwright.Frame, kind string) *frameScope {
	return &frameScope{
		frame:        frame,
		kind:         kind,
		clickTimeout: float64(m.config.BrowserConfig.ClickTimeout.Milliseconds()),
	}
}
