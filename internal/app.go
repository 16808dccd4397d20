package internal

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/hotdog/config"
	"github.com/vadiminshakov/hotdog/internal/console"
	"github.com/vadiminshakov/hotdog/internal/domain"
	"github.com/vadiminshakov/hotdog/internal/metrics"
	"github.com/vadiminshakov/hotdog/internal/session"
	"github.com/vadiminshakov/hotdog/internal/setup"
	"github.com/vadiminshakov/hotdog/internal/storage/journal"
	"github.com/vadiminshakov/hotdog/internal/web"
)

const terminalSessionID = "terminal"

// App runs one hotdog command.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	out    io.Writer
}

// NewApp creates an app for cfg. Terminal output goes to out.
func NewApp(cfg config.Config, logger *zap.Logger, out io.Writer) *App {
	return &App{cfg: cfg, logger: logger, out: out}
}

// Run dispatches to the configured command and blocks until it ends.
func (a *App) Run(ctx context.Context) error {
	switch a.cfg.Command {
	case config.CommandServe:
		return a.RunServer(ctx)
	case config.CommandConnect:
		return a.RunConnect(ctx)
	case config.CommandSetup:
		return setup.RunTUI(a.cfg, config.DefaultConfigOut)
	default:
		return errors.Errorf("unsupported command: %s", a.cfg.Command)
	}
}

// RunServer serves the page and its wallet sessions until ctx is done.
func (a *App) RunServer(ctx context.Context) error {
	m := metrics.New()
	opts := session.Options{
		RequestTimeout: a.cfg.RequestTimeout,
		Metrics:        m,
		Logger:         a.logger,
	}
	webCfg := web.Config{
		Addr:     a.cfg.Listen,
		DogImage: a.cfg.DogImage,
		Logger:   a.logger,
		Metrics:  m,
	}

	feed, err := a.openJournal()
	if err != nil {
		return err
	}
	if feed != nil {
		defer a.closeJournal(feed)
		opts.Recorder = feed
		webCfg.Journal = feed
	}

	g, ctx := errgroup.WithContext(ctx)

	registry := session.NewRegistry(ctx, a.cfg.SessionTTL, a.cfg.BridgeWait, opts)
	server := web.NewServer(webCfg, registry)

	g.Go(func() error {
		return registry.Run(ctx)
	})
	g.Go(func() error {
		if len(a.cfg.TLSDomains) > 0 {
			return server.StartWithAutoTLS(ctx, a.cfg.TLSDomains, a.cfg.CertCache)
		}
		return server.Start(ctx)
	})

	return g.Wait()
}

// RunConnect runs one connect attempt against the terminal's wallet source
// and prints every state it passes through. It fails when the attempt ends
// in an error status.
func (a *App) RunConnect(ctx context.Context) error {
	locator := newTerminalLocator(a.cfg, a.logger)
	defer locator.Close()

	opts := session.Options{
		RequestTimeout: a.cfg.RequestTimeout,
		Logger:         a.logger,
	}

	feed, err := a.openJournal()
	if err != nil {
		return err
	}
	if feed != nil {
		defer a.closeJournal(feed)
		opts.Recorder = feed
	}

	sess := session.New(ctx, terminalSessionID, locator, opts)
	defer sess.Close()

	renderer := console.NewRenderer(a.out, nil)
	initial, updates := sess.Subscribe()
	if err := renderer.Print(initial); err != nil {
		sess.Unsubscribe(updates)
		return errors.Wrap(err, "print state")
	}

	printed := make(chan error, 1)
	go func() {
		printed <- renderer.Follow(ctx, updates)
	}()

	final := sess.Connect(ctx)
	sess.Unsubscribe(updates)
	if err := <-printed; err != nil && !errors.Is(err, context.Canceled) {
		return errors.Wrap(err, "print state")
	}

	if final.Status.Kind == domain.StatusError {
		return errors.New(final.Status.Text)
	}
	return nil
}

// openJournal returns nil when journaling is disabled.
func (a *App) openJournal() (*journal.Feed, error) {
	if a.cfg.JournalDir == "" {
		return nil, nil
	}
	store, err := journal.NewWALStore(a.cfg.JournalDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open connect journal")
	}
	a.logger.Info("connect journal enabled",
		zap.String("dir", a.cfg.JournalDir),
		zap.Uint64("index", store.CurrentIndex()))
	return journal.NewFeed(store, a.logger), nil
}

func (a *App) closeJournal(feed *journal.Feed) {
	if err := feed.Close(); err != nil {
		a.logger.Error("failed to close connect journal", zap.Error(err))
	}
}

// NewLogger builds the process logger. Debug level uses the development
// encoder, everything else the production one.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "parse log level")
	}
	if lvl == zapcore.DebugLevel {
		return zap.NewDevelopment()
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
