// Package app wires configuration, storage and services for the commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"todo-planner/internal/apperr"
	"todo-planner/internal/auth"
	"todo-planner/internal/bot"
	"todo-planner/internal/clock"
	"todo-planner/internal/config"
	"todo-planner/internal/gtasks"
	"todo-planner/internal/repository"
	"todo-planner/internal/service"
	"todo-planner/internal/store"
)

// App owns the storage handles and the services built on them.
type App struct {
	cfg   config.Config
	log   *zap.Logger
	clock clock.Clock

	db    *gorm.DB
	blobs repository.BlobStore
	store *store.Store
	oauth *auth.OAuthProvider

	prompt           auth.PromptFunc
	telegramEndpoint string

	Tasks *service.TaskService
	// Sync is nil unless Google Tasks is configured.
	Sync *service.SyncService
}

// Option customises an App.
type Option func(*App)

// WithPrompt enables interactive Google sign-in through p.
func WithPrompt(p auth.PromptFunc) Option {
	return func(a *App) { a.prompt = p }
}

// WithClock replaces the wall clock.
func WithClock(clk clock.Clock) Option {
	return func(a *App) { a.clock = clk }
}

// WithTelegramEndpoint points the bot at another Bot API server.
func WithTelegramEndpoint(endpoint string) Option {
	return func(a *App) { a.telegramEndpoint = endpoint }
}

// New opens storage, loads the task list and builds the services.
func New(ctx context.Context, cfg config.Config, log *zap.Logger, opts ...Option) (*App, error) {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	a := &App{cfg: cfg, log: log, clock: clock.System{Location: cfg.Location}}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.openStorage(); err != nil {
		return nil, err
	}

	a.store = store.New(a.blobs, a.clock, log.Named("store"))
	if err := a.store.Load(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	a.Tasks = service.NewTaskService(a.store, a.clock, log.Named("tasks"))

	if cfg.Google.Enabled() {
		if err := a.openSync(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	log.Info("planner ready",
		zap.String("storage", cfg.Storage.Backend),
		zap.Bool("google_sync", a.Sync != nil),
		zap.String("timezone", cfg.Location.String()))
	return a, nil
}

func (a *App) openStorage() error {
	switch a.cfg.Storage.Backend {
	case config.StorageFile:
		blobs, err := repository.NewFileBlobStore(a.cfg.Storage.Dir)
		if err != nil {
			return fmt.Errorf("open file storage: %w", err)
		}
		a.blobs = blobs
	default:
		db, err := repository.NewDB(a.cfg.Storage.DatabaseURL, a.log)
		if err != nil {
			return err
		}
		a.db = db
		a.blobs = repository.NewBlobRepository(db)
	}
	return nil
}

func (a *App) openSync(ctx context.Context) error {
	provider, err := auth.NewOAuthProvider(auth.OAuthConfig{
		ClientID:     a.cfg.Google.ClientID,
		ClientSecret: a.cfg.Google.ClientSecret,
		RedirectURL:  a.cfg.Google.RedirectURL,
	}, a.blobs, a.prompt, a.log.Named("oauth"))
	if err != nil {
		return err
	}
	a.oauth = provider
	tokens := auth.NewCache(provider, a.clock, a.log.Named("auth"))

	var clientOpts []gtasks.Option
	if a.cfg.Google.Endpoint != "" {
		clientOpts = append(clientOpts, gtasks.WithEndpoint(a.cfg.Google.Endpoint))
	}
	client, err := gtasks.New(ctx, tokens, a.log.Named("gtasks"), clientOpts...)
	if err != nil {
		return err
	}
	a.Sync = service.NewSyncService(a.store, client, a.cfg.Google.TaskListID, a.clock, a.log.Named("sync"),
		service.WithAuthorizer(tokens, a.prompt != nil))
	return nil
}

// SignOut forgets the stored Google token.
func (a *App) SignOut(ctx context.Context) error {
	if a.oauth == nil {
		return apperr.ErrSyncNotConfigured
	}
	return a.oauth.SignOut(ctx)
}

// Serve runs the Telegram bot and the scheduled jobs until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	if err := a.cfg.RequireTelegram(); err != nil {
		return err
	}
	api, err := bot.NewAPI(a.cfg.Telegram.Token, a.telegramEndpoint, a.log)
	if err != nil {
		return err
	}
	if a.cfg.Telegram.ChatID == 0 {
		a.log.Warn("TELEGRAM_CHAT_ID is not set, reminders and reports are disabled")
	}

	reminders := service.NewReminderService(a.store, bot.NewNotifier(api, a.cfg.Telegram.ChatID), a.clock, a.log.Named("reminders"))
	planner := service.NewPlanner(a.Tasks, reminders, a.clock, a.log.Named("planner"))
	telegram := bot.New(api, bot.Services{Tasks: a.Tasks, Reminders: reminders, Sync: a.Sync},
		a.cfg.Telegram.ChatID, a.clock, a.log.Named("bot"))

	if err := planner.Refresh(ctx); err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)

	scheduler := service.NewSchedulerService(a.cfg.Location, a.log)
	sched := a.cfg.Schedule
	if err := planner.Schedule(gCtx, scheduler, sched.RefreshInterval, sched.ReminderInterval, sched.ReportTime); err != nil {
		return err
	}

	g.Go(func() error {
		scheduler.Start()
		<-gCtx.Done()
		scheduler.Stop()
		return nil
	})
	g.Go(func() error {
		return telegram.Start(gCtx)
	})

	a.log.Info("planner bot started")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.log.Info("shutdown complete")
	return nil
}

// Close releases the database handle.
func (a *App) Close() {
	if a.db == nil {
		return
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
