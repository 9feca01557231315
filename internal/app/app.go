package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ykvlv/levelbot/internal/config"
	"github.com/ykvlv/levelbot/internal/cooldown"
	"github.com/ykvlv/levelbot/internal/progression"
	"github.com/ykvlv/levelbot/internal/secret"
	"github.com/ykvlv/levelbot/internal/store"
	"github.com/ykvlv/levelbot/internal/telegram"
)

type App struct {
	cfg     config.Config
	log     *zap.Logger
	bot     *tgbotapi.BotAPI
	httpSrv *http.Server
	secrets *secret.Box
}

func New(cfg config.Config, log *zap.Logger) (*App, error) {
	secrets, err := secret.New(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	bot.Debug = false

	return &App{
		cfg:     cfg,
		log:     log,
		bot:     bot,
		httpSrv: newHealthServer(cfg.HTTPAddr),
		secrets: secrets,
	}, nil
}

func newHealthServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting levelbot",
		zap.String("env", a.cfg.Env),
		zap.String("bot", a.bot.Self.UserName),
		zap.String("http", a.cfg.HTTPAddr),
		zap.Bool("dev", a.cfg.DevEnabled()),
	)

	// Open SQLite and run migrations.
	repo, err := store.OpenSQLite(ctx, a.cfg.DBPath)
	if err != nil {
		a.log.Error("open sqlite failed", zap.Error(err))
		return err
	}
	defer func() { _ = repo.Close() }()
	a.log.Info("sqlite ready", zap.String("path", a.cfg.DBPath))

	cooldowns := cooldown.New[int64](a.cfg.XPCooldown, nil)
	router := telegram.NewRouter(a.bot, a.log, telegram.Deps{
		Notes:     repo,
		KV:        repo,
		Progress:  progression.NewService(repo, a.log, a.cfg.XPBase),
		Cooldowns: cooldowns,
		Secrets:   a.secrets,
	}, telegram.Options{
		Prefix:      a.cfg.CommandPrefix,
		BotUsername: a.bot.Self.UserName,
		DevEnabled:  a.cfg.DevEnabled(),
		DevUsers:    a.cfg.DevWhitelist,
	})

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
		}
	}()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updCh := a.bot.GetUpdatesChan(u)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Handlers never fail the group; the limit only bounds concurrency.
	workers := &errgroup.Group{}
	workers.SetLimit(a.cfg.Workers)

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutdown signal received")
			a.bot.StopReceivingUpdates()

			// In-flight handlers get a fresh context so their writes can finish.
			_ = workers.Wait()

			shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := a.httpSrv.Shutdown(shCtx)
			cancel()
			if err != nil {
				a.log.Warn("http server shutdown error", zap.Error(err))
			}
			a.log.Info("stopped", zap.Int("cooldowns", cooldowns.Len()))
			return nil

		case upd, ok := <-updCh:
			if !ok {
				return nil
			}
			workers.Go(func() error {
				hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
				defer cancel()
				router.HandleUpdate(hctx, upd)
				return nil
			})
		}
	}
}
