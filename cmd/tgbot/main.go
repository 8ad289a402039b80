package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"github.com/pechorka/pace-reader/cmd/tgbot/internal/bot"
	"github.com/pechorka/pace-reader/internal/config"
	"github.com/pechorka/pace-reader/internal/handler"
	"github.com/pechorka/pace-reader/internal/library"
	"github.com/pechorka/pace-reader/internal/scheduler"
	"github.com/pechorka/pace-reader/internal/service"
	"github.com/pechorka/pace-reader/internal/storage/boltdb"
	"github.com/pechorka/pace-reader/internal/storage/jsonfile"
	"github.com/pechorka/pace-reader/pkg/fileloader"
	"github.com/pechorka/pace-reader/pkg/i18n"
	"github.com/pechorka/pace-reader/pkg/logger"
	"github.com/pechorka/pace-reader/pkg/watcher"
)

const shutdownTimeout = 10 * time.Second

type store interface {
	service.Store
	Close() error
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := ""
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	log := logger.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	i18nService := i18n.New()
	if cfg.I18nPath != "" {
		i18nWatcher, err := watcher.LoadAndWatch(cfg.I18nPath, i18nService, log)
		if err != nil {
			return errors.Wrap(err, "failed to load translations")
		}
		defer i18nWatcher.Close()
	} else if err := i18nService.Parse(bot.DefaultTranslations); err != nil {
		return errors.Wrap(err, "failed to load default translations")
	}

	lib, err := library.New(library.Config{
		Dir:    cfg.BooksDir,
		Exts:   cfg.BookExts,
		Logger: log,
	})
	if err != nil {
		return err
	}
	libWatcher, err := watcher.LoadAndWatch(lib.Dir(), lib, log)
	if err != nil {
		return errors.Wrap(err, "failed to watch books dir")
	}
	defer libWatcher.Close()

	api, err := tgbotapi.NewBotAPI(cfg.TgToken)
	if err != nil {
		return errors.Wrap(err, "failed to connect to telegram")
	}
	api.Debug = cfg.Debug
	if err := tgbotapi.SetLogger(slog.NewLogLogger(log.Handler(), slog.LevelDebug)); err != nil {
		return err
	}

	sender, err := bot.NewSender(bot.SenderConfig{
		API:     api,
		I18n:    i18nService,
		Logger:  log,
		Retrier: bot.NewRetrier(cfg.SendRetryMaxElapsed.Std()),
	})
	if err != nil {
		return err
	}
	registry, err := scheduler.NewRegistry(scheduler.Config{
		Store:         store,
		Transport:     sender,
		Logger:        log,
		StartDelay:    cfg.StartDelay.Std(),
		RollbackWords: cfg.SchedulerRollbackWords(),
	})
	if err != nil {
		return err
	}
	svc, err := service.NewService(service.Config{
		Store:           store,
		Library:         lib,
		Scheduler:       registry,
		Logger:          log,
		DefaultRate:     cfg.DefaultRate,
		DefaultInterval: cfg.DefaultInterval,
		MaxRate:         cfg.MaxRate,
		MaxInterval:     cfg.MaxInterval,
	})
	if err != nil {
		return err
	}
	b, err := bot.NewBot(bot.Config{
		API:        api,
		Sender:     sender,
		Service:    svc,
		Files:      bot.NewTelegramFiles(api, fileloader.NewLoader(fileloader.Config{MaxFileSize: cfg.MaxBookSize})),
		I18n:       i18nService,
		Logger:     log,
		AdminUsers: cfg.Admins,
	})
	if err != nil {
		return err
	}
	go b.Run()

	var srv *http.Server
	if cfg.HTTPAddr != "" {
		srv = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           handler.NewHandlers(svc, lib, log).Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("http server started", "addr", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server failed", "err", err)
			}
		}()
	}

	terminate := make(chan os.Signal, 1)
	signal.Notify(terminate, syscall.SIGINT, syscall.SIGTERM)

	sig := <-terminate
	log.Info("shutting down", "signal", sig.String())
	b.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("http server shutdown failed", "err", err)
		}
	}
	return registry.Shutdown(ctx)
}

func openStore(cfg *config.Config) (store, error) {
	switch {
	case cfg.StoreBackend == config.BackendBolt && cfg.Debug:
		return boltdb.NewTempStorage()
	case cfg.StoreBackend == config.BackendBolt:
		return boltdb.NewStorage(cfg.StorePath)
	case cfg.Debug:
		return jsonfile.NewTempStorage()
	default:
		return jsonfile.NewStorage(cfg.StorePath)
	}
}
