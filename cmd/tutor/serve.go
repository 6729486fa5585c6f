package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/campusmate/tutor/internal/config"
	"github.com/campusmate/tutor/internal/handlers"
	"github.com/campusmate/tutor/internal/i18n"
	"github.com/campusmate/tutor/internal/middleware"
	"github.com/campusmate/tutor/internal/services/ai"
	"github.com/campusmate/tutor/internal/services/assistant"
	"github.com/campusmate/tutor/internal/services/cache"
	"github.com/campusmate/tutor/internal/services/imagegen"
	"github.com/campusmate/tutor/internal/services/knowledge"
	"github.com/campusmate/tutor/internal/services/render"
	"github.com/campusmate/tutor/internal/services/router"
	"github.com/campusmate/tutor/internal/services/session"
	"github.com/campusmate/tutor/internal/services/speech"
	"github.com/campusmate/tutor/internal/services/storage"
	"github.com/campusmate/tutor/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP, WebSocket and Telegram surfaces",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

// loadConfig reads the config file when present and watches it for edits.
func loadConfig() (*config.Loader, *config.Config, bool, error) {
	loader := config.NewLoader()
	path := configPath
	if _, err := os.Stat(path); err != nil {
		path = ""
	}
	cfg, err := loader.Load(path)
	if err != nil {
		return nil, nil, false, err
	}
	return loader, cfg, path != "", nil
}

func serve(ctx context.Context) error {
	loader, cfg, fromFile, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log.WithField("version", version).Info("Starting tutor")

	if fromFile {
		loader.Watch(func(next *config.Config) {
			if err := logger.SetLevel(log, next.Logging.Level); err != nil {
				log.WithError(err).Warn("Ignoring invalid log level")
				return
			}
			log.WithField("level", next.Logging.Level).Info("Configuration reloaded")
		}, func(err error) {
			log.WithError(err).Warn("Failed to reload configuration")
		})
	}

	metrics := middleware.NewMetrics()

	storageManager, err := storage.NewManager(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer storageManager.Close()
	storageManager.SetObserver(metrics.StorageObserver())

	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		return fmt.Errorf("failed to initialize i18n: %w", err)
	}

	syllabus, err := knowledge.NewKnowledgeService(log)
	if err != nil {
		return fmt.Errorf("failed to load syllabus: %w", err)
	}
	if cfg.Knowledge.Directory != "" {
		if err := syllabus.LoadOverrides(ctx, cfg.Knowledge.Directory); err != nil {
			log.WithError(err).Error("Failed to load syllabus overrides")
		}
	}

	deps := assistant.Deps{
		Classifier: router.NewClassifier(),
		Images:     imagegen.NewSynthesizer(cfg.Image.BaseURL, cfg.Image.Width, cfg.Image.Height),
		Knowledge:  syllabus,
		Completer:  ai.NewOpenRouterClient(&cfg.OpenRouter, log),
		Cache:      cache.NewCache(&cfg.Cache, log),
		Localizer:  localizer,
		Metrics:    metrics,
		Logger:     log,
	}
	if cfg.Backend.Enabled {
		backend := ai.NewBackendClient(&cfg.Backend, log)
		deps.Backend = backend
		deps.Probe = ai.NewHealthProbe(backend.Healthy)
	}
	tutor := assistant.NewService(deps)

	sessions := session.NewManager(storageManager, log, session.Options{
		Debounce:    cfg.Session.PersistDebounce,
		IdleTimeout: cfg.Session.IdleTimeout,
		Greeting:    tutor.NewChatGreeting,
		Welcome:     tutor.Welcome,
	})

	limiter := middleware.NewRateLimiter(&cfg.RateLimit, log)
	defer limiter.Stop()
	security := middleware.NewSecurityMiddleware(cfg.Session.MaxMessageLength, log)
	renderer := render.NewRenderer()
	conversation := handlers.NewConversation(tutor, sessions, renderer, security, metrics, log)

	r := mux.NewRouter()
	handlers.NewAPI(handlers.APIDeps{
		Conversation: conversation,
		Assistant:    tutor,
		Renderer:     renderer,
		Speech:       speech.NewService(&cfg.Speech),
		Security:     security,
		Limiter:      limiter,
		Metrics:      metrics,
		Localizer:    localizer,
		Logger:       log,
		Version:      version,
	}).Register(r)
	r.Handle("/ws", handlers.NewWSHandler(conversation, limiter, security, metrics, localizer, log, cfg.Server.AllowedOrigins))
	if cfg.Monitoring.Metrics.Enabled {
		middleware.Register(r, cfg.Monitoring.Metrics.Path)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	if cfg.Telegram.Enabled {
		bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			return fmt.Errorf("failed to create bot: %w", err)
		}
		bot.Debug = cfg.Logging.Level == "debug"
		log.WithField("username", bot.Self.UserName).Info("Bot authorized")

		tg := handlers.NewTelegramHandler(bot, bot.Self.UserName, conversation, limiter, metrics, localizer, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			pollTelegram(ctx, bot, tg, cfg.Telegram.UpdateTimeout, log)
		}()
	}

	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case runErr = <-errCh:
		log.WithError(runErr).Error("HTTP server failed")
	}
	stopRun()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Failed to shut down HTTP server")
	}
	wg.Wait()
	if err := sessions.Close(shutdownCtx); err != nil {
		log.WithError(err).Error("Failed to flush sessions")
	}

	log.Info("tutor stopped")
	return runErr
}

// pollTelegram long-polls updates until ctx ends. Each update is handled on
// its own goroutine; replies keep their order through the session store.
func pollTelegram(ctx context.Context, bot *tgbotapi.BotAPI, h *handlers.TelegramHandler, timeout int, log *logrus.Logger) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeout
	updates := bot.GetUpdatesChan(u)
	log.Info("Using long polling")

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			bot.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			wg.Add(1)
			go func(update tgbotapi.Update) {
				defer wg.Done()
				if err := h.HandleUpdate(ctx, update); err != nil {
					log.WithError(err).Error("Failed to handle update")
				}
			}(update)
		}
	}
}
