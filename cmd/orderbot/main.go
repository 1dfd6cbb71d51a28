// Package main запускает HTTP-сервер сервиса orderbot.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/orderbot/internal/catalog"
	"github.com/mmeshcher/orderbot/internal/classifier"
	"github.com/mmeshcher/orderbot/internal/config"
	"github.com/mmeshcher/orderbot/internal/events"
	"github.com/mmeshcher/orderbot/internal/handler"
	"github.com/mmeshcher/orderbot/internal/middleware"
	"github.com/mmeshcher/orderbot/internal/repository"
	"github.com/mmeshcher/orderbot/internal/service"
	"github.com/mmeshcher/orderbot/internal/session"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	cat, err := loadCatalog(cfg.KnowledgeFile)
	if err != nil {
		sugar.Fatalw("knowledge base error", "error", err.Error())
	}

	var intentModel classifier.Model
	if cfg.ClassifierAddress != "" {
		intentModel = classifier.NewRemoteModel(cfg.ClassifierAddress)
		sugar.Infow("using remote intent model", "addr", cfg.ClassifierAddress)
	} else {
		intentModel = classifier.NewPatternModel(cat.Examples())
	}
	clf := classifier.NewAdapter(intentModel, cfg.ConfidenceThreshold)

	var repo service.Repository
	if cfg.DatabaseURI != "" {
		repo, err = repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
	} else {
		sugar.Warn("DATABASE_URI is empty, orders and bookings are kept in memory")
		repo = repository.NewMemoryRepository()
	}

	var sessions service.SessionStore
	if cfg.SessionDBPath != "" {
		store, err := session.NewSQLiteStore(cfg.SessionDBPath)
		if err != nil {
			sugar.Fatalw("session store initialization error", "error", err.Error())
		}
		defer store.Close()
		sessions = store
	} else {
		sessions = session.NewMemoryStore()
	}

	publishers, closers := connectPublishers(cfg, sugar)
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				sugar.Warnw("close event publisher", "error", err)
			}
		}
	}()

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithIdleTimeout(cfg.SessionIdleTimeout),
		service.WithDefaultUnitPrice(cfg.DefaultUnitPriceCents()),
	}
	if len(publishers) > 0 {
		opts = append(opts, service.WithPublisher(publishers))
	}

	svc := service.NewService(repo, sessions, clf, cat, opts...)
	defer svc.Close()

	identity := middleware.NewIdentity(cfg.CookieSecret)
	h := handler.NewHandler(svc, logger, identity, cfg.Debug)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Фоновое удаление простаивающих сессий
	g.Go(func() error {
		svc.StartSessionSweeper(ctx)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting orderbot server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

// connectPublishers подключает настроенные брокеры событий.
// Недоступный брокер не мешает запуску: события просто не публикуются в него.
func connectPublishers(cfg *config.Config, sugar *zap.SugaredLogger) (events.Multi, []io.Closer) {
	var (
		publishers events.Multi
		closers    []io.Closer
	)

	if cfg.NATSURL != "" {
		p, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			sugar.Warnw("NATS is unavailable, events will not be published there", "error", err)
		} else {
			publishers = append(publishers, p)
			closers = append(closers, p)
		}
	}

	if cfg.AMQPURL != "" {
		p, err := events.NewAMQPPublisher(cfg.AMQPURL)
		if err != nil {
			sugar.Warnw("RabbitMQ is unavailable, events will not be published there", "error", err)
		} else {
			publishers = append(publishers, p)
			closers = append(closers, p)
		}
	}

	return publishers, closers
}
