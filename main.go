package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"backoffice-sync/config"
	"backoffice-sync/consumers"
	"backoffice-sync/controllers"
	"backoffice-sync/database"
	"backoffice-sync/events"
	"backoffice-sync/middlewares"
	"backoffice-sync/outbox"
	"backoffice-sync/rabbitmq"
	"backoffice-sync/remote"
	"backoffice-sync/service"
	"backoffice-sync/storage"
)

func main() {
	root := &cobra.Command{
		Use:           "backoffice-sync",
		Short:         "Back-office cache and remote store synchronisation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		serveCommand(),
		refreshCommand(),
		syncOrdersCommand(),
		migrateCommand(),
		outboxCommand(),
		tokenCommand(),
	)

	if err := root.Execute(); err != nil {
		log.Fatalf("%v", err)
	}
}

type app struct {
	cfg        *config.Config
	backOffice *service.BackOffice
	closeStore func() error
}

// openApp connects the local store and the remote database and loads the
// cached snapshot.
func openApp(cfg *config.Config) (*app, error) {
	st, closeStore, err := storage.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	if err := database.InitDB(cfg); err != nil {
		_ = closeStore()
		return nil, fmt.Errorf("database initialization failed: %w", err)
	}

	b := service.New(st, remote.NewMySQLStore(database.DB), events.NewBus(), cfg.Sync)
	return &app{cfg: cfg, backOffice: b, closeStore: closeStore}, nil
}

func (a *app) Close() {
	a.backOffice.Close()
	database.CloseDB()
	if err := a.closeStore(); err != nil {
		log.Printf("close local store: %v", err)
	}
}

func serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API, the outbox worker and the periodic refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides HTTP_ADDR)")
	return cmd
}

func runServe(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.JWTSecret == "" {
		log.Printf("Warning: JWT_SECRET is empty, every /api request will be rejected")
	}

	if cfg.RabbitMQURL != "" {
		rmq, err := rabbitmq.NewRabbitMQ(cfg)
		if err != nil {
			return fmt.Errorf("RabbitMQ initialization failed: %w", err)
		}
		defer rmq.Close()

		if err := rmq.SetupQueues(); err != nil {
			return fmt.Errorf("failed to setup RabbitMQ queues: %w", err)
		}

		unbridge := rmq.Bridge(a.backOffice.Bus())
		defer unbridge()

		a.backOffice.OnDeadLetter(func(e outbox.Entry) {
			if err := rmq.PublishDeadLetter(e); err != nil {
				log.Printf("[rabbitmq] dead letter for %s %s not published: %v", e.Kind, e.EntityID, err)
			}
		})

		if err := consumers.StartRefreshConsumer(ctx, rmq.Channel, cfg, a.backOffice); err != nil {
			return err
		}
	}

	a.backOffice.Start(ctx)
	controllers.SetBackOffice(a.backOffice)

	r := gin.Default()
	r.Use(middlewares.PrometheusMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "pending_pushes": len(a.backOffice.Pending())})
	})

	api := r.Group("/api")
	api.Use(middlewares.AuthMiddleware(cfg.JWTSecret))
	controllers.RegisterRoutes(api)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Back-office sync service starting on %s", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Printf("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
