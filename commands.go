package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"backoffice-sync/config"
	"backoffice-sync/database"
	"backoffice-sync/rabbitmq"
	"backoffice-sync/utils"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func refreshCommand() *cobra.Command {
	var broadcast bool

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Pull customers, orders, products and shipments into the local cache",
		Long: `Pull the remote store into the local cache once.

With --broadcast the request is published to the refresh queue instead, so
every running service refreshes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			if broadcast {
				return broadcastCommand(cfg, "refresh")
			}

			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.backOffice.RefreshAll(cmd.Context()); err != nil {
				return fmt.Errorf("refresh failed: %w", err)
			}
			fmt.Printf("Refreshed: %d customers, %d products, %d shipments\n",
				len(a.backOffice.Customers()), len(a.backOffice.Products()), len(a.backOffice.Shipments()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&broadcast, "broadcast", false, "Publish the request to the refresh queue")
	return cmd
}

func syncOrdersCommand() *cobra.Command {
	var broadcast bool

	cmd := &cobra.Command{
		Use:   "sync-orders",
		Short: "Push every cached order to the remote store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			if broadcast {
				return broadcastCommand(cfg, "sync-orders")
			}

			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.backOffice.SyncOrders(cmd.Context())
			if perr := printJSON(res); perr != nil {
				return perr
			}
			if err != nil {
				return err
			}
			if res.Failed > 0 {
				return fmt.Errorf("%d orders failed to push", res.Failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&broadcast, "broadcast", false, "Publish the request to the refresh queue")
	return cmd
}

func broadcastCommand(cfg *config.Config, command string) error {
	if cfg.RabbitMQURL == "" {
		return fmt.Errorf("RABBITMQ_URL is not set")
	}
	rmq, err := rabbitmq.NewRabbitMQ(cfg)
	if err != nil {
		return fmt.Errorf("RabbitMQ initialization failed: %w", err)
	}
	defer rmq.Close()

	if err := rmq.SetupQueues(); err != nil {
		return fmt.Errorf("failed to setup RabbitMQ queues: %w", err)
	}
	if err := rmq.PublishRefresh(command); err != nil {
		return err
	}
	fmt.Printf("Published %q\n", command)
	return nil
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the remote tables if they do not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			if err := database.InitDB(cfg); err != nil {
				return fmt.Errorf("database initialization failed: %w", err)
			}
			defer database.CloseDB()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			if err := database.Migrate(ctx, database.DB); err != nil {
				return err
			}
			fmt.Println("Remote schema is up to date.")
			return nil
		},
	}
}

func outboxCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect or drain the queue of unpushed local changes",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print pending pushes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(config.LoadConfig())
			if err != nil {
				return err
			}
			defer a.Close()
			return printJSON(a.backOffice.Pending())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "drain",
		Short: "Attempt every pending push once",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(config.LoadConfig())
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.backOffice.PushPending(cmd.Context())
			if err := printJSON(res); err != nil {
				return err
			}
			if res.Failed > 0 {
				return fmt.Errorf("%d pushes failed", res.Failed)
			}
			return nil
		},
	})
	return cmd
}

func tokenCommand() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin API token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			if cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is not set")
			}
			token, err := utils.GenerateToken(subject, cfg.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "admin", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
