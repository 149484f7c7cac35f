package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"trivia-stats-service/internal/app"
	"trivia-stats-service/internal/config"
	"trivia-stats-service/internal/infra/memory"
	infrapg "trivia-stats-service/internal/infra/postgres"
	infraredis "trivia-stats-service/internal/infra/redis"
	"trivia-stats-service/internal/scheduler"
	transport "trivia-stats-service/internal/transport/http"
	"trivia-stats-service/internal/trivia"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia stats server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	triviaBase := cfg.Trivia.BaseURL
	if triviaBase == "" {
		triviaBase = "https://opentdb.com"
	}
	triviaClient := trivia.NewClient(triviaBase, config.Duration(cfg.Trivia.Timeout, 10*time.Second))

	service := app.NewStatsService(store)
	hub := transport.NewHub()
	sched := scheduler.New(triviaClient, hub)
	wsHandler := transport.NewWSHandler(service, sched, hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting trivia stats service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	sched.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newStore picks the chat-stats backend: Postgres when configured, then Redis,
// otherwise the in-process store.
func newStore(ctx context.Context, cfg config.Config) (app.StatsRepository, func(), error) {
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, err
		}
		return infrapg.NewStatsStore(pool), pool.Close, nil
	}
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return infraredis.NewStatsStore(client), func() { _ = client.Close() }, nil
	}
	return memory.NewStatsStore(), func() {}, nil
}
