package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"live-quiz-engine/internal/app"
	"live-quiz-engine/internal/auth"
	"live-quiz-engine/internal/config"
	"live-quiz-engine/internal/domain"
	"live-quiz-engine/internal/infra/memory"
	"live-quiz-engine/internal/infra/postgres"
	"live-quiz-engine/internal/infra/rabbit"
	redisinfra "live-quiz-engine/internal/infra/redis"
	transport "live-quiz-engine/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz engine",
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
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
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

	identity, err := newIdentityProvider(cfg)
	if err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
	}

	var notifier app.Notifier
	if cfg.RabbitMQ.URL != "" {
		publisher, err := rabbit.Dial(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			return err
		}
		defer publisher.Close()
		notifier = publisher
	}

	// Content store: Postgres when configured, the built-in catalog otherwise.
	var loader memory.QuizLoader = memory.Catalog(sampleQuizzes())
	var results app.ResultStore
	if pool != nil {
		loader = postgres.NewQuizStore(pool)
		results = postgres.NewResultStore(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizzes app.QuizRepository
	var sessions app.SessionRepository
	var redisSessions *redisinfra.SessionStore
	if redisClient != nil {
		quizzes = redisinfra.NewQuizCache(redisClient, loader, quizTTL, logger)
		redisSessions = redisinfra.NewSessionStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute), logger)
		sessions = redisSessions
		if results == nil {
			results = redisinfra.NewResultStore(redisClient, config.TTLDuration(cfg.Redis.ResultsTTL, 7*24*time.Hour))
		}
	} else {
		quizzes = memory.NewQuizCache(loader, quizTTL, nil)
		sessions = memory.NewSessionStore()
		if results == nil {
			results = memory.NewResultStore()
		}
	}

	opts := []app.Option{app.WithLogger(logger), app.WithConfig(engineConfig(cfg))}
	if notifier != nil {
		opts = append(opts, app.WithNotifier(notifier))
	}
	registry := app.NewRegistry(sessions, quizzes, results, opts...)
	handler := transport.NewHandler(registry, identity, gatewayConfig(cfg), logger)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting quiz engine", "port", finalPort, "redis", redisClient != nil, "postgres", pool != nil, "rabbitmq", notifier != nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if redisSessions != nil {
		g.Go(func() error { return redisSessions.KeepAlive(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down quiz engine")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		if cerr := registry.Close(shutdownCtx); cerr != nil {
			logger.Warn("sessions did not stop cleanly", "error", cerr)
		}
		return err
	})
	return g.Wait()
}

func newIdentityProvider(cfg config.Config) (*auth.JWT, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret (or JWT_SECRET) is required")
	}
	var opts []auth.Option
	if cfg.Auth.Issuer != "" {
		opts = append(opts, auth.WithIssuer(cfg.Auth.Issuer))
	}
	if leeway := config.TTLDuration(cfg.Auth.Leeway, 0); leeway > 0 {
		opts = append(opts, auth.WithLeeway(leeway))
	}
	return auth.NewJWT(cfg.Auth.JWTSecret, opts...)
}

// sampleQuizzes is the built-in catalog used when no Postgres content store is configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:               "quiz-1",
			Title:            "Warm-up",
			TimeLimitSeconds: 20,
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4"},
						{ID: "o3", Text: "5"},
					},
					Answer: "o2",
				},
				{
					ID:     "q2",
					Prompt: "Which planet is known as the red planet?",
					Options: []domain.Option{
						{ID: "o1", Text: "Venus"},
						{ID: "o2", Text: "Jupiter"},
						{ID: "o3", Text: "Mars"},
					},
					Answer:           "o3",
					TimeLimitSeconds: 15,
				},
			},
		},
	}
}
