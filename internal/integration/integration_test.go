package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"live-quiz-engine/internal/app"
	"live-quiz-engine/internal/clock"
	"live-quiz-engine/internal/domain"
	"live-quiz-engine/internal/infra/postgres"
	pgmigrations "live-quiz-engine/internal/infra/postgres/migrations"
	infraredis "live-quiz-engine/internal/infra/redis"
)

var epoch = time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)

type member struct {
	mu       sync.Mutex
	messages []app.Message
}

func (m *member) Deliver(msg app.Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return true
}

func (m *member) Close(app.CloseReason) {}

func TestSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	require.NoError(t, err)
	defer pool.Close()

	quizzes := postgres.NewQuizStore(pool)
	require.NoError(t, quizzes.SaveQuiz(ctx, sampleQuiz()))
	results := postgres.NewResultStore(pool)

	redisClient, err := redisClientFromURL(redisURL)
	require.NoError(t, err)
	defer redisClient.Close()

	clk := clock.Fake(epoch)
	cfg := app.DefaultEngineConfig()
	cfg.Results.InitialInterval = 10 * time.Millisecond
	registry := app.NewRegistry(
		infraredis.NewSessionStore(redisClient, time.Minute, nil),
		infraredis.NewQuizCache(redisClient, quizzes, 5*time.Minute, nil),
		results,
		app.WithClock(clk),
		app.WithConfig(cfg),
	)
	defer func() {
		closeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		_ = registry.Close(closeCtx)
	}()

	host := domain.Identity{UserID: "host", Role: domain.RoleHost}
	session, err := registry.CreateSession(ctx, "quiz-1", host)
	require.NoError(t, err)

	holder, err := redisClient.Get(ctx, "quiz:lock:quiz-1").Result()
	require.NoError(t, err)
	require.Equal(t, session.ID(), holder)
	require.EqualValues(t, 1, redisClient.Exists(ctx, "quiz:quiz-1:definition").Val())

	require.NoError(t, session.Join(ctx, domain.Identity{UserID: "u1"}, "Alice", &member{}))
	require.NoError(t, session.Join(ctx, domain.Identity{UserID: "u2"}, "Bob", &member{}))
	require.NoError(t, session.Command(ctx, "host", app.CommandStart))

	clk.Advance(2 * time.Second)
	res, err := session.Submit(ctx, "u2", "q1", "o2")
	require.NoError(t, err)
	require.True(t, res.Correct)
	_, err = session.Submit(ctx, "u1", "q1", "o1")
	require.NoError(t, err)

	// Both answered, so the question closed early; next ends the one-question quiz.
	require.NoError(t, session.Command(ctx, "host", app.CommandNext))

	require.Eventually(t, func() bool {
		rows, err := results.Results(ctx, session.ID())
		return err == nil && len(rows) == 2
	}, 10*time.Second, 50*time.Millisecond)

	rows, err := results.Results(ctx, session.ID())
	require.NoError(t, err)
	byUser := map[string]domain.ParticipantResult{}
	for _, row := range rows {
		byUser[row.UserID] = row
	}
	require.Equal(t, 1, byUser["u2"].Rank)
	require.Equal(t, res.Awarded, byUser["u2"].Score)
	require.Equal(t, 2, byUser["u1"].Rank)
	require.Zero(t, byUser["u1"].Score)

	// Replaying the write after a timed-out attempt leaves one row per participant.
	require.NoError(t, results.RecordAttemptResult(ctx, domain.AttemptResult{
		SessionID: session.ID(),
		QuizID:    "quiz-1",
		Participants: []domain.ParticipantResult{
			{UserID: "u1", Score: 999, Rank: 1},
		},
	}))
	rows, err = results.Results(ctx, session.ID())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.NoError(t, registry.TerminateSession(ctx, session.ID()))
	require.EqualValues(t, 0, redisClient.Exists(ctx, "quiz:lock:quiz-1").Val())
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateSchema(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:               "quiz-1",
		Title:            "Arithmetic",
		TimeLimitSeconds: 10,
		Questions: []domain.Question{
			{
				ID:      "q1",
				Prompt:  "What is 2 + 2?",
				Options: []domain.Option{{ID: "o1", Text: "3"}, {ID: "o2", Text: "4"}, {ID: "o3", Text: "5"}},
				Answer:  "o2",
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
