package cli

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"

	"arena-quiz-service/internal/app"
	"arena-quiz-service/internal/config"
	"arena-quiz-service/internal/domain"
	"arena-quiz-service/internal/infra/memory"
	pginfra "arena-quiz-service/internal/infra/postgres"
	redisinfra "arena-quiz-service/internal/infra/redis"
	transport "arena-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz room server",
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

	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
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

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.BankLoader = memory.NewStaticBankLoader(sampleBanks())
	if pool != nil {
		loader = pginfra.NewBankLoader(pool)
	}

	bankTTL := config.Duration(cfg.Quiz.BankTTL, 10*time.Minute)
	memSource := memory.NewQuestionSource(loader, bankTTL)

	var source app.QuestionSource = memSource
	if redisClient != nil {
		redisTTL := config.Duration(cfg.Redis.TTL, 10*time.Minute)
		source = redisinfra.NewQuestionSource(redisClient, memSource, loader, redisTTL)
	}

	var sink app.AttemptSink
	if cfg.Postgres.URL != "" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		bunDB := bun.NewDB(sqldb, pgdialect.New())
		defer bunDB.Close()
		sink = pginfra.NewAttemptStore(bunDB)
	}

	registry := app.NewRegistry()
	service := app.NewRoomService(registry, source, sink, log)
	service.SetQuestionsPerSet(cfg.Quiz.QuestionsPerSet)

	verifier := transport.NewTokenVerifier(cfg.Auth.JWTSecret)
	gateway := transport.NewGateway(service, verifier, log)
	gateway.SetGraceDelay(config.Duration(cfg.Quiz.GraceDelay, transport.DefaultGraceDelay))
	rest := transport.NewRestHandler(service, log)
	router := transport.NewRouter(rest, gateway)

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	go runCleanup(cleanupCtx, service, cfg, log)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting quiz room server", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// runCleanup periodically reclaims empty rooms and finished rooms past the
// retention window. Rooms stuck in Waiting are left alone.
func runCleanup(ctx context.Context, service *app.RoomService, cfg config.Config, log *zap.Logger) {
	interval := config.Duration(cfg.Rooms.CleanupInterval, 10*time.Minute)
	retention := config.Duration(cfg.Rooms.Retention, app.DefaultRetention)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			service.CleanupEmptyRooms()
			service.CleanupStaleFinishedRooms(retention)
		}
	}
}

// sampleBanks provides a minimal question bank for running without Postgres;
// production deployments load banks from the question_banks table.
func sampleBanks() map[string]domain.QuestionBank {
	return map[string]domain.QuestionBank{
		"aptitude": {
			Topic:       "aptitude",
			Name:        "Aptitude",
			Description: "Quantitative and logical reasoning questions",
			Difficulties: map[string][]domain.Question{
				"easy": {
					{
						ID:            "apt-1",
						Prompt:        "What comes next in the sequence: 2, 4, 8, 16, ___?",
						Options:       []string{"20", "24", "32", "28"},
						CorrectAnswer: "32",
						Explanation:   "Each number is multiplied by 2.",
					},
					{
						ID:            "apt-2",
						Prompt:        "If 3x + 7 = 22, what is the value of x?",
						Options:       []string{"3", "4", "5", "6"},
						CorrectAnswer: "5",
						Explanation:   "3x = 15, therefore x = 5.",
					},
					{
						ID:            "apt-3",
						Prompt:        "A shopkeeper sells 20% more items this month than last month. If he sold 120 items last month, how many did he sell this month?",
						Options:       []string{"140", "144", "150", "160"},
						CorrectAnswer: "144",
						Explanation:   "120 + 24 = 144 items.",
					},
				},
				"medium": {
					{
						ID:            "apt-10",
						Prompt:        "If A is taller than B, and B is taller than C, then A is taller than C. This is an example of:",
						Options:       []string{"Transitive property", "Commutative property", "Associative property", "Distributive property"},
						CorrectAnswer: "Transitive property",
					},
				},
			},
			TimePerQuestion:   map[string]int{"easy": 30, "medium": 25},
			PointsPerQuestion: map[string]int{"easy": 10, "medium": 15},
		},
	}
}
