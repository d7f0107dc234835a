package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"weekly-exam-service/internal/app"
	"weekly-exam-service/internal/config"
	"weekly-exam-service/internal/domain"
	"weekly-exam-service/internal/infra/memory"
	pgstore "weekly-exam-service/internal/infra/postgres"
	"weekly-exam-service/internal/infra/rabbitmq"
	redisstore "weekly-exam-service/internal/infra/redis"
	transport "weekly-exam-service/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the weekly exam server",
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
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwtSecret (or JWT_SECRET) not configured")
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

	deps := app.Deps{
		LeaderboardLimit: cfg.Leaderboard.Limit,
	}

	var loader app.QuestionLoader
	if pool != nil {
		deps.Exams = pgstore.NewExamRepository(pool)
		deps.Progress = pgstore.NewProgressRepository(pool)
		deps.Submissions = pgstore.NewSubmissionRepository(pool)
		deps.Badges = pgstore.NewBadgeRepository(pool)
		deps.Users = pgstore.NewUserDirectory(pool)
		loader = pgstore.NewQuestionLoader(pool)
	} else {
		// Dev mode without Postgres: everything in memory with seeded content.
		store := memory.NewStore()
		seedDemoExam(ctx, store)
		deps.Exams = store
		deps.Progress = store
		deps.Submissions = store
		deps.Badges = store
		deps.Users = memory.NewUserDirectory(demoUsers())
		loader = memory.NewStaticQuestionLoader(demoQuestions())
	}

	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)
	if redisClient != nil {
		deps.Questions = redisstore.NewQuestionCache(redisClient, loader, questionTTL)
		lbTTL := config.TTLDuration(cfg.Leaderboard.CacheTTL, 15*time.Second)
		deps.LeaderboardCache = redisstore.NewLeaderboardCache(redisClient, lbTTL)
	} else {
		deps.Questions = memory.NewQuestionCache(loader, questionTTL)
	}

	if cfg.RabbitMQ.URL != "" {
		publisher, err := rabbitmq.NewPublisher(cfg.RabbitMQ.URL)
		if err != nil {
			return err
		}
		defer publisher.Close()
		deps.Events = publisher
	}

	service := app.NewExamService(deps)
	router := transport.NewRouter(service, []byte(cfg.Auth.JWTSecret))

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting weekly exam service on :%s", finalPort)
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedDemoExam installs a week-long exam over the demo questions; swap in
// Postgres-backed repositories for real content.
func seedDemoExam(ctx context.Context, store *memory.Store) {
	now := time.Now()
	_ = store.CreateExam(ctx, domain.Exam{
		ID:          "demo-exam",
		Title:       "Examen blanc de la semaine",
		Description: "QCM de préparation au concours",
		StartDate:   now,
		EndDate:     now.Add(7 * 24 * time.Hour),
		QuestionIDs: []int64{1, 2},
	})
}

func demoQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:   1,
			Text: "Quelle est la fréquence cardiaque normale chez l'adulte au repos ?",
			Choices: []domain.Choice{
				{ID: 10, Text: "60 à 100 battements par minute", IsCorrect: true},
				{ID: 11, Text: "40 à 60 battements par minute", IsCorrect: false},
				{ID: 12, Text: "100 à 140 battements par minute", IsCorrect: false},
			},
		},
		{
			ID:   2,
			Text: "Quels signes évoquent une hypoglycémie ? (plusieurs réponses)",
			Choices: []domain.Choice{
				{ID: 20, Text: "Sueurs", IsCorrect: true},
				{ID: 21, Text: "Tremblements", IsCorrect: true},
				{ID: 22, Text: "Polyurie", IsCorrect: false},
			},
		},
	}
}

func demoUsers() []domain.User {
	return []domain.User{
		{ID: "3e0170f1-1f14-4f11-9b63-3c78d7a1a6c8", Name: "Amina", Email: "amina@example.com", Specialty: "infirmier polyvalent"},
		{ID: "a7a0a2de-52cb-4c46-9f8b-bfb71edfd03a", Name: "Youssef", Email: "youssef@example.com", Specialty: "sage-femme"},
	}
}
