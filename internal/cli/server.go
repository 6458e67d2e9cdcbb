package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"quizlive-service/internal/app"
	"quizlive-service/internal/config"
	"quizlive-service/internal/domain"
	"quizlive-service/internal/infra/memory"
	pgstore "quizlive-service/internal/infra/postgres"
	redisstore "quizlive-service/internal/infra/redis"
	transport "quizlive-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz session server",
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

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil || cfg.Log.Level == "" {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

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

	var store app.SessionStore
	if redisClient != nil {
		store = redisstore.NewStore(redisClient)
	} else {
		store = memory.NewStore()
	}

	questionTTL := config.TTLDuration(cfg.Questions.CacheTTL, 10*time.Minute)
	var questions app.QuestionSource
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		loader := pgstore.NewQuestionLoader(pool)
		if redisClient != nil {
			questions = redisstore.NewQuestionCache(redisClient, loader, questionTTL)
		} else {
			questions = memory.NewQuestionCache(loader, questionTTL)
		}
	} else {
		questions = app.StoreQuestionSource{Store: store}
	}

	var timerStates app.TimerStateStore
	if redisClient != nil {
		timerStates = redisstore.NewTimerStateStore(redisClient, config.TTLDuration(cfg.Timer.StateTTL, time.Hour))
	} else {
		timerStates = memory.NewTimerStateStore()
	}

	collector := app.NewCollector(store, questions, logger)
	engine := app.NewEngine(store, questions, collector, logger)
	roster := app.NewRoster(store, logger)
	resolver := app.NewResolver(store)

	// Without Postgres there is no authored content, so seed one demo
	// session to make the service usable out of the box.
	if cfg.Postgres.URL == "" {
		author := app.NewAuthor(store, memory.NewStaticContentProvider(demoQuestions()), logger)
		session, err := author.CreateSession(ctx, app.AuthorRequest{Title: "Demo Quiz"})
		if err != nil {
			return err
		}
		logger.Info().Str("session", session.ID).Msg("demo session ready")
	}

	wsHandler := transport.NewWSHandler(resolver, roster, collector, engine, store, questions, clockwork.NewRealClock(), timerStates, logger)

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
		logger.Info().Str("port", finalPort).Msg("starting quiz session service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info().Msg("shutting down server")
	case <-ctx.Done():
		logger.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// demoQuestions backs the built-in content provider when no Postgres
// content store is configured.
func demoQuestions() []domain.Question {
	return []domain.Question{
		{
			Text:         "What is 2 + 2?",
			Options:      []string{"3", "4", "5", "22"},
			CorrectIndex: 1,
		},
		{
			Text:             "Which planet is known as the Red Planet?",
			Options:          []string{"Venus", "Jupiter", "Mars"},
			CorrectIndex:     2,
			TimeLimitSeconds: 20,
		},
	}
}
