package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quizduel-service/internal/app"
	"quizduel-service/internal/config"
	"quizduel-service/internal/domain"
	"quizduel-service/internal/infra/memory"
	natsbus "quizduel-service/internal/infra/nats"
	"quizduel-service/internal/infra/postgres"
	redisstore "quizduel-service/internal/infra/redis"
	"quizduel-service/internal/session"
	transport "quizduel-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the duel server",
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
	setupLogging(cfg)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 2*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	registry := session.NewRegistry()
	deps := app.Dependencies{Presence: registry, Notifier: registry}

	var loader memory.QuestionLoader = memory.NewStaticQuestionLoader(sampleQuestions(), sampleQuestionSets())
	var users transport.UserDirectory
	if pool != nil {
		loader = postgres.NewQuestionLoader(pool)
		pgUsers := postgres.NewUserStore(pool)
		deps.Users, users = pgUsers, pgUsers
		deps.Invitations = postgres.NewInvitationStore(pool)
		deps.Results = postgres.NewResultStore(pool)
	} else {
		memUsers := memory.NewUserStore()
		deps.Users, users = memUsers, memUsers
		deps.Invitations = memory.NewInvitationStore()
		deps.Results = memory.NewResultStore()
		log.Warn().Msg("postgres not configured, duel state is kept in memory only")
	}

	questionTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	if redisClient != nil {
		deps.Questions = redisstore.NewQuestionRepository(redisClient, loader, questionTTL)
		deps.Rooms = redisstore.NewRoomStore(redisClient, redisTTL)
	} else {
		deps.Questions = memory.NewQuestionRepository(loader, questionTTL)
		deps.Rooms = memory.NewRoomStore()
	}

	if cfg.NATS.URL != "" {
		natsCfg := natsbus.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		if cfg.NATS.Stream != "" {
			natsCfg.StreamName = cfg.NATS.Stream
		}
		if cfg.NATS.SubjectPrefix != "" {
			natsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
		}
		publisher, err := natsbus.NewResultPublisher(ctx, natsCfg)
		if err != nil {
			return err
		}
		defer publisher.Close()
		deps.Publisher = publisher
	}

	opts, err := duelOptions(cfg.Duel)
	if err != nil {
		return err
	}
	service := app.NewDuelService(deps, opts)
	defer service.Close()

	sweepInterval := config.TTLDuration(cfg.Duel.SweepInterval, 15*time.Second)
	invitationTTL := config.TTLDuration(cfg.Duel.InvitationTTL, 2*time.Minute)
	sweeper, err := startInvitationSweeper(ctx, service, sweepInterval, invitationTTL)
	if err != nil {
		return err
	}
	defer func() { _ = sweeper.Shutdown() }()

	wsHandler := transport.NewWSHandler(service, registry, users, cfg.Server.AllowedOrigins)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	origins := cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedOrigins: origins,
		AllowedHeaders: []string{"*"},
	})

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           c.Handler(mux),
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", finalPort).Msg("starting duel service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Int("active_rooms", service.ActiveRooms()).Msg("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func duelOptions(d config.Duel) (app.Options, error) {
	opts := app.DefaultOptions()
	if d.DefaultQuestionCount > 0 {
		opts.DefaultQuestionCount = d.DefaultQuestionCount
	}
	if d.DefaultTimeLimitSeconds > 0 {
		opts.DefaultTimeLimitSeconds = d.DefaultTimeLimitSeconds
	}
	if d.DefaultDifficulty != "" {
		opts.DefaultDifficulty = d.DefaultDifficulty
	}
	if d.BasePoints > 0 {
		opts.Scoring.BasePoints = d.BasePoints
	}
	if d.PenaltyPerSecond > 0 {
		opts.Scoring.PenaltyPerSecond = d.PenaltyPerSecond
	}
	if d.KFactor > 0 {
		opts.KFactor = d.KFactor
	}
	if d.FinalizeRetries > 0 {
		opts.Retry.MaxRetries = d.FinalizeRetries
	}
	opts.Retry.InitialInterval = config.TTLDuration(d.RetryInitial, opts.Retry.InitialInterval)
	opts.Retry.MaxInterval = config.TTLDuration(d.RetryMax, opts.Retry.MaxInterval)

	policy, err := app.ParseForfeitPolicy(d.ForfeitPolicy)
	if err != nil {
		return opts, err
	}
	opts.Forfeit = policy
	return opts, nil
}

// sampleQuestions provides a minimal question pool for running without Postgres.
func sampleQuestions() []domain.Question {
	abc := func(a, b, c string) []domain.Option {
		return []domain.Option{{ID: "a", Text: a}, {ID: "b", Text: b}, {ID: "c", Text: c}}
	}
	return []domain.Question{
		{ID: "q1", Prompt: "What is 2 + 2?", Options: abc("3", "4", "5"), CorrectOptionID: "b", Topic: "math", Difficulty: "medium", Published: true},
		{ID: "q2", Prompt: "What is 9 x 7?", Options: abc("63", "56", "72"), CorrectOptionID: "a", Topic: "math", Difficulty: "medium", Published: true},
		{ID: "q3", Prompt: "Square root of 144?", Options: abc("14", "11", "12"), CorrectOptionID: "c", Topic: "math", Difficulty: "medium", Published: true},
		{ID: "q4", Prompt: "Capital of Japan?", Options: abc("Tokyo", "Osaka", "Kyoto"), CorrectOptionID: "a", Topic: "geography", Difficulty: "medium", Published: true},
		{ID: "q5", Prompt: "Largest ocean?", Options: abc("Atlantic", "Pacific", "Indian"), CorrectOptionID: "b", Topic: "geography", Difficulty: "medium", Published: true},
		{ID: "q6", Prompt: "15 / 3 = ?", Options: abc("3", "5", "6"), CorrectOptionID: "b", Topic: "math", Difficulty: "medium", Published: true},
		{ID: "q7", Prompt: "Longest river in Africa?", Options: abc("Nile", "Congo", "Niger"), CorrectOptionID: "a", Topic: "geography", Difficulty: "medium", Published: true},
		{ID: "q8", Prompt: "Smallest prime number?", Options: abc("0", "1", "2"), CorrectOptionID: "c", Topic: "math", Difficulty: "medium", Published: true},
		{ID: "q9", Prompt: "Capital of Canada?", Options: abc("Toronto", "Ottawa", "Montreal"), CorrectOptionID: "b", Topic: "geography", Difficulty: "medium", Published: true},
		{ID: "q10", Prompt: "What is 11 x 11?", Options: abc("121", "111", "112"), CorrectOptionID: "a", Topic: "math", Difficulty: "medium", Published: true},
		{ID: "q11", Prompt: "Which continent is Chile in?", Options: abc("Africa", "Asia", "South America"), CorrectOptionID: "c", Topic: "geography", Difficulty: "medium", Published: true},
	}
}

func sampleQuestionSets() map[string][]string {
	return map[string][]string{"warmup": {"q1", "q4", "q2"}}
}
