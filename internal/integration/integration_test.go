package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quizduel-service/internal/app"
	"quizduel-service/internal/domain"
	"quizduel-service/internal/infra/postgres"
	pgmigrations "quizduel-service/internal/infra/postgres/migrations"
	infraredis "quizduel-service/internal/infra/redis"
)

func TestDuelEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	users := postgres.NewUserStore(pool)
	for id, name := range map[string]string{"u1": "Alice", "u2": "Bob"} {
		if err := users.Upsert(ctx, id, name); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}
	results := postgres.NewResultStore(pool)
	invitations := postgres.NewInvitationStore(pool)
	rooms := infraredis.NewRoomStore(redisClient, time.Hour)
	notes := &inbox{}

	service := app.NewDuelService(app.Dependencies{
		Questions:   infraredis.NewQuestionRepository(redisClient, postgres.NewQuestionLoader(pool), 5*time.Minute),
		Users:       users,
		Invitations: invitations,
		Results:     results,
		Rooms:       rooms,
		Presence:    alwaysOnline{},
		Notifier:    notes,
	}, app.DefaultOptions())
	defer service.Close()

	inv, err := service.CreateInvitation(ctx, "u1", "u2", "set-1", domain.DuelSettings{QuestionCount: 2, PerQuestionTimeLimitSeconds: 30})
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	stored, err := invitations.Get(ctx, inv.ID)
	if err != nil || stored.Status != domain.InvitationPending || stored.Settings.QuestionCount != 2 {
		t.Fatalf("expected pending invitation in postgres, got %+v (%v)", stored, err)
	}

	room, err := service.AcceptInvitation(ctx, inv.ID, "u2")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if roomID, ok, _ := rooms.ActiveRoomOf(ctx, "u1"); !ok || roomID != room.ID {
		t.Fatalf("expected redis marker for u1")
	}

	answers := []struct{ user, question, option string }{
		{"u1", "q1", "b"}, {"u2", "q1", "a"},
		{"u1", "q2", "a"}, {"u2", "q2", "a"},
	}
	for _, a := range answers {
		if _, err := service.SubmitAnswer(ctx, room.ID, a.user, domain.AnswerSubmission{QuestionID: a.question, SelectedOptionID: a.option, ClientLatencyMs: 1000}); err != nil {
			t.Fatalf("%s answering %s: %v", a.user, a.question, err)
		}
	}

	result, err := results.Result(ctx, room.ID)
	if err != nil {
		t.Fatalf("load result: %v", err)
	}
	if result.WinnerID != "u1" || result.Status != domain.RoomCompleted {
		t.Fatalf("expected u1 to win, got %+v", result)
	}
	alice, _ := users.GetRatingSnapshot(ctx, "u1")
	bob, _ := users.GetRatingSnapshot(ctx, "u2")
	if alice.Rating != 1216 || bob.Rating != 1184 {
		t.Fatalf("expected ratings 1216/1184, got %d/%d", alice.Rating, bob.Rating)
	}

	// Replaying the rating write for the same duel must not apply it again.
	if err := users.ApplyRatingDeltas(ctx, room.ID, []domain.RatingChange{{UserID: "u1", Delta: 16}, {UserID: "u2", Delta: -16}}); err != nil {
		t.Fatalf("replay ratings: %v", err)
	}
	alice, _ = users.GetRatingSnapshot(ctx, "u1")
	if alice.Rating != 1216 {
		t.Fatalf("rating applied twice: %d", alice.Rating)
	}
	if _, ok, _ := rooms.ActiveRoomOf(ctx, "u1"); ok {
		t.Fatalf("expected redis marker cleared after completion")
	}
}

type alwaysOnline struct{}

func (alwaysOnline) IsOnline(string) bool { return true }

type inbox struct{}

func (*inbox) Notify(string, domain.Message) {}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "duel", "POSTGRES_PASSWORD": "duelpass", "POSTGRES_DB": "dueldb"},
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
	dsn := fmt.Sprintf("postgres://duel:duelpass@%s:%s/dueldb?sslmode=disable", host, port.Port())
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

func seedSchema(t *testing.T, ctx context.Context, dsn string) {
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

	for _, q := range sampleQuestions() {
		options, err := json.Marshal(q.Options)
		if err != nil {
			t.Fatalf("marshal options: %v", err)
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO questions (id, prompt, options, correct_option_id, difficulty, status) VALUES (?, ?, ?::jsonb, ?, ?, 'published')`,
			q.ID, q.Prompt, string(options), q.CorrectOptionID, q.Difficulty); err != nil {
			t.Fatalf("insert question: %v", err)
		}
	}
	for i, id := range []string{"q1", "q2"} {
		if _, err := db.ExecContext(ctx, `INSERT INTO question_set_items (set_id, question_id, position) VALUES ('set-1', ?, ?)`, id, i); err != nil {
			t.Fatalf("insert set item: %v", err)
		}
	}
}

func sampleQuestions() []domain.Question {
	options := []domain.Option{{ID: "a", Text: "3"}, {ID: "b", Text: "4"}}
	return []domain.Question{
		{ID: "q1", Prompt: "What is 2 + 2?", Options: options, CorrectOptionID: "b", Difficulty: "medium"},
		{ID: "q2", Prompt: "What is 1 + 2?", Options: options, CorrectOptionID: "a", Difficulty: "medium"},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
