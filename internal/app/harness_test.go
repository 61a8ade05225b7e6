package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"quizduel-service/internal/app"
	"quizduel-service/internal/domain"
	"quizduel-service/internal/infra/memory"
)

// recorder stands in for the session registry: it answers presence and keeps
// every message pushed to each user.
type recorder struct {
	mu      sync.Mutex
	offline map[string]bool
	inbox   map[string][]domain.Message
}

func newRecorder() *recorder {
	return &recorder{offline: make(map[string]bool), inbox: make(map[string][]domain.Message)}
}

func (r *recorder) IsOnline(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.offline[userID]
}

func (r *recorder) setOffline(userID string) {
	r.mu.Lock()
	r.offline[userID] = true
	r.mu.Unlock()
}

func (r *recorder) Notify(userID string, msg domain.Message) {
	r.mu.Lock()
	r.inbox[userID] = append(r.inbox[userID], msg)
	r.mu.Unlock()
}

func (r *recorder) messages(userID, msgType string) []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Message
	for _, m := range r.inbox[userID] {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

func (r *recorder) types(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.inbox[userID]))
	for _, m := range r.inbox[userID] {
		out = append(out, m.Type)
	}
	return out
}

// waitFor polls until userID has received at least n messages of msgType.
func (r *recorder) waitFor(t *testing.T, userID, msgType string, n int) []domain.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := r.messages(userID, msgType); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %s messages for %s; got %v", n, msgType, userID, r.types(userID))
	return nil
}

type harness struct {
	svc     *app.DuelService
	clock   *clockwork.FakeClock
	notes   *recorder
	users   *memory.UserStore
	results app.ResultRepository
	stored  *memory.ResultStore
	invites *memory.InvitationStore
}

type harnessOption func(*app.Dependencies, *app.Options)

func withResults(results app.ResultRepository) harnessOption {
	return func(d *app.Dependencies, _ *app.Options) { d.Results = results }
}

func withForfeit(p app.ForfeitPolicy) harnessOption {
	return func(_ *app.Dependencies, o *app.Options) { o.Forfeit = p }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		clock:   clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)),
		notes:   newRecorder(),
		stored:  memory.NewResultStore(),
		invites: memory.NewInvitationStore(),
		users: memory.NewUserStore(
			domain.Player{ID: "u1", DisplayName: "Alice", Rating: 1200},
			domain.Player{ID: "u2", DisplayName: "Bob", Rating: 1200},
			domain.Player{ID: "u3", DisplayName: "Carol", Rating: 1200},
		),
	}
	loader := memory.NewStaticQuestionLoader(testQuestions(), map[string][]string{
		"set-1": {"q1", "q2", "q3"},
	})
	deps := app.Dependencies{
		Questions:   memory.NewQuestionRepository(loader, time.Minute),
		Users:       h.users,
		Invitations: h.invites,
		Results:     h.stored,
		Rooms:       memory.NewRoomStore(),
		Presence:    h.notes,
		Notifier:    h.notes,
		Clock:       h.clock,
	}
	options := app.DefaultOptions()
	options.Retry = app.RetryPolicy{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
	for _, opt := range opts {
		opt(&deps, &options)
	}
	h.results = deps.Results
	h.svc = app.NewDuelService(deps, options)
	t.Cleanup(h.svc.Close)
	return h
}

// startDuel invites u2 on behalf of u1 with the three-question set and a 10s limit.
func (h *harness) startDuel(t *testing.T) domain.RoomSnapshot {
	t.Helper()
	ctx := context.Background()
	inv, err := h.svc.CreateInvitation(ctx, "u1", "u2", "set-1", domain.DuelSettings{QuestionCount: 3, PerQuestionTimeLimitSeconds: 10})
	if err != nil {
		t.Fatalf("create invitation: %v", err)
	}
	snap, err := h.svc.AcceptInvitation(ctx, inv.ID, "u2")
	if err != nil {
		t.Fatalf("accept invitation: %v", err)
	}
	return snap
}

func (h *harness) answer(t *testing.T, roomID, userID, questionID, optionID string, latencyMs int64) domain.AnswerAckPayload {
	t.Helper()
	ack, err := h.svc.SubmitAnswer(context.Background(), roomID, userID, domain.AnswerSubmission{
		QuestionID:       questionID,
		SelectedOptionID: optionID,
		ClientLatencyMs:  latencyMs,
	})
	if err != nil {
		t.Fatalf("%s answering %s: %v", userID, questionID, err)
	}
	return ack
}

func (h *harness) rating(t *testing.T, userID string) int {
	t.Helper()
	p, err := h.users.GetRatingSnapshot(context.Background(), userID)
	if err != nil {
		t.Fatalf("rating snapshot: %v", err)
	}
	return p.Rating
}

func completedPayload(t *testing.T, msgs []domain.Message) domain.CompletedPayload {
	t.Helper()
	payload, ok := msgs[len(msgs)-1].Payload.(domain.CompletedPayload)
	if !ok {
		t.Fatalf("unexpected completed payload %T", msgs[len(msgs)-1].Payload)
	}
	return payload
}

func testQuestions() []domain.Question {
	options := []domain.Option{{ID: "a", Text: "A"}, {ID: "b", Text: "B"}, {ID: "c", Text: "C"}}
	return []domain.Question{
		{ID: "q1", Prompt: "First", Options: options, CorrectOptionID: "a", Difficulty: "medium", Published: true},
		{ID: "q2", Prompt: "Second", Options: options, CorrectOptionID: "b", Difficulty: "medium", Published: true},
		{ID: "q3", Prompt: "Third", Options: options, CorrectOptionID: "c", Difficulty: "medium", Published: true},
		{ID: "q4", Prompt: "Draft", Options: options, CorrectOptionID: "a", Difficulty: "medium", Published: false},
	}
}
