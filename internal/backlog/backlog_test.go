package backlog_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/cockpit/internal/backlog"
	storemock "github.com/MrWong99/cockpit/pkg/store/mock"
	"github.com/MrWong99/cockpit/pkg/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setup(t *testing.T) (*backlog.Service, *storemock.Store, *fakeClock) {
	t.Helper()
	st := storemock.New()
	clk := &fakeClock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	st.Now = clk.Now
	st.SeedQuestions(
		types.Question{ID: "q1", Text: "Quanti giorni dura il processo di vendita?"},
		types.Question{ID: "q2", Text: "Quale strumento CRM usate?"},
	)
	st.SeedUsers(
		types.User{ID: "u1", Name: "Marco Rossi", Role: types.RoleOwner},
		types.User{ID: "u2", Name: "Giulia Bianchi", Role: types.RoleTeamMember},
	)
	svc := backlog.New(st, backlog.WithClock(clk.Now))
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	st.Reset()
	return svc, st, clk
}

func TestAnswer_WritesHistoryBeforeUpdate(t *testing.T) {
	t.Parallel()
	svc, st, clk := setup(t)

	q, err := svc.Answer(context.Background(), "q2", "  Usiamo Hubspot, lo gestisce Giulia ", "Marco Rossi")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !q.Answered || q.Answer != "Usiamo Hubspot, lo gestisce Giulia" || q.AnsweredBy != "Marco Rossi" {
		t.Errorf("question = %+v", q)
	}
	if !slices.Equal(q.MentionedUsers, []string{"u2"}) {
		t.Errorf("MentionedUsers = %v, want [u2]", q.MentionedUsers)
	}

	var writes []string
	for _, m := range st.Methods() {
		if m == "InsertHistory" || m == "UpdateAnswer" {
			writes = append(writes, m)
		}
	}
	if !slices.Equal(writes, []string{"InsertHistory", "UpdateAnswer"}) {
		t.Errorf("write order = %v", writes)
	}

	hist := svc.QuestionHistory("q2")
	if len(hist) != 1 || hist[0].Source != types.SourceManual {
		t.Fatalf("QuestionHistory = %+v", hist)
	}
	last, ok := svc.LastAnswered()
	if !ok || last.QuestionID != "q2" || !last.At.Equal(clk.Now()) {
		t.Errorf("LastAnswered = %+v, %v", last, ok)
	}
}

func TestAnswer_Empty(t *testing.T) {
	t.Parallel()
	svc, st, _ := setup(t)

	if _, err := svc.Answer(context.Background(), "q1", "   ", "Marco"); !errors.Is(err, backlog.ErrEmptyAnswer) {
		t.Errorf("err = %v, want ErrEmptyAnswer", err)
	}
	if n := st.CallCount("InsertHistory"); n != 0 {
		t.Errorf("InsertHistory called %d times", n)
	}
}

func TestAnswer_UnknownQuestion(t *testing.T) {
	t.Parallel()
	svc, _, _ := setup(t)

	if _, err := svc.Answer(context.Background(), "nope", "qualcosa", "Marco"); !errors.Is(err, backlog.ErrUnknownQuestion) {
		t.Errorf("err = %v, want ErrUnknownQuestion", err)
	}
}

func TestUpdateAnswer_RequiresAnswered(t *testing.T) {
	t.Parallel()
	svc, _, _ := setup(t)
	ctx := context.Background()

	if _, err := svc.UpdateAnswer(ctx, "q1", "45 giorni", "Marco"); !errors.Is(err, backlog.ErrNotAnswered) {
		t.Fatalf("err = %v, want ErrNotAnswered", err)
	}
	if _, err := svc.Answer(ctx, "q1", "45 giorni", "Marco"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	q, err := svc.UpdateAnswer(ctx, "q1", "60 giorni", "Giulia")
	if err != nil {
		t.Fatalf("UpdateAnswer: %v", err)
	}
	if q.Answer != "60 giorni" || q.AnsweredBy != "Giulia" {
		t.Errorf("question = %+v", q)
	}
	if got := len(svc.QuestionHistory("q1")); got != 2 {
		t.Errorf("history entries = %d, want 2", got)
	}
}

func TestDeleteAnswer(t *testing.T) {
	t.Parallel()
	svc, st, _ := setup(t)
	ctx := context.Background()

	if _, err := svc.Answer(ctx, "q1", "45 giorni", "Marco"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	q, err := svc.DeleteAnswer(ctx, "q1", "Marco")
	if err != nil {
		t.Fatalf("DeleteAnswer: %v", err)
	}
	if q.Answered || q.Answer != "" || q.AnsweredAt != nil {
		t.Errorf("question = %+v, want reset", q)
	}
	hist := svc.QuestionHistory("q1")
	if len(hist) != 2 || hist[0].Answer != "" || hist[0].Source != types.SourceManual {
		t.Errorf("history = %+v, want reset entry first", hist)
	}
	if _, ok := svc.LastAnswered(); ok {
		t.Error("LastAnswered still set after deleting its answer")
	}

	stored, _ := st.Questions(ctx)
	if stored[0].Answered {
		t.Error("store still has q1 answered")
	}
	if _, err := svc.DeleteAnswer(ctx, "q1", "Marco"); !errors.Is(err, backlog.ErrNotAnswered) {
		t.Errorf("second delete err = %v, want ErrNotAnswered", err)
	}
}

func TestRecord_HistoryFailureAborts(t *testing.T) {
	t.Parallel()
	svc, st, _ := setup(t)
	st.InsertHistoryErr = errors.New("db down")

	if _, err := svc.Answer(context.Background(), "q1", "45 giorni", "Marco"); err == nil {
		t.Fatal("Answer: want error")
	}
	if n := st.CallCount("UpdateAnswer"); n != 0 {
		t.Errorf("UpdateAnswer called %d times after history failure", n)
	}
	q, _ := svc.Question("q1")
	if q.Answered {
		t.Error("question answered despite history failure")
	}
}

func TestRecord_UpdateFailureKeepsHistory(t *testing.T) {
	t.Parallel()
	svc, st, _ := setup(t)
	st.UpdateAnswerErr = errors.New("db down")

	if _, err := svc.Answer(context.Background(), "q1", "45 giorni", "Marco"); err == nil {
		t.Fatal("Answer: want error")
	}
	if got := len(svc.QuestionHistory("q1")); got != 1 {
		t.Errorf("history entries = %d, want 1", got)
	}
	q, _ := svc.Question("q1")
	if q.Answered {
		t.Error("question answered in memory despite update failure")
	}
	if _, ok := svc.LastAnswered(); ok {
		t.Error("LastAnswered set despite update failure")
	}
}

func TestCorrectionTarget_Window(t *testing.T) {
	t.Parallel()
	svc, _, clk := setup(t)
	ctx := context.Background()
	const window = 120 * time.Second

	if _, ok := svc.CorrectionTarget(clk.Now(), window); ok {
		t.Fatal("CorrectionTarget with no answer returned a question")
	}
	if _, err := svc.Answer(ctx, "q2", "Hubspot", "Marco"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	answeredAt := clk.Now()

	tests := []struct {
		elapsed time.Duration
		want    bool
	}{
		{30 * time.Second, true},
		{119999 * time.Millisecond, true},
		{120000 * time.Millisecond, false},
		{120001 * time.Millisecond, false},
	}
	for _, tc := range tests {
		q, ok := svc.CorrectionTarget(answeredAt.Add(tc.elapsed), window)
		if ok != tc.want {
			t.Errorf("elapsed %v: ok = %v, want %v", tc.elapsed, ok, tc.want)
		}
		if ok && q.ID != "q2" {
			t.Errorf("elapsed %v: question %q, want q2", tc.elapsed, q.ID)
		}
	}
}

func TestUserQueries(t *testing.T) {
	t.Parallel()
	svc, _, _ := setup(t)
	ctx := context.Background()

	if _, err := svc.Answer(ctx, "q1", "Ne parla Giulia, circa 45 giorni", "Marco"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if _, err := svc.Answer(ctx, "q2", "Hubspot", "Marco"); err != nil {
		t.Fatalf("Answer: %v", err)
	}

	qs := svc.QuestionsAboutUser("u2")
	if len(qs) != 1 || qs[0].ID != "q1" {
		t.Errorf("QuestionsAboutUser = %+v", qs)
	}
	hist := svc.HistoryForUser("u2")
	if len(hist) != 1 || hist[0].QuestionID != "q1" {
		t.Errorf("HistoryForUser = %+v", hist)
	}
	if got := svc.HistoryForUser("u1"); len(got) != 0 {
		t.Errorf("HistoryForUser(u1) = %+v, want none", got)
	}
}

func TestRoster_Cached(t *testing.T) {
	t.Parallel()
	svc, st, _ := setup(t)
	ctx := context.Background()

	for range 3 {
		users, err := svc.Roster(ctx)
		if err != nil {
			t.Fatalf("Roster: %v", err)
		}
		if len(users) != 2 {
			t.Fatalf("Roster returned %d users", len(users))
		}
	}
	if n := st.CallCount("Users"); n != 1 {
		t.Errorf("Users called %d times, want 1", n)
	}

	svc.InvalidateRoster()
	if _, err := svc.User(ctx, "u2"); err != nil {
		t.Fatalf("User: %v", err)
	}
	if n := st.CallCount("Users"); n != 2 {
		t.Errorf("Users called %d times after invalidate, want 2", n)
	}
}

func TestQuestions_Snapshot(t *testing.T) {
	t.Parallel()
	svc, _, _ := setup(t)

	qs := svc.Questions()
	qs[0].Answered = true
	if q, _ := svc.Question("q1"); q.Answered {
		t.Error("mutating the snapshot changed the backlog")
	}
}
