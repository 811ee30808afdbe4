package postgres

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/MrWong99/cockpit/pkg/store"
	"github.com/MrWong99/cockpit/pkg/types"
)

var fixedNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		mock.Close()
	})
	s := New(mock,
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { return "id-1" }),
	)
	return s, mock
}

func ptr[T any](v T) *T { return &v }

func TestMigrate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
}

func TestMigrate_Error(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))

	if err := s.Migrate(context.Background()); err == nil {
		t.Fatal("Migrate: want error")
	}
}

func TestPing(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("down"))

	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if err := s.Ping(context.Background()); err == nil {
		t.Error("Ping: want error")
	}
}

func TestQuestions(t *testing.T) {
	s, mock := newMockStore(t)
	answeredAt := fixedNow.Add(-time.Hour)
	rows := pgxmock.NewRows([]string{"id", "category", "text", "priority", "answered", "answer", "answered_by", "answered_at", "mentioned_users"}).
		AddRow("q1", "processo", "Quanti giorni dura il processo?", "high", true, ptr("45 giorni"), ptr("Marco"), &answeredAt, []string{"u2"}).
		AddRow("q2", "tool", "Quale CRM usate?", "medium", false, (*string)(nil), (*string)(nil), (*time.Time)(nil), []string(nil))
	mock.ExpectQuery("SELECT id, category, text, priority").WillReturnRows(rows)

	qs, err := s.Questions(context.Background())
	if err != nil {
		t.Fatalf("Questions: %v", err)
	}
	if len(qs) != 2 {
		t.Fatalf("got %d questions, want 2", len(qs))
	}
	q1 := qs[0]
	if !q1.Answered || q1.Answer != "45 giorni" || q1.AnsweredBy != "Marco" || q1.Priority != types.PriorityHigh {
		t.Errorf("q1 = %+v", q1)
	}
	if q1.AnsweredAt == nil || !q1.AnsweredAt.Equal(answeredAt) {
		t.Errorf("q1.AnsweredAt = %v, want %v", q1.AnsweredAt, answeredAt)
	}
	if !slices.Equal(q1.MentionedUsers, []string{"u2"}) {
		t.Errorf("q1.MentionedUsers = %v", q1.MentionedUsers)
	}
	q2 := qs[1]
	if q2.Answered || q2.Answer != "" || q2.AnsweredAt != nil {
		t.Errorf("q2 = %+v, want unanswered", q2)
	}
}

func TestUpdateAnswer(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("UPDATE discovery_questions").
		WithArgs("q1", true, ptr("20 progetti"), ptr("Marco (STT)"), &fixedNow, []string{"u2"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateAnswer(context.Background(), "q1", types.AnswerPatch{
		Answered:       true,
		Answer:         "20 progetti",
		AnsweredBy:     "Marco (STT)",
		AnsweredAt:     fixedNow,
		MentionedUsers: []string{"u2"},
	})
	if err != nil {
		t.Fatalf("UpdateAnswer: %v", err)
	}
}

func TestUpdateAnswer_ResetNullsColumns(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("UPDATE discovery_questions").
		WithArgs("q1", false, (*string)(nil), (*string)(nil), (*time.Time)(nil), []string(nil)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := s.UpdateAnswer(context.Background(), "q1", types.AnswerPatch{Answer: "ignored"}); err != nil {
		t.Fatalf("UpdateAnswer: %v", err)
	}
}

func TestUpdateAnswer_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("UPDATE discovery_questions").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateAnswer(context.Background(), "missing", types.AnswerPatch{Answered: true, Answer: "x", AnsweredAt: fixedNow})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestInsertHistory(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO answer_history").
		WithArgs("id-1", "q1", "45 giorni", "Marco", []string{"u2"}, "stt", fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	e, err := s.InsertHistory(context.Background(), types.AnswerHistoryEntry{
		QuestionID:     "q1",
		Answer:         "45 giorni",
		AnsweredBy:     "Marco",
		MentionedUsers: []string{"u2"},
		Source:         types.SourceSTT,
	})
	if err != nil {
		t.Fatalf("InsertHistory: %v", err)
	}
	if e.ID != "id-1" || !e.CreatedAt.Equal(fixedNow) {
		t.Errorf("entry = %+v, want assigned id and timestamp", e)
	}
}

func TestInsertHistory_InvalidSource(t *testing.T) {
	s, _ := newMockStore(t)
	if _, err := s.InsertHistory(context.Background(), types.AnswerHistoryEntry{QuestionID: "q1", Source: "voice"}); err == nil {
		t.Fatal("InsertHistory: want error for invalid source")
	}
}

func TestHistory(t *testing.T) {
	s, mock := newMockStore(t)
	rows := pgxmock.NewRows([]string{"id", "question_id", "answer", "answered_by", "mentioned_users", "source", "created_at"}).
		AddRow("h2", "q1", "20 progetti", "Marco (STT)", []string(nil), "stt_correction", fixedNow).
		AddRow("h1", "q1", "10 progetti", "Marco", []string{"u2"}, "stt", fixedNow.Add(-time.Minute))
	mock.ExpectQuery("FROM\\s+answer_history").WillReturnRows(rows)

	hist, err := s.History(context.Background())
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 || hist[0].Source != types.SourceSTTCorrection || hist[1].Source != types.SourceSTT {
		t.Errorf("History = %+v", hist)
	}
}

func TestUsers(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id, name, role FROM users ORDER BY name").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "role"}).
			AddRow("u2", "Giulia Bianchi", "team_member").
			AddRow("u1", "Marco Rossi", "owner"))

	users, err := s.Users(context.Background())
	if err != nil {
		t.Fatalf("Users: %v", err)
	}
	if len(users) != 2 || users[1].Role != types.RoleOwner {
		t.Errorf("Users = %+v", users)
	}
}

func TestUser_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("FROM users WHERE id").WithArgs("nobody").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "role"}))

	if _, err := s.User(context.Background(), "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO stt_sessions").
		WithArgs("id-1", "p1", "u1", fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO stt_extractions").
		WithArgs("id-1", "ttd_current", "45", "high", "kpi", ptr("di 45 giorni")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE stt_sessions").
		WithArgs("id-1", fixedNow, 3, 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ctx := context.Background()
	rec, err := s.CreateSession(ctx, types.SessionRecord{ProjectID: "p1", StartedBy: "u1"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if rec.ID != "id-1" {
		t.Errorf("session id = %q, want id-1", rec.ID)
	}
	if err := s.InsertExtraction(ctx, rec.ID, types.Extraction{
		Field: types.FieldTTDCurrent, Value: "45", Confidence: types.ConfidenceHigh,
		Category: types.CategoryKPI, Quote: "di 45 giorni",
	}); err != nil {
		t.Fatalf("InsertExtraction: %v", err)
	}
	if err := s.CloseSession(ctx, rec.ID, types.SessionSummary{EndedAt: fixedNow, TranscriptCount: 3, ExtractionCount: 1}); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
}

func TestCloseSession_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("UPDATE stt_sessions").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := s.CloseSession(context.Background(), "gone", types.SessionSummary{}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestProject_FirstWhenIDEmpty(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("FROM projects ORDER BY id LIMIT 1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "ttd_current", "target_projects_month", "budget_total"}).
			AddRow("p1", "Espansione", ptr(60), (*int)(nil), (*int)(nil)))

	p, err := s.Project(context.Background(), "")
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if p.ID != "p1" || p.TTDCurrent == nil || *p.TTDCurrent != 60 || p.BudgetTotal != nil {
		t.Errorf("Project = %+v", p)
	}
}

func TestUpdateProject(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("UPDATE projects").
		WithArgs("p1", ptr(45), (*int)(nil), (*int)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "ttd_current", "target_projects_month", "budget_total"}).
			AddRow("p1", "Espansione", ptr(45), ptr(10), (*int)(nil)))

	p, err := s.UpdateProject(context.Background(), "p1", types.ProjectPatch{TTDCurrent: ptr(45)})
	if err != nil {
		t.Fatalf("UpdateProject: %v", err)
	}
	if *p.TTDCurrent != 45 || *p.TargetProjectsMonth != 10 {
		t.Errorf("UpdateProject = %+v", p)
	}
}

func TestUpdateProject_EmptyID(t *testing.T) {
	s, _ := newMockStore(t)
	if _, err := s.UpdateProject(context.Background(), "", types.ProjectPatch{}); err == nil {
		t.Fatal("UpdateProject: want error for empty id")
	}
}

func TestInsertDecision(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO decisions").
		WithArgs("id-1", "project_update", "Aggiornamento progetto", "Modificati: ttd_current",
			"Aggiornamento da discovery", "Marco",
			[]byte(`{"id":"p1","name":""}`), []byte(`{"id":"p1","name":"","ttd_current":45}`), fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	d, err := s.InsertDecision(context.Background(), types.Decision{
		Type:          "project_update",
		Title:         "Aggiornamento progetto",
		Description:   "Modificati: ttd_current",
		Reasoning:     "Aggiornamento da discovery",
		MadeBy:        "Marco",
		PreviousState: &types.Project{ID: "p1"},
		NewState:      &types.Project{ID: "p1", TTDCurrent: ptr(45)},
	})
	if err != nil {
		t.Fatalf("InsertDecision: %v", err)
	}
	if d.ID != "id-1" {
		t.Errorf("decision id = %q", d.ID)
	}
}
