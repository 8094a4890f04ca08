package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

func TestStart_AvailabilityWindow(t *testing.T) {
	f := newFixture(t)
	from, to := *f.exam.AvailableFrom, *f.exam.AvailableTo

	tests := []struct {
		name string
		now  time.Time
		want error
	}{
		{"before window", from.Add(-time.Second), ErrExamNotYetAvailable},
		{"exactly at open", from, nil},
		{"inside window", from.Add(time.Hour), nil},
		{"exactly at close", to, nil},
		{"after window", to.Add(time.Second), ErrExamWindowClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.clock.Set(tt.now)
			res, err := f.sessions.Start(context.Background(), f.student.ID)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if err == nil && !res.EndsAt.Equal(tt.now.Add(time.Hour)) {
				t.Fatalf("ends_at = %v, want now+60m", res.EndsAt)
			}
		})
	}
}

func TestStart_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("inactive exam", func(t *testing.T) {
		f := newFixture(t)
		_ = f.store.SetExamActive(ctx, f.exam.ID, false)
		if _, err := f.sessions.Start(ctx, f.student.ID); !errors.Is(err, ErrExamNotAvailable) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("inactive account", func(t *testing.T) {
		f := newFixture(t)
		_ = f.store.SetAccountActive(ctx, f.student.ID, false)
		if _, err := f.sessions.Start(ctx, f.student.ID); !errors.Is(err, ErrAccountInactive) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("no assignment", func(t *testing.T) {
		f := newFixture(t)
		a := &model.Account{Name: "Budi", Email: "budi@example.com", Role: model.RoleStudent, IsActive: true}
		_ = f.store.CreateAccount(ctx, a)
		if _, err := f.sessions.Start(ctx, a.ID); !errors.Is(err, ErrNoExamAssigned) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("unknown exam", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.sessions.StartExam(ctx, f.student.ID, uuid.New()); !errors.Is(err, ErrExamNotFound) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("already submitted", func(t *testing.T) {
		f := newFixture(t)
		started := f.start(t)
		if _, err := f.submission.Submit(ctx, started.SessionID, nil, model.ReasonManual); err != nil {
			t.Fatal(err)
		}
		if _, err := f.sessions.Start(ctx, f.student.ID); !errors.Is(err, ErrAlreadySubmitted) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("submission in flight", func(t *testing.T) {
		f := newFixture(t)
		started := f.start(t)
		now := f.clock.Now()
		_, _ = f.store.Claim(ctx, started.SessionID, now, now.Add(time.Minute))
		if _, err := f.sessions.Start(ctx, f.student.ID); !errors.Is(err, ErrSubmissionInProgress) {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestStart_RestartDiscardsUnsubmittedAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.start(t)
	if err := f.sessions.SaveDraftAnswer(ctx, f.student.ID, f.questions[0].ID, "A"); err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(5 * time.Minute)
	second := f.start(t)

	if second.SessionID == first.SessionID {
		t.Fatal("restart reused the old session")
	}
	if _, err := f.store.GetSession(ctx, first.SessionID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("old session still present: %v", err)
	}
	if s := f.session(t, second.SessionID); len(s.DraftAnswers) != 0 || s.State != model.SessionStateInProgress {
		t.Fatalf("new session = %s with drafts %v", s.State, s.DraftAnswers)
	}
	if !second.EndsAt.Equal(f.clock.Now().Add(time.Hour)) {
		t.Fatal("restart did not reset the timer")
	}
}

func TestStart_RestartAfterLapsedClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.start(t)
	now := f.clock.Now()
	_, _ = f.store.Claim(ctx, first.SessionID, now, now.Add(time.Second))
	f.clock.Advance(time.Minute)

	second, err := f.sessions.Start(ctx, f.student.ID)
	if err != nil {
		t.Fatalf("Start after lapsed claim: %v", err)
	}
	if second.SessionID == first.SessionID {
		t.Fatal("expected a fresh session")
	}
}

func TestSaveDraftAnswer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.sessions.SaveDraftAnswer(ctx, f.student.ID, f.questions[0].ID, "A"); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("before start: err = %v", err)
	}

	started := f.start(t)
	if err := f.sessions.SaveDraftAnswer(ctx, f.student.ID, uuid.New(), "A"); !errors.Is(err, ErrQuestionNotInExam) {
		t.Fatalf("foreign question: err = %v", err)
	}
	if err := f.sessions.SaveDraftAnswer(ctx, f.student.ID, f.questions[2].ID, "C"); err != nil {
		t.Fatal(err)
	}
	if err := f.sessions.SaveDraftAnswer(ctx, f.student.ID, f.questions[2].ID, "tiga"); err != nil {
		t.Fatal(err)
	}
	if got := f.session(t, started.SessionID).DraftAnswers[f.questions[2].ID.String()]; got != "tiga" {
		t.Fatalf("draft = %q, want last write", got)
	}

	now := f.clock.Now()
	_, _ = f.store.Claim(ctx, started.SessionID, now, now.Add(time.Minute))
	if err := f.sessions.SaveDraftAnswer(ctx, f.student.ID, f.questions[0].ID, "A"); !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("while scoring: err = %v", err)
	}
}

func TestTimeLeft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	started := f.start(t)

	f.clock.Advance(15 * time.Minute)
	left, err := f.sessions.TimeLeft(ctx, f.student.ID)
	if err != nil {
		t.Fatal(err)
	}
	if left.SecondsLeft != 45*60 || left.SessionID != started.SessionID {
		t.Fatalf("got %+v", left)
	}

	f.clock.Advance(2 * time.Hour)
	left, err = f.sessions.TimeLeft(ctx, f.student.ID)
	if err != nil {
		t.Fatal(err)
	}
	if left.SecondsLeft != 0 {
		t.Fatalf("seconds left = %d after expiry, want 0", left.SecondsLeft)
	}
}

func TestQuestions_HidesKeysInOrder(t *testing.T) {
	f := newFixture(t)

	paper, err := f.sessions.Questions(context.Background(), f.student.ID)
	if err != nil {
		t.Fatal(err)
	}
	if paper.ExamID != f.exam.ID || len(paper.Questions) != 4 {
		t.Fatalf("paper = %+v", paper)
	}
	for i, q := range paper.Questions {
		if q.ID != f.questions[i].ID || q.OrderNum != i+1 || q.OptionD != "empat" {
			t.Fatalf("question %d = %+v", i, q)
		}
	}
}

func TestReassign_AllowsRetake(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started := f.start(t)
	if _, err := f.submission.Submit(ctx, started.SessionID, nil, model.ReasonManual); err != nil {
		t.Fatal(err)
	}

	deleted, err := f.sessions.Reassign(ctx, f.student.ID, f.exam.ID)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}
	if _, err := f.sessions.Start(ctx, f.student.ID); err != nil {
		t.Fatalf("retake: %v", err)
	}

	if _, err := f.sessions.Reassign(ctx, uuid.New(), f.exam.ID); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("unknown student: err = %v", err)
	}
	if _, err := f.sessions.Reassign(ctx, f.student.ID, uuid.New()); !errors.Is(err, ErrExamNotFound) {
		t.Fatalf("unknown exam: err = %v", err)
	}
}

func TestListResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started := f.start(t)
	other := f.addStudent(t, "andi@example.com", true)
	if _, err := f.sessions.Start(ctx, other.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.submission.Submit(ctx, started.SessionID, f.answers("A"), model.ReasonManual); err != nil {
		t.Fatal(err)
	}

	rows, total, err := f.sessions.ListResults(ctx, f.exam.ID, 1, 50)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(rows) != 2 {
		t.Fatalf("total = %d rows = %d", total, len(rows))
	}
	for _, r := range rows {
		switch r.SessionID {
		case started.SessionID:
			if r.Score == nil || *r.Score != 4 {
				t.Fatalf("submitted row = %+v", r)
			}
		default:
			if r.Score != nil || r.State != model.SessionStateInProgress {
				t.Fatalf("live row = %+v", r)
			}
		}
	}

	if _, _, err := f.sessions.ListResults(ctx, uuid.New(), 1, 50); !errors.Is(err, ErrExamNotFound) {
		t.Fatalf("unknown exam: err = %v", err)
	}
}
