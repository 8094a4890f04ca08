package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/locker"
	"github.com/stemsi/exstem-proctor/internal/model"
)

func TestSubmit_ScoresWithNegativeMarking(t *testing.T) {
	f := newFixture(t)
	started := f.start(t)

	res, err := f.submission.Submit(context.Background(), started.SessionID, f.answers("A", " b ", "D", ""), model.ReasonManual)
	if err != nil {
		t.Fatal(err)
	}

	if res.Score != 7 || res.TotalPossible != 16 || res.Percentage != 43.75 {
		t.Fatalf("score = %v/%v (%v%%), want 7/16 (43.75%%)", res.Score, res.TotalPossible, res.Percentage)
	}
	if res.Attempted != 3 || res.NotAttempted != 1 || res.Correct != 2 {
		t.Fatalf("counts = %+v", res)
	}
	if res.Reason != model.ReasonManual || !res.SubmittedAt.Equal(f.clock.Now()) {
		t.Fatalf("reason/submitted_at = %v/%v", res.Reason, res.SubmittedAt)
	}

	s := f.session(t, started.SessionID)
	if s.State != model.SessionStateSubmitted || len(s.Answers) != 4 {
		t.Fatalf("stored session = %s with %d answers", s.State, len(s.Answers))
	}
	if s.Answers[3].SelectedText != model.NotAttemptedText || s.Answers[3].CorrectText != "empat" {
		t.Fatalf("unattempted record = %+v", s.Answers[3])
	}
}

func TestSubmit_ClampsToZero(t *testing.T) {
	f := newFixture(t)
	started := f.start(t)

	res, err := f.submission.Submit(context.Background(), started.SessionID, f.answers("D", "D", "D", "A"), "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Score != 0 || res.Percentage != 0 || res.Attempted != 4 {
		t.Fatalf("got %+v, want a clamped zero score", res)
	}
	if res.Reason != model.ReasonManual {
		t.Fatalf("empty reason should default to manual, got %q", res.Reason)
	}
}

func TestSubmit_ExactlyOnceUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	started := f.start(t)

	reasons := []model.SubmissionReason{model.ReasonManual, model.ReasonTimerExpired, model.ReasonProctoringViolation}
	const callers = 30

	var wg sync.WaitGroup
	results := make([]*model.SubmissionResult, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Every caller sends different answers; only the winner's count.
			keys := []string{"A", "B", "C", "D"}
			ans := f.answers(keys[i%4], "B", "", "")
			results[i], errs[i] = f.submission.Submit(context.Background(), started.SessionID, ans, reasons[i%len(reasons)])
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	first := results[0]
	for i, r := range results[1:] {
		if *r != *first {
			t.Fatalf("caller %d saw %+v, caller 0 saw %+v", i+1, r, first)
		}
	}

	s := f.session(t, started.SessionID)
	if s.Score != first.Score || *s.SubmissionReason != first.Reason {
		t.Fatalf("stored outcome %v/%v differs from returned %v/%v", s.Score, *s.SubmissionReason, first.Score, first.Reason)
	}
	if n := f.queueLen(t, config.WorkerKey.SessionSubmittedQueue); n != 1 {
		t.Fatalf("submitted events = %d, want 1", n)
	}
	if f.locks.Len() != 0 {
		t.Fatalf("locks leaked: %d", f.locks.Len())
	}
}

func TestSubmit_ReplayReturnsStoredResult(t *testing.T) {
	f := newFixture(t)
	started := f.start(t)
	ctx := context.Background()

	first, err := f.submission.Submit(ctx, started.SessionID, f.answers("A", "B", "C", "D"), model.ReasonTimerExpired)
	if err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(time.Minute)
	again, err := f.submission.Submit(ctx, started.SessionID, f.answers("D", "D", "D", "D"), model.ReasonManual)
	if err != nil {
		t.Fatal(err)
	}
	if *again != *first {
		t.Fatalf("replay = %+v, want %+v", again, first)
	}
	if again.Score != 16 || again.Reason != model.ReasonTimerExpired {
		t.Fatalf("replay changed the outcome: %+v", again)
	}
}

func TestSubmit_NilAnswersScoresDrafts(t *testing.T) {
	f := newFixture(t)
	started := f.start(t)
	ctx := context.Background()

	if err := f.sessions.SaveDraftAnswer(ctx, f.student.ID, f.questions[0].ID, "a"); err != nil {
		t.Fatal(err)
	}
	if err := f.sessions.SaveDraftAnswer(ctx, f.student.ID, f.questions[1].ID, "satu"); err != nil {
		t.Fatal(err)
	}

	res, err := f.submission.Submit(ctx, started.SessionID, nil, model.ReasonManual)
	if err != nil {
		t.Fatal(err)
	}
	if res.Score != 3 || res.Attempted != 2 || res.Correct != 1 {
		t.Fatalf("got %+v, want draft-based score 3", res)
	}

	// An empty, non-nil map means "answered nothing".
	f2 := newFixture(t)
	started2 := f2.start(t)
	_ = f2.sessions.SaveDraftAnswer(ctx, f2.student.ID, f2.questions[0].ID, "A")
	res2, err := f2.submission.Submit(ctx, started2.SessionID, map[string]string{}, model.ReasonManual)
	if err != nil {
		t.Fatal(err)
	}
	if res2.Attempted != 0 || res2.Score != 0 {
		t.Fatalf("empty answers scored drafts: %+v", res2)
	}
}

func TestSubmit_LateSubmissionAccepted(t *testing.T) {
	f := newFixture(t)
	started := f.start(t)

	f.clock.Set(started.EndsAt.Add(10 * time.Minute))
	res, err := f.submission.Submit(context.Background(), started.SessionID, f.answers("A"), model.ReasonManual)
	if err != nil {
		t.Fatal(err)
	}
	if res.Score != 4 || !res.SubmittedAt.After(started.EndsAt) {
		t.Fatalf("late submit = %+v", res)
	}
}

func TestSubmit_FailureReleasesClaim(t *testing.T) {
	f := newFixture(t)
	started := f.start(t)
	ctx := context.Background()

	boom := errors.New("catalog down")
	f.catalog.fail(boom)
	if _, err := f.submission.Submit(ctx, started.SessionID, f.answers("A"), model.ReasonManual); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if s := f.session(t, started.SessionID); s.State != model.SessionStateInProgress || s.ClaimExpiresAt != nil {
		t.Fatalf("after failure state = %s claim = %v, want IN_PROGRESS without claim", s.State, s.ClaimExpiresAt)
	}
	if n := f.queueLen(t, config.WorkerKey.SessionSubmittedQueue); n != 0 {
		t.Fatalf("failed submit emitted %d events", n)
	}

	f.catalog.fail(nil)
	res, err := f.submission.Submit(ctx, started.SessionID, f.answers("A"), model.ReasonManual)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if res.Score != 4 {
		t.Fatalf("retry score = %v, want 4", res.Score)
	}
}

func TestSubmit_ReclaimsLapsedClaim(t *testing.T) {
	f := newFixture(t)
	started := f.start(t)
	ctx := context.Background()

	// A crashed instance left the session in SCORING.
	now := f.clock.Now()
	won, err := f.store.Claim(ctx, started.SessionID, now, now.Add(time.Second))
	if err != nil || !won {
		t.Fatalf("Claim = %v, %v", won, err)
	}

	f.clock.Advance(2 * time.Second)
	res, err := f.submission.Submit(ctx, started.SessionID, f.answers("A", "B"), model.ReasonTimerExpired)
	if err != nil {
		t.Fatal(err)
	}
	if res.Score != 8 || res.Reason != model.ReasonTimerExpired {
		t.Fatalf("got %+v", res)
	}
}

func TestSubmit_TimesOutBehindLiveClaim(t *testing.T) {
	f := newFixture(t)
	cfg := *f.cfg
	cfg.SubmitWaitTimeout = 150 * time.Millisecond
	f.rebuild(&cfg)

	started := f.start(t)
	ctx := context.Background()
	now := f.clock.Now()
	if won, _ := f.store.Claim(ctx, started.SessionID, now, now.Add(time.Hour)); !won {
		t.Fatal("could not plant claim")
	}

	_, err := f.submission.Submit(ctx, started.SessionID, nil, model.ReasonManual)
	if !errors.Is(err, ErrClaimTimeout) {
		t.Fatalf("err = %v, want ErrClaimTimeout", err)
	}
	if s := f.session(t, started.SessionID); s.State != model.SessionStateScoring {
		t.Fatalf("timed-out caller touched the session: %s", s.State)
	}
}

func TestSubmit_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{
			name: "unknown session",
			run: func() error {
				_, err := f.submission.Submit(ctx, uuid.New(), nil, model.ReasonManual)
				return err
			},
			want: ErrNoActiveSession,
		},
		{
			name: "unknown reason",
			run: func() error {
				_, err := f.submission.Submit(ctx, uuid.New(), nil, "bored")
				return err
			},
			want: ErrInvalidReason,
		},
		{
			name: "student without a session",
			run: func() error {
				_, err := f.submission.SubmitForStudent(ctx, f.student.ID, nil, model.ReasonManual)
				return err
			},
			want: ErrNoActiveSession,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubmitForStudent_UsesLatestSession(t *testing.T) {
	f := newFixture(t)
	started := f.start(t)

	res, err := f.submission.SubmitForStudent(context.Background(), f.student.ID, f.answers("A", "B", "C", "D"), model.ReasonManual)
	if err != nil {
		t.Fatal(err)
	}
	if res.SessionID != started.SessionID || res.Percentage != 100 {
		t.Fatalf("got %+v", res)
	}
}

// takeOver plays a second instance that re-claims the session after the
// first holder's claim lapsed.
func (f *fixture) takeOver(t *testing.T, id uuid.UUID) time.Time {
	t.Helper()
	f.clock.Advance(f.cfg.ClaimTTL + time.Second)
	now := f.clock.Now()
	until := now.Add(f.cfg.ClaimTTL)
	if won, err := f.store.Claim(context.Background(), id, now, until); err != nil || !won {
		t.Fatalf("take over: won = %v, err = %v", won, err)
	}
	return until
}

func TestSubmit_LapsedHolderDefersToNewHolder(t *testing.T) {
	f := newFixture(t)
	started := f.start(t)
	ctx := context.Background()

	f.catalog.onceOnList(func() {
		until := f.takeOver(t, started.SessionID)
		err := f.store.Complete(ctx, started.SessionID, &model.Completion{
			Score:         4,
			TotalPossible: 16,
			Attempted:     1,
			NotAttempted:  3,
			Correct:       1,
			Percentage:    25,
			Reason:        model.ReasonTimerExpired,
			SubmittedAt:   f.clock.Now(),
			ClaimedUntil:  until,
		})
		if err != nil {
			t.Errorf("second holder Complete: %v", err)
		}
	})

	res, err := f.submission.Submit(ctx, started.SessionID, f.answers("A", "B", "C", "D"), model.ReasonManual)
	if err != nil {
		t.Fatalf("slow holder: %v", err)
	}
	if res.Score != 4 || res.Reason != model.ReasonTimerExpired {
		t.Fatalf("slow holder got %+v, want the stored timer_expired result", res)
	}
	if s := f.session(t, started.SessionID); s.Score != 4 || s.State != model.SessionStateSubmitted {
		t.Fatalf("stored = %s score %v", s.State, s.Score)
	}
	if n := f.queueLen(t, config.WorkerKey.SessionSubmittedQueue); n != 0 {
		t.Fatalf("slow holder emitted %d events", n)
	}
}

func TestSubmit_FailureKeepsNewHoldersClaim(t *testing.T) {
	f := newFixture(t)
	started := f.start(t)
	ctx := context.Background()

	var until time.Time
	boom := errors.New("catalog down")
	f.catalog.onceOnList(func() {
		until = f.takeOver(t, started.SessionID)
		f.catalog.fail(boom)
	})

	if _, err := f.submission.Submit(ctx, started.SessionID, nil, model.ReasonManual); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	s := f.session(t, started.SessionID)
	if s.State != model.SessionStateScoring || s.ClaimExpiresAt == nil || !s.ClaimExpiresAt.Equal(until) {
		t.Fatalf("state = %s claim = %v, want the new holder's claim until %v", s.State, s.ClaimExpiresAt, until)
	}
}

// hookLocker runs before() once the lock is held, i.e. after the submitter's
// first read of the session and before its claim.
type hookLocker struct {
	locker.Locker
	before func()
}

func (l hookLocker) Lock(ctx context.Context, key string) (func(), error) {
	unlock, err := l.Locker.Lock(ctx, key)
	if err == nil && l.before != nil {
		l.before()
	}
	return unlock, err
}

func TestSubmit_ScoresDraftSavedBeforeClaim(t *testing.T) {
	f := newFixture(t)
	started := f.start(t)
	ctx := context.Background()

	if err := f.sessions.SaveDraftAnswer(ctx, f.student.ID, f.questions[1].ID, "B"); err != nil {
		t.Fatal(err)
	}
	locks := hookLocker{Locker: f.locks, before: func() {
		if err := f.sessions.SaveDraftAnswer(ctx, f.student.ID, f.questions[0].ID, "A"); err != nil {
			t.Errorf("late draft: %v", err)
		}
	}}
	submitter := NewSubmissionService(f.store.Sessions(), f.catalog, locks, f.queue, f.clock, f.cfg, zerolog.Nop())

	res, err := submitter.Submit(ctx, started.SessionID, nil, model.ReasonManual)
	if err != nil {
		t.Fatal(err)
	}
	if res.Correct != 2 || res.Score != 8 {
		t.Fatalf("result = %+v, want both drafts scored", res)
	}
}

func TestSubmit_ReplacedAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.start(t)
	f.start(t)

	if _, err := f.submission.Submit(ctx, first.SessionID, nil, model.ReasonManual); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("err = %v, want ErrNoActiveSession", err)
	}
}
