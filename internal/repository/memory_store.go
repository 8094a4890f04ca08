package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// MemoryStore keeps accounts, exams, sessions and violations in process memory.
// It backs STORE_DRIVER=memory and the service tests, and follows the same
// conditional-write rules as the postgres repositories.
type MemoryStore struct {
	mu         sync.RWMutex
	seq        uint64
	accounts   map[uuid.UUID]*model.Account
	emails     map[string]uuid.UUID
	exams      map[uuid.UUID]*model.Exam
	questions  map[uuid.UUID][]model.Question
	sessions   map[uuid.UUID]*memSession
	violations []model.Violation
}

type memSession struct {
	s   *model.ExamSession
	seq uint64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[uuid.UUID]*model.Account),
		emails:    make(map[string]uuid.UUID),
		exams:     make(map[uuid.UUID]*model.Exam),
		questions: make(map[uuid.UUID][]model.Question),
		sessions:  make(map[uuid.UUID]*memSession),
	}
}

// ─── Accounts ──────────────────────────────────────────────────────────

// CreateAccount inserts an account. Emails are unique case-insensitively.
func (m *MemoryStore) CreateAccount(_ context.Context, a *model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := strings.ToLower(a.Email)
	if _, exists := m.emails[email]; exists {
		return ErrConflict
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	cp := *a
	m.accounts[a.ID] = &cp
	m.emails[email] = a.ID
	return nil
}

func (m *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) GetByEmail(_ context.Context, email string) (*model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.emails[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.accounts[id]
	return &cp, nil
}

func (m *MemoryStore) SetAssignedExam(_ context.Context, accountID, examID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return ErrNotFound
	}
	id := examID
	a.AssignedExamID = &id
	return nil
}

// SetAccountActive toggles an account.
func (m *MemoryStore) SetAccountActive(_ context.Context, accountID uuid.UUID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return ErrNotFound
	}
	a.IsActive = active
	return nil
}

// ─── Exams ─────────────────────────────────────────────────────────────

// CreateExam inserts an exam together with its questions.
func (m *MemoryStore) CreateExam(_ context.Context, e *model.Exam, questions []model.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	// IDs and order are written back so callers can address the questions.
	for i := range questions {
		if questions[i].ID == uuid.Nil {
			questions[i].ID = uuid.New()
		}
		questions[i].ExamID = e.ID
		if questions[i].OrderNum == 0 {
			questions[i].OrderNum = i + 1
		}
	}
	qs := append([]model.Question(nil), questions...)
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].OrderNum < qs[j].OrderNum })

	e.QuestionIDs = make([]uuid.UUID, len(qs))
	for i := range qs {
		e.QuestionIDs[i] = qs[i].ID
	}

	cp := *e
	cp.QuestionIDs = append([]uuid.UUID(nil), e.QuestionIDs...)
	m.exams[e.ID] = &cp
	m.questions[e.ID] = qs
	return nil
}

// SetExamActive toggles an exam.
func (m *MemoryStore) SetExamActive(_ context.Context, examID uuid.UUID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exams[examID]
	if !ok {
		return ErrNotFound
	}
	e.IsActive = active
	return nil
}

func (m *MemoryStore) GetExam(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.exams[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	cp.QuestionIDs = append([]uuid.UUID(nil), e.QuestionIDs...)
	return &cp, nil
}

func (m *MemoryStore) ListQuestions(_ context.Context, examID uuid.UUID) ([]model.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.exams[examID]; !ok {
		return nil, ErrNotFound
	}
	return append([]model.Question(nil), m.questions[examID]...), nil
}

// ─── Sessions ──────────────────────────────────────────────────────────

func (m *MemoryStore) ReplaceLive(_ context.Context, s *model.ExamSession, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stale []uuid.UUID
	for id, ms := range m.sessions {
		cur := ms.s
		if cur.StudentID != s.StudentID || cur.ExamID != s.ExamID {
			continue
		}
		switch cur.State {
		case model.SessionStateCreated, model.SessionStateInProgress:
			stale = append(stale, id)
		case model.SessionStateScoring:
			if !claimExpired(cur, now) {
				return ErrConflict
			}
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		delete(m.sessions, id)
	}

	m.seq++
	m.sessions[s.ID] = &memSession{s: s.Clone(), seq: m.seq}
	return nil
}

func claimExpired(s *model.ExamSession, now time.Time) bool {
	return s.ClaimExpiresAt == nil || s.ClaimExpiresAt.Before(now)
}

// holdsClaim reports whether s is SCORING under the claim expiring at until.
func holdsClaim(s *model.ExamSession, until time.Time) bool {
	return s.State == model.SessionStateScoring && s.ClaimExpiresAt != nil && s.ClaimExpiresAt.Equal(until)
}

func (m *MemoryStore) getSession(id uuid.UUID) (*model.ExamSession, error) {
	ms, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ms.s, nil
}

// MemorySessions is the session-store view of a MemoryStore. It exists because
// accounts and sessions both expose GetByID.
type MemorySessions struct {
	*MemoryStore
}

// Sessions returns the session-store view.
func (m *MemoryStore) Sessions() *MemorySessions {
	return &MemorySessions{MemoryStore: m}
}

func (v *MemorySessions) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	return v.GetSession(ctx, id)
}

// GetSession returns a copy of a session.
func (m *MemoryStore) GetSession(_ context.Context, id uuid.UUID) (*model.ExamSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, err := m.getSession(id)
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

func (m *MemoryStore) GetLatestForStudent(_ context.Context, studentID uuid.UUID) (*model.ExamSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *memSession
	for _, ms := range m.sessions {
		if ms.s.StudentID != studentID {
			continue
		}
		if best == nil || ms.s.StartedAt.After(best.s.StartedAt) ||
			(ms.s.StartedAt.Equal(best.s.StartedAt) && ms.seq > best.seq) {
			best = ms
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best.s.Clone(), nil
}

func (m *MemoryStore) ListForStudentExam(_ context.Context, studentID, examID uuid.UUID) ([]model.ExamSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.ExamSession
	for _, ms := range m.sessions {
		if ms.s.StudentID == studentID && ms.s.ExamID == examID {
			out = append(out, *ms.s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (m *MemoryStore) DeleteAllForStudent(_ context.Context, studentID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, ms := range m.sessions {
		if ms.s.StudentID == studentID {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) SaveDraftAnswer(_ context.Context, id uuid.UUID, questionID, raw string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.getSession(id)
	if err != nil {
		return err
	}
	if s.State != model.SessionStateInProgress {
		return ErrConflict
	}
	if s.DraftAnswers == nil {
		s.DraftAnswers = make(map[string]string)
	}
	s.DraftAnswers[questionID] = raw
	return nil
}

func (m *MemoryStore) Claim(_ context.Context, id uuid.UUID, now, until time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.getSession(id)
	if err != nil {
		return false, err
	}
	switch {
	case s.State == model.SessionStateInProgress,
		s.State == model.SessionStateScoring && claimExpired(s, now):
		s.State = model.SessionStateScoring
		u := until
		s.ClaimExpiresAt = &u
		return true, nil
	}
	return false, nil
}

func (m *MemoryStore) Complete(_ context.Context, id uuid.UUID, c *model.Completion) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.getSession(id)
	if err != nil {
		return err
	}
	if !holdsClaim(s, c.ClaimedUntil) {
		return ErrConflict
	}

	reason := c.Reason
	at := c.SubmittedAt
	s.State = model.SessionStateSubmitted
	s.ClaimExpiresAt = nil
	s.SubmittedAt = &at
	s.SubmissionReason = &reason
	s.Answers = append([]model.AnswerRecord(nil), c.Answers...)
	s.Score = c.Score
	s.TotalPossible = c.TotalPossible
	s.Attempted = c.Attempted
	s.NotAttempted = c.NotAttempted
	s.Correct = c.Correct
	s.Percentage = c.Percentage
	s.DraftAnswers = nil
	return nil
}

func (m *MemoryStore) ReleaseClaim(_ context.Context, id uuid.UUID, claimedUntil time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.getSession(id)
	if err != nil {
		return err
	}
	if holdsClaim(s, claimedUntil) {
		s.State = model.SessionStateInProgress
		s.ClaimExpiresAt = nil
	}
	return nil
}

func (m *MemoryStore) ListExpired(_ context.Context, endsBefore, now time.Time, limit int) ([]model.ExamSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.ExamSession
	for _, ms := range m.sessions {
		s := ms.s
		switch {
		case s.State == model.SessionStateInProgress && s.EndsAt.Before(endsBefore),
			s.State == model.SessionStateScoring && claimExpired(s, now):
			out = append(out, *s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndsAt.Before(out[j].EndsAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListByExam(_ context.Context, examID uuid.UUID, page, perPage int) ([]model.ExamResultRow, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := m.violationCounts(examID)
	rows := make([]model.ExamResultRow, 0)
	for _, ms := range m.sessions {
		s := ms.s
		if s.ExamID != examID {
			continue
		}
		row := model.ExamResultRow{
			SessionID:        s.ID,
			StudentID:        s.StudentID,
			State:            s.State,
			SubmissionReason: s.SubmissionReason,
			StartedAt:        s.StartedAt,
			SubmittedAt:      s.SubmittedAt,
			ViolationCount:   counts[s.ID],
		}
		if a, ok := m.accounts[s.StudentID]; ok {
			row.StudentName = a.Name
			row.StudentEmail = a.Email
		}
		if s.State == model.SessionStateSubmitted {
			score, total, pct := s.Score, s.TotalPossible, s.Percentage
			row.Score, row.TotalPossible, row.Percentage = &score, &total, &pct
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].StudentName != rows[j].StudentName {
			return rows[i].StudentName < rows[j].StudentName
		}
		return rows[i].StartedAt.After(rows[j].StartedAt)
	})

	total := len(rows)
	page, perPage = normalizePage(page, perPage)
	start := (page - 1) * perPage
	if start >= total {
		return []model.ExamResultRow{}, total, nil
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return rows[start:end], total, nil
}

// ─── Violations ────────────────────────────────────────────────────────

func (m *MemoryStore) InsertBatch(_ context.Context, batch []model.Violation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.violations = append(m.violations, batch...)
	return nil
}

func (m *MemoryStore) Insert(_ context.Context, v *model.Violation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.violations = append(m.violations, *v)
	return nil
}

func (m *MemoryStore) CountBySession(_ context.Context, examID uuid.UUID) (map[uuid.UUID]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.violationCounts(examID), nil
}

func (m *MemoryStore) violationCounts(examID uuid.UUID) map[uuid.UUID]int {
	counts := make(map[uuid.UUID]int)
	for _, v := range m.violations {
		if v.ExamID == examID {
			counts[v.SessionID]++
		}
	}
	return counts
}

// Violations returns a copy of every stored violation.
func (m *MemoryStore) Violations() []model.Violation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Violation(nil), m.violations...)
}

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}
	return page, perPage
}
