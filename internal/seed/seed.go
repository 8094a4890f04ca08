// Package seed populates a store with a demo exam, one admin and a class of
// students. It serves STORE_DRIVER=memory and cmd/seed-demo.
package seed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Writer is what the seeder needs from a store. Both the memory store and the
// postgres repositories (together) satisfy it.
type Writer interface {
	CreateAccount(ctx context.Context, a *model.Account) error
	CreateExam(ctx context.Context, e *model.Exam, questions []model.Question) error
	SetAssignedExam(ctx context.Context, accountID, examID uuid.UUID) error
}

// Options controls the demo data.
type Options struct {
	Students        int
	AdminEmail      string
	AdminPassword   string
	StudentPassword string
	DurationMinutes int
}

// DefaultOptions is used by the memory-mode server.
var DefaultOptions = Options{
	Students:        5,
	AdminEmail:      "admin@exstem.local",
	AdminPassword:   "admin123",
	StudentPassword: "student123",
	DurationMinutes: 60,
}

// Result lists what was created.
type Result struct {
	ExamID        uuid.UUID
	AdminEmail    string
	StudentEmails []string
}

// Run creates the demo exam, the admin and the students, and assigns the exam
// to every student.
func Run(ctx context.Context, w Writer, hash func(string) (string, error), opts Options) (*Result, error) {
	exam, questions := demoExam(opts.DurationMinutes)
	if err := w.CreateExam(ctx, exam, questions); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}

	adminHash, err := hash(opts.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}
	admin := &model.Account{
		Name:         "Demo Admin",
		Email:        opts.AdminEmail,
		PasswordHash: adminHash,
		Role:         model.RoleAdmin,
		IsActive:     true,
	}
	if err := w.CreateAccount(ctx, admin); err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}

	studentHash, err := hash(opts.StudentPassword)
	if err != nil {
		return nil, fmt.Errorf("hash student password: %w", err)
	}

	res := &Result{ExamID: exam.ID, AdminEmail: admin.Email}
	for i := 1; i <= opts.Students; i++ {
		name := studentNames[(i-1)%len(studentNames)]
		s := &model.Account{
			Name:         name,
			Email:        fmt.Sprintf("%s.%02d@exstem.local", strings.ToLower(strings.Fields(name)[0]), i),
			PasswordHash: studentHash,
			Role:         model.RoleStudent,
			IsActive:     true,
		}
		if err := w.CreateAccount(ctx, s); err != nil {
			return nil, fmt.Errorf("create student %s: %w", s.Email, err)
		}
		if err := w.SetAssignedExam(ctx, s.ID, exam.ID); err != nil {
			return nil, fmt.Errorf("assign exam to %s: %w", s.Email, err)
		}
		res.StudentEmails = append(res.StudentEmails, s.Email)
	}
	return res, nil
}

func demoExam(durationMinutes int) (*model.Exam, []model.Question) {
	if durationMinutes <= 0 {
		durationMinutes = 60
	}
	now := time.Now().UTC()
	from := now.Add(-time.Hour)
	to := now.Add(7 * 24 * time.Hour)

	exam := &model.Exam{
		Title:           "Ujian Demo Matematika Dasar",
		DurationMinutes: durationMinutes,
		AvailableFrom:   &from,
		AvailableTo:     &to,
		Marking:         model.MarkingPolicy{Correct: 4, Wrong: -1, NotAttempted: 0},
		IsActive:        true,
	}

	questions := make([]model.Question, 0, len(demoQuestions))
	for i, q := range demoQuestions {
		questions = append(questions, model.Question{
			Prompt:        q.prompt,
			Options:       q.options,
			CorrectOption: q.correct,
			OrderNum:      i + 1,
		})
	}
	return exam, questions
}

var demoQuestions = []struct {
	prompt  string
	options [4]string
	correct string
}{
	{"2 + 3 = ?", [4]string{"4", "5", "6", "7"}, "B"},
	{"7 x 6 = ?", [4]string{"42", "36", "48", "49"}, "A"},
	{"Akar kuadrat dari 81 adalah?", [4]string{"7", "8", "9", "10"}, "C"},
	{"15 - 8 = ?", [4]string{"6", "9", "8", "7"}, "D"},
	{"Bilangan prima terkecil adalah?", [4]string{"0", "1", "2", "3"}, "C"},
	{"100 / 4 = ?", [4]string{"25", "20", "40", "24"}, "A"},
	{"Hasil dari 3^3 adalah?", [4]string{"9", "27", "6", "81"}, "B"},
	{"Setengah dari 90 adalah?", [4]string{"40", "50", "45", "35"}, "C"},
	{"Keliling persegi bersisi 5 adalah?", [4]string{"10", "25", "15", "20"}, "D"},
	{"12 + 19 = ?", [4]string{"31", "29", "32", "30"}, "A"},
}

var studentNames = []string{
	"Budi Santoso", "Siti Aminah", "Andi Pratama", "Rina Wati", "Joko Susilo",
	"Ayu Lestari", "Dodi Kusuma", "Eka Putri", "Fahri Hamzah", "Gita Savitri",
}
