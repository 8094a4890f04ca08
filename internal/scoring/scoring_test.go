package scoring

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

func makeQuestions(correct ...string) []model.Question {
	qs := make([]model.Question, len(correct))
	for i, c := range correct {
		qs[i] = model.Question{
			ID:            uuid.New(),
			Prompt:        fmt.Sprintf("Q%d", i+1),
			Options:       [4]string{"alpha", "beta", "gamma", "delta"},
			CorrectOption: c,
			OrderNum:      i + 1,
		}
	}
	return qs
}

func TestScore_Scenario(t *testing.T) {
	qs := makeQuestions("A", "B")
	policy := model.MarkingPolicy{Correct: 2, Wrong: 0, NotAttempted: 0}

	res := Score(policy, qs, map[string]string{
		qs[0].ID.String(): "A",
		qs[1].ID.String(): "C",
	})

	if res.Score != 2 || res.TotalPossible != 4 || res.Attempted != 2 || res.NotAttempted != 0 || res.Correct != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Percentage != 50 {
		t.Fatalf("percentage = %v, want 50", res.Percentage)
	}
}

func TestScore_Marking(t *testing.T) {
	qs := makeQuestions("A", "B", "C", "D")

	tests := []struct {
		name         string
		policy       model.MarkingPolicy
		answers      []string
		score        float64
		raw          float64
		attempted    int
		notAttempted int
		correct      int
	}{
		{
			name:    "all correct",
			policy:  model.MarkingPolicy{Correct: 1, Wrong: -1},
			answers: []string{"A", "B", "C", "D"},
			score:   4, raw: 4, attempted: 4, correct: 4,
		},
		{
			name:    "all wrong clamps to zero",
			policy:  model.MarkingPolicy{Correct: 1, Wrong: -1},
			answers: []string{"B", "C", "D", "A"},
			score:   0, raw: -4, attempted: 4,
		},
		{
			name:    "negative marking partial",
			policy:  model.MarkingPolicy{Correct: 3, Wrong: -1},
			answers: []string{"A", "A", "C", ""},
			score:   5, raw: 5, attempted: 3, notAttempted: 1, correct: 2,
		},
		{
			name:    "not attempted penalty",
			policy:  model.MarkingPolicy{Correct: 2, Wrong: 0, NotAttempted: -0.5},
			answers: []string{"A", "", "", ""},
			score:   0.5, raw: 0.5, attempted: 1, notAttempted: 3, correct: 1,
		},
		{
			name:    "fractional wrong rounds",
			policy:  model.MarkingPolicy{Correct: 1, Wrong: -1.0 / 3},
			answers: []string{"A", "A", "A", "D"},
			score:   1.33, raw: 1.33, attempted: 4, correct: 2,
		},
		{
			name:    "malformed answers are unattempted",
			policy:  model.MarkingPolicy{Correct: 1, Wrong: -1, NotAttempted: 0},
			answers: []string{"zzz", "option q", "not attempted", "D"},
			score:   1, raw: 1, attempted: 1, notAttempted: 3, correct: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			answers := make(map[string]string, len(qs))
			for i, a := range tc.answers {
				if a != "" {
					answers[qs[i].ID.String()] = a
				}
			}
			res := Score(tc.policy, qs, answers)

			if res.Score != tc.score {
				t.Errorf("score = %v, want %v", res.Score, tc.score)
			}
			if res.RawScore != tc.raw {
				t.Errorf("raw = %v, want %v", res.RawScore, tc.raw)
			}
			if res.Attempted != tc.attempted || res.NotAttempted != tc.notAttempted || res.Correct != tc.correct {
				t.Errorf("counts = %d/%d/%d, want %d/%d/%d",
					res.Attempted, res.NotAttempted, res.Correct, tc.attempted, tc.notAttempted, tc.correct)
			}
			if res.Attempted+res.NotAttempted != len(qs) {
				t.Errorf("attempted+notAttempted = %d, want %d", res.Attempted+res.NotAttempted, len(qs))
			}
		})
	}
}

func TestScore_EmptyAnswerMap(t *testing.T) {
	qs := makeQuestions("A", "B", "C", "D", "A", "B", "C", "D", "A", "B")
	res := Score(model.MarkingPolicy{Correct: 1, Wrong: -1, NotAttempted: 0}, qs, map[string]string{})

	if res.Score != 0 || res.Attempted != 0 || res.NotAttempted != 10 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Answers) != 10 {
		t.Fatalf("answers = %d, want one per question", len(res.Answers))
	}
	for _, a := range res.Answers {
		if a.Selected != model.Unattempted || a.SelectedText != model.NotAttemptedText {
			t.Fatalf("unexpected record %+v", a)
		}
	}
}

func TestScore_NilAnswerMap(t *testing.T) {
	qs := makeQuestions("A")
	res := Score(model.MarkingPolicy{Correct: 1}, qs, nil)
	if res.NotAttempted != 1 || res.Score != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestScore_NoQuestions(t *testing.T) {
	res := Score(model.MarkingPolicy{Correct: 1}, nil, map[string]string{"x": "A"})
	if res.Score != 0 || res.TotalPossible != 0 || res.Percentage != 0 || len(res.Answers) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestScore_IgnoresAnswersForUnknownQuestions(t *testing.T) {
	qs := makeQuestions("A")
	res := Score(model.MarkingPolicy{Correct: 1}, qs, map[string]string{uuid.NewString(): "A"})
	if res.Attempted != 0 || len(res.Answers) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestScore_BadAnswerKeyNeverCorrect(t *testing.T) {
	qs := makeQuestions("E")
	res := Score(model.MarkingPolicy{Correct: 1, Wrong: -1}, qs, map[string]string{qs[0].ID.String(): "A"})
	if res.Correct != 0 || res.Attempted != 1 || res.RawScore != -1 || res.Score != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestScore_ScoreWithinBounds(t *testing.T) {
	qs := makeQuestions("A", "B", "C")
	policies := []model.MarkingPolicy{
		{Correct: 1, Wrong: -5, NotAttempted: -5},
		{Correct: 4, Wrong: 0, NotAttempted: 10},
		{Correct: 0, Wrong: -1, NotAttempted: 0},
	}
	answerSets := [][]string{{"A", "B", "C"}, {"D", "D", "D"}, {"", "", ""}, {"A", "", "D"}}

	for _, p := range policies {
		for _, set := range answerSets {
			answers := map[string]string{}
			for i, a := range set {
				answers[qs[i].ID.String()] = a
			}
			res := Score(p, qs, answers)
			if res.Score < 0 || res.Score > res.TotalPossible && res.TotalPossible >= 0 {
				t.Fatalf("policy %+v answers %v: score %v outside [0, %v]", p, set, res.Score, res.TotalPossible)
			}
		}
	}
}

func TestScore_Deterministic(t *testing.T) {
	qs := makeQuestions("A", "B", "C", "D", "A", "B")
	policy := model.MarkingPolicy{Correct: 2.5, Wrong: -0.75, NotAttempted: -0.1}
	answers := map[string]string{
		qs[0].ID.String(): "alpha",
		qs[1].ID.String(): "option c",
		qs[2].ID.String(): "C",
		qs[4].ID.String(): "???",
		qs[5].ID.String(): "b",
	}

	first := Score(policy, qs, answers)
	for i := 0; i < 200; i++ {
		got := Score(policy, qs, answers)
		if !reflect.DeepEqual(first, got) {
			t.Fatalf("run %d differs:\n%+v\n%+v", i, first, got)
		}
	}
}

func TestScore_DoesNotMutateInputs(t *testing.T) {
	qs := makeQuestions("A", "B")
	answers := map[string]string{qs[0].ID.String(): " a "}
	before := qs[0]

	Score(model.MarkingPolicy{Correct: 1}, qs, answers)

	if !reflect.DeepEqual(before, qs[0]) || answers[qs[0].ID.String()] != " a " {
		t.Fatal("Score mutated its inputs")
	}
}

func TestClampAndPercentage(t *testing.T) {
	tests := []struct {
		score, total, clamped, pct float64
	}{
		{score: -3, total: 10, clamped: 0, pct: 0},
		{score: 12, total: 10, clamped: 10, pct: 100},
		{score: 1, total: 3, clamped: 1, pct: 33.33},
		{score: 2, total: 3, clamped: 2, pct: 66.67},
		{score: 5, total: 0, clamped: 0, pct: 0},
	}
	for _, tc := range tests {
		c := Clamp(tc.score, tc.total)
		if c != tc.clamped {
			t.Errorf("Clamp(%v, %v) = %v, want %v", tc.score, tc.total, c, tc.clamped)
		}
		if p := Percentage(c, tc.total); p != tc.pct {
			t.Errorf("Percentage(%v, %v) = %v, want %v", c, tc.total, p, tc.pct)
		}
	}
}
