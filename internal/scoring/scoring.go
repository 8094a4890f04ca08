// Package scoring implements answer normalization and negative-marking
// evaluation. Everything here is pure: the same policy, questions and answers
// always produce the same Result.
package scoring

import (
	"math"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Result is the outcome of scoring one answer set.
type Result struct {
	Answers       []model.AnswerRecord
	RawScore      float64
	Score         float64
	TotalPossible float64
	Attempted     int
	NotAttempted  int
	Correct       int
	Percentage    float64
}

// Score evaluates answers (question ID -> raw value) against questions under
// the given marking policy.
//
// Each question yields exactly one answer record, in question order. The
// aggregate is rounded to two decimals and clamped to [0, totalPossible],
// where totalPossible = len(questions) * policy.Correct.
func Score(policy model.MarkingPolicy, questions []model.Question, answers map[string]string) Result {
	res := Result{
		Answers:       make([]model.AnswerRecord, 0, len(questions)),
		TotalPossible: round2(float64(len(questions)) * policy.Correct),
	}

	sum := 0.0
	for i := range questions {
		q := &questions[i]
		rec := markQuestion(policy, q, answers[q.ID.String()])

		switch {
		case rec.Selected == model.Unattempted:
			res.NotAttempted++
		case rec.IsCorrect:
			res.Attempted++
			res.Correct++
		default:
			res.Attempted++
		}

		sum += rec.Marks
		res.Answers = append(res.Answers, rec)
	}

	res.RawScore = round2(sum)
	res.Score = Clamp(res.RawScore, res.TotalPossible)
	res.Percentage = Percentage(res.Score, res.TotalPossible)
	return res
}

func markQuestion(policy model.MarkingPolicy, q *model.Question, raw string) model.AnswerRecord {
	selected := Normalize(raw, q)
	correct := Normalize(q.CorrectOption, q)

	rec := model.AnswerRecord{
		QuestionID:   q.ID,
		Selected:     selected,
		Correct:      correct,
		SelectedText: model.NotAttemptedText,
		CorrectText:  q.OptionText(correct),
	}

	switch {
	case selected == model.Unattempted:
		rec.Marks = policy.NotAttempted
	case selected == correct:
		rec.SelectedText = q.OptionText(selected)
		rec.IsCorrect = true
		rec.Marks = policy.Correct
	default:
		// A question whose stored key does not normalize can never be answered correctly.
		rec.SelectedText = q.OptionText(selected)
		rec.Marks = policy.Wrong
	}
	return rec
}

// Clamp bounds score to [0, totalPossible]. A non-positive ceiling yields 0.
func Clamp(score, totalPossible float64) float64 {
	if score <= 0 || totalPossible <= 0 {
		return 0
	}
	if score > totalPossible {
		return totalPossible
	}
	return score
}

// Percentage returns round(score/totalPossible*10000)/100, or 0 when there is
// nothing to score.
func Percentage(score, totalPossible float64) float64 {
	if totalPossible <= 0 {
		return 0
	}
	return math.Round(score/totalPossible*10000) / 100
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
