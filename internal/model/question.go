package model

import (
	"github.com/google/uuid"
)

// OptionKey is a canonical option letter. The zero value means "not attempted".
type OptionKey string

const (
	OptionA     OptionKey = "A"
	OptionB     OptionKey = "B"
	OptionC     OptionKey = "C"
	OptionD     OptionKey = "D"
	Unattempted OptionKey = ""
)

// OptionKeys lists the valid option keys in display order.
var OptionKeys = [4]OptionKey{OptionA, OptionB, OptionC, OptionD}

// Question represents a single four-option question.
type Question struct {
	ID            uuid.UUID `json:"id"`
	ExamID        uuid.UUID `json:"exam_id"`
	Prompt        string    `json:"prompt"`
	Options       [4]string `json:"options"`
	CorrectOption string    `json:"correct_option"`
	OrderNum      int       `json:"order_num"`
}

// OptionText returns the text for the given key, or "" for an unknown key.
func (q *Question) OptionText(k OptionKey) string {
	for i, key := range OptionKeys {
		if key == k {
			return q.Options[i]
		}
	}
	return ""
}

// QuestionForStudent is a question without the correct answer, sent to students.
type QuestionForStudent struct {
	ID       uuid.UUID `json:"id"`
	Prompt   string    `json:"prompt"`
	OptionA  string    `json:"option_a"`
	OptionB  string    `json:"option_b"`
	OptionC  string    `json:"option_c"`
	OptionD  string    `json:"option_d"`
	OrderNum int       `json:"order_num"`
}
