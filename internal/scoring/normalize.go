package scoring

import (
	"strings"

	"github.com/stemsi/exstem-proctor/internal/model"
)

const notAttemptedPhrase = "NOT ATTEMPTED"

// Normalize maps a loosely formatted answer to a canonical option key.
//
// Accepted forms, checked in order: empty or "not attempted", a bare letter
// A-D, "option <letter>", and the full text of one of the question's options.
// All comparisons are trimmed and case-insensitive. Anything else resolves to
// model.Unattempted; malformed input never fails.
//
// The same function is applied to the stored correct option, so authoring and
// submission formats can differ without producing false negatives.
func Normalize(raw string, q *model.Question) model.OptionKey {
	v := strings.ToUpper(strings.TrimSpace(raw))
	if v == "" || v == notAttemptedPhrase {
		return model.Unattempted
	}

	if k, ok := letterKey(v); ok {
		return k
	}

	if fields := strings.Fields(v); len(fields) == 2 && fields[0] == "OPTION" {
		if k, ok := letterKey(fields[1]); ok {
			return k
		}
	}

	if q == nil {
		return model.Unattempted
	}
	for i, text := range q.Options {
		t := strings.TrimSpace(text)
		if t != "" && strings.EqualFold(t, v) {
			return model.OptionKeys[i]
		}
	}

	return model.Unattempted
}

func letterKey(v string) (model.OptionKey, bool) {
	switch v {
	case "A":
		return model.OptionA, true
	case "B":
		return model.OptionB, true
	case "C":
		return model.OptionC, true
	case "D":
		return model.OptionD, true
	}
	return model.Unattempted, false
}
