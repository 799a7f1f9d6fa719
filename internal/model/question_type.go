package model

import (
	"database/sql/driver"
	"fmt"
)

// QuestionType is a closed set. Values outside the set are rejected when
// parsed from requests and when scanned from the database, so every switch
// over it only has to handle the five members below.
type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	ShortAnswer    QuestionType = "short_answer"
	Essay          QuestionType = "essay"
	FileUpload     QuestionType = "file_upload"
)

var questionTypes = map[QuestionType]struct{}{
	MultipleChoice: {},
	TrueFalse:      {},
	ShortAnswer:    {},
	Essay:          {},
	FileUpload:     {},
}

func ParseQuestionType(s string) (QuestionType, error) {
	t := QuestionType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown question type %q", s)
	}
	return t, nil
}

func (t QuestionType) Valid() bool {
	_, ok := questionTypes[t]
	return ok
}

// AutoGradable reports whether responses are scored without a human grader.
func (t QuestionType) AutoGradable() bool {
	switch t {
	case MultipleChoice, TrueFalse, ShortAnswer:
		return true
	case Essay, FileUpload:
		return false
	}
	return false
}

// ChoiceBased reports whether a response references one of the question's choices.
func (t QuestionType) ChoiceBased() bool {
	return t == MultipleChoice || t == TrueFalse
}

func (t *QuestionType) Scan(value interface{}) error {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case nil:
		return fmt.Errorf("question type cannot be null")
	default:
		return fmt.Errorf("unsupported question type value %T", value)
	}
	parsed, err := ParseQuestionType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t QuestionType) Value() (driver.Value, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown question type %q", string(t))
	}
	return string(t), nil
}
