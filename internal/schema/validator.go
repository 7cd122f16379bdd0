// Package schema defines the API request payloads and validates them.
package schema

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// MinQuestionChars is the shortest question, in non-space characters,
// worth answering.
const MinQuestionChars = 5

// ErrInvalidRequest wraps every validation failure.
var ErrInvalidRequest = errors.New("invalid request")

// AnswerRequest asks for a hint.
type AnswerRequest struct {
	SessionID string   `json:"sessionId,omitempty" validate:"omitempty,max=128"`
	Question  string   `json:"question" validate:"required,question,max=2000"`
	History   []string `json:"history,omitempty" validate:"max=50,dive,max=4000"`
	Profile   string   `json:"profile,omitempty" validate:"omitempty,max=32"`
}

// LearnRequest adds a curated answer.
type LearnRequest struct {
	Question string `json:"question" validate:"required,question,max=2000"`
	Answer   string `json:"answer" validate:"required,max=8000"`
}

// ClearRequest clears a session.
type ClearRequest struct {
	SessionID string `json:"sessionId,omitempty" validate:"omitempty,max=128"`
}

// Validator checks request payloads against their struct tags.
type Validator struct {
	validate *validator.Validate
}

// New creates a validator with the custom tags registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("question", func(fl validator.FieldLevel) bool {
		return QuestionLongEnough(fl.Field().String())
	})
	return &Validator{validate: v}
}

// Validate returns an ErrInvalidRequest describing the first failed field.
func (v *Validator) Validate(req any) error {
	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, describe(verrs[0]))
	}
	return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
}

func describe(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "question":
		return fmt.Sprintf("%s must contain at least %d non-space characters", field, MinQuestionChars)
	case "max":
		return fmt.Sprintf("%s exceeds %s", field, fe.Param())
	}
	return fmt.Sprintf("%s failed %s", field, fe.Tag())
}

// QuestionLongEnough reports whether q has at least MinQuestionChars
// non-space characters.
func QuestionLongEnough(q string) bool {
	n := 0
	for _, r := range q {
		if !unicode.IsSpace(r) {
			n++
			if n >= MinQuestionChars {
				return true
			}
		}
	}
	return false
}
