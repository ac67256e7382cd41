package processor

import (
	"strings"
	"unicode/utf8"

	"github.com/corazawaf/libinjection-go"

	"github.com/VenGr0/hr-analytics-bot/internal/errors"
)

// DefaultMaxQuestionLength bounds question text in runes
const DefaultMaxQuestionLength = 500

// SafetyChecker guards questions and rendered queries before execution
type SafetyChecker struct {
	ForbiddenKeywords []string
	MaxQuestionLength int
	// InjectionChecks enables libinjection scanning of free-form entity values
	InjectionChecks bool
}

// NewSafetyChecker creates a new safety checker with default settings
func NewSafetyChecker() *SafetyChecker {
	return &SafetyChecker{
		ForbiddenKeywords: []string{
			"drop",
			"delete",
			"update",
			"insert",
			"alter",
			"attach",
			"detach",
			"create",
			"replace",
			"truncate",
			"pragma",
			"vacuum",
		},
		MaxQuestionLength: DefaultMaxQuestionLength,
		InjectionChecks:   true,
	}
}

// ValidateQuestion checks the raw question before classification
func (sc *SafetyChecker) ValidateQuestion(question string) error {
	if strings.TrimSpace(question) == "" {
		return errors.NewInvalidInputError("text", "question must not be empty")
	}
	if sc.MaxQuestionLength > 0 && utf8.RuneCountInString(question) > sc.MaxQuestionLength {
		return errors.NewInvalidInputError("text", "question is too long").
			WithMetadata("max_length", sc.MaxQuestionLength)
	}
	if !utf8.ValidString(question) {
		return errors.NewInvalidInputError("text", "question is not valid UTF-8")
	}
	return nil
}

// ValidateEntities scans values captured verbatim from the question
func (sc *SafetyChecker) ValidateEntities(entities Entities) error {
	if !sc.InjectionChecks {
		return nil
	}
	if entities.Department != nil && entities.Department.FreeForm {
		if isSQLi, fingerprint := libinjection.IsSQLi(entities.Department.Name); isSQLi {
			return errors.NewInjectionDetectedError(string(SlotDepartment), fingerprint)
		}
	}
	return nil
}

// ValidateQuery rejects a rendered query whose lower-cased text contains a
// mutating keyword anywhere, including inside a longer word
func (sc *SafetyChecker) ValidateQuery(q *RenderedQuery) error {
	for _, text := range []string{q.Text, q.SQL} {
		lower := strings.ToLower(text)
		for _, keyword := range sc.ForbiddenKeywords {
			if keyword = strings.ToLower(keyword); strings.Contains(lower, keyword) {
				return errors.NewUnsafeQueryError(keyword)
			}
		}
	}
	return nil
}
