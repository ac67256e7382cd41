package processor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VenGr0/hr-analytics-bot/internal/errors"
)

func TestNewSafetyChecker(t *testing.T) {
	sc := NewSafetyChecker()

	assert.NotEmpty(t, sc.ForbiddenKeywords)
	assert.Equal(t, DefaultMaxQuestionLength, sc.MaxQuestionLength)
	assert.True(t, sc.InjectionChecks)
}

func TestValidateQuestion(t *testing.T) {
	sc := NewSafetyChecker()

	tests := []struct {
		name     string
		question string
		wantErr  bool
	}{
		{"normal question", "текучесть в отделе HR", false},
		{"empty", "", true},
		{"whitespace only", "   \t\n", true},
		{"at the limit", strings.Repeat("ы", DefaultMaxQuestionLength), false},
		{"too long", strings.Repeat("ы", DefaultMaxQuestionLength+1), true},
		{"invalid utf-8", "текучесть \xff", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sc.ValidateQuestion(tt.question)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
		})
	}
}

func TestValidateEntities(t *testing.T) {
	sc := NewSafetyChecker()

	tests := []struct {
		name     string
		entities Entities
		wantErr  bool
	}{
		{"no department", Entities{}, false},
		{"vocabulary department", Entities{Department: &Department{Name: "HR"}}, false},
		{"plain free-form name", Entities{Department: &Department{Name: "Логистики", FreeForm: true}}, false},
		{"injection in free-form name", Entities{Department: &Department{Name: "1' OR '1'='1", FreeForm: true}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sc.ValidateEntities(tt.entities)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeUnsafeQuery, errors.CodeOf(err))
		})
	}
}

func TestValidateEntities_ChecksDisabled(t *testing.T) {
	sc := NewSafetyChecker()
	sc.InjectionChecks = false

	err := sc.ValidateEntities(Entities{Department: &Department{Name: "1' OR '1'='1", FreeForm: true}})
	assert.NoError(t, err)
}

func TestValidateQuery(t *testing.T) {
	sc := NewSafetyChecker()

	tests := []struct {
		name    string
		query   *RenderedQuery
		wantErr bool
	}{
		{
			name:  "select",
			query: &RenderedQuery{SQL: "SELECT * FROM hr_data;", Text: "SELECT * FROM hr_data;"},
		},
		{
			name:    "drop in text",
			query:   &RenderedQuery{SQL: "SELECT :department;", Text: "SELECT 'x'; DROP TABLE hr_data;"},
			wantErr: true,
		},
		{
			name:    "lower-case pragma",
			query:   &RenderedQuery{SQL: "pragma table_info(hr_data);", Text: "pragma table_info(hr_data);"},
			wantErr: true,
		},
		{
			name:    "keyword inside a longer word",
			query:   &RenderedQuery{SQL: "SELECT :department;", Text: "SELECT 'Updates';"},
			wantErr: true,
		},
		{
			name:    "column containing a keyword",
			query:   &RenderedQuery{SQL: "SELECT created_at FROM hr_data;", Text: "SELECT created_at FROM hr_data;"},
			wantErr: true,
		},
		{
			name:  "termination columns",
			query: &RenderedQuery{SQL: "SELECT termination_date FROM hr_data;", Text: "SELECT termination_date FROM hr_data;"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sc.ValidateQuery(tt.query)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeUnsafeQuery, errors.CodeOf(err))
		})
	}
}

func TestValidateQuery_RenderedTemplatesPass(t *testing.T) {
	sc := NewSafetyChecker()
	code := int64(1)
	full := Entities{
		Department:  &Department{Name: "Sales"},
		ServiceCode: &code,
		Year:        &Year{Value: 2022},
	}

	for _, rule := range Rules() {
		q, err := NewTemplateRenderer().Render(Classification{Intent: rule.Intent, Entities: full})
		require.NoError(t, err)
		assert.NoError(t, sc.ValidateQuery(q), rule.Name)
	}
}
