package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, question string) *RenderedQuery {
	t.Helper()
	q, err := NewTemplateRenderer().Render(NewIntentClassifier().Classify(question))
	require.NoError(t, err)
	return q
}

func TestRender_DepartmentAttrition(t *testing.T) {
	q := render(t, "текучесть в отделе HR")

	assert.Equal(t, IntentDepartmentAttrition, q.Intent)
	assert.Equal(t, map[string]interface{}{"department": "HR"}, q.Params)
	assert.Contains(t, q.SQL, "WHERE department = :department COLLATE NOCASE")
	assert.NotContains(t, q.SQL, "'HR'")
	assert.Contains(t, q.Text, "WHERE department = 'HR' COLLATE NOCASE")
	assert.Contains(t, q.Text, "AS attrition_rate")
	assert.Contains(t, q.Text, "NULLIF(COUNT(*), 0)")
}

func TestRender_HiringRecommendation(t *testing.T) {
	q := render(t, "сколько нанимать в отдел Sales")

	assert.Equal(t, IntentHiringRecommendation, q.Intent)
	assert.Equal(t, "Sales", q.Params["department"])
	assert.Contains(t, q.Text, "ceil(terminations * 1.1)")
	assert.Contains(t, q.Text, "AS recommended_hiring_target")
	assert.Contains(t, q.Text, "AS avg_monthly_attrition")
}

func TestRender_ListRows(t *testing.T) {
	q := render(t, "hello")

	assert.Equal(t, IntentListRows, q.Intent)
	assert.Equal(t, "SELECT * FROM hr_data LIMIT 100;", q.Text)
	assert.Empty(t, q.Params)
}

func TestRender_AgeService(t *testing.T) {
	t.Run("default department and service level", func(t *testing.T) {
		q := render(t, "возраст и стаж")
		assert.Equal(t, IntentAgeServiceDefault, q.Intent)
		assert.Equal(t, DefaultDepartment, q.Params["department"])
		assert.Equal(t, DefaultServiceCode, q.Params["service_code"])
	})

	t.Run("named department and service level", func(t *testing.T) {
		q := render(t, "возраст и стаж 3 в отделе IT")
		assert.Equal(t, IntentAgeServiceWithDepartment, q.Intent)
		assert.Equal(t, "IT", q.Params["department"])
		assert.Equal(t, int64(3), q.Params["service_code"])
		assert.Contains(t, q.Text, "WHERE service = 3")
		assert.Contains(t, q.Text, "AS age_group")
	})
}

func TestRender_Annual(t *testing.T) {
	tests := []struct {
		name       string
		question   string
		params     map[string]interface{}
		contains   string
		notContain string
	}{
		{
			name:     "explicit year",
			question: "текучесть за 2023 год",
			params:   map[string]interface{}{"year": int64(2023)},
			contains: "SELECT 2023 AS year",
		},
		{
			name:     "last year",
			question: "текучесть за прошлый год",
			params:   map[string]interface{}{},
			contains: "strftime('%Y', 'now', '-1 year')",
		},
		{
			name:       "current year",
			question:   "attrition this year",
			params:     map[string]interface{}{},
			contains:   "strftime('%Y', 'now')",
			notContain: "-1 year",
		},
		{
			name:     "every year",
			question: "annual attrition",
			params:   map[string]interface{}{},
			contains: "SELECT DISTINCT year",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := render(t, tt.question)
			assert.Equal(t, IntentAnnualAttrition, q.Intent)
			assert.Equal(t, tt.params, q.Params)
			assert.Contains(t, q.Text, tt.contains)
			assert.Contains(t, q.Text, "AS attrition_rate")
			if tt.notContain != "" {
				assert.NotContains(t, q.Text, tt.notContain)
			}
		})
	}
}

func TestRender_MonthlyTrend(t *testing.T) {
	q := render(t, "текучесть")

	assert.Equal(t, IntentMonthlyTrend, q.Intent)
	assert.Contains(t, q.Text, "AS ym")
	assert.Contains(t, q.Text, "AS active")
}

func TestRender_FreeFormValueIsBound(t *testing.T) {
	c := Classification{
		Intent:   IntentDepartmentAttrition,
		Entities: Entities{Department: &Department{Name: "O'Brien", FreeForm: true}},
	}

	q, err := NewTemplateRenderer().Render(c)
	require.NoError(t, err)
	assert.Equal(t, "O'Brien", q.Params["department"])
	assert.NotContains(t, q.SQL, "Brien")
	assert.Contains(t, q.Text, "'O''Brien'")
}

func TestRender_MissingEntity(t *testing.T) {
	tr := NewTemplateRenderer()

	for _, intent := range []Intent{IntentDepartmentAttrition, IntentHiringRecommendation, IntentAgeServiceWithDepartment} {
		_, err := tr.Render(Classification{Intent: intent})
		assert.Error(t, err, intent)
	}

	_, err := tr.Render(Classification{Intent: "Unknown"})
	assert.Error(t, err)
}

func TestRender_Deterministic(t *testing.T) {
	assert.Equal(t, render(t, "текучесть в отделе HR"), render(t, "текучесть в отделе HR"))
}

// Every template only references parameters its intent binds
func TestRender_AllTemplatesFullyBound(t *testing.T) {
	code := int64(2)
	full := Entities{
		Department:  &Department{Name: "HR"},
		ServiceCode: &code,
		Year:        &Year{Value: 2022},
	}

	for _, rule := range Rules() {
		t.Run(string(rule.Intent), func(t *testing.T) {
			q, err := NewTemplateRenderer().Render(Classification{Intent: rule.Intent, Entities: full})
			require.NoError(t, err)
			for _, name := range placeholders(q.SQL) {
				assert.Contains(t, q.Params, name)
			}
			assert.Empty(t, placeholders(q.Text))
		})
	}
}

func TestPlaceholders(t *testing.T) {
	names := placeholders("SELECT :b, :a, x::int, ':c', :a FROM t")
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestLiteral(t *testing.T) {
	assert.Equal(t, "'it''s'", literal("it's"))
	assert.Equal(t, "42", literal(int64(42)))
	assert.Equal(t, "7", literal(7))
	assert.Equal(t, "1.5", literal(1.5))
	assert.Equal(t, "NULL", literal(nil))
}
