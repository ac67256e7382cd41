package processor

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Query template constants
const (
	// ListRowsLimit caps the raw row listing
	ListRowsLimit = 100
	// HiringBuffer is applied on top of average monthly terminations
	HiringBuffer = 1.1
)

const departmentAttritionSQL = `SELECT :department AS department,
       COUNT(*) AS total_count,
       COUNT(*) FILTER (WHERE termination_date IS NOT NULL) AS terminated_count,
       ROUND(100.0 * COUNT(*) FILTER (WHERE termination_date IS NOT NULL) / NULLIF(COUNT(*), 0), 2) AS attrition_rate
FROM hr_data
WHERE department = :department COLLATE NOCASE;`

const hiringRecommendationSQL = `WITH monthly AS (
    SELECT strftime('%Y-%m', termination_date) AS ym,
           COUNT(*) AS monthly_terminations
    FROM hr_data
    WHERE department = :department COLLATE NOCASE
      AND termination_date IS NOT NULL
    GROUP BY ym
),
summary AS (
    SELECT COUNT(*) AS months_with_terminations,
           COALESCE(AVG(monthly_terminations), 0) AS terminations
    FROM monthly
)
SELECT :department AS department,
       months_with_terminations,
       ROUND(terminations, 2) AS avg_monthly_attrition,
       CAST(ceil(terminations * 1.1) AS INTEGER) AS recommended_hiring_target
FROM summary;`

const ageServiceSQL = `SELECT CASE
           WHEN age IS NULL THEN 'unknown'
           WHEN age < 25 THEN '<25'
           WHEN age < 35 THEN '25-34'
           WHEN age < 45 THEN '35-44'
           WHEN age < 55 THEN '45-54'
           ELSE '55+'
       END AS age_group,
       COUNT(*) AS total_terminations,
       COUNT(*) FILTER (WHERE service = :service_code) AS service_terminations,
       ROUND(100.0 * COUNT(*) FILTER (WHERE service = :service_code) / NULLIF(COUNT(*), 0), 2) AS service_percentage
FROM hr_data
WHERE department = :department COLLATE NOCASE
  AND termination_date IS NOT NULL
GROUP BY age_group
ORDER BY MIN(age);`

// Annual attrition is assembled from a year set and a shared body
const (
	annualAllYears = `WITH years AS (
    SELECT DISTINCT year FROM (
        SELECT CAST(strftime('%Y', hire_date) AS INTEGER) AS year FROM hr_data
        UNION
        SELECT CAST(strftime('%Y', termination_date) AS INTEGER) FROM hr_data
    )
    WHERE year IS NOT NULL
),
`
	annualExplicitYear = `WITH years AS (
    SELECT :year AS year
),
`
	annualLastYear = `WITH years AS (
    SELECT CAST(strftime('%Y', 'now', '-1 year') AS INTEGER) AS year
),
`
	annualCurrentYear = `WITH years AS (
    SELECT CAST(strftime('%Y', 'now') AS INTEGER) AS year
),
`
	annualBody = `stats AS (
    SELECT y.year AS year,
           SUM(CASE WHEN CAST(strftime('%Y', h.hire_date) AS INTEGER) <= y.year
                     AND (h.termination_date IS NULL OR CAST(strftime('%Y', h.termination_date) AS INTEGER) >= y.year)
                    THEN 1 ELSE 0 END) AS headcount,
           SUM(CASE WHEN CAST(strftime('%Y', h.termination_date) AS INTEGER) = y.year
                    THEN 1 ELSE 0 END) AS terminations
    FROM years y
    LEFT JOIN hr_data h ON 1 = 1
    GROUP BY y.year
)
SELECT year,
       COALESCE(headcount, 0) AS headcount,
       COALESCE(terminations, 0) AS terminations,
       ROUND(100.0 * terminations / NULLIF(headcount, 0), 2) AS attrition_rate
FROM stats
ORDER BY year;`
)

const monthlyTrendSQL = `SELECT strftime('%Y-%m', hire_date) AS ym,
       COUNT(*) FILTER (WHERE termination_date IS NOT NULL) AS terminations,
       COUNT(*) FILTER (WHERE termination_date IS NULL) AS active
FROM hr_data
GROUP BY ym
ORDER BY ym;`

var listRowsSQL = fmt.Sprintf("SELECT * FROM hr_data LIMIT %d;", ListRowsLimit)

// placeholderPattern matches named parameters. It skips the "::" cast form.
var placeholderPattern = regexp.MustCompile(`(^|[^:]):([a-z_]+)`)

// RenderedQuery is an executable query plus the values bound to it
type RenderedQuery struct {
	Intent Intent `json:"intent"`
	// SQL is what gets executed; entity values only appear as bound parameters
	SQL    string                 `json:"-"`
	Params map[string]interface{} `json:"params,omitempty"`
	// Text is SQL with the parameters inlined as literals, for display and auditing
	Text string `json:"sql"`
}

// TemplateRenderer turns a classification into a parameterized query
type TemplateRenderer struct{}

// NewTemplateRenderer creates a new template renderer
func NewTemplateRenderer() *TemplateRenderer {
	return &TemplateRenderer{}
}

// Render builds the query for the classified intent. It fails when a template
// references a parameter that was not bound.
func (tr *TemplateRenderer) Render(c Classification) (*RenderedQuery, error) {
	sql, params, err := tr.build(c)
	if err != nil {
		return nil, err
	}

	for _, name := range placeholders(sql) {
		if _, ok := params[name]; !ok {
			return nil, fmt.Errorf("template for %s references unbound parameter :%s", c.Intent, name)
		}
	}

	return &RenderedQuery{
		Intent: c.Intent,
		SQL:    sql,
		Params: params,
		Text:   inline(sql, params),
	}, nil
}

func (tr *TemplateRenderer) build(c Classification) (string, map[string]interface{}, error) {
	params := map[string]interface{}{}
	e := c.Entities

	switch c.Intent {
	case IntentDepartmentAttrition, IntentHiringRecommendation:
		if e.Department == nil {
			return "", nil, fmt.Errorf("%s requires a department", c.Intent)
		}
		params["department"] = e.Department.Name
		if c.Intent == IntentHiringRecommendation {
			return hiringRecommendationSQL, params, nil
		}
		return departmentAttritionSQL, params, nil

	case IntentAgeServiceWithDepartment, IntentAgeServiceDefault:
		switch {
		case e.Department != nil:
			params["department"] = e.Department.Name
		case c.Intent == IntentAgeServiceDefault:
			params["department"] = DefaultDepartment
		default:
			return "", nil, fmt.Errorf("%s requires a department", c.Intent)
		}
		params["service_code"] = DefaultServiceCode
		if e.ServiceCode != nil {
			params["service_code"] = *e.ServiceCode
		}
		return ageServiceSQL, params, nil

	case IntentAnnualAttrition:
		switch {
		case e.Year == nil:
			return annualAllYears + annualBody, params, nil
		case !e.Year.Relative:
			params["year"] = int64(e.Year.Value)
			return annualExplicitYear + annualBody, params, nil
		case e.Year.Offset == 0:
			return annualCurrentYear + annualBody, params, nil
		default:
			return annualLastYear + annualBody, params, nil
		}

	case IntentMonthlyTrend:
		return monthlyTrendSQL, params, nil

	case IntentListRows:
		return listRowsSQL, params, nil
	}

	return "", nil, fmt.Errorf("no template for intent %q", c.Intent)
}

// placeholders lists the distinct parameter names referenced by sql
func placeholders(sql string) []string {
	seen := map[string]bool{}
	var names []string
	for _, match := range placeholderPattern.FindAllStringSubmatch(stripLiterals(sql), -1) {
		if !seen[match[2]] {
			seen[match[2]] = true
			names = append(names, match[2])
		}
	}
	sort.Strings(names)
	return names
}

// stripLiterals blanks out quoted string literals so format strings are not
// mistaken for parameters
func stripLiterals(sql string) string {
	var b strings.Builder
	inQuote := false
	for _, r := range sql {
		if r == '\'' {
			inQuote = !inQuote
			b.WriteRune(r)
			continue
		}
		if inQuote {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// inline substitutes literal values for display
func inline(sql string, params map[string]interface{}) string {
	return placeholderPattern.ReplaceAllStringFunc(sql, func(m string) string {
		sub := placeholderPattern.FindStringSubmatch(m)
		value, ok := params[sub[2]]
		if !ok {
			return m
		}
		return sub[1] + literal(value)
	})
}

func literal(v interface{}) string {
	switch val := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case nil:
		return "NULL"
	default:
		return fmt.Sprintf("'%v'", val)
	}
}
