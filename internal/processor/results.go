// internal/processor/results.go
package processor

import (
	"fmt"
	"math"
	"strconv"

	"github.com/VenGr0/hr-analytics-bot/internal/dataset"
)

// MaxResultRowsDefault caps the rows returned to a caller
const MaxResultRowsDefault = 200

// ResultProcessor handles truncation and summarizing of query results
type ResultProcessor struct {
	maxRows int
}

// NewResultProcessor creates a new result processor with the default row limit
func NewResultProcessor() *ResultProcessor {
	return &ResultProcessor{maxRows: MaxResultRowsDefault}
}

// QueryResults represents tabular results ready for presentation
type QueryResults struct {
	Columns   []string      `json:"columns"`
	Rows      []dataset.Row `json:"rows"`
	TotalRows int           `json:"total_rows"`
	Truncated bool          `json:"truncated"`
	Summary   string        `json:"summary"`           // Human-readable summary
	Insight   string        `json:"insight,omitempty"` // Headline finding, when one applies
}

// ProcessResults truncates the result set and derives a summary and insight
func (rp *ResultProcessor) ProcessResults(result *dataset.Result) *QueryResults {
	rows := result.Rows
	if rows == nil {
		rows = []dataset.Row{}
	}

	results := &QueryResults{
		Columns:   result.Columns,
		TotalRows: len(rows),
	}

	if rp.maxRows > 0 && len(rows) > rp.maxRows {
		rows = rows[:rp.maxRows]
		results.Truncated = true
	}
	results.Rows = rows

	results.Summary = rp.generateSummary(results)
	results.Insight = rp.generateInsight(results)

	return results
}

// generateSummary creates a human-readable summary of the result shape
func (rp *ResultProcessor) generateSummary(results *QueryResults) string {
	switch results.TotalRows {
	case 0:
		return "No data found"
	case 1:
		return fmt.Sprintf("1 row, %d columns", len(results.Columns))
	}

	summary := fmt.Sprintf("%d rows, %d columns", results.TotalRows, len(results.Columns))
	if results.Truncated {
		summary += fmt.Sprintf(" (showing first %d)", len(results.Rows))
	}
	return summary
}

// generateInsight picks the headline number for the known result shapes
func (rp *ResultProcessor) generateInsight(results *QueryResults) string {
	if len(results.Rows) == 0 {
		return ""
	}

	switch {
	case hasColumns(results.Columns, "attrition_rate"):
		if best, ok := maxRow(results.Rows, "attrition_rate"); ok {
			return fmt.Sprintf("Maximum attrition rate observed: %s%%", formatNumber(best["attrition_rate"]))
		}
		return "Attrition rate is undefined: no employees matched"

	case hasColumns(results.Columns, "service_percentage", "age_group"):
		if best, ok := maxRow(results.Rows, "service_percentage"); ok {
			return fmt.Sprintf("Age group with highest service percentage: %v", best["age_group"])
		}

	case hasColumns(results.Columns, "recommended_hiring_target"):
		if target, ok := toFloat(results.Rows[0]["recommended_hiring_target"]); ok {
			return fmt.Sprintf("Recommended monthly target for new hires: %d employees", int64(target))
		}
	}

	return ""
}

func hasColumns(columns []string, names ...string) bool {
	for _, name := range names {
		found := false
		for _, c := range columns {
			if c == name {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// maxRow returns the row with the largest numeric value in column; NULLs are skipped
func maxRow(rows []dataset.Row, column string) (dataset.Row, bool) {
	var best dataset.Row
	bestValue := math.Inf(-1)
	for _, row := range rows {
		v, ok := toFloat(row[column])
		if !ok {
			continue
		}
		if best == nil || v > bestValue {
			best, bestValue = row, v
		}
	}
	return best, best != nil
}

func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case int64:
		return float64(val), true
	case int:
		return float64(val), true
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func formatNumber(v interface{}) string {
	f, ok := toFloat(v)
	if !ok {
		return fmt.Sprintf("%v", v)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
