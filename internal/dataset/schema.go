package dataset

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TableName is the table every dataset is loaded into
const TableName = "hr_data"

// RequiredColumns is the column contract every analytical template binds against
var RequiredColumns = []string{"department", "age", "service", "hire_date", "termination_date"}

// dateColumns are always normalized to ISO dates, whatever their inferred type
var dateColumns = map[string]bool{
	"hire_date":        true,
	"termination_date": true,
}

// ColumnType is the SQLite affinity chosen for a CSV column
type ColumnType string

const (
	TypeInteger ColumnType = "INTEGER"
	TypeReal    ColumnType = "REAL"
	TypeText    ColumnType = "TEXT"
	TypeDate    ColumnType = "DATE"
)

// Column describes one ingested column
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// sqlType returns the declared type used in CREATE TABLE
func (c Column) sqlType() string {
	if c.Type == TypeDate {
		return string(TypeText)
	}
	return string(c.Type)
}

// dateLayouts are tried in order when normalizing dates
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"02.01.2006",
	"1/2/2006",
}

// parseDate returns the ISO form of s, if s is a date in a known layout
func parseDate(s string) (string, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

// NormalizeHeader trims, lower-cases and snake-cases a CSV header cell
func NormalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.Join(strings.Fields(h), "_")
}

// normalizeHeaders normalizes a header row, naming blank cells and
// suffixing duplicates so every column name is unique
func normalizeHeaders(raw []string) []string {
	names := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	for i, h := range raw {
		name := NormalizeHeader(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		} else {
			seen[name] = 1
		}
		names[i] = name
	}
	return names
}

// missingColumns returns the required columns absent from names, sorted
func missingColumns(names []string) []string {
	present := make(map[string]bool, len(names))
	for _, n := range names {
		present[n] = true
	}

	var missing []string
	for _, req := range RequiredColumns {
		if !present[req] {
			missing = append(missing, req)
		}
	}
	sort.Strings(missing)
	return missing
}

// inferType picks the narrowest type that fits every non-empty value
func inferType(name string, values []string) ColumnType {
	if dateColumns[name] {
		return TypeDate
	}

	isInt, isReal, isDate := true, true, true
	nonEmpty := 0
	for _, v := range values {
		if v == "" {
			continue
		}
		nonEmpty++
		if isInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				isInt = false
			}
		}
		if isReal {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				isReal = false
			}
		}
		if isDate {
			if _, ok := parseDate(v); !ok {
				isDate = false
			}
		}
		if !isInt && !isReal && !isDate {
			break
		}
	}

	switch {
	case nonEmpty == 0:
		return TypeText
	case isInt:
		return TypeInteger
	case isReal:
		return TypeReal
	case isDate:
		return TypeDate
	default:
		return TypeText
	}
}

// convert maps a raw CSV cell to the Go value bound for its column type.
// Empty cells become NULL.
func convert(t ColumnType, raw string) interface{} {
	if raw == "" {
		return nil
	}
	switch t {
	case TypeInteger:
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return i
		}
	case TypeReal:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	case TypeDate:
		if d, ok := parseDate(raw); ok {
			return d
		}
	}
	return raw
}

// quoteIdent quotes a column name for use in SQL
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
