package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// SchemaError reports required columns missing from a CSV header
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Missing, ", "))
}

// table is a parsed CSV ready to be written into SQLite
type table struct {
	columns []Column
	rows    [][]interface{}
}

// sniffDelimiter picks the most frequent of comma, semicolon and tab in the header line
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}

	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// parseCSV reads a CSV with a header row, validates the column contract
// and infers a type for every column
func parseCSV(data []byte) (*table, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, errors.New("file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	names := normalizeHeaders(header)
	if missing := missingColumns(names); len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}

	var raw [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", len(raw)+2, err)
		}

		// Short rows are padded with NULLs, long rows are cut to the header
		row := make([]string, len(names))
		for i := range row {
			if i < len(record) {
				row[i] = strings.TrimSpace(record[i])
			}
		}
		raw = append(raw, row)
	}

	t := &table{columns: make([]Column, len(names))}
	values := make([]string, len(raw))
	for i, name := range names {
		for j, row := range raw {
			values[j] = row[i]
		}
		t.columns[i] = Column{Name: name, Type: inferType(name, values)}
	}

	t.rows = make([][]interface{}, len(raw))
	for j, row := range raw {
		converted := make([]interface{}, len(row))
		for i, cell := range row {
			converted[i] = convert(t.columns[i].Type, cell)
		}
		t.rows[j] = converted
	}

	return t, nil
}

func createTableSQL(columns []Column) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = quoteIdent(c.Name) + " " + c.sqlType()
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", TableName, strings.Join(defs, ", "))
}

func insertSQL(columns []Column) string {
	names := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		names[i] = quoteIdent(c.Name)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", TableName, strings.Join(names, ", "), strings.Join(marks, ", "))
}

// loadTable replaces the dataset table in one transaction. On error the
// transaction rolls back and the previous table stays in place.
func loadTable(conn *sqlite.Conn, t *table) (err error) {
	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("failed to begin load transaction: %w", err)
	}
	defer endFn(&err)

	if err = sqlitex.ExecuteTransient(conn, "DROP TABLE IF EXISTS "+TableName, nil); err != nil {
		return fmt.Errorf("failed to drop previous table: %w", err)
	}
	if err = sqlitex.ExecuteTransient(conn, createTableSQL(t.columns), nil); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	stmt, _, err := conn.PrepareTransient(insertSQL(t.columns))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Finalize() }()

	for n, row := range t.rows {
		for i, v := range row {
			bindValue(stmt, i+1, v)
		}
		if _, err = stmt.Step(); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", n+1, err)
		}
		if err = stmt.Reset(); err != nil {
			return fmt.Errorf("failed to reset insert: %w", err)
		}
	}

	return nil
}

// bindValue binds a Go value to a positional or named parameter
func bindValue(stmt *sqlite.Stmt, param int, v interface{}) {
	switch val := v.(type) {
	case nil:
		stmt.BindNull(param)
	case int64:
		stmt.BindInt64(param, val)
	case int:
		stmt.BindInt64(param, int64(val))
	case float64:
		stmt.BindFloat(param, val)
	case bool:
		if val {
			stmt.BindInt64(param, 1)
		} else {
			stmt.BindInt64(param, 0)
		}
	case string:
		stmt.BindText(param, val)
	default:
		stmt.BindText(param, fmt.Sprint(val))
	}
}
