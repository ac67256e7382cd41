// Package dataset loads HR CSV files into per-handle in-memory SQLite
// databases and runs analytical queries against them.
package dataset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"zombiezen.com/go/sqlite"

	"github.com/VenGr0/hr-analytics-bot/internal/errors"
	"github.com/VenGr0/hr-analytics-bot/internal/observability"
)

// Query is a parameterized statement. Params are keyed by name without the ':' prefix.
type Query struct {
	SQL    string
	Params map[string]interface{}
}

// Row maps column names to values (int64, float64, string or nil)
type Row map[string]interface{}

// Result holds the rows produced by one query
type Result struct {
	Columns     []string `json:"columns"`
	Rows        []Row    `json:"rows"`
	Fingerprint string   `json:"fingerprint"`
}

// Info describes a dataset file and, once loaded, its table
type Info struct {
	Handle      string     `json:"handle"`
	SizeBytes   int64      `json:"size_bytes"`
	ModifiedAt  time.Time  `json:"modified_at"`
	Loaded      bool       `json:"loaded"`
	Rows        int        `json:"rows,omitempty"`
	Columns     []Column   `json:"columns,omitempty"`
	Fingerprint string     `json:"fingerprint,omitempty"`
	LoadedAt    *time.Time `json:"loaded_at,omitempty"`
}

// entry owns the SQLite connection for one handle. mu serializes loads
// and queries, since a connection is not safe for concurrent use.
type entry struct {
	mu      sync.Mutex
	handle  string
	path    string
	conn    *sqlite.Conn
	modTime time.Time
	size    int64
	info    Info
}

// Registry resolves dataset handles inside a data directory and keeps one
// loaded database per handle
type Registry struct {
	dataDir string
	logger  *observability.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry creates a registry rooted at dataDir
func NewRegistry(dataDir string, logger *observability.Logger) *Registry {
	if logger == nil {
		logger = observability.NewLogger("dataset")
	}
	return &Registry{
		dataDir: dataDir,
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// DataDir returns the directory datasets are resolved in
func (r *Registry) DataDir() string {
	return r.dataDir
}

// Resolve maps a caller supplied handle to a file inside the data directory.
// Any directory part of the handle is discarded.
func (r *Registry) Resolve(handle string) (string, string, error) {
	name := filepath.Base(strings.TrimSpace(handle))
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return "", "", errors.NewDatasetNotFoundError(handle)
	}
	return name, filepath.Join(r.dataDir, name), nil
}

func (r *Registry) entryFor(name, path string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		e = &entry{handle: name, path: path}
		r.entries[name] = e
	}
	return e
}

// withEntry runs fn with the handle's lock held and its table up to date
func (r *Registry) withEntry(ctx context.Context, handle string, force bool, fn func(*entry) error) error {
	name, path, err := r.Resolve(handle)
	if err != nil {
		return err
	}

	e := r.entryFor(name, path)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := r.refresh(ctx, e, force); err != nil {
		return err
	}
	return fn(e)
}

// refresh reloads the table when the file changed on disk since the last load
func (r *Registry) refresh(ctx context.Context, e *entry, force bool) error {
	st, err := os.Stat(e.path)
	if err != nil || !st.Mode().IsRegular() {
		return errors.NewDatasetNotFoundError(e.handle)
	}

	if !force && e.conn != nil && st.ModTime().Equal(e.modTime) && st.Size() == e.size {
		return nil
	}

	return r.load(ctx, e, st)
}

func (r *Registry) load(ctx context.Context, e *entry, st os.FileInfo) (err error) {
	start := time.Now()
	rows := 0
	defer func() {
		observability.RecordDatasetLoad(e.handle, rows, time.Since(start), err)
	}()

	data, err := os.ReadFile(e.path)
	if err != nil {
		return errors.NewDatasetNotFoundError(e.handle)
	}

	t, err := parseCSV(data)
	if err != nil {
		var schemaErr *SchemaError
		if stderrors.As(err, &schemaErr) {
			r.logger.Warn(ctx, "Dataset schema mismatch", map[string]interface{}{
				"dataset": e.handle,
				"missing": schemaErr.Missing,
			})
			return errors.NewSchemaMismatchError(e.handle, schemaErr.Missing)
		}
		return errors.NewDatasetLoadError(err, e.handle)
	}

	if e.conn == nil {
		conn, err := openConn()
		if err != nil {
			return errors.NewDatasetLoadError(err, e.handle)
		}
		e.conn = conn
	}

	prev := e.conn.SetInterrupt(ctx.Done())
	err = loadTable(e.conn, t)
	e.conn.SetInterrupt(prev)
	if err != nil {
		r.logger.Error(ctx, "Failed to load dataset", err, map[string]interface{}{
			"dataset": e.handle,
		})
		return errors.NewDatasetLoadError(err, e.handle)
	}

	sum := sha256.Sum256(data)
	now := time.Now().UTC()
	rows = len(t.rows)
	e.modTime = st.ModTime()
	e.size = st.Size()
	e.info = Info{
		Handle:      e.handle,
		SizeBytes:   st.Size(),
		ModifiedAt:  st.ModTime().UTC(),
		Loaded:      true,
		Rows:        rows,
		Columns:     t.columns,
		Fingerprint: hex.EncodeToString(sum[:]),
		LoadedAt:    &now,
	}

	r.logger.Info(ctx, "Dataset loaded", map[string]interface{}{
		"dataset":     e.handle,
		"rows":        rows,
		"columns":     len(t.columns),
		"fingerprint": e.info.Fingerprint[:12],
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return nil
}

func openConn() (*sqlite.Conn, error) {
	conn, err := sqlite.OpenConn(":memory:", sqlite.OpenReadWrite, sqlite.OpenCreate)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	if err := registerFunctions(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to register functions: %w", err)
	}
	return conn, nil
}

// Load (re)reads the dataset file regardless of whether it changed
func (r *Registry) Load(ctx context.Context, handle string) (Info, error) {
	var info Info
	err := r.withEntry(ctx, handle, true, func(e *entry) error {
		info = e.info
		return nil
	})
	return info, err
}

// Fingerprint returns the content hash of the dataset, loading it if needed
func (r *Registry) Fingerprint(ctx context.Context, handle string) (string, error) {
	var fingerprint string
	err := r.withEntry(ctx, handle, false, func(e *entry) error {
		fingerprint = e.info.Fingerprint
		return nil
	})
	return fingerprint, err
}

// Execute runs q against the dataset, reloading it first if the file changed
func (r *Registry) Execute(ctx context.Context, handle string, q Query) (*Result, error) {
	var result *Result
	err := r.withEntry(ctx, handle, false, func(e *entry) error {
		res, err := execute(ctx, e.conn, q)
		if err != nil {
			return errors.NewExecutionError(err)
		}
		res.Fingerprint = e.info.Fingerprint
		result = res
		return nil
	})
	return result, err
}

func execute(ctx context.Context, conn *sqlite.Conn, q Query) (*Result, error) {
	prev := conn.SetInterrupt(ctx.Done())
	defer conn.SetInterrupt(prev)

	stmt, trailing, err := conn.PrepareTransient(q.SQL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = stmt.Finalize() }()

	if rest := q.SQL[len(q.SQL)-trailing:]; strings.Trim(rest, " \t\r\n;") != "" {
		return nil, fmt.Errorf("only a single statement may be executed")
	}

	for i := 1; i <= stmt.BindParamCount(); i++ {
		name := stmt.BindParamName(i)
		value, ok := q.Params[strings.TrimLeft(name, ":@$")]
		if !ok {
			return nil, fmt.Errorf("parameter %s is not bound", name)
		}
		bindValue(stmt, i, value)
	}

	columns := make([]string, stmt.ColumnCount())
	for i := range columns {
		columns[i] = stmt.ColumnName(i)
	}

	rows := make([]Row, 0)
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("query interrupted: %w", ctx.Err())
			}
			return nil, err
		}
		if !hasRow {
			break
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = columnValue(stmt, i)
		}
		rows = append(rows, row)
	}

	return &Result{Columns: columns, Rows: rows}, nil
}

func columnValue(stmt *sqlite.Stmt, i int) interface{} {
	switch stmt.ColumnType(i) {
	case sqlite.TypeNull:
		return nil
	case sqlite.TypeInteger:
		return stmt.ColumnInt64(i)
	case sqlite.TypeFloat:
		return stmt.ColumnFloat(i)
	default:
		return stmt.ColumnText(i)
	}
}

// Save validates an uploaded CSV and stores it under name in the data
// directory, replacing any previous file and table of the same handle.
// An invalid upload leaves the existing dataset untouched.
func (r *Registry) Save(ctx context.Context, name string, src io.Reader, maxBytes int64) (Info, error) {
	handle, path, err := r.Resolve(name)
	if err != nil {
		return Info{}, errors.NewInvalidInputError("file", "a file name is required")
	}
	if !strings.EqualFold(filepath.Ext(handle), ".csv") || strings.HasPrefix(handle, ".") {
		return Info{}, errors.NewInvalidInputError("file", "only .csv files can be uploaded")
	}

	data, err := io.ReadAll(io.LimitReader(src, maxBytes+1))
	if err != nil {
		return Info{}, errors.NewInvalidInputError("file", fmt.Sprintf("failed to read upload: %v", err))
	}
	if int64(len(data)) > maxBytes {
		return Info{}, errors.NewInvalidInputError("file", fmt.Sprintf("file exceeds the %d byte upload limit", maxBytes))
	}

	if _, err := parseCSV(data); err != nil {
		var schemaErr *SchemaError
		if stderrors.As(err, &schemaErr) {
			return Info{}, errors.NewSchemaMismatchError(handle, schemaErr.Missing)
		}
		return Info{}, errors.NewDatasetLoadError(err, handle)
	}

	if err := os.MkdirAll(r.dataDir, 0o755); err != nil {
		return Info{}, fmt.Errorf("failed to create data directory: %w", err)
	}

	tmp, err := os.CreateTemp(r.dataDir, ".upload-*")
	if err != nil {
		return Info{}, fmt.Errorf("failed to create upload file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return Info{}, fmt.Errorf("failed to write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Info{}, fmt.Errorf("failed to write upload: %w", err)
	}

	e := r.entryFor(handle, path)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.Rename(tmp.Name(), path); err != nil {
		return Info{}, fmt.Errorf("failed to store upload: %w", err)
	}
	if err := r.refresh(ctx, e, true); err != nil {
		return Info{}, err
	}

	r.logger.Info(ctx, "Dataset uploaded", map[string]interface{}{
		"dataset":    handle,
		"size_bytes": len(data),
	})
	return e.info, nil
}

// List returns every CSV file in the data directory, with table details
// for the ones already loaded
func (r *Registry) List() ([]Info, error) {
	dirEntries, err := os.ReadDir(r.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Info{}, nil
		}
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	infos := make([]Info, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || strings.HasPrefix(name, ".") || !strings.EqualFold(filepath.Ext(name), ".csv") {
			continue
		}

		fi, err := de.Info()
		if err != nil {
			continue
		}

		info := Info{
			Handle:     name,
			SizeBytes:  fi.Size(),
			ModifiedAt: fi.ModTime().UTC(),
		}

		r.mu.Lock()
		e, ok := r.entries[name]
		r.mu.Unlock()
		if ok {
			e.mu.Lock()
			if e.info.Loaded && e.size == fi.Size() && e.modTime.Equal(fi.ModTime()) {
				info = e.info
			}
			e.mu.Unlock()
		}

		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Handle < infos[j].Handle })
	return infos, nil
}

// Count returns the number of CSV files available
func (r *Registry) Count() (int, error) {
	infos, err := r.List()
	if err != nil {
		return 0, err
	}
	return len(infos), nil
}

// Close releases every loaded database
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, e := range r.entries {
		e.mu.Lock()
		if e.conn != nil {
			if err := e.conn.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", name, err))
			}
			e.conn = nil
		}
		e.mu.Unlock()
	}
	r.entries = make(map[string]*entry)
	return stderrors.Join(errs...)
}
