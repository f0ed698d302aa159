package report

import (
	"context"
	"database/sql/driver"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/retail-etl/internal/core"
	"github.com/JonMunkholm/retail-etl/internal/logging"
)

// Querier runs a query. *pgxpool.Pool and *pgx.Conn satisfy it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Reporter writes indicator result sets to {dir}/{name}.csv.
type Reporter struct {
	db     Querier
	table  string
	dir    string
	logger *slog.Logger
}

// NewReporter creates a reporter querying table through db.
func NewReporter(db Querier, table, dir string, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Reporter{db: db, table: table, dir: dir, logger: logger}
}

// Path returns the output file of an indicator.
func (r *Reporter) Path(name string) string {
	return filepath.Join(r.dir, name+".csv")
}

// Run executes the indicators in order and returns the written paths.
// The first failure stops the run.
func (r *Reporter) Run(ctx context.Context, indicators []Indicator) ([]string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, &core.ExportError{Target: r.dir, Err: err}
	}

	paths := make([]string, 0, len(indicators))
	for _, ind := range indicators {
		start := time.Now()
		path := r.Path(ind.Name)
		rows, err := r.write(ctx, ind, path)
		if err != nil {
			return paths, &core.ExportError{Target: ind.Name, Err: err}
		}
		paths = append(paths, path)
		r.logger.Info("indicator exported",
			"indicator", ind.Name,
			"rows", rows,
			"path", path,
			"duration", time.Since(start),
		)
	}
	return paths, nil
}

func (r *Reporter) write(ctx context.Context, ind Indicator, path string) (int, error) {
	rows, err := r.db.Query(ctx, ind.SQL(r.table))
	if err != nil {
		return 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	fields := rows.FieldDescriptions()
	header := make([]string, len(fields))
	for i, fd := range fields {
		header[i] = fd.Name
	}
	if err := w.Write(header); err != nil {
		return 0, err
	}

	const flushInterval = 1000
	count := 0
	record := make([]string, len(fields))
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return count, fmt.Errorf("read row values: %w", err)
		}
		for i := range record {
			record[i] = ""
			if i < len(values) {
				record[i] = FormatCell(values[i])
			}
		}
		if err := w.Write(record); err != nil {
			return count, err
		}
		count++
		if count%flushInterval == 0 {
			w.Flush()
		}
	}
	if err := rows.Err(); err != nil {
		return count, fmt.Errorf("iterate rows: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return count, err
	}
	return count, f.Close()
}

// FormatCell renders a value decoded by pgx as a CSV cell. Null is empty.
func FormatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int16:
		return strconv.FormatInt(int64(val), 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case driver.Valuer:
		// pgtype.Numeric and friends encode themselves as text.
		dv, err := val.Value()
		if err != nil || dv == nil {
			return ""
		}
		return FormatCell(dv)
	default:
		return fmt.Sprintf("%v", val)
	}
}
