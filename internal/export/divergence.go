package export

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/JonMunkholm/retail-etl/internal/core"
	"github.com/JonMunkholm/retail-etl/internal/join"
	"github.com/JonMunkholm/retail-etl/internal/logging"
	"github.com/JonMunkholm/retail-etl/internal/metrics"
)

// DivergenceReporter writes divergence sets as single-column CSV files.
type DivergenceReporter struct {
	dir     string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewDivergenceReporter creates a reporter writing into dir.
func NewDivergenceReporter(dir string, logger *slog.Logger, m *metrics.Metrics) *DivergenceReporter {
	if logger == nil {
		logger = logging.Nop()
	}
	return &DivergenceReporter{dir: dir, logger: logger, metrics: m}
}

// Path returns the file a set with the given name is written to.
func (r *DivergenceReporter) Path(name string) string {
	return filepath.Join(r.dir, name+".csv")
}

// Write writes every set to {dir}/{name}.csv in name order and returns the
// written paths. The header is the set name; a null key is an empty cell.
// Empty sets still produce a header-only file.
func (r *DivergenceReporter) Write(sets []*join.DivergenceSet) ([]string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, &core.ExportError{Target: r.dir, Err: err}
	}

	ordered := make([]*join.DivergenceSet, len(sets))
	copy(ordered, sets)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Name < ordered[j].Name })

	paths := make([]string, 0, len(ordered))
	for _, set := range ordered {
		path := r.Path(set.Name)
		if err := writeKeyColumn(path, set.Name, set.Values()); err != nil {
			return paths, &core.ExportError{Target: path, Err: err}
		}
		paths = append(paths, path)
		r.metrics.Divergences(set.Name, set.Len())
		r.logger.Info("divergence report written", "set", set.Name, "keys", set.Len(), "path", path)
	}
	return paths, nil
}

func writeKeyColumn(path, header string, values []core.Value) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{header}); err != nil {
		return err
	}
	record := make([]string, 1)
	for _, v := range values {
		record[0] = v.String()
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return f.Close()
}
