// Package archive unpacks dataset archives into a scratch directory.
package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zip"

	"github.com/JonMunkholm/retail-etl/internal/core"
	"github.com/JonMunkholm/retail-etl/internal/logging"
)

var (
	// ErrNoDataFile means the archive holds no CSV or JSON file.
	ErrNoDataFile = errors.New("archive contains no data file")
	// ErrMultipleDataFiles means the archive holds more than one CSV or JSON file.
	ErrMultipleDataFiles = errors.New("archive contains more than one data file")
	// ErrUnsafePath means an entry would be written outside the target directory.
	ErrUnsafePath = errors.New("archive entry escapes extraction directory")
	// ErrDirInUse means two archives of one run map to the same extraction directory.
	ErrDirInUse = errors.New("extraction directory already used by another archive")
)

// Extractor unpacks archives below a temporary root. It only ever removes
// what it created: the per-archive directories and, when it made it, the root.
// Extract is safe for concurrent use.
type Extractor struct {
	root   string
	logger *slog.Logger

	mu          sync.Mutex
	dirs        []string
	claimed     map[string]string
	checkedRoot bool
	createdRoot bool
}

// NewExtractor creates an extractor writing below root.
func NewExtractor(root string, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Extractor{root: root, logger: logger, claimed: make(map[string]string)}
}

// Root returns the directory archives are extracted below.
func (e *Extractor) Root() string { return e.root }

// Dir returns the extraction directory of an archive: {root}/{archive stem}.
func (e *Extractor) Dir(archivePath string) string {
	base := filepath.Base(archivePath)
	return filepath.Join(e.root, strings.TrimSuffix(base, filepath.Ext(base)))
}

// Extract unpacks archivePath into Dir(archivePath) and returns the path of
// the single data file it contains. Every failure is a *core.IngestIOError.
func (e *Extractor) Extract(archivePath string) (string, error) {
	dest := e.Dir(archivePath)
	if err := e.claim(archivePath, dest); err != nil {
		return "", &core.IngestIOError{Path: archivePath, Err: err}
	}
	dataFile, err := extract(archivePath, dest)
	if err != nil {
		return "", &core.IngestIOError{Path: archivePath, Err: err}
	}
	e.logger.Debug("archive extracted", "archive", archivePath, "dir", dest, "file", dataFile)
	return dataFile, nil
}

// claim reserves dest for archivePath and records whether the root existed
// before this extractor first wrote to it.
func (e *Extractor) claim(archivePath, dest string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if other, ok := e.claimed[dest]; ok {
		return fmt.Errorf("%w: %s and %s both extract to %s", ErrDirInUse, other, archivePath, dest)
	}
	if !e.checkedRoot {
		e.checkedRoot = true
		if _, err := os.Stat(e.root); errors.Is(err, fs.ErrNotExist) {
			e.createdRoot = true
		}
	}
	e.claimed[dest] = archivePath
	e.dirs = append(e.dirs, dest)
	return nil
}

// Cleanup removes the directories Extract wrote, then the root if this
// extractor created it and it is now empty. Anything else below the root is kept.
func (e *Extractor) Cleanup() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	for _, dir := range e.dirs {
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, err)
		}
	}
	e.dirs = nil
	e.claimed = make(map[string]string)

	if e.createdRoot {
		// Fails harmlessly when something else was put in the root meanwhile.
		if err := os.Remove(e.root); err == nil || errors.Is(err, fs.ErrNotExist) {
			e.createdRoot = false
			e.checkedRoot = false
		}
	}
	return errors.Join(errs...)
}

func extract(archivePath, dest string) (string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer r.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("create extraction dir: %w", err)
	}

	var data []string
	for _, f := range r.File {
		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return "", err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", err
			}
			continue
		}
		if err := writeEntry(f, target); err != nil {
			return "", fmt.Errorf("extract %s: %w", f.Name, err)
		}
		if isDataFile(f.Name) {
			data = append(data, target)
		}
	}

	switch len(data) {
	case 0:
		return "", ErrNoDataFile
	case 1:
		return data[0], nil
	default:
		return "", fmt.Errorf("%w: %d found", ErrMultipleDataFiles, len(data))
	}
}

// safeJoin resolves name below dest, rejecting absolute paths and parent traversal.
func safeJoin(dest, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	target := filepath.Join(dest, name)
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return target, nil
}

func writeEntry(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// isDataFile reports whether an entry is a CSV or JSON file. Hidden files and
// resource-fork folders added by archivers are ignored.
func isDataFile(name string) bool {
	name = filepath.ToSlash(name)
	if strings.HasPrefix(name, "__MACOSX/") {
		return false
	}
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".csv", ".json":
		return true
	}
	return false
}
