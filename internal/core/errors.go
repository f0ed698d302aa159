package core

import (
	"errors"
	"fmt"
)

// Sentinels for the fatal error kinds. Every typed error below wraps one of
// these, so callers can test with errors.Is without knowing the concrete type.
var (
	ErrIngestIO            = errors.New("ingest io error")
	ErrMalformedIdentifier = errors.New("malformed composite identifier")
	ErrSinkConnection      = errors.New("sink connection error")
	ErrBatchLoad           = errors.New("batch load failed")
	ErrExport              = errors.New("export failed")
	ErrConfig              = errors.New("configuration error")
)

// IngestIOError reports an unreadable or corrupt input file or archive.
type IngestIOError struct {
	Path string
	Err  error
}

func (e *IngestIOError) Error() string {
	return fmt.Sprintf("ingest io error: %s: %v", e.Path, e.Err)
}

func (e *IngestIOError) Unwrap() error { return e.Err }

func (e *IngestIOError) Is(target error) bool { return target == ErrIngestIO }

// MalformedIdentifierError reports a composite identifier without separator.
// It aborts reconciliation of the whole batch.
type MalformedIdentifierError struct {
	Row    int
	Column string
	Value  string
	Null   bool
}

func (e *MalformedIdentifierError) Error() string {
	if e.Null {
		return fmt.Sprintf("malformed composite identifier: %s is null at row %d", e.Column, e.Row)
	}
	return fmt.Sprintf("malformed composite identifier: %s=%q at row %d has no separator", e.Column, e.Value, e.Row)
}

func (e *MalformedIdentifierError) Is(target error) bool { return target == ErrMalformedIdentifier }

// SinkConnectionError reports a failure to reach or open a sink.
type SinkConnectionError struct {
	Sink string
	Err  error
}

func (e *SinkConnectionError) Error() string {
	return fmt.Sprintf("sink connection error: %s: %v", e.Sink, e.Err)
}

func (e *SinkConnectionError) Unwrap() error { return e.Err }

func (e *SinkConnectionError) Is(target error) bool { return target == ErrSinkConnection }

// BatchLoadError reports a failed bulk-copy batch. Rows [Start, End) were
// rolled back; rows before Start were already committed.
type BatchLoadError struct {
	Table string
	Batch int
	Start int
	End   int
	Err   error
}

func (e *BatchLoadError) Error() string {
	return fmt.Sprintf("batch load failed: table %s batch %d (rows %d-%d): %v", e.Table, e.Batch, e.Start, e.End, e.Err)
}

func (e *BatchLoadError) Unwrap() error { return e.Err }

func (e *BatchLoadError) Is(target error) bool { return target == ErrBatchLoad }

// ExportError reports a failed partition, divergence or indicator write.
type ExportError struct {
	Target string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export failed: %s: %v", e.Target, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

func (e *ExportError) Is(target error) bool { return target == ErrExport }
