// Package reconcile corrects composite sale identifiers whose embedded store
// prefix disagrees with the row's store column.
//
// A composite identifier has the form STORE|COUPON. The store column is the
// authority: when the prefix differs, it is rewritten. The operation is
// idempotent and does not touch any other column.
package reconcile

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/retail-etl/internal/core"
	"github.com/JonMunkholm/retail-etl/internal/logging"
)

// Separator splits the store prefix from the coupon in a composite identifier.
const Separator = "|"

// Reconcile returns compositeID with its store prefix replaced by storeID.
// It splits on the first separator only, so a coupon may itself contain one.
// An identifier without separator is an error.
func Reconcile(storeID, compositeID string) (string, error) {
	embedded, coupon, ok := strings.Cut(compositeID, Separator)
	if !ok {
		return "", fmt.Errorf("no %q in %q", Separator, compositeID)
	}
	if embedded == storeID {
		return compositeID, nil
	}
	return storeID + Separator + coupon, nil
}

// Reconciler applies Reconcile to every row of a batch.
type Reconciler struct {
	StoreColumn     string
	CompositeColumn string

	logger *slog.Logger
}

// New creates a reconciler for the given columns. A nil logger discards output.
func New(storeColumn, compositeColumn string, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Reconciler{
		StoreColumn:     storeColumn,
		CompositeColumn: compositeColumn,
		logger:          logger,
	}
}

// Result summarizes a reconciliation pass.
type Result struct {
	Rows      int
	Corrected int
}

// Apply corrects the composite column of b in place. Every row is validated
// first: if any identifier is null or lacks the separator, Apply returns a
// *core.MalformedIdentifierError and b is left untouched.
func (r *Reconciler) Apply(b *core.Batch) (Result, error) {
	storeIdx, ok := b.ColumnIndex(r.StoreColumn)
	if !ok {
		return Result{}, fmt.Errorf("reconcile: column %s not found", r.StoreColumn)
	}
	compIdx, ok := b.ColumnIndex(r.CompositeColumn)
	if !ok {
		return Result{}, fmt.Errorf("reconcile: column %s not found", r.CompositeColumn)
	}

	corrected := make([]core.Value, len(b.Rows))
	changed := 0
	for i, row := range b.Rows {
		comp := row[compIdx]
		if comp.IsNull() {
			return Result{}, &core.MalformedIdentifierError{Row: i, Column: b.Columns[compIdx].Name, Null: true}
		}
		store := row[storeIdx]
		if store.IsNull() {
			// No authority to correct against; the prefix stays as is.
			store = core.StringValue(embeddedStore(comp.String()))
		}
		value, err := Reconcile(store.String(), comp.String())
		if err != nil {
			return Result{}, &core.MalformedIdentifierError{Row: i, Column: b.Columns[compIdx].Name, Value: comp.String()}
		}
		if value != comp.String() {
			changed++
			corrected[i] = core.StringValue(value)
		} else {
			corrected[i] = comp
		}
	}

	// Only reached when every row validated.
	for i := range b.Rows {
		b.Rows[i][compIdx] = corrected[i]
	}

	r.logger.Info("identifiers reconciled",
		"column", b.Columns[compIdx].Name,
		"rows", len(b.Rows),
		"corrected", changed,
	)
	return Result{Rows: len(b.Rows), Corrected: changed}, nil
}

func embeddedStore(compositeID string) string {
	prefix, _, _ := strings.Cut(compositeID, Separator)
	return prefix
}
