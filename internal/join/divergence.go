package join

import (
	"fmt"

	"github.com/JonMunkholm/retail-etl/internal/core"
)

// DivergenceSet is an ordered set of natural keys whose dimension lookup failed.
// Keys are unique and kept in first-seen order. A null key is a member like
// any other value and appears at most once.
type DivergenceSet struct {
	Name string

	values []core.Value
	seen   map[string]struct{}
	null   bool
}

// NewDivergenceSet creates an empty set.
func NewDivergenceSet(name string) *DivergenceSet {
	return &DivergenceSet{Name: name, seen: make(map[string]struct{})}
}

// Add inserts v unless an equal key is already present. It reports whether v was new.
func (d *DivergenceSet) Add(v core.Value) bool {
	k, ok := v.Key()
	if !ok {
		if d.null {
			return false
		}
		d.null = true
		d.values = append(d.values, v)
		return true
	}
	if _, dup := d.seen[k]; dup {
		return false
	}
	d.seen[k] = struct{}{}
	d.values = append(d.values, v)
	return true
}

// Contains reports whether a key equal to v is in the set.
func (d *DivergenceSet) Contains(v core.Value) bool {
	k, ok := v.Key()
	if !ok {
		return d.null
	}
	_, found := d.seen[k]
	return found
}

// Values returns the members in first-seen order.
func (d *DivergenceSet) Values() []core.Value {
	out := make([]core.Value, len(d.values))
	copy(out, d.values)
	return out
}

// Len returns the number of members.
func (d *DivergenceSet) Len() int { return len(d.values) }

// Divergences collects, in row order, the keys of every row of b whose
// attribute column is null.
func Divergences(name string, b *core.Batch, attribute, key string) (*DivergenceSet, error) {
	attrIdx, ok := b.ColumnIndex(attribute)
	if !ok {
		return nil, fmt.Errorf("divergences: column %s not found", attribute)
	}
	keyIdx, ok := b.ColumnIndex(key)
	if !ok {
		return nil, fmt.Errorf("divergences: column %s not found", key)
	}

	set := NewDivergenceSet(name)
	for _, row := range b.Rows {
		if row[attrIdx].IsNull() {
			set.Add(row[keyIdx])
		}
	}
	return set, nil
}
