// Package join enriches fact rows with dimension attributes.
//
// LeftJoin is a left outer join against a dimension that is first reduced to
// one row per natural key (first occurrence wins), so the output always has
// exactly as many rows as the fact input. CrossReferenceJoiner composes two
// such joins for products and customers and records every key that found no
// match in a DivergenceSet.
package join

import (
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/retail-etl/internal/core"
	"github.com/JonMunkholm/retail-etl/internal/logging"
)

// JoinSpec names the columns of one left join.
type JoinSpec struct {
	FactKey    string   // key column in the fact batch
	DimKey     string   // natural key column in the dimension batch
	Attributes []string // dimension columns appended to the fact
}

// Stats describes the outcome of one join.
type Stats struct {
	DimRows       int
	DuplicateKeys int
	Matched       int
	Unmatched     int
}

// LeftJoin returns a new batch holding every fact row, in order, extended with
// the JoinSpec attribute columns. Rows whose key is null or absent from the
// dimension get null attributes. Each output row is a new slice holding the
// fact values followed by the attributes; the fact batch is not modified.
func LeftJoin(fact, dim *core.Batch, spec JoinSpec) (*core.Batch, Stats, error) {
	factKey, ok := fact.ColumnIndex(spec.FactKey)
	if !ok {
		return nil, Stats{}, fmt.Errorf("join: fact column %s not found", spec.FactKey)
	}
	for _, attr := range spec.Attributes {
		if _, exists := fact.ColumnIndex(attr); exists {
			return nil, Stats{}, fmt.Errorf("join: fact already has column %s", core.CanonicalColumn(attr))
		}
	}

	projected, err := dim.Project(append([]string{spec.DimKey}, spec.Attributes...)...)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("join: dimension: %w", err)
	}

	stats := Stats{DimRows: projected.Len()}
	lookup := make(map[string]core.Row, projected.Len())
	for _, row := range projected.Rows {
		k, ok := row[0].Key()
		if !ok {
			continue
		}
		if _, dup := lookup[k]; dup {
			stats.DuplicateKeys++
			continue
		}
		lookup[k] = row[1:]
	}

	columns := make([]core.Column, 0, len(fact.Columns)+len(spec.Attributes))
	columns = append(columns, fact.Columns...)
	columns = append(columns, projected.Columns[1:]...)

	out := core.NewBatch(fact.Format, columns)
	out.Rows = make([]core.Row, len(fact.Rows))

	nulls := make(core.Row, len(spec.Attributes))
	for i, c := range projected.Columns[1:] {
		nulls[i] = core.Null(c.Type)
	}

	for i, row := range fact.Rows {
		attrs := nulls
		if k, ok := row[factKey].Key(); ok {
			if found, hit := lookup[k]; hit {
				attrs = found
				stats.Matched++
			} else {
				stats.Unmatched++
			}
		} else {
			stats.Unmatched++
		}

		joined := make(core.Row, 0, len(columns))
		joined = append(joined, row...)
		joined = append(joined, attrs...)
		out.Rows[i] = joined
	}

	return out, stats, nil
}

// Divergence set names, used as report file names.
const (
	ProductsNotFound  = "produtos_nao_encontrados"
	CustomersNotFound = "clientes_nao_encontrados"
)

// CrossReferenceJoiner enriches sales with product and customer attributes.
type CrossReferenceJoiner struct {
	Product  JoinSpec
	Customer JoinSpec

	logger *slog.Logger
}

// NewCrossReferenceJoiner creates a joiner for the retail layout: products by
// COD_ID_PRODUTO adding DES_PRODUTO, customers by COD_ID_CLIENTE adding NOM_NOME.
func NewCrossReferenceJoiner(logger *slog.Logger) *CrossReferenceJoiner {
	if logger == nil {
		logger = logging.Nop()
	}
	return &CrossReferenceJoiner{
		Product: JoinSpec{
			FactKey:    "COD_ID_PRODUTO",
			DimKey:     "COD_ID_PRODUTO",
			Attributes: []string{"DES_PRODUTO"},
		},
		Customer: JoinSpec{
			FactKey:    "COD_ID_CLIENTE",
			DimKey:     "COD_ID_CLIENTE",
			Attributes: []string{"NOM_NOME"},
		},
		logger: logger,
	}
}

// Enrichment is the output of CrossReferenceJoiner.Join.
type Enrichment struct {
	Sales       *core.Batch
	Divergences []*DivergenceSet // products first, then customers
}

// Join runs the product join then the customer join and collects divergences.
func (j *CrossReferenceJoiner) Join(sales, products, customers *core.Batch) (*Enrichment, error) {
	enriched, pstats, err := LeftJoin(sales, products, j.Product)
	if err != nil {
		return nil, fmt.Errorf("products: %w", err)
	}
	enriched, cstats, err := LeftJoin(enriched, customers, j.Customer)
	if err != nil {
		return nil, fmt.Errorf("customers: %w", err)
	}

	productDiv, err := Divergences(ProductsNotFound, enriched, j.Product.Attributes[0], j.Product.FactKey)
	if err != nil {
		return nil, err
	}
	customerDiv, err := Divergences(CustomersNotFound, enriched, j.Customer.Attributes[0], j.Customer.FactKey)
	if err != nil {
		return nil, err
	}

	j.logger.Info("sales enriched",
		"rows", enriched.Len(),
		"product_matched", pstats.Matched,
		"product_duplicate_keys", pstats.DuplicateKeys,
		"customer_matched", cstats.Matched,
		"customer_duplicate_keys", cstats.DuplicateKeys,
		ProductsNotFound, productDiv.Len(),
		CustomersNotFound, customerDiv.Len(),
	)

	return &Enrichment{
		Sales:       enriched,
		Divergences: []*DivergenceSet{productDiv, customerDiv},
	}, nil
}
