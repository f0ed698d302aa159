// Package report runs the fixed SQL indicators against the loaded sales table
// and writes each result set to CSV.
package report

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Indicator is a named aggregate query over the sales table.
type Indicator struct {
	Name string
	// Query is a SQL template; every {{table}} is replaced by the quoted table name.
	Query string
}

// SQL returns the query bound to table.
func (i Indicator) SQL(table string) string {
	return strings.ReplaceAll(i.Query, "{{table}}", pgx.Identifier{table}.Sanitize())
}

// Indicators lists every report in the order they are produced.
var Indicators = []Indicator{
	{
		Name: "produtos_mais_vendidos",
		Query: `SELECT "COD_ID_PRODUTO", COUNT(*) AS qtd_vendas
FROM {{table}}
GROUP BY "COD_ID_PRODUTO"
ORDER BY qtd_vendas DESC`,
	},
	{
		Name: "clientes_mais_compraram",
		Query: `SELECT "COD_ID_CLIENTE", COUNT(*) AS qtd_compras
FROM {{table}}
GROUP BY "COD_ID_CLIENTE"
ORDER BY qtd_compras DESC`,
	},
	{
		Name: "vendas_por_dia",
		Query: `SELECT "NUM_ANOMESDIA", COUNT(DISTINCT "COD_ID_VENDA_UNICO") AS qtd_vendas
FROM {{table}}
GROUP BY "NUM_ANOMESDIA"
ORDER BY "NUM_ANOMESDIA"`,
	},
	{
		Name: "produtos_distintos_por_dia",
		Query: `SELECT "NUM_ANOMESDIA", COUNT(DISTINCT "COD_ID_PRODUTO") AS qtd_produtos_distintos
FROM {{table}}
GROUP BY "NUM_ANOMESDIA"
ORDER BY "NUM_ANOMESDIA"`,
	},
	{
		Name: "produtos_maior_desconto",
		Query: `SELECT "COD_ID_PRODUTO", SUM("VAL_VALOR_DESCONTO") AS total_desconto
FROM {{table}}
GROUP BY "COD_ID_PRODUTO"
ORDER BY total_desconto DESC`,
	},
	{
		// Best weekday of each of the 20 customers with the most purchases.
		Name: "top20_melhor_dia_semana",
		Query: `WITH top_clientes AS (
    SELECT "COD_ID_CLIENTE", COUNT(*) AS total_compras
    FROM {{table}}
    GROUP BY "COD_ID_CLIENTE"
    ORDER BY total_compras DESC
    LIMIT 20
), vendas_semana AS (
    SELECT v."COD_ID_CLIENTE",
           TO_CHAR(TO_DATE(v."NUM_ANOMESDIA"::text, 'YYYYMMDD'), 'Day') AS dia_semana,
           COUNT(*) AS qtd
    FROM {{table}} v
    JOIN top_clientes t ON v."COD_ID_CLIENTE" = t."COD_ID_CLIENTE"
    GROUP BY v."COD_ID_CLIENTE", dia_semana
)
SELECT "COD_ID_CLIENTE", TRIM(dia_semana) AS melhor_dia_semana, qtd
FROM (
    SELECT *, ROW_NUMBER() OVER (PARTITION BY "COD_ID_CLIENTE" ORDER BY qtd DESC) AS rn
    FROM vendas_semana
) t
WHERE rn = 1
ORDER BY qtd DESC`,
	},
}

// Lookup returns the indicator with the given name.
func Lookup(name string) (Indicator, bool) {
	for _, ind := range Indicators {
		if ind.Name == name {
			return ind, true
		}
	}
	return Indicator{}, false
}

// Select resolves names to indicators, keeping the given order.
// No names selects every indicator.
func Select(names ...string) ([]Indicator, error) {
	if len(names) == 0 {
		out := make([]Indicator, len(Indicators))
		copy(out, Indicators)
		return out, nil
	}
	out := make([]Indicator, 0, len(names))
	for _, name := range names {
		ind, ok := Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown indicator: %s", name)
		}
		out = append(out, ind)
	}
	return out, nil
}

// Names returns the names of all indicators.
func Names() []string {
	names := make([]string, len(Indicators))
	for i, ind := range Indicators {
		names[i] = ind.Name
	}
	return names
}
