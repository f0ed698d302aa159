// Package core provides the data model shared by every stage of the retail ETL.
//
// The package is independent of any storage or transport layer. Ingestion,
// reconciliation, the dimension join, the bulk loader and the exporters all
// exchange the types defined here, so they can be driven from the CLI, from
// tests, or composed differently without modification.
//
// # Type Dictionaries
//
// Every dataset declares a [TypeDict]: an ordered mapping from canonical
// column name to a type tag. Tags are the ones the source extracts use:
//
//	int8, int16, int32, int64   -> TypeInt
//	float32, float64            -> TypeFloat
//	category                    -> TypeCategory
//	string                      -> TypeString
//
// Column names are canonicalized with [CanonicalColumn] (trim + upper-case)
// on both sides, so "cod_id_loja " in a header matches "COD_ID_LOJA" in a
// dictionary. Unknown tags are accepted and the column is kept as text.
//
// # Batches
//
// A [RawBatch] is what a reader produced: canonical column names and raw
// text cells. [Normalize] coerces it into a [Batch], the typed record batch
// the rest of the pipeline works on. Each cell is a [Value], a typed optional:
// a cell that is missing or cannot be parsed is a null Value rather than an
// error. Coercion failures are summarized per column as [CoercionWarning]s
// for the caller to log.
//
// # Dataset Registry
//
// Datasets are registered at init time with [Register]. Each
// [DatasetDefinition] names the archive to extract and the type dictionary to
// apply:
//
//	core.Register(core.DatasetDefinition{
//	    Name:    "produtos",
//	    Archive: "data/produtos.zip",
//	    Types: core.NewTypeDict(
//	        core.TypeEntry{Column: "COD_ID_PRODUTO", Tag: "int32"},
//	        core.TypeEntry{Column: "DES_PRODUTO", Tag: "string"},
//	    ),
//	})
//
// # Error Handling
//
// Fatal conditions are typed errors that wrap a sentinel, so callers can use
// errors.Is / errors.As. [MapError] turns any error into a [UserMessage] with
// a support code:
//
//   - ING001: input archive or data file unreadable
//   - REC001: malformed composite identifier
//   - SNK001: sink connection failure
//   - LOAD001: bulk load batch failed
//   - EXP001: export failure
//   - CFG001: configuration error
package core
