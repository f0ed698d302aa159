package tables

import "github.com/JonMunkholm/retail-etl/internal/core"

func init() {
	core.Register(core.DatasetDefinition{
		Name:    Produtos,
		Archive: "data/produtos.zip",
		Types: core.NewTypeDict(
			core.TypeEntry{Column: ColProduct, Tag: "int32"},
			core.TypeEntry{Column: "COD_ID_CATEGORIA_PRODUTO", Tag: "int32"},
			core.TypeEntry{Column: "ARR_CATEGORIAS_PRODUTO", Tag: "string"},
			core.TypeEntry{Column: ColProductName, Tag: "string"},
			core.TypeEntry{Column: "DES_UNIDADE", Tag: "category"},
			core.TypeEntry{Column: "COD_CODIGO_BARRAS", Tag: "string"},
		),
	})
}
