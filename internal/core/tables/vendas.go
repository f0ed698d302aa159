package tables

import "github.com/JonMunkholm/retail-etl/internal/core"

func init() {
	core.Register(core.DatasetDefinition{
		Name:    Vendas,
		Archive: "data/vendas.zip",
		Types: core.NewTypeDict(
			core.TypeEntry{Column: ColStore, Tag: "int32"},
			core.TypeEntry{Column: ColDate, Tag: "int32"},
			core.TypeEntry{Column: ColCustomer, Tag: "int32"},
			core.TypeEntry{Column: ColCustomerType, Tag: "category"},
			core.TypeEntry{Column: ColCustomerGender, Tag: "category"},
			core.TypeEntry{Column: ColSaleID, Tag: "string"},
			core.TypeEntry{Column: ColProduct, Tag: "int32"},
			core.TypeEntry{Column: ColValueGross, Tag: "float32"},
			core.TypeEntry{Column: ColValueDiscount, Tag: "float32"},
			core.TypeEntry{Column: ColValueNet, Tag: "float32"},
			core.TypeEntry{Column: ColQuantityKg, Tag: "float32"},
		),
	})
}
