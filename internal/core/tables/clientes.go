package tables

import "github.com/JonMunkholm/retail-etl/internal/core"

func init() {
	core.Register(core.DatasetDefinition{
		Name:    Clientes,
		Archive: "data/clientes.zip",
		Types: core.NewTypeDict(
			core.TypeEntry{Column: ColCustomer, Tag: "int32"},
			core.TypeEntry{Column: ColCustomerType, Tag: "category"},
			core.TypeEntry{Column: ColCustomerName, Tag: "string"},
			core.TypeEntry{Column: ColCustomerGender, Tag: "category"},
			core.TypeEntry{Column: "DAT_DATA_NASCIMENTO", Tag: "string"},
		),
	})
}
