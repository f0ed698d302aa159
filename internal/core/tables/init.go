// Package tables registers the retail datasets with the core registry.
// Import this package to ensure all datasets are registered.
package tables

// Dataset names, also used as archive stems and log keys.
const (
	Vendas   = "vendas"
	Clientes = "clientes"
	Produtos = "produtos"
)

// Column names shared across datasets and pipeline stages.
const (
	ColStore          = "COD_ID_LOJA"
	ColDate           = "NUM_ANOMESDIA"
	ColCustomer       = "COD_ID_CLIENTE"
	ColCustomerName   = "NOM_NOME"
	ColSaleID         = "COD_ID_VENDA_UNICO"
	ColProduct        = "COD_ID_PRODUTO"
	ColProductName    = "DES_PRODUTO"
	ColValueGross     = "VAL_VALOR_SEM_DESC"
	ColValueDiscount  = "VAL_VALOR_DESCONTO"
	ColValueNet       = "VAL_VALOR_COM_DESC"
	ColQuantityKg     = "VAL_QUANTIDADE_KG"
	ColCustomerType   = "DES_TIPO_CLIENTE"
	ColCustomerGender = "DES_SEXO_CLIENTE"
)
