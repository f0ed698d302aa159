package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	Clear()
	t.Cleanup(Clear)

	Register(DatasetDefinition{
		Name:  "produtos",
		Types: NewTypeDict(TypeEntry{"cod_id_produto", "int32"}),
	})
	Register(DatasetDefinition{
		Name:    "clientes",
		Archive: "in/clientes.zip",
		Types:   NewTypeDict(TypeEntry{"COD_ID_CLIENTE", "int32"}),
	})

	assert.Equal(t, 2, DatasetCount())

	def, ok := Get("produtos")
	require.True(t, ok)
	assert.Equal(t, "data/produtos.zip", def.Archive, "archive defaults to data/{name}.zip")
	assert.True(t, def.Types.Has("COD_ID_PRODUTO"))

	assert.Equal(t, "in/clientes.zip", MustGet("clientes").Archive)

	all := All()
	require.Len(t, all, 2)
	assert.Equal(t, "clientes", all[0].Name)
	assert.Equal(t, "produtos", all[1].Name)

	_, ok = Get("vendas")
	assert.False(t, ok)
}

func TestRegister_DuplicatePanics(t *testing.T) {
	Clear()
	t.Cleanup(Clear)

	Register(DatasetDefinition{Name: "vendas"})
	assert.Panics(t, func() { Register(DatasetDefinition{Name: "vendas"}) })
	assert.Panics(t, func() { MustGet("missing") })
}
