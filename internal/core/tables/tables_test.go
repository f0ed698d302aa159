package tables

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/retail-etl/internal/core"
)

func TestDatasetsRegistered(t *testing.T) {
	for _, name := range []string{Vendas, Clientes, Produtos} {
		def, ok := core.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, "data/"+name+".zip", def.Archive)
	}

	vendas := core.MustGet(Vendas)
	assert.Equal(t, 11, vendas.Types.Len())
	tag, _ := vendas.Types.Lookup(ColValueNet)
	assert.Equal(t, "float32", tag)

	for _, def := range core.All() {
		for _, e := range def.Types.Entries() {
			_, _, known := core.ParseTypeTag(e.Tag)
			assert.True(t, known, "%s.%s has unknown tag %q", def.Name, e.Column, e.Tag)
		}
	}
}
