package v1

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subscription-escrow/escrowdex/schemas"
)

func TestPatchesAreContiguous(t *testing.T) {
	coll, err := GetPatches(schemas.Config{SchemaName: "escrow"})
	require.NoError(t, err)

	ms := coll.Migrations()
	require.Len(t, ms, Version().Patch)
	for i, m := range ms {
		assert.EqualValues(t, i+1, m.Version)
	}
}

func TestBaseUsesSchemaName(t *testing.T) {
	base, err := GetBase(schemas.Config{SchemaName: "escrow"})
	require.NoError(t, err)
	assert.Contains(t, base, "SET search_path TO escrow,public;")
	assert.Contains(t, base, "CREATE TABLE escrow.providers (")
	assert.NotContains(t, base, "public.providers")

	base, err = GetBase(schemas.Config{SchemaName: "public"})
	require.NoError(t, err)
	assert.False(t, strings.Contains(base, "SET search_path"))
	assert.Contains(t, base, "CREATE TABLE public.providers (")
}

func TestPatchListRejectsGaps(t *testing.T) {
	pl := NewPatchList()
	pl.Register(1, "SELECT 1;")
	pl.Register(3, "SELECT 3;")

	_, err := pl.Collection(schemas.Config{SchemaName: "public"})
	assert.Error(t, err)

	assert.Panics(t, func() { pl.Register(1, "SELECT 1;") })
	assert.Panics(t, func() { pl.Register(0, "SELECT 0;") })
}
