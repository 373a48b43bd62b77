package dbview

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgeql-io/edgewire/internal/compiler"
)

func TestCachePutGet(t *testing.T) {
	v := New(1)
	key := compiler.CacheKey{Query: "select 1", JSON: false}
	unit := &compiler.QueryUnit{Cacheable: true}

	_, ok := v.CacheGet(key)
	require.False(t, ok)

	v.CachePut(key, unit)

	got, ok := v.CacheGet(key)
	require.True(t, ok)
	require.Same(t, unit, got)
}

func TestOnSuccessTracksTransactionState(t *testing.T) {
	v := New(1)
	unit := &compiler.QueryUnit{}

	v.OnSuccess(unit, true, 42)
	require.True(t, v.InTransaction())
	require.EqualValues(t, 42, v.TxID())

	v.OnSuccess(unit, false, 0)
	require.False(t, v.InTransaction())
}

func TestOnErrorMarksInTxErrorOnlyInsideTx(t *testing.T) {
	v := New(1)
	unit := &compiler.QueryUnit{}

	v.OnError(unit)
	require.False(t, v.InTxError())

	v.OnSuccess(unit, true, 1)
	v.OnError(unit)
	require.True(t, v.InTxError())
}

func TestAbortTxClearsState(t *testing.T) {
	v := New(1)
	v.OnSuccess(&compiler.QueryUnit{}, true, 7)
	v.OnError(&compiler.QueryUnit{})
	require.True(t, v.InTxError())

	v.AbortTx()
	require.False(t, v.InTransaction())
	require.False(t, v.InTxError())
}

func TestRecoverAliasesAndConfigDefaultsEmptyAlias(t *testing.T) {
	v := New(1)
	v.RecoverAliasesAndConfig(map[string]string{"foo": "bar"}, map[string]any{"x": 1})

	aliases := v.Aliases()
	require.Equal(t, "bar", aliases["foo"])
	require.Equal(t, "default", aliases[""])
	require.Equal(t, 1, v.Config()["x"])
}
