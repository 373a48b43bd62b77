package compiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReferenceCompileEQLSingle(t *testing.T) {
	c := NewReference()
	units, err := c.CompileEQL(context.Background(), 0, "select 1; select 2", nil, nil, false, StatementModeSingle)
	require.NoError(t, err)
	require.Len(t, units, 1)
	require.True(t, units[0].HasResult)
	require.True(t, units[0].Cacheable)
}

func TestReferenceCompileEQLAll(t *testing.T) {
	c := NewReference()
	units, err := c.CompileEQL(context.Background(), 0, "select 1; insert into t values (1)", nil, nil, false, StatementModeAll)
	require.NoError(t, err)
	require.Len(t, units, 2)
	require.True(t, units[0].HasResult)
	require.False(t, units[1].HasResult)
}

func TestReferenceTryCompileRollback(t *testing.T) {
	c := NewReference()

	unit, remain, err := c.TryCompileRollback(context.Background(), 0, "ROLLBACK")
	require.NoError(t, err)
	require.Equal(t, 0, remain)
	require.True(t, unit.TxRollback)

	unit, remain, err = c.TryCompileRollback(context.Background(), 0, "ROLLBACK TO SAVEPOINT s1")
	require.NoError(t, err)
	require.Equal(t, 0, remain)
	require.True(t, unit.TxSavepointRollback)

	_, _, err = c.TryCompileRollback(context.Background(), 0, "select 1")
	require.Error(t, err)
}

func TestReferenceTryCompileRollbackWithTrailingStatements(t *testing.T) {
	c := NewReference()
	_, remain, err := c.TryCompileRollback(context.Background(), 0, "ROLLBACK; select 1")
	require.NoError(t, err)
	require.Equal(t, 1, remain)
}

func TestReferenceCompileGraphQL(t *testing.T) {
	c := NewReference()
	unit, err := c.CompileGraphQL(context.Background(), 0, "{ users { id } }")
	require.NoError(t, err)
	require.True(t, unit.HasResult)
	require.True(t, unit.SingletonResult)
}

func TestReferenceInterpretBackendError(t *testing.T) {
	c := NewReference()
	ie, err := c.InterpretBackendError(context.Background(), 0, BackendErrorFields{'M': "duplicate key", 'C': "23505"})
	require.NoError(t, err)
	require.Equal(t, "duplicate key", ie.Message)
}
