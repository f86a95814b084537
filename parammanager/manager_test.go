package parammanager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolsforexperiments/instrumentserver/paramkind"
	"github.com/toolsforexperiments/instrumentserver/serverr"
)

func TestAddAndGetParameter(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.AddParameter("qubit.pi.length", paramkind.Integer, 40.0, "ns", nil))

	v, err := m.Get("qubit.pi.length")
	require.NoError(t, err)
	assert.Equal(t, int64(40), v)
}

func TestAddParameterCreatesIntermediateSubmodules(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.AddParameter("a.b.c", paramkind.Float, 1.0, "", nil))

	bp := m.Describe()
	require.Contains(t, bp.Submodules, "a")
	require.Contains(t, bp.Submodules["a"].Submodules, "b")
	require.Len(t, bp.Submodules["a"].Submodules["b"].Parameters, 1)
	assert.Equal(t, "c", bp.Submodules["a"].Submodules["b"].Parameters[0].Path)
}

func TestRemoveParameterThenGetFails(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.AddParameter("qubit.pi.length", paramkind.Integer, 40.0, "ns", nil))

	require.NoError(t, m.RemoveParameter("qubit.pi.length"))

	_, err := m.Get("qubit.pi.length")
	require.Error(t, err)
	assert.Equal(t, serverr.NotFound, serverr.KindOf(err))
}

func TestRemoveParameterPrunesEmptySubmodules(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.AddParameter("qubit.pi.length", paramkind.Integer, 40.0, "ns", nil))
	require.NoError(t, m.RemoveParameter("qubit.pi.length"))

	bp := m.Describe()
	assert.NotContains(t, bp.Submodules, "qubit")
}

func TestRemoveParameterMissingIsNotFound(t *testing.T) {
	m := NewManager()
	err := m.RemoveParameter("no.such.param")
	require.Error(t, err)
	assert.Equal(t, serverr.NotFound, serverr.KindOf(err))
}

func TestAddParameterValidatesAgainstValidator(t *testing.T) {
	m := NewManager()
	err := m.AddParameter("voltage", paramkind.Float, 100.0, "V", paramkind.RangeValidator{Min: 0, Max: 10})
	require.Error(t, err)
	assert.Equal(t, serverr.Validation, serverr.KindOf(err))
}
