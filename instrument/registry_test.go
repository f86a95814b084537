package instrument

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolsforexperiments/instrumentserver/paramkind"
	"github.com/toolsforexperiments/instrumentserver/serverr"
)

func dummyFactory(classPath string) Factory {
	return func(args []any, kwargs map[string]any) (Instrument, error) {
		b := NewBase(classPath)
		b.AddParameter(NewParameter("voltage", paramkind.Float, WithInitialValue(0.0)))
		return b, nil
	}
}

func TestRegistryCreateAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterFactory("dummy.Multimeter", dummyFactory("dummy.Multimeter")))

	inst, err := r.Create("dmm1", "dummy.Multimeter", nil, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "dummy.Multimeter", inst.ClassPath())

	got, lock, err := r.Get("dmm1")
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.Same(t, inst, got)

	assert.Equal(t, []string{"dmm1"}, r.List())
}

func TestRegistryCreateDuplicateWithoutFindOrCreate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterFactory("dummy.Multimeter", dummyFactory("dummy.Multimeter")))

	_, err := r.Create("dmm1", "dummy.Multimeter", nil, nil, false)
	require.NoError(t, err)

	_, err = r.Create("dmm1", "dummy.Multimeter", nil, nil, false)
	require.Error(t, err)
	assert.Equal(t, serverr.Validation, serverr.KindOf(err))
}

func TestRegistryFindOrCreateIdempotent(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterFactory("dummy.Multimeter", dummyFactory("dummy.Multimeter")))

	first, err := r.Create("dmm1", "dummy.Multimeter", nil, nil, true)
	require.NoError(t, err)

	second, err := r.Create("dmm1", "dummy.Multimeter", nil, nil, true)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestRegistryFindOrCreateClassPathConflict(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterFactory("dummy.Multimeter", dummyFactory("dummy.Multimeter")))
	require.NoError(t, r.RegisterFactory("dummy.VNA", dummyFactory("dummy.VNA")))

	_, err := r.Create("inst1", "dummy.Multimeter", nil, nil, true)
	require.NoError(t, err)

	_, err = r.Create("inst1", "dummy.VNA", nil, nil, true)
	require.Error(t, err)
	assert.Equal(t, serverr.Validation, serverr.KindOf(err))
}

func TestRegistryCreateUnknownClassPath(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create("inst1", "no.such.Class", nil, nil, false)
	require.Error(t, err)
	assert.Equal(t, serverr.NotFound, serverr.KindOf(err))
}

func TestRegistryGetMissing(t *testing.T) {
	r := NewRegistry()
	_, _, err := r.Get("ghost")
	require.Error(t, err)
	assert.Equal(t, serverr.NotFound, serverr.KindOf(err))
}

func TestRegistryClose(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterFactory("dummy.Multimeter", dummyFactory("dummy.Multimeter")))
	_, err := r.Create("dmm1", "dummy.Multimeter", nil, nil, false)
	require.NoError(t, err)

	require.NoError(t, r.Close("dmm1"))
	assert.Empty(t, r.List())

	err = r.Close("dmm1")
	require.Error(t, err)
	assert.Equal(t, serverr.NotFound, serverr.KindOf(err))
}

func TestBlueprintStampsName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterFactory("dummy.Multimeter", dummyFactory("dummy.Multimeter")))
	inst, err := r.Create("dmm1", "dummy.Multimeter", nil, nil, false)
	require.NoError(t, err)

	bp := Blueprint(inst, "dmm1")
	assert.Equal(t, "dmm1", bp.Name)
	assert.Equal(t, "dummy.Multimeter", bp.ClassPath)
	require.Len(t, bp.Parameters, 1)
	assert.Equal(t, "voltage", bp.Parameters[0].Path)
}
