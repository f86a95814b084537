package dummy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolsforexperiments/instrumentserver/instrument"
)

func newRegistry(t *testing.T) *instrument.Registry {
	t.Helper()
	r := instrument.NewRegistry()
	require.NoError(t, Register(r))
	return r
}

func TestRegisterWiresAllFactories(t *testing.T) {
	r := newRegistry(t)

	for _, cp := range []string{MultimeterClassPath, VNAClassPath, SourceClassPath} {
		inst, err := r.Create("inst-"+cp, cp, nil, nil, false)
		require.NoError(t, err, cp)
		assert.Equal(t, cp, inst.ClassPath())
	}
}

func TestMultimeterMeasure(t *testing.T) {
	r := newRegistry(t)
	inst, err := r.Create("dmm1", MultimeterClassPath, nil, nil, false)
	require.NoError(t, err)

	v, err := inst.Call("", "measure", nil, nil)
	require.NoError(t, err)
	_, ok := v.(float64)
	assert.True(t, ok)
}

func TestMultimeterRangeValidatorRejectsBadValue(t *testing.T) {
	r := newRegistry(t)
	inst, err := r.Create("dmm1", MultimeterClassPath, nil, nil, false)
	require.NoError(t, err)

	raw, _ := json.Marshal("500V")
	_, _, err = inst.Set("range", raw)
	require.Error(t, err)
}

func TestVNAGetTraceLength(t *testing.T) {
	r := newRegistry(t)
	inst, err := r.Create("vna1", VNAClassPath, nil, nil, false)
	require.NoError(t, err)

	v, err := inst.Call("", "get_trace", nil, nil)
	require.NoError(t, err)
	trace, ok := v.([]float64)
	require.True(t, ok)
	assert.Len(t, trace, vnaTracePoints)
}

func TestVNAFrequencyRangeValidation(t *testing.T) {
	r := newRegistry(t)
	inst, err := r.Create("vna1", VNAClassPath, nil, nil, false)
	require.NoError(t, err)

	raw, _ := json.Marshal(50e9)
	_, _, err = inst.Set("fstart", raw)
	require.Error(t, err)
}

func TestSourceRampTo(t *testing.T) {
	r := newRegistry(t)
	inst, err := r.Create("src1", SourceClassPath, nil, nil, false)
	require.NoError(t, err)

	v, err := inst.Call("", "ramp_to", []any{0.5, 0.1}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, v.(float64), 1e-9)

	got, err := inst.Get("current")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got.(float64), 1e-9)
}

func TestSourceRampToRejectsNonPositiveStep(t *testing.T) {
	r := newRegistry(t)
	inst, err := r.Create("src1", SourceClassPath, nil, nil, false)
	require.NoError(t, err)

	_, err = inst.Call("", "ramp_to", []any{0.5, 0.0}, nil)
	require.Error(t, err)
}
