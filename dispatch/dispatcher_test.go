package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolsforexperiments/instrumentserver/instrument"
	"github.com/toolsforexperiments/instrumentserver/paramkind"
	"github.com/toolsforexperiments/instrumentserver/parammanager"
	"github.com/toolsforexperiments/instrumentserver/wire"
)

// fakePublisher records every broadcast instead of sending it anywhere,
// so tests can assert on invariant 3 (spec.md §8): every successful set is
// followed by a broadcast before the reply leaves the server.
type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	topic string
	event wire.BroadcastEvent
}

func (f *fakePublisher) Publish(topic string, event wire.BroadcastEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{topic: topic, event: event})
}

func (f *fakePublisher) last() (publishedEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return publishedEvent{}, false
	}
	return f.events[len(f.events)-1], true
}

func dmmFactory(classPath string) instrument.Factory {
	return func(args []any, kwargs map[string]any) (instrument.Instrument, error) {
		b := instrument.NewBase(classPath)
		b.AddParameter(instrument.NewParameter("voltage", paramkind.Float,
			instrument.WithUnit("V"), instrument.WithInitialValue(0.0)))
		b.AddParameter(instrument.NewParameter("range", paramkind.Float,
			instrument.WithValidator(paramkind.SetValidator{Allowed: []any{0.1, 1.0, 10.0, 100.0}}),
			instrument.WithInitialValue(1.0)))
		return b, nil
	}
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *instrument.Registry, *fakePublisher) {
	t.Helper()
	registry := instrument.NewRegistry()
	require.NoError(t, registry.RegisterFactory("dummy.Multimeter", dmmFactory("dummy.Multimeter")))
	require.NoError(t, registry.RegisterFactory(parammanager.ClassPath, parammanager.NewFactory()))

	_, err := registry.Create("dmm", "dummy.Multimeter", nil, nil, false)
	require.NoError(t, err)
	_, err = registry.Create(parammanager.DefaultName, parammanager.ClassPath, nil, nil, false)
	require.NoError(t, err)

	pub := &fakePublisher{}
	d := NewDispatcher(registry, pub, nil, nil, Config{Workers: 2, QueueSize: 16})
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() { _ = d.Stop(time.Second) })
	return d, registry, pub
}

func rawValue(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestDispatchListInstruments(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	resp := d.Dispatch(context.Background(), wire.Instruction{Operation: wire.OpListInstruments})
	require.True(t, resp.OK)

	var names []string
	require.NoError(t, resp.Unmarshal(&names))
	assert.Contains(t, names, "dmm")
	assert.Contains(t, names, parammanager.DefaultName)
}

func TestDispatchGetBlueprint(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	resp := d.Dispatch(context.Background(), wire.Instruction{Operation: wire.OpGetBlueprint, Target: "dmm"})
	require.True(t, resp.OK)

	var bp wire.InstrumentBlueprint
	require.NoError(t, resp.Unmarshal(&bp))
	assert.Equal(t, "dmm", bp.Name)
	assert.Len(t, bp.Parameters, 2)
}

func TestDispatchSetThenGetSeesNewValue(t *testing.T) {
	d, _, pub := newTestDispatcher(t)

	setResp := d.Dispatch(context.Background(), wire.Instruction{
		Operation: wire.OpSet, Target: "dmm", Name: "voltage", Value: rawValue(t, 1.25),
	})
	require.True(t, setResp.OK)

	getResp := d.Dispatch(context.Background(), wire.Instruction{
		Operation: wire.OpGet, Target: "dmm", Name: "voltage",
	})
	require.True(t, getResp.OK)
	var v float64
	require.NoError(t, getResp.Unmarshal(&v))
	assert.Equal(t, 1.25, v)

	last, ok := pub.last()
	require.True(t, ok)
	assert.Equal(t, "dmm.voltage", last.topic)
	assert.False(t, last.event.Structural)
}

func TestDispatchSetValidationRejectsBadValue(t *testing.T) {
	d, _, pub := newTestDispatcher(t)

	resp := d.Dispatch(context.Background(), wire.Instruction{
		Operation: wire.OpSet, Target: "dmm", Name: "range", Value: rawValue(t, 5.0),
	})
	require.False(t, resp.OK)
	assert.Equal(t, "Validation", resp.Error.Kind)

	_, published := pub.last()
	assert.False(t, published, "a rejected set must not emit a broadcast")

	getResp := d.Dispatch(context.Background(), wire.Instruction{
		Operation: wire.OpGet, Target: "dmm", Name: "range",
	})
	require.True(t, getResp.OK)
	var v float64
	require.NoError(t, getResp.Unmarshal(&v))
	assert.Equal(t, 1.0, v, "state must be unchanged after a rejected set")
}

func TestDispatchGetUnknownInstrumentIsNotFound(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	resp := d.Dispatch(context.Background(), wire.Instruction{Operation: wire.OpGet, Target: "ghost", Name: "x"})
	require.False(t, resp.OK)
	assert.Equal(t, "NotFound", resp.Error.Kind)
}

func TestDispatchUnknownOperationIsProtocolError(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	resp := d.Dispatch(context.Background(), wire.Instruction{Operation: "bogus"})
	require.False(t, resp.OK)
	assert.Equal(t, "ProtocolError", resp.Error.Kind)
}

func TestDispatchCreateInstrumentThenGetBlueprint(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	createResp := d.Dispatch(context.Background(), wire.Instruction{
		Operation: wire.OpCreateInstrument, Target: "dmm2", ClassPath: "dummy.Multimeter",
	})
	require.True(t, createResp.OK)

	bpResp := d.Dispatch(context.Background(), wire.Instruction{Operation: wire.OpGetBlueprint, Target: "dmm2"})
	require.True(t, bpResp.OK)
}

func TestDispatchCreateInstrumentConflictingClassPath(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	first := d.Dispatch(context.Background(), wire.Instruction{
		Operation: wire.OpCreateInstrument, Target: "dmm3", ClassPath: "dummy.Multimeter", FindOrCreate: true,
	})
	require.True(t, first.OK)

	second := d.Dispatch(context.Background(), wire.Instruction{
		Operation: wire.OpCreateInstrument, Target: "dmm3", ClassPath: parammanager.ClassPath, FindOrCreate: true,
	})
	require.False(t, second.OK)
	assert.Equal(t, "Validation", second.Error.Kind)
}

func TestDispatchSnapshot(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	resp := d.Dispatch(context.Background(), wire.Instruction{Operation: wire.OpSnapshot, Target: "dmm"})
	require.True(t, resp.OK)

	var snap map[string]any
	require.NoError(t, resp.Unmarshal(&snap))
	assert.Contains(t, snap, "voltage")
	assert.Contains(t, snap, "range")
}

func TestDispatchAddParameterThenGet(t *testing.T) {
	d, _, pub := newTestDispatcher(t)

	addResp := d.Dispatch(context.Background(), wire.Instruction{
		Operation: wire.OpAddParameter,
		Target:    parammanager.DefaultName,
		Path:      "qubit.pi",
		Name:      "length",
		Kwargs: map[string]any{
			"kind": "integer",
			"value": float64(40),
			"unit":  "ns",
		},
	})
	require.True(t, addResp.OK)

	last, ok := pub.last()
	require.True(t, ok)
	assert.Equal(t, parammanager.DefaultName+".qubit.pi.length", last.topic)
	assert.True(t, last.event.Structural)

	getResp := d.Dispatch(context.Background(), wire.Instruction{
		Operation: wire.OpGet, Target: parammanager.DefaultName, Path: "qubit.pi", Name: "length",
	})
	require.True(t, getResp.OK)
	var v int64
	require.NoError(t, getResp.Unmarshal(&v))
	assert.EqualValues(t, 40, v)
}

func TestDispatchAddParameterThenRemoveParameterYieldsNotFound(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	addResp := d.Dispatch(context.Background(), wire.Instruction{
		Operation: wire.OpAddParameter,
		Target:    parammanager.DefaultName,
		Name:      "temperature",
		Kwargs:    map[string]any{"kind": "float", "value": 20.0, "unit": "C"},
	})
	require.True(t, addResp.OK)

	removeResp := d.Dispatch(context.Background(), wire.Instruction{
		Operation: wire.OpRemoveParameter, Target: parammanager.DefaultName, Name: "temperature",
	})
	require.True(t, removeResp.OK)

	getResp := d.Dispatch(context.Background(), wire.Instruction{
		Operation: wire.OpGet, Target: parammanager.DefaultName, Name: "temperature",
	})
	require.False(t, getResp.OK)
	assert.Equal(t, "NotFound", getResp.Error.Kind)
}

func TestDispatchAddParameterMissingKindIsValidationError(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	resp := d.Dispatch(context.Background(), wire.Instruction{
		Operation: wire.OpAddParameter, Target: parammanager.DefaultName, Name: "x",
		Kwargs: map[string]any{"value": 1.0},
	})
	require.False(t, resp.OK)
	assert.Equal(t, "Validation", resp.Error.Kind)
}

func TestDispatchSaveProfile(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	addResp := d.Dispatch(context.Background(), wire.Instruction{
		Operation: wire.OpAddParameter, Target: parammanager.DefaultName, Name: "gain",
		Kwargs: map[string]any{"kind": "float", "value": 2.0, "unit": "dB"},
	})
	require.True(t, addResp.OK)

	path := t.TempDir() + "/profile.json"
	saveResp := d.Dispatch(context.Background(), wire.Instruction{
		Operation: wire.OpSaveProfile, Target: parammanager.DefaultName,
		Kwargs: map[string]any{"path": path},
	})
	require.True(t, saveResp.OK)
}

func TestDispatchAddParameterTargetingNonParamManagerIsUnsupported(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	resp := d.Dispatch(context.Background(), wire.Instruction{
		Operation: wire.OpAddParameter, Target: "dmm", Name: "x",
		Kwargs: map[string]any{"kind": "float", "value": 1.0},
	})
	require.False(t, resp.OK)
	assert.Equal(t, "Unsupported", resp.Error.Kind)
}

func TestDispatchContextCancelledBeforeReplyYieldsTimeout(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp := d.Dispatch(ctx, wire.Instruction{Operation: wire.OpListInstruments})
	// The handler may still have completed before the cancellation was
	// observed, since Submit/select race; both outcomes are spec-legal, but
	// the response must always be structurally valid either way.
	if !resp.OK {
		assert.Equal(t, "Timeout", resp.Error.Kind)
	}
}
