package dispatch

import (
	"context"
	"time"

	"github.com/toolsforexperiments/instrumentserver/instrument"
	"github.com/toolsforexperiments/instrumentserver/parammanager"
	"github.com/toolsforexperiments/instrumentserver/serverr"
	"github.com/toolsforexperiments/instrumentserver/wire"
)

// handle routes a decoded instruction to its operation handler. It never
// lets a driver-raised error escape unclassified: every return path here is
// either a wire.Response built from OK() or one built from errResponse().
func (d *Dispatcher) handle(ctx context.Context, instr wire.Instruction) wire.Response {
	switch instr.Operation {
	case wire.OpListInstruments:
		return d.handleListInstruments()
	case wire.OpGetBlueprint:
		return d.handleGetBlueprint(instr)
	case wire.OpGet:
		return d.handleGet(instr)
	case wire.OpSet:
		return d.handleSet(instr)
	case wire.OpCall:
		return d.handleCall(instr)
	case wire.OpCreateInstrument:
		return d.handleCreateInstrument(instr)
	case wire.OpSnapshot:
		return d.handleSnapshot(instr)
	case wire.OpAddParameter:
		return d.handleAddParameter(instr)
	case wire.OpRemoveParameter:
		return d.handleRemoveParameter(instr)
	case wire.OpSaveProfile:
		return d.handleSaveProfile(instr)
	default:
		return errResponse(serverr.Protocolf("Dispatcher", "handle", "unknown operation: %s", instr.Operation))
	}
}

// handleListInstruments acquires only the registry's own (internal) lock,
// via Registry.List.
func (d *Dispatcher) handleListInstruments() wire.Response {
	names := d.registry.List()
	resp, err := wire.OK(names)
	if err != nil {
		return errResponse(serverr.WrapInternal(err, "Dispatcher", "list_instruments"))
	}
	return resp
}

// resolveLocked looks up the named instrument, acquires its lock, and
// returns an unlock func the caller must defer. Every handler below that
// touches instrument state goes through this so lock acquisition is never
// duplicated or forgotten. operation labels the lock-wait-time observation
// recorded while blocked on lock.Lock, so a "call" stuck behind a slow
// handler is visible separately from a fast "get".
func (d *Dispatcher) resolveLocked(name, operation string) (instrument.Instrument, func(), error) {
	inst, lock, err := d.registry.Get(name)
	if err != nil {
		return nil, nil, err
	}
	start := time.Now()
	lock.Lock()
	d.observeLockWait(operation, time.Since(start))
	return inst, lock.Unlock, nil
}

func (d *Dispatcher) observeLockWait(operation string, wait time.Duration) {
	if d.metrics != nil {
		d.metrics.LockWaitDuration.WithLabelValues(operation).Observe(wait.Seconds())
	}
}

func (d *Dispatcher) handleGetBlueprint(instr wire.Instruction) wire.Response {
	inst, unlock, err := d.resolveLocked(instr.Target, "get_blueprint")
	if err != nil {
		return errResponse(err)
	}
	defer unlock()

	bp := instrument.Blueprint(inst, instr.Target)
	resp, err := wire.OK(bp)
	if err != nil {
		return errResponse(serverr.WrapInternal(err, "Dispatcher", "get_blueprint"))
	}
	return resp
}

func (d *Dispatcher) handleGet(instr wire.Instruction) wire.Response {
	inst, unlock, err := d.resolveLocked(instr.Target, "get")
	if err != nil {
		return errResponse(err)
	}
	defer unlock()

	value, err := inst.Get(instr.FullParameterPath())
	if err != nil {
		return errResponse(err)
	}
	resp, err := wire.OK(value)
	if err != nil {
		return errResponse(serverr.WrapInternal(err, "Dispatcher", "get"))
	}
	return resp
}

func (d *Dispatcher) handleSet(instr wire.Instruction) wire.Response {
	inst, unlock, err := d.resolveLocked(instr.Target, "set")
	if err != nil {
		return errResponse(err)
	}
	defer unlock()

	path := instr.FullParameterPath()
	value, unit, err := inst.Set(path, instr.Value)
	if err != nil {
		return errResponse(err)
	}

	// Every successful set is followed by a broadcast before the reply
	// leaves the server (spec.md §8, invariant 3).
	d.publish(topicFor(instr.Target, path), value, unit, false)

	resp, err := wire.OK(value)
	if err != nil {
		return errResponse(serverr.WrapInternal(err, "Dispatcher", "set"))
	}
	return resp
}

func (d *Dispatcher) handleCall(instr wire.Instruction) wire.Response {
	inst, unlock, err := d.resolveLocked(instr.Target, "call")
	if err != nil {
		return errResponse(err)
	}
	defer unlock()

	result, err := inst.Call(instr.Path, instr.Name, instr.Args, instr.Kwargs)
	if err != nil {
		return errResponse(err)
	}
	resp, err := wire.OK(result)
	if err != nil {
		return errResponse(serverr.WrapInternal(err, "Dispatcher", "call"))
	}
	return resp
}

// handleCreateInstrument acquires the registry lock (internally, inside
// Registry.Create) then the new instrument's own lock is established as
// part of creation; no further locking is needed here since the instrument
// has no observable state until this call returns.
func (d *Dispatcher) handleCreateInstrument(instr wire.Instruction) wire.Response {
	inst, err := d.registry.Create(instr.Target, instr.ClassPath, instr.Args, instr.Kwargs, instr.FindOrCreate)
	if err != nil {
		return errResponse(err)
	}
	resp, err := wire.OK(map[string]string{"name": instr.Target, "classPath": inst.ClassPath()})
	if err != nil {
		return errResponse(serverr.WrapInternal(err, "Dispatcher", "create_instrument"))
	}
	return resp
}

func (d *Dispatcher) handleSnapshot(instr wire.Instruction) wire.Response {
	inst, unlock, err := d.resolveLocked(instr.Target, "snapshot")
	if err != nil {
		return errResponse(err)
	}
	defer unlock()

	snapshot := inst.Snapshot()
	raw, err := instrument.EncodeSnapshot(snapshot)
	if err != nil {
		return errResponse(serverr.WrapInternal(err, "Dispatcher", "snapshot"))
	}
	return wire.Response{OK: true, Value: raw}
}

// paramManagerTarget resolves and type-asserts the instrument addressed by
// instr.Target as a *parammanager.Manager. add_parameter/remove_parameter/
// save_profile are operations on the parameter manager specifically, not on
// the generic Instrument capability (spec.md §4.6).
func (d *Dispatcher) paramManagerTarget(instr wire.Instruction, operation string) (*parammanager.Manager, func(), error) {
	target := instr.Target
	if target == "" {
		target = parammanager.DefaultName
	}
	inst, lock, err := d.registry.Get(target)
	if err != nil {
		return nil, nil, err
	}
	start := time.Now()
	lock.Lock()
	d.observeLockWait(operation, time.Since(start))
	mgr, ok := inst.(*parammanager.Manager)
	if !ok {
		lock.Unlock()
		return nil, nil, serverr.Unsupportedf("Dispatcher", operation, "instrument %q is not a parameter manager", target)
	}
	return mgr, lock.Unlock, nil
}

func (d *Dispatcher) handleAddParameter(instr wire.Instruction) wire.Response {
	mgr, unlock, err := d.paramManagerTarget(instr, "add_parameter")
	if err != nil {
		return errResponse(err)
	}
	defer unlock()

	path := instr.FullParameterPath()
	kind, initialValue, unit, validator, err := decodeAddParameterSpec(instr)
	if err != nil {
		return errResponse(serverr.Validationf("Dispatcher", "add_parameter", "%v", err))
	}

	if err := mgr.AddParameter(path, kind, initialValue, unit, validator); err != nil {
		return errResponse(err)
	}

	d.publishStructural(topicFor(instr.Target, path), initialValue, unit)

	resp, err := wire.OK(nil)
	if err != nil {
		return errResponse(serverr.WrapInternal(err, "Dispatcher", "add_parameter"))
	}
	return resp
}

func (d *Dispatcher) handleRemoveParameter(instr wire.Instruction) wire.Response {
	mgr, unlock, err := d.paramManagerTarget(instr, "remove_parameter")
	if err != nil {
		return errResponse(err)
	}
	defer unlock()

	path := instr.FullParameterPath()
	if err := mgr.RemoveParameter(path); err != nil {
		return errResponse(err)
	}

	d.publishStructural(topicFor(instr.Target, path), nil, "")

	resp, err := wire.OK(nil)
	if err != nil {
		return errResponse(serverr.WrapInternal(err, "Dispatcher", "remove_parameter"))
	}
	return resp
}

func (d *Dispatcher) handleSaveProfile(instr wire.Instruction) wire.Response {
	mgr, unlock, err := d.paramManagerTarget(instr, "save_profile")
	if err != nil {
		return errResponse(err)
	}
	defer unlock()

	path, ok := instr.Kwargs["path"].(string)
	if !ok || path == "" {
		return errResponse(serverr.Protocolf("Dispatcher", "save_profile", "missing required kwarg: path"))
	}

	if err := parammanager.SaveProfile(mgr, path); err != nil {
		return errResponse(err)
	}
	resp, err := wire.OK(nil)
	if err != nil {
		return errResponse(serverr.WrapInternal(err, "Dispatcher", "save_profile"))
	}
	return resp
}

// publish builds and emits a broadcast event, best-effort (spec.md §4.5:
// "Publication is non-blocking and best-effort"). A nil publisher (e.g. in
// unit tests that don't exercise transport) silently drops the event.
func (d *Dispatcher) publish(topic string, value any, unit string, structural bool) {
	if d.publisher == nil {
		return
	}
	event, err := wire.NewBroadcastEvent(value, unit)
	if err != nil {
		return
	}
	event.Structural = structural
	d.publisher.Publish(topic, event)
	if d.metrics != nil {
		d.metrics.BroadcastsPublished.Inc()
	}
}

func (d *Dispatcher) publishStructural(topic string, value any, unit string) {
	d.publish(topic, value, unit, true)
}

// topicFor joins an instrument name and its dotted in-instrument path into
// the fully qualified broadcast topic (spec.md §3: "Topic string
// <instrument>.<sub>.<...>.<parameter>").
func topicFor(target, path string) string {
	if path == "" {
		return target
	}
	return target + "." + path
}

