package clientproxy

import (
	"context"

	"github.com/toolsforexperiments/instrumentserver/serverr"
	"github.com/toolsforexperiments/instrumentserver/wire"
)

// Runtime is the single entry point an application holds: it wraps an
// Asker (normally a *transport.Client) with the higher-level requests a
// client-side station needs — listing instruments, fetching blueprints,
// and creating-or-attaching-to one — and hands back ready-built proxy
// trees rather than raw wire.Response values.
//
// Grounded on original_source/instrumentserver/client/core.py's BaseClient
// (list_instruments/get_blueprint/create_instrument wrappers around a
// single ask) and client/application.py's higher-level station helpers.
type Runtime struct {
	asker Asker
}

// NewRuntime wraps asker.
func NewRuntime(asker Asker) *Runtime {
	return &Runtime{asker: asker}
}

// ListInstruments returns the names of every instrument currently known to
// the server.
func (r *Runtime) ListInstruments(ctx context.Context) ([]string, error) {
	resp, err := r.asker.Ask(ctx, wire.Instruction{Operation: wire.OpListInstruments})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, serverError(resp)
	}
	var names []string
	if err := resp.Unmarshal(&names); err != nil {
		return nil, serverr.Protocolf("clientproxy", "ListInstruments", "decode names: %v", err)
	}
	return names, nil
}

// GetBlueprint fetches an instrument's structural description without
// building a proxy tree from it.
func (r *Runtime) GetBlueprint(ctx context.Context, name string) (wire.InstrumentBlueprint, error) {
	resp, err := r.asker.Ask(ctx, wire.Instruction{Operation: wire.OpGetBlueprint, Target: name})
	if err != nil {
		return wire.InstrumentBlueprint{}, err
	}
	if !resp.OK {
		return wire.InstrumentBlueprint{}, serverError(resp)
	}
	var bp wire.InstrumentBlueprint
	if err := resp.Unmarshal(&bp); err != nil {
		return wire.InstrumentBlueprint{}, serverr.Protocolf("clientproxy", "GetBlueprint", "decode blueprint: %v", err)
	}
	return bp, nil
}

// Instrument fetches name's blueprint and returns a ready-to-use proxy
// tree. It does not create the instrument if it doesn't already exist —
// use FindOrCreateInstrument for that.
func (r *Runtime) Instrument(ctx context.Context, name string) (*InstrumentProxy, error) {
	bp, err := r.GetBlueprint(ctx, name)
	if err != nil {
		return nil, err
	}
	return BuildProxy(r.asker, name, bp), nil
}

// CreateInstrument asks the server to instantiate classPath under name,
// failing if name is already taken (spec.md §4.2's create_instrument
// without find_or_create).
func (r *Runtime) CreateInstrument(ctx context.Context, name, classPath string, args []any, kwargs map[string]any) (*InstrumentProxy, error) {
	return r.createInstrument(ctx, name, classPath, args, kwargs, false)
}

// FindOrCreateInstrument attaches to an existing instrument named name if
// one exists, creating it from classPath otherwise. Supplemented from
// original_source/instrumentserver/client/application.py and
// testing/test_async_requests/client_station_gui.py, which both rely on
// exactly this idempotent-attach behavior to avoid double-booting
// long-lived lab instruments across client restarts.
func (r *Runtime) FindOrCreateInstrument(ctx context.Context, name, classPath string, args []any, kwargs map[string]any) (*InstrumentProxy, error) {
	return r.createInstrument(ctx, name, classPath, args, kwargs, true)
}

func (r *Runtime) createInstrument(ctx context.Context, name, classPath string, args []any, kwargs map[string]any, findOrCreate bool) (*InstrumentProxy, error) {
	resp, err := r.asker.Ask(ctx, wire.Instruction{
		Operation:    wire.OpCreateInstrument,
		Target:       name,
		ClassPath:    classPath,
		Args:         args,
		Kwargs:       kwargs,
		FindOrCreate: findOrCreate,
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, serverError(resp)
	}
	return r.Instrument(ctx, name)
}
