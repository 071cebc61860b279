/*
 * MIT License
 * Copyright (c) 2026 Crrow
 */

package simmodule

import (
	"fmt"

	"github.com/crrow/pygpi/pkg/gpi"
	"github.com/crrow/pygpi/pkg/pyrt"
)

// envelope carries one runtime callable across the boundary: the function,
// its positional arguments, an optional keyword mapping, and an active
// sentinel. The callback record owns the envelope; it is released when the
// record fires for the last time or is deregistered.
type envelope struct {
	m      *Module
	fn     pyrt.Object
	args   pyrt.Object
	kwargs pyrt.Object

	active   bool
	released bool

	cb    *gpi.Callback
	token uintptr
}

// run is the gpi.Func for every runtime-registered callback. It re-enters
// the interpreter: take the lock, call, surface exceptions by printing them
// and stopping the simulation.
func (e *envelope) run(any) int32 {
	rt := e.m.rt
	gil := rt.GILEnsure()
	defer rt.GILRelease(gil)

	if !e.active {
		e.m.log.Warn("inactive callback envelope fired, dropping")
		return 0
	}

	res := rt.Call(e.fn, e.args, e.kwargs)
	if res == 0 {
		// A raised exception in a callback is fatal to the session.
		rt.ErrPrint()
		e.m.bridge.Stop()
	} else {
		rt.DecRef(res)
	}

	// Whatever kind this was, an invocation consumes the record: one-shot
	// kinds are spent, and a matched value-change record is torn down by
	// the dispatcher. The runtime re-registers when it wants more.
	e.release()
	return 0
}

// release drops the envelope's references and registry entry. Idempotent;
// must run with the interpreter lock held.
func (e *envelope) release() {
	if e.released {
		return
	}
	e.released = true
	e.active = false

	rt := e.m.rt
	rt.DecRef(e.fn)
	rt.DecRef(e.args)
	rt.DecRef(e.kwargs)
	e.fn, e.args, e.kwargs = 0, 0, 0
	delete(e.m.callbacks, e.token)
}

// parseEnvelope builds an envelope from a callable at fnIdx and the
// remaining positional arguments. On failure the exception is set.
func (m *Module) parseEnvelope(args pyrt.Object, fnIdx int) (*envelope, bool) {
	if m.rt.TupleLen(args) <= fnIdx {
		m.rt.RaiseType("missing callback function argument")
		return nil, false
	}
	fn := m.rt.TupleGet(args, fnIdx)
	if !m.rt.Callable(fn) {
		m.rt.RaiseType("callback must be callable")
		return nil, false
	}
	rest, err := m.rt.TupleSlice(args, fnIdx+1)
	if err != nil {
		m.rt.Raise(err)
		return nil, false
	}
	m.rt.IncRef(fn)
	return &envelope{m: m, fn: fn, args: rest, active: true}, true
}

// wrapCallback files the armed record under a fresh token and hands the
// runtime its wrapper.
func (m *Module) wrapCallback(cb *gpi.Callback, env *envelope) pyrt.Object {
	obj, err := m.cbHdl.New()
	if err != nil {
		env.release()
		cb.Deregister()
		return m.rt.Raise(err)
	}
	t := m.token()
	env.cb = cb
	env.token = t
	m.callbacks[t] = env
	m.cbHdl.SetWord(obj, t)
	return obj
}

func (m *Module) registerTimedCallback(_, args pyrt.Object) pyrt.Object {
	if m.rt.TupleLen(args) < 2 {
		return m.rt.RaiseType("register_timed_callback takes (time, fn, *args)")
	}
	ticks, err := m.rt.AsInt(m.rt.TupleGet(args, 0))
	if err != nil || ticks < 0 {
		return m.rt.RaiseValue("time must be a non-negative integer")
	}
	env, ok := m.parseEnvelope(args, 1)
	if !ok {
		return 0
	}
	cb, err := m.bridge.RegisterTimedCallback(uint64(ticks), env.run, env)
	if err != nil {
		env.release()
		return m.rt.Raise(err)
	}
	return m.wrapCallback(cb, env)
}

func (m *Module) registerValueChangeCallback(_, args pyrt.Object) pyrt.Object {
	if m.rt.TupleLen(args) < 3 {
		return m.rt.RaiseType("register_value_change_callback takes (signal, fn, edge, *args)")
	}
	h, ok := m.argHandle(m.rt.TupleGet(args, 0))
	if !ok {
		return m.rt.RaiseType("first argument must be a simulator handle")
	}
	sig, isSig := h.(*gpi.Signal)
	if !isSig {
		return m.rt.RaiseType(fmt.Sprintf("%s is not a signal", h.FullName()))
	}
	edge, err := m.rt.AsInt(m.rt.TupleGet(args, 2))
	if err != nil {
		return m.rt.RaiseType("edge must be an integer")
	}

	// Everything after the edge argument rides along to the callable.
	if m.rt.TupleLen(args) <= 1 {
		return m.rt.RaiseType("missing callback function argument")
	}
	fn := m.rt.TupleGet(args, 1)
	if !m.rt.Callable(fn) {
		return m.rt.RaiseType("callback must be callable")
	}
	rest, err := m.rt.TupleSlice(args, 3)
	if err != nil {
		return m.rt.Raise(err)
	}
	m.rt.IncRef(fn)
	env := &envelope{m: m, fn: fn, args: rest, active: true}

	cb, err := m.bridge.RegisterValueChangeCallback(sig, gpi.Edge(edge), env.run, env)
	if err != nil {
		env.release()
		return m.rt.Raise(err)
	}
	return m.wrapCallback(cb, env)
}

func (m *Module) registerReadOnlyCallback(_, args pyrt.Object) pyrt.Object {
	return m.registerPhase(args, m.bridge.RegisterReadOnlyCallback)
}

func (m *Module) registerRWSynchCallback(_, args pyrt.Object) pyrt.Object {
	return m.registerPhase(args, m.bridge.RegisterReadWriteCallback)
}

func (m *Module) registerNextStepCallback(_, args pyrt.Object) pyrt.Object {
	return m.registerPhase(args, m.bridge.RegisterNextTimeCallback)
}

func (m *Module) registerPhase(args pyrt.Object, reg func(gpi.Func, any) (*gpi.Callback, error)) pyrt.Object {
	env, ok := m.parseEnvelope(args, 0)
	if !ok {
		return 0
	}
	cb, err := reg(env.run, env)
	if err != nil {
		env.release()
		return m.rt.Raise(err)
	}
	return m.wrapCallback(cb, env)
}

// deregister cancels a callback from the runtime side. Safe to call twice
// and safe from inside the callback's own invocation.
func (m *Module) deregister(self, _ pyrt.Object) pyrt.Object {
	t := m.cbHdl.Word(self)
	env, ok := m.callbacks[t]
	if !ok {
		return m.rt.None()
	}
	if env.cb != nil {
		env.cb.Deregister()
	}
	env.release()
	return m.rt.None()
}
