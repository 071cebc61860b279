/*
 * MIT License
 * Copyright (c) 2026 Crrow
 */

// Package simmodule builds the `simulator` extension module: the surface the
// embedded test runtime sees. Three opaque wrapper types carry tokens into
// Go-side registries (Python never holds a Go pointer), a set of module
// callables registers callbacks and resolves handles, and integer constants
// export the semantic enumerations.
//
// Everything here runs with the interpreter lock held: either the runtime
// called in (methods), or the envelope acquired the lock before crossing
// back (callback delivery).
package simmodule

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/crrow/pygpi/pkg/gpi"
	"github.com/crrow/pygpi/pkg/pyrt"
)

// Module is the simulator-facing extension module instance.
type Module struct {
	rt     *pyrt.Runtime
	bridge *gpi.Bridge
	log    *zap.SugaredLogger

	simHdl  *pyrt.Type
	cbHdl   *pyrt.Type
	iterHdl *pyrt.Type

	handles   map[uintptr]gpi.Handle
	callbacks map[uintptr]*envelope
	iterators map[uintptr]*gpi.Iterator
	nextToken uintptr

	eventCb pyrt.Object
}

// New wires the module over an interpreter and a bridge. Register must be
// called before the interpreter initializes.
func New(rt *pyrt.Runtime, bridge *gpi.Bridge, log *zap.SugaredLogger) *Module {
	return &Module{
		rt:        rt,
		bridge:    bridge,
		log:       log,
		handles:   make(map[uintptr]gpi.Handle),
		callbacks: make(map[uintptr]*envelope),
		iterators: make(map[uintptr]*gpi.Iterator),
		nextToken: 1,
	}
}

// Register defines the module content and appends it to the interpreter's
// init table.
func (m *Module) Register() error {
	mod := m.rt.NewModule("simulator")

	m.simHdl = m.rt.NewType("simulator.gpi_sim_hdl")
	m.simHdl.SetRepr(reprFor(m.rt, "gpi_sim_hdl"))
	m.simHdl.AddMethod("get_signal_val_binstr", m.getSignalValBinStr)
	m.simHdl.AddMethod("get_signal_val_long", m.getSignalValLong)
	m.simHdl.AddMethod("get_signal_val_real", m.getSignalValReal)
	m.simHdl.AddMethod("set_signal_val_binstr", m.setSignalValBinStr)
	m.simHdl.AddMethod("set_signal_val_int", m.setSignalValInt)
	m.simHdl.AddMethod("set_signal_val_real", m.setSignalValReal)
	m.simHdl.AddMethod("get_handle_by_name", m.getHandleByName)
	m.simHdl.AddMethod("get_handle_by_index", m.getHandleByIndex)
	m.simHdl.AddMethod("get_name_string", m.getNameString)
	m.simHdl.AddMethod("get_type_string", m.getTypeString)
	m.simHdl.AddMethod("get_type", m.getType)
	m.simHdl.AddMethod("get_const", m.getConst)
	m.simHdl.AddMethod("get_num_elems", m.getNumElems)
	m.simHdl.AddMethod("get_indexable", m.getIndexable)
	m.simHdl.AddMethod("get_range", m.getRange)
	m.simHdl.AddMethod("get_range_dir", m.getRangeDir)
	m.simHdl.AddMethod("iterate", m.iterate)

	m.cbHdl = m.rt.NewType("simulator.gpi_cb_hdl")
	m.cbHdl.SetRepr(reprFor(m.rt, "gpi_cb_hdl"))
	m.cbHdl.AddMethod("deregister", m.deregister)

	m.iterHdl = m.rt.NewType("simulator.gpi_iterator_hdl")
	m.iterHdl.SetRepr(reprFor(m.rt, "gpi_iterator_hdl"))
	m.iterHdl.AddMethod("next", m.iterNext)

	mod.AddType(m.simHdl)
	mod.AddType(m.cbHdl)
	mod.AddType(m.iterHdl)

	for name, v := range map[string]int64{
		"UNKNOWN":          int64(gpi.Unknown),
		"MEMORY":           int64(gpi.Memory),
		"MODULE":           int64(gpi.Module),
		"ARRAY":            int64(gpi.Array),
		"ENUM":             int64(gpi.Enum),
		"STRUCTURE":        int64(gpi.Structure),
		"REAL":             int64(gpi.Real),
		"INTEGER":          int64(gpi.Integer),
		"STRING":           int64(gpi.String),
		"GENARRAY":         int64(gpi.GenArray),
		"PACKAGE":          int64(gpi.Package),
		"PACKED_STRUCTURE": int64(gpi.PackedStructure),
		"LOGIC":            int64(gpi.Logic),
		"LOGIC_ARRAY":      int64(gpi.LogicArray),

		"OBJECTS":        int64(gpi.IterObjects),
		"DRIVERS":        int64(gpi.IterDrivers),
		"LOADS":          int64(gpi.IterLoads),
		"PACKAGE_SCOPES": int64(gpi.IterPackageScopes),

		"RISING":       int64(gpi.Rising),
		"FALLING":      int64(gpi.Falling),
		"VALUE_CHANGE": int64(gpi.ValueChange),

		"RANGE_UP":           int64(gpi.RangeUp),
		"RANGE_DOWN":         int64(gpi.RangeDown),
		"RANGE_NO_DIRECTION": int64(gpi.RangeNoDir),
	} {
		mod.AddIntConstant(name, v)
	}

	mod.AddMethod("get_root_handle", m.getRootHandle)
	mod.AddMethod("register_timed_callback", m.registerTimedCallback)
	mod.AddMethod("register_value_change_callback", m.registerValueChangeCallback)
	mod.AddMethod("register_readonly_callback", m.registerReadOnlyCallback)
	mod.AddMethod("register_rwsynch_callback", m.registerRWSynchCallback)
	mod.AddMethod("register_nextstep_callback", m.registerNextStepCallback)
	mod.AddMethod("stop_simulator", m.stopSimulator)
	mod.AddMethod("get_sim_time", m.getSimTime)
	mod.AddMethod("get_precision", m.getPrecision)
	mod.AddMethod("get_simulator_product", m.getSimulatorProduct)
	mod.AddMethod("get_simulator_version", m.getSimulatorVersion)
	mod.AddMethod("set_sim_event_callback", m.setSimEventCallback)

	return mod.Register()
}

func reprFor(rt *pyrt.Runtime, name string) pyrt.UnaryFunc {
	return func(self pyrt.Object) pyrt.Object {
		return rt.Str(fmt.Sprintf("<%s at 0x%x>", name, uintptr(self)))
	}
}

// --- wrapper/token plumbing ----------------------------------------------

func (m *Module) token() uintptr {
	t := m.nextToken
	m.nextToken++
	return t
}

func (m *Module) wrapHandle(h gpi.Handle) pyrt.Object {
	obj, err := m.simHdl.New()
	if err != nil {
		return m.rt.Raise(err)
	}
	t := m.token()
	m.handles[t] = h
	m.simHdl.SetWord(obj, t)
	return obj
}

// selfHandle recovers the Go handle behind a wrapper; on failure the
// exception is already set and the caller returns the zero Object.
func (m *Module) selfHandle(self pyrt.Object) (gpi.Handle, bool) {
	h, ok := m.handles[m.simHdl.Word(self)]
	if !ok {
		m.rt.RaiseValue("stale simulator handle")
		return nil, false
	}
	return h, true
}

func (m *Module) selfSignal(self pyrt.Object) (*gpi.Signal, bool) {
	h, ok := m.selfHandle(self)
	if !ok {
		return nil, false
	}
	sig, isSig := h.(*gpi.Signal)
	if !isSig {
		m.rt.RaiseType(fmt.Sprintf("%s is not a signal", h.FullName()))
		return nil, false
	}
	return sig, true
}

func (m *Module) argHandle(o pyrt.Object) (gpi.Handle, bool) {
	if !m.simHdl.Is(o) {
		return nil, false
	}
	h, ok := m.handles[m.simHdl.Word(o)]
	return h, ok
}

// lookupResult maps the resolver's error taxonomy onto runtime conventions:
// a miss is None, a bad index is IndexError, a bad type TypeError.
func (m *Module) lookupResult(h gpi.Handle, err error) pyrt.Object {
	switch {
	case err == nil:
		return m.wrapHandle(h)
	case errors.Is(err, gpi.ErrNotFound):
		return m.rt.None()
	case errors.Is(err, gpi.ErrOutOfRange):
		return m.rt.RaiseIndex(err.Error())
	case errors.Is(err, gpi.ErrTypeMismatch):
		return m.rt.RaiseType(err.Error())
	default:
		return m.rt.Raise(err)
	}
}

// --- module callables -----------------------------------------------------

func (m *Module) getRootHandle(_, args pyrt.Object) pyrt.Object {
	name := ""
	if m.rt.TupleLen(args) > 0 {
		arg := m.rt.TupleGet(args, 0)
		if !m.rt.IsNone(arg) {
			name = m.rt.AsString(arg)
		}
	}
	h, err := m.bridge.RootHandle(name)
	if err != nil {
		if errors.Is(err, gpi.ErrNotFound) {
			return m.rt.None()
		}
		return m.rt.Raise(err)
	}
	return m.wrapHandle(h)
}

func (m *Module) stopSimulator(_, _ pyrt.Object) pyrt.Object {
	m.bridge.Stop()
	return m.rt.None()
}

func (m *Module) getSimTime(_, _ pyrt.Object) pyrt.Object {
	high, low := m.bridge.SimTime()
	t := m.rt.NewTuple(2)
	if t == 0 {
		return m.rt.Raise(fmt.Errorf("unable to allocate the time tuple"))
	}
	if err := m.rt.TupleSet(t, 0, m.rt.Uint64(uint64(high))); err != nil {
		m.rt.DecRef(t)
		return m.rt.Raise(err)
	}
	if err := m.rt.TupleSet(t, 1, m.rt.Uint64(uint64(low))); err != nil {
		m.rt.DecRef(t)
		return m.rt.Raise(err)
	}
	return t
}

func (m *Module) getPrecision(_, _ pyrt.Object) pyrt.Object {
	return m.rt.Int(int64(m.bridge.Precision()))
}

func (m *Module) getSimulatorProduct(_, _ pyrt.Object) pyrt.Object {
	return m.rt.Str(m.bridge.Product())
}

func (m *Module) getSimulatorVersion(_, _ pyrt.Object) pyrt.Object {
	return m.rt.Str(m.bridge.Version())
}

func (m *Module) setSimEventCallback(_, args pyrt.Object) pyrt.Object {
	if m.eventCb != 0 {
		return m.rt.RaiseValue("simulator event callback already set")
	}
	if m.rt.TupleLen(args) != 1 {
		return m.rt.RaiseType("set_sim_event_callback takes exactly one argument")
	}
	fn := m.rt.TupleGet(args, 0)
	if !m.rt.Callable(fn) {
		return m.rt.RaiseType("simulator event callback must be callable")
	}
	m.rt.IncRef(fn)
	m.eventCb = fn
	return m.rt.None()
}

// FireSimEvent delivers a simulator-event message to the runtime's
// registered hook, consuming the single-shot slot.
func (m *Module) FireSimEvent(msg string) {
	if m.eventCb == 0 {
		return
	}
	gil := m.rt.GILEnsure()
	defer m.rt.GILRelease(gil)

	fn := m.eventCb
	m.eventCb = 0

	args := m.rt.NewTuple(1)
	if args != 0 {
		if err := m.rt.TupleSet(args, 0, m.rt.Str(msg)); err == nil {
			res := m.rt.Call(fn, args, 0)
			if res == 0 {
				m.rt.ErrPrint()
			} else {
				m.rt.DecRef(res)
			}
		}
		m.rt.DecRef(args)
	}
	m.rt.DecRef(fn)
}

// --- handle methods -------------------------------------------------------

func (m *Module) getSignalValBinStr(self, _ pyrt.Object) pyrt.Object {
	sig, ok := m.selfSignal(self)
	if !ok {
		return 0
	}
	v, err := sig.ValueBinStr()
	if err != nil {
		return m.rt.Raise(err)
	}
	return m.rt.Str(v)
}

func (m *Module) getSignalValLong(self, _ pyrt.Object) pyrt.Object {
	sig, ok := m.selfSignal(self)
	if !ok {
		return 0
	}
	v, err := sig.ValueInt()
	if err != nil {
		return m.rt.Raise(err)
	}
	return m.rt.Int(int64(v))
}

func (m *Module) getSignalValReal(self, _ pyrt.Object) pyrt.Object {
	sig, ok := m.selfSignal(self)
	if !ok {
		return 0
	}
	v, err := sig.ValueReal()
	if err != nil {
		return m.rt.Raise(err)
	}
	return m.rt.Float(v)
}

func (m *Module) setAction(args pyrt.Object) (gpi.SetAction, bool) {
	av, err := m.rt.AsInt(m.rt.TupleGet(args, 0))
	if err != nil {
		m.rt.RaiseType("action must be an integer")
		return 0, false
	}
	return gpi.SetAction(av), true
}

func (m *Module) setSignalValBinStr(self, args pyrt.Object) pyrt.Object {
	sig, ok := m.selfSignal(self)
	if !ok {
		return 0
	}
	if m.rt.TupleLen(args) != 2 {
		return m.rt.RaiseType("set_signal_val_binstr takes (action, value)")
	}
	action, ok := m.setAction(args)
	if !ok {
		return 0
	}
	if err := sig.SetBinStr(action, m.rt.AsString(m.rt.TupleGet(args, 1))); err != nil {
		return m.rt.Raise(err)
	}
	return m.rt.None()
}

func (m *Module) setSignalValInt(self, args pyrt.Object) pyrt.Object {
	sig, ok := m.selfSignal(self)
	if !ok {
		return 0
	}
	if m.rt.TupleLen(args) != 2 {
		return m.rt.RaiseType("set_signal_val_int takes (action, value)")
	}
	action, ok := m.setAction(args)
	if !ok {
		return 0
	}
	v, err := m.rt.AsInt(m.rt.TupleGet(args, 1))
	if err != nil {
		return m.rt.RaiseType("value must be an integer")
	}
	if err := sig.SetInt(action, int32(v)); err != nil {
		return m.rt.Raise(err)
	}
	return m.rt.None()
}

func (m *Module) setSignalValReal(self, args pyrt.Object) pyrt.Object {
	sig, ok := m.selfSignal(self)
	if !ok {
		return 0
	}
	if m.rt.TupleLen(args) != 2 {
		return m.rt.RaiseType("set_signal_val_real takes (action, value)")
	}
	action, ok := m.setAction(args)
	if !ok {
		return 0
	}
	v, err := m.rt.AsFloat(m.rt.TupleGet(args, 1))
	if err != nil {
		return m.rt.RaiseType("value must be a float")
	}
	if err := sig.SetReal(action, v); err != nil {
		return m.rt.Raise(err)
	}
	return m.rt.None()
}

func (m *Module) getHandleByName(self, args pyrt.Object) pyrt.Object {
	h, ok := m.selfHandle(self)
	if !ok {
		return 0
	}
	if m.rt.TupleLen(args) != 1 {
		return m.rt.RaiseType("get_handle_by_name takes exactly one argument")
	}
	name := m.rt.AsString(m.rt.TupleGet(args, 0))
	child, err := m.bridge.HandleByName(h, name)
	return m.lookupResult(child, err)
}

func (m *Module) getHandleByIndex(self, args pyrt.Object) pyrt.Object {
	h, ok := m.selfHandle(self)
	if !ok {
		return 0
	}
	if m.rt.TupleLen(args) != 1 {
		return m.rt.RaiseType("get_handle_by_index takes exactly one argument")
	}
	idx, err := m.rt.AsInt(m.rt.TupleGet(args, 0))
	if err != nil {
		return m.rt.RaiseType("index must be an integer")
	}
	child, err := m.bridge.HandleByIndex(h, int32(idx))
	return m.lookupResult(child, err)
}

func (m *Module) getNameString(self, _ pyrt.Object) pyrt.Object {
	h, ok := m.selfHandle(self)
	if !ok {
		return 0
	}
	return m.rt.Str(h.FullName())
}

func (m *Module) getTypeString(self, _ pyrt.Object) pyrt.Object {
	h, ok := m.selfHandle(self)
	if !ok {
		return 0
	}
	return m.rt.Str(h.Type().String())
}

func (m *Module) getType(self, _ pyrt.Object) pyrt.Object {
	h, ok := m.selfHandle(self)
	if !ok {
		return 0
	}
	return m.rt.Int(int64(h.Type()))
}

func (m *Module) getConst(self, _ pyrt.Object) pyrt.Object {
	h, ok := m.selfHandle(self)
	if !ok {
		return 0
	}
	return m.rt.Bool(h.Const())
}

func (m *Module) getNumElems(self, _ pyrt.Object) pyrt.Object {
	h, ok := m.selfHandle(self)
	if !ok {
		return 0
	}
	return m.rt.Int(int64(h.NumElems()))
}

func (m *Module) getIndexable(self, _ pyrt.Object) pyrt.Object {
	h, ok := m.selfHandle(self)
	if !ok {
		return 0
	}
	return m.rt.Bool(h.Indexable())
}

func (m *Module) getRange(self, _ pyrt.Object) pyrt.Object {
	h, ok := m.selfHandle(self)
	if !ok {
		return 0
	}
	t := m.rt.NewTuple(2)
	if t == 0 {
		return m.rt.Raise(fmt.Errorf("unable to allocate the range tuple"))
	}
	if err := m.rt.TupleSet(t, 0, m.rt.Int(int64(h.RangeLeft()))); err != nil {
		m.rt.DecRef(t)
		return m.rt.Raise(err)
	}
	if err := m.rt.TupleSet(t, 1, m.rt.Int(int64(h.RangeRight()))); err != nil {
		m.rt.DecRef(t)
		return m.rt.Raise(err)
	}
	return t
}

func (m *Module) getRangeDir(self, _ pyrt.Object) pyrt.Object {
	h, ok := m.selfHandle(self)
	if !ok {
		return 0
	}
	return m.rt.Int(int64(h.RangeDir()))
}

func (m *Module) iterate(self, args pyrt.Object) pyrt.Object {
	h, ok := m.selfHandle(self)
	if !ok {
		return 0
	}
	if m.rt.TupleLen(args) != 1 {
		return m.rt.RaiseType("iterate takes exactly one argument")
	}
	mode, err := m.rt.AsInt(m.rt.TupleGet(args, 0))
	if err != nil {
		return m.rt.RaiseType("iteration mode must be an integer")
	}
	it, err := m.bridge.NewIterator(h, gpi.IterSel(mode))
	if err != nil {
		if errors.Is(err, gpi.ErrTypeMismatch) {
			return m.rt.RaiseType(err.Error())
		}
		return m.rt.Raise(err)
	}
	obj, err := m.iterHdl.New()
	if err != nil {
		return m.rt.Raise(err)
	}
	t := m.token()
	m.iterators[t] = it
	m.iterHdl.SetWord(obj, t)
	return obj
}

func (m *Module) iterNext(self, _ pyrt.Object) pyrt.Object {
	t := m.iterHdl.Word(self)
	it, ok := m.iterators[t]
	if !ok {
		return m.rt.RaiseStopIteration()
	}
	h, err := it.Next()
	if errors.Is(err, gpi.ErrIterEnd) {
		delete(m.iterators, t)
		return m.rt.RaiseStopIteration()
	}
	if err != nil {
		return m.rt.Raise(err)
	}
	return m.wrapHandle(h)
}
