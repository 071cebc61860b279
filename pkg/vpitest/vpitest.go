/*
 * MIT License
 * Copyright (c) 2026 Crrow
 */

// Package vpitest is an in-memory vpi.Client for tests: a hand-built design
// hierarchy, a value store, and a small event scheduler with the phase
// ordering of a Verilog time step.
//
// The fake reproduces the behaviors the engine works around in real
// simulators: it delivers value-change events synchronously from inside a
// no-delay put (so re-entrant dispatch is exercised for real), and quirk
// bits select whether unindexed generate scopes resolve directly.
package vpitest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/crrow/pygpi/pkg/binstr"
	"github.com/crrow/pygpi/pkg/vpi"
)

type node struct {
	typ      int32
	name     string
	fullName string
	parent   vpi.Handle
	children []vpi.Handle

	size      int32
	vector    bool
	constType int32
	ranges    []rng

	bin   string
	real  float64
	str   string
	state int32 // const nodes backing range bounds

	forced bool
	saved  string // pending deposit while forced

	iter *iterState
}

type rng struct{ left, right int32 }

type iterState struct {
	items []vpi.Handle
	pos   int
}

type cbReg struct {
	data *vpi.CbData
	obj  vpi.Handle // value-change target
}

type event struct {
	at   uint64
	seq  uint64
	fire func()
}

// Sim is one fake simulation. Not safe for concurrent use; neither is a real
// simulator.
type Sim struct {
	next    vpi.Handle
	nodes   map[vpi.Handle]*node
	byName  map[string]vpi.Handle
	roots   []vpi.Handle

	time      uint64
	seq       uint64
	events    []*event
	precision int32

	cbs      map[vpi.Handle]*cbReg
	watchers map[vpi.Handle][]vpi.Handle
	startup  []vpi.Handle
	nextTime []vpi.Handle
	readWr   []vpi.Handle
	readOnly []vpi.Handle

	quirks      vpi.Quirk
	product     string
	version     string
	argv        []string
	lastRelease string

	Finished bool
}

var _ vpi.Client = (*Sim)(nil)

// New builds an empty simulation.
func New() *Sim {
	return &Sim{
		next:      1,
		nodes:     make(map[vpi.Handle]*node),
		byName:    make(map[string]vpi.Handle),
		cbs:       make(map[vpi.Handle]*cbReg),
		watchers:  make(map[vpi.Handle][]vpi.Handle),
		precision: -12,
		product:   "vpitest",
		version:   "0.0",
		argv:      []string{"vpitest"},
	}
}

func (s *Sim) SetQuirks(q vpi.Quirk)  { s.quirks = q }
func (s *Sim) SetProduct(p string)    { s.product = p }
func (s *Sim) SetVersion(v string)    { s.version = v }
func (s *Sim) SetArgv(argv []string)  { s.argv = argv }
func (s *Sim) SetPrecision(p int32)   { s.precision = p }

// Now reports the current simulation time in ticks.
func (s *Sim) Now() uint64 { return s.time }

func (s *Sim) alloc(n *node) vpi.Handle {
	h := s.next
	s.next++
	s.nodes[h] = n
	return h
}

func (s *Sim) addChild(parent vpi.Handle, n *node) vpi.Handle {
	if parent != 0 {
		p := s.nodes[parent]
		sep := "."
		if p.typ == vpi.TypePackage {
			sep = "::"
		}
		n.fullName = p.fullName + sep + n.name
		n.parent = parent
	} else {
		n.fullName = n.name
	}
	h := s.alloc(n)
	if parent != 0 {
		s.nodes[parent].children = append(s.nodes[parent].children, h)
	} else {
		s.roots = append(s.roots, h)
	}
	s.byName[n.fullName] = h
	return h
}

// AddModule adds a module instance; a zero parent makes it a top level.
func (s *Sim) AddModule(parent vpi.Handle, name string) vpi.Handle {
	return s.addChild(parent, &node{typ: vpi.TypeModule, name: name})
}

// AddGenScope adds one elaborated generate scope, typically named label[i].
func (s *Sim) AddGenScope(parent vpi.Handle, name string) vpi.Handle {
	return s.addChild(parent, &node{typ: vpi.TypeGenScope, name: name})
}

// AddGenScopeArray adds the aggregate object some simulators expose for an
// unindexed generate label.
func (s *Sim) AddGenScopeArray(parent vpi.Handle, name string) vpi.Handle {
	return s.addChild(parent, &node{typ: vpi.TypeGenScopeArray, name: name})
}

// AddPackage adds a root-level package scope.
func (s *Sim) AddPackage(name string) vpi.Handle {
	return s.addChild(0, &node{typ: vpi.TypePackage, name: name})
}

// AddReg adds a reg of the given width, vector when wider than one bit, with
// a [width-1:0] range and an all-X initial value.
func (s *Sim) AddReg(parent vpi.Handle, name string, width int32) vpi.Handle {
	n := &node{
		typ:    vpi.TypeReg,
		name:   name,
		size:   width,
		vector: width > 1,
		bin:    strings.Repeat("X", int(width)),
	}
	if width > 1 {
		n.ranges = []rng{{left: width - 1, right: 0}}
	}
	return s.addChild(parent, n)
}

// AddNet is AddReg with a net type code.
func (s *Sim) AddNet(parent vpi.Handle, name string, width int32) vpi.Handle {
	h := s.AddReg(parent, name, width)
	s.nodes[h].typ = vpi.TypeNet
	return h
}

// AddIntegerVar adds a 32-bit integer variable.
func (s *Sim) AddIntegerVar(parent vpi.Handle, name string) vpi.Handle {
	return s.addChild(parent, &node{
		typ: vpi.TypeIntegerVar, name: name, size: 32,
		bin: strings.Repeat("0", 32),
	})
}

// AddRealVar adds a real variable.
func (s *Sim) AddRealVar(parent vpi.Handle, name string) vpi.Handle {
	return s.addChild(parent, &node{typ: vpi.TypeRealVar, name: name, size: 1})
}

// AddStringVar adds a string variable. Size is left at zero: a string's
// width is not fixed.
func (s *Sim) AddStringVar(parent vpi.Handle, name string) vpi.Handle {
	return s.addChild(parent, &node{typ: vpi.TypeStringVar, name: name})
}

// AddParameter adds a constant parameter with the given subtype and binary
// value.
func (s *Sim) AddParameter(parent vpi.Handle, name string, constType int32, bin string) vpi.Handle {
	return s.addChild(parent, &node{
		typ: vpi.TypeParameter, name: name, constType: constType,
		size: int32(len(bin)), bin: bin,
	})
}

// AddArray adds an unpacked array object carrying the given range
// constraints. Elements are added separately under their bracketed names.
func (s *Sim) AddArray(parent vpi.Handle, name string, ranges ...[2]int32) vpi.Handle {
	n := &node{typ: vpi.TypeRegArray, name: name}
	for _, r := range ranges {
		n.ranges = append(n.ranges, rng{left: r[0], right: r[1]})
	}
	total := int32(1)
	for _, r := range n.ranges {
		span := r.left - r.right
		if span < 0 {
			span = -span
		}
		total *= span + 1
	}
	n.size = total
	return s.addChild(parent, n)
}

// --- scheduling -----------------------------------------------------------

func (s *Sim) schedule(at uint64, fire func()) {
	s.seq++
	s.events = append(s.events, &event{at: at, seq: s.seq, fire: fire})
}

// Start fires the start-of-simulation hooks.
func (s *Sim) Start() {
	s.firePhase(&s.startup)
}

// Run processes scheduled events until none remain or the simulation is
// finished. Each new time point runs next-time hooks, then timed events in
// registration order, then the read-write and read-only phases.
func (s *Sim) Run() {
	for !s.Finished && len(s.events) > 0 {
		sort.SliceStable(s.events, func(i, j int) bool {
			if s.events[i].at != s.events[j].at {
				return s.events[i].at < s.events[j].at
			}
			return s.events[i].seq < s.events[j].seq
		})

		at := s.events[0].at
		if at > s.time {
			s.time = at
			s.firePhase(&s.nextTime)
			if s.Finished {
				return
			}
		}

		var due []*event
		rest := s.events[:0]
		for _, ev := range s.events {
			if ev.at == at {
				due = append(due, ev)
			} else {
				rest = append(rest, ev)
			}
		}
		s.events = rest

		for _, ev := range due {
			if s.Finished {
				return
			}
			ev.fire()
		}
		s.firePhase(&s.readWr)
		s.firePhase(&s.readOnly)
	}
}

func (s *Sim) firePhase(list *[]vpi.Handle) {
	due := *list
	*list = nil
	for _, ch := range due {
		s.fireOnce(ch)
	}
}

// fireOnce delivers a one-shot callback: the registration is consumed before
// the routine runs, the way a simulator retires it.
func (s *Sim) fireOnce(ch vpi.Handle) {
	reg, ok := s.cbs[ch]
	if !ok {
		return
	}
	delete(s.cbs, ch)
	if reg.data.Rtn != nil {
		reg.data.Rtn(reg.data)
	}
}

// --- value store ----------------------------------------------------------

func (s *Sim) applyValue(h vpi.Handle, n *node, v vpi.Value) error {
	before := n.bin + "\x00" + n.str + fmt.Sprint(n.real)

	switch v.Format {
	case vpi.BinStrVal:
		b := binstr.Normalize(v.Str)
		if err := binstr.Validate(b, int(n.size)); err != nil && n.typ != vpi.TypeRealVar {
			return err
		}
		n.bin = b
	case vpi.IntVal:
		if n.typ == vpi.TypeRealVar {
			n.real = float64(v.Int)
		} else {
			n.bin = binstr.FromInt(v.Int, int(n.size))
		}
	case vpi.RealVal:
		n.real = v.Real
	case vpi.StringVal:
		n.str = v.Str
	default:
		return fmt.Errorf("vpitest: unsupported put format %d", v.Format)
	}

	after := n.bin + "\x00" + n.str + fmt.Sprint(n.real)
	if after != before {
		s.notify(h)
	}
	return nil
}

// notify delivers value-change events to every watcher, synchronously, from
// inside the write that caused them.
func (s *Sim) notify(h vpi.Handle) {
	watching := append([]vpi.Handle(nil), s.watchers[h]...)
	for _, ch := range watching {
		reg, ok := s.cbs[ch]
		if !ok {
			continue
		}
		if reg.data.Rtn != nil {
			reg.data.Rtn(reg.data)
		}
	}
}

// Poke drives a binary value from outside, like a testbench driver, and
// wakes the watchers. A forced object swallows the drive and remembers it as
// the value to resume on release.
func (s *Sim) Poke(fullName, bin string) error {
	h, ok := s.byName[fullName]
	if !ok {
		return fmt.Errorf("vpitest: no object %q", fullName)
	}
	n := s.nodes[h]
	if n.forced {
		n.saved = bin
		return nil
	}
	return s.applyValue(h, n, vpi.Value{Format: vpi.BinStrVal, Str: bin})
}

// LastRelease reports the payload of the most recent release write.
func (s *Sim) LastRelease() string { return s.lastRelease }

// BinValue reads an object's binary value directly.
func (s *Sim) BinValue(fullName string) string {
	if h, ok := s.byName[fullName]; ok {
		return s.nodes[h].bin
	}
	return ""
}

// Forced reports whether the object is currently under a force.
func (s *Sim) Forced(fullName string) bool {
	if h, ok := s.byName[fullName]; ok {
		return s.nodes[h].forced
	}
	return false
}

// --- vpi.Client -----------------------------------------------------------

func (s *Sim) HandleByName(name string, scope vpi.Handle) vpi.Handle {
	full := name
	if scope != 0 {
		full = s.nodes[scope].fullName + "." + name
	}
	return s.byName[full]
}

func (s *Sim) HandleByIndex(parent vpi.Handle, index int32) vpi.Handle {
	p, ok := s.nodes[parent]
	if !ok {
		return 0
	}
	return s.byName[fmt.Sprintf("%s[%d]", p.fullName, index)]
}

func (s *Sim) HandleByType(rel int32, ref vpi.Handle) vpi.Handle {
	n, ok := s.nodes[ref]
	if !ok || len(n.ranges) == 0 {
		return 0
	}
	switch rel {
	case vpi.RelLeftRange:
		return s.alloc(&node{typ: vpi.TypeConstant, state: n.ranges[0].left})
	case vpi.RelRightRange:
		return s.alloc(&node{typ: vpi.TypeConstant, state: n.ranges[0].right})
	}
	return 0
}

func (s *Sim) Iterate(rel int32, ref vpi.Handle) vpi.Handle {
	var items []vpi.Handle

	switch {
	case ref == 0 && rel == vpi.TypeModule:
		for _, h := range s.roots {
			if s.nodes[h].typ == vpi.TypeModule {
				items = append(items, h)
			}
		}
	case ref == 0 && rel == vpi.TypePackage:
		for _, h := range s.roots {
			if s.nodes[h].typ == vpi.TypePackage {
				items = append(items, h)
			}
		}
	case ref != 0 && rel == vpi.TypeRange:
		n, ok := s.nodes[ref]
		if !ok {
			return 0
		}
		for _, r := range n.ranges {
			items = append(items, s.alloc(&node{
				typ:    vpi.TypeRange,
				ranges: []rng{r},
			}))
		}
	case ref != 0 && rel == vpi.RelInternalScope:
		n, ok := s.nodes[ref]
		if !ok {
			return 0
		}
		for _, ch := range n.children {
			if s.nodes[ch].typ == vpi.TypeGenScope {
				items = append(items, ch)
			}
		}
	case ref != 0:
		n, ok := s.nodes[ref]
		if !ok {
			return 0
		}
		for _, ch := range n.children {
			if s.nodes[ch].typ == rel {
				items = append(items, ch)
			}
		}
	}

	if len(items) == 0 {
		return 0
	}
	return s.alloc(&node{typ: vpi.TypeIterator, iter: &iterState{items: items}})
}

func (s *Sim) Scan(iter vpi.Handle) vpi.Handle {
	n, ok := s.nodes[iter]
	if !ok || n.iter == nil {
		return 0
	}
	if n.iter.pos >= len(n.iter.items) {
		// A drained iterator is gone, matching the standard's behavior.
		delete(s.nodes, iter)
		return 0
	}
	h := n.iter.items[n.iter.pos]
	n.iter.pos++
	return h
}

func (s *Sim) Get(prop int32, h vpi.Handle) int32 {
	n, ok := s.nodes[h]
	if !ok {
		if prop == vpi.PropTimePrecision {
			return s.precision
		}
		return 0
	}
	switch prop {
	case vpi.PropType:
		return n.typ
	case vpi.PropSize:
		return n.size
	case vpi.PropVector:
		if n.vector {
			return 1
		}
		return 0
	case vpi.PropConstType:
		return n.constType
	case vpi.PropTimePrecision:
		return s.precision
	}
	return 0
}

func (s *Sim) GetStr(prop int32, h vpi.Handle) string {
	n, ok := s.nodes[h]
	if !ok {
		return ""
	}
	switch prop {
	case vpi.PropName:
		return n.name
	case vpi.PropFullName:
		return n.fullName
	}
	return ""
}

func (s *Sim) GetValue(h vpi.Handle, format int32) (vpi.Value, error) {
	n, ok := s.nodes[h]
	if !ok {
		return vpi.Value{}, fmt.Errorf("vpitest: read of unknown handle %d", h)
	}
	v := vpi.Value{Format: format}
	switch format {
	case vpi.BinStrVal:
		v.Str = n.bin
	case vpi.IntVal:
		if n.typ == vpi.TypeConstant && n.bin == "" {
			v.Int = n.state // synthetic range bound
		} else {
			v.Int = binstr.ToInt(n.bin)
		}
	case vpi.RealVal:
		v.Real = n.real
	case vpi.StringVal:
		v.Str = n.str
	default:
		return vpi.Value{}, fmt.Errorf("vpitest: unsupported get format %d", format)
	}
	return v, nil
}

func (s *Sim) PutValue(h vpi.Handle, v vpi.Value, t *vpi.Time, flags int32) error {
	n, ok := s.nodes[h]
	if !ok {
		return fmt.Errorf("vpitest: write to unknown handle %d", h)
	}

	switch flags {
	case vpi.NoDelay:
		if n.forced {
			n.saved = v.Str
			return nil
		}
		return s.applyValue(h, n, v)

	case vpi.InertialDelay:
		if s.quirks.Has(vpi.QuirkNoInertialStrings) && n.typ == vpi.TypeStringVar {
			return fmt.Errorf("vpitest: inertial write to string variable rejected")
		}
		s.schedule(s.time, func() {
			if n.forced {
				return
			}
			_ = s.applyValue(h, n, v)
		})
		return nil

	case vpi.ForceFlag:
		n.forced = true
		return s.applyValue(h, n, v)

	case vpi.ReleaseFlag:
		n.forced = false
		s.lastRelease = v.Str
		if err := s.applyValue(h, n, v); err != nil {
			return err
		}
		// The continuous driver reasserts once the force is lifted.
		if n.saved != "" {
			saved := n.saved
			n.saved = ""
			return s.applyValue(h, n, vpi.Value{Format: vpi.BinStrVal, Str: saved})
		}
		return nil
	}
	return fmt.Errorf("vpitest: unsupported put flags %d", flags)
}

func (s *Sim) FreeHandle(h vpi.Handle) bool {
	n, ok := s.nodes[h]
	if !ok {
		return false
	}
	// Only transient handles go away; design objects are permanent.
	if n.iter != nil || (n.typ == vpi.TypeConstant && n.fullName == "") {
		delete(s.nodes, h)
	}
	return true
}

func (s *Sim) RegisterCb(data *vpi.CbData) vpi.Handle {
	ch := s.alloc(&node{})
	reg := &cbReg{data: data}

	switch data.Reason {
	case vpi.CbAfterDelay:
		var delay uint64
		if data.Time != nil {
			delay = data.Time.Uint64()
		}
		s.schedule(s.time+delay, func() { s.fireOnce(ch) })
	case vpi.CbValueChange:
		if data.Obj == 0 {
			delete(s.nodes, ch)
			return 0
		}
		reg.obj = data.Obj
		s.watchers[data.Obj] = append(s.watchers[data.Obj], ch)
	case vpi.CbStartOfSimulation:
		s.startup = append(s.startup, ch)
	case vpi.CbNextSimTime:
		s.nextTime = append(s.nextTime, ch)
	case vpi.CbReadWriteSynch:
		s.readWr = append(s.readWr, ch)
	case vpi.CbReadOnlySynch:
		s.readOnly = append(s.readOnly, ch)
	default:
		delete(s.nodes, ch)
		return 0
	}

	s.cbs[ch] = reg
	return ch
}

func (s *Sim) RemoveCb(ch vpi.Handle) bool {
	reg, ok := s.cbs[ch]
	if !ok {
		return false
	}
	delete(s.cbs, ch)
	if reg.obj != 0 {
		list := s.watchers[reg.obj]
		for i, w := range list {
			if w == ch {
				s.watchers[reg.obj] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
	s.removeFromPhase(&s.startup, ch)
	s.removeFromPhase(&s.nextTime, ch)
	s.removeFromPhase(&s.readWr, ch)
	s.removeFromPhase(&s.readOnly, ch)
	return true
}

func (s *Sim) removeFromPhase(list *[]vpi.Handle, ch vpi.Handle) {
	for i, h := range *list {
		if h == ch {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return
		}
	}
}

func (s *Sim) GetTime(_ vpi.Handle, t *vpi.Time) {
	t.SetUint64(s.time)
}

func (s *Sim) VlogInfo() (vpi.VlogInfo, bool) {
	return vpi.VlogInfo{Argv: s.argv, Product: s.product, Version: s.version}, true
}

func (s *Sim) Control(op int32) {
	if op == vpi.OpFinish || op == vpi.OpStop {
		s.Finished = true
	}
}

func (s *Sim) Quirks() vpi.Quirk { return s.quirks }
