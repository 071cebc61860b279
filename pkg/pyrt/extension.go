/*
 * MIT License
 * Copyright (c) 2026 Crrow
 */

// Extension-module construction without a compiled stub. The interpreter
// wants C function pointers for module init, methods and type slots; each one
// is a libffi closure whose user-data word selects the Go function out of a
// registry, the same dispatch scheme the simulator-callback trampoline uses.

package pyrt

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/jupiterrider/ffi"
)

// MethodFunc is a Python-callable implemented in Go: positional args arrive
// as a borrowed tuple, the result is a new reference, and the zero Object
// signals a raised exception.
type MethodFunc func(self, args Object) Object

// UnaryFunc is a single-argument slot function such as tp_repr.
type UnaryFunc func(self Object) Object

// InitFunc runs inside the module's import and may add more content to the
// freshly created module object.
type InitFunc func(m Object) error

const (
	methVarargs = 0x0001

	pythonAPIVersion = 1013

	tpflagsDefault = 1 << 18 // Py_TPFLAGS_DEFAULT

	slotTpDoc     = 56
	slotTpMethods = 64
	slotTpNew     = 65
	slotTpRepr    = 66
)

// methodDef mirrors PyMethodDef.
type methodDef struct {
	name  uintptr
	meth  uintptr
	flags int32
	_     int32
	doc   uintptr
}

// moduleDef mirrors PyModuleDef with its embedded PyModuleDef_Base.
type moduleDef struct {
	obRefcnt uintptr
	obType   uintptr
	mInit    uintptr
	mIndex   uintptr
	mCopy    uintptr
	name     uintptr
	doc      uintptr
	size     int64
	methods  uintptr
	slots    uintptr
	traverse uintptr
	clear    uintptr
	free     uintptr
}

// typeSpec and typeSlot mirror PyType_Spec / PyType_Slot.
type typeSpec struct {
	name      uintptr
	basicsize int32
	itemsize  int32
	flags     uint32
	_         uint32
	slots     uintptr
}

type typeSlot struct {
	slot  int32
	_     int32
	pfunc uintptr
}

// Trampoline state shared by every closure: one CIF per C signature, one Go
// callback each, and a token registry selecting the target function.
var (
	closureOnce sync.Once
	binaryCif   ffi.Cif // PyObject *(*)(PyObject *, PyObject *)
	unaryCif    ffi.Cif // PyObject *(*)(PyObject *)
	nullaryCif  ffi.Cif // PyObject *(*)(void)

	fnRegistry sync.Map // uintptr -> any
	fnCounter  uint64
)

func prepareCifs() {
	closureOnce.Do(func() {
		if status := ffi.PrepCif(&binaryCif, ffi.DefaultAbi, 2,
			&ffi.TypePointer, &ffi.TypePointer, &ffi.TypePointer); status != ffi.OK {
			panic("pyrt: failed to prepare method CIF")
		}
		if status := ffi.PrepCif(&unaryCif, ffi.DefaultAbi, 1,
			&ffi.TypePointer, &ffi.TypePointer); status != ffi.OK {
			panic("pyrt: failed to prepare slot CIF")
		}
		if status := ffi.PrepCif(&nullaryCif, ffi.DefaultAbi, 0,
			&ffi.TypePointer); status != ffi.OK {
			panic("pyrt: failed to prepare init CIF")
		}
	})
}

func registerFn(fn any) uintptr {
	token := uintptr(atomic.AddUint64(&fnCounter, 1))
	fnRegistry.Store(token, fn)
	return token
}

func closureFor(cif *ffi.Cif, trampoline func(cif *ffi.Cif, ret unsafe.Pointer, args *unsafe.Pointer, userData unsafe.Pointer) uintptr, token uintptr) uintptr {
	var code unsafe.Pointer
	cl := ffi.ClosureAlloc(unsafe.Sizeof(ffi.Closure{}), &code)
	cb := ffi.NewCallback(trampoline)
	if status := ffi.PrepClosureLoc(cl, cif, cb, unsafe.Pointer(token), code); status != ffi.OK {
		panic("pyrt: failed to prepare closure")
	}
	keep(cl)
	return uintptr(code)
}

func binaryTrampoline(_ *ffi.Cif, ret unsafe.Pointer, args *unsafe.Pointer, userData unsafe.Pointer) uintptr {
	fn, ok := fnRegistry.Load(uintptr(userData))
	var out Object
	if ok {
		a := unsafe.Slice(args, 2)
		self := Object(*(*uintptr)(a[0]))
		tuple := Object(*(*uintptr)(a[1]))
		out = fn.(MethodFunc)(self, tuple)
	}
	*(*uintptr)(ret) = uintptr(out)
	return 0
}

func unaryTrampoline(_ *ffi.Cif, ret unsafe.Pointer, args *unsafe.Pointer, userData unsafe.Pointer) uintptr {
	fn, ok := fnRegistry.Load(uintptr(userData))
	var out Object
	if ok {
		a := unsafe.Slice(args, 1)
		self := Object(*(*uintptr)(a[0]))
		out = fn.(UnaryFunc)(self)
	}
	*(*uintptr)(ret) = uintptr(out)
	return 0
}

func nullaryTrampoline(_ *ffi.Cif, ret unsafe.Pointer, _ *unsafe.Pointer, userData unsafe.Pointer) uintptr {
	fn, ok := fnRegistry.Load(uintptr(userData))
	var out Object
	if ok {
		out = fn.(func() Object)()
	}
	*(*uintptr)(ret) = uintptr(out)
	return 0
}

func cstr(s string) uintptr {
	b := append([]byte(s), 0)
	keep(b)
	return uintptr(unsafe.Pointer(&b[0]))
}

// Type builds one extension type holding a single opaque payload word after
// the object header. Instances hash and compare by identity, which is the
// interpreter default.
type Type struct {
	rt      *Runtime
	name    string
	methods []methodDef
	reprFn  UnaryFunc
	obj     Object
}

// NewType starts a type under the given fully qualified name, e.g.
// "simulator.gpi_sim_hdl".
func (rt *Runtime) NewType(name string) *Type {
	prepareCifs()
	return &Type{rt: rt, name: name}
}

// AddMethod attaches a method callable on instances.
func (t *Type) AddMethod(name string, fn MethodFunc) {
	t.methods = append(t.methods, methodDef{
		name:  cstr(name),
		meth:  closureFor(&binaryCif, binaryTrampoline, registerFn(fn)),
		flags: methVarargs,
	})
}

// SetRepr installs the tp_repr slot.
func (t *Type) SetRepr(fn UnaryFunc) { t.reprFn = fn }

const payloadOffset = 2 * unsafe.Sizeof(uintptr(0)) // past ob_refcnt, ob_type

func (t *Type) create() error {
	methods := append(t.methods, methodDef{}) // sentinel
	keep(methods)

	slots := []typeSlot{
		{slot: slotTpNew, pfunc: t.rt.typeGenericNewAddr},
		{slot: slotTpMethods, pfunc: uintptr(unsafe.Pointer(&methods[0]))},
	}
	if t.reprFn != nil {
		slots = append(slots, typeSlot{
			slot:  slotTpRepr,
			pfunc: closureFor(&unaryCif, unaryTrampoline, registerFn(t.reprFn)),
		})
	}
	slots = append(slots, typeSlot{}) // sentinel
	keep(slots)

	spec := &typeSpec{
		name:      cstr(t.name),
		basicsize: int32(payloadOffset) + 8,
		flags:     tpflagsDefault,
		slots:     uintptr(unsafe.Pointer(&slots[0])),
	}
	keep(spec)

	t.obj = t.rt.typeFromSpec(uintptr(unsafe.Pointer(spec)))
	if t.obj == 0 {
		return fmt.Errorf("unable to create type %s", t.name)
	}
	return nil
}

// New allocates an instance with a zero payload, returning a new reference.
func (t *Type) New() (Object, error) {
	if t.obj == 0 {
		return 0, fmt.Errorf("type %s is not created yet", t.name)
	}
	empty := t.rt.NewTuple(0)
	if empty == 0 {
		return 0, fmt.Errorf("unable to allocate an empty tuple")
	}
	defer t.rt.DecRef(empty)
	inst := t.rt.Call(t.obj, empty, 0)
	if inst == 0 {
		return 0, fmt.Errorf("unable to instantiate %s", t.name)
	}
	return inst, nil
}

// Is reports whether o is an instance of exactly this type.
func (t *Type) Is(o Object) bool {
	if o == 0 || t.obj == 0 {
		return false
	}
	typ := *(*uintptr)(unsafe.Pointer(uintptr(o) + unsafe.Sizeof(uintptr(0))))
	return Object(typ) == t.obj
}

// SetWord stores the payload word of an instance.
func (t *Type) SetWord(o Object, v uintptr) {
	*(*uintptr)(unsafe.Pointer(uintptr(o) + payloadOffset)) = v
}

// Word reads the payload word of an instance.
func (t *Type) Word(o Object) uintptr {
	return *(*uintptr)(unsafe.Pointer(uintptr(o) + payloadOffset))
}

// Module accumulates methods, constants and types, then registers itself on
// the interpreter's built-in module table. Register must run before
// Initialize; the content is materialized when the runtime first imports the
// module.
type Module struct {
	rt      *Runtime
	name    string
	methods []methodDef
	ints    []intConst
	types   []*Type
	post    InitFunc
	obj     Object
}

type intConst struct {
	name  string
	value int64
}

// NewModule starts an extension module definition.
func (rt *Runtime) NewModule(name string) *Module {
	prepareCifs()
	return &Module{rt: rt, name: name}
}

// AddMethod attaches a module-level callable.
func (m *Module) AddMethod(name string, fn MethodFunc) {
	m.methods = append(m.methods, methodDef{
		name:  cstr(name),
		meth:  closureFor(&binaryCif, binaryTrampoline, registerFn(fn)),
		flags: methVarargs,
	})
}

// AddIntConstant exports an integer constant.
func (m *Module) AddIntConstant(name string, value int64) {
	m.ints = append(m.ints, intConst{name: name, value: value})
}

// AddType exports a type under its unqualified name.
func (m *Module) AddType(t *Type) {
	m.types = append(m.types, t)
}

// OnInit installs a hook that runs at import time after the standard content
// is in place.
func (m *Module) OnInit(fn InitFunc) { m.post = fn }

// Register appends the module to the interpreter's init table. Must happen
// before the interpreter is initialized.
func (m *Module) Register() error {
	def := &moduleDef{
		obRefcnt: 1,
		name:     cstr(m.name),
		size:     -1,
	}
	methods := append(m.methods, methodDef{}) // sentinel
	keep(methods)
	def.methods = uintptr(unsafe.Pointer(&methods[0]))
	keep(def)

	initfn := closureFor(&nullaryCif, nullaryTrampoline, registerFn(func() Object {
		return m.materialize(def)
	}))

	if m.rt.importAppendInittab(cstr(m.name), initfn) != 0 {
		return fmt.Errorf("unable to register module %q on the init table", m.name)
	}
	return nil
}

// materialize runs inside the import, with the lock held by the interpreter.
func (m *Module) materialize(def *moduleDef) Object {
	mod := m.rt.moduleCreate2(uintptr(unsafe.Pointer(def)), pythonAPIVersion)
	if mod == 0 {
		return 0
	}
	for _, c := range m.ints {
		if m.rt.moduleAddIntConst(mod, c.name, c.value) != 0 {
			m.rt.DecRef(mod)
			return 0
		}
	}
	for _, t := range m.types {
		if err := t.create(); err != nil {
			m.rt.DecRef(mod)
			return m.rt.Raise(err)
		}
		short := t.name
		if i := lastDot(short); i >= 0 {
			short = short[i+1:]
		}
		if m.rt.moduleAddObject(mod, short, t.obj) != 0 {
			m.rt.DecRef(t.obj)
			m.rt.DecRef(mod)
			return 0
		}
	}
	if m.post != nil {
		if err := m.post(mod); err != nil {
			m.rt.DecRef(mod)
			return m.rt.Raise(err)
		}
	}
	m.obj = mod
	return mod
}

func lastDot(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}
