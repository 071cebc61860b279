/*
 * MIT License
 * Copyright (c) 2026 Crrow
 */

// Package pyrt embeds a CPython interpreter through its C API, resolved at
// runtime with purego. Nothing links against libpython: the library named by
// PYGPI_PYTHON_LIB (or found under a default soname) is dlopened with global
// symbol visibility so that compiled extension modules resolve against it.
//
// The package stays below any domain knowledge: it moves values, references
// and callables across the boundary. The simulator-facing extension module
// lives in pkg/simmodule.
package pyrt

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unsafe"

	"github.com/ebitengine/purego"
)

// Object is a PyObject reference. Zero means NULL. Whether a reference is
// owned or borrowed follows CPython conventions per call; the helpers on
// Runtime document the transfers that matter.
type Object uintptr

// EnvPythonLib names the shared library to embed. Without it a list of
// conventional sonames is probed.
const EnvPythonLib = "PYGPI_PYTHON_LIB"

// ErrInit marks failures to bring the interpreter up; everything past
// loading the library wraps it.
var ErrInit = errors.New("interpreter initialization failed")

var defaultSonames = []string{
	"libpython3.13.so.1.0", "libpython3.12.so.1.0", "libpython3.11.so.1.0",
	"libpython3.10.so.1.0", "libpython3.9.so.1.0", "libpython3.8.so.1.0",
	"libpython3.so",
}

// Runtime is one embedded interpreter. CPython allows a single interpreter
// per process in this configuration, so treat it as process-wide.
type Runtime struct {
	lib uintptr

	decodeLocale    func(s string, size uintptr) uintptr
	memRawFree      func(p uintptr)
	setProgramName  func(w uintptr)
	initializeEx    func(installSigs int32)
	isInitialized   func() int32
	finalizeEx      func() int32
	getVersion      func() string

	evalSaveThread    func() uintptr
	evalRestoreThread func(ts uintptr)
	gilEnsure         func() int32
	gilRelease        func(state int32)

	sysSetArgvEx func(argc int32, argv uintptr, updatepath int32)
	sysGetObject func(name string) Object

	importAppendInittab func(name uintptr, initfn uintptr) int32
	importModule        func(name string) Object

	getAttrString func(o Object, name string) Object
	callObject    func(o, args Object) Object
	call          func(o, args, kwargs Object) Object
	callableCheck func(o Object) int32

	tupleNew     func(n int) Object
	tupleSetItem func(t Object, i int, o Object) int32
	tupleGetItem func(t Object, i int) Object
	tupleSize    func(t Object) int

	listNew    func(n int) Object
	listInsert func(l Object, i int, o Object) int32
	listAppend func(l Object, o Object) int32

	unicodeFromString  func(s string) Object
	unicodeDecodeLoc   func(s string, errors string) Object
	unicodeAsUTF8      func(o Object) string
	longFromLong       func(v int64) Object
	longAsLong         func(o Object) int64
	longFromULongLong  func(v uint64) Object
	floatFromDouble    func(v float64) Object
	floatAsDouble      func(o Object) float64
	boolFromLong       func(v int64) Object

	incRef func(o Object)
	decRef func(o Object)

	errOccurred  func() Object
	errPrint     func()
	errClear     func()
	errSetString func(typ Object, msg string)

	moduleCreate2       func(def uintptr, apiver int32) Object
	moduleAddIntConst   func(m Object, name string, v int64) int32
	moduleAddObject     func(m Object, name string, o Object) int32
	typeFromSpec        func(spec uintptr) Object
	typeGenericNewAddr  uintptr
	runSimpleString     func(s string) int32

	excRuntimeError  Object
	excTypeError     Object
	excIndexError    Object
	excValueError    Object
	excStopIteration Object

	none Object

	mainThreadState uintptr
	programName     uintptr
}

// Load dlopens the interpreter library and resolves the API surface. The
// interpreter is not initialized yet.
func Load() (*Runtime, error) {
	names := defaultSonames
	if lib := os.Getenv(EnvPythonLib); lib != "" {
		names = []string{lib}
	}

	var lib uintptr
	var firstErr error
	for _, name := range names {
		h, err := purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil && h != 0 {
			lib = h
			break
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if lib == 0 {
		return nil, fmt.Errorf("unable to load an embeddable interpreter (tried %s): %w",
			strings.Join(names, ", "), firstErr)
	}

	rt := &Runtime{lib: lib}
	if err := rt.bind(); err != nil {
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) bind() error {
	var err error
	bind := func(fptr any, name string) {
		if err != nil {
			return
		}
		sym, derr := purego.Dlsym(rt.lib, name)
		if derr != nil || sym == 0 {
			err = fmt.Errorf("resolve %s: %w", name, derr)
			return
		}
		purego.RegisterFunc(fptr, sym)
	}

	bind(&rt.decodeLocale, "Py_DecodeLocale")
	bind(&rt.memRawFree, "PyMem_RawFree")
	bind(&rt.setProgramName, "Py_SetProgramName")
	bind(&rt.initializeEx, "Py_InitializeEx")
	bind(&rt.isInitialized, "Py_IsInitialized")
	bind(&rt.finalizeEx, "Py_FinalizeEx")
	bind(&rt.getVersion, "Py_GetVersion")
	bind(&rt.evalSaveThread, "PyEval_SaveThread")
	bind(&rt.evalRestoreThread, "PyEval_RestoreThread")
	bind(&rt.gilEnsure, "PyGILState_Ensure")
	bind(&rt.gilRelease, "PyGILState_Release")
	bind(&rt.sysSetArgvEx, "PySys_SetArgvEx")
	bind(&rt.sysGetObject, "PySys_GetObject")
	bind(&rt.importModule, "PyImport_ImportModule")
	bind(&rt.getAttrString, "PyObject_GetAttrString")
	bind(&rt.callObject, "PyObject_CallObject")
	bind(&rt.call, "PyObject_Call")
	bind(&rt.callableCheck, "PyCallable_Check")
	bind(&rt.tupleNew, "PyTuple_New")
	bind(&rt.tupleSetItem, "PyTuple_SetItem")
	bind(&rt.tupleGetItem, "PyTuple_GetItem")
	bind(&rt.tupleSize, "PyTuple_Size")
	bind(&rt.listNew, "PyList_New")
	bind(&rt.listInsert, "PyList_Insert")
	bind(&rt.listAppend, "PyList_Append")
	bind(&rt.unicodeFromString, "PyUnicode_FromString")
	bind(&rt.unicodeDecodeLoc, "PyUnicode_DecodeLocale")
	bind(&rt.unicodeAsUTF8, "PyUnicode_AsUTF8")
	bind(&rt.longFromLong, "PyLong_FromLong")
	bind(&rt.longAsLong, "PyLong_AsLong")
	bind(&rt.longFromULongLong, "PyLong_FromUnsignedLongLong")
	bind(&rt.floatFromDouble, "PyFloat_FromDouble")
	bind(&rt.floatAsDouble, "PyFloat_AsDouble")
	bind(&rt.boolFromLong, "PyBool_FromLong")
	bind(&rt.incRef, "Py_IncRef")
	bind(&rt.decRef, "Py_DecRef")
	bind(&rt.errOccurred, "PyErr_Occurred")
	bind(&rt.errPrint, "PyErr_Print")
	bind(&rt.errClear, "PyErr_Clear")
	bind(&rt.errSetString, "PyErr_SetString")
	bind(&rt.moduleCreate2, "PyModule_Create2")
	bind(&rt.moduleAddIntConst, "PyModule_AddIntConstant")
	bind(&rt.moduleAddObject, "PyModule_AddObject")
	bind(&rt.typeFromSpec, "PyType_FromSpec")
	bind(&rt.runSimpleString, "PyRun_SimpleString")
	if err != nil {
		return err
	}

	// PyImport_AppendInittab takes a C function pointer, so it keeps its
	// raw uintptr form. Same for the generic tp_new used in type specs.
	sym, derr := purego.Dlsym(rt.lib, "PyImport_AppendInittab")
	if derr != nil || sym == 0 {
		return fmt.Errorf("resolve PyImport_AppendInittab: %w", derr)
	}
	purego.RegisterFunc(&rt.importAppendInittab, sym)
	if rt.typeGenericNewAddr, derr = purego.Dlsym(rt.lib, "PyType_GenericNew"); derr != nil {
		return fmt.Errorf("resolve PyType_GenericNew: %w", derr)
	}
	return nil
}

// Version reports the interpreter's version number, e.g. "3.11.4".
func (rt *Runtime) Version() string {
	v := rt.getVersion()
	if i := strings.IndexByte(v, ' '); i > 0 {
		v = v[:i]
	}
	return v
}

// Initialize boots the interpreter with the given program name and argv,
// then releases the global lock so the simulator thread can re-enter later
// through GIL-state calls. Signal handlers stay with the simulator.
func (rt *Runtime) Initialize(program string, argv []string) error {
	if rt.isInitialized() != 0 {
		return fmt.Errorf("%w: already initialized", ErrInit)
	}

	rt.programName = rt.decodeLocale(program, 0)
	if rt.programName == 0 {
		return fmt.Errorf("%w: unable to decode program name %q", ErrInit, program)
	}
	rt.setProgramName(rt.programName)

	rt.initializeEx(0)
	if rt.isInitialized() == 0 {
		return fmt.Errorf("%w: Py_InitializeEx did not come up", ErrInit)
	}

	rt.loadExceptionTypes()

	if len(argv) > 0 {
		words := make([]uintptr, len(argv))
		for i, a := range argv {
			words[i] = rt.decodeLocale(a, 0)
			if words[i] == 0 {
				return fmt.Errorf("%w: unable to decode argument %q", ErrInit, a)
			}
		}
		keep(words)
		rt.sysSetArgvEx(int32(len(words)), uintptr(unsafe.Pointer(&words[0])), 0)
	}

	rt.mainThreadState = rt.evalSaveThread()
	return nil
}

// Finalize re-acquires the lock and shuts the interpreter down.
func (rt *Runtime) Finalize() {
	if rt.isInitialized() == 0 {
		return
	}
	rt.evalRestoreThread(rt.mainThreadState)
	rt.finalizeEx()
	if rt.programName != 0 {
		rt.memRawFree(rt.programName)
		rt.programName = 0
	}
}

// Exception type singletons live in libpython as global PyObject* variables;
// they are valid only after initialization.
func (rt *Runtime) loadExceptionTypes() {
	deref := func(name string) Object {
		sym, err := purego.Dlsym(rt.lib, name)
		if err != nil || sym == 0 {
			return 0
		}
		return *(*Object)(unsafe.Pointer(sym))
	}
	rt.excRuntimeError = deref("PyExc_RuntimeError")
	rt.excTypeError = deref("PyExc_TypeError")
	rt.excIndexError = deref("PyExc_IndexError")
	rt.excValueError = deref("PyExc_ValueError")
	rt.excStopIteration = deref("PyExc_StopIteration")

	// _Py_NoneStruct is the None object itself, not a pointer to it.
	if sym, err := purego.Dlsym(rt.lib, "_Py_NoneStruct"); err == nil {
		rt.none = Object(sym)
	}
}

// None returns a new reference to the None singleton.
func (rt *Runtime) None() Object {
	rt.IncRef(rt.none)
	return rt.none
}

// IsNone reports whether o is the None singleton.
func (rt *Runtime) IsNone(o Object) bool { return o != 0 && o == rt.none }

// Executable reports sys.executable, or "" when the interpreter left it
// unset. Must hold the lock.
func (rt *Runtime) Executable() string {
	o := rt.sysGetObject("executable") // borrowed
	if o == 0 || rt.IsNone(o) {
		return ""
	}
	return rt.unicodeAsUTF8(o)
}

// GILEnsure acquires the global lock from any thread state; the returned
// token must go back to GILRelease.
func (rt *Runtime) GILEnsure() int32 { return rt.gilEnsure() }

// GILRelease hands the lock back.
func (rt *Runtime) GILRelease(state int32) { rt.gilRelease(state) }

// PrependCwdToPath puts the process working directory in front of the
// interpreter's module search path. Must hold the lock.
func (rt *Runtime) PrependCwdToPath() error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	path := rt.sysGetObject("path") // borrowed
	if path == 0 {
		return fmt.Errorf("interpreter has no sys.path")
	}
	entry := rt.unicodeFromString(cwd)
	if entry == 0 {
		return fmt.Errorf("unable to build path entry for %q", cwd)
	}
	defer rt.DecRef(entry)
	if rt.listInsert(path, 0, entry) != 0 {
		return fmt.Errorf("unable to prepend %q to sys.path", cwd)
	}
	return nil
}

// keepAlive pins Go allocations whose addresses were handed to C and whose
// lifetime must last until process end.
var keepAlive []any

func keep(v any) { keepAlive = append(keepAlive, v) }
