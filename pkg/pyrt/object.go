/*
 * MIT License
 * Copyright (c) 2026 Crrow
 */

package pyrt

import "fmt"

// IncRef takes an additional reference.
func (rt *Runtime) IncRef(o Object) {
	if o != 0 {
		rt.incRef(o)
	}
}

// DecRef drops a reference. Safe on the zero Object.
func (rt *Runtime) DecRef(o Object) {
	if o != 0 {
		rt.decRef(o)
	}
}

// ErrOccurred reports whether an exception is pending.
func (rt *Runtime) ErrOccurred() bool { return rt.errOccurred() != 0 }

// ErrPrint prints and clears the pending exception.
func (rt *Runtime) ErrPrint() { rt.errPrint() }

// ErrClear drops the pending exception.
func (rt *Runtime) ErrClear() { rt.errClear() }

// Raise sets a RuntimeError from a Go error and returns the zero Object for
// use as a callable's result.
func (rt *Runtime) Raise(err error) Object {
	rt.errSetString(rt.excRuntimeError, err.Error())
	return 0
}

// RaiseType sets a TypeError.
func (rt *Runtime) RaiseType(msg string) Object {
	rt.errSetString(rt.excTypeError, msg)
	return 0
}

// RaiseIndex sets an IndexError.
func (rt *Runtime) RaiseIndex(msg string) Object {
	rt.errSetString(rt.excIndexError, msg)
	return 0
}

// RaiseValue sets a ValueError.
func (rt *Runtime) RaiseValue(msg string) Object {
	rt.errSetString(rt.excValueError, msg)
	return 0
}

// RaiseStopIteration signals the end of an iteration protocol.
func (rt *Runtime) RaiseStopIteration() Object {
	rt.errSetString(rt.excStopIteration, "end of iteration")
	return 0
}

// Str builds a new str object.
func (rt *Runtime) Str(s string) Object { return rt.unicodeFromString(s) }

// StrLocale decodes bytes with the locale codec and surrogateescape, the
// treatment the interpreter itself gives os.argv.
func (rt *Runtime) StrLocale(s string) Object {
	return rt.unicodeDecodeLoc(s, "surrogateescape")
}

// AsString reads a str object as UTF-8. The returned Go string is copied.
func (rt *Runtime) AsString(o Object) string { return rt.unicodeAsUTF8(o) }

// Int builds a new int object.
func (rt *Runtime) Int(v int64) Object { return rt.longFromLong(v) }

// Uint64 builds a new int object from an unsigned count.
func (rt *Runtime) Uint64(v uint64) Object { return rt.longFromULongLong(v) }

// AsInt reads an int object; the error reflects a pending OverflowError or
// TypeError.
func (rt *Runtime) AsInt(o Object) (int64, error) {
	v := rt.longAsLong(o)
	if v == -1 && rt.ErrOccurred() {
		return 0, fmt.Errorf("object is not an integer")
	}
	return v, nil
}

// Float builds a new float object.
func (rt *Runtime) Float(v float64) Object { return rt.floatFromDouble(v) }

// AsFloat reads a float object.
func (rt *Runtime) AsFloat(o Object) (float64, error) {
	v := rt.floatAsDouble(o)
	if v == -1.0 && rt.ErrOccurred() {
		return 0, fmt.Errorf("object is not a float")
	}
	return v, nil
}

// Bool builds a bool object.
func (rt *Runtime) Bool(v bool) Object {
	if v {
		return rt.boolFromLong(1)
	}
	return rt.boolFromLong(0)
}

// NewTuple builds a tuple of length n with unset slots.
func (rt *Runtime) NewTuple(n int) Object { return rt.tupleNew(n) }

// TupleSet stores o at index i, stealing the reference.
func (rt *Runtime) TupleSet(t Object, i int, o Object) error {
	if rt.tupleSetItem(t, i, o) != 0 {
		return fmt.Errorf("tuple store at %d failed", i)
	}
	return nil
}

// TupleGet borrows the item at index i.
func (rt *Runtime) TupleGet(t Object, i int) Object { return rt.tupleGetItem(t, i) }

// TupleLen reports the tuple length.
func (rt *Runtime) TupleLen(t Object) int { return rt.tupleSize(t) }

// TupleSlice builds a new tuple holding items [from:) of t, taking new
// references on each item.
func (rt *Runtime) TupleSlice(t Object, from int) (Object, error) {
	n := rt.TupleLen(t)
	if from > n {
		from = n
	}
	out := rt.NewTuple(n - from)
	if out == 0 {
		return 0, fmt.Errorf("unable to allocate a %d-tuple", n-from)
	}
	for i := from; i < n; i++ {
		item := rt.TupleGet(t, i)
		rt.IncRef(item)
		if err := rt.TupleSet(out, i-from, item); err != nil {
			rt.DecRef(out)
			return 0, err
		}
	}
	return out, nil
}

// NewList builds an empty list.
func (rt *Runtime) NewList() Object { return rt.listNew(0) }

// ListAppend appends o to l without stealing the reference.
func (rt *Runtime) ListAppend(l, o Object) error {
	if rt.listAppend(l, o) != 0 {
		return fmt.Errorf("list append failed")
	}
	return nil
}

// Import imports a module by dotted name, returning a new reference.
func (rt *Runtime) Import(name string) (Object, error) {
	m := rt.importModule(name)
	if m == 0 {
		return 0, fmt.Errorf("unable to import module %q", name)
	}
	return m, nil
}

// Attr fetches an attribute, returning a new reference.
func (rt *Runtime) Attr(o Object, name string) (Object, error) {
	a := rt.getAttrString(o, name)
	if a == 0 {
		return 0, fmt.Errorf("object has no attribute %q", name)
	}
	return a, nil
}

// Callable reports whether o can be called.
func (rt *Runtime) Callable(o Object) bool { return rt.callableCheck(o) != 0 }

// Call invokes fn with a positional tuple and optional keyword mapping,
// returning a new reference; the zero Object means an exception is pending.
func (rt *Runtime) Call(fn, args, kwargs Object) Object {
	if kwargs != 0 {
		return rt.call(fn, args, kwargs)
	}
	return rt.callObject(fn, args)
}

// RunSimple executes a statement string in __main__.
func (rt *Runtime) RunSimple(code string) error {
	if rt.runSimpleString(code) != 0 {
		return fmt.Errorf("statement execution failed")
	}
	return nil
}
