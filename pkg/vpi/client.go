/*
 * MIT License
 * Copyright (c) 2026 Crrow
 */

package vpi

// CbData describes one callback registration, mirroring s_cb_data.
//
// Rtn is invoked on the simulator thread when the callback fires; it receives
// the same CbData that was registered. UserData travels with the registration
// and is how the dispatch layer recovers its own record.
type CbData struct {
	Reason   int32
	Rtn      func(cb *CbData) int32
	Obj      Handle
	Time     *Time
	ValueFmt int32 // 0: no value requested with the callback
	Index    int32
	UserData uintptr
}

// VlogInfo carries the simulator identification and command line
// (s_vpi_vlog_info).
type VlogInfo struct {
	Argv    []string
	Product string
	Version string
}

// Client is the surface of the procedural interface the bridge uses.
//
// All methods follow VPI conventions: lookups return the zero Handle on a
// miss, Scan returns the zero Handle at the end of an iteration and frees the
// iterator, and a freed or invalid handle must never be passed back in.
// Every call happens on the simulator thread.
type Client interface {
	// HandleByName resolves an absolute or scope-relative hierarchical path.
	HandleByName(name string, scope Handle) Handle

	// HandleByIndex resolves one element of an indexable object.
	HandleByIndex(parent Handle, index int32) Handle

	// HandleByType follows a one-to-one relationship (e.g. RelLeftRange).
	HandleByType(rel int32, ref Handle) Handle

	// Iterate opens a one-to-many relationship; zero Handle when the
	// relationship is unsupported or empty.
	Iterate(rel int32, ref Handle) Handle

	// Scan advances an iterator. The iterator is exhausted and released
	// when the zero Handle comes back.
	Scan(iter Handle) Handle

	// Get reads an integer property of an object. ref may be the zero
	// Handle for global properties such as PropTimePrecision.
	Get(prop int32, ref Handle) int32

	// GetStr reads a string property; empty on failure.
	GetStr(prop int32, ref Handle) string

	// GetValue reads an object value in the requested format.
	GetValue(ref Handle, format int32) (Value, error)

	// PutValue writes an object value. t may be nil only for NoDelay.
	PutValue(ref Handle, v Value, t *Time, flags int32) error

	// FreeHandle releases a handle obtained from any lookup.
	FreeHandle(ref Handle) bool

	// RegisterCb arms a callback; zero Handle if the simulator refused.
	RegisterCb(cb *CbData) Handle

	// RemoveCb cancels a primed callback registration.
	RemoveCb(ref Handle) bool

	// GetTime reads the current simulation time into t (t.Type selects
	// the representation).
	GetTime(ref Handle, t *Time)

	// VlogInfo reports the product, version and command line; false when
	// the simulator cannot provide it.
	VlogInfo() (VlogInfo, bool)

	// Control issues a simulation control operation such as OpFinish.
	Control(op int32)

	// Quirks reports the behavioral workarounds this simulator needs.
	Quirks() Quirk
}
