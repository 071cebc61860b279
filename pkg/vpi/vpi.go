/*
 * MIT License
 * Copyright (c) 2026 Crrow
 */

// Package vpi exposes the subset of the IEEE 1364/1800 Verilog Procedural
// Interface that the bridge consumes.
//
// The package has two halves: the constant/type surface mirroring vpi_user.h,
// and the Client interface behind which the rest of the bridge talks to a
// simulator. SysClient binds Client to the vpi_* symbols of the host process;
// the vpitest package provides an in-memory Client for tests.
package vpi

// Handle is an opaque reference to a simulator object (vpiHandle).
// The zero value means "no object".
type Handle uintptr

// Object type codes (vpi_user.h).
const (
	TypeConstant   int32 = 7
	TypeIntegerVar int32 = 25
	TypeIterator   int32 = 27
	TypeMemory     int32 = 29
	TypeMemoryWord int32 = 30
	TypeModule     int32 = 32
	TypeNet        int32 = 36
	TypeParameter  int32 = 41
	TypePort       int32 = 44
	TypeRealVar    int32 = 47
	TypeReg        int32 = 48

	TypeNetArray      int32 = 114
	TypeRange         int32 = 115
	TypeRegArray      int32 = 116
	TypeGenScopeArray int32 = 133
	TypeGenScope      int32 = 134

	// sv_vpi_user.h
	TypePackage   int32 = 600
	TypeStringVar int32 = 616

	// Icarus has no vpiUnknown in its headers; simulators that do use 3.
	TypeUnknown int32 = 3
)

// One-to-many relationship codes used with Iterate (vpi_user.h).
const (
	RelDriver        int32 = 91
	RelInternalScope int32 = 92
	RelLoad          int32 = 93
	RelVariables     int32 = 100
)

// One-to-one relationship codes used with HandleByType.
const (
	RelLeftRange  int32 = 79
	RelRightRange int32 = 83
	RelScope      int32 = 84
	RelParent     int32 = 81
)

// Property codes for Get/GetStr.
const (
	PropType          int32 = 1
	PropName          int32 = 2
	PropFullName      int32 = 3
	PropSize          int32 = 4
	PropTimePrecision int32 = 12
	PropVector        int32 = 18
	PropConstType     int32 = 40
)

// Constant subtype codes (vpiConstType values).
const (
	ConstDec    int32 = 1
	ConstReal   int32 = 2
	ConstBinary int32 = 3
	ConstOct    int32 = 4
	ConstHex    int32 = 5
	ConstString int32 = 6
	// Xcelium reports undefined parameters as vpiUndefined.
	ConstUndefined int32 = -1
)

// Value format codes.
const (
	BinStrVal   int32 = 1
	ScalarVal   int32 = 5
	IntVal      int32 = 6
	RealVal     int32 = 7
	StringVal   int32 = 8
	SuppressVal int32 = 13
)

// Time type codes.
const (
	ScaledRealTime int32 = 1
	SimTime        int32 = 2
	SuppressTime   int32 = 3
)

// Flags for PutValue.
const (
	NoDelay       int32 = 1
	InertialDelay int32 = 2
	ForceFlag     int32 = 5
	ReleaseFlag   int32 = 6
)

// Callback reasons.
const (
	CbValueChange        int32 = 1
	CbReadWriteSynch     int32 = 6
	CbReadOnlySynch      int32 = 7
	CbNextSimTime        int32 = 8
	CbAfterDelay         int32 = 9
	CbStartOfSimulation  int32 = 11
	CbEndOfSimulation    int32 = 12
)

// Simulator control operations.
const (
	OpStop   int32 = 66
	OpFinish int32 = 67
)

// Time is the Go view of s_vpi_time.
type Time struct {
	Type int32
	High uint32
	Low  uint32
	Real float64
}

// Uint64 folds the two 32-bit halves of a SimTime into one count.
func (t *Time) Uint64() uint64 {
	return uint64(t.High)<<32 | uint64(t.Low)
}

// SetUint64 splits a 64-bit count into the two halves.
func (t *Time) SetUint64(v uint64) {
	t.High = uint32(v >> 32)
	t.Low = uint32(v)
}

// Value is the Go view of s_vpi_value. Format selects which field is live.
type Value struct {
	Format int32
	Int    int32
	Real   float64
	Str    string
}

// Quirk is a bitmask of simulator behaviors the bridge must work around.
// The reference implementation selected these at compile time per simulator;
// a Client reports them at runtime instead.
type Quirk uint32

const (
	// QuirkNoInertialStrings: the simulator rejects vpiInertialDelay on
	// string variables (Questa, Xcelium). Deposit degrades to NoDelay.
	QuirkNoInertialStrings Quirk = 1 << iota

	// QuirkValidateGenScope: a GenScope handle resolved by name may be
	// invalid and must be confirmed against the parent's internal scopes
	// before use (Xcelium segfaults otherwise).
	QuirkValidateGenScope

	// QuirkNoGenScopeArray: the simulator cannot look up an unindexed
	// generate block directly (Icarus, Verilator, Questa); the fallback
	// scope scan applies.
	QuirkNoGenScopeArray
)

// Has reports whether all bits of q are set.
func (q Quirk) Has(want Quirk) bool { return q&want == want }
