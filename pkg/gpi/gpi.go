/*
 * MIT License
 * Copyright (c) 2026 Crrow
 */

// Package gpi is the mediation engine between the simulator's procedural
// interface and the embedded test runtime: typed handles over raw simulator
// references, hierarchical name and index resolution with per-simulator
// workarounds, signal value I/O, and the callback lifecycle with re-entrant
// delivery protection.
//
// Everything in this package runs on the simulator thread. The engine talks
// to the simulator exclusively through vpi.Client, so tests drive it with an
// in-memory client instead of a live simulator.
package gpi

import "errors"

// ObjType is the semantic type of a located simulator object. Values are
// stable across the runtime boundary and must not be renumbered.
type ObjType int32

const (
	Unknown         ObjType = 0
	Memory          ObjType = 1
	Module          ObjType = 2
	Array           ObjType = 6
	Enum            ObjType = 7
	Structure       ObjType = 8
	Real            ObjType = 9
	Integer         ObjType = 10
	String          ObjType = 11
	GenArray        ObjType = 12
	Package         ObjType = 13
	PackedStructure ObjType = 14
	Logic           ObjType = 15
	LogicArray      ObjType = 16
)

// String returns the canonical type name exposed to the runtime.
func (t ObjType) String() string {
	switch t {
	case Unknown:
		return "GPI_UNKNOWN"
	case Memory:
		return "GPI_MEMORY"
	case Module:
		return "GPI_MODULE"
	case Array:
		return "GPI_ARRAY"
	case Enum:
		return "GPI_ENUM"
	case Structure:
		return "GPI_STRUCTURE"
	case Real:
		return "GPI_REAL"
	case Integer:
		return "GPI_INTEGER"
	case String:
		return "GPI_STRING"
	case GenArray:
		return "GPI_GENARRAY"
	case Package:
		return "GPI_PACKAGE"
	case PackedStructure:
		return "GPI_PACKED_STRUCTURE"
	case Logic:
		return "GPI_LOGIC"
	case LogicArray:
		return "GPI_LOGIC_ARRAY"
	default:
		return "unknown"
	}
}

// SetAction selects the scheduling semantics of a signal write.
type SetAction int32

const (
	Deposit SetAction = 0
	Force   SetAction = 1
	Release SetAction = 2
	NoDelay SetAction = 3
)

// Edge is the transition a value-change observer waits for.
type Edge int32

const (
	Rising      Edge = 0
	Falling     Edge = 1
	ValueChange Edge = 2
)

// RangeDir is the direction of a range constraint.
type RangeDir int32

const (
	RangeDown  RangeDir = -1
	RangeNoDir RangeDir = 0
	RangeUp    RangeDir = 1
)

// IterSel selects what an iterator walks.
type IterSel int32

const (
	IterObjects       IterSel = 1
	IterDrivers       IterSel = 2
	IterLoads         IterSel = 3
	IterPackageScopes IterSel = 4
)

// Error taxonomy. Lookup misses and registration failures are expected
// outcomes; the caller decides what to do. Type and range errors surface to
// the runtime as exceptions.
var (
	ErrNotFound     = errors.New("object not found")
	ErrTypeMismatch = errors.New("operation not applicable to handle type")
	ErrOutOfRange   = errors.New("index outside declared range")
	ErrRegistration = errors.New("simulator rejected callback registration")
)
