/*
 * MIT License
 * Copyright (c) 2026 Crrow
 */

// This file implements the trampoline that lets the simulator call back into
// Go. vpi_register_cb wants a C function pointer with the signature
//
//	PLI_INT32 cb_rtn(p_cb_data)
//
// Go functions have no stable C-callable address, so a single libffi closure
// is generated once and shared by every registration. Dispatch to the right
// Go callback goes through the user_data slot of the fired s_cb_data: it
// carries a token that maps to the registered CbData in armRegistry.

package vpi

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/jupiterrider/ffi"
)

// armRecord keeps alive everything the simulator may still reference for one
// registration: the ABI structs and the Go-side CbData.
type armRecord struct {
	token uintptr
	data  *CbData
	cb    *cCbData
	time  *cTime
	value *cValue
	str   []byte // backing storage for a string payload, if any
	reg   Handle // handle returned by vpi_register_cb
}

// Registry state. A monotonic counter avoids token reuse.
var (
	armRegistry  sync.Map // map[uintptr]*armRecord
	armByHandle  sync.Map // map[Handle]*armRecord
	armCounter   uint64
)

// Closure state, initialized once and never freed.
var (
	cbClosureOnce sync.Once
	cbClosure     *ffi.Closure
	cbClosureCode unsafe.Pointer
	cbCif         ffi.Cif
	cbRtnPtr      uintptr
)

// cbRoutinePtr returns the C-callable address registered as cb_rtn.
func cbRoutinePtr() uintptr {
	cbClosureOnce.Do(func() {
		cbClosure = ffi.ClosureAlloc(unsafe.Sizeof(ffi.Closure{}), &cbClosureCode)

		if status := ffi.PrepCif(&cbCif, ffi.DefaultAbi, 1,
			&ffi.TypeSint32,  // return: PLI_INT32
			&ffi.TypePointer, // arg 0: p_cb_data
		); status != ffi.OK {
			panic("vpi: failed to prepare cb_rtn CIF")
		}

		goCallback := ffi.NewCallback(cbTrampoline)
		if status := ffi.PrepClosureLoc(cbClosure, &cbCif, goCallback, nil, cbClosureCode); status != ffi.OK {
			panic("vpi: failed to prepare cb_rtn closure")
		}

		cbRtnPtr = uintptr(cbClosureCode)
	})
	return cbRtnPtr
}

// cbTrampoline is invoked by libffi when the simulator fires any callback.
// The single pointer argument is the fired s_cb_data; only its user_data slot
// is trusted, everything else is re-read from the registered record.
func cbTrampoline(cif *ffi.Cif, ret unsafe.Pointer, args *unsafe.Pointer, userData unsafe.Pointer) uintptr {
	arguments := unsafe.Slice(args, 1)
	fired := (*cCbData)(*(*unsafe.Pointer)(arguments[0]))

	var rv int32 = -1
	if fired != nil {
		if rec, ok := armRegistry.Load(fired.userData); ok {
			r := rec.(*armRecord)
			rv = r.data.Rtn(r.data)
			if oneShotReason(r.data.Reason) {
				releaseArm(r)
			}
		}
	}

	*(*int32)(ret) = rv
	return 0
}

// oneShotReason reports registrations the simulator discards after firing.
func oneShotReason(reason int32) bool {
	switch reason {
	case CbAfterDelay, CbNextSimTime, CbReadWriteSynch, CbReadOnlySynch,
		CbStartOfSimulation, CbEndOfSimulation:
		return true
	}
	return false
}

func newArmRecord(data *CbData) *armRecord {
	return &armRecord{
		token: uintptr(atomic.AddUint64(&armCounter, 1)),
		data:  data,
	}
}

func storeArm(r *armRecord) {
	armRegistry.Store(r.token, r)
	if r.reg != 0 {
		armByHandle.Store(r.reg, r)
	}
}

func releaseArm(r *armRecord) {
	armRegistry.Delete(r.token)
	if r.reg != 0 {
		armByHandle.Delete(r.reg)
	}
}

// releaseArmByHandle drops the record for a registration the bridge removed.
func releaseArmByHandle(h Handle) {
	if rec, ok := armByHandle.Load(h); ok {
		releaseArm(rec.(*armRecord))
	}
}
