/*
 * MIT License
 * Copyright (c) 2026 Crrow
 */

package vpi

import "unsafe"

// C struct layouts for the 64-bit VPI ABI. Field offsets must match
// vpi_user.h exactly; these structs are handed to the simulator by address.

// cTime mirrors s_vpi_time.
type cTime struct {
	typ  int32
	high uint32
	low  uint32
	_    int32
	real float64
}

// cValue mirrors s_vpi_value. The union is accessed through the raw word.
type cValue struct {
	format int32
	_      int32
	word   uint64 // union: char* / PLI_INT32 / double / pointers
}

func (v *cValue) setInt(i int32)    { *(*int32)(unsafe.Pointer(&v.word)) = i }
func (v *cValue) setReal(r float64) { *(*float64)(unsafe.Pointer(&v.word)) = r }
func (v *cValue) setPtr(p unsafe.Pointer) {
	*(*unsafe.Pointer)(unsafe.Pointer(&v.word)) = p
}
func (v *cValue) getInt() int32    { return *(*int32)(unsafe.Pointer(&v.word)) }
func (v *cValue) getReal() float64 { return *(*float64)(unsafe.Pointer(&v.word)) }
func (v *cValue) getPtr() uintptr  { return *(*uintptr)(unsafe.Pointer(&v.word)) }

// cCbData mirrors s_cb_data.
type cCbData struct {
	reason   int32
	_        int32
	rtn      uintptr // PLI_INT32 (*cb_rtn)(p_cb_data)
	obj      uintptr
	time     uintptr // p_vpi_time
	value    uintptr // p_vpi_value
	index    int32
	_        int32
	userData uintptr
}

// goTimeToC and cTimeToGo convert between the Go and ABI views.
func goTimeToC(t *Time, out *cTime) {
	out.typ = t.Type
	out.high = t.High
	out.low = t.Low
	out.real = t.Real
}

func cTimeToGo(in *cTime, out *Time) {
	out.Type = in.typ
	out.High = in.high
	out.Low = in.low
	out.Real = in.real
}

// goStringFromC copies a NUL-terminated C string. Returns "" for NULL.
func goStringFromC(p uintptr) string {
	if p == 0 {
		return ""
	}
	var n int
	for *(*byte)(unsafe.Pointer(p + uintptr(n))) != 0 {
		n++
	}
	if n == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(unsafe.Pointer(p)), n))
}

// cstring returns a NUL-terminated copy suitable to pass by address.
func cstring(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}
