/*
 * MIT License
 * Copyright (c) 2026 Crrow
 */

package vpi

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/jupiterrider/ffi"
)

// SysClient binds Client to the vpi_* symbols already loaded in the host
// process. The simulator dlopens the bridge, so every VPI entry point is
// resolvable through the default symbol scope; no library of our own is
// opened.
type SysClient struct {
	handleByName  func(name string, scope uintptr) uintptr
	handleByIndex func(obj uintptr, index int32) uintptr
	handleByType  func(rel int32, ref uintptr) uintptr
	iterate       func(rel int32, ref uintptr) uintptr
	scan          func(iter uintptr) uintptr
	get           func(prop int32, ref uintptr) int32
	getStr        func(prop int32, ref uintptr) uintptr
	getValue      func(ref uintptr, value unsafe.Pointer)
	putValue      func(ref uintptr, value, time unsafe.Pointer, flags int32) uintptr
	freeObject    func(ref uintptr) int32
	registerCb    func(data unsafe.Pointer) uintptr
	removeCb      func(ref uintptr) int32
	getTime       func(ref uintptr, time unsafe.Pointer)
	getVlogInfo   func(info unsafe.Pointer) int32

	controlSym uintptr
	printfSym  uintptr
	controlCif ffi.Cif
	printfCif  ffi.Cif

	quirks Quirk
}

// cVlogInfo mirrors s_vpi_vlog_info.
type cVlogInfo struct {
	argc    int32
	_       int32
	argv    uintptr // char **
	product uintptr // char *
	version uintptr // char *
}

// NewSysClient resolves the procedural interface from the host process.
func NewSysClient() (*SysClient, error) {
	c := &SysClient{}

	reg := func(fptr any, name string) error {
		sym, err := purego.Dlsym(purego.RTLD_DEFAULT, name)
		if err != nil || sym == 0 {
			return fmt.Errorf("resolve %s: %w", name, err)
		}
		purego.RegisterFunc(fptr, sym)
		return nil
	}

	var err error
	bind := func(fptr any, name string) {
		if err == nil {
			err = reg(fptr, name)
		}
	}

	bind(&c.handleByName, "vpi_handle_by_name")
	bind(&c.handleByIndex, "vpi_handle_by_index")
	bind(&c.handleByType, "vpi_handle")
	bind(&c.iterate, "vpi_iterate")
	bind(&c.scan, "vpi_scan")
	bind(&c.get, "vpi_get")
	bind(&c.getStr, "vpi_get_str")
	bind(&c.getValue, "vpi_get_value")
	bind(&c.putValue, "vpi_put_value")
	bind(&c.freeObject, "vpi_free_object")
	bind(&c.registerCb, "vpi_register_cb")
	bind(&c.removeCb, "vpi_remove_cb")
	bind(&c.getTime, "vpi_get_time")
	bind(&c.getVlogInfo, "vpi_get_vlog_info")
	if err != nil {
		return nil, err
	}

	// vpi_control and vpi_printf are variadic; they go through libffi.
	if c.controlSym, err = purego.Dlsym(purego.RTLD_DEFAULT, "vpi_control"); err != nil {
		return nil, fmt.Errorf("resolve vpi_control: %w", err)
	}
	if status := ffi.PrepCifVar(&c.controlCif, ffi.DefaultAbi, 1, 2,
		&ffi.TypeSint32, &ffi.TypeSint32, &ffi.TypeSint32); status != ffi.OK {
		return nil, errors.New("prepare vpi_control CIF failed")
	}
	if c.printfSym, err = purego.Dlsym(purego.RTLD_DEFAULT, "vpi_printf"); err != nil {
		return nil, fmt.Errorf("resolve vpi_printf: %w", err)
	}
	if status := ffi.PrepCifVar(&c.printfCif, ffi.DefaultAbi, 1, 2,
		&ffi.TypeSint32, &ffi.TypePointer, &ffi.TypePointer); status != ffi.OK {
		return nil, errors.New("prepare vpi_printf CIF failed")
	}

	if info, ok := c.VlogInfo(); ok {
		c.quirks = quirksForProduct(info.Product)
	}

	return c, nil
}

// quirksForProduct maps a simulator product string onto the workaround set
// the reference implementation selected with per-simulator builds.
func quirksForProduct(product string) Quirk {
	p := strings.ToLower(product)
	switch {
	case strings.Contains(p, "xcelium"), strings.Contains(p, "ncsim"):
		return QuirkNoInertialStrings | QuirkValidateGenScope
	case strings.Contains(p, "modelsim"), strings.Contains(p, "questa"):
		return QuirkNoInertialStrings | QuirkNoGenScopeArray
	default:
		// Icarus, Verilator and friends.
		return QuirkNoGenScopeArray
	}
}

func (c *SysClient) HandleByName(name string, scope Handle) Handle {
	return Handle(c.handleByName(name, uintptr(scope)))
}

func (c *SysClient) HandleByIndex(parent Handle, index int32) Handle {
	return Handle(c.handleByIndex(uintptr(parent), index))
}

func (c *SysClient) HandleByType(rel int32, ref Handle) Handle {
	return Handle(c.handleByType(rel, uintptr(ref)))
}

func (c *SysClient) Iterate(rel int32, ref Handle) Handle {
	return Handle(c.iterate(rel, uintptr(ref)))
}

func (c *SysClient) Scan(iter Handle) Handle {
	return Handle(c.scan(uintptr(iter)))
}

func (c *SysClient) Get(prop int32, ref Handle) int32 {
	return c.get(prop, uintptr(ref))
}

func (c *SysClient) GetStr(prop int32, ref Handle) string {
	return goStringFromC(c.getStr(prop, uintptr(ref)))
}

func (c *SysClient) GetValue(ref Handle, format int32) (Value, error) {
	var cv cValue
	cv.format = format
	c.getValue(uintptr(ref), unsafe.Pointer(&cv))

	out := Value{Format: format}
	switch format {
	case IntVal, ScalarVal:
		out.Int = cv.getInt()
	case RealVal:
		out.Real = cv.getReal()
	case BinStrVal, StringVal:
		p := cv.getPtr()
		if p == 0 {
			return out, errors.New("simulator yielded a null string value")
		}
		out.Str = goStringFromC(p)
	default:
		return out, fmt.Errorf("unsupported value format %d", format)
	}
	return out, nil
}

func (c *SysClient) PutValue(ref Handle, v Value, t *Time, flags int32) error {
	var cv cValue
	var buf []byte
	cv.format = v.Format
	switch v.Format {
	case IntVal, ScalarVal:
		cv.setInt(v.Int)
	case RealVal:
		cv.setReal(v.Real)
	case BinStrVal, StringVal:
		buf = cstring(v.Str)
		cv.setPtr(unsafe.Pointer(&buf[0]))
	default:
		return fmt.Errorf("unsupported value format %d", v.Format)
	}

	var tp unsafe.Pointer
	var ct cTime
	if t != nil {
		goTimeToC(t, &ct)
		tp = unsafe.Pointer(&ct)
	}

	c.putValue(uintptr(ref), unsafe.Pointer(&cv), tp, flags)
	_ = buf
	return nil
}

func (c *SysClient) FreeHandle(ref Handle) bool {
	return c.freeObject(uintptr(ref)) != 0
}

func (c *SysClient) RegisterCb(cb *CbData) Handle {
	rec := newArmRecord(cb)

	rec.cb = &cCbData{
		reason:   cb.Reason,
		rtn:      cbRoutinePtr(),
		obj:      uintptr(cb.Obj),
		index:    cb.Index,
		userData: rec.token,
	}
	if cb.Time != nil {
		rec.time = &cTime{}
		goTimeToC(cb.Time, rec.time)
		rec.cb.time = uintptr(unsafe.Pointer(rec.time))
	}
	if cb.ValueFmt != 0 {
		rec.value = &cValue{format: cb.ValueFmt}
		rec.cb.value = uintptr(unsafe.Pointer(rec.value))
	}

	h := Handle(c.registerCb(unsafe.Pointer(rec.cb)))
	if h == 0 {
		return 0
	}
	rec.reg = h
	storeArm(rec)
	return h
}

func (c *SysClient) RemoveCb(ref Handle) bool {
	ok := c.removeCb(uintptr(ref)) != 0
	releaseArmByHandle(ref)
	return ok
}

func (c *SysClient) GetTime(ref Handle, t *Time) {
	var ct cTime
	ct.typ = t.Type
	c.getTime(uintptr(ref), unsafe.Pointer(&ct))
	cTimeToGo(&ct, t)
}

func (c *SysClient) VlogInfo() (VlogInfo, bool) {
	var ci cVlogInfo
	if c.getVlogInfo(unsafe.Pointer(&ci)) == 0 {
		return VlogInfo{}, false
	}

	out := VlogInfo{
		Product: goStringFromC(ci.product),
		Version: goStringFromC(ci.version),
	}
	if ci.argv != 0 && ci.argc > 0 {
		argv := unsafe.Slice((*uintptr)(unsafe.Pointer(ci.argv)), int(ci.argc))
		out.Argv = make([]string, 0, len(argv))
		for _, p := range argv {
			out.Argv = append(out.Argv, goStringFromC(p))
		}
	}
	return out, true
}

func (c *SysClient) Control(op int32) {
	var ret int32
	arg1 := op
	arg2 := int32(0)
	ffi.Call(&c.controlCif, c.controlSym, unsafe.Pointer(&ret),
		unsafe.Pointer(&arg1), unsafe.Pointer(&arg2))
}

// Printf writes one line through the simulator's log so output interleaves
// correctly with simulator messages.
func (c *SysClient) Printf(msg string) {
	format := cstring("%s\n")
	text := cstring(msg)
	fp := unsafe.Pointer(&format[0])
	tp := unsafe.Pointer(&text[0])
	var ret int32
	ffi.Call(&c.printfCif, c.printfSym, unsafe.Pointer(&ret),
		unsafe.Pointer(&fp), unsafe.Pointer(&tp))
}

func (c *SysClient) Quirks() Quirk { return c.quirks }

var _ Client = (*SysClient)(nil)
