/*
 * MIT License
 * Copyright (c) 2026 Crrow
 */

package gpi

import (
	"fmt"
	"strings"

	"github.com/crrow/pygpi/pkg/vpi"
)

// toObjType maps a simulator type code onto the semantic type.
func toObjType(vpiType int32, numElems int32, isVector bool) ObjType {
	switch vpiType {
	case vpi.TypeNet, vpi.TypeReg, vpi.TypeMemoryWord:
		if isVector || numElems > 1 {
			return LogicArray
		}
		return Logic
	case vpi.TypeRealVar:
		return Real
	case vpi.TypeRegArray, vpi.TypeNetArray, vpi.TypeMemory:
		return Array
	case vpi.TypeIntegerVar:
		return Integer
	case vpi.TypeModule, vpi.TypePort, vpi.TypeGenScope:
		return Module
	case vpi.TypeStringVar:
		return String
	case vpi.TypePackage:
		return Package
	default:
		return Unknown
	}
}

// constTypeToObjType maps a vpiConstType subcode. Most simulators only ever
// report decimal or binary constants.
func constTypeToObjType(constType int32) ObjType {
	switch constType {
	case vpi.ConstUndefined:
		// Xcelium reports undefined parameters this way; assume a
		// logic vector.
		return LogicArray
	case vpi.ConstDec, vpi.ConstBinary, vpi.ConstOct, vpi.ConstHex:
		return LogicArray
	case vpi.ConstReal:
		return Real
	case vpi.ConstString:
		return String
	default:
		return Unknown
	}
}

// typeDelimiter is the separator between a parent's fully qualified name and
// a child's local name. Packages already end in their scope operator.
func typeDelimiter(parent Handle) string {
	if parent.Type() == Package {
		return ""
	}
	return "."
}

// compareGenerateLabels matches two generate labels ignoring any suffixed
// index: genblk1 equals genblk1[2].
func compareGenerateLabels(a, b string) bool {
	if i := strings.LastIndex(a, "["); i >= 0 {
		a = a[:i]
	}
	if i := strings.LastIndex(b, "["); i >= 0 {
		b = b[:i]
	}
	return a == b
}

// objFromHandle is the handle factory: it types a raw simulator reference
// and produces the right specialization, initialized with both names.
func (b *Bridge) objFromHandle(hdl vpi.Handle, name, fqName string) (Handle, error) {
	c := b.client

	vpiType := c.Get(vpi.PropType, hdl)
	if vpiType == vpi.TypeUnknown {
		return nil, fmt.Errorf("simulator reports unknown type for %s: %w", fqName, ErrNotFound)
	}

	var obj Handle
	switch vpiType {
	case vpi.TypeNet, vpi.TypeReg, vpi.TypeIntegerVar, vpi.TypeRealVar,
		vpi.TypeMemoryWord, vpi.TypeStringVar:
		isVector := c.Get(vpi.PropVector, hdl) != 0
		numElems := c.Get(vpi.PropSize, hdl)
		obj = newSignal(b, hdl, toObjType(vpiType, numElems, isVector), false)

	case vpi.TypeParameter, vpi.TypeConstant:
		constType := c.Get(vpi.PropConstType, hdl)
		obj = newSignal(b, hdl, constTypeToObjType(constType), true)

	case vpi.TypeRegArray, vpi.TypeNetArray, vpi.TypeMemory:
		isVector := c.Get(vpi.PropVector, hdl) != 0
		numElems := c.Get(vpi.PropSize, hdl)
		obj = newArrayObj(b, hdl, toObjType(vpiType, numElems, isVector))

	case vpi.TypeModule, vpi.TypePort, vpi.TypeGenScope, vpi.TypePackage:
		hdlName := c.GetStr(vpi.PropName, hdl)
		if hdlName != name {
			// The resolved object answers to a different name: this
			// is an unindexed dimension aliased onto another handle.
			b.log.Debugf("found pseudo-region %s (hdl name %q, requested %q)", fqName, hdlName, name)
			obj = newObject(b, hdl, GenArray, false)
		} else {
			obj = newObject(b, hdl, toObjType(vpiType, 0, false), false)
		}

	default:
		b.log.Warnf("not able to map simulator type %d of %s to an object", vpiType, fqName)
		return nil, ErrNotFound
	}

	if err := obj.init(name, fqName); err != nil {
		return nil, err
	}
	return obj, nil
}

// RootHandle locates a top-level module. An empty name accepts the first
// top module the simulator reports.
func (b *Bridge) RootHandle(name string) (Handle, error) {
	c := b.client

	// Iterating modules with no reference yields the top level.
	iter := c.Iterate(vpi.TypeModule, 0)
	if iter == 0 {
		b.log.Info("nothing visible via the procedural interface")
		return nil, ErrNotFound
	}

	var root vpi.Handle
	for root = c.Scan(iter); root != 0; root = c.Scan(iter) {
		if toObjType(c.Get(vpi.PropType, root), 0, false) != Module {
			continue
		}
		if name == "" || name == c.GetStr(vpi.PropFullName, root) {
			break
		}
	}
	if root == 0 {
		return nil, fmt.Errorf("no root handle %q: %w", name, ErrNotFound)
	}
	if !c.FreeHandle(iter) {
		b.log.Warn("attempting to free root iterator failed")
	}

	rootName := c.GetStr(vpi.PropFullName, root)
	obj := newObject(b, root, toObjType(c.Get(vpi.PropType, root), 0, false), false)
	if err := obj.init(rootName, rootName); err != nil {
		return nil, err
	}
	return obj, nil
}

// HandleByName resolves a child of parent by local name.
//
// The absolute lookup handles the common case. When it misses, the fallback
// scans the parent's internal scopes for a generate block whose label matches
// modulo a trailing index: several simulators cannot look up the unindexed
// generate pseudo-region directly.
func (b *Bridge) HandleByName(parent Handle, name string) (Handle, error) {
	c := b.client
	parentHdl := parent.Raw()
	fqName := parent.FullName() + typeDelimiter(parent) + name

	newHdl := c.HandleByName(fqName, 0)

	if newHdl != 0 && c.Get(vpi.PropType, newHdl) == vpi.TypeGenScope &&
		c.Quirks().Has(vpi.QuirkValidateGenScope) {
		// Confirm the scope is reachable from the parent before using
		// it; Xcelium hands out handles it later crashes on.
		if !b.genScopeReachable(parentHdl, name) {
			c.FreeHandle(newHdl)
			newHdl = 0
		}
	}

	if newHdl == 0 && c.Quirks().Has(vpi.QuirkNoGenScopeArray) {
		b.log.Debugf("unable to find %q directly, scanning for a matching generate scope", fqName)
		if iter := c.Iterate(vpi.RelInternalScope, parentHdl); iter != 0 {
			for rgn := c.Scan(iter); rgn != 0; rgn = c.Scan(iter) {
				rgnType := c.Get(vpi.PropType, rgn)
				if rgnType != vpi.TypeGenScope && rgnType != vpi.TypeModule {
					continue
				}
				if compareGenerateLabels(c.GetStr(vpi.PropName, rgn), name) {
					newHdl = parentHdl
					c.FreeHandle(iter)
					break
				}
			}
		}
	}

	if newHdl == 0 {
		return nil, fmt.Errorf("%q: %w", fqName, ErrNotFound)
	}

	// An unindexed generate name may resolve to a GenScopeArray that not
	// all simulators can iterate. Alias the parent instead; the factory
	// will detect the name mismatch and produce the pseudo-region.
	if c.Get(vpi.PropType, newHdl) == vpi.TypeGenScopeArray {
		c.FreeHandle(newHdl)
		newHdl = parentHdl
	}

	obj, err := b.objFromHandle(newHdl, name, fqName)
	if err != nil {
		c.FreeHandle(newHdl)
		return nil, fmt.Errorf("unable to create object %q: %w", fqName, err)
	}
	return obj, nil
}

func (b *Bridge) genScopeReachable(parentHdl vpi.Handle, name string) bool {
	c := b.client
	iter := c.Iterate(vpi.RelInternalScope, parentHdl)
	if iter == 0 {
		return false
	}
	for rgn := c.Scan(iter); rgn != 0; rgn = c.Scan(iter) {
		if compareGenerateLabels(c.GetStr(vpi.PropName, rgn), name) {
			c.FreeHandle(iter)
			return true
		}
	}
	return false
}

// HandleByIndex resolves one element of an indexable parent.
func (b *Bridge) HandleByIndex(parent Handle, index int32) (Handle, error) {
	c := b.client
	parentHdl := parent.Raw()
	var newHdl vpi.Handle

	switch parent.Type() {
	case GenArray:
		// Pseudo-region: the aliased reference cannot be indexed, only
		// named.
		b.log.Debugf("index %d of pseudo-region %s resolved by name", index, parent.Name())
		newHdl = c.HandleByName(fmt.Sprintf("%s[%d]", parent.FullName(), index), 0)

	case Logic, LogicArray, Array, String:
		newHdl = c.HandleByIndex(parentHdl, index)
		if newHdl == 0 {
			var err error
			newHdl, err = b.indexFallback(parent, index)
			if err != nil {
				return nil, err
			}
		}

	default:
		return nil, fmt.Errorf("parent %s of type %s cannot be indexed: %w",
			parent.Name(), parent.Type(), ErrTypeMismatch)
	}

	if newHdl == 0 {
		return nil, fmt.Errorf("%s[%d]: %w", parent.Name(), index, ErrNotFound)
	}

	name := fmt.Sprintf("%s[%d]", parent.Name(), index)
	fqName := fmt.Sprintf("%s[%d]", parent.FullName(), index)
	obj, err := b.objFromHandle(newHdl, name, fqName)
	if err != nil {
		c.FreeHandle(newHdl)
		return nil, fmt.Errorf("unable to fetch object below %s at index %d: %w",
			parent.Name(), index, err)
	}
	return obj, nil
}

// indexFallback handles simulators whose by-index lookup fails on
// multi-dimensional arrays: wire [7:0] s [0:1][0:2] only resolves once every
// index is given. Resolve the composed bracketed name instead, or hand back
// the parent's own reference as a fresh pseudo-handle when more dimensions
// remain.
func (b *Bridge) indexFallback(parent Handle, index int32) (vpi.Handle, error) {
	c := b.client
	parentHdl := parent.Raw()

	left := parent.RangeLeft()
	right := parent.RangeRight()
	ascending := parent.RangeDir() == RangeUp

	b.log.Debugf("by-index lookup failed for %s[%d], trying composed name", parent.Name(), index)

	if (ascending && (index < left || index > right)) ||
		(!ascending && (index > left || index < right)) {
		return 0, fmt.Errorf("index %d is not in the range of [%d:%d]: %w",
			index, left, right, ErrOutOfRange)
	}

	// Count the declared range constraints, then discount one per
	// trailing bracket the parent name already carries: the parent may
	// itself be a pseudo-handle for an earlier dimension.
	constraintCnt := 0
	if iter := c.Iterate(vpi.TypeRange, parentHdl); iter != 0 {
		for c.Scan(iter) != 0 {
			constraintCnt++
		}
	} else {
		constraintCnt = 1
	}

	actName := c.GetStr(vpi.PropName, parentHdl)
	if len(actName) < len(parent.Name()) {
		suffix := parent.Name()[len(actName):]
		for len(suffix) > 0 {
			at := strings.IndexByte(suffix, ']')
			if at < 0 {
				break
			}
			constraintCnt--
			suffix = suffix[at+1:]
		}
	}

	newHdl := c.HandleByName(fmt.Sprintf("%s[%d]", parent.FullName(), index), 0)

	// Not the last dimension: alias the parent as the next pseudo-handle.
	if newHdl == 0 && constraintCnt > 1 {
		newHdl = parentHdl
	}
	return newHdl, nil
}

// handleByRaw types a reference that came out of an iterator without a
// resolvable name of its own.
func (b *Bridge) handleByRaw(parent Handle, raw vpi.Handle) (Handle, error) {
	c := b.client

	name := c.GetStr(vpi.PropName, raw)
	if name == "" {
		return nil, fmt.Errorf("unable to query name of raw handle: %w", ErrNotFound)
	}

	fqName := parent.FullName() + typeDelimiter(parent) + name
	obj, err := b.objFromHandle(raw, name, fqName)
	if err != nil {
		c.FreeHandle(raw)
		return nil, fmt.Errorf("unable to fetch object %q: %w", fqName, err)
	}
	return obj, nil
}
