/*
 * MIT License
 * Copyright (c) 2026 Crrow
 */

package gpi

import (
	"errors"
	"fmt"

	"github.com/crrow/pygpi/pkg/vpi"
)

// ErrIterEnd is returned by Iterator.Next once the walk is exhausted.
var ErrIterEnd = errors.New("end of iteration")

// scopeRelationships is the ordered list of one-to-many relationships walked
// when discovering the children of a module-like scope. A single vpi_iterate
// relationship never covers everything; the union of these does, and
// simulators silently return an empty iterator for relationships they do not
// implement on a given object.
var scopeRelationships = []int32{
	vpi.TypeNet,
	vpi.TypeNetArray,
	vpi.TypeReg,
	vpi.TypeRegArray,
	vpi.TypeMemory,
	vpi.TypeIntegerVar,
	vpi.TypeRealVar,
	vpi.TypeStringVar,
	vpi.TypeParameter,
	vpi.RelInternalScope,
	vpi.TypeModule,
	vpi.TypeGenScopeArray,
}

// Iterator walks the children of a handle, yielding one typed Handle per
// discovered object. Children the simulator exposes but the engine cannot
// name or type are skipped, not surfaced as errors.
type Iterator struct {
	bridge *Bridge
	parent Handle

	rels   []int32
	relIdx int
	cur    vpi.Handle // live simulator iterator, 0 between relationships
	root   bool       // iterate with a null reference (package scopes)
}

// NewIterator starts a walk over parent according to sel.
func (b *Bridge) NewIterator(parent Handle, sel IterSel) (*Iterator, error) {
	it := &Iterator{bridge: b, parent: parent, relIdx: -1}

	switch sel {
	case IterObjects:
		switch parent.Type() {
		case Module, Structure, GenArray:
			it.rels = scopeRelationships
		default:
			return nil, fmt.Errorf("cannot iterate over objects of %s (type %s): %w",
				parent.FullName(), parent.Type(), ErrTypeMismatch)
		}
	case IterDrivers:
		it.rels = []int32{vpi.RelDriver}
	case IterLoads:
		it.rels = []int32{vpi.RelLoad}
	case IterPackageScopes:
		it.rels = []int32{vpi.TypePackage}
		it.root = true
	default:
		return nil, fmt.Errorf("unknown iteration kind %d: %w", sel, ErrTypeMismatch)
	}
	return it, nil
}

// Next yields the next child, or ErrIterEnd when the walk is done.
func (it *Iterator) Next() (Handle, error) {
	c := it.bridge.client

	for {
		raw := it.scan()
		if raw == 0 {
			return nil, ErrIterEnd
		}

		name := c.GetStr(vpi.PropName, raw)
		if name == "" {
			// Real but unnameable: nothing the runtime could address.
			it.bridge.log.Debug("skipping iterator child with no name")
			c.FreeHandle(raw)
			continue
		}

		obj, err := it.child(raw, name)
		if err != nil {
			it.bridge.log.Debugf("unable to fetch object %q, skipping: %v", name, err)
			c.FreeHandle(raw)
			continue
		}
		return obj, nil
	}
}

// scan pulls the next raw reference, moving on to the following relationship
// whenever the current simulator iterator runs dry.
func (it *Iterator) scan() vpi.Handle {
	c := it.bridge.client
	for {
		if it.cur != 0 {
			if raw := c.Scan(it.cur); raw != 0 {
				return raw
			}
			// An exhausted iterator is already freed by the simulator.
			it.cur = 0
		}

		it.relIdx++
		if it.relIdx >= len(it.rels) {
			return 0
		}
		var ref vpi.Handle
		if !it.root {
			ref = it.parent.Raw()
		}
		it.cur = c.Iterate(it.rels[it.relIdx], ref)
	}
}

func (it *Iterator) child(raw vpi.Handle, name string) (Handle, error) {
	if it.root {
		// Package scopes carry their own absolute name and the runtime
		// addresses their members with the scope operator.
		c := it.bridge.client
		fq := c.GetStr(vpi.PropFullName, raw)
		if fq == "" {
			fq = name
		}
		return it.bridge.objFromHandle(raw, name, fq+"::")
	}
	return it.bridge.handleByRaw(it.parent, raw)
}
