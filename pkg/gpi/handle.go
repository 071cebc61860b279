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

// Handle is a located simulator object. The semantic type is fixed at
// construction; the fully qualified name uniquely identifies the object
// within one simulation. The engine never retains a strong reference to a
// Handle after returning it; the runtime-side wrapper owns it.
type Handle interface {
	Name() string
	FullName() string
	Type() ObjType
	Const() bool
	NumElems() int
	Indexable() bool
	RangeLeft() int32
	RangeRight() int32
	RangeDir() RangeDir
	Raw() vpi.Handle

	// init discovers size and range and records both names. Called once
	// by the factory before the handle escapes.
	init(name, fqName string) error
}

// Object is the base handle for anything in the hierarchy.
type Object struct {
	bridge *Bridge
	hdl    vpi.Handle
	typ    ObjType
	konst  bool

	name     string
	fqName   string
	numElems int
	indexbl  bool
	rngLeft  int32
	rngRight int32
	rngDir   RangeDir
}

func newObject(b *Bridge, hdl vpi.Handle, typ ObjType, konst bool) *Object {
	return &Object{
		bridge:   b,
		hdl:      hdl,
		typ:      typ,
		konst:    konst,
		name:     "unknown",
		fqName:   "unknown",
		rngLeft:  -1,
		rngRight: -1,
	}
}

func (o *Object) Name() string        { return o.name }
func (o *Object) FullName() string    { return o.fqName }
func (o *Object) Type() ObjType       { return o.typ }
func (o *Object) Const() bool         { return o.konst }
func (o *Object) NumElems() int       { return o.numElems }
func (o *Object) Indexable() bool     { return o.indexbl }
func (o *Object) RangeLeft() int32    { return o.rngLeft }
func (o *Object) RangeRight() int32   { return o.rngRight }
func (o *Object) RangeDir() RangeDir  { return o.rngDir }
func (o *Object) Raw() vpi.Handle     { return o.hdl }

func (o *Object) init(name, fqName string) error {
	o.name = name
	o.fqName = fqName
	return nil
}

// Signal is a handle with value access: nets, regs, variables, parameters.
type Signal struct {
	Object
	length int // cached element count for value I/O
}

func newSignal(b *Bridge, hdl vpi.Handle, typ ObjType, konst bool) *Signal {
	return &Signal{Object: *newObject(b, hdl, typ, konst)}
}

// init discovers element count and range bounds.
//
// Range discovery order: the range iterator (only the first range matters
// for a packed vector), then direct left/right accessors, then a [0, N-1]
// guess when the simulator exposes neither.
func (s *Signal) init(name, fqName string) error {
	c := s.bridge.client

	vpiType := c.Get(vpi.PropType, s.hdl)
	if vpiType == vpi.TypeIntegerVar {
		s.numElems = 1
	} else {
		s.numElems = int(c.Get(vpi.PropSize, s.hdl))

		switch {
		case s.typ == String || vpiType == vpi.TypeConstant || vpiType == vpi.TypeParameter:
			// Not iterable over indices.
			s.indexbl = false
			s.rngLeft = 0
			s.rngRight = int32(s.numElems) - 1

		case s.typ == Logic || s.typ == LogicArray:
			s.indexbl = c.Get(vpi.PropVector, s.hdl) != 0
			if s.indexbl {
				if err := s.discoverRange(name); err != nil {
					return err
				}
			} else {
				s.rngLeft = 0
				s.rngRight = int32(s.numElems) - 1
			}
		}
	}

	if s.rngLeft > s.rngRight {
		s.rngDir = RangeDown
	} else {
		s.rngDir = RangeUp
	}

	s.length = s.numElems
	s.bridge.log.Debugf("signal %s initialized with %d elements", name, s.numElems)
	return s.Object.init(name, fqName)
}

func (s *Signal) discoverRange(name string) error {
	c := s.bridge.client

	if iter := c.Iterate(vpi.TypeRange, s.hdl); iter != 0 {
		rangeHdl := c.Scan(iter)
		if rangeHdl == 0 {
			return fmt.Errorf("unable to get range for %s: %w", name, ErrNotFound)
		}
		c.FreeHandle(iter)
		left, right, err := rangeBounds(c, rangeHdl)
		if err != nil {
			return fmt.Errorf("range bounds for %s: %w", name, err)
		}
		s.rngLeft, s.rngRight = left, right
		return nil
	}

	leftHdl := c.HandleByType(vpi.RelLeftRange, s.hdl)
	rightHdl := c.HandleByType(vpi.RelRightRange, s.hdl)
	if leftHdl != 0 && rightHdl != 0 {
		lv, err := c.GetValue(leftHdl, vpi.IntVal)
		if err != nil {
			return err
		}
		rv, err := c.GetValue(rightHdl, vpi.IntVal)
		if err != nil {
			return err
		}
		s.rngLeft, s.rngRight = lv.Int, rv.Int
		return nil
	}

	s.bridge.log.Warnf("cannot discover range bounds for %s, guessing from element count", name)
	s.rngLeft = 0
	s.rngRight = int32(s.numElems) - 1
	return nil
}

// ArrayObj is an unpacked array or memory. Its range discovery must pick the
// dimension matching the pseudo-depth encoded in the handle name.
type ArrayObj struct {
	Object
}

func newArrayObj(b *Bridge, hdl vpi.Handle, typ ObjType) *ArrayObj {
	return &ArrayObj{Object: *newObject(b, hdl, typ, false)}
}

func (a *ArrayObj) init(name, fqName string) error {
	c := a.bridge.client
	a.indexbl = true

	// The pseudo-depth is the count of '[' after the underlying name:
	// sig[1] over wire [7:0] sig [0:1][0:2] selects the second range.
	rangeIdx := 0
	hdlName := c.GetStr(vpi.PropName, a.hdl)
	if len(hdlName) < len(name) {
		at := strings.LastIndex(name, hdlName)
		if at < 0 {
			return fmt.Errorf("unable to find name %s in %s", hdlName, name)
		}
		suffix := name[at:]
		if !validPseudoSuffix(suffix[len(hdlName):]) {
			return fmt.Errorf("pseudo-handle suffix %q of %s is not a bracketed index chain", suffix[len(hdlName):], name)
		}
		rangeIdx = strings.Count(suffix, "[")
	}

	var rangeHdl vpi.Handle
	if iter := c.Iterate(vpi.TypeRange, a.hdl); iter != 0 {
		rangeHdl = c.Scan(iter)
		for i := 0; i < rangeIdx && rangeHdl != 0; i++ {
			rangeHdl = c.Scan(iter)
		}
		if rangeHdl == 0 {
			return fmt.Errorf("unable to get range %d for array %s", rangeIdx, name)
		}
		c.FreeHandle(iter)
	} else if rangeIdx == 0 {
		rangeHdl = a.hdl
	} else {
		return fmt.Errorf("unable to get range for array or memory %s", name)
	}

	left, right, err := rangeBounds(c, rangeHdl)
	if err != nil {
		return fmt.Errorf("range bounds for %s: %w", name, err)
	}
	a.rngLeft, a.rngRight = left, right

	// The simulator-reported total size is wrong for multi-dimensional
	// arrays; derive the element count from the chosen range.
	if left > right {
		a.numElems = int(left-right) + 1
		a.rngDir = RangeDown
	} else {
		a.numElems = int(right-left) + 1
		a.rngDir = RangeUp
	}

	return a.Object.init(name, fqName)
}

func rangeBounds(c vpi.Client, rangeHdl vpi.Handle) (left, right int32, err error) {
	lv, err := c.GetValue(c.HandleByType(vpi.RelLeftRange, rangeHdl), vpi.IntVal)
	if err != nil {
		return 0, 0, err
	}
	rv, err := c.GetValue(c.HandleByType(vpi.RelRightRange, rangeHdl), vpi.IntVal)
	if err != nil {
		return 0, 0, err
	}
	return lv.Int, rv.Int, nil
}

// validPseudoSuffix checks that a pseudo-handle suffix is a chain of
// bracketed indices and nothing else. The bracket-count dimension inference
// assumes this shape; reject lookups where a simulator names things
// differently rather than miscounting dimensions.
func validPseudoSuffix(s string) bool {
	for len(s) > 0 {
		if s[0] != '[' {
			return false
		}
		end := strings.IndexByte(s, ']')
		if end < 2 { // at least one digit between the brackets
			return false
		}
		for _, r := range s[1:end] {
			if (r < '0' || r > '9') && r != '-' {
				return false
			}
		}
		s = s[end+1:]
	}
	return true
}
