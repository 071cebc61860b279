/*
 * MIT License
 * Copyright (c) 2026 Crrow
 */

package gpi_test

import (
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/crrow/pygpi/pkg/gpi"
	"github.com/crrow/pygpi/pkg/vpi"
	"github.com/crrow/pygpi/pkg/vpitest"
)

func newBridge(s *vpitest.Sim) *gpi.Bridge {
	return gpi.New(s, zap.NewNop().Sugar())
}

func buildDesign() (*vpitest.Sim, vpi.Handle) {
	s := vpitest.New()
	top := s.AddModule(0, "top")
	s.AddReg(top, "clk", 1)
	s.AddReg(top, "data", 8)
	s.AddIntegerVar(top, "count")
	s.AddStringVar(top, "msg")
	s.AddParameter(top, "WIDTH", vpi.ConstDec, "00001000")
	sub := s.AddModule(top, "sub")
	s.AddReg(sub, "q", 1)
	return s, top
}

func TestRootHandle(t *testing.T) {
	s, _ := buildDesign()
	b := newBridge(s)

	t.Run("by name", func(t *testing.T) {
		root, err := b.RootHandle("top")
		if err != nil {
			t.Fatalf("RootHandle: %v", err)
		}
		if root.Type() != gpi.Module {
			t.Errorf("root type = %s, want GPI_MODULE", root.Type())
		}
		if root.Name() != "top" || root.FullName() != "top" {
			t.Errorf("root names = %q/%q, want top/top", root.Name(), root.FullName())
		}
	})

	t.Run("first top level", func(t *testing.T) {
		root, err := b.RootHandle("")
		if err != nil {
			t.Fatalf("RootHandle: %v", err)
		}
		if root.FullName() != "top" {
			t.Errorf("root = %q, want top", root.FullName())
		}
	})

	t.Run("missing", func(t *testing.T) {
		if _, err := b.RootHandle("nope"); !errors.Is(err, gpi.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestSignalShapes(t *testing.T) {
	s, _ := buildDesign()
	b := newBridge(s)
	root, err := b.RootHandle("top")
	if err != nil {
		t.Fatalf("RootHandle: %v", err)
	}

	cases := []struct {
		name  string
		typ   gpi.ObjType
		elems int
		konst bool
	}{
		{"clk", gpi.Logic, 1, false},
		{"data", gpi.LogicArray, 8, false},
		{"count", gpi.Integer, 1, false},
		{"msg", gpi.String, 0, false},
		{"WIDTH", gpi.LogicArray, 8, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, err := b.HandleByName(root, tc.name)
			if err != nil {
				t.Fatalf("HandleByName(%s): %v", tc.name, err)
			}
			if h.Type() != tc.typ {
				t.Errorf("type = %s, want %s", h.Type(), tc.typ)
			}
			if h.NumElems() != tc.elems {
				t.Errorf("elems = %d, want %d", h.NumElems(), tc.elems)
			}
			if h.Const() != tc.konst {
				t.Errorf("const = %v, want %v", h.Const(), tc.konst)
			}
			if want := "top." + tc.name; h.FullName() != want {
				t.Errorf("full name = %q, want %q", h.FullName(), want)
			}
		})
	}

	t.Run("vector range", func(t *testing.T) {
		h, err := b.HandleByName(root, "data")
		if err != nil {
			t.Fatal(err)
		}
		if !h.Indexable() {
			t.Error("vector should be indexable")
		}
		if h.RangeLeft() != 7 || h.RangeRight() != 0 {
			t.Errorf("range = [%d:%d], want [7:0]", h.RangeLeft(), h.RangeRight())
		}
		if h.RangeDir() != gpi.RangeDown {
			t.Errorf("direction = %d, want descending", h.RangeDir())
		}
	})

	t.Run("miss", func(t *testing.T) {
		if _, err := b.HandleByName(root, "ghost"); !errors.Is(err, gpi.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestGeneratePseudoRegion(t *testing.T) {
	s := vpitest.New()
	s.SetQuirks(vpi.QuirkNoGenScopeArray)
	top := s.AddModule(0, "top")
	for i := 0; i < 5; i++ {
		g := s.AddGenScope(top, fmt.Sprintf("genblk1[%d]", i))
		s.AddReg(g, "q", 1)
	}

	b := newBridge(s)
	root, err := b.RootHandle("top")
	if err != nil {
		t.Fatalf("RootHandle: %v", err)
	}

	gen, err := b.HandleByName(root, "genblk1")
	if err != nil {
		t.Fatalf("HandleByName(genblk1): %v", err)
	}
	if gen.Type() != gpi.GenArray {
		t.Fatalf("type = %s, want GPI_GENARRAY", gen.Type())
	}
	if gen.Raw() != root.Raw() {
		t.Error("pseudo-region should alias the parent's reference")
	}
	if gen.FullName() != "top.genblk1" {
		t.Errorf("full name = %q, want top.genblk1", gen.FullName())
	}

	elem, err := b.HandleByIndex(gen, 2)
	if err != nil {
		t.Fatalf("HandleByIndex(2): %v", err)
	}
	if elem.Type() != gpi.Module {
		t.Errorf("element type = %s, want GPI_MODULE", elem.Type())
	}
	if elem.FullName() != "top.genblk1[2]" {
		t.Errorf("element full name = %q", elem.FullName())
	}

	if _, err := b.HandleByName(elem, "q"); err != nil {
		t.Errorf("lookup below generate element: %v", err)
	}
}

func TestGenScopeArraySubstitution(t *testing.T) {
	// A simulator that materializes the aggregate for an unindexed
	// generate label: the aggregate reference is discarded and the parent
	// aliased instead.
	s := vpitest.New()
	top := s.AddModule(0, "top")
	s.AddGenScopeArray(top, "genblk1")
	for i := 0; i < 3; i++ {
		s.AddGenScope(top, fmt.Sprintf("genblk1[%d]", i))
	}

	b := newBridge(s)
	root, err := b.RootHandle("top")
	if err != nil {
		t.Fatal(err)
	}
	gen, err := b.HandleByName(root, "genblk1")
	if err != nil {
		t.Fatalf("HandleByName(genblk1): %v", err)
	}
	if gen.Type() != gpi.GenArray {
		t.Errorf("type = %s, want GPI_GENARRAY", gen.Type())
	}
	if gen.Raw() != root.Raw() {
		t.Error("substitution should alias the parent's reference")
	}
}

func TestMultiDimensionalArray(t *testing.T) {
	s := vpitest.New()
	top := s.AddModule(0, "top")
	s.AddArray(top, "mem", [2]int32{0, 1}, [2]int32{0, 2})
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			s.AddReg(top, fmt.Sprintf("mem[%d][%d]", i, j), 8)
		}
	}

	b := newBridge(s)
	root, err := b.RootHandle("top")
	if err != nil {
		t.Fatal(err)
	}

	mem, err := b.HandleByName(root, "mem")
	if err != nil {
		t.Fatalf("HandleByName(mem): %v", err)
	}
	if mem.Type() != gpi.Array {
		t.Fatalf("type = %s, want GPI_ARRAY", mem.Type())
	}
	if mem.NumElems() != 2 {
		t.Errorf("outer elems = %d, want 2", mem.NumElems())
	}

	row, err := b.HandleByIndex(mem, 0)
	if err != nil {
		t.Fatalf("HandleByIndex(0): %v", err)
	}
	if row.Type() != gpi.Array {
		t.Fatalf("row type = %s, want GPI_ARRAY", row.Type())
	}
	// The element count comes from the dimension the pseudo-name selects,
	// not from the simulator's total size.
	if row.NumElems() != 3 {
		t.Errorf("row elems = %d, want 3", row.NumElems())
	}

	word, err := b.HandleByIndex(row, 1)
	if err != nil {
		t.Fatalf("HandleByIndex(row, 1): %v", err)
	}
	if word.Type() != gpi.LogicArray {
		t.Errorf("word type = %s, want GPI_LOGIC_ARRAY", word.Type())
	}
	if word.FullName() != "top.mem[0][1]" {
		t.Errorf("word full name = %q", word.FullName())
	}

	if _, err := b.HandleByIndex(mem, 5); !errors.Is(err, gpi.ErrOutOfRange) {
		t.Errorf("out-of-range err = %v, want ErrOutOfRange", err)
	}
}

func TestIterateObjects(t *testing.T) {
	s, _ := buildDesign()
	b := newBridge(s)
	root, err := b.RootHandle("top")
	if err != nil {
		t.Fatal(err)
	}

	it, err := b.NewIterator(root, gpi.IterObjects)
	if err != nil {
		t.Fatalf("NewIterator: %v", err)
	}

	found := map[string]gpi.ObjType{}
	for {
		h, err := it.Next()
		if errors.Is(err, gpi.ErrIterEnd) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		found[h.Name()] = h.Type()
	}

	want := map[string]gpi.ObjType{
		"clk":   gpi.Logic,
		"data":  gpi.LogicArray,
		"count": gpi.Integer,
		"msg":   gpi.String,
		"WIDTH": gpi.LogicArray,
		"sub":   gpi.Module,
	}
	if len(found) != len(want) {
		t.Errorf("found %d children, want %d: %v", len(found), len(want), found)
	}
	for name, typ := range want {
		if found[name] != typ {
			t.Errorf("%s: type = %s, want %s", name, found[name], typ)
		}
	}
}

func TestIterateTypeMismatch(t *testing.T) {
	s, _ := buildDesign()
	b := newBridge(s)
	root, _ := b.RootHandle("top")
	clk, err := b.HandleByName(root, "clk")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.NewIterator(clk, gpi.IterObjects); !errors.Is(err, gpi.ErrTypeMismatch) {
		t.Errorf("err = %v, want ErrTypeMismatch", err)
	}
}

func TestIteratePackageScopes(t *testing.T) {
	s, _ := buildDesign()
	s.AddPackage("params")
	b := newBridge(s)
	root, _ := b.RootHandle("top")

	it, err := b.NewIterator(root, gpi.IterPackageScopes)
	if err != nil {
		t.Fatal(err)
	}
	pkg, err := it.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if pkg.Type() != gpi.Package {
		t.Errorf("type = %s, want GPI_PACKAGE", pkg.Type())
	}
	if pkg.FullName() != "params::" {
		t.Errorf("full name = %q, want params::", pkg.FullName())
	}
	if _, err := it.Next(); !errors.Is(err, gpi.ErrIterEnd) {
		t.Errorf("err = %v, want ErrIterEnd", err)
	}
}
