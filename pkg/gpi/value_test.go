/*
 * MIT License
 * Copyright (c) 2026 Crrow
 */

package gpi_test

import (
	"testing"

	"github.com/crrow/pygpi/pkg/gpi"
	"github.com/crrow/pygpi/pkg/vpi"
	"github.com/crrow/pygpi/pkg/vpitest"
)

func TestReadBinStr(t *testing.T) {
	s, _ := buildDesign()
	b := newBridge(s)
	root, _ := b.RootHandle("top")
	data := lookupSignal(t, b, root, "data")

	if err := s.Poke("top.data", "1010x1z0"); err != nil {
		t.Fatal(err)
	}
	v, err := data.ValueBinStr()
	if err != nil {
		t.Fatal(err)
	}
	// Lowercase metalogical characters are normalized at the boundary.
	if v != "1010X1Z0" {
		t.Errorf("binstr = %q, want 1010X1Z0", v)
	}
}

func TestNoDelayWrite(t *testing.T) {
	s, _ := buildDesign()
	b := newBridge(s)
	root, _ := b.RootHandle("top")
	data := lookupSignal(t, b, root, "data")

	if err := data.SetInt(gpi.NoDelay, 0xA5); err != nil {
		t.Fatal(err)
	}
	if got := s.BinValue("top.data"); got != "10100101" {
		t.Errorf("value = %q, want 10100101", got)
	}
}

func TestDepositIsScheduled(t *testing.T) {
	s, _ := buildDesign()
	b := newBridge(s)
	root, _ := b.RootHandle("top")
	data := lookupSignal(t, b, root, "data")

	if err := data.SetInt(gpi.Deposit, 3); err != nil {
		t.Fatal(err)
	}
	if got := s.BinValue("top.data"); got == "00000011" {
		t.Error("inertial write should not be visible before the scheduler runs")
	}
	s.Run()
	if got := s.BinValue("top.data"); got != "00000011" {
		t.Errorf("value after run = %q, want 00000011", got)
	}
}

func TestForceRelease(t *testing.T) {
	s, _ := buildDesign()
	b := newBridge(s)
	root, _ := b.RootHandle("top")
	data := lookupSignal(t, b, root, "data")

	if err := s.Poke("top.data", "01100110"); err != nil {
		t.Fatal(err)
	}
	if err := data.SetBinStr(gpi.Force, "10101010"); err != nil {
		t.Fatal(err)
	}
	if got := s.BinValue("top.data"); got != "10101010" {
		t.Fatalf("forced value = %q, want 10101010", got)
	}

	// A driver write during the force is swallowed.
	if err := s.Poke("top.data", "00010001"); err != nil {
		t.Fatal(err)
	}
	if got := s.BinValue("top.data"); got != "10101010" {
		t.Fatalf("value under force = %q, want 10101010", got)
	}

	if err := data.SetBinStr(gpi.Release, ""); err != nil {
		t.Fatal(err)
	}
	// The release payload is the value read back just before the release.
	if got := s.LastRelease(); got != "10101010" {
		t.Errorf("release payload = %q, want 10101010", got)
	}
	// The driver-determined value resumes.
	if got := s.BinValue("top.data"); got != "00010001" {
		t.Errorf("value after release = %q, want 00010001", got)
	}
	if s.Forced("top.data") {
		t.Error("signal still marked forced after release")
	}
}

func TestStringDepositQuirk(t *testing.T) {
	s := vpitest.New()
	s.SetQuirks(vpi.QuirkNoInertialStrings)
	top := s.AddModule(0, "top")
	s.AddStringVar(top, "msg")

	b := newBridge(s)
	root, _ := b.RootHandle("top")
	msg := lookupSignal(t, b, root, "msg")

	// On simulators that reject inertial writes to string variables the
	// deposit must degrade to an immediate write.
	if err := msg.SetBinStr(gpi.Deposit, "0101"); err != nil {
		t.Fatal(err)
	}
	if got := s.BinValue("top.msg"); got != "0101" {
		t.Errorf("value = %q, want 0101 applied immediately", got)
	}
}

func TestSetReal(t *testing.T) {
	s := vpitest.New()
	top := s.AddModule(0, "top")
	s.AddRealVar(top, "r")

	b := newBridge(s)
	root, _ := b.RootHandle("top")
	r := lookupSignal(t, b, root, "r")

	if err := r.SetReal(gpi.NoDelay, 2.5); err != nil {
		t.Fatal(err)
	}
	v, err := s.GetValue(r.Raw(), vpi.RealVal)
	if err != nil {
		t.Fatal(err)
	}
	if v.Real != 2.5 {
		t.Errorf("real value = %v, want 2.5", v.Real)
	}
}
