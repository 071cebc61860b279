/*
 * MIT License
 * Copyright (c) 2026 Crrow
 */

package gpi_test

import (
	"errors"
	"testing"

	"github.com/crrow/pygpi/pkg/gpi"
)

func lookupSignal(t *testing.T, b *gpi.Bridge, root gpi.Handle, name string) *gpi.Signal {
	t.Helper()
	h, err := b.HandleByName(root, name)
	if err != nil {
		t.Fatalf("HandleByName(%s): %v", name, err)
	}
	sig, ok := h.(*gpi.Signal)
	if !ok {
		t.Fatalf("%s is a %T, want *gpi.Signal", name, h)
	}
	return sig
}

func TestTimedCallbackOrdering(t *testing.T) {
	s, _ := buildDesign()
	b := newBridge(s)

	var order []string
	a, err := b.RegisterTimedCallback(10, func(any) int32 {
		order = append(order, "A")
		return 0
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	bb, err := b.RegisterTimedCallback(5, func(any) int32 {
		order = append(order, "B")
		return 0
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	s.Run()

	if len(order) != 2 || order[0] != "B" || order[1] != "A" {
		t.Errorf("firing order = %v, want [B A]", order)
	}
	if a.State() != gpi.StateFree || bb.State() != gpi.StateFree {
		t.Errorf("states = %d/%d, want both Free", a.State(), bb.State())
	}
	if s.Now() != 10 {
		t.Errorf("final time = %d, want 10", s.Now())
	}
}

func TestCallbackStateTrajectory(t *testing.T) {
	s, _ := buildDesign()
	b := newBridge(s)

	var cb *gpi.Callback
	var seen gpi.CbState
	var err error
	cb, err = b.RegisterTimedCallback(1, func(any) int32 {
		seen = cb.State()
		return 0
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if cb.State() != gpi.StatePrimed {
		t.Errorf("state after register = %d, want Primed", cb.State())
	}
	s.Run()
	if seen != gpi.StateCall {
		t.Errorf("state inside handler = %d, want Call", seen)
	}
	if cb.State() != gpi.StateFree {
		t.Errorf("state after fire = %d, want Free", cb.State())
	}
}

func TestReentrantValueChange(t *testing.T) {
	s, _ := buildDesign()
	b := newBridge(s)
	root, _ := b.RootHandle("top")
	clk := lookupSignal(t, b, root, "clk")

	if err := s.Poke("top.clk", "1"); err != nil {
		t.Fatal(err)
	}

	var order []string
	_, err := b.RegisterValueChangeCallback(clk, gpi.ValueChange, func(any) int32 {
		order = append(order, "r1:start")
		// A no-delay write from inside the handler makes the fake
		// deliver the change synchronously, like Icarus does.
		if err := clk.SetInt(gpi.NoDelay, 1); err != nil {
			t.Errorf("nested write: %v", err)
		}
		order = append(order, "r1:end")
		return 0
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = b.RegisterValueChangeCallback(clk, gpi.ValueChange, func(any) int32 {
		v, err := clk.ValueBinStr()
		if err != nil {
			t.Errorf("read in r2: %v", err)
		}
		order = append(order, "r2:"+v)
		return 0
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Poke("top.clk", "0"); err != nil {
		t.Fatal(err)
	}

	// r1 must run to completion before r2 runs at all, and r2 must see
	// the value written inside r1, exactly once.
	want := []string{"r1:start", "r1:end", "r2:1"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestRisingEdgeFilter(t *testing.T) {
	s, _ := buildDesign()
	b := newBridge(s)
	root, _ := b.RootHandle("top")
	clk := lookupSignal(t, b, root, "clk")

	if err := s.Poke("top.clk", "0"); err != nil {
		t.Fatal(err)
	}

	// A matched edge consumes the record, so the handler re-registers the
	// way the runtime does when awaiting the next edge.
	fires := 0
	var register func()
	register = func() {
		_, err := b.RegisterValueChangeCallback(clk, gpi.Rising, func(any) int32 {
			fires++
			register()
			return 0
		}, nil)
		if err != nil {
			t.Fatal(err)
		}
	}
	register()

	for _, v := range []string{"0", "0", "1", "1", "0", "1"} {
		if err := s.Poke("top.clk", v); err != nil {
			t.Fatal(err)
		}
	}

	if fires != 2 {
		t.Errorf("rising edge fired %d times, want 2", fires)
	}
}

func TestDeregister(t *testing.T) {
	t.Run("before fire", func(t *testing.T) {
		s, _ := buildDesign()
		b := newBridge(s)

		fired := false
		cb, err := b.RegisterTimedCallback(5, func(any) int32 {
			fired = true
			return 0
		}, nil)
		if err != nil {
			t.Fatal(err)
		}
		cb.Deregister()
		if cb.State() != gpi.StateFree {
			t.Errorf("state = %d, want Free", cb.State())
		}
		cb.Deregister() // idempotent on Free

		s.Run()
		if fired {
			t.Error("deregistered callback fired")
		}
	})

	t.Run("inside own handler", func(t *testing.T) {
		s, _ := buildDesign()
		b := newBridge(s)

		var cb *gpi.Callback
		calls := 0
		var err error
		cb, err = b.RegisterTimedCallback(1, func(any) int32 {
			calls++
			cb.Deregister()
			return 0
		}, nil)
		if err != nil {
			t.Fatal(err)
		}

		s.Run()
		if calls != 1 {
			t.Errorf("handler ran %d times, want 1", calls)
		}
		if cb.State() != gpi.StateFree {
			t.Errorf("state = %d, want Free", cb.State())
		}
	})

	t.Run("value change before event", func(t *testing.T) {
		s, _ := buildDesign()
		b := newBridge(s)
		root, _ := b.RootHandle("top")
		clk := lookupSignal(t, b, root, "clk")

		fired := false
		cb, err := b.RegisterValueChangeCallback(clk, gpi.ValueChange, func(any) int32 {
			fired = true
			return 0
		}, nil)
		if err != nil {
			t.Fatal(err)
		}
		cb.Deregister()

		if err := s.Poke("top.clk", "1"); err != nil {
			t.Fatal(err)
		}
		if fired {
			t.Error("deregistered observer fired")
		}
	})
}

func TestPhaseOrdering(t *testing.T) {
	s, _ := buildDesign()
	b := newBridge(s)

	var order []string
	note := func(tag string) gpi.Func {
		return func(any) int32 {
			order = append(order, tag)
			return 0
		}
	}

	if _, err := b.RegisterNextTimeCallback(note("next"), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := b.RegisterTimedCallback(5, note("timed"), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := b.RegisterReadWriteCallback(note("rw"), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := b.RegisterReadOnlyCallback(note("ro"), nil); err != nil {
		t.Fatal(err)
	}

	s.Run()

	want := []string{"next", "timed", "rw", "ro"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestPhaseSingleRegistration(t *testing.T) {
	s, _ := buildDesign()
	b := newBridge(s)

	var order []string
	if _, err := b.RegisterReadOnlyCallback(func(any) int32 {
		order = append(order, "first")
		return 0
	}, nil); err != nil {
		t.Fatal(err)
	}

	// The slot is occupied until the hook fires; a second arming must be
	// rejected, not overwrite the first.
	if _, err := b.RegisterReadOnlyCallback(func(any) int32 {
		order = append(order, "second")
		return 0
	}, nil); !errors.Is(err, gpi.ErrRegistration) {
		t.Fatalf("second arming error = %v, want ErrRegistration", err)
	}

	if _, err := b.RegisterTimedCallback(1, func(any) int32 { return 0 }, nil); err != nil {
		t.Fatal(err)
	}
	s.Run()

	if len(order) != 1 || order[0] != "first" {
		t.Errorf("fired = %v, want [first]", order)
	}

	// A fired hook frees the slot for the next waiter.
	if _, err := b.RegisterReadOnlyCallback(func(any) int32 {
		order = append(order, "again")
		return 0
	}, nil); err != nil {
		t.Fatalf("re-arm after fire: %v", err)
	}
	if _, err := b.RegisterTimedCallback(1, func(any) int32 { return 0 }, nil); err != nil {
		t.Fatal(err)
	}
	s.Run()

	if len(order) != 2 || order[1] != "again" {
		t.Errorf("fired = %v, want [first again]", order)
	}
}

func TestHandlerPanicReleasesDispatch(t *testing.T) {
	s, _ := buildDesign()
	b := newBridge(s)

	if _, err := b.RegisterTimedCallback(1, func(any) int32 {
		panic("handler blew up")
	}, nil); err != nil {
		t.Fatal(err)
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Error("handler panic did not propagate")
			}
		}()
		s.Run()
	}()

	// The dispatcher must not stay latched in its re-entrancy guard: a
	// later delivery runs immediately instead of being queued forever.
	fired := false
	if _, err := b.RegisterTimedCallback(1, func(any) int32 {
		fired = true
		return 0
	}, nil); err != nil {
		t.Fatal(err)
	}
	s.Run()

	if !fired {
		t.Error("delivery after a panicking handler never ran")
	}
}

func TestStartupCallback(t *testing.T) {
	s, _ := buildDesign()
	b := newBridge(s)

	fired := 0
	cb, err := b.RegisterStartupCallback(func(any) int32 {
		fired++
		return 0
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	s.Start()
	if fired != 1 {
		t.Errorf("startup fired %d times, want 1", fired)
	}
	if cb.State() != gpi.StateFree {
		t.Errorf("state = %d, want Free", cb.State())
	}
}

func TestTimedRegistrationInsideHandler(t *testing.T) {
	s, _ := buildDesign()
	b := newBridge(s)

	var times []uint64
	if _, err := b.RegisterTimedCallback(3, func(any) int32 {
		times = append(times, s.Now())
		if _, err := b.RegisterTimedCallback(4, func(any) int32 {
			times = append(times, s.Now())
			return 0
		}, nil); err != nil {
			t.Errorf("nested register: %v", err)
		}
		return 0
	}, nil); err != nil {
		t.Fatal(err)
	}

	s.Run()
	if len(times) != 2 || times[0] != 3 || times[1] != 7 {
		t.Errorf("fire times = %v, want [3 7]", times)
	}
}
