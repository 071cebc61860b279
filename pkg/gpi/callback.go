/*
 * MIT License
 * Copyright (c) 2026 Crrow
 */

package gpi

import (
	"fmt"

	"github.com/crrow/pygpi/pkg/vpi"
)

// CallbackKind tags the variant of a callback record. Per-kind data lives in
// the record itself; the dispatcher and lifecycle methods match on the tag.
type CallbackKind int32

const (
	KindStartup CallbackKind = iota
	KindTimed
	KindValueChange
	KindNextSimTime
	KindReadWrite
	KindReadOnly
)

func (k CallbackKind) String() string {
	switch k {
	case KindStartup:
		return "startup"
	case KindTimed:
		return "timed"
	case KindValueChange:
		return "value-change"
	case KindNextSimTime:
		return "next-sim-time"
	case KindReadWrite:
		return "read-write-synch"
	case KindReadOnly:
		return "read-only-synch"
	default:
		return "unknown"
	}
}

// CbState is the lifecycle state of a callback record.
//
// A Primed record holds exactly one live registration token; a Free record
// holds none. Delete is only reachable from Call (deregistration inside the
// record's own handler) and directs the dispatcher to destroy the record.
type CbState int32

const (
	StateFree   CbState = 0
	StatePrimed CbState = 1
	StateCall   CbState = 2
	StateDelete CbState = 4
)

// Func is the user function attached to a callback record. The data value
// registered alongside it is passed back verbatim.
type Func func(data any) int32

// Callback is one pending or primed event hook.
type Callback struct {
	bridge *Bridge
	kind   CallbackKind
	state  CbState
	reg    vpi.Handle // registration token, valid only in Primed

	fn   Func
	data any

	// Kind-specific data.
	delay    uint64  // Timed: relative simulator-time ticks
	signal   *Signal // ValueChange: observed signal, non-owning
	required string  // ValueChange: post-change compare target
}

// State reports the record's lifecycle state.
func (cb *Callback) State() CbState { return cb.state }

// Kind reports the record's variant tag.
func (cb *Callback) Kind() CallbackKind { return cb.kind }

// Data returns the opaque user data registered with the record.
func (cb *Callback) Data() any { return cb.data }

// setUser attaches the user function and data. Must happen before arming a
// record whose event can fire immediately.
func (cb *Callback) setUser(fn Func, data any) {
	if fn == nil {
		cb.bridge.log.Warn("callback registered with a nil user function")
	}
	cb.fn = fn
	cb.data = data
}

// arm populates the registration descriptor for the record's kind and
// submits it. On success the record transitions to Primed and holds the
// simulator-issued token.
func (cb *Callback) arm() error {
	data := vpi.CbData{
		Rtn: func(*vpi.CbData) int32 { return cb.bridge.handleCallbackEvent(cb) },
	}

	switch cb.kind {
	case KindStartup:
		data.Reason = vpi.CbStartOfSimulation
		data.Time = &vpi.Time{Type: vpi.SimTime}
	case KindTimed:
		t := &vpi.Time{Type: vpi.SimTime}
		t.SetUint64(cb.delay)
		data.Reason = vpi.CbAfterDelay
		data.Time = t
	case KindValueChange:
		if cb.signal == nil {
			return fmt.Errorf("value-change record lost its signal: %w", ErrRegistration)
		}
		data.Reason = vpi.CbValueChange
		data.Obj = cb.signal.hdl
		data.Time = &vpi.Time{Type: vpi.SuppressTime}
		data.ValueFmt = vpi.IntVal
	case KindNextSimTime:
		data.Reason = vpi.CbNextSimTime
		data.Time = &vpi.Time{Type: vpi.SimTime}
	case KindReadWrite:
		data.Reason = vpi.CbReadWriteSynch
		data.Time = &vpi.Time{Type: vpi.SimTime}
	case KindReadOnly:
		data.Reason = vpi.CbReadOnlySynch
		data.Time = &vpi.Time{Type: vpi.SimTime}
	default:
		return fmt.Errorf("unknown callback kind %d: %w", cb.kind, ErrRegistration)
	}

	h := cb.bridge.client.RegisterCb(&data)
	if h == 0 {
		return fmt.Errorf("arm %s callback: %w", cb.kind, ErrRegistration)
	}
	cb.reg = h
	cb.state = StatePrimed
	return nil
}

// run performs the kind-specific post-fire check and invokes the user
// function.
func (cb *Callback) run() {
	if cb.kind == KindValueChange {
		cb.runValueChange()
		return
	}
	if cb.fn != nil {
		cb.fn(cb.data)
	}
}

// runValueChange applies the edge filter: the required value is compared
// against the post-change binary string, "X" accepting any change. On a miss
// the record is silently re-armed without touching the user function.
func (cb *Callback) runValueChange() {
	if cb.signal == nil {
		cb.bridge.log.Error("value-change record fired without a signal, dropping")
		return
	}

	pass := cb.required == "X"
	if !pass {
		current, err := cb.signal.ValueBinStr()
		if err != nil {
			cb.bridge.log.Errorf("value-change edge check failed: %v", err)
			return
		}
		pass = current == cb.required
	}

	if !pass {
		if err := cb.cleanup(); err != nil {
			cb.bridge.log.Errorf("value-change re-arm cleanup failed: %v", err)
			return
		}
		if err := cb.arm(); err != nil {
			cb.bridge.log.Errorf("value-change re-arm failed: %v", err)
		}
		return
	}

	if cb.fn != nil {
		cb.fn(cb.data)
	}
}

// cleanup releases the registration and returns the record to Free.
//
// Non-recurring kinds were already removed by the simulator before the
// handler ran, so the remove call only happens when the record is still
// Primed (deregistration ahead of the event). Value-change registrations are
// recurring and must be removed explicitly whenever the record is not Free.
func (cb *Callback) cleanup() error {
	if cb.state == StateFree {
		return nil
	}

	if cb.kind == KindValueChange {
		if cb.reg != 0 && !cb.bridge.client.RemoveCb(cb.reg) {
			return fmt.Errorf("unable to remove value-change callback")
		}
		cb.reg = 0
		cb.state = StateFree
		return nil
	}

	if cb.state == StatePrimed {
		if cb.reg == 0 {
			return fmt.Errorf("primed %s record holds no registration", cb.kind)
		}
		if !cb.bridge.client.RemoveCb(cb.reg) {
			return fmt.Errorf("unable to remove %s callback", cb.kind)
		}
	}

	cb.reg = 0
	cb.state = StateFree
	return nil
}

// destroy drops the record's references so the envelope and signal can go
// away. The phase singletons survive destroy and are re-populated on the
// next registration.
func (cb *Callback) destroy() {
	cb.fn = nil
	cb.data = nil
	cb.signal = nil
	cb.required = ""
}

// Deregister cancels the record. It is idempotent on Free records. Called
// from inside the record's own handler it marks the record Delete, which
// prevents re-arm and lets the dispatcher destroy it after the handler
// returns.
func (cb *Callback) Deregister() {
	if cb == nil || cb.state == StateFree {
		return
	}
	if cb.state == StateCall {
		cb.state = StateDelete
		return
	}
	if err := cb.cleanup(); err != nil {
		cb.bridge.log.Errorf("deregister: %v", err)
	}
	cb.destroy()
}
