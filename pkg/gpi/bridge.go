/*
 * MIT License
 * Copyright (c) 2026 Crrow
 */

package gpi

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/crrow/pygpi/pkg/vpi"
)

// Bridge is the per-simulation engine instance. It owns the callback
// dispatch state and the phase-synchronization singletons, and caches the
// simulator identity read at construction.
//
// Everything on a Bridge runs on the simulator thread; none of it is safe
// for concurrent use.
type Bridge struct {
	client vpi.Client
	log    *zap.SugaredLogger

	// Re-entrant delivery protection, see handleCallbackEvent.
	reacting bool
	queue    []*Callback

	// One record per synchronization phase. At most one registration per
	// phase is live at a time; the runtime funnels all waiters through it.
	nextTime  *Callback
	readWrite *Callback
	readOnly  *Callback

	argv    []string
	product string
	version string
}

// New builds a Bridge over the given client and reads the simulator
// identity once.
func New(client vpi.Client, log *zap.SugaredLogger) *Bridge {
	b := &Bridge{
		client:  client,
		log:     log,
		product: "unknown",
		version: "unknown",
	}
	b.nextTime = &Callback{bridge: b, kind: KindNextSimTime}
	b.readWrite = &Callback{bridge: b, kind: KindReadWrite}
	b.readOnly = &Callback{bridge: b, kind: KindReadOnly}

	if info, ok := client.VlogInfo(); !ok {
		log.Warn("unable to read simulator identity")
	} else {
		b.argv = info.Argv
		b.product = info.Product
		b.version = info.Version
	}
	return b
}

// Product reports the simulator product string, or "unknown".
func (b *Bridge) Product() string { return b.product }

// Version reports the simulator version string, or "unknown".
func (b *Bridge) Version() string { return b.version }

// Argv returns the simulator's command line.
func (b *Bridge) Argv() []string { return b.argv }

// SimTime reads the current simulation time in simulator time units, split
// into high and low halves the way the runtime consumes it.
func (b *Bridge) SimTime() (high, low uint32) {
	var t vpi.Time
	t.Type = vpi.SimTime
	b.client.GetTime(0, &t)
	return t.High, t.Low
}

// Precision reports the simulator time precision as a power of ten.
func (b *Bridge) Precision() int32 {
	return b.client.Get(vpi.PropTimePrecision, 0)
}

// Stop asks the simulator to end the simulation.
func (b *Bridge) Stop() {
	b.client.Control(vpi.OpFinish)
}

// RegisterStartupCallback arms a one-shot hook for the start-of-simulation
// event.
func (b *Bridge) RegisterStartupCallback(fn Func, data any) (*Callback, error) {
	cb := &Callback{bridge: b, kind: KindStartup}
	cb.setUser(fn, data)
	if err := cb.arm(); err != nil {
		return nil, err
	}
	return cb, nil
}

// RegisterTimedCallback arms a one-shot hook to fire after the given number
// of simulator time ticks.
func (b *Bridge) RegisterTimedCallback(ticks uint64, fn Func, data any) (*Callback, error) {
	cb := &Callback{bridge: b, kind: KindTimed, delay: ticks}
	cb.setUser(fn, data)
	if err := cb.arm(); err != nil {
		return nil, err
	}
	return cb, nil
}

// RegisterValueChangeCallback arms a recurring observer on sig that invokes
// fn once the signal changes to satisfy edge.
func (b *Bridge) RegisterValueChangeCallback(sig *Signal, edge Edge, fn Func, data any) (*Callback, error) {
	cb := &Callback{bridge: b, kind: KindValueChange, signal: sig}
	switch edge {
	case Rising:
		cb.required = "1"
	case Falling:
		cb.required = "0"
	default:
		cb.required = "X"
	}
	cb.setUser(fn, data)
	if err := cb.arm(); err != nil {
		return nil, err
	}
	return cb, nil
}

// RegisterNextTimeCallback arms the next-simulation-time phase hook.
func (b *Bridge) RegisterNextTimeCallback(fn Func, data any) (*Callback, error) {
	return b.armPhase(b.nextTime, fn, data)
}

// RegisterReadWriteCallback arms the end-of-delta read-write phase hook.
func (b *Bridge) RegisterReadWriteCallback(fn Func, data any) (*Callback, error) {
	return b.armPhase(b.readWrite, fn, data)
}

// RegisterReadOnlyCallback arms the read-only phase hook.
func (b *Bridge) RegisterReadOnlyCallback(fn Func, data any) (*Callback, error) {
	return b.armPhase(b.readOnly, fn, data)
}

func (b *Bridge) armPhase(cb *Callback, fn Func, data any) (*Callback, error) {
	// One live registration per phase: arming over a Primed record would
	// orphan its token and silently drop the earlier callable.
	if cb.state != StateFree {
		return nil, fmt.Errorf("%s hook already armed: %w", cb.kind, ErrRegistration)
	}
	cb.setUser(fn, data)
	if err := cb.arm(); err != nil {
		return nil, err
	}
	return cb, nil
}
