/*
 * MIT License
 * Copyright (c) 2026 Crrow
 */

package gpi

// handleCallbackEvent is the single entry point for every fired callback.
//
// The engine is single-threaded on the simulator thread, but delivery is not
// flat: a user function that writes a signal with NoDelay can make the
// simulator deliver a value-change event synchronously, inside the put call.
// While a dispatch is in flight, nested deliveries are queued and drained in
// FIFO order after the outer handler returns, so user functions always run
// one at a time and in delivery order.
func (b *Bridge) handleCallbackEvent(cb *Callback) int32 {
	if b.reacting {
		b.queue = append(b.queue, cb)
		return 0
	}

	b.reacting = true
	// Cleared on the way out even if a handler panics; a wedged flag would
	// queue every later delivery forever.
	defer func() {
		b.queue = b.queue[:0]
		b.reacting = false
	}()

	ret := b.dispatch(cb)

	for len(b.queue) > 0 {
		next := b.queue[0]
		b.queue = b.queue[1:]
		b.dispatch(next)
	}
	return ret
}

// dispatch runs one callback through its lifecycle.
//
// A record that is not Primed when its event arrives is a stale delivery:
// some simulators fire a removed registration one more time. Such a record
// is cleaned up without running the user function.
func (b *Bridge) dispatch(cb *Callback) int32 {
	b.toUser()
	defer b.toSimulator()

	if cb == nil {
		b.log.Error("callback fired with no record attached, dropping")
		return -1
	}

	if cb.state != StatePrimed {
		b.log.Debugf("dispatch: %s record in state %d, cleaning up stale delivery", cb.kind, cb.state)
		if err := cb.cleanup(); err != nil {
			b.log.Errorf("stale %s cleanup: %v", cb.kind, err)
		}
		cb.destroy()
		return 0
	}

	cb.state = StateCall
	cb.run()

	// A value-change miss re-armed the record back to Primed; anything else
	// is finished (Call) or was deregistered from inside its own handler
	// (Delete) and gets torn down here.
	if cb.state != StatePrimed {
		if err := cb.cleanup(); err != nil {
			b.log.Errorf("post-run %s cleanup: %v", cb.kind, err)
		}
		cb.destroy()
	}
	return 0
}

// toUser and toSimulator bracket every excursion into user code. They exist
// as explicit, paired markers so the runtime layer can hang thread-state
// transitions off them; at this level they only trace.
func (b *Bridge) toUser() {
	b.log.Debug("passing control to the user runtime")
}

func (b *Bridge) toSimulator() {
	b.log.Debug("returning control to the simulator")
}
