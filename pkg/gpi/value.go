/*
 * MIT License
 * Copyright (c) 2026 Crrow
 */

package gpi

import (
	"fmt"

	"github.com/crrow/pygpi/pkg/binstr"
	"github.com/crrow/pygpi/pkg/vpi"
)

// ValueBinStr reads the signal as a binary string, one element per
// character, normalized to uppercase at the boundary.
func (s *Signal) ValueBinStr() (string, error) {
	v, err := s.bridge.client.GetValue(s.hdl, vpi.BinStrVal)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", s.fqName, err)
	}
	return binstr.Normalize(v.Str), nil
}

// ValueInt reads the signal as a 32-bit signed integer.
func (s *Signal) ValueInt() (int32, error) {
	v, err := s.bridge.client.GetValue(s.hdl, vpi.IntVal)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", s.fqName, err)
	}
	return v.Int, nil
}

// ValueReal reads the signal as a double.
func (s *Signal) ValueReal() (float64, error) {
	v, err := s.bridge.client.GetValue(s.hdl, vpi.RealVal)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", s.fqName, err)
	}
	return v.Real, nil
}

// SetInt writes a 32-bit signed integer value.
func (s *Signal) SetInt(action SetAction, value int32) error {
	return s.setValue(vpi.Value{Format: vpi.IntVal, Int: value}, action)
}

// SetReal writes a double value.
func (s *Signal) SetReal(action SetAction, value float64) error {
	return s.setValue(vpi.Value{Format: vpi.RealVal, Real: value}, action)
}

// SetBinStr writes a binary string value.
func (s *Signal) SetBinStr(action SetAction, value string) error {
	return s.setValue(vpi.Value{Format: vpi.BinStrVal, Str: value}, action)
}

// setValue maps the action onto the simulator's put flags.
//
// Delay-carrying flags always travel with an explicit zero sim time;
// NoDelay is the only write submitted with a nil time.
func (s *Signal) setValue(v vpi.Value, action SetAction) error {
	c := s.bridge.client
	flag := int32(-1)

	switch action {
	case Deposit:
		if c.Quirks().Has(vpi.QuirkNoInertialStrings) &&
			c.Get(vpi.PropType, s.hdl) == vpi.TypeStringVar {
			// Questa and Xcelium reject inertial-delay writes to
			// string variables.
			flag = vpi.NoDelay
		} else {
			flag = vpi.InertialDelay
		}
	case Force:
		flag = vpi.ForceFlag
	case Release:
		// The simulator wants the current value as the release
		// payload.
		cur, err := c.GetValue(s.hdl, v.Format)
		if err != nil {
			return fmt.Errorf("read %s before release: %w", s.fqName, err)
		}
		v = cur
		flag = vpi.ReleaseFlag
	case NoDelay:
		flag = vpi.NoDelay
	default:
		return fmt.Errorf("unknown set action %d: %w", action, ErrTypeMismatch)
	}

	if flag == vpi.NoDelay {
		return c.PutValue(s.hdl, v, nil, flag)
	}

	t := &vpi.Time{Type: vpi.SimTime}
	return c.PutValue(s.hdl, v, t, flag)
}
