/*
 * MIT License
 * Copyright (c) 2026 Crrow
 */

// Package binstr handles the binary-string value encoding used across the
// simulator boundary: one character per element, drawn from the Verilog
// four-state alphabet plus the strength digits some simulators emit.
package binstr

import (
	"fmt"
	"strings"
)

// Normalize uppercases a simulator-produced binary string. Simulators
// disagree about case (`x` vs `X`); the bridge presents uppercase only.
func Normalize(s string) string {
	return strings.ToUpper(s)
}

// Validate checks that s is a plausible binary string of the given width.
// width <= 0 skips the length check.
func Validate(s string, width int) error {
	if width > 0 && len(s) != width {
		return fmt.Errorf("binary string %q has %d elements, want %d", s, len(s), width)
	}
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '0', '1', 'x', 'X', 'z', 'Z', 'u', 'U', 'w', 'W', 'l', 'L', 'h', 'H', '-':
		default:
			return fmt.Errorf("binary string %q has invalid element %q at %d", s, s[i], i)
		}
	}
	return nil
}

// Known reports whether every element is a defined 0 or 1.
func Known(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != '0' && s[i] != '1' {
			return false
		}
	}
	return len(s) > 0
}

// FromInt renders the low width bits of v, most significant element first.
func FromInt(v int32, width int) string {
	if width <= 0 {
		return ""
	}
	b := make([]byte, width)
	u := uint32(v)
	for i := width - 1; i >= 0; i-- {
		b[i] = '0' + byte(u&1)
		u >>= 1
	}
	return string(b)
}

// ToInt folds a fully-defined binary string into a 32-bit integer.
// Undefined elements (X, Z, ...) read as 0, matching simulator vpiIntVal
// conversion.
func ToInt(s string) int32 {
	var u uint32
	for i := 0; i < len(s); i++ {
		u <<= 1
		if s[i] == '1' {
			u |= 1
		}
	}
	return int32(u)
}
