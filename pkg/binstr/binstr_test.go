/*
 * MIT License
 * Copyright (c) 2026 Crrow
 */

package binstr

import "testing"

func TestNormalizeUppercases(t *testing.T) {
	if got := Normalize("01xz"); got != "01XZ" {
		t.Fatalf("Normalize: got %q want %q", got, "01XZ")
	}
	if got := Normalize("01XZ"); got != "01XZ" {
		t.Fatalf("Normalize should be idempotent, got %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		width   int
		wantErr bool
	}{
		{name: "defined", in: "0101", width: 4},
		{name: "four state", in: "1xZ0", width: 4},
		{name: "strength digits", in: "uwlh", width: 4},
		{name: "wrong width", in: "01", width: 4, wantErr: true},
		{name: "bad element", in: "01q1", width: 4, wantErr: true},
		{name: "width unchecked", in: "1", width: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.in, tt.width)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate(%q, %d) error = %v, wantErr %v", tt.in, tt.width, err, tt.wantErr)
			}
		})
	}
}

func TestIntRoundTrip(t *testing.T) {
	tests := []struct {
		v     int32
		width int
		want  string
	}{
		{v: 0, width: 4, want: "0000"},
		{v: 5, width: 4, want: "0101"},
		{v: 10, width: 4, want: "1010"},
		{v: -1, width: 8, want: "11111111"},
	}

	for _, tt := range tests {
		got := FromInt(tt.v, tt.width)
		if got != tt.want {
			t.Fatalf("FromInt(%d, %d) = %q, want %q", tt.v, tt.width, got, tt.want)
		}
		if back := ToInt(got); uint32(back) != uint32(tt.v)&(1<<uint(tt.width)-1) {
			t.Fatalf("ToInt(%q) = %d, want low bits of %d", got, back, tt.v)
		}
	}
}

func TestToIntUndefinedReadsZero(t *testing.T) {
	if got := ToInt("1x1z"); got != 0b1010 {
		t.Fatalf("ToInt(\"1x1z\") = %d, want %d", got, 0b1010)
	}
}

func TestKnown(t *testing.T) {
	if Known("10x1") {
		t.Fatal("Known should reject undefined elements")
	}
	if !Known("1010") {
		t.Fatal("Known should accept fully defined strings")
	}
	if Known("") {
		t.Fatal("Known should reject the empty string")
	}
}
