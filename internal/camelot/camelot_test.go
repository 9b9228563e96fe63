package camelot

import (
	"reflect"
	"testing"
)

func TestFromPitchClass(t *testing.T) {
	tests := []struct {
		pitchClass int
		mode       int
		want       Code
	}{
		{9, ModeMinor, "1A"},
		{0, ModeMajor, "1B"},
		{1, ModeMinor, "5A"},
		{4, ModeMajor, "5B"},
		{2, ModeMinor, "12A"},
		{5, ModeMajor, "12B"},
	}
	for _, tt := range tests {
		got, err := FromPitchClass(tt.pitchClass, tt.mode)
		if err != nil {
			t.Fatalf("FromPitchClass(%d, %d) error: %v", tt.pitchClass, tt.mode, err)
		}
		if got != tt.want {
			t.Errorf("FromPitchClass(%d, %d) = %s, want %s", tt.pitchClass, tt.mode, got, tt.want)
		}
	}

	if _, err := FromPitchClass(12, ModeMinor); err == nil {
		t.Error("expected error for pitch class 12")
	}
	if _, err := FromPitchClass(0, 2); err == nil {
		t.Error("expected error for mode 2")
	}
}

func TestFromKeyName(t *testing.T) {
	tests := []struct {
		input string
		want  Code
	}{
		{"A minor", "1A"},
		{"C major", "1B"},
		{"C# minor", "5A"},
		{"Db minor", "5A"},
		{"dbm", "5A"},
		{"F sharp minor", "4A"},
		{"E♭ major", "10B"},
		{"G", "2B"},
		{"8A", "8A"},
		{"12b", "12B"},
	}
	for _, tt := range tests {
		got, err := FromKeyName(tt.input)
		if err != nil {
			t.Fatalf("FromKeyName(%q) error: %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("FromKeyName(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}

	for _, bad := range []string{"", "H major", "13A", "notakey"} {
		if _, err := FromKeyName(bad); err == nil {
			t.Errorf("FromKeyName(%q) expected error", bad)
		}
	}
}

func TestKeyNameRoundTrip(t *testing.T) {
	if got := Code("5A").KeyName(); got != "C# minor" {
		t.Errorf("5A.KeyName() = %q, want %q", got, "C# minor")
	}
	if got := Code("1B").KeyName(); got != "C major" {
		t.Errorf("1B.KeyName() = %q, want %q", got, "C major")
	}
	if got := Code("99Z").KeyName(); got != "" {
		t.Errorf("invalid code KeyName() = %q, want empty", got)
	}

	// Every wheel entry must survive a name round trip.
	for pcMode, code := range wheel {
		back, err := FromKeyName(code.KeyName())
		if err != nil {
			t.Fatalf("round trip of %s (%v) failed: %v", code, pcMode, err)
		}
		if back != code {
			t.Errorf("round trip of %s gave %s", code, back)
		}
	}
}

func TestCompatible(t *testing.T) {
	got := Compatible("1A")
	want := []Code{"1A", "12A", "2A", "1B"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Compatible(1A) = %v, want %v", got, want)
	}

	got = Compatible("12B")
	want = []Code{"12B", "11B", "1B", "12A"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Compatible(12B) = %v, want %v", got, want)
	}

	if Compatible("0A") != nil {
		t.Error("Compatible(0A) should be nil")
	}
}

func TestCompatibilityScore(t *testing.T) {
	tests := []struct {
		a, b Code
		want float64
	}{
		{"1A", "1A", 1.0},
		{"1A", "2A", 0.8},
		{"1A", "12A", 0.8},
		{"1A", "1B", 0.8},
		{"1A", "3A", 0.5},
		{"1A", "4A", 0.3},
		{"1A", "5A", 0.0},
		{"1A", "3B", 0.3},
		{"1A", "bogus", 0.0},
	}
	for _, tt := range tests {
		if got := CompatibilityScore(tt.a, tt.b); got != tt.want {
			t.Errorf("CompatibilityScore(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
