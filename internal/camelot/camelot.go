// Package camelot maps musical keys to Camelot wheel codes and scores
// harmonic compatibility between codes.
package camelot

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Mode of a key: 0 = minor (A side), 1 = major (B side).
const (
	ModeMinor = 0
	ModeMajor = 1
)

// Code is a Camelot wheel position, "1A".."12B".
type Code string

// wheel is the fixed 24-entry bijection (pitch class, mode) -> code.
// Pitch classes follow the chromatic convention 0=C .. 11=B. Positions
// advance by fifths with A minor / C major at position 1, so the relative
// major/minor pair always shares a number across the A/B sides.
var wheel = map[[2]int]Code{
	{9, ModeMinor}: "1A", {0, ModeMajor}: "1B",
	{4, ModeMinor}: "2A", {7, ModeMajor}: "2B",
	{11, ModeMinor}: "3A", {2, ModeMajor}: "3B",
	{6, ModeMinor}: "4A", {9, ModeMajor}: "4B",
	{1, ModeMinor}: "5A", {4, ModeMajor}: "5B",
	{8, ModeMinor}: "6A", {11, ModeMajor}: "6B",
	{3, ModeMinor}: "7A", {6, ModeMajor}: "7B",
	{10, ModeMinor}: "8A", {1, ModeMajor}: "8B",
	{5, ModeMinor}: "9A", {8, ModeMajor}: "9B",
	{0, ModeMinor}: "10A", {3, ModeMajor}: "10B",
	{7, ModeMinor}: "11A", {10, ModeMajor}: "11B",
	{2, ModeMinor}: "12A", {5, ModeMajor}: "12B",
}

// noteToPitchClass resolves note names including enharmonic spellings.
var noteToPitchClass = map[string]int{
	"c": 0, "b#": 0,
	"c#": 1, "db": 1,
	"d": 2,
	"d#": 3, "eb": 3,
	"e": 4, "fb": 4,
	"f": 5, "e#": 5,
	"f#": 6, "gb": 6,
	"g": 7,
	"g#": 8, "ab": 8,
	"a": 9,
	"a#": 10, "bb": 10,
	"b": 11, "cb": 11,
}

var codeRe = regexp.MustCompile(`^(1[0-2]|[1-9])([AB])$`)

// FromPitchClass maps (pitch class 0..11, mode 0|1) to a Camelot code.
func FromPitchClass(pitchClass, mode int) (Code, error) {
	if pitchClass < 0 || pitchClass > 11 {
		return "", fmt.Errorf("pitch class out of range: %d", pitchClass)
	}
	if mode != ModeMinor && mode != ModeMajor {
		return "", fmt.Errorf("mode out of range: %d", mode)
	}
	return wheel[[2]int{pitchClass, mode}], nil
}

// FromKeyName parses a textual key name ("C# minor", "Dbm", "F sharp maj",
// or an already-formed Camelot code) into a Camelot code.
func FromKeyName(keyName string) (Code, error) {
	s := strings.TrimSpace(strings.ToLower(keyName))
	if s == "" {
		return "", fmt.Errorf("empty key name")
	}

	// Passthrough for strings that already are Camelot codes.
	if c := codeRe.FindStringSubmatch(strings.ToUpper(keyName)); c != nil {
		return Code(strings.ToUpper(strings.TrimSpace(keyName))), nil
	}

	s = strings.ReplaceAll(s, "♯", "#")
	s = strings.ReplaceAll(s, "♭", "b")
	s = strings.ReplaceAll(s, " sharp", "#")
	s = strings.ReplaceAll(s, " flat", "b")
	s = strings.ReplaceAll(s, "-", " ")

	mode := ModeMajor
	switch {
	case strings.Contains(s, "minor"):
		mode = ModeMinor
		s = strings.ReplaceAll(s, "minor", "")
	case strings.Contains(s, "min"):
		mode = ModeMinor
		s = strings.ReplaceAll(s, "min", "")
	case strings.Contains(s, "major"):
		s = strings.ReplaceAll(s, "major", "")
	case strings.Contains(s, "maj"):
		s = strings.ReplaceAll(s, "maj", "")
	case strings.HasSuffix(strings.TrimSpace(s), "m"):
		mode = ModeMinor
		s = strings.TrimSuffix(strings.TrimSpace(s), "m")
	}

	note := strings.TrimSpace(s)
	pc, ok := noteToPitchClass[note]
	if !ok {
		return "", fmt.Errorf("unparseable key name: %q", keyName)
	}
	return FromPitchClass(pc, mode)
}

// KeyName renders a code back into a conventional key name, preferring
// sharp spellings ("C# minor" for 5A).
func (c Code) KeyName() string {
	names := [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
	for pcMode, code := range wheel {
		if code != c {
			continue
		}
		name := names[pcMode[0]]
		if pcMode[1] == ModeMinor {
			return name + " minor"
		}
		return name + " major"
	}
	return ""
}

// parse splits a code into its wheel number (1..12) and letter.
func parse(c Code) (int, byte, bool) {
	m := codeRe.FindStringSubmatch(string(c))
	if m == nil {
		return 0, 0, false
	}
	n, _ := strconv.Atoi(m[1])
	return n, m[2][0], true
}

// wrap keeps wheel positions in 1..12 (modulo 12, 1-based).
func wrap(n int) int {
	n = ((n - 1) % 12 + 12) % 12
	return n + 1
}

// Compatible returns the harmonic neighborhood of a code: itself, one step
// either direction on the same side, and the same number on the other side.
// Always 4 entries for a valid code.
func Compatible(c Code) []Code {
	n, letter, ok := parse(c)
	if !ok {
		return nil
	}
	other := byte('A')
	if letter == 'A' {
		other = 'B'
	}
	return []Code{
		c,
		Code(fmt.Sprintf("%d%c", wrap(n-1), letter)),
		Code(fmt.Sprintf("%d%c", wrap(n+1), letter)),
		Code(fmt.Sprintf("%d%c", n, other)),
	}
}

// distance is the shortest hop count around the wheel between two numbers.
func distance(a, b int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	if d > 6 {
		d = 12 - d
	}
	return d
}

// CompatibilityScore rates how well two codes mix: 1.0 perfect, 0.8 for a
// one-step energy shift or a mood shift to the relative key, then 0.5 and
// 0.3 as the wheel distance grows.
func CompatibilityScore(a, b Code) float64 {
	an, aletter, aok := parse(a)
	bn, bletter, bok := parse(b)
	if !aok || !bok {
		return 0.0
	}

	if a == b {
		return 1.0
	}

	d := distance(an, bn)
	if aletter == bletter {
		switch d {
		case 1:
			return 0.8
		case 2:
			return 0.5
		case 3:
			return 0.3
		default:
			return 0.0
		}
	}

	// Opposite side: relative major/minor is a mood shift, anything
	// further is a stretch.
	if d == 0 {
		return 0.8
	}
	return 0.3
}
