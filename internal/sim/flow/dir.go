package flow

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Dir is a compass direction on the grid. North is towards row 0.
type Dir uint8

const (
	North Dir = iota
	East
	South
	West

	// NoDir marks an absent entry/exit edge on a droplet.
	NoDir Dir = 0xFF
)

// AllDirs is the fixed rotation order N -> E -> S -> W.
var AllDirs = [4]Dir{North, East, South, West}

func (d Dir) Valid() bool { return d <= West }

func (d Dir) Opposite() Dir {
	if !d.Valid() {
		return NoDir
	}
	return (d + 2) & 3
}

// Rotate turns d clockwise by the given number of quarter turns.
func (d Dir) Rotate(quarters int) Dir {
	if !d.Valid() {
		return NoDir
	}
	q := quarters % 4
	if q < 0 {
		q += 4
	}
	return Dir((int(d) + q) % 4)
}

// Delta returns the grid offset of one step in direction d.
func (d Dir) Delta() (dx, dy int) {
	switch d {
	case North:
		return 0, -1
	case East:
		return 1, 0
	case South:
		return 0, 1
	case West:
		return -1, 0
	default:
		return 0, 0
	}
}

func (d Dir) String() string {
	switch d {
	case North:
		return "N"
	case East:
		return "E"
	case South:
		return "S"
	case West:
		return "W"
	default:
		return ""
	}
}

func ParseDir(s string) (Dir, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "N":
		return North, nil
	case "E":
		return East, nil
	case "S":
		return South, nil
	case "W":
		return West, nil
	case "":
		return NoDir, nil
	}
	return NoDir, fmt.Errorf("bad direction %q", s)
}

func (d Dir) MarshalJSON() ([]byte, error) {
	if !d.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Dir) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = NoDir
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseDir(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// DirSet is a bitmask of directions (bit i = Dir(i)).
type DirSet uint8

func DirsOf(ds ...Dir) DirSet {
	var s DirSet
	for _, d := range ds {
		s = s.Add(d)
	}
	return s
}

func (s DirSet) Has(d Dir) bool {
	return d.Valid() && s&(1<<d) != 0
}

func (s DirSet) Add(d Dir) DirSet {
	if !d.Valid() {
		return s
	}
	return s | 1<<d
}

func (s DirSet) Remove(d Dir) DirSet {
	if !d.Valid() {
		return s
	}
	return s &^ (1 << d)
}

// Without returns the directions of s not present in o.
func (s DirSet) Without(o DirSet) DirSet { return s &^ o }

func (s DirSet) Empty() bool { return s&0xF == 0 }

func (s DirSet) Len() int {
	n := 0
	for _, d := range AllDirs {
		if s.Has(d) {
			n++
		}
	}
	return n
}

// Dirs lists the members in N, E, S, W order.
func (s DirSet) Dirs() []Dir {
	out := make([]Dir, 0, 4)
	for _, d := range AllDirs {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// Rotate turns every member clockwise by the given number of quarter turns.
func (s DirSet) Rotate(quarters int) DirSet {
	var out DirSet
	for _, d := range AllDirs {
		if s.Has(d) {
			out = out.Add(d.Rotate(quarters))
		}
	}
	return out
}

// Opposites maps every member to its opposite direction.
func (s DirSet) Opposites() DirSet { return s.Rotate(2) }

func (s DirSet) String() string {
	var b strings.Builder
	for _, d := range s.Dirs() {
		b.WriteString(d.String())
	}
	return b.String()
}

func (s DirSet) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, 4)
	for _, d := range s.Dirs() {
		names = append(names, d.String())
	}
	return json.Marshal(names)
}

func (s *DirSet) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	var out DirSet
	for _, n := range names {
		d, err := ParseDir(n)
		if err != nil {
			return err
		}
		out = out.Add(d)
	}
	*s = out
	return nil
}
