package flow

import (
	"encoding/json"
	"testing"
)

func TestPorts_ElbowRotations(t *testing.T) {
	pt := DefaultPorts()
	tests := []struct {
		deg  int
		want DirSet
	}{
		{0, DirsOf(North, East)},
		{90, DirsOf(East, South)},
		{180, DirsOf(South, West)},
		{270, DirsOf(West, North)},
		{360, DirsOf(North, East)},
		{-90, DirsOf(West, North)},
	}
	for _, tc := range tests {
		r, err := RotationFromDegrees(tc.deg)
		if err != nil {
			t.Fatalf("RotationFromDegrees(%d): %v", tc.deg, err)
		}
		if got := pt.Ports(KindPipeElbow, r); got != tc.want {
			t.Fatalf("elbow@%d = %s want %s", tc.deg, got, tc.want)
		}
	}
}

func TestPorts_SourceAndEmpty(t *testing.T) {
	pt := DefaultPorts()
	if got := pt.Ports(KindSource, 0); got != DirsOf(South) {
		t.Fatalf("source ports = %s want S", got)
	}
	if got := pt.Ports(KindEmpty, 3); !got.Empty() {
		t.Fatalf("empty ports = %s", got)
	}
	for _, k := range []Kind{KindDepotPump, KindDepotWell, KindDepotTank} {
		if got := pt.Ports(k, 0); !got.Empty() {
			t.Fatalf("%s ports = %s", k, got)
		}
	}
}

func TestDropletOutputs(t *testing.T) {
	pt := DefaultPorts()
	tests := []struct {
		name  string
		kind  Kind
		rot   Rotation
		entry Dir
		want  DirSet
	}{
		{"straight through", KindPipeStraight, 0, North, DirsOf(South)},
		{"straight side rejected", KindPipeStraight, 0, East, 0},
		{"elbow turns", KindPipeElbow, 0, North, DirsOf(East)},
		{"tee fans out", KindPipeTee, 0, East, DirsOf(North, West)},
		{"cross three ways", KindPipeCross, 0, North, DirsOf(East, South, West)},
		{"house passes north to south", KindHouse, 0, North, DirsOf(South)},
		{"house passes west to east", KindHouse, 2, West, DirsOf(East)},
		{"source always south", KindSource, 0, NoDir, DirsOf(South)},
		{"empty tile", KindEmpty, 0, North, 0},
		{"no entry", KindPipeCross, 0, NoDir, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := pt.DropletOutputs(tc.kind, tc.rot, tc.entry); got != tc.want {
				t.Fatalf("got %s want %s", got, tc.want)
			}
		})
	}
}

func TestNewPortTable_RequiresSingleSourcePort(t *testing.T) {
	if _, err := NewPortTable(map[Kind]DirSet{KindSource: DirsOf(South, North)}); err == nil {
		t.Fatalf("expected error for two source ports")
	}
	if _, err := NewPortTable(map[Kind]DirSet{KindSource: DirsOf(South), KindEmpty: DirsOf(North)}); err == nil {
		t.Fatalf("expected error for empty kind with ports")
	}
	pt, err := NewPortTable(map[Kind]DirSet{KindSource: DirsOf(East), KindPipeStraight: DirsOf(East, West)})
	if err != nil {
		t.Fatalf("NewPortTable: %v", err)
	}
	if got := pt.Ports(KindPipeStraight, 1); got != DirsOf(North, South) {
		t.Fatalf("custom straight rotated = %s", got)
	}
}

func TestDir_OppositeAndRotate(t *testing.T) {
	for _, d := range AllDirs {
		if d.Opposite().Opposite() != d {
			t.Fatalf("double opposite of %s", d)
		}
		if d.Rotate(4) != d || d.Rotate(-1).Rotate(1) != d {
			t.Fatalf("rotation cycle broken for %s", d)
		}
	}
	if NoDir.Opposite().Valid() {
		t.Fatalf("NoDir opposite should stay invalid")
	}
}

func TestDirSet_JSON(t *testing.T) {
	b, err := json.Marshal(DirsOf(West, North))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `["N","W"]` {
		t.Fatalf("json = %s", b)
	}
	var s DirSet
	if err := json.Unmarshal([]byte(`["S","E"]`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s != DirsOf(East, South) {
		t.Fatalf("decoded %s", s)
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(k.String())
		if err != nil || got != k {
			t.Fatalf("ParseKind(%q) = %v, %v", k.String(), got, err)
		}
	}
	if _, err := ParseKind("TOWER"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}
