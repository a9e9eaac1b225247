package flow

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is the closed set of things a tile can hold.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindSource
	KindHouse
	KindPipeStraight
	KindPipeElbow
	KindPipeTee
	KindPipeSplit2
	KindPipeCross
	KindDepotPump
	KindDepotWell
	KindDepotTank

	numKinds
)

var kindNames = [numKinds]string{
	KindEmpty:        "EMPTY",
	KindSource:       "SOURCE",
	KindHouse:        "HOUSE",
	KindPipeStraight: "PIPE_STRAIGHT",
	KindPipeElbow:    "PIPE_ELBOW",
	KindPipeTee:      "PIPE_TEE",
	KindPipeSplit2:   "PIPE_SPLIT_2",
	KindPipeCross:    "PIPE_CROSS",
	KindDepotPump:    "DEPOT_PUMP",
	KindDepotWell:    "DEPOT_WELL",
	KindDepotTank:    "DEPOT_TANK",
}

// Kinds lists every kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, numKinds)
	for k := Kind(0); k < numKinds; k++ {
		out = append(out, k)
	}
	return out
}

func (k Kind) Valid() bool { return k < numKinds }

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("KIND(%d)", uint8(k))
	}
	return kindNames[k]
}

func ParseKind(s string) (Kind, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return KindEmpty, fmt.Errorf("unknown kind %q", s)
}

// IsPipe reports whether k is one of the rotatable pipe pieces.
func (k Kind) IsPipe() bool {
	switch k {
	case KindPipeStraight, KindPipeElbow, KindPipeTee, KindPipeSplit2, KindPipeCross:
		return true
	}
	return false
}

// PassThrough reports whether water crossing k always leaves by the side opposite the
// one it entered, independent of rotation. Houses are the only such kind.
func (k Kind) PassThrough() bool { return k == KindHouse }

func (k Kind) IsDepot() bool {
	switch k {
	case KindDepotPump, KindDepotWell, KindDepotTank:
		return true
	}
	return false
}

func (k Kind) MarshalJSON() ([]byte, error) { return json.Marshal(k.String()) }

func (k *Kind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Rotation is a clockwise quarter-turn count in [0,3].
type Rotation uint8

// RotationFromDegrees accepts multiples of 90 (any sign) and normalises them.
func RotationFromDegrees(deg int) (Rotation, error) {
	if deg%90 != 0 {
		return 0, fmt.Errorf("rotation %d is not a multiple of 90", deg)
	}
	q := (deg / 90) % 4
	if q < 0 {
		q += 4
	}
	return Rotation(q), nil
}

func (r Rotation) Degrees() int { return int(r%4) * 90 }

// Next is the rotation one quarter turn clockwise.
func (r Rotation) Next() Rotation { return (r + 1) % 4 }

func (r Rotation) MarshalJSON() ([]byte, error) { return json.Marshal(r.Degrees()) }

func (r *Rotation) UnmarshalJSON(b []byte) error {
	var deg int
	if err := json.Unmarshal(b, &deg); err != nil {
		return err
	}
	v, err := RotationFromDegrees(deg)
	if err != nil {
		return err
	}
	*r = v
	return nil
}
