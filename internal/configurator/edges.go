package configurator

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Side identifies one of the four countertop edges.
type Side string

const (
	North Side = "north"
	East  Side = "east"
	South Side = "south"
	West  Side = "west"
)

// Sides lists the edges in code order.
var Sides = [4]Side{North, East, South, West}

var sideLabels = map[Side]string{
	North: "back",
	East:  "right",
	South: "front",
	West:  "left",
}

// Label returns the display name of the side.
func (s Side) Label() string {
	if l, ok := sideLabels[s]; ok {
		return l
	}
	return string(s)
}

func (s Side) index() (int, bool) {
	for i, side := range Sides {
		if side == s {
			return i, true
		}
	}
	return 0, false
}

// ParseSide resolves a side name.
func ParseSide(v string) (Side, bool) {
	s := Side(strings.ToLower(strings.TrimSpace(v)))
	_, ok := s.index()
	return s, ok
}

// Finish is the treatment of a single edge.
type Finish string

const (
	Straight Finish = "straight"
	Live     Finish = "live"
)

// Label returns the display value of the finish.
func (f Finish) Label() string {
	if f == Live {
		return "live edge"
	}
	return "straight"
}

func (f Finish) letter() byte {
	if f == Live {
		return 's'
	}
	return 'i'
}

// ParseFinish resolves a finish name. "live edge" is accepted as an alias of live.
func ParseFinish(v string) (Finish, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "straight":
		return Straight, true
	case "live", "live edge", "live-edge":
		return Live, true
	default:
		return "", false
	}
}

// Edges holds the finish of each side in north, east, south, west order.
// The zero value has every side straight.
type Edges [4]Finish

var edgeDescriptions = map[string]string{
	"ssss": "all live edges",
	"iiii": "all straight edges",
	"sisi": "longitudinal live edges | transverse straight",
	"isis": "longitudinal straight | transverse live edges",
}

const customDescription = "custom configuration"

// AllStraight returns edges with every side straight.
func AllStraight() Edges {
	return Edges{Straight, Straight, Straight, Straight}
}

// Finish returns the finish of side.
func (e Edges) Finish(side Side) Finish {
	i, ok := side.index()
	if !ok || e[i] != Live {
		return Straight
	}
	return Live
}

// With returns a copy of e with side set to f.
func (e Edges) With(side Side, f Finish) Edges {
	if i, ok := side.index(); ok {
		e[i] = f
	}
	return e.normalize()
}

func (e Edges) normalize() Edges {
	for i := range e {
		if e[i] != Live {
			e[i] = Straight
		}
	}
	return e
}

// Code returns the four-letter edge code: i for straight, s for live.
func (e Edges) Code() string {
	b := make([]byte, len(e))
	for i, f := range e {
		b[i] = f.letter()
	}
	return string(b)
}

// Description returns the named pattern for the code, or "custom configuration".
func (e Edges) Description() string {
	if d, ok := edgeDescriptions[e.Code()]; ok {
		return d
	}
	return customDescription
}

// ParseCode builds edges from a four-letter code such as "sisi".
func ParseCode(code string) (Edges, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if len(code) != len(Sides) {
		return Edges{}, fmt.Errorf("edge code %q must have %d letters", code, len(Sides))
	}
	var e Edges
	for i := range code {
		switch code[i] {
		case 'i':
			e[i] = Straight
		case 's':
			e[i] = Live
		default:
			return Edges{}, fmt.Errorf("edge code %q: unknown letter %q", code, code[i])
		}
	}
	return e, nil
}

// MarshalJSON renders edges as a side to finish object.
func (e Edges) MarshalJSON() ([]byte, error) {
	m := make(map[Side]Finish, len(Sides))
	for _, side := range Sides {
		m[side] = e.Finish(side)
	}
	return json.Marshal(m)
}

// UnmarshalJSON reads a side to finish object. Missing sides are straight.
func (e *Edges) UnmarshalJSON(b []byte) error {
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	out := AllStraight()
	for k, v := range m {
		side, ok := ParseSide(k)
		if !ok {
			return fmt.Errorf("unknown side %q", k)
		}
		f, ok := ParseFinish(v)
		if !ok {
			return fmt.Errorf("unknown finish %q for side %s", v, side)
		}
		out = out.With(side, f)
	}
	*e = out
	return nil
}
