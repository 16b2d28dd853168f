package responder

import "fmt"

// Flag names one boolean of the dialogue state. Catalog rules refer to
// flags by these names in their requires, unless, set and clear lists.
type Flag string

const (
	FlagPacking         Flag = "packing"
	FlagPackingDetailed Flag = "packing_detailed"
	FlagWhyChooseUs     Flag = "why_choose_us"
	FlagSpecialItems    Flag = "special_items"
)

// Flags lists every known flag.
var Flags = []Flag{FlagPacking, FlagPackingDetailed, FlagWhyChooseUs, FlagSpecialItems}

// State tracks which multi-turn topic the conversation is inside.
// It lives for one page session and is never persisted.
type State struct {
	InquiringAboutPacking         bool `json:"inquiringAboutPacking"`
	InquiringAboutPackingDetailed bool `json:"inquiringAboutPackingDetailed"`
	InquiringAboutWhyChooseMoveIt bool `json:"inquiringAboutWhyChooseMoveIt"`
	InquiringAboutSpecialItems    bool `json:"inquiringAboutSpecialItems"`
}

// Reset clears every flag.
func (s *State) Reset() {
	*s = State{}
}

// IsZero reports whether no topic is active.
func (s State) IsZero() bool {
	return s == State{}
}

// Has reports the value of f. Unknown flags read as false.
func (s *State) Has(f Flag) bool {
	p := s.field(f)
	return p != nil && *p
}

// Set assigns v to f. Unknown flags are ignored.
func (s *State) Set(f Flag, v bool) {
	if p := s.field(f); p != nil {
		*p = v
	}
}

func (s *State) field(f Flag) *bool {
	switch f {
	case FlagPacking:
		return &s.InquiringAboutPacking
	case FlagPackingDetailed:
		return &s.InquiringAboutPackingDetailed
	case FlagWhyChooseUs:
		return &s.InquiringAboutWhyChooseMoveIt
	case FlagSpecialItems:
		return &s.InquiringAboutSpecialItems
	}
	return nil
}

// ParseFlag validates a flag name from a catalog file.
func ParseFlag(name string) (Flag, error) {
	f := Flag(name)
	var probe State
	if probe.field(f) == nil {
		return "", fmt.Errorf("unknown dialogue flag %q", name)
	}
	return f, nil
}
