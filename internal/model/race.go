package model

import (
	"fmt"
	"strings"
)

// Race is a closed-vocabulary label inferred for a ranked-choice selection
type Race string

const (
	RaceWhite        Race = "white"
	RaceBlack        Race = "black"
	RaceHispanic     Race = "hispanic"
	RaceAsian        Race = "asian"
	RaceUndetermined Race = "undetermined"
	RaceNone         Race = "none" // No ranking at this position (exhausted ballot)
)

// DefaultRaces returns the default label vocabulary in reporting order
func DefaultRaces() []Race {
	return []Race{RaceWhite, RaceBlack, RaceHispanic, RaceAsian, RaceUndetermined}
}

// ScheduleLen is the number of ranked positions a schedule records
const ScheduleLen = 3

// scheduleSep separates positions in the text form of a schedule
const scheduleSep = "|"

// RaceSchedule is the ordered (1st, 2nd, 3rd) race labels of one ballot.
// It is comparable and used directly as a map key.
type RaceSchedule [ScheduleLen]Race

// NewRaceSchedule builds a schedule from three labels
func NewRaceSchedule(first, second, third Race) RaceSchedule {
	return RaceSchedule{first, second, third}
}

// String renders the schedule as "first|second|third"
func (s RaceSchedule) String() string {
	parts := make([]string, ScheduleLen)
	for i, r := range s {
		parts[i] = string(r)
	}
	return strings.Join(parts, scheduleSep)
}

// Contains reports whether the race appears at any position
func (s RaceSchedule) Contains(r Race) bool {
	for _, x := range s {
		if x == r {
			return true
		}
	}
	return false
}

// MarshalText lets schedules serve as JSON object keys
func (s RaceSchedule) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the "first|second|third" form
func (s *RaceSchedule) UnmarshalText(text []byte) error {
	parsed, err := ParseRaceSchedule(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseRaceSchedule parses the "first|second|third" form
func ParseRaceSchedule(text string) (RaceSchedule, error) {
	parts := strings.Split(text, scheduleSep)
	if len(parts) != ScheduleLen {
		return RaceSchedule{}, fmt.Errorf("parse race schedule %q: want %d positions, got %d", text, ScheduleLen, len(parts))
	}
	var s RaceSchedule
	for i, p := range parts {
		if p == "" {
			return RaceSchedule{}, fmt.Errorf("parse race schedule %q: empty position %d", text, i+1)
		}
		s[i] = Race(p)
	}
	return s, nil
}
