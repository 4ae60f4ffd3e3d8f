package audit

import (
	"encoding/json"
	"fmt"
)

// State represents the change-tracking state of an entity at save time
type State int

const (
	// StateNotTracked means the entity is not tracked by the change tracker
	StateNotTracked State = iota

	// StateUnchanged means the entity exists and none of its values changed
	StateUnchanged

	// StateDeleted means the entity is marked for deletion
	StateDeleted

	// StateModified means some of the entity's values changed
	StateModified

	// StateAdded means the entity does not yet exist in the database
	StateAdded
)

var stateNames = map[State]string{
	StateNotTracked: "not_tracked",
	StateUnchanged:  "unchanged",
	StateDeleted:    "deleted",
	StateModified:   "modified",
	StateAdded:      "added",
}

// String returns the wire name of the state
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Valid reports whether s is one of the enumerated states
func (s State) Valid() bool {
	_, ok := stateNames[s]
	return ok
}

// ParseState converts a wire name back into a State
func ParseState(name string) (State, error) {
	for state, n := range stateNames {
		if n == name {
			return state, nil
		}
	}
	return StateNotTracked, fmt.Errorf("unknown state %q", name)
}

// AllStates returns every enumerated state in declaration order.
// Analytics uses this to emit dense per-state series.
func AllStates() []State {
	return []State{StateNotTracked, StateUnchanged, StateDeleted, StateModified, StateAdded}
}

// MarshalJSON encodes the state as its wire name
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a state from its wire name
func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseState(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
