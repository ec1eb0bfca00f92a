package session

import (
	"encoding/json"
	"fmt"
)

// MappingMode says whether a session builds a new map or localizes against a loaded one.
type MappingMode int

const (
	// Mapping sessions build a new map. A session starts in this mode unless a map was loaded
	// immediately before it.
	Mapping MappingMode = iota
	// Localizing sessions match the camera against a previously loaded map.
	Localizing
)

func (m MappingMode) String() string {
	switch m {
	case Mapping:
		return "mapping"
	case Localizing:
		return "localizing"
	default:
		return fmt.Sprintf("MappingMode(%d)", int(m))
	}
}

// MarshalJSON encodes the mode by name.
func (m MappingMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// State is the lifecycle state of a Manager.
type State int

const (
	// Idle means no session is running. A stopped Manager is Idle.
	Idle State = iota
	// Active means a session is running.
	Active
	// Saving means a session is running and a map save is still uploading.
	Saving
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Saving:
		return "saving"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalJSON encodes the state by name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
