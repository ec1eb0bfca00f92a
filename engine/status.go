package engine

import (
	"encoding/json"
	"fmt"
)

// MappingStatus is the tracking state reported by the engine.
type MappingStatus int

// The engine starts every session Waiting, reports Running while it is tracking against the map
// and Lost when tracking drops.
const (
	Waiting MappingStatus = iota
	Running
	Lost
)

var mappingStatusNames = map[MappingStatus]string{
	Waiting: "waiting",
	Running: "running",
	Lost:    "lost",
}

var mappingStatusValues = map[string]MappingStatus{
	"waiting": Waiting,
	"running": Running,
	"lost":    Lost,
}

func (s MappingStatus) String() string {
	if name, ok := mappingStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("MappingStatus(%d)", int(s))
}

// MarshalJSON encodes the status by name.
func (s MappingStatus) MarshalJSON() ([]byte, error) {
	name, ok := mappingStatusNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown mapping status %d", int(s))
	}
	return json.Marshal(name)
}

// UnmarshalJSON decodes a status name.
func (s *MappingStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	v, ok := mappingStatusValues[name]
	if !ok {
		return fmt.Errorf("unknown mapping status %q", name)
	}
	*s = v
	return nil
}
