package metadata

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// Float32String is a single precision value persisted as a decimal string. It is written in the
// shortest form that parses back to the same float32 and read from either a string or a number.
type Float32String float32

// FormatFloat32 returns the shortest decimal string that round-trips v.
func FormatFloat32(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}

// MarshalJSON writes the value as a JSON string.
func (f Float32String) MarshalJSON() ([]byte, error) {
	return json.Marshal(FormatFloat32(float32(f)))
}

// UnmarshalJSON accepts a JSON string or number.
func (f *Float32String) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return errors.New("expected a number, got null")
	}
	v, err := cast.ToFloat32E(raw)
	if err != nil {
		return err
	}
	*f = Float32String(v)
	return nil
}
