package metadata

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// escapeKey turns a literal object key into a gjson/sjson path.
func escapeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// UserdataField returns the raw JSON stored under key in a userdata object.
func UserdataField(userdata json.RawMessage, key string) (json.RawMessage, bool) {
	if len(userdata) == 0 {
		return nil, false
	}
	res := gjson.GetBytes(userdata, escapeKey(key))
	if !res.Exists() {
		return nil, false
	}
	return json.RawMessage(res.Raw), true
}

// SetUserdataField stores raw JSON under key, keeping every other field of the userdata object.
// An empty userdata starts a new object.
func SetUserdataField(userdata json.RawMessage, key string, value json.RawMessage) (json.RawMessage, error) {
	if !json.Valid(value) {
		return nil, errors.Errorf("value for %q is not valid JSON", key)
	}
	base := []byte(userdata)
	if len(base) == 0 {
		base = []byte("{}")
	} else if !gjson.ParseBytes(base).IsObject() {
		return nil, errors.New("userdata must be a JSON object")
	}
	out, err := sjson.SetRawBytes(base, escapeKey(key), value)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(out), nil
}
