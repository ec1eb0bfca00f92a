// Package metadata encodes and decodes the JSON metadata the engine persists with every map.
package metadata

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
	"go.uber.org/multierr"
)

// Location is the GPS position a map was recorded at.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

// Settable is the part of a map's metadata that clients may write. Every field is optional.
type Settable struct {
	Name     string          `json:"name,omitempty"`
	Location *Location       `json:"location,omitempty"`
	Userdata json.RawMessage `json:"userdata,omitempty"`
}

// Metadata is a map's metadata as returned by the engine.
type Metadata struct {
	Settable
	// Created is the creation time in milliseconds since the Unix epoch. Zero means unknown.
	Created uint64 `json:"created,omitempty"`
}

// CreatedTime returns Created as a time. The zero time is returned when Created is unset.
func (m Metadata) CreatedTime() time.Time {
	if m.Created == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(m.Created))
}

// JSON returns the document sent to the engine when setting metadata.
func (s Settable) JSON() (string, error) {
	if len(s.Userdata) > 0 && !json.Valid(s.Userdata) {
		return "", errors.New("userdata is not valid JSON")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ErrNotObject is returned by Parse when the document is not a JSON object at all.
var ErrNotObject = errors.New("metadata must be a JSON object")

// Parse decodes one metadata document. Location components may be numbers or decimal strings.
// A malformed field does not stop the others from decoding: the returned error lists the skipped
// fields and the Metadata holds the rest. When the document itself is unusable the error wraps
// ErrNotObject.
func Parse(data []byte) (Metadata, error) {
	if !gjson.ValidBytes(data) {
		return Metadata{}, errors.Wrap(ErrNotObject, "invalid JSON")
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return Metadata{}, errors.Wrapf(ErrNotObject, "got %s", doc.Type)
	}
	return parseObject(doc)
}

func parseObject(doc gjson.Result) (Metadata, error) {
	var md Metadata
	var errs error
	if name := doc.Get("name"); name.Exists() {
		if name.Type == gjson.String {
			md.Name = name.String()
		} else {
			errs = multierr.Append(errs, errors.Errorf("name must be a string, got %s", name.Type))
		}
	}
	if created := doc.Get("created"); created.Exists() && created.Type != gjson.Null {
		v, err := cast.ToUint64E(created.Value())
		if err != nil {
			errs = multierr.Append(errs, errors.Wrap(err, "created"))
		} else {
			md.Created = v
		}
	}
	if loc := doc.Get("location"); loc.Exists() && loc.Type != gjson.Null {
		parsed, err := parseLocation(loc)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrap(err, "location"))
		} else {
			md.Location = &parsed
		}
	}
	if userdata := doc.Get("userdata"); userdata.Exists() && userdata.Type != gjson.Null {
		md.Userdata = json.RawMessage(userdata.Raw)
	}
	return md, errs
}

func parseLocation(loc gjson.Result) (Location, error) {
	if !loc.IsObject() {
		return Location{}, errors.Errorf("must be an object, got %s", loc.Type)
	}
	var out Location
	for _, field := range []struct {
		key string
		dst *float64
	}{
		{"latitude", &out.Latitude},
		{"longitude", &out.Longitude},
		{"altitude", &out.Altitude},
	} {
		v := loc.Get(field.key)
		if !v.Exists() {
			return Location{}, errors.Errorf("%s is required", field.key)
		}
		f, err := cast.ToFloat64E(v.Value())
		if err != nil {
			return Location{}, errors.Wrap(err, field.key)
		}
		*field.dst = f
	}
	return out, nil
}
