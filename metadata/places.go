package metadata

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"go.uber.org/multierr"
)

// Place pairs a map id with its metadata in the engine's list and search responses.
type Place struct {
	PlaceID  string   `json:"placeId"`
	Metadata Metadata `json:"metadata"`
}

// EncodePlaces builds a places document.
func EncodePlaces(places []Place) (string, error) {
	if places == nil {
		places = []Place{}
	}
	data, err := json.Marshal(struct {
		Places []Place `json:"places"`
	}{places})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ParsePlaces decodes a places document into metadata keyed by map id. An entry without an id or
// whose metadata is not an object is skipped; an entry with malformed metadata fields keeps the
// fields that decoded. Every problem is combined into the returned error, so callers get all
// usable entries alongside a description of what was dropped.
func ParsePlaces(data []byte) (map[string]Metadata, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("place list is not valid JSON")
	}
	places := gjson.GetBytes(data, "places")
	if !places.IsArray() {
		return nil, errors.New(`place list has no "places" array`)
	}

	out := make(map[string]Metadata)
	var errs error
	for i, place := range places.Array() {
		id := place.Get("placeId")
		if id.Type != gjson.String || id.String() == "" {
			errs = multierr.Append(errs, errors.Errorf("place %d: missing placeId", i))
			continue
		}
		md := place.Get("metadata")
		if !md.Exists() || md.Type == gjson.Null {
			out[id.String()] = Metadata{}
			continue
		}
		if !md.IsObject() {
			errs = multierr.Append(errs, errors.Errorf("place %q: metadata must be an object", id.String()))
			continue
		}
		parsed, err := parseObject(md)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "place %q", id.String()))
		}
		out[id.String()] = parsed
	}
	return out, errs
}
