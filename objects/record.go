package objects

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"go.uber.org/multierr"

	"go.viam.com/arsession/metadata"
	"go.viam.com/arsession/spatialmath"
)

// PlacedObject is an object anchored in map coordinates.
type PlacedObject struct {
	Type     int
	Position [3]float32
	// Rotation is a unit quaternion ordered x, y, z, w.
	Rotation [4]float32
}

// Pose returns the object's pose in the map frame.
func (o PlacedObject) Pose() spatialmath.Pose {
	return spatialmath.NewPoseFromFloat32(o.Position, o.Rotation)
}

var identityRotation = [4]float32{0, 0, 0, 1}

type vec3JSON struct {
	X metadata.Float32String `json:"x"`
	Y metadata.Float32String `json:"y"`
	Z metadata.Float32String `json:"z"`
}

type quatJSON struct {
	X metadata.Float32String `json:"x"`
	Y metadata.Float32String `json:"y"`
	Z metadata.Float32String `json:"z"`
	W metadata.Float32String `json:"w"`
}

type recordJSON struct {
	Type     interface{} `json:"type"`
	Position *vec3JSON   `json:"position"`
	Rotation *quatJSON   `json:"rotation"`
}

// legacyShapeJSON is the older shape dropper layout: {"shape":{"style","x","y","z"}}.
type legacyShapeJSON struct {
	Style interface{}            `json:"style"`
	X     metadata.Float32String `json:"x"`
	Y     metadata.Float32String `json:"y"`
	Z     metadata.Float32String `json:"z"`
}

// legacyModelJSON is the older model layout: {"model":{"type","px","py","pz","qx","qy","qz","qw"}}.
type legacyModelJSON struct {
	Type interface{}            `json:"type"`
	PX   metadata.Float32String `json:"px"`
	PY   metadata.Float32String `json:"py"`
	PZ   metadata.Float32String `json:"pz"`
	QX   metadata.Float32String `json:"qx"`
	QY   metadata.Float32String `json:"qy"`
	QZ   metadata.Float32String `json:"qz"`
	QW   metadata.Float32String `json:"qw"`
}

// Encode writes objects as an ordered JSON array of {type, position, rotation} records with
// decimal string components.
func Encode(objs []PlacedObject) (json.RawMessage, error) {
	records := make([]map[string]interface{}, 0, len(objs))
	for _, o := range objs {
		records = append(records, map[string]interface{}{
			"type": o.Type,
			"position": vec3JSON{
				X: metadata.Float32String(o.Position[0]),
				Y: metadata.Float32String(o.Position[1]),
				Z: metadata.Float32String(o.Position[2]),
			},
			"rotation": quatJSON{
				X: metadata.Float32String(o.Rotation[0]),
				Y: metadata.Float32String(o.Rotation[1]),
				Z: metadata.Float32String(o.Rotation[2]),
				W: metadata.Float32String(o.Rotation[3]),
			},
		})
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// Decode reads an array written by Encode or by one of the legacy layouts. Records that cannot be
// decoded are skipped; their errors are combined into the returned error alongside the objects
// that did decode.
func Decode(data json.RawMessage) ([]PlacedObject, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "placed objects must be a JSON array")
	}

	objs := make([]PlacedObject, 0, len(raw))
	var errs error
	for i, item := range raw {
		obj, err := decodeRecord(item)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "record %d", i))
			continue
		}
		objs = append(objs, obj)
	}
	return objs, errs
}

func decodeRecord(item json.RawMessage) (PlacedObject, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(item, &envelope); err != nil {
		return PlacedObject{}, err
	}
	if shape, ok := envelope["shape"]; ok {
		return decodeLegacyShape(shape)
	}
	if model, ok := envelope["model"]; ok {
		return decodeLegacyModel(model)
	}

	var rec recordJSON
	if err := json.Unmarshal(item, &rec); err != nil {
		return PlacedObject{}, err
	}
	typ, err := decodeType(rec.Type)
	if err != nil {
		return PlacedObject{}, err
	}
	if rec.Position == nil {
		return PlacedObject{}, errors.New("position is required")
	}
	obj := PlacedObject{
		Type:     typ,
		Position: [3]float32{float32(rec.Position.X), float32(rec.Position.Y), float32(rec.Position.Z)},
		Rotation: identityRotation,
	}
	if rec.Rotation != nil {
		obj.Rotation = [4]float32{
			float32(rec.Rotation.X), float32(rec.Rotation.Y), float32(rec.Rotation.Z), float32(rec.Rotation.W),
		}
	}
	return obj, nil
}

func decodeLegacyShape(data json.RawMessage) (PlacedObject, error) {
	var rec legacyShapeJSON
	if err := json.Unmarshal(data, &rec); err != nil {
		return PlacedObject{}, errors.Wrap(err, "shape")
	}
	typ, err := decodeType(rec.Style)
	if err != nil {
		return PlacedObject{}, errors.Wrap(err, "shape style")
	}
	return PlacedObject{
		Type:     typ,
		Position: [3]float32{float32(rec.X), float32(rec.Y), float32(rec.Z)},
		Rotation: identityRotation,
	}, nil
}

func decodeLegacyModel(data json.RawMessage) (PlacedObject, error) {
	var rec legacyModelJSON
	if err := json.Unmarshal(data, &rec); err != nil {
		return PlacedObject{}, errors.Wrap(err, "model")
	}
	typ, err := decodeType(rec.Type)
	if err != nil {
		return PlacedObject{}, errors.Wrap(err, "model type")
	}
	return PlacedObject{
		Type:     typ,
		Position: [3]float32{float32(rec.PX), float32(rec.PY), float32(rec.PZ)},
		Rotation: [4]float32{float32(rec.QX), float32(rec.QY), float32(rec.QZ), float32(rec.QW)},
	}, nil
}

func decodeType(v interface{}) (int, error) {
	if v == nil {
		return 0, errors.New("type is required")
	}
	return cast.ToIntE(v)
}
