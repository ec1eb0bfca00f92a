package objects

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/multierr"
	"go.viam.com/test"
)

func TestRoundTrip(t *testing.T) {
	in := []PlacedObject{{Type: 2, Position: [3]float32{1.0, 2.5, -3.0}, Rotation: [4]float32{0, 0, 0, 1}}}

	data, err := Encode(in)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldEqual,
		`[{"position":{"x":"1","y":"2.5","z":"-3"},"rotation":{"x":"0","y":"0","z":"0","w":"1"},"type":2}]`)

	out, err := Decode(data)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cmp.Equal(out, in, cmpopts.EquateApprox(0, 1e-6)), test.ShouldBeTrue)
}

func TestRoundTripIsLossless(t *testing.T) {
	in := []PlacedObject{
		{Type: 0, Position: [3]float32{0.1, 1.0 / 3, -123456.79}, Rotation: [4]float32{0.18257418, 0.36514837, 0.5477226, 0.73029673}},
		{Type: 7, Position: [3]float32{1e-7, 3.4e38, -0}, Rotation: [4]float32{0, 0.70710677, 0, 0.70710677}},
	}
	data, err := Encode(in)
	test.That(t, err, test.ShouldBeNil)
	out, err := Decode(data)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldResemble, in)
}

func TestDecodeAcceptsNumbers(t *testing.T) {
	out, err := Decode(json.RawMessage(`[{"type":"3","position":{"x":1,"y":2,"z":3}}]`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldResemble, []PlacedObject{
		{Type: 3, Position: [3]float32{1, 2, 3}, Rotation: [4]float32{0, 0, 0, 1}},
	})
}

func TestDecodeLegacy(t *testing.T) {
	out, err := Decode(json.RawMessage(`[
		{"shape": {"style": "4", "x": "0.5", "y": "-1", "z": "2"}},
		{"model": {"type": "1", "px": "1", "py": "2", "pz": "3", "qx": "0", "qy": "1", "qz": "0", "qw": "0"}}
	]`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldResemble, []PlacedObject{
		{Type: int(Capsule), Position: [3]float32{0.5, -1, 2}, Rotation: [4]float32{0, 0, 0, 1}},
		{Type: 1, Position: [3]float32{1, 2, 3}, Rotation: [4]float32{0, 1, 0, 0}},
	})
}

func TestDecodeSkipsMalformed(t *testing.T) {
	out, err := Decode(json.RawMessage(`[
		{"type": 1, "position": {"x": "1", "y": "2", "z": "3"}},
		{"type": 1},
		{"position": {"x": "1", "y": "2", "z": "3"}},
		{"type": 1, "position": {"x": "one", "y": "2", "z": "3"}},
		{"shape": {"style": "cube", "x": "1", "y": "2", "z": "3"}},
		"garbage",
		{"type": 5, "position": {"x": "4", "y": "5", "z": "6"}}
	]`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, multierr.Errors(err), test.ShouldHaveLength, 5)
	test.That(t, out, test.ShouldHaveLength, 2)
	test.That(t, out[0].Type, test.ShouldEqual, 1)
	test.That(t, out[1].Type, test.ShouldEqual, 5)

	_, err = Decode(json.RawMessage(`{"not": "an array"}`))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestShapeType(t *testing.T) {
	test.That(t, Torus.String(), test.ShouldEqual, "torus")
	test.That(t, ShapeType(42).String(), test.ShouldEqual, "ShapeType(42)")
	s, err := ParseShapeType("Cone")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s, test.ShouldEqual, Cone)
	_, err = ParseShapeType("hexagon")
	test.That(t, err, test.ShouldNotBeNil)
}
