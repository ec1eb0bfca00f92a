package metadata

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/test"
)

func TestParse(t *testing.T) {
	md, err := Parse([]byte(`{
		"name": "Kitchen",
		"created": 1700000000123,
		"location": {"latitude": 43.65, "longitude": "-79.38", "altitude": 76},
		"userdata": {"shapeArray": []}
	}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, md.Name, test.ShouldEqual, "Kitchen")
	test.That(t, md.Created, test.ShouldEqual, uint64(1700000000123))
	test.That(t, md.CreatedTime().Equal(time.UnixMilli(1700000000123)), test.ShouldBeTrue)
	test.That(t, md.Location, test.ShouldResemble, &Location{Latitude: 43.65, Longitude: -79.38, Altitude: 76})
	test.That(t, string(md.Userdata), test.ShouldEqual, `{"shapeArray": []}`)

	md, err = Parse([]byte(`{}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, md.Location, test.ShouldBeNil)
	test.That(t, md.CreatedTime().IsZero(), test.ShouldBeTrue)

	for _, bad := range []string{`not json`, `[1, 2]`, `"kitchen"`} {
		_, err := Parse([]byte(bad))
		test.That(t, errors.Is(err, ErrNotObject), test.ShouldBeTrue)
	}
	for _, bad := range []string{
		`{"name": 5}`,
		`{"location": {"latitude": 1, "longitude": 2}}`,
		`{"location": {"latitude": "north", "longitude": 2, "altitude": 0}}`,
		`{"created": "yesterday"}`,
	} {
		_, err := Parse([]byte(bad))
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, errors.Is(err, ErrNotObject), test.ShouldBeFalse)
	}
}

func TestParseKeepsWellFormedFields(t *testing.T) {
	md, err := Parse([]byte(`{
		"name": "Kitchen",
		"created": "last week",
		"location": {"latitude": "north", "longitude": 2},
		"userdata": {"shapeArray": [{"type": 1}]}
	}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, multierr.Errors(err), test.ShouldHaveLength, 2)
	test.That(t, err.Error(), test.ShouldContainSubstring, "location")
	test.That(t, md.Name, test.ShouldEqual, "Kitchen")
	test.That(t, md.Created, test.ShouldEqual, uint64(0))
	test.That(t, md.Location, test.ShouldBeNil)
	test.That(t, string(md.Userdata), test.ShouldEqual, `{"shapeArray": [{"type": 1}]}`)
}

func TestSettableJSON(t *testing.T) {
	s := Settable{
		Name:     "Desk",
		Location: &Location{Latitude: 1, Longitude: 2, Altitude: 3},
		Userdata: json.RawMessage(`{"k":"v"}`),
	}
	out, err := s.JSON()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldEqual,
		`{"name":"Desk","location":{"latitude":1,"longitude":2,"altitude":3},"userdata":{"k":"v"}}`)

	md, err := Parse([]byte(out))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, md.Settable.Name, test.ShouldEqual, "Desk")

	out, err = Settable{}.JSON()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldEqual, `{}`)

	_, err = Settable{Userdata: json.RawMessage(`{oops`)}.JSON()
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPlaces(t *testing.T) {
	doc, err := EncodePlaces([]Place{
		{PlaceID: "a", Metadata: Metadata{Settable: Settable{Name: "first"}, Created: 10}},
		{PlaceID: "b"},
	})
	test.That(t, err, test.ShouldBeNil)

	places, err := ParsePlaces([]byte(doc))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, places, test.ShouldHaveLength, 2)
	test.That(t, places["a"].Name, test.ShouldEqual, "first")
	test.That(t, places["a"].Created, test.ShouldEqual, uint64(10))

	empty, err := EncodePlaces(nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, empty, test.ShouldEqual, `{"places":[]}`)
}

func TestParsePlacesSkipsMalformed(t *testing.T) {
	places, err := ParsePlaces([]byte(`{"places": [
		{"placeId": "good", "metadata": {"name": "ok"}},
		{"metadata": {"name": "no id"}},
		{"placeId": "badloc", "metadata": {"location": {"latitude": 1}}},
		{"placeId": "badmeta", "metadata": 7},
		{"placeId": "nometa"}
	]}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, multierr.Errors(err), test.ShouldHaveLength, 3)
	test.That(t, places, test.ShouldHaveLength, 3)
	test.That(t, places["good"].Name, test.ShouldEqual, "ok")
	test.That(t, places["badloc"].Location, test.ShouldBeNil)
	_, ok := places["nometa"]
	test.That(t, ok, test.ShouldBeTrue)

	_, err = ParsePlaces([]byte(`{"maps": []}`))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = ParsePlaces([]byte(`{`))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSearchMatches(t *testing.T) {
	kitchen := Metadata{
		Settable: Settable{
			Name:     "Big Kitchen",
			Location: &Location{Latitude: 43.6532, Longitude: -79.3832},
			Userdata: json.RawMessage(`{"shapeArray":[{"type":1}]}`),
		},
		Created: 2000,
	}
	unplaced := Metadata{Settable: Settable{Name: "garage"}, Created: 500}

	test.That(t, Search{}.Matches(kitchen), test.ShouldBeTrue)
	test.That(t, Search{Name: "kitch"}.Matches(kitchen), test.ShouldBeTrue)
	test.That(t, Search{Name: "KITCHEN"}.Matches(kitchen), test.ShouldBeTrue)
	test.That(t, Search{Name: "bath"}.Matches(kitchen), test.ShouldBeFalse)

	// 0.001 degrees of latitude is about 111 meters.
	near := &LocationSearch{Latitude: 43.6542, Longitude: -79.3832, Radius: 200}
	far := &LocationSearch{Latitude: 43.6542, Longitude: -79.3832, Radius: 50}
	test.That(t, Search{Location: near}.Matches(kitchen), test.ShouldBeTrue)
	test.That(t, Search{Location: far}.Matches(kitchen), test.ShouldBeFalse)
	test.That(t, Search{Location: near}.Matches(unplaced), test.ShouldBeFalse)

	test.That(t, Search{NewerThan: 1000}.Matches(kitchen), test.ShouldBeTrue)
	test.That(t, Search{NewerThan: 1000}.Matches(unplaced), test.ShouldBeFalse)
	test.That(t, Search{OlderThan: 1000}.Matches(unplaced), test.ShouldBeTrue)
	test.That(t, Search{OlderThan: 1000}.Matches(kitchen), test.ShouldBeFalse)

	test.That(t, Search{UserdataQuery: "shapeArray"}.Matches(kitchen), test.ShouldBeTrue)
	test.That(t, Search{UserdataQuery: "shapeArray.0.type"}.Matches(kitchen), test.ShouldBeTrue)
	test.That(t, Search{UserdataQuery: "modelArray"}.Matches(kitchen), test.ShouldBeFalse)
	test.That(t, Search{UserdataQuery: "shapeArray"}.Matches(unplaced), test.ShouldBeFalse)
}

func TestSearchJSON(t *testing.T) {
	var s Search
	s.Name = "room"
	s.SetNewerThan(time.UnixMilli(1000))
	s.SetOlderThan(time.UnixMilli(5000))
	s.Location = &LocationSearch{Latitude: 1, Longitude: 2, Radius: 30}

	doc, err := s.JSON()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, strings.Contains(doc, `"newerThan":1000`), test.ShouldBeTrue)

	back, err := ParseSearch(doc)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back, test.ShouldResemble, s)
}

func TestFloat32String(t *testing.T) {
	for _, v := range []float32{0, 1, 2.5, -3, 0.1, 1e-7, 123456.79, math.MaxFloat32, math.SmallestNonzeroFloat32} {
		data, err := json.Marshal(Float32String(v))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, string(data[0]), test.ShouldEqual, `"`)

		var back Float32String
		test.That(t, json.Unmarshal(data, &back), test.ShouldBeNil)
		test.That(t, float32(back), test.ShouldEqual, v)
	}

	test.That(t, FormatFloat32(2.5), test.ShouldEqual, "2.5")
	test.That(t, FormatFloat32(0.1), test.ShouldEqual, "0.1")
	test.That(t, FormatFloat32(-3), test.ShouldEqual, "-3")

	var f Float32String
	test.That(t, json.Unmarshal([]byte(`1.25`), &f), test.ShouldBeNil)
	test.That(t, float32(f), test.ShouldEqual, float32(1.25))
	test.That(t, json.Unmarshal([]byte(`"abc"`), &f), test.ShouldNotBeNil)
	test.That(t, json.Unmarshal([]byte(`null`), &f), test.ShouldNotBeNil)
}

func TestUserdataFields(t *testing.T) {
	ud, err := SetUserdataField(nil, "shapeArray", json.RawMessage(`[1,2]`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(ud), test.ShouldEqual, `{"shapeArray":[1,2]}`)

	ud, err = SetUserdataField(ud, "modelArray", json.RawMessage(`[]`))
	test.That(t, err, test.ShouldBeNil)
	ud, err = SetUserdataField(ud, "shapeArray", json.RawMessage(`[3]`))
	test.That(t, err, test.ShouldBeNil)

	raw, ok := UserdataField(ud, "shapeArray")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, string(raw), test.ShouldEqual, `[3]`)
	raw, ok = UserdataField(ud, "modelArray")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, string(raw), test.ShouldEqual, `[]`)

	// Keys containing path characters are stored literally.
	ud, err = SetUserdataField(ud, "v1.notes", json.RawMessage(`"x"`))
	test.That(t, err, test.ShouldBeNil)
	raw, ok = UserdataField(ud, "v1.notes")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, string(raw), test.ShouldEqual, `"x"`)

	_, ok = UserdataField(nil, "shapeArray")
	test.That(t, ok, test.ShouldBeFalse)
	_, ok = UserdataField(ud, "missing")
	test.That(t, ok, test.ShouldBeFalse)

	_, err = SetUserdataField(json.RawMessage(`[1]`), "k", json.RawMessage(`1`))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = SetUserdataField(nil, "k", json.RawMessage(`{bad`))
	test.That(t, err, test.ShouldNotBeNil)
}
