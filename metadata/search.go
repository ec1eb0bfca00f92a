package metadata

import (
	"encoding/json"
	"strings"
	"time"

	geo "github.com/kellydunn/golang-geo"
	"github.com/tidwall/gjson"
)

// LocationSearch restricts a search to maps recorded within Radius meters of a point.
type LocationSearch struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Radius    float64 `json:"radius"`
}

// Search is a map query. Set fields are ANDed together; zero values disable their constraint.
type Search struct {
	// Name matches maps whose name contains it, ignoring case.
	Name string `json:"name,omitempty"`
	// Location excludes maps without a location.
	Location *LocationSearch `json:"location,omitempty"`
	// NewerThan and OlderThan are milliseconds since the Unix epoch.
	NewerThan float64 `json:"newerThan"`
	OlderThan float64 `json:"olderThan"`
	// UserdataQuery is a path into the userdata object. A map matches when the path resolves.
	UserdataQuery string `json:"userdataQuery,omitempty"`
}

// SetNewerThan only keeps maps created after t.
func (s *Search) SetNewerThan(t time.Time) {
	s.NewerThan = float64(t.UnixMilli())
}

// SetOlderThan only keeps maps created before t.
func (s *Search) SetOlderThan(t time.Time) {
	s.OlderThan = float64(t.UnixMilli())
}

// JSON returns the search document sent to the engine.
func (s Search) JSON() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ParseSearch decodes a search document.
func ParseSearch(query string) (Search, error) {
	var s Search
	err := json.Unmarshal([]byte(query), &s)
	return s, err
}

// Matches reports whether md satisfies every constraint of the search.
func (s Search) Matches(md Metadata) bool {
	if s.Name != "" && !strings.Contains(strings.ToLower(md.Name), strings.ToLower(s.Name)) {
		return false
	}
	if s.Location != nil {
		if md.Location == nil {
			return false
		}
		center := geo.NewPoint(s.Location.Latitude, s.Location.Longitude)
		at := geo.NewPoint(md.Location.Latitude, md.Location.Longitude)
		// GreatCircleDistance is in kilometers.
		if center.GreatCircleDistance(at)*1000 > s.Location.Radius {
			return false
		}
	}
	if s.NewerThan != 0 && float64(md.Created) <= s.NewerThan {
		return false
	}
	if s.OlderThan != 0 && float64(md.Created) >= s.OlderThan {
		return false
	}
	if s.UserdataQuery != "" {
		if len(md.Userdata) == 0 || !gjson.GetBytes(md.Userdata, s.UserdataQuery).Exists() {
			return false
		}
	}
	return true
}
