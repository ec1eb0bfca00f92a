// Package objects tracks the shapes and models a user anchors in a map and persists them in the
// map's userdata.
package objects

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// ShapeType is a primitive shape that can be placed in a map.
type ShapeType int

// The numbering is persisted and must not change.
const (
	Box ShapeType = iota
	Sphere
	Pyramid
	Torus
	Capsule
	Cylinder
	Cone
	Tube
)

var shapeTypeNames = []string{"box", "sphere", "pyramid", "torus", "capsule", "cylinder", "cone", "tube"}

func (s ShapeType) String() string {
	if s < 0 || int(s) >= len(shapeTypeNames) {
		return fmt.Sprintf("ShapeType(%d)", int(s))
	}
	return shapeTypeNames[s]
}

// ParseShapeType returns the shape with the given case-insensitive name.
func ParseShapeType(name string) (ShapeType, error) {
	for i, n := range shapeTypeNames {
		if strings.EqualFold(n, name) {
			return ShapeType(i), nil
		}
	}
	return Box, fmt.Errorf("unknown shape type %q", name)
}

// RandomShapeType returns a uniformly chosen shape.
func RandomShapeType(r *rand.Rand) ShapeType {
	return ShapeType(r.IntN(int(Tube) + 1))
}
