package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// QuatFromAxisAngle returns the unit quaternion rotating by theta radians about axis. A zero axis
// yields the identity rotation.
func QuatFromAxisAngle(axis r3.Vector, theta float64) quat.Number {
	if axis.Norm() == 0 {
		return quat.Number{Real: 1}
	}
	axis = axis.Normalize()
	s := math.Sin(theta / 2)
	return quat.Number{Real: math.Cos(theta / 2), Imag: axis.X * s, Jmag: axis.Y * s, Kmag: axis.Z * s}
}

// QuatFromYaw returns a rotation about +Y, the gravity-aligned vertical axis of the tracking frame.
func QuatFromYaw(yaw float64) quat.Number {
	return QuatFromAxisAngle(r3.Vector{Y: 1}, yaw)
}

// QuatAlmostEqual compares two quaternions as rotations, treating q and -q as the same rotation.
func QuatAlmostEqual(a, b quat.Number, epsilon float64) bool {
	dot := a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
	return math.Abs(math.Abs(dot)-quat.Abs(a)*quat.Abs(b)) <= epsilon
}
