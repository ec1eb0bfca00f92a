// Package spatialmath defines the rigid transforms exchanged with the mapping engine.
package spatialmath

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is a rigid transform: a rotation followed by a translation. It is stored as a
// homogeneous 4x4 matrix in mgl64's column-major layout.
type Pose struct {
	m mgl64.Mat4
}

// NewZeroPose returns the identity transform.
func NewZeroPose() Pose {
	return Pose{mgl64.Ident4()}
}

// NewPose builds a transform from a translation and an orientation quaternion. The quaternion is
// normalized; a zero quaternion is treated as no rotation.
func NewPose(point r3.Vector, orientation quat.Number) Pose {
	q := mgl64.Quat{W: orientation.Real, V: mgl64.Vec3{orientation.Imag, orientation.Jmag, orientation.Kmag}}
	m := q.Normalize().Mat4()
	m.SetCol(3, mgl64.Vec4{point.X, point.Y, point.Z, 1})
	return Pose{m}
}

// NewPoseFromPoint returns a pure translation.
func NewPoseFromPoint(point r3.Vector) Pose {
	return Pose{mgl64.Translate3D(point.X, point.Y, point.Z)}
}

// NewPoseFromMatrix wraps a homogeneous matrix. The caller is responsible for the upper 3x3 block
// being a rotation.
func NewPoseFromMatrix(m mgl64.Mat4) Pose {
	return Pose{m}
}

// NewPoseFromFloat32 builds a transform from a single precision position and an (x, y, z, w)
// quaternion, the layout used by persisted placed objects.
func NewPoseFromFloat32(position [3]float32, rotation [4]float32) Pose {
	return NewPose(
		r3.Vector{X: float64(position[0]), Y: float64(position[1]), Z: float64(position[2])},
		quat.Number{
			Real: float64(rotation[3]),
			Imag: float64(rotation[0]),
			Jmag: float64(rotation[1]),
			Kmag: float64(rotation[2]),
		},
	)
}

// Matrix returns the homogeneous matrix.
func (p Pose) Matrix() mgl64.Mat4 {
	return p.m
}

// Point returns the translation component.
func (p Pose) Point() r3.Vector {
	return r3.Vector{X: p.m.At(0, 3), Y: p.m.At(1, 3), Z: p.m.At(2, 3)}
}

// Orientation returns the rotation as a unit quaternion.
func (p Pose) Orientation() quat.Number {
	q := mgl64.Mat4ToQuat(p.m).Normalize()
	// Keep the real part non-negative so equal rotations compare equal.
	if q.W < 0 {
		q = q.Scale(-1)
	}
	return quat.Number{Real: q.W, Imag: q.V[0], Jmag: q.V[1], Kmag: q.V[2]}
}

// Float32 returns the position and (x, y, z, w) quaternion in single precision.
func (p Pose) Float32() ([3]float32, [4]float32) {
	pt := p.Point()
	q := p.Orientation()
	return [3]float32{float32(pt.X), float32(pt.Y), float32(pt.Z)},
		[4]float32{float32(q.Imag), float32(q.Jmag), float32(q.Kmag), float32(q.Real)}
}

// Inverse returns the inverse transform using the rigid closed form: the rotation block is
// transposed and the translation becomes -Rᵀt.
func (p Pose) Inverse() Pose {
	rt := p.m.Mat3().Transpose()
	t := rt.Mul3x1(mgl64.Vec3{p.m.At(0, 3), p.m.At(1, 3), p.m.At(2, 3)}).Mul(-1)
	return Pose{mgl64.Mat4{
		rt[0], rt[1], rt[2], 0,
		rt[3], rt[4], rt[5], 0,
		rt[6], rt[7], rt[8], 0,
		t[0], t[1], t[2], 1,
	}}
}

// Compose returns a∘b, the transform that applies b and then a.
func Compose(a, b Pose) Pose {
	return Pose{a.m.Mul4(b.m)}
}

// TransformPoint applies the transform to a point.
func (p Pose) TransformPoint(pt r3.Vector) r3.Vector {
	v := p.m.Mul4x1(mgl64.Vec4{pt.X, pt.Y, pt.Z, 1})
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}

func (p Pose) String() string {
	pt := p.Point()
	q := p.Orientation()
	return fmt.Sprintf("{X:%.3f Y:%.3f Z:%.3f QW:%.4f QX:%.4f QY:%.4f QZ:%.4f}",
		pt.X, pt.Y, pt.Z, q.Real, q.Imag, q.Jmag, q.Kmag)
}

// PoseAlmostEqual returns whether every matrix entry of the two poses is within epsilon.
func PoseAlmostEqual(a, b Pose, epsilon float64) bool {
	for i := range a.m {
		if math.Abs(a.m[i]-b.m[i]) > epsilon {
			return false
		}
	}
	return true
}
