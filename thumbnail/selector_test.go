package thumbnail

import (
	"image"
	"testing"

	"go.viam.com/test"

	"go.viam.com/arsession/engine"
	"go.viam.com/arsession/logging"
	"go.viam.com/arsession/spatialmath"
)

type fakeSource struct {
	features   int
	localizing bool
	captured   int
	fetched    int
	stored     image.Image
}

func (f *fakeSource) TrackedFeatures(int) []engine.FeaturePoint {
	return make([]engine.FeaturePoint, f.features)
}

func (f *fakeSource) SetLocalizationThumbnail() bool {
	f.captured++
	return true
}

func (f *fakeSource) LocalizationThumbnail(cb func(image.Image)) {
	f.fetched++
	cb(f.stored)
}

func (f *fakeSource) Localizing() bool {
	return f.localizing
}

func TestSelectorMapping(t *testing.T) {
	src := &fakeSource{stored: image.NewNRGBA(image.Rect(0, 0, 1, 1))}
	s := NewSelector(src, 2, logging.NewTestLogger(t))
	var selected int
	s.OnSelected(func(image.Image) { selected++ })

	pose := spatialmath.NewZeroPose()
	src.features = 10
	s.OnPose(pose, pose)
	test.That(t, s.MaxFeatures(), test.ShouldEqual, 10)
	test.That(t, src.captured, test.ShouldEqual, 1)
	test.That(t, selected, test.ShouldEqual, 1)

	src.features = 5
	s.OnPose(pose, pose)
	src.features = 10
	s.OnPose(pose, pose)
	test.That(t, src.captured, test.ShouldEqual, 1)

	src.features = 11
	s.OnPose(pose, pose)
	test.That(t, src.captured, test.ShouldEqual, 2)
	test.That(t, selected, test.ShouldEqual, 2)

	s.OnStatusChange(engine.Running, engine.Waiting)
	test.That(t, s.MaxFeatures(), test.ShouldEqual, 0)
	src.features = 3
	s.OnPose(pose, pose)
	test.That(t, src.captured, test.ShouldEqual, 3)
}

func TestSelectorLocalizing(t *testing.T) {
	src := &fakeSource{localizing: true, features: 50}
	s := NewSelector(src, 2, logging.NewTestLogger(t))
	var selected []image.Image
	s.OnSelected(func(img image.Image) { selected = append(selected, img) })

	pose := spatialmath.NewZeroPose()
	s.OnPose(pose, pose)
	test.That(t, src.captured, test.ShouldEqual, 0)

	// no stored thumbnail yet, so nothing is published
	s.OnStatusChange(engine.Waiting, engine.Running)
	test.That(t, src.fetched, test.ShouldEqual, 1)
	test.That(t, selected, test.ShouldBeEmpty)

	src.stored = image.NewNRGBA(image.Rect(0, 0, 2, 2))
	s.OnStatusChange(engine.Running, engine.Lost)
	test.That(t, src.fetched, test.ShouldEqual, 1)
	s.OnStatusChange(engine.Waiting, engine.Lost)
	test.That(t, src.fetched, test.ShouldEqual, 2)
	test.That(t, selected, test.ShouldHaveLength, 1)
}
