package scene

import (
	"sync"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/samber/lo"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/arsession/engine"
	"go.viam.com/arsession/logging"
)

type fakePoints struct {
	mu          sync.Mutex
	mapPoints   []engine.FeaturePoint
	tracked     []engine.FeaturePoint
	calls       int
	lastMinMeas int
}

func (f *fakePoints) TrackedFeatures(minMeasCount int) []engine.FeaturePoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastMinMeas = minMeasCount
	return f.tracked
}

func (f *fakePoints) MapPoints(minMeasCount int) []engine.FeaturePoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastMinMeas = minMeasCount
	return f.mapPoints
}

func TestColorForMeasCount(t *testing.T) {
	test.That(t, ColorForMeasCount(0), test.ShouldResemble, colorful.Color{R: 1})
	test.That(t, ColorForMeasCount(10), test.ShouldResemble, colorful.Color{G: 1})

	r, g, b := ColorForMeasCount(5).RGB255()
	test.That(t, []uint8{r, g, b}, test.ShouldResemble, []uint8{128, 128, 0})
	test.That(t, ColorForMeasCount(7).AlmostEqualRgb(colorful.Color{R: 0.3, G: 0.7}), test.ShouldBeTrue)
	test.That(t, ColorForMeasCount(50), test.ShouldResemble, ColorForMeasCount(10))
	test.That(t, ColorForMeasCount(-3), test.ShouldResemble, ColorForMeasCount(0))
}

func TestFeaturePointVisualizerIdle(t *testing.T) {
	src := &fakePoints{mapPoints: []engine.FeaturePoint{{MeasCount: 3}}}
	v := NewFeaturePointVisualizer(src, 2, clock.NewMock(), logging.NewTestLogger(t))
	defer v.Close()

	v.refresh(false)
	v.refresh(true)
	test.That(t, src.calls, test.ShouldEqual, 0)
	test.That(t, v.MapPoints(), test.ShouldBeEmpty)
}

func TestFeaturePointVisualizer(t *testing.T) {
	src := &fakePoints{
		mapPoints: []engine.FeaturePoint{
			{Point: r3.Vector{X: 1}, MeasCount: 0},
			{Point: r3.Vector{Y: 1}, MeasCount: 10},
		},
		tracked: []engine.FeaturePoint{{Point: r3.Vector{Z: 1}, MeasCount: 4}},
	}
	mock := clock.NewMock()
	v := NewFeaturePointVisualizer(src, 2, mock, logging.NewTestLogger(t))
	defer v.Close()

	var mu sync.Mutex
	var clouds []PointCloud
	v.OnUpdated(func(pc PointCloud) {
		mu.Lock()
		clouds = append(clouds, pc)
		mu.Unlock()
	})

	v.OnStatusChange(engine.Waiting, engine.Running)
	mock.Add(MapPointsInterval)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, v.MapPoints(), test.ShouldHaveLength, 2)
		test.That(tb, v.TrackedPoints(), test.ShouldHaveLength, 1)
	})
	mapPoints := v.MapPoints()
	test.That(t, mapPoints[0].Color, test.ShouldResemble, colorful.Color{R: 1})
	test.That(t, mapPoints[1].Color, test.ShouldResemble, colorful.Color{G: 1})
	test.That(t, mapPoints[1].Point, test.ShouldResemble, r3.Vector{Y: 1})
	src.mu.Lock()
	test.That(t, src.lastMinMeas, test.ShouldEqual, 2)
	src.mu.Unlock()

	// lost keeps the last snapshot on screen
	v.OnStatusChange(engine.Running, engine.Lost)
	test.That(t, v.MapPoints(), test.ShouldHaveLength, 2)

	v.OnStatusChange(engine.Lost, engine.Waiting)
	test.That(t, v.MapPoints(), test.ShouldBeEmpty)
	test.That(t, v.TrackedPoints(), test.ShouldBeEmpty)
	mu.Lock()
	defer mu.Unlock()
	cleared := lo.CountBy(clouds, func(pc PointCloud) bool { return len(pc.Points) == 0 })
	test.That(t, cleared, test.ShouldEqual, 2)
}
