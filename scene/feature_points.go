package scene

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/samber/lo"

	"go.viam.com/arsession/engine"
	"go.viam.com/arsession/event"
	"go.viam.com/arsession/logging"
	"go.viam.com/arsession/utils"
)

const (
	// MapPointsInterval is how often the map's landmarks are refreshed.
	MapPointsInterval = 500 * time.Millisecond
	// TrackedPointsInterval is how often the landmarks in view are refreshed.
	TrackedPointsInterval = 100 * time.Millisecond
	// saturationMeasCount is the measurement count at which a point is drawn fully green.
	saturationMeasCount = 10
)

// PointSource supplies landmarks to draw.
type PointSource interface {
	TrackedFeatures(minMeasCount int) []engine.FeaturePoint
	MapPoints(minMeasCount int) []engine.FeaturePoint
}

// ColoredPoint is a landmark with its display color.
type ColoredPoint struct {
	Point r3.Vector
	Color colorful.Color
}

// PointCloud is one set of landmarks to draw.
type PointCloud struct {
	Tracked bool
	Points  []ColoredPoint
}

var (
	unobservedColor = colorful.Color{R: 1}
	saturatedColor  = colorful.Color{G: 1}
)

// ColorForMeasCount shades a landmark from red to green as it is observed more often.
func ColorForMeasCount(measCount int) colorful.Color {
	m := float64(min(max(measCount, 0), saturationMeasCount)) / saturationMeasCount
	return unobservedColor.BlendRgb(saturatedColor, m)
}

func colorize(points []engine.FeaturePoint) []ColoredPoint {
	return lo.Map(points, func(p engine.FeaturePoint, _ int) ColoredPoint {
		return ColoredPoint{Point: p.Point, Color: ColorForMeasCount(p.MeasCount)}
	})
}

// FeaturePointVisualizer periodically snapshots the map's landmarks and the landmarks in view
// while the session is running, and clears both when it stops.
type FeaturePointVisualizer struct {
	source       PointSource
	logger       logging.Logger
	minMeasCount int
	updated      *event.Event[PointCloud]
	workers      utils.StoppableWorkers

	mu        sync.Mutex
	running   bool
	mapPoints []ColoredPoint
	tracked   []ColoredPoint
}

// NewFeaturePointVisualizer starts refreshing points from source on clk's tickers. Close stops it.
func NewFeaturePointVisualizer(
	source PointSource,
	minMeasCount int,
	clk clock.Clock,
	logger logging.Logger,
) *FeaturePointVisualizer {
	v := &FeaturePointVisualizer{
		source:       source,
		logger:       logger,
		minMeasCount: minMeasCount,
		updated:      event.NewNamed[PointCloud]("point cloud handler", logger),
	}
	// tickers are created here so that a mock clock sees them before the first Add
	mapTicker := clk.Ticker(MapPointsInterval)
	trackedTicker := clk.Ticker(TrackedPointsInterval)
	v.workers = utils.NewStoppableWorkers(
		func(ctx context.Context) { v.refreshLoop(ctx, mapTicker, false) },
		func(ctx context.Context) { v.refreshLoop(ctx, trackedTicker, true) },
	)
	return v
}

func (v *FeaturePointVisualizer) refreshLoop(ctx context.Context, ticker *clock.Ticker, tracked bool) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		v.refresh(tracked)
	}
}

func (v *FeaturePointVisualizer) refresh(tracked bool) {
	v.mu.Lock()
	running := v.running
	v.mu.Unlock()
	if !running {
		return
	}

	var points []ColoredPoint
	if tracked {
		points = colorize(v.source.TrackedFeatures(v.minMeasCount))
	} else {
		points = colorize(v.source.MapPoints(v.minMeasCount))
	}

	v.mu.Lock()
	if !v.running {
		v.mu.Unlock()
		return
	}
	if tracked {
		v.tracked = points
	} else {
		v.mapPoints = points
	}
	v.mu.Unlock()
	v.updated.Publish(PointCloud{Tracked: tracked, Points: points})
}

// OnStatusChange starts drawing when the session runs and clears everything when it stops.
func (v *FeaturePointVisualizer) OnStatusChange(_, curr engine.MappingStatus) {
	v.mu.Lock()
	v.running = curr == engine.Running
	cleared := curr == engine.Waiting && (len(v.mapPoints) > 0 || len(v.tracked) > 0)
	if curr == engine.Waiting {
		v.mapPoints, v.tracked = nil, nil
	}
	v.mu.Unlock()

	if cleared {
		v.logger.Debug("cleared feature points")
		v.updated.Publish(PointCloud{})
		v.updated.Publish(PointCloud{Tracked: true})
	}
}

// OnUpdated registers f to receive every refreshed point cloud.
func (v *FeaturePointVisualizer) OnUpdated(f func(PointCloud)) event.Disposable {
	return v.updated.Subscribe(f)
}

// MapPoints returns the latest snapshot of the map's landmarks.
func (v *FeaturePointVisualizer) MapPoints() []ColoredPoint {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mapPoints
}

// TrackedPoints returns the latest snapshot of the landmarks in view.
func (v *FeaturePointVisualizer) TrackedPoints() []ColoredPoint {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.tracked
}

// Close stops the refresh workers.
func (v *FeaturePointVisualizer) Close() {
	v.workers.Stop()
}
