package thumbnail

import (
	"image"
	"sync"

	"go.viam.com/arsession/engine"
	"go.viam.com/arsession/event"
	"go.viam.com/arsession/logging"
	"go.viam.com/arsession/spatialmath"
)

// Source is the part of a session the Selector reads from.
type Source interface {
	TrackedFeatures(minMeasCount int) []engine.FeaturePoint
	SetLocalizationThumbnail() bool
	LocalizationThumbnail(cb func(image.Image))
	Localizing() bool
}

// Selector is a session listener that keeps the localization thumbnail pointed at the view with
// the most tracked features seen while mapping. When a localizing session starts it publishes the
// stored thumbnail of the map instead.
type Selector struct {
	source       Source
	logger       logging.Logger
	minMeasCount int
	selected     *event.Event[image.Image]

	mu          sync.Mutex
	maxFeatures int
}

// NewSelector returns a Selector reading from source. Only landmarks observed more than
// minMeasCount times are counted.
func NewSelector(source Source, minMeasCount int, logger logging.Logger) *Selector {
	return &Selector{
		source:       source,
		logger:       logger,
		minMeasCount: minMeasCount,
		selected:     event.NewNamed[image.Image]("thumbnail handler", logger),
	}
}

// OnSelected registers f to receive every newly selected thumbnail.
func (s *Selector) OnSelected(f func(image.Image)) event.Disposable {
	return s.selected.Subscribe(f)
}

// MaxFeatures returns the feature count of the current thumbnail.
func (s *Selector) MaxFeatures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxFeatures
}

// OnPose captures a new thumbnail whenever the current view tracks more features than any view
// before it.
func (s *Selector) OnPose(_, _ spatialmath.Pose) {
	if s.source.Localizing() {
		return
	}
	n := len(s.source.TrackedFeatures(s.minMeasCount))
	s.mu.Lock()
	if n <= s.maxFeatures {
		s.mu.Unlock()
		return
	}
	s.maxFeatures = n
	s.mu.Unlock()

	if !s.source.SetLocalizationThumbnail() {
		return
	}
	s.logger.Debugw("captured localization thumbnail", "features", n)
	s.source.LocalizationThumbnail(s.publish)
}

// OnStatusChange resets the selection when the session stops and fetches the map's thumbnail
// when a localizing session starts.
func (s *Selector) OnStatusChange(prev, curr engine.MappingStatus) {
	if curr == engine.Waiting {
		s.mu.Lock()
		s.maxFeatures = 0
		s.mu.Unlock()
		return
	}
	if prev == engine.Waiting && s.source.Localizing() {
		s.source.LocalizationThumbnail(s.publish)
	}
}

func (s *Selector) publish(img image.Image) {
	if img == nil {
		return
	}
	s.selected.Publish(img)
}
