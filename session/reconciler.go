package session

import (
	"sync"

	"github.com/golang/geo/r3"

	"go.viam.com/arsession/engine"
	"go.viam.com/arsession/logging"
	"go.viam.com/arsession/spatialmath"
)

// Reconciler owns the transform from the live tracking frame into the map frame and derives
// localized and lost events from the engine's status stream.
//
// The map frame transform is output∘raw⁻¹ for the latest matched pose pair. It is recomputed on
// every pose while Running and frozen otherwise. Listener dispatch always happens after the
// Reconciler's lock is released, so listeners may query the Reconciler.
type Reconciler struct {
	logger    logging.Logger
	multicast *Multicast

	mu             sync.Mutex
	status         engine.MappingStatus
	mode           MappingMode
	localizedCount int
	mapFrame       spatialmath.Pose
	latestOutput   spatialmath.Pose
	latestRaw      spatialmath.Pose
	hasPair        bool
}

// NewReconciler returns a Waiting Reconciler with an identity map frame.
func NewReconciler(multicast *Multicast, logger logging.Logger) *Reconciler {
	return &Reconciler{
		logger:    logger,
		multicast: multicast,
		status:    engine.Waiting,
		mapFrame:  spatialmath.NewZeroPose(),
	}
}

// HandlePose records the latest pose pair. While Running it refreshes the map frame and forwards
// the pose to listeners.
func (r *Reconciler) HandlePose(output, raw spatialmath.Pose) {
	r.mu.Lock()
	r.latestOutput, r.latestRaw, r.hasPair = output, raw, true
	running := r.status == engine.Running
	if running {
		r.mapFrame = spatialmath.Compose(output, raw.Inverse())
	}
	r.mu.Unlock()

	if running {
		r.multicast.DispatchPose(output, raw)
	}
}

// HandleStatus processes a status report from the engine. Repeating the current status is a
// no-op. Every transition is forwarded to listeners. Entering Running first fires OnLocalized the
// first time in a localizing session and leaving Running first fires OnLost; the status change
// follows, so status listeners see the localized count already updated.
func (r *Reconciler) HandleStatus(curr engine.MappingStatus) {
	r.mu.Lock()
	prev := r.status
	if prev == curr {
		r.mu.Unlock()
		return
	}
	r.status = curr

	var localized, lost bool
	switch {
	case prev != engine.Running && curr == engine.Running:
		if r.hasPair {
			r.mapFrame = spatialmath.Compose(r.latestOutput, r.latestRaw.Inverse())
		}
		localized = r.mode == Localizing && r.localizedCount == 0
		r.localizedCount++
	case prev == engine.Running:
		lost = true
	}
	r.mu.Unlock()

	r.logger.Debugw("mapping status changed", "prev", prev, "curr", curr)
	if localized {
		r.logger.Info("localized against the loaded map")
		r.multicast.DispatchLocalized()
	}
	if lost {
		r.multicast.DispatchLost()
	}
	r.multicast.DispatchStatusChange(prev, curr)
}

// Stop forces the status back to Waiting, resets the localized count and clears the map frame.
// A status change is dispatched only if the status was not already Waiting.
func (r *Reconciler) Stop() {
	if prev, changed := r.reset(); changed {
		r.multicast.DispatchStatusChange(prev, engine.Waiting)
	}
}

// reset clears all state without dispatching. It reports the previous status and whether it
// differed from Waiting.
func (r *Reconciler) reset() (engine.MappingStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.status
	r.status = engine.Waiting
	r.localizedCount = 0
	r.mapFrame = spatialmath.NewZeroPose()
	r.latestOutput, r.latestRaw, r.hasPair = spatialmath.Pose{}, spatialmath.Pose{}, false
	return prev, prev != engine.Waiting
}

// current returns the transform used for conversions, warning when it may be stale.
func (r *Reconciler) current() spatialmath.Pose {
	r.mu.Lock()
	mapFrame, status := r.mapFrame, r.status
	r.mu.Unlock()
	if status != engine.Running {
		r.logger.Warnw("converting with a map transform that may be stale", "status", status)
	}
	return mapFrame
}

// ProcessPosition converts a point from the live tracking frame into the map frame.
func (r *Reconciler) ProcessPosition(live r3.Vector) r3.Vector {
	return r.current().TransformPoint(live)
}

// ProcessPose converts a pose from the live tracking frame into the map frame.
func (r *Reconciler) ProcessPose(live spatialmath.Pose) spatialmath.Pose {
	return spatialmath.Compose(r.current(), live)
}

// MapFrame returns the current live-to-map transform.
func (r *Reconciler) MapFrame() spatialmath.Pose {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mapFrame
}

// Status returns the last status reported by the engine.
func (r *Reconciler) Status() engine.MappingStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// LocalizedCount returns how many times the session entered Running since the last stop.
func (r *Reconciler) LocalizedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.localizedCount
}

// SetMode sets whether entering Running counts as localizing against a loaded map.
func (r *Reconciler) SetMode(mode MappingMode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = mode
}

// Mode returns the current mapping mode.
func (r *Reconciler) Mode() MappingMode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}
