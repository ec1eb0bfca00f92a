package objects

import (
	"encoding/json"
	"math/rand/v2"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/arsession/engine"
	"go.viam.com/arsession/logging"
	"go.viam.com/arsession/metadata"
	"go.viam.com/arsession/spatialmath"
)

// Userdata keys the placed objects are stored under.
const (
	ShapeArrayKey = "shapeArray"
	ModelArrayKey = "modelArray"
)

// ErrNotTracking is returned when placing an object while the session is not tracking against the
// map, since the map frame is not known.
var ErrNotTracking = errors.New("cannot place an object while the session is not running")

// FrameConverter converts live tracking poses into map coordinates.
type FrameConverter interface {
	ProcessPose(spatialmath.Pose) spatialmath.Pose
	Status() engine.MappingStatus
}

// Manager keeps the objects placed in the current map. It listens for session status changes to
// decide whether its objects are drawn: they appear once the session localizes and disappear when
// the session returns to Waiting.
type Manager struct {
	logger    logging.Logger
	key       string
	converter FrameConverter

	mu      sync.Mutex
	objects []PlacedObject
	drawn   bool
	rng     *rand.Rand
}

// NewManager returns a Manager persisting its objects under the userdata key.
func NewManager(key string, converter FrameConverter, logger logging.Logger) *Manager {
	return &Manager{
		logger:    logger,
		key:       key,
		converter: converter,
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// SetRand replaces the source used by PlaceRandomShape.
func (m *Manager) SetRand(r *rand.Rand) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rng = r
}

// Place anchors an object at a pose given in the live tracking frame.
func (m *Manager) Place(objType int, livePose spatialmath.Pose) (PlacedObject, error) {
	if m.converter.Status() != engine.Running {
		return PlacedObject{}, ErrNotTracking
	}
	pos, rot := m.converter.ProcessPose(livePose).Float32()
	obj := PlacedObject{Type: objType, Position: pos, Rotation: rot}

	m.mu.Lock()
	m.objects = append(m.objects, obj)
	m.drawn = true
	m.mu.Unlock()
	m.logger.Debugw("placed object", "type", objType, "position", pos)
	return obj, nil
}

// PlaceRandomShape places a randomly chosen primitive at a live frame point.
func (m *Manager) PlaceRandomShape(livePoint r3.Vector) (PlacedObject, error) {
	m.mu.Lock()
	shape := RandomShapeType(m.rng)
	m.mu.Unlock()
	return m.Place(int(shape), spatialmath.NewPoseFromPoint(livePoint))
}

// Objects returns a copy of the placed objects in placement order.
func (m *Manager) Objects() []PlacedObject {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PlacedObject, len(m.objects))
	copy(out, m.objects)
	return out
}

// Drawn reports whether the objects are currently shown.
func (m *Manager) Drawn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drawn
}

// Clear forgets every object.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects = nil
	m.drawn = false
}

// Userdata returns userdata with the objects stored under the manager's key. Other fields of
// the given userdata are kept.
func (m *Manager) Userdata(userdata json.RawMessage) (json.RawMessage, error) {
	encoded, err := Encode(m.Objects())
	if err != nil {
		return nil, err
	}
	return metadata.SetUserdataField(userdata, m.key, encoded)
}

// Load replaces the objects with the ones stored in a map's metadata. The objects were saved in
// map coordinates so no conversion is applied. Malformed records are logged and skipped; Load
// only fails when the stored array is unreadable as a whole.
func (m *Manager) Load(md metadata.Metadata) error {
	raw, ok := metadata.UserdataField(md.Userdata, m.key)
	if !ok {
		m.Clear()
		return nil
	}
	objs, err := Decode(raw)
	if objs == nil && err != nil {
		return err
	}
	if err != nil {
		m.logger.Warnw("skipped malformed placed objects", "key", m.key, "error", err)
	}

	m.mu.Lock()
	m.objects = objs
	m.drawn = false
	m.mu.Unlock()
	m.logger.Infow("loaded placed objects", "key", m.key, "count", len(objs))
	return nil
}

// OnStatusChange hides the objects when the session returns to Waiting.
func (m *Manager) OnStatusChange(prev, curr engine.MappingStatus) {
	if curr != engine.Waiting {
		return
	}
	m.mu.Lock()
	m.drawn = false
	m.mu.Unlock()
}

// OnLocalized shows the loaded objects once the session has found the map.
func (m *Manager) OnLocalized() {
	m.mu.Lock()
	m.drawn = true
	m.mu.Unlock()
}
