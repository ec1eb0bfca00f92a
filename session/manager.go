package session

import (
	"context"
	"image"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/atomic"

	"go.viam.com/arsession/engine"
	"go.viam.com/arsession/logging"
	"go.viam.com/arsession/metadata"
	"go.viam.com/arsession/spatialmath"
	"go.viam.com/arsession/thumbnail"
)

var (
	// ErrNotInitialized is returned when an operation needs an initialized engine.
	ErrNotInitialized = errors.New("engine is not initialized")
	// ErrSessionActive is returned when an operation needs the Manager to be Idle.
	ErrSessionActive = errors.New("a session is already active")
	// ErrNoSession is returned when an operation needs a running session.
	ErrNoSession = errors.New("no session is active")
)

// DefaultMinMeasCount is the measurement count a landmark must exceed to be reported by
// TrackedFeatures and MapPoints when callers have no better threshold.
const DefaultMinMeasCount = 2

// goodQualityLandmarks is the number of tracked landmarks above which mapping quality is good.
const goodQualityLandmarks = 20

// MappingQuality summarizes how well the current view can be mapped.
type MappingQuality int

const (
	// Limited means too few landmarks are tracked for a reliable map.
	Limited MappingQuality = iota
	// Good means enough landmarks are tracked.
	Good
)

func (q MappingQuality) String() string {
	if q == Good {
		return "good"
	}
	return "limited"
}

// Option configures a Manager.
type Option func(*Manager)

// WithDataFile makes Initialize fail synchronously when the engine's bundled data file is missing.
func WithDataFile(path string) Option {
	return func(m *Manager) {
		m.dataFile = path
	}
}

// Manager serializes the lifecycle of mapping sessions against an engine.
//
// Every engine callback is posted onto a single loop goroutine in the order the engine produced
// it, and every listener is invoked from that goroutine. Listeners may call back into the Manager,
// except for Close. Callbacks that belong to a session that has since been stopped are dropped.
type Manager struct {
	eng        engine.Engine
	logger     logging.Logger
	multicast  *Multicast
	reconciler *Reconciler
	pending    *pendingTable
	loop       *serialLoop
	dataFile   string

	initialized atomic.Bool

	mu            sync.Mutex
	state         State
	generation    uint64
	sessionID     uuid.UUID
	mapLoaded     bool
	loadedMapID   string
	currentMapID  string
	currentFrame  *engine.Frame
	thumbnail     image.Image
	intrinsicsSet bool
	savesInFlight int
}

// NewManager returns an Idle Manager driving eng.
func NewManager(eng engine.Engine, logger logging.Logger, opts ...Option) *Manager {
	multicast := NewMulticast(logger.Sublogger("multicast"))
	m := &Manager{
		eng:        eng,
		logger:     logger,
		multicast:  multicast,
		reconciler: NewReconciler(multicast, logger.Sublogger("reconciler")),
		pending:    newPendingTable(logger),
		loop:       newSerialLoop(logger),
		// 0 is reserved for operations that do not belong to a session.
		generation: 1,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Multicast returns the listener registry events are dispatched through.
func (m *Manager) Multicast() *Multicast {
	return m.multicast
}

// Reconciler returns the live-to-map frame reconciler.
func (m *Manager) Reconciler() *Reconciler {
	return m.reconciler
}

// Initialized reports whether the engine finished initializing successfully.
func (m *Manager) Initialized() bool {
	return m.initialized.Load()
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Active && m.savesInFlight > 0 {
		return Saving
	}
	return m.state
}

// Mode returns the mapping mode of the current session.
func (m *Manager) Mode() MappingMode {
	return m.reconciler.Mode()
}

// Localizing reports whether the current session localizes against a loaded map.
func (m *Manager) Localizing() bool {
	return m.reconciler.Mode() == Localizing
}

// Status returns the last mapping status reported by the engine.
func (m *Manager) Status() engine.MappingStatus {
	return m.reconciler.Status()
}

// SessionID returns the id of the running session, or uuid.Nil when Idle.
func (m *Manager) SessionID() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// CurrentMapID returns the map the session is localizing against or last saved to.
func (m *Manager) CurrentMapID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentMapID
}

// PendingCallbacks returns the number of engine operations whose terminal callback has not fired.
func (m *Manager) PendingCallbacks() int {
	return m.pending.len()
}

// Drain blocks until every engine callback received before the call has been handled.
func (m *Manager) Drain(ctx context.Context) error {
	return m.loop.drain(ctx)
}

func (m *Manager) post(fn func()) {
	if !m.loop.post(fn) {
		m.logger.Debug("dropping engine callback received after close")
	}
}

func (m *Manager) onEngineResult(h engine.Handle, res engine.CallbackResult) {
	m.post(func() {
		op, ok := m.pending.take(h)
		if !ok {
			return
		}
		m.noteStale(h, op)
		if op.onResult == nil {
			m.logger.Warnw("engine sent a result to a transfer operation", "operation", op.name, "handle", h)
			return
		}
		op.onResult(res)
	})
}

func (m *Manager) onEngineTransfer(h engine.Handle, status engine.TransferStatus) {
	m.post(func() {
		var op *pendingOp
		var ok bool
		if status.Terminal() {
			op, ok = m.pending.take(h)
		} else {
			op, ok = m.pending.peek(h)
		}
		if !ok {
			return
		}
		if status.Terminal() {
			m.noteStale(h, op)
		}
		if op.onTransfer == nil {
			m.logger.Warnw("engine sent transfer progress to a result operation", "operation", op.name, "handle", h)
			return
		}
		op.onTransfer(status)
	})
}

// noteStale logs the completion of an operation issued in an earlier session. The operation's
// callback still runs.
func (m *Manager) noteStale(h engine.Handle, op *pendingOp) {
	if op.generation == 0 {
		return
	}
	m.mu.Lock()
	current := m.generation
	m.mu.Unlock()
	if op.generation != current {
		m.logger.Debugw("operation finished after its session changed", "operation", op.name, "handle", h)
	}
}

func resultError(op string, res engine.CallbackResult) error {
	if res.Err != nil {
		return errors.Wrapf(res.Err, "%s failed", op)
	}
	if res.Payload != "" {
		return errors.Errorf("%s failed: %s", op, res.Payload)
	}
	return errors.Errorf("%s failed", op)
}

func (m *Manager) ready(op string) bool {
	if m.initialized.Load() {
		return true
	}
	m.logger.Warnw("engine is not initialized", "operation", op)
	return false
}

// Initialize initializes the engine. It fails immediately when the bundled data file is missing
// or the engine rejects the call; otherwise the outcome is delivered to onInitialized.
func (m *Manager) Initialize(ctx context.Context, apiKey string, onInitialized func(error)) error {
	if m.dataFile != "" {
		if _, err := os.Stat(m.dataFile); err != nil {
			return errors.Wrapf(err, "bundled data file %q", m.dataFile)
		}
	}
	if onInitialized == nil {
		onInitialized = func(error) {}
	}

	h := m.pending.add(&pendingOp{name: "initialize", onResult: func(res engine.CallbackResult) {
		if !res.Success {
			err := resultError("initialize", res)
			m.logger.Errorw("engine initialization failed", "error", err)
			onInitialized(err)
			return
		}
		m.initialized.Store(true)
		m.logger.Info("engine initialized")
		onInitialized(nil)
	}})
	if err := m.eng.Initialize(ctx, apiKey, h, m.onEngineResult); err != nil {
		m.pending.discard(h)
		return errors.Wrap(err, "initializing engine")
	}
	return nil
}

// StartSession starts a session. The session localizes against the map loaded immediately before
// it, if any, and maps from scratch otherwise. Only one session may run at a time.
func (m *Manager) StartSession(extend bool) error {
	if !m.ready("start session") {
		return ErrNotInitialized
	}

	m.mu.Lock()
	if m.state != Idle {
		m.mu.Unlock()
		return ErrSessionActive
	}
	mode := Mapping
	if m.mapLoaded {
		mode = Localizing
		m.currentMapID = m.loadedMapID
	}
	m.mapLoaded = false
	m.generation++
	gen := m.generation
	m.state = Active
	m.sessionID = uuid.New()
	id := m.sessionID
	m.mu.Unlock()

	m.reconciler.SetMode(mode)
	callbacks := engine.SessionCallbacks{
		OnPose: func(output, raw spatialmath.Pose) {
			m.post(func() {
				if m.isCurrent(gen) {
					m.reconciler.HandlePose(output, raw)
				}
			})
		},
		OnStatus: func(curr engine.MappingStatus) {
			m.post(func() {
				if m.isCurrent(gen) {
					m.reconciler.HandleStatus(curr)
				}
			})
		},
	}
	if err := m.eng.StartSession(extend, callbacks); err != nil {
		m.mu.Lock()
		if m.generation == gen {
			m.state = Idle
			m.sessionID = uuid.Nil
			m.currentMapID = ""
			if mode == Localizing {
				m.mapLoaded = true
			}
		}
		m.mu.Unlock()
		m.reconciler.SetMode(Mapping)
		return errors.Wrap(err, "starting session")
	}
	m.logger.Infow("session started", "session_id", id.String(), "mode", mode.String(), "extend", extend)
	return nil
}

func (m *Manager) isCurrent(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation == gen && m.state != Idle
}

// StopSession stops any running session and resets the Manager to Idle. It is valid in every
// state. In-flight saves and loads are not cancelled; their callbacks still fire, but a load that
// completes after the stop does not start a session.
func (m *Manager) StopSession() {
	m.mu.Lock()
	wasActive := m.state != Idle
	id := m.sessionID
	m.generation++
	m.state = Idle
	m.sessionID = uuid.Nil
	m.mapLoaded = false
	m.loadedMapID = ""
	m.currentMapID = ""
	m.currentFrame = nil
	m.thumbnail = nil
	m.savesInFlight = 0
	m.mu.Unlock()

	if m.initialized.Load() {
		if err := m.eng.StopSession(); err != nil {
			m.logger.Warnw("engine failed to stop session", "error", err)
		}
	}
	if wasActive {
		m.logger.Infow("session stopped", "session_id", id.String())
	}

	m.reconciler.SetMode(Mapping)
	if prev, changed := m.reconciler.reset(); changed {
		m.post(func() {
			m.multicast.DispatchStatusChange(prev, engine.Waiting)
		})
	}
}

func (m *Manager) finishSave(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation == gen && m.savesInFlight > 0 {
		m.savesInFlight--
	}
}

// SaveMap turns the running session into a new map and uploads it. onSaved fires once, with the
// new map id or an error. onUploadProgress receives non-decreasing percentages followed by exactly
// one completed or faulted report; a failure to create the map is reported as faulted. When
// SaveMap itself returns an error neither callback fires.
func (m *Manager) SaveMap(onSaved func(mapID string, err error), onUploadProgress func(TransferProgress)) error {
	if !m.ready("save map") {
		return ErrNotInitialized
	}
	m.mu.Lock()
	if m.state == Idle {
		m.mu.Unlock()
		return ErrNoSession
	}
	gen := m.generation
	m.savesInFlight++
	m.mu.Unlock()

	if onSaved == nil {
		onSaved = func(string, error) {}
	}
	tracker := newTransferTracker(onUploadProgress)
	h := m.pending.add(&pendingOp{name: "add map", generation: gen, onResult: func(res engine.CallbackResult) {
		if !res.Success {
			err := resultError("add map", res)
			m.finishSave(gen)
			m.logger.Errorw("failed to add map", "error", err)
			onSaved("", err)
			tracker.fault()
			return
		}

		mapID := res.Payload
		m.mu.Lock()
		thumb := m.thumbnail
		if m.generation == gen {
			m.currentMapID = mapID
		}
		m.mu.Unlock()

		saveHandle := m.pending.add(&pendingOp{name: "save map", generation: gen, onTransfer: func(st engine.TransferStatus) {
			switch {
			case st.Completed:
				m.finishSave(gen)
				m.logger.Infow("map uploaded", "map_id", mapID)
				tracker.complete()
			case st.Faulted:
				m.finishSave(gen)
				m.logger.Errorw("map upload faulted", "map_id", mapID)
				tracker.fault()
			default:
				tracker.progress(st.Fraction())
			}
		}})
		m.eng.SaveMap(mapID, saveHandle, m.onEngineTransfer)
		if thumb != nil {
			m.uploadThumbnail(mapID, thumb)
		}
		onSaved(mapID, nil)
	}})
	m.eng.AddMap(h, m.onEngineResult)
	return nil
}

func (m *Manager) uploadThumbnail(mapID string, img image.Image) {
	data, err := thumbnail.EncodePNG(thumbnail.Prepare(img))
	if err != nil {
		m.logger.Warnw("failed to encode localization thumbnail", "map_id", mapID, "error", err)
		return
	}
	h := m.pending.add(&pendingOp{name: "sync thumbnail", onTransfer: func(st engine.TransferStatus) {
		switch {
		case st.Faulted:
			m.logger.Warnw("localization thumbnail upload faulted", "map_id", mapID)
		case st.Completed:
			m.logger.Debugw("localization thumbnail uploaded", "map_id", mapID, "bytes", len(data))
		}
	}})
	m.eng.SyncThumbnail(mapID, data, h, m.onEngineTransfer)
}

// LoadMap downloads a map. onProgress follows the same contract as SaveMap's upload progress.
// Once the download completes, unless a session was started or stopped in the meantime, a
// localizing session is started against the map.
func (m *Manager) LoadMap(mapID string, onProgress func(TransferProgress)) error {
	if !m.ready("load map") {
		return ErrNotInitialized
	}
	m.mu.Lock()
	if m.state != Idle {
		m.mu.Unlock()
		return ErrSessionActive
	}
	gen := m.generation
	m.mu.Unlock()

	tracker := newTransferTracker(onProgress)
	h := m.pending.add(&pendingOp{name: "load map", generation: gen, onTransfer: func(st engine.TransferStatus) {
		switch {
		case st.Faulted:
			m.logger.Errorw("map download faulted", "map_id", mapID)
			tracker.fault()
		case st.Completed:
			m.mu.Lock()
			stale := m.generation != gen
			if !stale {
				m.mapLoaded = true
				m.loadedMapID = mapID
			}
			m.mu.Unlock()
			if stale {
				m.logger.Infow("session changed while the map was loading, not starting a session", "map_id", mapID)
			} else if err := m.StartSession(false); err != nil {
				m.logger.Warnw("could not start a session on the loaded map", "map_id", mapID, "error", err)
			}
			tracker.complete()
		default:
			tracker.progress(st.Fraction())
		}
	}})
	m.eng.LoadMap(mapID, h, m.onEngineTransfer)
	return nil
}

// DeleteMap deletes a map and reports whether it succeeded.
func (m *Manager) DeleteMap(mapID string, cb func(bool)) {
	if cb == nil {
		cb = func(bool) {}
	}
	if !m.ready("delete map") {
		m.post(func() { cb(false) })
		return
	}
	h := m.pending.add(&pendingOp{name: "delete map", onResult: func(res engine.CallbackResult) {
		if !res.Success {
			m.logger.Warnw("failed to delete map", "map_id", mapID, "error", resultError("delete map", res))
		}
		cb(res.Success)
	}})
	m.eng.DeleteMap(mapID, h, m.onEngineResult)
}

// ListMaps fetches the metadata of every map.
func (m *Manager) ListMaps(cb func(bool, map[string]metadata.Metadata)) {
	if cb == nil {
		cb = func(bool, map[string]metadata.Metadata) {}
	}
	if !m.ready("list maps") {
		m.post(func() { cb(false, nil) })
		return
	}
	h := m.pending.add(&pendingOp{name: "list maps", onResult: m.placesResult("list maps", cb)})
	m.eng.ListMaps(h, m.onEngineResult)
}

// SearchMaps fetches the metadata of the maps matching search.
func (m *Manager) SearchMaps(search metadata.Search, cb func(bool, map[string]metadata.Metadata)) {
	if cb == nil {
		cb = func(bool, map[string]metadata.Metadata) {}
	}
	if !m.ready("search maps") {
		m.post(func() { cb(false, nil) })
		return
	}
	query, err := search.JSON()
	if err != nil {
		m.logger.Warnw("invalid map search", "error", err)
		m.post(func() { cb(false, nil) })
		return
	}
	h := m.pending.add(&pendingOp{name: "search maps", onResult: m.placesResult("search maps", cb)})
	m.eng.SearchMaps(query, h, m.onEngineResult)
}

func (m *Manager) placesResult(op string, cb func(bool, map[string]metadata.Metadata)) func(engine.CallbackResult) {
	return func(res engine.CallbackResult) {
		if !res.Success {
			m.logger.Warnw("map query failed", "operation", op, "error", resultError(op, res))
			cb(false, nil)
			return
		}
		places, err := metadata.ParsePlaces([]byte(res.Payload))
		if err != nil {
			if places == nil {
				m.logger.Errorw("could not parse map list", "operation", op, "error", err)
				cb(false, nil)
				return
			}
			m.logger.Warnw("map list has malformed entries", "operation", op, "error", err)
		}
		cb(true, places)
	}
}

// GetMetadata fetches the metadata of one map.
func (m *Manager) GetMetadata(mapID string, cb func(bool, metadata.Metadata)) {
	if cb == nil {
		cb = func(bool, metadata.Metadata) {}
	}
	if !m.ready("get metadata") {
		m.post(func() { cb(false, metadata.Metadata{}) })
		return
	}
	h := m.pending.add(&pendingOp{name: "get metadata", onResult: func(res engine.CallbackResult) {
		if !res.Success {
			m.logger.Warnw("failed to get map metadata", "map_id", mapID, "error", resultError("get metadata", res))
			cb(false, metadata.Metadata{})
			return
		}
		md, err := metadata.Parse([]byte(res.Payload))
		if errors.Is(err, metadata.ErrNotObject) {
			m.logger.Warnw("could not parse map metadata", "map_id", mapID, "error", err)
			cb(false, metadata.Metadata{})
			return
		}
		if err != nil {
			m.logger.Warnw("skipped malformed map metadata fields", "map_id", mapID, "error", err)
		}
		cb(true, md)
	}})
	m.eng.GetMetadata(mapID, h, m.onEngineResult)
}

// SetMetadata replaces the settable metadata of a map. It fails immediately when the engine is
// not initialized or rejects the document; otherwise the outcome is delivered to cb.
func (m *Manager) SetMetadata(mapID string, md metadata.Settable, cb func(bool)) error {
	if !m.ready("set metadata") {
		return ErrNotInitialized
	}
	doc, err := md.JSON()
	if err != nil {
		return errors.Wrap(err, "encoding metadata")
	}
	if cb == nil {
		cb = func(bool) {}
	}
	h := m.pending.add(&pendingOp{name: "set metadata", onResult: func(res engine.CallbackResult) {
		if !res.Success {
			m.logger.Warnw("failed to set map metadata", "map_id", mapID, "error", resultError("set metadata", res))
		}
		cb(res.Success)
	}})
	if err := m.eng.SetMetadata(mapID, doc, h, m.onEngineResult); err != nil {
		m.pending.discard(h)
		return errors.Wrapf(err, "setting metadata of %q", mapID)
	}
	return nil
}

// SetFrame records the latest camera frame and feeds it to the running session. The camera
// intrinsics are sent to the engine with the first frame.
func (m *Manager) SetFrame(frame engine.Frame) {
	if !m.ready("set frame") {
		return
	}
	m.mu.Lock()
	needIntrinsics := !m.intrinsicsSet
	m.intrinsicsSet = true
	m.currentFrame = &frame
	active := m.state != Idle
	m.mu.Unlock()

	if needIntrinsics {
		if err := m.eng.SetIntrinsics(frame.Intrinsics); err != nil {
			m.logger.Warnw("engine rejected camera intrinsics", "error", err)
			m.mu.Lock()
			m.intrinsicsSet = false
			m.mu.Unlock()
		}
	}
	if active {
		if err := m.eng.SetFrame(frame); err != nil {
			m.logger.Debugw("engine rejected frame", "error", err)
		}
	}
}

// CurrentFrame returns the most recent frame passed to SetFrame since the last stop.
func (m *Manager) CurrentFrame() (engine.Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.currentFrame == nil {
		return engine.Frame{}, false
	}
	return *m.currentFrame, true
}

// SetLocalizationThumbnail keeps the current frame's image as the thumbnail saved with the next
// map. It reports whether there was an image to keep.
func (m *Manager) SetLocalizationThumbnail() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.currentFrame == nil || m.currentFrame.Image == nil {
		return false
	}
	m.thumbnail = m.currentFrame.Image
	return true
}

// LocalizationThumbnail delivers the thumbnail for the current session: the captured one if
// there is one, otherwise the stored thumbnail of the map being localized against, otherwise nil.
func (m *Manager) LocalizationThumbnail(cb func(image.Image)) {
	if cb == nil {
		cb = func(image.Image) {}
	}
	m.mu.Lock()
	thumb := m.thumbnail
	mapID := m.currentMapID
	m.mu.Unlock()

	switch {
	case thumb != nil:
		prepared := thumbnail.Prepare(thumb)
		m.post(func() { cb(prepared) })
	case m.Localizing() && mapID != "" && m.ready("fetch thumbnail"):
		h := m.pending.add(&pendingOp{name: "fetch thumbnail", onResult: func(res engine.CallbackResult) {
			if !res.Success || len(res.Data) == 0 {
				cb(nil)
				return
			}
			img, err := thumbnail.DecodePNG(res.Data)
			if err != nil {
				m.logger.Warnw("could not decode map thumbnail", "map_id", mapID, "error", err)
				cb(nil)
				return
			}
			cb(img)
		}})
		m.eng.FetchThumbnail(mapID, h, m.onEngineResult)
	default:
		m.post(func() { cb(nil) })
	}
}

// TrackedFeatures returns the landmarks in view observed more than minMeasCount times.
func (m *Manager) TrackedFeatures(minMeasCount int) []engine.FeaturePoint {
	return filterLandmarks(m.eng.TrackedLandmarks(), minMeasCount)
}

// MapPoints returns the map's landmarks observed more than minMeasCount times.
func (m *Manager) MapPoints(minMeasCount int) []engine.FeaturePoint {
	return filterLandmarks(m.eng.AllLandmarks(), minMeasCount)
}

func filterLandmarks(points []engine.FeaturePoint, minMeasCount int) []engine.FeaturePoint {
	return lo.Filter(points, func(p engine.FeaturePoint, _ int) bool {
		return p.MeasCount > minMeasCount
	})
}

// MappingQuality reports whether enough landmarks are tracked to map the current view.
func (m *Manager) MappingQuality() MappingQuality {
	if len(m.eng.TrackedLandmarks()) > goodQualityLandmarks {
		return Good
	}
	return Limited
}

// Close stops the session, waits for queued callbacks and shuts the engine down. It must not be
// called from a listener.
func (m *Manager) Close(ctx context.Context) error {
	m.StopSession()
	if err := m.loop.drain(ctx); err != nil {
		m.logger.Debugw("closing before queued callbacks ran", "error", err)
	}
	m.loop.close()
	return m.eng.Shutdown(ctx)
}
