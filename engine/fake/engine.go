// Package fake implements an in-process engine.Engine. It fabricates landmarks from camera poses,
// keeps maps in a CBOR file store and delivers every callback in order from one goroutine.
package fake

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"go.viam.com/arsession/engine"
	"go.viam.com/arsession/logging"
	"go.viam.com/arsession/metadata"
	"go.viam.com/arsession/spatialmath"
	"go.viam.com/arsession/utils"
)

var (
	// ErrNotInitialized is returned by session calls made before a successful Initialize.
	ErrNotInitialized = errors.New("fake engine is not initialized")
	// ErrClosed is returned by calls made after Shutdown.
	ErrClosed = errors.New("fake engine is shut down")
	// ErrNoSession is returned for frames and maps requested without a running session.
	ErrNoSession = errors.New("no session is running")
	// ErrInvalidAPIKey is reported when Initialize is given the wrong key.
	ErrInvalidAPIKey = errors.New("invalid api key")
	errInjected      = errors.New("injected failure")
)

// callbackQueueSize bounds the callbacks waiting for delivery. Callbacks beyond it are dropped.
const callbackQueueSize = 4096

type liveSession struct {
	callbacks engine.SessionCallbacks
	landmarks *landmarkSet
	// grow is false when localizing against a map without extending it.
	grow   bool
	offset spatialmath.Pose
	frames int
	status engine.MappingStatus
}

// Engine is the fake engine.
type Engine struct {
	cfg     Config
	logger  logging.Logger
	clock   clock.Clock
	store   *store
	queue   chan func()
	workers utils.StoppableWorkers

	mu          sync.Mutex
	initialized bool
	closed      bool
	session     *liveSession
	intrinsics  *engine.Intrinsics
	tracked     []engine.FeaturePoint
	loaded      *storedMap
	added       map[string]*storedMap
	// addedThumbs holds thumbnails synced before their map finished saving.
	addedThumbs map[string][]byte
}

// NewEngine returns a fake engine. cfg is validated and defaulted.
func NewEngine(cfg Config, clk clock.Clock, logger logging.Logger) (*Engine, error) {
	if err := cfg.Validate("engine.attributes"); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	st, err := newStore(cfg.DataDir, logger)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:    cfg,
		logger: logger,
		clock:  clk,
		store:  st,
		queue:  make(chan func(), callbackQueueSize),
		added:  make(map[string]*storedMap),

		addedThumbs: make(map[string][]byte),
	}
	e.workers = utils.NewStoppableWorkers(e.deliver)
	return e, nil
}

func (e *Engine) deliver(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-e.queue:
			if ctx.Err() != nil {
				return
			}
			utils.CallSafely(e.logger, "engine callback", fn)
		}
	}
}

// enqueue schedules fn for delivery after every callback enqueued before it.
func (e *Engine) enqueue(fn func()) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return
	}
	select {
	case e.queue <- fn:
	default:
		e.logger.Errorw("callback queue is full, dropping callback")
	}
}

func (e *Engine) result(h engine.Handle, cb engine.ResultCallback, res engine.CallbackResult) {
	e.enqueue(func() { cb(h, res) })
}

func (e *Engine) fail(h engine.Handle, cb engine.ResultCallback, err error) {
	e.result(h, cb, engine.CallbackResult{Err: err})
}

func (e *Engine) transferStatus(h engine.Handle, cb engine.TransferCallback, st engine.TransferStatus) {
	e.enqueue(func() { cb(h, st) })
}

// Initialize checks apiKey against the configured key.
func (e *Engine) Initialize(ctx context.Context, apiKey string, h engine.Handle, cb engine.ResultCallback) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	switch {
	case e.cfg.fails(OpInitialize):
		e.enqueueLocked(func() { cb(h, engine.CallbackResult{Err: errInjected}) })
	case e.cfg.APIKey != "" && apiKey != e.cfg.APIKey:
		e.enqueueLocked(func() { cb(h, engine.CallbackResult{Err: ErrInvalidAPIKey}) })
	default:
		e.initialized = true
		e.enqueueLocked(func() { cb(h, engine.CallbackResult{Success: true}) })
	}
	return nil
}

// enqueueLocked is enqueue for callers holding e.mu.
func (e *Engine) enqueueLocked(fn func()) {
	select {
	case e.queue <- fn:
	default:
		e.logger.Errorw("callback queue is full, dropping callback")
	}
}

// StartSession starts tracking. A map loaded since the last stop is localized against, and is
// extended when extend is set.
func (e *Engine) StartSession(extend bool, callbacks engine.SessionCallbacks) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.closed:
		return ErrClosed
	case !e.initialized:
		return ErrNotInitialized
	case e.session != nil:
		return errors.New("a session is already running")
	}
	s := &liveSession{
		callbacks: callbacks,
		landmarks: newLandmarkSet(e.cfg.Seed, nil),
		grow:      true,
		offset:    spatialmath.NewZeroPose(),
		status:    engine.Waiting,
	}
	if e.loaded != nil {
		s.landmarks = newLandmarkSet(e.cfg.Seed, e.loaded.Landmarks)
		s.grow = extend
		s.offset = e.cfg.mapOffset()
		e.logger.Debugw("localizing against loaded map", "map_id", e.loaded.ID, "extend", extend)
	}
	e.session = s
	return nil
}

// StopSession ends tracking and unloads any map.
func (e *Engine) StopSession() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session = nil
	e.loaded = nil
	e.tracked = nil
	return nil
}

// Status returns the status of the running session, or Waiting.
func (e *Engine) Status() engine.MappingStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return engine.Waiting
	}
	return e.session.status
}

// SetIntrinsics records the camera parameters. Frames are rejected until they are set.
func (e *Engine) SetIntrinsics(intrinsics engine.Intrinsics) error {
	if intrinsics.Width <= 0 || intrinsics.Height <= 0 {
		return errors.Errorf("invalid image size %dx%d", intrinsics.Width, intrinsics.Height)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.intrinsics = &intrinsics
	return nil
}

// SetFrame tracks a frame. The session becomes Running after LocalizeAfterFrames frames and,
// with LoseEvery set, periodically loses tracking for a single frame.
func (e *Engine) SetFrame(frame engine.Frame) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.session
	switch {
	case e.closed:
		return ErrClosed
	case s == nil:
		return ErrNoSession
	case e.intrinsics == nil:
		return errors.New("camera intrinsics are not set")
	}

	s.frames++
	status := engine.Waiting
	if s.frames >= e.cfg.LocalizeAfterFrames {
		status = engine.Running
		if e.cfg.LoseEvery > 0 && s.frames%e.cfg.LoseEvery == 0 {
			status = engine.Lost
		}
	}
	s.status = status

	raw := frame.Pose
	output := spatialmath.Compose(s.offset, raw)
	if status == engine.Running {
		e.tracked = s.landmarks.observe(output.Point(), e.cfg.LandmarksPerFrame, s.grow)
	} else {
		e.tracked = nil
	}

	callbacks := s.callbacks
	e.enqueueLocked(func() {
		if callbacks.OnPose != nil {
			callbacks.OnPose(output, raw)
		}
		if callbacks.OnStatus != nil {
			callbacks.OnStatus(status)
		}
	})
	return nil
}

// TrackedLandmarks returns the landmarks seen in the last frame.
func (e *Engine) TrackedLandmarks() []engine.FeaturePoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engine.FeaturePoint(nil), e.tracked...)
}

// AllLandmarks returns every landmark of the running session.
func (e *Engine) AllLandmarks() []engine.FeaturePoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	return lo.Map(e.session.landmarks.snapshot(), func(l landmark, _ int) engine.FeaturePoint {
		return l.featurePoint()
	})
}

// AddMap snapshots the running session into a new map. The map is stored by SaveMap.
func (e *Engine) AddMap(h engine.Handle, cb engine.ResultCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.cfg.fails(OpAddMap):
		e.enqueueLocked(func() { cb(h, engine.CallbackResult{Err: errInjected}) })
		return
	case e.session == nil:
		e.enqueueLocked(func() { cb(h, engine.CallbackResult{Err: ErrNoSession}) })
		return
	}
	landmarks := e.session.landmarks.snapshot()
	if len(landmarks) == 0 {
		e.enqueueLocked(func() { cb(h, engine.CallbackResult{Err: errors.New("map has no landmarks")}) })
		return
	}

	created := uint64(e.clock.Now().UnixMilli())
	doc, err := sjson.Set("{}", "created", created)
	if err != nil {
		e.enqueueLocked(func() { cb(h, engine.CallbackResult{Err: err}) })
		return
	}
	id := uuid.NewString()
	e.added[id] = &storedMap{ID: id, Metadata: doc, Created: created, Landmarks: landmarks}
	e.logger.Debugw("added map", "map_id", id, "landmarks", len(landmarks))
	e.enqueueLocked(func() { cb(h, engine.CallbackResult{Success: true, Payload: id}) })
}

// transfer reports progress for a transfer of total bytes in TransferChunks steps and then calls
// finish to decide the terminal status. With fault set the transfer faults halfway through.
func (e *Engine) transfer(
	h engine.Handle,
	cb engine.TransferCallback,
	total int64,
	fault bool,
	finish func() bool,
) {
	e.workers.AddWorkers(func(ctx context.Context) {
		chunks := int64(e.cfg.TransferChunks)
		for i := int64(1); i < chunks; i++ {
			if e.cfg.TransferDelay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-e.clock.After(e.cfg.TransferDelay):
				}
			}
			if fault && i*2 >= chunks {
				e.transferStatus(h, cb, engine.TransferStatus{Faulted: true, BytesTransferred: total * i / chunks, BytesTotal: total})
				return
			}
			e.transferStatus(h, cb, engine.TransferStatus{BytesTransferred: total * i / chunks, BytesTotal: total})
		}
		if ctx.Err() != nil {
			return
		}
		if fault || !finish() {
			e.transferStatus(h, cb, engine.TransferStatus{Faulted: true, BytesTotal: total})
			return
		}
		e.transferStatus(h, cb, engine.TransferStatus{Completed: true, BytesTransferred: total, BytesTotal: total})
	})
}

// SaveMap uploads a map created by AddMap into the store.
func (e *Engine) SaveMap(mapID string, h engine.Handle, cb engine.TransferCallback) {
	e.mu.Lock()
	m, ok := e.added[mapID]
	e.mu.Unlock()
	if !ok {
		e.logger.Warnw("save requested for a map that was not added", "map_id", mapID)
		e.transferStatus(h, cb, engine.TransferStatus{Faulted: true})
		return
	}
	e.transfer(h, cb, encodedSize(m), e.cfg.fails(OpSaveMap), func() bool {
		if err := e.store.put(m); err != nil {
			e.logger.Errorw("failed to store map", "map_id", mapID, "error", err)
			return false
		}
		e.mu.Lock()
		delete(e.added, mapID)
		png, ok := e.addedThumbs[mapID]
		delete(e.addedThumbs, mapID)
		e.mu.Unlock()
		if ok {
			if err := e.store.putThumbnail(mapID, png); err != nil {
				e.logger.Warnw("failed to store thumbnail", "map_id", mapID, "error", err)
			}
		}
		return true
	})
}

// LoadMap downloads a stored map so the next session localizes against it.
func (e *Engine) LoadMap(mapID string, h engine.Handle, cb engine.TransferCallback) {
	m, err := e.store.get(mapID)
	if err != nil {
		e.logger.Warnw("cannot load map", "map_id", mapID, "error", err)
		e.transferStatus(h, cb, engine.TransferStatus{Faulted: true})
		return
	}
	e.transfer(h, cb, encodedSize(m), e.cfg.fails(OpLoadMap), func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.session != nil {
			e.logger.Warnw("map loaded while a session is running", "map_id", mapID)
			return false
		}
		e.loaded = m
		return true
	})
}

// DeleteMap removes a map from the store.
func (e *Engine) DeleteMap(mapID string, h engine.Handle, cb engine.ResultCallback) {
	if e.cfg.fails(OpDeleteMap) {
		e.fail(h, cb, errInjected)
		return
	}
	if err := e.store.delete(mapID); err != nil {
		e.fail(h, cb, err)
		return
	}
	e.result(h, cb, engine.CallbackResult{Success: true})
}

func (e *Engine) places(match func(metadata.Metadata) bool) (string, error) {
	var places []metadata.Place
	for _, m := range e.store.list() {
		md, err := metadata.Parse([]byte(m.Metadata))
		if err != nil {
			e.logger.Warnw("stored map has malformed metadata", "map_id", m.ID, "error", err)
			if errors.Is(err, metadata.ErrNotObject) {
				continue
			}
		}
		if md.Created == 0 {
			md.Created = m.Created
		}
		if match(md) {
			places = append(places, metadata.Place{PlaceID: m.ID, Metadata: md})
		}
	}
	return metadata.EncodePlaces(places)
}

// ListMaps returns every stored map.
func (e *Engine) ListMaps(h engine.Handle, cb engine.ResultCallback) {
	if e.cfg.fails(OpListMaps) {
		e.fail(h, cb, errInjected)
		return
	}
	doc, err := e.places(func(metadata.Metadata) bool { return true })
	if err != nil {
		e.fail(h, cb, err)
		return
	}
	e.result(h, cb, engine.CallbackResult{Success: true, Payload: doc})
}

// SearchMaps returns the stored maps matching a search document.
func (e *Engine) SearchMaps(query string, h engine.Handle, cb engine.ResultCallback) {
	if e.cfg.fails(OpSearchMaps) {
		e.fail(h, cb, errInjected)
		return
	}
	search, err := metadata.ParseSearch(query)
	if err != nil {
		e.fail(h, cb, errors.Wrap(err, "invalid search"))
		return
	}
	doc, err := e.places(search.Matches)
	if err != nil {
		e.fail(h, cb, err)
		return
	}
	e.result(h, cb, engine.CallbackResult{Success: true, Payload: doc})
}

// GetMetadata returns the metadata document of a stored map.
func (e *Engine) GetMetadata(mapID string, h engine.Handle, cb engine.ResultCallback) {
	if e.cfg.fails(OpGetMetadata) {
		e.fail(h, cb, errInjected)
		return
	}
	m, err := e.store.get(mapID)
	if err != nil {
		e.fail(h, cb, err)
		return
	}
	e.result(h, cb, engine.CallbackResult{Success: true, Payload: m.Metadata})
}

// SetMetadata replaces the settable metadata of a stored map. The creation time is kept.
func (e *Engine) SetMetadata(mapID, metadataJSON string, h engine.Handle, cb engine.ResultCallback) error {
	if !gjson.Valid(metadataJSON) || !gjson.Parse(metadataJSON).IsObject() {
		return errors.New("metadata must be a JSON object")
	}
	if _, err := metadata.Parse([]byte(metadataJSON)); err != nil {
		return err
	}
	if e.cfg.fails(OpSetMetadata) {
		e.fail(h, cb, errInjected)
		return nil
	}
	m, err := e.store.get(mapID)
	if err != nil {
		e.fail(h, cb, err)
		return nil
	}
	doc, err := sjson.Set(metadataJSON, "created", m.Created)
	if err != nil {
		e.fail(h, cb, err)
		return nil
	}
	m.Metadata = doc
	if err := e.store.put(m); err != nil {
		e.fail(h, cb, err)
		return nil
	}
	e.result(h, cb, engine.CallbackResult{Success: true})
	return nil
}

// SyncThumbnail stores a map's thumbnail. The thumbnail of a map that is still being saved is
// stored once the save completes.
func (e *Engine) SyncThumbnail(mapID string, png []byte, h engine.Handle, cb engine.TransferCallback) {
	total := int64(len(png))
	if e.cfg.fails(OpSyncThumbnail) {
		e.transferStatus(h, cb, engine.TransferStatus{Faulted: true, BytesTotal: total})
		return
	}
	e.mu.Lock()
	if _, ok := e.added[mapID]; ok {
		e.addedThumbs[mapID] = append([]byte(nil), png...)
		e.mu.Unlock()
		e.transferStatus(h, cb, engine.TransferStatus{Completed: true, BytesTransferred: total, BytesTotal: total})
		return
	}
	e.mu.Unlock()
	if err := e.store.putThumbnail(mapID, png); err != nil {
		e.logger.Warnw("failed to store thumbnail", "map_id", mapID, "error", err)
		e.transferStatus(h, cb, engine.TransferStatus{Faulted: true, BytesTotal: total})
		return
	}
	e.transferStatus(h, cb, engine.TransferStatus{Completed: true, BytesTransferred: total, BytesTotal: total})
}

// FetchThumbnail returns a map's thumbnail in the result's Data.
func (e *Engine) FetchThumbnail(mapID string, h engine.Handle, cb engine.ResultCallback) {
	png, err := e.store.thumbnail(mapID)
	if err != nil {
		e.fail(h, cb, err)
		return
	}
	e.result(h, cb, engine.CallbackResult{Success: true, Data: png})
}

// Shutdown stops delivering callbacks. Transfers in flight are abandoned.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.session = nil
	e.mu.Unlock()
	e.workers.Stop()
	return ctx.Err()
}
