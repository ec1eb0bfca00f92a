package inject

import (
	"context"

	"go.viam.com/arsession/engine"
)

// Engine is an injected engine. Methods without an injected function fall back to the embedded
// Engine when one is set, and otherwise do nothing and succeed.
type Engine struct {
	engine.Engine
	InitializeFunc       func(ctx context.Context, apiKey string, h engine.Handle, cb engine.ResultCallback) error
	StartSessionFunc     func(extend bool, callbacks engine.SessionCallbacks) error
	StopSessionFunc      func() error
	StatusFunc           func() engine.MappingStatus
	SetIntrinsicsFunc    func(intrinsics engine.Intrinsics) error
	SetFrameFunc         func(frame engine.Frame) error
	TrackedLandmarksFunc func() []engine.FeaturePoint
	AllLandmarksFunc     func() []engine.FeaturePoint
	AddMapFunc           func(h engine.Handle, cb engine.ResultCallback)
	SaveMapFunc          func(mapID string, h engine.Handle, cb engine.TransferCallback)
	LoadMapFunc          func(mapID string, h engine.Handle, cb engine.TransferCallback)
	DeleteMapFunc        func(mapID string, h engine.Handle, cb engine.ResultCallback)
	ListMapsFunc         func(h engine.Handle, cb engine.ResultCallback)
	SearchMapsFunc       func(query string, h engine.Handle, cb engine.ResultCallback)
	GetMetadataFunc      func(mapID string, h engine.Handle, cb engine.ResultCallback)
	SetMetadataFunc      func(mapID, metadataJSON string, h engine.Handle, cb engine.ResultCallback) error
	SyncThumbnailFunc    func(mapID string, png []byte, h engine.Handle, cb engine.TransferCallback)
	FetchThumbnailFunc   func(mapID string, h engine.Handle, cb engine.ResultCallback)
	ShutdownFunc         func(ctx context.Context) error
}

// NewEngine returns a new injected engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Initialize calls the injected Initialize or the real version.
func (e *Engine) Initialize(ctx context.Context, apiKey string, h engine.Handle, cb engine.ResultCallback) error {
	if e.InitializeFunc == nil {
		if e.Engine != nil {
			return e.Engine.Initialize(ctx, apiKey, h, cb)
		}
		cb(h, engine.CallbackResult{Success: true})
		return nil
	}
	return e.InitializeFunc(ctx, apiKey, h, cb)
}

// StartSession calls the injected StartSession or the real version.
func (e *Engine) StartSession(extend bool, callbacks engine.SessionCallbacks) error {
	if e.StartSessionFunc == nil {
		if e.Engine != nil {
			return e.Engine.StartSession(extend, callbacks)
		}
		return nil
	}
	return e.StartSessionFunc(extend, callbacks)
}

// StopSession calls the injected StopSession or the real version.
func (e *Engine) StopSession() error {
	if e.StopSessionFunc == nil {
		if e.Engine != nil {
			return e.Engine.StopSession()
		}
		return nil
	}
	return e.StopSessionFunc()
}

// Status calls the injected Status or the real version.
func (e *Engine) Status() engine.MappingStatus {
	if e.StatusFunc == nil {
		if e.Engine != nil {
			return e.Engine.Status()
		}
		return engine.Waiting
	}
	return e.StatusFunc()
}

// SetIntrinsics calls the injected SetIntrinsics or the real version.
func (e *Engine) SetIntrinsics(intrinsics engine.Intrinsics) error {
	if e.SetIntrinsicsFunc == nil {
		if e.Engine != nil {
			return e.Engine.SetIntrinsics(intrinsics)
		}
		return nil
	}
	return e.SetIntrinsicsFunc(intrinsics)
}

// SetFrame calls the injected SetFrame or the real version.
func (e *Engine) SetFrame(frame engine.Frame) error {
	if e.SetFrameFunc == nil {
		if e.Engine != nil {
			return e.Engine.SetFrame(frame)
		}
		return nil
	}
	return e.SetFrameFunc(frame)
}

// TrackedLandmarks calls the injected TrackedLandmarks or the real version.
func (e *Engine) TrackedLandmarks() []engine.FeaturePoint {
	if e.TrackedLandmarksFunc == nil {
		if e.Engine != nil {
			return e.Engine.TrackedLandmarks()
		}
		return nil
	}
	return e.TrackedLandmarksFunc()
}

// AllLandmarks calls the injected AllLandmarks or the real version.
func (e *Engine) AllLandmarks() []engine.FeaturePoint {
	if e.AllLandmarksFunc == nil {
		if e.Engine != nil {
			return e.Engine.AllLandmarks()
		}
		return nil
	}
	return e.AllLandmarksFunc()
}

// AddMap calls the injected AddMap or the real version.
func (e *Engine) AddMap(h engine.Handle, cb engine.ResultCallback) {
	if e.AddMapFunc == nil {
		if e.Engine != nil {
			e.Engine.AddMap(h, cb)
		}
		return
	}
	e.AddMapFunc(h, cb)
}

// SaveMap calls the injected SaveMap or the real version.
func (e *Engine) SaveMap(mapID string, h engine.Handle, cb engine.TransferCallback) {
	if e.SaveMapFunc == nil {
		if e.Engine != nil {
			e.Engine.SaveMap(mapID, h, cb)
		}
		return
	}
	e.SaveMapFunc(mapID, h, cb)
}

// LoadMap calls the injected LoadMap or the real version.
func (e *Engine) LoadMap(mapID string, h engine.Handle, cb engine.TransferCallback) {
	if e.LoadMapFunc == nil {
		if e.Engine != nil {
			e.Engine.LoadMap(mapID, h, cb)
		}
		return
	}
	e.LoadMapFunc(mapID, h, cb)
}

// DeleteMap calls the injected DeleteMap or the real version.
func (e *Engine) DeleteMap(mapID string, h engine.Handle, cb engine.ResultCallback) {
	if e.DeleteMapFunc == nil {
		if e.Engine != nil {
			e.Engine.DeleteMap(mapID, h, cb)
		}
		return
	}
	e.DeleteMapFunc(mapID, h, cb)
}

// ListMaps calls the injected ListMaps or the real version.
func (e *Engine) ListMaps(h engine.Handle, cb engine.ResultCallback) {
	if e.ListMapsFunc == nil {
		if e.Engine != nil {
			e.Engine.ListMaps(h, cb)
		}
		return
	}
	e.ListMapsFunc(h, cb)
}

// SearchMaps calls the injected SearchMaps or the real version.
func (e *Engine) SearchMaps(query string, h engine.Handle, cb engine.ResultCallback) {
	if e.SearchMapsFunc == nil {
		if e.Engine != nil {
			e.Engine.SearchMaps(query, h, cb)
		}
		return
	}
	e.SearchMapsFunc(query, h, cb)
}

// GetMetadata calls the injected GetMetadata or the real version.
func (e *Engine) GetMetadata(mapID string, h engine.Handle, cb engine.ResultCallback) {
	if e.GetMetadataFunc == nil {
		if e.Engine != nil {
			e.Engine.GetMetadata(mapID, h, cb)
		}
		return
	}
	e.GetMetadataFunc(mapID, h, cb)
}

// SetMetadata calls the injected SetMetadata or the real version.
func (e *Engine) SetMetadata(mapID, metadataJSON string, h engine.Handle, cb engine.ResultCallback) error {
	if e.SetMetadataFunc == nil {
		if e.Engine != nil {
			return e.Engine.SetMetadata(mapID, metadataJSON, h, cb)
		}
		return nil
	}
	return e.SetMetadataFunc(mapID, metadataJSON, h, cb)
}

// SyncThumbnail calls the injected SyncThumbnail or the real version.
func (e *Engine) SyncThumbnail(mapID string, png []byte, h engine.Handle, cb engine.TransferCallback) {
	if e.SyncThumbnailFunc == nil {
		if e.Engine != nil {
			e.Engine.SyncThumbnail(mapID, png, h, cb)
		}
		return
	}
	e.SyncThumbnailFunc(mapID, png, h, cb)
}

// FetchThumbnail calls the injected FetchThumbnail or the real version.
func (e *Engine) FetchThumbnail(mapID string, h engine.Handle, cb engine.ResultCallback) {
	if e.FetchThumbnailFunc == nil {
		if e.Engine != nil {
			e.Engine.FetchThumbnail(mapID, h, cb)
		}
		return
	}
	e.FetchThumbnailFunc(mapID, h, cb)
}

// Shutdown calls the injected Shutdown or the real version.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e.ShutdownFunc == nil {
		if e.Engine != nil {
			return e.Engine.Shutdown(ctx)
		}
		return nil
	}
	return e.ShutdownFunc(ctx)
}
