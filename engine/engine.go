// Package engine defines the boundary to the visual-SLAM engine that owns tracking, map storage
// and relocalization. Everything behind this interface is opaque to arsession.
package engine

import (
	"context"
	"image"
	"time"

	"github.com/golang/geo/r3"

	"go.viam.com/arsession/spatialmath"
)

// Handle identifies one pending asynchronous engine operation. The caller allocates it and the
// engine hands it back, unchanged, to every callback of that operation.
type Handle uint64

// ResultCallback receives the single terminal result of an asynchronous operation.
type ResultCallback func(Handle, CallbackResult)

// TransferCallback receives progress of a map upload or download. It fires zero or more times with
// non-terminal progress followed by one terminal status.
type TransferCallback func(Handle, TransferStatus)

// CallbackResult is the outcome of an asynchronous engine operation.
type CallbackResult struct {
	Success bool
	// Payload is the operation's string result: a map id for AddMap, a JSON document for the
	// list, search and metadata operations.
	Payload string
	// Data carries binary results such as a downloaded thumbnail.
	Data []byte
	// Err is an optional engine supplied reason for a failure.
	Err error
}

// TransferStatus is a progress report for a map transfer.
type TransferStatus struct {
	Completed        bool
	Faulted          bool
	BytesTransferred int64
	BytesTotal       int64
}

// Fraction returns the transferred fraction in [0, 1]. Unknown totals report 0.
func (s TransferStatus) Fraction() float64 {
	if s.BytesTotal <= 0 {
		return 0
	}
	f := float64(s.BytesTransferred) / float64(s.BytesTotal)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

// Terminal reports whether no further status follows this one.
func (s TransferStatus) Terminal() bool {
	return s.Completed || s.Faulted
}

// Intrinsics are pinhole camera parameters in pixels.
type Intrinsics struct {
	Width  int
	Height int
	Fx     float64
	Fy     float64
	Cx     float64
	Cy     float64
}

// Frame is one camera image with the odometry pose it was captured at.
type Frame struct {
	Image      image.Image
	Pose       spatialmath.Pose
	Intrinsics Intrinsics
	Timestamp  time.Time
}

// FeaturePoint is a map landmark and the number of times it has been observed.
type FeaturePoint struct {
	Point     r3.Vector
	MeasCount int
}

// SessionCallbacks receive the per-frame output of a running session. They may be invoked from
// any goroutine the engine owns. For each frame OnPose is delivered before OnStatus, so a status
// transition is observed with that frame's pose already applied.
type SessionCallbacks struct {
	// OnPose receives the pose in map coordinates and the matching raw odometry pose.
	OnPose func(output, raw spatialmath.Pose)
	// OnStatus receives the engine's current mapping status.
	OnStatus func(curr MappingStatus)
}

// Engine is the mapping and localization engine.
type Engine interface {
	// Initialize authenticates with apiKey. The outcome is delivered through cb.
	Initialize(ctx context.Context, apiKey string, h Handle, cb ResultCallback) error
	// StartSession begins tracking. When extend is true and a map is loaded, new frames extend
	// that map instead of only localizing against it.
	StartSession(extend bool, callbacks SessionCallbacks) error
	// StopSession ends tracking and unloads any map.
	StopSession() error
	// Status returns the current mapping status.
	Status() MappingStatus

	SetIntrinsics(Intrinsics) error
	// SetFrame feeds a camera frame into a running session.
	SetFrame(Frame) error
	// TrackedLandmarks returns the landmarks observed in the most recent frame.
	TrackedLandmarks() []FeaturePoint
	// AllLandmarks returns every landmark of the active map.
	AllLandmarks() []FeaturePoint

	// AddMap finalizes the active session into a new map. The map id is the result payload.
	AddMap(h Handle, cb ResultCallback)
	// SaveMap uploads a map added with AddMap.
	SaveMap(mapID string, h Handle, cb TransferCallback)
	// LoadMap downloads a map so the next session localizes against it.
	LoadMap(mapID string, h Handle, cb TransferCallback)
	DeleteMap(mapID string, h Handle, cb ResultCallback)
	// ListMaps returns a places JSON document with every map.
	ListMaps(h Handle, cb ResultCallback)
	// SearchMaps returns a places JSON document with the maps matching a search JSON document.
	SearchMaps(query string, h Handle, cb ResultCallback)
	// GetMetadata returns the metadata JSON document of one map.
	GetMetadata(mapID string, h Handle, cb ResultCallback)
	// SetMetadata replaces the settable metadata of one map. A rejected document is reported
	// synchronously.
	SetMetadata(mapID, metadataJSON string, h Handle, cb ResultCallback) error

	// SyncThumbnail stores the PNG encoded thumbnail of a map.
	SyncThumbnail(mapID string, png []byte, h Handle, cb TransferCallback)
	// FetchThumbnail retrieves a map's PNG encoded thumbnail into the result's Data.
	FetchThumbnail(mapID string, h Handle, cb ResultCallback)

	// Shutdown releases the engine. No callbacks fire after it returns.
	Shutdown(ctx context.Context) error
}
