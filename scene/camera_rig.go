// Package scene contains session listeners that keep rendered content aligned with the map.
package scene

import (
	"sync"

	"go.viam.com/arsession/engine"
	"go.viam.com/arsession/logging"
	"go.viam.com/arsession/spatialmath"
)

// CameraRig places a camera in map coordinates. The camera's local pose follows raw odometry and
// its parent follows the live-to-map transform, which is only updated while the session is
// running so the camera stays put in the map while tracking is lost.
type CameraRig struct {
	logger logging.Logger

	mu      sync.Mutex
	running bool
	parent  spatialmath.Pose
	local   spatialmath.Pose
}

// NewCameraRig returns a rig at the map origin.
func NewCameraRig(logger logging.Logger) *CameraRig {
	return &CameraRig{
		logger: logger,
		parent: spatialmath.NewZeroPose(),
		local:  spatialmath.NewZeroPose(),
	}
}

// OnPose moves the rig to the engine's pose.
func (c *CameraRig) OnPose(output, raw spatialmath.Pose) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local = raw
	if c.running {
		c.parent = spatialmath.Compose(output, raw.Inverse())
	}
}

// OnStatusChange tracks whether parent updates are allowed.
func (c *CameraRig) OnStatusChange(_, curr engine.MappingStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = curr == engine.Running
	if curr == engine.Waiting {
		c.parent = spatialmath.NewZeroPose()
	}
}

// SetLivePose moves the camera within its parent, for frames that arrive while the engine is
// not producing poses.
func (c *CameraRig) SetLivePose(raw spatialmath.Pose) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local = raw
}

// Parent returns the transform from the live frame into the map frame.
func (c *CameraRig) Parent() spatialmath.Pose {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parent
}

// Camera returns the camera pose in map coordinates.
func (c *CameraRig) Camera() spatialmath.Pose {
	c.mu.Lock()
	defer c.mu.Unlock()
	return spatialmath.Compose(c.parent, c.local)
}
