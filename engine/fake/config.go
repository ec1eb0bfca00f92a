package fake

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/arsession/spatialmath"
	"go.viam.com/arsession/utils"
)

// Operation names accepted by Config.FailOperations.
const (
	OpInitialize    = "initialize"
	OpAddMap        = "add_map"
	OpSaveMap       = "save_map"
	OpLoadMap       = "load_map"
	OpDeleteMap     = "delete_map"
	OpListMaps      = "list_maps"
	OpSearchMaps    = "search_maps"
	OpGetMetadata   = "get_metadata"
	OpSetMetadata   = "set_metadata"
	OpSyncThumbnail = "sync_thumbnail"
)

var knownOperations = []string{
	OpInitialize, OpAddMap, OpSaveMap, OpLoadMap, OpDeleteMap, OpListMaps, OpSearchMaps,
	OpGetMetadata, OpSetMetadata, OpSyncThumbnail,
}

// Config configures the fake engine. It is decoded from the engine attributes of a config file.
type Config struct {
	// DataDir holds the map store. Maps are kept in memory only when it is empty.
	DataDir string `json:"data_dir"`
	// APIKey, when set, is the only key Initialize accepts.
	APIKey string `json:"api_key"`
	// TransferChunks is the number of progress reports a map transfer makes before completing.
	TransferChunks int `json:"transfer_chunks"`
	// TransferDelay is the time between progress reports.
	TransferDelay time.Duration `json:"transfer_delay"`
	// LocalizeAfterFrames is the number of frames a session needs before it is Running.
	LocalizeAfterFrames int `json:"localize_after_frames"`
	// LoseEvery makes a running session lose tracking for one frame every that many frames.
	LoseEvery int `json:"lose_every"`
	// LandmarksPerFrame is the number of landmarks seen in each frame.
	LandmarksPerFrame int `json:"landmarks_per_frame"`
	// MapOffset is the x, y, z translation in meters and yaw in degrees between the live frame of
	// a localizing session and the map frame.
	MapOffset []float64 `json:"map_offset"`
	// FailOperations lists operations that always fail. Transfers fault halfway through.
	FailOperations []string `json:"fail_operations"`
	// Seed makes landmark placement reproducible.
	Seed uint64 `json:"seed"`
}

// Validate ensures the config is usable and fills in defaults.
func (cfg *Config) Validate(path string) error {
	if cfg.TransferChunks < 0 || cfg.LocalizeAfterFrames < 0 || cfg.LoseEvery < 0 || cfg.LandmarksPerFrame < 0 {
		return utils.NewConfigValidationError(path, errors.New("counts must not be negative"))
	}
	if cfg.TransferDelay < 0 {
		return utils.NewConfigValidationError(path, errors.New(`"transfer_delay" must not be negative`))
	}
	if len(cfg.MapOffset) != 0 && len(cfg.MapOffset) != 4 {
		return utils.NewConfigValidationError(path, errors.New(`"map_offset" must be [x, y, z, yaw]`))
	}
	if unknown, _ := lo.Difference(cfg.FailOperations, knownOperations); len(unknown) > 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("unknown operations %v in \"fail_operations\"", unknown))
	}
	if cfg.TransferChunks == 0 {
		cfg.TransferChunks = 4
	}
	if cfg.LocalizeAfterFrames == 0 {
		cfg.LocalizeAfterFrames = 3
	}
	if cfg.LandmarksPerFrame == 0 {
		cfg.LandmarksPerFrame = 30
	}
	return nil
}

func (cfg *Config) fails(op string) bool {
	return lo.Contains(cfg.FailOperations, op)
}

// mapOffset returns the transform from a localizing session's live frame into the map frame.
func (cfg *Config) mapOffset() spatialmath.Pose {
	if len(cfg.MapOffset) != 4 {
		return spatialmath.NewZeroPose()
	}
	o := cfg.MapOffset
	return spatialmath.NewPose(
		r3Vector(o[0], o[1], o[2]),
		spatialmath.QuatFromYaw(o[3]*math.Pi/180),
	)
}
