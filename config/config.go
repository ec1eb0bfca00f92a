// Package config defines the configuration file of an arsession process.
package config

import (
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"go.viam.com/arsession/logging"
	"go.viam.com/arsession/utils"
)

// EngineTypeFake selects the in-process engine.
const EngineTypeFake = "fake"

// Config is the root of a configuration file.
type Config struct {
	// ConfigFilePath is the file the config was read from, if any.
	ConfigFilePath string `json:"-" yaml:"-"`

	APIKey string `json:"api_key" yaml:"api_key"`
	// DataFile is the engine's bundled data file. Initialization fails when it is missing.
	DataFile string `json:"data_file,omitempty" yaml:"data_file,omitempty"`

	Debug     bool                          `json:"debug,omitempty" yaml:"debug,omitempty"`
	LogConfig []logging.LoggerPatternConfig `json:"log,omitempty" yaml:"log,omitempty"`
	LogFile   *logging.FileAppenderConfig   `json:"log_file,omitempty" yaml:"log_file,omitempty"`

	Engine     Engine     `json:"engine" yaml:"engine"`
	Session    Session    `json:"session" yaml:"session"`
	Simulation Simulation `json:"simulation" yaml:"simulation"`
}

// Engine selects and configures the mapping engine.
type Engine struct {
	Type       string       `json:"type" yaml:"type"`
	Attributes AttributeMap `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// Session holds the tunables of the session listeners.
type Session struct {
	// MinMeasCount is the number of observations a landmark needs before it is shown or counted.
	MinMeasCount *int `json:"min_meas_count,omitempty" yaml:"min_meas_count,omitempty"`
	// ObjectsKey is the userdata key placed objects are stored under.
	ObjectsKey string `json:"objects_key,omitempty" yaml:"objects_key,omitempty"`
}

// Simulation drives the simulate command.
type Simulation struct {
	Frames int `json:"frames,omitempty" yaml:"frames,omitempty"`
	// FrameInterval accepts a duration string like "33ms" or a number of milliseconds.
	FrameInterval interface{} `json:"frame_interval,omitempty" yaml:"frame_interval,omitempty"`
	Width         int         `json:"width,omitempty" yaml:"width,omitempty"`
	Height        int         `json:"height,omitempty" yaml:"height,omitempty"`
}

// Interval returns FrameInterval as a duration, defaulting to 33ms.
func (s Simulation) Interval() (time.Duration, error) {
	return durationAttribute(s.FrameInterval, 33*time.Millisecond)
}

// durationAttribute converts a config value into a duration. Bare numbers are milliseconds.
func durationAttribute(v interface{}, def time.Duration) (time.Duration, error) {
	if v == nil {
		return def, nil
	}
	switch v.(type) {
	case string, time.Duration:
		return cast.ToDurationE(v)
	default:
		ms, err := cast.ToFloat64E(v)
		if err != nil {
			return 0, err
		}
		return time.Duration(ms * float64(time.Millisecond)), nil
	}
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate(path string) error {
	if c.APIKey == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "api_key")
	}
	if err := c.Engine.Validate(joinPath(path, "engine")); err != nil {
		return err
	}
	if err := c.Session.Validate(joinPath(path, "session")); err != nil {
		return err
	}
	if err := c.Simulation.Validate(joinPath(path, "simulation")); err != nil {
		return err
	}
	for i, lpc := range c.LogConfig {
		if _, err := logging.LevelFromString(lpc.Level); err != nil {
			return utils.NewConfigValidationError(joinPath(path, "log", cast.ToString(i)), err)
		}
	}
	if c.LogFile != nil && c.LogFile.Path == "" {
		return utils.NewConfigValidationFieldRequiredError(joinPath(path, "log_file"), "path")
	}
	return nil
}

// Validate ensures the engine type is known.
func (e *Engine) Validate(path string) error {
	switch e.Type {
	case "":
		e.Type = EngineTypeFake
	case EngineTypeFake:
	default:
		return utils.NewConfigValidationError(path, errors.Errorf("unknown engine type %q", e.Type))
	}
	return nil
}

// Validate ensures the session tunables are in range.
func (s *Session) Validate(path string) error {
	if s.MinMeasCount != nil && *s.MinMeasCount < 0 {
		return utils.NewConfigValidationError(path, errors.New(`"min_meas_count" must not be negative`))
	}
	return nil
}

// Validate ensures the simulation settings are usable.
func (s *Simulation) Validate(path string) error {
	if s.Frames < 0 {
		return utils.NewConfigValidationError(path, errors.New(`"frames" must not be negative`))
	}
	interval, err := s.Interval()
	if err != nil {
		return utils.NewConfigValidationError(path, errors.Wrap(err, `invalid "frame_interval"`))
	}
	if interval <= 0 {
		return utils.NewConfigValidationError(path, errors.New(`"frame_interval" must be positive`))
	}
	return nil
}

func joinPath(parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += "."
		}
		out += p
	}
	return out
}

// AttributeMap is a loosely typed set of attributes decoded into a concrete config with Decode.
type AttributeMap map[string]interface{}

// Has reports whether the key is set.
func (am AttributeMap) Has(key string) bool {
	_, ok := am[key]
	return ok
}

var durationType = reflect.TypeOf(time.Duration(0))

// durationHook lets duration fields accept duration strings and bare milliseconds.
func durationHook(_, to reflect.Type, data interface{}) (interface{}, error) {
	if to != durationType {
		return data, nil
	}
	return durationAttribute(data, 0)
}

// DecodeAttributes decodes attributes into a new T using its json tags. Unknown attributes are an
// error so that typos do not go unnoticed.
func DecodeAttributes[T any](attributes AttributeMap) (T, error) {
	var out T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       durationHook,
	})
	if err != nil {
		return out, err
	}
	if err := decoder.Decode(map[string]interface{}(attributes)); err != nil {
		return out, errors.Wrap(err, "decoding attributes")
	}
	return out, nil
}

// MinMeasCountOr returns the configured landmark threshold or def.
func (s Session) MinMeasCountOr(def int) int {
	if s.MinMeasCount == nil {
		return def
	}
	return *s.MinMeasCount
}
