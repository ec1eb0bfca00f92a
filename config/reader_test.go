package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/arsession/logging"
)

func TestFromReaderValidate(t *testing.T) {
	logger := logging.NewTestLogger(t)

	_, err := FromReader("somepath", strings.NewReader(""), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "EOF")

	_, err = FromReader("somepath", strings.NewReader(`{"engine": 1}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unmarshal")

	_, err = FromReader("somepath", strings.NewReader(`{}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"api_key" is required`)

	_, err = FromReader("somepath", strings.NewReader(`{"api_key": "k", "engine": {"type": "cloud"}}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "engine")
	test.That(t, err.Error(), test.ShouldContainSubstring, `unknown engine type "cloud"`)

	_, err = FromReader("somepath", strings.NewReader(`{"api_key": "k", "log": [{"pattern": "a", "level": "loud"}]}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "log.0")

	_, err = FromReader("somepath", strings.NewReader(`{"api_key": "k", "simulation": {"frame_interval": "soon"}}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "frame_interval")

	conf, err := FromReader("somepath", strings.NewReader(`{"api_key": "k"}`), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf, test.ShouldResemble, &Config{
		ConfigFilePath: "somepath",
		APIKey:         "k",
		Engine:         Engine{Type: EngineTypeFake},
	})
}

func TestFromReaderYAML(t *testing.T) {
	doc := `
api_key: secret
debug: true
log:
  - pattern: "arsession.*"
    level: warn
engine:
  type: fake
  attributes:
    data_dir: /tmp/maps
    transfer_chunks: 4
session:
  min_meas_count: 3
simulation:
  frames: 10
  frame_interval: 50ms
`
	conf, err := FromReader("arsession.yaml", strings.NewReader(doc), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.APIKey, test.ShouldEqual, "secret")
	test.That(t, conf.Debug, test.ShouldBeTrue)
	test.That(t, conf.LogConfig, test.ShouldResemble, []logging.LoggerPatternConfig{{Pattern: "arsession.*", Level: "warn"}})
	test.That(t, conf.Engine.Attributes["data_dir"], test.ShouldEqual, "/tmp/maps")
	test.That(t, conf.Session.MinMeasCountOr(2), test.ShouldEqual, 3)
	interval, err := conf.Simulation.Interval()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, interval, test.ShouldEqual, 50*time.Millisecond)
}

func TestReadEnvSubstitution(t *testing.T) {
	t.Setenv("ARSESSION_TEST_KEY", "from-env")
	path := filepath.Join(t.TempDir(), "arsession.json")
	test.That(t, os.WriteFile(path, []byte(`{"api_key": "${ARSESSION_TEST_KEY}"}`), 0o600), test.ShouldBeNil)

	conf, err := Read(path, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.APIKey, test.ShouldEqual, "from-env")
	test.That(t, conf.ConfigFilePath, test.ShouldEqual, path)

	_, err = Read(filepath.Join(t.TempDir(), "missing.json"), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}
