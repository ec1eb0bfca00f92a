package cli

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/urfave/cli/v2"
	"go.viam.com/test"

	"go.viam.com/arsession/engine"
	"go.viam.com/arsession/metadata"
)

type testRun struct {
	out    bytes.Buffer
	errOut bytes.Buffer
}

func runApp(t *testing.T, args ...string) (*testRun, error) {
	t.Helper()
	r := &testRun{}
	app := NewApp(&r.out, &r.errOut)
	err := app.Run(append([]string{"arsession", "--no-progress"}, args...))
	return r, err
}

var mapIDLine = regexp.MustCompile(`Map ID:\s+(\S+)`)

func simulateMap(t *testing.T, dir string, extra ...string) string {
	t.Helper()
	args := append([]string{"--data-dir", dir, "simulate", "--frames", "30", "--interval", "5ms"}, extra...)
	r, err := runApp(t, args...)
	test.That(t, err, test.ShouldBeNil)
	match := mapIDLine.FindStringSubmatch(r.out.String())
	test.That(t, match, test.ShouldHaveLength, 2)
	return match[1]
}

func TestSimulateAndManageMaps(t *testing.T) {
	dir := t.TempDir()
	mapID := simulateMap(t, dir,
		"--objects", "2", "--name", "Kitchen", "--latitude", "45.5", "--longitude", "-73.6")

	entries, err := os.ReadDir(dir)
	test.That(t, err, test.ShouldBeNil)
	names := []string{}
	for _, e := range entries {
		names = append(names, e.Name())
	}
	test.That(t, names, test.ShouldContain, mapID+".map")
	test.That(t, names, test.ShouldContain, mapID+".png")

	r, err := runApp(t, "--data-dir", dir, "maps", "list")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r.out.String(), test.ShouldContainSubstring, mapID)
	test.That(t, r.out.String(), test.ShouldContainSubstring, "Kitchen")

	r, err = runApp(t, "--data-dir", dir, "maps", "search", "--name", "kitch", "--latitude", "45.5", "--longitude", "-73.6")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r.out.String(), test.ShouldContainSubstring, mapID)

	r, err = runApp(t, "--data-dir", dir, "maps", "search", "--name", "garage")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r.out.String(), test.ShouldContainSubstring, "No maps found.")

	r, err = runApp(t, "--data-dir", dir, "maps", "show", mapID)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r.out.String(), test.ShouldContainSubstring, "Name:     Kitchen")
	test.That(t, r.out.String(), test.ShouldContainSubstring, "45.500000, -73.600000")
	test.That(t, r.out.String(), test.ShouldContainSubstring, "SHAPE")

	// Localizing against the saved map finds it once and shows the stored objects.
	r, err = runApp(t, "--data-dir", dir, "simulate", "--frames", "30", "--interval", "5ms", "--load", mapID)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r.out.String(), test.ShouldContainSubstring, "Mode:             localizing")
	test.That(t, r.out.String(), test.ShouldContainSubstring, "Localized:        1")
	test.That(t, r.out.String(), test.ShouldContainSubstring, "Objects:          2 (drawn true)")
	test.That(t, r.out.String(), test.ShouldNotContainSubstring, "Map ID:")

	r, err = runApp(t, "--data-dir", dir, "maps", "delete", mapID)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r.out.String(), test.ShouldContainSubstring, "Deleted map "+mapID)

	r, err = runApp(t, "--data-dir", dir, "maps", "list")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r.out.String(), test.ShouldContainSubstring, "No maps found.")

	_, err = runApp(t, "--data-dir", dir, "maps", "delete", mapID)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = runApp(t, "--data-dir", dir, "maps", "show")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSimulateWithConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arsession.yaml")
	test.That(t, os.WriteFile(path, []byte(`
api_key: ${ARSESSION_TEST_KEY}
engine:
  type: fake
  attributes:
    api_key: ${ARSESSION_TEST_KEY}
    data_dir: `+filepath.Join(dir, "maps")+`
    transfer_chunks: 2
    transfer_delay: 1ms
session:
  min_meas_count: 1
simulation:
  frames: 12
  frame_interval: 2
`), 0o600), test.ShouldBeNil)
	t.Setenv("ARSESSION_TEST_KEY", "from-env")

	r, err := runApp(t, "--config", path, "simulate")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r.out.String(), test.ShouldContainSubstring, "Mode:             mapping")
	test.That(t, mapIDLine.MatchString(r.out.String()), test.ShouldBeTrue)

	r, err = runApp(t, "--config", path, "maps", "list")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r.out.String(), test.ShouldNotContainSubstring, "No maps found.")
}

func TestSimulateRejectsBadEngineConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arsession.json")
	test.That(t, os.WriteFile(path, []byte(`{
		"api_key": "key",
		"engine": {"type": "fake", "attributes": {"transfer_chunk": 2}}
	}`), 0o600), test.ShouldBeNil)

	_, err := runApp(t, "--config", path, "simulate", "--no-save")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "transfer_chunk")
}

func newFlagContext(t *testing.T, cmd *cli.Command, args ...string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
	for _, f := range cmd.Flags {
		test.That(t, f.Apply(set), test.ShouldBeNil)
	}
	test.That(t, set.Parse(args), test.ShouldBeNil)
	return cli.NewContext(NewApp(&bytes.Buffer{}, &bytes.Buffer{}), set, nil)
}

func findCommand(names ...string) *cli.Command {
	cmds := app.Commands
	var found *cli.Command
	for _, name := range names {
		for _, cmd := range cmds {
			if cmd.Name == name {
				found = cmd
				cmds = cmd.Subcommands
				break
			}
		}
	}
	return found
}

func TestSearchFromFlags(t *testing.T) {
	cmd := findCommand("maps", "search")
	now := time.UnixMilli(1_700_000_000_000)

	search, err := searchFromFlags(newFlagContext(t, cmd,
		"--name", "kit", "--latitude", "1", "--longitude", "2", "--radius", "50",
		"--newer-than", "24h", "--older-than", "1h", "--userdata", "shapeArray.0"), now)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, search.Name, test.ShouldEqual, "kit")
	test.That(t, search.UserdataQuery, test.ShouldEqual, "shapeArray.0")
	test.That(t, *search.Location, test.ShouldResemble, metadata.LocationSearch{Latitude: 1, Longitude: 2, Radius: 50})
	test.That(t, search.NewerThan, test.ShouldEqual, float64(now.Add(-24*time.Hour).UnixMilli()))
	test.That(t, search.OlderThan, test.ShouldEqual, float64(now.Add(-time.Hour).UnixMilli()))

	_, err = searchFromFlags(newFlagContext(t, cmd, "--latitude", "1"), now)
	test.That(t, err, test.ShouldNotBeNil)

	search, err = searchFromFlags(newFlagContext(t, cmd), now)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, search.Location, test.ShouldBeNil)
	test.That(t, search.NewerThan, test.ShouldEqual, 0.)
}

func TestSummarizeMeasCounts(t *testing.T) {
	test.That(t, summarizeMeasCounts(nil), test.ShouldEqual, "0")

	points := []engine.FeaturePoint{{MeasCount: 4}, {MeasCount: 1}, {MeasCount: 9}, {MeasCount: 2}}
	test.That(t, summarizeMeasCounts(points), test.ShouldEqual, "4 (median 3 observations, max 9)")
}
