package cli

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/atomic"

	"go.viam.com/arsession/config"
	"go.viam.com/arsession/engine"
	"go.viam.com/arsession/event"
	"go.viam.com/arsession/metadata"
	"go.viam.com/arsession/objects"
	"go.viam.com/arsession/scene"
	"go.viam.com/arsession/session"
	"go.viam.com/arsession/spatialmath"
	"go.viam.com/arsession/thumbnail"
)

const (
	defaultSimulatedFrames = 90
	defaultFrameWidth      = 64
	defaultFrameHeight     = 48
	// eyeHeight is the height of the simulated camera above the floor in meters.
	eyeHeight = 1.5
	// walkSpeed is how far the simulated camera moves per frame in meters.
	walkSpeed = 0.02
	// drainTimeout bounds the wait for queued session callbacks.
	drainTimeout = 10 * time.Second
)

type simulateOptions struct {
	frames   int
	interval time.Duration
	width    int
	height   int
	load     string
	save     bool
	name     string
	objects  int
	location *metadata.Location
}

func simulateOptionsFromFlags(cCtx *cli.Context, sim config.Simulation) (simulateOptions, error) {
	interval, err := sim.Interval()
	if err != nil {
		return simulateOptions{}, err
	}
	opts := simulateOptions{
		frames:   sim.Frames,
		interval: interval,
		width:    sim.Width,
		height:   sim.Height,
		load:     cCtx.String(simulateFlagLoad),
		name:     cCtx.String(simulateFlagName),
		objects:  cCtx.Int(simulateFlagObjects),
	}
	opts.save = !cCtx.Bool(simulateFlagNoSave) && opts.load == ""
	if cCtx.IsSet(simulateFlagFrames) {
		opts.frames = cCtx.Int(simulateFlagFrames)
	}
	if cCtx.IsSet(simulateFlagInterval) {
		opts.interval = cCtx.Duration(simulateFlagInterval)
	}
	if opts.frames <= 0 {
		opts.frames = defaultSimulatedFrames
	}
	if opts.width <= 0 {
		opts.width = defaultFrameWidth
	}
	if opts.height <= 0 {
		opts.height = defaultFrameHeight
	}
	if opts.objects < 0 {
		return opts, errors.Errorf("--%s must not be negative", simulateFlagObjects)
	}
	switch lat, lon := cCtx.IsSet(simulateFlagLatitude), cCtx.IsSet(simulateFlagLongitude); {
	case lat && lon:
		opts.location = &metadata.Location{
			Latitude:  cCtx.Float64(simulateFlagLatitude),
			Longitude: cCtx.Float64(simulateFlagLongitude),
			Altitude:  cCtx.Float64(simulateFlagAltitude),
		}
	case lat || lon:
		return opts, errors.Errorf("--%s and --%s must be given together", simulateFlagLatitude, simulateFlagLongitude)
	}
	return opts, nil
}

// SimulateAction is the corresponding Action for 'simulate'.
func SimulateAction(cCtx *cli.Context) error {
	c, err := newSessionClient(cCtx)
	if err != nil {
		return err
	}
	defer closeClient(c)

	opts, err := simulateOptionsFromFlags(cCtx, c.conf.Simulation)
	if err != nil {
		return err
	}
	return c.simulate(opts)
}

// simulation holds the listeners of one simulated session.
type simulation struct {
	*sessionClient
	opts     simulateOptions
	progress *ProgressManager

	objects  *objects.Manager
	rig      *scene.CameraRig
	points   *scene.FeaturePointVisualizer
	selector *thumbnail.Selector

	localized  atomic.Int32
	lost       atomic.Int32
	thumbnails atomic.Int32
}

func (s *simulation) OnLocalized() {
	s.localized.Inc()
}

func (s *simulation) OnLost() {
	s.lost.Inc()
}

func (c *sessionClient) simulate(opts simulateOptions) error {
	steps := []*Step{
		{ID: "session", Message: "Running simulated session"},
		{ID: "load", Message: fmt.Sprintf("Loading map %s", opts.load), IndentLevel: 1},
		{ID: "track", Message: fmt.Sprintf("Tracking %d frames", opts.frames), IndentLevel: 1},
		{ID: "save", Message: "Saving map", IndentLevel: 1},
		{ID: "metadata", Message: "Saving metadata", IndentLevel: 1},
	}
	s := &simulation{
		sessionClient: c,
		opts:          opts,
		progress:      NewProgressManager(c.c.App.Writer, steps, WithProgressOutput(!c.c.Bool(generalFlagNoProgress))),
		objects:       objects.NewManager(c.objectsKey, c.manager.Reconciler(), c.logger.Sublogger("objects")),
		rig:           scene.NewCameraRig(c.logger.Sublogger("camera")),
		points:        scene.NewFeaturePointVisualizer(c.manager, c.minMeasCount, c.clock, c.logger.Sublogger("points")),
		selector:      thumbnail.NewSelector(c.manager, c.minMeasCount, c.logger.Sublogger("thumbnail")),
	}
	defer s.progress.Stop()
	defer s.points.Close()

	var registrations []event.Disposable
	defer func() {
		for _, r := range registrations {
			r.Dispose()
		}
	}()
	for _, l := range []any{s.objects, s.rig, s.points, s.selector, s} {
		r, err := c.manager.Multicast().AddListener(l)
		if err != nil {
			return err
		}
		registrations = append(registrations, r)
	}
	registrations = append(registrations, s.selector.OnSelected(func(image.Image) { s.thumbnails.Inc() }))

	if path := c.conf.ConfigFilePath; path != "" {
		watcher, err := config.NewWatcher(path, func(*config.Config) {
			c.logger.Info("log settings reloaded from config")
		}, c.logger.Sublogger("config"))
		if err != nil {
			return err
		}
		defer func() {
			if err := watcher.Close(); err != nil {
				c.logger.Debugw("failed to close config watcher", "error", err)
			}
		}()
	}

	if err := s.progress.Start("session"); err != nil {
		return err
	}
	if err := s.run(); err != nil {
		_ = s.progress.Fail("session", err) //nolint:errcheck
		return err
	}
	if err := s.progress.Complete("session", "Simulated session finished"); err != nil {
		return err
	}
	s.printSummary()
	return nil
}

func (s *simulation) run() error {
	if s.opts.load != "" {
		if err := s.step("load", s.loadMap); err != nil {
			return err
		}
	} else if err := s.manager.StartSession(false); err != nil {
		return err
	}
	if err := s.step("track", s.track); err != nil {
		return err
	}
	if !s.opts.save {
		return nil
	}
	if err := s.step("save", s.saveMap); err != nil {
		return err
	}
	return s.step("metadata", s.saveMetadata)
}

func (s *simulation) step(id string, fn func() error) error {
	if err := s.progress.Start(id); err != nil {
		return err
	}
	if err := fn(); err != nil {
		_ = s.progress.Fail(id, err) //nolint:errcheck
		return err
	}
	return s.progress.Complete(id, "")
}

// transferProgress turns a transfer's progress reports into spinner text and sends the terminal
// report to done.
func (s *simulation) transferProgress(what string, done chan<- session.TransferProgress) func(session.TransferProgress) {
	return func(p session.TransferProgress) {
		s.progress.UpdateText(fmt.Sprintf(" %s %3.0f%%", what, p.Percentage*100))
		if p.Completed || p.Faulted {
			done <- p
		}
	}
}

func (s *simulation) waitTransfer(what string, done <-chan session.TransferProgress) error {
	select {
	case p := <-done:
		if p.Faulted {
			return errors.Errorf("%s faulted at %.0f%%", what, p.Percentage*100)
		}
		return nil
	case <-s.c.Context.Done():
		return s.c.Context.Err()
	}
}

func (s *simulation) loadMap() error {
	md, err := s.getMetadata(s.opts.load)
	if err != nil {
		return err
	}
	if err := s.objects.Load(md); err != nil {
		s.logger.Warnw("placed objects could not be loaded", "map_id", s.opts.load, "error", err)
	}
	done := make(chan session.TransferProgress, 1)
	if err := s.manager.LoadMap(s.opts.load, s.transferProgress("Loading map", done)); err != nil {
		return err
	}
	return s.waitTransfer("map download", done)
}

// simulatedFrame returns frame i of a walk along the x axis that sways left and right.
func simulatedFrame(i int, opts simulateOptions, at time.Time) engine.Frame {
	t := float64(i)
	x := t * walkSpeed
	z := 0.5 + 0.3*math.Sin(t/15)
	yaw := 0.3 * math.Cos(t/15)
	pose := spatialmath.NewPose(r3.Vector{X: x, Y: eyeHeight, Z: z}, spatialmath.QuatFromYaw(yaw))

	img := image.NewNRGBA(image.Rect(0, 0, opts.width, opts.height))
	for y := 0; y < opts.height; y++ {
		for px := 0; px < opts.width; px++ {
			img.SetNRGBA(px, y, color.NRGBA{R: uint8(px + i), G: uint8(y * 4), B: uint8(i * 2), A: 255})
		}
	}
	return engine.Frame{
		Image: img,
		Pose:  pose,
		Intrinsics: engine.Intrinsics{
			Width:  opts.width,
			Height: opts.height,
			Fx:     float64(opts.width),
			Fy:     float64(opts.width),
			Cx:     float64(opts.width) / 2,
			Cy:     float64(opts.height) / 2,
		},
		Timestamp: at,
	}
}

func (s *simulation) track() error {
	ticker := s.clock.Ticker(s.opts.interval)
	defer ticker.Stop()

	placeEvery := 0
	if s.opts.objects > 0 {
		placeEvery = s.opts.frames / (s.opts.objects + 1)
		if placeEvery == 0 {
			placeEvery = 1
		}
	}
	placed := 0
	for i := 0; i < s.opts.frames; i++ {
		frame := simulatedFrame(i, s.opts, s.clock.Now())
		s.manager.SetFrame(frame)
		s.rig.SetLivePose(frame.Pose)

		if placeEvery > 0 && placed < s.opts.objects && i >= placeEvery*(placed+1) {
			// Objects go one meter in front of the camera.
			ahead := frame.Pose.TransformPoint(r3.Vector{Z: -1})
			if _, err := s.objects.PlaceRandomShape(ahead); err == nil {
				placed++
			} else if !errors.Is(err, objects.ErrNotTracking) {
				return err
			}
		}
		s.progress.UpdateText(fmt.Sprintf(" Tracking frame %d/%d (%s)", i+1, s.opts.frames, s.manager.Status()))

		select {
		case <-ticker.C:
		case <-s.c.Context.Done():
			return s.c.Context.Err()
		}
	}
	ctx, cancel := context.WithTimeout(s.c.Context, drainTimeout)
	defer cancel()
	if err := s.manager.Drain(ctx); err != nil {
		return err
	}
	if placed < s.opts.objects {
		warningf(s.c.App.ErrWriter, "placed %d of %d objects; the session was not tracking often enough", placed, s.opts.objects)
	}
	return nil
}

type savedMap struct {
	id  string
	err error
}

func (s *simulation) saveMap() error {
	saved := make(chan savedMap, 1)
	done := make(chan session.TransferProgress, 1)
	err := s.manager.SaveMap(
		func(mapID string, err error) { saved <- savedMap{mapID, err} },
		s.transferProgress("Uploading map", done),
	)
	if err != nil {
		return err
	}
	var res savedMap
	select {
	case res = <-saved:
	case <-s.c.Context.Done():
		return s.c.Context.Err()
	}
	if res.err != nil {
		return res.err
	}
	return s.waitTransfer("map upload", done)
}

func (s *simulation) saveMetadata() error {
	mapID := s.manager.CurrentMapID()
	userdata, err := s.objects.Userdata(nil)
	if err != nil {
		return err
	}
	return s.setMetadata(mapID, metadata.Settable{
		Name:     s.opts.name,
		Location: s.opts.location,
		Userdata: userdata,
	})
}

func (s *simulation) printSummary() {
	w := s.c.App.Writer
	printf(w, "Session:          %s", s.manager.SessionID())
	printf(w, "Mode:             %s", s.manager.Mode())
	printf(w, "Status:           %s", s.manager.Status())
	printf(w, "Mapping quality:  %s", s.manager.MappingQuality())
	printf(w, "Map points:       %s", summarizeMeasCounts(s.manager.MapPoints(s.minMeasCount)))
	printf(w, "Localized:        %d (lost %d)", s.localized.Load(), s.lost.Load())
	printf(w, "Objects:          %d (drawn %t)", len(s.objects.Objects()), s.objects.Drawn())
	printf(w, "Thumbnails:       %d (best view %d features)", s.thumbnails.Load(), s.selector.MaxFeatures())
	printf(w, "Camera:           %s", s.rig.Camera())
	if s.opts.save {
		printf(w, "Map ID:           %s", s.manager.CurrentMapID())
	}
}

// summarizeMeasCounts reports how many points there are and how often they were observed.
func summarizeMeasCounts(points []engine.FeaturePoint) string {
	counts := make(stats.Float64Data, 0, len(points))
	for _, p := range points {
		counts = append(counts, float64(p.MeasCount))
	}
	median, err := counts.Median()
	if err != nil {
		return fmt.Sprintf("%d", len(points))
	}
	most, err := counts.Max()
	if err != nil {
		return fmt.Sprintf("%d", len(points))
	}
	return fmt.Sprintf("%d (median %g observations, max %g)", len(points), median, most)
}
