package cli

import (
	"context"
	"io"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/arsession/config"
	"go.viam.com/arsession/engine/fake"
	"go.viam.com/arsession/logging"
	"go.viam.com/arsession/metadata"
	"go.viam.com/arsession/objects"
	"go.viam.com/arsession/session"
)

// defaultAPIKey is used without a config file. The fake engine accepts any key unless its
// api_key attribute is set.
const defaultAPIKey = "simulated"

// sessionClient wraps a cli.Context and owns an initialized session manager running on the fake
// engine.
type sessionClient struct {
	c            *cli.Context
	conf         *config.Config
	logger       logging.Logger
	clock        clock.Clock
	manager      *session.Manager
	minMeasCount int
	objectsKey   string
	closers      []io.Closer
}

func defaultConfig() *config.Config {
	return &config.Config{
		APIKey: defaultAPIKey,
		Engine: config.Engine{Type: config.EngineTypeFake},
	}
}

func newLogger(c *cli.Context) logging.Logger {
	logger := logging.NewBlankLogger("arsession")
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
	config.InitLoggingSettings(logger, c.Bool(generalFlagDebug))
	return logger
}

func loadConfig(c *cli.Context, logger logging.Logger) (*config.Config, error) {
	conf := defaultConfig()
	if path := c.String(generalFlagConfig); path != "" {
		var err error
		if conf, err = config.Read(path, logger); err != nil {
			return nil, err
		}
	}
	if dir := c.Path(generalFlagDataDir); dir != "" {
		if conf.Engine.Attributes == nil {
			conf.Engine.Attributes = config.AttributeMap{}
		}
		conf.Engine.Attributes["data_dir"] = dir
	}
	return conf, nil
}

func newSessionClient(c *cli.Context) (*sessionClient, error) {
	logger := newLogger(c)
	conf, err := loadConfig(c, logger)
	if err != nil {
		return nil, err
	}
	client := &sessionClient{
		c:            c,
		conf:         conf,
		logger:       logger,
		clock:        clock.New(),
		minMeasCount: conf.Session.MinMeasCountOr(session.DefaultMinMeasCount),
		objectsKey:   conf.Session.ObjectsKey,
	}
	if client.objectsKey == "" {
		client.objectsKey = objects.ShapeArrayKey
	}
	if err := config.ApplyLogging(conf, logger); err != nil {
		return nil, err
	}
	if conf.LogFile != nil {
		core, closer, err := logging.NewFileAppender(*conf.LogFile)
		if err != nil {
			return nil, errors.Wrap(err, "opening log file")
		}
		logger.AddAppender(core)
		client.closers = append(client.closers, closer)
	}

	engCfg, err := config.DecodeAttributes[fake.Config](conf.Engine.Attributes)
	if err != nil {
		return nil, multierr.Combine(err, client.closeFiles())
	}
	eng, err := fake.NewEngine(engCfg, client.clock, logger.Sublogger("engine"))
	if err != nil {
		return nil, multierr.Combine(err, client.closeFiles())
	}
	var opts []session.Option
	if conf.DataFile != "" {
		opts = append(opts, session.WithDataFile(conf.DataFile))
	}
	client.manager = session.NewManager(eng, logger.Sublogger("session"), opts...)

	initialized := make(chan error, 1)
	if err := client.manager.Initialize(c.Context, conf.APIKey, func(err error) { initialized <- err }); err != nil {
		return nil, multierr.Combine(err, client.close())
	}
	select {
	case err = <-initialized:
	case <-c.Context.Done():
		err = c.Context.Err()
	}
	if err != nil {
		return nil, multierr.Combine(errors.Wrap(err, "initializing engine"), client.close())
	}
	return client, nil
}

func (c *sessionClient) closeFiles() error {
	var errs error
	for _, closer := range c.closers {
		errs = multierr.Append(errs, closer.Close())
	}
	c.closers = nil
	return errs
}

func (c *sessionClient) close() error {
	err := c.manager.Close(context.Background())
	return multierr.Combine(err, c.closeFiles())
}

// await runs start and waits for the value it delivers.
func await[T any](ctx context.Context, start func(done func(T)) error) (T, error) {
	ch := make(chan T, 1)
	var zero T
	if err := start(func(v T) { ch <- v }); err != nil {
		return zero, err
	}
	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

type mapsResult struct {
	ok   bool
	maps map[string]metadata.Metadata
}

func (c *sessionClient) listMaps() (map[string]metadata.Metadata, error) {
	res, err := await(c.c.Context, func(done func(mapsResult)) error {
		c.manager.ListMaps(func(ok bool, maps map[string]metadata.Metadata) { done(mapsResult{ok, maps}) })
		return nil
	})
	if err == nil && !res.ok {
		err = errors.New("could not list maps")
	}
	return res.maps, err
}

func (c *sessionClient) searchMaps(search metadata.Search) (map[string]metadata.Metadata, error) {
	res, err := await(c.c.Context, func(done func(mapsResult)) error {
		c.manager.SearchMaps(search, func(ok bool, maps map[string]metadata.Metadata) { done(mapsResult{ok, maps}) })
		return nil
	})
	if err == nil && !res.ok {
		err = errors.New("could not search maps")
	}
	return res.maps, err
}

type metadataResult struct {
	ok bool
	md metadata.Metadata
}

func (c *sessionClient) getMetadata(mapID string) (metadata.Metadata, error) {
	res, err := await(c.c.Context, func(done func(metadataResult)) error {
		c.manager.GetMetadata(mapID, func(ok bool, md metadata.Metadata) { done(metadataResult{ok, md}) })
		return nil
	})
	if err == nil && !res.ok {
		err = errors.Errorf("could not get metadata of map %q", mapID)
	}
	return res.md, err
}

func (c *sessionClient) setMetadata(mapID string, md metadata.Settable) error {
	ok, err := await(c.c.Context, func(done func(bool)) error {
		return c.manager.SetMetadata(mapID, md, done)
	})
	if err == nil && !ok {
		err = errors.Errorf("could not set metadata of map %q", mapID)
	}
	return err
}

func (c *sessionClient) deleteMap(mapID string) error {
	ok, err := await(c.c.Context, func(done func(bool)) error {
		c.manager.DeleteMap(mapID, done)
		return nil
	})
	if err == nil && !ok {
		err = errors.Errorf("could not delete map %q", mapID)
	}
	return err
}
