// Package cli contains the arsession command line: a session simulator driven by the fake engine
// and commands to inspect and manage the maps it stores.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

// Flags.
const (
	generalFlagConfig     = "config"
	generalFlagDebug      = "debug"
	generalFlagDataDir    = "data-dir"
	generalFlagNoProgress = "no-progress"

	simulateFlagFrames    = "frames"
	simulateFlagInterval  = "interval"
	simulateFlagLoad      = "load"
	simulateFlagNoSave    = "no-save"
	simulateFlagName      = "name"
	simulateFlagObjects   = "objects"
	simulateFlagLatitude  = "latitude"
	simulateFlagLongitude = "longitude"
	simulateFlagAltitude  = "altitude"

	searchFlagName      = "name"
	searchFlagLatitude  = "latitude"
	searchFlagLongitude = "longitude"
	searchFlagRadius    = "radius"
	searchFlagNewerThan = "newer-than"
	searchFlagOlderThan = "older-than"
	searchFlagUserdata  = "userdata"
)

func locationFlags(lat, lon string) []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{
			Name:  lat,
			Usage: "latitude in degrees",
		},
		&cli.Float64Flag{
			Name:  lon,
			Usage: "longitude in degrees",
		},
	}
}

var app = &cli.App{
	Name:            "arsession",
	Usage:           "simulate AR mapping sessions and manage their maps",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    generalFlagConfig,
			Aliases: []string{"c"},
			Usage:   "load configuration from `FILE` (JSON or YAML)",
		},
		&cli.PathFlag{
			Name:  generalFlagDataDir,
			Usage: "map store directory, overriding the engine's data_dir attribute",
		},
		&cli.BoolFlag{
			Name:    generalFlagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
		&cli.BoolFlag{
			Name:  generalFlagNoProgress,
			Usage: "do not show progress spinners",
		},
	},
	Commands: []*cli.Command{
		{
			Name:      "simulate",
			Usage:     "run a session over a simulated camera path",
			UsageText: "arsession simulate [--load <map id>] [other options]",
			Flags: append([]cli.Flag{
				&cli.IntFlag{
					Name:  simulateFlagFrames,
					Usage: "number of frames to feed, overriding the config",
				},
				&cli.DurationFlag{
					Name:  simulateFlagInterval,
					Usage: "time between frames, overriding the config",
				},
				&cli.StringFlag{
					Name:  simulateFlagLoad,
					Usage: "localize against the map with this id",
				},
				&cli.BoolFlag{
					Name:  simulateFlagNoSave,
					Usage: "do not save the map at the end of the session",
				},
				&cli.StringFlag{
					Name:  simulateFlagName,
					Usage: "name stored with the saved map",
				},
				&cli.IntFlag{
					Name:  simulateFlagObjects,
					Usage: "number of random shapes to place along the path",
				},
				&cli.Float64Flag{
					Name:  simulateFlagAltitude,
					Usage: "altitude in meters",
				},
			}, locationFlags(simulateFlagLatitude, simulateFlagLongitude)...),
			Action: SimulateAction,
		},
		{
			Name:            "maps",
			Usage:           "work with stored maps",
			HideHelpCommand: true,
			Subcommands: []*cli.Command{
				{
					Name:   "list",
					Usage:  "list every map",
					Action: ListMapsAction,
				},
				{
					Name:  "search",
					Usage: "list the maps matching every given filter",
					Flags: append([]cli.Flag{
						&cli.StringFlag{
							Name:  searchFlagName,
							Usage: "case-insensitive substring of the map name",
						},
						&cli.Float64Flag{
							Name:  searchFlagRadius,
							Usage: "search radius in meters around --latitude and --longitude",
							Value: 100,
						},
						&cli.DurationFlag{
							Name:  searchFlagNewerThan,
							Usage: "only maps created less than this long ago",
						},
						&cli.DurationFlag{
							Name:  searchFlagOlderThan,
							Usage: "only maps created more than this long ago",
						},
						&cli.StringFlag{
							Name:  searchFlagUserdata,
							Usage: "only maps whose userdata has this path, e.g. shapeArray.0",
						},
					}, locationFlags(searchFlagLatitude, searchFlagLongitude)...),
					Action: SearchMapsAction,
				},
				{
					Name:      "show",
					Usage:     "show a map's metadata and placed objects",
					ArgsUsage: "<map id>",
					Action:    ShowMapAction,
				},
				{
					Name:      "delete",
					Usage:     "delete a map",
					ArgsUsage: "<map id>",
					Action:    DeleteMapAction,
				},
			},
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
