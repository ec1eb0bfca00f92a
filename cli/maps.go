package cli

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"go.viam.com/arsession/metadata"
	"go.viam.com/arsession/objects"
)

// ListMapsAction is the corresponding Action for 'maps list'.
func ListMapsAction(cCtx *cli.Context) error {
	c, err := newSessionClient(cCtx)
	if err != nil {
		return err
	}
	defer closeClient(c)

	maps, err := c.listMaps()
	if err != nil {
		return err
	}
	c.printMaps(maps)
	return nil
}

// SearchMapsAction is the corresponding Action for 'maps search'.
func SearchMapsAction(cCtx *cli.Context) error {
	search, err := searchFromFlags(cCtx, time.Now())
	if err != nil {
		return err
	}
	c, err := newSessionClient(cCtx)
	if err != nil {
		return err
	}
	defer closeClient(c)

	maps, err := c.searchMaps(search)
	if err != nil {
		return err
	}
	c.printMaps(maps)
	return nil
}

func searchFromFlags(cCtx *cli.Context, now time.Time) (metadata.Search, error) {
	search := metadata.Search{
		Name:          cCtx.String(searchFlagName),
		UserdataQuery: cCtx.String(searchFlagUserdata),
	}
	switch lat, lon := cCtx.IsSet(searchFlagLatitude), cCtx.IsSet(searchFlagLongitude); {
	case lat && lon:
		search.Location = &metadata.LocationSearch{
			Latitude:  cCtx.Float64(searchFlagLatitude),
			Longitude: cCtx.Float64(searchFlagLongitude),
			Radius:    cCtx.Float64(searchFlagRadius),
		}
	case lat || lon:
		return search, errors.Errorf("--%s and --%s must be given together", searchFlagLatitude, searchFlagLongitude)
	}
	if d := cCtx.Duration(searchFlagNewerThan); d > 0 {
		search.SetNewerThan(now.Add(-d))
	}
	if d := cCtx.Duration(searchFlagOlderThan); d > 0 {
		search.SetOlderThan(now.Add(-d))
	}
	return search, nil
}

// ShowMapAction is the corresponding Action for 'maps show'.
func ShowMapAction(cCtx *cli.Context) error {
	mapID := cCtx.Args().First()
	if mapID == "" {
		return errors.New("a map id is required")
	}
	c, err := newSessionClient(cCtx)
	if err != nil {
		return err
	}
	defer closeClient(c)

	md, err := c.getMetadata(mapID)
	if err != nil {
		return err
	}
	printf(cCtx.App.Writer, "Map:      %s", mapID)
	printf(cCtx.App.Writer, "Name:     %s", md.Name)
	printf(cCtx.App.Writer, "Created:  %s", formatCreated(md))
	printf(cCtx.App.Writer, "Location: %s", formatLocation(md.Location))

	raw, ok := metadata.UserdataField(md.Userdata, c.objectsKey)
	if !ok {
		printf(cCtx.App.Writer, "No placed objects.")
		return nil
	}
	objs, err := objects.Decode(raw)
	if err != nil {
		warningf(cCtx.App.ErrWriter, "some placed objects could not be read: %v", err)
	}
	printObjects(cCtx.App.Writer, objs)
	return nil
}

// DeleteMapAction is the corresponding Action for 'maps delete'.
func DeleteMapAction(cCtx *cli.Context) error {
	mapID := cCtx.Args().First()
	if mapID == "" {
		return errors.New("a map id is required")
	}
	c, err := newSessionClient(cCtx)
	if err != nil {
		return err
	}
	defer closeClient(c)

	if err := c.deleteMap(mapID); err != nil {
		return err
	}
	printf(cCtx.App.Writer, "Deleted map %s", mapID)
	return nil
}

func closeClient(c *sessionClient) {
	if err := c.close(); err != nil {
		c.logger.Warnw("failed to close session", "error", err)
	}
}

func formatCreated(md metadata.Metadata) string {
	if md.Created == 0 {
		return "-"
	}
	return md.CreatedTime().UTC().Format(time.RFC3339)
}

func formatLocation(loc *metadata.Location) string {
	if loc == nil {
		return "-"
	}
	return fmt.Sprintf("%.6f, %.6f (%.1fm)", loc.Latitude, loc.Longitude, loc.Altitude)
}

func objectCount(md metadata.Metadata, key string) int {
	raw, ok := metadata.UserdataField(md.Userdata, key)
	if !ok {
		return 0
	}
	objs, _ := objects.Decode(raw) //nolint:errcheck
	return len(objs)
}

// sortedMapIDs orders maps oldest first, breaking ties by id.
func sortedMapIDs(maps map[string]metadata.Metadata) []string {
	ids := lo.Keys(maps)
	sort.Slice(ids, func(i, j int) bool {
		a, b := maps[ids[i]], maps[ids[j]]
		if a.Created != b.Created {
			return a.Created < b.Created
		}
		return ids[i] < ids[j]
	})
	return ids
}

func (c *sessionClient) printMaps(maps map[string]metadata.Metadata) {
	if len(maps) == 0 {
		printf(c.c.App.Writer, "No maps found.")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(c.c.App.Writer)
	t.AppendHeader(table.Row{"#", "Map ID", "Name", "Created", "Location", "Objects"})
	for i, id := range sortedMapIDs(maps) {
		md := maps[id]
		t.AppendRow(table.Row{i + 1, id, md.Name, formatCreated(md), formatLocation(md.Location), objectCount(md, c.objectsKey)})
	}
	t.Render()
}

func printObjects(w io.Writer, objs []objects.PlacedObject) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"#", "Shape", "Position", "Rotation"})
	for i, o := range objs {
		t.AppendRow(table.Row{
			i + 1,
			objects.ShapeType(o.Type),
			fmt.Sprintf("%.3f, %.3f, %.3f", o.Position[0], o.Position[1], o.Position[2]),
			fmt.Sprintf("%.3f, %.3f, %.3f, %.3f", o.Rotation[0], o.Rotation[1], o.Rotation[2], o.Rotation[3]),
		})
	}
	t.Render()
}
