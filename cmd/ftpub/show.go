package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/nebukadhezer/pyblish-ftrack/internal/session"
	"github.com/nebukadhezer/pyblish-ftrack/internal/store"
	"github.com/nebukadhezer/pyblish-ftrack/internal/util"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show TYPE ID",
	Short: "Show an entity with its metadata, members and placements",
	Args:  cobra.ExactArgs(2),
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	setupLogging()

	db, err := openStore(false, nil)
	if err != nil {
		return err
	}
	defer db.Close()

	entity, err := db.Get(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	keys := make([]string, 0, len(entity.Fields))
	values := make(map[string]string, len(entity.Fields))
	for k, v := range entity.Fields {
		if k == "link" {
			continue
		}
		keys = append(keys, k)
		if v == nil {
			values[k] = "-"
		} else {
			values[k] = entity.GetString(k)
		}
	}
	sort.Strings(keys)
	if links := entity.Link(); len(links) > 0 {
		keys = append(keys, "link")
		values["link"] = linkPath(links)
	}
	fmt.Fprintln(out, renderFields(fmt.Sprintf("%s %s", entity.Type, entity.ID), keys, values))

	if len(entity.Metadata) > 0 {
		fmt.Fprintln(out, renderFields("Metadata", entity.Metadata.Keys(), entity.Metadata))
	}

	if !store.IsComponentType(entity.Type) {
		return nil
	}
	return showComponent(ctx, cmd, db, entity)
}

func showComponent(ctx context.Context, cmd *cobra.Command, db *store.Store, component *session.Entity) error {
	out := cmd.OutOrStdout()

	members, err := db.Members(ctx, component.Ref())
	if err != nil {
		return err
	}
	if len(members) > 0 {
		rows := make([][]string, 0, len(members))
		for _, m := range members {
			rows = append(rows, []string{m.GetString("name"), m.ID, util.FormatBytes(m.GetInt("size"))})
		}
		fmt.Fprintln(out, renderTable([]string{"Member", "ID", "Size"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
	}

	locations, err := db.Locations(ctx)
	if err != nil {
		return err
	}
	byID := make(map[string]session.Location, len(locations))
	for _, l := range locations {
		byID[l.ID] = l
	}

	placements, err := db.ComponentLocations(ctx, component.Ref())
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(placements))
	for _, p := range placements {
		loc := byID[p.LocationID]
		path := p.ResourceIdentifier
		if loc.Kind == session.KindDisk {
			path = store.FilesystemPath(&loc, p.ResourceIdentifier)
		}
		rows = append(rows, []string{loc.Name, string(loc.Kind), path})
	}
	fmt.Fprintln(out, renderTable([]string{"Location", "Kind", "Path"}, rows, nil))
	return nil
}
