package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nebukadhezer/pyblish-ftrack/internal/store"
	"github.com/nebukadhezer/pyblish-ftrack/internal/util"
	"github.com/spf13/cobra"
)

var locationCmd = &cobra.Command{
	Use:   "location",
	Short: "List and register component locations",
}

var locationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List locations by priority",
	Args:  cobra.NoArgs,
	RunE:  runLocationList,
}

var locationAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Register or update a disk location",
	Long: `Register a disk location. Components added to it are transferred
below --root. The disk location with the lowest priority value is picked
when a deliverable names no location.`,
	Args: cobra.ExactArgs(1),
	RunE: runLocationAdd,
}

func init() {
	rootCmd.AddCommand(locationCmd)
	locationCmd.AddCommand(locationListCmd)
	locationCmd.AddCommand(locationAddCmd)

	locationAddCmd.Flags().String("root", "", "directory component data is placed under")
	locationAddCmd.Flags().Int("priority", 0, "pick order, lower first (default 100)")
	locationAddCmd.MarkFlagRequired("root")
}

func runLocationList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	setupLogging()

	db, err := openStore(false, nil)
	if err != nil {
		return err
	}
	defer db.Close()

	locations, err := db.Locations(ctx)
	if err != nil {
		return err
	}
	picked, err := db.PickLocation(ctx)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(locations))
	for _, l := range locations {
		mark := ""
		if l.ID == picked.ID {
			mark = "*"
		}
		rows = append(rows, []string{mark, l.Name, string(l.Kind), strconv.Itoa(l.Priority), l.Root})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"", "Name", "Kind", "Priority", "Root"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
	return nil
}

func runLocationAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	setupLogging()

	root, _ := cmd.Flags().GetString("root")
	priority, _ := cmd.Flags().GetInt("priority")

	db, err := openStore(true, nil)
	if err != nil {
		return err
	}
	defer db.Close()

	loc, err := db.AddLocation(ctx, store.LocationConfig{Name: args[0], Root: root, Priority: priority})
	if err != nil {
		return err
	}
	if util.IsNetworkPath(loc.Root) {
		util.InfoLog("%s is on a network filesystem; transfers will use NAS tuning", loc.Root)
	}
	util.SuccessLog("Registered %s", loc)
	return nil
}
