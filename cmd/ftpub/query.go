package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nebukadhezer/pyblish-ftrack/internal/session"
	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query EXPR",
	Short: "Run a query expression against the database",
	Long: `Run a query expression and print the matching entities.

Examples:
  ftpub query 'Task where name is "lighting"'
  ftpub query 'Component where version.id is "..." and name is "main"'
  ftpub query 'select name, version from AssetVersion where asset.name is "lighting"'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().Bool("json", false, "print entities as JSON lines")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	setupLogging()

	db, err := openStore(false, nil)
	if err != nil {
		return err
	}
	defer db.Close()

	expr := strings.Join(args, " ")
	entities, err := db.Query(ctx, expr)
	if err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, e := range entities {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	}

	rows := make([][]string, 0, len(entities))
	for _, e := range entities {
		rows = append(rows, []string{e.Type, e.ID, e.GetString("name"), linkPath(e.Link())})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Type", "ID", "Name", "Path"}, rows, nil))
	fmt.Fprintf(cmd.OutOrStdout(), "%d result(s)\n", len(entities))
	return nil
}

// linkPath renders a link chain as show/sq01/sh010
func linkPath(links []session.Link) string {
	names := make([]string, len(links))
	for i, l := range links {
		names[i] = l.Name
	}
	return strings.Join(names, "/")
}
