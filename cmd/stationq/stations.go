// README: stations import/export moves the catalog between a YAML file and Postgres.
package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"stationq/internal/modules/station"
)

var exportPath string

var stationsCmd = &cobra.Command{
	Use:   "stations",
	Short: "Manage the station catalog",
}

var stationsImportCmd = &cobra.Command{
	Use:   "import <catalog.yaml>",
	Short: "Upsert stations from a catalog file into Postgres",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stations, err := station.LoadCatalog(args[0])
		if err != nil {
			return err
		}
		// Reject duplicates before touching the table.
		if _, err := station.NewDirectory(stations); err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := station.NewStore(db).Upsert(cmd.Context(), stations); err != nil {
			return err
		}
		cmd.Printf("imported %d stations\n", len(stations))
		return nil
	},
}

var stationsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the Postgres station catalog as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		stations, err := station.NewStore(db).List(cmd.Context())
		if err != nil {
			return err
		}
		var out io.Writer = cmd.OutOrStdout()
		if exportPath != "" {
			f, err := os.Create(exportPath)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		return station.WriteCatalog(out, stations)
	},
}

func init() {
	stationsExportCmd.Flags().StringVarP(&exportPath, "out", "o", "", "output file (default stdout)")
	stationsCmd.AddCommand(stationsImportCmd, stationsExportCmd)
	rootCmd.AddCommand(stationsCmd)
}
