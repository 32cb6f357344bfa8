// README: migrate applies the embedded SQL schema.
package main

import (
	"github.com/spf13/cobra"

	"stationq/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
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

		n, err := migrations.Apply(cmd.Context(), db)
		if err != nil {
			return err
		}
		cmd.Printf("applied %d statements\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
