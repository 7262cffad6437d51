package main

import (
	"database/sql"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/dshills/cardest/internal/fixture"
	"github.com/dshills/cardest/internal/log"
	"github.com/dshills/cardest/internal/statscache"
)

func newSnapshotCmd(a *app) *cobra.Command {
	var (
		dsn      string
		schema   string
		database string
		output   string
	)
	cmd := &cobra.Command{
		Use:   "snapshot <fixture.yaml>",
		Short: "Export PostgreSQL planner statistics for the tables of a fixture",
		Long: `Reads pg_class and pg_stats for every table declared by the fixture and
writes them as a statistics snapshot usable with "estimate --stats".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				return errors.New("--dsn is required")
			}
			f, err := fixture.Load(args[0])
			if err != nil {
				return err
			}
			cat, err := f.Catalog()
			if err != nil {
				return err
			}

			db, err := sql.Open("postgres", dsn)
			if err != nil {
				return errors.Wrap(err, "opening database")
			}
			defer db.Close()

			snap, err := statscache.LoadFromPostgres(cmd.Context(), db, cat, database, schema)
			if err != nil {
				return err
			}
			a.logger.Info("loaded statistics snapshot",
				log.String("schema", schema),
				log.Int("tables", len(snap.Tables)))

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				file, err := os.Create(output)
				if err != nil {
					return errors.Wrapf(err, "creating %s", output)
				}
				defer file.Close()
				w = file
			}
			return snap.Write(w)
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", os.Getenv("CARDEST_PG_DSN"), "PostgreSQL connection string")
	cmd.Flags().StringVar(&schema, "schema", "public", "PostgreSQL schema holding the tables")
	cmd.Flags().StringVar(&database, "database", "", "Fixture database whose tables are exported")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file, - for stdout")
	return cmd
}
