package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/sarchange/internal/db"
	"github.com/banshee-data/sarchange/internal/sar/storage/sqlite"
)

func openStore(g *globals) (*db.DB, *sqlite.RunStore, error) {
	database, err := db.OpenMigrated(g.dbPath)
	if err != nil {
		return nil, nil, err
	}
	return database, sqlite.NewRunStore(database.DB), nil
}

func newRunsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded detection runs",
	}
	cmd.AddCommand(
		newRunsListCmd(g),
		newRunsShowCmd(g),
		newRunsRecordsCmd(g),
		newRunsExportCmd(g),
		newRunsDeleteCmd(g),
	)
	return cmd
}

func newRunsListCmd(g *globals) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, store, err := openStore(g)
			if err != nil {
				return err
			}
			defer database.Close()

			runs, err := store.ListRuns(limit)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, runs)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tCREATED\tSTATUS\tMETHOD\tCORRECTION\tGRID\tCHANGED\tINVALID\tSOURCE")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%dx%dx%d\t%d\t%d\t%s\n",
					r.RunID, time.Unix(0, r.CreatedAt).UTC().Format(time.RFC3339), r.Status, r.Method, r.Correction,
					r.Width, r.Height, r.Acquisitions, r.Summary.Changed, r.Summary.Invalid, r.Source)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to list (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func newRunsShowCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print one run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, store, err := openStore(g)
			if err != nil {
				return err
			}
			defer database.Close()

			run, err := store.GetRun(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, run)
		},
	}
}

func newRunsRecordsCmd(g *globals) *cobra.Command {
	var f sqlite.RecordFilter
	cmd := &cobra.Command{
		Use:   "records <run-id>",
		Short: "Print the changed and invalid pixel records of a run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, store, err := openStore(g)
			if err != nil {
				return err
			}
			defer database.Close()

			if _, err := store.GetRun(args[0]); err != nil {
				return err
			}
			recs, err := store.ListRecords(args[0], f)
			if err != nil {
				return err
			}
			if recs == nil {
				recs = []sqlite.StoredRecord{}
			}
			return printJSON(cmd, recs)
		},
	}
	cmd.Flags().StringVar(&f.Fault, "fault", "", "Only records with this fault (invalid_intensity, numeric_degeneracy)")
	cmd.Flags().BoolVar(&f.ChangedOnly, "changed", false, "Only changed pixels")
	cmd.Flags().IntVarP(&f.Limit, "limit", "n", 0, "Maximum records (0 for all)")
	return cmd
}

func newRunsExportCmd(g *globals) *cobra.Command {
	var o outputOptions
	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Export the stored products of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.productsPath == "" && o.pngDir == "" && o.htmlPath == "" {
				return fmt.Errorf("nothing to export: set --out, --png or --html")
			}
			database, store, err := openStore(g)
			if err != nil {
				return err
			}
			defer database.Close()

			p, err := store.LoadProducts(args[0])
			if err != nil {
				return err
			}
			return writeOutputs(p, o)
		},
	}
	cmd.Flags().StringVarP(&o.productsPath, "out", "o", "", "Products file (.json or .msgpack)")
	cmd.Flags().BoolVar(&o.notableOnly, "notable-only", false, "Export only changed and invalid pixel records")
	cmd.Flags().StringVar(&o.pngDir, "png", "", "Directory for PNG heatmaps")
	cmd.Flags().StringVar(&o.htmlPath, "html", "", "HTML report file")
	return cmd
}

func newRunsDeleteCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>...",
		Short: "Delete runs and their records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, store, err := openStore(g)
			if err != nil {
				return err
			}
			defer database.Close()

			for _, id := range args {
				if err := store.DeleteRun(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			}
			return nil
		},
	}
}
