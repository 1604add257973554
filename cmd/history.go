package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dpcalib/dpcalib/store"
)

var (
	historyDB    string // Calibration history database path
	historyLimit int    // Maximum number of records to show
)

// historyCmd lists stored calibrations, most recent first
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored calibrations",
	Run: func(cmd *cobra.Command, args []string) {
		dbPath := stringSetting(cmd, "db", "db", historyDB)
		if dbPath == "" {
			logrus.Fatalf("No calibration database configured (set --db or the db config key)")
		}

		db, err := store.Open(dbPath)
		if err != nil {
			logrus.Fatalf("Opening calibration history: %v", err)
		}
		defer db.Close()

		recs, err := db.List(context.Background(), historyLimit)
		if err != nil {
			logrus.Fatalf("Listing calibrations: %v", err)
		}
		if len(recs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no stored calibrations")
			return
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tREL\tTARGET-EPS\tDELTA\tQ\tITER\tSIGMA\tEPSILON\tEVALS")
		for _, r := range recs {
			fmt.Fprintf(w, "%s\t%s\t%g\t%g\t%g\t%d\t%.6g\t%.6g\t%d\n",
				r.CreatedAt.Format(time.RFC3339), r.Relation, r.TargetEps,
				r.Delta, r.Q, r.Steps, r.Sigma, r.Epsilon, r.Evals)
		}
		w.Flush()
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyDB, "db", "", "Calibration history database")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of records to show")

	rootCmd.AddCommand(historyCmd)
}
