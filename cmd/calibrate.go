package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dpcalib/dpcalib/accountant"
	"github.com/dpcalib/dpcalib/calibrate"
	"github.com/dpcalib/dpcalib/store"
)

var (
	// CLI flags for the sigma search
	calTargetEps    float64 // Target epsilon to calibrate to
	calDelta        float64 // Target delta
	calQ            float64 // Subsampling ratio
	calIterations   int     // Number of composed mechanism applications
	calRelation     string  // Neighboring relation (R or S)
	calTol          float64 // Absolute tolerance on the achieved epsilon
	calForceSmaller bool    // Require achieved epsilon strictly below target
	calMaxEvals     int     // Accountant evaluation budget
	calDB           string  // Calibration history database path
)

// calibrateCmd searches for the noise multiplier matching a privacy target
var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Find the noise multiplier matching a (target-eps, delta) budget",
	Run: func(cmd *cobra.Command, args []string) {
		rel, err := accountant.ParseRelation(calRelation)
		if err != nil {
			logrus.Fatalf("Invalid relation: %v", err)
		}

		delta := floatSetting(cmd, "delta", "delta", calDelta)
		dbPath := stringSetting(cmd, "db", "db", calDB)

		req := store.Request{
			Relation:     string(rel),
			TargetEps:    calTargetEps,
			Delta:        delta,
			Q:            calQ,
			Steps:        calIterations,
			Tol:          calTol,
			ForceSmaller: calForceSmaller,
		}

		var db *store.Store
		if dbPath != "" {
			db, err = store.Open(dbPath)
			if err != nil {
				logrus.Fatalf("Opening calibration history: %v", err)
			}
			defer db.Close()

			if rec, err := db.Lookup(context.Background(), req); err == nil {
				logrus.Infof("Reusing calibration stored at %s", rec.CreatedAt.Format(time.RFC3339))
				printCalibration(rec.Sigma, rec.Epsilon, rec.Evals)
				return
			} else if !errors.Is(err, store.ErrNotFound) {
				logrus.Fatalf("Querying calibration history: %v", err)
			}
		}

		logrus.Infof("Calibrating sigma for eps=%v delta=%v q=%v iterations=%d relation=%s",
			calTargetEps, delta, calQ, calIterations, rel)
		start := time.Now()

		opts := calibrate.Options{
			Tol:          calTol,
			ForceSmaller: calForceSmaller,
			MaxEvals:     calMaxEvals,
		}
		fn := calibrate.ForMechanism(calTargetEps, delta, calQ, calIterations, rel)
		result, err := calibrate.Sigma(calTargetEps, calQ, fn, opts)
		if err != nil {
			logrus.Fatalf("Calibration failed: %v", err)
		}
		logrus.Infof("Calibration finished in %v (%d accountant evaluations)",
			time.Since(start).Round(time.Millisecond), result.Evals)

		if db != nil {
			rec := store.Record{
				Request: req,
				Sigma:   result.Sigma,
				Epsilon: result.Epsilon,
				Evals:   result.Evals,
			}
			if err := db.Save(context.Background(), rec); err != nil {
				logrus.Warnf("Could not store calibration: %v", err)
			}
		}

		printCalibration(result.Sigma, result.Epsilon, result.Evals)
	},
}

func printCalibration(sigma, eps float64, evals int) {
	fmt.Printf("sigma:   %.6g\n", sigma)
	fmt.Printf("epsilon: %.6g\n", eps)
	fmt.Printf("evals:   %d\n", evals)
}

func init() {
	calibrateCmd.Flags().Float64Var(&calTargetEps, "target-eps", 0, "Target epsilon (required)")
	calibrateCmd.Flags().Float64Var(&calDelta, "delta", 1e-5, "Target delta")
	calibrateCmd.Flags().Float64Var(&calQ, "q", 0.01, "Subsampling ratio (batch size / dataset size)")
	calibrateCmd.Flags().IntVar(&calIterations, "iterations", 1000, "Number of training iterations to account for")
	calibrateCmd.Flags().StringVar(&calRelation, "relation", "R", "Neighboring relation: R (remove/add) or S (substitute)")
	calibrateCmd.Flags().Float64Var(&calTol, "tol", 1e-4, "Absolute tolerance on the achieved epsilon")
	calibrateCmd.Flags().BoolVar(&calForceSmaller, "force-smaller", false, "Require the achieved epsilon to stay below the target")
	calibrateCmd.Flags().IntVar(&calMaxEvals, "max-evals", 10, "Accountant evaluation budget for the search")
	calibrateCmd.Flags().StringVar(&calDB, "db", "", "Calibration history database (empty disables the cache)")
	calibrateCmd.MarkFlagRequired("target-eps")

	rootCmd.AddCommand(calibrateCmd)
}
