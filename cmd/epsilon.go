package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dpcalib/dpcalib/accountant"
)

var (
	// CLI flags for a single accountant evaluation
	epsSigma      float64 // Noise multiplier
	epsDelta      float64 // Target delta
	epsQ          float64 // Subsampling ratio
	epsIterations int     // Number of composed mechanism applications
	epsRelation   string  // Neighboring relation (R or S)
	epsPrecision  float64 // Grid precision factor
)

// epsilonCmd evaluates the privacy loss of a fixed mechanism
var epsilonCmd = &cobra.Command{
	Use:   "epsilon",
	Short: "Compute epsilon for a fixed sigma, delta and iteration count",
	Run: func(cmd *cobra.Command, args []string) {
		rel, err := accountant.ParseRelation(epsRelation)
		if err != nil {
			logrus.Fatalf("Invalid relation: %v", err)
		}

		delta := floatSetting(cmd, "delta", "delta", epsDelta)
		precision := floatSetting(cmd, "precision", "precision", epsPrecision)

		m := accountant.Mechanism{Sigma: epsSigma, Q: epsQ, Steps: epsIterations, Relation: rel}
		if err := m.Validate(); err != nil {
			logrus.Fatalf("Invalid mechanism: %v", err)
		}

		// Size the grid from a coarse first pass so the bisection range
		// covers the answer.
		grid := accountant.DefaultGrid(1).Scaled(precision)
		eps, err := accountant.Epsilon(m, grid, delta)
		if err != nil {
			logrus.Fatalf("Accounting failed: %v", err)
		}
		if eps > 1 {
			grid = accountant.DefaultGrid(eps).Scaled(precision)
			eps, err = accountant.Epsilon(m, grid, delta)
			if err != nil {
				logrus.Fatalf("Accounting failed: %v", err)
			}
		}

		fmt.Printf("epsilon: %.6g\n", eps)
		fmt.Printf("delta:   %.6g\n", delta)
	},
}

func init() {
	epsilonCmd.Flags().Float64Var(&epsSigma, "sigma", 0, "Noise multiplier (required)")
	epsilonCmd.Flags().Float64Var(&epsDelta, "delta", 1e-5, "Target delta")
	epsilonCmd.Flags().Float64Var(&epsQ, "q", 0.01, "Subsampling ratio (batch size / dataset size)")
	epsilonCmd.Flags().IntVar(&epsIterations, "iterations", 1000, "Number of training iterations to account for")
	epsilonCmd.Flags().StringVar(&epsRelation, "relation", "R", "Neighboring relation: R (remove/add) or S (substitute)")
	epsilonCmd.Flags().Float64Var(&epsPrecision, "precision", 1.0, "Grid precision factor (>1 widens and refines)")
	epsilonCmd.MarkFlagRequired("sigma")

	rootCmd.AddCommand(epsilonCmd)
}
