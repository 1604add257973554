package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dpcalib/dpcalib/accountant"
)

var (
	// CLI flags for the sigma sweep
	sweepSigmaMin   float64 // Lowest noise multiplier
	sweepSigmaMax   float64 // Highest noise multiplier
	sweepCount      int     // Number of sweep points
	sweepDelta      float64 // Target delta
	sweepQ          float64 // Subsampling ratio
	sweepIterations int     // Number of composed mechanism applications
	sweepRelation   string  // Neighboring relation (R or S)
	sweepPrecision  float64 // Grid precision factor
	sweepOut        string  // Output CSV path (empty writes to stdout)
)

// sweepPoint is one row of the sweep output.
type sweepPoint struct {
	Sigma   float64
	Epsilon float64
}

// sweepCmd tabulates epsilon over a range of noise multipliers
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Tabulate epsilon over a range of noise multipliers as CSV",
	Run: func(cmd *cobra.Command, args []string) {
		rel, err := accountant.ParseRelation(sweepRelation)
		if err != nil {
			logrus.Fatalf("Invalid relation: %v", err)
		}
		if sweepSigmaMin <= 0 || sweepSigmaMax < sweepSigmaMin || sweepCount < 2 {
			logrus.Fatalf("Invalid sweep range: sigma-min=%v sigma-max=%v count=%d",
				sweepSigmaMin, sweepSigmaMax, sweepCount)
		}

		delta := floatSetting(cmd, "delta", "delta", sweepDelta)
		precision := floatSetting(cmd, "precision", "precision", sweepPrecision)

		points := make([]sweepPoint, 0, sweepCount)
		for _, sigma := range sweepSigmas(sweepSigmaMin, sweepSigmaMax, sweepCount) {
			m := accountant.Mechanism{Sigma: sigma, Q: sweepQ, Steps: sweepIterations, Relation: rel}
			grid := accountant.DefaultGrid(1).Scaled(precision)
			eps, err := accountant.Epsilon(m, grid, delta)
			if err == nil && eps > 1 {
				grid = accountant.DefaultGrid(eps).Scaled(precision)
				eps, err = accountant.Epsilon(m, grid, delta)
			}
			if err != nil {
				logrus.Warnf("Skipping sigma=%v: %v", sigma, err)
				continue
			}
			logrus.Debugf("sigma=%v eps=%v", sigma, eps)
			points = append(points, sweepPoint{Sigma: sigma, Epsilon: eps})
		}
		if len(points) == 0 {
			logrus.Fatalf("No sweep point could be evaluated")
		}

		out := io.Writer(os.Stdout)
		if sweepOut != "" {
			f, err := os.Create(sweepOut)
			if err != nil {
				logrus.Fatalf("Creating output file: %v", err)
			}
			defer f.Close()
			out = f
		}
		if err := writeSweepCSV(out, points); err != nil {
			logrus.Fatalf("Writing sweep output: %v", err)
		}
	},
}

// sweepSigmas returns count evenly spaced values covering [min, max].
func sweepSigmas(min, max float64, count int) []float64 {
	out := make([]float64, count)
	step := (max - min) / float64(count-1)
	for i := range out {
		out[i] = min + float64(i)*step
	}
	return out
}

func writeSweepCSV(w io.Writer, points []sweepPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"sigma", "epsilon"}); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, p := range points {
		row := []string{
			strconv.FormatFloat(p.Sigma, 'g', -1, 64),
			strconv.FormatFloat(p.Epsilon, 'g', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func init() {
	sweepCmd.Flags().Float64Var(&sweepSigmaMin, "sigma-min", 1.0, "Lowest noise multiplier")
	sweepCmd.Flags().Float64Var(&sweepSigmaMax, "sigma-max", 4.0, "Highest noise multiplier")
	sweepCmd.Flags().IntVar(&sweepCount, "count", 10, "Number of sweep points")
	sweepCmd.Flags().Float64Var(&sweepDelta, "delta", 1e-5, "Target delta")
	sweepCmd.Flags().Float64Var(&sweepQ, "q", 0.01, "Subsampling ratio (batch size / dataset size)")
	sweepCmd.Flags().IntVar(&sweepIterations, "iterations", 1000, "Number of training iterations to account for")
	sweepCmd.Flags().StringVar(&sweepRelation, "relation", "R", "Neighboring relation: R (remove/add) or S (substitute)")
	sweepCmd.Flags().Float64Var(&sweepPrecision, "precision", 1.0, "Grid precision factor (>1 widens and refines)")
	sweepCmd.Flags().StringVar(&sweepOut, "out", "", "Output CSV path (default: stdout)")

	rootCmd.AddCommand(sweepCmd)
}
