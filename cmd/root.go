package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Persistent CLI flags
	logLevel string // Log verbosity level
	cfgFile  string // Optional config file path
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "dpcalib",
	Short: "Noise calibration and accounting for differentially private SGD",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initConfig wires viper: config file, DPCALIB_ environment overrides and
// defaults shared by the subcommands.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("dpcalib")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.config/dpcalib")
		}
	}

	viper.SetEnvPrefix("DPCALIB")
	viper.AutomaticEnv()

	viper.SetDefault("delta", 1e-5)
	viper.SetDefault("precision", 1.0)
	viper.SetDefault("db", "")

	if err := viper.ReadInConfig(); err == nil {
		logrus.Debugf("Using config file: %s", viper.ConfigFileUsed())
	}
}

// floatSetting resolves a float flag against the viper config: an explicit
// flag wins, otherwise the config/env/default value is used.
func floatSetting(cmd *cobra.Command, flag, key string, flagValue float64) float64 {
	if cmd.Flags().Changed(flag) {
		return flagValue
	}
	return viper.GetFloat64(key)
}

// stringSetting resolves a string flag against the viper config.
func stringSetting(cmd *cobra.Command, flag, key, flagValue string) string {
	if cmd.Flags().Changed(flag) {
		return flagValue
	}
	return viper.GetString(key)
}

// init sets up persistent flags and subcommands
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ./dpcalib.yaml or ~/.config/dpcalib/dpcalib.yaml)")
}
