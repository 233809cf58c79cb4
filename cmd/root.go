package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "ratsnest",
	Short: "PCB connectivity checker",
	Long: `Ratsnest computes which copper on a board is electrically joined, which
connections of each net are still missing and where nets are shorted together.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default .ratsnest.yaml)")
	pf.BoolP("verbose", "v", false, "verbose output")
	pf.Int64("epsilon", 0, "touch tolerance in board units")
	pf.Int("parallelism", 0, "goroutines used to update nets (default number of CPUs)")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.String("telemetry", "", "append job events to this JSONL file")

	_ = viper.BindPFlag("verbose", pf.Lookup("verbose"))
	_ = viper.BindPFlag("epsilon", pf.Lookup("epsilon"))
	_ = viper.BindPFlag("parallelism", pf.Lookup("parallelism"))
	_ = viper.BindPFlag("log_level", pf.Lookup("log-level"))
	_ = viper.BindPFlag("telemetry_path", pf.Lookup("telemetry"))
}

func initConfig() {
	if cfgFile, _ := rootCmd.Flags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".ratsnest")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
	}

	viper.SetEnvPrefix("RATSNEST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// It's fine if no config file is found; we use defaults.
	_ = viper.ReadInConfig()
}
