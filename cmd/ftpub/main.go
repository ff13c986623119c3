package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/nebukadhezer/pyblish-ftrack/internal/collect"
	"github.com/nebukadhezer/pyblish-ftrack/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "ftpub",
		Short: "Publish files into a tracking database as versioned components",
		Long: `ftpub publishes renders, caches and other deliverables of a task as
components on asset versions. Every run reconciles the asset type, asset and
version chain by identity, so publishing the same manifest twice changes
nothing. Component data is placed into configured locations with verified
transfers.`,
		Version: Version,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/ftpub.yaml)")
	rootCmd.PersistentFlags().String("db", "ftpub.db", "tracking database file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")
	rootCmd.PersistentFlags().String("artifacts", "artifacts", "directory for event logs and reports")
	rootCmd.PersistentFlags().Bool("nas-mode", false, "force network filesystem tuning for transfers (default: auto-detect)")

	// Bind flags to viper
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	viper.BindPFlag("artifacts", rootCmd.PersistentFlags().Lookup("artifacts"))
	viper.BindPFlag("nas-mode", rootCmd.PersistentFlags().Lookup("nas-mode"))

	viper.SetDefault("strict-identity", true)
	viper.SetDefault("transfer.verify", "size")
	viper.SetDefault("transfer.mode", "copy")
	viper.SetDefault("transfer.concurrency", 4)
}

func initConfig() {
	// .env never overrides variables that are already set
	if err := collect.LoadEnv(); err != nil {
		util.WarnLog("%v", err)
	}

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in common locations
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("ftpub")
		viper.SetConfigType("yaml")
	}

	// Read in environment variables that match
	viper.SetEnvPrefix("FTPUB")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
