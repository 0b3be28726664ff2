// Package cmd provides the previewd command-line interface.
//
// Configuration is read, in increasing order of precedence, from
// .previewd.yml (or the file named by --config or PREVIEWD_CONFIG_FILE),
// PREVIEWD_<SECTION>_<KEY> environment variables and command-line flags.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/previewd/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "previewd",
	Short: "Development preview server for static site builds",
	Long: `previewd serves a site under development: it renders known pages on
demand, proxies API prefixes to their backends, serves the public directory,
exposes the GraphQL data layer and turns render failures into source-level
diagnostics.

Quick Start:
  previewd serve                  Start the development server
  previewd serve --port 9000      Start on another port
  previewd version                Show version information`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .previewd.yml, can also use PREVIEWD_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig points viper at the configuration file and environment.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("PREVIEWD_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".previewd")
	}

	viper.SetEnvPrefix("PREVIEWD")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing file is fine; defaults apply.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the process logger from the log flags.
func newLogger() (logging.Logger, error) {
	level, err := logging.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		return nil, err
	}

	format := strings.ToLower(viper.GetString("log.format"))
	switch format {
	case "", "text", "json":
	default:
		return nil, fmt.Errorf("unknown log format %q (supported: text, json)", format)
	}

	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: format,
		Output: os.Stderr,
	}), nil
}
