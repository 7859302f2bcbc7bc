// Package cmd provides the command-line interface for staticpress.
//
// Configuration System:
//
//	Values are resolved with the following precedence:
//	1. Command-line flags (--output, --debug, --log-level, ...) - highest priority
//	2. Environment variables (DEBUG, STATICPRESS_SERVER_PORT, ...), including
//	   values loaded from .env and .env.local
//	3. The configuration file (.staticpress.yml, --config or STATICPRESS_CONFIG_FILE)
//	4. Built-in defaults - lowest priority
//
// Environment Variables:
//
//	DEBUG: Build pretty, unminified output and inject the live reload script
//	STATICPRESS_CONFIG_FILE: Path to a custom configuration file
//	STATICPRESS_SERVER_PORT: Override the dev server port
//	STATICPRESS_PUBLISH_BUCKET: Override the publish bucket
//	And every other key following the STATICPRESS_<SECTION>_<OPTION> pattern
package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/conneroisu/staticpress/internal/config"
	"github.com/conneroisu/staticpress/internal/site"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ConfigFileEnv names a configuration file to use instead of .staticpress.yml.
const ConfigFileEnv = "STATICPRESS_CONFIG_FILE"

var (
	cfgFile   string
	configErr error
	// configErrFile is the configuration file configErr refers to, if any.
	configErrFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "staticpress",
	Short: "Build, serve and publish a static web site",
	Long: `staticpress builds a static web site from source assets, serves it locally
with live reload while watching for changes, and publishes the result to S3.

Running staticpress without a command runs the "default" task: a full build,
the dev server and the watcher.

Quick Start:
  staticpress                     Build, serve and watch
  DEBUG=1 staticpress             Same, with pretty output and live reload
  staticpress run build           Build the site once
  staticpress run deploy          Build in production mode and publish
  staticpress tasks               List the declared tasks`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runTasks(cmd, []string{site.TaskDefault})
	},
}

// Execute runs the root command until it finishes or the process receives
// SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	var reported *reportedError
	if err != nil && !stderrors.As(err, &reported) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .staticpress.yml, can also use "+ConfigFileEnv+" env var)")
	addGlobalFlags(flags)
	if err := bindFlags(viper.GetViper(), flags); err != nil {
		panic(err)
	}
}

// initConfig selects the configuration file and wires the environment.
//
// Configuration File Priority (highest to lowest):
//  1. --config flag
//  2. STATICPRESS_CONFIG_FILE environment variable
//  3. .staticpress.yml in the current directory
//
// A missing default file is not an error. A missing or malformed file that
// was asked for explicitly is reported when the configuration is loaded.
func initConfig() {
	configErr, configErrFile = nil, ""

	if _, err := config.LoadEnvFiles("."); err != nil {
		configErr = fmt.Errorf("loading .env files: %w", err)
		return
	}

	explicit := true
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(ConfigFileEnv); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		explicit = false
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".staticpress")
	}

	if err := config.BindEnv(viper.GetViper()); err != nil {
		configErr = err
		return
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !stderrors.As(err, &notFound) {
			configErr = fmt.Errorf("reading config file: %w", err)
			configErrFile = viper.ConfigFileUsed()
		}
		return
	}
	fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
}
