package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/charoster/internal/app"
	"github.com/conneroisu/charoster/internal/config"
	"github.com/conneroisu/charoster/internal/logging"
)

var (
	cfgFile string
	logDir  string

	// appOptions are applied to every App the commands build
	appOptions []app.Option
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "charoster",
	Short: "Resolve and cache roster entities from content packs",
	Long: `Charoster loads characters, stages, items and cross-pack definitions from
the content packs of a work folder, composes addons into their parents and
derives sized, themed alt images on demand.

Quick Start:
  charoster list characters       List every character
  charoster show characters ID    Print one character
  charoster definition franchise  Print the franchise definition
  charoster serve                 Serve the query surface over HTTP
  charoster watch                 Reload whenever a pack changes

Packs live in <work_folder>/packs/<packId>/ with an info.json manifest.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .charoster.yml, can also use CHAROSTER_CONFIG_FILE env var)")
	flags.StringP("work-folder", "w", "", "folder holding packs/<packId>/")
	flags.StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.StringVar(&logDir, "log-dir", "", "also write logs to a dated file in this folder")

	_ = viper.BindPFlag("work_folder", flags.Lookup("work-folder"))
	_ = viper.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("log.format", flags.Lookup("log-format"))
}

// initConfig reads the config file named by --config, then the one named by
// CHAROSTER_CONFIG_FILE, then .charoster.yml in the current directory.
// CHAROSTER_<SECTION>_<KEY> variables override file values.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(config.EnvPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".charoster")
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// A missing or malformed file leaves the defaults in place
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// session is an App plus the resources a command opened for it
type session struct {
	*app.App
	fileLogger *logging.FileLogger
}

func (s *session) Close() error {
	err := s.App.Close()
	if s.fileLogger != nil {
		if closeErr := s.fileLogger.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}

// openApp builds an App from the loaded configuration, discovers the packs
// and waits for the initial loads to finish
func openApp(ctx context.Context) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.RequireWorkFolder(); err != nil {
		return nil, err
	}

	s := &session{}
	opts := append([]app.Option{}, appOptions...)
	if logDir != "" {
		level, err := logging.ParseLevel(cfg.Log.Level)
		if err != nil {
			level = logging.LevelInfo
		}
		s.fileLogger, err = logging.NewFileLogger(&logging.LoggerConfig{
			Level:     level,
			Format:    cfg.Log.Format,
			Component: "charoster",
		}, logDir)
		if err != nil {
			return nil, err
		}
		opts = append(opts, app.WithLogger(s.fileLogger))
	}

	s.App, err = app.New(cfg, opts...)
	if err != nil {
		if s.fileLogger != nil {
			_ = s.fileLogger.Close()
		}
		return nil, err
	}

	if _, err := s.Start(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := s.AwaitIdle(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}
