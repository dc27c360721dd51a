// Package cli wires configuration, logging and the simulator packages into
// the ringsim command.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"ring-simulator/internal/config"
	"ring-simulator/internal/logging"
)

const envPrefix = "RINGSIM"

type app struct {
	cfg     *config.Config
	cfgFile string
	v       *viper.Viper
	logger  *zap.Logger
}

// Execute loads the environment configuration and runs the root command.
// This is called by main.main().
func Execute() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if err := NewRootCmd(cfg).Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd builds the command tree. Values in cfg become the flag defaults.
func NewRootCmd(cfg *config.Config) *cobra.Command {
	a := &app{cfg: cfg, v: viper.New()}
	root := &cobra.Command{
		Use:           "ringsim",
		Short:         "Simulates trains on a circular single-track line and analyses stop inter-arrival times",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.initConfig(cmd); err != nil {
				return err
			}
			return a.initLogger(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.ringsim.yml)")
	pf.String("log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	pf.String("log-format", cfg.LogFormat, "log format (console, json)")
	pf.String("db", cfg.DatabaseURL, "connection string of the result database")

	root.AddCommand(a.newRunCmd())
	root.AddCommand(a.newAnalyzeCmd())
	root.AddCommand(a.newMigrateCmd())
	return root
}

// initConfig reads the optional config file and RINGSIM_* variables into
// every flag the user did not set explicitly.
func (a *app) initConfig(cmd *cobra.Command) error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			a.v.AddConfigPath(home)
		}
		a.v.AddConfigPath(".")
		a.v.SetConfigType("yaml")
		a.v.SetConfigName(".ringsim")
	}
	a.v.SetEnvPrefix(envPrefix)
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return bindFlags(cmd, a.v)
}

func (a *app) initLogger(cmd *cobra.Command) error {
	level, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")
	logger, err := logging.New(level, format)
	if err != nil {
		return err
	}
	a.logger = logger
	if f := a.v.ConfigFileUsed(); f != "" {
		logger.Debug("using config file", zap.String("file", f))
	}
	return nil
}

// bindFlags applies viper values to flags not set on the command line.
// Dashes map to underscores for the environment, e.g. --num-sims to RINGSIM_NUM_SIMS.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if bindErr != nil {
			return
		}
		envVar := fmt.Sprintf("%s_%s", envPrefix, strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_")))
		if err := v.BindEnv(f.Name, envVar); err != nil {
			bindErr = fmt.Errorf("bind env %s: %w", envVar, err)
			return
		}
		if !f.Changed && v.IsSet(f.Name) {
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); err != nil {
				bindErr = fmt.Errorf("flag %s: %w", f.Name, err)
			}
		}
	})
	return bindErr
}
