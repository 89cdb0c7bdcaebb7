/*
Copyright © 2026 SUSE LLC
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at
    http://www.apache.org/licenses/LICENSE-2.0
Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"runtime"
	"strings"

	"github.com/Masterminds/log-go"
	"github.com/adrg/xdg"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"

	"github.com/rancher-sandbox/wrk-trace-report/pkg/connset"
	"github.com/rancher-sandbox/wrk-trace-report/pkg/render"
	"github.com/rancher-sandbox/wrk-trace-report/pkg/report"
	"github.com/rancher-sandbox/wrk-trace-report/pkg/trace"
)

const (
	envPrefix      = "WRK_TRACE"
	configFileName = "wrk-trace-report/config.yaml"
)

func newRootCommand() *cobra.Command {
	v := viper.New()
	rootCmd := &cobra.Command{
		Use:   "wrk-trace-report [flags] FILE...",
		Short: "Convert wrk event loop traces into reports",
		Long: `Convert binary traces written by an instrumented wrk into CSV rows,
scatter series for ECharts, or a trace viewer document of nested spans.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd, v)
		},
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := reportConfig(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), unix.SIGINT, unix.SIGTERM)
			defer stop()

			output := v.GetString("output")
			if output == "" {
				return report.Run(ctx, config, args, cmd.OutOrStdout())
			}
			var buf bytes.Buffer
			if err := report.Run(ctx, config, args, &buf); err != nil {
				return err
			}
			if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
			logrus.WithField("path", output).Debug("Wrote output")
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.CountP("verbose", "v", "Enable extra logging")
	flags.String("config", "", fmt.Sprintf("Config file (default $XDG_CONFIG_HOME/%s)", configFileName))
	flags.Int("limit", trace.DefaultLimit, "Maximum number of records to load per file; 0 loads all")
	flags.Int("offset", 0, "Number of leading records to skip in each file")
	flags.Var(&connset.Set{}, "connections", "Only report these connections, e.g. 0-3,7")
	flags.IntP("jobs", "j", runtime.GOMAXPROCS(0), "Number of files to process at once")
	flags.SortFlags = false

	flags = rootCmd.Flags()
	flags.VarP(newEnumValue(report.FormatScatter, report.Formats), "format", "f",
		fmt.Sprintf("Output format %v", report.Formats))
	flags.StringP("output", "o", "", "Write to this file instead of standard output")
	flags.Int("point-size", render.DefaultPointSize, "Symbol size of scatter points")
	flags.Bool("group-by-connection", false, "Emit one scatter series per connection")
	flags.Bool("split-ms", false, "Write CSV timestamps as separate ms and us columns")
	flags.Var(newEnumValue(render.UnterminatedOpen, render.UnterminatedPolicies), "unterminated",
		fmt.Sprintf("Handling of spans open at the end of a trace %v", render.UnterminatedPolicies))
	flags.SortFlags = false

	rootCmd.AddCommand(newInfoCommand(v))
	return rootCmd
}

// initConfig layers flags, WRK_TRACE_* environment variables and the config
// file, then sets up logging.
func initConfig(cmd *cobra.Command, v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to set up flags: %w", err)
	}

	configFile := v.GetString("config")
	if configFile == "" {
		var err error
		configFile, err = xdg.SearchConfigFile(configFileName)
		if err != nil {
			configFile = ""
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("config file %s does not exist", configFile)
			}
			return fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	verbose := v.GetInt("verbose")
	logrus.SetOutput(cmd.ErrOrStderr())
	logrus.SetLevel(logrus.InfoLevel + logrus.Level(verbose))
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger := log.NewStandard()
	if verbose > 0 {
		logger.Level = log.DebugLevel
	}
	log.Current = logger

	if configFile != "" {
		logrus.WithField("path", configFile).Debug("Loaded config file")
	}
	return nil
}

// reportConfig collects the settings of one invocation.  Values from the
// environment and config file did not pass through the flag parsers, so they
// are validated here.
func reportConfig(v *viper.Viper) (report.Config, error) {
	format, err := parseEnum(v.GetString("format"), report.Formats)
	if err != nil {
		return report.Config{}, fmt.Errorf("invalid format: %w", err)
	}
	unterminated, err := parseEnum(v.GetString("unterminated"), render.UnterminatedPolicies)
	if err != nil {
		return report.Config{}, fmt.Errorf("invalid unterminated policy: %w", err)
	}
	config, err := loadConfig(v)
	if err != nil {
		return report.Config{}, err
	}
	config.Format = format
	config.Unterminated = unterminated
	config.PointSize = v.GetInt("point-size")
	config.GroupByConnection = v.GetBool("group-by-connection")
	config.SplitMillis = v.GetBool("split-ms")
	if config.PointSize <= 0 {
		return report.Config{}, fmt.Errorf("point size must be positive, got %d", config.PointSize)
	}
	logrus.WithFields(logrus.Fields{
		"format":      config.Format,
		"limit":       config.Load.Limit,
		"offset":      config.Load.Offset,
		"connections": config.Connections.String(),
		"jobs":        config.Jobs,
	}).Debug("Configured report")
	return config, nil
}

// loadConfig reads the settings shared with the info command.
func loadConfig(v *viper.Viper) (report.Config, error) {
	connections, err := connset.Parse(v.GetString("connections"))
	if err != nil {
		return report.Config{}, fmt.Errorf("invalid connections: %w", err)
	}
	config := report.Config{
		Load: trace.Options{
			Offset: v.GetInt("offset"),
			Limit:  v.GetInt("limit"),
		},
		Connections: connections,
		Jobs:        v.GetInt("jobs"),
	}
	if config.Load.Offset < 0 {
		return report.Config{}, fmt.Errorf("offset must not be negative, got %d", config.Load.Offset)
	}
	if config.Load.Limit < 0 {
		return report.Config{}, fmt.Errorf("limit must not be negative, got %d", config.Load.Limit)
	}
	return config, nil
}
