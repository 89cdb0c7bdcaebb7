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
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rancher-sandbox/wrk-trace-report/pkg/report"
)

func newInfoCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "info [flags] FILE...",
		Short: "Summarize trace files",
		Long: `Print the header, size, time range and record counts of each trace
file, along with the number of tracks and unterminated spans found when
rebuilding its timeline.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(v)
			if err != nil {
				return err
			}
			return report.Info(cmd.Context(), config, args, cmd.OutOrStdout())
		},
	}
}
