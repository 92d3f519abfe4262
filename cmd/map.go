// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/cardinalhq/datamap/internal/config"
	"github.com/cardinalhq/datamap/internal/mapper"
)

var mapOpts struct {
	inputDir        string
	outputDir       string
	configPath      string
	errDir          string
	deleteAfterRead bool
	threads         int
}

var mapCmd = &cobra.Command{
	Use:   "map",
	Short: "Run a processor pipeline over a corpus",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadMapConfig(mapOpts.configPath)
		if err != nil {
			return err
		}
		_, err = mapper.Run(cmd.Context(), mapper.Options{
			InputDir:        mapOpts.inputDir,
			OutputDir:       mapOpts.outputDir,
			ErrDir:          mapOpts.errDir,
			DeleteAfterRead: mapOpts.deleteAfterRead,
			Threads:         mapOpts.threads,
			Config:          cfg,
		})
		return err
	},
}

func init() {
	mapCmd.Flags().StringVar(&mapOpts.inputDir, "input-dir", "", "directory of input JSONL files")
	mapCmd.Flags().StringVar(&mapOpts.outputDir, "output-dir", "", "directory for step and final outputs")
	mapCmd.Flags().StringVar(&mapOpts.configPath, "config", "", "pipeline configuration file (YAML or JSON)")
	mapCmd.Flags().StringVar(&mapOpts.errDir, "err-dir", "", "directory for unparseable lines and failed documents")
	mapCmd.Flags().BoolVar(&mapOpts.deleteAfterRead, "delete-after-read", false, "delete each input file after it is fully processed")
	mapCmd.Flags().IntVar(&mapOpts.threads, "threads", 0, "worker count; 0 uses all CPUs")
	_ = mapCmd.MarkFlagRequired("input-dir")
	_ = mapCmd.MarkFlagRequired("output-dir")
	_ = mapCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(mapCmd)
}
