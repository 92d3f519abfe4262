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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/datamap/internal/config"
	"github.com/cardinalhq/datamap/internal/partition"
)

var discreteOpts struct {
	inputDir     string
	outputDir    string
	configPath   string
	partitionKey string
	choices      []string
	maxFileSize  int64
	threads      int
}

var discretePartitionCmd = &cobra.Command{
	Use:   "discrete-partition",
	Short: "Partition documents by the value of a string field",
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts := partition.DiscreteOptions{
			InputDir:     discreteOpts.inputDir,
			OutputDir:    discreteOpts.outputDir,
			PartitionKey: discreteOpts.partitionKey,
			Choices:      discreteOpts.choices,
			MaxFileSize:  discreteOpts.maxFileSize,
			Threads:      discreteOpts.threads,
		}
		if discreteOpts.configPath != "" {
			cfg, err := config.LoadPartitionConfig(discreteOpts.configPath)
			if err != nil {
				return err
			}
			opts.PartitionKey = cfg.PartitionKey
			opts.Choices = cfg.Choices
			opts.MaxFileSize = cfg.MaxFileSize
		}
		if opts.PartitionKey == "" {
			return fmt.Errorf("one of --config or --partition-key is required")
		}
		return partition.RunDiscrete(cmd.Context(), opts)
	},
}

func init() {
	discretePartitionCmd.Flags().StringVar(&discreteOpts.inputDir, "input-dir", "", "directory of input JSONL files")
	discretePartitionCmd.Flags().StringVar(&discreteOpts.outputDir, "output-dir", "", "directory for category buckets")
	discretePartitionCmd.Flags().StringVar(&discreteOpts.configPath, "config", "", "partition configuration file (YAML or JSON)")
	discretePartitionCmd.Flags().StringVar(&discreteOpts.partitionKey, "partition-key", "", "path of the category field; categories are created on first sight")
	discretePartitionCmd.Flags().StringSliceVar(&discreteOpts.choices, "choices", nil, "restrict categories to this list; others go to no_category")
	discretePartitionCmd.Flags().Int64Var(&discreteOpts.maxFileSize, "max-file-size", config.DefaultPartitionFileSize, "maximum uncompressed bytes per chunk file")
	discretePartitionCmd.Flags().IntVar(&discreteOpts.threads, "threads", 0, "worker count; 0 uses all CPUs")
	_ = discretePartitionCmd.MarkFlagRequired("input-dir")
	_ = discretePartitionCmd.MarkFlagRequired("output-dir")
	rootCmd.AddCommand(discretePartitionCmd)
}
