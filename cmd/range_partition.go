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
	"github.com/cardinalhq/datamap/internal/reservoir"
)

var rangeOpts struct {
	inputDir      string
	outputDir     string
	rangeGroups   []float64
	reservoirPath string
	numBuckets    int
	valueKey      string
	defaultValue  float64
	maxFileSize   int64
	bucketName    string
	threads       int
}

var rangePartitionCmd = &cobra.Command{
	Use:   "range-partition",
	Short: "Partition documents into value-range buckets",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cutpoints := rangeOpts.rangeGroups
		if len(cutpoints) == 0 {
			if rangeOpts.reservoirPath == "" || rangeOpts.numBuckets == 0 {
				return fmt.Errorf("either --range-groups or both --reservoir-path and --num-buckets are required")
			}
			var err error
			cutpoints, err = reservoir.Cutpoints(rangeOpts.reservoirPath, rangeOpts.numBuckets)
			if err != nil {
				return err
			}
		}
		return partition.RunRange(cmd.Context(), partition.RangeOptions{
			InputDir:     rangeOpts.inputDir,
			OutputDir:    rangeOpts.outputDir,
			Cutpoints:    cutpoints,
			ValueKey:     rangeOpts.valueKey,
			DefaultValue: rangeOpts.defaultValue,
			MaxFileSize:  rangeOpts.maxFileSize,
			BucketPrefix: rangeOpts.bucketName,
			Threads:      rangeOpts.threads,
		})
	},
}

func init() {
	rangePartitionCmd.Flags().StringVar(&rangeOpts.inputDir, "input-dir", "", "directory of input JSONL files")
	rangePartitionCmd.Flags().StringVar(&rangeOpts.outputDir, "output-dir", "", "directory for range buckets")
	rangePartitionCmd.Flags().Float64SliceVar(&rangeOpts.rangeGroups, "range-groups", nil, "explicit ascending cutpoints")
	rangePartitionCmd.Flags().StringVar(&rangeOpts.reservoirPath, "reservoir-path", "", "reservoir sample file to derive cutpoints from")
	rangePartitionCmd.Flags().IntVar(&rangeOpts.numBuckets, "num-buckets", 0, "bucket count when deriving cutpoints from a reservoir")
	rangePartitionCmd.Flags().StringVar(&rangeOpts.valueKey, "value", "score", "path of the routed numeric field")
	rangePartitionCmd.Flags().Float64Var(&rangeOpts.defaultValue, "default-value", 0, "value used when the routed field is absent")
	rangePartitionCmd.Flags().Int64Var(&rangeOpts.maxFileSize, "max-file-size", config.DefaultPartitionFileSize, "maximum uncompressed bytes per shard")
	rangePartitionCmd.Flags().StringVar(&rangeOpts.bucketName, "bucket-name", "bucket", "bucket directory prefix")
	rangePartitionCmd.Flags().IntVar(&rangeOpts.threads, "threads", 0, "worker count; 0 uses all CPUs")
	_ = rangePartitionCmd.MarkFlagRequired("input-dir")
	_ = rangePartitionCmd.MarkFlagRequired("output-dir")
	rootCmd.AddCommand(rangePartitionCmd)
}
