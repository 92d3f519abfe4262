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

	"github.com/cardinalhq/datamap/internal/reshard"
)

var reshardOpts struct {
	inputDir        string
	outputDir       string
	maxLines        int64
	maxSize         int64
	subsample       float64
	keepDirs        bool
	deleteAfterRead bool
	threads         int
}

var reshardCmd = &cobra.Command{
	Use:   "reshard",
	Short: "Repack a corpus into uniformly bounded shards",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return reshard.Run(cmd.Context(), reshard.Options{
			InputDir:        reshardOpts.inputDir,
			OutputDir:       reshardOpts.outputDir,
			MaxLines:        reshardOpts.maxLines,
			MaxSize:         reshardOpts.maxSize,
			Subsample:       reshardOpts.subsample,
			KeepDirs:        reshardOpts.keepDirs,
			DeleteAfterRead: reshardOpts.deleteAfterRead,
			Threads:         reshardOpts.threads,
			Seed:            seed,
		})
	},
}

func init() {
	reshardCmd.Flags().StringVar(&reshardOpts.inputDir, "input-dir", "", "directory of input JSONL files")
	reshardCmd.Flags().StringVar(&reshardOpts.outputDir, "output-dir", "", "directory for output shards")
	reshardCmd.Flags().Int64Var(&reshardOpts.maxLines, "max-lines", 0, "maximum lines per shard; 0 is unlimited")
	reshardCmd.Flags().Int64Var(&reshardOpts.maxSize, "max-size", 0, "maximum uncompressed bytes per shard; 0 is unlimited")
	reshardCmd.Flags().Float64Var(&reshardOpts.subsample, "subsample", 0, "keep each document with this probability; 0 keeps all")
	reshardCmd.Flags().BoolVar(&reshardOpts.keepDirs, "keep-dirs", false, "preserve the input subdirectory layout")
	reshardCmd.Flags().BoolVar(&reshardOpts.deleteAfterRead, "delete-after-read", false, "delete each input file after it is fully read")
	reshardCmd.Flags().IntVar(&reshardOpts.threads, "threads", 0, "worker count; 0 uses all CPUs")
	_ = reshardCmd.MarkFlagRequired("input-dir")
	_ = reshardCmd.MarkFlagRequired("output-dir")
	rootCmd.AddCommand(reshardCmd)
}
