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
	"github.com/cardinalhq/datamap/internal/shuffle"
)

var shuffleOpts struct {
	inputDir        string
	outputDir       string
	numOutputs      int
	maxLen          int64
	deleteAfterRead bool
	threads         int
}

var shuffleCmd = &cobra.Command{
	Use:   "shuffle",
	Short: "Scatter documents uniformly across output chunks",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return shuffle.Run(cmd.Context(), shuffle.Options{
			InputDir:        shuffleOpts.inputDir,
			OutputDir:       shuffleOpts.outputDir,
			NumOutputs:      shuffleOpts.numOutputs,
			MaxLen:          shuffleOpts.maxLen,
			DeleteAfterRead: shuffleOpts.deleteAfterRead,
			Threads:         shuffleOpts.threads,
			Seed:            seed,
		})
	},
}

func init() {
	shuffleCmd.Flags().StringVar(&shuffleOpts.inputDir, "input-dir", "", "directory of input JSONL files")
	shuffleCmd.Flags().StringVar(&shuffleOpts.outputDir, "output-dir", "", "directory for shuffled chunks")
	shuffleCmd.Flags().IntVar(&shuffleOpts.numOutputs, "num-outputs", 0, "number of output chunks")
	shuffleCmd.Flags().Int64Var(&shuffleOpts.maxLen, "max-len", config.DefaultPartitionFileSize, "maximum uncompressed bytes per chunk file before rotation")
	shuffleCmd.Flags().BoolVar(&shuffleOpts.deleteAfterRead, "delete-after-read", false, "delete input files after the shuffle completes")
	shuffleCmd.Flags().IntVar(&shuffleOpts.threads, "threads", 0, "worker count; 0 uses all CPUs")
	_ = shuffleCmd.MarkFlagRequired("input-dir")
	_ = shuffleCmd.MarkFlagRequired("output-dir")
	_ = shuffleCmd.MarkFlagRequired("num-outputs")
	rootCmd.AddCommand(shuffleCmd)
}
