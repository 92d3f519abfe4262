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

	"github.com/cardinalhq/datamap/internal/reservoir"
)

var reservoirOpts struct {
	inputDir      string
	outputFile    string
	key           string
	size          int
	tokenWeighted bool
	textKey       string
	threads       int
}

var reservoirCmd = &cobra.Command{
	Use:   "reservoir-sample",
	Short: "Sample values of a field uniformly or by token weight",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return reservoir.Run(cmd.Context(), reservoir.Options{
			InputDir:      reservoirOpts.inputDir,
			OutputFile:    reservoirOpts.outputFile,
			Key:           reservoirOpts.key,
			Size:          reservoirOpts.size,
			TokenWeighted: reservoirOpts.tokenWeighted,
			TextKey:       reservoirOpts.textKey,
			Threads:       reservoirOpts.threads,
			Seed:          seed,
		})
	},
}

func init() {
	reservoirCmd.Flags().StringVar(&reservoirOpts.inputDir, "input-dir", "", "directory of input JSONL files")
	reservoirCmd.Flags().StringVar(&reservoirOpts.outputFile, "output-file", "", "file for the JSON reservoir")
	reservoirCmd.Flags().StringVar(&reservoirOpts.key, "key", "", "path of the sampled numeric field")
	reservoirCmd.Flags().IntVar(&reservoirOpts.size, "reservoir-size", 0, "reservoir capacity")
	reservoirCmd.Flags().BoolVar(&reservoirOpts.tokenWeighted, "token-weighted", false, "weigh documents by cl100k_base token count")
	reservoirCmd.Flags().StringVar(&reservoirOpts.textKey, "text-key", "text", "path of the weighed text, token-weighted mode only")
	reservoirCmd.Flags().IntVar(&reservoirOpts.threads, "threads", 0, "worker count; 0 uses all CPUs")
	_ = reservoirCmd.MarkFlagRequired("input-dir")
	_ = reservoirCmd.MarkFlagRequired("output-file")
	_ = reservoirCmd.MarkFlagRequired("key")
	_ = reservoirCmd.MarkFlagRequired("reservoir-size")
	rootCmd.AddCommand(reservoirCmd)
}
