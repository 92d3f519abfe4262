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

	"github.com/cardinalhq/datamap/internal/counter"
)

var countOpts struct {
	inputDir   string
	outputFile string
	countBytes string
	threads    int
}

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Count documents and byte volumes in a corpus",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, err := counter.Run(cmd.Context(), counter.Options{
			InputDir:   countOpts.inputDir,
			OutputFile: countOpts.outputFile,
			CountBytes: countOpts.countBytes,
			Threads:    countOpts.threads,
		})
		return err
	},
}

func init() {
	countCmd.Flags().StringVar(&countOpts.inputDir, "input-dir", "", "directory of input JSONL files")
	countCmd.Flags().StringVar(&countOpts.outputFile, "output-file", "", "file for the JSON totals")
	countCmd.Flags().StringVar(&countOpts.countBytes, "count-bytes", "", "also sum the byte length of the string at this path")
	countCmd.Flags().IntVar(&countOpts.threads, "threads", 0, "worker count; 0 uses all CPUs")
	_ = countCmd.MarkFlagRequired("input-dir")
	_ = countCmd.MarkFlagRequired("output-file")
	rootCmd.AddCommand(countCmd)
}
