package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/fiscal/internal/core"
	"github.com/JonMunkholm/fiscal/internal/fiscal"
)

type extractOutput struct {
	File     string                    `json:"arquivo" yaml:"arquivo"`
	Encoding fiscal.Encoding           `json:"encoding" yaml:"encoding"`
	Document *fiscal.ExtractedDocument `json:"documento" yaml:"documento"`
}

func newExtractCmd(opts *rootOptions) *cobra.Command {
	var maxSize int64

	cmd := &cobra.Command{
		Use:   "extract FILE",
		Short: "Detect, decode and extract one XML file without storing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			doc, enc, err := core.ExtractFile(fiscal.NewDetector(), filepath.Base(path), data, maxSize)
			if err != nil {
				return fmt.Errorf("%s: %s: %w", path, core.FormatUserError(err), err)
			}

			return render(cmd.OutOrStdout(), opts.output, extractOutput{
				File:     filepath.Base(path),
				Encoding: enc,
				Document: doc,
			})
		},
	}

	cmd.Flags().Int64Var(&maxSize, "max-size", 10<<20, "Reject files larger than this many bytes (0 disables)")
	return cmd
}
