package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/edumesh/retrieval"
)

func newCorpusIDCmd() *cobra.Command {
	var parse bool

	cmd := &cobra.Command{
		Use:   "corpus-id BOARD GRADE SUBJECT",
		Short: "Derive the textbook corpus name for a curriculum",
		Example: `  edumesh corpus-id CBSE 10 Science
  edumesh corpus-id --parse CBSE-grade-10-Science`,
		Args: func(cmd *cobra.Command, args []string) error {
			if parse {
				return cobra.ExactArgs(1)(cmd, args)
			}
			return cobra.ExactArgs(3)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if parse {
				board, grade, subject, err := retrieval.ParseCorpusID(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "board=%s grade=%s subject=%s\n", board, grade, subject)
				return nil
			}
			fmt.Fprintln(out, retrieval.CorpusID(args[0], args[1], args[2]))
			return nil
		},
	}

	cmd.Flags().BoolVar(&parse, "parse", false, "split a corpus name into board, grade and subject")

	return cmd
}
