package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/hupe1980/edumesh"
)

func newStateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "state SESSION_ID",
		Short: "Print the synced state of a session as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}

			m, err := edumesh.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer m.Close()

			st, err := m.State(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st.AsMap())
		},
	}
}
