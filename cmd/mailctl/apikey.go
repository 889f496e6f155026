package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sungwon/mailrelay/internal/auth"
)

func newAPIKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "generate NAME",
		Short: "Create a new API key and print its config entry",
		Long: `Generates a random API key. The plaintext key is printed once; only the
bcrypt hash belongs in config.yaml under auth.api_keys.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := auth.GenerateAPIKey()
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			hash, err := auth.HashKey(key)
			if err != nil {
				return fmt.Errorf("hash key: %w", err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "API key (shown once): %s\n\n", key)
			fmt.Fprintf(w, "auth:\n  api_keys:\n    - name: %s\n      hash: %q\n", args[0], hash)
			return nil
		},
	})
	return cmd
}
